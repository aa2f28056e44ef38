package memory

import (
	"github.com/stockvn/paygate/internal/models"
)

type state struct {
	seq int64

	users        map[string]*models.User
	wallets      map[string]*models.Wallet
	ledger       []*models.LedgerEntry
	intents      map[string]*models.PaymentIntent
	attempts     map[string]*models.PaymentAttempt
	bankTxs      map[int64]*models.BankTransaction
	webhooks     map[int64]*models.WebhookEvent
	payments     map[string]*models.Payment
	orders       map[string]*models.SymbolOrder
	items        map[string]*models.SymbolOrderItem
	licenses     map[string]*models.SymbolLicense
	subs         map[string]*models.Subscription
	locks        map[string]*models.AppLock
	requestLogs  []*models.RequestLog
	insertionSeq map[string]int64
}

func newState() *state {
	return &state{
		users:        map[string]*models.User{},
		wallets:      map[string]*models.Wallet{},
		intents:      map[string]*models.PaymentIntent{},
		attempts:     map[string]*models.PaymentAttempt{},
		bankTxs:      map[int64]*models.BankTransaction{},
		webhooks:     map[int64]*models.WebhookEvent{},
		payments:     map[string]*models.Payment{},
		orders:       map[string]*models.SymbolOrder{},
		items:        map[string]*models.SymbolOrderItem{},
		licenses:     map[string]*models.SymbolLicense{},
		subs:         map[string]*models.Subscription{},
		locks:        map[string]*models.AppLock{},
		insertionSeq: map[string]int64{},
	}
}

func cloneMap[K comparable, V any](m map[K]*V) map[K]*V {
	out := make(map[K]*V, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

// clone copies every row. Ledger entries and request logs are append-only and shared.
func (s *state) clone() *state {
	c := &state{
		seq:         s.seq,
		users:       cloneMap(s.users),
		wallets:     cloneMap(s.wallets),
		ledger:      append([]*models.LedgerEntry(nil), s.ledger...),
		intents:     cloneMap(s.intents),
		attempts:    cloneMap(s.attempts),
		bankTxs:     cloneMap(s.bankTxs),
		webhooks:    cloneMap(s.webhooks),
		payments:    cloneMap(s.payments),
		orders:      cloneMap(s.orders),
		items:       cloneMap(s.items),
		licenses:    cloneMap(s.licenses),
		subs:        cloneMap(s.subs),
		locks:       cloneMap(s.locks),
		requestLogs: append([]*models.RequestLog(nil), s.requestLogs...),
	}
	c.insertionSeq = make(map[string]int64, len(s.insertionSeq))
	for k, v := range s.insertionSeq {
		c.insertionSeq[k] = v
	}
	return c
}

func (s *state) nextSeq(id string) {
	s.seq++
	s.insertionSeq[id] = s.seq
}

// RequestLogs returns every stored request log. Used by tests.
func (s *Store) RequestLogs() []*models.RequestLog {
	var out []*models.RequestLog
	_ = s.view(func(st *state) error {
		for _, l := range st.requestLogs {
			c := *l
			out = append(out, &c)
		}
		return nil
	})
	return out
}
