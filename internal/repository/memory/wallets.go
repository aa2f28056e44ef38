package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stockvn/paygate/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	_ = user.BeforeCreate(nil)
	s.stamp(&user.CreatedAt, &user.UpdatedAt)
	return s.write(func(st *state) error {
		for _, u := range st.users {
			if u.Email == user.Email {
				return duplicate("user")
			}
		}
		c := *user
		st.users[user.ID] = &c
		return nil
	})
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	err := s.view(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return notFound("user")
		}
		c := *u
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var out *models.User
	err := s.view(func(st *state) error {
		for _, u := range st.users {
			if u.Email == email {
				c := *u
				out = &c
				return nil
			}
		}
		return notFound("user")
	})
	return out, err
}

func (s *Store) SetTelegramChatID(ctx context.Context, username, chatID string) (int64, error) {
	var n int64
	err := s.write(func(st *state) error {
		for _, u := range st.users {
			if u.TelegramUsername == username {
				u.TelegramChatID = chatID
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) EnsureWallet(ctx context.Context, w *models.Wallet) error {
	_ = w.BeforeCreate(nil)
	s.stamp(&w.CreatedAt, &w.UpdatedAt)
	return s.write(func(st *state) error {
		for _, existing := range st.wallets {
			if existing.UserID == w.UserID && existing.Currency == w.Currency {
				return nil
			}
		}
		c := *w
		st.wallets[w.ID] = &c
		return nil
	})
}

func (s *Store) GetWallet(ctx context.Context, userID string, currency models.Currency) (*models.Wallet, error) {
	var out *models.Wallet
	err := s.view(func(st *state) error {
		for _, w := range st.wallets {
			if w.UserID == userID && w.Currency == currency {
				c := *w
				out = &c
				return nil
			}
		}
		return notFound("wallet")
	})
	return out, err
}

func (s *Store) GetWalletByID(ctx context.Context, id string) (*models.Wallet, error) {
	var out *models.Wallet
	err := s.view(func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return notFound("wallet")
		}
		c := *w
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) GetWalletForUpdate(ctx context.Context, id string) (*models.Wallet, error) {
	return s.GetWalletByID(ctx, id)
}

func (s *Store) UpdateWalletBalance(ctx context.Context, id string, balance decimal.Decimal, lastSeq int64) error {
	return s.write(func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return notFound("wallet")
		}
		w.Balance = balance
		w.LastSeq = lastSeq
		w.UpdatedAt = s.now()
		return nil
	})
}

// SetWalletStatus changes a wallet's status. Used by tests and operators.
func (s *Store) SetWalletStatus(id string, status models.WalletStatus) error {
	return s.write(func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return notFound("wallet")
		}
		w.Status = status
		return nil
	})
}

func (s *Store) ListWalletIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.view(func(st *state) error {
		for id := range st.wallets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return nil
	})
	return ids, err
}

func (s *Store) InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	_ = entry.BeforeCreate(nil)
	s.stamp(&entry.CreatedAt, nil)
	return s.write(func(st *state) error {
		for _, e := range st.ledger {
			if e.WalletID == entry.WalletID && e.Seq == entry.Seq {
				return duplicate("ledger entry")
			}
			if entry.PaymentID != nil && e.PaymentID != nil && *e.PaymentID == *entry.PaymentID && e.Kind == entry.Kind {
				return duplicate("ledger entry")
			}
		}
		c := *entry
		st.ledger = append(st.ledger, &c)
		return nil
	})
}

func (s *Store) ListLedgerEntries(ctx context.Context, walletID string, filter models.LedgerFilter) ([]*models.LedgerEntry, error) {
	var out []*models.LedgerEntry
	err := s.view(func(st *state) error {
		for _, e := range st.ledger {
			if e.WalletID == walletID {
				c := *e
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if filter.Newest {
				return out[i].Seq > out[j].Seq
			}
			return out[i].Seq < out[j].Seq
		})
		out = page(out, filter.Offset, filter.Limit)
		return nil
	})
	return out, err
}

func (s *Store) FindLedgerEntryByPayment(ctx context.Context, paymentID string, kind models.LedgerKind) (*models.LedgerEntry, error) {
	return s.findLedger(func(e *models.LedgerEntry) bool {
		return e.PaymentID != nil && *e.PaymentID == paymentID && e.Kind == kind
	})
}

func (s *Store) FindLedgerEntryByOrder(ctx context.Context, orderID string, kind models.LedgerKind) (*models.LedgerEntry, error) {
	return s.findLedger(func(e *models.LedgerEntry) bool {
		return e.OrderID != nil && *e.OrderID == orderID && e.Kind == kind
	})
}

func (s *Store) findLedger(match func(e *models.LedgerEntry) bool) (*models.LedgerEntry, error) {
	var out *models.LedgerEntry
	err := s.view(func(st *state) error {
		for _, e := range st.ledger {
			if match(e) {
				c := *e
				out = &c
				return nil
			}
		}
		return notFound("ledger entry")
	})
	return out, err
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
