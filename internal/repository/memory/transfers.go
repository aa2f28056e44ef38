package memory

import (
	"context"

	"github.com/stockvn/paygate/internal/models"
)

func (s *Store) UpsertBankTransaction(ctx context.Context, tx *models.BankTransaction) error {
	s.stamp(&tx.CreatedAt, &tx.UpdatedAt)
	return s.write(func(st *state) error {
		c := *tx
		if existing, ok := st.bankTxs[tx.ID]; ok {
			c.IntentID, c.AttemptID, c.PaymentID = existing.IntentID, existing.AttemptID, existing.PaymentID
			c.CreatedAt = existing.CreatedAt
		}
		st.bankTxs[tx.ID] = &c
		return nil
	})
}

func (s *Store) LinkBankTransaction(ctx context.Context, id int64, intentID, attemptID, paymentID *string) error {
	return s.write(func(st *state) error {
		tx, ok := st.bankTxs[id]
		if !ok {
			return notFound("bank transaction")
		}
		if intentID != nil {
			v := *intentID
			tx.IntentID = &v
		}
		if attemptID != nil {
			v := *attemptID
			tx.AttemptID = &v
		}
		if paymentID != nil {
			v := *paymentID
			tx.PaymentID = &v
		}
		tx.UpdatedAt = s.now()
		return nil
	})
}

func (s *Store) GetBankTransaction(ctx context.Context, id int64) (*models.BankTransaction, error) {
	var out *models.BankTransaction
	err := s.view(func(st *state) error {
		tx, ok := st.bankTxs[id]
		if !ok {
			return notFound("bank transaction")
		}
		c := *tx
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) InsertWebhookEventIfAbsent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	_ = event.BeforeCreate(nil)
	s.stamp(&event.CreatedAt, &event.UpdatedAt)
	inserted := false
	err := s.write(func(st *state) error {
		if _, ok := st.webhooks[event.GatewayTxID]; ok {
			return nil
		}
		c := *event
		st.webhooks[event.GatewayTxID] = &c
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *Store) GetWebhookEvent(ctx context.Context, gatewayTxID int64) (*models.WebhookEvent, error) {
	var out *models.WebhookEvent
	err := s.view(func(st *state) error {
		e, ok := st.webhooks[gatewayTxID]
		if !ok {
			return notFound("webhook event")
		}
		c := *e
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) GetWebhookEventForUpdate(ctx context.Context, gatewayTxID int64) (*models.WebhookEvent, error) {
	return s.GetWebhookEvent(ctx, gatewayTxID)
}

func (s *Store) UpdateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	s.stamp(nil, &event.UpdatedAt)
	return s.write(func(st *state) error {
		if _, ok := st.webhooks[event.GatewayTxID]; !ok {
			return notFound("webhook event")
		}
		c := *event
		st.webhooks[event.GatewayTxID] = &c
		return nil
	})
}

func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_ = payment.BeforeCreate(nil)
	s.stamp(&payment.CreatedAt, nil)
	return s.write(func(st *state) error {
		if payment.ProviderPaymentID != nil {
			for _, p := range st.payments {
				if p.ProviderPaymentID != nil && *p.ProviderPaymentID == *payment.ProviderPaymentID {
					return duplicate("payment")
				}
			}
		}
		c := *payment
		st.payments[payment.ID] = &c
		st.nextSeq(payment.ID)
		return nil
	})
}

func (s *Store) GetPaymentByProviderID(ctx context.Context, providerPaymentID int64) (*models.Payment, error) {
	var out *models.Payment
	err := s.view(func(st *state) error {
		for _, p := range st.payments {
			if p.ProviderPaymentID != nil && *p.ProviderPaymentID == providerPaymentID {
				c := *p
				out = &c
				return nil
			}
		}
		return notFound("payment")
	})
	return out, err
}

func (s *Store) GetSucceededPaymentForOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	var out *models.Payment
	err := s.view(func(st *state) error {
		for _, p := range st.payments {
			if p.OrderID == nil || *p.OrderID != orderID || p.Status != models.PaymentSucceeded {
				continue
			}
			if out == nil || st.insertionSeq[p.ID] < st.insertionSeq[out.ID] {
				c := *p
				out = &c
			}
		}
		if out == nil {
			return notFound("payment")
		}
		return nil
	})
	return out, err
}

// Payments returns every stored payment. Used by tests.
func (s *Store) Payments() []*models.Payment {
	var out []*models.Payment
	_ = s.view(func(st *state) error {
		for _, p := range st.payments {
			c := *p
			out = append(out, &c)
		}
		return nil
	})
	return out
}
