package memory

import (
	"context"
	"sort"
	"time"

	"github.com/stockvn/paygate/internal/models"
)

func (s *Store) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	_ = intent.BeforeCreate(nil)
	s.stamp(&intent.CreatedAt, &intent.UpdatedAt)
	return s.write(func(st *state) error {
		for _, i := range st.intents {
			if i.OrderCode == intent.OrderCode {
				return duplicate("payment intent")
			}
		}
		c := *intent
		st.intents[intent.ID] = &c
		st.nextSeq(intent.ID)
		return nil
	})
}

func (s *Store) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var out *models.PaymentIntent
	err := s.view(func(st *state) error {
		i, ok := st.intents[id]
		if !ok {
			return notFound("payment intent")
		}
		c := *i
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) GetIntentForUpdate(ctx context.Context, id string) (*models.PaymentIntent, error) {
	return s.GetIntent(ctx, id)
}

func (s *Store) GetIntentByOrderCodeForUpdate(ctx context.Context, orderCode string) (*models.PaymentIntent, error) {
	var out *models.PaymentIntent
	err := s.view(func(st *state) error {
		for _, i := range st.intents {
			if i.OrderCode == orderCode {
				c := *i
				out = &c
				return nil
			}
		}
		return notFound("payment intent")
	})
	return out, err
}

func (s *Store) OrderCodeExists(ctx context.Context, orderCode string) (bool, error) {
	_, err := s.GetIntentByOrderCodeForUpdate(ctx, orderCode)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	s.stamp(nil, &intent.UpdatedAt)
	return s.write(func(st *state) error {
		if _, ok := st.intents[intent.ID]; !ok {
			return notFound("payment intent")
		}
		c := *intent
		st.intents[intent.ID] = &c
		return nil
	})
}

func (s *Store) ListOverdueIntents(ctx context.Context, now time.Time, limit int) ([]*models.PaymentIntent, error) {
	var out []*models.PaymentIntent
	err := s.view(func(st *state) error {
		for _, i := range st.intents {
			if i.Status.Open() && !i.ExpiresAt.After(now) {
				c := *i
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(a, b int) bool { return out[a].ExpiresAt.Before(out[b].ExpiresAt) })
		out = page(out, 0, limit)
		return nil
	})
	return out, err
}

func (s *Store) CountOpenIntents(ctx context.Context, userID string, purpose models.IntentPurpose) (int64, error) {
	var n int64
	err := s.view(func(st *state) error {
		for _, i := range st.intents {
			if i.UserID == userID && i.Purpose == purpose && i.Status.Open() {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	_ = attempt.BeforeCreate(nil)
	s.stamp(&attempt.CreatedAt, &attempt.UpdatedAt)
	return s.write(func(st *state) error {
		c := *attempt
		st.attempts[attempt.ID] = &c
		st.nextSeq(attempt.ID)
		return nil
	})
}

func (s *Store) GetActiveAttempt(ctx context.Context, intentID string) (*models.PaymentAttempt, error) {
	var out *models.PaymentAttempt
	err := s.view(func(st *state) error {
		for _, a := range st.attempts {
			if a.IntentID != intentID || a.Status != models.AttemptActive {
				continue
			}
			if out == nil || st.insertionSeq[a.ID] > st.insertionSeq[out.ID] {
				c := *a
				out = &c
			}
		}
		if out == nil {
			return notFound("payment attempt")
		}
		return nil
	})
	return out, err
}

func (s *Store) UpdateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	s.stamp(nil, &attempt.UpdatedAt)
	return s.write(func(st *state) error {
		if _, ok := st.attempts[attempt.ID]; !ok {
			return notFound("payment attempt")
		}
		c := *attempt
		st.attempts[attempt.ID] = &c
		return nil
	})
}

// Attempts returns every attempt of an intent in creation order. Used by tests.
func (s *Store) Attempts(intentID string) []*models.PaymentAttempt {
	var out []*models.PaymentAttempt
	_ = s.view(func(st *state) error {
		for _, a := range st.attempts {
			if a.IntentID == intentID {
				c := *a
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return st.insertionSeq[out[i].ID] < st.insertionSeq[out[j].ID] })
		return nil
	})
	return out
}
