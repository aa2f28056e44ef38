package memory

import (
	"context"
	"sort"
	"time"

	"github.com/stockvn/paygate/internal/models"
)

func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	_ = sub.BeforeCreate(nil)
	s.stamp(&sub.CreatedAt, &sub.UpdatedAt)
	return s.write(func(st *state) error {
		if sub.Enabled {
			for _, existing := range st.subs {
				if existing.Enabled && existing.UserID == sub.UserID && existing.SymbolID == sub.SymbolID {
					return duplicate("subscription")
				}
			}
		}
		c := *sub
		st.subs[sub.ID] = &c
		st.nextSeq(sub.ID)
		return nil
	})
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var out *models.Subscription
	err := s.view(func(st *state) error {
		sub, ok := st.subs[id]
		if !ok {
			return notFound("subscription")
		}
		c := *sub
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) GetSubscriptionForUpdate(ctx context.Context, id string) (*models.Subscription, error) {
	return s.GetSubscription(ctx, id)
}

func (s *Store) FindEnabledSubscription(ctx context.Context, userID string, symbolID int64) (*models.Subscription, error) {
	var out *models.Subscription
	err := s.view(func(st *state) error {
		for _, sub := range st.subs {
			if sub.Enabled && sub.UserID == userID && sub.SymbolID == symbolID {
				c := *sub
				out = &c
				return nil
			}
		}
		return notFound("subscription")
	})
	return out, err
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.stamp(nil, &sub.UpdatedAt)
	return s.write(func(st *state) error {
		if _, ok := st.subs[sub.ID]; !ok {
			return notFound("subscription")
		}
		if sub.Enabled {
			for _, existing := range st.subs {
				if existing.ID != sub.ID && existing.Enabled && existing.UserID == sub.UserID && existing.SymbolID == sub.SymbolID {
					return duplicate("subscription")
				}
			}
		}
		c := *sub
		st.subs[sub.ID] = &c
		return nil
	})
}

func (s *Store) RecordSubscriptionRun(ctx context.Context, sub *models.Subscription) error {
	s.stamp(nil, &sub.UpdatedAt)
	return s.write(func(st *state) error {
		stored, ok := st.subs[sub.ID]
		if !ok {
			return notFound("subscription")
		}
		c := *stored
		c.LastRunAt = sub.LastRunAt
		c.LastRunStatus = sub.LastRunStatus
		c.LastRunReason = sub.LastRunReason
		c.LastOrderID = sub.LastOrderID
		c.NextChargeAt = sub.NextChargeAt
		c.UpdatedAt = sub.UpdatedAt
		st.subs[sub.ID] = &c
		return nil
	})
}

func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	var out []*models.Subscription
	err := s.view(func(st *state) error {
		for _, sub := range st.subs {
			if sub.UserID == userID {
				c := *sub
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return st.insertionSeq[out[i].ID] > st.insertionSeq[out[j].ID] })
		return nil
	})
	return out, err
}

func (s *Store) ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	var out []*models.Subscription
	err := s.view(func(st *state) error {
		for _, sub := range st.subs {
			if sub.Enabled && !sub.NextChargeAt.After(now) {
				c := *sub
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].NextChargeAt.Equal(out[j].NextChargeAt) {
				return st.insertionSeq[out[i].ID] < st.insertionSeq[out[j].ID]
			}
			return out[i].NextChargeAt.Before(out[j].NextChargeAt)
		})
		out = page(out, 0, limit)
		return nil
	})
	return out, err
}

func (s *Store) AcquireLock(ctx context.Context, name, instanceID string, now time.Time, ttl time.Duration) (bool, error) {
	acquired := false
	err := s.write(func(st *state) error {
		if l, ok := st.locks[name]; ok && l.ExpiresAt > now.Unix() && l.InstanceID != instanceID {
			return nil
		}
		st.locks[name] = &models.AppLock{
			LockName:   name,
			InstanceID: instanceID,
			AcquiredAt: now.Unix(),
			ExpiresAt:  now.Add(ttl).Unix(),
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (s *Store) ReleaseLock(ctx context.Context, name, instanceID string) error {
	return s.write(func(st *state) error {
		if l, ok := st.locks[name]; ok && l.InstanceID == instanceID {
			delete(st.locks, name)
		}
		return nil
	})
}

func (s *Store) InsertRequestLogs(ctx context.Context, logs []*models.RequestLog) error {
	return s.write(func(st *state) error {
		for _, l := range logs {
			s.stamp(&l.CreatedAt, nil)
			c := *l
			st.seq++
			c.ID = st.seq
			st.requestLogs = append(st.requestLogs, &c)
		}
		return nil
	})
}
