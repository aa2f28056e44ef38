package autorenew

import (
	"context"
	"errors"
	"time"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
)

const defaultPeriodDays = 30

// Subscribe enables auto-renewal of symbolID for userID. The first charge falls on
// the end of the current license, or now when there is none.
func (s *Scheduler) Subscribe(ctx context.Context, userID string, req *models.SubscribeRequest) (*models.Subscription, error) {
	if userID == "" {
		return nil, xerrors.Unauthorized("user is required")
	}
	if req.SymbolID <= 0 {
		return nil, xerrors.InvalidInput("symbol_id must be positive")
	}
	if !req.Price.IsPositive() {
		return nil, xerrors.InvalidInput("price must be positive")
	}
	if !req.Price.Equal(req.Price.Round(2)) {
		return nil, xerrors.InvalidInput("price has more than 2 decimal places")
	}
	period := req.PeriodDays
	if period == 0 {
		period = defaultPeriodDays
	}
	if period < 0 {
		return nil, xerrors.InvalidInput("period_days must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = models.CurrencyVND
	}
	if !currency.Valid() {
		return nil, xerrors.InvalidInput("unsupported currency %q", currency)
	}
	now := s.now().UTC()
	if req.NextChargeAt != nil && time.Unix(*req.NextChargeAt, 0).Before(now) {
		return nil, xerrors.InvalidInput("next_charge_at is in the past")
	}

	sub := &models.Subscription{
		UserID:     userID,
		SymbolID:   req.SymbolID,
		Price:      req.Price,
		Currency:   currency,
		PeriodDays: period,
		Enabled:    true,
	}
	err := s.repo.Transaction(ctx, func(tx models.Repository) error {
		existing, err := tx.FindEnabledSubscription(ctx, userID, req.SymbolID)
		if err == nil {
			return xerrors.Newf(xerrors.KindInvalidInput, "symbol %d already has auto-renew enabled", req.SymbolID).
				WithDetail("subscription_id", existing.ID)
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			return err
		}

		sub.NextChargeAt = now
		if req.NextChargeAt != nil {
			sub.NextChargeAt = time.Unix(*req.NextChargeAt, 0).UTC()
		} else {
			active, err := tx.GetActiveLicenseForUpdate(ctx, userID, req.SymbolID)
			switch {
			case errors.Is(err, xerrors.ErrNotFound):
			case err != nil:
				return err
			case active.Lifetime():
				return xerrors.Newf(xerrors.KindInvalidInput, "symbol %d is licensed for life", req.SymbolID)
			case active.EndAt.After(now):
				sub.NextChargeAt = *active.EndAt
			}
		}
		return tx.CreateSubscription(ctx, sub)
	})
	if errors.Is(err, xerrors.ErrDuplicate) {
		return nil, xerrors.Newf(xerrors.KindInvalidInput, "symbol %d already has auto-renew enabled", req.SymbolID)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("Subscription enabled", "subscription_id", sub.ID, "user_id", userID,
		"symbol_id", sub.SymbolID, "next_charge_at", sub.NextChargeAt)
	return sub, nil
}

// Unsubscribe disables a subscription owned by userID. Disabling twice is a no-op.
func (s *Scheduler) Unsubscribe(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error) {
	var sub *models.Subscription
	changed := false
	err := s.repo.Transaction(ctx, func(tx models.Repository) error {
		var err error
		sub, err = tx.GetSubscriptionForUpdate(ctx, subscriptionID)
		if errors.Is(err, xerrors.ErrNotFound) || (err == nil && sub.UserID != userID) {
			return xerrors.NotFound("subscription")
		}
		if err != nil {
			return err
		}
		if !sub.Enabled {
			return nil
		}
		sub.Enabled = false
		changed = true
		return tx.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("Subscription disabled", "subscription_id", sub.ID, "user_id", userID)
	}
	return sub, nil
}

func (s *Scheduler) Subscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	subs, err := s.repo.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []*models.Subscription{}
	}
	return subs, nil
}
