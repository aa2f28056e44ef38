// Package autorenew charges due subscriptions from the wallet and extends their licenses.
package autorenew

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/orders"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

const (
	defaultConcurrency = 4
	lockTTL            = 5 * time.Minute
	sweepLimit         = 500
)

// IntentSweeper expires overdue payment intents.
type IntentSweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

type Scheduler struct {
	logger      *logger.Logger
	repo        models.Repository
	orders      *orders.Manager
	sweeper     IntentSweeper
	notificator models.NotificationService

	instanceID  string
	concurrency int
	now         func() time.Time
}

func NewScheduler(
	repo models.Repository,
	orders *orders.Manager,
	sweeper IntentSweeper,
	notificator models.NotificationService,
	instanceID string,
	concurrency int,
	logger *logger.Logger,
) *Scheduler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Scheduler{
		logger:      logger,
		repo:        repo,
		orders:      orders,
		sweeper:     sweeper,
		notificator: notificator,
		instanceID:  instanceID,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Run renews up to limit due subscriptions, then expires overdue intents.
// Subscriptions claimed by another instance are left out of the report.
func (s *Scheduler) Run(ctx context.Context, limit int) (*models.AutoRenewReport, error) {
	due, err := s.repo.ListDueSubscriptions(ctx, s.now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	s.logger.Info("Auto-renew run started", "due", len(due), "limit", limit)

	report := &models.AutoRenewReport{}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, sub := range due {
		sub := sub
		g.Go(func() error {
			status, ok := s.renew(ctx, sub)
			if !ok {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			switch status {
			case models.RunSuccess:
				report.Success++
			case models.RunSkipped:
				report.Skipped++
			case models.RunFailed:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.sweeper != nil {
		n, err := s.sweeper.SweepExpired(ctx, sweepLimit)
		if err != nil {
			s.logger.Error("Failed to sweep expired intents", "error", err)
		}
		report.ExpiredIntents = n
	}

	s.logger.Info("Auto-renew run finished", "processed", report.Processed, "success", report.Success,
		"skipped", report.Skipped, "failed", report.Failed, "expired_intents", report.ExpiredIntents)
	return report, ctx.Err()
}

func lockName(subscriptionID string) string {
	return "autorenew:subscription:" + subscriptionID
}

// renew charges one subscription. ok is false when another run holds it.
func (s *Scheduler) renew(ctx context.Context, candidate *models.Subscription) (models.RunStatus, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	name := lockName(candidate.ID)
	acquired, err := s.repo.AcquireLock(ctx, name, s.instanceID, s.now().UTC(), lockTTL)
	if err != nil {
		s.logger.Error("Failed to acquire subscription lock", "subscription_id", candidate.ID, "error", err)
		return "", false
	}
	if !acquired {
		s.logger.Debug("Subscription is being renewed elsewhere", "subscription_id", candidate.ID)
		return "", false
	}
	defer func() {
		if err := s.repo.ReleaseLock(context.WithoutCancel(ctx), name, s.instanceID); err != nil {
			s.logger.Error("Failed to release subscription lock", "subscription_id", candidate.ID, "error", err)
		}
	}()

	sub, err := s.repo.GetSubscription(ctx, candidate.ID)
	if err != nil {
		s.logger.Error("Failed to reload subscription", "subscription_id", candidate.ID, "error", err)
		return "", false
	}
	now := s.now().UTC()
	if !sub.Enabled || sub.NextChargeAt.After(now) {
		return "", false
	}

	status, reason, orderID := s.charge(ctx, sub)

	sub.LastRunAt = &now
	sub.LastRunStatus = status
	sub.LastRunReason = reason
	if orderID != "" {
		sub.LastOrderID = &orderID
	}
	if status == models.RunSuccess {
		sub.NextChargeAt = nextCharge(sub.NextChargeAt, now, sub.PeriodDays)
	}
	if err := s.repo.RecordSubscriptionRun(ctx, sub); err != nil {
		s.logger.Error("Failed to record auto-renew outcome", "subscription_id", sub.ID, "status", status, "error", err)
	}

	switch status {
	case models.RunSuccess:
		s.logger.Info("Subscription renewed", "subscription_id", sub.ID, "user_id", sub.UserID,
			"symbol_id", sub.SymbolID, "order_id", orderID, "next_charge_at", sub.NextChargeAt)
	case models.RunSkipped:
		s.logger.Warn("Subscription renewal skipped", "subscription_id", sub.ID, "user_id", sub.UserID, "reason", reason)
		s.notify(sub, models.NotifyAutoRenewSkipped, "Auto-renewal skipped", reason)
	case models.RunFailed:
		s.logger.Error("Subscription renewal failed", "subscription_id", sub.ID, "user_id", sub.UserID, "reason", reason)
		s.notify(sub, models.NotifyAutoRenewFailed, "Auto-renewal failed", "We could not renew your subscription. Please try again later.")
	}
	return status, true
}

// nextCharge advances from now when the schedule has fallen behind.
func nextCharge(due, now time.Time, periodDays int) time.Time {
	if due.Before(now) {
		due = now
	}
	return due.AddDate(0, 0, periodDays)
}

func (s *Scheduler) charge(ctx context.Context, sub *models.Subscription) (models.RunStatus, string, string) {
	days := sub.PeriodDays
	checkout, err := s.orders.CreateOrder(ctx, sub.UserID, &models.CreateOrderRequest{
		Items: []models.OrderItemRequest{{
			SymbolID:    sub.SymbolID,
			Price:       sub.Price,
			LicenseDays: &days,
			Metadata:    map[string]interface{}{"subscription_id": sub.ID},
		}},
		PaymentMethod: models.MethodWallet,
		Currency:      sub.Currency,
		Description:   fmt.Sprintf("auto-renew symbol %d for %d days", sub.SymbolID, days),
	}, orders.AllowPending)
	if err != nil {
		return models.RunFailed, err.Error(), ""
	}
	orderID := checkout.Order.ID

	_, err = s.orders.PayWithWallet(ctx, sub.UserID, orderID)
	if err == nil {
		return models.RunSuccess, "", orderID
	}

	status := models.RunFailed
	var insufficient *xerrors.InsufficientFundsError
	if errors.As(err, &insufficient) {
		status = models.RunSkipped
	}
	if cancelErr := s.orders.Cancel(ctx, s.repo, orderID, "auto-renew "+string(status)); cancelErr != nil {
		s.logger.Error("Failed to cancel unpaid renewal order", "order_id", orderID, "error", cancelErr)
	}
	return status, err.Error(), orderID
}

func (s *Scheduler) notify(sub *models.Subscription, kind models.NotificationKind, subject, message string) {
	if s.notificator == nil {
		return
	}
	s.notificator.SendNotification(&models.Notification{
		UserID:  sub.UserID,
		Kind:    kind,
		Subject: subject,
		Message: fmt.Sprintf("%s\nSymbol: %d", message, sub.SymbolID),
	})
}
