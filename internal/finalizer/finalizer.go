// Package finalizer applies the effect of a succeeded payment: a wallet credit
// for top-ups, or a paid order with its licenses for purchases. Every step is
// idempotent so a replayed or repaired payment converges on the same state.
package finalizer

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockvn/paygate/internal/intent"
	"github.com/stockvn/paygate/internal/ledger"
	"github.com/stockvn/paygate/internal/license"
	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

const paidNote = "symbol order paid"

type Finalizer struct {
	logger   *logger.Logger
	ledger   *ledger.Ledger
	intents  *intent.Service
	licenses *license.Issuer
	now      func() time.Time
}

func New(ledger *ledger.Ledger, intents *intent.Service, licenses *license.Issuer, logger *logger.Logger) *Finalizer {
	return &Finalizer{ledger: ledger, intents: intents, licenses: licenses, logger: logger, now: time.Now}
}

// Effect is what a finalized payment changed.
type Effect struct {
	WalletBalance *decimal.Decimal
	Settlement    *models.OrderSettlement
}

// Finalize applies payment to its intent and marks the intent succeeded.
// in must be locked by the caller's transaction.
func (f *Finalizer) Finalize(ctx context.Context, repo models.Repository, payment *models.Payment, in *models.PaymentIntent) (*Effect, error) {
	effect := &Effect{}
	err := repo.Transaction(ctx, func(tx models.Repository) error {
		switch {
		case in.Purpose == models.PurposeWalletTopup:
			balance, err := f.CreditDeposit(ctx, tx, payment)
			if err != nil {
				return err
			}
			effect.WalletBalance = &balance
		case in.Purpose.SettlesOrder():
			order, err := tx.GetOrderByIntent(ctx, in.ID)
			if err != nil {
				return err
			}
			settlement, err := f.SettleOrder(ctx, tx, order.ID, payment)
			if err != nil {
				return err
			}
			effect.Settlement = settlement
		default:
			return xerrors.Newf(xerrors.KindInvalidInput, "cannot finalize purpose %s", in.Purpose)
		}

		if in.Status == models.IntentSucceeded {
			return nil
		}
		return f.intents.Transition(ctx, tx, in, models.IntentSucceeded)
	})
	if err != nil {
		return nil, err
	}
	f.logger.Info("Payment finalized", "payment_id", payment.ID, "intent_id", in.ID, "purpose", in.Purpose)
	return effect, nil
}

// CreditDeposit credits payment to its user's wallet once and returns the resulting balance.
func (f *Finalizer) CreditDeposit(ctx context.Context, repo models.Repository, payment *models.Payment) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := repo.Transaction(ctx, func(tx models.Repository) error {
		wallet, err := f.ledger.GetOrCreateWallet(ctx, tx, payment.UserID, payment.Currency)
		if err != nil {
			return err
		}
		existing, err := f.ledger.FindDeposit(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			balance = wallet.Balance
			f.logger.Debug("Deposit already credited", "payment_id", payment.ID, "seq", existing.Seq)
			return nil
		}
		entry, err := f.ledger.Append(ctx, tx, wallet.ID, models.LedgerDeposit, payment.Amount, true, ledger.Refs{
			PaymentID: &payment.ID,
			Note:      "wallet top-up",
		})
		if err != nil {
			return err
		}
		balance = entry.BalanceAfter
		return nil
	})
	return balance, err
}

// SettleOrder marks a pending order paid and issues a license for every item that
// has none yet. An already paid order only gets its missing licenses.
func (f *Finalizer) SettleOrder(ctx context.Context, repo models.Repository, orderID string, payment *models.Payment) (*models.OrderSettlement, error) {
	var out *models.OrderSettlement
	err := repo.Transaction(ctx, func(tx models.Repository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case models.OrderPendingPayment:
			if payment != nil && !payment.Amount.Equal(order.TotalAmount) {
				return xerrors.Newf(xerrors.KindAmountMismatch, "payment of %s does not cover order total %s",
					payment.Amount.StringFixed(2), order.TotalAmount.StringFixed(2))
			}
			if order.Status, err = models.TransitionOrder(order.Status, models.OrderPaid); err != nil {
				return err
			}
			now := f.now().UTC()
			order.PaidAt = &now
			order.Note = paidNote
			if err := tx.UpdateOrder(ctx, order); err != nil {
				return err
			}
			f.logger.Info("Symbol order paid", "order_id", order.ID, "user_id", order.UserID, "total", order.TotalAmount.String())
		case models.OrderPaid:
		default:
			return xerrors.Newf(xerrors.KindInvalidState, "order is %s", order.Status).WithDetail("order_id", order.ID)
		}

		licenses := make([]*models.SymbolLicense, 0, len(order.Items))
		for idx := range order.Items {
			item := &order.Items[idx]
			if item.LicenseID != nil {
				l, err := tx.GetLicense(ctx, *item.LicenseID)
				if err != nil {
					return err
				}
				licenses = append(licenses, l)
				continue
			}
			l, err := f.licenses.IssueOrExtend(ctx, tx, order.UserID, item.SymbolID, &order.ID, item.LicenseDays)
			if err != nil {
				return err
			}
			item.LicenseID = &l.ID
			if err := tx.UpdateOrderItem(ctx, item); err != nil {
				return err
			}
			licenses = append(licenses, l)
		}

		if payment == nil {
			payment, err = tx.GetSucceededPaymentForOrder(ctx, order.ID)
			if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
				return err
			}
		}
		out = &models.OrderSettlement{Order: order, Payment: payment, Licenses: licenses}
		return nil
	})
	return out, err
}

// Repair re-applies the order effect of an intent that already succeeded.
// Top-ups are credited in the same transaction as the intent transition, so they need nothing.
func (f *Finalizer) Repair(ctx context.Context, repo models.Repository, in *models.PaymentIntent) (*Effect, error) {
	if in.Status != models.IntentSucceeded || !in.Purpose.SettlesOrder() {
		return &Effect{}, nil
	}
	order, err := repo.GetOrderByIntent(ctx, in.ID)
	if errors.Is(err, xerrors.ErrNotFound) {
		f.logger.Warn("Succeeded intent has no order", "intent_id", in.ID)
		return &Effect{}, nil
	}
	if err != nil {
		return nil, err
	}
	payment, err := repo.GetSucceededPaymentForOrder(ctx, order.ID)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	if order.Status == models.OrderPendingPayment {
		if payment == nil {
			f.logger.Warn("Succeeded intent has no payment for its order", "intent_id", in.ID, "order_id", order.ID)
			return &Effect{}, nil
		}
		f.logger.Warn("Repairing order of succeeded intent", "intent_id", in.ID, "order_id", order.ID)
	}
	settlement, err := f.SettleOrder(ctx, repo, order.ID, payment)
	if err != nil {
		return nil, err
	}
	return &Effect{Settlement: settlement}, nil
}
