// Package reconciler matches gateway transfers to payment intents.
package reconciler

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/stockvn/paygate/internal/finalizer"
	"github.com/stockvn/paygate/internal/intent"
	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

type Reconciler struct {
	logger    *logger.Logger
	intents   *intent.Service
	finalizer *finalizer.Finalizer
}

func New(intents *intent.Service, finalizer *finalizer.Finalizer, logger *logger.Logger) *Reconciler {
	return &Reconciler{intents: intents, finalizer: finalizer, logger: logger}
}

// Reconcile applies one gateway notification inside repo's transaction.
func (r *Reconciler) Reconcile(ctx context.Context, repo models.Repository, payload map[string]interface{}) (*models.ReconcileResult, error) {
	t, err := ParseTransfer(payload)
	if err != nil {
		return nil, err
	}
	result := &models.ReconcileResult{GatewayTxID: t.GatewayTxID, Received: t.Amount}
	if !t.Incoming() {
		result.Outcome = models.OutcomeIgnored
		r.logger.Debug("Ignoring outgoing transfer", "gateway_tx_id", t.GatewayTxID, "type", t.TransferType)
		return result, nil
	}

	err = repo.Transaction(ctx, func(tx models.Repository) error {
		if err := tx.UpsertBankTransaction(ctx, t.BankTransaction()); err != nil {
			return err
		}

		in, err := r.findIntent(ctx, tx, t)
		if err != nil {
			return err
		}
		if in == nil {
			result.Outcome = models.OutcomeNoMatch
			r.logger.Warn("Transfer matches no intent", "gateway_tx_id", t.GatewayTxID,
				"content", t.Content, "amount", t.Amount.String())
			return nil
		}

		result.IntentID = in.ID
		result.OrderCode = in.OrderCode
		result.Purpose = in.Purpose
		result.UserID = in.UserID
		result.Expected = in.Amount
		defer func() { result.IntentStatus = in.Status }()

		switch in.Status {
		case models.IntentSucceeded:
			return r.repair(ctx, tx, t, in, result)
		case models.IntentFailed:
			result.Outcome = models.OutcomeNoMatch
			return tx.LinkBankTransaction(ctx, t.GatewayTxID, &in.ID, nil, nil)
		}

		expired, err := r.intents.ExpireIfOverdue(ctx, tx, in)
		if err != nil {
			return err
		}
		if expired {
			result.Outcome = models.OutcomeExpired
			r.logger.Warn("Transfer arrived for expired intent", "gateway_tx_id", t.GatewayTxID, "intent_id", in.ID)
			return tx.LinkBankTransaction(ctx, t.GatewayTxID, &in.ID, nil, nil)
		}

		switch {
		case t.Amount.Equal(in.Amount):
			return r.match(ctx, tx, t, in, result)
		case in.Purpose == models.PurposeWalletTopup && t.Amount.IsPositive():
			return r.partial(ctx, tx, t, in, result)
		default:
			result.Outcome = models.OutcomeAmountMismatch
			r.logger.Warn("Transfer amount does not match intent", "gateway_tx_id", t.GatewayTxID,
				"intent_id", in.ID, "expected", in.Amount.String(), "received", t.Amount.String())
			return tx.LinkBankTransaction(ctx, t.GatewayTxID, &in.ID, nil, nil)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// findIntent looks the transfer memo up as written and then in canonical form.
func (r *Reconciler) findIntent(ctx context.Context, repo models.Repository, t *Transfer) (*models.PaymentIntent, error) {
	seen := make(map[string]bool)
	for _, field := range []string{t.Code, t.Content, t.Description} {
		memo := intent.ExtractMemo(field)
		if memo == "" {
			continue
		}
		for _, code := range []string{memo, intent.NormalizeMemo(memo)} {
			if seen[code] {
				continue
			}
			seen[code] = true
			in, err := repo.GetIntentByOrderCodeForUpdate(ctx, code)
			if err == nil {
				return in, nil
			}
			if !errors.Is(err, xerrors.ErrNotFound) {
				return nil, err
			}
		}
	}
	return nil, nil
}

func (r *Reconciler) match(ctx context.Context, tx models.Repository, t *Transfer, in *models.PaymentIntent, result *models.ReconcileResult) error {
	payment := r.newPayment(t, in)
	payment.IntentID = &in.ID
	if in.Purpose.SettlesOrder() {
		order, err := tx.GetOrderByIntent(ctx, in.ID)
		if err != nil {
			return err
		}
		payment.OrderID = &order.ID
		result.OrderID = order.ID
	}
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return err
	}

	var attemptID *string
	if attempt, err := tx.GetActiveAttempt(ctx, in.ID); err == nil {
		attemptID = &attempt.ID
	} else if !errors.Is(err, xerrors.ErrNotFound) {
		return err
	}
	if err := tx.LinkBankTransaction(ctx, t.GatewayTxID, &in.ID, attemptID, &payment.ID); err != nil {
		return err
	}

	effect, err := r.finalizer.Finalize(ctx, tx, payment, in)
	if err != nil {
		return err
	}
	result.Outcome = models.OutcomeMatched
	result.PaymentID = payment.ID
	applyEffect(result, effect)
	r.logger.Info("Transfer matched", "gateway_tx_id", t.GatewayTxID, "intent_id", in.ID,
		"payment_id", payment.ID, "amount", t.Amount.String())
	return nil
}

// partial credits a top-up transfer of the wrong amount. The intent stays open
// and the synthetic payment is not bound to it.
func (r *Reconciler) partial(ctx context.Context, tx models.Repository, t *Transfer, in *models.PaymentIntent, result *models.ReconcileResult) error {
	payment := r.newPayment(t, in)
	payment.Metadata["original_intent_id"] = in.ID
	payment.Metadata["expected_amount"] = in.Amount.StringFixed(2)
	payment.Metadata["received_amount"] = t.Amount.StringFixed(2)
	payment.Metadata["partial"] = true
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return err
	}
	if err := tx.LinkBankTransaction(ctx, t.GatewayTxID, &in.ID, nil, &payment.ID); err != nil {
		return err
	}

	balance, err := r.finalizer.CreditDeposit(ctx, tx, payment)
	if err != nil {
		return err
	}
	remaining := decimal.Max(decimal.Zero, in.Amount.Sub(t.Amount))
	result.Outcome = models.OutcomePartial
	result.PaymentID = payment.ID
	result.Remaining = &remaining
	result.WalletBalance = &balance
	r.logger.Warn("Partial top-up credited", "gateway_tx_id", t.GatewayTxID, "intent_id", in.ID,
		"expected", in.Amount.String(), "received", t.Amount.String(), "remaining", remaining.String())
	return nil
}

func (r *Reconciler) repair(ctx context.Context, tx models.Repository, t *Transfer, in *models.PaymentIntent, result *models.ReconcileResult) error {
	if err := tx.LinkBankTransaction(ctx, t.GatewayTxID, &in.ID, nil, nil); err != nil {
		return err
	}
	effect, err := r.finalizer.Repair(ctx, tx, in)
	if err != nil {
		return err
	}
	result.Outcome = models.OutcomeAlreadySucceeded
	applyEffect(result, effect)
	r.logger.Info("Transfer for succeeded intent", "gateway_tx_id", t.GatewayTxID, "intent_id", in.ID)
	return nil
}

func (r *Reconciler) newPayment(t *Transfer, in *models.PaymentIntent) *models.Payment {
	txID := t.GatewayTxID
	return &models.Payment{
		UserID:            in.UserID,
		Purpose:           in.Purpose,
		Method:            models.MethodGatewayTransfer,
		Amount:            t.Amount,
		Currency:          in.Currency,
		Status:            models.PaymentSucceeded,
		ProviderPaymentID: &txID,
		Message:           t.Content,
		Metadata: map[string]interface{}{
			"order_code":     in.OrderCode,
			"reference_code": t.ReferenceCode,
			"gateway":        t.Gateway,
		},
	}
}

func applyEffect(result *models.ReconcileResult, effect *finalizer.Effect) {
	if effect == nil {
		return
	}
	if effect.WalletBalance != nil {
		result.WalletBalance = effect.WalletBalance
	}
	if s := effect.Settlement; s != nil {
		result.OrderID = s.Order.ID
		result.LicensesIssued = len(s.Licenses)
	}
}
