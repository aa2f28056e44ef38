// Package webhook is the durable inbox for gateway notifications. Each delivery is
// stored verbatim before it is parsed, and its effect is applied at most once per
// gateway transaction id.
package webhook

import (
	"context"
	"time"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/reconciler"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

// Reconciler applies a stored payload inside the given transaction.
type Reconciler interface {
	Reconcile(ctx context.Context, repo models.Repository, payload map[string]interface{}) (*models.ReconcileResult, error)
}

type Inbox struct {
	logger     *logger.Logger
	repo       models.Repository
	reconciler Reconciler
	now        func() time.Time
}

func NewInbox(repo models.Repository, reconciler Reconciler, logger *logger.Logger) *Inbox {
	return &Inbox{repo: repo, reconciler: reconciler, logger: logger, now: time.Now}
}

// Ingest records payload and processes it unless it was processed before.
// Once the event row exists the returned error is nil; failures are reported in the ack
// and left for a later delivery or Retry.
func (i *Inbox) Ingest(ctx context.Context, payload map[string]interface{}) (*models.WebhookAck, error) {
	txID, err := reconciler.GatewayTxID(payload)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	event := &models.WebhookEvent{GatewayTxID: txID, Payload: payload}
	inserted, err := i.repo.InsertWebhookEventIfAbsent(ctx, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := i.repo.GetWebhookEvent(ctx, txID)
		if err != nil {
			return nil, err
		}
		if existing.Processed {
			i.logger.Info("Webhook already processed", "gateway_tx_id", txID, "event_id", existing.ID)
			return &models.WebhookAck{Status: models.AckAlreadyProcessed, EventID: existing.ID, GatewayTxID: txID}, nil
		}
		i.logger.Info("Reprocessing webhook", "gateway_tx_id", txID, "event_id", existing.ID, "attempts", existing.Attempts)
	}
	return i.process(ctx, txID)
}

// Retry reprocesses a stored event that has not been processed yet.
func (i *Inbox) Retry(ctx context.Context, txID int64) (*models.WebhookAck, error) {
	event, err := i.repo.GetWebhookEvent(ctx, txID)
	if err != nil {
		return nil, xerrors.NotFound("webhook event")
	}
	if event.Processed {
		return &models.WebhookAck{Status: models.AckAlreadyProcessed, EventID: event.ID, GatewayTxID: txID}, nil
	}
	return i.process(context.WithoutCancel(ctx), txID)
}

func (i *Inbox) process(ctx context.Context, txID int64) (*models.WebhookAck, error) {
	ack := &models.WebhookAck{GatewayTxID: txID}
	err := i.repo.Transaction(ctx, func(tx models.Repository) error {
		event, err := tx.GetWebhookEventForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		ack.EventID = event.ID
		if event.Processed {
			ack.Status = models.AckAlreadyProcessed
			return nil
		}

		result, err := i.reconciler.Reconcile(ctx, tx, event.Payload)
		if err != nil {
			return err
		}
		now := i.now().UTC()
		event.Processed = true
		event.ProcessedAt = &now
		event.Attempts++
		event.LastError = ""
		if err := tx.UpdateWebhookEvent(ctx, event); err != nil {
			return err
		}
		ack.Status = models.AckProcessed
		ack.Result = result
		return nil
	})
	if err == nil {
		if ack.Result != nil {
			i.logger.Info("Webhook processed", "gateway_tx_id", txID, "outcome", ack.Result.Outcome, "intent_id", ack.Result.IntentID)
		}
		return ack, nil
	}

	i.logger.Error("Failed to process webhook", "gateway_tx_id", txID, "error", err)
	if recErr := i.recordFailure(ctx, txID, err); recErr != nil {
		i.logger.Error("Failed to record webhook failure", "gateway_tx_id", txID, "error", recErr)
	}
	ack.Status = models.AckFailed
	ack.Error = string(xerrors.KindOf(err))
	return ack, nil
}

func (i *Inbox) recordFailure(ctx context.Context, txID int64, cause error) error {
	return i.repo.Transaction(ctx, func(tx models.Repository) error {
		event, err := tx.GetWebhookEventForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		event.Attempts++
		event.LastError = cause.Error()
		return tx.UpdateWebhookEvent(ctx, event)
	})
}
