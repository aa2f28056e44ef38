package repository

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/stockvn/paygate/internal/models"
)

func (db *PostgresDB) UpsertBankTransaction(ctx context.Context, tx *models.BankTransaction) error {
	err := db.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gateway", "transaction_date", "account_number", "sub_account", "amount_in", "amount_out",
			"accumulated", "code", "content", "reference_number", "description", "updated_at",
		}),
	}).Create(tx).Error
	return wrap(err, "upsert bank transaction")
}

func (db *PostgresDB) LinkBankTransaction(ctx context.Context, id int64, intentID, attemptID, paymentID *string) error {
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if intentID != nil {
		updates["intent_id"] = *intentID
	}
	if attemptID != nil {
		updates["attempt_id"] = *attemptID
	}
	if paymentID != nil {
		updates["payment_id"] = *paymentID
	}
	err := db.conn(ctx).Model(&models.BankTransaction{}).Where("id = ?", id).Updates(updates).Error
	return wrap(err, "link bank transaction")
}

func (db *PostgresDB) GetBankTransaction(ctx context.Context, id int64) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	if err := db.conn(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		return nil, wrap(err, "get bank transaction")
	}
	return &tx, nil
}

func (db *PostgresDB) InsertWebhookEventIfAbsent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	res := db.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_tx_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, wrap(res.Error, "insert webhook event")
	}
	return res.RowsAffected == 1, nil
}

func (db *PostgresDB) GetWebhookEvent(ctx context.Context, gatewayTxID int64) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := db.conn(ctx).Where("gateway_tx_id = ?", gatewayTxID).First(&event).Error; err != nil {
		return nil, wrap(err, "get webhook event")
	}
	return &event, nil
}

func (db *PostgresDB) GetWebhookEventForUpdate(ctx context.Context, gatewayTxID int64) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := db.locked(ctx).Where("gateway_tx_id = ?", gatewayTxID).First(&event).Error; err != nil {
		return nil, wrap(err, "lock webhook event")
	}
	return &event, nil
}

func (db *PostgresDB) UpdateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return wrap(db.conn(ctx).Save(event).Error, "update webhook event")
}

func (db *PostgresDB) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return wrap(db.conn(ctx).Create(payment).Error, "create payment")
}

func (db *PostgresDB) GetPaymentByProviderID(ctx context.Context, providerPaymentID int64) (*models.Payment, error) {
	var payment models.Payment
	if err := db.conn(ctx).Where("provider_payment_id = ?", providerPaymentID).First(&payment).Error; err != nil {
		return nil, wrap(err, "get payment by provider id")
	}
	return &payment, nil
}

func (db *PostgresDB) GetSucceededPaymentForOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := db.conn(ctx).Where("order_id = ? AND status = ?", orderID, models.PaymentSucceeded).
		Order("created_at ASC").First(&payment).Error
	if err != nil {
		return nil, wrap(err, "get payment for order")
	}
	return &payment, nil
}
