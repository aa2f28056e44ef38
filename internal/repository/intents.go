package repository

import (
	"context"
	"time"

	"github.com/stockvn/paygate/internal/models"
)

func (db *PostgresDB) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return wrap(db.conn(ctx).Create(intent).Error, "create payment intent")
}

func (db *PostgresDB) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := db.conn(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, wrap(err, "get payment intent")
	}
	return &intent, nil
}

func (db *PostgresDB) GetIntentForUpdate(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := db.locked(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, wrap(err, "lock payment intent")
	}
	return &intent, nil
}

func (db *PostgresDB) GetIntentByOrderCodeForUpdate(ctx context.Context, orderCode string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := db.locked(ctx).Where("order_code = ?", orderCode).First(&intent).Error; err != nil {
		return nil, wrap(err, "lock payment intent by order code")
	}
	return &intent, nil
}

func (db *PostgresDB) OrderCodeExists(ctx context.Context, orderCode string) (bool, error) {
	var count int64
	if err := db.conn(ctx).Model(&models.PaymentIntent{}).Where("order_code = ?", orderCode).Count(&count).Error; err != nil {
		return false, wrap(err, "check order code")
	}
	return count > 0, nil
}

func (db *PostgresDB) UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return wrap(db.conn(ctx).Save(intent).Error, "update payment intent")
}

func (db *PostgresDB) ListOverdueIntents(ctx context.Context, now time.Time, limit int) ([]*models.PaymentIntent, error) {
	var intents []*models.PaymentIntent
	q := db.conn(ctx).
		Where("status IN ? AND expires_at <= ?", []models.IntentStatus{models.IntentRequiresPaymentMethod, models.IntentProcessing}, now).
		Order("expires_at ASC")
	if err := pageLimit(q, 0, limit).Find(&intents).Error; err != nil {
		return nil, wrap(err, "list overdue intents")
	}
	return intents, nil
}

func (db *PostgresDB) CountOpenIntents(ctx context.Context, userID string, purpose models.IntentPurpose) (int64, error) {
	var count int64
	err := db.conn(ctx).Model(&models.PaymentIntent{}).
		Where("user_id = ? AND purpose = ? AND status IN ?", userID, purpose,
			[]models.IntentStatus{models.IntentRequiresPaymentMethod, models.IntentProcessing}).
		Count(&count).Error
	if err != nil {
		return 0, wrap(err, "count open intents")
	}
	return count, nil
}

func (db *PostgresDB) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return wrap(db.conn(ctx).Create(attempt).Error, "create payment attempt")
}

func (db *PostgresDB) GetActiveAttempt(ctx context.Context, intentID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := db.conn(ctx).Where("intent_id = ? AND status = ?", intentID, models.AttemptActive).
		Order("created_at DESC").First(&attempt).Error
	if err != nil {
		return nil, wrap(err, "get active payment attempt")
	}
	return &attempt, nil
}

func (db *PostgresDB) UpdateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return wrap(db.conn(ctx).Save(attempt).Error, "update payment attempt")
}
