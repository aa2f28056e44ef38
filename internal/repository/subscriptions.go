package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/stockvn/paygate/internal/models"
)

func (db *PostgresDB) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return wrap(db.conn(ctx).Create(sub).Error, "create subscription")
}

func (db *PostgresDB) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := db.conn(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, wrap(err, "get subscription")
	}
	return &sub, nil
}

func (db *PostgresDB) GetSubscriptionForUpdate(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := db.locked(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, wrap(err, "lock subscription")
	}
	return &sub, nil
}

func (db *PostgresDB) FindEnabledSubscription(ctx context.Context, userID string, symbolID int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.conn(ctx).Where("user_id = ? AND symbol_id = ? AND enabled = ?", userID, symbolID, true).First(&sub).Error
	if err != nil {
		return nil, wrap(err, "find enabled subscription")
	}
	return &sub, nil
}

func (db *PostgresDB) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return wrap(db.conn(ctx).Save(sub).Error, "update subscription")
}

func (db *PostgresDB) RecordSubscriptionRun(ctx context.Context, sub *models.Subscription) error {
	res := db.conn(ctx).Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
		"last_run_at":     sub.LastRunAt,
		"last_run_status": sub.LastRunStatus,
		"last_run_reason": sub.LastRunReason,
		"last_order_id":   sub.LastOrderID,
		"next_charge_at":  sub.NextChargeAt,
		"updated_at":      time.Now().UTC(),
	})
	if res.Error != nil {
		return wrap(res.Error, "record subscription run")
	}
	if res.RowsAffected == 0 {
		return wrap(gorm.ErrRecordNotFound, "record subscription run")
	}
	return nil
}

func (db *PostgresDB) ListSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	if err := db.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error; err != nil {
		return nil, wrap(err, "list subscriptions")
	}
	return subs, nil
}

func (db *PostgresDB) ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	q := db.conn(ctx).Where("enabled = ? AND next_charge_at <= ?", true, now).Order("next_charge_at ASC")
	if err := pageLimit(q, 0, limit).Find(&subs).Error; err != nil {
		return nil, wrap(err, "list due subscriptions")
	}
	return subs, nil
}

const acquireLockSQL = `
INSERT INTO app_locks (lock_name, instance_id, acquired_at, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (lock_name) DO UPDATE
SET instance_id = EXCLUDED.instance_id, acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
WHERE app_locks.expires_at <= ? OR app_locks.instance_id = EXCLUDED.instance_id`

func (db *PostgresDB) AcquireLock(ctx context.Context, name, instanceID string, now time.Time, ttl time.Duration) (bool, error) {
	res := db.conn(ctx).Exec(acquireLockSQL, name, instanceID, now.Unix(), now.Add(ttl).Unix(), now.Unix())
	if res.Error != nil {
		return false, wrap(res.Error, "acquire lock")
	}
	return res.RowsAffected == 1, nil
}

func (db *PostgresDB) ReleaseLock(ctx context.Context, name, instanceID string) error {
	err := db.conn(ctx).Where("lock_name = ? AND instance_id = ?", name, instanceID).Delete(&models.AppLock{}).Error
	return wrap(err, "release lock")
}

func (db *PostgresDB) InsertRequestLogs(ctx context.Context, logs []*models.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}
	return wrap(db.conn(ctx).CreateInBatches(logs, 100).Error, "insert request logs")
}
