package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/stockvn/paygate/internal/models"
)

func (db *PostgresDB) CreateOrder(ctx context.Context, order *models.SymbolOrder) error {
	return wrap(db.conn(ctx).Create(order).Error, "create symbol order")
}

func (db *PostgresDB) withItems(q *gorm.DB) *gorm.DB {
	return q.Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") })
}

func (db *PostgresDB) GetOrder(ctx context.Context, id string) (*models.SymbolOrder, error) {
	var order models.SymbolOrder
	if err := db.withItems(db.conn(ctx)).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, wrap(err, "get symbol order")
	}
	return &order, nil
}

func (db *PostgresDB) GetOrderForUpdate(ctx context.Context, id string) (*models.SymbolOrder, error) {
	var order models.SymbolOrder
	if err := db.withItems(db.locked(ctx)).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, wrap(err, "lock symbol order")
	}
	return &order, nil
}

func (db *PostgresDB) GetOrderByIntent(ctx context.Context, intentID string) (*models.SymbolOrder, error) {
	var order models.SymbolOrder
	if err := db.withItems(db.locked(ctx)).Where("intent_id = ?", intentID).First(&order).Error; err != nil {
		return nil, wrap(err, "get symbol order by intent")
	}
	return &order, nil
}

// UpdateOrder saves the order columns only; items are updated through UpdateOrderItem.
func (db *PostgresDB) UpdateOrder(ctx context.Context, order *models.SymbolOrder) error {
	return wrap(db.conn(ctx).Omit("Items").Save(order).Error, "update symbol order")
}

func (db *PostgresDB) UpdateOrderItem(ctx context.Context, item *models.SymbolOrderItem) error {
	return wrap(db.conn(ctx).Save(item).Error, "update symbol order item")
}

func (db *PostgresDB) ListOrders(ctx context.Context, userID string, offset, limit int) ([]*models.SymbolOrder, int64, error) {
	var total int64
	if err := db.conn(ctx).Model(&models.SymbolOrder{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, wrap(err, "count symbol orders")
	}
	var orders []*models.SymbolOrder
	q := db.withItems(db.conn(ctx)).Where("user_id = ?", userID).Order("created_at DESC")
	if err := pageLimit(q, offset, limit).Find(&orders).Error; err != nil {
		return nil, 0, wrap(err, "list symbol orders")
	}
	return orders, total, nil
}

func (db *PostgresDB) CreateLicense(ctx context.Context, license *models.SymbolLicense) error {
	return wrap(db.conn(ctx).Create(license).Error, "create symbol license")
}

func (db *PostgresDB) GetActiveLicenseForUpdate(ctx context.Context, userID string, symbolID int64) (*models.SymbolLicense, error) {
	var license models.SymbolLicense
	err := db.locked(ctx).Where("user_id = ? AND symbol_id = ? AND status = ?", userID, symbolID, models.LicenseActive).
		First(&license).Error
	if err != nil {
		return nil, wrap(err, "lock active symbol license")
	}
	return &license, nil
}

func (db *PostgresDB) GetLicense(ctx context.Context, id string) (*models.SymbolLicense, error) {
	var license models.SymbolLicense
	if err := db.conn(ctx).Where("id = ?", id).First(&license).Error; err != nil {
		return nil, wrap(err, "get symbol license")
	}
	return &license, nil
}

func (db *PostgresDB) UpdateLicense(ctx context.Context, license *models.SymbolLicense) error {
	return wrap(db.conn(ctx).Save(license).Error, "update symbol license")
}

func (db *PostgresDB) ListLicenses(ctx context.Context, userID string) ([]*models.SymbolLicense, error) {
	var licenses []*models.SymbolLicense
	if err := db.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&licenses).Error; err != nil {
		return nil, wrap(err, "list symbol licenses")
	}
	return licenses, nil
}
