package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"github.com/stockvn/paygate/internal/models"
)

func (db *PostgresDB) EnsureWallet(ctx context.Context, w *models.Wallet) error {
	err := db.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "currency"}},
		DoNothing: true,
	}).Create(w).Error
	return wrap(err, "create wallet")
}

func (db *PostgresDB) GetWallet(ctx context.Context, userID string, currency models.Currency) (*models.Wallet, error) {
	var w models.Wallet
	if err := db.conn(ctx).Where("user_id = ? AND currency = ?", userID, currency).First(&w).Error; err != nil {
		return nil, wrap(err, "get wallet")
	}
	return &w, nil
}

func (db *PostgresDB) GetWalletByID(ctx context.Context, id string) (*models.Wallet, error) {
	var w models.Wallet
	if err := db.conn(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, wrap(err, "get wallet")
	}
	return &w, nil
}

func (db *PostgresDB) GetWalletForUpdate(ctx context.Context, id string) (*models.Wallet, error) {
	var w models.Wallet
	if err := db.locked(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, wrap(err, "lock wallet")
	}
	return &w, nil
}

func (db *PostgresDB) UpdateWalletBalance(ctx context.Context, id string, balance decimal.Decimal, lastSeq int64) error {
	err := db.conn(ctx).Model(&models.Wallet{}).Where("id = ?", id).Updates(map[string]interface{}{
		"balance":    balance,
		"last_seq":   lastSeq,
		"updated_at": time.Now().UTC(),
	}).Error
	return wrap(err, "update wallet balance")
}

func (db *PostgresDB) ListWalletIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := db.conn(ctx).Model(&models.Wallet{}).Order("created_at").Pluck("id", &ids).Error; err != nil {
		return nil, wrap(err, "list wallets")
	}
	return ids, nil
}

func (db *PostgresDB) InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return wrap(db.conn(ctx).Create(entry).Error, "insert ledger entry")
}

func (db *PostgresDB) ListLedgerEntries(ctx context.Context, walletID string, filter models.LedgerFilter) ([]*models.LedgerEntry, error) {
	order := "seq ASC"
	if filter.Newest {
		order = "seq DESC"
	}
	var entries []*models.LedgerEntry
	q := pageLimit(db.conn(ctx).Where("wallet_id = ?", walletID).Order(order), filter.Offset, filter.Limit)
	if err := q.Find(&entries).Error; err != nil {
		return nil, wrap(err, "list ledger entries")
	}
	return entries, nil
}

func (db *PostgresDB) FindLedgerEntryByPayment(ctx context.Context, paymentID string, kind models.LedgerKind) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := db.conn(ctx).Where("payment_id = ? AND kind = ?", paymentID, kind).First(&entry).Error; err != nil {
		return nil, wrap(err, "find ledger entry by payment")
	}
	return &entry, nil
}

func (db *PostgresDB) FindLedgerEntryByOrder(ctx context.Context, orderID string, kind models.LedgerKind) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := db.conn(ctx).Where("order_id = ? AND kind = ?", orderID, kind).First(&entry).Error; err != nil {
		return nil, wrap(err, "find ledger entry by order")
	}
	return &entry, nil
}
