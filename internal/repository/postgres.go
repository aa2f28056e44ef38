package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
	"github.com/stockvn/paygate/pkg/retry"
)

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
	// inTx is set on handles bound to an open transaction.
	inTx bool
}

// Models lists every table owned by the service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Wallet{},
		&models.LedgerEntry{},
		&models.PaymentIntent{},
		&models.PaymentAttempt{},
		&models.BankTransaction{},
		&models.WebhookEvent{},
		&models.Payment{},
		&models.SymbolOrder{},
		&models.SymbolOrderItem{},
		&models.SymbolLicense{},
		&models.Subscription{},
		&models.AppLock{},
		&models.RequestLog{},
	}
}

func NewPostgresDB(dsn string, migrate bool, logger *logger.Logger) (*PostgresDB, error) {
	// Configure GORM logger to suppress "record not found" messages
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	pg := &PostgresDB{Conn: db, logger: logger}
	if migrate {
		if err := pg.Migrate(); err != nil {
			return nil, err
		}
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return pg, nil
}

// Migrate creates or updates every table.
func (db *PostgresDB) Migrate() error {
	if err := db.Conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

// Transaction runs fn in a database transaction. Serialization failures and
// deadlocks restart the whole transaction.
func (db *PostgresDB) Transaction(ctx context.Context, fn func(tx models.Repository) error) error {
	if db.inTx {
		return fn(db)
	}
	return retry.Do(ctx, retry.DefaultPolicy, isRetryable, func() error {
		return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&PostgresDB{Conn: tx, logger: db.logger, inTx: true})
		})
	})
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func (db *PostgresDB) conn(ctx context.Context) *gorm.DB {
	return db.Conn.WithContext(ctx)
}

func (db *PostgresDB) locked(ctx context.Context) *gorm.DB {
	return db.Conn.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

// wrap converts gorm errors into repository sentinels.
func wrap(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("failed to %s: %w", action, xerrors.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("failed to %s: %w", action, xerrors.ErrDuplicate)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func pageLimit(q *gorm.DB, offset, limit int) *gorm.DB {
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

var _ models.Repository = (*PostgresDB)(nil)
