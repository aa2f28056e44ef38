package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SymbolLicense grants a user access to one symbol. EndAt nil is a lifetime grant.
// At most one active license exists per user and symbol.
type SymbolLicense struct {
	ID        string        `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	UserID    string        `json:"user_id" gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_symbol_licenses_active,where:status = 'active'"`
	SymbolID  int64         `json:"symbol_id" gorm:"column:symbol_id;not null;uniqueIndex:ux_symbol_licenses_active,where:status = 'active'"`
	OrderID   *string       `json:"order_id,omitempty" gorm:"column:order_id;type:uuid"`
	Status    LicenseStatus `json:"status" gorm:"column:status;type:varchar(16);not null;index"`
	StartAt   time.Time     `json:"start_at" gorm:"column:start_at;not null"`
	EndAt     *time.Time    `json:"end_at,omitempty" gorm:"column:end_at"`
	CreatedAt time.Time     `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"column:updated_at"`
}

func (l *SymbolLicense) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// Lifetime reports whether the license never ends.
func (l *SymbolLicense) Lifetime() bool {
	return l.EndAt == nil
}

// GrantsAccess reports whether the license is usable at now.
func (l *SymbolLicense) GrantsAccess(now time.Time) bool {
	return l.Status == LicenseActive && (l.EndAt == nil || l.EndAt.After(now))
}

// Subscription renews a symbol license from the wallet every PeriodDays.
type Subscription struct {
	ID            string          `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	UserID        string          `json:"user_id" gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_subscriptions_enabled,where:enabled"`
	SymbolID      int64           `json:"symbol_id" gorm:"column:symbol_id;not null;uniqueIndex:ux_subscriptions_enabled,where:enabled"`
	Price         decimal.Decimal `json:"price" gorm:"column:price;type:numeric(18,2);not null"`
	Currency      Currency        `json:"currency" gorm:"column:currency;type:varchar(8);not null"`
	PeriodDays    int             `json:"period_days" gorm:"column:period_days;not null"`
	NextChargeAt  time.Time       `json:"next_charge_at" gorm:"column:next_charge_at;not null;index"`
	Enabled       bool            `json:"enabled" gorm:"column:enabled;not null;default:true;index"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty" gorm:"column:last_run_at"`
	LastRunStatus RunStatus       `json:"last_run_status,omitempty" gorm:"column:last_run_status;type:varchar(16)"`
	LastRunReason string          `json:"last_run_reason,omitempty" gorm:"column:last_run_reason"`
	LastOrderID   *string         `json:"last_order_id,omitempty" gorm:"column:last_order_id;type:uuid"`
	CreatedAt     time.Time       `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"column:updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
