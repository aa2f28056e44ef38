package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet is a user's balance in one currency. Balance is a cache of the ledger.
type Wallet struct {
	// ID is the unique identifier for the wallet.
	ID string `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	// UserID is the owner of the wallet.
	UserID string `json:"user_id" gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_wallets_user_currency,priority:1"`
	// Currency is the only currency this wallet can hold.
	Currency Currency `json:"currency" gorm:"column:currency;type:varchar(8);not null;uniqueIndex:ux_wallets_user_currency,priority:2"`
	// Balance is the running total of all ledger entries.
	Balance decimal.Decimal `json:"balance" gorm:"column:balance;type:numeric(18,2);not null;default:0"`
	// LastSeq is the sequence number of the newest ledger entry.
	LastSeq int64 `json:"-" gorm:"column:last_seq;not null;default:0"`
	// Status is the wallet status. Suspended wallets reject new entries.
	Status    WalletStatus `json:"status" gorm:"column:status;type:varchar(16);not null;default:'active'"`
	CreatedAt time.Time    `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"column:updated_at"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.Status == "" {
		w.Status = WalletActive
	}
	return nil
}

// LedgerEntry is one immutable journal line of a wallet.
type LedgerEntry struct {
	// ID is a ULID so entries sort by creation time.
	ID       string `json:"id" gorm:"column:id;type:varchar(26);primaryKey"`
	WalletID string `json:"wallet_id" gorm:"column:wallet_id;type:uuid;not null;uniqueIndex:ux_ledger_wallet_seq,priority:1"`
	// Seq numbers the entries of a wallet starting at 1.
	Seq           int64           `json:"seq" gorm:"column:seq;not null;uniqueIndex:ux_ledger_wallet_seq,priority:2"`
	Kind          LedgerKind      `json:"kind" gorm:"column:kind;type:varchar(16);not null;uniqueIndex:ux_ledger_payment_kind,priority:2"`
	Amount        decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(18,2);not null"`
	IsCredit      bool            `json:"is_credit" gorm:"column:is_credit;not null"`
	BalanceBefore decimal.Decimal `json:"balance_before" gorm:"column:balance_before;type:numeric(18,2);not null"`
	BalanceAfter  decimal.Decimal `json:"balance_after" gorm:"column:balance_after;type:numeric(18,2);not null"`
	// OrderID is set for purchases and refunds.
	OrderID *string `json:"order_id,omitempty" gorm:"column:order_id;type:uuid;index"`
	// PaymentID is set for deposits. At most one entry of a kind per payment.
	PaymentID *string   `json:"payment_id,omitempty" gorm:"column:payment_id;type:uuid;uniqueIndex:ux_ledger_payment_kind,priority:1"`
	Note      string    `json:"note,omitempty" gorm:"column:note"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	return nil
}

// Signed returns the amount with the sign of its direction.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.IsCredit {
		return e.Amount
	}
	return e.Amount.Neg()
}
