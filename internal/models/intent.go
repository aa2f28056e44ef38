package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentIntent is a request to collect Amount from the user through a bank transfer.
// An order that is paid by transfer references its intent; the intent never points back.
type PaymentIntent struct {
	ID       string          `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	UserID   string          `json:"user_id" gorm:"column:user_id;type:uuid;not null;index"`
	Purpose  IntentPurpose   `json:"purpose" gorm:"column:purpose;type:varchar(32);not null"`
	Amount   decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(18,2);not null"`
	Currency Currency        `json:"currency" gorm:"column:currency;type:varchar(8);not null"`
	Status   IntentStatus    `json:"status" gorm:"column:status;type:varchar(32);not null;index"`
	// OrderCode is the transfer memo the payer must use. Unique across all intents.
	OrderCode     string            `json:"order_code" gorm:"column:order_code;type:varchar(64);not null;uniqueIndex"`
	ReferenceCode *string           `json:"reference_code,omitempty" gorm:"column:reference_code"`
	ExpiresAt     time.Time         `json:"expires_at" gorm:"column:expires_at;not null;index"`
	QRCodeURL     string            `json:"qr_code_url,omitempty" gorm:"column:qr_code_url"`
	ReturnURL     string            `json:"return_url,omitempty" gorm:"column:return_url"`
	CancelURL     string            `json:"cancel_url,omitempty" gorm:"column:cancel_url"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata"`
	SucceededAt   *time.Time        `json:"succeeded_at,omitempty" gorm:"column:succeeded_at"`
	CreatedAt     time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (i *PaymentIntent) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// IsOverdue reports whether the intent has passed its expiry at now.
func (i *PaymentIntent) IsOverdue(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// PaymentAttempt is one rendering of the transfer instructions for an intent.
type PaymentAttempt struct {
	ID              string          `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	IntentID        string          `json:"intent_id" gorm:"column:intent_id;type:uuid;not null;index"`
	Status          AttemptStatus   `json:"status" gorm:"column:status;type:varchar(16);not null"`
	BankCode        string          `json:"bank_code" gorm:"column:bank_code;type:varchar(32)"`
	AccountNumber   string          `json:"account_number" gorm:"column:account_number;type:varchar(32)"`
	AccountName     string          `json:"account_name" gorm:"column:account_name"`
	TransferContent string          `json:"transfer_content" gorm:"column:transfer_content;type:varchar(64)"`
	TransferAmount  decimal.Decimal `json:"transfer_amount" gorm:"column:transfer_amount;type:numeric(18,2)"`
	QRImageURL      string          `json:"qr_image_url" gorm:"column:qr_image_url"`
	ExpiresAt       time.Time       `json:"expires_at" gorm:"column:expires_at"`
	CreatedAt       time.Time       `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"column:updated_at"`
}

func (a *PaymentAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
