package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TransferIn  = "in"
	TransferOut = "out"
)

// BankTransaction is a transfer reported by the gateway. The primary key is the gateway's id.
type BankTransaction struct {
	ID              int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Gateway         string          `json:"gateway" gorm:"column:gateway"`
	TransactionDate time.Time       `json:"transaction_date" gorm:"column:transaction_date"`
	AccountNumber   string          `json:"account_number" gorm:"column:account_number;type:varchar(32)"`
	SubAccount      string          `json:"sub_account,omitempty" gorm:"column:sub_account"`
	AmountIn        decimal.Decimal `json:"amount_in" gorm:"column:amount_in;type:numeric(18,2);not null;default:0"`
	AmountOut       decimal.Decimal `json:"amount_out" gorm:"column:amount_out;type:numeric(18,2);not null;default:0"`
	Accumulated     decimal.Decimal `json:"accumulated" gorm:"column:accumulated;type:numeric(18,2);not null;default:0"`
	Code            string          `json:"code,omitempty" gorm:"column:code"`
	Content         string          `json:"content" gorm:"column:content"`
	ReferenceNumber string          `json:"reference_number,omitempty" gorm:"column:reference_number"`
	Description     string          `json:"description,omitempty" gorm:"column:description"`
	// IntentID, AttemptID and PaymentID are filled in once the transfer is matched.
	IntentID  *string   `json:"intent_id,omitempty" gorm:"column:intent_id;type:uuid;index"`
	AttemptID *string   `json:"attempt_id,omitempty" gorm:"column:attempt_id;type:uuid"`
	PaymentID *string   `json:"payment_id,omitempty" gorm:"column:payment_id;type:uuid"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// WebhookEvent is the inbox row for one gateway delivery, stored before it is parsed.
type WebhookEvent struct {
	ID          string            `json:"id" gorm:"column:id;type:varchar(26);primaryKey"`
	GatewayTxID int64             `json:"gateway_tx_id" gorm:"column:gateway_tx_id;not null;uniqueIndex"`
	Payload     datatypes.JSONMap `json:"payload" gorm:"column:payload"`
	Processed   bool              `json:"processed" gorm:"column:processed;not null;default:false;index"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty" gorm:"column:processed_at"`
	// Attempts counts processing runs, successful or not.
	Attempts  int       `json:"attempts" gorm:"column:attempts;not null;default:0"`
	LastError string    `json:"last_error,omitempty" gorm:"column:last_error"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	return nil
}

// Payment records money received, either through the gateway or from a wallet.
type Payment struct {
	ID       string          `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	UserID   string          `json:"user_id" gorm:"column:user_id;type:uuid;not null;index"`
	OrderID  *string         `json:"order_id,omitempty" gorm:"column:order_id;type:uuid;index"`
	IntentID *string         `json:"intent_id,omitempty" gorm:"column:intent_id;type:uuid;index"`
	Purpose  IntentPurpose   `json:"purpose" gorm:"column:purpose;type:varchar(32);not null"`
	Method   PaymentMethod   `json:"method" gorm:"column:method;type:varchar(32);not null"`
	Amount   decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(18,2);not null"`
	Currency Currency        `json:"currency" gorm:"column:currency;type:varchar(8);not null"`
	Status   PaymentStatus   `json:"status" gorm:"column:status;type:varchar(16);not null"`
	// ProviderPaymentID is the gateway transaction id. Null for wallet payments.
	ProviderPaymentID *int64            `json:"provider_payment_id,omitempty" gorm:"column:provider_payment_id;uniqueIndex"`
	Message           string            `json:"message,omitempty" gorm:"column:message"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata"`
	CreatedAt         time.Time         `json:"created_at" gorm:"column:created_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
