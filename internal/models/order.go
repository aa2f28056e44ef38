package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SymbolOrder is a purchase of one or more symbol licenses.
type SymbolOrder struct {
	ID            string          `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	UserID        string          `json:"user_id" gorm:"column:user_id;type:uuid;not null;index"`
	TotalAmount   decimal.Decimal `json:"total_amount" gorm:"column:total_amount;type:numeric(18,2);not null"`
	Currency      Currency        `json:"currency" gorm:"column:currency;type:varchar(8);not null"`
	Status        OrderStatus     `json:"status" gorm:"column:status;type:varchar(32);not null;index"`
	PaymentMethod PaymentMethod   `json:"payment_method" gorm:"column:payment_method;type:varchar(32);not null"`
	// IntentID is the gateway intent collecting this order, if any.
	IntentID    *string           `json:"intent_id,omitempty" gorm:"column:intent_id;type:uuid;index"`
	Description string            `json:"description,omitempty" gorm:"column:description"`
	Note        string            `json:"note,omitempty" gorm:"column:note"`
	PaidAt      *time.Time        `json:"paid_at,omitempty" gorm:"column:paid_at"`
	Items       []SymbolOrderItem `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `json:"created_at" gorm:"column:created_at;index"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

func (o *SymbolOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// SymbolOrderItem is one symbol in an order. LicenseDays nil means a lifetime license.
type SymbolOrderItem struct {
	ID          string            `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	OrderID     string            `json:"order_id" gorm:"column:order_id;type:uuid;not null;index"`
	SymbolID    int64             `json:"symbol_id" gorm:"column:symbol_id;not null"`
	Price       decimal.Decimal   `json:"price" gorm:"column:price;type:numeric(18,2);not null"`
	LicenseDays *int              `json:"license_days,omitempty" gorm:"column:license_days"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata"`
	// LicenseID is set once the item has been granted.
	LicenseID *string   `json:"license_id,omitempty" gorm:"column:license_id;type:uuid"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (i *SymbolOrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}
