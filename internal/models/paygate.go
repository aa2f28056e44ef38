package models

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaygateI is the application surface served over HTTP.
type PaygateI interface {
	Start(ctx context.Context)
	Stop()

	Login(ctx context.Context, email, password string) (*AuthTokens, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error)
	Authenticate(token string) (string, error)

	CreateIntent(ctx context.Context, userID string, req *CreateIntentRequest) (*Checkout, error)
	GetIntent(ctx context.Context, userID, intentID string) (*PaymentIntent, error)
	RenderIntentQR(ctx context.Context, userID, intentID string) ([]byte, string, error)
	HandleWebhook(ctx context.Context, payload map[string]interface{}) (*WebhookAck, error)

	WalletSummary(ctx context.Context, userID string) (*WalletSummary, error)
	CreateTopup(ctx context.Context, userID string, req *CreateTopupRequest) (*Checkout, error)
	TopupStatus(ctx context.Context, userID, intentID string) (*TopupStatus, error)

	CreateOrder(ctx context.Context, userID string, req *CreateOrderRequest) (*OrderCheckout, error)
	GetOrder(ctx context.Context, userID, orderID string) (*SymbolOrder, error)
	PayOrderWithWallet(ctx context.Context, userID, orderID string) (*OrderSettlement, error)
	PayOrderWithGateway(ctx context.Context, userID, orderID, bankCode string) (*OrderCheckout, error)
	OrderHistory(ctx context.Context, userID string, page, pageSize int) (*OrderPage, error)

	CheckAccess(ctx context.Context, userID string, symbolID int64) (*AccessCheck, error)
	ListLicenses(ctx context.Context, userID string) ([]*SymbolLicense, error)

	Subscribe(ctx context.Context, userID string, req *SubscribeRequest) (*Subscription, error)
	Unsubscribe(ctx context.Context, userID, subscriptionID string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, userID string) ([]*Subscription, error)
}

type AuthTokens struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    int64  `json:"expires_at"`
}

type CreateIntentRequest struct {
	Purpose          IntentPurpose          `json:"purpose"`
	Amount           decimal.Decimal        `json:"amount"`
	Currency         Currency               `json:"currency"`
	ExpiresInMinutes *int                   `json:"expires_in_minutes"`
	BankCode         string                 `json:"bank_code"`
	ReturnURL        string                 `json:"return_url"`
	CancelURL        string                 `json:"cancel_url"`
	Metadata         map[string]interface{} `json:"metadata"`
}

type CreateTopupRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	Currency         Currency        `json:"currency"`
	BankCode         string          `json:"bank_code"`
	ExpiresInMinutes *int            `json:"expires_in_minutes"`
}

type OrderItemRequest struct {
	SymbolID    int64                  `json:"symbol_id"`
	Price       decimal.Decimal        `json:"price"`
	LicenseDays *int                   `json:"license_days"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type CreateOrderRequest struct {
	Items         []OrderItemRequest `json:"items"`
	PaymentMethod PaymentMethod      `json:"payment_method"`
	Currency      Currency           `json:"currency"`
	Description   string             `json:"description"`
	BankCode      string             `json:"bank_code"`
	// PayNow settles a wallet order in the same request.
	PayNow bool `json:"pay_now"`
}

type SubscribeRequest struct {
	SymbolID     int64           `json:"symbol_id"`
	Price        decimal.Decimal `json:"price"`
	Currency     Currency        `json:"currency"`
	PeriodDays   int             `json:"period_days"`
	NextChargeAt *int64          `json:"next_charge_at"`
}
