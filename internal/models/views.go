package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Checkout is an intent together with the attempt that carries its transfer instructions.
type Checkout struct {
	Intent  *PaymentIntent  `json:"intent"`
	Attempt *PaymentAttempt `json:"attempt,omitempty"`
}

type ReconcileOutcome string

const (
	OutcomeMatched          ReconcileOutcome = "matched"
	OutcomePartial          ReconcileOutcome = "partial"
	OutcomeNoMatch          ReconcileOutcome = "no_match"
	OutcomeAmountMismatch   ReconcileOutcome = "amount_mismatch"
	OutcomeExpired          ReconcileOutcome = "expired"
	OutcomeIgnored          ReconcileOutcome = "ignored"
	OutcomeAlreadySucceeded ReconcileOutcome = "already_succeeded"
)

// ReconcileResult describes what a gateway transfer did.
type ReconcileResult struct {
	Outcome        ReconcileOutcome `json:"outcome"`
	GatewayTxID    int64            `json:"gateway_tx_id"`
	IntentID       string           `json:"intent_id,omitempty"`
	OrderCode      string           `json:"order_code,omitempty"`
	IntentStatus   IntentStatus     `json:"status,omitempty"`
	Purpose        IntentPurpose    `json:"purpose,omitempty"`
	UserID         string           `json:"-"`
	PaymentID      string           `json:"payment_id,omitempty"`
	OrderID        string           `json:"order_id,omitempty"`
	Received       decimal.Decimal  `json:"received"`
	Expected       decimal.Decimal  `json:"expected"`
	Remaining      *decimal.Decimal `json:"remaining,omitempty"`
	WalletBalance  *decimal.Decimal `json:"wallet_balance,omitempty"`
	LicensesIssued int              `json:"licenses_issued,omitempty"`
}

type WebhookAckStatus string

const (
	AckProcessed        WebhookAckStatus = "processed"
	AckAlreadyProcessed WebhookAckStatus = "already_processed"
	AckFailed           WebhookAckStatus = "failed"
)

// WebhookAck is returned to the gateway for every delivery that was durably recorded.
type WebhookAck struct {
	Status      WebhookAckStatus `json:"status"`
	EventID     string           `json:"event_id"`
	GatewayTxID int64            `json:"gateway_tx_id"`
	Result      *ReconcileResult `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type WalletSummary struct {
	Wallet        *Wallet        `json:"wallet"`
	RecentEntries []*LedgerEntry `json:"recent_entries"`
	PendingTopups int64          `json:"pending_topups"`
}

type TopupStatus struct {
	IntentID      string          `json:"intent_id"`
	OrderCode     string          `json:"order_code"`
	Status        IntentStatus    `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	ExpiresAt     time.Time       `json:"expires_at"`
	SucceededAt   *time.Time      `json:"succeeded_at,omitempty"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
}

// OrderCheckout is a created order. Checkout is set for gateway-funded orders and
// Settlement for wallet orders paid in the same request.
type OrderCheckout struct {
	Order      *SymbolOrder     `json:"order"`
	Checkout   *Checkout        `json:"checkout,omitempty"`
	Settlement *OrderSettlement `json:"settlement,omitempty"`
}

// OrderSettlement is the outcome of paying an order.
type OrderSettlement struct {
	Order         *SymbolOrder     `json:"order"`
	Payment       *Payment         `json:"payment,omitempty"`
	Licenses      []*SymbolLicense `json:"licenses"`
	WalletBalance *decimal.Decimal `json:"wallet_balance,omitempty"`
}

type AccessCheck struct {
	SymbolID  int64          `json:"symbol_id"`
	HasAccess bool           `json:"has_access"`
	License   *SymbolLicense `json:"license,omitempty"`
}

type OrderPage struct {
	Items    []*SymbolOrder `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type AutoRenewReport struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	// ExpiredIntents counts overdue intents expired by the sweep of the same run.
	ExpiredIntents int `json:"expired_intents"`
}
