package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository is the storage handle every service operates on. A handle obtained
// inside Transaction is bound to that transaction; calling Transaction on it runs
// fn in the same transaction.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	UserRepository
	WalletRepository
	LedgerRepository
	IntentRepository
	BankTransactionRepository
	WebhookRepository
	PaymentRepository
	OrderRepository
	LicenseRepository
	SubscriptionRepository
	LockRepository
	RequestLogRepository
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	SetTelegramChatID(ctx context.Context, username, chatID string) (int64, error)
}

type WalletRepository interface {
	// EnsureWallet inserts w unless a wallet for (user, currency) exists.
	EnsureWallet(ctx context.Context, w *Wallet) error
	GetWallet(ctx context.Context, userID string, currency Currency) (*Wallet, error)
	GetWalletByID(ctx context.Context, id string) (*Wallet, error)
	// GetWalletForUpdate loads the wallet and locks its row until the transaction ends.
	GetWalletForUpdate(ctx context.Context, id string) (*Wallet, error)
	UpdateWalletBalance(ctx context.Context, id string, balance decimal.Decimal, lastSeq int64) error
	ListWalletIDs(ctx context.Context) ([]string, error)
}

type LedgerFilter struct {
	Limit  int
	Offset int
	// Newest orders by descending sequence.
	Newest bool
}

type LedgerRepository interface {
	InsertLedgerEntry(ctx context.Context, entry *LedgerEntry) error
	ListLedgerEntries(ctx context.Context, walletID string, filter LedgerFilter) ([]*LedgerEntry, error)
	FindLedgerEntryByPayment(ctx context.Context, paymentID string, kind LedgerKind) (*LedgerEntry, error)
	FindLedgerEntryByOrder(ctx context.Context, orderID string, kind LedgerKind) (*LedgerEntry, error)
}

type IntentRepository interface {
	CreateIntent(ctx context.Context, intent *PaymentIntent) error
	GetIntent(ctx context.Context, id string) (*PaymentIntent, error)
	GetIntentForUpdate(ctx context.Context, id string) (*PaymentIntent, error)
	// GetIntentByOrderCodeForUpdate looks the memo up regardless of status and locks the row.
	GetIntentByOrderCodeForUpdate(ctx context.Context, orderCode string) (*PaymentIntent, error)
	OrderCodeExists(ctx context.Context, orderCode string) (bool, error)
	UpdateIntent(ctx context.Context, intent *PaymentIntent) error
	ListOverdueIntents(ctx context.Context, now time.Time, limit int) ([]*PaymentIntent, error)
	CountOpenIntents(ctx context.Context, userID string, purpose IntentPurpose) (int64, error)

	CreateAttempt(ctx context.Context, attempt *PaymentAttempt) error
	GetActiveAttempt(ctx context.Context, intentID string) (*PaymentAttempt, error)
	UpdateAttempt(ctx context.Context, attempt *PaymentAttempt) error
}

type BankTransactionRepository interface {
	// UpsertBankTransaction stores the gateway fields of tx, keeping existing links.
	UpsertBankTransaction(ctx context.Context, tx *BankTransaction) error
	LinkBankTransaction(ctx context.Context, id int64, intentID, attemptID, paymentID *string) error
	GetBankTransaction(ctx context.Context, id int64) (*BankTransaction, error)
}

type WebhookRepository interface {
	// InsertWebhookEventIfAbsent reports whether a new row was written.
	InsertWebhookEventIfAbsent(ctx context.Context, event *WebhookEvent) (bool, error)
	GetWebhookEvent(ctx context.Context, gatewayTxID int64) (*WebhookEvent, error)
	GetWebhookEventForUpdate(ctx context.Context, gatewayTxID int64) (*WebhookEvent, error)
	UpdateWebhookEvent(ctx context.Context, event *WebhookEvent) error
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *Payment) error
	GetPaymentByProviderID(ctx context.Context, providerPaymentID int64) (*Payment, error)
	GetSucceededPaymentForOrder(ctx context.Context, orderID string) (*Payment, error)
}

type OrderRepository interface {
	// CreateOrder inserts the order together with its items.
	CreateOrder(ctx context.Context, order *SymbolOrder) error
	GetOrder(ctx context.Context, id string) (*SymbolOrder, error)
	GetOrderForUpdate(ctx context.Context, id string) (*SymbolOrder, error)
	GetOrderByIntent(ctx context.Context, intentID string) (*SymbolOrder, error)
	UpdateOrder(ctx context.Context, order *SymbolOrder) error
	UpdateOrderItem(ctx context.Context, item *SymbolOrderItem) error
	ListOrders(ctx context.Context, userID string, offset, limit int) ([]*SymbolOrder, int64, error)
}

type LicenseRepository interface {
	CreateLicense(ctx context.Context, license *SymbolLicense) error
	GetActiveLicenseForUpdate(ctx context.Context, userID string, symbolID int64) (*SymbolLicense, error)
	GetLicense(ctx context.Context, id string) (*SymbolLicense, error)
	UpdateLicense(ctx context.Context, license *SymbolLicense) error
	ListLicenses(ctx context.Context, userID string) ([]*SymbolLicense, error)
}

type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	GetSubscriptionForUpdate(ctx context.Context, id string) (*Subscription, error)
	FindEnabledSubscription(ctx context.Context, userID string, symbolID int64) (*Subscription, error)
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	// RecordSubscriptionRun writes only the run outcome columns and next_charge_at.
	RecordSubscriptionRun(ctx context.Context, sub *Subscription) error
	ListSubscriptions(ctx context.Context, userID string) ([]*Subscription, error)
	// ListDueSubscriptions returns enabled subscriptions with next_charge_at <= now, oldest first.
	ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}

type LockRepository interface {
	// AcquireLock takes name for instanceID unless another instance holds an unexpired lease.
	AcquireLock(ctx context.Context, name, instanceID string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, instanceID string) error
}

type RequestLogRepository interface {
	InsertRequestLogs(ctx context.Context, logs []*RequestLog) error
}
