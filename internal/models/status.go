package models

import "github.com/stockvn/paygate/internal/xerrors"

type Currency string

const (
	CurrencyVND Currency = "VND"
	CurrencyUSD Currency = "USD"
)

func (c Currency) Valid() bool {
	return c == CurrencyVND || c == CurrencyUSD
}

type WalletStatus string

const (
	WalletActive    WalletStatus = "active"
	WalletSuspended WalletStatus = "suspended"
)

type LedgerKind string

const (
	LedgerDeposit     LedgerKind = "deposit"
	LedgerPurchase    LedgerKind = "purchase"
	LedgerRefund      LedgerKind = "refund"
	LedgerWithdrawal  LedgerKind = "withdrawal"
	LedgerTransferIn  LedgerKind = "transfer_in"
	LedgerTransferOut LedgerKind = "transfer_out"
)

func (k LedgerKind) Valid() bool {
	switch k {
	case LedgerDeposit, LedgerPurchase, LedgerRefund, LedgerWithdrawal, LedgerTransferIn, LedgerTransferOut:
		return true
	}
	return false
}

type IntentPurpose string

const (
	PurposeWalletTopup    IntentPurpose = "wallet_topup"
	PurposeOrderPayment   IntentPurpose = "order_payment"
	PurposeSymbolPurchase IntentPurpose = "symbol_purchase"
	PurposeWithdraw       IntentPurpose = "withdraw"
)

func (p IntentPurpose) Valid() bool {
	switch p {
	case PurposeWalletTopup, PurposeOrderPayment, PurposeSymbolPurchase, PurposeWithdraw:
		return true
	}
	return false
}

// SettlesOrder reports whether a succeeded intent of this purpose pays an order.
func (p IntentPurpose) SettlesOrder() bool {
	return p == PurposeOrderPayment || p == PurposeSymbolPurchase
}

type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentFailed                IntentStatus = "failed"
	IntentExpired               IntentStatus = "expired"
)

var intentTransitions = map[IntentStatus][]IntentStatus{
	IntentRequiresPaymentMethod: {IntentProcessing, IntentFailed, IntentExpired},
	IntentProcessing:            {IntentSucceeded, IntentFailed, IntentExpired},
}

// Terminal reports whether no further transition is possible.
func (s IntentStatus) Terminal() bool {
	_, ok := intentTransitions[s]
	return !ok
}

// Open reports whether the intent can still be matched against an incoming transfer.
func (s IntentStatus) Open() bool {
	return s == IntentRequiresPaymentMethod || s == IntentProcessing
}

// TransitionIntent validates the move from -> to and returns the new status.
func TransitionIntent(from, to IntentStatus) (IntentStatus, error) {
	for _, next := range intentTransitions[from] {
		if next == to {
			return to, nil
		}
	}
	return from, &xerrors.InvalidTransitionError{Entity: "intent", From: string(from), To: string(to)}
}

type AttemptStatus string

const (
	AttemptActive     AttemptStatus = "active"
	AttemptSucceeded  AttemptStatus = "succeeded"
	AttemptFailed     AttemptStatus = "failed"
	AttemptExpired    AttemptStatus = "expired"
	AttemptSuperseded AttemptStatus = "superseded"
)

// AttemptStatusFor maps a terminal intent status onto its active attempt.
func AttemptStatusFor(s IntentStatus) AttemptStatus {
	switch s {
	case IntentSucceeded:
		return AttemptSucceeded
	case IntentExpired:
		return AttemptExpired
	case IntentFailed:
		return AttemptFailed
	}
	return AttemptActive
}

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodWallet          PaymentMethod = "wallet"
	MethodGatewayTransfer PaymentMethod = "gateway_transfer"
)

func (m PaymentMethod) Valid() bool {
	return m == MethodWallet || m == MethodGatewayTransfer
}

type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderPaid           OrderStatus = "paid"
	OrderFailed         OrderStatus = "failed"
	OrderCancelled      OrderStatus = "cancelled"
	OrderRefunded       OrderStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPendingPayment: {OrderPaid, OrderFailed, OrderCancelled},
	OrderPaid:           {OrderRefunded},
}

// TransitionOrder validates the move from -> to and returns the new status.
func TransitionOrder(from, to OrderStatus) (OrderStatus, error) {
	for _, next := range orderTransitions[from] {
		if next == to {
			return to, nil
		}
	}
	return from, &xerrors.InvalidTransitionError{Entity: "order", From: string(from), To: string(to)}
}

type LicenseStatus string

const (
	LicenseActive    LicenseStatus = "active"
	LicenseExpired   LicenseStatus = "expired"
	LicenseSuspended LicenseStatus = "suspended"
	LicenseRevoked   LicenseStatus = "revoked"
)

var licenseTransitions = map[LicenseStatus][]LicenseStatus{
	LicenseActive:    {LicenseExpired, LicenseSuspended, LicenseRevoked},
	LicenseSuspended: {LicenseActive, LicenseRevoked},
}

func TransitionLicense(from, to LicenseStatus) (LicenseStatus, error) {
	for _, next := range licenseTransitions[from] {
		if next == to {
			return to, nil
		}
	}
	return from, &xerrors.InvalidTransitionError{Entity: "license", From: string(from), To: string(to)}
}

// RunStatus is the outcome of the last auto-renew attempt for a subscription.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunSkipped RunStatus = "skipped"
	RunFailed  RunStatus = "failed"
)
