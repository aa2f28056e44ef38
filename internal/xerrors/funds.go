package xerrors

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TopupEndpoint is the route clients are pointed at when a wallet cannot cover a purchase.
const TopupEndpoint = "/sepay/wallet/topup/create"

// InsufficientFundsError is returned when a debit would take a wallet below zero.
// OrderID is set when the debit was on behalf of an order.
type InsufficientFundsError struct {
	Required       decimal.Decimal
	CurrentBalance decimal.Decimal
	OrderID        string
	TopupEndpoint  string
}

func NewInsufficientFunds(required, current decimal.Decimal) *InsufficientFundsError {
	return &InsufficientFundsError{Required: required, CurrentBalance: current, TopupEndpoint: TopupEndpoint}
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, balance %s", e.Required.StringFixed(2), e.CurrentBalance.StringFixed(2))
}

// Shortfall is the amount missing to cover Required.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	d := e.Required.Sub(e.CurrentBalance)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ForOrder returns a copy bound to orderID.
func (e *InsufficientFundsError) ForOrder(orderID string) *InsufficientFundsError {
	c := *e
	c.OrderID = orderID
	if c.TopupEndpoint == "" {
		c.TopupEndpoint = TopupEndpoint
	}
	return &c
}

// Body is the structured payload returned to clients.
func (e *InsufficientFundsError) Body() map[string]interface{} {
	body := map[string]interface{}{
		"required_amount":     e.Required.StringFixed(2),
		"current_balance":     e.CurrentBalance.StringFixed(2),
		"insufficient_amount": e.Shortfall().StringFixed(2),
		"topup_endpoint":      e.TopupEndpoint,
	}
	if e.OrderID != "" {
		body["order_id"] = e.OrderID
	}
	return body
}

// InvalidTransitionError is returned by the status transition functions.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition from %s to %s", e.Entity, e.From, e.To)
}
