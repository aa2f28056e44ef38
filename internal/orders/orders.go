// Package orders creates symbol orders and pays them from the wallet or through the gateway.
package orders

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/stockvn/paygate/internal/finalizer"
	"github.com/stockvn/paygate/internal/intent"
	"github.com/stockvn/paygate/internal/ledger"
	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxItems        = 50
)

// FundsPolicy decides what CreateOrder does when a wallet order exceeds the balance.
type FundsPolicy int

const (
	// RejectInsufficient keeps the order pending and returns InsufficientFundsError.
	RejectInsufficient FundsPolicy = iota
	// AllowPending keeps the order pending and returns it without an error.
	AllowPending
)

type Manager struct {
	logger    *logger.Logger
	repo      models.Repository
	ledger    *ledger.Ledger
	intents   *intent.Service
	finalizer *finalizer.Finalizer
}

func NewManager(repo models.Repository, ledger *ledger.Ledger, intents *intent.Service, finalizer *finalizer.Finalizer, logger *logger.Logger) *Manager {
	return &Manager{repo: repo, ledger: ledger, intents: intents, finalizer: finalizer, logger: logger}
}

func (m *Manager) buildOrder(userID string, req *models.CreateOrderRequest) (*models.SymbolOrder, error) {
	if userID == "" {
		return nil, xerrors.Unauthorized("user is required")
	}
	if len(req.Items) == 0 {
		return nil, xerrors.InvalidInput("order must contain at least one item")
	}
	if len(req.Items) > maxItems {
		return nil, xerrors.InvalidInput("order must contain at most %d items", maxItems)
	}
	method := req.PaymentMethod
	if method == "" {
		method = models.MethodWallet
	}
	if !method.Valid() {
		return nil, xerrors.InvalidInput("unknown payment method %q", method)
	}
	currency := req.Currency
	if currency == "" {
		currency = models.CurrencyVND
	}
	if !currency.Valid() {
		return nil, xerrors.InvalidInput("unsupported currency %q", currency)
	}

	order := &models.SymbolOrder{
		UserID:        userID,
		Currency:      currency,
		Status:        models.OrderPendingPayment,
		PaymentMethod: method,
		Description:   req.Description,
		TotalAmount:   decimal.Zero,
	}
	for idx, item := range req.Items {
		if item.SymbolID <= 0 {
			return nil, xerrors.InvalidInput("items[%d]: symbol_id must be positive", idx)
		}
		if !item.Price.IsPositive() {
			return nil, xerrors.InvalidInput("items[%d]: price must be positive", idx)
		}
		if !item.Price.Equal(item.Price.Round(2)) {
			return nil, xerrors.InvalidInput("items[%d]: price has more than two decimal places", idx)
		}
		if item.LicenseDays != nil && *item.LicenseDays <= 0 {
			return nil, xerrors.InvalidInput("items[%d]: license_days must be positive", idx)
		}
		order.Items = append(order.Items, models.SymbolOrderItem{
			SymbolID:    item.SymbolID,
			Price:       item.Price,
			LicenseDays: item.LicenseDays,
			Metadata:    item.Metadata,
		})
		order.TotalAmount = order.TotalAmount.Add(item.Price)
	}
	return order, nil
}

// CreateOrder stores a pending order. Gateway orders get an intent and transfer
// instructions; wallet orders are checked against the balance and, with PayNow, paid at once.
func (m *Manager) CreateOrder(ctx context.Context, userID string, req *models.CreateOrderRequest, policy FundsPolicy) (*models.OrderCheckout, error) {
	order, err := m.buildOrder(userID, req)
	if err != nil {
		return nil, err
	}

	if order.PaymentMethod == models.MethodGatewayTransfer {
		out := &models.OrderCheckout{Order: order}
		err := m.repo.Transaction(ctx, func(tx models.Repository) error {
			if err := tx.CreateOrder(ctx, order); err != nil {
				return err
			}
			checkout, err := m.checkout(ctx, tx, order, req.BankCode)
			out.Checkout = checkout
			return err
		})
		if err != nil {
			return nil, err
		}
		m.logger.Info("Symbol order created", "order_id", order.ID, "user_id", userID, "method", order.PaymentMethod,
			"total", order.TotalAmount.String(), "intent_id", *order.IntentID)
		return out, nil
	}

	wallet, err := m.ledger.GetOrCreateWallet(ctx, m.repo, userID, order.Currency)
	if err != nil {
		return nil, err
	}
	if err := m.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	m.logger.Info("Symbol order created", "order_id", order.ID, "user_id", userID, "method", order.PaymentMethod,
		"total", order.TotalAmount.String())

	if wallet.Balance.LessThan(order.TotalAmount) {
		if policy == AllowPending {
			return &models.OrderCheckout{Order: order}, nil
		}
		return nil, xerrors.NewInsufficientFunds(order.TotalAmount, wallet.Balance).ForOrder(order.ID)
	}
	if !req.PayNow {
		return &models.OrderCheckout{Order: order}, nil
	}
	settlement, err := m.PayWithWallet(ctx, userID, order.ID)
	if err != nil {
		return nil, err
	}
	return &models.OrderCheckout{Order: settlement.Order, Settlement: settlement}, nil
}

// checkout opens an order_payment intent for order and binds it to the order.
func (m *Manager) checkout(ctx context.Context, tx models.Repository, order *models.SymbolOrder, bankCode string) (*models.Checkout, error) {
	checkout, err := m.intents.Checkout(ctx, tx, intent.CreateParams{
		UserID:   order.UserID,
		Purpose:  models.PurposeOrderPayment,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Metadata: map[string]interface{}{"order_id": order.ID},
	}, bankCode)
	if err != nil {
		return nil, err
	}
	order.IntentID = &checkout.Intent.ID
	order.PaymentMethod = models.MethodGatewayTransfer
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	return checkout, nil
}

func (m *Manager) lockOwned(ctx context.Context, tx models.Repository, userID, orderID string) (*models.SymbolOrder, error) {
	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if errors.Is(err, xerrors.ErrNotFound) || (err == nil && order.UserID != userID) {
		return nil, xerrors.NotFound("symbol order")
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// PayWithWallet debits the order total, records a wallet payment and settles the order.
func (m *Manager) PayWithWallet(ctx context.Context, userID, orderID string) (*models.OrderSettlement, error) {
	var out *models.OrderSettlement
	err := m.repo.Transaction(ctx, func(tx models.Repository) error {
		order, err := m.lockOwned(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPendingPayment {
			return xerrors.Newf(xerrors.KindInvalidState, "order is %s", order.Status).WithDetail("order_id", order.ID)
		}
		if order.PaymentMethod != models.MethodWallet {
			return xerrors.InvalidInput("order is paid by %s", order.PaymentMethod)
		}

		wallet, err := m.ledger.GetOrCreateWallet(ctx, tx, userID, order.Currency)
		if err != nil {
			return err
		}
		entry, err := m.ledger.Append(ctx, tx, wallet.ID, models.LedgerPurchase, order.TotalAmount, false, ledger.Refs{
			OrderID: &order.ID,
			Note:    "symbol order",
		})
		if err != nil {
			var insufficient *xerrors.InsufficientFundsError
			if errors.As(err, &insufficient) {
				return insufficient.ForOrder(order.ID)
			}
			return err
		}

		payment := &models.Payment{
			UserID:   userID,
			OrderID:  &order.ID,
			Purpose:  models.PurposeSymbolPurchase,
			Method:   models.MethodWallet,
			Amount:   order.TotalAmount,
			Currency: order.Currency,
			Status:   models.PaymentSucceeded,
			Message:  "wallet payment",
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		settlement, err := m.finalizer.SettleOrder(ctx, tx, order.ID, payment)
		if err != nil {
			return err
		}
		balance := entry.BalanceAfter
		settlement.WalletBalance = &balance
		out = settlement
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("Symbol order paid from wallet", "order_id", orderID, "user_id", userID,
		"licenses", len(out.Licenses), "wallet_balance", out.WalletBalance.String())
	return out, nil
}

// PayWithGateway returns transfer instructions for a pending order, reusing its open intent.
func (m *Manager) PayWithGateway(ctx context.Context, userID, orderID, bankCode string) (*models.OrderCheckout, error) {
	var out *models.OrderCheckout
	err := m.repo.Transaction(ctx, func(tx models.Repository) error {
		order, err := m.lockOwned(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPendingPayment {
			return xerrors.Newf(xerrors.KindInvalidState, "order is %s", order.Status).WithDetail("order_id", order.ID)
		}

		if order.IntentID != nil {
			in, err := tx.GetIntentForUpdate(ctx, *order.IntentID)
			if err != nil {
				return err
			}
			if _, err := m.intents.ExpireIfOverdue(ctx, tx, in); err != nil {
				return err
			}
			if in.Status.Open() {
				attempt, err := m.intents.MakeAttempt(ctx, tx, in.ID, bankCode)
				if err != nil {
					return err
				}
				if in, err = tx.GetIntent(ctx, in.ID); err != nil {
					return err
				}
				out = &models.OrderCheckout{Order: order, Checkout: &models.Checkout{Intent: in, Attempt: attempt}}
				return nil
			}
		}

		checkout, err := m.checkout(ctx, tx, order, bankCode)
		if err != nil {
			return err
		}
		out = &models.OrderCheckout{Order: order, Checkout: checkout}
		return nil
	})
	return out, err
}

// Cancel moves a pending order to cancelled.
func (m *Manager) Cancel(ctx context.Context, repo models.Repository, orderID, reason string) error {
	return repo.Transaction(ctx, func(tx models.Repository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status, err = models.TransitionOrder(order.Status, models.OrderCancelled); err != nil {
			return err
		}
		order.Note = reason
		return tx.UpdateOrder(ctx, order)
	})
}

func (m *Manager) GetOrder(ctx context.Context, userID, orderID string) (*models.SymbolOrder, error) {
	order, err := m.repo.GetOrder(ctx, orderID)
	if errors.Is(err, xerrors.ErrNotFound) || (err == nil && order.UserID != userID) {
		return nil, xerrors.NotFound("symbol order")
	}
	return order, err
}

// History pages through the orders of userID, newest first. page starts at 1.
func (m *Manager) History(ctx context.Context, userID string, page, pageSize int) (*models.OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	items, total, err := m.repo.ListOrders(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.SymbolOrder{}
	}
	return &models.OrderPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}
