package paygate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockvn/paygate/internal/auth"
	"github.com/stockvn/paygate/internal/autorenew"
	"github.com/stockvn/paygate/internal/config"
	"github.com/stockvn/paygate/internal/finalizer"
	"github.com/stockvn/paygate/internal/gateway"
	"github.com/stockvn/paygate/internal/intent"
	"github.com/stockvn/paygate/internal/ledger"
	"github.com/stockvn/paygate/internal/license"
	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/orders"
	"github.com/stockvn/paygate/internal/reconciler"
	"github.com/stockvn/paygate/internal/webhook"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/jwt"
	"github.com/stockvn/paygate/pkg/logger"
)

const (
	// sweepInterval is how often overdue intents are expired in the background.
	sweepInterval = 5 * time.Minute
	sweepLimit    = 500
	recentEntries = 20
)

// Paygate is the main struct of the application.
// It wires every payment component together and serves all business logic.
type Paygate struct {
	logger *logger.Logger
	config *config.Config

	repo        models.Repository
	gateway     *gateway.Client
	banks       *gateway.BankCatalog
	notificator models.NotificationService

	auth      *auth.Service
	ledger    *ledger.Ledger
	intents   *intent.Service
	licenses  *license.Issuer
	finalizer *finalizer.Finalizer
	inbox     *webhook.Inbox
	orders    *orders.Manager
	scheduler *autorenew.Scheduler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPaygate builds every component over repo. notificator may be nil.
func NewPaygate(
	repo models.Repository,
	client *gateway.Client,
	notificator models.NotificationService,
	logger *logger.Logger,
	config *config.Config,
) *Paygate {
	p := &Paygate{
		logger:      logger,
		config:      config,
		repo:        repo,
		gateway:     client,
		notificator: notificator,
	}
	p.banks = gateway.NewBankCatalog(client, logger.With("component", "banks"))

	p.auth = auth.NewService(repo, jwt.NewService(config.JWTSecret, config.JWTAccessTTL, config.JWTRefreshTTL), logger)
	p.ledger = ledger.NewLedger(repo, logger)
	p.intents = intent.NewService(repo, intent.Settings{
		AccountNumber: config.AccountNumber,
		AccountName:   config.AccountName,
		BankCode:      config.BankCode,
		QRBaseURL:     config.QRBaseURL,
		DefaultExpiry: config.IntentDefaultExpiry,
		MaxExpiry:     config.IntentMaxExpiry,
	}, p.banks, logger)
	p.licenses = license.NewIssuer(repo, logger)
	p.finalizer = finalizer.New(p.ledger, p.intents, p.licenses, logger)
	p.inbox = webhook.NewInbox(repo, reconciler.New(p.intents, p.finalizer, logger), logger.With("component", "webhook"))
	p.orders = orders.NewManager(repo, p.ledger, p.intents, p.finalizer, logger)
	p.scheduler = autorenew.NewScheduler(repo, p.orders, p.intents, notificator, instanceID(),
		config.AutoRenewConcurrency, logger.With("component", "autorenew"))
	return p
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "paygate"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// SetClock replaces the time source of every time-dependent component. Used by tests.
func (p *Paygate) SetClock(now func() time.Time) {
	p.intents.SetClock(now)
	p.licenses.SetClock(now)
	p.scheduler.SetClock(now)
}

func (p *Paygate) Ledger() *ledger.Ledger          { return p.ledger }
func (p *Paygate) Auth() *auth.Service             { return p.auth }
func (p *Paygate) Inbox() *webhook.Inbox           { return p.inbox }
func (p *Paygate) Scheduler() *autorenew.Scheduler { return p.scheduler }
func (p *Paygate) Banks() *gateway.BankCatalog     { return p.banks }
func (p *Paygate) Intents() *intent.Service        { return p.intents }
func (p *Paygate) Orders() *orders.Manager         { return p.orders }

// Start starts the background jobs: the bank catalog refresh, the intent expiry
// sweep and, when an interval is configured, the auto-renew scheduler.
func (p *Paygate) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.banks.Start()

	p.every(ctx, sweepInterval, func() {
		n, err := p.intents.SweepExpired(ctx, sweepLimit)
		if err != nil {
			p.logger.Error("Failed to sweep expired intents", "error", err)
			return
		}
		if n > 0 {
			p.logger.Info("Expired overdue intents", "count", n)
		}
	})

	if p.config.AutoRenewInterval > 0 {
		p.every(ctx, p.config.AutoRenewInterval, func() {
			if _, err := p.scheduler.Run(ctx, p.config.AutoRenewLimit); err != nil && ctx.Err() == nil {
				p.logger.Error("Auto-renew run failed", "error", err)
			}
		})
	}
}

func (p *Paygate) every(ctx context.Context, interval time.Duration, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// Stop stops the background jobs and waits for in-flight notifications.
func (p *Paygate) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.banks.Stop()
	p.wg.Wait()
}

func (p *Paygate) notify(n *models.Notification) {
	if p.notificator == nil || n == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.notificator.SendNotification(n)
	}()
}

func (p *Paygate) Login(ctx context.Context, email, password string) (*models.AuthTokens, error) {
	return p.auth.Login(ctx, email, password)
}

func (p *Paygate) Refresh(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	return p.auth.Refresh(ctx, refreshToken)
}

func (p *Paygate) Authenticate(token string) (string, error) {
	return p.auth.Authenticate(token)
}

func (p *Paygate) currency(c models.Currency) models.Currency {
	if c != "" {
		return c
	}
	if p.config.DefaultCurrency != "" {
		return models.Currency(p.config.DefaultCurrency)
	}
	return models.CurrencyVND
}

// CreateIntent opens a top-up intent with transfer instructions. Order payments
// are opened through CreateOrder so that the order owns its intent.
func (p *Paygate) CreateIntent(ctx context.Context, userID string, req *models.CreateIntentRequest) (*models.Checkout, error) {
	if req.Purpose.SettlesOrder() {
		return nil, xerrors.InvalidInput("purpose %s is created through a symbol order", req.Purpose)
	}
	return p.intents.Checkout(ctx, p.repo, intent.CreateParams{
		UserID:           userID,
		Purpose:          req.Purpose,
		Amount:           req.Amount,
		Currency:         p.currency(req.Currency),
		ExpiresInMinutes: req.ExpiresInMinutes,
		ReturnURL:        req.ReturnURL,
		CancelURL:        req.CancelURL,
		Metadata:         req.Metadata,
	}, req.BankCode)
}

func (p *Paygate) GetIntent(ctx context.Context, userID, intentID string) (*models.PaymentIntent, error) {
	return p.intents.Get(ctx, userID, intentID)
}

// RenderIntentQR fetches the QR image of the intent's current transfer instructions.
func (p *Paygate) RenderIntentQR(ctx context.Context, userID, intentID string) ([]byte, string, error) {
	in, err := p.intents.Get(ctx, userID, intentID)
	if err != nil {
		return nil, "", err
	}
	if !in.Status.Open() {
		return nil, "", xerrors.Newf(xerrors.KindInvalidState, "intent is %s", in.Status).WithDetail("status", in.Status)
	}
	url := in.QRCodeURL
	if attempt, err := p.intents.ActiveAttempt(ctx, in.ID); err == nil && attempt.QRImageURL != "" {
		url = attempt.QRImageURL
	}
	return p.gateway.RenderQR(ctx, url)
}

// HandleWebhook records and reconciles one gateway delivery, then notifies the payer.
func (p *Paygate) HandleWebhook(ctx context.Context, payload map[string]interface{}) (*models.WebhookAck, error) {
	ack, err := p.inbox.Ingest(ctx, payload)
	if err != nil {
		return nil, err
	}
	if ack.Status == models.AckProcessed && ack.Result != nil {
		p.notify(resultNotification(ack.Result))
	}
	return ack, nil
}

func resultNotification(r *models.ReconcileResult) *models.Notification {
	if r.UserID == "" {
		return nil
	}
	switch {
	case r.Outcome == models.OutcomeMatched && r.Purpose == models.PurposeWalletTopup:
		msg := fmt.Sprintf("Received %s for %s.", r.Received.String(), r.OrderCode)
		if r.WalletBalance != nil {
			msg += fmt.Sprintf(" Wallet balance: %s.", r.WalletBalance.String())
		}
		return &models.Notification{UserID: r.UserID, Kind: models.NotifyTopupSucceeded, Subject: "Top-up received", Message: msg}
	case r.Outcome == models.OutcomePartial:
		msg := fmt.Sprintf("Received %s of %s for %s.", r.Received.String(), r.Expected.String(), r.OrderCode)
		if r.Remaining != nil {
			msg += fmt.Sprintf(" Remaining: %s.", r.Remaining.String())
		}
		return &models.Notification{UserID: r.UserID, Kind: models.NotifyTopupPartial, Subject: "Partial top-up received", Message: msg}
	case r.Outcome == models.OutcomeMatched && r.Purpose.SettlesOrder():
		return &models.Notification{
			UserID:  r.UserID,
			Kind:    models.NotifyOrderPaid,
			Subject: "Order paid",
			Message: fmt.Sprintf("Order %s is paid. %d license(s) issued.", r.OrderID, r.LicensesIssued),
		}
	}
	return nil
}

func (p *Paygate) WalletSummary(ctx context.Context, userID string) (*models.WalletSummary, error) {
	wallet, err := p.ledger.GetOrCreateWallet(ctx, p.repo, userID, p.currency(""))
	if err != nil {
		return nil, err
	}
	entries, err := p.ledger.Entries(ctx, wallet.ID, recentEntries, 0)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	pending, err := p.repo.CountOpenIntents(ctx, userID, models.PurposeWalletTopup)
	if err != nil {
		return nil, err
	}
	return &models.WalletSummary{Wallet: wallet, RecentEntries: entries, PendingTopups: pending}, nil
}

func (p *Paygate) CreateTopup(ctx context.Context, userID string, req *models.CreateTopupRequest) (*models.Checkout, error) {
	return p.intents.Checkout(ctx, p.repo, intent.CreateParams{
		UserID:           userID,
		Purpose:          models.PurposeWalletTopup,
		Amount:           req.Amount,
		Currency:         p.currency(req.Currency),
		ExpiresInMinutes: req.ExpiresInMinutes,
	}, req.BankCode)
}

func (p *Paygate) TopupStatus(ctx context.Context, userID, intentID string) (*models.TopupStatus, error) {
	in, err := p.intents.Get(ctx, userID, intentID)
	if err != nil {
		return nil, err
	}
	if in.Purpose != models.PurposeWalletTopup {
		return nil, xerrors.NotFound("top-up")
	}
	status := &models.TopupStatus{
		IntentID:    in.ID,
		OrderCode:   in.OrderCode,
		Status:      in.Status,
		Amount:      in.Amount,
		ExpiresAt:   in.ExpiresAt,
		SucceededAt: in.SucceededAt,
	}
	wallet, err := p.repo.GetWallet(ctx, userID, in.Currency)
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		status.WalletBalance = wallet.Balance
	}
	return status, nil
}

// CreateOrder stores a symbol order. Wallet orders the balance cannot cover are rejected
// with the order id so the client can top up and pay the same order.
func (p *Paygate) CreateOrder(ctx context.Context, userID string, req *models.CreateOrderRequest) (*models.OrderCheckout, error) {
	if req.Currency == "" {
		req.Currency = p.currency("")
	}
	out, err := p.orders.CreateOrder(ctx, userID, req, orders.RejectInsufficient)
	if err != nil {
		return nil, err
	}
	if out.Settlement != nil {
		p.notify(orderPaid(out.Settlement))
	}
	return out, nil
}

func orderPaid(s *models.OrderSettlement) *models.Notification {
	return &models.Notification{
		UserID:  s.Order.UserID,
		Kind:    models.NotifyOrderPaid,
		Subject: "Order paid",
		Message: fmt.Sprintf("Order %s is paid. %d license(s) issued.", s.Order.ID, len(s.Licenses)),
	}
}

func (p *Paygate) GetOrder(ctx context.Context, userID, orderID string) (*models.SymbolOrder, error) {
	return p.orders.GetOrder(ctx, userID, orderID)
}

func (p *Paygate) PayOrderWithWallet(ctx context.Context, userID, orderID string) (*models.OrderSettlement, error) {
	settlement, err := p.orders.PayWithWallet(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	p.notify(orderPaid(settlement))
	return settlement, nil
}

func (p *Paygate) PayOrderWithGateway(ctx context.Context, userID, orderID, bankCode string) (*models.OrderCheckout, error) {
	return p.orders.PayWithGateway(ctx, userID, orderID, bankCode)
}

func (p *Paygate) OrderHistory(ctx context.Context, userID string, page, pageSize int) (*models.OrderPage, error) {
	return p.orders.History(ctx, userID, page, pageSize)
}

func (p *Paygate) CheckAccess(ctx context.Context, userID string, symbolID int64) (*models.AccessCheck, error) {
	return p.licenses.Check(ctx, userID, symbolID)
}

func (p *Paygate) ListLicenses(ctx context.Context, userID string) ([]*models.SymbolLicense, error) {
	licenses, err := p.licenses.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if licenses == nil {
		licenses = []*models.SymbolLicense{}
	}
	return licenses, nil
}

func (p *Paygate) Subscribe(ctx context.Context, userID string, req *models.SubscribeRequest) (*models.Subscription, error) {
	if req.Currency == "" {
		req.Currency = p.currency("")
	}
	return p.scheduler.Subscribe(ctx, userID, req)
}

func (p *Paygate) Unsubscribe(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error) {
	return p.scheduler.Unsubscribe(ctx, userID, subscriptionID)
}

func (p *Paygate) ListSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	return p.scheduler.Subscriptions(ctx, userID)
}

// RunAutoRenew runs one scheduler batch.
func (p *Paygate) RunAutoRenew(ctx context.Context, limit int) (*models.AutoRenewReport, error) {
	return p.scheduler.Run(ctx, limit)
}

var _ models.PaygateI = (*Paygate)(nil)
