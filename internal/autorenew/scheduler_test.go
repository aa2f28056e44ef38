package autorenew

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockvn/paygate/internal/finalizer"
	"github.com/stockvn/paygate/internal/intent"
	"github.com/stockvn/paygate/internal/ledger"
	"github.com/stockvn/paygate/internal/license"
	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/orders"
	"github.com/stockvn/paygate/internal/repository/memory"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

var t0 = time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (r *recorder) SendNotification(n *models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

type env struct {
	store     *memory.Store
	ledger    *ledger.Ledger
	issuer    *license.Issuer
	intents   *intent.Service
	scheduler *Scheduler
	notes     *recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logger.NewNop()
	clock := func() time.Time { return t0 }
	e := &env{store: memory.New(), notes: &recorder{}}
	e.intents = intent.NewService(e.store, intent.Settings{
		AccountNumber: "0123456789",
		AccountName:   "CONG TY STOCKVN",
		BankCode:      "MBBank",
		QRBaseURL:     "https://qr.sepay.vn",
	}, nil, log)
	e.intents.SetClock(clock)
	e.ledger = ledger.NewLedger(e.store, log)
	e.issuer = license.NewIssuer(e.store, log)
	e.issuer.SetClock(clock)
	manager := orders.NewManager(e.store, e.ledger, e.intents, finalizer.New(e.ledger, e.intents, e.issuer, log), log)
	e.scheduler = NewScheduler(e.store, manager, e.intents, e.notes, "test-instance", 2, log)
	e.scheduler.SetClock(clock)
	return e
}

func (e *env) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	w, err := e.ledger.GetOrCreateWallet(ctx, e.store, userID, models.CurrencyVND)
	require.NoError(t, err)
	ref := "seed-" + userID
	_, err = e.ledger.Append(ctx, e.store, w.ID, models.LedgerDeposit, decimal.NewFromInt(amount), true, ledger.Refs{PaymentID: &ref})
	require.NoError(t, err)
}

func (e *env) subscribe(t *testing.T, userID string, symbolID, price int64, due time.Time) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		UserID:       userID,
		SymbolID:     symbolID,
		Price:        decimal.NewFromInt(price),
		Currency:     models.CurrencyVND,
		PeriodDays:   30,
		NextChargeAt: due,
		Enabled:      true,
	}
	require.NoError(t, e.store.CreateSubscription(context.Background(), sub))
	return sub
}

func (e *env) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	w, err := e.store.GetWallet(context.Background(), userID, models.CurrencyVND)
	require.NoError(t, err)
	return w.Balance
}

func TestRunRenewsFundedSubscription(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "alice", 50000)
	due := t0.Add(-time.Hour)
	sub := e.subscribe(t, "alice", 7, 30000, due)

	report, err := e.scheduler.Run(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Success)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Failed)

	assert.True(t, decimal.NewFromInt(20000).Equal(e.balance(t, "alice")))

	got, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, got.LastRunStatus)
	assert.True(t, got.NextChargeAt.Equal(t0.AddDate(0, 0, 30)))
	require.NotNil(t, got.LastOrderID)

	order, err := e.store.GetOrder(ctx, *got.LastOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)
	require.Len(t, order.Items, 1)
	assert.NotNil(t, order.Items[0].LicenseID)

	check, err := e.issuer.Check(ctx, "alice", 7)
	require.NoError(t, err)
	assert.True(t, check.HasAccess)
	assert.Empty(t, e.notes.sent)
}

func TestRunAfterBacklogChargesOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "alice", 1000000)
	sub := e.subscribe(t, "alice", 7, 30000, t0.AddDate(0, 0, -90))

	for i := 0; i < 3; i++ {
		_, err := e.scheduler.Run(ctx, 100)
		require.NoError(t, err)
	}

	assert.True(t, decimal.NewFromInt(970000).Equal(e.balance(t, "alice")))

	got, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, got.NextChargeAt.Equal(t0.AddDate(0, 0, 30)))

	l, err := e.store.GetActiveLicenseForUpdate(ctx, "alice", 7)
	require.NoError(t, err)
	require.NotNil(t, l.EndAt)
	assert.True(t, l.EndAt.Equal(t0.AddDate(0, 0, 30)), "%v", l.EndAt)
}

func TestRunKeepsUnsubscribeMadeDuringRenewal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "alice", 50000)
	sub := e.subscribe(t, "alice", 7, 30000, t0.Add(-time.Hour))

	_, err := e.scheduler.Unsubscribe(ctx, "alice", sub.ID)
	require.NoError(t, err)

	// a renewal that loaded the row before it was disabled
	stale := *sub
	now := t0
	stale.LastRunAt = &now
	stale.LastRunStatus = models.RunSuccess
	stale.NextChargeAt = t0.AddDate(0, 0, 30)
	require.NoError(t, e.store.RecordSubscriptionRun(ctx, &stale))

	got, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, models.RunSuccess, got.LastRunStatus)

	report, err := e.scheduler.Run(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
}

func TestRunSkipsUnderfundedSubscription(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "bob", 10000)
	due := t0.Add(-time.Minute)
	sub := e.subscribe(t, "bob", 9, 30000, due)

	report, err := e.scheduler.Run(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Skipped)

	assert.True(t, decimal.NewFromInt(10000).Equal(e.balance(t, "bob")))

	got, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSkipped, got.LastRunStatus)
	assert.NotEmpty(t, got.LastRunReason)
	assert.True(t, got.NextChargeAt.Equal(due))
	require.NotNil(t, got.LastOrderID)

	order, err := e.store.GetOrder(ctx, *got.LastOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, order.Status)

	check, err := e.issuer.Check(ctx, "bob", 9)
	require.NoError(t, err)
	assert.False(t, check.HasAccess)

	require.Len(t, e.notes.sent, 1)
	assert.Equal(t, models.NotifyAutoRenewSkipped, e.notes.sent[0].Kind)
	assert.Equal(t, "bob", e.notes.sent[0].UserID)
}

func TestRunMixedBatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "alice", 100000)
	e.fund(t, "bob", 1000)
	e.subscribe(t, "alice", 1, 30000, t0.Add(-2*time.Hour))
	e.subscribe(t, "alice", 2, 30000, t0.Add(-time.Hour))
	e.subscribe(t, "bob", 1, 30000, t0.Add(-time.Hour))
	e.subscribe(t, "carol", 3, 30000, t0.Add(time.Hour))

	report, err := e.scheduler.Run(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.Success)
	assert.Equal(t, 1, report.Skipped)
	assert.True(t, decimal.NewFromInt(40000).Equal(e.balance(t, "alice")))

	again, err := e.scheduler.Run(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Processed)
	assert.Equal(t, 1, again.Skipped)
	assert.True(t, decimal.NewFromInt(40000).Equal(e.balance(t, "alice")))
}

func TestRunHonoursLimit(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "alice", 100000)
	e.subscribe(t, "alice", 1, 1000, t0.Add(-2*time.Hour))
	e.subscribe(t, "alice", 2, 1000, t0.Add(-time.Hour))

	report, err := e.scheduler.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Success)
}

func TestRunLeavesLockedSubscription(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "alice", 50000)
	sub := e.subscribe(t, "alice", 7, 30000, t0.Add(-time.Hour))

	ok, err := e.store.AcquireLock(ctx, lockName(sub.ID), "other-instance", t0, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	report, err := e.scheduler.Run(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.True(t, decimal.NewFromInt(50000).Equal(e.balance(t, "alice")))

	got, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastRunAt)
}

func TestRunSweepsOverdueIntents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	expiry := 0
	_, err := e.intents.Create(ctx, e.store, intent.CreateParams{
		UserID:           "dave",
		Purpose:          models.PurposeWalletTopup,
		Amount:           decimal.NewFromInt(100000),
		ExpiresInMinutes: &expiry,
	})
	require.NoError(t, err)

	report, err := e.scheduler.Run(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Equal(t, 1, report.ExpiredIntents)
}

func TestSubscribeLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sub, err := e.scheduler.Subscribe(ctx, "alice", &models.SubscribeRequest{SymbolID: 7, Price: decimal.NewFromInt(30000)})
	require.NoError(t, err)
	assert.Equal(t, 30, sub.PeriodDays)
	assert.Equal(t, models.CurrencyVND, sub.Currency)
	assert.True(t, sub.NextChargeAt.Equal(t0))

	_, err = e.scheduler.Subscribe(ctx, "alice", &models.SubscribeRequest{SymbolID: 7, Price: decimal.NewFromInt(30000)})
	assert.True(t, xerrors.Is(err, xerrors.KindInvalidInput))

	_, err = e.scheduler.Unsubscribe(ctx, "bob", sub.ID)
	assert.True(t, xerrors.Is(err, xerrors.KindNotFound))

	off, err := e.scheduler.Unsubscribe(ctx, "alice", sub.ID)
	require.NoError(t, err)
	assert.False(t, off.Enabled)

	again, err := e.scheduler.Subscribe(ctx, "alice", &models.SubscribeRequest{SymbolID: 7, Price: decimal.NewFromInt(30000), PeriodDays: 90})
	require.NoError(t, err)
	assert.NotEqual(t, sub.ID, again.ID)

	subs, err := e.scheduler.Subscriptions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestSubscribeStartsAtLicenseEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	days := 10
	l, err := e.issuer.IssueOrExtend(ctx, e.store, "alice", 7, nil, &days)
	require.NoError(t, err)

	sub, err := e.scheduler.Subscribe(ctx, "alice", &models.SubscribeRequest{SymbolID: 7, Price: decimal.NewFromInt(30000)})
	require.NoError(t, err)
	assert.True(t, sub.NextChargeAt.Equal(*l.EndAt))

	_, err = e.issuer.IssueOrExtend(ctx, e.store, "bob", 8, nil, nil)
	require.NoError(t, err)
	_, err = e.scheduler.Subscribe(ctx, "bob", &models.SubscribeRequest{SymbolID: 8, Price: decimal.NewFromInt(30000)})
	assert.True(t, xerrors.Is(err, xerrors.KindInvalidInput))
}

func TestSubscribeValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	past := t0.AddDate(0, 0, -1).Unix()
	cases := []*models.SubscribeRequest{
		{SymbolID: 0, Price: decimal.NewFromInt(1000)},
		{SymbolID: 1, Price: decimal.Zero},
		{SymbolID: 1, Price: decimal.RequireFromString("10.005")},
		{SymbolID: 1, Price: decimal.NewFromInt(1000), PeriodDays: -1},
		{SymbolID: 1, Price: decimal.NewFromInt(1000), Currency: "EUR"},
		{SymbolID: 1, Price: decimal.NewFromInt(1000), NextChargeAt: &past},
	}
	for _, req := range cases {
		_, err := e.scheduler.Subscribe(ctx, "alice", req)
		assert.True(t, xerrors.Is(err, xerrors.KindInvalidInput), "%+v", req)
	}
}
