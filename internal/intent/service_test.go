package intent

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/repository/memory"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

type fakeBanks struct {
	codes  map[string]bool
	loaded bool
}

func (f fakeBanks) Known(code string) (bool, bool) {
	return f.codes[code], f.loaded
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(t *testing.T, banks BankDirectory) (*Service, *memory.Store, *clock) {
	t.Helper()
	store := memory.New()
	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(store, Settings{
		AccountNumber: "0123456789",
		AccountName:   "CONG TY STOCKVN",
		BankCode:      "MBBank",
		QRBaseURL:     "https://qr.sepay.vn",
		DefaultExpiry: time.Hour,
		MaxExpiry:     24 * time.Hour,
	}, banks, logger.NewNop())
	svc.SetClock(c.now)
	return svc, store, c
}

func minutes(n int) *int { return &n }

func topup(amount int64) CreateParams {
	return CreateParams{
		UserID:   "user-1",
		Purpose:  models.PurposeWalletTopup,
		Amount:   decimal.NewFromInt(amount),
		Currency: models.CurrencyVND,
	}
}

func TestCreateTopupIntent(t *testing.T) {
	svc, store, c := newTestService(t, nil)
	ctx := context.Background()

	p := topup(100000)
	p.ExpiresInMinutes = minutes(60)
	in, err := svc.Create(ctx, store, p)
	require.NoError(t, err)

	assert.Equal(t, models.IntentRequiresPaymentMethod, in.Status)
	assert.True(t, IsTopupMemo(in.OrderCode))
	assert.Equal(t, c.t.Add(time.Hour), in.ExpiresAt)

	order := topup(50000)
	order.Purpose = models.PurposeOrderPayment
	in2, err := svc.Create(ctx, store, order)
	require.NoError(t, err)
	assert.Regexp(t, `^PAY[0-9A-F]{8}$`, in2.OrderCode)
	assert.NotEqual(t, in.OrderCode, in2.OrderCode)
}

func TestCreateValidation(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()

	cases := map[string]func(p *CreateParams){
		"no user":          func(p *CreateParams) { p.UserID = "" },
		"zero amount":      func(p *CreateParams) { p.Amount = decimal.Zero },
		"negative amount":  func(p *CreateParams) { p.Amount = decimal.NewFromInt(-5) },
		"fractional VND":   func(p *CreateParams) { p.Amount = decimal.RequireFromString("1000.5") },
		"three decimals":   func(p *CreateParams) { p.Currency = models.CurrencyUSD; p.Amount = decimal.RequireFromString("1.005") },
		"unknown currency": func(p *CreateParams) { p.Currency = "EUR" },
		"unknown purpose":  func(p *CreateParams) { p.Purpose = "donation" },
		"withdraw":         func(p *CreateParams) { p.Purpose = models.PurposeWithdraw },
		"negative expiry":  func(p *CreateParams) { p.ExpiresInMinutes = minutes(-1) },
		"expiry too long":  func(p *CreateParams) { p.ExpiresInMinutes = minutes(60*24 + 1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := topup(100000)
			mutate(&p)
			_, err := svc.Create(ctx, store, p)
			require.Error(t, err)
			kind := xerrors.KindOf(err)
			assert.Contains(t, []xerrors.Kind{xerrors.KindInvalidInput, xerrors.KindUnauthorized}, kind)
		})
	}
}

func TestCheckoutBuildsAttempt(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()

	out, err := svc.Checkout(ctx, store, topup(100000), "")
	require.NoError(t, err)

	assert.Equal(t, models.IntentProcessing, out.Intent.Status)
	assert.Equal(t, models.AttemptActive, out.Attempt.Status)
	assert.Equal(t, out.Intent.OrderCode, out.Attempt.TransferContent)
	assert.True(t, out.Attempt.TransferAmount.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, "0123456789", out.Attempt.AccountNumber)
	assert.Equal(t, "CONG TY STOCKVN", out.Attempt.AccountName)
	assert.Equal(t, "MBBank", out.Attempt.BankCode)
	assert.Equal(t, out.Intent.ExpiresAt, out.Attempt.ExpiresAt)
	assert.Equal(t, BuildQRURL("https://qr.sepay.vn", "0123456789", "MBBank", out.Intent.Amount, out.Intent.OrderCode), out.Attempt.QRImageURL)
	assert.Equal(t, out.Attempt.QRImageURL, out.Intent.QRCodeURL)

	stored, err := store.GetIntent(ctx, out.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentProcessing, stored.Status)
}

func TestCheckoutRollsBackOnBadBank(t *testing.T) {
	svc, store, _ := newTestService(t, fakeBanks{codes: map[string]bool{"MBBank": true}, loaded: true})
	ctx := context.Background()

	_, err := svc.Checkout(ctx, store, topup(100000), "NoSuchBank")
	assert.Equal(t, xerrors.KindInvalidInput, xerrors.KindOf(err))

	n, err := store.CountOpenIntents(ctx, "user-1", models.PurposeWalletTopup)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnloadedBankCatalogAcceptsAnyCode(t *testing.T) {
	svc, store, _ := newTestService(t, fakeBanks{loaded: false})
	_, err := svc.Checkout(context.Background(), store, topup(100000), "Vietcombank")
	assert.NoError(t, err)
}

func TestMakeAttemptSupersedesOnBankChange(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()

	out, err := svc.Checkout(ctx, store, topup(100000), "MBBank")
	require.NoError(t, err)

	same, err := svc.MakeAttempt(ctx, store, out.Intent.ID, "MBBank")
	require.NoError(t, err)
	assert.Equal(t, out.Attempt.ID, same.ID)

	other, err := svc.MakeAttempt(ctx, store, out.Intent.ID, "Vietcombank")
	require.NoError(t, err)
	assert.NotEqual(t, out.Attempt.ID, other.ID)

	attempts := store.Attempts(out.Intent.ID)
	require.Len(t, attempts, 2)
	active := 0
	for _, a := range attempts {
		if a.Status == models.AttemptActive {
			active++
			assert.Equal(t, other.ID, a.ID)
		} else {
			assert.Equal(t, models.AttemptSuperseded, a.Status)
		}
	}
	assert.Equal(t, 1, active)
}

func TestMakeAttemptOnExpiredIntent(t *testing.T) {
	svc, store, c := newTestService(t, nil)
	ctx := context.Background()

	in, err := svc.Create(ctx, store, topup(100000))
	require.NoError(t, err)

	c.t = in.ExpiresAt.Add(time.Second)
	_, err = svc.MakeAttempt(ctx, store, in.ID, "")
	assert.Equal(t, xerrors.KindExpired, xerrors.KindOf(err))

	stored, err := store.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentExpired, stored.Status)
}

func TestGetExpiresLazily(t *testing.T) {
	svc, store, c := newTestService(t, nil)
	ctx := context.Background()

	out, err := svc.Checkout(ctx, store, topup(100000), "")
	require.NoError(t, err)

	got, err := svc.Get(ctx, "user-1", out.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentProcessing, got.Status)

	_, err = svc.Get(ctx, "user-2", out.Intent.ID)
	assert.Equal(t, xerrors.KindNotFound, xerrors.KindOf(err))

	c.t = out.Intent.ExpiresAt
	got, err = svc.Get(ctx, "user-1", out.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentExpired, got.Status)

	attempts := store.Attempts(out.Intent.ID)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptExpired, attempts[0].Status)
}

func TestZeroExpiryIsImmediatelyOverdue(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()

	p := topup(100000)
	p.ExpiresInMinutes = minutes(0)
	out, err := svc.Checkout(ctx, store, p, "")
	require.NoError(t, err)

	got, err := svc.Get(ctx, "user-1", out.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentExpired, got.Status)
}

func TestTransitionRejectsTerminal(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()

	out, err := svc.Checkout(ctx, store, topup(100000), "")
	require.NoError(t, err)
	require.NoError(t, svc.Transition(ctx, store, out.Intent, models.IntentSucceeded))
	assert.NotNil(t, out.Intent.SucceededAt)

	err = svc.Transition(ctx, store, out.Intent, models.IntentExpired)
	assert.Equal(t, xerrors.KindInvalidState, xerrors.KindOf(err))
	assert.Equal(t, models.IntentSucceeded, out.Intent.Status)

	attempts := store.Attempts(out.Intent.ID)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptSucceeded, attempts[0].Status)
}

func TestSweepExpired(t *testing.T) {
	svc, store, c := newTestService(t, nil)
	ctx := context.Background()

	short := topup(100000)
	short.ExpiresInMinutes = minutes(5)
	a, err := svc.Create(ctx, store, short)
	require.NoError(t, err)
	b, err := svc.Checkout(ctx, store, short, "")
	require.NoError(t, err)
	long, err := svc.Create(ctx, store, topup(100000))
	require.NoError(t, err)

	c.t = c.t.Add(10 * time.Minute)
	n, err := svc.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[string]models.IntentStatus{
		a.ID:        models.IntentExpired,
		b.Intent.ID: models.IntentExpired,
		long.ID:     models.IntentRequiresPaymentMethod,
	} {
		got, err := store.GetIntent(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, id)
	}

	n, err = svc.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}
