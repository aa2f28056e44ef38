// Package intent owns payment intents: creation, transfer attempts and expiry.
package intent

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
	"github.com/stockvn/paygate/pkg/validation"
)

// memoRetries bounds how often a colliding memo is regenerated.
const memoRetries = 5

// Settings are the receiving account and expiry policy.
type Settings struct {
	AccountNumber string
	AccountName   string
	BankCode      string
	QRBaseURL     string
	DefaultExpiry time.Duration
	MaxExpiry     time.Duration
}

// BankDirectory validates bank codes against the gateway's catalog.
type BankDirectory interface {
	// Known reports whether code is supported. ok is false while the catalog is not loaded.
	Known(code string) (known bool, ok bool)
}

type Service struct {
	logger   *logger.Logger
	repo     models.Repository
	settings Settings
	banks    BankDirectory
	now      func() time.Time
}

func NewService(repo models.Repository, settings Settings, banks BankDirectory, logger *logger.Logger) *Service {
	if settings.DefaultExpiry <= 0 {
		settings.DefaultExpiry = time.Hour
	}
	if settings.MaxExpiry < settings.DefaultExpiry {
		settings.MaxExpiry = settings.DefaultExpiry
	}
	return &Service{repo: repo, settings: settings, banks: banks, logger: logger, now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Now() time.Time {
	return s.now().UTC()
}

type CreateParams struct {
	UserID           string
	Purpose          models.IntentPurpose
	Amount           decimal.Decimal
	Currency         models.Currency
	ExpiresInMinutes *int
	ReturnURL        string
	CancelURL        string
	Metadata         map[string]interface{}
}

// Create validates params and stores a new intent in requires_payment_method.
func (s *Service) Create(ctx context.Context, repo models.Repository, p CreateParams) (*models.PaymentIntent, error) {
	if p.UserID == "" {
		return nil, xerrors.Unauthorized("user is required")
	}
	if !p.Purpose.Valid() {
		return nil, xerrors.InvalidInput("unknown purpose %q", p.Purpose)
	}
	if p.Purpose == models.PurposeWithdraw {
		return nil, xerrors.InvalidInput("withdrawals cannot be collected by transfer")
	}
	if !p.Amount.IsPositive() {
		return nil, xerrors.InvalidInput("amount must be positive")
	}
	if !p.Amount.Equal(p.Amount.Round(2)) {
		return nil, xerrors.InvalidInput("amount has more than two decimal places")
	}
	if p.Currency == "" {
		p.Currency = models.CurrencyVND
	}
	if !p.Currency.Valid() {
		return nil, xerrors.InvalidInput("unsupported currency %q", p.Currency)
	}
	if p.Currency == models.CurrencyVND && !p.Amount.Equal(p.Amount.Truncate(0)) {
		return nil, xerrors.InvalidInput("VND amounts must be whole numbers")
	}

	expiry := s.settings.DefaultExpiry
	if p.ExpiresInMinutes != nil {
		if *p.ExpiresInMinutes < 0 {
			return nil, xerrors.InvalidInput("expires_in_minutes must not be negative")
		}
		expiry = time.Duration(*p.ExpiresInMinutes) * time.Minute
		if expiry > s.settings.MaxExpiry {
			return nil, xerrors.InvalidInput("expires_in_minutes must not exceed %d", int(s.settings.MaxExpiry.Minutes()))
		}
	}

	now := s.Now()
	memo, err := s.uniqueMemo(ctx, repo, p.Purpose, now)
	if err != nil {
		return nil, err
	}

	intent := &models.PaymentIntent{
		UserID:    p.UserID,
		Purpose:   p.Purpose,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    models.IntentRequiresPaymentMethod,
		OrderCode: memo,
		ExpiresAt: now.Add(expiry),
		ReturnURL: p.ReturnURL,
		CancelURL: p.CancelURL,
		Metadata:  p.Metadata,
	}
	if err := repo.CreateIntent(ctx, intent); err != nil {
		return nil, err
	}
	s.logger.Info("Payment intent created",
		"intent_id", intent.ID, "user_id", intent.UserID, "purpose", intent.Purpose,
		"amount", intent.Amount.String(), "order_code", intent.OrderCode, "expires_at", intent.ExpiresAt)
	return intent, nil
}

func (s *Service) uniqueMemo(ctx context.Context, repo models.Repository, purpose models.IntentPurpose, now time.Time) (string, error) {
	for i := 0; i < memoRetries; i++ {
		var memo string
		var err error
		if purpose == models.PurposeWalletTopup {
			memo, err = NewTopupMemo(now)
		} else {
			memo, err = NewPaymentMemo()
		}
		if err != nil {
			return "", xerrors.Wrap(xerrors.KindInternal, err, "failed to generate transfer memo")
		}
		exists, err := repo.OrderCodeExists(ctx, memo)
		if err != nil {
			return "", err
		}
		if !exists {
			return memo, nil
		}
		s.logger.Warn("Transfer memo collision, regenerating", "memo", memo)
	}
	return "", xerrors.New(xerrors.KindInternal, "failed to generate a unique transfer memo")
}

// MakeAttempt renders the transfer instructions for an intent and moves it to processing.
// A processing intent keeps its active attempt when the bank is unchanged; otherwise
// the old attempt is superseded.
func (s *Service) MakeAttempt(ctx context.Context, repo models.Repository, intentID, bankCode string) (*models.PaymentAttempt, error) {
	bankCode, err := s.resolveBank(bankCode)
	if err != nil {
		return nil, err
	}

	var attempt *models.PaymentAttempt
	expired := false
	err = repo.Transaction(ctx, func(tx models.Repository) error {
		intent, err := tx.GetIntentForUpdate(ctx, intentID)
		if err != nil {
			return err
		}
		if expired, err = s.ExpireIfOverdue(ctx, tx, intent); err != nil || expired {
			return err
		}
		attempt, err = s.attach(ctx, tx, intent, bankCode)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, xerrors.New(xerrors.KindExpired, "payment intent has expired").WithDetail("intent_id", intentID)
	}
	return attempt, nil
}

func (s *Service) resolveBank(bankCode string) (string, error) {
	if bankCode == "" {
		bankCode = s.settings.BankCode
	}
	if err := validation.ValidateBankCode(bankCode); err != nil {
		return "", xerrors.InvalidInput("%s", err.Error())
	}
	if s.banks != nil {
		if known, loaded := s.banks.Known(bankCode); loaded && !known {
			return "", xerrors.InvalidInput("bank %q is not supported by the gateway", bankCode)
		}
	}
	return bankCode, nil
}

// attach creates the active attempt of a locked intent.
func (s *Service) attach(ctx context.Context, tx models.Repository, intent *models.PaymentIntent, bankCode string) (*models.PaymentAttempt, error) {
	switch intent.Status {
	case models.IntentRequiresPaymentMethod:
	case models.IntentProcessing:
		active, err := tx.GetActiveAttempt(ctx, intent.ID)
		switch {
		case err == nil && active.BankCode == bankCode:
			return active, nil
		case err == nil:
			active.Status = models.AttemptSuperseded
			if err := tx.UpdateAttempt(ctx, active); err != nil {
				return nil, err
			}
		case !errors.Is(err, xerrors.ErrNotFound):
			return nil, err
		}
	default:
		return nil, xerrors.Newf(xerrors.KindInvalidState, "payment intent is %s", intent.Status).
			WithDetail("status", intent.Status)
	}

	qr := BuildQRURL(s.settings.QRBaseURL, s.settings.AccountNumber, bankCode, intent.Amount, intent.OrderCode)
	attempt := &models.PaymentAttempt{
		IntentID:        intent.ID,
		Status:          models.AttemptActive,
		BankCode:        bankCode,
		AccountNumber:   s.settings.AccountNumber,
		AccountName:     s.settings.AccountName,
		TransferContent: intent.OrderCode,
		TransferAmount:  intent.Amount,
		QRImageURL:      qr,
		ExpiresAt:       intent.ExpiresAt,
	}
	if err := tx.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	if intent.Status == models.IntentRequiresPaymentMethod {
		next, err := models.TransitionIntent(intent.Status, models.IntentProcessing)
		if err != nil {
			return nil, err
		}
		intent.Status = next
	}
	intent.QRCodeURL = qr
	if err := tx.UpdateIntent(ctx, intent); err != nil {
		return nil, err
	}
	s.logger.Debug("Payment attempt ready", "intent_id", intent.ID, "attempt_id", attempt.ID, "bank_code", bankCode)
	return attempt, nil
}

// Checkout creates an intent and its first attempt in one transaction.
func (s *Service) Checkout(ctx context.Context, repo models.Repository, p CreateParams, bankCode string) (*models.Checkout, error) {
	bankCode, err := s.resolveBank(bankCode)
	if err != nil {
		return nil, err
	}
	var out *models.Checkout
	err = repo.Transaction(ctx, func(tx models.Repository) error {
		intent, err := s.Create(ctx, tx, p)
		if err != nil {
			return err
		}
		attempt, err := s.attach(ctx, tx, intent, bankCode)
		if err != nil {
			return err
		}
		out = &models.Checkout{Intent: intent, Attempt: attempt}
		return nil
	})
	return out, err
}

// Transition moves intent to status and settles its active attempt when the new status is terminal.
func (s *Service) Transition(ctx context.Context, repo models.Repository, intent *models.PaymentIntent, to models.IntentStatus) error {
	next, err := models.TransitionIntent(intent.Status, to)
	if err != nil {
		return err
	}
	intent.Status = next
	if next == models.IntentSucceeded {
		now := s.Now()
		intent.SucceededAt = &now
	}
	if err := repo.UpdateIntent(ctx, intent); err != nil {
		return err
	}
	if next.Terminal() {
		attempt, err := repo.GetActiveAttempt(ctx, intent.ID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		attempt.Status = models.AttemptStatusFor(next)
		return repo.UpdateAttempt(ctx, attempt)
	}
	return nil
}

// ExpireIfOverdue expires an open intent whose deadline has passed. intent must be locked by the caller.
func (s *Service) ExpireIfOverdue(ctx context.Context, repo models.Repository, intent *models.PaymentIntent) (bool, error) {
	if intent.Status == models.IntentExpired {
		return true, nil
	}
	if !intent.Status.Open() || !intent.IsOverdue(s.Now()) {
		return false, nil
	}
	if err := s.Transition(ctx, repo, intent, models.IntentExpired); err != nil {
		return false, err
	}
	s.logger.Info("Payment intent expired", "intent_id", intent.ID, "order_code", intent.OrderCode)
	return true, nil
}

// Get returns an intent owned by userID, expiring it first if it is overdue.
func (s *Service) Get(ctx context.Context, userID, intentID string) (*models.PaymentIntent, error) {
	var out *models.PaymentIntent
	err := s.repo.Transaction(ctx, func(tx models.Repository) error {
		intent, err := tx.GetIntentForUpdate(ctx, intentID)
		if err != nil {
			return err
		}
		if intent.UserID != userID {
			return xerrors.NotFound("payment intent")
		}
		if _, err := s.ExpireIfOverdue(ctx, tx, intent); err != nil {
			return err
		}
		out = intent
		return nil
	})
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.NotFound("payment intent")
	}
	return out, err
}

// ActiveAttempt returns the current attempt of an intent.
func (s *Service) ActiveAttempt(ctx context.Context, intentID string) (*models.PaymentAttempt, error) {
	attempt, err := s.repo.GetActiveAttempt(ctx, intentID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.NotFound("payment attempt")
	}
	return attempt, err
}

// SweepExpired expires up to limit overdue intents and returns how many were expired.
func (s *Service) SweepExpired(ctx context.Context, limit int) (int, error) {
	overdue, err := s.repo.ListOverdueIntents(ctx, s.Now(), limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, candidate := range overdue {
		err := s.repo.Transaction(ctx, func(tx models.Repository) error {
			intent, err := tx.GetIntentForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			wasOpen := intent.Status.Open()
			done, err := s.ExpireIfOverdue(ctx, tx, intent)
			if done && err == nil && wasOpen {
				expired++
			}
			return err
		})
		if err != nil {
			s.logger.Error("Failed to expire payment intent", "intent_id", candidate.ID, "error", err)
		}
	}
	return expired, nil
}
