// Package ledger keeps the wallet journal. Every balance change is an appended
// entry written under the wallet row lock, so entries of a wallet form a chain
// where each balance_before equals the previous balance_after.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

type Ledger struct {
	logger *logger.Logger
	repo   models.Repository
	now    func() time.Time
}

func NewLedger(repo models.Repository, logger *logger.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger, now: time.Now}
}

// Refs binds an entry to the business object that caused it.
type Refs struct {
	OrderID   *string
	PaymentID *string
	Note      string
}

// GetOrCreateWallet returns the wallet of user in currency, creating it with a zero balance.
// Concurrent callers converge on the same row.
func (l *Ledger) GetOrCreateWallet(ctx context.Context, repo models.Repository, userID string, currency models.Currency) (*models.Wallet, error) {
	if userID == "" {
		return nil, xerrors.InvalidInput("user is required")
	}
	if !currency.Valid() {
		return nil, xerrors.InvalidInput("unsupported currency %q", currency)
	}
	w, err := repo.GetWallet(ctx, userID, currency)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	if err := repo.EnsureWallet(ctx, &models.Wallet{
		UserID:   userID,
		Currency: currency,
		Balance:  decimal.Zero,
		Status:   models.WalletActive,
	}); err != nil {
		return nil, err
	}
	w, err = repo.GetWallet(ctx, userID, currency)
	if err != nil {
		return nil, err
	}
	l.logger.Info("Wallet created", "wallet_id", w.ID, "user_id", userID, "currency", currency)
	return w, nil
}

// Append writes one entry to the wallet journal and updates the cached balance.
// It runs inside repo's transaction, or opens one.
func (l *Ledger) Append(ctx context.Context, repo models.Repository, walletID string, kind models.LedgerKind, amount decimal.Decimal, isCredit bool, refs Refs) (*models.LedgerEntry, error) {
	if !kind.Valid() {
		return nil, xerrors.InvalidInput("unknown ledger kind %q", kind)
	}
	if !amount.IsPositive() {
		return nil, xerrors.InvalidInput("ledger amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, xerrors.InvalidInput("ledger amount has more than two decimal places")
	}
	if kind == models.LedgerDeposit && refs.PaymentID == nil {
		return nil, xerrors.InvalidInput("deposit must reference a payment")
	}
	if kind == models.LedgerPurchase && refs.OrderID == nil {
		return nil, xerrors.InvalidInput("purchase must reference an order")
	}

	var entry *models.LedgerEntry
	err := repo.Transaction(ctx, func(tx models.Repository) error {
		w, err := tx.GetWalletForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		if w.Status != models.WalletActive {
			return xerrors.Newf(xerrors.KindInvalidState, "wallet is %s", w.Status).WithDetail("status", w.Status)
		}

		before := w.Balance
		after := before.Add(amount)
		if !isCredit {
			after = before.Sub(amount)
		}
		if after.IsNegative() {
			return xerrors.NewInsufficientFunds(amount, before)
		}

		entry = &models.LedgerEntry{
			WalletID:      w.ID,
			Seq:           w.LastSeq + 1,
			Kind:          kind,
			Amount:        amount,
			IsCredit:      isCredit,
			BalanceBefore: before,
			BalanceAfter:  after,
			OrderID:       refs.OrderID,
			PaymentID:     refs.PaymentID,
			Note:          refs.Note,
			CreatedAt:     l.now().UTC(),
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return err
		}
		return tx.UpdateWalletBalance(ctx, w.ID, after, entry.Seq)
	})
	if err != nil {
		return nil, err
	}
	l.logger.Debug("Ledger entry appended",
		"wallet_id", walletID, "seq", entry.Seq, "kind", kind, "amount", amount.String(),
		"credit", isCredit, "balance_after", entry.BalanceAfter.String())
	return entry, nil
}

// Balance returns the cached balance of a wallet.
func (l *Ledger) Balance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	w, err := l.repo.GetWalletByID(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// Entries returns the newest entries of a wallet first.
func (l *Ledger) Entries(ctx context.Context, walletID string, limit, offset int) ([]*models.LedgerEntry, error) {
	return l.repo.ListLedgerEntries(ctx, walletID, models.LedgerFilter{Limit: limit, Offset: offset, Newest: true})
}

// FindDeposit returns the deposit entry bound to payment, if any.
func (l *Ledger) FindDeposit(ctx context.Context, repo models.Repository, paymentID string) (*models.LedgerEntry, error) {
	entry, err := repo.FindLedgerEntryByPayment(ctx, paymentID, models.LedgerDeposit)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find deposit: %w", err)
	}
	return entry, nil
}
