// Package license grants and checks per-symbol access.
package license

import (
	"context"
	"errors"
	"time"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

type Issuer struct {
	logger *logger.Logger
	repo   models.Repository
	now    func() time.Time
}

func NewIssuer(repo models.Repository, logger *logger.Logger) *Issuer {
	return &Issuer{repo: repo, logger: logger, now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// IssueOrExtend grants symbolID to userID for days, or for life when days is nil.
// An existing active grant is extended to the later end; a lifetime grant on either side wins.
func (i *Issuer) IssueOrExtend(ctx context.Context, repo models.Repository, userID string, symbolID int64, orderID *string, days *int) (*models.SymbolLicense, error) {
	if symbolID <= 0 {
		return nil, xerrors.InvalidInput("symbol_id must be positive")
	}
	if days != nil && *days <= 0 {
		return nil, xerrors.InvalidInput("license_days must be positive")
	}

	now := i.now().UTC()
	var end *time.Time
	if days != nil {
		e := now.AddDate(0, 0, *days)
		end = &e
	}

	var out *models.SymbolLicense
	err := repo.Transaction(ctx, func(tx models.Repository) error {
		existing, err := tx.GetActiveLicenseForUpdate(ctx, userID, symbolID)
		if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
			return err
		}
		if existing != nil {
			if _, err := i.expireIfEnded(ctx, tx, existing, now); err != nil {
				return err
			}
			if existing.Status != models.LicenseActive {
				existing = nil
			}
		}

		if existing == nil {
			out = &models.SymbolLicense{
				UserID:   userID,
				SymbolID: symbolID,
				OrderID:  orderID,
				Status:   models.LicenseActive,
				StartAt:  now,
				EndAt:    end,
			}
			if err := tx.CreateLicense(ctx, out); err != nil {
				return err
			}
			i.logger.Info("License issued", "license_id", out.ID, "user_id", userID, "symbol_id", symbolID, "end_at", out.EndAt)
			return nil
		}

		switch {
		case existing.Lifetime():
		case end == nil:
			existing.EndAt = nil
		case end.After(*existing.EndAt):
			existing.EndAt = end
		}
		if orderID != nil {
			existing.OrderID = orderID
		}
		if err := tx.UpdateLicense(ctx, existing); err != nil {
			return err
		}
		out = existing
		i.logger.Info("License extended", "license_id", out.ID, "user_id", userID, "symbol_id", symbolID, "end_at", out.EndAt)
		return nil
	})
	return out, err
}

func (i *Issuer) expireIfEnded(ctx context.Context, repo models.Repository, l *models.SymbolLicense, now time.Time) (bool, error) {
	if l.Status != models.LicenseActive || l.GrantsAccess(now) {
		return false, nil
	}
	next, err := models.TransitionLicense(l.Status, models.LicenseExpired)
	if err != nil {
		return false, err
	}
	l.Status = next
	if err := repo.UpdateLicense(ctx, l); err != nil {
		return false, err
	}
	i.logger.Debug("License expired", "license_id", l.ID, "user_id", l.UserID, "symbol_id", l.SymbolID)
	return true, nil
}

// Check reports whether userID can access symbolID, expiring an ended license on the way.
func (i *Issuer) Check(ctx context.Context, userID string, symbolID int64) (*models.AccessCheck, error) {
	if symbolID <= 0 {
		return nil, xerrors.InvalidInput("symbol_id must be positive")
	}
	out := &models.AccessCheck{SymbolID: symbolID}
	err := i.repo.Transaction(ctx, func(tx models.Repository) error {
		l, err := tx.GetActiveLicenseForUpdate(ctx, userID, symbolID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		expired, err := i.expireIfEnded(ctx, tx, l, i.now().UTC())
		if err != nil {
			return err
		}
		if !expired {
			out.HasAccess = true
			out.License = l
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasAccess is Check reduced to its verdict.
func (i *Issuer) HasAccess(ctx context.Context, userID string, symbolID int64) (bool, error) {
	check, err := i.Check(ctx, userID, symbolID)
	if err != nil {
		return false, err
	}
	return check.HasAccess, nil
}

// List returns the licenses of userID, expiring ended ones first.
func (i *Issuer) List(ctx context.Context, userID string) ([]*models.SymbolLicense, error) {
	var out []*models.SymbolLicense
	err := i.repo.Transaction(ctx, func(tx models.Repository) error {
		licenses, err := tx.ListLicenses(ctx, userID)
		if err != nil {
			return err
		}
		now := i.now().UTC()
		for _, l := range licenses {
			if _, err := i.expireIfEnded(ctx, tx, l, now); err != nil {
				return err
			}
		}
		out = licenses
		return nil
	})
	return out, err
}
