package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stockvn/paygate/internal/models"
)

// AuditReport compares a wallet's cached balance with its journal.
type AuditReport struct {
	WalletID   string          `json:"wallet_id"`
	Cached     decimal.Decimal `json:"cached_balance"`
	Computed   decimal.Decimal `json:"computed_balance"`
	Entries    int             `json:"entries"`
	Violations []string        `json:"violations,omitempty"`
}

func (r *AuditReport) OK() bool {
	return len(r.Violations) == 0
}

// Audit replays the journal of a wallet and reports every broken invariant.
func (l *Ledger) Audit(ctx context.Context, walletID string) (*AuditReport, error) {
	w, err := l.repo.GetWalletByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	entries, err := l.repo.ListLedgerEntries(ctx, walletID, models.LedgerFilter{})
	if err != nil {
		return nil, err
	}

	report := &AuditReport{WalletID: walletID, Cached: w.Balance, Computed: decimal.Zero, Entries: len(entries)}
	violate := func(format string, args ...interface{}) {
		report.Violations = append(report.Violations, fmt.Sprintf(format, args...))
	}

	var prev *models.LedgerEntry
	for _, e := range entries {
		if !e.BalanceAfter.Equal(e.BalanceBefore.Add(e.Signed())) {
			violate("entry %d: balance_after %s does not follow from balance_before %s and amount %s",
				e.Seq, e.BalanceAfter, e.BalanceBefore, e.Signed())
		}
		if e.BalanceAfter.IsNegative() {
			violate("entry %d: negative balance %s", e.Seq, e.BalanceAfter)
		}
		if prev == nil {
			if e.Seq != 1 {
				violate("entry %d: journal does not start at 1", e.Seq)
			}
			if !e.BalanceBefore.IsZero() {
				violate("entry %d: first entry starts from %s", e.Seq, e.BalanceBefore)
			}
		} else {
			if e.Seq != prev.Seq+1 {
				violate("entry %d: gap after entry %d", e.Seq, prev.Seq)
			}
			if !e.BalanceBefore.Equal(prev.BalanceAfter) {
				violate("entry %d: balance_before %s does not chain from %s", e.Seq, e.BalanceBefore, prev.BalanceAfter)
			}
		}
		report.Computed = report.Computed.Add(e.Signed())
		prev = e
	}
	if !report.Computed.Equal(w.Balance) {
		violate("cached balance %s differs from journal total %s", w.Balance, report.Computed)
	}
	if prev != nil && prev.Seq != w.LastSeq {
		violate("wallet last_seq %d differs from newest entry %d", w.LastSeq, prev.Seq)
	}
	return report, nil
}

// AuditAll audits every wallet and returns the reports with violations.
func (l *Ledger) AuditAll(ctx context.Context) ([]*AuditReport, int, error) {
	ids, err := l.repo.ListWalletIDs(ctx)
	if err != nil {
		return nil, 0, err
	}
	var failed []*AuditReport
	for _, id := range ids {
		report, err := l.Audit(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if !report.OK() {
			l.logger.Error("Ledger audit failed", "wallet_id", id, "violations", report.Violations)
			failed = append(failed, report)
		}
	}
	return failed, len(ids), nil
}
