package detect

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// backdatedRatio is the share of out-of-window transactions above which the
// dataset is flagged for likely backdating.
const backdatedRatio = 0.10

// DateManipulation runs three independent date checks: future-dated
// invoices, transactions older than a year that leaked into the nominal
// window (backdating), and invoices due before they were issued.
type DateManipulation struct{}

func (DateManipulation) Name() string { return "date_manipulation" }

func (DateManipulation) Detect(ds *Dataset) []domain.Pattern {
	var patterns []domain.Pattern
	now := ds.WindowEnd

	future := 0
	dueBeforeIssue := 0
	for _, inv := range ds.Invoices {
		if inv.IssueDate.IsZero() {
			continue
		}
		if inv.IssueDate.After(now) {
			future++
		}
		if inv.DueDate != nil && inv.DueDate.Before(inv.IssueDate) {
			dueBeforeIssue++
		}
	}

	if future > 0 {
		patterns = append(patterns, domain.Pattern{
			Type:        domain.PatternDateManipulation,
			Severity:    domain.SeverityHigh,
			Description: fmt.Sprintf("%d invoice(s) carry an issue date in the future", future),
			Value:       float64(future),
		})
	}

	if total := len(ds.Transactions); total > 0 {
		cutoff := now.AddDate(-1, 0, 0)
		old := 0
		for _, tx := range ds.Transactions {
			if !tx.Date.IsZero() && tx.Date.Before(cutoff) {
				old++
			}
		}
		if float64(old)/float64(total) > backdatedRatio {
			patterns = append(patterns, domain.Pattern{
				Type:     domain.PatternDateManipulation,
				Severity: domain.SeverityMedium,
				Description: fmt.Sprintf(
					"%d of %d transactions (%.1f%%) are dated more than a year back, suggesting backdated entries",
					old, total, float64(old)*100/float64(total),
				),
				Value: float64(old),
			})
		}
	}

	if dueBeforeIssue > 0 {
		patterns = append(patterns, domain.Pattern{
			Type:        domain.PatternDateManipulation,
			Severity:    domain.SeverityHigh,
			Description: fmt.Sprintf("%d invoice(s) fall due before their issue date", dueBeforeIssue),
			Value:       float64(dueBeforeIssue),
		})
	}

	return patterns
}
