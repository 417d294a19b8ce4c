package detect

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	// sequenceGapSize is the serial jump between consecutive invoices that
	// counts as a large gap.
	sequenceGapSize = 10

	// sequenceGapRatio is the share of consecutive pairs with large gaps
	// above which the dataset is flagged.
	sequenceGapRatio = 0.10
)

var invoiceSerialRe = regexp.MustCompile(`(\d+)$`)

// InvoiceSequence checks the numeric serials embedded in invoice numbers for
// gaps (skipped or suppressed invoices) and exact duplicates. Invoices
// without a parseable numeric suffix are skipped for the gap check but still
// participate in duplicate detection.
type InvoiceSequence struct{}

func (InvoiceSequence) Name() string { return "invoice_sequence" }

func (InvoiceSequence) Detect(ds *Dataset) []domain.Pattern {
	var patterns []domain.Pattern

	if p, ok := detectSerialGaps(ds.Invoices); ok {
		patterns = append(patterns, p)
	}
	if p, ok := detectDuplicateNumbers(ds.Invoices); ok {
		patterns = append(patterns, p)
	}
	return patterns
}

type serialEntry struct {
	number string
	serial int64
	inv    domain.Invoice
}

func detectSerialGaps(invoices []domain.Invoice) (domain.Pattern, bool) {
	var entries []serialEntry
	for _, inv := range invoices {
		if inv.IssueDate.IsZero() {
			continue
		}
		m := invoiceSerialRe.FindStringSubmatch(inv.InvoiceNumber)
		if m == nil {
			continue
		}
		serial, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			// Suffix too long to be a serial; skip the record, not the run.
			continue
		}
		entries = append(entries, serialEntry{number: inv.InvoiceNumber, serial: serial, inv: inv})
	}

	if len(entries) < 2 {
		return domain.Pattern{}, false
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].inv.IssueDate.Equal(entries[j].inv.IssueDate) {
			return entries[i].inv.IssueDate.Before(entries[j].inv.IssueDate)
		}
		return entries[i].number < entries[j].number
	})

	pairs := len(entries) - 1
	largeGaps := 0
	for i := 0; i < pairs; i++ {
		gap := entries[i+1].serial - entries[i].serial
		if gap < 0 {
			gap = -gap
		}
		if gap > sequenceGapSize {
			largeGaps++
		}
	}

	if float64(largeGaps)/float64(pairs) <= sequenceGapRatio {
		return domain.Pattern{}, false
	}

	return domain.Pattern{
		Type:     domain.PatternInvoiceAnomaly,
		Severity: domain.SeverityMedium,
		Description: fmt.Sprintf(
			"%d of %d consecutive invoice pairs jump more than %d serials",
			largeGaps, pairs, sequenceGapSize,
		),
		Value: float64(largeGaps),
	}, true
}

func detectDuplicateNumbers(invoices []domain.Invoice) (domain.Pattern, bool) {
	counts := make(map[string]int)
	for _, inv := range invoices {
		if inv.InvoiceNumber == "" {
			continue
		}
		counts[inv.InvoiceNumber]++
	}

	duplicateGroups := 0
	for _, c := range counts {
		if c > 1 {
			duplicateGroups++
		}
	}
	if duplicateGroups == 0 {
		return domain.Pattern{}, false
	}

	return domain.Pattern{
		Type:     domain.PatternInvoiceAnomaly,
		Severity: domain.SeverityHigh,
		Description: fmt.Sprintf(
			"%d invoice number(s) appear on more than one invoice",
			duplicateGroups,
		),
		Value: float64(duplicateGroups),
	}, true
}
