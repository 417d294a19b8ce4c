package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	crossCompanyMinInvoices     = 3
	crossCompanyIdenticalCount  = 5
	crossCompanyIntegralCount   = 10
	crossCompanyAmountTolerance = 1e-9
)

// CrossCompany flags counterparties billed with template-like invoices:
// many invoices for the identical amount, or long runs of exact-integer
// totals. Both are common in invoice mills and reciprocal billing schemes.
type CrossCompany struct{}

func (CrossCompany) Name() string { return "cross_company" }

func (CrossCompany) Detect(ds *Dataset) []domain.Pattern {
	groups := make(map[string][]domain.Invoice)
	for _, inv := range ds.Invoices {
		key := inv.CounterpartyTaxNumber
		if key == "" {
			key = inv.CounterpartyName
		}
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], inv)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var patterns []domain.Pattern
	for _, key := range keys {
		invoices := groups[key]
		if len(invoices) < crossCompanyMinInvoices {
			continue
		}

		if allIdenticalAmounts(invoices) && len(invoices) >= crossCompanyIdenticalCount {
			patterns = append(patterns, domain.Pattern{
				Type:     domain.PatternCrossCompany,
				Severity: domain.SeverityHigh,
				Description: fmt.Sprintf(
					"Counterparty %s: %d invoices all for the identical amount %.2f",
					key, len(invoices), invoices[0].TotalAmount,
				),
				Value: float64(len(invoices)),
			})
		} else if allIntegralAmounts(invoices) && len(invoices) >= crossCompanyIntegralCount {
			patterns = append(patterns, domain.Pattern{
				Type:     domain.PatternCrossCompany,
				Severity: domain.SeverityMedium,
				Description: fmt.Sprintf(
					"Counterparty %s: %d invoices, every total an exact integer",
					key, len(invoices),
				),
				Value: float64(len(invoices)),
			})
		}
	}

	return patterns
}

func allIdenticalAmounts(invoices []domain.Invoice) bool {
	first := invoices[0].TotalAmount
	for _, inv := range invoices[1:] {
		if math.Abs(inv.TotalAmount-first) > crossCompanyAmountTolerance {
			return false
		}
	}
	return true
}

func allIntegralAmounts(invoices []domain.Invoice) bool {
	for _, inv := range invoices {
		if inv.TotalAmount != math.Trunc(inv.TotalAmount) {
			return false
		}
	}
	return true
}
