package detect

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// taxPrefixLen is how many leading digits of a Turkish tax number must match
// the company's own to count as a related party. Tax office assignment makes
// shared prefixes a usable proxy for common registration.
const taxPrefixLen = 6

// RelatedParty flags counterparties whose tax numbers share the company's
// tax number prefix, excluding the company itself.
type RelatedParty struct{}

func (RelatedParty) Name() string { return "related_party" }

func (RelatedParty) Detect(ds *Dataset) []domain.Pattern {
	if ds.Company == nil || len(ds.Company.TaxNumber) < taxPrefixLen {
		return nil
	}
	own := ds.Company.TaxNumber
	prefix := own[:taxPrefixLen]

	seen := make(map[string]struct{})
	matches := 0
	check := func(taxNo string) {
		if len(taxNo) < taxPrefixLen || taxNo == own {
			return
		}
		if _, dup := seen[taxNo]; dup {
			return
		}
		seen[taxNo] = struct{}{}
		if taxNo[:taxPrefixLen] == prefix {
			matches++
		}
	}

	for _, tx := range ds.Transactions {
		check(tx.CounterpartyTaxNo)
	}
	for _, inv := range ds.Invoices {
		check(inv.CounterpartyTaxNumber)
	}

	if matches == 0 {
		return nil
	}

	return []domain.Pattern{{
		Type:     domain.PatternRelatedParty,
		Severity: domain.SeverityMedium,
		Description: fmt.Sprintf(
			"%d counterparty tax number(s) share the company's %d-digit tax prefix",
			matches, taxPrefixLen,
		),
		Value: float64(matches),
	}}
}
