package detect

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Legal Turkish VAT (KDV) rates as fractions of the net amount. 18% remains
// in the set alongside its 2023 replacement 20% because trailing windows
// still contain invoices issued under the old rate.
var legalVATRates = []float64{0, 0.01, 0.10, 0.18, 0.20}

const (
	vatRateTolerance = 0.005

	vatFlaggedRatio     = 0.10
	vatFlaggedHighRatio = 0.20

	vatIntegralTotalsRatio = 0.40
)

// VAT flags invoices whose implied tax rate matches no legal Turkish rate,
// and datasets with an implausibly high share of exactly-integral totals.
type VAT struct{}

func (VAT) Name() string { return "vat" }

func (VAT) Detect(ds *Dataset) []domain.Pattern {
	total := len(ds.Invoices)
	if total == 0 {
		return nil
	}

	flagged := 0
	integral := 0
	for _, inv := range ds.Invoices {
		net := inv.TotalAmount - inv.TaxAmount
		if net > 0 && !isLegalVATRate(inv.TaxAmount/net) {
			flagged++
		}
		if inv.TotalAmount == math.Trunc(inv.TotalAmount) {
			integral++
		}
	}

	var patterns []domain.Pattern

	if ratio := float64(flagged) / float64(total); ratio > vatFlaggedRatio {
		severity := domain.SeverityMedium
		if ratio > vatFlaggedHighRatio {
			severity = domain.SeverityHigh
		}
		patterns = append(patterns, domain.Pattern{
			Type:     domain.PatternVAT,
			Severity: severity,
			Description: fmt.Sprintf(
				"%d of %d invoices (%.1f%%) carry a tax rate outside the legal VAT set",
				flagged, total, ratio*100,
			),
			Value: ratio * 100,
		})
	}

	if ratio := float64(integral) / float64(total); ratio > vatIntegralTotalsRatio {
		patterns = append(patterns, domain.Pattern{
			Type:     domain.PatternVAT,
			Severity: domain.SeverityMedium,
			Description: fmt.Sprintf(
				"%d of %d invoices (%.1f%%) have exactly-integral totals, an unusually high rounding incidence",
				integral, total, ratio*100,
			),
			Value: ratio * 100,
		})
	}

	return patterns
}

func isLegalVATRate(rate float64) bool {
	for _, legal := range legalVATRates {
		if math.Abs(rate-legal) <= vatRateTolerance {
			return true
		}
	}
	return false
}
