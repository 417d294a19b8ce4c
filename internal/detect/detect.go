// Package detect implements the fraud pattern detectors.
//
// Every detector is a pure function over an immutable Dataset: no shared
// state, no wall-clock reads (WindowEnd is the only time reference), no
// randomness. Given the same dataset, a detector always emits the same
// patterns in the same order, which keeps full analysis results comparable
// across runs.
package detect

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Dataset is the normalized in-memory view of one company's trailing
// analysis window. Detectors read it and never mutate it.
type Dataset struct {
	Company      *domain.CompanyProfile
	Transactions []domain.Transaction
	Invoices     []domain.Invoice

	// WindowStart and WindowEnd bound the analysis window. WindowEnd doubles
	// as "now" for the date checks so that analyses are reproducible.
	WindowStart time.Time
	WindowEnd   time.Time
}

// Detector inspects a dataset and emits zero or more patterns.
type Detector interface {
	Name() string
	Detect(ds *Dataset) []domain.Pattern
}

// Pipeline returns all detectors in their fixed execution order. The order
// determines pattern ordering in results and must not change between
// releases.
func Pipeline() []Detector {
	return []Detector{
		Benford{},
		RoundNumber{},
		Timing{},
		Circular{},
		VAT{},
		InvoiceSequence{},
		DateManipulation{},
		RelatedParty{},
		CrossCompany{},
	}
}

// Run executes the detectors in order and concatenates their patterns.
// A detector that panics is isolated: it contributes a single diagnostic
// pattern instead of aborting the remaining detectors.
func Run(ds *Dataset, detectors []Detector) []domain.Pattern {
	patterns := make([]domain.Pattern, 0)
	for _, d := range detectors {
		patterns = append(patterns, runIsolated(ds, d)...)
	}
	return patterns
}

func runIsolated(ds *Dataset, d Detector) (out []domain.Pattern) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("detector panicked",
				"detector", d.Name(),
				"error", r,
			)
			out = []domain.Pattern{{
				Type:        domain.PatternOther,
				Severity:    domain.SeverityLow,
				Description: fmt.Sprintf("detector %s failed: %v", d.Name(), r),
			}}
		}
	}()
	return d.Detect(ds)
}
