package domain

// PatternType tags a detected fraud pattern. The set is closed: detectors
// emit exactly these values, and the alerting subsystem keys dedup on them.
type PatternType string

const (
	PatternBenfordsLaw         PatternType = "benfords_law"
	PatternRoundNumber         PatternType = "round_number"
	PatternUnusualTiming       PatternType = "unusual_timing"
	PatternCircularTransaction PatternType = "circular_transaction"
	PatternVAT                 PatternType = "vat_pattern"
	PatternInvoiceAnomaly      PatternType = "invoice_anomaly"
	PatternDateManipulation    PatternType = "date_manipulation"
	PatternRelatedParty        PatternType = "related_party"
	PatternCrossCompany        PatternType = "cross_company"

	// PatternOther carries diagnostics (a detector that failed mid-run) and
	// matches from tenant-configured screening rules.
	PatternOther PatternType = "other"
)

// Severity ranks a pattern or an alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Pattern is a single finding produced by a detector.
type Pattern struct {
	Type        PatternType `json:"type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`

	// Value is the supporting metric for the finding (chi-square statistic,
	// percentage, count). Zero when the detector has no metric to report.
	Value float64 `json:"value,omitempty"`
}

// FraudPatternResult is the outcome of one analysis call. It contains only
// data derived from the input dataset, so two analyses over the same window
// compare equal.
type FraudPatternResult struct {
	CompanyID string `json:"companyId"`

	BenfordsLawViolation  bool `json:"benfordsLawViolation"`
	RoundNumberSuspicious bool `json:"roundNumberSuspicious"`
	UnusualTiming         bool `json:"unusualTiming"`

	Patterns []Pattern `json:"patterns"`
}

// OverallSeverity rolls pattern severities up for alerting: high if any
// pattern is high, medium otherwise. Callers must not invoke it on an empty
// pattern list.
func (r *FraudPatternResult) OverallSeverity() Severity {
	for _, p := range r.Patterns {
		if p.Severity == SeverityHigh {
			return SeverityHigh
		}
	}
	return SeverityMedium
}
