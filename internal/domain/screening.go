package domain

import "time"

// ScreeningRule is a tenant-configured CEL expression evaluated against
// every transaction in the analysis window. Rules supplement the fixed
// detector pipeline; a rule that matches at least one transaction
// contributes a Pattern of type "other" with the rule's severity.
//
// Typical use is amount-threshold screening, e.g. the MASAK cash reporting
// threshold: `abs_amount >= 185000.0`.
type ScreeningRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Expression is a CEL expression returning bool. Available variables:
	// amount, abs_amount (double), counterparty_id (string),
	// hour, weekday (int).
	Expression string `json:"expression"`

	Severity Severity `json:"severity"`
	Enabled  bool     `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
