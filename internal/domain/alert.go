package domain

import "time"

// Alert statuses. Dedup in the emitter only considers open and in_progress
// alerts; resolved or dismissed alerts never suppress a new one.
const (
	AlertStatusOpen       = "open"
	AlertStatusInProgress = "in_progress"
	AlertStatusResolved   = "resolved"
	AlertStatusDismissed  = "dismissed"
)

// AlertTypeFraudPattern is the alert type emitted by the fraud engine.
const AlertTypeFraudPattern = "FRAUD_PATTERN"

// Alert is a persisted finding handed to the alerting subsystem.
type Alert struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	CompanyID string `json:"companyId"`

	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Status   string   `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
