// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"time"
)

// Transaction is a single accounting transaction inside an analysis window.
// Amount is the signed total of the transaction's debit and credit line
// magnitudes, computed by the connector that loaded it. Records are
// immutable once loaded; detectors never mutate them.
type Transaction struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	CompanyID string `json:"companyId"`

	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`

	// CounterpartyID is empty when the transaction has no counterparty.
	CounterpartyID string `json:"counterpartyId,omitempty"`

	// CounterpartyTaxNo is filled by the connector when the counterparty is
	// a registered contact; empty otherwise.
	CounterpartyTaxNo string `json:"counterpartyTaxNo,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Invoice is a purchase or sales invoice inside an analysis window.
type Invoice struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	CompanyID string `json:"companyId"`

	// InvoiceNumber is vendor-assigned and may embed a numeric serial,
	// e.g. "FTR-2025-000981".
	InvoiceNumber string `json:"invoiceNumber"`

	IssueDate time.Time  `json:"issueDate"`
	DueDate   *time.Time `json:"dueDate,omitempty"`

	TotalAmount float64 `json:"totalAmount"`
	TaxAmount   float64 `json:"taxAmount"`

	CounterpartyTaxNumber string `json:"counterpartyTaxNumber,omitempty"`
	CounterpartyName      string `json:"counterpartyName,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// CompanyProfile identifies an analyzed company. TaxNumber is a Turkish
// VKN (10 digits) or TCKN (11 digits) and feeds the related-party detector.
type CompanyProfile struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	TaxNumber string    `json:"taxNumber"`
	CreatedAt time.Time `json:"createdAt"`
}
