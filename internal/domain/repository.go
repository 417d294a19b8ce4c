package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist for the given tenant.
// Cross-tenant lookups are indistinguishable from missing records.
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Company operations
	SaveCompany(ctx context.Context, tenantID string, company *CompanyProfile) error
	GetCompany(ctx context.Context, tenantID string, companyID string) (*CompanyProfile, error)

	// Dataset window queries (from inclusive, to exclusive)
	SaveTransactions(ctx context.Context, tenantID string, txs []*Transaction) error
	ListTransactions(ctx context.Context, tenantID, companyID string, from, to time.Time) ([]Transaction, error)
	SaveInvoices(ctx context.Context, tenantID string, invoices []*Invoice) error
	ListInvoices(ctx context.Context, tenantID, companyID string, from, to time.Time) ([]Invoice, error)

	// Alert operations
	SaveAlert(ctx context.Context, tenantID string, alert *Alert) error
	// FindRecentAlert returns the newest open or in_progress alert of the
	// given type created at or after since, or ErrNotFound.
	FindRecentAlert(ctx context.Context, tenantID, companyID, alertType string, since time.Time) (*Alert, error)
	ListAlerts(ctx context.Context, tenantID, companyID string) ([]Alert, error)

	// Screening rule operations
	SaveScreeningRule(ctx context.Context, tenantID string, rule *ScreeningRule) error
	ListScreeningRules(ctx context.Context, tenantID string) ([]*ScreeningRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
