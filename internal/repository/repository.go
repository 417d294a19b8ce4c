// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrInvalidInput marks malformed arguments such as a missing tenant ID.
var ErrInvalidInput = errors.New("invalid input")

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCompany stores a company profile with tenant isolation.
func (r *SQLRepository) SaveCompany(ctx context.Context, tenantID string, company *domain.CompanyProfile) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO companies (id, tenant_id, name, tax_number, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			tax_number = excluded.tax_number
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		company.ID, tenantID, company.Name, company.TaxNumber, company.CreatedAt,
	)
	return err
}

// GetCompany retrieves a company profile with tenant isolation.
// Returns domain.ErrNotFound when the company does not belong to the tenant.
func (r *SQLRepository) GetCompany(ctx context.Context, tenantID string, companyID string) (*domain.CompanyProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, tax_number, created_at
		FROM companies
		WHERE tenant_id = ? AND id = ?
	`

	var c domain.CompanyProfile
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, companyID).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.TaxNumber, &c.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// SaveTransactions stores a batch of transactions with tenant isolation.
func (r *SQLRepository) SaveTransactions(ctx context.Context, tenantID string, txs []*domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO transactions (
			id, tenant_id, company_id, date, amount,
			counterparty_id, counterparty_tax_no, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, tx := range txs {
		if _, err := dbTx.ExecContext(ctx, query,
			tx.ID, tenantID, tx.CompanyID, tx.Date, tx.Amount,
			tx.CounterpartyID, tx.CounterpartyTaxNo, tx.CreatedAt,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// ListTransactions retrieves a company's transactions entered within
// [from, to), ordered by document date for deterministic analysis.
func (r *SQLRepository) ListTransactions(ctx context.Context, tenantID, companyID string, from, to time.Time) ([]domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, company_id, date, amount,
			   counterparty_id, counterparty_tax_no, created_at
		FROM transactions
		WHERE tenant_id = ? AND company_id = ?
		  AND created_at >= ? AND created_at < ?
		ORDER BY date, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var counterpartyID, counterpartyTaxNo sql.NullString

		if err := rows.Scan(
			&tx.ID, &tx.TenantID, &tx.CompanyID, &tx.Date, &tx.Amount,
			&counterpartyID, &counterpartyTaxNo, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		tx.CounterpartyID = counterpartyID.String
		tx.CounterpartyTaxNo = counterpartyTaxNo.String
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

// SaveInvoices stores a batch of invoices with tenant isolation.
func (r *SQLRepository) SaveInvoices(ctx context.Context, tenantID string, invoices []*domain.Invoice) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(invoices) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO invoices (
			id, tenant_id, company_id, invoice_number, issue_date, due_date,
			total_amount, tax_amount, counterparty_tax_number, counterparty_name,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, inv := range invoices {
		var dueDate sql.NullTime
		if inv.DueDate != nil {
			dueDate = sql.NullTime{Time: *inv.DueDate, Valid: true}
		}

		if _, err := dbTx.ExecContext(ctx, query,
			inv.ID, tenantID, inv.CompanyID, inv.InvoiceNumber, inv.IssueDate, dueDate,
			inv.TotalAmount, inv.TaxAmount, inv.CounterpartyTaxNumber, inv.CounterpartyName,
			inv.CreatedAt,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// ListInvoices retrieves a company's invoices entered within [from, to),
// ordered by issue date for deterministic analysis.
func (r *SQLRepository) ListInvoices(ctx context.Context, tenantID, companyID string, from, to time.Time) ([]domain.Invoice, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, company_id, invoice_number, issue_date, due_date,
			   total_amount, tax_amount, counterparty_tax_number, counterparty_name,
			   created_at
		FROM invoices
		WHERE tenant_id = ? AND company_id = ?
		  AND created_at >= ? AND created_at < ?
		ORDER BY issue_date, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		var inv domain.Invoice
		var dueDate sql.NullTime
		var cpTaxNumber, cpName sql.NullString

		if err := rows.Scan(
			&inv.ID, &inv.TenantID, &inv.CompanyID, &inv.InvoiceNumber, &inv.IssueDate, &dueDate,
			&inv.TotalAmount, &inv.TaxAmount, &cpTaxNumber, &cpName,
			&inv.CreatedAt,
		); err != nil {
			return nil, err
		}

		if dueDate.Valid {
			d := dueDate.Time
			inv.DueDate = &d
		}
		inv.CounterpartyTaxNumber = cpTaxNumber.String
		inv.CounterpartyName = cpName.String
		invoices = append(invoices, inv)
	}

	return invoices, rows.Err()
}

// SaveAlert stores an alert with tenant isolation.
func (r *SQLRepository) SaveAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, tenant_id, company_id, type, title, message,
			severity, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.CompanyID, alert.Type, alert.Title, alert.Message,
		string(alert.Severity), alert.Status, alert.CreatedAt, alert.UpdatedAt,
	)
	return err
}

// FindRecentAlert returns the newest open or in_progress alert of the given
// type created at or after since, or domain.ErrNotFound.
func (r *SQLRepository) FindRecentAlert(ctx context.Context, tenantID, companyID, alertType string, since time.Time) (*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, company_id, type, title, message,
			   severity, status, created_at, updated_at
		FROM alerts
		WHERE tenant_id = ? AND company_id = ? AND type = ?
		  AND status IN (?, ?)
		  AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var a domain.Alert
	var severity string
	err := r.db.QueryRowContext(ctx, r.rebind(query),
		tenantID, companyID, alertType,
		domain.AlertStatusOpen, domain.AlertStatusInProgress,
		since,
	).Scan(
		&a.ID, &a.TenantID, &a.CompanyID, &a.Type, &a.Title, &a.Message,
		&severity, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Severity = domain.Severity(severity)
	return &a, nil
}

// ListAlerts retrieves alerts for a tenant, optionally scoped to a company.
func (r *SQLRepository) ListAlerts(ctx context.Context, tenantID, companyID string) ([]domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, company_id, type, title, message,
			   severity, status, created_at, updated_at
		FROM alerts
		WHERE tenant_id = ?
	`
	args := []any{tenantID}
	if companyID != "" {
		query += ` AND company_id = ?`
		args = append(args, companyID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var severity string

		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.CompanyID, &a.Type, &a.Title, &a.Message,
			&severity, &a.Status, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}

		a.Severity = domain.Severity(severity)
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// SaveScreeningRule stores a screening rule with tenant isolation.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screening_rules (
			id, tenant_id, name, description, expression, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Expression, string(rule.Severity), enabled,
		now, now,
	)
	return err
}

// ListScreeningRules retrieves all enabled screening rules for a tenant.
func (r *SQLRepository) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, severity, enabled, created_at, updated_at
		FROM screening_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreeningRule
	for rows.Next() {
		var rule domain.ScreeningRule
		var description sql.NullString
		var severity string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &description,
			&rule.Expression, &severity, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Severity = domain.Severity(severity)
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
