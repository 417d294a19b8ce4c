package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

// Companies are keyed per tenant: two tenants may register the same company
// ID without touching each other's rows.
const schemaCompanies = `
CREATE TABLE IF NOT EXISTS companies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    tax_number TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_companies_tenant ON companies(tenant_id);
`

// Transactions and invoices are windowed on created_at (entry time), not on
// their claimed document dates: the date-manipulation detector needs to see
// backdated and future-dated documents that were entered recently.
const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    company_id TEXT NOT NULL,
    date TIMESTAMP NOT NULL,
    amount REAL NOT NULL,
    counterparty_id TEXT,
    counterparty_tax_no TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_company ON transactions(tenant_id, company_id);
CREATE INDEX IF NOT EXISTS idx_transactions_entry ON transactions(tenant_id, company_id, created_at);
`

const schemaInvoices = `
CREATE TABLE IF NOT EXISTS invoices (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    company_id TEXT NOT NULL,
    invoice_number TEXT NOT NULL,
    issue_date TIMESTAMP NOT NULL,
    due_date TIMESTAMP,
    total_amount REAL NOT NULL,
    tax_amount REAL NOT NULL,
    counterparty_tax_number TEXT,
    counterparty_name TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_tenant ON invoices(tenant_id);
CREATE INDEX IF NOT EXISTS idx_invoices_company ON invoices(tenant_id, company_id);
CREATE INDEX IF NOT EXISTS idx_invoices_entry ON invoices(tenant_id, company_id, created_at);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    company_id TEXT NOT NULL,
    type TEXT NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    severity TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_tenant ON alerts(tenant_id);
CREATE INDEX IF NOT EXISTS idx_alerts_company ON alerts(tenant_id, company_id);
CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(tenant_id, company_id, type, status, created_at);
`

const schemaScreeningRules = `
CREATE TABLE IF NOT EXISTS screening_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_screening_rules_tenant ON screening_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_screening_rules_enabled ON screening_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCompanies,
		schemaTransactions,
		schemaInvoices,
		schemaAlerts,
		schemaScreeningRules,
	}
}
