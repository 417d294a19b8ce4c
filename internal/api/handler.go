package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/analyzer"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/screening"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	analyzer  *analyzer.Analyzer
	screening *screening.Engine
	analysis  domain.AnalysisConfig
	version   string

	// loadedTenants tracks tenants whose screening rules have been compiled
	// into the engine since startup.
	loadedTenants sync.Map
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, a *analyzer.Analyzer, screeningEngine *screening.Engine, analysisCfg domain.AnalysisConfig, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		analyzer:  a,
		screening: screeningEngine,
		analysis:  analysisCfg,
		version:   version,
	}
}

// CompanyRequest is the request body for POST /companies.
type CompanyRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	TaxNumber string `json:"taxNumber"`
}

// CreateCompany handles POST /companies.
func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.TaxNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and taxNumber are required",
		})
		return
	}

	company := &domain.CompanyProfile{
		ID:        req.ID,
		TenantID:  tenantID,
		Name:      req.Name,
		TaxNumber: req.TaxNumber,
		CreatedAt: time.Now().UTC(),
	}
	if company.ID == "" {
		company.ID = uuid.New().String()
	}

	if err := h.repo.SaveCompany(ctx, tenantID, company); err != nil {
		slog.Error("failed to save company", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save company",
		})
		return
	}

	slog.Info("company created", "company_id", company.ID, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, company)
}

// GetCompany handles GET /companies/{id}.
func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	companyID := chi.URLParam(r, "id")

	company, err := h.repo.GetCompany(ctx, tenantID, companyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "company not found",
			})
			return
		}
		slog.Error("failed to get company", "company_id", companyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get company",
		})
		return
	}

	writeJSON(w, http.StatusOK, company)
}

// TransactionRequest is one transaction in a batch ingest.
type TransactionRequest struct {
	ID                string    `json:"id,omitempty"`
	Date              time.Time `json:"date"`
	Amount            float64   `json:"amount"`
	CounterpartyID    string    `json:"counterpartyId,omitempty"`
	CounterpartyTaxNo string    `json:"counterpartyTaxNo,omitempty"`
}

// IngestTransactionsRequest is the request body for batch transaction ingest.
type IngestTransactionsRequest struct {
	Transactions []TransactionRequest `json:"transactions"`
}

// IngestTransactions handles POST /companies/{id}/transactions.
func (h *Handler) IngestTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	companyID := chi.URLParam(r, "id")

	if _, err := h.repo.GetCompany(ctx, tenantID, companyID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "company not found",
			})
			return
		}
		slog.Error("failed to get company", "company_id", companyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get company",
		})
		return
	}

	var req IngestTransactionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions must not be empty",
		})
		return
	}

	now := time.Now().UTC()
	txs := make([]*domain.Transaction, 0, len(req.Transactions))
	for _, t := range req.Transactions {
		if t.Date.IsZero() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "every transaction needs a date",
			})
			return
		}

		tx := &domain.Transaction{
			ID:                t.ID,
			TenantID:          tenantID,
			CompanyID:         companyID,
			Date:              t.Date,
			Amount:            t.Amount,
			CounterpartyID:    t.CounterpartyID,
			CounterpartyTaxNo: t.CounterpartyTaxNo,
			CreatedAt:         now,
		}
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		txs = append(txs, tx)
	}

	if err := h.repo.SaveTransactions(ctx, tenantID, txs); err != nil {
		slog.Error("failed to save transactions", "company_id", companyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save transactions",
		})
		return
	}

	h.invalidateResult(ctx, tenantID, companyID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"ingested": len(txs),
	})
}

// InvoiceRequest is one invoice in a batch ingest.
type InvoiceRequest struct {
	ID                    string     `json:"id,omitempty"`
	InvoiceNumber         string     `json:"invoiceNumber"`
	IssueDate             time.Time  `json:"issueDate"`
	DueDate               *time.Time `json:"dueDate,omitempty"`
	TotalAmount           float64    `json:"totalAmount"`
	TaxAmount             float64    `json:"taxAmount"`
	CounterpartyTaxNumber string     `json:"counterpartyTaxNumber,omitempty"`
	CounterpartyName      string     `json:"counterpartyName,omitempty"`
}

// IngestInvoicesRequest is the request body for batch invoice ingest.
type IngestInvoicesRequest struct {
	Invoices []InvoiceRequest `json:"invoices"`
}

// IngestInvoices handles POST /companies/{id}/invoices.
func (h *Handler) IngestInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	companyID := chi.URLParam(r, "id")

	if _, err := h.repo.GetCompany(ctx, tenantID, companyID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "company not found",
			})
			return
		}
		slog.Error("failed to get company", "company_id", companyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get company",
		})
		return
	}

	var req IngestInvoicesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Invoices) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invoices must not be empty",
		})
		return
	}

	now := time.Now().UTC()
	invoices := make([]*domain.Invoice, 0, len(req.Invoices))
	for _, in := range req.Invoices {
		if in.InvoiceNumber == "" || in.IssueDate.IsZero() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "every invoice needs an invoiceNumber and an issueDate",
			})
			return
		}

		inv := &domain.Invoice{
			ID:                    in.ID,
			TenantID:              tenantID,
			CompanyID:             companyID,
			InvoiceNumber:         in.InvoiceNumber,
			IssueDate:             in.IssueDate,
			DueDate:               in.DueDate,
			TotalAmount:           in.TotalAmount,
			TaxAmount:             in.TaxAmount,
			CounterpartyTaxNumber: in.CounterpartyTaxNumber,
			CounterpartyName:      in.CounterpartyName,
			CreatedAt:             now,
		}
		if inv.ID == "" {
			inv.ID = uuid.New().String()
		}
		invoices = append(invoices, inv)
	}

	if err := h.repo.SaveInvoices(ctx, tenantID, invoices); err != nil {
		slog.Error("failed to save invoices", "company_id", companyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save invoices",
		})
		return
	}

	h.invalidateResult(ctx, tenantID, companyID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"ingested": len(invoices),
	})
}

// Analyze handles POST /companies/{id}/analysis. It serves a cached result
// when one exists; otherwise it runs the detector pipeline synchronously and
// emits an alert when patterns were found.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	companyID := chi.URLParam(r, "id")

	if h.cache != nil {
		cached, err := h.cache.GetResult(ctx, tenantID, companyID)
		if err != nil {
			slog.Error("result cache lookup failed", "company_id", companyID, "error", err)
		}
		if cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	h.ensureScreeningRules(ctx, tenantID)

	result, err := h.analyzer.CheckAndAlertFraudPatterns(ctx, tenantID, companyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "company not found",
			})
			return
		}
		slog.Error("analysis failed", "company_id", companyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	if h.cache != nil && h.analysis.ResultCacheTTLSecs > 0 {
		ttl := time.Duration(h.analysis.ResultCacheTTLSecs) * time.Second
		if err := h.cache.SetResult(ctx, tenantID, companyID, result, ttl); err != nil {
			slog.Error("failed to cache result", "company_id", companyID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// AnalyzeAsync handles POST /companies/{id}/analysis/async. It enqueues the
// request on the event bus and returns immediately.
func (h *Handler) AnalyzeAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	companyID := chi.URLParam(r, "id")

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	if _, err := h.repo.GetCompany(ctx, tenantID, companyID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "company not found",
			})
			return
		}
		slog.Error("failed to get company", "company_id", companyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get company",
		})
		return
	}

	// The worker shares the screening engine, so compile the tenant's rules
	// before the request is picked up.
	h.ensureScreeningRules(ctx, tenantID)

	req := worker.AnalysisRequest{
		CompanyID: companyID,
		TenantID:  tenantID,
		TraceID:   GetTraceID(ctx),
	}
	payload, _ := json.Marshal(req)

	if err := h.bus.Publish(ctx, tenantID, domain.TopicAnalysisRequested, payload); err != nil {
		slog.Error("failed to publish analysis request", "company_id", companyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to enqueue analysis",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"companyId": companyID,
	})
}

// ListAlerts handles GET /alerts. An optional companyId query parameter
// scopes the listing.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	companyID := r.URL.Query().Get("companyId")

	alerts, err := h.repo.ListAlerts(ctx, tenantID, companyID)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ListScreeningRules handles GET /screening-rules.
func (h *Handler) ListScreeningRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	rules, err := h.repo.ListScreeningRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list screening rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list screening rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// ScreeningRuleRequest is the request body for creating a screening rule.
type ScreeningRuleRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Expression  string          `json:"expression"`
	Severity    domain.Severity `json:"severity,omitempty"`
	Enabled     bool            `json:"enabled"`
}

// CreateScreeningRule handles POST /screening-rules. The CEL expression is
// validated before the rule is persisted; enabled rules are compiled into
// the engine immediately.
func (h *Handler) CreateScreeningRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ScreeningRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}

	rule := &domain.ScreeningRule{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    severity,
		Enabled:     req.Enabled,
	}

	if err := h.screening.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveScreeningRule(ctx, tenantID, rule); err != nil {
		slog.Error("failed to save screening rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save screening rule",
		})
		return
	}

	if rule.Enabled {
		if err := h.screening.LoadRule(rule); err != nil {
			slog.Error("failed to load screening rule", "id", rule.ID, "error", err)
		}
	}

	slog.Info("screening rule created", "id", rule.ID, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, rule)
}

// ReloadScreeningRules handles POST /screening-rules/reload. It replaces the
// tenant's compiled rules with the enabled set from the database.
func (h *Handler) ReloadScreeningRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	rules, err := h.repo.ListScreeningRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list screening rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load screening rules from database",
		})
		return
	}

	if err := h.screening.ReloadRules(tenantID, rules); err != nil {
		slog.Error("failed to reload screening rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload screening rules: " + err.Error(),
		})
		return
	}
	h.loadedTenants.Store(tenantID, true)

	slog.Info("screening rules reloaded", "tenant_id", tenantID, "count", len(rules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "screening rules reloaded successfully",
		"count":   len(rules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ensureScreeningRules compiles the tenant's persisted rules into the engine
// the first time the tenant analyzes after startup.
func (h *Handler) ensureScreeningRules(ctx context.Context, tenantID string) {
	if h.screening == nil {
		return
	}
	if _, ok := h.loadedTenants.Load(tenantID); ok {
		return
	}

	rules, err := h.repo.ListScreeningRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to load screening rules", "tenant_id", tenantID, "error", err)
		return
	}
	if err := h.screening.ReloadRules(tenantID, rules); err != nil {
		slog.Error("failed to compile screening rules", "tenant_id", tenantID, "error", err)
		return
	}
	h.loadedTenants.Store(tenantID, true)
}

// invalidateResult drops the company's cached analysis result after ingest.
func (h *Handler) invalidateResult(ctx context.Context, tenantID, companyID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateResult(ctx, tenantID, companyID); err != nil {
		slog.Error("failed to invalidate cached result",
			"company_id", companyID,
			"error", err,
		)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
