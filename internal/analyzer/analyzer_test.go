package analyzer

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/screening"
)

// fakeRepo serves a fixed company with a canned dataset and records the
// window bounds of the last list call.
type fakeRepo struct {
	company  *domain.CompanyProfile
	txs      []domain.Transaction
	invoices []domain.Invoice

	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeRepo) SaveCompany(ctx context.Context, tenantID string, c *domain.CompanyProfile) error {
	return nil
}

func (f *fakeRepo) GetCompany(ctx context.Context, tenantID, companyID string) (*domain.CompanyProfile, error) {
	if f.company == nil || f.company.ID != companyID || f.company.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return f.company, nil
}

func (f *fakeRepo) SaveTransactions(ctx context.Context, tenantID string, txs []*domain.Transaction) error {
	return nil
}

func (f *fakeRepo) ListTransactions(ctx context.Context, tenantID, companyID string, from, to time.Time) ([]domain.Transaction, error) {
	f.lastFrom, f.lastTo = from, to
	return f.txs, nil
}

func (f *fakeRepo) SaveInvoices(ctx context.Context, tenantID string, invoices []*domain.Invoice) error {
	return nil
}

func (f *fakeRepo) ListInvoices(ctx context.Context, tenantID, companyID string, from, to time.Time) ([]domain.Invoice, error) {
	return f.invoices, nil
}

func (f *fakeRepo) SaveAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	return nil
}

func (f *fakeRepo) FindRecentAlert(ctx context.Context, tenantID, companyID, alertType string, since time.Time) (*domain.Alert, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) ListAlerts(ctx context.Context, tenantID, companyID string) ([]domain.Alert, error) {
	return nil, nil
}

func (f *fakeRepo) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	return nil
}

func (f *fakeRepo) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	return nil, nil
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

// fakeSink records emitted alerts.
type fakeSink struct {
	alerts []*domain.Alert
	err    error
}

func (f *fakeSink) Emit(ctx context.Context, alert *domain.Alert) error {
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, alert)
	return nil
}

func newTestRepo() *fakeRepo {
	return &fakeRepo{
		company: &domain.CompanyProfile{
			ID:        "company-001",
			TenantID:  "tenant-001",
			Name:      "Test Company A.S.",
			TaxNumber: "1234567890",
		},
	}
}

func roundTransactions(n int) []domain.Transaction {
	base := time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC) // mid-month Wednesday
	txs := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, domain.Transaction{
			ID:     "tx-" + string(rune('a'+i)),
			Date:   base.AddDate(0, 0, i%5),
			Amount: float64((i + 1) * 1000),
		})
	}
	return txs
}

func TestDetectFraudPatterns(t *testing.T) {
	ctx := context.Background()

	t.Run("CompanyNotFound", func(t *testing.T) {
		a := New(newTestRepo(), nil, nil)

		_, err := a.DetectFraudPatterns(ctx, "tenant-001", "no-such-company")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CrossTenantLookupIsNotFound", func(t *testing.T) {
		a := New(newTestRepo(), nil, nil)

		_, err := a.DetectFraudPatterns(ctx, "tenant-002", "company-001")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for foreign tenant, got %v", err)
		}
	})

	t.Run("EmptyWindow", func(t *testing.T) {
		a := New(newTestRepo(), nil, nil)

		result, err := a.DetectFraudPatterns(ctx, "tenant-001", "company-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Patterns) != 0 {
			t.Errorf("expected no patterns for empty window, got %v", result.Patterns)
		}
		if result.BenfordsLawViolation || result.RoundNumberSuspicious || result.UnusualTiming {
			t.Error("expected all summary flags false for empty window")
		}
		if result.CompanyID != "company-001" {
			t.Errorf("expected companyId in result, got %q", result.CompanyID)
		}
	})

	t.Run("SummaryFlagsFollowPatterns", func(t *testing.T) {
		repo := newTestRepo()
		repo.txs = roundTransactions(10)
		a := New(repo, nil, nil)

		result, err := a.DetectFraudPatterns(ctx, "tenant-001", "company-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.RoundNumberSuspicious {
			t.Error("expected roundNumberSuspicious for all-round amounts")
		}
		if result.BenfordsLawViolation {
			t.Error("benford flag should stay false below the minimum sample")
		}
		if result.UnusualTiming {
			t.Error("timing flag should stay false for business-hour weekdays")
		}
	})
}

func TestAnalyzeAt(t *testing.T) {
	ctx := context.Background()

	t.Run("WindowBounds", func(t *testing.T) {
		repo := newTestRepo()
		a := New(repo, nil, nil)

		asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
		if _, err := a.AnalyzeAt(ctx, "tenant-001", "company-001", asOf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantFrom := asOf.AddDate(0, -12, 0)
		if !repo.lastFrom.Equal(wantFrom) {
			t.Errorf("window start = %v, want %v", repo.lastFrom, wantFrom)
		}
		if !repo.lastTo.Equal(asOf) {
			t.Errorf("window end = %v, want %v", repo.lastTo, asOf)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		repo := newTestRepo()
		repo.txs = roundTransactions(10)
		repo.invoices = []domain.Invoice{
			{InvoiceNumber: "INV-001", IssueDate: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC), TotalAmount: 1180, TaxAmount: 180},
			{InvoiceNumber: "INV-001", IssueDate: time.Date(2025, 3, 13, 10, 0, 0, 0, time.UTC), TotalAmount: 1180, TaxAmount: 180},
		}
		a := New(repo, nil, nil)

		asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
		first, err := a.AnalyzeAt(ctx, "tenant-001", "company-001", asOf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := a.AnalyzeAt(ctx, "tenant-001", "company-001", asOf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(first.Patterns) == 0 {
			t.Fatal("expected patterns from the loaded dataset")
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("expected identical results for the same asOf:\nfirst:  %+v\nsecond: %+v", first, second)
		}
	})
}

func TestCheckAndAlertFraudPatterns(t *testing.T) {
	ctx := context.Background()

	t.Run("AlertCarriesSeverityRollUp", func(t *testing.T) {
		repo := newTestRepo()
		repo.txs = roundTransactions(10) // 100% round share is high severity
		sink := &fakeSink{}
		a := New(repo, sink, nil)

		result, err := a.CheckAndAlertFraudPatterns(ctx, "tenant-001", "company-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Patterns) == 0 {
			t.Fatal("expected patterns")
		}
		if len(sink.alerts) != 1 {
			t.Fatalf("expected 1 alert, got %d", len(sink.alerts))
		}

		alert := sink.alerts[0]
		if alert.Type != domain.AlertTypeFraudPattern {
			t.Errorf("alert type = %s, want %s", alert.Type, domain.AlertTypeFraudPattern)
		}
		if alert.Severity != domain.SeverityHigh {
			t.Errorf("alert severity = %s, want high", alert.Severity)
		}
		if alert.Status != domain.AlertStatusOpen {
			t.Errorf("alert status = %s, want open", alert.Status)
		}
		if alert.Message == "" {
			t.Error("alert message should carry the pattern descriptions")
		}
	})

	t.Run("NoPatternsNoAlert", func(t *testing.T) {
		repo := newTestRepo()
		sink := &fakeSink{}
		a := New(repo, sink, nil)

		result, err := a.CheckAndAlertFraudPatterns(ctx, "tenant-001", "company-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Patterns) != 0 {
			t.Errorf("expected no patterns, got %v", result.Patterns)
		}
		if len(sink.alerts) != 0 {
			t.Errorf("expected no alerts, got %d", len(sink.alerts))
		}
	})

	t.Run("NilSinkStillReturnsResult", func(t *testing.T) {
		repo := newTestRepo()
		repo.txs = roundTransactions(10)
		a := New(repo, nil, nil)

		result, err := a.CheckAndAlertFraudPatterns(ctx, "tenant-001", "company-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Patterns) == 0 {
			t.Error("expected patterns even without a sink")
		}
	})

	t.Run("SinkErrorPropagates", func(t *testing.T) {
		repo := newTestRepo()
		repo.txs = roundTransactions(10)
		sink := &fakeSink{err: errors.New("sink down")}
		a := New(repo, sink, nil)

		if _, err := a.CheckAndAlertFraudPatterns(ctx, "tenant-001", "company-001"); err == nil {
			t.Error("expected sink error to propagate")
		}
	})
}

func TestScreeningRulesContribute(t *testing.T) {
	ctx := context.Background()

	engine, err := screening.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "threshold-001",
		TenantID:   "tenant-001",
		Name:       "Reporting threshold",
		Expression: "abs_amount >= 5000.0",
		Severity:   domain.SeverityHigh,
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	repo := newTestRepo()
	repo.txs = []domain.Transaction{
		{ID: "tx-1", Date: time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC), Amount: 6200.50},
		{ID: "tx-2", Date: time.Date(2025, 3, 13, 14, 0, 0, 0, time.UTC), Amount: 1234.56},
	}
	a := New(repo, nil, engine)

	result, err := a.DetectFraudPatterns(ctx, "tenant-001", "company-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var matched *domain.Pattern
	for i := range result.Patterns {
		if result.Patterns[i].Type == domain.PatternOther {
			matched = &result.Patterns[i]
		}
	}
	if matched == nil {
		t.Fatalf("expected a screening pattern, got %v", result.Patterns)
	}
	if matched.Value != 1 {
		t.Errorf("expected 1 matched transaction, got %.0f", matched.Value)
	}
	if matched.Severity != domain.SeverityHigh {
		t.Errorf("expected rule severity high, got %s", matched.Severity)
	}
	// Screening patterns never flip the summary flags.
	if result.BenfordsLawViolation || result.RoundNumberSuspicious || result.UnusualTiming {
		t.Error("screening matches must not set detector summary flags")
	}
}
