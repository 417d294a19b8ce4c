// Package analyzer orchestrates the fraud pattern analysis pipeline: it
// loads a company's trailing dataset, runs the detectors, aggregates their
// findings into a FraudPatternResult, and optionally hands a non-empty
// result to the alert emitter boundary.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/screening"
)

// analysisWindowMonths is the trailing window length. Window queries select
// on record entry time, so backdated or future-dated document dates stay
// visible to the date-manipulation detector.
const analysisWindowMonths = 12

var tracer = otel.Tracer("kestrel-analyzer")

// AlertSink is the alert emitter boundary. The sink owns deduplication; the
// analyzer forwards every non-empty finding.
type AlertSink interface {
	Emit(ctx context.Context, alert *domain.Alert) error
}

// Analyzer runs the detector pipeline for one (tenant, company) pair at a
// time. It holds no per-analysis state and is safe for concurrent use.
type Analyzer struct {
	repo      domain.Repository
	sink      AlertSink
	screening *screening.Engine
	detectors []detect.Detector
}

// New creates an analyzer. sink may be nil when the caller never alerts;
// screeningEngine may be nil when no tenant screening rules are configured.
func New(repo domain.Repository, sink AlertSink, screeningEngine *screening.Engine) *Analyzer {
	return &Analyzer{
		repo:      repo,
		sink:      sink,
		screening: screeningEngine,
		detectors: detect.Pipeline(),
	}
}

// DetectFraudPatterns analyzes the company's trailing 12-month window as of
// now. It returns domain.ErrNotFound (wrapped) when the company does not
// belong to the tenant. An empty window is not an error: the result carries
// no patterns and all summary flags false.
func (a *Analyzer) DetectFraudPatterns(ctx context.Context, tenantID, companyID string) (*domain.FraudPatternResult, error) {
	return a.AnalyzeAt(ctx, tenantID, companyID, time.Now().UTC())
}

// AnalyzeAt is the deterministic core of DetectFraudPatterns: the window and
// every date comparison derive from asOf, never from the wall clock.
func (a *Analyzer) AnalyzeAt(ctx context.Context, tenantID, companyID string, asOf time.Time) (*domain.FraudPatternResult, error) {
	ctx, span := tracer.Start(ctx, "analyzer.AnalyzeAt",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("company.id", companyID),
		),
	)
	defer span.End()

	company, err := a.repo.GetCompany(ctx, tenantID, companyID)
	if err != nil {
		return nil, fmt.Errorf("load company %s: %w", companyID, err)
	}

	from := asOf.AddDate(0, -analysisWindowMonths, 0)

	txs, err := a.repo.ListTransactions(ctx, tenantID, companyID, from, asOf)
	if err != nil {
		return nil, fmt.Errorf("load transactions for %s: %w", companyID, err)
	}
	invoices, err := a.repo.ListInvoices(ctx, tenantID, companyID, from, asOf)
	if err != nil {
		return nil, fmt.Errorf("load invoices for %s: %w", companyID, err)
	}

	ds := &detect.Dataset{
		Company:      company,
		Transactions: txs,
		Invoices:     invoices,
		WindowStart:  from,
		WindowEnd:    asOf,
	}

	patterns := detect.Run(ds, a.detectors)
	if a.screening != nil {
		patterns = append(patterns, a.screening.Screen(tenantID, txs)...)
	}

	result := &domain.FraudPatternResult{
		CompanyID: companyID,
		Patterns:  patterns,
	}
	for _, p := range patterns {
		switch p.Type {
		case domain.PatternBenfordsLaw:
			result.BenfordsLawViolation = true
		case domain.PatternRoundNumber:
			result.RoundNumberSuspicious = true
		case domain.PatternUnusualTiming:
			result.UnusualTiming = true
		}
	}

	span.SetAttributes(
		attribute.Int("dataset.transactions", len(txs)),
		attribute.Int("dataset.invoices", len(invoices)),
		attribute.Int("patterns.count", len(patterns)),
	)

	return result, nil
}

// CheckAndAlertFraudPatterns analyzes the company and forwards a single
// alert to the sink when any pattern was found. Overall severity is high if
// any pattern is high, medium otherwise. The analysis result is returned
// either way so callers can report it.
func (a *Analyzer) CheckAndAlertFraudPatterns(ctx context.Context, tenantID, companyID string) (*domain.FraudPatternResult, error) {
	result, err := a.DetectFraudPatterns(ctx, tenantID, companyID)
	if err != nil {
		return nil, err
	}
	if len(result.Patterns) == 0 || a.sink == nil {
		return result, nil
	}

	descriptions := make([]string, len(result.Patterns))
	for i, p := range result.Patterns {
		descriptions[i] = p.Description
	}

	now := time.Now().UTC()
	alert := &domain.Alert{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		CompanyID: companyID,
		Type:      domain.AlertTypeFraudPattern,
		Title:     fmt.Sprintf("Suspicious bookkeeping patterns detected (%d finding(s))", len(result.Patterns)),
		Message:   strings.Join(descriptions, "; "),
		Severity:  result.OverallSeverity(),
		Status:    domain.AlertStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.sink.Emit(ctx, alert); err != nil {
		return nil, fmt.Errorf("emit alert for %s: %w", companyID, err)
	}
	return result, nil
}
