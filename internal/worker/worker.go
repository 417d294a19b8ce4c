// Package worker provides async analysis processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/analyzer"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Worker consumes analysis requests from the EventBus and runs the
// detector pipeline for the requested company.
type Worker struct {
	bus      domain.EventBus
	cache    domain.Cache
	analyzer *analyzer.Analyzer

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// ResultCacheTTL is how long completed results stay cached.
	ResultCacheTTL time.Duration
}

// NewWorker creates a new async worker. cache may be nil; results are then
// not cached.
func NewWorker(bus domain.EventBus, cache domain.Cache, a *analyzer.Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		cache:    cache,
		analyzer: a,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing analysis requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker(cfg)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID, cfg); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes requests from every tenant.
func (w *Worker) startGlobalWorker(cfg Config) error {
	sub, err := w.bus.Subscribe(w.ctx, domain.GlobalTenantID, domain.TopicAnalysisRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, msg.TenantID, msg, cfg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string, cfg Config) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAnalysisRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, tenantID, msg, cfg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAnalysisRequested,
	)

	return nil
}

// AnalysisRequest is the message payload for an async analysis request.
type AnalysisRequest struct {
	CompanyID string `json:"companyId"`
	TenantID  string `json:"tenantId"`
	TraceID   string `json:"traceId,omitempty"`
}

// AnalysisCompleted is published after a request has been processed.
type AnalysisCompleted struct {
	CompanyID string                     `json:"companyId"`
	TraceID   string                     `json:"traceId,omitempty"`
	Result    *domain.FraudPatternResult `json:"result"`
}

// processRequest runs the full analysis pipeline for one request.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message, cfg Config) error {
	start := time.Now()

	var req AnalysisRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse analysis request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing analysis request",
		"company_id", req.CompanyID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	result, err := w.analyzer.CheckAndAlertFraudPatterns(ctx, tenantID, req.CompanyID)
	if err != nil {
		slog.Error("analysis failed",
			"company_id", req.CompanyID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	if w.cache != nil && cfg.ResultCacheTTL > 0 {
		if err := w.cache.SetResult(ctx, tenantID, req.CompanyID, result, cfg.ResultCacheTTL); err != nil {
			slog.Error("failed to cache analysis result",
				"company_id", req.CompanyID,
				"error", err,
			)
		}
	}

	completed := AnalysisCompleted{
		CompanyID: req.CompanyID,
		TraceID:   traceID,
		Result:    result,
	}
	payload, _ := json.Marshal(completed)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, payload); err != nil {
		slog.Error("failed to publish analysis completed",
			"company_id", req.CompanyID,
			"error", err,
		)
	}

	slog.Info("analysis request processed",
		"company_id", req.CompanyID,
		"tenant_id", tenantID,
		"patterns", len(result.Patterns),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
