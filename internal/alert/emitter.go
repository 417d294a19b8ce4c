// Package alert implements the alert emitter boundary: it persists alerts,
// deduplicates repeats, and fans new alerts out on the event bus.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// dedupWindow suppresses a new alert when one of the same
// (tenant, company, type) is still open or in progress and was created
// within this window. Detectors upstream never deduplicate.
const dedupWindow = 24 * time.Hour

// Emitter persists and publishes alerts.
type Emitter struct {
	repo domain.Repository
	bus  domain.EventBus
}

// NewEmitter creates an emitter. bus may be nil; alerts are then only
// persisted.
func NewEmitter(repo domain.Repository, bus domain.EventBus) *Emitter {
	return &Emitter{repo: repo, bus: bus}
}

// Emit stores the alert unless a recent equivalent is still being worked.
// Suppressed alerts are not an error.
func (e *Emitter) Emit(ctx context.Context, alert *domain.Alert) error {
	since := time.Now().UTC().Add(-dedupWindow)

	existing, err := e.repo.FindRecentAlert(ctx, alert.TenantID, alert.CompanyID, alert.Type, since)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		slog.Debug("alert suppressed by dedup",
			"tenant_id", alert.TenantID,
			"company_id", alert.CompanyID,
			"type", alert.Type,
			"existing_id", existing.ID,
		)
		return nil
	}

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	if alert.Status == "" {
		alert.Status = domain.AlertStatusOpen
	}

	if err := e.repo.SaveAlert(ctx, alert.TenantID, alert); err != nil {
		return fmt.Errorf("save alert: %w", err)
	}

	if e.bus != nil {
		payload, _ := json.Marshal(alert)
		if err := e.bus.Publish(ctx, alert.TenantID, domain.TopicAlertCreated, payload); err != nil {
			slog.Error("failed to publish alert",
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}

	slog.Info("alert created",
		"alert_id", alert.ID,
		"tenant_id", alert.TenantID,
		"company_id", alert.CompanyID,
		"severity", alert.Severity,
	)

	return nil
}
