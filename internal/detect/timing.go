package detect

import (
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Timing thresholds: a category pattern is emitted only above its threshold
// percentage of the dataset.
const (
	oddHoursThresholdPct   = 30.0
	weekendThresholdPct    = 20.0
	endOfMonthThresholdPct = 40.0
)

// Business hours are 09:00–17:59 local to the record's timezone; anything
// else counts as odd hours.
const (
	businessHourStart = 9
	businessHourEnd   = 18
)

// endOfMonthDays is the number of trailing calendar days of a month that
// count as end-of-month.
const endOfMonthDays = 3

// Timing flags datasets whose bookings cluster at odd hours, on weekends,
// or at the end of the month, classic data-entry and backdating signals.
type Timing struct{}

func (Timing) Name() string { return "timing" }

func (Timing) Detect(ds *Dataset) []domain.Pattern {
	var oddHours, weekend, endOfMonth, n int
	for _, tx := range ds.Transactions {
		if tx.Date.IsZero() {
			continue
		}
		n++
		if h := tx.Date.Hour(); h < businessHourStart || h >= businessHourEnd {
			oddHours++
		}
		if wd := tx.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
		if isEndOfMonth(tx.Date) {
			endOfMonth++
		}
	}
	if n == 0 {
		return nil
	}

	var patterns []domain.Pattern
	emit := func(count int, thresholdPct float64, label string) {
		pct := float64(count) * 100 / float64(n)
		if pct <= thresholdPct {
			return
		}
		patterns = append(patterns, domain.Pattern{
			Type:     domain.PatternUnusualTiming,
			Severity: timingSeverity(pct),
			Description: fmt.Sprintf(
				"%.1f%% of transactions (%d of %d) were booked %s (threshold %.0f%%)",
				pct, count, n, label, thresholdPct,
			),
			Value: pct,
		})
	}

	emit(oddHours, oddHoursThresholdPct, "outside business hours")
	emit(weekend, weekendThresholdPct, "on weekends")
	emit(endOfMonth, endOfMonthThresholdPct, "in the last days of the month")

	return patterns
}

func timingSeverity(pct float64) domain.Severity {
	switch {
	case pct > 50:
		return domain.SeverityHigh
	case pct > 30:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func isEndOfMonth(t time.Time) bool {
	daysInMonth := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
	return t.Day() > daysInMonth-endOfMonthDays
}
