package detect

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	// circularWindow is the maximum gap between the outgoing and returning
	// legs of a suspected round-trip.
	circularWindow = 7 * 24 * time.Hour

	// circularAmountTolerance is the relative difference below which two
	// amounts count as "the same money coming back".
	circularAmountTolerance = 0.1
)

// Circular looks for round-trip flows: money sent to one counterparty and a
// near-identical sum received from another within a few days.
//
// The scan is pairwise over counterparties and their transactions, which is
// O(n²) in the worst case. Per-company 12-month windows keep n small enough;
// bucketing by (pair, amount band) is the planned fix if that stops holding.
type Circular struct{}

func (Circular) Name() string { return "circular" }

func (Circular) Detect(ds *Dataset) []domain.Pattern {
	byCounterparty := make(map[string][]domain.Transaction)
	for _, tx := range ds.Transactions {
		if tx.CounterpartyID == "" || tx.Date.IsZero() {
			continue
		}
		byCounterparty[tx.CounterpartyID] = append(byCounterparty[tx.CounterpartyID], tx)
	}

	keys := make([]string, 0, len(byCounterparty))
	for k := range byCounterparty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sortTransactions(byCounterparty[k])
	}

	var patterns []domain.Pattern
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			patterns = append(patterns, matchRoundTrips(keys[i], keys[j], byCounterparty[keys[i]], byCounterparty[keys[j]])...)
		}
	}
	return patterns
}

func matchRoundTrips(cpA, cpB string, txsA, txsB []domain.Transaction) []domain.Pattern {
	var patterns []domain.Pattern
	for _, a := range txsA {
		amtA := math.Abs(a.Amount)
		for _, b := range txsB {
			gap := a.Date.Sub(b.Date)
			if gap < 0 {
				gap = -gap
			}
			if gap > circularWindow {
				continue
			}
			if math.Abs(amtA-math.Abs(b.Amount)) >= circularAmountTolerance*amtA {
				continue
			}
			patterns = append(patterns, domain.Pattern{
				Type:     domain.PatternCircularTransaction,
				Severity: domain.SeverityHigh,
				Description: fmt.Sprintf(
					"Potential round-trip flow between counterparties %s and %s: %.2f and %.2f within %d day(s)",
					cpA, cpB, amtA, math.Abs(b.Amount), int(gap.Hours()/24),
				),
				Value: math.Abs(amtA - math.Abs(b.Amount)),
			})
		}
	}
	return patterns
}

func sortTransactions(txs []domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
}
