package detect

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	roundSuspiciousRatio = 0.30
	roundHighRatio       = 0.50
)

// RoundNumber flags datasets where suspiciously round amounts cluster.
// Forced or fabricated bookings disproportionately land on round figures.
type RoundNumber struct{}

func (RoundNumber) Name() string { return "round_number" }

func (RoundNumber) Detect(ds *Dataset) []domain.Pattern {
	total := len(ds.Transactions)
	if total == 0 {
		return nil
	}

	suspicious := 0
	for _, tx := range ds.Transactions {
		if isSuspiciousRound(tx.Amount) {
			suspicious++
		}
	}

	ratio := float64(suspicious) / float64(total)
	if ratio <= roundSuspiciousRatio {
		return nil
	}

	severity := domain.SeverityMedium
	if ratio > roundHighRatio {
		severity = domain.SeverityHigh
	}

	return []domain.Pattern{{
		Type:     domain.PatternRoundNumber,
		Severity: severity,
		Description: fmt.Sprintf(
			"%d of %d amounts (%.1f%%) are suspiciously round figures",
			suspicious, total, ratio*100,
		),
		Value: ratio * 100,
	}}
}

// roundness classes for an amount's integer part.
type roundness int

const (
	roundNone   roundness = iota
	roundLow              // ends in a single 0
	roundMedium           // ends in 00
	roundHigh             // ends in 000
)

// classifyRoundness returns the roundness of an amount. Amounts with cents
// are never round; a zero amount is not classified.
func classifyRoundness(amount float64) roundness {
	abs := math.Abs(amount)
	if abs == 0 {
		return roundNone
	}
	if abs-math.Floor(abs) > 1e-9 {
		return roundNone
	}

	n := int64(math.Floor(abs))
	switch {
	case n%1000 == 0:
		return roundHigh
	case n%100 == 0:
		return roundMedium
	case n%10 == 0:
		return roundLow
	default:
		return roundNone
	}
}

// isSuspiciousRound applies the magnitude gates: thousands-round amounts of
// 1000 and above, hundreds-round of 100 and above, and tens-round amounts
// only once they reach 1000.
func isSuspiciousRound(amount float64) bool {
	abs := math.Abs(amount)
	switch classifyRoundness(amount) {
	case roundHigh:
		return abs >= 1000
	case roundMedium:
		return abs >= 100
	case roundLow:
		return abs >= 1000
	default:
		return false
	}
}
