package detect

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	// benfordMinSample is the smallest dataset the chi-square test is run
	// on. Below it the detector reports nothing.
	benfordMinSample = 20

	// chiSquareCritical is the rejection threshold at α=0.05 with 8 degrees
	// of freedom (digits 1..9).
	chiSquareCritical = 15.51

	// chiSquareHigh upgrades a violation to high severity.
	chiSquareHigh = 25.0
)

// Benford tests whether the leading digits of transaction amounts follow
// the Benford distribution log10(1 + 1/d). Fabricated amounts tend not to.
type Benford struct{}

func (Benford) Name() string { return "benford" }

func (Benford) Detect(ds *Dataset) []domain.Pattern {
	chi, n := benfordChiSquare(ds.Transactions)
	if n < benfordMinSample || chi <= chiSquareCritical {
		return nil
	}

	severity := domain.SeverityMedium
	if chi > chiSquareHigh {
		severity = domain.SeverityHigh
	}

	return []domain.Pattern{{
		Type:     domain.PatternBenfordsLaw,
		Severity: severity,
		Description: fmt.Sprintf(
			"Leading-digit distribution deviates from Benford's Law over %d amounts (chi-square %.2f, critical %.2f)",
			n, chi, chiSquareCritical,
		),
		Value: chi,
	}}
}

// benfordChiSquare returns the chi-square statistic of the observed leading
// digit counts against the Benford expectation, and the number of amounts
// that contributed a digit. Zero amounts contribute no digit. When the
// sample is below benfordMinSample the statistic is reported as 0.
func benfordChiSquare(txs []domain.Transaction) (float64, int) {
	var observed [10]int
	n := 0
	for _, tx := range txs {
		d := leadingDigit(tx.Amount)
		if d == 0 {
			continue
		}
		observed[d]++
		n++
	}

	if n < benfordMinSample {
		return 0, n
	}

	chi := 0.0
	for d := 1; d <= 9; d++ {
		expected := float64(n) * math.Log10(1+1/float64(d))
		diff := float64(observed[d]) - expected
		chi += diff * diff / expected
	}
	return chi, n
}

// leadingDigit returns the leading significant digit (1..9) of the amount's
// absolute value, or 0 for a zero amount.
func leadingDigit(amount float64) int {
	v := math.Abs(amount)
	if v == 0 {
		return 0
	}
	for v >= 10 {
		v /= 10
	}
	for v < 1 {
		v *= 10
	}
	d := int(v)
	if d < 1 {
		d = 1
	}
	if d > 9 {
		d = 9
	}
	return d
}
