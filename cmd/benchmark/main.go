// Benchmark tool for testing Kestrel against synthetic accounting ledgers.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -companies 200
//
// This tool:
//   1. Generates synthetic companies, half of them with injected fraud
//      signatures (skewed leading digits, round amounts, night/weekend
//      bookings, duplicated invoice numbers, future-dated invoices)
//   2. Ingests each company's 12-month ledger through the API
//   3. Runs pattern analysis and compares findings with the injected labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// SyntheticCompany is one generated test subject with its ground-truth label.
type SyntheticCompany struct {
	Name      string
	TaxNumber string
	Signature string // "clean" or the injected fraud signature
	IsFraud   bool

	Transactions []TransactionRequest
	Invoices     []InvoiceRequest
}

// Request/response shapes matching the Kestrel API.

type CompanyRequest struct {
	Name      string `json:"name"`
	TaxNumber string `json:"taxNumber"`
}

type CompanyResponse struct {
	ID string `json:"id"`
}

type TransactionRequest struct {
	Date              time.Time `json:"date"`
	Amount            float64   `json:"amount"`
	CounterpartyID    string    `json:"counterpartyId,omitempty"`
	CounterpartyTaxNo string    `json:"counterpartyTaxNo,omitempty"`
}

type IngestTransactionsRequest struct {
	Transactions []TransactionRequest `json:"transactions"`
}

type InvoiceRequest struct {
	InvoiceNumber         string    `json:"invoiceNumber"`
	IssueDate             time.Time `json:"issueDate"`
	TotalAmount           float64   `json:"totalAmount"`
	TaxAmount             float64   `json:"taxAmount"`
	CounterpartyTaxNumber string    `json:"counterpartyTaxNumber,omitempty"`
	CounterpartyName      string    `json:"counterpartyName,omitempty"`
}

type IngestInvoicesRequest struct {
	Invoices []InvoiceRequest `json:"invoices"`
}

type AnalysisResponse struct {
	CompanyID             string `json:"companyId"`
	BenfordsLawViolation  bool   `json:"benfordsLawViolation"`
	RoundNumberSuspicious bool   `json:"roundNumberSuspicious"`
	UnusualTiming         bool   `json:"unusualTiming"`
	Patterns              []struct {
		Type        string  `json:"type"`
		Severity    string  `json:"severity"`
		Description string  `json:"description"`
		Value       float64 `json:"value,omitempty"`
	} `json:"patterns"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Injected fraud flagged
	FalsePositives int64 // Clean company flagged
	TrueNegatives  int64 // Clean company passed
	FalseNegatives int64 // Injected fraud missed

	TotalProcessed int64
	TotalFraud     int64
	TotalClean     int64
	TotalErrors    int64

	AnalysisTimeMs int64
}

var fraudSignatures = []string{
	"benford",
	"round_numbers",
	"timing",
	"invoice_sequence",
	"date_manipulation",
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	companies := flag.Int("companies", 100, "Number of synthetic companies to generate")
	fraudRatio := flag.Float64("fraud-ratio", 0.5, "Share of companies with an injected fraud signature (0.0-1.0)")
	txPerCompany := flag.Int("transactions", 120, "Transactions per company over 12 months")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "RNG seed for reproducible ledgers")
	verbose := flag.Bool("verbose", false, "Print each company result")
	flag.Parse()

	fmt.Println("  ==============================================")
	fmt.Println("     KESTREL BENCHMARK - Synthetic Ledgers")
	fmt.Println("  ==============================================")
	fmt.Printf("\nKestrel URL:   %s\n", *baseURL)
	fmt.Printf("Tenant ID:     %s\n", *tenantID)
	fmt.Printf("Companies:     %d\n", *companies)
	fmt.Printf("Fraud Ratio:   %.2f\n", *fraudRatio)
	fmt.Printf("Tx/Company:    %d\n", *txPerCompany)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Printf("Seed:          %d\n", *seed)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	// Generate synthetic ledgers
	fmt.Printf("\nGenerating %d synthetic companies...\n", *companies)
	rng := rand.New(rand.NewSource(*seed))
	subjects := generateCompanies(rng, *companies, *fraudRatio, *txPerCompany)

	fraudCount := 0
	for _, s := range subjects {
		if s.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("Generated %d companies\n", len(subjects))
	fmt.Printf("  - Fraud: %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(subjects)))
	fmt.Printf("  - Clean: %d (%.2f%%)\n", len(subjects)-fraudCount, 100*float64(len(subjects)-fraudCount)/float64(len(subjects)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(subjects, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateCompanies builds the test population. Fraud signatures rotate so
// every detector family gets exercised.
func generateCompanies(rng *rand.Rand, count int, fraudRatio float64, txPerCompany int) []*SyntheticCompany {
	subjects := make([]*SyntheticCompany, 0, count)
	fraudTarget := int(math.Round(float64(count) * fraudRatio))

	for i := 0; i < count; i++ {
		subject := &SyntheticCompany{
			Name:      fmt.Sprintf("Benchmark Co %04d", i),
			TaxNumber: fmt.Sprintf("%010d", 1000000000+int64(i)),
			Signature: "clean",
		}
		if i < fraudTarget {
			subject.IsFraud = true
			subject.Signature = fraudSignatures[i%len(fraudSignatures)]
		}

		generateLedger(rng, subject, txPerCompany)
		subjects = append(subjects, subject)
	}

	// Shuffle so fraud isn't front-loaded in the work queue
	rng.Shuffle(len(subjects), func(i, j int) {
		subjects[i], subjects[j] = subjects[j], subjects[i]
	})

	return subjects
}

// generateLedger fills a company's 12-month ledger. Clean ledgers follow a
// Benford-shaped amount distribution on weekday business hours with
// sequential invoice numbers; fraud ledgers inject one signature.
func generateLedger(rng *rand.Rand, subject *SyntheticCompany, txCount int) {
	now := time.Now().UTC()
	windowStart := now.AddDate(0, -11, 0)

	for i := 0; i < txCount; i++ {
		date := businessDay(rng, windowStart, now)
		amount := benfordAmount(rng)

		switch subject.Signature {
		case "benford":
			// Skew leading digits toward 9
			amount = 9000 + rng.Float64()*999 + rng.Float64()
		case "round_numbers":
			if rng.Float64() < 0.6 {
				amount = float64((rng.Intn(50) + 1) * 1000)
			}
		case "timing":
			if rng.Float64() < 0.5 {
				// Saturday 03:00 bookings
				date = weekendNight(rng, windowStart, now)
			}
		}

		subject.Transactions = append(subject.Transactions, TransactionRequest{
			Date:              date,
			Amount:            amount,
			CounterpartyID:    fmt.Sprintf("CP-%03d", rng.Intn(40)),
			CounterpartyTaxNo: fmt.Sprintf("%010d", 2000000000+int64(rng.Intn(40))),
		})
	}

	invoiceCount := txCount / 4
	seq := 1
	for i := 0; i < invoiceCount; i++ {
		issueDate := businessDay(rng, windowStart, now)
		total := benfordAmount(rng)
		number := fmt.Sprintf("INV-%06d", seq)
		seq++

		switch subject.Signature {
		case "invoice_sequence":
			if i%5 == 0 {
				seq += 25 // tear a hole in the sequence
			}
			if i%7 == 0 && i > 0 {
				number = subject.Invoices[i-1].InvoiceNumber // duplicate
			}
		case "date_manipulation":
			if i%4 == 0 {
				issueDate = now.AddDate(0, 0, 10+rng.Intn(20)) // future-dated
			}
		}

		subject.Invoices = append(subject.Invoices, InvoiceRequest{
			InvoiceNumber:         number,
			IssueDate:             issueDate,
			TotalAmount:           total,
			TaxAmount:             total * 0.20 / 1.20, // 20% VAT included
			CounterpartyTaxNumber: fmt.Sprintf("%010d", 2000000000+int64(rng.Intn(40))),
			CounterpartyName:      fmt.Sprintf("Supplier %d", rng.Intn(40)),
		})
	}
}

// benfordAmount draws an amount whose leading digit follows Benford's Law,
// with non-round cents.
func benfordAmount(rng *rand.Rand) float64 {
	r := rng.Float64()
	cum := 0.0
	digit := 9
	for d := 1; d <= 9; d++ {
		cum += math.Log10(1 + 1/float64(d))
		if r < cum {
			digit = d
			break
		}
	}
	magnitude := math.Pow(10, float64(rng.Intn(3)+2)) // 100 .. 10,000
	base := float64(digit) * magnitude * (1 + rng.Float64()*0.9)
	return math.Round(base*100)/100 + 0.37
}

// businessDay picks a weekday between start and end, 09:00-17:00, mid-month.
func businessDay(rng *rand.Rand, start, end time.Time) time.Time {
	span := int(end.Sub(start).Hours() / 24)
	for {
		d := start.AddDate(0, 0, rng.Intn(span))
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if d.Day() > 24 {
			continue
		}
		return time.Date(d.Year(), d.Month(), d.Day(), 9+rng.Intn(8), rng.Intn(60), 0, 0, time.UTC)
	}
}

// weekendNight picks a Saturday or Sunday at 02:00-04:00.
func weekendNight(rng *rand.Rand, start, end time.Time) time.Time {
	span := int(end.Sub(start).Hours() / 24)
	for {
		d := start.AddDate(0, 0, rng.Intn(span))
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			continue
		}
		return time.Date(d.Year(), d.Month(), d.Day(), 2+rng.Intn(3), rng.Intn(60), 0, 0, time.UTC)
	}
}

func runBenchmark(subjects []*SyntheticCompany, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan *SyntheticCompany, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for subject := range work {
				result, analysisMs, err := evaluateCompany(client, baseURL, tenantID, subject)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", subject.Name, err)
					}
					continue
				}

				atomic.AddInt64(&metrics.AnalysisTimeMs, analysisMs)

				if subject.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}

				predicted := len(result.Patterns) > 0
				actual := subject.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else {
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "ok  "
					if predicted != actual {
						status = "MISS"
					}
					fmt.Printf("%s %-20s | signature: %-17s | patterns: %2d | analysis: %4d ms\n",
						status, subject.Name, subject.Signature, len(result.Patterns), analysisMs)
				}
			}
		}()
	}

	for _, subject := range subjects {
		work <- subject
	}
	close(work)
	wg.Wait()

	return metrics
}

// evaluateCompany registers the company, ingests its ledger, and runs
// analysis. Returns the analysis result and the analysis call latency.
func evaluateCompany(client *http.Client, baseURL, tenantID string, subject *SyntheticCompany) (*AnalysisResponse, int64, error) {
	var created CompanyResponse
	err := postJSON(client, baseURL+"/companies", tenantID, CompanyRequest{
		Name:      subject.Name,
		TaxNumber: subject.TaxNumber,
	}, &created)
	if err != nil {
		return nil, 0, fmt.Errorf("create company: %w", err)
	}

	err = postJSON(client, baseURL+"/companies/"+created.ID+"/transactions", tenantID,
		IngestTransactionsRequest{Transactions: subject.Transactions}, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("ingest transactions: %w", err)
	}

	if len(subject.Invoices) > 0 {
		err = postJSON(client, baseURL+"/companies/"+created.ID+"/invoices", tenantID,
			IngestInvoicesRequest{Invoices: subject.Invoices}, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("ingest invoices: %w", err)
		}
	}

	var result AnalysisResponse
	start := time.Now()
	err = postJSON(client, baseURL+"/companies/"+created.ID+"/analysis", tenantID, nil, &result)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return nil, 0, fmt.Errorf("analysis: %w", err)
	}

	return &result, elapsed, nil
}

func postJSON(client *http.Client, url, tenantID string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n  ==============================================")
	fmt.Println("              BENCHMARK RESULTS")
	fmt.Println("  ==============================================")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Injected Fraud:   %d\n", m.TotalFraud)
	fmt.Printf("   Clean:            %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                      Predicted")
	fmt.Println("                  FLAGGED     CLEAN")
	fmt.Printf("   Actual  Fraud  %8d  %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           Clean  %8d  %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged companies, how many had injected fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of injected fraud, how much did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\nDETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		analyzed := m.TotalProcessed - m.TotalErrors
		if analyzed > 0 {
			avgMs := float64(m.AnalysisTimeMs) / float64(analyzed)
			fmt.Printf("   Avg Analysis:     %.2f ms\n", avgMs)
		}
		cps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Throughput:       %.2f companies/sec\n", cps)
	}

	fmt.Println()
}
