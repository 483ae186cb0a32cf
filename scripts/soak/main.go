// Command soak drives repeated VIN scrapes against a running partsfetch
// instance and reports how each strategy fared.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/use-agent/partsfetch/models"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "partsfetch API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of scrapes per VIN")
	pause  = flag.Duration("pause", 5*time.Second, "Pause between scrapes")
	output = flag.String("output", "soak-results.json", "JSON output file path")
)

// Sample VINs across makes the catalog covers.
var testVINs = []string{
	"WBA3A5C50CF256651",
	"JTDKB20U793512345",
	"WVWZZZ1JZXW000001",
	"1HGCM82633A004352",
}

type runResult struct {
	VIN       string `json:"vin"`
	Run       int    `json:"run"`
	Success   bool   `json:"success"`
	Strategy  string `json:"strategy,omitempty"`
	TotalMs   int64  `json:"total_ms"`
	HasSSD    bool   `json:"has_ssd"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`

	Attempts []models.AttemptInfo `json:"attempts,omitempty"`
}

// strategyStats counts attempt outcomes for one strategy.
type strategyStats struct {
	Success int   `json:"success"`
	Blocked int   `json:"blocked"`
	Errors  int   `json:"error"`
	Skipped int   `json:"skipped"`
	TotalMs int64 `json:"total_ms"`
}

func (s *strategyStats) ran() int { return s.Success + s.Blocked + s.Errors }

type soakReport struct {
	Timestamp  string                    `json:"timestamp"`
	APIURL     string                    `json:"api_url"`
	RunsPerVIN int                       `json:"runs_per_vin"`
	Runs       []runResult               `json:"runs"`
	Strategies map[string]*strategyStats `json:"strategies"`
}

func main() {
	flag.Parse()

	fmt.Println("=== partsfetch soak ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/VIN:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	client := resty.New().
		SetBaseURL(*apiURL).
		SetTimeout(5 * time.Minute)
	if *apiKey != "" {
		client.SetHeader("X-API-Key", *apiKey)
	}

	if err := checkAPI(client); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure partsfetch is running (e.g. partsfetch serve)\n")
		os.Exit(1)
	}

	report := soakReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerVIN: *runs,
		Strategies: map[string]*strategyStats{},
	}

	for _, vin := range testVINs {
		fmt.Printf("Scraping %s ...\n", vin)
		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := scrapeVIN(client, vin, i)
			if rr.Success {
				fmt.Printf("OK  %dms  via %s\n", rr.TotalMs, rr.Strategy)
			} else {
				fmt.Printf("FAILED: %s %s\n", rr.ErrorCode, rr.Error)
			}
			tally(report.Strategies, rr.Attempts)
			report.Runs = append(report.Runs, rr)
			time.Sleep(*pause)
		}
		fmt.Println()
	}

	printTable(report)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(client *resty.Client) error {
	resp, err := client.R().SetTimeout(10 * time.Second).Get("/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("health returned %d", resp.StatusCode())
	}
	return nil
}

func scrapeVIN(client *resty.Client, vin string, run int) runResult {
	rr := runResult{VIN: vin, Run: run}

	var sr models.ScrapeResponse
	resp, err := client.R().
		SetPathParam("vin", vin).
		SetResult(&sr).
		SetError(&sr).
		Get("/scrape/{vin}")
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	if resp.IsError() {
		rr.Error = fmt.Sprintf("status %d", resp.StatusCode())
	}

	rr.Success = sr.Success
	rr.Strategy = sr.Strategy
	rr.TotalMs = sr.Timing.TotalMs
	rr.HasSSD = sr.SSDParam != ""
	rr.Attempts = sr.Attempts
	if sr.Error != nil {
		rr.ErrorCode = sr.Error.Code
		rr.Error = sr.Error.Message
	}
	return rr
}

func tally(stats map[string]*strategyStats, attempts []models.AttemptInfo) {
	for _, a := range attempts {
		s, ok := stats[a.Strategy]
		if !ok {
			s = &strategyStats{}
			stats[a.Strategy] = s
		}
		switch a.Outcome {
		case "success":
			s.Success++
		case "blocked":
			s.Blocked++
		case "skipped":
			s.Skipped++
		default:
			s.Errors++
		}
		s.TotalMs += a.DurationMs
	}
}

func printTable(report soakReport) {
	names := make([]string, 0, len(report.Strategies))
	for name := range report.Strategies {
		names = append(names, name)
	}
	slices.Sort(names)

	fmt.Println(strings.Repeat("─", 72))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "STRATEGY\tRAN\tSUCCESS\tBLOCKED\tERROR\tSKIPPED\tAVG MS\n")
	for _, name := range names {
		s := report.Strategies[name]
		avg := int64(0)
		if n := s.ran(); n > 0 {
			avg = s.TotalMs / int64(n)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n", name, s.ran(), s.Success, s.Blocked, s.Errors, s.Skipped, avg)
	}
	w.Flush()
	fmt.Println(strings.Repeat("─", 72))

	ok := 0
	for _, r := range report.Runs {
		if r.Success {
			ok++
		}
	}
	fmt.Printf("Overall: %d/%d scrapes succeeded\n", ok, len(report.Runs))
}

func writeJSON(path string, report soakReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
