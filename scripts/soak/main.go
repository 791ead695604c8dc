package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/use-agent/persistcheck/models"
	"golang.org/x/sync/errgroup"
)

// CLI flags
var (
	apiURL      = flag.String("api-url", "http://localhost:8090", "persistcheck API base URL")
	apiKey      = flag.String("api-key", "", "API key for authenticated requests")
	runs        = flag.Int("runs", 10, "checks per settle delay")
	settles     = flag.String("settle", "250,500,1000,2000", "comma-separated settle delays in ms to sweep (each > 0; 0 would mean the server default)")
	concurrency = flag.Int("concurrency", 1, "checks in flight at once; above the server's RATE_BURST, runs wait out 429 Retry-After")
	output      = flag.String("output", "soak-results.json", "JSON output file path")
)

// maxRetries bounds how often one run waits out a 429.
const maxRetries = 5

// --- Soak result types ---

type runResult struct {
	Run        int    `json:"run"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"duration_ms"`
	FailedStep string `json:"failed_step,omitempty"`
	TextDrift  int    `json:"text_drift"`
	Error      string `json:"error,omitempty"`
}

type settleResult struct {
	SettleMs     int         `json:"settle_ms"`
	Runs         []runResult `json:"runs"`
	Passed       int         `json:"passed"`
	Failed       int         `json:"failed"`
	Errored      int         `json:"errored"`
	PassRate     float64     `json:"pass_rate"`
	AvgMs        float64     `json:"avg_ms"`
	MaxTextDrift int         `json:"max_text_drift"`
}

type soakReport struct {
	Timestamp  string         `json:"timestamp"`
	APIURL     string         `json:"api_url"`
	RunsPerSet int            `json:"runs_per_settle"`
	Results    []settleResult `json:"results"`
}

func main() {
	flag.Parse()

	delays, err := parseSettles(*settles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	fmt.Println("=== persistcheck soak ===")
	fmt.Printf("API URL:     %s\n", *apiURL)
	fmt.Printf("Runs/settle: %d\n", *runs)
	fmt.Printf("Settles:     %v ms\n", delays)
	fmt.Printf("Output:      %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure persistcheck-server is running\n")
		os.Exit(1)
	}

	report := soakReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerSet: *runs,
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	for _, settle := range delays {
		fmt.Printf("Settle %dms ...\n", settle)
		report.Results = append(report.Results, soak(client, settle))
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func parseSettles(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid settle delay %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no settle delays given")
	}
	return out, nil
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// soak runs the check *runs times at one settle delay.
func soak(client *http.Client, settle int) settleResult {
	var mu sync.Mutex
	sr := settleResult{SettleMs: settle}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(*concurrency, 1))
	for i := 1; i <= *runs; i++ {
		g.Go(func() error {
			rr := runCheck(ctx, client, settle, i)
			mu.Lock()
			sr.Runs = append(sr.Runs, rr)
			mu.Unlock()

			if rr.Error != "" && rr.Outcome == "" {
				fmt.Printf("  Run %d/%d  REQUEST FAILED: %s\n", i, *runs, rr.Error)
			} else {
				fmt.Printf("  Run %d/%d  %-6s %dms\n", i, *runs, strings.ToUpper(rr.Outcome), rr.DurationMs)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(sr.Runs, func(a, b int) bool { return sr.Runs[a].Run < sr.Runs[b].Run })
	summarize(&sr)
	return sr
}

func runCheck(ctx context.Context, client *http.Client, settle, run int) runResult {
	rr := runResult{Run: run}

	body, err := json.Marshal(models.CheckRequest{
		SettleMs:       settle,
		ReloadSettleMs: settle,
	})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	resp, err := postCheck(ctx, client, body)
	if err != nil {
		rr.Error = err.Error()
		return rr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != nil {
			rr.Error = fmt.Sprintf("[%s] %s", e.Error.Code, e.Error.Message)
		} else {
			rr.Error = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return rr
	}

	var rep models.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Outcome = rep.Outcome
	rr.DurationMs = rep.DurationMs
	rr.FailedStep = rep.FailedStep
	rr.TextDrift = rep.TextDrift
	if rep.Error != nil {
		rr.Error = rep.Error.Message
	}
	return rr
}

// postCheck posts body, waiting out 429 responses for at most maxRetries
// attempts so a -concurrency above the server's burst slows down instead
// of failing.
func postCheck(ctx context.Context, client *http.Client, body []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, *apiURL+"/api/v1/checks", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("request error: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if *apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+*apiKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return resp, nil
		}
		wait := retryAfter(resp.Header)
		resp.Body.Close()

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("request failed: %v", ctx.Err())
		}
	}
}

// retryAfter reads a Retry-After header in seconds, defaulting to 1s.
func retryAfter(h http.Header) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || n <= 0 {
		return time.Second
	}
	return time.Duration(n) * time.Second
}

// summarize fills the counters of sr. Requests that never produced a
// report count as errored.
func summarize(sr *settleResult) {
	var total int64
	for _, r := range sr.Runs {
		switch r.Outcome {
		case models.OutcomePassed:
			sr.Passed++
		case models.OutcomeFailed:
			sr.Failed++
		default:
			sr.Errored++
		}
		total += r.DurationMs
		sr.MaxTextDrift = max(sr.MaxTextDrift, r.TextDrift)
	}
	if n := len(sr.Runs); n > 0 {
		sr.PassRate = float64(sr.Passed) / float64(n) * 100
		sr.AvgMs = float64(total) / float64(n)
	}
}

func printTable(results []settleResult) {
	fmt.Println(strings.Repeat("─", 72))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Settle\tRuns\tPassed\tFailed\tErrors\tPass Rate\tAvg Duration\n")
	fmt.Fprintf(w, "──────\t────\t──────\t──────\t──────\t─────────\t────────────\n")

	for _, r := range results {
		fmt.Fprintf(w, "%dms\t%d\t%d\t%d\t%d\t%.1f%%\t%dms\n",
			r.SettleMs,
			len(r.Runs),
			r.Passed,
			r.Failed,
			r.Errored,
			r.PassRate,
			int64(r.AvgMs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 72))
}

func writeJSON(path string, report soakReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
