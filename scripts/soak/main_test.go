package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/persistcheck/models"
)

func TestParseSettles(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"250,500", []int{250, 500}, false},
		{" 1000 , ,2000", []int{1000, 2000}, false},
		{"", nil, true},
		{"0", nil, true},
		{"abc", nil, true},
		{"-5", nil, true},
	}
	for _, tt := range tests {
		got, err := parseSettles(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSettles(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseSettles(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseSettles(%q) = %v, want %v", tt.in, got, tt.want)
				break
			}
		}
	}
}

func TestSummarize(t *testing.T) {
	sr := settleResult{Runs: []runResult{
		{Outcome: models.OutcomePassed, DurationMs: 100, TextDrift: 2},
		{Outcome: models.OutcomePassed, DurationMs: 300, TextDrift: 7},
		{Outcome: models.OutcomeFailed, DurationMs: 200},
		{Error: "request failed"},
	}}
	summarize(&sr)

	if sr.Passed != 2 || sr.Failed != 1 || sr.Errored != 1 {
		t.Fatalf("counts = %d/%d/%d, want 2/1/1", sr.Passed, sr.Failed, sr.Errored)
	}
	if sr.PassRate != 50 {
		t.Errorf("PassRate = %v, want 50", sr.PassRate)
	}
	if sr.AvgMs != 150 {
		t.Errorf("AvgMs = %v, want 150", sr.AvgMs)
	}
	if sr.MaxTextDrift != 7 {
		t.Errorf("MaxTextDrift = %d, want 7", sr.MaxTextDrift)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"3", 3 * time.Second},
		{"", time.Second},
		{"0", time.Second},
		{"soon", time.Second},
	}
	for _, tt := range tests {
		h := http.Header{}
		h.Set("Retry-After", tt.header)
		if got := retryAfter(h); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestRunCheck_WaitsOutRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: &models.ErrorDetail{
				Code: models.ErrCodeRateLimited, Message: "rate limit exceeded",
			}})
			return
		}
		_ = json.NewEncoder(w).Encode(models.Report{Outcome: models.OutcomePassed, DurationMs: 42})
	}))
	defer srv.Close()

	prev := *apiURL
	*apiURL = srv.URL
	defer func() { *apiURL = prev }()

	rr := runCheck(context.Background(), srv.Client(), 500, 1)

	if rr.Outcome != models.OutcomePassed || rr.Error != "" {
		t.Fatalf("runCheck = %+v, want a passed run", rr)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}
