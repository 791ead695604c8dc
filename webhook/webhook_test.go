package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/persistcheck/models"
)

func TestNewEvent(t *testing.T) {
	tests := []struct {
		outcome string
		want    string
	}{
		{models.OutcomePassed, EventPassed},
		{models.OutcomeFailed, EventFailed},
		{models.OutcomeError, EventError},
	}
	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			ev := NewEvent(&models.Report{ID: "run-1", Outcome: tt.outcome})
			assert.Equal(t, tt.want, ev.Type)
			assert.Equal(t, "run-1", ev.RunID)
			assert.NotZero(t, ev.Timestamp)
		})
	}
}

func TestDeliver_SignsBody(t *testing.T) {
	type captured struct {
		sig, contentType string
		body             []byte
	}
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{
			sig:         r.Header.Get(SignatureHeader),
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := NewEvent(&models.Report{ID: "run-1", Outcome: models.OutcomePassed, Found: true})
	require.NoError(t, Deliver(context.Background(), srv.URL, "s3cret", ev))

	c := <-got
	assert.Equal(t, "application/json", c.contentType)
	assert.Equal(t, "sha256="+Sign("s3cret", c.body), c.sig)

	var decoded Event
	require.NoError(t, json.Unmarshal(c.body, &decoded))
	assert.Equal(t, EventPassed, decoded.Type)
	assert.True(t, decoded.Report.Found)
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	var hadSig atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hadSig.Store(r.Header.Get(SignatureHeader) != "")
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "", NewEvent(&models.Report{})))
	assert.False(t, hadSig.Load())
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", NewEvent(&models.Report{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDeliverWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	delays := []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	ok := deliverWithRetry(srv.URL, "", NewEvent(&models.Report{}), delays)

	assert.True(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverWithRetry_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ok := deliverWithRetry(srv.URL, "", NewEvent(&models.Report{}), []time.Duration{0, time.Millisecond})
	assert.False(t, ok)
}
