package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/foxseedlab/rdhours/internal/webhook"
)

func samplePayload() webhook.RunSummaryPayload {
	return webhook.RunSummaryPayload{
		SchemaVersion: webhook.RunSummarySchemaVersion,
		RunID:         "run-1",
		Timezone:      "Europe/Berlin",
		StartedAt:     "2025-06-11T08:00:00+02:00",
		FinishedAt:    "2025-06-11T08:00:02+02:00",
		Counts:        webhook.RunSummaryCount{Sessions: 2, SessionsClipped: 1},
		Days:          []webhook.DayTotal{{Date: "2025-06-10", WorkHours: 11, Sessions: 2}},
	}
}

func TestSendRunSummary_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	if err := sender.SendRunSummary(context.Background(), samplePayload()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSendRunSummary_Success(t *testing.T) {
	var got webhook.RunSummaryPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		if id := r.Header.Get("X-Rdhours-Run-Id"); id != "run-1" {
			t.Errorf("unexpected run id header: %q", id)
		}
		if key := r.Header.Get("Idempotency-Key"); key != "run-1" {
			t.Errorf("unexpected idempotency key: %q", key)
		}
		if v := r.Header.Get("X-Rdhours-Schema-Version"); v != webhook.RunSummarySchemaVersion {
			t.Errorf("unexpected schema header: %q", v)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendRunSummary(context.Background(), samplePayload()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if diff := cmp.Diff(samplePayload(), got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func newTestSender(url string) *HTTPSender {
	sender := NewHTTPSender(url).(*HTTPSender)
	sender.delay = time.Millisecond
	return sender
}

func TestSendRunSummary_Non2xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("counts.sessions: required\n"))
	}))
	defer server.Close()

	err := newTestSender(server.URL).SendRunSummary(context.Background(), samplePayload())
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "status 400 for run run-1: counts.sessions: required") {
		t.Errorf("error does not carry the response: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("client errors must not be retried, got %d calls", calls.Load())
	}
}

func TestSendRunSummary_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := newTestSender(server.URL).SendRunSummary(context.Background(), samplePayload()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSendRunSummary_SchemaVersion(t *testing.T) {
	var got webhook.RunSummaryPayload
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Rdhours-Schema-Version")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	sender := newTestSender(server.URL)

	unversioned := samplePayload()
	unversioned.SchemaVersion = ""
	if err := sender.SendRunSummary(context.Background(), unversioned); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.SchemaVersion != webhook.RunSummarySchemaVersion || header != webhook.RunSummarySchemaVersion {
		t.Errorf("missing schema version not filled in: body %q header %q", got.SchemaVersion, header)
	}

	future := samplePayload()
	future.SchemaVersion = "rdhours.run_summary.v2"
	header = ""
	err := sender.SendRunSummary(context.Background(), future)
	if !errors.Is(err, errUnsupportedSchema) {
		t.Fatalf("expected errUnsupportedSchema, got %v", err)
	}
	if header != "" {
		t.Error("a payload with an unknown schema must not be sent")
	}
}

func TestSendRunSummary_RequiresRunID(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	payload := samplePayload()
	payload.RunID = ""
	if err := newTestSender(server.URL).SendRunSummary(context.Background(), payload); err == nil {
		t.Fatal("expected an error for a payload without run id")
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request, got %d", calls.Load())
	}
}
