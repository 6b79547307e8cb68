package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"solarmine-planner/internal/projection/application"
	projection "solarmine-planner/internal/projection/domain"
)

func TestWebhookPublisherPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher, err := NewWebhookPublisher(server.URL, nil, false)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	failed := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	run := projection.ProjectionRun{
		ID:              "run-1",
		SystemConfigID:  "cfg-1",
		ScenarioID:      "sc-1",
		StartDate:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		State:           projection.RunFailed,
		FailedDate:      &failed,
		FailedComponent: projection.ComponentEnvironment,
		ErrorKind:       "NoEnvironmentalDataError",
		Error:           "no environmental data",
	}
	if err := publisher.PublishRunFinished(context.Background(), application.RunFinished{Run: run}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" || payload.RunID != "run-1" || payload.State != "failed" {
			t.Fatalf("payload mismatch: %+v", payload)
		}
		for _, want := range []string{"[Projection failed]", "NoEnvironmentalDataError", "2025-03-14", "environmental_resolver"} {
			if !strings.Contains(payload.Text.Content, want) {
				t.Fatalf("content missing %q: %s", want, payload.Text.Content)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook not called")
	}
}

func TestWebhookPublisherSkipsCompletedWhenFailedOnly(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher, err := NewWebhookPublisher(server.URL, nil, true)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	run := projection.ProjectionRun{ID: "run-2", State: projection.RunCompleted, Summary: &projection.FinancialSummary{NPVUSD: 10}}
	if err := publisher.PublishRunFinished(context.Background(), application.RunFinished{Run: run}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if called {
		t.Fatalf("completed run posted with failedOnly")
	}
}

func TestWebhookPublisherNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	publisher, err := NewWebhookPublisher(server.URL, nil, false)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	err = NewMultiPublisher(NewLoggingPublisher(nil), publisher).PublishRunFinished(context.Background(), application.RunFinished{Run: projection.ProjectionRun{ID: "run-3", State: projection.RunFailed, ErrorKind: "InternalError"}})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}
