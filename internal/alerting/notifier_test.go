package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lcr-engine/internal/lcr"
)

func testNotification() Notification {
	return Notification{
		Alert: lcr.Alert{
			AsOfDate:  time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
			Type:      lcr.AlertBreach,
			Severity:  lcr.SeverityCritical,
			Reason:    "LCR 94.2% below the 100.0% regulatory minimum",
			Value:     decimal.RequireFromString("94.2"),
			Threshold: decimal.RequireFromString("100"),
		},
		Ratio:          "94.2",
		Classification: "FAIL",
		Currency:       "CHF",
		Status:         "complete",
	}
}

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var got webhookPayload
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, 5*time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}
	if got.AlertType != "BREACH" {
		t.Errorf("alert_type = %q, want BREACH", got.AlertType)
	}
	if got.Severity != "CRITICAL" {
		t.Errorf("severity = %q, want CRITICAL", got.Severity)
	}
	if got.AsOfDate != "2026-01-15" {
		t.Errorf("as_of_date = %q, want 2026-01-15", got.AsOfDate)
	}
	if got.Value != "94.2" {
		t.Errorf("value = %q, want 94.2", got.Value)
	}
	if got.Classification != "FAIL" {
		t.Errorf("classification = %q, want FAIL", got.Classification)
	}
}

func TestWebhookNotifierRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, 5*time.Second, zerolog.Nop())
	err := notifier.Notify(context.Background(), testNotification())
	if err == nil {
		t.Fatal("Notify() expected error on 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error = %v, want status code in message", err)
	}
}

func TestWebhookNotifierUnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	notifier := NewWebhookNotifier(server.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("Notify() expected error for closed server")
	}
}

func TestWebhookNotifierCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	notifier := NewWebhookNotifier(server.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(ctx, testNotification()); err == nil {
		t.Fatal("Notify() expected error for cancelled context")
	}
}
