package cloudevent

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendHeadersAndSignature(t *testing.T) {
	t.Parallel()

	var gotHeaders http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	event := New("runner.job.finished", "/runner-service", "12345", "evt-1", map[string]any{"jobId": "12345"})
	sender := NewSender(5 * time.Second)

	if err := sender.Send(t.Context(), srv.URL, event, SendOptions{SigningKey: "secret"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := gotHeaders.Get("Ce-Type"); got != "runner.job.finished" {
		t.Errorf("Ce-Type = %q", got)
	}
	if got := gotHeaders.Get("Ce-Subject"); got != "12345" {
		t.Errorf("Ce-Subject = %q", got)
	}
	if got := gotHeaders.Get("Content-Type"); got != "application/cloudevents+json" {
		t.Errorf("Content-Type = %q", got)
	}

	want := generateSignature(gotBody, "secret")
	if got := gotHeaders.Get("X-Signature-256"); got != want {
		t.Errorf("X-Signature-256 = %q, want %q", got, want)
	}
}

func TestSendNoSigningKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Signature-256") != "" {
			t.Error("unexpected signature header")
		}
	}))
	defer srv.Close()

	event := New("runner.job.submitted", "/runner-service", "1", "evt-1", nil)
	if err := NewSender(5*time.Second).Send(t.Context(), srv.URL, event, SendOptions{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSendHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	event := New("runner.job.finished", "/runner-service", "1", "evt-1", nil)
	err := NewSender(5*time.Second).Send(t.Context(), srv.URL, event, SendOptions{})
	if err == nil {
		t.Fatal("Send returned nil for 400 response")
	}
	if !IsClientError(err) {
		t.Errorf("IsClientError(%v) = false", err)
	}
}

func TestSendRejectsInvalidEvent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid event reached the destination")
	}))
	defer srv.Close()

	event := New("", "/runner-service", "1", "evt-1", nil) // missing type
	err := NewSender(5*time.Second).Send(t.Context(), srv.URL, event, SendOptions{})
	if err == nil {
		t.Fatal("Send accepted an event without a type")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := New("runner.job.finished", "/runner-service", "1", "evt-1", nil)
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() = %v for a complete event", err)
	}

	tests := []struct {
		name  string
		event *CloudEvent
	}{
		{"missing specversion", &CloudEvent{Type: "t", Source: "s", ID: "i"}},
		{"missing type", &CloudEvent{SpecVersion: "1.0", Source: "s", ID: "i"}},
		{"missing source", &CloudEvent{SpecVersion: "1.0", Type: "t", ID: "i"}},
		{"missing id", &CloudEvent{SpecVersion: "1.0", Type: "t", Source: "s"}},
	}

	for _, tt := range tests {
		if err := tt.event.Validate(); err == nil {
			t.Errorf("%s: Validate() = nil", tt.name)
		}
	}
}

func TestIsClientError(t *testing.T) {
	t.Parallel()

	if IsClientError(&HTTPError{StatusCode: http.StatusInternalServerError}) {
		t.Error("5xx classified as client error")
	}
	if !IsClientError(&HTTPError{StatusCode: http.StatusNotFound}) {
		t.Error("404 not classified as client error")
	}
	if IsClientError(io.EOF) {
		t.Error("non-HTTP error classified as client error")
	}
}
