package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/jobs", 202, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/jobs/12345", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/jobs/67890", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "DELETE", "/v1/jobs/12345", 204, 0.100)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/jobs", 500, 0.001)
}

func TestRecordJobMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordJobSubmitted(ctx, "local")
	metrics.RecordJobSubmitted(ctx, "gridengine")
	metrics.RecordJobFinished(ctx, "local", 5.5)
	metrics.RecordJobTerminated(ctx, "gridengine")
	metrics.RecordJobFinished(ctx, "gridengine", 120.0)
}

func TestRecordDispatcherMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordDispatcherDelivered(ctx, 0.05)
	metrics.RecordDispatcherFailed(ctx)
	metrics.RecordDispatcherDropped(ctx)
	metrics.RecordDispatcherRequeued(ctx)
	metrics.RecordDispatcherQueueSize(ctx, 3)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/metrics", "/metrics"},
		{"/v1/jobs", "/v1/jobs"},
		{"/v1/jobs/12345", "/v1/jobs/{jobId}"},
		{"/v1/jobs/test.o101", "/v1/jobs/{jobId}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
