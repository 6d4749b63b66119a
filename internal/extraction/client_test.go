package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/extract" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("missing api key header, got %q", got)
		}

		var req ExtractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.DocumentURI != "s3://bucket/doc.pdf" {
			t.Errorf("document uri = %q", req.DocumentURI)
		}

		json.NewEncoder(w).Encode(&RawReport{
			ReportType: "Lab Panel",
			CapturedAt: "2024-03-15",
			Values: map[string]RawMeasurement{
				"glucose": {Value: "5.4", Unit: "mmol/L"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{BaseURL: server.URL, APIKey: "secret-key"})

	raw, err := client.Extract(context.Background(), "s3://bucket/doc.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if raw.ReportType != "Lab Panel" {
		t.Errorf("report type = %q", raw.ReportType)
	}
	if raw.Values["glucose"].Value != "5.4" {
		t.Errorf("glucose value = %v", raw.Values["glucose"].Value)
	}
}

func TestClient_Extract_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{BaseURL: server.URL})

	_, err := client.Extract(context.Background(), "s3://bucket/doc.pdf", "application/pdf")
	if err == nil {
		t.Fatal("expected upstream error")
	}

	upstream, ok := err.(*UpstreamError)
	if !ok {
		t.Fatalf("expected *UpstreamError, got %T", err)
	}
	if upstream.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", upstream.StatusCode)
	}
}

func TestClient_Extract_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{BaseURL: server.URL})

	_, err := client.Extract(context.Background(), "s3://bucket/doc.pdf", "application/pdf")
	if err == nil {
		t.Fatal("expected error for malformed response")
	}
	if _, ok := err.(*UpstreamError); !ok {
		t.Fatalf("expected *UpstreamError, got %T", err)
	}
}

func TestClient_Extract_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{BaseURL: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Extract(ctx, "s3://bucket/doc.pdf", "application/pdf")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
