package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func TestNew(t *testing.T) {
	client := New("mirror", 10*time.Second)
	if client.name != "mirror" {
		t.Errorf("New() name = %v, want mirror", client.name)
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("New() timeout = %v, want %v", client.httpClient.Timeout, 10*time.Second)
	}
	if client.limiter != nil {
		t.Error("New() limiter should be nil without WithRateLimit")
	}
	if New("x", time.Second, WithRateLimit(0, 1)).limiter != nil {
		t.Error("WithRateLimit(0) should disable limiting")
	}
	if New("x", time.Second, WithRateLimit(5, 0)).limiter == nil {
		t.Error("WithRateLimit(5) did not install a limiter")
	}
}

func TestBuildMergesQuery(t *testing.T) {
	req, err := NewRequest(http.MethodGet, "http://mirror.test/api/v1").
		Path("/contracts/0.0.5/results/logs").
		Query("topic0", "0xabc").
		Query("topic2", "").
		QueryInt("limit", 25).
		QueryInt("skip", 0).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	q := req.URL.Query()
	if q.Get("topic0") != "0xabc" || q.Get("limit") != "25" {
		t.Errorf("Build() query = %v", q)
	}
	if q.Has("topic2") || q.Has("skip") {
		t.Errorf("Build() kept empty parameters: %v", q)
	}
	if req.URL.Path != "/api/v1/contracts/0.0.5/results/logs" {
		t.Errorf("Build() path = %v", req.URL.Path)
	}

	req, err = NewRequest(http.MethodGet, "http://mirror.test/api/v1/transactions?limit=2&timestamp=lt:1").
		Query("order", "desc").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	q = req.URL.Query()
	if q.Get("limit") != "2" || q.Get("timestamp") != "lt:1" || q.Get("order") != "desc" {
		t.Errorf("Build() did not merge into existing query: %v", q)
	}
}

func TestExecuteJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		json.NewEncoder(w).Encode(map[string]string{"account": "0.0.1234"})
	}))
	defer server.Close()

	var out struct {
		Account string `json:"account"`
	}
	if err := New("test", 5*time.Second).GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.Account != "0.0.1234" {
		t.Errorf("GetJSON() account = %v, want 0.0.1234", out.Account)
	}
}

func TestExecuteJSON_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"_status":{"messages":[{"message":"Not found"}]}}`))
	}))
	defer server.Close()

	err := New("test", 5*time.Second).GetJSON(context.Background(), server.URL, &struct{}{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("GetJSON() error type = %T, want *HTTPError", err)
	}
	if StatusCode(err) != http.StatusNotFound {
		t.Errorf("StatusCode() = %v, want 404", StatusCode(err))
	}
}

func TestRetryReplaysBody(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"type":"stream.opened"}` {
			t.Errorf("attempt %d body = %q", attempts.Load()+1, body)
		}
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := New("test", 5*time.Second, WithRetry(fastRetry()))
	err := client.PostJSON(context.Background(), server.URL, map[string]string{"type": "stream.opened"}, nil)
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %v, want 2", attempts.Load())
	}
}

func TestRetryMaxAttempts(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewRequest(http.MethodGet, server.URL).Execute(New("test", 5*time.Second, WithRetry(fastRetry())))
	if err == nil {
		t.Fatal("Execute() expected error after max retries")
	}
	if attempts.Load() != 4 {
		t.Errorf("attempts = %v, want 4", attempts.Load())
	}
	if StatusCode(err) != http.StatusServiceUnavailable {
		t.Errorf("StatusCode() = %v, want 503", StatusCode(err))
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewRequest(http.MethodGet, server.URL).Context(ctx).Execute(New("test", 5*time.Second, WithRetry(cfg)))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want deadline exceeded", err)
	}
}

func TestAuthProviders(t *testing.T) {
	tests := []struct {
		name   string
		auth   AuthProvider
		header string
		want   string
	}{
		{name: "bearer", auth: &BearerTokenAuth{Token: "s3cret"}, header: "Authorization", want: "Bearer s3cret"},
		{name: "api key", auth: &APIKeyAuth{Header: "x-api-key", Key: "k1"}, header: "x-api-key", want: "k1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get(tt.header); got != tt.want {
					t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
				}
				w.Write([]byte(`{}`))
			}))
			defer server.Close()

			client := New("test", 5*time.Second, WithAuth(tt.auth))
			if err := client.GetJSON(context.Background(), server.URL, &map[string]any{}); err != nil {
				t.Errorf("GetJSON() error = %v", err)
			}
		})
	}
}

func TestRateLimitSpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New("test", 5*time.Second, WithRateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := client.GetJSON(context.Background(), server.URL, nil); err != nil {
			t.Fatalf("GetJSON() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 requests at 20/s took %v, want >= 80ms", elapsed)
	}
}
