package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/httpclient"
)

func TestNewPublisher(t *testing.T) {
	pub := NewPublisher("test-service")

	if pub == nil {
		t.Fatal("NewPublisher() returned nil")
	}
	if pub.source != "test-service" {
		t.Errorf("NewPublisher() source = %v, want test-service", pub.source)
	}
	if pub.httpClient == nil {
		t.Error("NewPublisher() did not initialize httpClient")
	}
	if pub.endpoints == nil {
		t.Error("NewPublisher() did not initialize endpoints map")
	}
}

func TestPublish_NoWebhook(t *testing.T) {
	pub := NewPublisher("test-service")

	err := pub.Publish(context.Background(), EventStreamOpened, map[string]any{"stream_id": "42"})
	if err != nil {
		t.Errorf("Publish() without webhook error: %v", err)
	}
}

func TestPublish_WithWebhook(t *testing.T) {
	var received Envelope
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Missing Content-Type header")
		}
		if r.Header.Get("X-Event-Type") != EventStreamWithdrawn {
			t.Errorf("X-Event-Type = %q", r.Header.Get("X-Event-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		if r.Header.Get("X-Event-ID") != received.EventID {
			t.Errorf("X-Event-ID = %q, want %q", r.Header.Get("X-Event-ID"), received.EventID)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pub := NewPublisher("test-service")
	pub.RegisterEndpoint(EventStreamWithdrawn, server.URL)

	err := pub.PublishData(context.Background(), EventStreamWithdrawn, StreamWithdrawnData{StreamID: "7", TxHash: "0xabc"})
	if err != nil {
		t.Fatalf("PublishData() error: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("webhook calls = %d, want 1", calls.Load())
	}
	if received.Source != "test-service" || received.SchemaVersion != "1.0" {
		t.Errorf("Envelope = %+v", received)
	}
	if received.Data["stream_id"] != "7" || received.Data["tx_hash"] != "0xabc" {
		t.Errorf("Envelope Data = %v", received.Data)
	}
	if received.IdempotencyKey != "stream.withdrawn_7_0xabc" {
		t.Errorf("IdempotencyKey = %q", received.IdempotencyKey)
	}

	// Other event types have no endpoint.
	pub.Publish(context.Background(), EventStreamClosed, map[string]any{})
	if calls.Load() != 1 {
		t.Errorf("unregistered event reached the webhook")
	}
}

func TestPublish_CatchAllEndpoint(t *testing.T) {
	var types []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		types = append(types, r.Header.Get("X-Event-Type"))
	}))
	defer server.Close()

	pub := NewPublisher("test-service")
	pub.RegisterEndpoint(AllEvents, server.URL)
	for _, et := range []string{EventStreamOpened, EventPaymentsPushed, EventFlowFailed} {
		pub.Publish(context.Background(), et, map[string]any{})
	}
	if len(types) != 3 || types[1] != EventPaymentsPushed {
		t.Errorf("webhook saw %v", types)
	}
}

func TestPublish_WebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	pub := NewPublisher("test-service")
	pub.RegisterEndpoint(EventStreamClosed, server.URL)

	// Should not error even if webhook fails (logged only)
	if err := pub.Publish(context.Background(), EventStreamClosed, map[string]any{"stream_id": "1"}); err != nil {
		t.Errorf("Publish() should not error on webhook failure, got: %v", err)
	}

	pub.RegisterEndpoint(EventStreamClosed, "http://127.0.0.1:1/unreachable")
	if err := pub.Publish(context.Background(), EventStreamClosed, map[string]any{}); err != nil {
		t.Errorf("Publish() should not error on unreachable webhook, got: %v", err)
	}
}

func TestPublish_Sinks(t *testing.T) {
	pub := NewPublisher("test-service")
	var got []Envelope
	pub.AddSink(func(ctx context.Context, e Envelope) { got = append(got, e) })

	pub.PublishData(context.Background(), EventFlowFailed, FlowFailedData{Action: "withdraw", Message: "reverted"})
	if len(got) != 1 {
		t.Fatalf("sink saw %d envelopes, want 1", len(got))
	}
	if got[0].EventType != EventFlowFailed || got[0].Data["action"] != "withdraw" {
		t.Errorf("sink envelope = %+v", got[0])
	}
	if _, ok := got[0].Data["stream_id"]; ok {
		t.Error("omitempty fields should not appear in data")
	}
}

func TestToData(t *testing.T) {
	data, err := ToData(StreamOpenedData{StreamID: "42", TxHash: "0x1", SenderAgentID: "800400", ReceiverAgentID: "800401", Amount: "10", RatePerSecond: "0.0001", Asset: "0x00"})
	if err != nil {
		t.Fatalf("ToData() error = %v", err)
	}
	if data["receiver_agent_id"] != "800401" || data["rate_per_second"] != "0.0001" {
		t.Errorf("ToData() = %v", data)
	}
	if _, err := ToData(make(chan int)); err == nil {
		t.Error("ToData() expected error for unencodable value")
	}
}

func TestPublish_WebhookAuth(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	pub := NewPublisher("test-service", httpclient.WithAuth(&httpclient.BearerTokenAuth{Token: "hook"}))
	pub.RegisterEndpoint(AllEvents, server.URL)
	pub.Publish(context.Background(), EventStreamClosed, map[string]any{"stream_id": "3"})
	if auth != "Bearer hook" {
		t.Errorf("Authorization = %q, want Bearer hook", auth)
	}
}
