package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/httpclient"
)

// AllEvents registers a webhook for every event type.
const AllEvents = "*"

// Sink receives every published envelope in process.
type Sink func(ctx context.Context, e Envelope)

// Publisher logs events, hands them to in-process sinks and POSTs them
// to registered webhooks.
type Publisher struct {
	source     string
	httpClient *httpclient.Client

	mu        sync.RWMutex
	endpoints map[string]string // eventType -> webhook URL
	sinks     []Sink
}

// NewPublisher creates a new event publisher. opts configure the webhook
// client, e.g. WithAuth for receivers that want a token.
func NewPublisher(source string, opts ...httpclient.Option) *Publisher {
	retry := httpclient.DefaultRetryConfig()
	retry.MaxRetries = 1
	opts = append([]httpclient.Option{httpclient.WithRetry(retry)}, opts...)
	return &Publisher{
		source:     source,
		httpClient: httpclient.New("webhook", 5*time.Second, opts...),
		endpoints:  make(map[string]string),
	}
}

// RegisterEndpoint registers a webhook endpoint for an event type, or for
// all of them with AllEvents.
func (p *Publisher) RegisterEndpoint(eventType, webhookURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints[eventType] = webhookURL
}

func (p *Publisher) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Publish publishes an event. Webhook failures are logged, never returned.
func (p *Publisher) Publish(ctx context.Context, eventType string, data map[string]any) error {
	envelope := Envelope{
		EventID:        "evt_" + uuid.NewString(),
		EventType:      eventType,
		SchemaVersion:  "1.0",
		IdempotencyKey: fmt.Sprintf("%s_%v_%v", eventType, data["stream_id"], data["tx_hash"]),
		Timestamp:      time.Now().UTC(),
		Source:         p.source,
		Data:           data,
	}

	slog.InfoContext(ctx, "event_published",
		"event_id", envelope.EventID,
		"event_type", envelope.EventType,
		"source", envelope.Source,
	)

	p.mu.RLock()
	sinks := append([]Sink(nil), p.sinks...)
	webhookURL, ok := p.endpoints[eventType]
	if !ok {
		webhookURL, ok = p.endpoints[AllEvents]
	}
	p.mu.RUnlock()

	for _, s := range sinks {
		s(ctx, envelope)
	}
	if ok && webhookURL != "" {
		p.sendWebhook(ctx, webhookURL, envelope)
	}
	return nil
}

// PublishData publishes a typed payload.
func (p *Publisher) PublishData(ctx context.Context, eventType string, v any) error {
	data, err := ToData(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	return p.Publish(ctx, eventType, data)
}

func (p *Publisher) sendWebhook(ctx context.Context, url string, envelope Envelope) {
	resp, err := httpclient.NewRequest(http.MethodPost, url).
		Context(ctx).
		Header("X-Event-ID", envelope.EventID).
		Header("X-Event-Type", envelope.EventType).
		JSON(envelope).
		Execute(p.httpClient)
	if err != nil {
		slog.WarnContext(ctx, "webhook_failed",
			"url", url,
			"event_type", envelope.EventType,
			"error", err,
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.WarnContext(ctx, "webhook_error",
			"url", url,
			"event_type", envelope.EventType,
			"status", resp.StatusCode,
		)
	}
}
