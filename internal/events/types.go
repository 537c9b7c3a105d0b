package events

import (
	"encoding/json"
	"time"
)

// Envelope wraps every event.
type Envelope struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	SchemaVersion  string         `json:"schema_version"`
	IdempotencyKey string         `json:"idempotency_key"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"`
	Data           map[string]any `json:"data"`
}

// Stream events
type StreamOpenedData struct {
	StreamID        string `json:"stream_id,omitempty"`
	TxHash          string `json:"tx_hash"`
	ApproveTxHash   string `json:"approve_tx_hash,omitempty"`
	SenderAgentID   string `json:"sender_agent_id"`
	ReceiverAgentID string `json:"receiver_agent_id"`
	Amount          string `json:"amount"`
	RatePerSecond   string `json:"rate_per_second"`
	Asset           string `json:"asset"`
}

type StreamWithdrawnData struct {
	StreamID string `json:"stream_id"`
	TxHash   string `json:"tx_hash"`
}

type StreamClosedData struct {
	StreamID string `json:"stream_id"`
	TxHash   string `json:"tx_hash"`
}

type PaymentsPushedData struct {
	StreamID string `json:"stream_id"`
	TxHash   string `json:"tx_hash"`
}

type FlowFailedData struct {
	FlowID    string `json:"flow_id,omitempty"`
	Action    string `json:"action"`
	StreamID  string `json:"stream_id,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message"`
}

// Event type constants
const (
	EventStreamOpened    = "stream.opened"
	EventStreamWithdrawn = "stream.withdrawn"
	EventStreamClosed    = "stream.closed"
	EventPaymentsPushed  = "stream.payments_pushed"
	EventFlowFailed      = "stream.flow_failed"
)

// ToData flattens a typed payload into envelope data.
func ToData(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
