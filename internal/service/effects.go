package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/console"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/events"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/lifecycle"
)

// CacheStream records a newly opened stream so discovery finds it
// without a log query.
func (s *Service) CacheStream(ctx context.Context, streamID string) error {
	added, err := s.cache.Append(ctx, streamID)
	if err != nil {
		return err
	}
	if added {
		slog.InfoContext(ctx, "stream_cached", "stream_id", streamID)
	}
	return nil
}

// Notify raises a notification and publishes the matching event. Event
// delivery runs in the background so a slow webhook never stalls a flow.
func (s *Service) Notify(ctx context.Context, n lifecycle.Notice) {
	s.feed.Push(console.Notification{
		Level:    console.Level(n.Level),
		Title:    n.Title,
		Detail:   n.Detail,
		TxHash:   n.TxHash,
		StreamID: n.StreamID,
	})

	eventType, payload := s.eventFor(n)
	if eventType == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.events.PublishData(ctx, eventType, payload); err != nil {
			slog.WarnContext(ctx, "event_publish_failed", "event_type", eventType, "error", err)
		}
	}()
}

func (s *Service) eventFor(n lifecycle.Notice) (string, any) {
	if n.Level == lifecycle.LevelError {
		return events.EventFlowFailed, events.FlowFailedData{
			FlowID:    n.FlowID,
			Action:    n.Action,
			StreamID:  n.StreamID,
			TxHash:    n.TxHash,
			ErrorKind: string(n.Kind),
			Message:   n.Detail,
		}
	}
	if n.Level != lifecycle.LevelSuccess {
		return "", nil
	}
	switch n.Action {
	case string(lifecycle.StepOpen):
		d := events.StreamOpenedData{
			StreamID:      n.StreamID,
			TxHash:        n.TxHash,
			SenderAgentID: bigString(s.opts.CaptainAgentID),
		}
		if in := n.Deposit; in != nil {
			d.ReceiverAgentID = bigString(in.ReceiverAgentID)
			d.Amount = in.Amount
			d.RatePerSecond = in.RatePerSecond
			d.Asset = in.Asset.Hex()
		}
		return events.EventStreamOpened, d
	case string(lifecycle.StepWithdraw):
		return events.EventStreamWithdrawn, events.StreamWithdrawnData{StreamID: n.StreamID, TxHash: n.TxHash}
	case "push_payments":
		return events.EventPaymentsPushed, events.PaymentsPushedData{StreamID: n.StreamID, TxHash: n.TxHash}
	case "close_stream":
		return events.EventStreamClosed, events.StreamClosedData{StreamID: n.StreamID, TxHash: n.TxHash}
	}
	return "", nil
}

// mirrorToConsole writes every published event as an x402 console line.
func (s *Service) mirrorToConsole(ctx context.Context, e events.Envelope) {
	str := func(k string) string {
		v, _ := e.Data[k].(string)
		return v
	}
	label := "#unknown"
	if id := str("stream_id"); id != "" {
		label = "#" + id
	}

	line := console.Line{Type: console.TypeX402}
	switch e.EventType {
	case events.EventStreamOpened:
		receiver := str("receiver_agent_id")
		if n, ok := new(big.Int).SetString(receiver, 10); ok {
			if a, ok := console.ByTokenID(n); ok {
				receiver = a.Name
				line.AgentID = a.ID
			}
		}
		line.Content = fmt.Sprintf("Stream %s opened to %s: %s at %s/s.", label, receiver, str("amount"), str("rate_per_second"))
	case events.EventStreamWithdrawn:
		line.Content = fmt.Sprintf("Withdrawal from stream %s confirmed.", label)
	case events.EventPaymentsPushed:
		line.Content = fmt.Sprintf("Payments pushed on stream %s.", label)
	case events.EventStreamClosed:
		line.Content = fmt.Sprintf("Stream %s closed.", label)
	case events.EventFlowFailed:
		line.Content = fmt.Sprintf("%s failed: %s", str("action"), str("message"))
	default:
		line.Content = e.EventType
	}
	if tx := str("tx_hash"); tx != "" {
		line.Content += " tx " + tx
	}
	s.console.AddLine(line)
}
