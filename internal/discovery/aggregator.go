package discovery

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
)

// StreamReader reads one stream record.
type StreamReader interface {
	GetStreamData(ctx context.Context, streamID *big.Int) (contract.Stream, error)
}

// Entry is the last read of one stream.
type Entry struct {
	ID        string
	Stream    contract.Stream
	Err       error
	UpdatedAt time.Time
}

// Counts reports whether the entry contributes to the aggregate rate.
func (e Entry) Counts() bool {
	return e.Err == nil && !e.Stream.Closed && e.Stream.RatePerSecond != nil
}

// Aggregator owns the per-stream rate map. Every Refresh rebuilds it from
// scratch; entries are replaced whole and ids no longer listed are dropped.
type Aggregator struct {
	reader      StreamReader
	concurrency int

	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

func NewAggregator(reader StreamReader, concurrency int) *Aggregator {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Aggregator{reader: reader, concurrency: concurrency, entries: map[string]Entry{}}
}

// Refresh reads every id and returns the new aggregate rate. A failing
// read is recorded on its entry and excluded; it never aborts the rest.
func (a *Aggregator) Refresh(ctx context.Context, ids []string) *big.Int {
	results := make([]Entry, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = a.read(gctx, id)
			return nil
		})
	}
	g.Wait()

	next := make(map[string]Entry, len(results))
	failed := 0
	for _, e := range results {
		if e.Err != nil {
			failed++
		}
		next[e.ID] = e
	}

	a.mu.Lock()
	a.entries = next
	a.order = append([]string(nil), ids...)
	a.mu.Unlock()

	total := a.Total()
	slog.DebugContext(ctx, "aggregate_rate_refreshed", "streams", len(ids), "failed", failed, "rate_per_second", total.String())
	return total
}

func (a *Aggregator) read(ctx context.Context, id string) Entry {
	e := Entry{ID: id, UpdatedAt: time.Now().UTC()}
	n, err := ParseID(id)
	if err != nil {
		e.Err = err
		return e
	}
	e.Stream, e.Err = a.reader.GetStreamData(ctx, n)
	return e
}

// Total sums ratePerSecond over open, successfully read streams.
func (a *Aggregator) Total() *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := new(big.Int)
	for _, e := range a.entries {
		if e.Counts() {
			total.Add(total, e.Stream.RatePerSecond)
		}
	}
	return total
}

// Entry returns the last read of id.
func (a *Aggregator) Entry(id string) (Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[id]
	return e, ok
}

// Entries returns the last refresh in the order it was requested.
func (a *Aggregator) Entries() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Entry, 0, len(a.order))
	for _, id := range a.order {
		if e, ok := a.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out
}
