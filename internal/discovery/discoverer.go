package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strconv"
)

var ErrNoSender = errors.New("no registered sender identity")

// Discoverer reconciles the cache with the event log.
type Discoverer struct {
	cache  *Cache
	source LogSource
	sender *big.Int
}

func NewDiscoverer(cache *Cache, source LogSource, sender *big.Int) *Discoverer {
	return &Discoverer{cache: cache, source: source, sender: sender}
}

// Streams returns the user's stream ids, newest first. The cache answers
// unless it is empty or force is set; then the log source is replayed and
// its ids are merged into the cache. A failing log query falls back to
// whatever the cache holds, and only errors when that is nothing.
func (d *Discoverer) Streams(ctx context.Context, force bool) ([]string, error) {
	cached, err := d.cache.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 && !force {
		return newestFirst(cached), nil
	}
	if d.source == nil {
		return newestFirst(cached), nil
	}
	if d.sender == nil || d.sender.Sign() == 0 {
		if len(cached) > 0 {
			return newestFirst(cached), nil
		}
		return nil, ErrNoSender
	}

	found, err := d.source.StreamsOpenedBy(ctx, d.sender)
	if err != nil {
		slog.WarnContext(ctx, "stream_log_query_failed", "sender", d.sender.String(), "error", err)
		if len(cached) > 0 {
			return newestFirst(cached), nil
		}
		return nil, fmt.Errorf("query stream logs: %w", err)
	}

	merged := merge(cached, found)
	if len(merged) != len(cached) {
		if err := d.cache.Replace(ctx, merged); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "stream_cache_rebuilt",
			"sender", d.sender.String(),
			"from_logs", len(found),
			"total", len(merged),
		)
	}
	return newestFirst(Clean(merged)), nil
}

// merge appends the log ids missing from cached, in ascending order.
func merge(cached []string, found []*big.Int) []string {
	nums := slices.Clone(found)
	slices.SortFunc(nums, func(a, b *big.Int) int { return a.Cmp(b) })
	out := slices.Clone(cached)
	for _, n := range nums {
		s := n.String()
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func newestFirst(ids []string) []string {
	out := slices.Clone(ids)
	slices.Reverse(out)
	return out
}

// ParseID converts a cached id to the contract's integer form.
func ParseID(id string) (*big.Int, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("invalid stream id %q", id)
	}
	n, _ := strconv.ParseInt(id, 10, 64)
	return big.NewInt(n), nil
}
