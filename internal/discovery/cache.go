// Package discovery tracks which streams belong to the user and derives
// the aggregate accrual rate across them.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/store"
)

const (
	// EntryName is the store key the id list lives under.
	EntryName = "userStreams"
	// MaxStreamID is the exclusive upper bound for a plausible id. Anything
	// at or above it is treated as corruption.
	MaxStreamID = 1_000_000
)

// ValidID reports whether s is a canonical positive decimal integer below
// MaxStreamID.
func ValidID(s string) bool {
	if s == "" || s[0] == '0' {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n > 0 && n < MaxStreamID
}

// Clean keeps the valid ids of raw in order, dropping repeats.
func Clean(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, id := range raw {
		if !ValidID(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Cache is the validated view over one user's entry in a StreamStore.
// Writes are either a single append or a whole-list replace.
type Cache struct {
	mu    sync.Mutex
	store store.StreamStore
	key   string
}

// NewCache scopes the cache to owner; an empty owner uses EntryName alone.
func NewCache(s store.StreamStore, owner string) *Cache {
	key := EntryName
	if owner != "" {
		key = EntryName + ":" + owner
	}
	return &Cache{store: s, key: key}
}

// Load returns the cached ids in insertion order. Invalid or repeated
// entries are dropped and the cleaned list is written back.
func (c *Cache) Load(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *Cache) load(ctx context.Context) ([]string, error) {
	raw, err := c.store.Load(ctx, c.key)
	if err != nil {
		return nil, fmt.Errorf("load stream cache: %w", err)
	}
	valid := Clean(raw)
	if len(valid) != len(raw) {
		slog.InfoContext(ctx, "stream_cache_purged",
			"key", c.key,
			"dropped", len(raw)-len(valid),
			"kept", len(valid),
		)
		if err := c.store.Save(ctx, c.key, valid); err != nil {
			return nil, fmt.Errorf("rewrite stream cache: %w", err)
		}
	}
	return valid, nil
}

// Append adds id once. It reports whether the list changed.
func (c *Cache) Append(ctx context.Context, id string) (bool, error) {
	if !ValidID(id) {
		return false, fmt.Errorf("invalid stream id %q", id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.load(ctx)
	if err != nil {
		return false, err
	}
	if slices.Contains(ids, id) {
		return false, nil
	}
	if err := c.store.Save(ctx, c.key, append(ids, id)); err != nil {
		return false, fmt.Errorf("save stream cache: %w", err)
	}
	return true, nil
}

// Replace overwrites the list with the valid entries of ids.
func (c *Cache) Replace(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Save(ctx, c.key, Clean(ids)); err != nil {
		return fmt.Errorf("save stream cache: %w", err)
	}
	return nil
}

// Newest returns the cached ids, most recently added first.
func (c *Cache) Newest(ctx context.Context) ([]string, error) {
	ids, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	slices.Reverse(ids)
	return ids, nil
}
