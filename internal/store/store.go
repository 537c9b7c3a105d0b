// Package store persists the per-user list of known stream ids behind a
// small key-value interface so the backing store can be swapped.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// StreamStore holds one list of stream id strings per key. Entries are
// returned as stored; validation belongs to the caller.
type StreamStore interface {
	Load(ctx context.Context, key string) ([]string, error)
	Save(ctx context.Context, key string, ids []string) error
	Close() error
}

// decodeIDs reads a JSON array whose elements may be strings or bare
// numbers, as older writers produced. Numbers keep their literal text so
// a value such as 1e+21 survives to be rejected by validation.
func decodeIDs(raw []byte) ([]string, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("decode ids: %w", err)
	}
	ids := make([]string, 0, len(elems))
	for _, e := range elems {
		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			ids = append(ids, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(e, &n); err == nil {
			ids = append(ids, n.String())
			continue
		}
		ids = append(ids, string(e))
	}
	return ids, nil
}

func encodeIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

// seqID names the i-th element document so lexical order is list order.
func seqID(i int) string {
	return fmt.Sprintf("%06d", i)
}
