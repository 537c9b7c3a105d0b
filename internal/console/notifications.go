package console

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultExplorerTxURL is the block explorer prefix a tx hash is appended to.
const DefaultExplorerTxURL = "https://hashscan.io/testnet/transaction/"

const maxNotifications = 50

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notification struct {
	ID          string    `json:"id"`
	Level       Level     `json:"level"`
	Title       string    `json:"title"`
	Detail      string    `json:"detail,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
	ExplorerURL string    `json:"explorer_url,omitempty"`
	StreamID    string    `json:"stream_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Feed holds transient notifications. Successes stay up for 8s and
// everything else for 5s.
type Feed struct {
	mu          sync.Mutex
	items       []Notification
	explorerURL string
	now         func() time.Time
}

func NewFeed(explorerTxURL string) *Feed {
	if explorerTxURL == "" {
		explorerTxURL = DefaultExplorerTxURL
	}
	return &Feed{explorerURL: explorerTxURL, now: time.Now}
}

// ExplorerLink is the explorer page for a transaction.
func (f *Feed) ExplorerLink(txHash string) string {
	if txHash == "" {
		return ""
	}
	if strings.Contains(f.explorerURL, "{hash}") {
		return strings.ReplaceAll(f.explorerURL, "{hash}", txHash)
	}
	return f.explorerURL + txHash
}

func (f *Feed) Push(n Notification) Notification {
	now := f.now().UTC()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = now
	n.ExpiresAt = now.Add(ttl(n.Level))
	n.ExplorerURL = f.ExplorerLink(n.TxHash)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune(now)
	if len(f.items) >= maxNotifications {
		f.items = f.items[1:]
	}
	f.items = append(f.items, n)
	return n
}

// Active returns unexpired notifications, newest first.
func (f *Feed) Active() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune(f.now().UTC())
	out := make([]Notification, 0, len(f.items))
	for i := len(f.items) - 1; i >= 0; i-- {
		out = append(out, f.items[i])
	}
	return out
}

// Dismiss drops one notification early.
func (f *Feed) Dismiss(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.items {
		if n.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}

func (f *Feed) prune(now time.Time) {
	kept := f.items[:0]
	for _, n := range f.items {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	f.items = kept
}

func ttl(l Level) time.Duration {
	if l == LevelSuccess {
		return 8 * time.Second
	}
	return 5 * time.Second
}
