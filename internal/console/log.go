package console

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type LineType string

const (
	TypeA2A    LineType = "A2A"
	TypeX402   LineType = "x402"
	TypeSystem LineType = "SYSTEM"
)

// DefaultLogSize is how many lines the console keeps.
const DefaultLogSize = 100

type Line struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      LineType  `json:"type"`
	Content   string    `json:"content"`
	AgentID   string    `json:"agent_id,omitempty"`
}

type Query struct {
	Type   LineType
	Search string
	Limit  int
}

// Log is a bounded console; the oldest line is evicted at capacity.
type Log struct {
	mu    sync.RWMutex
	lines []Line
	max   int
}

// NewLog starts with the boot lines.
func NewLog(max int) *Log {
	if max <= 0 {
		max = DefaultLogSize
	}
	l := &Log{lines: make([]Line, 0, max), max: max}
	l.Add(TypeSystem, "SpriteOps Grid Initialized. EIP-8004 Registry Loaded.")
	l.Add(TypeSystem, "x402 Payment Engine Ready.")
	return l
}

func (l *Log) Add(t LineType, content string) Line {
	return l.AddLine(Line{Type: t, Content: content})
}

func (l *Log) AddLine(line Line) Line {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	if line.Timestamp.IsZero() {
		line.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lines) >= l.max {
		l.lines = l.lines[1:]
	}
	l.lines = append(l.lines, line)
	return line
}

// Lines returns matching lines oldest first. A positive Limit keeps the
// newest Limit of them.
func (l *Log) Lines(q Query) []Line {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Line
	for _, line := range l.lines {
		if q.Type != "" && line.Type != q.Type {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(line.Content), strings.ToLower(q.Search)) {
			continue
		}
		out = append(out, line)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.lines)
}
