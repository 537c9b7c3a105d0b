package console

import (
	"fmt"
	"math/big"
	"testing"
	"time"
)

func TestNewLogBootLines(t *testing.T) {
	l := NewLog(0)
	lines := l.Lines(Query{})
	if len(lines) != 2 {
		t.Fatalf("Lines() = %d lines, want 2", len(lines))
	}
	if lines[1].Content != "x402 Payment Engine Ready." || lines[1].Type != TypeSystem {
		t.Errorf("Lines()[1] = %+v", lines[1])
	}
}

func TestLogEvictsOldest(t *testing.T) {
	l := NewLog(DefaultLogSize)
	for i := 0; i < 150; i++ {
		l.Add(TypeA2A, fmt.Sprintf("msg %d", i))
	}
	if l.Len() != DefaultLogSize {
		t.Fatalf("Len() = %d, want %d", l.Len(), DefaultLogSize)
	}
	lines := l.Lines(Query{})
	if lines[0].Content != "msg 50" || lines[len(lines)-1].Content != "msg 149" {
		t.Errorf("window = %q .. %q, want msg 50 .. msg 149", lines[0].Content, lines[len(lines)-1].Content)
	}
}

func TestLogQuery(t *testing.T) {
	l := NewLog(10)
	l.Add(TypeX402, "Stream opened: #4")
	l.Add(TypeA2A, "handshake")
	l.Add(TypeX402, "Withdrawal on stream #4")

	tests := []struct {
		name string
		q    Query
		want int
	}{
		{name: "all", q: Query{}, want: 5},
		{name: "by type", q: Query{Type: TypeX402}, want: 2},
		{name: "search is case insensitive", q: Query{Search: "STREAM #4"}, want: 1},
		{name: "limit keeps newest", q: Query{Limit: 2}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Lines(tt.q); len(got) != tt.want {
				t.Errorf("Lines(%+v) = %d lines, want %d", tt.q, len(got), tt.want)
			}
		})
	}
	if got := l.Lines(Query{Limit: 1}); got[0].Content != "Withdrawal on stream #4" {
		t.Errorf("Lines(limit 1) = %q", got[0].Content)
	}
}

func TestRosterToggle(t *testing.T) {
	l := NewLog(10)
	r := NewRoster(l)

	a, err := r.Toggle("a1")
	if err != nil || !a.Active {
		t.Fatalf("Toggle() = %+v, %v", a, err)
	}
	if got := l.Lines(Query{Limit: 1})[0].Content; got != "Agent Navigator Prime ACTIVATED on grid." {
		t.Errorf("log line = %q", got)
	}
	a, _ = r.Toggle("a1")
	if a.Active {
		t.Error("second Toggle() should deactivate")
	}
	if _, err := r.Toggle("zz"); err == nil {
		t.Error("Toggle() expected error for unknown agent")
	}

	list := r.List()
	if len(list) != 7 {
		t.Fatalf("List() = %d agents, want 7", len(list))
	}
	for i, a := range list {
		if a.TokenID != int64(800400+i) {
			t.Errorf("agent %s token id = %d, want %d", a.ID, a.TokenID, 800400+i)
		}
	}
}

func TestByTokenID(t *testing.T) {
	a, ok := ByTokenID(big.NewInt(800405))
	if !ok || a.Name != "Oracle Celestia" {
		t.Errorf("ByTokenID(800405) = %+v, %v", a, ok)
	}
	if _, ok := ByTokenID(big.NewInt(1)); ok {
		t.Error("ByTokenID(1) should not match")
	}
	if _, ok := ByTokenID(nil); ok {
		t.Error("ByTokenID(nil) should not match")
	}
	if len(TokenIDs()) != len(Agents) {
		t.Error("TokenIDs() length mismatch")
	}
}

func TestFeedExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	f := NewFeed("")
	f.now = func() time.Time { return now }

	ok := f.Push(Notification{Level: LevelSuccess, Title: "Withdrawal successful", TxHash: "0xabc"})
	if ok.ExplorerURL != "https://hashscan.io/testnet/transaction/0xabc" {
		t.Errorf("ExplorerURL = %q", ok.ExplorerURL)
	}
	f.Push(Notification{Level: LevelError, Title: "Withdrawal failed"})

	if got := f.Active(); len(got) != 2 || got[0].Level != LevelError {
		t.Fatalf("Active() = %+v, want error first", got)
	}

	now = now.Add(6 * time.Second)
	if got := f.Active(); len(got) != 1 || got[0].ID != ok.ID {
		t.Errorf("Active() after 6s = %+v, want only the success", got)
	}
	now = now.Add(3 * time.Second)
	if got := f.Active(); len(got) != 0 {
		t.Errorf("Active() after 9s = %+v, want none", got)
	}
}

func TestFeedDismissAndTemplate(t *testing.T) {
	f := NewFeed("https://explorer.local/tx/{hash}?network=test")
	n := f.Push(Notification{Level: LevelInfo, TxHash: "0x1"})
	if n.ExplorerURL != "https://explorer.local/tx/0x1?network=test" {
		t.Errorf("ExplorerURL = %q", n.ExplorerURL)
	}
	if f.ExplorerLink("") != "" {
		t.Error("ExplorerLink(\"\") should be empty")
	}
	if !f.Dismiss(n.ID) || f.Dismiss(n.ID) {
		t.Error("Dismiss() should succeed once")
	}
	if len(f.Active()) != 0 {
		t.Error("Active() should be empty after dismiss")
	}
}
