package discovery

import (
	"context"
	"sync"
	"time"
)

// Ticker runs a function now and then on every interval until stopped.
type Ticker struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every starts fn in its own goroutine. fn receives a context that is
// cancelled by Stop or by ctx.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) *Ticker {
	ctx, cancel := context.WithCancel(ctx)
	t := &Ticker{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		fn(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				fn(ctx)
			}
		}
	}()
	return t
}

// Stop cancels the loop and waits for an in-flight run to return.
func (t *Ticker) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the loop has exited.
func (t *Ticker) Done() <-chan struct{} { return t.done }
