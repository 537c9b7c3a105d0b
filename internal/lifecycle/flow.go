package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/discovery"
)

// Chain is the contract surface flows drive. *contract.Client satisfies it.
type Chain interface {
	ToBaseUnits(ctx context.Context, amount string) (*big.Int, error)
	ApproveSpend(ctx context.Context, amount *big.Int) (*types.Transaction, error)
	OpenStream(ctx context.Context, p contract.OpenParams) (*types.Transaction, error)
	Withdraw(ctx context.Context, streamID *big.Int) (*types.Transaction, error)
	PushPayments(ctx context.Context, streamID *big.Int) (*types.Transaction, error)
	CloseStream(ctx context.Context, streamID *big.Int) (*types.Transaction, error)
	GetStreamData(ctx context.Context, streamID *big.Int) (contract.Stream, error)
	CalculateOwed(ctx context.Context, streamID *big.Int) (*big.Int, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Effects performs the non-chain side effects Reduce asks for.
type Effects interface {
	CacheStream(ctx context.Context, streamID string) error
	Notify(ctx context.Context, n Notice)
}

type request struct {
	submit  *Submit
	dismiss bool
	reply   chan error
}

// Flow owns one State and the goroutine that advances it. Every message,
// whether from a caller or from a finished chain task, goes through the
// same loop, so Reduce never runs concurrently for one flow.
type Flow struct {
	chain   Chain
	effects Effects
	sender  *big.Int

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan Msg
	reqs   chan request
	done   chan struct{}
	tasks  sync.WaitGroup

	mu    sync.RWMutex
	state State
}

func newFlow(ctx context.Context, initial State, chain Chain, effects Effects, sender *big.Int) *Flow {
	ctx, cancel := context.WithCancel(ctx)
	f := &Flow{
		chain:   chain,
		effects: effects,
		sender:  sender,
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan Msg),
		reqs:    make(chan request),
		done:    make(chan struct{}),
		state:   initial,
	}
	go f.run()
	return f
}

func (f *Flow) ID() string { return f.Snapshot().ID }

// Snapshot returns the current state.
func (f *Flow) Snapshot() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Done is closed when the flow is dismissed or shut down.
func (f *Flow) Done() <-chan struct{} { return f.done }

// Submit starts the flow. It is refused while a transaction is pending
// and once the flow has finished.
func (f *Flow) Submit(m Submit) error {
	return f.request(request{submit: &m})
}

// Dismiss ends the flow. It is refused while a transaction is pending.
func (f *Flow) Dismiss() error {
	return f.request(request{dismiss: true})
}

// shutdown stops the loop regardless of pending work and waits for its
// tasks to return.
func (f *Flow) shutdown() {
	f.cancel()
	<-f.done
	f.tasks.Wait()
}

func (f *Flow) request(r request) error {
	r.reply = make(chan error, 1)
	select {
	case f.reqs <- r:
	case <-f.done:
		return ErrFinished
	}
	return <-r.reply
}

func (f *Flow) run() {
	defer close(f.done)
	for {
		select {
		case <-f.ctx.Done():
			return
		case m := <-f.inbox:
			f.apply(m)
		case r := <-f.reqs:
			r.reply <- f.handle(r)
		}
	}
}

func (f *Flow) handle(r request) error {
	cur := f.Snapshot()
	if cur.Busy() {
		return ErrPending
	}
	if r.dismiss {
		slog.InfoContext(f.ctx, "flow_dismissed", "flow_id", cur.ID, "kind", cur.Kind, "stage", cur.Stage)
		f.cancel()
		return nil
	}
	if cur.Finished() {
		return ErrFinished
	}
	f.apply(*r.submit)
	return nil
}

func (f *Flow) apply(m Msg) {
	prev := f.Snapshot()
	next, cmds := Reduce(prev, m)

	f.mu.Lock()
	f.state = next
	f.mu.Unlock()

	if next.Stage != prev.Stage {
		attrs := []any{"flow_id", next.ID, "kind", next.Kind, "from", prev.Stage, "to", next.Stage}
		if next.Err != nil {
			attrs = append(attrs, "error", next.Err.Error())
		}
		slog.InfoContext(f.ctx, "flow_transition", attrs...)
	}
	for _, c := range cmds {
		f.exec(c)
	}
}

func (f *Flow) exec(c Cmd) {
	switch c := c.(type) {
	case Approve:
		f.spawn(StepApprove, func(ctx context.Context) (*types.Transaction, error) {
			amount, err := f.chain.ToBaseUnits(ctx, c.Amount)
			if err != nil {
				return nil, &Error{Kind: KindValidation, Err: err}
			}
			return f.chain.ApproveSpend(ctx, amount)
		})
	case OpenStream:
		f.spawn(StepOpen, func(ctx context.Context) (*types.Transaction, error) {
			p, err := f.openParams(ctx, c.Input)
			if err != nil {
				return nil, err
			}
			return f.chain.OpenStream(ctx, p)
		})
	case Withdraw:
		f.spawn(StepWithdraw, func(ctx context.Context) (*types.Transaction, error) {
			id, err := discovery.ParseID(c.StreamID)
			if err != nil {
				return nil, &Error{Kind: KindValidation, Err: err}
			}
			return f.chain.Withdraw(ctx, id)
		})
	case CacheStream:
		if err := f.effects.CacheStream(f.ctx, c.StreamID); err != nil {
			slog.WarnContext(f.ctx, "stream_cache_append_failed", "stream_id", c.StreamID, "error", err)
		}
	case Notify:
		f.effects.Notify(f.ctx, c.Notice)
	}
}

func (f *Flow) openParams(ctx context.Context, in DepositInput) (contract.OpenParams, error) {
	spendingCap, err := f.chain.ToBaseUnits(ctx, in.Amount)
	if err != nil {
		return contract.OpenParams{}, &Error{Kind: KindValidation, Err: fmt.Errorf("amount: %w", err)}
	}
	rate, err := f.chain.ToBaseUnits(ctx, in.RatePerSecond)
	if err != nil {
		return contract.OpenParams{}, &Error{Kind: KindValidation, Err: fmt.Errorf("rate: %w", err)}
	}
	if rate.Sign() == 0 {
		return contract.OpenParams{}, &Error{Kind: KindValidation, Err: ErrInvalidRate}
	}
	return contract.OpenParams{
		SenderAgentID:   f.sender,
		ReceiverAgentID: in.ReceiverAgentID,
		RatePerSecond:   rate,
		SpendingCap:     spendingCap,
		Asset:           in.Asset,
	}, nil
}

// spawn submits a transaction and waits for its receipt off the loop,
// posting Submitted and then Confirmed or Failed.
func (f *Flow) spawn(step Step, submit func(context.Context) (*types.Transaction, error)) {
	f.tasks.Add(1)
	go func() {
		defer f.tasks.Done()
		tx, err := submit(f.ctx)
		if err != nil {
			f.post(Failed{Step: step, Err: err})
			return
		}
		hash := tx.Hash().Hex()
		f.post(Submitted{Step: step, Hash: hash})

		receipt, err := f.chain.WaitMined(f.ctx, tx)
		if err != nil {
			f.post(Failed{Step: step, Err: err})
			return
		}
		c := Confirmed{Step: step, Hash: hash}
		if step == StepOpen {
			c.StreamID, c.ParseErr = contract.ParseStreamOpened(receipt.Logs)
			if c.ParseErr != nil {
				slog.WarnContext(f.ctx, "stream_id_not_recovered", "tx", hash, "error", c.ParseErr)
			}
		}
		f.post(c)
	}()
}

func (f *Flow) post(m Msg) {
	select {
	case f.inbox <- m:
	case <-f.ctx.Done():
	}
}
