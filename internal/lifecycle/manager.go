package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/discovery"
)

// SessionFunc reports the wallet and agent identities at call time.
type SessionFunc func() Session

// Manager owns the live flows: at most one deposit, and one withdrawal
// per stream id. It also runs the one-shot push and close actions.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	chain   Chain
	effects Effects
	session SessionFunc

	mu          sync.Mutex
	deposit     *Flow
	withdrawals map[string]*Flow
	actions     map[string]bool
	bg          sync.WaitGroup
}

func NewManager(ctx context.Context, chain Chain, effects Effects, session SessionFunc) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		ctx:         ctx,
		cancel:      cancel,
		chain:       chain,
		effects:     effects,
		session:     session,
		withdrawals: make(map[string]*Flow),
		actions:     make(map[string]bool),
	}
}

// StartDeposit validates in and starts a new deposit flow in place of the
// previous one. The previous flow must not be pending.
func (m *Manager) StartDeposit(in DepositInput) (*Flow, error) {
	s := m.session()
	if err := ValidateDeposit(s, in); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deposit != nil {
		if err := m.deposit.Dismiss(); errors.Is(err, ErrPending) {
			return nil, err
		}
	}
	f := newFlow(m.ctx, NewDeposit(uuid.NewString()), m.chain, m.effects, s.SenderAgentID)
	m.deposit = f
	slog.InfoContext(m.ctx, "flow_started", "flow_id", f.ID(), "kind", KindDeposit,
		"receiver_agent_id", in.ReceiverAgentID.String(), "amount", in.Amount, "rate_per_second", in.RatePerSecond)
	if err := f.Submit(Submit{Input: in}); err != nil {
		return nil, err
	}
	return f, nil
}

// Deposit returns the current deposit flow if its id matches.
func (m *Manager) Deposit(id string) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deposit == nil || m.deposit.ID() != id {
		return nil, ErrNotFound
	}
	return m.deposit, nil
}

// DismissDeposit closes the deposit flow unless it is pending.
func (m *Manager) DismissDeposit(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deposit == nil || m.deposit.ID() != id {
		return ErrNotFound
	}
	if err := m.deposit.Dismiss(); err != nil && !errors.Is(err, ErrFinished) {
		return err
	}
	m.deposit = nil
	return nil
}

// StartWithdraw validates the selection, refuses closed streams and
// streams with nothing owed, and starts a withdrawal. Withdrawals on
// different ids run independently; a second one on the same id waits
// for the first.
func (m *Manager) StartWithdraw(ctx context.Context, streamID string) (*Flow, error) {
	s := m.session()
	if err := ValidateWithdraw(s, streamID); err != nil {
		return nil, err
	}
	id, _ := discovery.ParseID(streamID)
	st, err := m.chain.GetStreamData(ctx, id)
	if err != nil {
		return nil, &Error{Kind: KindQuery, Err: err}
	}
	if st.Closed {
		return nil, validation(contract.ErrStreamClosed)
	}
	owed, err := m.chain.CalculateOwed(ctx, id)
	if err != nil {
		return nil, &Error{Kind: KindQuery, Err: err}
	}
	if !CanWithdraw(false, owed, false) {
		return nil, validation(ErrNothingOwed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.withdrawals[streamID]; ok {
		if err := prev.Dismiss(); errors.Is(err, ErrPending) {
			return nil, err
		}
	}
	f := newFlow(m.ctx, NewWithdraw(uuid.NewString()), m.chain, m.effects, s.SenderAgentID)
	m.withdrawals[streamID] = f
	slog.InfoContext(m.ctx, "flow_started", "flow_id", f.ID(), "kind", KindWithdraw, "stream_id", streamID, "owed", owed.String())
	if err := f.Submit(Submit{StreamID: streamID}); err != nil {
		return nil, err
	}
	return f, nil
}

// Withdrawal returns the latest withdrawal flow for streamID.
func (m *Manager) Withdrawal(streamID string) (*Flow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.withdrawals[streamID]
	return f, ok
}

// Pending reports whether a withdrawal on streamID is outstanding.
func (m *Manager) Pending(streamID string) bool {
	f, ok := m.Withdrawal(streamID)
	return ok && f.Snapshot().Busy()
}

// DismissWithdraw closes the withdrawal on streamID unless it is pending.
func (m *Manager) DismissWithdraw(streamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.withdrawals[streamID]
	if !ok {
		return ErrNotFound
	}
	if err := f.Dismiss(); err != nil && !errors.Is(err, ErrFinished) {
		return err
	}
	delete(m.withdrawals, streamID)
	return nil
}

// PushPayments submits the keeper call and returns the tx hash. The
// receipt is awaited in the background and reported through Notify.
func (m *Manager) PushPayments(ctx context.Context, streamID string) (string, error) {
	return m.action(ctx, "push_payments", streamID, m.chain.PushPayments)
}

// CloseStream submits closeStream. A stream that already reads as closed
// is refused before anything is sent.
func (m *Manager) CloseStream(ctx context.Context, streamID string) (string, error) {
	return m.action(ctx, "close_stream", streamID, m.chain.CloseStream)
}

func (m *Manager) action(ctx context.Context, name, streamID string, submit func(context.Context, *big.Int) (*types.Transaction, error)) (string, error) {
	s := m.session()
	if !s.Connected {
		return "", validation(ErrWalletNotConnected)
	}
	id, err := discovery.ParseID(streamID)
	if err != nil {
		return "", validation(ErrNoStreamSelected)
	}

	key := name + ":" + streamID
	m.mu.Lock()
	if m.actions[key] {
		m.mu.Unlock()
		return "", ErrPending
	}
	m.actions[key] = true
	m.mu.Unlock()

	tx, err := submit(ctx, id)
	if err != nil {
		m.clearAction(key)
		slog.WarnContext(ctx, "action_failed", "action", name, "stream_id", streamID, "error", err)
		return "", Classify(err)
	}
	hash := tx.Hash().Hex()

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		defer m.clearAction(key)
		n := Notice{Action: name, StreamID: streamID, TxHash: hash}
		if _, err := m.chain.WaitMined(m.ctx, tx); err != nil {
			le := Classify(err)
			n.Level, n.Title, n.Detail, n.Kind = LevelError, actionTitle(name)+" failed", le.Error(), le.Kind
			slog.WarnContext(m.ctx, "action_failed", "action", name, "stream_id", streamID, "tx", hash, "error", err)
		} else {
			n.Level, n.Title, n.Detail = LevelSuccess, actionTitle(name)+" confirmed", "Stream #"+streamID
			slog.InfoContext(m.ctx, "action_confirmed", "action", name, "stream_id", streamID, "tx", hash)
		}
		m.effects.Notify(m.ctx, n)
	}()
	return hash, nil
}

func (m *Manager) clearAction(key string) {
	m.mu.Lock()
	delete(m.actions, key)
	m.mu.Unlock()
}

// Shutdown stops every flow and waits for background receipts.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	flows := make([]*Flow, 0, len(m.withdrawals)+1)
	if m.deposit != nil {
		flows = append(flows, m.deposit)
	}
	for _, f := range m.withdrawals {
		flows = append(flows, f)
	}
	m.mu.Unlock()

	m.cancel()
	for _, f := range flows {
		f.shutdown()
	}
	m.bg.Wait()
}

func actionTitle(name string) string {
	switch name {
	case "push_payments":
		return "Payment push"
	case "close_stream":
		return "Stream close"
	}
	return name
}
