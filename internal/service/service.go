// Package service composes the stream dashboard: deposit and withdrawal
// flows, stream discovery, the aggregate rate and the console state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/console"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/discovery"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/events"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/lifecycle"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/mirror"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/model"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/store"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/units"
)

var (
	ErrInvalidAsset  = errors.New("asset is not a hex address")
	ErrInvalidStream = errors.New("invalid stream id")
	ErrNoMirror      = errors.New("mirror node not configured")
)

// Chain is the contract surface the service needs. *contract.Client
// satisfies it.
type Chain interface {
	lifecycle.Chain
	discovery.StreamReader
	RemainingAllowance(ctx context.Context, streamID *big.Int) (*big.Int, error)
	Account() common.Address
	Connected() bool
	TokenAddress() common.Address
	StreamingAddress() common.Address
	TokenDecimals(ctx context.Context) int32
}

type Options struct {
	CaptainAgentID  *big.Int
	Counterparts    []*big.Int
	RefreshInterval time.Duration
	ExplorerTxURL   string
	// Concurrency bounds parallel stream reads.
	Concurrency int
}

type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	chain      Chain
	mirror     *mirror.Client
	opts       Options
	manager    *lifecycle.Manager
	cache      *discovery.Cache
	discoverer *discovery.Discoverer
	aggregator *discovery.Aggregator
	console    *console.Log
	feed       *console.Feed
	roster     *console.Roster
	events     *events.Publisher

	mu          sync.Mutex
	watch       *discovery.Ticker
	refreshedAt time.Time
	bg          sync.WaitGroup
}

// New wires the service. The cache is scoped to the wallet address so
// two wallets never share a stream list. mq and source may be nil.
func New(ctx context.Context, chain Chain, st store.StreamStore, source discovery.LogSource, mq *mirror.Client, pub *events.Publisher, opts Options) *Service {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if pub == nil {
		pub = events.NewPublisher("aex-x402-streams")
	}
	ctx, cancel := context.WithCancel(ctx)

	owner := ""
	if chain.Connected() {
		owner = strings.ToLower(chain.Account().Hex())
	}
	cache := discovery.NewCache(st, owner)
	log := console.NewLog(console.DefaultLogSize)

	s := &Service{
		ctx:        ctx,
		cancel:     cancel,
		chain:      chain,
		mirror:     mq,
		opts:       opts,
		cache:      cache,
		discoverer: discovery.NewDiscoverer(cache, source, opts.CaptainAgentID),
		aggregator: discovery.NewAggregator(chain, opts.Concurrency),
		console:    log,
		feed:       console.NewFeed(opts.ExplorerTxURL),
		roster:     console.NewRoster(log),
		events:     pub,
	}
	pub.AddSink(s.mirrorToConsole)
	s.manager = lifecycle.NewManager(ctx, chain, s, s.session)

	slog.InfoContext(ctx, "stream service initialized",
		"wallet_connected", chain.Connected(),
		"captain_agent_id", opts.CaptainAgentID.String(),
		"counterparts", len(opts.Counterparts),
		"refresh_interval", opts.RefreshInterval.String(),
	)
	return s
}

func (s *Service) session() lifecycle.Session {
	return lifecycle.Session{
		Connected:     s.chain.Connected(),
		SenderAgentID: s.opts.CaptainAgentID,
		Counterparts:  s.opts.Counterparts,
		TokenAddress:  s.chain.TokenAddress(),
		Decimals:      s.chain.TokenDecimals(s.ctx),
	}
}

// Shutdown stops the watcher, every flow and pending event delivery.
func (s *Service) Shutdown() {
	s.StopWatch()
	s.manager.Shutdown()
	s.cancel()
	s.bg.Wait()
}

// Mirror is the ledger query client, or nil.
func (s *Service) Mirror() (*mirror.Client, error) {
	if s.mirror == nil {
		return nil, ErrNoMirror
	}
	return s.mirror, nil
}

func (s *Service) Wallet() model.Wallet {
	w := model.Wallet{
		Connected:        s.chain.Connected(),
		CaptainAgentID:   s.opts.CaptainAgentID.String(),
		ConnectedAgents:  make([]int64, 0, len(s.opts.Counterparts)),
		TokenAddress:     s.chain.TokenAddress().Hex(),
		StreamingAddress: s.chain.StreamingAddress().Hex(),
	}
	if w.Connected {
		w.Address = s.chain.Account().Hex()
	}
	for _, id := range s.opts.Counterparts {
		w.ConnectedAgents = append(w.ConnectedAgents, id.Int64())
	}
	return w
}

// Duration previews how long a deposit would stream.
func (s *Service) Duration(amount, rate string) model.Duration {
	return model.Duration{
		Amount:        amount,
		RatePerSecond: rate,
		Seconds:       int64(units.StreamDuration(amount, rate) / time.Second),
		Display:       units.FormatDuration(amount, rate),
	}
}

// StartDeposit validates the request and starts approve then open.
func (s *Service) StartDeposit(req model.DepositRequest) (model.Flow, error) {
	in := lifecycle.DepositInput{
		Amount:          strings.TrimSpace(req.Amount),
		RatePerSecond:   strings.TrimSpace(req.RatePerSecond),
		ReceiverAgentID: big.NewInt(req.ReceiverAgentID),
		Asset:           s.chain.TokenAddress(),
	}
	if req.Asset != "" {
		if !common.IsHexAddress(req.Asset) {
			return model.Flow{}, &lifecycle.Error{Kind: lifecycle.KindValidation, Err: ErrInvalidAsset}
		}
		in.Asset = common.HexToAddress(req.Asset)
	}
	f, err := s.manager.StartDeposit(in)
	if err != nil {
		return model.Flow{}, err
	}
	return s.flowView(f.Snapshot()), nil
}

func (s *Service) Deposit(id string) (model.Flow, error) {
	f, err := s.manager.Deposit(id)
	if err != nil {
		return model.Flow{}, err
	}
	return s.flowView(f.Snapshot()), nil
}

func (s *Service) DismissDeposit(id string) error {
	return s.manager.DismissDeposit(id)
}

func (s *Service) StartWithdraw(ctx context.Context, streamID string) (model.Flow, error) {
	f, err := s.manager.StartWithdraw(ctx, streamID)
	if err != nil {
		return model.Flow{}, err
	}
	return s.flowView(f.Snapshot()), nil
}

func (s *Service) Withdrawal(streamID string) (model.Flow, error) {
	f, ok := s.manager.Withdrawal(streamID)
	if !ok {
		return model.Flow{}, lifecycle.ErrNotFound
	}
	return s.flowView(f.Snapshot()), nil
}

func (s *Service) DismissWithdraw(streamID string) error {
	return s.manager.DismissWithdraw(streamID)
}

func (s *Service) PushPayments(ctx context.Context, streamID string) (model.ActionResult, error) {
	hash, err := s.manager.PushPayments(ctx, streamID)
	if err != nil {
		return model.ActionResult{}, err
	}
	return model.ActionResult{Action: "push_payments", StreamID: streamID, TxHash: hash, ExplorerURL: s.feed.ExplorerLink(hash)}, nil
}

func (s *Service) CloseStream(ctx context.Context, streamID string) (model.ActionResult, error) {
	hash, err := s.manager.CloseStream(ctx, streamID)
	if err != nil {
		return model.ActionResult{}, err
	}
	return model.ActionResult{Action: "close_stream", StreamID: streamID, TxHash: hash, ExplorerURL: s.feed.ExplorerLink(hash)}, nil
}

// Streams lists the user's streams newest first with what each owes. A
// stream whose reads fail is still listed, with owed unknown and its
// withdraw disabled.
func (s *Service) Streams(ctx context.Context, force bool) (model.StreamList, error) {
	ids, err := s.discover(ctx, force)
	if err != nil {
		return model.StreamList{}, err
	}
	s.aggregator.Refresh(ctx, ids)
	s.markRefreshed()

	decimals := s.chain.TokenDecimals(ctx)
	rows := make([]model.Stream, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			entry, _ := s.aggregator.Entry(id)
			rows[i] = s.streamRow(gctx, entry, decimals, false)
			return nil
		})
	}
	g.Wait()

	return model.StreamList{Streams: rows, Total: len(rows), Watching: s.Watching()}, nil
}

// Stream reads one stream fresh from the contract.
func (s *Service) Stream(ctx context.Context, streamID string) (model.Stream, error) {
	n, err := discovery.ParseID(streamID)
	if err != nil {
		return model.Stream{}, fmt.Errorf("%w: %q", ErrInvalidStream, streamID)
	}
	entry := discovery.Entry{ID: streamID, UpdatedAt: time.Now().UTC()}
	entry.Stream, entry.Err = s.chain.GetStreamData(ctx, n)
	if errors.Is(entry.Err, contract.ErrNoData) {
		return model.Stream{}, lifecycle.ErrNotFound
	}
	return s.streamRow(ctx, entry, s.chain.TokenDecimals(ctx), true), nil
}

func (s *Service) streamRow(ctx context.Context, e discovery.Entry, decimals int32, allowance bool) model.Stream {
	row := model.Stream{ID: e.ID, Owed: "0", OwedDisplay: "unknown", Pending: s.manager.Pending(e.ID)}
	if e.Err != nil {
		row.Error = e.Err.Error()
		return row
	}
	st := e.Stream
	row.SenderAgentID = bigString(st.SenderAgentID)
	row.ReceiverAgentID = bigString(st.ReceiverAgentID)
	if a, ok := console.ByTokenID(st.ReceiverAgentID); ok {
		row.ReceiverName = a.Name
	}
	row.Asset = st.Asset.Hex()
	row.RatePerSecond = bigString(st.RatePerSecond)
	if st.RatePerSecond != nil {
		row.RateDisplay = units.FromBaseUnits(st.RatePerSecond, decimals)
	}
	row.SpendingCap = bigString(st.SpendingCap)
	row.TotalPaid = bigString(st.TotalPaid)
	if st.StartTime != nil {
		row.StartTime = st.StartTime.Int64()
	}
	if st.LastPaidTime != nil {
		row.LastPaidTime = st.LastPaidTime.Int64()
	}
	row.Closed = st.Closed

	n, _ := discovery.ParseID(e.ID)
	owed, err := s.chain.CalculateOwed(ctx, n)
	if err != nil {
		row.Error = err.Error()
	} else {
		row.Owed = owed.String()
		row.OwedDisplay = units.FromBaseUnits(owed, decimals)
		row.CanWithdraw = lifecycle.CanWithdraw(st.Closed, owed, row.Pending)
	}
	if allowance {
		if rem, err := s.chain.RemainingAllowance(ctx, n); err == nil {
			row.RemainingAllowance = rem.String()
		}
	}
	return row
}

// Rate is the aggregate accrual across open streams. It refreshes when
// asked to or when nothing has been read yet.
func (s *Service) Rate(ctx context.Context, refresh bool) (model.Rate, error) {
	if refresh || s.lastRefresh().IsZero() {
		if err := s.refresh(ctx); err != nil {
			return model.Rate{}, err
		}
	}
	total := s.aggregator.Total()
	entries := s.aggregator.Entries()
	r := model.Rate{
		RatePerSecond: total.String(),
		Display:       units.FromBaseUnits(total, s.chain.TokenDecimals(ctx)),
		Streams:       len(entries),
		UpdatedAt:     s.lastRefresh(),
	}
	for _, e := range entries {
		switch {
		case e.Err != nil:
			r.Failed++
		case e.Counts():
			r.Counted++
		}
	}
	return r, nil
}

func (s *Service) refresh(ctx context.Context) error {
	ids, err := s.discover(ctx, false)
	if err != nil {
		return err
	}
	s.aggregator.Refresh(ctx, ids)
	s.markRefreshed()
	return nil
}

// discover lists stream ids. Store and log failures are query failures;
// a missing sender identity is left as is.
func (s *Service) discover(ctx context.Context, force bool) ([]string, error) {
	ids, err := s.discoverer.Streams(ctx, force)
	if err != nil && !errors.Is(err, discovery.ErrNoSender) {
		return nil, &lifecycle.Error{Kind: lifecycle.KindQuery, Err: err}
	}
	return ids, err
}

func (s *Service) markRefreshed() {
	s.mu.Lock()
	s.refreshedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Service) lastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshedAt
}

// StartWatch opens the withdrawal view: the aggregate is refreshed now
// and then every RefreshInterval until StopWatch.
func (s *Service) StartWatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch != nil {
		return false
	}
	s.watch = discovery.Every(s.ctx, s.opts.RefreshInterval, func(ctx context.Context) {
		if err := s.refresh(ctx); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "stream_refresh_failed", "error", err)
		}
	})
	slog.InfoContext(s.ctx, "stream_watch_started", "interval", s.opts.RefreshInterval.String())
	return true
}

// StopWatch closes the withdrawal view and waits for a running refresh.
func (s *Service) StopWatch() bool {
	s.mu.Lock()
	t := s.watch
	s.watch = nil
	s.mu.Unlock()
	if t == nil {
		return false
	}
	t.Stop()
	slog.InfoContext(s.ctx, "stream_watch_stopped")
	return true
}

func (s *Service) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watch != nil
}

func (s *Service) Agents() []console.Agent { return s.roster.List() }

func (s *Service) ToggleAgent(id string) (console.Agent, error) { return s.roster.Toggle(id) }

func (s *Service) Console(q console.Query) []console.Line { return s.console.Lines(q) }

func (s *Service) Notifications() []console.Notification { return s.feed.Active() }

func (s *Service) DismissNotification(id string) bool { return s.feed.Dismiss(id) }

func (s *Service) flowView(st lifecycle.State) model.Flow {
	v := model.Flow{
		ID:         st.ID,
		Kind:       string(st.Kind),
		Stage:      string(st.Stage),
		Busy:       st.Busy(),
		StreamID:   st.StreamID,
		PendingTx:  st.PendingTx,
		ApproveTx:  st.ApproveTx,
		StreamTx:   st.StreamTx,
		WithdrawTx: st.WithdrawTx,
		History:    make([]string, len(st.History)),
	}
	for i, h := range st.History {
		v.History[i] = string(h)
	}
	if st.Kind == lifecycle.KindDeposit && st.Input.Amount != "" {
		v.Amount = st.Input.Amount
		v.RatePerSecond = st.Input.RatePerSecond
		v.ReceiverAgentID = bigString(st.Input.ReceiverAgentID)
		v.Duration = units.FormatDuration(st.Input.Amount, st.Input.RatePerSecond)
	}
	if st.Stage == lifecycle.StageSuccess {
		v.StreamLabel = "#unknown"
		if st.StreamID != "" {
			v.StreamLabel = "#" + st.StreamID
		}
	}
	switch {
	case st.WithdrawTx != "":
		v.ExplorerURL = s.feed.ExplorerLink(st.WithdrawTx)
	case st.StreamTx != "":
		v.ExplorerURL = s.feed.ExplorerLink(st.StreamTx)
	}
	if st.Err != nil {
		v.Error = &model.FlowError{Kind: string(st.Err.Kind), Message: st.Err.Error()}
	}
	return v
}

func bigString(n *big.Int) string {
	if n == nil {
		return ""
	}
	return n.String()
}
