// Package contract is a typed client for the X402Streaming payment contract
// and the fungible token it streams.
package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/units"
)

var (
	ErrNoWallet            = errors.New("no wallet connected")
	ErrTransactionRejected = errors.New("transaction rejected by signer")
	ErrNetwork             = errors.New("transaction submission failed")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrStreamClosed        = errors.New("stream already closed")
	ErrUnsupportedAsset    = errors.New("contract only accepts the configured token")
	ErrNoData              = errors.New("no stream data")
)

// Backend is what the client needs from a chain connection.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Config parameterizes the client.
type Config struct {
	StreamingAddress common.Address
	TokenAddress     common.Address
	TokenDecimals    int32
	GasLimit         uint64
}

// Stream is the contract's record for one stream.
type Stream struct {
	SenderAgentID   *big.Int
	ReceiverAgentID *big.Int
	Asset           common.Address
	RatePerSecond   *big.Int
	SpendingCap     *big.Int
	TotalPaid       *big.Int
	StartTime       *big.Int
	LastPaidTime    *big.Int
	Closed          bool
}

// OpenParams are the arguments of openStream, already in smallest units.
type OpenParams struct {
	SenderAgentID   *big.Int
	ReceiverAgentID *big.Int
	RatePerSecond   *big.Int
	SpendingCap     *big.Int
	Asset           common.Address
}

// Client wraps bound instances of the streaming contract and its token.
type Client struct {
	cfg       Config
	streaming *bind.BoundContract
	token     *bind.BoundContract
	filterer  bind.ContractFilterer
	receipts  bind.DeployBackend
	signer    *bind.TransactOpts

	decimalsMu sync.Mutex
	decimals   int32
	haveDec    bool
}

// NewClient binds both contracts on backend. signer may be nil, in which
// case reads work and every write fails with ErrNoWallet.
func NewClient(backend Backend, signer *bind.TransactOpts, cfg Config) *Client {
	return newClient(backend, backend, backend, backend, signer, cfg)
}

func newClient(caller bind.ContractCaller, transactor bind.ContractTransactor, filterer bind.ContractFilterer, receipts bind.DeployBackend, signer *bind.TransactOpts, cfg Config) *Client {
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = units.USDCDecimals
	}
	return &Client{
		cfg:       cfg,
		streaming: bind.NewBoundContract(cfg.StreamingAddress, StreamingABI, caller, transactor, filterer),
		token:     bind.NewBoundContract(cfg.TokenAddress, TokenABI, caller, transactor, filterer),
		filterer:  filterer,
		receipts:  receipts,
		signer:    signer,
	}
}

// Account is the signer's address, or the zero address without a wallet.
func (c *Client) Account() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.From
}

// Connected reports whether a signer is configured.
func (c *Client) Connected() bool {
	return c.signer != nil && c.signer.From != (common.Address{})
}

func (c *Client) TokenAddress() common.Address { return c.cfg.TokenAddress }
func (c *Client) StreamingAddress() common.Address { return c.cfg.StreamingAddress }

// TokenDecimals reads decimals() and caches the answer. Until a read
// succeeds the configured value is used and the next call tries again.
func (c *Client) TokenDecimals(ctx context.Context) int32 {
	c.decimalsMu.Lock()
	defer c.decimalsMu.Unlock()
	if c.haveDec {
		return c.decimals
	}
	d, err := c.Decimals(ctx)
	if err != nil {
		slog.WarnContext(ctx, "token decimals lookup failed, using configured value",
			"token", c.cfg.TokenAddress.Hex(),
			"decimals", c.cfg.TokenDecimals,
			"error", err,
		)
		return c.cfg.TokenDecimals
	}
	c.decimals, c.haveDec = int32(d), true
	return c.decimals
}

// ToBaseUnits converts a human amount of the token into smallest units.
func (c *Client) ToBaseUnits(ctx context.Context, amount string) (*big.Int, error) {
	return units.ToBaseUnits(amount, c.TokenDecimals(ctx))
}

// --- writes ---

// ApproveSpend lets the streaming contract move amount of the token.
func (c *Client) ApproveSpend(ctx context.Context, amount *big.Int) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.token.Transact(opts, "approve", c.cfg.StreamingAddress, amount)
	if err != nil {
		return nil, classify("approve", err)
	}
	slog.InfoContext(ctx, "approve_submitted", "tx", tx.Hash().Hex(), "amount", amount.String())
	return tx, nil
}

// OpenStream submits the stream creation transaction. The caller must
// already hold enough allowance; nothing is retried here.
func (c *Client) OpenStream(ctx context.Context, p OpenParams) (*types.Transaction, error) {
	if p.Asset != c.cfg.TokenAddress {
		return nil, ErrUnsupportedAsset
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.streaming.Transact(opts, "openStream",
		p.SenderAgentID, p.ReceiverAgentID, p.RatePerSecond, p.SpendingCap, p.Asset)
	if err != nil {
		return nil, classify("openStream", err)
	}
	slog.InfoContext(ctx, "open_stream_submitted",
		"tx", tx.Hash().Hex(),
		"sender_agent_id", p.SenderAgentID.String(),
		"receiver_agent_id", p.ReceiverAgentID.String(),
		"rate_per_second", p.RatePerSecond.String(),
		"spending_cap", p.SpendingCap.String(),
	)
	return tx, nil
}

// PushPayments settles accrued payments. Anyone may call it.
func (c *Client) PushPayments(ctx context.Context, streamID *big.Int) (*types.Transaction, error) {
	return c.streamCall(ctx, "pushPayments", streamID)
}

// Withdraw pulls the owed amount to the receiver. The contract reverts
// when the caller does not control the receiver identity.
func (c *Client) Withdraw(ctx context.Context, streamID *big.Int) (*types.Transaction, error) {
	return c.streamCall(ctx, "withdraw", streamID)
}

// CloseStream terminates a stream. A stream that already reads as closed
// is refused without submitting anything.
func (c *Client) CloseStream(ctx context.Context, streamID *big.Int) (*types.Transaction, error) {
	s, err := c.GetStreamData(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if s.Closed {
		return nil, ErrStreamClosed
	}
	return c.streamCall(ctx, "closeStream", streamID)
}

func (c *Client) streamCall(ctx context.Context, method string, streamID *big.Int) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.streaming.Transact(opts, method, streamID)
	if err != nil {
		return nil, classify(method, err)
	}
	slog.InfoContext(ctx, "stream_tx_submitted", "method", method, "stream_id", streamID.String(), "tx", tx.Hash().Hex())
	return tx, nil
}

// WaitMined blocks until tx has a receipt. A reverted receipt is returned
// together with ErrTransactionFailed. There is no timeout beyond ctx.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.receipts, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: wait %s: %v", ErrNetwork, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s reverted", ErrTransactionFailed, tx.Hash().Hex())
	}
	return receipt, nil
}

// --- reads ---

// Allowance is how much of the token the streaming contract may move for owner.
func (c *Client) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out []any
	if err := c.token.Call(c.callOpts(ctx), &out, "allowance", owner, c.cfg.StreamingAddress); err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	return firstBig(out)
}

// Decimals reads the token's decimals().
func (c *Client) Decimals(ctx context.Context) (uint8, error) {
	var out []any
	if err := c.token.Call(c.callOpts(ctx), &out, "decimals"); err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	if len(out) != 1 {
		return 0, ErrNoData
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", out[0])
	}
	return d, nil
}

// GetStreamData reads the stream record.
func (c *Client) GetStreamData(ctx context.Context, streamID *big.Int) (Stream, error) {
	var out []any
	if err := c.streaming.Call(c.callOpts(ctx), &out, "getStreamData", streamID); err != nil {
		return Stream{}, fmt.Errorf("getStreamData %s: %w", streamID, err)
	}
	if len(out) != 9 {
		return Stream{}, ErrNoData
	}
	var s Stream
	var ok [9]bool
	s.SenderAgentID, ok[0] = out[0].(*big.Int)
	s.ReceiverAgentID, ok[1] = out[1].(*big.Int)
	s.Asset, ok[2] = out[2].(common.Address)
	s.RatePerSecond, ok[3] = out[3].(*big.Int)
	s.SpendingCap, ok[4] = out[4].(*big.Int)
	s.TotalPaid, ok[5] = out[5].(*big.Int)
	s.StartTime, ok[6] = out[6].(*big.Int)
	s.LastPaidTime, ok[7] = out[7].(*big.Int)
	s.Closed, ok[8] = out[8].(bool)
	for i, good := range ok {
		if !good {
			return Stream{}, fmt.Errorf("getStreamData: field %d has type %T", i, out[i])
		}
	}
	return s, nil
}

// RemainingAllowance is the unspent part of the stream's cap.
func (c *Client) RemainingAllowance(ctx context.Context, streamID *big.Int) (*big.Int, error) {
	var out []any
	if err := c.streaming.Call(c.callOpts(ctx), &out, "remainingAllowance", streamID); err != nil {
		return nil, fmt.Errorf("remainingAllowance %s: %w", streamID, err)
	}
	return firstBig(out)
}

// CalculateOwed is the amount accrued but not yet paid.
func (c *Client) CalculateOwed(ctx context.Context, streamID *big.Int) (*big.Int, error) {
	var out []any
	if err := c.streaming.Call(c.callOpts(ctx), &out, "calculateOwed", streamID); err != nil {
		return nil, fmt.Errorf("calculateOwed %s: %w", streamID, err)
	}
	return firstBig(out)
}

// FilterStreamOpened returns the ids of streams opened by sender, read
// straight from the node's log index starting at fromBlock.
func (c *Client) FilterStreamOpened(ctx context.Context, sender *big.Int, fromBlock uint64) ([]*big.Int, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{c.cfg.StreamingAddress},
		Topics:    [][]common.Hash{{StreamOpenedTopic}, nil, {IDTopic(sender)}},
	}
	logs, err := c.filterer.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter StreamOpened: %w", err)
	}
	ids := make([]*big.Int, 0, len(logs))
	for i := range logs {
		id, err := ParseStreamOpened([]*types.Log{&logs[i]})
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx, From: c.Account()}
}

func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if !c.Connected() {
		return nil, ErrNoWallet
	}
	opts := *c.signer
	opts.Context = ctx
	if c.cfg.GasLimit > 0 {
		opts.GasLimit = c.cfg.GasLimit
	}
	sign := c.signer.Signer
	opts.Signer = func(from common.Address, tx *types.Transaction) (*types.Transaction, error) {
		signed, err := sign(from, tx)
		if err != nil {
			return nil, &signError{err: err}
		}
		return signed, nil
	}
	return &opts, nil
}

type signError struct{ err error }

func (e *signError) Error() string { return e.err.Error() }
func (e *signError) Unwrap() error { return e.err }

// classify maps a Transact failure onto the client's error taxonomy.
func classify(method string, err error) error {
	var se *signError
	switch {
	case errors.As(err, &se):
		return fmt.Errorf("%w: %s: %v", ErrTransactionRejected, method, se.err)
	case strings.Contains(err.Error(), "execution reverted"):
		return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, method, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrNetwork, method, err)
	}
}

func firstBig(out []any) (*big.Int, error) {
	if len(out) != 1 {
		return nil, ErrNoData
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", out[0])
	}
	return v, nil
}
