package testutil

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/units"
)

// StreamingAddress is the streaming contract the fake chain reports.
var StreamingAddress = common.HexToAddress("0x00000000000000000000000000000000006a2b3c")

// FakeChain is an in-memory stand-in for contract.Client. Streams are
// keyed by id; a missing id reads as contract.ErrNoData.
type FakeChain struct {
	mu        sync.Mutex
	calls     []string
	nonce     uint64
	methods   map[common.Hash]string
	gates     map[string]chan struct{}
	streams   map[int64]contract.Stream
	owed      map[int64]*big.Int
	readErrs  map[int64]error
	submitErr map[string]error
	reverts   map[string]bool
	openLogs  []*types.Log

	// Wallet false makes every write fail with contract.ErrNoWallet.
	Wallet     bool
	Addr       common.Address
	NextStream int64
}

func NewFakeChain() *FakeChain {
	return &FakeChain{
		methods:    map[common.Hash]string{},
		gates:      map[string]chan struct{}{},
		streams:    map[int64]contract.Stream{},
		owed:       map[int64]*big.Int{},
		readErrs:   map[int64]error{},
		submitErr:  map[string]error{},
		reverts:    map[string]bool{},
		Wallet:     true,
		Addr:       common.HexToAddress("0x00000000000000000000000000000000000a11ce"),
		NextStream: 42,
	}
}

// SetStream stores a stream record and what it owes.
func (f *FakeChain) SetStream(id int64, s contract.Stream, owed int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[id] = s
	f.owed[id] = big.NewInt(owed)
}

// FailReads makes every read of id return err.
func (f *FakeChain) FailReads(id int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErrs[id] = err
}

// FailSubmit makes the named method fail before a transaction exists.
func (f *FakeChain) FailSubmit(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr[method] = err
}

// Revert makes the named method's receipt report failure.
func (f *FakeChain) Revert(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverts[method] = true
}

// SetOpenLogs replaces the StreamOpened log normally attached to
// openStream receipts.
func (f *FakeChain) SetOpenLogs(logs []*types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openLogs = logs
}

// Hold blocks receipts of method until the returned channel is closed.
func (f *FakeChain) Hold(method string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[method] = ch
	return ch
}

// Calls lists submitted methods in order.
func (f *FakeChain) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeChain) send(method string) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Wallet {
		return nil, contract.ErrNoWallet
	}
	f.calls = append(f.calls, method)
	if err := f.submitErr[method]; err != nil {
		return nil, err
	}
	f.nonce++
	tx := types.NewTx(&types.LegacyTx{Nonce: f.nonce, Gas: 21000, GasPrice: big.NewInt(1)})
	f.methods[tx.Hash()] = method
	return tx, nil
}

func (f *FakeChain) Account() common.Address          { return f.Addr }
func (f *FakeChain) Connected() bool                  { return f.Wallet }
func (f *FakeChain) TokenAddress() common.Address     { return TokenAddress }
func (f *FakeChain) StreamingAddress() common.Address { return StreamingAddress }

func (f *FakeChain) TokenDecimals(ctx context.Context) int32 { return units.USDCDecimals }

func (f *FakeChain) ToBaseUnits(ctx context.Context, amount string) (*big.Int, error) {
	return units.ToBaseUnits(amount, units.USDCDecimals)
}

func (f *FakeChain) ApproveSpend(ctx context.Context, amount *big.Int) (*types.Transaction, error) {
	return f.send("approve")
}

func (f *FakeChain) OpenStream(ctx context.Context, p contract.OpenParams) (*types.Transaction, error) {
	tx, err := f.send("openStream")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.streams[f.NextStream] = contract.Stream{
		SenderAgentID:   p.SenderAgentID,
		ReceiverAgentID: p.ReceiverAgentID,
		Asset:           p.Asset,
		RatePerSecond:   p.RatePerSecond,
		SpendingCap:     p.SpendingCap,
		TotalPaid:       new(big.Int),
		StartTime:       big.NewInt(1_700_000_000),
		LastPaidTime:    big.NewInt(1_700_000_000),
	}
	f.owed[f.NextStream] = new(big.Int)
	f.mu.Unlock()
	return tx, nil
}

func (f *FakeChain) Withdraw(ctx context.Context, id *big.Int) (*types.Transaction, error) {
	return f.send("withdraw")
}

func (f *FakeChain) PushPayments(ctx context.Context, id *big.Int) (*types.Transaction, error) {
	return f.send("pushPayments")
}

func (f *FakeChain) CloseStream(ctx context.Context, id *big.Int) (*types.Transaction, error) {
	s, err := f.GetStreamData(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Closed {
		return nil, contract.ErrStreamClosed
	}
	return f.send("closeStream")
}

func (f *FakeChain) GetStreamData(ctx context.Context, id *big.Int) (contract.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErrs[id.Int64()]; err != nil {
		return contract.Stream{}, err
	}
	s, ok := f.streams[id.Int64()]
	if !ok {
		return contract.Stream{}, contract.ErrNoData
	}
	return s, nil
}

func (f *FakeChain) CalculateOwed(ctx context.Context, id *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErrs[id.Int64()]; err != nil {
		return nil, err
	}
	owed, ok := f.owed[id.Int64()]
	if !ok {
		return nil, contract.ErrNoData
	}
	return new(big.Int).Set(owed), nil
}

func (f *FakeChain) RemainingAllowance(ctx context.Context, id *big.Int) (*big.Int, error) {
	s, err := f.GetStreamData(ctx, id)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(s.SpendingCap, s.TotalPaid), nil
}

// WaitMined releases held receipts, applies reverts and attaches a
// StreamOpened log to openStream receipts.
func (f *FakeChain) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	f.mu.Lock()
	method := f.methods[tx.Hash()]
	gate := f.gates[method]
	revert := f.reverts[method]
	next := f.NextStream
	logs := f.openLogs
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if revert {
		return nil, contract.ErrTransactionFailed
	}
	r := &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash()}
	if method == "openStream" {
		r.Logs = logs
		if r.Logs == nil {
			r.Logs = []*types.Log{{Topics: []common.Hash{
				contract.StreamOpenedTopic,
				common.BigToHash(big.NewInt(next)),
				common.BigToHash(big.NewInt(1)),
			}}}
		}
	}
	return r, nil
}
