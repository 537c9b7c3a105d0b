package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
)

// TokenAddress is the fungible token the fixtures stream.
var TokenAddress = common.HexToAddress("0x0000000000000000000000000000000000068cda")

// StreamFixture builds contract.Stream values for tests.
type StreamFixture struct {
	s contract.Stream
}

// NewStreamFixture is an open stream from agent 1 to agent 2 at 100 units/s
// with a cap of 1,000,000 and 250 paid.
func NewStreamFixture() StreamFixture {
	return StreamFixture{s: contract.Stream{
		SenderAgentID:   big.NewInt(1),
		ReceiverAgentID: big.NewInt(2),
		Asset:           TokenAddress,
		RatePerSecond:   big.NewInt(100),
		SpendingCap:     big.NewInt(1_000_000),
		TotalPaid:       big.NewInt(250),
		StartTime:       big.NewInt(1_700_000_000),
		LastPaidTime:    big.NewInt(1_700_000_010),
	}}
}

func (f StreamFixture) WithAgents(sender, receiver int64) StreamFixture {
	f.s.SenderAgentID = big.NewInt(sender)
	f.s.ReceiverAgentID = big.NewInt(receiver)
	return f
}

func (f StreamFixture) WithRate(rate int64) StreamFixture {
	f.s.RatePerSecond = big.NewInt(rate)
	return f
}

func (f StreamFixture) WithTotalPaid(paid int64) StreamFixture {
	f.s.TotalPaid = big.NewInt(paid)
	return f
}

func (f StreamFixture) Closed() StreamFixture {
	f.s.Closed = true
	return f
}

func (f StreamFixture) Build() contract.Stream {
	return f.s
}
