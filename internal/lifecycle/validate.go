package lifecycle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/discovery"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/units"
)

// Session is the locally held state validation runs against.
type Session struct {
	Connected     bool
	SenderAgentID *big.Int
	Counterparts  []*big.Int
	TokenAddress  common.Address
	// Decimals of the token; amounts that truncate to zero are refused.
	Decimals      int32
}

// DepositInput is what the deposit form submits. Amount and rate are
// human amounts of the asset.
type DepositInput struct {
	Amount          string         `json:"amount"`
	RatePerSecond   string         `json:"rate_per_second"`
	ReceiverAgentID *big.Int       `json:"receiver_agent_id"`
	Asset           common.Address `json:"asset"`
}

// ValidateDeposit checks, in order: wallet, amount, sender, counterparts
// and receiver, rate, asset. The first failure is returned. It never
// touches the network.
func ValidateDeposit(s Session, in DepositInput) error {
	if !s.Connected {
		return validation(ErrWalletNotConnected)
	}
	if !positiveBaseUnits(in.Amount, s.Decimals) {
		return validation(ErrInvalidAmount)
	}
	if !registered(s.SenderAgentID) {
		return validation(ErrSenderNotRegistered)
	}
	if len(s.Counterparts) == 0 {
		return validation(ErrNoCounterparts)
	}
	if in.ReceiverAgentID == nil || !contains(s.Counterparts, in.ReceiverAgentID) {
		return validation(ErrUnknownReceiver)
	}
	if in.ReceiverAgentID.Cmp(s.SenderAgentID) == 0 {
		return validation(ErrReceiverIsSender)
	}
	if !positiveBaseUnits(in.RatePerSecond, s.Decimals) {
		return validation(ErrInvalidRate)
	}
	if in.Asset == contract.NativeAsset || in.Asset != s.TokenAddress {
		return &Error{Kind: KindValidation, Err: contract.ErrUnsupportedAsset}
	}
	return nil
}

// ValidateWithdraw checks wallet, sender and the selected stream id.
func ValidateWithdraw(s Session, streamID string) error {
	if !s.Connected {
		return validation(ErrWalletNotConnected)
	}
	if !registered(s.SenderAgentID) {
		return validation(ErrSenderNotRegistered)
	}
	if streamID == "" || !discovery.ValidID(streamID) {
		return validation(ErrNoStreamSelected)
	}
	return nil
}

// CanWithdraw is the withdraw trigger's enabled state. A closed stream
// owes nothing.
func CanWithdraw(closed bool, owed *big.Int, pending bool) bool {
	return !closed && !pending && owed != nil && owed.Sign() > 0
}

// positiveBaseUnits reports whether amount is still positive once
// truncated to the token's smallest unit.
func positiveBaseUnits(amount string, decimals int32) bool {
	if _, ok := units.ParsePositive(amount); !ok {
		return false
	}
	v, err := units.ToBaseUnits(amount, decimals)
	return err == nil && v.Sign() > 0
}

func registered(id *big.Int) bool {
	return id != nil && id.Sign() > 0
}

func contains(ids []*big.Int, id *big.Int) bool {
	for _, c := range ids {
		if c != nil && c.Cmp(id) == 0 {
			return true
		}
	}
	return false
}
