package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// StreamingABIJSON is the subset of the X402Streaming interface the console uses.
const StreamingABIJSON = `[
 {"type":"function","name":"openStream","stateMutability":"payable",
  "inputs":[{"name":"senderAgentId","type":"uint256"},{"name":"receiverAgentId","type":"uint256"},
            {"name":"ratePerSecond","type":"uint256"},{"name":"spendingCap","type":"uint256"},
            {"name":"asset","type":"address"}],
  "outputs":[{"name":"streamId","type":"uint256"}]},
 {"type":"function","name":"pushPayments","stateMutability":"nonpayable",
  "inputs":[{"name":"streamId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"withdraw","stateMutability":"nonpayable",
  "inputs":[{"name":"streamId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"closeStream","stateMutability":"nonpayable",
  "inputs":[{"name":"streamId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"getStreamData","stateMutability":"view",
  "inputs":[{"name":"streamId","type":"uint256"}],
  "outputs":[{"name":"senderAgentId","type":"uint256"},{"name":"receiverAgentId","type":"uint256"},
             {"name":"asset","type":"address"},{"name":"ratePerSecond","type":"uint256"},
             {"name":"spendingCap","type":"uint256"},{"name":"totalPaid","type":"uint256"},
             {"name":"startTime","type":"uint256"},{"name":"lastPaidTime","type":"uint256"},
             {"name":"closed","type":"bool"}]},
 {"type":"function","name":"remainingAllowance","stateMutability":"view",
  "inputs":[{"name":"streamId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"calculateOwed","stateMutability":"view",
  "inputs":[{"name":"streamId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"event","name":"StreamOpened","anonymous":false,
  "inputs":[{"name":"streamId","type":"uint256","indexed":true},
            {"name":"senderAgentId","type":"uint256","indexed":true},
            {"name":"receiverAgentId","type":"uint256","indexed":true},
            {"name":"asset","type":"address","indexed":false},
            {"name":"ratePerSecond","type":"uint256","indexed":false},
            {"name":"spendingCap","type":"uint256","indexed":false}]}
]`

// TokenABIJSON covers approve/allowance/decimals of a standard fungible token.
const TokenABIJSON = `[
 {"type":"function","name":"approve","stateMutability":"nonpayable",
  "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"allowance","stateMutability":"view",
  "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"decimals","stateMutability":"view",
  "inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var (
	StreamingABI = mustParse(StreamingABIJSON)
	TokenABI     = mustParse(TokenABIJSON)

	// StreamOpenedTopic is topics[0] of every StreamOpened log.
	StreamOpenedTopic = StreamingABI.Events["StreamOpened"].ID

	// NativeAsset is the sentinel address for the chain's native coin.
	NativeAsset = common.Address{}
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("contract: bad abi: " + err.Error())
	}
	return parsed
}
