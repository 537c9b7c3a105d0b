package contract

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrEventNotFound = errors.New("stream opened event not found")

// ParseStreamOpened recovers the stream id from the first log whose
// topics[0] is the StreamOpened signature. The id is topics[1].
func ParseStreamOpened(logs []*types.Log) (*big.Int, error) {
	for _, l := range logs {
		if l == nil || len(l.Topics) < 2 {
			continue
		}
		if l.Topics[0] != StreamOpenedTopic {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()), nil
	}
	return nil, ErrEventNotFound
}

// IDTopic encodes an integer id as a 256-bit topic.
func IDTopic(id *big.Int) common.Hash {
	return common.BigToHash(id)
}

// TopicID decodes a hex topic such as "0x2a" or a full 32-byte word.
func TopicID(topic string) (*big.Int, bool) {
	if topic == "" {
		return nil, false
	}
	digits := strings.TrimLeft(strings.TrimPrefix(strings.TrimPrefix(topic, "0x"), "0X"), "0")
	if digits == "" {
		digits = "0"
	}
	n, err := hexutil.DecodeBig("0x" + digits)
	if err != nil {
		return nil, false
	}
	return n, true
}
