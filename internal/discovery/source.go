package discovery

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/mirror"
)

// LogSource replays StreamOpened events to find the ids a sender opened.
type LogSource interface {
	StreamsOpenedBy(ctx context.Context, sender *big.Int) ([]*big.Int, error)
}

// ContractLogLister is the mirror-node call MirrorLogs needs.
type ContractLogLister interface {
	ListContractLogs(ctx context.Context, idOrAddress string, f mirror.LogFilter) ([]mirror.ContractLog, error)
}

// MirrorLogs reads the indexed contract logs of the ledger's mirror node.
type MirrorLogs struct {
	Mirror   ContractLogLister
	Contract string
}

func (m MirrorLogs) StreamsOpenedBy(ctx context.Context, sender *big.Int) ([]*big.Int, error) {
	logs, err := m.Mirror.ListContractLogs(ctx, m.Contract, mirror.LogFilter{
		Topic0: contract.StreamOpenedTopic.Hex(),
		Topic2: contract.IDTopic(sender).Hex(),
	})
	if err != nil {
		return nil, err
	}
	ids := make([]*big.Int, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) < 2 {
			continue
		}
		id, ok := contract.TopicID(l.Topics[1])
		if !ok {
			slog.WarnContext(ctx, "stream_log_undecodable", "tx", l.TransactionHash, "topic", l.Topics[1])
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// StreamOpenedFilterer is the node log query NodeLogs needs.
type StreamOpenedFilterer interface {
	FilterStreamOpened(ctx context.Context, sender *big.Int, fromBlock uint64) ([]*big.Int, error)
}

// NodeLogs queries the JSON-RPC node directly with eth_getLogs.
type NodeLogs struct {
	Contract  StreamOpenedFilterer
	FromBlock uint64
}

func (n NodeLogs) StreamsOpenedBy(ctx context.Context, sender *big.Int) ([]*big.Int, error) {
	return n.Contract.FilterStreamOpened(ctx, sender, n.FromBlock)
}
