package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/mirror"
)

// mirrorQuery runs q against the ledger client and writes its result.
func (h *Handlers) mirrorQuery(w http.ResponseWriter, r *http.Request, q func(context.Context, *mirror.Client) (any, error)) {
	mq, err := h.svc.Mirror()
	if err != nil {
		respondError(w, r, err)
		return
	}
	out, err := q(r.Context(), mq)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /v1/chain/accounts/{id}
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		return mq.GetAccount(ctx, r.PathValue("id"))
	})
}

// GET /v1/chain/accounts/{id}/tokens?token.id={t}&limit={n}
func (h *Handlers) ListAccountTokens(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		tokens, err := mq.ListAccountTokens(ctx, r.PathValue("id"), r.URL.Query().Get("token.id"), pageFrom(r))
		return map[string]any{"tokens": tokens}, err
	})
}

// GET /v1/chain/accounts/{id}/nfts?token.id={t}&serialnumber={n}
func (h *Handlers) ListAccountNFTs(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		nfts, err := mq.ListAccountNFTs(ctx, r.PathValue("id"), nftFilterFrom(r))
		return map[string]any{"nfts": nfts}, err
	})
}

// GET /v1/chain/accounts/{id}/rewards
func (h *Handlers) ListStakingRewards(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		rewards, err := mq.ListStakingRewards(ctx, r.PathValue("id"), pageFrom(r))
		return map[string]any{"rewards": rewards}, err
	})
}

// GET /v1/chain/transactions?account.id={a}&transactiontype={t}&result={r}
func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		txs, err := mq.ListTransactions(ctx, mirror.TransactionFilter{
			Page:      pageFrom(r),
			AccountID: q.Get("account.id"),
			Type:      q.Get("transactiontype"),
			Result:    q.Get("result"),
		})
		return map[string]any{"transactions": txs}, err
	})
}

// GET /v1/chain/transactions/{id}
func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		txs, err := mq.GetTransaction(ctx, r.PathValue("id"))
		return map[string]any{"transactions": txs}, err
	})
}

// GET /v1/chain/blocks
func (h *Handlers) ListBlocks(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		blocks, err := mq.ListBlocks(ctx, pageFrom(r))
		return map[string]any{"blocks": blocks}, err
	})
}

// GET /v1/chain/blocks/{id} where id is a hash or a number.
func (h *Handlers) GetBlock(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		return mq.GetBlock(ctx, r.PathValue("id"))
	})
}

// GET /v1/chain/tokens/{id}
func (h *Handlers) GetToken(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		return mq.GetToken(ctx, r.PathValue("id"))
	})
}

// GET /v1/chain/tokens/{id}/balances?account.id={a}
func (h *Handlers) ListTokenBalances(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		balances, err := mq.ListTokenBalances(ctx, r.PathValue("id"), r.URL.Query().Get("account.id"), pageFrom(r))
		return map[string]any{"balances": balances}, err
	})
}

// GET /v1/chain/tokens/{id}/nfts?account.id={a}&serialnumber={n}
func (h *Handlers) ListTokenNFTs(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		nfts, err := mq.ListTokenNFTs(ctx, r.PathValue("id"), nftFilterFrom(r))
		return map[string]any{"nfts": nfts}, err
	})
}

// GET /v1/chain/tokens/{id}/nfts/{serial}
func (h *Handlers) GetNFT(w http.ResponseWriter, r *http.Request) {
	serial, ok := serialFrom(w, r)
	if !ok {
		return
	}
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		return mq.GetNFT(ctx, r.PathValue("id"), serial)
	})
}

// GET /v1/chain/tokens/{id}/nfts/{serial}/transactions
func (h *Handlers) ListNFTTransactions(w http.ResponseWriter, r *http.Request) {
	serial, ok := serialFrom(w, r)
	if !ok {
		return
	}
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		txs, err := mq.ListNFTTransactions(ctx, r.PathValue("id"), serial, pageFrom(r))
		return map[string]any{"transactions": txs}, err
	})
}

// GET /v1/chain/network/exchangerate?timestamp={ts}
func (h *Handlers) GetExchangeRate(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		return mq.GetExchangeRate(ctx, r.URL.Query().Get("timestamp"))
	})
}

// GET /v1/chain/network/fees?order={asc|desc}&timestamp={ts}
func (h *Handlers) GetNetworkFees(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		p := pageFrom(r)
		return mq.GetNetworkFees(ctx, p.Order, p.Timestamp)
	})
}

// GET /v1/chain/network/nodes?file.id={f}&node.id={n}
func (h *Handlers) ListNetworkNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		nodes, err := mq.ListNetworkNodes(ctx, q.Get("file.id"), q.Get("node.id"), pageFrom(r))
		return map[string]any{"nodes": nodes}, err
	})
}

// GET /v1/chain/network/stake
func (h *Handlers) GetNetworkStake(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		return mq.GetNetworkStake(ctx)
	})
}

// GET /v1/chain/network/supply?timestamp={ts}
func (h *Handlers) GetNetworkSupply(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		return mq.GetNetworkSupply(ctx, r.URL.Query().Get("timestamp"))
	})
}

// GET /v1/chain/contracts?contract.id={c}
func (h *Handlers) ListContracts(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		contracts, err := mq.ListContracts(ctx, r.URL.Query().Get("contract.id"), pageFrom(r))
		return map[string]any{"contracts": contracts}, err
	})
}

// GET /v1/chain/contracts/{id}
func (h *Handlers) GetContract(w http.ResponseWriter, r *http.Request) {
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		return mq.GetContract(ctx, r.PathValue("id"))
	})
}

// GET /v1/chain/contracts/{id}/results?block.hash={h}&block.number={n}&from={a}
func (h *Handlers) ListContractResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		results, err := mq.ListContractResults(ctx, r.PathValue("id"), mirror.ResultFilter{
			Page:        pageFrom(r),
			BlockHash:   q.Get("block.hash"),
			BlockNumber: q.Get("block.number"),
			From:        q.Get("from"),
		})
		return map[string]any{"results": results}, err
	})
}

// GET /v1/chain/contracts/{id}/logs?topic0=..&topic1=..&topic2=..&topic3=..
func (h *Handlers) ListContractLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.mirrorQuery(w, r, func(ctx context.Context, mq *mirror.Client) (any, error) {
		logs, err := mq.ListContractLogs(ctx, r.PathValue("id"), mirror.LogFilter{
			Page:   pageFrom(r),
			Topic0: q.Get("topic0"),
			Topic1: q.Get("topic1"),
			Topic2: q.Get("topic2"),
			Topic3: q.Get("topic3"),
		})
		return map[string]any{"logs": logs}, err
	})
}

func pageFrom(r *http.Request) mirror.Page {
	p := mirror.Page{Limit: queryInt(r, "limit", 0), Timestamp: r.URL.Query().Get("timestamp")}
	switch o := mirror.Order(r.URL.Query().Get("order")); o {
	case mirror.Asc, mirror.Desc:
		p.Order = o
	}
	return p
}

func nftFilterFrom(r *http.Request) mirror.NFTFilter {
	q := r.URL.Query()
	return mirror.NFTFilter{
		Page:         pageFrom(r),
		TokenID:      q.Get("token.id"),
		AccountID:    q.Get("account.id"),
		SerialNumber: q.Get("serialnumber"),
	}
}

func serialFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	serial, err := strconv.ParseInt(r.PathValue("serial"), 10, 64)
	if err != nil || serial <= 0 {
		badRequest(w, r, "serial must be a positive integer")
		return 0, false
	}
	return serial, true
}
