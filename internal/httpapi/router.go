package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/middleware"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/service"
)

type RouterConfig struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	RateLimitBurstSize int
}

// NewRouter builds the API handler. The rate limiter's idle sweep runs
// until ctx is done.
func NewRouter(ctx context.Context, svc *service.Service, cfg RouterConfig) http.Handler {
	h := NewHandlers(svc)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	// Presentation shell
	mux.HandleFunc("GET /v1/agents", h.ListAgents)
	mux.HandleFunc("POST /v1/agents/{id}/toggle", h.ToggleAgent)
	mux.HandleFunc("GET /v1/console", h.Console)
	mux.HandleFunc("GET /v1/notifications", h.Notifications)
	mux.HandleFunc("DELETE /v1/notifications/{id}", h.DismissNotification)
	mux.HandleFunc("GET /v1/wallet", h.Wallet)

	// Deposit flow
	mux.HandleFunc("POST /v1/deposits", h.StartDeposit)
	mux.HandleFunc("GET /v1/deposits/duration", h.Duration)
	mux.HandleFunc("GET /v1/deposits/{id}", h.GetDeposit)
	mux.HandleFunc("DELETE /v1/deposits/{id}", h.DismissDeposit)

	// Withdrawal view
	mux.HandleFunc("GET /v1/streams", h.ListStreams)
	mux.HandleFunc("POST /v1/streams/refresh", h.RefreshStreams)
	mux.HandleFunc("DELETE /v1/streams/watch", h.StopWatch)
	mux.HandleFunc("GET /v1/streams/{id}", h.GetStream)
	mux.HandleFunc("POST /v1/streams/{id}/withdraw", h.StartWithdraw)
	mux.HandleFunc("GET /v1/streams/{id}/withdraw", h.GetWithdraw)
	mux.HandleFunc("DELETE /v1/streams/{id}/withdraw", h.DismissWithdraw)
	mux.HandleFunc("POST /v1/streams/{id}/push", h.PushPayments)
	mux.HandleFunc("POST /v1/streams/{id}/close", h.CloseStream)
	mux.HandleFunc("GET /v1/rate", h.Rate)

	// Ledger queries
	mux.HandleFunc("GET /v1/chain/accounts/{id}", h.GetAccount)
	mux.HandleFunc("GET /v1/chain/accounts/{id}/tokens", h.ListAccountTokens)
	mux.HandleFunc("GET /v1/chain/accounts/{id}/nfts", h.ListAccountNFTs)
	mux.HandleFunc("GET /v1/chain/accounts/{id}/rewards", h.ListStakingRewards)
	mux.HandleFunc("GET /v1/chain/transactions", h.ListTransactions)
	mux.HandleFunc("GET /v1/chain/transactions/{id}", h.GetTransaction)
	mux.HandleFunc("GET /v1/chain/blocks", h.ListBlocks)
	mux.HandleFunc("GET /v1/chain/blocks/{id}", h.GetBlock)
	mux.HandleFunc("GET /v1/chain/tokens/{id}", h.GetToken)
	mux.HandleFunc("GET /v1/chain/tokens/{id}/balances", h.ListTokenBalances)
	mux.HandleFunc("GET /v1/chain/tokens/{id}/nfts", h.ListTokenNFTs)
	mux.HandleFunc("GET /v1/chain/tokens/{id}/nfts/{serial}", h.GetNFT)
	mux.HandleFunc("GET /v1/chain/tokens/{id}/nfts/{serial}/transactions", h.ListNFTTransactions)
	mux.HandleFunc("GET /v1/chain/network/exchangerate", h.GetExchangeRate)
	mux.HandleFunc("GET /v1/chain/network/fees", h.GetNetworkFees)
	mux.HandleFunc("GET /v1/chain/network/nodes", h.ListNetworkNodes)
	mux.HandleFunc("GET /v1/chain/network/stake", h.GetNetworkStake)
	mux.HandleFunc("GET /v1/chain/network/supply", h.GetNetworkSupply)
	mux.HandleFunc("GET /v1/chain/contracts", h.ListContracts)
	mux.HandleFunc("GET /v1/chain/contracts/{id}", h.GetContract)
	mux.HandleFunc("GET /v1/chain/contracts/{id}/results", h.ListContractResults)
	mux.HandleFunc("GET /v1/chain/contracts/{id}/logs", h.ListContractLogs)

	stack := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Logging,
		middleware.Recovery,
		middleware.CORS(cfg.AllowedOrigins),
	}
	if cfg.RateLimitPerMinute > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurstSize)
		go limiter.Run(ctx, 5*time.Minute, 10*time.Minute)
		stack = append(stack, middleware.RateLimit(limiter))
	}
	return middleware.Chain(mux, stack...)
}
