package main

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/config"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/discovery"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/events"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/httpapi"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/httpclient"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/mirror"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/service"
	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting aex-x402-streams",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store_type", cfg.StoreType,
		"chain_id", cfg.ChainID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize stream id store
	streamStore, closeBackend := openStore(ctx, cfg)
	defer func() { _ = streamStore.Close() }()
	defer closeBackend()

	// Connect to the chain
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	eth, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	cancel()
	if err != nil {
		slog.Error("failed to connect to rpc", "url", cfg.RPCURL, "error", err)
		os.Exit(1)
	}
	defer eth.Close()

	signer, err := loadSigner(cfg)
	if err != nil {
		slog.Error("failed to load wallet key", "error", err)
		os.Exit(1)
	}
	chain := contract.NewClient(eth, signer, contract.Config{
		StreamingAddress: common.HexToAddress(cfg.StreamingAddress),
		TokenAddress:     common.HexToAddress(cfg.TokenAddress),
		TokenDecimals:    int32(cfg.TokenDecimals),
		GasLimit:         cfg.GasLimit,
	})
	if chain.Connected() {
		slog.Info("wallet connected", "address", chain.Account().Hex())
	} else {
		slog.Warn("no wallet key configured, transactions are disabled")
	}

	// Ledger queries and stream discovery
	var mq *mirror.Client
	var source discovery.LogSource = discovery.NodeLogs{Contract: chain}
	if cfg.MirrorNodeURL != "" {
		opts := []httpclient.Option{
			httpclient.WithRateLimit(float64(cfg.MirrorRatePerSecond), cfg.MirrorRatePerSecond),
		}
		if cfg.MirrorAPIKey != "" {
			opts = append(opts, httpclient.WithAuth(&httpclient.APIKeyAuth{Header: cfg.MirrorAPIKeyHeader, Key: cfg.MirrorAPIKey}))
		}
		hc := httpclient.New("mirror", 15*time.Second, opts...)
		mq, err = mirror.New(cfg.MirrorNodeURL, hc)
		if err != nil {
			slog.Error("invalid mirror node url", "url", cfg.MirrorNodeURL, "error", err)
			os.Exit(1)
		}
		source = discovery.MirrorLogs{Mirror: mq, Contract: cfg.StreamingAddress}
	}

	var webhookOpts []httpclient.Option
	if cfg.WebhookToken != "" {
		webhookOpts = append(webhookOpts, httpclient.WithAuth(&httpclient.BearerTokenAuth{Token: cfg.WebhookToken}))
	}
	pub := events.NewPublisher("aex-x402-streams", webhookOpts...)
	if cfg.WebhookURL != "" {
		pub.RegisterEndpoint(events.AllEvents, cfg.WebhookURL)
	}

	// Initialize service
	svc := service.New(ctx, chain, streamStore, source, mq, pub, service.Options{
		CaptainAgentID:  big.NewInt(cfg.CaptainAgentID),
		Counterparts:    cfg.Counterparts(),
		RefreshInterval: cfg.RefreshInterval,
		ExplorerTxURL:   cfg.ExplorerTxURL,
	})
	defer svc.Shutdown()

	// Setup HTTP router
	router := httpapi.NewRouter(ctx, svc, httpapi.RouterConfig{
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurstSize: cfg.RateLimitBurstSize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// loadSigner builds the transactor for PRIVATE_KEY, or nil without one.
func loadSigner(cfg *config.Config) (*bind.TransactOpts, error) {
	if !cfg.WalletConfigured() {
		return nil, nil
	}
	key, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
}

func openStore(ctx context.Context, cfg *config.Config) (store.StreamStore, func()) {
	noop := func() {}
	switch cfg.StoreType {
	case "mongo":
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(connCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			slog.Error("failed to connect to mongodb", "error", err)
			os.Exit(1)
		}
		if err := client.Ping(connCtx, nil); err != nil {
			slog.Error("failed to ping mongodb", "error", err)
			os.Exit(1)
		}
		mongoStore := store.NewMongoStore(client, cfg.MongoDB, cfg.MongoCollection)
		if err := mongoStore.EnsureIndexes(connCtx); err != nil {
			slog.Warn("failed to create indexes", "error", err)
		}
		slog.Info("using mongodb store", "uri", cfg.MongoURI, "db", cfg.MongoDB, "collection", cfg.MongoCollection)
		return mongoStore, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				slog.Error("failed to disconnect mongodb", "error", err)
			}
		}

	case "firestore":
		fs, err := store.NewFirestoreStore(cfg.FirestoreProjectID, cfg.FirestoreCollection)
		if err != nil {
			slog.Error("failed to initialize firestore", "error", err)
			os.Exit(1)
		}
		slog.Info("using firestore store", "project", cfg.FirestoreProjectID, "collection", cfg.FirestoreCollection)
		return fs, noop

	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			slog.Error("failed to ping redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		slog.Info("using redis store", "addr", cfg.RedisAddr)
		return store.NewRedisStore(rdb, "aex:x402:"), noop

	case "file":
		fileStore, err := store.NewFileStore(cfg.CacheFile)
		if err != nil {
			slog.Error("failed to open stream cache file", "path", cfg.CacheFile, "error", err)
			os.Exit(1)
		}
		slog.Info("using file store", "path", cfg.CacheFile)
		return fileStore, noop

	default:
		slog.Info("using in-memory store (development mode)")
		return store.NewMemoryStore(), noop
	}
}
