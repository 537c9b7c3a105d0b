package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	Port        string
	Environment string

	// Stream id cache
	StoreType           string
	MongoURI            string
	MongoDB             string
	MongoCollection     string
	FirestoreProjectID  string
	FirestoreCollection string
	RedisAddr           string
	CacheFile           string

	// Chain
	RPCURL           string
	ChainID          int64
	PrivateKey       string
	StreamingAddress string
	TokenAddress     string
	TokenDecimals    int
	GasLimit         uint64

	// Mirror node
	MirrorNodeURL       string
	MirrorRatePerSecond int
	MirrorAPIKey        string
	MirrorAPIKeyHeader  string
	ExplorerTxURL       string

	// Session
	CaptainAgentID    int64
	ConnectedAgentIDs []int64

	RefreshInterval    time.Duration
	WebhookURL         string
	WebhookToken       string
	RateLimitPerMinute int
	RateLimitBurstSize int
	AllowedOrigins     []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		StoreType:           getEnv("STORE_TYPE", "memory"),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:             getEnv("MONGO_DB", "aex"),
		MongoCollection:     getEnv("MONGO_COLLECTION_STREAMS", "user_streams"),
		FirestoreProjectID:  getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION_STREAMS", "user_streams"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		CacheFile:           getEnv("STREAM_CACHE_FILE", "streams.json"),
		RPCURL:              getEnv("RPC_URL", "https://testnet.hashio.io/api"),
		PrivateKey:          strings.TrimPrefix(getEnv("PRIVATE_KEY", ""), "0x"),
		StreamingAddress:    getEnv("STREAMING_CONTRACT_ADDRESS", ""),
		TokenAddress:        getEnv("TOKEN_ADDRESS", ""),
		TokenDecimals:       getEnvInt("TOKEN_DECIMALS", 6),
		GasLimit:            uint64(getEnvInt("GAS_LIMIT", 0)),
		MirrorNodeURL:       getEnv("MIRROR_NODE_URL", "https://testnet.mirrornode.hedera.com/api/v1"),
		MirrorRatePerSecond: getEnvInt("MIRROR_RATE_LIMIT_PER_SECOND", 10),
		MirrorAPIKey:        getEnv("MIRROR_API_KEY", ""),
		MirrorAPIKeyHeader:  getEnv("MIRROR_API_KEY_HEADER", "x-api-key"),
		ExplorerTxURL:       getEnv("EXPLORER_TX_URL", "https://hashscan.io/testnet/transaction/"),
		RefreshInterval:     getEnvDuration("REFRESH_INTERVAL", 5*time.Second),
		WebhookURL:          getEnv("WEBHOOK_URL", ""),
		WebhookToken:        getEnv("WEBHOOK_TOKEN", ""),
		RateLimitPerMinute:  getEnvInt("RATE_LIMIT_PER_MINUTE", 600),
		RateLimitBurstSize:  getEnvInt("RATE_LIMIT_BURST_SIZE", 50),
		AllowedOrigins:      getEnvList("ALLOWED_ORIGINS", []string{"*"}),
	}

	var err error
	if cfg.ChainID, err = parseInt("CHAIN_ID", getEnv("CHAIN_ID", "296")); err != nil {
		return nil, err
	}
	if cfg.CaptainAgentID, err = parseInt("CAPTAIN_AGENT_ID", getEnv("CAPTAIN_AGENT_ID", "800400")); err != nil {
		return nil, err
	}
	ids := getEnvList("CONNECTED_AGENT_IDS", []string{"800400", "800401", "800402", "800403", "800404", "800405", "800406"})
	for _, s := range ids {
		id, err := parseInt("CONNECTED_AGENT_IDS", s)
		if err != nil {
			return nil, err
		}
		cfg.ConnectedAgentIDs = append(cfg.ConnectedAgentIDs, id)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreType {
	case "memory", "file", "mongo", "firestore", "redis":
	default:
		return fmt.Errorf("STORE_TYPE %q is not one of memory, file, mongo, firestore, redis", c.StoreType)
	}
	for key, addr := range map[string]string{
		"STREAMING_CONTRACT_ADDRESS": c.StreamingAddress,
		"TOKEN_ADDRESS":              c.TokenAddress,
	} {
		if addr == "" {
			if c.Environment == "production" {
				return fmt.Errorf("%s is required in production", key)
			}
			continue
		}
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s %q is not a hex address", key, addr)
		}
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 36 {
		return fmt.Errorf("TOKEN_DECIMALS %d out of range", c.TokenDecimals)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	if c.Environment == "production" && c.StoreType == "firestore" && c.FirestoreProjectID == "" {
		return fmt.Errorf("FIRESTORE_PROJECT_ID is required in production with firestore store")
	}
	return nil
}

// WalletConfigured reports whether a signing key was supplied.
func (c *Config) WalletConfigured() bool { return c.PrivateKey != "" }

func (c *Config) CaptainID() *big.Int { return big.NewInt(c.CaptainAgentID) }

func (c *Config) Counterparts() []*big.Int {
	out := make([]*big.Int, len(c.ConnectedAgentIDs))
	for i, id := range c.ConnectedAgentIDs {
		out[i] = big.NewInt(id)
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(key, v string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return n, nil
}
