// Package config loads server configuration from the environment. A .env
// file is honored when present. Validation is fail-fast: a network without
// a configured token contract or RPC endpoint stops startup instead of
// surfacing per-request.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chainpass/chainpass"
	"github.com/chainpass/chainpass/ledger"
)

// tokenTable maps each supported network to its accepted payment token.
// Using a token configured for the wrong network is a configuration error,
// caught by Validate at startup, never a per-request verification failure.
var tokenTable = map[chainpass.Network]ledger.TokenInfo{
	chainpass.NetworkBase: {
		Contract: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		Decimals: 6,
		Name:     "USD Coin",
	},
	chainpass.NetworkBaseSepolia: {
		Contract: common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
		Decimals: 6,
		Name:     "USDC",
	},
}

// Config is the full server configuration.
type Config struct {
	Port    string            `validate:"required"`
	Network chainpass.Network `validate:"required"`

	RecipientAddress string `validate:"required,eth_addr"`
	Price            string `validate:"required"`
	Tolerance        string `validate:"required"`

	// DevelopmentMode enables the bypass proof token. It is threaded
	// explicitly into the gate constructor, never read back from the
	// environment at request time.
	DevelopmentMode bool

	RPCURLs map[chainpass.Network]string

	LedgerTimeout time.Duration
	CacheTTL      time.Duration

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
}

// Load reads configuration from the environment, honoring a .env file when
// one exists, and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             envOr("PORT", "8080"),
		Network:          chainpass.Network(envOr("CHAINPASS_NETWORK", string(chainpass.NetworkBaseSepolia))),
		RecipientAddress: os.Getenv("CHAINPASS_RECIPIENT_ADDRESS"),
		Price:            envOr("CHAINPASS_PRICE", "0.01"),
		Tolerance:        envOr("CHAINPASS_TOLERANCE", "0.000001"),
		DevelopmentMode:  envBool("CHAINPASS_DEV_MODE"),
		RPCURLs: map[chainpass.Network]string{
			chainpass.NetworkBase:        os.Getenv("CHAINPASS_RPC_URL_BASE"),
			chainpass.NetworkBaseSepolia: os.Getenv("CHAINPASS_RPC_URL_BASE_SEPOLIA"),
		},
		LedgerTimeout: envDuration("CHAINPASS_LEDGER_TIMEOUT", 30*time.Second),
		CacheTTL:      envDuration("CHAINPASS_CACHE_TTL", 0),
		RedisAddr:     os.Getenv("CHAINPASS_REDIS_ADDR"),
		KafkaTopic:    envOr("CHAINPASS_KAFKA_TOPIC", "chainpass.payments"),
		LogLevel:      envOr("CHAINPASS_LOG_LEVEL", "info"),
	}

	if brokers := os.Getenv("CHAINPASS_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, including that the active network has
// both a token contract and an RPC endpoint.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if !c.Network.Valid() {
		return fmt.Errorf("unsupported network %q", c.Network)
	}
	if _, ok := tokenTable[c.Network]; !ok {
		return fmt.Errorf("no token contract configured for network %q", c.Network)
	}
	if c.RPCURLs[c.Network] == "" {
		return fmt.Errorf("no RPC endpoint configured for network %q", c.Network)
	}

	if _, err := decimal.NewFromString(c.Price); err != nil {
		return fmt.Errorf("invalid price %q: %w", c.Price, err)
	}
	if _, err := decimal.NewFromString(c.Tolerance); err != nil {
		return fmt.Errorf("invalid tolerance %q: %w", c.Tolerance, err)
	}

	return nil
}

// Requirement builds the route's immutable payment requirement.
func (c *Config) Requirement() chainpass.PaymentRequirement {
	price, _ := decimal.NewFromString(c.Price)
	tolerance, _ := decimal.NewFromString(c.Tolerance)

	return chainpass.PaymentRequirement{
		Recipient:     common.HexToAddress(c.RecipientAddress),
		MinAmount:     price,
		Tolerance:     tolerance,
		Network:       c.Network,
		TokenContract: tokenTable[c.Network].Contract,
	}
}

// Endpoint returns the ledger endpoint for the active network.
func (c *Config) Endpoint() map[chainpass.Network]ledger.Endpoint {
	return map[chainpass.Network]ledger.Endpoint{
		c.Network: {
			RPCURL: c.RPCURLs[c.Network],
			Token:  tokenTable[c.Network],
		},
	}
}

// Token returns the accepted token for a network, for informational routes.
func Token(network chainpass.Network) (ledger.TokenInfo, bool) {
	t, ok := tokenTable[network]
	return t, ok
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	switch c.LogLevel {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return zcfg.Build()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
