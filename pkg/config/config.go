// Package config loads the anchoring service configuration from the
// environment, with YAML network profiles layered on top.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRPCURL         = "http://localhost:8545"
	DefaultDescriptorPath = "/shared/anchor/deployment.json"
	DefaultGasLimit       = 350000
	DefaultMaxFeeGwei     = 30
	DefaultPriorityGwei   = 1.5
)

// Config holds service configuration.
type Config struct {
	RPCURL          string
	ChainID         int64 // 0 means take whatever the ledger reports
	ContractAddress string
	ABIPath         string
	DescriptorPath  string
	PrivateKey      string

	GasLimit        uint64
	MaxFeeGwei      float64
	PriorityFeeGwei float64
	GasPriceGwei    float64

	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	Confirmations       uint64
	LogBlockSpan        uint64
	RPCRateLimit        float64 // requests per second, 0 = unlimited

	RedisAddr   string
	DatabaseURL string
	Policy      string

	APIPort         string
	APIJWTSecret    string
	APIRateLimitRPS float64

	NetworkProfiles string
	LogLevel        string
	OTLPEndpoint    string
	OTelEnabled     bool
}

// LogValue keeps secrets out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("rpc_url", c.RPCURL),
		slog.Int64("chain_id", c.ChainID),
		slog.String("contract", c.ContractAddress),
		slog.String("descriptor", c.DescriptorPath),
		slog.Bool("signer", c.PrivateKey != ""),
		slog.Bool("redis", c.RedisAddr != ""),
		slog.Bool("jwt", c.APIJWTSecret != ""),
		slog.String("log_level", c.LogLevel),
	)
}

// Load loads configuration from environment variables. Unset variables take
// their defaults; malformed numeric values are errors.
func Load() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		RPCURL:          getenv("RPC_URL", DefaultRPCURL),
		ChainID:         p.i64("CHAIN_ID", 0),
		ContractAddress: os.Getenv("ANCHORCHAIN_ADDRESS"),
		ABIPath:         os.Getenv("ANCHORCHAIN_ABI_PATH"),
		DescriptorPath:  getenv("ANCHORCHAIN_DESCRIPTOR", DefaultDescriptorPath),
		PrivateKey:      getenv("ANCHORCHAIN_PK", os.Getenv("PRIVATE_KEY")),

		GasLimit:        p.u64("ANCHOR_GAS_LIMIT", DefaultGasLimit),
		MaxFeeGwei:      p.f64("ANCHOR_MAX_FEE_GWEI", DefaultMaxFeeGwei),
		PriorityFeeGwei: p.f64("ANCHOR_PRIORITY_FEE_GWEI", DefaultPriorityGwei),
		GasPriceGwei:    p.f64("ANCHOR_GAS_PRICE_GWEI", 0),

		ConfirmationTimeout: p.dur("CONFIRMATION_TIMEOUT", 120*time.Second),
		PollInterval:        p.dur("CONFIRMATION_POLL_INTERVAL", 2*time.Second),
		Confirmations:       p.u64("CONFIRMATIONS", 1),
		LogBlockSpan:        p.u64("LOG_BLOCK_SPAN", 5000),
		RPCRateLimit:        p.f64("RPC_RATE_LIMIT", 0),

		RedisAddr:   os.Getenv("REDIS_ADDR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Policy:      os.Getenv("ANCHOR_POLICY"),

		APIPort:         getenv("API_PORT", "8000"),
		APIJWTSecret:    os.Getenv("API_JWT_SECRET"),
		APIRateLimitRPS: p.f64("API_RATE_LIMIT_RPS", 10),

		NetworkProfiles: os.Getenv("NETWORK_PROFILES"),
		LogLevel:        strings.ToUpper(getenv("LOG_LEVEL", "INFO")),
		OTLPEndpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:     p.flag("OTEL_ENABLED", false),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = 1
	}
	return cfg, nil
}

// Level maps LogLevel onto slog.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FeeMode reports how fees are chosen: "legacy" when a gas price is set,
// "dynamic" when a max fee is set, otherwise "auto".
func (c *Config) FeeMode() string {
	switch {
	case c.GasPriceGwei > 0:
		return "legacy"
	case c.MaxFeeGwei > 0:
		return "dynamic"
	default:
		return "auto"
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parser remembers the first malformed variable.
type parser struct {
	err error
}

func (p *parser) fail(key, val string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid %s=%q: %w", key, val, err)
	}
}

func (p *parser) i64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) u64(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) f64(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		if err == nil {
			err = fmt.Errorf("must not be negative")
		}
		p.fail(key, v, err)
		return def
	}
	return f
}

// dur accepts Go durations ("90s") or plain seconds ("120").
func (p *parser) dur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) flag(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}
