// Package config loads runtime settings from flags, VAULT_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Alibek10599/token-vault/internal/identity"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/vault"
)

// EnvPrefix prefixes every environment variable, e.g. VAULT_POSTGRES_DSN.
const EnvPrefix = "VAULT"

// Setting keys. Flags and environment variables use the same names.
const (
	KeyConfigFile     = "config"
	KeyBackend        = "backend"
	KeyPostgresDSN    = "postgres-dsn"
	KeyRedisURL       = "redis-url"
	KeyClickhouseDSN  = "clickhouse-dsn"
	KeyProgramID      = "program-id"
	KeyKeypair        = "keypair"
	KeyRPCEndpoint    = "rpc-endpoint"
	KeyWSEndpoint     = "ws-endpoint"
	KeyLogLevel       = "log-level"
	KeyLogFormat      = "log-format"
	KeyMetricsAddr    = "metrics-addr"
	KeySubmitTimeout  = "submit-timeout"
	KeyWithdrawPolicy = "withdraw-policy"
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the resolved runtime configuration.
type Config struct {
	Backend        string
	PostgresDSN    string
	RedisURL       string
	ClickhouseDSN  string
	ProgramID      solana.Pubkey
	KeypairPath    string
	RPCEndpoint    string
	WSEndpoint     string
	LogLevel       string
	LogFormat      string
	MetricsAddr    string
	SubmitTimeout  time.Duration
	WithdrawPolicy vault.WithdrawPolicy
}

// BindFlags registers every setting on flags with its default.
func BindFlags(flags *pflag.FlagSet) {
	flags.String(KeyConfigFile, "", "Config file (yaml, toml or json)")
	flags.String(KeyBackend, BackendMemory, "Ledger backend: memory, postgres or redis")
	flags.String(KeyPostgresDSN, "", "PostgreSQL connection string")
	flags.String(KeyRedisURL, "", "Redis URL, e.g. redis://localhost:6379/0")
	flags.String(KeyClickhouseDSN, "", "ClickHouse connection string for the event journal")
	flags.String(KeyProgramID, vault.DefaultProgramID.String(), "Vault program address")
	flags.String(KeyKeypair, identity.DefaultKeypairPath, "Signing keypair file")
	flags.String(KeyRPCEndpoint, "", "Solana RPC HTTP endpoint")
	flags.String(KeyWSEndpoint, "", "Solana WebSocket endpoint")
	flags.String(KeyLogLevel, "info", "Log level: debug, info, warn or error")
	flags.String(KeyLogFormat, "json", "Log format: json or console")
	flags.String(KeyMetricsAddr, ":9090", "Prometheus metrics HTTP address")
	flags.Duration(KeySubmitTimeout, 30*time.Second, "Per-transaction submission timeout")
	flags.String(KeyWithdrawPolicy, vault.AuthorityOnly.String(), "Withdraw policy: authority-only or any-holder")
}

// Load resolves settings from v, the flags bound to it and the environment.
func Load(v *viper.Viper, flags *pflag.FlagSet) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Backend:       strings.ToLower(strings.TrimSpace(v.GetString(KeyBackend))),
		PostgresDSN:   v.GetString(KeyPostgresDSN),
		RedisURL:      v.GetString(KeyRedisURL),
		ClickhouseDSN: v.GetString(KeyClickhouseDSN),
		KeypairPath:   v.GetString(KeyKeypair),
		RPCEndpoint:   v.GetString(KeyRPCEndpoint),
		WSEndpoint:    v.GetString(KeyWSEndpoint),
		LogLevel:      v.GetString(KeyLogLevel),
		LogFormat:     v.GetString(KeyLogFormat),
		MetricsAddr:   v.GetString(KeyMetricsAddr),
		SubmitTimeout: v.GetDuration(KeySubmitTimeout),
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}

	programID := v.GetString(KeyProgramID)
	if programID == "" {
		cfg.ProgramID = vault.DefaultProgramID
	} else {
		id, err := solana.ParsePubkey(programID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, KeyProgramID, err)
		}
		cfg.ProgramID = id
	}

	policy, err := vault.ParseWithdrawPolicy(v.GetString(KeyWithdrawPolicy))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, KeyWithdrawPolicy, err)
	}
	cfg.WithdrawPolicy = policy

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has its connection settings.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: %s is required for the postgres backend", ErrInvalidConfig, KeyPostgresDSN)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: %s is required for the redis backend", ErrInvalidConfig, KeyRedisURL)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeySubmitTimeout)
	}
	return nil
}
