// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/willwe-xyz/willwe-app/internal/chain"
)

type ChainConfig struct {
	ID               uint64   `mapstructure:"id"`
	Name             string   `mapstructure:"name"`
	RPCList          []string `mapstructure:"rpc_list"`
	ExplorerURL      string   `mapstructure:"explorer_url"`
	WillWeAddress    string   `mapstructure:"willwe_address"`
	MembranesAddress string   `mapstructure:"membranes_address"`
}

type Config struct {
	Chains                 []ChainConfig `mapstructure:"chains"`
	DefaultChainID         uint64        `mapstructure:"default_chain_id"`
	WalletsFile            string        `mapstructure:"wallets_file"`
	DefaultWallet          string        `mapstructure:"default_wallet"`
	GasMultiplier          float64       `mapstructure:"gas_multiplier"`
	NotificationDurationMs int           `mapstructure:"notification_duration_ms"`
	ReceiptPollIntervalMs  int           `mapstructure:"receipt_poll_interval_ms"`
	ConfirmationTimeoutSec int           `mapstructure:"confirmation_timeout_sec"`
	DialAttempts           int           `mapstructure:"dial_attempts"`
	DebugLogging           bool          `mapstructure:"debug_logging"`
	LogFile                string        `mapstructure:"log_file"`
	PostgresURL            string        `mapstructure:"postgres_url"`
	HistoryFile            string        `mapstructure:"history_file"`
	MetricsAddr            string        `mapstructure:"metrics_addr"`
	EventBuffer            int           `mapstructure:"event_buffer"`
}

const (
	DefaultChainID              = 8453
	DefaultGasMultiplier        = 1.2
	DefaultNotificationDuration = 5000
	DefaultReceiptPollInterval  = 1000
	DefaultDialAttempts         = 3
	DefaultEventBuffer          = 256
	DefaultWalletsFile          = "configs/wallets.csv"
	DefaultLogFile              = "logs/willwe.log"
	DefaultHistoryFile          = "data/history.db"
)

// LoadConfig reads path (JSON or YAML) and applies WILLWE_* environment
// overrides. An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"default_chain_id":         DefaultChainID,
		"wallets_file":             DefaultWalletsFile,
		"default_wallet":           "",
		"gas_multiplier":           DefaultGasMultiplier,
		"notification_duration_ms": DefaultNotificationDuration,
		"receipt_poll_interval_ms": DefaultReceiptPollInterval,
		"confirmation_timeout_sec": 0,
		"dial_attempts":            DefaultDialAttempts,
		"debug_logging":            false,
		"log_file":                 DefaultLogFile,
		"postgres_url":             "",
		"history_file":             DefaultHistoryFile,
		"metrics_addr":             "",
		"event_buffer":             DefaultEventBuffer,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("WILLWE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

// Registry builds the chain registry from the built-in networks overlaid with
// the configured ones.
func (c *Config) Registry() (*chain.Registry, error) {
	chains := make([]chain.Chain, 0, len(c.Chains))
	for _, cc := range c.Chains {
		ch := chain.Chain{
			ID:          cc.ID,
			Name:        cc.Name,
			RPCList:     cc.RPCList,
			ExplorerURL: cc.ExplorerURL,
		}
		var err error
		if ch.WillWeAddress, err = parseAddress(cc.WillWeAddress); err != nil {
			return nil, fmt.Errorf("chain %d willwe_address: %w", cc.ID, err)
		}
		if ch.MembranesAddress, err = parseAddress(cc.MembranesAddress); err != nil {
			return nil, fmt.Errorf("chain %d membranes_address: %w", cc.ID, err)
		}
		chains = append(chains, ch)
	}
	return chain.NewRegistry(chains...), nil
}

func (c *Config) NotificationDuration() time.Duration {
	return time.Duration(c.NotificationDurationMs) * time.Millisecond
}

func (c *Config) ReceiptPollInterval() time.Duration {
	return time.Duration(c.ReceiptPollIntervalMs) * time.Millisecond
}

// ConfirmationTimeout is zero when receipts are awaited without a deadline.
func (c *Config) ConfirmationTimeout() time.Duration {
	return time.Duration(c.ConfirmationTimeoutSec) * time.Second
}

func parseAddress(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func validateConfig(cfg *Config) error {
	if cfg.DefaultChainID == 0 {
		return errors.New("default_chain_id is not set")
	}
	seen := make(map[uint64]bool, len(cfg.Chains))
	for _, cc := range cfg.Chains {
		if cc.ID == 0 {
			return errors.New("chain entry without id")
		}
		if seen[cc.ID] {
			return fmt.Errorf("chain %d configured twice", cc.ID)
		}
		seen[cc.ID] = true
		for _, rpcURL := range cc.RPCList {
			if err := validateURLWithCache(rpcURL, "http", "ws"); err != nil {
				return fmt.Errorf("chain %d: invalid RPC URL %q", cc.ID, rpcURL)
			}
		}
		if cc.ExplorerURL != "" {
			if err := validateURLWithCache(cc.ExplorerURL, "http"); err != nil {
				return fmt.Errorf("chain %d: invalid explorer URL", cc.ID)
			}
		}
		if _, err := parseAddress(cc.WillWeAddress); err != nil {
			return fmt.Errorf("chain %d: %w", cc.ID, err)
		}
		if _, err := parseAddress(cc.MembranesAddress); err != nil {
			return fmt.Errorf("chain %d: %w", cc.ID, err)
		}
	}
	if cfg.PostgresURL != "" {
		if err := validateURLWithCache(cfg.PostgresURL, "postgres"); err != nil {
			return errors.New("postgres_url must use the postgres scheme")
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.GasMultiplier < 1 {
		return errors.New("gas_multiplier must be at least 1")
	}
	if cfg.NotificationDurationMs <= 0 {
		return errors.New("invalid notification_duration_ms")
	}
	if cfg.ReceiptPollIntervalMs <= 0 {
		return errors.New("invalid receipt_poll_interval_ms")
	}
	if cfg.ConfirmationTimeoutSec < 0 {
		return errors.New("invalid confirmation_timeout_sec")
	}
	if cfg.DialAttempts <= 0 {
		return errors.New("invalid dial_attempts")
	}
	if cfg.EventBuffer <= 0 {
		return errors.New("invalid event_buffer")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocols ...string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	for _, p := range protocols {
		if strings.HasPrefix(parsed.Scheme, p) {
			urlCache.Store(rawURL, parsed)
			return nil
		}
	}
	return errors.New("invalid URL protocol")
}

// loadEnvironmentVariables applies overrides viper cannot map onto nested
// keys. WILLWE_RPC_LIST replaces the RPC list of the default chain.
func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	envRPCList := v.GetString("RPC_LIST")
	if envRPCList == "" {
		return nil
	}
	var cleanRPCs []string
	for _, rpc := range strings.Split(envRPCList, ",") {
		clean := strings.TrimSpace(rpc)
		if clean != "" {
			cleanRPCs = append(cleanRPCs, clean)
		}
	}
	if len(cleanRPCs) == 0 {
		return nil
	}
	for i := range cfg.Chains {
		if cfg.Chains[i].ID == cfg.DefaultChainID {
			cfg.Chains[i].RPCList = cleanRPCs
			return nil
		}
	}
	cfg.Chains = append(cfg.Chains, ChainConfig{ID: cfg.DefaultChainID, RPCList: cleanRPCs})
	return nil
}
