package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ChainConfig describes one chain the engine indexes.
type ChainConfig struct {
	ChainID uint64 `mapstructure:"chain-id"`
	RPCURL  string `mapstructure:"rpc"`
	// Stablecoins always price at $1 and skip the oracle walk.
	Stablecoins []string `mapstructure:"stablecoins"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	PGDsn  string
	Chains []ChainConfig

	EpochInterval   time.Duration
	RollingInterval time.Duration

	OracleStep        time.Duration
	OracleMaxAttempts int

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
// Multi-chain deployments list chains in the config file; a single chain
// can be given entirely through the rpc and chain-id flags.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("epoch-interval", 30*time.Second)
	v.SetDefault("rolling-interval", time.Minute)
	v.SetDefault("oracle-step", 300*time.Second)
	v.SetDefault("oracle-max-attempts", 10)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		PGDsn:             v.GetString("pg-dsn"),
		EpochInterval:     v.GetDuration("epoch-interval"),
		RollingInterval:   v.GetDuration("rolling-interval"),
		OracleStep:        v.GetDuration("oracle-step"),
		OracleMaxAttempts: v.GetInt("oracle-max-attempts"),
		LogLevel:          v.GetString("log-level"),
	}

	if v.IsSet("chains") {
		if err := v.UnmarshalKey("chains", &cfg.Chains); err != nil {
			return Config{}, fmt.Errorf("parse chains: %w", err)
		}
	}
	if len(cfg.Chains) == 0 && v.GetString("rpc") != "" {
		cfg.Chains = []ChainConfig{{
			ChainID:     v.GetUint64("chain-id"),
			RPCURL:      v.GetString("rpc"),
			Stablecoins: getStringSlice(v, "stablecoins"),
		}}
	}

	return cfg, nil
}

// StablecoinsByChain collects each chain's stablecoin list keyed by id.
func (c Config) StablecoinsByChain() map[uint64][]string {
	out := make(map[uint64][]string, len(c.Chains))
	for _, chain := range c.Chains {
		if len(chain.Stablecoins) > 0 {
			out[chain.ChainID] = cleanStrings(chain.Stablecoins)
		}
	}
	return out
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
