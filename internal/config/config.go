package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"stableMirror/internal/event"
)

const envPrefix = "PROJECTOR"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// StoreConfig selects the entity store.
type StoreConfig struct {
	Kind  string
	PGDSN string
}

// RetryConfig bounds RPC retries.
type RetryConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// newViper merges defaults, config file, PROJECTOR_* env vars and flags.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("store", StoreMemory)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func contracts(v *viper.Viper) (event.Contracts, error) {
	var c event.Contracts
	fields := []struct {
		key  string
		dest *common.Address
	}{
		{"token", &c.Token},
		{"psm", &c.PSM},
		{"allocator-vault", &c.AllocatorVault},
		{"savings-vault", &c.SavingsVault},
		{"param-registry", &c.ParamRegistry},
	}
	for _, f := range fields {
		addr, err := parseAddress(f.key, v.GetString(f.key))
		if err != nil {
			return event.Contracts{}, err
		}
		*f.dest = addr
	}
	return c, nil
}

func parseAddress(key, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", key, input)
	}
	return common.HexToAddress(input), nil
}

func storeConfig(v *viper.Viper) (StoreConfig, error) {
	cfg := StoreConfig{
		Kind:  strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PGDSN: v.GetString("pg-dsn"),
	}
	switch cfg.Kind {
	case StoreMemory:
	case StorePostgres:
		if cfg.PGDSN == "" {
			return StoreConfig{}, fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return StoreConfig{}, fmt.Errorf("unknown store %q (want %s or %s)", cfg.Kind, StoreMemory, StorePostgres)
	}
	return cfg, nil
}

func retryConfig(v *viper.Viper) RetryConfig {
	return RetryConfig{
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}
}
