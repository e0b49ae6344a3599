package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"

	"stableMirror/internal/event"
)

// FetchConfig configures the fetch command and the fetch half of run.
type FetchConfig struct {
	RPCURL            string
	Contracts         event.Contracts
	FromBlock         uint64
	ToBlock           uint64
	Confirmations     uint64
	BatchSize         uint64
	Out               string
	Checkpoint        string
	CheckpointEnabled bool
	DedupCacheSize    int
	Retry             RetryConfig
	LogLevel          string
}

// ProjectConfig configures the project command and the projecting half of run.
type ProjectConfig struct {
	In             string
	Errors         string
	Contracts      event.Contracts
	Store          StoreConfig
	Workers        int
	ApplyBatchSize int
	Check          bool
	Export         string
	MetricsAddr    string
	LogLevel       string
}

// RunConfig is fetch and project in one process.
type RunConfig struct {
	Fetch   FetchConfig
	Project ProjectConfig
}

// CheckConfig configures the check command.
type CheckConfig struct {
	Store    StoreConfig
	LogLevel string
}

// SyncRoutesConfig configures the sync-routes command.
type SyncRoutesConfig struct {
	RPCURL   string
	Contracts event.Contracts
	Store    StoreConfig
	Retry    RetryConfig
	LogLevel string
}

var fetchDefaults = map[string]any{
	"batch-size":         uint64(2000),
	"out":                "./data/logs.jsonl",
	"checkpoint":         "./data/checkpoint.json",
	"checkpoint-enabled": true,
	"confirmations":      uint64(12),
	"dedup-cache-size":   100_000,
}

var projectDefaults = map[string]any{
	"in":               "./data/logs.jsonl",
	"errors":           "./data/decode_errors.jsonl",
	"workers":          4,
	"apply-batch-size": 5_000,
	"check":            false,
}

// LoadFetch merges config file, environment variables, and flags into FetchConfig.
func LoadFetch(cfgFile string, flags *pflag.FlagSet) (FetchConfig, error) {
	v, err := newViper(cfgFile, flags, fetchDefaults)
	if err != nil {
		return FetchConfig{}, err
	}
	c, err := contracts(v)
	if err != nil {
		return FetchConfig{}, err
	}
	if c.Empty() {
		return FetchConfig{}, fmt.Errorf("at least one contract address is required")
	}

	return FetchConfig{
		RPCURL:            v.GetString("rpc"),
		Contracts:         c,
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Confirmations:     v.GetUint64("confirmations"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		DedupCacheSize:    v.GetInt("dedup-cache-size"),
		Retry:             retryConfig(v),
		LogLevel:          v.GetString("log-level"),
	}, nil
}

// LoadProject merges config file, environment variables, and flags into ProjectConfig.
func LoadProject(cfgFile string, flags *pflag.FlagSet) (ProjectConfig, error) {
	v, err := newViper(cfgFile, flags, projectDefaults)
	if err != nil {
		return ProjectConfig{}, err
	}
	c, err := contracts(v)
	if err != nil {
		return ProjectConfig{}, err
	}
	store, err := storeConfig(v)
	if err != nil {
		return ProjectConfig{}, err
	}

	return ProjectConfig{
		In:             v.GetString("in"),
		Errors:         v.GetString("errors"),
		Contracts:      c,
		Store:          store,
		Workers:        v.GetInt("workers"),
		ApplyBatchSize: v.GetInt("apply-batch-size"),
		Check:          v.GetBool("check"),
		Export:         v.GetString("export"),
		MetricsAddr:    v.GetString("metrics-addr"),
		LogLevel:       v.GetString("log-level"),
	}, nil
}

// LoadRun loads both halves from one flag set.
func LoadRun(cfgFile string, flags *pflag.FlagSet) (RunConfig, error) {
	fetch, err := LoadFetch(cfgFile, flags)
	if err != nil {
		return RunConfig{}, err
	}
	project, err := LoadProject(cfgFile, flags)
	if err != nil {
		return RunConfig{}, err
	}
	return RunConfig{Fetch: fetch, Project: project}, nil
}

func LoadCheck(cfgFile string, flags *pflag.FlagSet) (CheckConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{"store": StorePostgres})
	if err != nil {
		return CheckConfig{}, err
	}
	store, err := storeConfig(v)
	if err != nil {
		return CheckConfig{}, err
	}
	if store.Kind != StorePostgres {
		return CheckConfig{}, fmt.Errorf("check needs a persistent store, got %q", store.Kind)
	}
	return CheckConfig{Store: store, LogLevel: v.GetString("log-level")}, nil
}

func LoadSyncRoutes(cfgFile string, flags *pflag.FlagSet) (SyncRoutesConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{"store": StorePostgres})
	if err != nil {
		return SyncRoutesConfig{}, err
	}
	c, err := contracts(v)
	if err != nil {
		return SyncRoutesConfig{}, err
	}
	if c.PSM == (common.Address{}) {
		return SyncRoutesConfig{}, fmt.Errorf("psm address is required")
	}
	store, err := storeConfig(v)
	if err != nil {
		return SyncRoutesConfig{}, err
	}
	return SyncRoutesConfig{
		RPCURL:   v.GetString("rpc"),
		Contracts: c,
		Store:    store,
		Retry:    retryConfig(v),
		LogLevel: v.GetString("log-level"),
	}, nil
}
