// Package daemon manages the ledger node lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/tutuledger/internal/app/derive"
	"github.com/tutu-network/tutuledger/internal/app/params"
	"github.com/tutu-network/tutuledger/internal/domain"
	"github.com/tutu-network/tutuledger/internal/infra/peersync"
)

// Config holds all daemon configuration.
type Config struct {
	Node    NodeConfig     `toml:"node"`
	API     APIConfig      `toml:"api"`
	Ledger  LedgerConfig   `toml:"ledger"`
	Genesis map[string]any `toml:"genesis"` // governable parameter overrides
	Sync    SyncConfig     `toml:"sync"`
	Health  HealthConfig   `toml:"health"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	ID      string `toml:"id"`
	DataDir string `toml:"data_dir"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// LedgerConfig controls the event store and derivation.
type LedgerConfig struct {
	Channels            []string `toml:"channels"`
	MaxParkedPerChannel int      `toml:"max_parked_per_channel"`
}

// SyncConfig controls pulling from peers.
type SyncConfig struct {
	Peers       []string `toml:"peers"`
	Interval    string   `toml:"interval"`
	PageSize    int      `toml:"page_size"`
	RequestRate float64  `toml:"request_rate"`
	Burst       int      `toml:"burst"`
}

// HealthConfig controls the periodic health checks.
type HealthConfig struct {
	Interval string `toml:"interval"`
}

// DefaultConfig returns a single-node configuration with the global
// channel only and no peers.
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			DataDir: ledgerHome(),
		},
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    7420,
			Metrics: true,
		},
		Ledger: LedgerConfig{
			MaxParkedPerChannel: derive.DefaultMaxParkedPerChannel,
		},
		Sync: SyncConfig{
			Interval:    "10s",
			PageSize:    200,
			RequestRate: 20,
			Burst:       5,
		},
		Health: HealthConfig{
			Interval: "60s",
		},
	}
}

// LoadConfig reads config from $TUTULEDGER_HOME/config.toml, falling back
// to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(ledgerHome(), "config.toml"))
}

// LoadConfigFile reads config from path, falling back to defaults when the
// file does not exist.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("parse config: unknown key %s", undecoded[0])
	}
	return cfg, nil
}

// SaveConfig writes the config to $TUTULEDGER_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(ledgerHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// GenesisParams coerces the [genesis] table against schema. Keys are
// checked in sorted order so the first reported error is stable.
func (c Config) GenesisParams(schema *params.Schema) (map[string]domain.ParamValue, error) {
	keys := make([]string, 0, len(c.Genesis))
	for k := range c.Genesis {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]domain.ParamValue, len(keys))
	for _, k := range keys {
		v, err := schema.Coerce(k, c.Genesis[k])
		if err != nil {
			return nil, fmt.Errorf("genesis %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// SyncerConfig converts the [sync] table.
func (c Config) SyncerConfig() peersync.Config {
	return peersync.Config{
		Interval:    parseDuration(c.Sync.Interval, 10*time.Second),
		PageSize:    c.Sync.PageSize,
		RequestRate: c.Sync.RequestRate,
		Burst:       c.Sync.Burst,
	}
}

// HealthInterval converts [health] interval.
func (c Config) HealthInterval() time.Duration {
	return parseDuration(c.Health.Interval, 60*time.Second)
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ledgerHome returns the node data directory.
func ledgerHome() string {
	if env := os.Getenv("TUTULEDGER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tutuledger")
}

// LedgerHome is exported for use by the CLI.
func LedgerHome() string {
	return ledgerHome()
}
