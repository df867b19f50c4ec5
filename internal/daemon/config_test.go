package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/tutuledger/internal/app/params"
	"github.com/tutu-network/tutuledger/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 7420 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 7420)
	}
	if cfg.Ledger.MaxParkedPerChannel != 1024 {
		t.Errorf("Ledger.MaxParkedPerChannel = %d, want 1024", cfg.Ledger.MaxParkedPerChannel)
	}
	if got := cfg.SyncerConfig().Interval; got != 10*time.Second {
		t.Errorf("sync interval = %v, want 10s", got)
	}
	if got := cfg.HealthInterval(); got != 60*time.Second {
		t.Errorf("health interval = %v, want 60s", got)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
[api]
port = 9000

[ledger]
channels = ["dev", "ops"]

[genesis]
initial_balance_sp = 1000
task_tax_rate = 0.05

[sync]
peers = ["http://10.0.0.2:7420"]
interval = "2s"

[health]
interval = "15s"
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want default kept", cfg.API.Host)
	}
	if len(cfg.Ledger.Channels) != 2 || len(cfg.Sync.Peers) != 1 {
		t.Errorf("channels = %v, peers = %v", cfg.Ledger.Channels, cfg.Sync.Peers)
	}
	if got := cfg.SyncerConfig().Interval; got != 2*time.Second {
		t.Errorf("sync interval = %v, want 2s", got)
	}
	if got := cfg.HealthInterval(); got != 15*time.Second {
		t.Errorf("health interval = %v, want 15s", got)
	}

	genesis, err := cfg.GenesisParams(params.MustDefaultSchema())
	if err != nil {
		t.Fatalf("GenesisParams() error: %v", err)
	}
	if got := genesis[domain.ParamInitialBalance]; got != domain.IntValue(1000) {
		t.Errorf("initial_balance_sp = %v, want 1000", got)
	}
	if got := genesis[domain.ParamTaskTaxRate]; got != domain.FloatValue(0.05) {
		t.Errorf("task_tax_rate = %v, want 0.05", got)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.API.Port != 7420 {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
}

func TestLoadConfigFile_UnknownKey(t *testing.T) {
	path := writeConfig(t, "[api]\nprot = 1\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("LoadConfigFile() accepted a misspelled key")
	}
}

func TestGenesisParams_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		genesis map[string]any
		want    error
	}{
		{"unknown key", map[string]any{"gas_price": int64(1)}, domain.ErrUnknownParam},
		{"out of bounds", map[string]any{domain.ParamTaskTaxRate: 0.9}, domain.ErrParamBounds},
		{"wrong kind", map[string]any{domain.ParamInitialBalance: 1.5}, domain.ErrParamKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Genesis = tt.genesis
			_, err := cfg.GenesisParams(params.MustDefaultSchema())
			if !errors.Is(err, tt.want) {
				t.Errorf("GenesisParams() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"", 5 * time.Second},
		{"soon", 5 * time.Second},
		{"-1s", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, 5*time.Second); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.DataDir = t.TempDir()
	cfg.Ledger.Channels = []string{"dev"}
	cfg.Genesis = map[string]any{domain.ParamInitialBalance: int64(250)}
	cfg.Health.Interval = "5s"

	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if !d.Store.HasChannel("dev") || !d.Store.HasChannel(domain.DefaultChannel) {
		t.Errorf("channels = %v", d.Store.Channels())
	}
	if d.Keypair == nil {
		t.Fatal("keypair not created")
	}
	if _, err := os.Stat(filepath.Join(cfg.Node.DataDir, "keys", "node.key")); err != nil {
		t.Errorf("keypair not persisted: %v", err)
	}
	if got := d.Health.Interval(); got != 5*time.Second {
		t.Errorf("health interval = %v, want 5s", got)
	}
}

func TestNewWithConfig_BadGenesis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.DataDir = t.TempDir()
	cfg.Genesis = map[string]any{"nope": int64(1)}
	if _, err := NewWithConfig(cfg); err == nil {
		t.Fatal("NewWithConfig() accepted an unknown genesis key")
	}
}
