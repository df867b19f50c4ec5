// Package cli implements the TuTu Ledger command-line interface using Cobra.
// Queries read a running node over HTTP; emitting commands sign locally with
// the node keypair and submit the event to the node.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/tutuledger/internal/api"
	"github.com/tutu-network/tutuledger/internal/daemon"
	"github.com/tutu-network/tutuledger/internal/security"
)

var rootCmd = &cobra.Command{
	Use:   "tutuledger",
	Short: "TuTu Ledger: replicated SP ledger and governance node",
	Long: `TuTu Ledger keeps a signed, gossip-replicated event log and derives
balances, task escrow, treasuries and governed configuration from it.
Every node that holds the same events derives the same state.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	nodeURL    string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "Node API base URL (default from config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// nodeClient returns a client for --node, or for the address in the local
// config when the flag is unset.
func nodeClient() (*api.Client, error) {
	if nodeURL != "" {
		return api.NewClient(nodeURL), nil
	}
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(fmt.Sprintf("http://%s:%d", cfg.API.Host, cfg.API.Port)), nil
}

// nodeKeypair loads the identity used to sign emitted events.
func nodeKeypair() (*security.Keypair, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	home := cfg.Node.DataDir
	if home == "" {
		home = daemon.LedgerHome()
	}
	return security.LoadOrCreateKeypair(home)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
