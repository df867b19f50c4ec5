package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tutu-network/tutuledger/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringSliceVar(&servePeers, "peer", nil, "Peer node URL to pull from (repeatable)")
	serveCmd.Flags().StringSliceVar(&serveChannels, "channel", nil, "Extra channel to carry (repeatable)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost     string
	servePort     int
	servePeers    []string
	serveChannels []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ledger node",
	Long:  `Start the ledger node HTTP API at localhost:7420 and pull from configured peers.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	cfg.Sync.Peers = append(cfg.Sync.Peers, servePeers...)
	cfg.Ledger.Channels = append(cfg.Ledger.Channels, serveChannels...)

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	d.Server.SetVersion(rootCmd.Version)

	return d.Serve(context.Background())
}
