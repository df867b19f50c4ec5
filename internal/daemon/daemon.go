package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/tutuledger/internal/api"
	"github.com/tutu-network/tutuledger/internal/app/derive"
	"github.com/tutu-network/tutuledger/internal/app/eventstore"
	"github.com/tutu-network/tutuledger/internal/app/params"
	"github.com/tutu-network/tutuledger/internal/app/replica"
	"github.com/tutu-network/tutuledger/internal/health"
	"github.com/tutu-network/tutuledger/internal/infra/peersync"
	"github.com/tutu-network/tutuledger/internal/infra/sqlite"
	"github.com/tutu-network/tutuledger/internal/security"
)

// Daemon is the ledger node runtime. It wires together all services.
type Daemon struct {
	Config  Config
	DB      *sqlite.DB
	Keypair *security.Keypair
	Store   *eventstore.Store
	Replica *replica.Replica
	Server  *api.Server
	Sync    *peersync.Syncer
	Health  *health.Checker
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	dataDir := cfg.Node.DataDir
	if dataDir == "" {
		dataDir = ledgerHome()
	}

	schema := params.MustDefaultSchema()
	genesis, err := cfg.GenesisParams(schema)
	if err != nil {
		return nil, err
	}
	engine, err := derive.NewEngine(schema, genesis, derive.Options{
		MaxParkedPerChannel: cfg.Ledger.MaxParkedPerChannel,
	})
	if err != nil {
		return nil, fmt.Errorf("derivation engine: %w", err)
	}

	kp, err := security.LoadOrCreateKeypair(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}

	db, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store, err := eventstore.Open(context.Background(), db, security.Ed25519Verifier{}, cfg.Ledger.Channels)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open event store: %w", err)
	}

	nodeID := cfg.Node.ID
	if nodeID == "" {
		nodeID = "node-" + kp.PublicKeyHex()[:16]
	}
	if err := db.SetNodeInfo("node_id", nodeID); err != nil {
		log.Printf("[daemon] WARNING: failed to record node id: %v", err)
	}

	rep := replica.New(store, engine)

	checker := health.NewChecker(db, dataDir, rep)
	checker.SetInterval(cfg.HealthInterval())

	srv := api.NewServer(rep)
	srv.SetHealth(checker)
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}

	syncer := peersync.New(cfg.SyncerConfig(), rep)
	for _, p := range cfg.Sync.Peers {
		syncer.AddPeerURL(p)
	}

	log.Printf("[daemon] node %s: %d channels, %d peers, health every %s",
		nodeID, len(store.Channels()), syncer.PeerCount(), checker.Interval())

	return &Daemon{
		Config:  cfg,
		DB:      db,
		Keypair: kp,
		Store:   store,
		Replica: rep,
		Server:  srv,
		Sync:    syncer,
		Health:  checker,
	}, nil
}

// Serve starts the HTTP server and peer sync, and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	d.cancel = cancel

	// Derive once up front so the first request does not pay for a rebuild.
	if err := d.Replica.Refresh(ctx); err != nil {
		return fmt.Errorf("initial derivation: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if d.Sync.PeerCount() > 0 {
		g.Go(func() error { return d.Sync.Run(gctx) })
	}

	g.Go(func() error {
		d.Health.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	fmt.Printf("TuTu Ledger serving on http://%s\n", addr)
	fmt.Printf("  Node:    %s\n", d.Keypair.PublicKeyHex())
	if n := d.Sync.PeerCount(); n > 0 {
		fmt.Printf("  Peers:   %d (every %s)\n", n, d.Config.SyncerConfig().Interval)
	}
	if d.Config.API.Metrics {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	err := g.Wait()
	if cerr := d.DB.Close(); cerr != nil && err == nil {
		err = cerr
	}
	d.DB = nil
	return err
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
		d.DB = nil
	}
}
