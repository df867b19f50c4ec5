// Package peersync pulls events from peer nodes and merges them into the
// local store. Merging is idempotent: re-pulled events come back as
// duplicates and rejected events never enter the log.
package peersync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tutu-network/tutuledger/internal/api"
	"github.com/tutu-network/tutuledger/internal/domain"
	"github.com/tutu-network/tutuledger/internal/infra/metrics"
)

// Source is the read side of a peer.
type Source interface {
	EventsSince(ctx context.Context, channel string, cursor int64, limit int) (api.EventsPage, error)
	Fingerprint(ctx context.Context) (domain.Fingerprint, error)
}

// Sink is the local replica events are merged into.
type Sink interface {
	Submit(ctx context.Context, ev domain.Event) (domain.AcceptResult, error)
	Channels() []string
	CheckConvergence(ctx context.Context, remote domain.Fingerprint) (bool, error)
}

// Config controls pacing.
type Config struct {
	Interval    time.Duration // between sync rounds
	PageSize    int           // events per events_since request
	RequestRate float64       // requests per second across all peers
	Burst       int
	Parallelism int // peers pulled concurrently
}

// DefaultConfig returns production pacing.
func DefaultConfig() Config {
	return Config{
		Interval:    10 * time.Second,
		PageSize:    200,
		RequestRate: 20,
		Burst:       5,
		Parallelism: 4,
	}
}

type peer struct {
	name string
	src  Source
}

// Syncer pulls every local channel from every peer.
type Syncer struct {
	cfg     Config
	sink    Sink
	peers   []peer
	limiter *rate.Limiter

	mu      sync.Mutex
	cursors map[string]map[string]int64 // peer → channel → last seq pulled
	counts  map[string]int              // peer → event count it last reported
}

// New creates a syncer. Zero fields in cfg take their defaults.
func New(cfg Config, sink Sink) *Syncer {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.RequestRate <= 0 {
		cfg.RequestRate = def.RequestRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	return &Syncer{
		cfg:     cfg,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestRate), cfg.Burst),
		cursors: make(map[string]map[string]int64),
		counts:  make(map[string]int),
	}
}

// AddPeer registers a peer under name (usually its base URL).
func (s *Syncer) AddPeer(name string, src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append(s.peers, peer{name: name, src: src})
	sort.Slice(s.peers, func(i, j int) bool { return s.peers[i].name < s.peers[j].name })
	if s.cursors[name] == nil {
		s.cursors[name] = make(map[string]int64)
	}
}

// AddPeerURL registers a peer reachable over HTTP.
func (s *Syncer) AddPeerURL(baseURL string) {
	s.AddPeer(baseURL, api.NewClient(baseURL))
}

// PeerCount returns the number of registered peers.
func (s *Syncer) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Cursor returns the last sequence pulled from a peer's channel.
func (s *Syncer) Cursor(peerName, channel string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[peerName][channel]
}

func (s *Syncer) setCursor(peerName, channel string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[peerName][channel] = seq
}

// observeCount records the event count a peer reported and reports whether
// it went down. A node's event set only grows, so a drop means the peer's
// store was reset and its sequence numbers restarted.
func (s *Syncer) observeCount(peerName string, events int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, seen := s.counts[peerName]
	s.counts[peerName] = events
	return seen && events < prev
}

func (s *Syncer) resetCursors(peerName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[peerName] = make(map[string]int64)
}

// Report summarizes one sync round.
type Report struct {
	Pulled   map[domain.AcceptStatus]int
	Compared []string // peers whose event set matched ours
	Failed   []string
}

func (r *Report) merge(o Report) {
	for k, v := range o.Pulled {
		r.Pulled[k] += v
	}
	r.Compared = append(r.Compared, o.Compared...)
	r.Failed = append(r.Failed, o.Failed...)
}

// Run syncs immediately and then every Interval until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[peersync] round error: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SyncOnce pulls every peer once. Peer failures are reported and do not
// stop the others; a convergence failure is returned as an error.
func (s *Syncer) SyncOnce(ctx context.Context) (Report, error) {
	s.mu.Lock()
	peers := append([]peer(nil), s.peers...)
	s.mu.Unlock()

	report := Report{Pulled: make(map[domain.AcceptStatus]int)}
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, p := range peers {
		p := p
		g.Go(func() error {
			r, err := s.syncPeer(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			report.merge(r)
			if err != nil {
				errs = append(errs, fmt.Errorf("peer %s: %w", p.name, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Compared)
	sort.Strings(report.Failed)
	return report, errors.Join(errs...)
}

func (s *Syncer) syncPeer(ctx context.Context, p peer) (Report, error) {
	r := Report{Pulled: make(map[domain.AcceptStatus]int)}

	for restarted := false; ; restarted = true {
		if err := s.pullAll(ctx, p, &r); err != nil {
			return r, err
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return r, err
		}
		remote, err := p.src.Fingerprint(ctx)
		if err != nil {
			metrics.PeerSyncErrors.WithLabelValues(p.name).Inc()
			r.Failed = append(r.Failed, p.name)
			return r, fmt.Errorf("fingerprint: %w", err)
		}
		if s.observeCount(p.name, remote.Events) && !restarted {
			log.Printf("[peersync] %s now reports %d events, pulling again from cursor 0", p.name, remote.Events)
			s.resetCursors(p.name)
			continue
		}

		compared, err := s.sink.CheckConvergence(ctx, remote)
		if compared {
			r.Compared = append(r.Compared, p.name)
		}
		if err != nil {
			log.Printf("[peersync] DIVERGENCE with %s: %v", p.name, err)
			return r, err
		}
		return r, nil
	}
}

func (s *Syncer) pullAll(ctx context.Context, p peer, r *Report) error {
	for _, ch := range s.sink.Channels() {
		if err := s.pullChannel(ctx, p, ch, r); err != nil {
			metrics.PeerSyncErrors.WithLabelValues(p.name).Inc()
			log.Printf("[peersync] pull %s/%s failed: %v", p.name, ch, err)
			r.Failed = append(r.Failed, p.name)
			return err
		}
	}
	return nil
}

func (s *Syncer) pullChannel(ctx context.Context, p peer, channel string, r *Report) error {
	cursor := s.Cursor(p.name, channel)
	restarted := false
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		page, err := p.src.EventsSince(ctx, channel, cursor, s.cfg.PageSize)
		if err != nil {
			var apiErr *api.Error
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
				return nil // peer does not carry this channel
			}
			return err
		}

		if len(page.Events) > 0 && page.Events[0].Seq <= cursor && !restarted {
			log.Printf("[peersync] %s/%s sequence restarted below cursor %d, pulling from 0", p.name, channel, cursor)
			cursor, restarted = 0, true
			s.setCursor(p.name, channel, 0)
			continue
		}

		for _, se := range page.Events {
			res, err := s.sink.Submit(ctx, se.Event)
			if err != nil {
				return fmt.Errorf("merge %s: %w", se.Event.ID, err)
			}
			r.Pulled[res.Status]++
			metrics.PeerSyncEvents.WithLabelValues(string(res.Status)).Inc()
			if res.Status == domain.AcceptRejected {
				log.Printf("[peersync] %s sent rejected event %s: %s", p.name, se.Event.ID, res.Reason)
			}
			cursor = se.Seq
		}
		s.setCursor(p.name, channel, cursor)

		if len(page.Events) < s.cfg.PageSize {
			return nil
		}
	}
}
