package gossip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"lwwdict/internal/fanout"
	"lwwdict/internal/lww"
	"lwwdict/internal/repair"
	"lwwdict/internal/storage"
)

// Transport moves replica state between nodes.
type Transport interface {
	// FetchState returns the full replica state of the node at addr.
	FetchState(ctx context.Context, addr string) (*lww.Dictionary, error)
	// PushState asks the node at addr to merge d.
	PushState(ctx context.Context, addr string, d *lww.Dictionary, full bool) (lww.MergeStats, error)
}

// Mode selects how a round exchanges state with a peer.
type Mode string

const (
	// ModePushPull fetches the peer's full state, merges it, and pushes back
	// the records the peer lacks.
	ModePushPull Mode = "push-pull"
	// ModePush ships the full local state marked as full. The peer merges
	// it and answers asynchronously with the records this node lacks.
	ModePush Mode = "push"
)

// Config controls the anti-entropy loop.
type Config struct {
	Interval time.Duration
	Fanout   int
	Timeout  time.Duration
	Mode     Mode
}

// RoundResult summarizes one anti-entropy round.
type RoundResult struct {
	Selected []string
	Synced   []string
	Failed   map[string]error
	Pulled   lww.MergeStats
	Pushed   lww.MergeStats
	Duration time.Duration
}

// Syncer periodically exchanges state with a few peers.
type Syncer struct {
	localID   string
	store     storage.Store
	peers     *PeerTable
	transport Transport
	cfg       Config
	logger    log.Logger

	mu      sync.Mutex
	onRound func(RoundResult)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncer creates a syncer for the node localID.
func NewSyncer(localID string, store storage.Store, peers *PeerTable, transport Transport, cfg Config, logger log.Logger) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = fanout.DefaultPerTargetTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePushPull
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		localID:   localID,
		store:     store,
		peers:     peers,
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetOnRound sets a callback invoked after every round.
func (s *Syncer) SetOnRound(callback func(RoundResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRound = callback
}

// Start runs a round every Interval until Stop is called.
func (s *Syncer) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Round(s.ctx)
			}
		}
	}()
}

// Stop stops the loop and waits for an in-flight round.
func (s *Syncer) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Round syncs with up to Fanout peers in parallel. In push-pull mode it
// pulls each peer's full state, merges it locally, and pushes back only the
// records the peer is missing. In push mode it ships the full local state
// and leaves the reverse direction to the peer.
func (s *Syncer) Round(ctx context.Context) RoundResult {
	start := time.Now()
	selected := s.peers.Select(s.cfg.Fanout)

	res := RoundResult{Failed: map[string]error{}}
	if len(selected) == 0 {
		return res
	}

	byID := make(map[string]Peer, len(selected))
	ids := make([]string, 0, len(selected))
	for _, p := range selected {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}
	res.Selected = ids

	var mu sync.Mutex
	out := fanout.Do(ctx, ids, 1, s.cfg.Timeout, func(ctx context.Context, id string) error {
		pulled, pushed, err := s.syncPeer(ctx, byID[id])
		if err != nil {
			s.peers.MarkFailed(id, err)
			return err
		}
		s.peers.MarkAlive(id)

		mu.Lock()
		res.Pulled.Adds += pulled.Adds
		res.Pulled.Removes += pulled.Removes
		res.Pushed.Adds += pushed.Adds
		res.Pushed.Removes += pushed.Removes
		mu.Unlock()
		return nil
	})

	res.Synced = out.Succeeded
	res.Failed = out.Failed
	res.Duration = time.Since(start)

	if !out.Success {
		level.Warn(s.logger).Log("msg", "anti-entropy round failed", "err", out.ErrorMessage)
	} else {
		level.Debug(s.logger).Log(
			"msg", "anti-entropy round",
			"peers", len(res.Synced),
			"pulled_adds", res.Pulled.Adds,
			"pulled_removes", res.Pulled.Removes,
			"pushed_adds", res.Pushed.Adds,
			"pushed_removes", res.Pushed.Removes,
			"took", res.Duration,
		)
	}

	s.mu.Lock()
	cb := s.onRound
	s.mu.Unlock()
	if cb != nil {
		cb(res)
	}
	return res
}

func (s *Syncer) syncPeer(ctx context.Context, p Peer) (pulled, pushed lww.MergeStats, err error) {
	if s.cfg.Mode == ModePush {
		pushed, err = s.transport.PushState(ctx, p.Addr, s.store.Snapshot(), true)
		if err != nil {
			return pulled, pushed, fmt.Errorf("push state to %s: %w", p.ID, err)
		}
		return pulled, pushed, nil
	}

	remote, err := s.transport.FetchState(ctx, p.Addr)
	if err != nil {
		return pulled, pushed, fmt.Errorf("fetch state from %s: %w", p.ID, err)
	}
	pulled = s.store.Merge(remote)

	delta := repair.Diff(s.store.Snapshot(), remote)
	if repair.Empty(delta) {
		return pulled, pushed, nil
	}
	pushed, err = s.transport.PushState(ctx, p.Addr, delta, false)
	if err != nil {
		return pulled, pushed, fmt.Errorf("push state to %s: %w", p.ID, err)
	}
	return pulled, pushed, nil
}
