package it

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"lwwdict/internal/config"
	"lwwdict/internal/lww"
	"lwwdict/internal/node"
	"lwwdict/internal/repair"
)

// Options configures a test cluster.
type Options struct {
	Size         int
	SyncInterval time.Duration
	// SyncMode is config.SyncPushPull unless set.
	SyncMode string
	Fanout   int
	// SnapshotDir enables per-node snapshot files in this directory.
	SnapshotDir string
	Logger      log.Logger
}

// Cluster is a set of in-process replicas talking gRPC over loopback.
type Cluster struct {
	opts    Options
	members []*Member
	mu      sync.Mutex
}

// Member is a single replica in the test cluster.
type Member struct {
	ID     string
	Addr   string
	cfg    *config.Config
	node   *node.Node
	client *node.Client
	done   chan error
}

// NewCluster reserves loopback addresses for opts.Size replicas. Nothing is
// started until Start.
func NewCluster(opts Options) (*Cluster, error) {
	if opts.Size <= 0 {
		opts.Size = 3
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 50 * time.Millisecond
	}
	if opts.Fanout <= 0 {
		opts.Fanout = 2
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	c := &Cluster{opts: opts}
	var peers []config.Peer
	for i := 1; i <= opts.Size; i++ {
		addr, err := freeAddr()
		if err != nil {
			return nil, err
		}
		id := fmt.Sprintf("n%d", i)
		peers = append(peers, config.Peer{ID: id, Addr: addr})
		c.members = append(c.members, &Member{ID: id, Addr: addr})
	}

	for _, m := range c.members {
		cfg := config.Default()
		cfg.NodeID = m.ID
		cfg.ListenAddr = m.Addr
		cfg.AdminAddr = ""
		cfg.Peers = peers
		cfg.SyncInterval = config.Duration{Duration: opts.SyncInterval}
		cfg.Fanout = opts.Fanout
		if opts.SyncMode != "" {
			cfg.SyncMode = opts.SyncMode
		}
		if opts.SnapshotDir != "" {
			cfg.SnapshotPath = filepath.Join(opts.SnapshotDir, m.ID+".state")
			cfg.SnapshotInterval = config.Duration{Duration: time.Second}
		}
		m.cfg = cfg
	}
	return c, nil
}

func freeAddr() (string, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to reserve address: %w", err)
	}
	defer lis.Close()
	return lis.Addr().String(), nil
}

// Start starts every replica and waits until all report SERVING.
func (c *Cluster) Start(ctx context.Context) error {
	for _, m := range c.members {
		if err := c.StartNode(ctx, m.ID); err != nil {
			c.Stop()
			return err
		}
	}
	return nil
}

// StartNode starts the replica id.
func (c *Cluster) StartNode(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.lookup(id)
	if m == nil {
		return fmt.Errorf("node %s not found", id)
	}
	if m.node != nil {
		return fmt.Errorf("node %s already running", id)
	}

	n, err := node.New(m.cfg, log.With(c.opts.Logger, "it", id))
	if err != nil {
		return fmt.Errorf("failed to create node %s: %w", id, err)
	}
	lis, err := net.Listen("tcp", m.Addr)
	if err != nil {
		n.Stop()
		return fmt.Errorf("failed to listen on %s: %w", m.Addr, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- n.Serve(lis)
	}()

	client, err := node.Dial(m.Addr, "it-client")
	if err != nil {
		n.Stop()
		return fmt.Errorf("failed to dial node %s: %w", id, err)
	}

	m.node = n
	m.client = client
	m.done = done

	if err := waitForReady(ctx, m, 10*time.Second); err != nil {
		m.stop()
		return fmt.Errorf("node %s failed to become ready: %w", id, err)
	}
	return nil
}

// waitForReady polls the gRPC health service of m.
func waitForReady(ctx context.Context, m *Member, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-m.done:
			m.done <- err
			return fmt.Errorf("node exited: %v", err)
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("timeout waiting for node %s to be ready", m.ID)
			}

			healthCtx, cancel := context.WithTimeout(ctx, time.Second)
			ok, err := m.client.Serving(healthCtx)
			cancel()

			if err == nil && ok {
				return nil
			}
		}
	}
}

// KillNode stops the replica id. Its snapshot, if any, is written on the
// way down.
func (c *Cluster) KillNode(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.lookup(id)
	if m == nil {
		return fmt.Errorf("node %s not found", id)
	}
	m.stop()
	return nil
}

// Stop stops all replicas in the cluster.
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.members {
		m.stop()
	}
}

func (m *Member) stop() {
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	if m.node != nil {
		m.node.Stop()
		<-m.done
		m.node = nil
	}
}

func (c *Cluster) lookup(id string) *Member {
	for _, m := range c.members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Client returns the client of a running replica.
func (c *Cluster) Client(id string) *node.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m := c.lookup(id); m != nil {
		return m.client
	}
	return nil
}

// Node returns a running replica.
func (c *Cluster) Node(id string) *node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m := c.lookup(id); m != nil {
		return m.node
	}
	return nil
}

// States fetches the state of every running replica over gRPC.
func (c *Cluster) States(ctx context.Context) (map[string]*lww.Dictionary, error) {
	c.mu.Lock()
	running := make([]*Member, 0, len(c.members))
	for _, m := range c.members {
		if m.client != nil {
			running = append(running, m)
		}
	}
	c.mu.Unlock()

	out := make(map[string]*lww.Dictionary, len(running))
	for _, m := range running {
		d, _, err := m.client.State(ctx)
		if err != nil {
			return nil, fmt.Errorf("state of %s: %w", m.ID, err)
		}
		out[m.ID] = d
	}
	return out, nil
}

// Converged reports whether every running replica holds the same state.
func (c *Cluster) Converged(ctx context.Context) bool {
	states, err := c.States(ctx)
	if err != nil {
		return false
	}
	var first *lww.Dictionary
	for _, d := range states {
		if first == nil {
			first = d
			continue
		}
		if !repair.Converged(first, d) {
			return false
		}
	}
	return true
}
