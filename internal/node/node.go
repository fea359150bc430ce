package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"lwwdict/internal/config"
	"lwwdict/internal/gossip"
	"lwwdict/internal/repair"
	"lwwdict/internal/storage"
	"lwwdict/internal/wire"
)

// Node represents a single replica.
type Node struct {
	cfg      *config.Config
	logger   log.Logger
	store    *storage.InMemoryStore
	svc      Service
	peers    *gossip.PeerTable
	clients  *ClientManager
	syncer   *gossip.Syncer
	repairer *repair.Repairer
	registry *prom.Registry
	metrics  *Metrics

	grpcServer *grpc.Server
	health     *health.Server
	admin      *http.Server

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds a node from cfg. The replica is restored from the snapshot
// file when one is configured and present. dialOpts are passed to every
// peer connection.
func New(cfg *config.Config, logger log.Logger, dialOpts ...grpc.DialOption) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "node", cfg.NodeID)

	store := storage.NewInMemoryStore()
	if cfg.SnapshotPath != "" {
		d, err := storage.LoadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to restore snapshot: %w", err)
		}
		store = storage.NewInMemoryStoreFrom(d)
		st := store.Stats()
		level.Info(logger).Log("msg", "restored snapshot", "path", cfg.SnapshotPath, "add_set", st.AddSet, "remove_set", st.RemoveSet)
	}

	peers := gossip.NewPeerTable(cfg.NodeID, gossip.DefaultDeadAfter, log.With(logger, "component", "peers"))
	for _, p := range cfg.RemotePeers() {
		peers.Add(p.ID, p.Addr)
	}

	clients := NewClientManager(cfg.NodeID, dialOpts...)
	repairer := repair.NewRepairer(clients.pushDelta, 0, log.With(logger, "component", "repair"))

	registry := prom.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registerStoreGauges(registry, store)
	metrics := NewMetrics(registry)

	var svc Service
	svc = NewService(store, peers, repairer)
	svc = NewLoggingService(svc, log.With(logger, "component", "service"))
	svc = NewMetricsService(svc, metrics)

	syncer := gossip.NewSyncer(cfg.NodeID, store, peers, clients, gossip.Config{
		Interval: cfg.SyncInterval.Duration,
		Fanout:   cfg.Fanout,
		Mode:     gossip.Mode(cfg.SyncMode),
	}, log.With(logger, "component", "sync"))
	syncer.SetOnRound(metrics.ObserveRound)

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		svc:      svc,
		peers:    peers,
		clients:  clients,
		syncer:   syncer,
		repairer: repairer,
		registry: registry,
		metrics:  metrics,
		health:   health.NewServer(),
		ctx:      ctx,
		cancel:   cancel,
	}

	// The wire codec also decodes plain protobuf, so clients generated from
	// api/lwwdict.proto and grpcurl work alongside Client.
	n.grpcServer = grpc.NewServer(grpc.ForceServerCodec(wire.Codec{}))
	RegisterDictionaryServer(n.grpcServer, NewDictionaryServer(svc, cfg.NodeID))
	healthpb.RegisterHealthServer(n.grpcServer, n.health)
	reflection.Register(n.grpcServer)

	return n, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.cfg.NodeID
}

// Service returns the instrumented service of the node.
func (n *Node) Service() Service {
	return n.svc
}

// Store returns the local replica.
func (n *Node) Store() storage.Store {
	return n.store
}

// Peers returns the peer table.
func (n *Node) Peers() *gossip.PeerTable {
	return n.peers
}

// Start listens on the configured addresses and serves until Stop.
func (n *Node) Start() error {
	lis, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
	}

	if n.cfg.AdminAddr != "" {
		adminLis, err := net.Listen("tcp", n.cfg.AdminAddr)
		if err != nil {
			lis.Close()
			return fmt.Errorf("failed to listen on %s: %w", n.cfg.AdminAddr, err)
		}
		n.ServeAdmin(adminLis)
	}

	return n.Serve(lis)
}

// ServeAdmin serves the admin HTTP surface on lis in the background.
func (n *Node) ServeAdmin(lis net.Listener) {
	n.admin = &http.Server{
		Handler:           n.AdminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		level.Info(n.logger).Log("msg", "admin handler listening", "addr", lis.Addr().String())
		if err := n.admin.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Warn(n.logger).Log("msg", "failed to serve admin", "err", err)
		}
	}()
}

// Serve starts the background loops and serves gRPC on lis until Stop.
func (n *Node) Serve(lis net.Listener) error {
	n.syncer.Start()
	if n.cfg.SnapshotPath != "" {
		n.wg.Add(1)
		go n.snapshotLoop()
	}

	n.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	n.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	level.Info(n.logger).Log("msg", "starting node", "addr", lis.Addr().String(), "peers", n.peers.Len())

	if err := n.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the node and writes a final snapshot.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		level.Info(n.logger).Log("msg", "stopping node")

		n.health.Shutdown()
		n.syncer.Stop()
		n.cancel()

		if n.admin != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := n.admin.Shutdown(ctx); err != nil {
				level.Warn(n.logger).Log("msg", "failed to stop admin handler", "err", err)
			}
			cancel()
		}

		n.grpcServer.GracefulStop()
		n.wg.Wait()
		n.repairer.Wait()

		if err := n.saveSnapshot(); err != nil {
			level.Error(n.logger).Log("msg", "failed to write final snapshot", "err", err)
		}
		if err := n.clients.Close(); err != nil {
			level.Warn(n.logger).Log("msg", "failed to close peer connections", "err", err)
		}
	})
}

// SyncNow runs one anti-entropy round immediately.
func (n *Node) SyncNow(ctx context.Context) gossip.RoundResult {
	return n.syncer.Round(ctx)
}

func (n *Node) saveSnapshot() error {
	if n.cfg.SnapshotPath == "" {
		return nil
	}
	return n.store.Save(n.cfg.SnapshotPath, n.cfg.NodeID)
}

func (n *Node) snapshotLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.SnapshotInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if err := n.saveSnapshot(); err != nil {
				level.Warn(n.logger).Log("msg", "failed to write snapshot", "path", n.cfg.SnapshotPath, "err", err)
			}
		}
	}
}
