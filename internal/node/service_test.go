package node

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwwdict/internal/gossip"
	"lwwdict/internal/lww"
	"lwwdict/internal/repair"
	"lwwdict/internal/storage"
)

func TestService_RejectsEmptyKey(t *testing.T) {
	svc := NewService(storage.NewInMemoryStore(), nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Add(ctx, "", lww.NewRecord(nil, 1)), ErrEmptyKey)
	assert.ErrorIs(t, svc.Update(ctx, "", lww.NewRecord(nil, 1)), ErrEmptyKey)
	assert.ErrorIs(t, svc.Remove(ctx, "", 1), ErrEmptyKey)
	_, err := svc.Lookup(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = svc.Get(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestService_MergeNil(t *testing.T) {
	svc := NewService(storage.NewInMemoryStore(), nil, nil)
	_, err := svc.Merge(context.Background(), "n2", nil, false)
	assert.Error(t, err)
}

func TestService_FullMergeRepairsKnownPeer(t *testing.T) {
	var (
		mu     sync.Mutex
		pushed = map[string]*lww.Dictionary{}
	)
	push := func(ctx context.Context, addr string, d *lww.Dictionary) error {
		mu.Lock()
		defer mu.Unlock()
		pushed[addr] = d
		return nil
	}
	repairer := repair.NewRepairer(push, time.Second, nil)

	peers := gossip.NewPeerTable("n1", 0, nil)
	peers.Add("n2", "addr-2")

	store := storage.NewInMemoryStore()
	require.NoError(t, store.Add("mine", lww.NewRecord([]byte("m"), 1)))
	svc := NewService(store, peers, repairer)

	theirs := lww.New()
	theirs.Add("theirs", lww.NewRecord([]byte("t"), 1))

	ctx := context.Background()

	// Deltas never trigger a push back.
	_, err := svc.Merge(ctx, "n2", theirs, false)
	require.NoError(t, err)
	// Unknown senders are not repaired.
	_, err = svc.Merge(ctx, "n7", theirs, true)
	require.NoError(t, err)
	repairer.Wait()
	assert.Empty(t, pushed)

	_, err = svc.Merge(ctx, "n2", theirs, true)
	require.NoError(t, err)
	repairer.Wait()

	mu.Lock()
	defer mu.Unlock()
	delta, ok := pushed["addr-2"]
	require.True(t, ok)
	assert.Equal(t, []string{"mine"}, delta.Keys())
}

func TestLoggingService(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogfmtLogger(log.NewSyncWriter(&buf))

	svc := NewLoggingService(NewService(storage.NewInMemoryStore(), nil, nil), logger)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "k", lww.NewRecord(nil, 7)))
	_ = svc.Add(ctx, "k", lww.NewRecord(nil, 0))

	out := buf.String()
	assert.Contains(t, out, "method=ADD")
	assert.Contains(t, out, "key=k")
	assert.Contains(t, out, "ts=7")
	assert.Contains(t, out, "msg=\"operation failed\"")
	assert.Contains(t, out, "missing timestamp")
}

func TestMetricsService_CountsRequests(t *testing.T) {
	reg := prom.NewRegistry()
	svc := NewMetricsService(NewService(storage.NewInMemoryStore(), nil, nil), NewMetrics(reg))
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "k", lww.NewRecord(nil, 1)))
	ok, err := svc.Lookup(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	replica := lww.New()
	replica.Add("j", lww.NewRecord(nil, 1))
	stats, err := svc.Merge(ctx, "n2", replica, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Adds)
	families, err := reg.Gather()
	require.NoError(t, err)
	var requests float64
	for _, mf := range families {
		if mf.GetName() != "lwwdict_service_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			requests += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(3), requests)
}
