package node

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"

	"lwwdict/internal/gossip"
	"lwwdict/internal/lww"
	"lwwdict/internal/storage"
)

const namespace = "lwwdict"

// Metrics holds the instruments of one node.
type Metrics struct {
	// Requests is labelled by method and error ("true"/"false").
	Requests metrics.Counter
	// Latency is labelled by method.
	Latency metrics.Histogram
	// Merged counts records a merge changed, labelled by set and source
	// ("rpc", "pull", "push").
	Merged metrics.Counter
	// SyncRounds is labelled by outcome ("ok"/"failed").
	SyncRounds metrics.Counter
}

// NewMetrics creates instruments registered on reg.
func NewMetrics(reg *prom.Registry) *Metrics {
	requests := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "requests_total",
		Help:      "Number of service requests",
	}, []string{"method", "error"})
	latency := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Subsystem: "service",
		Name:      "request_duration_seconds",
		Help:      "Service request latency",
		Buckets:   prom.DefBuckets,
	}, []string{"method"})
	merged := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "replica",
		Name:      "merged_records_total",
		Help:      "Number of records a merge changed",
	}, []string{"set", "source"})
	rounds := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "antientropy",
		Name:      "rounds_total",
		Help:      "Number of anti-entropy rounds",
	}, []string{"outcome"})

	reg.MustRegister(requests, latency, merged, rounds)

	return &Metrics{
		Requests:   kitprometheus.NewCounter(requests),
		Latency:    kitprometheus.NewHistogram(latency),
		Merged:     kitprometheus.NewCounter(merged),
		SyncRounds: kitprometheus.NewCounter(rounds),
	}
}

// registerStoreGauges exposes the set sizes of store on reg.
func registerStoreGauges(reg *prom.Registry, store storage.Store) {
	gauge := func(name, help string, value func(storage.Stats) int) prom.Collector {
		return prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replica",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(value(store.Stats()))
		})
	}
	reg.MustRegister(
		gauge("add_set_records", "Records in the add set", func(s storage.Stats) int { return s.AddSet }),
		gauge("remove_set_records", "Records in the remove set", func(s storage.Stats) int { return s.RemoveSet }),
		gauge("visible_keys", "Keys currently visible", func(s storage.Stats) int { return s.Visible }),
	)
}

func (m *Metrics) observeMerge(source string, stats lww.MergeStats) {
	if stats.Adds > 0 {
		m.Merged.With("set", "add", "source", source).Add(float64(stats.Adds))
	}
	if stats.Removes > 0 {
		m.Merged.With("set", "remove", "source", source).Add(float64(stats.Removes))
	}
}

// ObserveRound records the outcome of an anti-entropy round.
func (m *Metrics) ObserveRound(res gossip.RoundResult) {
	if len(res.Selected) == 0 {
		return
	}
	outcome := "ok"
	if len(res.Synced) == 0 {
		outcome = "failed"
	}
	m.SyncRounds.With("outcome", outcome).Add(1)
	m.observeMerge("pull", res.Pulled)
	m.observeMerge("push", res.Pushed)
}

type metricsService struct {
	service Service
	metrics *Metrics
}

// NewMetricsService wraps s and records request counts and latencies.
func NewMetricsService(s Service, m *Metrics) Service {
	return &metricsService{
		service: s,
		metrics: m,
	}
}

func (s *metricsService) observe(method string, begin time.Time, err error) {
	s.metrics.Requests.With("method", method, "error", strconv.FormatBool(err != nil)).Add(1)
	s.metrics.Latency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (s *metricsService) Add(ctx context.Context, key string, rec lww.Record) (err error) {
	defer func(begin time.Time) { s.observe("add", begin, err) }(time.Now())
	return s.service.Add(ctx, key, rec)
}

func (s *metricsService) Update(ctx context.Context, key string, rec lww.Record) (err error) {
	defer func(begin time.Time) { s.observe("update", begin, err) }(time.Now())
	return s.service.Update(ctx, key, rec)
}

func (s *metricsService) Remove(ctx context.Context, key string, ts lww.Timestamp) (err error) {
	defer func(begin time.Time) { s.observe("remove", begin, err) }(time.Now())
	return s.service.Remove(ctx, key, ts)
}

func (s *metricsService) Lookup(ctx context.Context, key string) (ok bool, err error) {
	defer func(begin time.Time) { s.observe("lookup", begin, err) }(time.Now())
	return s.service.Lookup(ctx, key)
}

func (s *metricsService) Get(ctx context.Context, key string) (rec lww.Record, ok bool, err error) {
	defer func(begin time.Time) { s.observe("get", begin, err) }(time.Now())
	return s.service.Get(ctx, key)
}

func (s *metricsService) State(ctx context.Context, from string) (d *lww.Dictionary, err error) {
	defer func(begin time.Time) { s.observe("state", begin, err) }(time.Now())
	return s.service.State(ctx, from)
}

func (s *metricsService) Merge(ctx context.Context, from string, replica *lww.Dictionary, full bool) (stats lww.MergeStats, err error) {
	defer func(begin time.Time) { s.observe("merge", begin, err) }(time.Now())
	stats, err = s.service.Merge(ctx, from, replica, full)
	if err == nil {
		s.metrics.observeMerge("rpc", stats)
	}
	return stats, err
}
