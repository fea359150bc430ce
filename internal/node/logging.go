package node

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"lwwdict/internal/lww"
)

type loggingService struct {
	logger  log.Logger
	service Service
}

// NewLoggingService wraps a provided existing
// service with the provided logger.
func NewLoggingService(s Service, logger log.Logger) Service {
	return &loggingService{logger, s}
}

func (s *loggingService) log(method string, begin time.Time, err error, kv ...interface{}) {
	logger := log.With(s.logger, "method", method, "took", time.Since(begin))
	if len(kv) > 0 {
		logger = log.With(logger, kv...)
	}

	if err != nil {
		level.Info(logger).Log("msg", "operation failed", "err", err)
		return
	}
	level.Debug(logger).Log()
}

// Add wraps this service's Add method
// with added logging capabilities.
func (s *loggingService) Add(ctx context.Context, key string, rec lww.Record) (err error) {
	defer func(begin time.Time) {
		s.log("ADD", begin, err, "key", key, "ts", int64(rec.Timestamp))
	}(time.Now())
	return s.service.Add(ctx, key, rec)
}

// Update wraps this service's Update method
// with added logging capabilities.
func (s *loggingService) Update(ctx context.Context, key string, rec lww.Record) (err error) {
	defer func(begin time.Time) {
		s.log("UPDATE", begin, err, "key", key, "ts", int64(rec.Timestamp))
	}(time.Now())
	return s.service.Update(ctx, key, rec)
}

// Remove wraps this service's Remove method
// with added logging capabilities.
func (s *loggingService) Remove(ctx context.Context, key string, ts lww.Timestamp) (err error) {
	defer func(begin time.Time) {
		s.log("REMOVE", begin, err, "key", key, "ts", int64(ts))
	}(time.Now())
	return s.service.Remove(ctx, key, ts)
}

func (s *loggingService) Lookup(ctx context.Context, key string) (ok bool, err error) {
	defer func(begin time.Time) {
		s.log("LOOKUP", begin, err, "key", key, "visible", ok)
	}(time.Now())
	return s.service.Lookup(ctx, key)
}

func (s *loggingService) Get(ctx context.Context, key string) (rec lww.Record, ok bool, err error) {
	defer func(begin time.Time) {
		s.log("GET", begin, err, "key", key, "visible", ok)
	}(time.Now())
	return s.service.Get(ctx, key)
}

func (s *loggingService) State(ctx context.Context, from string) (d *lww.Dictionary, err error) {
	defer func(begin time.Time) {
		s.log("STATE", begin, err, "from", from)
	}(time.Now())
	return s.service.State(ctx, from)
}

// Merge wraps this service's Merge method
// with added logging capabilities.
func (s *loggingService) Merge(ctx context.Context, from string, replica *lww.Dictionary, full bool) (stats lww.MergeStats, err error) {
	defer func(begin time.Time) {
		s.log("MERGE", begin, err,
			"from", from,
			"full", full,
			"adds", stats.Adds,
			"removes", stats.Removes,
		)
	}(time.Now())
	return s.service.Merge(ctx, from, replica, full)
}
