package repair

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"lwwdict/internal/lww"
)

// PushFunc delivers delta to the replica at addr.
type PushFunc func(ctx context.Context, addr string, delta *lww.Dictionary) error

// Repairer pushes missing records to stale replicas in the background.
type Repairer struct {
	push    PushFunc
	timeout time.Duration
	logger  log.Logger
	wg      sync.WaitGroup
}

// NewRepairer creates a new repairer.
func NewRepairer(push PushFunc, timeout time.Duration, logger log.Logger) *Repairer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Repairer{
		push:    push,
		timeout: timeout,
		logger:  logger,
	}
}

// Repair sends delta to the replica peerID at addr without blocking.
// Failures are logged and not retried; the next anti-entropy round covers them.
func (r *Repairer) Repair(peerID, addr string, delta *lww.Dictionary) {
	if delta == nil || Empty(delta) {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := recover(); err != nil {
				level.Error(r.logger).Log("msg", "repair panic", "peer", peerID, "err", fmt.Sprint(err))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		adds, removes := delta.Sizes()
		if err := r.push(ctx, addr, delta); err != nil {
			level.Warn(r.logger).Log("msg", "repair push failed", "peer", peerID, "addr", addr, "err", err)
			return
		}
		level.Debug(r.logger).Log("msg", "repaired stale replica", "peer", peerID, "adds", adds, "removes", removes)
	}()
}

// Wait blocks until all pending repairs have finished.
func (r *Repairer) Wait() {
	r.wg.Wait()
}
