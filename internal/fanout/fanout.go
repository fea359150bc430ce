package fanout

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultPerTargetTimeout is the default timeout for each target call.
	DefaultPerTargetTimeout = 2 * time.Second
)

// Result represents the outcome of a fanout.
type Result struct {
	Success      bool
	Succeeded    []string
	Failed       map[string]error
	Required     int
	Targets      int
	ErrorMessage string
}

// TargetFunc performs the call against a single target.
type TargetFunc func(ctx context.Context, target string) error

// Do calls fn for every target in parallel, each bounded by timeout, and
// waits for all of them. It succeeds when at least required calls return
// nil. required <= 0 means one; timeout <= 0 means DefaultPerTargetTimeout.
func Do(ctx context.Context, targets []string, required int, timeout time.Duration, fn TargetFunc) Result {
	if len(targets) == 0 {
		return Result{
			Success:      false,
			Failed:       map[string]error{},
			ErrorMessage: "no targets provided",
		}
	}

	if required <= 0 {
		required = 1
	}
	if timeout <= 0 {
		timeout = DefaultPerTargetTimeout
	}

	if required > len(targets) {
		return Result{
			Success:      false,
			Failed:       map[string]error{},
			Required:     required,
			Targets:      len(targets),
			ErrorMessage: fmt.Sprintf("required=%d exceeds target count=%d", required, len(targets)),
		}
	}

	var (
		mu        sync.Mutex
		succeeded []string
		failed    = make(map[string]error)
		wg        sync.WaitGroup
	)

	for _, target := range targets {
		wg.Add(1)
		go func(t string) {
			defer wg.Done()

			tctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := fn(tctx, t)
			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				succeeded = append(succeeded, t)
			} else {
				failed[t] = err
			}
		}(target)
	}

	wg.Wait()
	sort.Strings(succeeded)

	res := Result{
		Succeeded: succeeded,
		Failed:    failed,
		Required:  required,
		Targets:   len(targets),
	}

	if err := ctx.Err(); err != nil {
		res.ErrorMessage = fmt.Sprintf("context cancelled: %v", err)
		return res
	}

	if len(succeeded) >= required {
		res.Success = true
		return res
	}

	res.ErrorMessage = fmt.Sprintf("fanout failed: succeeded=%d required=%d targets=%d", len(succeeded), required, len(targets))
	if len(failed) > 0 {
		res.ErrorMessage += fmt.Sprintf(" errors=%v", firstErrors(failed, 3))
	}
	return res
}

func firstErrors(failed map[string]error, n int) []error {
	keys := make([]string, 0, len(failed))
	for k := range failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []error
	for _, k := range keys {
		if len(out) == n {
			break
		}
		out = append(out, fmt.Errorf("target %s: %w", k, failed[k]))
	}
	return out
}
