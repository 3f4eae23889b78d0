package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kozaktomas/face-search/internal/logging"
)

// Gate bounds concurrent calls to a Representer and limits each call's
// duration. Waiting callers are admitted in FIFO order. One Gate should be
// shared by every caller of the same remote service.
type Gate struct {
	rep     Representer
	sem     *semaphore.Weighted // nil when unbounded
	limit   int
	timeout time.Duration

	active  atomic.Int64
	waiting atomic.Int64
}

// NewGate creates a gate admitting at most limit concurrent calls.
// A limit <= 0 disables the bound, a timeout <= 0 disables the deadline.
func NewGate(rep Representer, limit int, timeout time.Duration) *Gate {
	g := &Gate{
		rep:     rep,
		limit:   limit,
		timeout: timeout,
	}
	if limit > 0 {
		g.sem = semaphore.NewWeighted(int64(limit))
	}
	return g
}

// Limit returns the configured concurrency ceiling.
func (g *Gate) Limit() int {
	return g.limit
}

// Stats returns the number of calls in flight and queued.
func (g *Gate) Stats() (active, waiting int) {
	return int(g.active.Load()), int(g.waiting.Load())
}

// Embed computes the embedding of imageData (base64, optionally a data URL).
// Failures are returned as *Error, including the caller's own deadline
// expiring (KindTimeout). Cancellation of ctx is returned as context.Canceled.
func (g *Gate) Embed(ctx context.Context, imageData string) ([]float32, error) {
	start := time.Now()
	if err := g.acquire(ctx); err != nil {
		return nil, callerError(err, start)
	}
	defer g.release()

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	vec, err := g.rep.Represent(callCtx, imageData)
	if err != nil {
		if ctx.Err() != nil {
			return nil, callerError(ctx.Err(), start)
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = timeoutError(g.timeout)
		}
		if kind, ok := KindOf(err); ok {
			logging.Debugw("embedding failed", "kind", kind.String(), "duration", time.Since(start), "error", err)
		}
		return nil, err
	}
	return vec, nil
}

// callerError classifies an error caused by the caller's context. An expired
// deadline becomes KindTimeout, anything else passes through.
func callerError(err error, start time.Time) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(time.Since(start))
	}
	return err
}

func timeoutError(d time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("DeepFace request timed out after %dms", d.Milliseconds()),
		Err:     context.DeadlineExceeded,
	}
}

func (g *Gate) acquire(ctx context.Context) error {
	if g.sem != nil {
		g.waiting.Add(1)
		err := g.sem.Acquire(ctx, 1)
		g.waiting.Add(-1)
		if err != nil {
			return err
		}
	}
	g.active.Add(1)
	return nil
}

func (g *Gate) release() {
	g.active.Add(-1)
	if g.sem != nil {
		g.sem.Release(1)
	}
}
