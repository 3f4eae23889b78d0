package embedding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRepresenter lets tests control and observe calls.
type fakeRepresenter struct {
	mu       sync.Mutex
	order    []string
	active   atomic.Int64
	maxSeen  atomic.Int64
	delay    time.Duration
	proceed  chan struct{} // when set, each call waits for one receive
	panicOn  string
	blockCtx bool // wait for ctx to be done
}

func (f *fakeRepresenter) Represent(ctx context.Context, imageData string) ([]float32, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if n <= prev || f.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}

	f.mu.Lock()
	f.order = append(f.order, imageData)
	f.mu.Unlock()

	if imageData == f.panicOn {
		panic("representer exploded")
	}
	if f.blockCtx {
		<-ctx.Done()
		return nil, &Error{Kind: KindTransport, Message: "DeepFace request failed: " + ctx.Err().Error(), Err: ctx.Err()}
	}
	if f.proceed != nil {
		<-f.proceed
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return []float32{1, 0, 0}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGate_BoundsConcurrency(t *testing.T) {
	rep := &fakeRepresenter{delay: 20 * time.Millisecond}
	gate := NewGate(rep, 3, time.Second)

	const calls = 10
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gate.Embed(context.Background(), fmt.Sprintf("img-%d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if got := rep.maxSeen.Load(); got > 3 {
		t.Errorf("expected at most 3 concurrent calls, saw %d", got)
	}
	if len(rep.order) != calls {
		t.Errorf("expected %d calls to complete, got %d", calls, len(rep.order))
	}
	if active, waiting := gate.Stats(); active != 0 || waiting != 0 {
		t.Errorf("expected idle gate, got active=%d waiting=%d", active, waiting)
	}
}

func TestGate_FIFOAdmission(t *testing.T) {
	rep := &fakeRepresenter{proceed: make(chan struct{})}
	gate := NewGate(rep, 1, time.Second)

	var wg sync.WaitGroup
	start := func(name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gate.Embed(context.Background(), name); err != nil {
				t.Errorf("unexpected error for %s: %v", name, err)
			}
		}()
	}

	start("0")
	waitFor(t, func() bool { active, _ := gate.Stats(); return active == 1 })
	for k := 1; k <= 4; k++ {
		start(fmt.Sprint(k))
		waitFor(t, func() bool { _, waiting := gate.Stats(); return waiting == k })
		// Let the goroutine reach the semaphore's wait list.
		time.Sleep(10 * time.Millisecond)
	}

	for range 5 {
		rep.proceed <- struct{}{}
	}
	wg.Wait()

	want := []string{"0", "1", "2", "3", "4"}
	if !slices.Equal(rep.order, want) {
		t.Errorf("expected admission order %v, got %v", want, rep.order)
	}
	if got := rep.maxSeen.Load(); got != 1 {
		t.Errorf("expected at most 1 concurrent call, saw %d", got)
	}
}

func TestGate_Timeout(t *testing.T) {
	rep := &fakeRepresenter{blockCtx: true}
	gate := NewGate(rep, 2, 50*time.Millisecond)

	_, err := gate.Embed(context.Background(), "img")

	var embErr *Error
	if !errors.As(err, &embErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if embErr.Kind != KindTimeout {
		t.Errorf("expected KindTimeout, got %v", embErr.Kind)
	}
	if embErr.Error() != "DeepFace request timed out after 50ms" {
		t.Errorf("unexpected message: %q", embErr.Error())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected timeout error to wrap context.DeadlineExceeded")
	}
	if active, _ := gate.Stats(); active != 0 {
		t.Errorf("expected slot released after timeout, active=%d", active)
	}
}

func TestGate_CallerCancellation(t *testing.T) {
	rep := &fakeRepresenter{blockCtx: true}
	gate := NewGate(rep, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := gate.Embed(ctx, "img")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, ok := KindOf(err); ok {
		t.Error("caller cancellation should not be classified")
	}
}

func TestGate_CallerDeadline(t *testing.T) {
	rep := &fakeRepresenter{blockCtx: true}
	gate := NewGate(rep, 1, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gate.Embed(ctx, "img")

	var embErr *Error
	if !errors.As(err, &embErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if embErr.Kind != KindTimeout {
		t.Errorf("expected KindTimeout, got %v", embErr.Kind)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected timeout error to wrap context.DeadlineExceeded")
	}
}

func TestGate_CancelledWhileQueued(t *testing.T) {
	rep := &fakeRepresenter{proceed: make(chan struct{})}
	gate := NewGate(rep, 1, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		gate.Embed(context.Background(), "holder")
	}()
	waitFor(t, func() bool { active, _ := gate.Stats(); return active == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := gate.Embed(ctx, "queued")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected queued caller to give up with its context, got %v", err)
	}
	if kind, ok := KindOf(err); !ok || kind != KindTimeout {
		t.Errorf("expected queued deadline classified as timeout, got %v", err)
	}

	rep.proceed <- struct{}{}
	<-done
	if _, waiting := gate.Stats(); waiting != 0 {
		t.Errorf("expected no waiters, got %d", waiting)
	}
}

func TestGate_ReleasesOnPanic(t *testing.T) {
	rep := &fakeRepresenter{panicOn: "bad"}
	gate := NewGate(rep, 1, time.Second)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		gate.Embed(context.Background(), "bad")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := gate.Embed(ctx, "good"); err != nil {
		t.Errorf("expected slot to be free after panic, got %v", err)
	}
}

func TestGate_Unbounded(t *testing.T) {
	rep := &fakeRepresenter{delay: 20 * time.Millisecond}
	gate := NewGate(rep, 0, 0)

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.Embed(context.Background(), fmt.Sprint(i))
		}()
	}
	wg.Wait()

	if len(rep.order) != 6 {
		t.Errorf("expected 6 calls, got %d", len(rep.order))
	}
	if gate.Limit() != 0 {
		t.Errorf("expected limit 0, got %d", gate.Limit())
	}
}
