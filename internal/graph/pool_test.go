package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbforge/graphrag-go/internal/rag"
)

// nilOpen stands in for session creation; the pool tolerates nil sessions,
// so the pool logic is testable without a live server.
func nilOpen(_ context.Context) neo4j.SessionWithContext { return nil }

func newTestPool(size int, timeout time.Duration) *sessionPool {
	return newSessionPool(nilOpen, size, timeout, newStoreMetrics(prometheus.NewRegistry()))
}

func Test_Pool_AcquireAndRelease(t *testing.T) {
	t.Parallel()
	p := newTestPool(2, time.Second)

	_, release, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := p.InUse(); got != 1 {
		t.Errorf("InUse = %d, want 1", got)
	}

	release()
	if got := p.InUse(); got != 0 {
		t.Errorf("InUse after release = %d, want 0", got)
	}
}

func Test_Pool_ExhaustionTimesOut(t *testing.T) {
	t.Parallel()
	p := newTestPool(1, 20*time.Millisecond)

	_, release, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer release()

	start := time.Now()
	_, _, err = p.Acquire(context.Background())
	if !errors.Is(err, rag.ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Acquire failed after %s, want it to wait out the timeout", elapsed)
	}
}

func Test_Pool_ReleaseUnblocksWaiter(t *testing.T) {
	t.Parallel()
	p := newTestPool(1, time.Second)

	_, release, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, r, err := p.Acquire(context.Background())
		if err == nil {
			r()
		}
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	release()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("waiter failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
}

func Test_Pool_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	p := newTestPool(1, 20*time.Millisecond)

	_, release, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// A double release must not mint an extra slot.
	release()
	release()
	if got := p.InUse(); got != 0 {
		t.Fatalf("InUse after double release = %d, want 0", got)
	}

	_, release2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	defer release2()

	if _, _, err := p.Acquire(context.Background()); !errors.Is(err, rag.ErrPoolExhausted) {
		t.Errorf("err = %v, want ErrPoolExhausted (capacity must still be 1)", err)
	}
}

func Test_Pool_ContextCancellation(t *testing.T) {
	t.Parallel()
	p := newTestPool(1, time.Minute)

	_, release, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = p.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, rag.ErrPoolExhausted) {
		t.Error("cancellation misreported as pool exhaustion")
	}
}

func Test_Pool_ZeroConfigSelectsDefaults(t *testing.T) {
	t.Parallel()
	p := newTestPool(0, 0)
	if cap(p.slots) != DefaultPoolSize {
		t.Errorf("pool size = %d, want %d", cap(p.slots), DefaultPoolSize)
	}
	if p.timeout != DefaultAcquireTimeout {
		t.Errorf("timeout = %s, want %s", p.timeout, DefaultAcquireTimeout)
	}
}
