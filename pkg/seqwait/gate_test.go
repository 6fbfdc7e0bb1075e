package seqwait

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pagevault/pageserver/pkg/types"
)

func TestGate_WaitForAlreadySatisfied(t *testing.T) {
	_, r := NewGate(types.Lsn(100), "test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := r.WaitFor(ctx, types.Lsn(50)); err != nil {
		t.Fatalf("WaitFor on already-reached lsn failed: %v", err)
	}
}

func TestGate_AdvanceWakesWaiter(t *testing.T) {
	w, r := NewGate(types.Lsn(0), "test")

	var wg sync.WaitGroup
	wg.Add(1)

	errCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errCh <- r.WaitFor(ctx, types.Lsn(100))
	}()

	time.Sleep(20 * time.Millisecond) // let the waiter register
	w.Advance(types.Lsn(100))
	wg.Wait()

	if err := <-errCh; err != nil {
		t.Fatalf("WaitFor returned error after Advance satisfied it: %v", err)
	}
}

func TestGate_WakeOrderRespectsTarget(t *testing.T) {
	w, r := NewGate(types.Lsn(0), "test")

	results := make(chan types.Lsn, 3)
	var wg sync.WaitGroup
	for _, target := range []types.Lsn{30, 10, 20} {
		wg.Add(1)
		go func(target types.Lsn) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.WaitFor(ctx, target); err == nil {
				results <- target
			}
		}(target)
	}

	time.Sleep(20 * time.Millisecond)
	w.Advance(types.Lsn(10))
	time.Sleep(20 * time.Millisecond)
	w.Advance(types.Lsn(20))
	time.Sleep(20 * time.Millisecond)
	w.Advance(types.Lsn(30))
	wg.Wait()
	close(results)

	var order []types.Lsn
	for v := range results {
		order = append(order, v)
	}
	if len(order) != 3 || order[0] != 10 || order[1] != 20 || order[2] != 30 {
		t.Fatalf("waiters woke out of order: %v", order)
	}
}

func TestGate_Shutdown(t *testing.T) {
	w, r := NewGate(types.Lsn(0), "test")

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errCh <- r.WaitFor(ctx, types.Lsn(100))
	}()

	time.Sleep(20 * time.Millisecond)
	w.Shutdown()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected GateShutdownError, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by Shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.WaitFor(ctx, types.Lsn(1)); err == nil {
		t.Fatalf("expected WaitFor to fail immediately after shutdown")
	}
}

func TestGate_ContextCancellation(t *testing.T) {
	_, r := NewGate(types.Lsn(0), "test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.WaitFor(ctx, types.Lsn(100)); err == nil {
		t.Fatalf("expected context cancellation error")
	}
}

func TestGate_CloneSharesState(t *testing.T) {
	w, r := NewGate(types.Lsn(5), "test")
	clone := r.Clone()

	if clone.Current() != 5 {
		t.Fatalf("clone should observe the same current lsn")
	}
	w.Advance(types.Lsn(10))
	if clone.Current() != 10 {
		t.Fatalf("clone should observe advances made after cloning")
	}
}
