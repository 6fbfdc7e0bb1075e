// Package seqwait implements the LSN gate: a monotonically advancing
// counter that readers can block on until it reaches a target value.
// It is the single synchronization primitive a timeline uses to let a
// GetPage request wait for WAL that hasn't been ingested yet, without
// polling.
package seqwait

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common/prque"
	"github.com/pagevault/pageserver/pkg/errors"
	"github.com/pagevault/pageserver/pkg/types"
)

type waiter struct {
	target types.Lsn
	done   chan error
}

// gate is the shared state behind a WriteHandle/ReadHandle pair.
// Waiters are kept in a priority queue ordered by target LSN (lowest
// first) so Advance only has to look at, and wake, the waiters that
// are actually satisfied: O(k) in the number woken, not the number
// waiting.
type gate struct {
	mu       sync.Mutex
	current  types.Lsn
	waiters  *prque.Prque[*waiter, int64]
	shutdown bool
}

func newGate(initial types.Lsn) *gate {
	return &gate{
		current: initial,
		waiters: prque.New[*waiter, int64](nil),
	}
}

// advance moves the gate forward and wakes every waiter whose target
// has now been reached. Advancing to an LSN at or behind the current
// position is a no-op; LSNs only move forward.
func (g *gate) advance(lsn types.Lsn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.shutdown || lsn <= g.current {
		return
	}
	g.current = lsn

	for !g.waiters.Empty() {
		w, prio := g.waiters.Pop()
		if w.target > g.current {
			g.waiters.Push(w, prio)
			break
		}
		close(w.done)
	}
}

func (g *gate) currentLsn() types.Lsn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

func (g *gate) waitFor(ctx context.Context, target types.Lsn, component string) error {
	g.mu.Lock()
	if g.shutdown {
		g.mu.Unlock()
		return &errors.GateShutdownError{Component: component}
	}
	if g.current >= target {
		g.mu.Unlock()
		return nil
	}

	w := &waiter{target: target, done: make(chan error, 1)}
	g.waiters.Push(w, -int64(target))
	g.mu.Unlock()

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) shutdownGate(component string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.shutdown {
		return
	}
	g.shutdown = true

	err := &errors.GateShutdownError{Component: component}
	for !g.waiters.Empty() {
		w, _ := g.waiters.Pop()
		w.done <- err
		close(w.done)
	}
}

// WriteHandle is the single-writer side of the gate: only the
// timeline's ingest loop holds one, since Advance must be called with
// monotonically non-decreasing LSNs to mean anything.
type WriteHandle struct {
	g         *gate
	component string
}

// ReadHandle is the cloneable reader side: any number of goroutines
// can hold one and wait on it concurrently.
type ReadHandle struct {
	g         *gate
	component string
}

// NewGate creates a gate starting at initial and splits it into its
// single-writer and cloneable-reader handles.
func NewGate(initial types.Lsn, component string) (*WriteHandle, *ReadHandle) {
	g := newGate(initial)
	return &WriteHandle{g: g, component: component}, &ReadHandle{g: g, component: component}
}

// Advance moves the gate's current LSN forward, waking any reader
// waiting on an LSN now satisfied.
func (w *WriteHandle) Advance(lsn types.Lsn) { w.g.advance(lsn) }

// Current returns the gate's current LSN.
func (w *WriteHandle) Current() types.Lsn { return w.g.currentLsn() }

// Shutdown wakes every blocked waiter with a GateShutdownError and
// causes future WaitFor calls to fail immediately.
func (w *WriteHandle) Shutdown() { w.g.shutdownGate(w.component) }

// Reader returns a new ReadHandle over the same gate.
func (w *WriteHandle) Reader() *ReadHandle { return &ReadHandle{g: w.g, component: w.component} }

// Current returns the gate's current LSN.
func (r *ReadHandle) Current() types.Lsn { return r.g.currentLsn() }

// Clone returns an independent handle over the same underlying gate.
func (r *ReadHandle) Clone() *ReadHandle { return &ReadHandle{g: r.g, component: r.component} }

// WaitFor blocks until the gate's current LSN reaches target, the
// context is cancelled, or the gate is shut down.
func (r *ReadHandle) WaitFor(ctx context.Context, target types.Lsn) error {
	return r.g.waitFor(ctx, target, r.component)
}
