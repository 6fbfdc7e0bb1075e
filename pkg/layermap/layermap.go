// Package layermap composes the in-memory layer and the historic
// layer set behind a single LsnGate: one published, atomically
// swappable state that readers consult and exactly one writer
// mutates.
package layermap

import (
	"context"
	"sync"
	"sync/atomic"

	goerrors "errors"

	"github.com/cockroachdb/errors"
	pverrors "github.com/pagevault/pageserver/pkg/errors"
	"github.com/pagevault/pageserver/pkg/historic"
	"github.com/pagevault/pageserver/pkg/inmemory"
	"github.com/pagevault/pageserver/pkg/seqwait"
	"github.com/pagevault/pageserver/pkg/types"
)

// Flusher turns a frozen in-memory layer into a persisted historic
// layer descriptor. The timeline owning this LayerMap supplies the
// implementation (layer-file writing plus, later, remote upload); the
// layer map itself only needs the resulting descriptor.
type Flusher interface {
	Flush(ctx context.Context, layer *inmemory.Layer) (*historic.Descriptor, error)
}

// state is one published generation: the currently open in-memory
// layer (nil if none), and the historic set as of the last flush.
type state struct {
	openInmem *inmemory.Layer
	historic  *historic.Set
}

// ReconstructWork is everything a caller needs to redo a value for
// (key, lsn): the in-memory records newest-first, and the historic
// layer path to fall back to. Whether this is "enough" to produce a
// value (reaches a base image, or the caller has an ancestor timeline
// to keep walking) is the caller's judgment, not the layer map's.
type ReconstructWork struct {
	Key          types.Key
	Lsn          types.Lsn
	InmemRecords [][]byte
	HistoricPath []*historic.Descriptor
}

// Map is the per-timeline layer map: InMemoryLayer + HistoricSet
// under one LsnGate.
type Map struct {
	writer  *seqwait.WriteHandle
	reader  *seqwait.ReadHandle
	flusher Flusher

	maxLayerBytes int64

	// writeMu serializes put/force_flush; there is exactly one writer
	// per layer map, matching the spec's writer-uniqueness invariant.
	writeMu sync.Mutex
	current atomic.Pointer[state]
}

// New creates a layer map with no open in-memory layer, starting at
// initialLsn, flushing through flusher once a layer exceeds
// maxLayerBytes.
func New(initialLsn types.Lsn, flusher Flusher, maxLayerBytes int64) *Map {
	writer, reader := seqwait.NewGate(initialLsn, "layermap")
	m := &Map{
		writer:        writer,
		reader:        reader,
		flusher:       flusher,
		maxLayerBytes: maxLayerBytes,
	}
	m.current.Store(&state{historic: historic.New()})
	return m
}

// LastIngestedLsn returns the gate's current position.
func (m *Map) LastIngestedLsn() types.Lsn {
	return m.reader.Current()
}

// Reader returns a clone of this map's read handle, for callers that
// need their own independent wait.
func (m *Map) Reader() *seqwait.ReadHandle {
	return m.reader.Clone()
}

// Shutdown propagates shutdown through the underlying LsnGate: every
// blocked waiter wakes with a GateShutdownError and future waits fail
// immediately, the mechanism a Stopping timeline uses to unstick any
// in-flight get_page before it flushes and exits.
func (m *Map) Shutdown() {
	m.writer.Shutdown()
}

// Get waits for lsn to be ingested, then returns the in-memory and
// historic records that together reconstruct key as of lsn.
func (m *Map) Get(ctx context.Context, key types.Key, lsn types.Lsn) (*ReconstructWork, error) {
	if err := m.reader.WaitFor(ctx, lsn); err != nil {
		return nil, err
	}

	st := m.current.Load()

	var inmemRecords [][]byte
	if st.openInmem != nil {
		inmemRecords = st.openInmem.Get(key, lsn)
	}

	return &ReconstructWork{
		Key:          key,
		Lsn:          lsn,
		InmemRecords: inmemRecords,
		HistoricPath: st.historic.GetReconstructPath(key, lsn),
	}, nil
}

// Put appends delta for (key, lsn) to the open in-memory layer,
// creating one if none is open, and advances the gate on success. If
// the layer is full, it's frozen, flushed through the map's Flusher
// and folded into a new historic generation; the record is then put
// into a freshly opened layer and the gate advances to lsn.
func (m *Map) Put(ctx context.Context, key types.Key, lsn types.Lsn, payload []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	st := m.current.Load()
	if st.openInmem == nil {
		st = &state{openInmem: inmemory.New(lsn, m.maxLayerBytes), historic: st.historic}
		m.current.Store(st)
	}

	err := st.openInmem.Put(key, lsn, payload)

	var fullErr *pverrors.LayerFullError
	switch {
	case err == nil:
		m.writer.Advance(lsn)
		return nil

	case goerrors.As(err, &fullErr):
		if flushErr := m.flushLocked(ctx, st); flushErr != nil {
			return flushErr
		}
		return m.putLocked(ctx, key, lsn, payload)

	default:
		return err
	}
}

// putLocked retries a Put after a flush, with writeMu already held.
func (m *Map) putLocked(ctx context.Context, key types.Key, lsn types.Lsn, payload []byte) error {
	st := m.current.Load()
	if st.openInmem == nil {
		st = &state{openInmem: inmemory.New(lsn, m.maxLayerBytes), historic: st.historic}
		m.current.Store(st)
	}
	if err := st.openInmem.Put(key, lsn, payload); err != nil {
		return err
	}
	m.writer.Advance(lsn)
	return nil
}

// ReplaceHistoric swaps in whatever historic set mutate derives from
// the current one, leaving the open in-memory layer (if any)
// untouched. GC uses this to drop layers below its cutoff without
// disturbing a concurrent Put's open layer or racing a flush; both
// paths serialize on writeMu.
func (m *Map) ReplaceHistoric(mutate func(*historic.Set) (*historic.Set, []*historic.Descriptor)) []*historic.Descriptor {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	st := m.current.Load()
	newSet, dropped := mutate(st.historic)
	m.current.Store(&state{openInmem: st.openInmem, historic: newSet})
	return dropped
}

// ForceFlush freezes and flushes any open in-memory layer, publishing
// a state with no open layer. No-op if nothing is open.
func (m *Map) ForceFlush(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	st := m.current.Load()
	if st.openInmem == nil {
		return nil
	}
	return m.flushLocked(ctx, st)
}

// flushLocked must be called with writeMu held.
func (m *Map) flushLocked(ctx context.Context, st *state) error {
	st.openInmem.Freeze()

	descriptor, err := m.flusher.Flush(ctx, st.openInmem)
	if err != nil {
		return errors.Wrap(err, "layermap: flush frozen layer")
	}

	nextHistoric, err := st.historic.MakeHistoric([]*historic.Descriptor{descriptor})
	if err != nil {
		return errors.Wrap(err, "layermap: fold flushed layer into historic set")
	}

	m.current.Store(&state{historic: nextHistoric})
	// The Store above is what publishes the new state: readers load
	// m.current directly, so they see the swapped-in historic set at
	// once. A flush never raises last_ingested_lsn, so advancing the
	// gate to its own current position below wakes no waiter; the
	// gate's lsn <= current guard makes it a no-op.
	m.writer.Advance(m.writer.Current())
	return nil
}
