// Package inmemory implements the in-memory layer: the mutable buffer
// that holds the most recently ingested deltas for a contiguous LSN
// range, before they're frozen and flushed into a historic layer.
package inmemory

import (
	"sort"
	"sync"

	pverrors "github.com/pagevault/pageserver/pkg/errors"
	"github.com/pagevault/pageserver/pkg/types"
)

// State is the layer's two-state lifecycle: Open accepts writes,
// Frozen rejects them permanently.
type State int

const (
	Open State = iota
	Frozen
)

// entry is one (lsn, encoded delta) pair kept for a single key.
type entry struct {
	lsn     types.Lsn
	payload []byte
}

// Layer buffers deltas for keys in this timeline's keyspace, starting
// at StartLsn. At most one Layer is open per timeline at a time; that
// invariant is enforced by the caller (pkg/layermap), not here.
type Layer struct {
	mu sync.RWMutex

	state    State
	startLsn types.Lsn
	maxBytes int64

	sizeBytes int64
	byKey     map[types.Key][]entry
}

// New creates an open layer starting at startLsn with a size budget
// of maxBytes before Put starts returning LayerFullError.
func New(startLsn types.Lsn, maxBytes int64) *Layer {
	return &Layer{
		state:    Open,
		startLsn: startLsn,
		maxBytes: maxBytes,
		byKey:    make(map[types.Key][]entry),
	}
}

// StartLsn is the first LSN this layer may hold.
func (l *Layer) StartLsn() types.Lsn {
	return l.startLsn
}

// SizeBytes returns the layer's current encoded size.
func (l *Layer) SizeBytes() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sizeBytes
}

// IsFrozen reports whether the layer has been frozen.
func (l *Layer) IsFrozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == Frozen
}

// Put inserts an already-encoded delta payload for (key, lsn).
// Returns FrozenLayerError, LayerFullError, or DuplicateKeyError;
// none of these mutate the layer's state.
func (l *Layer) Put(key types.Key, lsn types.Lsn, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Frozen {
		return &pverrors.FrozenLayerError{}
	}

	entries := l.byKey[key]
	idx := sort.Search(len(entries), func(i int) bool { return entries[i].lsn >= lsn })
	if idx < len(entries) && entries[idx].lsn == lsn {
		return &pverrors.DuplicateKeyError{Key: keyString(key)}
	}

	added := int64(len(payload))
	if l.sizeBytes+added > l.maxBytes {
		return &pverrors.LayerFullError{SizeBytes: l.sizeBytes}
	}

	entries = append(entries, entry{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = entry{lsn: lsn, payload: payload}
	l.byKey[key] = entries
	l.sizeBytes += added

	return nil
}

// Get returns the encoded payloads for key with lsn <= the requested
// one, newest (highest lsn) first.
func (l *Layer) Get(key types.Key, lsn types.Lsn) [][]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.byKey[key]
	if len(entries) == 0 {
		return nil
	}

	// entries is ascending by lsn; find the cutoff then walk backward.
	cutoff := sort.Search(len(entries), func(i int) bool { return entries[i].lsn > lsn })

	out := make([][]byte, 0, cutoff)
	for i := cutoff - 1; i >= 0; i-- {
		out = append(out, entries[i].payload)
	}
	return out
}

// Freeze transitions the layer to Frozen. Idempotent.
func (l *Layer) Freeze() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = Frozen
}

// Keys returns the set of keys this layer holds any record for, used
// when flushing the layer to a historic file.
func (l *Layer) Keys() []types.Key {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]types.Key, 0, len(l.byKey))
	for k := range l.byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// AllForKey returns every (lsn, payload) entry for key in ascending
// LSN order, used by the flush path to write a delta layer file.
func (l *Layer) AllForKey(key types.Key) []struct {
	Lsn     types.Lsn
	Payload []byte
} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.byKey[key]
	out := make([]struct {
		Lsn     types.Lsn
		Payload []byte
	}, len(entries))
	for i, e := range entries {
		out[i] = struct {
			Lsn     types.Lsn
			Payload []byte
		}{Lsn: e.lsn, Payload: e.payload}
	}
	return out
}

func keyString(k types.Key) string {
	const hex = "0123456789abcdef"
	buf := make([]byte, len(k)*2)
	for i, b := range k {
		buf[i*2] = hex[b>>4]
		buf[i*2+1] = hex[b&0x0f]
	}
	return string(buf)
}
