package historic

import (
	"sort"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	pverrors "github.com/pagevault/pageserver/pkg/errors"
	"github.com/pagevault/pageserver/pkg/types"
)

// Set is the copy-on-write collection of historic layers for one
// timeline. Readers (get_reconstruct_path) take a lock-free snapshot
// via an atomic pointer swap; writers (make_historic) build a new
// generation and publish it atomically, never mutating layers already
// handed to a reader.
type Set struct {
	generation atomic.Pointer[generation]
}

// generation is one immutable snapshot: descriptors sorted ascending
// by KeyRange.Lo. GetReconstructPath scans every descriptor in it
// linearly; it does not binary search on that order.
type generation struct {
	descriptors []*Descriptor
}

// New returns an empty historic set.
func New() *Set {
	s := &Set{}
	s.generation.Store(&generation{})
	return s
}

// GetReconstructPath returns, for key at lsn, the ordered list of
// layers to replay: the newest delta layers first, terminating at the
// image layer the reconstruction must start from. If no layer covers
// key at all, returns an empty slice. A non-empty path that never
// reaches an image layer is not an error here: the caller may still
// have an in-memory record or an ancestor timeline to fall back to,
// so judging "no reconstruct data" is the caller's job.
func (s *Set) GetReconstructPath(key types.Key, lsn types.Lsn) []*Descriptor {
	gen := s.generation.Load()

	var candidates []*Descriptor
	for _, d := range gen.descriptors {
		if d.covers(key, lsn) {
			candidates = append(candidates, d)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return newestFirst(candidates[i], candidates[j]) })

	path := make([]*Descriptor, 0, len(candidates))
	for _, d := range candidates {
		path = append(path, d)
		if d.Kind == Image {
			break
		}
	}

	return path
}

// MakeHistoric returns a new Set with additions merged in, checking
// the no-overlap invariant: no two historic layers, regardless of
// kind, may both cover the same key at overlapping LSN ranges. The
// receiver is left untouched; any reader holding its old snapshot
// keeps working.
func (s *Set) MakeHistoric(additions []*Descriptor) (*Set, error) {
	old := s.generation.Load()

	merged := make([]*Descriptor, 0, len(old.descriptors)+len(additions))
	merged = append(merged, old.descriptors...)

	for _, add := range additions {
		for _, existing := range merged {
			if !existing.KeyRange.Overlaps(add.KeyRange) {
				continue
			}
			if existing.LsnRange.Lo < add.LsnRange.Hi && add.LsnRange.Lo < existing.LsnRange.Hi {
				return nil, errors.Wrapf(&pverrors.LayerOverlapError{
					NewRange:      add.KeyRange,
					ExistingRange: existing.KeyRange,
				}, "make_historic: layer %s overlaps %s", add.FileID, existing.FileID)
			}
		}
		merged = append(merged, add)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].KeyRange.Lo.Less(merged[j].KeyRange.Lo) })

	next := &Set{}
	next.generation.Store(&generation{descriptors: merged})
	return next, nil
}

// Descriptors returns the current snapshot's layers, for callers
// that need to enumerate the set (compaction planning, GC).
func (s *Set) Descriptors() []*Descriptor {
	gen := s.generation.Load()
	out := make([]*Descriptor, len(gen.descriptors))
	copy(out, gen.descriptors)
	return out
}

// Retain returns a new Set containing only the descriptors for which
// keep returns true, for GC to drop layers strictly below a cutoff
// without disturbing any reader still holding the old generation.
func (s *Set) Retain(keep func(*Descriptor) bool) (*Set, []*Descriptor) {
	gen := s.generation.Load()

	kept := make([]*Descriptor, 0, len(gen.descriptors))
	var dropped []*Descriptor
	for _, d := range gen.descriptors {
		if keep(d) {
			kept = append(kept, d)
		} else {
			dropped = append(dropped, d)
		}
	}

	next := &Set{}
	next.generation.Store(&generation{descriptors: kept})
	return next, dropped
}
