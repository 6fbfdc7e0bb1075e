package timeline

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/pagevault/pageserver/pkg/historic"
	"github.com/pagevault/pageserver/pkg/types"
)

// GcResult summarizes one garbage collection pass.
type GcResult struct {
	LayersRemoved  int
	BytesReclaimed int64
}

// Gc drops historic layers entirely below cutoff and schedules their
// removal (local unlink plus, if remote storage is configured, remote
// deletion). cutoff must never exceed any other timeline's branch
// point into this one; computing that bound across the whole tenant is
// internal/tenant's job, not this method's.
func (t *Timeline) Gc(ctx context.Context, cutoff types.Lsn) (*GcResult, error) {
	dropped := t.layerMap.ReplaceHistoric(func(s *historic.Set) (*historic.Set, []*historic.Descriptor) {
		return s.Retain(func(d *historic.Descriptor) bool {
			return d.LsnRange.Hi > cutoff
		})
	})

	var reclaimed int64
	for _, desc := range dropped {
		reclaimed += desc.FileSizeBytes

		handle := t.handleFor(desc)
		if err := handle.GarbageCollect(ctx); err != nil {
			return nil, errors.Wrapf(err, "timeline: gc layer %s", desc.FileID)
		}

		t.handlesMu.Lock()
		delete(t.handles, desc.FileID)
		t.handlesMu.Unlock()
	}

	raiseMax(&t.latestGcCutoffLsn, cutoff)
	t.metrics.ObserveGcRun(reclaimed)
	t.logger.Infof("gc: dropped %d layers below cutoff %d, reclaimed %d bytes", len(dropped), cutoff, reclaimed)

	return &GcResult{LayersRemoved: len(dropped), BytesReclaimed: reclaimed}, nil
}
