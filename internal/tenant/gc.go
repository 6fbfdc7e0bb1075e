package tenant

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/pagevault/pageserver/internal/ids"
	"github.com/pagevault/pageserver/pkg/timeline"
	"github.com/pagevault/pageserver/pkg/types"
)

// GcIterationResult summarizes one pass of GcIteration across every
// timeline in the tenant.
type GcIterationResult struct {
	PerTimeline map[ids.TimelineID]*timeline.GcResult
}

// GcIteration runs one GC pass over every timeline in the tenant in
// two phases: collect every branch point under the GC lock, release
// the lock, then compute and apply each timeline's effective cutoff
// without holding it. This keeps GC from blocking branch creation (and
// vice versa) for the whole pass, only for the cheap branch-point
// collection step.
func (t *Tenant) GcIteration(ctx context.Context) (*GcIterationResult, error) {
	retainFromChildren := t.collectBranchPoints()

	result := &GcIterationResult{PerTimeline: make(map[ids.TimelineID]*timeline.GcResult)}
	for _, tl := range t.List() {
		cutoff := effectiveCutoff(tl, t.conf.GcHorizonBytes, retainFromChildren[tl.TimelineID])
		r, err := tl.Gc(ctx, cutoff)
		if err != nil {
			return nil, errors.Wrapf(err, "tenant: gc timeline %s", tl.TimelineID)
		}
		result.PerTimeline[tl.TimelineID] = r
	}
	return result, nil
}

// collectBranchPoints walks every timeline's ancestor pointer and
// records, per ancestor, the lowest LSN any child branched at: GC must
// never drop a layer a child timeline still needs to read through its
// ancestor.
func (t *Tenant) collectBranchPoints() map[ids.TimelineID]types.Lsn {
	t.gcMu.Lock()
	defer t.gcMu.Unlock()

	retain := make(map[ids.TimelineID]types.Lsn)
	for _, tl := range t.List() {
		ancestor, branchLsn := tl.Ancestor()
		if ancestor == nil {
			continue
		}
		if cur, ok := retain[ancestor.TimelineID]; !ok || branchLsn.Compare(cur) < 0 {
			retain[ancestor.TimelineID] = branchLsn
		}
	}
	return retain
}

// effectiveCutoff is the highest LSN GC may safely remove layers
// below: the tenant's configured horizon distance behind the
// timeline's last ingested LSN, but never past a branch point a child
// still depends on.
func effectiveCutoff(tl *timeline.Timeline, horizonBytes int64, retainFromChild types.Lsn) types.Lsn {
	last := tl.LastRecordLsn()
	var horizonCutoff types.Lsn
	if uint64(last) > uint64(horizonBytes) {
		horizonCutoff = types.Lsn(uint64(last) - uint64(horizonBytes))
	}

	cutoff := horizonCutoff
	if retainFromChild.IsValid() && retainFromChild.Compare(cutoff) < 0 {
		cutoff = retainFromChild
	}
	return cutoff
}
