package tenant

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/pagevault/pageserver/internal/ids"
	pverrors "github.com/pagevault/pageserver/pkg/errors"
	"github.com/pagevault/pageserver/pkg/timeline"
	"github.com/pagevault/pageserver/pkg/types"
)

// ancestorArg wraps the (possibly nil) ancestor timeline a branch is
// created from, so a branch-creation signature can't confuse "no
// ancestor" with "forgot to pass the ancestor" the way a bare
// *timeline.Timeline parameter can.
type ancestorArg struct {
	tl *timeline.Timeline
}

func noAncestor() ancestorArg                        { return ancestorArg{} }
func withAncestor(tl *timeline.Timeline) ancestorArg { return ancestorArg{tl: tl} }

func (a ancestorArg) present() bool { return a.tl != nil }

// BranchTimeline creates a new timeline that shares history with
// source up to startLsn. The GC critical-section lock is held for the
// whole call, so a concurrent GC run cannot advance source's cutoff
// out from under the validation below.
func (t *Tenant) BranchTimeline(ctx context.Context, sourceID ids.TimelineID, newID ids.TimelineID, startLsn types.Lsn, localDir string) (*timeline.Timeline, error) {
	t.gcMu.Lock()
	defer t.gcMu.Unlock()

	source, err := t.Get(sourceID)
	if err != nil {
		return nil, err
	}

	// start_lsn must not be behind the cutoff GC has already applied to
	// source. The next GC run's planned cutoff also bounds a valid
	// branch point, but nothing here tracks a byte-distance-to-Lsn or
	// wall-clock-to-Lsn mapping, so the already-applied cutoff is the
	// only bound enforced directly. GcIteration still can't remove
	// anything this branch depends on: it folds each child's branch Lsn
	// into its ancestor's retained set before computing a new cutoff.
	effectiveCutoff := source.LatestGcCutoffLsn()
	if startLsn.Compare(effectiveCutoff) < 0 {
		return nil, &pverrors.InvalidBranchLsnError{StartLsn: startLsn, CutoffLsn: effectiveCutoff}
	}

	cfg := timeline.Config{
		TenantID:      t.TenantID,
		TimelineID:    newID,
		LocalDir:      localDir,
		Ancestor:      source,
		AncestorLsn:   startLsn,
		Redo:          nil,
		Remote:        t.remote,
		Metrics:       t.metrics,
		Logger:        t.logger,
		InitialLsn:    startLsn,
		MaxLayerBytes: t.conf.CheckpointDistanceBytes,
	}

	branch, err := t.createTimelineLocked(ctx, withAncestor(source), newID, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "tenant: branch %s from %s at lsn %d", newID, sourceID, startLsn)
	}
	return branch, nil
}
