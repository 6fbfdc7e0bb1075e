package tenant

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/pagevault/pageserver/internal/ids"
	"github.com/pagevault/pageserver/internal/metadata"
	pverrors "github.com/pagevault/pageserver/pkg/errors"
	"github.com/pagevault/pageserver/pkg/timeline"
	"github.com/pagevault/pageserver/pkg/types"
)

func uninitMarkPath(timelineDir string) string {
	return timelineDir + ".uninit"
}

// isUninitMark reports whether path names an uninit-mark file rather
// than a real timeline directory.
func isUninitMark(path string) bool {
	return filepath.Ext(path) == ".uninit"
}

// CreateTimeline runs the crash-safe two-phase creation protocol for a
// new root timeline (no ancestor).
func (t *Tenant) CreateTimeline(ctx context.Context, newID ids.TimelineID, initdbLsn types.Lsn, pgVersion uint32) (*timeline.Timeline, error) {
	cfg := timeline.Config{
		TenantID:      t.TenantID,
		TimelineID:    newID,
		LocalDir:      filepath.Join(t.RootDir, "timelines", string(newID)),
		Redo:          nil,
		Remote:        t.remote,
		Metrics:       t.metrics,
		Logger:        t.logger,
		InitialLsn:    initdbLsn,
		InitdbLsn:     initdbLsn,
		PgVersion:     pgVersion,
		MaxLayerBytes: t.conf.CheckpointDistanceBytes,
	}
	return t.createTimelineLocked(ctx, noAncestor(), newID, cfg)
}

// createTimelineLocked implements the crash-safe timeline creation
// protocol:
//  1. register a placeholder under newID, failing AlreadyExists if
//     one is already there;
//  2. create the uninit mark, the timeline directory and its metadata
//     file; on any failure, unwind both and report;
//  3. remove the uninit mark (fsyncing its parent dir), finish
//     building the real Timeline and activate it.
//
// Callers that need the GC lock held across this (branch creation)
// take it before calling; root timeline creation does not need it.
func (t *Tenant) createTimelineLocked(ctx context.Context, ancestor ancestorArg, newID ids.TimelineID, cfg timeline.Config) (*timeline.Timeline, error) {
	t.mu.Lock()
	if _, ok := t.timelines[newID]; ok {
		t.mu.Unlock()
		return nil, &pverrors.TimelineAlreadyExistsError{TimelineID: string(newID)}
	}
	t.timelines[newID] = nil // placeholder: reserves the id, not yet loadable
	t.mu.Unlock()

	tl, err := t.materializeTimeline(cfg, ancestor)
	if err != nil {
		t.unregister(newID)
		return nil, err
	}

	t.mu.Lock()
	t.timelines[newID] = tl
	t.mu.Unlock()

	if err := tl.Activate(); err != nil {
		t.unregister(newID)
		return nil, errors.Wrapf(err, "tenant: activate new timeline %s", newID)
	}
	return tl, nil
}

// materializeTimeline performs phase 2 of timeline creation: it is the
// only phase that touches disk, and the only phase that can fail
// after having created on-disk state that must then be unwound.
func (t *Tenant) materializeTimeline(cfg timeline.Config, ancestor ancestorArg) (tl *timeline.Timeline, err error) {
	markPath := uninitMarkPath(cfg.LocalDir)
	mark, err := os.OpenFile(markPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "tenant: create uninit mark %s", markPath)
	}
	if err := flockUninitMark(mark); err != nil {
		mark.Close()
		os.Remove(markPath)
		return nil, err
	}

	defer func() {
		if err != nil {
			mark.Close()
			os.Remove(markPath)
			os.RemoveAll(cfg.LocalDir)
		}
	}()

	if err = os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "tenant: mkdir timeline dir %s", cfg.LocalDir)
	}

	md := &metadata.Metadata{
		DiskConsistentLsn: cfg.InitialLsn,
		InitdbLsn:         cfg.InitdbLsn,
		PgVersion:         cfg.PgVersion,
	}
	if ancestor.present() {
		md.HasAncestor = true
		md.AncestorTimelineID = string(ancestor.tl.TimelineID)
		md.AncestorLsn = cfg.AncestorLsn
	}
	buf, err := md.Encode()
	if err != nil {
		return nil, errors.Wrap(err, "tenant: encode initial metadata")
	}
	if err = os.WriteFile(filepath.Join(cfg.LocalDir, "metadata"), buf, 0o644); err != nil {
		return nil, errors.Wrap(err, "tenant: write initial metadata")
	}

	if err = mark.Close(); err != nil {
		return nil, errors.Wrap(err, "tenant: close uninit mark")
	}
	if err = os.Remove(markPath); err != nil {
		return nil, errors.Wrap(err, "tenant: remove uninit mark")
	}
	if err = fsyncParent(cfg.LocalDir); err != nil {
		return nil, err
	}

	return timeline.New(cfg), nil
}

func fsyncParent(dir string) error {
	parent, err := os.Open(filepath.Dir(dir))
	if err != nil {
		return errors.Wrapf(err, "tenant: open parent dir of %s", dir)
	}
	defer parent.Close()
	if err := parent.Sync(); err != nil {
		return errors.Wrapf(err, "tenant: fsync parent dir of %s", dir)
	}
	return nil
}

// RemoveUninitializedTimelines is run once at pageserver startup: any
// timeline directory with a sibling uninit-mark file never finished
// phase 2 of creation and is removed before timelines are loaded, so a
// loaded timeline is always either fully materialized or absent.
func RemoveUninitializedTimelines(timelinesDir string) error {
	entries, err := os.ReadDir(timelinesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "tenant: read timelines dir %s", timelinesDir)
	}
	for _, e := range entries {
		if !isUninitMark(e.Name()) {
			continue
		}
		markPath := filepath.Join(timelinesDir, e.Name())
		timelineDir := markPath[:len(markPath)-len(".uninit")]
		if err := os.RemoveAll(timelineDir); err != nil {
			return errors.Wrapf(err, "tenant: remove uninitialized timeline dir %s", timelineDir)
		}
		if err := os.Remove(markPath); err != nil {
			return errors.Wrapf(err, "tenant: remove uninit mark %s", markPath)
		}
	}
	return nil
}
