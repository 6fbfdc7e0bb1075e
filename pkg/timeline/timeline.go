// Package timeline implements Timeline: one branch of a tenant's page
// history, combining a LayerMap for ingest/read with the flush,
// compaction and GC machinery that turns ingested records into
// historic layer files and keeps them bounded.
package timeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/pagevault/pageserver/internal/ids"
	"github.com/pagevault/pageserver/internal/logging"
	"github.com/pagevault/pageserver/internal/metadata"
	"github.com/pagevault/pageserver/internal/metrics"
	"github.com/pagevault/pageserver/internal/record"
	"github.com/pagevault/pageserver/internal/redo"
	"github.com/pagevault/pageserver/internal/remoteobj"
	pverrors "github.com/pagevault/pageserver/pkg/errors"
	"github.com/pagevault/pageserver/pkg/historic"
	"github.com/pagevault/pageserver/pkg/layerfile"
	"github.com/pagevault/pageserver/pkg/layermap"
	"github.com/pagevault/pageserver/pkg/residency"
	"github.com/pagevault/pageserver/pkg/types"
)

// State is a timeline's own lifecycle state. Tenant drives the
// Loading/Creating phase from the outside (see internal/tenant);
// Timeline itself only implements the forward edge into Active and the
// two terminal-ish edges (Stopping, Broken) a timeline can reach on
// its own.
type State int

const (
	StateLoading State = iota
	StateActive
	StateStopping
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "Loading"
	case StateActive:
		return "Active"
	case StateStopping:
		return "Stopping"
	case StateBroken:
		return "Broken"
	default:
		return "Unknown"
	}
}

// Config bundles a Timeline's fixed collaborators and starting point.
type Config struct {
	TenantID   ids.TenantID
	TimelineID ids.TimelineID
	LocalDir   string

	// Ancestor and AncestorLsn are nil/zero for a root timeline.
	Ancestor    *Timeline
	AncestorLsn types.Lsn

	Redo    redo.Worker
	Remote  remoteobj.Client
	Metrics *metrics.Collector
	Logger  *logging.Logger

	InitialLsn    types.Lsn
	InitdbLsn     types.Lsn
	PgVersion     uint32
	MaxLayerBytes int64
}

// Timeline is one branch of a tenant's page history.
type Timeline struct {
	TenantID   ids.TenantID
	TimelineID ids.TimelineID
	LocalDir   string

	ancestor    *Timeline
	ancestorLsn types.Lsn
	initdbLsn   types.Lsn
	pgVersion   uint32

	layerMap *layermap.Map
	redo     redo.Worker
	remote   remoteobj.Client
	metrics  *metrics.Collector
	logger   *logging.Logger

	mu           sync.RWMutex
	state        State
	brokenReason string

	lastRecordLsn     atomic.Uint64
	diskConsistentLsn atomic.Uint64
	latestGcCutoffLsn atomic.Uint64

	handlesMu sync.Mutex
	handles   map[string]*residency.Handle

	fileSeq atomic.Uint64
}

// New constructs a Timeline in state Loading; callers (internal/tenant)
// call Activate once the timeline-creation protocol completes.
func New(cfg Config) *Timeline {
	t := &Timeline{
		TenantID:    cfg.TenantID,
		TimelineID:  cfg.TimelineID,
		LocalDir:    cfg.LocalDir,
		ancestor:    cfg.Ancestor,
		ancestorLsn: cfg.AncestorLsn,
		initdbLsn:   cfg.InitdbLsn,
		pgVersion:   cfg.PgVersion,
		redo:        cfg.Redo,
		remote:      cfg.Remote,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		state:       StateLoading,
		handles:     make(map[string]*residency.Handle),
	}
	t.layerMap = layermap.New(cfg.InitialLsn, t, cfg.MaxLayerBytes)
	t.lastRecordLsn.Store(uint64(cfg.InitialLsn))
	t.diskConsistentLsn.Store(uint64(cfg.InitialLsn))

	if t.logger == nil {
		t.logger = logging.New()
	}
	t.logger = t.logger.With("tenant_id", string(cfg.TenantID)).With("timeline_id", string(cfg.TimelineID))

	return t
}

// Activate moves a Loading timeline to Active.
func (t *Timeline) Activate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateLoading {
		return &pverrors.InvalidStateTransitionError{From: t.state.String(), To: StateActive.String()}
	}
	t.state = StateActive
	return nil
}

// SetState moves the timeline to Stopping or Broken. Broken is
// reachable from any state; Stopping only from Active. Moving to
// Stopping also shuts down the LayerMap's LsnGate so any in-flight
// GetPage unblocks instead of waiting on an LSN that will never arrive.
func (t *Timeline) SetState(next State, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if next == StateBroken {
		t.state = StateBroken
		t.brokenReason = reason
		t.logger.Errorf("timeline broken: %s", reason)
		return nil
	}
	if next == StateStopping {
		if t.state != StateActive {
			return &pverrors.InvalidStateTransitionError{From: t.state.String(), To: next.String()}
		}
		t.state = StateStopping
		t.layerMap.Shutdown()
		return nil
	}
	return &pverrors.InvalidStateTransitionError{From: t.state.String(), To: next.String()}
}

// State returns the timeline's current lifecycle state.
func (t *Timeline) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Timeline) brokenReasonSafe() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.brokenReason
}

// WaitLsn blocks until the timeline has ingested target, ctx is
// cancelled, or the timeline is stopped.
func (t *Timeline) WaitLsn(ctx context.Context, target types.Lsn) error {
	return t.layerMap.Reader().WaitFor(ctx, target)
}

// LastRecordLsn returns the highest LSN successfully put so far.
func (t *Timeline) LastRecordLsn() types.Lsn {
	return types.Lsn(t.lastRecordLsn.Load())
}

// DiskConsistentLsn returns the LSN as of the last successful
// freeze_and_flush.
func (t *Timeline) DiskConsistentLsn() types.Lsn {
	return types.Lsn(t.diskConsistentLsn.Load())
}

// LatestGcCutoffLsn returns the highest cutoff any GC run has applied
// so far. Branch creation must not pick a start_lsn below this.
func (t *Timeline) LatestGcCutoffLsn() types.Lsn {
	return types.Lsn(t.latestGcCutoffLsn.Load())
}

// Ancestor returns the timeline this one branched from, and the LSN it
// branched at. Returns (nil, 0) for a root timeline.
func (t *Timeline) Ancestor() (*Timeline, types.Lsn) {
	return t.ancestor, t.ancestorLsn
}

// Put ingests one record at (key, lsn), delegating to the LayerMap and
// advancing last_record_lsn on success.
func (t *Timeline) Put(ctx context.Context, key types.Key, lsn types.Lsn, rec *record.Delta) error {
	if t.State() != StateActive {
		return errors.Newf("timeline: put on non-active timeline (state=%s)", t.State())
	}

	payload, err := record.Encode(rec)
	if err != nil {
		return errors.Wrap(err, "timeline: encode delta record")
	}
	if err := t.layerMap.Put(ctx, key, lsn, payload); err != nil {
		return err
	}

	raiseMax(&t.lastRecordLsn, lsn)
	return nil
}

// GetPage reconstructs the value of key as of lsn, walking this
// timeline and, if needed, its ancestor chain, then submitting the
// collected records to the redo worker.
func (t *Timeline) GetPage(ctx context.Context, key types.Key, lsn types.Lsn) ([]byte, error) {
	if t.State() == StateBroken {
		return nil, errors.Newf("timeline: get_page on broken timeline: %s", t.brokenReasonSafe())
	}

	records, err := t.collectRecords(ctx, key, lsn)
	if err != nil {
		return nil, err
	}

	img, err := t.redo.Reconstruct(ctx, nil, records)
	if err != nil {
		return nil, errors.Wrap(err, "timeline: reconstruct")
	}

	out, err := record.Encode(&record.Delta{Kind: record.KindImage, Fields: img.Fields})
	if err != nil {
		return nil, errors.Wrap(err, "timeline: encode reconstructed image")
	}
	return out, nil
}

// collectRecords returns, oldest-first, every record needed to
// reconstruct key as of lsn: this timeline's contribution, plus the
// ancestor's contribution up to the branch point when this timeline's
// own records don't bottom out at a base image, recursively. The
// branch LSN is fixed at
// branch-creation time, so this walk crosses at most one ancestor
// pointer per hop and cannot cycle.
func (t *Timeline) collectRecords(ctx context.Context, key types.Key, lsn types.Lsn) ([]*record.Delta, error) {
	effective := lsn
	if ing := t.layerMap.LastIngestedLsn(); ing < effective {
		effective = ing
	}

	work, err := t.layerMap.Get(ctx, key, effective)
	if err != nil {
		return nil, err
	}

	var newestFirst []*record.Delta
	foundImage := false

	for _, payload := range work.InmemRecords {
		rec, err := record.Decode(payload)
		if err != nil {
			return nil, errors.Wrap(err, "timeline: decode in-memory record")
		}
		newestFirst = append(newestFirst, rec)
		if rec.Kind == record.KindImage {
			foundImage = true
			break
		}
	}

	if !foundImage {
		for _, desc := range work.HistoricPath {
			layerRecords, err := t.readHistoricLayerRecords(ctx, desc, key, effective)
			if err != nil {
				return nil, err
			}
			for _, rec := range layerRecords {
				newestFirst = append(newestFirst, rec)
				if rec.Kind == record.KindImage {
					foundImage = true
					break
				}
			}
			if foundImage {
				break
			}
		}
	}

	if !foundImage && t.ancestor != nil {
		ancestorRecords, err := t.ancestor.collectRecords(ctx, key, t.ancestorLsn)
		if err != nil {
			return nil, err
		}
		return append(ancestorRecords, reversed(newestFirst)...), nil
	}

	return reversed(newestFirst), nil
}

// readHistoricLayerRecords resolves desc to local bytes (downloading if
// necessary) and returns every record for key at or below lsn, newest
// first.
func (t *Timeline) readHistoricLayerRecords(ctx context.Context, desc *historic.Descriptor, key types.Key, lsn types.Lsn) ([]*record.Delta, error) {
	handle := t.handleFor(desc)

	wasResident := handle.IsResident()
	resident, err := handle.GetOrDownload(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "timeline: resolve historic layer %s", desc.FileID)
	}
	defer resident.Release()
	if !wasResident {
		t.metrics.ObserveDownload()
	}

	reader, err := layerfile.NewReader(resident.Data().Path)
	if err != nil {
		return nil, errors.Wrapf(err, "timeline: open historic layer %s", desc.FileID)
	}
	defer reader.Close()

	var ascending []*record.Delta
	for {
		rec, err := reader.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "timeline: read historic layer %s", desc.FileID)
		}
		if rec.Key != key || types.Lsn(rec.Header.Lsn) > lsn {
			layerfile.ReleaseRecord(rec)
			continue
		}
		delta, decErr := record.Decode(rec.Payload)
		layerfile.ReleaseRecord(rec)
		if decErr != nil {
			return nil, errors.Wrapf(decErr, "timeline: decode record in %s", desc.FileID)
		}
		ascending = append(ascending, delta)
	}

	return reversed(ascending), nil
}

// handleFor returns this timeline's residency.Handle for desc, creating
// one on first use.
func (t *Timeline) handleFor(desc *historic.Descriptor) *residency.Handle {
	t.handlesMu.Lock()
	defer t.handlesMu.Unlock()

	if h, ok := t.handles[desc.FileID]; ok {
		return h
	}
	path := filepath.Join(t.LocalDir, desc.FileID)
	h := residency.New(string(t.TenantID), string(t.TimelineID), desc, path, t.remote)
	t.handles[desc.FileID] = h
	return h
}

// FreezeAndFlush flushes any open in-memory layer, waits for the
// resulting upload (if remote storage is configured), and advances
// disk_consistent_lsn.
func (t *Timeline) FreezeAndFlush(ctx context.Context) error {
	if err := t.layerMap.ForceFlush(ctx); err != nil {
		return errors.Wrap(err, "timeline: force flush")
	}

	t.diskConsistentLsn.Store(t.lastRecordLsn.Load())

	if err := t.persistMetadata(ctx); err != nil {
		return err
	}

	if t.remote != nil {
		if err := t.remote.WaitCompletion(ctx); err != nil {
			return errors.Wrap(err, "timeline: wait for upload completion")
		}
	}
	return nil
}

func (t *Timeline) persistMetadata(ctx context.Context) error {
	m := &metadata.Metadata{
		DiskConsistentLsn: types.Lsn(t.diskConsistentLsn.Load()),
		PrevRecordLsn:     types.Lsn(t.lastRecordLsn.Load()),
		LatestGcCutoffLsn: types.Lsn(t.latestGcCutoffLsn.Load()),
		InitdbLsn:         t.initdbLsn,
		PgVersion:         t.pgVersion,
	}
	if t.ancestor != nil {
		m.HasAncestor = true
		m.AncestorTimelineID = string(t.ancestor.TimelineID)
		m.AncestorLsn = t.ancestorLsn
	}

	buf, err := m.Encode()
	if err != nil {
		return errors.Wrap(err, "timeline: encode metadata")
	}
	if err := os.WriteFile(filepath.Join(t.LocalDir, "metadata"), buf, 0644); err != nil {
		return errors.Wrap(err, "timeline: write metadata file")
	}

	if t.remote == nil {
		return nil
	}

	t.handlesMu.Lock()
	layers := make([]remoteobj.LayerFileInfo, 0, len(t.handles))
	for fileID, h := range t.handles {
		layers = append(layers, remoteobj.LayerFileInfo{FileID: fileID, Size: h.Descriptor.FileSizeBytes})
	}
	t.handlesMu.Unlock()

	part := &remoteobj.IndexPart{Layers: layers, Metadata: buf}
	encoded, err := remoteobj.EncodeIndexPart(part)
	if err != nil {
		return err
	}
	if err := t.remote.ScheduleIndexUploadForMetadataUpdate(ctx, string(t.TenantID), string(t.TimelineID), encoded); err != nil {
		return errors.Wrap(err, "timeline: schedule index upload")
	}
	return nil
}

func raiseMax(a *atomic.Uint64, lsn types.Lsn) {
	for {
		cur := a.Load()
		if uint64(lsn) <= cur {
			return
		}
		if a.CompareAndSwap(cur, uint64(lsn)) {
			return
		}
	}
}

func reversed(recs []*record.Delta) []*record.Delta {
	out := make([]*record.Delta, len(recs))
	for i, r := range recs {
		out[len(recs)-1-i] = r
	}
	return out
}
