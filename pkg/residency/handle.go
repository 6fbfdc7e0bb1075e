// Package residency implements the eviction and download engine for
// historic layers: LayerHandle tracks whether one layer's bytes are
// resident on local disk, evicted to save space, or need fetching from
// remote storage, and ResidentLayer is the caller-held proof that a
// layer's bytes won't be evicted out from under a read in progress.
package residency

import (
	"context"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/pagevault/pageserver/internal/remoteobj"
	"github.com/pagevault/pageserver/pkg/historic"
)

// DownloadPolicy controls what get_or_download does when a layer's
// bytes aren't on local disk.
type DownloadPolicy int

const (
	// PolicyWarn attempts a remote download on a local miss. The miss
	// itself is not logged.
	PolicyWarn DownloadPolicy = iota
	// PolicyError refuses to download at all; the caller gets an error
	// instead of triggering network I/O.
	PolicyError
)

type slotState int

const (
	stateEmpty slotState = iota
	stateResident
	stateWantedEvicted
)

// Downloaded is one layer's bytes, resident on local disk at Path.
type Downloaded struct {
	Path string
	Size int64
}

// ResidentLayer pairs a Downloaded with the handle it belongs to. Its
// existence syntactically forbids eviction of the underlying file:
// every read path acquires one before touching bytes on disk, and
// releases it when done.
type ResidentLayer struct {
	handle *Handle
	data   *Downloaded
	once   sync.Once
}

// Data returns the resident layer's local path and size.
func (r *ResidentLayer) Data() *Downloaded {
	return r.data
}

// Release drops this strong reference. Idempotent: calling it more
// than once has no additional effect.
func (r *ResidentLayer) Release() {
	r.once.Do(func() {
		r.handle.release()
	})
}

// Handle is one historic layer's eviction/download state machine. The
// zero value is not usable; construct with New.
type Handle struct {
	TenantID       string
	TimelineID     string
	Descriptor     *historic.Descriptor
	LocalPath      string
	DownloadPolicy DownloadPolicy

	remote    remoteobj.Client
	onEvicted func(residenceObservation)

	downloadMu sync.Mutex

	mu                     sync.Mutex
	state                  slotState
	data                   *Downloaded
	refCount               int32
	version                uint64
	wantedEvicted          bool
	wantedGarbageCollected bool
}

// residenceObservation is passed to Handle.onEvicted, when set, each
// time a handle's resident local copy is unlinked. It records only
// which file was evicted, not how long it sat resident. Nothing in
// this module sets onEvicted.
type residenceObservation struct {
	FileID string
}

// New builds a Handle for one historic layer. remote may be nil for a
// deployment with no remote storage configured; Evict and downloads on
// a local miss then always fail.
func New(tenantID, timelineID string, desc *historic.Descriptor, localPath string, remote remoteobj.Client) *Handle {
	return &Handle{
		TenantID:   tenantID,
		TimelineID: timelineID,
		Descriptor: desc,
		LocalPath:  localPath,
		remote:     remote,
		state:      stateEmpty,
	}
}

// GetOrDownload returns a strong reference to this layer's bytes,
// downloading from remote storage if the local copy is missing or the
// wrong size. Every call bumps version, invalidating any eviction task
// that was already in flight for a prior residence.
func (h *Handle) GetOrDownload(ctx context.Context) (*ResidentLayer, error) {
	h.mu.Lock()
	h.version++
	switch h.state {
	case stateResident, stateWantedEvicted:
		h.state = stateResident
		h.wantedEvicted = false
		h.refCount++
		data := h.data
		h.mu.Unlock()
		return &ResidentLayer{handle: h, data: data}, nil
	}
	h.mu.Unlock()

	// Empty: serialize concurrent downloaders of the same handle on
	// downloadMu so at most one fetch runs, instead of racing writes to
	// the same local path.
	h.downloadMu.Lock()
	defer h.downloadMu.Unlock()

	h.mu.Lock()
	if h.state != stateEmpty {
		h.refCount++
		data := h.data
		h.mu.Unlock()
		return &ResidentLayer{handle: h, data: data}, nil
	}
	h.mu.Unlock()

	data, err := h.fetchAndVerify(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.state = stateResident
	h.data = data
	h.refCount = 1
	h.mu.Unlock()

	return &ResidentLayer{handle: h, data: data}, nil
}

// fetchAndVerify checks the local file first, then falls back to a
// remote download when it's missing or the wrong size. Cancellation or
// a failed download never leaves a partial file claimed resident: on
// any error the slot stays Empty so the next call retries cleanly.
func (h *Handle) fetchAndVerify(ctx context.Context) (*Downloaded, error) {
	if info, err := os.Stat(h.LocalPath); err == nil && info.Size() == h.Descriptor.FileSizeBytes {
		return &Downloaded{Path: h.LocalPath, Size: info.Size()}, nil
	}

	if h.DownloadPolicy == PolicyError {
		return nil, errors.Newf("residency: local copy of %s missing and download policy is Error", h.Descriptor.FileID)
	}
	if h.remote == nil {
		return nil, errors.Newf("residency: local copy of %s missing and no remote client is configured", h.Descriptor.FileID)
	}

	bytes, err := h.remote.DownloadLayerFile(ctx, h.TenantID, h.TimelineID, h.Descriptor.FileID)
	if err != nil {
		return nil, errors.Wrapf(err, "residency: download %s", h.Descriptor.FileID)
	}

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "residency: download cancelled")
	default:
	}

	tmp := h.LocalPath + ".download"
	if err := os.WriteFile(tmp, bytes, 0644); err != nil {
		return nil, errors.Wrapf(err, "residency: write downloaded bytes for %s", h.Descriptor.FileID)
	}
	if int64(len(bytes)) != h.Descriptor.FileSizeBytes {
		os.Remove(tmp)
		return nil, errors.Newf("residency: downloaded %s is %d bytes, want %d", h.Descriptor.FileID, len(bytes), h.Descriptor.FileSizeBytes)
	}
	if err := os.Rename(tmp, h.LocalPath); err != nil {
		os.Remove(tmp)
		return nil, errors.Wrapf(err, "residency: finalize download for %s", h.Descriptor.FileID)
	}

	return &Downloaded{Path: h.LocalPath, Size: int64(len(bytes))}, nil
}

// release drops one strong reference. If it was the last one and the
// handle is marked wanted-evicted, a background eviction runs.
func (h *Handle) release() {
	h.mu.Lock()
	h.refCount--
	shouldEvict := h.refCount == 0 && h.wantedEvicted
	version := h.version
	h.mu.Unlock()

	if shouldEvict {
		go h.runEviction(version)
	}
}

// Evict marks this layer's local copy for removal. If no ResidentLayer
// is currently outstanding, the file is removed immediately and Evict
// returns true; otherwise it returns false and the removal happens in
// the background once the last outstanding ResidentLayer is released.
// Evicting without a remote client configured is refused, since a
// local-only deployment has no way to re-download afterward.
func (h *Handle) Evict() bool {
	if h.remote == nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateEmpty:
		return true
	case stateWantedEvicted:
		return h.refCount == 0
	}

	h.wantedEvicted = true
	if h.refCount == 0 {
		h.unlinkLocked()
		h.state = stateEmpty
		return true
	}
	h.state = stateWantedEvicted
	return false
}

// runEviction is the fire-and-forget background task spawned when the
// last strong reference to a wanted-evicted handle drops. It re-checks
// version and wanted_evicted under the lock before touching disk, so a
// concurrent GetOrDownload that re-entered residency after this task
// was scheduled safely wins the race. If the handle was marked
// garbage-collected rather than merely evicted, it also schedules the
// remote deletion that GarbageCollect's synchronous path would have
// run immediately had no ResidentLayer been outstanding.
func (h *Handle) runEviction(version uint64) {
	h.mu.Lock()
	if h.version != version {
		h.mu.Unlock()
		return
	}
	if !h.wantedEvicted || h.refCount != 0 {
		h.mu.Unlock()
		return
	}

	h.unlinkLocked()
	h.state = stateEmpty
	gc := h.wantedGarbageCollected
	h.mu.Unlock()

	if gc && h.remote != nil {
		h.remote.ScheduleLayerFileDeletion(context.Background(), h.TenantID, h.TimelineID, h.Descriptor.FileID)
	}
}

// unlinkLocked removes the local file. Caller must hold mu. Local I/O
// errors here are not fatal to the handle: the file either already
// doesn't exist or a failed unlink just leaves disk usage higher than
// intended, not a correctness problem.
func (h *Handle) unlinkLocked() {
	if h.data == nil {
		return
	}
	os.Remove(h.data.Path)
	h.data = nil
	if h.onEvicted != nil {
		h.onEvicted(residenceObservation{FileID: h.Descriptor.FileID})
	}
}

// GarbageCollect marks the layer as permanently unwanted: its local
// file is removed and its remote copy is scheduled for deletion. If a
// ResidentLayer is currently outstanding, the removal is deferred the
// same way Evict defers to the last release.
func (h *Handle) GarbageCollect(ctx context.Context) error {
	h.mu.Lock()
	h.wantedGarbageCollected = true
	h.wantedEvicted = true
	outstanding := h.refCount > 0
	h.mu.Unlock()

	if outstanding {
		return nil
	}

	h.mu.Lock()
	h.unlinkLocked()
	// unlinkLocked only removes bytes this handle made resident; a file
	// written locally and never read is removed here.
	os.Remove(h.LocalPath)
	h.state = stateEmpty
	h.mu.Unlock()

	if h.remote == nil {
		return nil
	}
	if err := h.remote.ScheduleLayerFileDeletion(ctx, h.TenantID, h.TimelineID, h.Descriptor.FileID); err != nil {
		return errors.Wrapf(err, "residency: schedule remote deletion of %s", h.Descriptor.FileID)
	}
	return nil
}

// IsResident reports whether the layer currently has bytes on local
// disk, independent of any outstanding ResidentLayer.
func (h *Handle) IsResident() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state != stateEmpty
}
