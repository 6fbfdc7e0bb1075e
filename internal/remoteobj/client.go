// Package remoteobj defines the remote object-storage contract a
// timeline uses to durably persist layer files and index metadata
// beyond local disk, plus an embedded-KV-backed implementation for
// tests and single-node deployments.
package remoteobj

import "context"

// Kind distinguishes the two blob families a tenant uploads: layer
// files (immutable once written) and the per-timeline index part
// (rewritten on every metadata update).
type Kind int

const (
	KindLayerFile Kind = iota
	KindIndexPart
)

// Client is the remote storage contract a Timeline depends on.
// Implementations may retry transient errors internally; callers only
// see a final success or failure, per the propagation policy that
// pushes retry logic to the remote client rather than the core layer
// machinery.
type Client interface {
	// ScheduleLayerFileUpload queues a layer file's bytes for upload
	// under fileID; the queue drains asynchronously, same as deletion.
	ScheduleLayerFileUpload(ctx context.Context, tenantID, timelineID, fileID string, data []byte) error

	// DownloadLayerFile fetches a layer file's bytes by its FileID.
	DownloadLayerFile(ctx context.Context, tenantID, timelineID, fileID string) ([]byte, error)

	// DownloadIndexFile fetches the current IndexPart bytes for a
	// timeline. Returns an error if none has ever been uploaded.
	DownloadIndexFile(ctx context.Context, tenantID, timelineID string) ([]byte, error)

	// ScheduleLayerFileDeletion queues fileID for removal; the queue
	// drains asynchronously and WaitCompletion blocks until it's empty.
	ScheduleLayerFileDeletion(ctx context.Context, tenantID, timelineID, fileID string) error

	// ScheduleIndexUploadForMetadataUpdate queues the given bytes as
	// the timeline's new IndexPart.
	ScheduleIndexUploadForMetadataUpdate(ctx context.Context, tenantID, timelineID string, indexPart []byte) error

	// PersistIndexPartWithDeletedFlag marks a timeline as deleted in
	// its index part without removing its layer files, so a concurrent
	// reader mid-download still completes successfully.
	PersistIndexPartWithDeletedFlag(ctx context.Context, tenantID, timelineID string) error

	// WaitCompletion blocks until every previously scheduled upload and
	// deletion for this client has either completed or permanently failed.
	WaitCompletion(ctx context.Context) error

	// Stop drains in-flight work and releases the client's resources.
	Stop(ctx context.Context) error
}
