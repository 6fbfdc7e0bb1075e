package layerfile

import "time"

// SyncPolicy controls how aggressively a Writer fsyncs the layer file
// while it's being built. Once a layer is fully flushed and marked
// historic, it's synced unconditionally and never written again.
type SyncPolicy int

const (
	// SyncEveryWrite fsyncs after every record. Safest, slowest.
	SyncEveryWrite SyncPolicy = iota

	// SyncInterval fsyncs periodically from a background goroutine.
	SyncInterval

	// SyncBatch fsyncs once accumulated unsynced bytes cross a threshold.
	SyncBatch
)

// Options configures a Writer.
type Options struct {
	// BufferSize is the bufio buffer size in front of the file.
	BufferSize int

	SyncPolicy SyncPolicy

	// SyncIntervalDuration is used when SyncPolicy is SyncInterval.
	SyncIntervalDuration time.Duration

	// SyncBatchBytes is used when SyncPolicy is SyncBatch.
	SyncBatchBytes int64
}

// DefaultOptions returns options suited to writing a freshly flushed
// layer file: buffered, fsynced once on completion via SyncBatch with
// a large threshold so mid-flush fsyncs are rare.
func DefaultOptions() Options {
	return Options{
		BufferSize:           64 * 1024,
		SyncPolicy:           SyncBatch,
		SyncIntervalDuration: 200 * time.Millisecond,
		SyncBatchBytes:       4 * 1024 * 1024,
	}
}
