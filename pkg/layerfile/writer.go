package layerfile

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Writer appends records to a single layer file. A layer file is
// written exactly once, during a flush or compaction, and closed; it
// is never reopened for append afterward.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	options Options

	batchBytes int64

	done   chan struct{}
	ticker *time.Ticker
	closed bool
}

// NewWriter creates a layer file at path, truncating any stale
// partial file left by a crashed flush.
func NewWriter(path string, opts Options) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open layer file %s", path)
	}

	w := &Writer{
		file:    f,
		writer:  bufio.NewWriterSize(f, opts.BufferSize),
		options: opts,
		done:    make(chan struct{}),
	}

	if opts.SyncPolicy == SyncInterval {
		w.ticker = time.NewTicker(opts.SyncIntervalDuration)
		go w.backgroundSync()
	}

	return w, nil
}

// WriteRecord appends a record and applies the configured sync policy.
func (w *Writer) WriteRecord(rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := rec.WriteTo(w.writer)
	if err != nil {
		return errors.Wrap(err, "write layer record")
	}

	w.batchBytes += n

	switch w.options.SyncPolicy {
	case SyncEveryWrite:
		return w.syncLocked()
	case SyncBatch:
		if w.batchBytes >= w.options.SyncBatchBytes {
			return w.syncLocked()
		}
	}
	return nil
}

// Sync forces the buffered writes to stable storage.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *Writer) syncLocked() error {
	if err := w.writer.Flush(); err != nil {
		return errors.Wrap(err, "flush layer file buffer")
	}
	if err := w.file.Sync(); err != nil {
		return errors.Wrap(err, "fsync layer file")
	}
	w.batchBytes = 0
	return nil
}

// Close flushes and fsyncs the file one final time: a layer file is
// only safe to register as historic once this returns successfully.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.ticker != nil {
		w.ticker.Stop()
		close(w.done)
	}

	if err := w.syncLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *Writer) backgroundSync() {
	for {
		select {
		case <-w.ticker.C:
			w.Sync()
		case <-w.done:
			return
		}
	}
}
