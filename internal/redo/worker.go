// Package redo defines the WAL-redo contract a timeline uses to turn
// a base image plus a chain of deltas into the value at a requested
// LSN, plus a reference implementation that folds deltas as ordered
// JSON-merge-patches.
package redo

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/pagevault/pageserver/internal/record"
)

// Image is the reconstructed value of one key: a flat field map, the
// same shape record.Delta carries so a Delta's Fields can be folded
// onto it directly.
type Image struct {
	Fields map[string]interface{}
}

// Worker replays records onto base, in the order given, and returns
// the resulting image. Records must be supplied oldest-first:
// Reconstruct folds each one's fields onto the running result in
// sequence, so reversing the newest-first order LayerMap and
// HistoricSet return is the caller's job.
type Worker interface {
	Reconstruct(ctx context.Context, base *Image, records []*record.Delta) (*Image, error)
}

// JSONMergeWorker folds each delta's Fields onto the running image
// using JSON Merge Patch semantics (RFC 7386): a field present with a
// nil value is removed, any other value overwrites the field. An
// image-kind record resets the running result before its fields are
// applied, which is what lets a reconstruct path that bottoms out at
// an image layer start clean instead of inheriting stale fields from
// an unrelated base.
type JSONMergeWorker struct{}

// NewJSONMergeWorker returns the reference redo worker.
func NewJSONMergeWorker() *JSONMergeWorker {
	return &JSONMergeWorker{}
}

// Reconstruct implements Worker.
func (w *JSONMergeWorker) Reconstruct(ctx context.Context, base *Image, records []*record.Delta) (*Image, error) {
	result := &Image{Fields: make(map[string]interface{})}
	if base != nil {
		for k, v := range base.Fields {
			result.Fields[k] = v
		}
	}

	for _, rec := range records {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "redo: reconstruct cancelled")
		default:
		}

		if rec == nil {
			continue
		}
		if rec.Kind == record.KindImage {
			result.Fields = make(map[string]interface{})
		}
		for k, v := range rec.Fields {
			if v == nil {
				delete(result.Fields, k)
				continue
			}
			result.Fields[k] = v
		}
	}

	return result, nil
}
