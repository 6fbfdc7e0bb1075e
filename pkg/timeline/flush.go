package timeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/pagevault/pageserver/internal/record"
	"github.com/pagevault/pageserver/pkg/historic"
	"github.com/pagevault/pageserver/pkg/inmemory"
	"github.com/pagevault/pageserver/pkg/layerfile"
	"github.com/pagevault/pageserver/pkg/residency"
	"github.com/pagevault/pageserver/pkg/types"
)

// Flush implements layermap.Flusher: it writes a frozen in-memory
// layer out as a single layer file, registers a residency handle for
// it (the bytes are already local, having just been written), and
// schedules a remote upload if this timeline has remote storage
// configured.
func (t *Timeline) Flush(ctx context.Context, layer *inmemory.Layer) (*historic.Descriptor, error) {
	fileID := fmt.Sprintf("delta-%016x-%016x", uint64(layer.StartLsn()), t.fileSeq.Add(1))
	path := filepath.Join(t.LocalDir, fileID)

	w, err := layerfile.NewWriter(path, layerfile.DefaultOptions())
	if err != nil {
		return nil, errors.Wrap(err, "timeline: open layer file for flush")
	}

	var (
		minKey, maxKey types.Key
		maxLsn         types.Lsn
		sawAny         bool
	)

	keys := layer.Keys()
	for _, key := range keys {
		for _, e := range layer.AllForKey(key) {
			delta, err := record.Decode(e.Payload)
			if err != nil {
				w.Close()
				return nil, errors.Wrap(err, "timeline: decode in-memory record during flush")
			}

			kind := layerfile.RecordDelta
			if delta.Kind == record.KindImage {
				kind = layerfile.RecordImage
			}

			rec := &layerfile.Record{
				Header: layerfile.Header{
					Magic:      layerfile.Magic,
					Version:    layerfile.FormatVersion,
					Kind:       kind,
					Lsn:        uint64(e.Lsn),
					PayloadLen: uint32(len(e.Payload)),
					CRC32:      layerfile.CalculateCRC32(e.Payload),
				},
				Key:     key,
				Payload: e.Payload,
			}
			if err := w.WriteRecord(rec); err != nil {
				w.Close()
				return nil, errors.Wrap(err, "timeline: write layer record during flush")
			}

			if !sawAny || key.Less(minKey) {
				minKey = key
			}
			if !sawAny || maxKey.Less(key) {
				maxKey = key
			}
			if e.Lsn > maxLsn {
				maxLsn = e.Lsn
			}
			sawAny = true
		}
	}

	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "timeline: close layer file after flush")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "timeline: stat flushed layer file")
	}

	keyRange := types.KeyRange{Lo: types.MinKey, Hi: types.MaxKey}
	if sawAny {
		keyRange = types.KeyRange{Lo: minKey, Hi: maxKey.Next()}
	}

	desc := &historic.Descriptor{
		Kind:          historic.Delta,
		KeyRange:      keyRange,
		LsnRange:      types.LsnRange{Lo: layer.StartLsn(), Hi: maxLsn + 1},
		FileID:        fileID,
		FileSizeBytes: info.Size(),
	}

	t.handlesMu.Lock()
	t.handles[fileID] = residency.New(string(t.TenantID), string(t.TimelineID), desc, path, t.remote)
	t.handlesMu.Unlock()

	if t.remote != nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "timeline: read flushed layer file for upload")
		}
		if err := t.remote.ScheduleLayerFileUpload(ctx, string(t.TenantID), string(t.TimelineID), fileID, data); err != nil {
			return nil, errors.Wrap(err, "timeline: schedule layer file upload")
		}
	}

	t.metrics.ObserveFlush()
	t.logger.Infof("flushed layer %s (%d bytes, lsn range [%d, %d))", fileID, info.Size(), desc.LsnRange.Lo, desc.LsnRange.Hi)

	return desc, nil
}
