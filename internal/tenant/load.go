package tenant

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/pagevault/pageserver/internal/ids"
	"github.com/pagevault/pageserver/internal/metadata"
	"github.com/pagevault/pageserver/internal/remoteobj"
	"github.com/pagevault/pageserver/pkg/timeline"
)

// Load discovers every materialized timeline under the tenant's
// timelines directory, orders them ancestor-first via
// TreeSortTimelines, and registers a Timeline for each in turn so a
// child's Ancestor field can point at its already-registered parent.
// Remote-stored metadata, if any, is merged against the local copy per
// MergeLocalRemoteMetadata before a timeline is registered.
func (t *Tenant) Load(ctx context.Context) error {
	timelinesDir := filepath.Join(t.RootDir, "timelines")
	if err := RemoveUninitializedTimelines(timelinesDir); err != nil {
		return err
	}

	localEntries, err := discoverLocalMetadata(timelinesDir)
	if err != nil {
		return err
	}

	merged := make([]LoadEntry, 0, len(localEntries))
	for id, local := range localEntries {
		var remote *metadata.Metadata
		if t.remote != nil {
			if data, err := t.remote.DownloadIndexFile(ctx, string(t.TenantID), string(id)); err == nil {
				// An index part existing on remote without a parseable
				// metadata blob would be a remote-storage bug; surface it
				// rather than silently loading from local alone.
				m, decodeErr := metadataFromIndex(data)
				if decodeErr != nil {
					return errors.Wrapf(decodeErr, "tenant: decode remote metadata for timeline %s", id)
				}
				remote = m
			}
		}
		picked, _, err := MergeLocalRemoteMetadata(local, remote)
		if err != nil {
			return errors.Wrapf(err, "tenant: merge metadata for timeline %s", id)
		}
		merged = append(merged, LoadEntry{TimelineID: id, Metadata: picked})
	}

	ordered, err := TreeSortTimelines(merged)
	if err != nil {
		return errors.Wrapf(err, "tenant %s: load", t.TenantID)
	}

	loaded := make(map[ids.TimelineID]*timeline.Timeline, len(ordered))
	for _, e := range ordered {
		var ancestor *timeline.Timeline
		if e.Metadata.HasAncestor {
			ancestor = loaded[ids.TimelineID(e.Metadata.AncestorTimelineID)]
		}
		cfg := timeline.Config{
			TenantID:      t.TenantID,
			TimelineID:    e.TimelineID,
			LocalDir:      filepath.Join(timelinesDir, string(e.TimelineID)),
			Ancestor:      ancestor,
			AncestorLsn:   e.Metadata.AncestorLsn,
			Remote:        t.remote,
			Metrics:       t.metrics,
			Logger:        t.logger,
			InitialLsn:    e.Metadata.DiskConsistentLsn,
			InitdbLsn:     e.Metadata.InitdbLsn,
			PgVersion:     e.Metadata.PgVersion,
			MaxLayerBytes: t.conf.CheckpointDistanceBytes,
		}
		tl := timeline.New(cfg)
		if err := t.register(e.TimelineID, tl); err != nil {
			return err
		}
		loaded[e.TimelineID] = tl
	}

	return nil
}

func discoverLocalMetadata(timelinesDir string) (map[ids.TimelineID]*metadata.Metadata, error) {
	entries, err := os.ReadDir(timelinesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[ids.TimelineID]*metadata.Metadata{}, nil
		}
		return nil, errors.Wrapf(err, "tenant: read timelines dir %s", timelinesDir)
	}

	out := make(map[ids.TimelineID]*metadata.Metadata, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		buf, err := os.ReadFile(filepath.Join(timelinesDir, e.Name(), "metadata"))
		if err != nil {
			return nil, errors.Wrapf(err, "tenant: read metadata for timeline %s", e.Name())
		}
		m, err := metadata.Decode(buf)
		if err != nil {
			return nil, errors.Wrapf(err, "tenant: decode metadata for timeline %s", e.Name())
		}
		out[ids.TimelineID(e.Name())] = m
	}
	return out, nil
}

func metadataFromIndex(indexData []byte) (*metadata.Metadata, error) {
	part, err := remoteobj.DecodeIndexPart(indexData)
	if err != nil {
		return nil, err
	}
	return metadata.Decode(part.Metadata)
}
