package remoteobj

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
)

// PebbleClient implements Client over a local embedded KV store,
// standing in for a real object store in tests and single-node
// deployments. Blobs are stored under a "tenant/timeline/kind/name"
// key; uploads and downloads pass through zstd to model the bandwidth
// cost a real remote store would impose.
type PebbleClient struct {
	db  *pebble.DB
	enc *zstd.Encoder
	dec *zstd.Decoder

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	errs   chan error
}

// NewPebbleClient opens (creating if absent) a pebble store at dir.
func NewPebbleClient(dir string) (*PebbleClient, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "remoteobj: open pebble store")
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "remoteobj: create zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "remoteobj: create zstd decoder")
	}
	return &PebbleClient{db: db, enc: enc, dec: dec, errs: make(chan error, 64)}, nil
}

func layerFileKey(tenantID, timelineID, fileID string) []byte {
	return []byte(fmt.Sprintf("%s/%s/layer/%s", tenantID, timelineID, fileID))
}

func indexPartKey(tenantID, timelineID string) []byte {
	return []byte(fmt.Sprintf("%s/%s/index", tenantID, timelineID))
}

func (c *PebbleClient) get(key []byte) ([]byte, error) {
	compressed, closer, err := c.db.Get(key)
	if err != nil {
		return nil, errors.Wrapf(err, "remoteobj: get %s", key)
	}
	defer closer.Close()

	raw, err := c.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.Wrap(err, "remoteobj: decompress object")
	}
	return raw, nil
}

// DownloadLayerFile implements Client.
func (c *PebbleClient) DownloadLayerFile(ctx context.Context, tenantID, timelineID, fileID string) ([]byte, error) {
	return c.get(layerFileKey(tenantID, timelineID, fileID))
}

// DownloadIndexFile implements Client.
func (c *PebbleClient) DownloadIndexFile(ctx context.Context, tenantID, timelineID string) ([]byte, error) {
	return c.get(indexPartKey(tenantID, timelineID))
}

// ScheduleLayerFileUpload implements Client.
func (c *PebbleClient) ScheduleLayerFileUpload(ctx context.Context, tenantID, timelineID, fileID string, data []byte) error {
	compressed := c.enc.EncodeAll(data, nil)
	return c.schedule(func() error {
		return c.db.Set(layerFileKey(tenantID, timelineID, fileID), compressed, pebble.Sync)
	})
}

// ScheduleLayerFileDeletion implements Client.
func (c *PebbleClient) ScheduleLayerFileDeletion(ctx context.Context, tenantID, timelineID, fileID string) error {
	return c.schedule(func() error {
		return c.db.Delete(layerFileKey(tenantID, timelineID, fileID), pebble.Sync)
	})
}

// ScheduleIndexUploadForMetadataUpdate implements Client.
func (c *PebbleClient) ScheduleIndexUploadForMetadataUpdate(ctx context.Context, tenantID, timelineID string, indexPart []byte) error {
	compressed := c.enc.EncodeAll(indexPart, nil)
	return c.schedule(func() error {
		return c.db.Set(indexPartKey(tenantID, timelineID), compressed, pebble.Sync)
	})
}

// PersistIndexPartWithDeletedFlag implements Client. It flips the
// Deleted flag on whatever IndexPart currently exists rather than
// removing it, so a concurrent download in flight still completes.
func (c *PebbleClient) PersistIndexPartWithDeletedFlag(ctx context.Context, tenantID, timelineID string) error {
	part := &IndexPart{}
	if existing, err := c.DownloadIndexFile(ctx, tenantID, timelineID); err == nil {
		decoded, err := DecodeIndexPart(existing)
		if err != nil {
			return errors.Wrap(err, "remoteobj: decode existing index part")
		}
		part = decoded
	}
	part.Deleted = true

	encoded, err := EncodeIndexPart(part)
	if err != nil {
		return err
	}
	compressed := c.enc.EncodeAll(encoded, nil)
	return c.schedule(func() error {
		return c.db.Set(indexPartKey(tenantID, timelineID), compressed, pebble.Sync)
	})
}

// schedule runs job in the background, tracked by wg so WaitCompletion
// can block until every scheduled job has settled.
func (c *PebbleClient) schedule(job func() error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("remoteobj: client is stopped")
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if err := job(); err != nil {
			select {
			case c.errs <- err:
			default:
			}
		}
	}()
	return nil
}

// WaitCompletion implements Client.
func (c *PebbleClient) WaitCompletion(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-c.errs:
		return err
	default:
		return nil
	}
}

// Stop implements Client: drains in-flight work, then closes the
// store. Idempotent: calling Stop again after a successful Stop is a
// no-op.
func (c *PebbleClient) Stop(ctx context.Context) error {
	if err := c.WaitCompletion(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.db.Close()
}
