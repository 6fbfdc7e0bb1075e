package remoteobj

import (
	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// LayerFileInfo names one layer file's remote identity: its file id and
// the exact byte size a download must match before being trusted.
type LayerFileInfo struct {
	FileID string `bson:"file_id"`
	Size   int64  `bson:"size"`
}

// IndexPart is the durable, authoritative record of what a timeline has
// in remote storage: the layer file listing, the timeline's current
// serialized TimelineMetadata, and a deleted flag. It is the only
// source of truth for "which layers exist remotely"; a layer file
// missing from IndexPart is garbage even if its blob happens to still
// be present.
type IndexPart struct {
	Layers   []LayerFileInfo `bson:"layers"`
	Metadata []byte          `bson:"metadata"`
	Deleted  bool            `bson:"deleted"`
}

// EncodeIndexPart serializes p with BSON, the same wire format the
// teacher's storage engine uses for its own document payloads.
func EncodeIndexPart(p *IndexPart) ([]byte, error) {
	out, err := bson.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "remoteobj: marshal index part")
	}
	return out, nil
}

// DecodeIndexPart reverses EncodeIndexPart.
func DecodeIndexPart(data []byte) (*IndexPart, error) {
	var p IndexPart
	if err := bson.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "remoteobj: unmarshal index part")
	}
	return &p, nil
}
