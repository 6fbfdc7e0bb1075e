// Package record defines the concrete shape of a DeltaRecord: the
// spec treats it as opaque, but the in-memory layer, the layer-file
// writer and the redo worker all need something real to hold, encode
// and replay.
package record

import (
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Kind distinguishes a self-contained image record from an
// incremental one that must be replayed on top of an earlier image.
type Kind uint8

const (
	KindImage Kind = iota + 1
	KindDelta
)

// Delta is one WAL-ingested modification to a single key. Fields
// holds the record's structured payload (the page fields a redo
// worker folds onto a base image); it is encoded with structpb so the
// wire format is genuine protobuf without a .proto/protoc step.
type Delta struct {
	Kind   Kind
	Fields map[string]interface{}
}

// Encode serializes d to bytes suitable for an in-memory layer slot
// or a layerfile.Record payload: a one-byte kind tag followed by a
// snappy-compressed protobuf Struct. Snappy is chosen over zstd here
// because this path runs on every ingested record and favors encode
// speed; the remote-upload path (internal/remoteobj) uses zstd instead,
// where ratio matters more than latency.
func Encode(d *Delta) ([]byte, error) {
	st, err := structpb.NewStruct(d.Fields)
	if err != nil {
		return nil, errors.Wrap(err, "build struct payload for delta record")
	}

	raw, err := proto.Marshal(st)
	if err != nil {
		return nil, errors.Wrap(err, "marshal delta record payload")
	}

	compressed := snappy.Encode(nil, raw)
	out := make([]byte, 1+len(compressed))
	out[0] = byte(d.Kind)
	copy(out[1:], compressed)
	return out, nil
}

// Decode reverses Encode.
func Decode(data []byte) (*Delta, error) {
	if len(data) < 1 {
		return nil, errors.New("delta record: empty payload")
	}

	raw, err := snappy.Decode(nil, data[1:])
	if err != nil {
		return nil, errors.Wrap(err, "decompress delta record payload")
	}

	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		return nil, errors.Wrap(err, "unmarshal delta record payload")
	}

	return &Delta{Kind: Kind(data[0]), Fields: st.AsMap()}, nil
}
