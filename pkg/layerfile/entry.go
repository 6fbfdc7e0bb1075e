// Package layerfile implements the on-disk format for a flushed
// layer: a single append-only file of (key, lsn, payload) records,
// written once when an in-memory layer freezes and is never mutated
// again.
package layerfile

import (
	"encoding/binary"
	"io"

	"github.com/pagevault/pageserver/pkg/types"
)

const (
	HeaderSize = 24

	// FormatVersion is bumped whenever the on-disk record layout changes.
	FormatVersion = 1

	// Magic identifies a layer file record header.
	Magic = 0xDEADBEEF
)

// RecordKind distinguishes an image record (a full page image, the
// base of a reconstruct chain) from a delta record (an incremental
// change applied on top of an earlier image).
type RecordKind uint8

const (
	RecordImage RecordKind = iota + 1
	RecordDelta
)

// Header is the fixed 24-byte prefix of every record in a layer file.
type Header struct {
	Magic      uint32
	Version    uint8
	Kind       RecordKind
	Reserved   uint16
	Lsn        uint64
	PayloadLen uint32
	CRC32      uint32
}

// Record pairs a header with its key and payload. Key is stored
// separately from Payload so the reader doesn't need to parse the
// payload encoding just to learn which key a record belongs to.
type Record struct {
	Header  Header
	Key     types.Key
	Payload []byte
}

func (h *Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = byte(h.Kind)
	binary.LittleEndian.PutUint16(buf[6:8], h.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], h.Lsn)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC32)
}

func (h *Header) Decode(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = buf[4]
	h.Kind = RecordKind(buf[5])
	h.Reserved = binary.LittleEndian.Uint16(buf[6:8])
	h.Lsn = binary.LittleEndian.Uint64(buf[8:16])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[16:20])
	h.CRC32 = binary.LittleEndian.Uint32(buf[20:24])
}

// WriteTo writes header + key + payload to w.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	var headerBuf [HeaderSize]byte
	r.Header.Encode(headerBuf[:])

	n, err := w.Write(headerBuf[:])
	if err != nil {
		return int64(n), err
	}

	m, err := w.Write(r.Key[:])
	if err != nil {
		return int64(n + m), err
	}

	p, err := w.Write(r.Payload)
	return int64(n + m + p), err
}
