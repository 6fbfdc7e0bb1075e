// Package metadata implements TimelineMetadata: the small, checksummed,
// fixed-size binary header persisted alongside each timeline's layer
// files, recording the facts needed to resume or branch from it.
package metadata

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cockroachdb/errors"
	"github.com/pagevault/pageserver/pkg/types"
)

const (
	// Size is the fixed on-disk footprint of one TimelineMetadata
	// record: enough for the present fields plus headroom for fields
	// added later without changing the file layout's overall size.
	Size = 512

	magic         = 0x504c4d44 // "PLMD"
	formatVersion = 1

	ancestorIDLen = 36 // fixed width for a UUID-string ancestor timeline id
	crcOffset     = Size - 4
)

// Metadata is the decoded form of a timeline's on-disk metadata file.
type Metadata struct {
	DiskConsistentLsn  types.Lsn
	PrevRecordLsn      types.Lsn
	HasAncestor        bool
	AncestorTimelineID string
	AncestorLsn        types.Lsn
	LatestGcCutoffLsn  types.Lsn
	InitdbLsn          types.Lsn
	PgVersion          uint32
}

// Encode serializes m into a checksummed Size-byte block.
func (m *Metadata) Encode() ([]byte, error) {
	if m.HasAncestor && len(m.AncestorTimelineID) > ancestorIDLen {
		return nil, errors.Newf("metadata: ancestor timeline id %q exceeds %d bytes", m.AncestorTimelineID, ancestorIDLen)
	}

	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], formatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.DiskConsistentLsn))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.PrevRecordLsn))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(m.AncestorLsn))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(m.LatestGcCutoffLsn))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(m.InitdbLsn))
	binary.LittleEndian.PutUint32(buf[48:52], m.PgVersion)
	if m.HasAncestor {
		buf[52] = 1
		copy(buf[60:60+ancestorIDLen], m.AncestorTimelineID)
	}

	crc := crc32.Checksum(buf[:crcOffset], crc32.MakeTable(crc32.Castagnoli))
	binary.LittleEndian.PutUint32(buf[crcOffset:crcOffset+4], crc)

	return buf, nil
}

// Decode parses a Size-byte block written by Encode, verifying its
// checksum and magic. Decode failure is fatal for the owning timeline
// per the on-disk layout contract: the caller must transition the
// timeline to Broken rather than retry.
func Decode(buf []byte) (*Metadata, error) {
	if len(buf) != Size {
		return nil, errors.Newf("metadata: expected %d bytes, got %d", Size, len(buf))
	}

	gotMagic := binary.LittleEndian.Uint32(buf[0:4])
	if gotMagic != magic {
		return nil, errors.Newf("metadata: bad magic %#x, want %#x", gotMagic, magic)
	}

	wantCRC := binary.LittleEndian.Uint32(buf[crcOffset : crcOffset+4])
	gotCRC := crc32.Checksum(buf[:crcOffset], crc32.MakeTable(crc32.Castagnoli))
	if gotCRC != wantCRC {
		return nil, errors.Newf("metadata: checksum mismatch: got %#x, want %#x", gotCRC, wantCRC)
	}

	m := &Metadata{
		DiskConsistentLsn: types.Lsn(binary.LittleEndian.Uint64(buf[8:16])),
		PrevRecordLsn:     types.Lsn(binary.LittleEndian.Uint64(buf[16:24])),
		AncestorLsn:       types.Lsn(binary.LittleEndian.Uint64(buf[24:32])),
		LatestGcCutoffLsn: types.Lsn(binary.LittleEndian.Uint64(buf[32:40])),
		InitdbLsn:         types.Lsn(binary.LittleEndian.Uint64(buf[40:48])),
		PgVersion:         binary.LittleEndian.Uint32(buf[48:52]),
	}
	if buf[52] == 1 {
		m.HasAncestor = true
		end := 60 + ancestorIDLen
		trimmed := buf[60:end]
		n := len(trimmed)
		for n > 0 && trimmed[n-1] == 0 {
			n--
		}
		m.AncestorTimelineID = string(trimmed[:n])
	}

	return m, nil
}
