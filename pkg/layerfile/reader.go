package layerfile

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

var (
	ErrInvalidMagic      = errors.New("layer file: bad magic number")
	ErrChecksumMismatch  = errors.New("layer file: crc32 mismatch, data corrupted")
	ErrInvalidPayloadLen = errors.New("layer file: implausible payload length")

	// maxPayloadLen guards against reading a corrupted length as a
	// huge allocation request.
	maxPayloadLen uint32 = 1 << 30
)

// Reader reads records from a layer file sequentially, in the order
// they were written (the timeline's flush writes them sorted by key,
// and by ascending LSN within a key).
type Reader struct {
	file   *os.File
	offset int64
}

func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open layer file %s", path)
	}
	return &Reader{file: f}, nil
}

// ReadRecord reads the next record, or returns io.EOF when the file
// is exhausted. The returned record is pool-backed; call
// ReleaseRecord when done with it.
func (r *Reader) ReadRecord() (*Record, error) {
	headerBuf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r.file, headerBuf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrap(err, "read layer record header")
	}
	if n != HeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	var header Header
	header.Decode(headerBuf)

	if header.Magic != Magic {
		return nil, ErrInvalidMagic
	}
	if header.PayloadLen > maxPayloadLen {
		return nil, ErrInvalidPayloadLen
	}

	rec := AcquireRecord()
	rec.Header = header

	if _, err := io.ReadFull(r.file, rec.Key[:]); err != nil {
		ReleaseRecord(rec)
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "read layer record key")
	}

	if uint32(cap(rec.Payload)) < header.PayloadLen {
		rec.Payload = make([]byte, header.PayloadLen)
	} else {
		rec.Payload = rec.Payload[:header.PayloadLen]
	}

	if _, err := io.ReadFull(r.file, rec.Payload); err != nil {
		ReleaseRecord(rec)
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "read layer record payload")
	}

	if !ValidateCRC32(rec.Payload, header.CRC32) {
		ReleaseRecord(rec)
		return nil, ErrChecksumMismatch
	}

	r.offset += int64(HeaderSize) + int64(len(rec.Key)) + int64(header.PayloadLen)
	return rec, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}
