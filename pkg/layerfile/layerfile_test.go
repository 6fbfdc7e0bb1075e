package layerfile

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pagevault/pageserver/pkg/types"
)

func testKey(b byte) types.Key {
	var k types.Key
	k[len(k)-1] = b
	return k
}

func TestWriter_IntervalSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interval.layer")

	payload := []byte("some page bytes")
	crc := CalculateCRC32(payload)

	opts := Options{
		SyncPolicy:           SyncInterval,
		SyncIntervalDuration: 50 * time.Millisecond,
		BufferSize:           1024,
	}

	w, err := NewWriter(path, opts)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	rec := AcquireRecord()
	rec.Header = Header{
		Magic:      Magic,
		Version:    FormatVersion,
		Kind:       RecordDelta,
		PayloadLen: uint32(len(payload)),
		CRC32:      crc,
		Lsn:        1,
	}
	rec.Key = testKey(1)
	rec.Payload = append(rec.Payload, payload...)

	if err := w.WriteRecord(rec); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	ReleaseRecord(rec)

	time.Sleep(100 * time.Millisecond)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Error("file size is 0 after background sync, expected content")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestWriter_EveryWriteSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "everywrite.layer")

	w, err := NewWriter(path, Options{SyncPolicy: SyncEveryWrite, BufferSize: 4096})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	defer w.Close()

	payload := []byte("abc")
	rec := &Record{
		Header: Header{
			Magic:      Magic,
			Version:    FormatVersion,
			Kind:       RecordImage,
			PayloadLen: uint32(len(payload)),
			CRC32:      CalculateCRC32(payload),
			Lsn:        42,
		},
		Key:     testKey(7),
		Payload: payload,
	}

	if err := w.WriteRecord(rec); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected data to be flushed to disk immediately under SyncEveryWrite")
	}
}

func TestWriterReader_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.layer")

	w, err := NewWriter(path, Options{SyncPolicy: SyncEveryWrite, BufferSize: 4096})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	want := []struct {
		key     types.Key
		lsn     uint64
		kind    RecordKind
		payload []byte
	}{
		{testKey(1), 10, RecordImage, []byte("image-page")},
		{testKey(1), 20, RecordDelta, []byte("delta-1")},
		{testKey(1), 30, RecordDelta, []byte("delta-2")},
		{testKey(2), 15, RecordImage, []byte("other-key-image")},
	}

	for _, rec := range want {
		r := &Record{
			Header: Header{
				Magic:      Magic,
				Version:    FormatVersion,
				Kind:       rec.kind,
				PayloadLen: uint32(len(rec.payload)),
				CRC32:      CalculateCRC32(rec.payload),
				Lsn:        rec.lsn,
			},
			Key:     rec.key,
			Payload: rec.payload,
		}
		if err := w.WriteRecord(r); err != nil {
			t.Fatalf("WriteRecord failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	for i, exp := range want {
		got, err := reader.ReadRecord()
		if err != nil {
			t.Fatalf("ReadRecord[%d] failed: %v", i, err)
		}
		if got.Key.Compare(exp.key) != 0 {
			t.Errorf("record %d: key mismatch", i)
		}
		if got.Header.Lsn != exp.lsn {
			t.Errorf("record %d: lsn = %d, want %d", i, got.Header.Lsn, exp.lsn)
		}
		if got.Header.Kind != exp.kind {
			t.Errorf("record %d: kind = %d, want %d", i, got.Header.Kind, exp.kind)
		}
		if string(got.Payload) != string(exp.payload) {
			t.Errorf("record %d: payload = %q, want %q", i, got.Payload, exp.payload)
		}
		ReleaseRecord(got)
	}

	if _, err := reader.ReadRecord(); err != io.EOF {
		t.Errorf("expected io.EOF after last record, got %v", err)
	}
}

func TestReader_ChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.layer")

	w, err := NewWriter(path, Options{SyncPolicy: SyncEveryWrite, BufferSize: 4096})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	payload := []byte("trustworthy")
	rec := &Record{
		Header: Header{
			Magic:      Magic,
			Version:    FormatVersion,
			Kind:       RecordDelta,
			PayloadLen: uint32(len(payload)),
			CRC32:      CalculateCRC32(payload) ^ 0xFF, // deliberately wrong
			Lsn:        1,
		},
		Key:     testKey(1),
		Payload: payload,
	}
	if err := w.WriteRecord(rec); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.ReadRecord(); err != ErrChecksumMismatch {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
}
