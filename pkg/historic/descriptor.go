// Package historic implements the historic layer set: the immutable,
// copy-on-write collection of on-disk image and delta layers a
// timeline has already flushed, plus the reconstruct-path walk that
// finds what to replay for a given (key, lsn).
package historic

import "github.com/pagevault/pageserver/pkg/types"

// Kind distinguishes an image layer (a full snapshot at one LSN) from
// a delta layer (incremental records over an LSN range).
type Kind int

const (
	Image Kind = iota
	Delta
)

// Descriptor names one on-disk layer: its keyspace coverage, its LSN
// coverage, an opaque FileID the caller resolves to bytes (a local
// path, and the name it's stored under in internal/remoteobj once
// uploaded), and the exact size the local file must have to be
// considered a valid, fully-downloaded copy. Descriptors are immutable
// once constructed.
type Descriptor struct {
	Kind          Kind
	KeyRange      types.KeyRange
	LsnRange      types.LsnRange
	FileID        string
	FileSizeBytes int64
}

// covers reports whether this layer must be consulted to reconstruct
// key as of lsn: the key falls in its keyspace and the layer's oldest
// data is at or before the requested lsn. A layer whose data starts
// after lsn has nothing relevant to the request.
func (d *Descriptor) covers(key types.Key, lsn types.Lsn) bool {
	if !d.KeyRange.Contains(key) {
		return false
	}
	return d.LsnRange.Lo <= lsn
}

// newestFirst orders descriptors by decreasing LsnRange.Hi, so a
// reconstruct walk consults the most recent layer covering a key
// before older ones.
func newestFirst(a, b *Descriptor) bool {
	return a.LsnRange.Hi > b.LsnRange.Hi
}
