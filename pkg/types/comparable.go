// Package types holds the ordered primitives shared across the layer
// store: page Key, Lsn, and the Comparable interface both of them
// implement.
package types

// Comparable is the interface every indexable key implements.
// Compare returns -1 if the receiver is less than other, 0 if equal,
// 1 if greater.
type Comparable interface {
	Compare(other Comparable) int
}

// KeySize is the width of a page Key, mirroring a relation/fork/block
// address: 4 bytes of partition id, 4 bytes of relation id, 4 bytes of
// fork number, 4 bytes of block number, plus one field discriminator
// byte.
const KeySize = 17

// Key identifies a single page (or metadata record) in the keyspace
// that a timeline versions. Keys are opaque, fixed-size and totally
// ordered by byte value, which is what lets historic.Set keep its
// layers sorted by the low key of their key range.
type Key [KeySize]byte

// MinKey and MaxKey bound the representable keyspace; a key range
// [MinKey, MaxKey) covers everything.
var (
	MinKey = Key{}
	MaxKey = func() Key {
		var k Key
		for i := range k {
			k[i] = 0xff
		}
		return k
	}()
)

// Compare implements Comparable.
func (k Key) Compare(other Comparable) int {
	o := other.(Key)
	for i := range k {
		if k[i] < o[i] {
			return -1
		}
		if k[i] > o[i] {
			return 1
		}
	}
	return 0
}

// Less reports whether k sorts strictly before other.
func (k Key) Less(other Key) bool { return k.Compare(other) < 0 }

// Next returns the lexicographically smallest key strictly greater
// than k. Used to build a half-open [lo, hi) range from a single key.
func (k Key) Next() Key {
	n := k
	for i := len(n) - 1; i >= 0; i-- {
		n[i]++
		if n[i] != 0 {
			break
		}
	}
	return n
}

// KeyRange is a half-open range [Lo, Hi) over the keyspace.
type KeyRange struct {
	Lo Key
	Hi Key
}

// Contains reports whether key falls in [r.Lo, r.Hi).
func (r KeyRange) Contains(key Key) bool {
	return !key.Less(r.Lo) && key.Less(r.Hi)
}

// Overlaps reports whether r and other share any key.
func (r KeyRange) Overlaps(other KeyRange) bool {
	return r.Lo.Less(other.Hi) && other.Lo.Less(r.Hi)
}

// Lsn is a log sequence number: a byte offset into a timeline's
// write-ahead stream. Lsn(0) is reserved as the invalid/unset value.
type Lsn uint64

// InvalidLsn is the zero value, never produced by a real write.
const InvalidLsn Lsn = 0

// Compare implements Comparable so Lsn can key an ordered index too.
func (l Lsn) Compare(other Comparable) int {
	o := other.(Lsn)
	switch {
	case l < o:
		return -1
	case l > o:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether l is a real, assigned position.
func (l Lsn) IsValid() bool { return l != InvalidLsn }

// Max returns the larger of two Lsns.
func Max(a, b Lsn) Lsn {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of two Lsns.
func Min(a, b Lsn) Lsn {
	if a < b {
		return a
	}
	return b
}

// LsnRange is a half-open range [Lo, Hi) of the write-ahead stream.
type LsnRange struct {
	Lo Lsn
	Hi Lsn
}

// Contains reports whether lsn falls in [r.Lo, r.Hi).
func (r LsnRange) Contains(lsn Lsn) bool {
	return lsn >= r.Lo && lsn < r.Hi
}
