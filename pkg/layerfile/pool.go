package layerfile

import (
	"sync"

	"github.com/pagevault/pageserver/pkg/types"
)

// Pools for the record struct and scratch buffers. Reader.ReadRecord
// takes its records from recordPool; a caller hands each back with
// ReleaseRecord. The timeline's flush path does not use these pools.

var (
	recordPool = sync.Pool{
		New: func() interface{} {
			return &Record{Payload: make([]byte, 0, 4096)}
		},
	}

	bufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 8192)
			return &buf
		},
	}
)

func AcquireRecord() *Record {
	return recordPool.Get().(*Record)
}

func ReleaseRecord(r *Record) {
	r.Header = Header{}
	r.Key = types.Key{}
	r.Payload = r.Payload[:0]
	recordPool.Put(r)
}

func AcquireBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

func ReleaseBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
	bufferPool.Put(buf)
}
