package mqttc

import (
	"sync"
)

// bytesReaderPool recycles the body readers used during packet decoding.
var bytesReaderPool = sync.Pool{
	New: func() any {
		return &bytesReader{}
	},
}

// getBytesReader returns a pooled bytesReader over data.
func getBytesReader(data []byte) *bytesReader {
	r := bytesReaderPool.Get().(*bytesReader)
	r.data = data
	r.pos = 0
	return r
}

// putBytesReader returns a bytesReader to the pool.
func putBytesReader(r *bytesReader) {
	if r == nil {
		return
	}
	r.data = nil
	r.pos = 0
	bytesReaderPool.Put(r)
}
