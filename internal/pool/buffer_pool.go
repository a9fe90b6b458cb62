package pool

import "sync"

// defaultBufferCap covers a full RTSI data frame for large output recipes.
const defaultBufferCap = 2048

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, defaultBufferCap)
		return &b
	},
}

// GetBuffer returns an empty byte slice with at least defaultBufferCap capacity.
// Return it with PutBuffer once the bytes have been written to the socket.
func GetBuffer() *[]byte {
	b, _ := bufferPool.Get().(*[]byte)
	*b = (*b)[:0]

	return b
}

// PutBuffer returns b to the pool. Oversized buffers are dropped so a single large frame does not pin memory.
func PutBuffer(b *[]byte) {
	if b == nil || cap(*b) > 64*1024 {
		return
	}
	bufferPool.Put(b)
}
