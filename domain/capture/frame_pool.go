package capture

import "sync"

// Reusable byte pool backing committed frames. Readback copies each mapped
// staging buffer into a pooled slice so the staging slot can go back to the
// GPU immediately; when the frame is finally freed (evicted and unpinned) its
// slice returns here. At a steady capture size this keeps the ring from
// allocating a fresh multi-megabyte slice per frame.
//
// Slices larger than maxPooledFrameBytes are never pooled.

const maxPooledFrameBytes = 64 << 20

var framePool sync.Pool // stores *[]byte

// acquireBuffer returns a slice of exactly n bytes. Contents are undefined.
func acquireBuffer(n int) []byte {
	if n <= 0 {
		return nil
	}
	if v := framePool.Get(); v != nil {
		bp := v.(*[]byte)
		if cap(*bp) >= n {
			return (*bp)[:n]
		}
	}
	return make([]byte, n)
}

// recycleBuffer returns b to the pool. The caller must not touch b afterwards.
func recycleBuffer(b []byte) {
	if b == nil || cap(b) > maxPooledFrameBytes {
		return
	}
	b = b[:0]
	framePool.Put(&b)
}
