// Package pools provides process-wide sync.Pool-backed reuse for the
// small, high-frequency allocations the storage engine's hot paths would
// otherwise repeat on every call: a scratch byte slice per marker write,
// a scratch string builder per accessor-path lookup.
package pools

import (
	"strings"
	"sync"
)

// ByteSlicePool provides reusable byte slices for short-lived encode
// scratch space.
var ByteSlicePool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 4096)
		return &b
	},
}

// GetByteSlice gets a zero-length byte slice from the pool.
func GetByteSlice() *[]byte {
	b := ByteSlicePool.Get().(*[]byte)
	*b = (*b)[:0]
	return b
}

// PutByteSlice returns a byte slice to the pool. Slices that grew past 1MB
// are dropped rather than pooled, so one oversized caller doesn't
// permanently inflate the pool's steady-state footprint.
func PutByteSlice(b *[]byte) {
	if cap(*b) > 1024*1024 {
		return
	}
	ByteSlicePool.Put(b)
}

// StringBuilderPool provides reusable strings.Builder values.
var StringBuilderPool = sync.Pool{
	New: func() interface{} {
		return new(strings.Builder)
	},
}

// GetStringBuilder gets a reset string builder from the pool.
func GetStringBuilder() *strings.Builder {
	sb := StringBuilderPool.Get().(*strings.Builder)
	sb.Reset()
	return sb
}

// PutStringBuilder returns a string builder to the pool.
func PutStringBuilder(sb *strings.Builder) {
	StringBuilderPool.Put(sb)
}
