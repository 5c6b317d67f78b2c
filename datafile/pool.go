package datafile

import "vocbase/storage/pools"

// getMarkerBuffer returns a zero-length scratch buffer for encoding one
// marker's header+body, avoiding an allocation on every write for the
// common case of small document markers.
func getMarkerBuffer() *[]byte {
	return pools.GetByteSlice()
}

// putMarkerBuffer returns buf to the shared pool.
func putMarkerBuffer(b *[]byte) {
	pools.PutByteSlice(b)
}
