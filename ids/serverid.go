package ids

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/google/uuid"
)

// ServerID identifies the process that originated a marker. Only the low
// 48 bits are ever persisted (markers store it alongside a Tick in a
// 12-byte big-endian uuid field).
type ServerID uint64

const serverIDMask = (1 << 48) - 1

var (
	serverIDOnce sync.Once
	serverID     ServerID
)

// LocalServerID returns a ServerID stable for the lifetime of this process,
// derived once from a random UUID the first time it's requested. Unlike the
// C original, which derives a server id from the machine's primary network
// interface, this engine has no network layer to draw one from (§1
// Non-goals), so google/uuid's random generator supplies entropy instead;
// the low 48 bits are kept.
func LocalServerID() ServerID {
	serverIDOnce.Do(func() {
		id := uuid.New()
		serverID = ServerID(binary.BigEndian.Uint64(id[8:16]) & serverIDMask)
		if serverID == 0 {
			// Never hand out the reserved all-zero id; fall back to the pid.
			serverID = ServerID(uint64(os.Getpid()) & serverIDMask)
		}
	})
	return serverID
}
