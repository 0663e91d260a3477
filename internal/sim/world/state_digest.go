package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// stateDigest hashes everything that influences future ticks. Sessions and
// observers are excluded.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	h.Write([]byte(w.Grid().Digest()))
	digestWriteU64(h, &tmp, w.nextEntity)
	digestWriteU64(h, &tmp, w.nextJob)

	for _, id := range w.sortedEntityIDs() {
		e := w.entities[id]
		digestString(h, &tmp, e.ID)
		digestString(h, &tmp, e.Name)
		digestWriteI64(h, &tmp, int64(e.Pos.X))
		digestWriteI64(h, &tmp, int64(e.Pos.Y))
		digestWriteI64(h, &tmp, int64(e.Speed))
		digestString(h, &tmp, string(e.Mode))
		digestWriteU64(h, &tmp, e.planJob)
		h.Write([]byte{boolByte(e.lost)})

		if e.Path != nil {
			h.Write([]byte{1})
			digestWriteI64(h, &tmp, int64(e.Path.Target.X))
			digestWriteI64(h, &tmp, int64(e.Path.Target.Y))
			cells := e.Path.Waypoints.Slice()
			digestWriteU64(h, &tmp, uint64(len(cells)))
			for _, c := range cells {
				digestWriteI64(h, &tmp, int64(c.X))
				digestWriteI64(h, &tmp, int64(c.Y))
			}
		} else {
			h.Write([]byte{0})
		}
		if e.Follow != nil {
			h.Write([]byte{1})
			digestString(h, &tmp, string(e.Follow.LeaderID))
			digestWriteI64(h, &tmp, int64(e.Follow.Offset.X))
			digestWriteI64(h, &tmp, int64(e.Follow.Offset.Y))
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
