// Package snifftest builds minimal binary fixtures for format inspection tests.
package snifftest

import (
	"encoding/binary"
)

const (
	itsfLen   = 0x60
	itspLen   = 0x54
	chunkSize = 0x1000
)

// BuildCHM returns a single-chunk CHM archive listing the given entry names.
func BuildCHM(names ...string) []byte {
	var entries []byte
	for _, name := range names {
		entries = appendEncInt(entries, uint64(len(name)))
		entries = append(entries, name...)
		entries = appendEncInt(entries, 0) // section
		entries = appendEncInt(entries, 0) // offset
		entries = appendEncInt(entries, 0) // length
	}
	if 0x14+len(entries) > chunkSize {
		panic("snifftest: too many chm entries for one chunk")
	}

	out := make([]byte, itsfLen+itspLen+chunkSize)
	le := binary.LittleEndian

	itsf := out[:itsfLen]
	copy(itsf, "ITSF")
	le.PutUint32(itsf[0x04:], 3)
	le.PutUint32(itsf[0x08:], itsfLen)
	le.PutUint32(itsf[0x0C:], 1)
	le.PutUint64(itsf[0x48:], itsfLen)
	le.PutUint64(itsf[0x50:], itspLen+chunkSize)
	le.PutUint64(itsf[0x58:], uint64(len(out)))

	itsp := out[itsfLen : itsfLen+itspLen]
	copy(itsp, "ITSP")
	le.PutUint32(itsp[0x04:], 1)
	le.PutUint32(itsp[0x08:], itspLen)
	le.PutUint32(itsp[0x0C:], 0x0a)
	le.PutUint32(itsp[0x10:], chunkSize)
	le.PutUint32(itsp[0x14:], 2)
	le.PutUint32(itsp[0x18:], 1)
	le.PutUint32(itsp[0x1C:], 0xFFFFFFFF)
	le.PutUint32(itsp[0x20:], 0)
	le.PutUint32(itsp[0x24:], 0)
	le.PutUint32(itsp[0x28:], 0xFFFFFFFF)
	le.PutUint32(itsp[0x2C:], 1)

	chunk := out[itsfLen+itspLen:]
	copy(chunk, "PMGL")
	le.PutUint32(chunk[0x04:], uint32(chunkSize-0x14-len(entries)))
	le.PutUint32(chunk[0x0C:], 0xFFFFFFFF)
	le.PutUint32(chunk[0x10:], 0xFFFFFFFF)
	copy(chunk[0x14:], entries)
	return out
}

func appendEncInt(b []byte, v uint64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7F)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7F) | 0x80
	}
	return append(b, tmp[i:]...)
}
