package log

import "encoding/binary"

// capabilities fixes the fixed-size layout that region.go and
// search.go are parameterized over, per spec.md §9's polymorphism
// note: the region manager and search engine are pure byte-region and
// comparator machinery, shared by OffsetIndex and TimeIndex.
type capabilities struct {
	// entrySize is the fixed byte width of one entry.
	entrySize int64

	// keyAt reads the comparator key out of slot n of buf (KEY mode).
	keyAt func(buf []byte, n int64) int64

	// valueAt reads the secondary field out of slot n of buf (VALUE
	// mode). OffsetIndex uses this for fetchUpperBoundOffset; region.go's
	// open-time inference also reads slot 0's value for both index kinds.
	valueAt func(buf []byte, n int64) int64
}

const (
	offsetEntrySize = 8 // 4-byte relative offset + 4-byte position
	offRelWidth     = 4
	offPosWidth     = 4

	timeEntrySize = 12 // 8-byte timestamp + 4-byte relative offset
	timeKeyWidth  = 8
	timeValWidth  = 4
)

func offsetSlotStart(n int64) int64 { return n * offsetEntrySize }

func offsetCapabilities() capabilities {
	return capabilities{
		entrySize: offsetEntrySize,
		keyAt: func(buf []byte, n int64) int64 {
			off := offsetSlotStart(n)
			return int64(binary.BigEndian.Uint32(buf[off : off+offRelWidth]))
		},
		valueAt: func(buf []byte, n int64) int64 {
			off := offsetSlotStart(n)
			return int64(binary.BigEndian.Uint32(buf[off+offRelWidth : off+offsetEntrySize]))
		},
	}
}

// readOffsetEntry decodes the relative offset and position at slot n.
func readOffsetEntry(buf []byte, n int64) (relOffset uint32, position uint32) {
	off := offsetSlotStart(n)
	relOffset = binary.BigEndian.Uint32(buf[off : off+offRelWidth])
	position = binary.BigEndian.Uint32(buf[off+offRelWidth : off+offsetEntrySize])
	return relOffset, position
}

// writeOffsetEntry encodes (relOffset, position) at slot n of buf.
func writeOffsetEntry(buf []byte, n int64, relOffset, position uint32) {
	off := offsetSlotStart(n)
	binary.BigEndian.PutUint32(buf[off:off+offRelWidth], relOffset)
	binary.BigEndian.PutUint32(buf[off+offRelWidth:off+offsetEntrySize], position)
}

func timeSlotStart(n int64) int64 { return n * timeEntrySize }

func timeCapabilities() capabilities {
	return capabilities{
		entrySize: timeEntrySize,
		keyAt: func(buf []byte, n int64) int64 {
			off := timeSlotStart(n)
			return int64(binary.BigEndian.Uint64(buf[off : off+timeKeyWidth]))
		},
		valueAt: func(buf []byte, n int64) int64 {
			off := timeSlotStart(n)
			return int64(binary.BigEndian.Uint32(buf[off+timeKeyWidth : off+timeEntrySize]))
		},
	}
}

// readTimeEntry decodes the timestamp (stored as-is) and relative offset at slot n.
func readTimeEntry(buf []byte, n int64) (relTimestamp uint64, relOffset uint32) {
	off := timeSlotStart(n)
	relTimestamp = binary.BigEndian.Uint64(buf[off : off+timeKeyWidth])
	relOffset = binary.BigEndian.Uint32(buf[off+timeKeyWidth : off+timeEntrySize])
	return relTimestamp, relOffset
}

// writeTimeEntry encodes (relTimestamp, relOffset) at slot n of buf.
func writeTimeEntry(buf []byte, n int64, relTimestamp uint64, relOffset uint32) {
	off := timeSlotStart(n)
	binary.BigEndian.PutUint64(buf[off:off+timeKeyWidth], relTimestamp)
	binary.BigEndian.PutUint32(buf[off+timeKeyWidth:off+timeEntrySize], relOffset)
}
