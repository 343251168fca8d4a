package log

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// OffsetIndex maps absolute message offsets to physical byte
// positions within the segment paired by baseOffset (spec.md §§1-4).
// It is the one-writer, many-reader sparse offset index: a fixed-size
// memory-mapped array of (relativeOffset, position) pairs searched by
// the warm/cold binary search in search.go.
type OffsetIndex struct {
	mu sync.Mutex

	region     *region
	baseOffset int64
	lastOffset int64
	closed     bool

	log *zap.SugaredLogger
}

// indexSettings collects options shared by OffsetIndex and TimeIndex.
type indexSettings struct {
	log *zap.SugaredLogger
}

// IndexOption configures an OffsetIndex or TimeIndex at construction.
type IndexOption func(*indexSettings)

// WithLogger attaches a structured logger used for open, grow, seal
// (OffsetIndex only), and flush-failure events; SanityCheck does not
// log the corruption it reports. Nil-safe: an index without a logger
// simply does not log.
func WithLogger(l *zap.SugaredLogger) IndexOption {
	return func(s *indexSettings) { s.log = l }
}

func applyIndexOptions(opts []IndexOption) *indexSettings {
	s := &indexSettings{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenOffsetIndex opens (or creates, if writable) the index file for
// the given baseOffset. See spec.md §4.1 for the open semantics.
func OpenOffsetIndex(path string, baseOffset int64, maxIndexSize int64, writable bool, opts ...IndexOption) (*OffsetIndex, error) {
	settings := applyIndexOptions(opts)
	idx := &OffsetIndex{baseOffset: baseOffset, log: settings.log}

	r, err := openRegion(path, maxIndexSize, writable, offsetCapabilities(), idx.log)
	if err != nil {
		return nil, err
	}
	idx.region = r

	idx.lastOffset = baseOffset
	if r.entries > 0 {
		relOffset, _ := readOffsetEntry(r.snapshot(), r.entries-1)
		idx.lastOffset = baseOffset + int64(relOffset)
	}

	return idx, nil
}

// maxEntries returns how many slots the backing file can hold.
func (idx *OffsetIndex) maxEntries() int64 {
	return idx.region.maxBytes / offsetEntrySize
}

// Grow extends the backing file's capacity to newMaxBytes rounded down
// to a whole number of entries, the File-backed region manager's
// Resize(newLength) operation from spec.md §4.1. Its caller is the
// indexctl grow command; segment.go does not grow an open index.
func (idx *OffsetIndex) Grow(newMaxBytes int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	if !idx.region.writable {
		return ErrNotWritable
	}

	target := roundDownToMultiple(newMaxBytes, offsetEntrySize)
	if target <= idx.region.maxBytes {
		return fmt.Errorf("grow target %d not larger than current capacity %d bytes", newMaxBytes, idx.region.maxBytes)
	}

	if err := idx.region.resize(target); err != nil {
		return err
	}

	if idx.log != nil {
		idx.log.Debugw("grew index", "path", idx.region.path, "maxBytes", target)
	}

	return nil
}

// Entries returns the current logical entry count.
func (idx *OffsetIndex) Entries() int64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.region.entries
}

// BaseOffset returns the index's base offset.
func (idx *OffsetIndex) BaseOffset() int64 { return idx.baseOffset }

// LastOffset returns the absolute offset of the last appended entry,
// or baseOffset if the index is empty.
func (idx *OffsetIndex) LastOffset() int64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.lastOffset
}

// Append writes a new (offset, position) entry. offset must strictly
// exceed the last appended offset (spec.md §4.4).
func (idx *OffsetIndex) Append(offset, position int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	if !idx.region.writable {
		return ErrNotWritable
	}
	if idx.region.entries >= idx.maxEntries() {
		return ErrIndexFull
	}
	if idx.region.entries != 0 && offset <= idx.lastOffset {
		return fmt.Errorf("append offset %d: %w", offset, ErrInvalidOffset)
	}

	relOffset := offset - idx.baseOffset
	if relOffset < 0 || relOffset >= 1<<32 {
		return fmt.Errorf("append offset %d (base %d): %w", offset, idx.baseOffset, ErrOffsetOverflow)
	}
	if position < 0 || position >= 1<<32 {
		return fmt.Errorf("append position %d: %w", position, ErrOffsetOverflow)
	}

	writeOffsetEntry(idx.region.mmap, idx.region.entries, uint32(relOffset), uint32(position))
	idx.region.entries++
	idx.region.cursor = idx.region.entries * offsetEntrySize
	idx.lastOffset = offset

	idx.region.adviseWarm()

	return nil
}

// Entry returns the absolute (offset, position) pair at slot n.
func (idx *OffsetIndex) Entry(n int64) (offset, position int64, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return 0, 0, ErrClosed
	}
	if n < 0 || n >= idx.region.entries {
		return 0, 0, fmt.Errorf("slot %d out of range [0,%d)", n, idx.region.entries)
	}

	relOffset, pos := readOffsetEntry(idx.region.snapshot(), n)
	return idx.baseOffset + int64(relOffset), int64(pos), nil
}

// Lookup returns the entry at the largest slot whose offset is <=
// targetOffset, or (baseOffset, 0) if no such entry exists (spec.md
// §4.4 "lookup").
func (idx *OffsetIndex) Lookup(targetOffset int64) (offset, position int64, err error) {
	buf, entries, base, closed := idx.readSnapshot()
	if closed {
		return 0, 0, ErrClosed
	}

	caps := offsetCapabilities()
	relTarget := targetOffset - base
	slot := largestLowerBoundSlot(buf, entries, caps, keyMode, relTarget)
	if slot < 0 {
		return base, 0, nil
	}

	relOffset, pos := readOffsetEntry(buf, slot)
	return base + int64(relOffset), int64(pos), nil
}

// FetchUpperBoundOffset computes targetPosition = start.position +
// fetchSize and returns the entry at the smallest slot whose position
// is >= targetPosition, or ok=false if none (spec.md §4.4).
func (idx *OffsetIndex) FetchUpperBoundOffset(startOffset, startPosition, fetchSize int64) (offset, position int64, ok bool, err error) {
	buf, entries, base, closed := idx.readSnapshot()
	if closed {
		return 0, 0, false, ErrClosed
	}

	targetPosition := startPosition + fetchSize
	caps := offsetCapabilities()
	slot := smallestUpperBoundSlot(buf, entries, caps, valueMode, targetPosition)
	if slot < 0 {
		return 0, 0, false, nil
	}

	relOffset, pos := readOffsetEntry(buf, slot)
	return base + int64(relOffset), int64(pos), true, nil
}

// readSnapshot takes the lock only while the index is writable
// (spec.md §5): a sealed index's mapping and bookkeeping are
// immutable, so lookups may run lock-free against it.
func (idx *OffsetIndex) readSnapshot() (buf []byte, entries, base int64, closed bool) {
	if !idx.region.writable {
		if idx.closed {
			return nil, 0, 0, true
		}
		return idx.region.snapshot(), idx.region.entries, idx.baseOffset, false
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil, 0, 0, true
	}
	return idx.region.snapshot(), idx.region.entries, idx.baseOffset, false
}

// Truncate removes all entries.
func (idx *OffsetIndex) Truncate() error {
	return idx.TruncateTo(idx.baseOffset)
}

// TruncateTo removes entries with absolute offset >= offset (spec.md
// §4.4 "truncateTo").
func (idx *OffsetIndex) TruncateTo(offset int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	if !idx.region.writable {
		return ErrNotWritable
	}

	buf := idx.region.snapshot()
	caps := offsetCapabilities()
	relOffset := offset - idx.baseOffset

	slot := largestLowerBoundSlot(buf, idx.region.entries, caps, keyMode, relOffset)

	var newEntries int64
	switch {
	case slot < 0:
		newEntries = 0
	default:
		key := caps.keyAt(buf, slot)
		if key == relOffset {
			newEntries = slot
		} else {
			newEntries = slot + 1
		}
	}

	idx.region.entries = newEntries
	idx.region.cursor = newEntries * offsetEntrySize

	if newEntries == 0 {
		idx.lastOffset = idx.baseOffset
	} else {
		relLast, _ := readOffsetEntry(buf, newEntries-1)
		idx.lastOffset = idx.baseOffset + int64(relLast)
	}

	return nil
}

// SanityCheck reports structural corruption (spec.md §4.4).
func (idx *OffsetIndex) SanityCheck() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}

	if idx.region.maxBytes%offsetEntrySize != 0 {
		return fmt.Errorf("index length %d not a multiple of %d: %w", idx.region.maxBytes, offsetEntrySize, ErrCorruptIndex)
	}
	if idx.region.entries > 0 && idx.lastOffset < idx.baseOffset {
		return fmt.Errorf("lastOffset %d < baseOffset %d: %w", idx.lastOffset, idx.baseOffset, ErrCorruptIndex)
	}

	buf := idx.region.snapshot()
	var prevOffset int64 = -1
	for n := int64(0); n < idx.region.entries; n++ {
		relOffset, _ := readOffsetEntry(buf, n)
		abs := idx.baseOffset + int64(relOffset)
		if n > 0 && abs <= prevOffset {
			return fmt.Errorf("entry %d non-monotonic: %w", n, ErrCorruptIndex)
		}
		prevOffset = abs
	}

	return nil
}

// MakeReadOnly seals the index: flush, trim to entries*entrySize,
// remap read-only (spec.md §4.1/§4.4).
func (idx *OffsetIndex) MakeReadOnly() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}

	if err := idx.region.makeReadOnly(); err != nil {
		return err
	}

	if idx.log != nil {
		idx.log.Debugw("sealed index", "path", idx.region.path, "entries", idx.region.entries)
	}

	return nil
}

// Flush forces dirty pages of the mapping to disk.
func (idx *OffsetIndex) Flush() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	return idx.region.flush()
}

// Close releases the index's resources. Idempotent.
func (idx *OffsetIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.region.close()
}

// Name returns the index's backing file path.
func (idx *OffsetIndex) Name() string {
	return idx.region.path
}
