package log

import (
	"fmt"
	"os"

	"github.com/tysonmote/gommap"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// warmBytes is the size of the tail kept preferentially cache-hot by
// the search engine (spec.md §4.3). Region advises the OS to keep it
// resident via madvise(MADV_WILLNEED) after every remap.
const warmBytes = 8192

// region owns a single memory-mapped file and presents the byte
// region the codec and search engine operate over. It carries no
// knowledge of offsets, timestamps, or entries beyond their fixed
// width; OffsetIndex and TimeIndex share this implementation
// (spec.md §9's polymorphism note).
type region struct {
	path      string
	caps      capabilities
	maxBytes  int64
	writable  bool
	file      *os.File
	mmap      gommap.MMap
	entries   int64 // logical entry count, spec.md §3
	cursor    int64 // write cursor, invariant I4: cursor == entries*entrySize while writable
	log       *zap.SugaredLogger
}

// openRegion opens or creates the backing file and maps it.
// Pre-allocation and open-time entry inference follow spec.md §4.1/§7.
func openRegion(path string, maxBytes int64, writable bool, caps capabilities, logger *zap.SugaredLogger) (*region, error) {
	r := &region{
		path:     path,
		caps:     caps,
		maxBytes: maxBytes,
		writable: writable,
		log:      logger,
	}

	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR | os.O_CREATE
	}

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w: %w", ErrIOFailure, err)
	}
	r.file = f

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat index file: %w: %w", ErrIOFailure, err)
	}

	fileLength := fi.Size()
	if writable {
		target := roundDownToMultiple(maxBytes, caps.entrySize)
		// Grow a fresh or undersized writable file to its configured
		// capacity (spec.md §3: "grown to it on open if smaller").
		// A file whose existing length is not a multiple of entrySize
		// is left untouched here; that is a corruption signal for
		// SanityCheck, not something Open silently repairs.
		if fileLength == 0 || (fileLength%caps.entrySize == 0 && fileLength < target) {
			if err := f.Truncate(target); err != nil {
				f.Close()
				return nil, fmt.Errorf("preallocate index file: %w: %w", ErrIOFailure, err)
			}
			fileLength = target
		}
	}
	r.maxBytes = fileLength

	prot := gommap.PROT_READ
	if writable {
		prot |= gommap.PROT_WRITE
	}

	m, err := gommap.Map(f.Fd(), prot, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap index file: %w: %w", ErrIOFailure, err)
	}
	r.mmap = m

	maxSlot := fileLength / caps.entrySize
	if writable {
		// A writable region's file may be pre-allocated larger than its
		// live content, so the tail has to be inferred (spec.md §7).
		r.entries = inferEntries(m, caps, maxSlot)
	} else {
		// A read-only region's length is authoritative: Seal always
		// trims the file to exactly entries*entrySize, so there is no
		// pre-allocated tail left to disambiguate. Trusting maxSlot
		// directly also sidesteps the slot-0-all-zero ambiguity for a
		// segment's very first entry (relative offset 0 at position 0),
		// which inferEntries cannot otherwise tell apart from an
		// unwritten slot.
		r.entries = maxSlot
	}
	r.cursor = r.entries * caps.entrySize

	r.adviseWarm()

	if r.log != nil {
		r.log.Debugw("opened index region", "path", path, "fileLength", fileLength, "entries", r.entries, "writable", writable)
	}

	return r, nil
}

// inferEntries implements the §7 open-time inference rule: the
// longest strictly-increasing prefix of keys starting at slot 0,
// treating an all-zero slot 0 as the pre-allocation sentinel when no
// later slot follows it (the §9 Open Question resolution).
func inferEntries(buf []byte, caps capabilities, maxSlot int64) int64 {
	if maxSlot <= 0 {
		return 0
	}

	var prevKey int64
	var count int64

	for n := int64(0); n < maxSlot; n++ {
		key := caps.keyAt(buf, n)
		if n > 0 && key <= prevKey {
			break
		}
		prevKey = key
		count++
	}

	// A lone slot-0 entry whose key and value are both zero is
	// indistinguishable from unwritten pre-allocation padding; treat it
	// as empty. Any entry beyond slot 0 corroborates that slot 0 was
	// actually written, since appends are strictly sequential — so
	// this downgrade only fires when nothing else proves otherwise.
	if count == 1 && prevKey == 0 && caps.valueAt(buf, 0) == 0 {
		return 0
	}

	return count
}

func roundDownToMultiple(n, k int64) int64 {
	return (n / k) * k
}

// snapshot returns the live prefix of the mapping as of the call,
// suitable for a search that must not be perturbed by a concurrent
// append (spec.md §4.3/§5). Callers hold the region's lock (or rely
// on the index being sealed) before calling this.
func (r *region) snapshot() []byte {
	return r.mmap[:r.entries*r.caps.entrySize]
}

// resize grows a writable region's backing file to newLength (a
// multiple of entrySize) and remaps it writable. It is the File-backed
// region manager's Resize(newLength) operation (spec.md §4.1), called
// by OffsetIndex.Grow/TimeIndex.Grow to enlarge an already-open
// writable index.
func (r *region) resize(newLength int64) error {
	if !r.writable {
		return ErrNotWritable
	}
	return r.remap(newLength, true)
}

// remap is the shared flush/unmap/truncate/map sequence behind both
// resize (writable growth) and makeReadOnly (seal). writable selects
// the mapping's protection flags and which of entries*entrySize vs.
// newLength becomes the resulting write cursor.
func (r *region) remap(newLength int64, writable bool) error {
	if err := r.flush(); err != nil {
		return err
	}

	if err := r.mmap.UnsafeUnmap(); err != nil {
		return fmt.Errorf("unmap index file: %w: %w", ErrIOFailure, err)
	}

	if err := r.file.Truncate(newLength); err != nil {
		return fmt.Errorf("resize index file: %w: %w", ErrIOFailure, err)
	}

	prot := gommap.PROT_READ
	if writable {
		prot |= gommap.PROT_WRITE
	}
	m, err := gommap.Map(r.file.Fd(), prot, gommap.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("remap index file: %w: %w", ErrIOFailure, err)
	}

	r.mmap = m
	r.maxBytes = newLength
	if writable {
		r.cursor = r.entries * r.caps.entrySize
	} else {
		r.cursor = newLength
	}
	r.adviseWarm()

	return nil
}

// flush forces dirty pages to disk. Best-effort: failure is logged,
// not fatal (spec.md §4.1).
func (r *region) flush() error {
	if r.mmap == nil {
		return nil
	}
	if err := r.mmap.Sync(gommap.MS_SYNC); err != nil {
		if r.log != nil {
			r.log.Warnw("index flush failed", "path", r.path, "error", err)
		}
		return nil
	}
	return nil
}

// makeReadOnly flushes, trims the file to entries*entrySize, remaps
// read-only, and transitions writable = false (spec.md I5).
func (r *region) makeReadOnly() error {
	if !r.writable {
		return nil
	}

	trimmed := r.entries * r.caps.entrySize
	if err := r.remap(trimmed, false); err != nil {
		return err
	}

	r.writable = false
	return nil
}

// close flushes (if writable), unmaps, and releases the file handle.
// Idempotent.
func (r *region) close() error {
	if r.file == nil {
		return nil
	}

	if r.writable {
		if err := r.makeReadOnly(); err != nil {
			return err
		}
	}

	if r.mmap != nil {
		if err := r.mmap.UnsafeUnmap(); err != nil {
			return fmt.Errorf("unmap index file: %w: %w", ErrIOFailure, err)
		}
		r.mmap = nil
	}

	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("close index file: %w: %w", ErrIOFailure, err)
	}
	return nil
}

// adviseWarm hints the OS to keep the hot tail of the index resident.
// Best-effort; failure is logged, never fatal.
func (r *region) adviseWarm() {
	end := r.entries * r.caps.entrySize
	if len(r.mmap) == 0 || end == 0 {
		return
	}

	start := end - warmBytes
	if start < 0 {
		start = 0
	}
	// madvise needs a page-aligned start address.
	start -= start % int64(os.Getpagesize())

	if err := unix.Madvise(r.mmap[start:end], unix.MADV_WILLNEED); err != nil && r.log != nil {
		r.log.Debugw("madvise hint failed", "path", r.path, "error", err)
	}
}
