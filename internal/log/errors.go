package log

import "errors"

// Error kinds surfaced by the index and its callers (spec.md §7).
var (
	// ErrInvalidOffset is returned by Append when the offset does not
	// strictly increase over lastOffset.
	ErrInvalidOffset = errors.New("offset must be strictly greater than the last appended offset")

	// ErrOffsetOverflow is returned when an absolute offset does not
	// fit in the index's 32-bit relative range.
	ErrOffsetOverflow = errors.New("offset exceeds the relative range of this segment")

	// ErrIndexFull is returned by Append when the index has no more
	// slots available.
	ErrIndexFull = errors.New("index is full")

	// ErrCorruptIndex is returned by SanityCheck when the on-disk
	// layout violates a structural invariant.
	ErrCorruptIndex = errors.New("index file is corrupt")

	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("index is closed")

	// ErrNotWritable is returned by mutating operations on a
	// read-only (sealed) index.
	ErrNotWritable = errors.New("index is not writable")

	// ErrIOFailure wraps an underlying file or mapping error from the
	// OS. Callers typically escalate rather than retry in place.
	ErrIOFailure = errors.New("index I/O failure")
)
