package log

// searchMode selects which accessor of capabilities the search
// engine compares against: the entry's key (spec.md's KEY mode) or
// its secondary value field (VALUE mode).
type searchMode int

const (
	keyMode searchMode = iota
	valueMode
)

func (caps capabilities) accessor(mode searchMode) func(buf []byte, n int64) int64 {
	if mode == valueMode {
		return caps.valueAt
	}
	return caps.keyAt
}

// largestLowerBoundSlot returns the greatest slot i with
// accessor(i) <= target, or -1 if none exists (spec.md §4.3).
//
// The search splits the live prefix into a warm tail and a cold head
// to keep the steady-state fetch workload's working set small; this
// never changes the result, only the access pattern.
func largestLowerBoundSlot(buf []byte, entries int64, caps capabilities, mode searchMode, target int64) int64 {
	if entries == 0 {
		return -1
	}

	key := caps.accessor(mode)

	if key(buf, entries-1) <= target {
		return entries - 1
	}
	if key(buf, 0) > target {
		return -1
	}

	warmSlots := entries
	if warmBytes/caps.entrySize < entries {
		warmSlots = warmBytes / caps.entrySize
	}
	coldEntries := entries - warmSlots

	if coldEntries > 0 && key(buf, coldEntries) > target {
		// target falls in the cold region.
		return lowerBoundBinarySearch(buf, 0, coldEntries, key, target)
	}

	return lowerBoundBinarySearch(buf, coldEntries, entries, key, target)
}

// lowerBoundBinarySearch returns the greatest slot in [lo, hi) whose
// key is <= target. Callers guarantee key(lo) <= target.
func lowerBoundBinarySearch(buf []byte, lo, hi int64, key func([]byte, int64) int64, target int64) int64 {
	result := lo
	for lo < hi {
		mid := lo + (hi-lo)/2
		if key(buf, mid) <= target {
			result = mid
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return result
}

// smallestUpperBoundSlot returns the least slot i with
// accessor(i) >= target, or -1 if none exists (spec.md §4.3).
func smallestUpperBoundSlot(buf []byte, entries int64, caps capabilities, mode searchMode, target int64) int64 {
	if entries == 0 {
		return -1
	}

	key := caps.accessor(mode)

	if key(buf, 0) >= target {
		return 0
	}
	if key(buf, entries-1) < target {
		return -1
	}

	warmSlots := entries
	if warmBytes/caps.entrySize < entries {
		warmSlots = warmBytes / caps.entrySize
	}
	coldEntries := entries - warmSlots

	if coldEntries > 0 && key(buf, coldEntries-1) >= target {
		return upperBoundBinarySearch(buf, 0, coldEntries, key, target)
	}

	return upperBoundBinarySearch(buf, coldEntries, entries, key, target)
}

// upperBoundBinarySearch returns the least slot in [lo, hi) whose key
// is >= target. Callers guarantee key(hi-1) >= target.
func upperBoundBinarySearch(buf []byte, lo, hi int64, key func([]byte, int64) int64, target int64) int64 {
	result := hi - 1
	for lo < hi {
		mid := lo + (hi-lo)/2
		if key(buf, mid) >= target {
			result = mid
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return result
}
