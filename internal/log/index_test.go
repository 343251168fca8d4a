package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, baseOffset int64) *OffsetIndex {
	t.Helper()
	path := filepath.Join(t.TempDir(), "00000000000000000050.index")
	idx, err := OpenOffsetIndex(path, baseOffset, 1024, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

// Scenario 1: empty index.
func TestOffsetIndex_EmptyIndex(t *testing.T) {
	idx := newTestIndex(t, 50)

	offset, pos, err := idx.Lookup(100)
	require.NoError(t, err)
	require.Equal(t, int64(50), offset)
	require.Equal(t, int64(0), pos)

	_, _, ok, err := idx.FetchUpperBoundOffset(50, 0, 1024)
	require.NoError(t, err)
	require.False(t, ok)
}

// Scenario 2: single append.
func TestOffsetIndex_SingleAppend(t *testing.T) {
	idx := newTestIndex(t, 50)

	require.NoError(t, idx.Append(55, 128))

	offset, pos, err := idx.Lookup(55)
	require.NoError(t, err)
	require.Equal(t, int64(55), offset)
	require.Equal(t, int64(128), pos)

	offset, pos, err = idx.Lookup(60)
	require.NoError(t, err)
	require.Equal(t, int64(55), offset)
	require.Equal(t, int64(128), pos)

	offset, pos, err = idx.Lookup(54)
	require.NoError(t, err)
	require.Equal(t, int64(50), offset)
	require.Equal(t, int64(0), pos)
}

func appendScenario3(t *testing.T, idx *OffsetIndex) {
	t.Helper()
	require.NoError(t, idx.Append(55, 0))
	require.NoError(t, idx.Append(70, 4096))
	require.NoError(t, idx.Append(95, 8192))
}

// Scenario 3: monotonic growth.
func TestOffsetIndex_MonotonicGrowth(t *testing.T) {
	idx := newTestIndex(t, 50)
	appendScenario3(t, idx)

	offset, pos, err := idx.Lookup(80)
	require.NoError(t, err)
	require.Equal(t, int64(70), offset)
	require.Equal(t, int64(4096), pos)

	offset, pos, err = idx.Lookup(95)
	require.NoError(t, err)
	require.Equal(t, int64(95), offset)
	require.Equal(t, int64(8192), pos)

	offset, pos, err = idx.Lookup(200)
	require.NoError(t, err)
	require.Equal(t, int64(95), offset)
	require.Equal(t, int64(8192), pos)
}

// Scenario 4: invalid append leaves state unchanged.
func TestOffsetIndex_InvalidAppend(t *testing.T) {
	idx := newTestIndex(t, 50)
	appendScenario3(t, idx)

	err := idx.Append(70, 12000)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidOffset))

	require.Equal(t, int64(3), idx.Entries())
	require.Equal(t, int64(95), idx.LastOffset())
}

// Scenario 5: truncateTo exact hit.
func TestOffsetIndex_TruncateToExactHit(t *testing.T) {
	idx := newTestIndex(t, 50)
	appendScenario3(t, idx)

	require.NoError(t, idx.TruncateTo(70))
	require.Equal(t, int64(1), idx.Entries())
	require.Equal(t, int64(55), idx.LastOffset())

	offset, pos, err := idx.Lookup(90)
	require.NoError(t, err)
	require.Equal(t, int64(55), offset)
	require.Equal(t, int64(0), pos)
}

// Scenario 6: truncateTo miss between entries.
func TestOffsetIndex_TruncateToMiss(t *testing.T) {
	idx := newTestIndex(t, 50)
	appendScenario3(t, idx)

	require.NoError(t, idx.TruncateTo(80))
	require.Equal(t, int64(2), idx.Entries())
	require.Equal(t, int64(70), idx.LastOffset())
}

// Scenario 7: seal round-trip.
func TestOffsetIndex_SealRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00000000000000000050.index")
	idx, err := OpenOffsetIndex(path, 50, 1024, true)
	require.NoError(t, err)
	appendScenario3(t, idx)

	require.NoError(t, idx.MakeReadOnly())
	require.NoError(t, idx.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(24), fi.Size())

	reopened, err := OpenOffsetIndex(path, 50, 1024, false)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, int64(3), reopened.Entries())

	offset, pos, err := reopened.Lookup(72)
	require.NoError(t, err)
	require.Equal(t, int64(70), offset)
	require.Equal(t, int64(4096), pos)
}

// Scenario 8: overflow.
func TestOffsetIndex_Overflow(t *testing.T) {
	idx := newTestIndex(t, 0)

	err := idx.Append(1<<32, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrOffsetOverflow))
}

// Scenario 9: corrupt length.
func TestOffsetIndex_CorruptLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00000000000000000000.index")
	require.NoError(t, os.WriteFile(path, make([]byte, 13), 0644))

	idx, err := OpenOffsetIndex(path, 0, 13, false)
	require.NoError(t, err)
	defer idx.Close()

	err = idx.SanityCheck()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCorruptIndex))
}

func TestOffsetIndex_IndexFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00000000000000000000.index")
	idx, err := OpenOffsetIndex(path, 0, offsetEntrySize, true)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Append(1, 0))
	err = idx.Append(2, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIndexFull))
}

func TestOffsetIndex_ClosedOperationsFail(t *testing.T) {
	idx := newTestIndex(t, 50)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close()) // idempotent

	_, _, err := idx.Lookup(50)
	require.True(t, errors.Is(err, ErrClosed))

	err = idx.Append(51, 0)
	require.True(t, errors.Is(err, ErrClosed))
}

func TestOffsetIndex_TruncateAllThenAppend(t *testing.T) {
	idx := newTestIndex(t, 50)
	appendScenario3(t, idx)

	require.NoError(t, idx.Truncate())
	require.Equal(t, int64(0), idx.Entries())
	require.Equal(t, int64(50), idx.LastOffset())

	require.NoError(t, idx.Append(51, 16))
	offset, pos, err := idx.Lookup(51)
	require.NoError(t, err)
	require.Equal(t, int64(51), offset)
	require.Equal(t, int64(16), pos)
}

// Scenario 10: Grow extends capacity of an already-open writable index
// without disturbing existing entries, and rejects non-growing targets.
func TestOffsetIndex_Grow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "00000000000000000050.index")
	idx, err := OpenOffsetIndex(path, 50, offsetEntrySize*2, true)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Append(50, 0))
	require.NoError(t, idx.Append(51, 16))

	err = idx.Append(52, 32)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIndexFull))

	require.NoError(t, idx.Grow(offsetEntrySize*4))

	require.NoError(t, idx.Append(52, 32))
	require.Equal(t, int64(3), idx.Entries())

	offset, pos, err := idx.Lookup(51)
	require.NoError(t, err)
	require.Equal(t, int64(51), offset)
	require.Equal(t, int64(16), pos)

	err = idx.Grow(offsetEntrySize * 4)
	require.Error(t, err)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(offsetEntrySize*4), fi.Size())
}

// P4: truncateTo idempotence.
func TestOffsetIndex_TruncateToIdempotent(t *testing.T) {
	idx := newTestIndex(t, 50)
	appendScenario3(t, idx)

	require.NoError(t, idx.TruncateTo(70))
	entriesAfterFirst := idx.Entries()
	lastAfterFirst := idx.LastOffset()

	require.NoError(t, idx.TruncateTo(70))
	require.Equal(t, entriesAfterFirst, idx.Entries())
	require.Equal(t, lastAfterFirst, idx.LastOffset())
}
