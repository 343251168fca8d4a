package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildOffsetBuf(entries [][2]uint32) []byte {
	buf := make([]byte, int64(len(entries))*offsetEntrySize)
	for n, e := range entries {
		writeOffsetEntry(buf, int64(n), e[0], e[1])
	}
	return buf
}

func TestLargestLowerBoundSlot_AcrossWarmColdSplit(t *testing.T) {
	var entries [][2]uint32
	for i := uint32(0); i < 4000; i++ {
		entries = append(entries, [2]uint32{i * 2, i})
	}
	buf := buildOffsetBuf(entries)
	caps := offsetCapabilities()

	cases := []struct {
		target int64
		want   int64
	}{
		{target: -1, want: -1},
		{target: 0, want: 0},
		{target: 5, want: 2},
		{target: int64(len(entries)-1) * 2, want: int64(len(entries) - 1)},
		{target: int64(len(entries)) * 1000, want: int64(len(entries) - 1)},
	}

	for _, tc := range cases {
		got := largestLowerBoundSlot(buf, int64(len(entries)), caps, keyMode, tc.target)
		require.Equal(t, tc.want, got, "target=%d", tc.target)
	}
}

func TestSmallestUpperBoundSlot_AcrossWarmColdSplit(t *testing.T) {
	var entries [][2]uint32
	for i := uint32(0); i < 4000; i++ {
		entries = append(entries, [2]uint32{i, i * 2})
	}
	buf := buildOffsetBuf(entries)
	caps := offsetCapabilities()

	cases := []struct {
		target int64
		want   int64
	}{
		{target: -1, want: 0},
		{target: 0, want: 0},
		{target: 5, want: 3},
		{target: int64(len(entries)-1) * 2, want: int64(len(entries) - 1)},
		{target: int64(len(entries)) * 1000, want: -1},
	}

	for _, tc := range cases {
		got := smallestUpperBoundSlot(buf, int64(len(entries)), caps, valueMode, tc.target)
		require.Equal(t, tc.want, got, "target=%d", tc.target)
	}
}

func TestLargestLowerBoundSlot_EmptyEntries(t *testing.T) {
	caps := offsetCapabilities()
	require.Equal(t, int64(-1), largestLowerBoundSlot(nil, 0, caps, keyMode, 0))
}
