package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSegmentConfig() Config {
	cfg := DefaultConfig()
	cfg.Segment.MaxStoreBytes = 1024
	cfg.Segment.MaxIndexBytes = offsetEntrySize * 3
	cfg.Segment.MaxTimeIndexBytes = timeEntrySize * 3
	return cfg
}

func TestSegment_AppendRead(t *testing.T) {
	dir := t.TempDir()
	c := testSegmentConfig()

	s, err := newSegment(dir, 16, c, nil)
	require.NoError(t, err)
	defer s.Close()

	offset, err := s.Append([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, int64(16), offset)

	value, err := s.Read(offset)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(value))

	offset, err = s.Append([]byte("second record"))
	require.NoError(t, err)
	require.Equal(t, int64(17), offset)
}

func TestSegment_IsMaxed(t *testing.T) {
	dir := t.TempDir()
	c := testSegmentConfig()

	s, err := newSegment(dir, 0, c, nil)
	require.NoError(t, err)
	defer s.Close()

	require.False(t, s.IsMaxed())

	_, err = s.Append([]byte("one"))
	require.NoError(t, err)
	_, err = s.Append([]byte("two"))
	require.NoError(t, err)
	_, err = s.Append([]byte("three"))
	require.NoError(t, err)

	require.True(t, s.IsMaxed())
}

func TestSegment_ReopenRecoversNextOffset(t *testing.T) {
	dir := t.TempDir()
	c := testSegmentConfig()

	s, err := newSegment(dir, 100, c, nil)
	require.NoError(t, err)

	_, err = s.Append([]byte("a"))
	require.NoError(t, err)
	_, err = s.Append([]byte("b"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := newSegment(dir, 100, c, nil)
	require.NoError(t, err)
	defer reopened.Close()

	offset, err := reopened.Append([]byte("c"))
	require.NoError(t, err)
	require.Equal(t, int64(102), offset)

	value, err := reopened.Read(100)
	require.NoError(t, err)
	require.Equal(t, "a", string(value))
}

func TestSegment_Remove(t *testing.T) {
	dir := t.TempDir()
	c := testSegmentConfig()

	s, err := newSegment(dir, 0, c, nil)
	require.NoError(t, err)

	_, err = s.Append([]byte("gone"))
	require.NoError(t, err)

	require.NoError(t, s.Remove())
}
