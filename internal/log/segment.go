// segment.go ties a store, an offset index, and a time index
// together. It is an external collaborator per spec.md §1 — the log
// manager that creates, rolls, and deletes segments is out of scope —
// but it is kept and adapted here because it is the realistic host
// that exercises OffsetIndex/TimeIndex the way a production caller
// would: appending a record writes the store, then indexes the
// resulting position under the record's offset and the record's
// offset under its timestamp.
package log

import (
	"fmt"
	"os"
	"path"
	"time"

	"go.uber.org/zap"
)

// segment bounds one append-only region of the log: a store file and
// its paired offset/time indices, all sharing one baseOffset.
type segment struct {
	store      *store
	index      *OffsetIndex
	timeIndex  *TimeIndex
	baseOffset int64
	nextOffset int64
	config     Config
	log        *zap.SugaredLogger
}

// newSegment creates or reopens the segment rooted at dir with the
// given baseOffset. The log calls this when it needs a new active
// segment, such as when the current one hits its max size.
func newSegment(dir string, baseOffset int64, c Config, logger *zap.SugaredLogger) (*segment, error) {
	s := &segment{
		baseOffset: baseOffset,
		config:     c,
		log:        logger,
	}

	storeFile, err := os.OpenFile(
		path.Join(dir, fmt.Sprintf("%020d%s", baseOffset, ".store")),
		os.O_RDWR|os.O_CREATE|os.O_APPEND,
		0644,
	)
	if err != nil {
		return nil, err
	}
	if s.store, err = newStore(storeFile); err != nil {
		return nil, err
	}

	indexPath := path.Join(dir, fmt.Sprintf("%020d%s", baseOffset, ".index"))
	s.index, err = OpenOffsetIndex(indexPath, baseOffset, int64(c.Segment.MaxIndexBytes), true, WithLogger(logger))
	if err != nil {
		return nil, err
	}

	timeIndexPath := path.Join(dir, fmt.Sprintf("%020d%s", baseOffset, ".timeindex"))
	s.timeIndex, err = OpenTimeIndex(timeIndexPath, baseOffset, int64(c.Segment.MaxTimeIndexBytes), true, WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if s.index.Entries() == 0 {
		s.nextOffset = baseOffset
	} else {
		s.nextOffset = s.index.LastOffset() + 1
	}

	return s, nil
}

// Append writes value to the store, records its position under the
// assigned offset in the offset index, and records that offset under
// the current time in the time index. Returns the assigned offset.
func (s *segment) Append(value []byte) (offset int64, err error) {
	cur := s.nextOffset

	_, pos, err := s.store.Append(value)
	if err != nil {
		return 0, err
	}

	if err := s.index.Append(cur, int64(pos)); err != nil {
		return 0, err
	}
	if err := s.timeIndex.Append(time.Now().UnixNano(), cur); err != nil {
		return 0, err
	}

	s.nextOffset++
	return cur, nil
}

// Read returns the record stored at the given absolute offset.
func (s *segment) Read(offset int64) ([]byte, error) {
	_, pos, err := s.index.Lookup(offset)
	if err != nil {
		return nil, err
	}
	return s.store.Read(uint64(pos))
}

// IsMaxed reports whether the segment has reached its configured
// limit, either in the store or in either index.
func (s *segment) IsMaxed() bool {
	return s.store.Size() >= s.config.Segment.MaxStoreBytes ||
		uint64(s.index.Entries())*offsetEntrySize >= s.config.Segment.MaxIndexBytes ||
		uint64(s.timeIndex.Entries())*timeEntrySize >= s.config.Segment.MaxTimeIndexBytes
}

// Remove closes and deletes the segment's files.
func (s *segment) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.index.Name()); err != nil {
		return err
	}
	if err := os.Remove(s.timeIndex.Name()); err != nil {
		return err
	}
	return os.Remove(s.store.Name())
}

// Close seals both indices and closes the store.
func (s *segment) Close() error {
	if err := s.index.Close(); err != nil {
		return err
	}
	if err := s.timeIndex.Close(); err != nil {
		return err
	}
	return s.store.Close()
}

