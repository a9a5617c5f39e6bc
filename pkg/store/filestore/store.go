// Package filestore implements the on-disk sorted runs of the LSM tree.
//
// A run is an immutable file of records in ascending key order plus in-memory
// metadata: a dense index locating every record and a membership filter over
// all keys. Runs are created by flushing a memory buffer (level 0) or by
// compaction (higher levels) and are never rewritten in place.
package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/chuyangliu/lsmkv/pkg/logging"
	"github.com/chuyangliu/lsmkv/pkg/store"
	"github.com/chuyangliu/lsmkv/pkg/store/filter"
)

// ErrInvalidRun reports a run file with a bad magic number or a truncated
// header, record, or trailer.
var ErrInvalidRun = errors.New("invalid run file")

// Store is one immutable sorted run.
type Store struct {
	logger   *logging.Logger
	ioLock   sync.Mutex // guards file I/O of Get and GetRange
	path     string
	level    int
	size     store.KVLen // file size in bytes
	smallest store.Key
	largest  store.Key
	index    *runIndex
	filter   *filter.Filter
}

// New creates a run file at path from entries sorted in ascending key order,
// assigned to the given level. The file is written to a temporary name and
// renamed into place, so a failed build leaves no run file behind.
func New(logLevel int, path string, level int, entries []*store.Entry) (*Store, error) {

	s := &Store{
		logger: logging.New(logLevel),
		path:   path,
		level:  level,
		index:  newRunIndex(),
		filter: filter.NewForRecords(len(entries)),
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("Create run directory failed | dir=%v | err=[%w]", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%v.tmp", uuid.NewString()))
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("Open temp file failed | path=%v | err=[%w]", tmpPath, err)
	}

	if err := s.write(file, entries); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("Write run failed | path=%v | err=[%w]", tmpPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("Sync run failed | path=%v | err=[%w]", tmpPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("Close run failed | path=%v | err=[%w]", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("Rename run failed | from=%v | to=%v | err=[%w]", tmpPath, path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("Stat run failed | path=%v | err=[%w]", path, err)
	}
	s.size = store.KVLen(info.Size())

	if !s.index.empty() {
		s.smallest = s.index.first().key
		s.largest = s.index.last().key
	}

	s.logger.Debug("Run created | path=%v | level=%v | numRecords=%v | size=%v",
		path, level, s.index.size(), s.size)
	return s, nil
}

// Open loads the run file at path: it validates the header, rebuilds the
// in-memory index by streaming over every record, and deserializes the
// membership filter from the trailer. The run's level is parsed from its
// "level-<L>" parent directory; files outside one load as level 0.
func Open(logLevel int, path string) (*Store, error) {

	s := &Store{
		logger: logging.New(logLevel),
		path:   path,
		level:  levelFromPath(path),
		index:  newRunIndex(),
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Open run failed | path=%v | err=[%w]", path, err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	numRecords, err := readHeader(reader)
	if err != nil {
		return nil, fmt.Errorf("Read run header failed | path=%v | err=[%w]", path, err)
	}

	offset := headerSize
	for i := uint64(0); i < numRecords; i++ {
		key, length, err := readRecordMeta(reader)
		if err != nil {
			return nil, fmt.Errorf("Read record failed | path=%v | record=%v | err=[%w]",
				path, i, errors.Join(ErrInvalidRun, err))
		}
		s.index.add(&indexEntry{
			key:    key,
			off:    offset,
			length: length,
		})
		offset += length
	}

	filterSize, err := readUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("Read filter size failed | path=%v | err=[%w]",
			path, errors.Join(ErrInvalidRun, err))
	}
	filterData, err := readBytes(reader, store.KVLen(filterSize))
	if err != nil {
		return nil, fmt.Errorf("Read filter failed | path=%v | filterSize=%v | err=[%w]",
			path, filterSize, errors.Join(ErrInvalidRun, err))
	}
	if s.filter, err = filter.Deserialize(filterData); err != nil {
		return nil, fmt.Errorf("Deserialize filter failed | path=%v | err=[%w]",
			path, errors.Join(ErrInvalidRun, err))
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("Stat run failed | path=%v | err=[%w]", path, err)
	}
	s.size = store.KVLen(info.Size())

	if !s.index.empty() {
		s.smallest = s.index.first().key
		s.largest = s.index.last().key
	}

	s.logger.Debug("Run opened | path=%v | level=%v | numRecords=%v | size=%v",
		path, s.level, s.index.size(), s.size)
	return s, nil
}

// Path returns the run file path.
func (s *Store) Path() string {
	return s.path
}

// Level returns the level the run is assigned to.
func (s *Store) Level() int {
	return s.level
}

// Size returns the run file size in bytes.
func (s *Store) Size() store.KVLen {
	return s.size
}

// NumRecords returns the number of records in the run.
func (s *Store) NumRecords() int {
	return s.index.size()
}

// SmallestKey returns the smallest key in the run.
func (s *Store) SmallestKey() store.Key {
	return s.smallest
}

// LargestKey returns the largest key in the run.
func (s *Store) LargestKey() store.Key {
	return s.largest
}

// Get returns the record associated with key, or nil if the run does not
// contain key. I/O failures degrade to a miss.
func (s *Store) Get(key store.Key) *store.Entry {
	if s.index.empty() || !s.filter.MightContain(key) {
		return nil
	}
	pos := s.index.lowerBound(key)
	if pos >= s.index.size() || s.index.entries[pos].key != key {
		return nil
	}

	s.ioLock.Lock()
	defer s.ioLock.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		s.logger.Warn("Open run for read failed | path=%v | err=[%v]", s.path, err)
		return nil
	}
	defer file.Close()

	entry, err := s.readValueAt(file, s.index.entries[pos])
	if err != nil {
		s.logger.Warn("Read record failed | path=%v | key=%v | err=[%v]", s.path, key, err)
		return nil
	}
	return entry
}

// GetRange returns all records with startKey <= key <= endKey in ascending
// key order. I/O failures degrade to an empty or shortened result.
func (s *Store) GetRange(startKey store.Key, endKey store.Key) []*store.Entry {
	entries := make([]*store.Entry, 0)

	lo := s.index.lowerBound(startKey)
	hi := s.index.upperBound(endKey)
	if lo >= hi {
		return entries
	}

	s.ioLock.Lock()
	defer s.ioLock.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		s.logger.Warn("Open run for range failed | path=%v | err=[%v]", s.path, err)
		return entries
	}
	defer file.Close()

	// Records in the window are contiguous: seek once and stream.
	if _, err := file.Seek(int64(s.index.entries[lo].off), io.SeekStart); err != nil {
		s.logger.Warn("Seek range start failed | path=%v | err=[%v]", s.path, err)
		return entries
	}
	reader := bufio.NewReader(file)
	for i := lo; i < hi; i++ {
		entry, err := readRecord(reader)
		if err != nil {
			s.logger.Warn("Read range record failed | path=%v | record=%v | err=[%v]", s.path, i, err)
			return entries
		}
		entries = append(entries, entry)
	}
	return entries
}

// write streams the header, records, and filter trailer to file, populating
// the index and filter along the way.
func (s *Store) write(file *os.File, entries []*store.Entry) error {
	writer := bufio.NewWriter(file)

	if err := writeHeader(writer, uint64(len(entries))); err != nil {
		return err
	}

	offset := headerSize
	for _, entry := range entries {
		length, err := writeRecord(writer, entry)
		if err != nil {
			return err
		}
		s.filter.Add(entry.Key)
		s.index.add(&indexEntry{
			key:    entry.Key,
			off:    offset,
			length: length,
		})
		offset += length
	}

	filterData := s.filter.Serialize()
	if err := writeUint32(writer, uint32(len(filterData))); err != nil {
		return fmt.Errorf("Write filter size failed | err=[%w]", err)
	}
	if _, err := writer.Write(filterData); err != nil {
		return fmt.Errorf("Write filter failed | err=[%w]", err)
	}

	return writer.Flush()
}

// readValueAt reads the record located by idx, skipping over the key bytes.
func (s *Store) readValueAt(file *os.File, idx *indexEntry) (*store.Entry, error) {
	if _, err := file.Seek(int64(idx.off), io.SeekStart); err != nil {
		return nil, fmt.Errorf("Seek record failed | off=%v | err=[%w]", idx.off, err)
	}
	reader := bufio.NewReader(io.LimitReader(file, int64(idx.length)))
	keyLen, err := readUint32(reader)
	if err != nil {
		return nil, err
	}
	valueLen, err := readUint32(reader)
	if err != nil {
		return nil, err
	}
	if _, err := reader.Discard(int(keyLen)); err != nil {
		return nil, fmt.Errorf("Skip key failed | keyLen=%v | err=[%w]", keyLen, err)
	}
	value, err := readBytes(reader, store.KVLen(valueLen))
	if err != nil {
		return nil, err
	}
	return newDiskEntry(idx.key, store.Value(value)), nil
}

// levelFromPath parses the level from a "level-<L>" parent directory name.
func levelFromPath(path string) int {
	dir := filepath.Base(filepath.Dir(path))
	if !strings.HasPrefix(dir, "level-") {
		return 0
	}
	level, err := strconv.Atoi(strings.TrimPrefix(dir, "level-"))
	if err != nil || level < 0 {
		return 0
	}
	return level
}
