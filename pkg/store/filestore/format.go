package filestore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chuyangliu/lsmkv/pkg/store"
)

// On-disk layout of a run file. All integers are little-endian.
//
//	Header:  u32 magic ("SSTB"), u32 version, u64 num_records
//	Records: u32 key_len, u32 value_len, key bytes, value bytes
//	Trailer: u32 filter_size, filter bytes
//
// Records appear in strictly ascending key order, each key at most once.
// A zero value_len encodes a tombstone.
const (
	// Magic identifies a run file ("SSTB").
	Magic uint32 = 0x53535442
	// Version is the run file format version.
	Version uint32 = 1
	// RunExt is the filename extension of run files.
	RunExt = ".sst"

	headerSize = store.KVLen(16)
)

// writeHeader writes the file header.
func writeHeader(writer *bufio.Writer, numRecords uint64) error {
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint64(buf[8:16], numRecords)
	if _, err := writer.Write(buf[:]); err != nil {
		return fmt.Errorf("Write header failed | err=[%w]", err)
	}
	return nil
}

// readHeader reads and validates the file header, returning num_records.
func readHeader(reader io.Reader) (uint64, error) {
	var buf [16]byte
	if _, err := io.ReadFull(reader, buf[:]); err != nil {
		return 0, fmt.Errorf("Read header failed | err=[%w]", ErrInvalidRun)
	}
	if magic := binary.LittleEndian.Uint32(buf[0:4]); magic != Magic {
		return 0, fmt.Errorf("Magic mismatch | magic=%#x | err=[%w]", magic, ErrInvalidRun)
	}
	return binary.LittleEndian.Uint64(buf[8:16]), nil
}

// writeRecord writes one record and returns the number of bytes written.
func writeRecord(writer *bufio.Writer, entry *store.Entry) (store.KVLen, error) {
	if err := writeUint32(writer, uint32(len(entry.Key))); err != nil {
		return 0, fmt.Errorf("Write key length failed | key=%v | err=[%w]", entry.Key, err)
	}
	if err := writeUint32(writer, uint32(len(entry.Value))); err != nil {
		return 0, fmt.Errorf("Write value length failed | key=%v | err=[%w]", entry.Key, err)
	}
	if _, err := writer.WriteString(string(entry.Key)); err != nil {
		return 0, fmt.Errorf("Write key failed | key=%v | err=[%w]", entry.Key, err)
	}
	if _, err := writer.WriteString(string(entry.Value)); err != nil {
		return 0, fmt.Errorf("Write value failed | key=%v | err=[%w]", entry.Key, err)
	}
	return entry.Size(), nil
}

// readRecordMeta reads the two length prefixes of a record, then the key,
// and discards the value. It returns the key and the record length.
func readRecordMeta(reader *bufio.Reader) (store.Key, store.KVLen, error) {
	keyLen, err := readUint32(reader)
	if err != nil {
		return "", 0, fmt.Errorf("Read key length failed | err=[%w]", err)
	}
	valueLen, err := readUint32(reader)
	if err != nil {
		return "", 0, fmt.Errorf("Read value length failed | err=[%w]", err)
	}
	key, err := readBytes(reader, store.KVLen(keyLen))
	if err != nil {
		return "", 0, fmt.Errorf("Read key failed | keyLen=%v | err=[%w]", keyLen, err)
	}
	if _, err := reader.Discard(int(valueLen)); err != nil {
		return "", 0, fmt.Errorf("Skip value failed | valueLen=%v | err=[%w]", valueLen, err)
	}
	length := store.EntryMetaSize + store.KVLen(keyLen) + store.KVLen(valueLen)
	return store.Key(key), length, nil
}

// readRecord reads one full record from reader.
func readRecord(reader io.Reader) (*store.Entry, error) {
	keyLen, err := readUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("Read key length failed | err=[%w]", err)
	}
	valueLen, err := readUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("Read value length failed | err=[%w]", err)
	}
	key, err := readBytes(reader, store.KVLen(keyLen))
	if err != nil {
		return nil, fmt.Errorf("Read key failed | keyLen=%v | err=[%w]", keyLen, err)
	}
	value, err := readBytes(reader, store.KVLen(valueLen))
	if err != nil {
		return nil, fmt.Errorf("Read value failed | valueLen=%v | err=[%w]", valueLen, err)
	}
	return newDiskEntry(store.Key(key), store.Value(value)), nil
}

// newDiskEntry builds an Entry from on-disk key and value bytes, deriving
// the tombstone marker from value emptiness.
func newDiskEntry(key store.Key, value store.Value) *store.Entry {
	status := store.StatusPut
	if len(value) == 0 {
		status = store.StatusDel
	}
	return &store.Entry{
		Key:    key,
		Value:  value,
		Status: status,
	}
}

// writeUint32 writes a little-endian u32 to writer.
func writeUint32(writer *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := writer.Write(buf[:]); err != nil {
		return fmt.Errorf("Write u32 failed | err=[%w]", err)
	}
	return nil
}

// readUint32 reads a little-endian u32 from reader.
func readUint32(reader io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(reader, buf[:]); err != nil {
		return 0, fmt.Errorf("Read full failed | err=[%w]", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// readBytes reads length bytes from reader.
func readBytes(reader io.Reader, length store.KVLen) ([]byte, error) {
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return nil, fmt.Errorf("Read full failed | length=%v | err=[%w]", length, err)
	}
	return raw, nil
}
