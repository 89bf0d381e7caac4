package kvdb

import "errors"

// ErrNotFound is returned by Get for missing keys, whatever the engine.
var ErrNotFound = errors.New("kvdb: not found")

// Database is the kv engine abstraction used by the block store and state snapshots.
type Database interface {
	Open(path string, options map[string]interface{}) error
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	Close()
	NewBatch() Batch
	NewIteratorWithRange(start []byte, limit []byte) Iterator
	NewIteratorWithPrefix(prefix []byte) Iterator
}

// Batch buffers writes until Write.
type Batch interface {
	ValueSize() int
	Write() error
	Reset()
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Iterator walks keys in ascending byte order. Key and Value are only valid
// until the next move.
type Iterator interface {
	Key() []byte
	Value() []byte
	Next() bool
	Prev() bool
	First() bool
	Last() bool
	Error() error
	Release()
}

// BytesPrefix returns the [start, limit) range covering every key with prefix.
func BytesPrefix(prefix []byte) (start, limit []byte) {
	start = append([]byte{}, prefix...)
	for i := len(prefix) - 1; i >= 0; i-- {
		if c := prefix[i]; c < 0xff {
			limit = make([]byte, i+1)
			copy(limit, prefix)
			limit[i] = c + 1
			break
		}
	}
	return start, limit
}
