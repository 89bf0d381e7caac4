package badger

import (
	"bytes"

	"github.com/dgraph-io/badger/v3"

	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
)

func init() {
	kvdb.Register(kvdb.KVEngineTypeBadger, NewKVDBInstance)
}

// BadgerDatabase implements kvdb.Database on badger
type BadgerDatabase struct {
	path string
	db   *badger.DB
}

func NewKVDBInstance(param *kvdb.KVParameter) (kvdb.Database, error) {
	baseDB := new(BadgerDatabase)
	options := map[string]interface{}{
		"memory": param.IsMemory(),
		"cache":  param.GetMemCacheSize(),
	}
	if err := baseDB.Open(param.GetDBPath(), options); err != nil {
		return nil, err
	}
	return baseDB, nil
}

func (bdb *BadgerDatabase) Open(path string, options map[string]interface{}) error {
	inMemory, _ := options["memory"].(bool)
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if cache, ok := options["cache"].(int); ok && cache > 0 {
		opts = opts.WithBlockCacheSize(int64(cache) << 20)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return err
	}
	bdb.path = path
	bdb.db = db
	return nil
}

func (bdb *BadgerDatabase) Put(key []byte, value []byte) error {
	return bdb.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (bdb *BadgerDatabase) Get(key []byte) ([]byte, error) {
	var value []byte
	err := bdb.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, kvdb.ErrNotFound
	}
	return value, err
}

func (bdb *BadgerDatabase) Has(key []byte) (bool, error) {
	_, err := bdb.Get(key)
	if err == kvdb.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (bdb *BadgerDatabase) Delete(key []byte) error {
	return bdb.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (bdb *BadgerDatabase) Close() {
	bdb.db.Close()
}

func (bdb *BadgerDatabase) NewBatch() kvdb.Batch {
	return &BadgerBatch{db: bdb.db}
}

func (bdb *BadgerDatabase) NewIteratorWithRange(start []byte, limit []byte) kvdb.Iterator {
	return bdb.collect(start, func(k []byte) bool {
		return limit == nil || bytes.Compare(k, limit) < 0
	})
}

func (bdb *BadgerDatabase) NewIteratorWithPrefix(prefix []byte) kvdb.Iterator {
	return bdb.collect(prefix, func(k []byte) bool {
		return bytes.HasPrefix(k, prefix)
	})
}

// collect snapshots the matching range so the iterator can move both ways.
func (bdb *BadgerDatabase) collect(seek []byte, within func([]byte) bool) kvdb.Iterator {
	it := &sliceIterator{pos: -1}
	it.err = bdb.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		for iter.Seek(seek); iter.Valid(); iter.Next() {
			item := iter.Item()
			k := item.KeyCopy(nil)
			if !within(k) {
				break
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			it.keys = append(it.keys, k)
			it.values = append(it.values, v)
		}
		return nil
	})
	return it
}

// BadgerBatch buffers operations and applies them in one transaction.
type BadgerBatch struct {
	db   *badger.DB
	ops  []batchOp
	size int
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

func (b *BadgerBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, batchOp{key: append([]byte{}, key...), value: append([]byte{}, value...)})
	b.size += len(value)
	return nil
}

func (b *BadgerBatch) Delete(key []byte) error {
	b.ops = append(b.ops, batchOp{key: append([]byte{}, key...), delete: true})
	b.size++
	return nil
}

func (b *BadgerBatch) Write() error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, op := range b.ops {
			var err error
			if op.delete {
				err = txn.Delete(op.key)
			} else {
				err = txn.Set(op.key, op.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBatch) ValueSize() int {
	return b.size
}

func (b *BadgerBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

type sliceIterator struct {
	keys   [][]byte
	values [][]byte
	pos    int
	err    error
}

func (it *sliceIterator) valid() bool {
	return it.pos >= 0 && it.pos < len(it.keys)
}

func (it *sliceIterator) Key() []byte {
	if !it.valid() {
		return nil
	}
	return it.keys[it.pos]
}

func (it *sliceIterator) Value() []byte {
	if !it.valid() {
		return nil
	}
	return it.values[it.pos]
}

func (it *sliceIterator) Next() bool {
	if it.pos < len(it.keys) {
		it.pos++
	}
	return it.valid()
}

func (it *sliceIterator) Prev() bool {
	if it.pos >= 0 {
		it.pos--
	}
	return it.valid()
}

func (it *sliceIterator) First() bool {
	it.pos = 0
	return it.valid()
}

func (it *sliceIterator) Last() bool {
	it.pos = len(it.keys) - 1
	return it.valid()
}

func (it *sliceIterator) Error() error {
	return it.err
}

func (it *sliceIterator) Release() {
	it.keys, it.values = nil, nil
	it.pos = -1
}
