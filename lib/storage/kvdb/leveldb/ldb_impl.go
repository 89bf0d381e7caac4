package leveldb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
)

func init() {
	kvdb.Register(kvdb.KVEngineTypeLDB, NewKVDBInstance)
}

// LDBDatabase define data structure of storage
type LDBDatabase struct {
	fn string
	db *leveldb.DB
}

// LDBBatch define batch data structure
type LDBBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func NewKVDBInstance(param *kvdb.KVParameter) (kvdb.Database, error) {
	baseDB := new(LDBDatabase)
	options := map[string]interface{}{
		"cache":  param.GetMemCacheSize(),
		"fds":    param.GetFileHandlersCacheSize(),
		"memory": param.IsMemory(),
	}
	if err := baseDB.Open(param.GetDBPath(), options); err != nil {
		return nil, err
	}
	return baseDB, nil
}

// Open opens an instance of LDB with parameters (ldb path and other options)
func (ldb *LDBDatabase) Open(path string, options map[string]interface{}) error {
	cache, _ := options["cache"].(int)
	fds, _ := options["fds"].(int)
	inMemory, _ := options["memory"].(bool)
	if cache < 16 {
		cache = 16
	}
	if fds < 16 {
		fds = 16
	}
	o := &opt.Options{
		OpenFilesCacheCapacity: fds,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}

	var (
		db  *leveldb.DB
		err error
	)
	if inMemory {
		db, err = leveldb.Open(storage.NewMemStorage(), o)
	} else {
		db, err = leveldb.OpenFile(path, o)
		if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
			db, err = leveldb.RecoverFile(path, nil)
		}
	}
	if err != nil {
		return err
	}
	ldb.fn = path
	ldb.db = db
	return nil
}

// Path returns the path to the database directory.
func (ldb *LDBDatabase) Path() string {
	return ldb.fn
}

func (ldb *LDBDatabase) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get translates leveldb's not found into kvdb.ErrNotFound
func (ldb *LDBDatabase) Get(key []byte) ([]byte, error) {
	dat, err := ldb.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, kvdb.ErrNotFound
	}
	return dat, err
}

func (ldb *LDBDatabase) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

func (ldb *LDBDatabase) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LDBDatabase) Close() {
	ldb.db.Close()
}

func (ldb *LDBDatabase) NewIteratorWithRange(start []byte, limit []byte) kvdb.Iterator {
	return ldb.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
}

func (ldb *LDBDatabase) NewIteratorWithPrefix(prefix []byte) kvdb.Iterator {
	return ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (ldb *LDBDatabase) NewBatch() kvdb.Batch {
	return &LDBBatch{db: ldb.db, b: new(leveldb.Batch)}
}

func (b *LDBBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(value)
	return nil
}

func (b *LDBBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size++
	return nil
}

func (b *LDBBatch) Write() error {
	return b.db.Write(b.b, nil)
}

func (b *LDBBatch) ValueSize() int {
	return b.size
}

func (b *LDBBatch) Reset() {
	b.b.Reset()
	b.size = 0
}
