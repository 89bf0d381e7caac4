package objdb

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
)

const (
	objectPrefix = "O"
	nextIDPrefix = "N"
)

// Flush replaces the snapshot held in store with the current head state.
// Undo states are not persisted, reopening starts with an empty stack.
func (db *Database) Flush(store kvdb.Database) error {
	batch := store.NewBatch()
	it := store.NewIteratorWithPrefix(nil)
	for it.Next() {
		if err := batch.Delete(append([]byte(nil), it.Key()...)); err != nil {
			it.Release()
			return err
		}
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	for _, k := range db.order {
		idx := db.indexes[k]
		var nk [2]byte
		binary.BigEndian.PutUint16(nk[:], k)
		var next [8]byte
		binary.BigEndian.PutUint64(next[:], idx.nextID)
		if err := batch.Put(append([]byte(nextIDPrefix), nk[:]...), next[:]); err != nil {
			return err
		}
		iter := idx.objects.Iterator()
		for iter.Next() {
			obj := iter.Value().(Object)
			raw, err := encodeObject(obj)
			if err != nil {
				return err
			}
			if err := batch.Put(append([]byte(objectPrefix), obj.ID().Bytes()...), raw); err != nil {
				return err
			}
		}
	}
	return batch.Write()
}

// Load fills a freshly registered database from a snapshot. It returns false
// when store holds no snapshot.
func (db *Database) Load(store kvdb.Database) (bool, error) {
	found := false
	it := store.NewIteratorWithPrefix([]byte(nextIDPrefix))
	for it.Next() {
		key, val := it.Key(), it.Value()
		if len(key) != 3 || len(val) != 8 {
			it.Release()
			return false, errors.New("corrupted next id record")
		}
		idx, ok := db.indexes[binary.BigEndian.Uint16(key[1:])]
		if !ok {
			it.Release()
			return false, errors.Wrapf(ErrUnknownIndex, "snapshot index %x", key[1:])
		}
		idx.nextID = binary.BigEndian.Uint64(val)
		found = true
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, err
	}

	it = store.NewIteratorWithPrefix([]byte(objectPrefix))
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if len(key) != 11 {
			return false, errors.New("corrupted object record")
		}
		idx, ok := db.indexes[indexKey(key[1], key[2])]
		if !ok {
			return false, errors.Wrapf(ErrUnknownIndex, "snapshot object %x", key[1:3])
		}
		obj, err := idx.decodeObject(it.Value())
		if err != nil {
			return false, err
		}
		obj.SetID(idx.id(binary.BigEndian.Uint64(key[3:])))
		if err := idx.insert(obj); err != nil {
			return false, err
		}
	}
	return found, it.Error()
}

// Reset drops every object and undo state, keeping registered indexes.
func (db *Database) Reset() {
	for k, idx := range db.indexes {
		db.indexes[k] = newIndex(idx.spec)
	}
	db.stack = nil
	db.dropped = 0
	db.activeSessions = 0
}
