package objdb

import (
	"errors"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
	"github.com/xuperchain/xupergraph/protos"
)

var (
	ErrUnknownIndex   = errors.New("objdb: unknown object type")
	ErrUnknownKey     = errors.New("objdb: unknown secondary index")
	ErrUniqueConflict = errors.New("objdb: unique index conflict")
	ErrDuplicateID    = errors.New("objdb: duplicate object id")
	ErrNotFound       = errors.New("objdb: object not found")
	ErrStaleObject    = errors.New("objdb: object is not the stored instance")
)

// Database is an in memory object graph with ordered indexes and a stack of
// undo states. It is not safe for concurrent use; callers serialize access.
type Database struct {
	indexes map[uint16]*index
	order   []uint16

	stack          []*undoState
	dropped        int
	activeSessions int
	disabled       bool
	maxSize        int
}

func NewDatabase() *Database {
	return &Database{
		indexes:  make(map[uint16]*index),
		disabled: true,
	}
}

// RegisterIndex adds an object type. Registering a type twice panics.
func (db *Database) RegisterIndex(spec IndexSpec) {
	k := indexKey(spec.Space, spec.Type)
	if _, ok := db.indexes[k]; ok {
		panic("objdb: index registered twice")
	}
	db.indexes[k] = newIndex(spec)
	db.order = append(db.order, k)
}

func (db *Database) index(space, typ uint8) (*index, error) {
	idx, ok := db.indexes[indexKey(space, typ)]
	if !ok {
		return nil, ErrUnknownIndex
	}
	return idx, nil
}

func (db *Database) indexOf(obj Object) (*index, error) {
	return db.index(obj.ObjectType())
}

// Create assigns the next id of obj's type and inserts it.
func (db *Database) Create(obj Object) error {
	idx, err := db.indexOf(obj)
	if err != nil {
		return err
	}
	obj.SetID(idx.id(idx.nextID))
	if err := idx.insert(obj); err != nil {
		return err
	}
	db.onCreate(idx, obj)
	idx.nextID++
	return nil
}

// Modify stages the pre image of obj, runs mutate and reindexes. On a unique
// conflict the stored object is restored and ErrUniqueConflict returned; obj
// must not be used afterwards.
func (db *Database) Modify(obj Object, mutate func()) error {
	idx, err := db.indexOf(obj)
	if err != nil {
		return err
	}
	stored, ok := idx.get(obj.ID().Instance)
	if !ok {
		return ErrNotFound
	}
	if stored != obj {
		return ErrStaleObject
	}
	backup := idx.clone(obj)
	db.onModify(idx, backup)
	oldKeys := idx.keys(obj)
	mutate()
	if err := idx.reindex(obj, oldKeys); err != nil {
		// reindex checks before moving keys, only the primary entry changed
		idx.objects.Put(backup.ID().Instance, idx.clone(backup))
		return err
	}
	return nil
}

// Remove deletes obj from every index.
func (db *Database) Remove(obj Object) error {
	idx, err := db.indexOf(obj)
	if err != nil {
		return err
	}
	stored, ok := idx.get(obj.ID().Instance)
	if !ok {
		return ErrNotFound
	}
	if stored != obj {
		return ErrStaleObject
	}
	db.onRemove(idx, obj)
	idx.erase(obj.ID().Instance)
	return nil
}

// Find returns the live object, nil when absent. Callers must not mutate it
// except through Modify.
func (db *Database) Find(id protos.ObjectID) Object {
	idx, err := db.index(id.Space, id.Type)
	if err != nil {
		return nil
	}
	obj, _ := idx.get(id.Instance)
	return obj
}

func (db *Database) Get(id protos.ObjectID) (Object, error) {
	if obj := db.Find(id); obj != nil {
		return obj, nil
	}
	return nil, ErrNotFound
}

// Copy returns a deep copy of the object, safe to keep after the database
// moves on.
func (db *Database) Copy(id protos.ObjectID) (Object, error) {
	idx, err := db.index(id.Space, id.Type)
	if err != nil {
		return nil, err
	}
	obj, ok := idx.get(id.Instance)
	if !ok {
		return nil, ErrNotFound
	}
	return idx.clone(obj), nil
}

// NextID is the id the next Create of this type will assign.
func (db *Database) NextID(space, typ uint8) protos.ObjectID {
	idx, err := db.index(space, typ)
	if err != nil {
		return protos.ObjectID{}
	}
	return idx.id(idx.nextID)
}

// Count is the number of live objects of one type.
func (db *Database) Count(space, typ uint8) int {
	idx, err := db.index(space, typ)
	if err != nil {
		return 0
	}
	return idx.objects.Size()
}

// FindBy looks up a unique secondary key.
func (db *Database) FindBy(space, typ uint8, name string, key []byte) (Object, error) {
	idx, err := db.index(space, typ)
	if err != nil {
		return nil, err
	}
	i, ok := idx.secondaryByName(name)
	if !ok {
		return nil, ErrUnknownKey
	}
	v, found := idx.secondary[i].Get(string(key))
	if !found {
		return nil, ErrNotFound
	}
	obj, _ := idx.get(v.(uint64))
	return obj, nil
}

// LowerBound returns the first object whose key is >= key.
func (db *Database) LowerBound(space, typ uint8, name string, key []byte) (Object, error) {
	objs, err := db.Range(space, typ, name, key, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, ErrNotFound
	}
	return objs[0], nil
}

// Range returns objects with from <= key < to in key order. A nil bound is
// open and limit <= 0 means no limit. The result is a snapshot so callers may
// modify or remove while walking it.
func (db *Database) Range(space, typ uint8, name string, from, to []byte, limit int) ([]Object, error) {
	idx, err := db.index(space, typ)
	if err != nil {
		return nil, err
	}
	i, ok := idx.secondaryByName(name)
	if !ok {
		return nil, ErrUnknownKey
	}
	tree := idx.secondary[i]
	var n *redblacktree.Node
	if from == nil {
		n = tree.Left()
	} else {
		n, _ = tree.Ceiling(string(from))
	}
	var out []Object
	for ; n != nil; n = successor(n) {
		if to != nil && n.Key.(string) >= string(to) {
			break
		}
		obj, _ := idx.get(n.Value.(uint64))
		out = append(out, obj)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Prefix returns every object whose key starts with prefix.
func (db *Database) Prefix(space, typ uint8, name string, prefix []byte) ([]Object, error) {
	start, limit := kvdb.BytesPrefix(prefix)
	return db.Range(space, typ, name, start, limit, 0)
}

// All returns every object of a type in id order.
func (db *Database) All(space, typ uint8) []Object {
	idx, err := db.index(space, typ)
	if err != nil {
		return nil
	}
	out := make([]Object, 0, idx.objects.Size())
	it := idx.objects.Iterator()
	for it.Next() {
		out = append(out, it.Value().(Object))
	}
	return out
}
