package sandbox

import (
	"bytes"

	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/xuperchain/xupergraph/protos"
)

// MemXModel is an ordered in memory map from raw keys to data values.
type MemXModel struct {
	tree *redblacktree.Tree
}

func NewMemXModel() *MemXModel {
	return &MemXModel{tree: redblacktree.NewWith(treeCompare)}
}

// Get returns the value stored for one path.
func (m *MemXModel) Get(bucket string, path Path) (protos.LuaValue, bool) {
	v, ok := m.tree.Get(makeRawKey(bucket, path))
	if !ok {
		return protos.LuaValue{}, false
	}
	return v.(protos.LuaValue), true
}

func (m *MemXModel) Put(bucket string, path Path, value protos.LuaValue) {
	m.tree.Put(makeRawKey(bucket, path), value)
}

func (m *MemXModel) Len() int { return m.tree.Size() }

// Below iterates the entries strictly under path in key order.
func (m *MemXModel) Below(bucket string, path Path) *treeIterator {
	prefix := makeRawKey(bucket, path)
	return newTreeIterator(m.tree, prefix)
}

// NewIterator iterates every entry.
func (m *MemXModel) NewIterator() *treeIterator {
	return newTreeIterator(m.tree, nil)
}

// treeIterator walks the tree over the keys sharing a prefix.
type treeIterator struct {
	iter    *redblacktree.Iterator
	prefix  []byte
	started bool
	tree    *redblacktree.Tree
}

func newTreeIterator(tree *redblacktree.Tree, prefix []byte) *treeIterator {
	return &treeIterator{tree: tree, prefix: prefix}
}

func (t *treeIterator) Next() bool {
	if t.tree == nil {
		return false
	}
	if !t.started {
		t.started = true
		node, ok := t.tree.Ceiling(t.prefix)
		if !ok {
			t.tree = nil
			return false
		}
		it := t.tree.IteratorAt(node)
		t.iter = &it
	} else if !t.iter.Next() {
		t.tree = nil
		return false
	}
	key := t.iter.Key().([]byte)
	if !bytes.HasPrefix(key, t.prefix) {
		t.tree = nil
		return false
	}
	// the prefix itself is the path, not something below it
	if len(t.prefix) > 0 && len(key) == len(t.prefix) {
		return t.Next()
	}
	return true
}

func (t *treeIterator) Key() []byte {
	if t.iter == nil {
		return nil
	}
	return t.iter.Key().([]byte)
}

func (t *treeIterator) Value() protos.LuaValue {
	if t.iter == nil {
		return protos.LuaValue{}
	}
	return t.iter.Value().(protos.LuaValue)
}

func treeCompare(a, b interface{}) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}
