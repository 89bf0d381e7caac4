package objdb

import (
	"encoding/binary"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/protos"
)

// index holds every object of one type: the primary tree keyed by instance
// and one ordered tree per secondary index mapping key -> instance.
type index struct {
	spec      IndexSpec
	nextID    uint64
	objects   *treemap.Map
	secondary []*redblacktree.Tree
}

func newIndex(spec IndexSpec) *index {
	idx := &index{
		spec:    spec,
		objects: treemap.NewWith(utils.UInt64Comparator),
	}
	for range spec.Secondary {
		idx.secondary = append(idx.secondary, redblacktree.NewWith(utils.StringComparator))
	}
	return idx
}

func (idx *index) get(instance uint64) (Object, bool) {
	v, ok := idx.objects.Get(instance)
	if !ok {
		return nil, false
	}
	return v.(Object), true
}

func (idx *index) secondaryKey(i int, obj Object) string {
	sec := idx.spec.Secondary[i]
	k := sec.Key(obj)
	if sec.Unique {
		return string(k)
	}
	var inst [8]byte
	binary.BigEndian.PutUint64(inst[:], obj.ID().Instance)
	return string(append(k, inst[:]...))
}

func (idx *index) keys(obj Object) []string {
	out := make([]string, len(idx.secondary))
	for i := range idx.secondary {
		out[i] = idx.secondaryKey(i, obj)
	}
	return out
}

// checkUnique reports a unique key of obj already held by another instance.
func (idx *index) checkUnique(obj Object, keys []string) error {
	for i, sec := range idx.spec.Secondary {
		if !sec.Unique {
			continue
		}
		if v, found := idx.secondary[i].Get(keys[i]); found && v.(uint64) != obj.ID().Instance {
			return errors.Wrapf(ErrUniqueConflict, "index %s of %d.%d", sec.Name, idx.spec.Space, idx.spec.Type)
		}
	}
	return nil
}

func (idx *index) insert(obj Object) error {
	keys := idx.keys(obj)
	if err := idx.checkUnique(obj, keys); err != nil {
		return err
	}
	inst := obj.ID().Instance
	if _, exists := idx.objects.Get(inst); exists {
		return errors.Wrapf(ErrDuplicateID, "%s", obj.ID())
	}
	idx.objects.Put(inst, obj)
	for i, k := range keys {
		idx.secondary[i].Put(k, inst)
	}
	return nil
}

func (idx *index) erase(instance uint64) (Object, bool) {
	obj, ok := idx.get(instance)
	if !ok {
		return nil, false
	}
	for i, k := range idx.keys(obj) {
		idx.secondary[i].Remove(k)
	}
	idx.objects.Remove(instance)
	return obj, true
}

// reindex moves obj from oldKeys to its current keys.
func (idx *index) reindex(obj Object, oldKeys []string) error {
	newKeys := idx.keys(obj)
	if err := idx.checkUnique(obj, newKeys); err != nil {
		return err
	}
	inst := obj.ID().Instance
	for i := range idx.secondary {
		if oldKeys[i] == newKeys[i] {
			continue
		}
		idx.secondary[i].Remove(oldKeys[i])
		idx.secondary[i].Put(newKeys[i], inst)
	}
	return nil
}

// clone deep copies obj through its rlp encoding, the same form snapshots use.
func (idx *index) clone(obj Object) Object {
	raw, err := encodeObject(obj)
	if err != nil {
		panic(err)
	}
	out, err := idx.decodeObject(raw)
	if err != nil {
		panic(err)
	}
	return out
}

func encodeObject(obj Object) ([]byte, error) {
	raw, err := rlp.EncodeToBytes(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "objdb: encode %s", obj.ID())
	}
	return raw, nil
}

func (idx *index) decodeObject(raw []byte) (Object, error) {
	out := idx.spec.New()
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return nil, errors.Wrapf(err, "objdb: decode %d.%d", idx.spec.Space, idx.spec.Type)
	}
	return out, nil
}

func (idx *index) secondaryByName(name string) (int, bool) {
	for i, sec := range idx.spec.Secondary {
		if sec.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (idx *index) id(instance uint64) protos.ObjectID {
	return protos.NewObjectID(idx.spec.Space, idx.spec.Type, instance)
}

// successor is the in order successor of n in its red black tree.
func successor(n *redblacktree.Node) *redblacktree.Node {
	if n.Right != nil {
		n = n.Right
		for n.Left != nil {
			n = n.Left
		}
		return n
	}
	for n.Parent != nil && n.Parent.Right == n {
		n = n.Parent
	}
	return n.Parent
}
