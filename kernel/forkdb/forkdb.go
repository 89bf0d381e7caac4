// Package forkdb keeps the tree of recent blocks that are not yet irreversible.
package forkdb

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/protos"
)

var (
	ErrUnlinkable   = errors.New("forkdb: block does not link to a known block")
	ErrInvalidChain = errors.New("forkdb: block links to an invalid block")
	ErrTooOld       = errors.New("forkdb: block is older than the fork window")
	ErrNoHead       = errors.New("forkdb: empty fork database")
	ErrKnownBlock   = errors.New("forkdb: block already known")
)

// Item is one block in the tree. Prev is a lookup shortcut, not ownership:
// removing a block from the database leaves children with a dangling Prev.
type Item struct {
	Num     uint32
	ID      protos.BlockID
	Data    *protos.SignedBlock
	Prev    *Item
	Invalid bool
}

func (i *Item) Previous() protos.BlockID { return i.Data.Previous }

// ForkDB is not safe for concurrent use.
type ForkDB struct {
	index    map[protos.BlockID]*Item
	byNum    *treemap.Map // num -> []*Item
	unlinked map[protos.BlockID][]*protos.SignedBlock
	head     *Item
	maxSize  uint32
	// root may be linked to without being in the index, the zero id before
	// the first block
	root protos.BlockID
}

func New() *ForkDB {
	return &ForkDB{
		index:    make(map[protos.BlockID]*Item),
		byNum:    treemap.NewWith(utils.UInt32Comparator),
		unlinked: make(map[protos.BlockID][]*protos.SignedBlock),
		maxSize:  1024,
	}
}

func (f *ForkDB) insert(item *Item) {
	f.index[item.ID] = item
	var items []*Item
	if v, ok := f.byNum.Get(item.Num); ok {
		items = v.([]*Item)
	}
	f.byNum.Put(item.Num, append(items, item))
}

func (f *ForkDB) erase(item *Item) {
	delete(f.index, item.ID)
	v, ok := f.byNum.Get(item.Num)
	if !ok {
		return
	}
	items := v.([]*Item)
	out := items[:0]
	for _, x := range items {
		if x != item {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		f.byNum.Remove(item.Num)
		return
	}
	f.byNum.Put(item.Num, out)
}

// Reset forgets every block.
func (f *ForkDB) Reset() {
	f.index = make(map[protos.BlockID]*Item)
	f.byNum.Clear()
	f.unlinked = make(map[protos.BlockID][]*protos.SignedBlock)
	f.head = nil
	f.root = protos.BlockID{}
}

// StartBlock resets the tree to a single root block.
func (f *ForkDB) StartBlock(b *protos.SignedBlock) {
	f.Reset()
	item := &Item{Num: b.BlockNum(), ID: b.ID(), Data: b}
	f.insert(item)
	f.head = item
	f.root = item.ID
}

// PushBlock adds b and returns the new head, the highest known block. A block
// whose parent is unknown is parked until the parent arrives.
func (f *ForkDB) PushBlock(b *protos.SignedBlock) (*Item, error) {
	item := &Item{Num: b.BlockNum(), ID: b.ID(), Data: b}
	if err := f.pushItem(item); err != nil {
		if errors.Cause(err) == ErrUnlinkable {
			f.unlinked[b.Previous] = append(f.unlinked[b.Previous], b)
		}
		return f.head, err
	}
	f.pushNext(item)
	return f.head, nil
}

func (f *ForkDB) pushItem(item *Item) error {
	if _, known := f.index[item.ID]; known {
		return ErrKnownBlock
	}
	if f.head != nil && f.head.Num > f.maxSize && item.Num <= f.head.Num-f.maxSize {
		return errors.Wrapf(ErrTooOld, "block %d, head %d", item.Num, f.head.Num)
	}
	if prev, ok := f.index[item.Previous()]; ok {
		if prev.Invalid {
			return ErrInvalidChain
		}
		item.Prev = prev
	} else if item.Previous() != f.root {
		return errors.Wrapf(ErrUnlinkable, "block %d %s", item.Num, item.ID)
	}
	f.insert(item)
	if f.head == nil || item.Num > f.head.Num {
		f.head = item
	}
	return nil
}

// pushNext links parked descendants of item.
func (f *ForkDB) pushNext(item *Item) {
	children := f.unlinked[item.ID]
	delete(f.unlinked, item.ID)
	for _, b := range children {
		child := &Item{Num: b.BlockNum(), ID: b.ID(), Data: b}
		if err := f.pushItem(child); err == nil {
			f.pushNext(child)
		}
	}
}

func (f *ForkDB) Head() *Item { return f.head }

func (f *ForkDB) SetHead(item *Item) { f.head = item }

// PopBlock moves head to its parent. The popped block stays known so a
// later fork switch can apply it again.
func (f *ForkDB) PopBlock() error {
	if f.head == nil {
		return ErrNoHead
	}
	f.head = f.head.Prev
	return nil
}

// SetMaxSize prunes blocks more than s below head.
func (f *ForkDB) SetMaxSize(s uint32) {
	f.maxSize = s
	if f.head == nil || f.head.Num <= s {
		return
	}
	floor := f.head.Num - s
	for {
		k, v := f.byNum.Min()
		if k == nil || k.(uint32) >= floor {
			break
		}
		for _, item := range v.([]*Item) {
			delete(f.index, item.ID)
		}
		f.byNum.Remove(k)
	}
	for prev, blocks := range f.unlinked {
		if len(blocks) > 0 && blocks[0].BlockNum() < floor {
			delete(f.unlinked, prev)
		}
	}
}

func (f *ForkDB) IsKnownBlock(id protos.BlockID) bool {
	if _, ok := f.index[id]; ok {
		return true
	}
	for _, blocks := range f.unlinked {
		for _, b := range blocks {
			if b.ID() == id {
				return true
			}
		}
	}
	return false
}

func (f *ForkDB) FetchBlock(id protos.BlockID) *Item {
	return f.index[id]
}

func (f *ForkDB) FetchBlockByNumber(num uint32) []*Item {
	v, ok := f.byNum.Get(num)
	if !ok {
		return nil
	}
	return append([]*Item(nil), v.([]*Item)...)
}

// FetchBranchFrom walks both tips back to their common ancestor. Each branch
// runs from its tip down to the first block after the ancestor, so
// branch[len-1].Previous() is the ancestor id.
func (f *ForkDB) FetchBranchFrom(first, second protos.BlockID) ([]*Item, []*Item, error) {
	a, ok := f.index[first]
	if !ok {
		return nil, nil, errors.Wrapf(ErrUnlinkable, "first branch %s", first)
	}
	b, ok := f.index[second]
	if !ok {
		return nil, nil, errors.Wrapf(ErrUnlinkable, "second branch %s", second)
	}
	var br1, br2 []*Item
	for a != nil && b != nil && a.Num > b.Num {
		br1 = append(br1, a)
		a = a.Prev
	}
	for a != nil && b != nil && b.Num > a.Num {
		br2 = append(br2, b)
		b = b.Prev
	}
	for a != nil && b != nil && a.Previous() != b.Previous() {
		br1 = append(br1, a)
		br2 = append(br2, b)
		a, b = a.Prev, b.Prev
	}
	if a == nil || b == nil {
		return nil, nil, errors.Wrap(ErrUnlinkable, "branches share no ancestor in the fork window")
	}
	if a.ID != b.ID {
		br1 = append(br1, a)
		br2 = append(br2, b)
	}
	return br1, br2, nil
}

// Remove drops one block. Descendants stay until pruned.
func (f *ForkDB) Remove(id protos.BlockID) {
	if item, ok := f.index[id]; ok {
		f.erase(item)
	}
}

// MarkInvalid flags a block so nothing can build on it.
func (f *ForkDB) MarkInvalid(id protos.BlockID) {
	if item, ok := f.index[id]; ok {
		item.Invalid = true
	}
}

func (f *ForkDB) Size() int { return len(f.index) }
