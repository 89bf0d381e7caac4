package sandbox

import (
	"errors"

	"github.com/xuperchain/xupergraph/protos"
)

var (
	// ErrHasDel is returned when key was marked as del
	ErrHasDel = errors.New("Key has been mark as del")
	// ErrNotFound is returned when key is not found
	ErrNotFound = errors.New("Key not found")
	// ErrUnknownBucket is returned for buckets other than public and private data
	ErrUnknownBucket = errors.New("unknown data bucket")
)

// DataTrees holds the stored trees a call may touch. Flush writes into them.
type DataTrees struct {
	Public  *protos.LuaValue
	Private *protos.LuaValue
}

func (d DataTrees) bucket(name string) (*protos.LuaValue, error) {
	switch name {
	case PublicBucket:
		return d.Public, nil
	case PrivateBucket:
		return d.Private, nil
	}
	return nil, ErrUnknownBucket
}

// PathValue is one entry of a read or write set. Deleted writes carry a nil value.
type PathValue struct {
	Bucket string
	Path   Path
	Value  protos.LuaValue
}

// RWSet lists what a call read from and wrote to its data trees.
type RWSet struct {
	RSet []PathValue
	WSet []PathValue
}

// XMCache caches the declared reads and writes of one contract call. Reads
// come from the stored trees and are recorded; writes stay in the cache
// until Flush.
type XMCache struct {
	// Key: bucket/path; Value: value read from the store
	inputsCache *MemXModel
	// Key: bucket/path; Value: subtree written, nil when deleted
	outputsCache *MemXModel
	// writes already flushed, kept for the write set
	flushed *MemXModel

	model DataTrees
}

// NewXModelCache new an instance of XModel Cache
func NewXModelCache(model DataTrees) *XMCache {
	return &XMCache{
		model:        model,
		inputsCache:  NewMemXModel(),
		outputsCache: NewMemXModel(),
		flushed:      NewMemXModel(),
	}
}

// Get returns the value at path, seeing writes not yet flushed.
func (xc *XMCache) Get(bucket string, path Path) (protos.LuaValue, error) {
	// Level1: a write at the path or above it
	for i := len(path); i >= 0; i-- {
		v, ok := xc.outputsCache.Get(bucket, path[:i])
		if !ok {
			continue
		}
		if v.IsNil() {
			return protos.LuaValue{}, ErrHasDel
		}
		got, found := lookup(v, path[i:])
		if !found {
			return protos.LuaValue{}, ErrNotFound
		}
		return got.Clone(), nil
	}

	// Level2: the store, then writes below the path on top of it
	v, err := xc.getAndSetFromInputsCache(bucket, path)
	if err != nil && err != ErrNotFound {
		return protos.LuaValue{}, err
	}
	v = v.Clone()
	below := false
	it := xc.outputsCache.Below(bucket, path)
	for it.Next() {
		_, p, perr := parseRawKey(it.Key())
		if perr != nil {
			return protos.LuaValue{}, perr
		}
		assign(&v, p[len(path):], it.Value().Clone())
		below = true
	}
	if err == ErrNotFound && !below {
		return protos.LuaValue{}, ErrNotFound
	}
	return v, nil
}

func (xc *XMCache) getAndSetFromInputsCache(bucket string, path Path) (protos.LuaValue, error) {
	root, err := xc.model.bucket(bucket)
	if err != nil {
		return protos.LuaValue{}, err
	}
	v, ok := lookup(*root, path)
	// the read set keeps the first value seen, misses included
	if _, seen := xc.inputsCache.Get(bucket, path); !seen {
		xc.inputsCache.Put(bucket, path, v.Clone())
	}
	if !ok || v.IsNil() {
		return protos.LuaValue{}, ErrNotFound
	}
	return v, nil
}

// Has reports whether path holds a value, without recording a read.
func (xc *XMCache) Has(bucket string, path Path) bool {
	for i := len(path); i >= 0; i-- {
		if v, ok := xc.outputsCache.Get(bucket, path[:i]); ok {
			got, found := lookup(v, path[i:])
			return found && !got.IsNil()
		}
	}
	if it := xc.outputsCache.Below(bucket, path); it.Next() {
		return true
	}
	root, err := xc.model.bucket(bucket)
	if err != nil {
		return false
	}
	v, ok := lookup(*root, path)
	return ok && !v.IsNil()
}

// Select returns the entries of the table at path with index in [start, stop).
func (xc *XMCache) Select(bucket string, path Path, start, stop int) ([]protos.LuaField, error) {
	v, err := xc.Get(bucket, path)
	if err != nil {
		return nil, err
	}
	if start < 0 {
		start = 0
	}
	if stop > len(v.Table) {
		stop = len(v.Table)
	}
	if start >= stop {
		return nil, nil
	}
	return v.Table[start:stop], nil
}

// Put records value at path. Writes below the path are superseded.
func (xc *XMCache) Put(bucket string, path Path, value protos.LuaValue) error {
	if _, err := xc.model.bucket(bucket); err != nil {
		return err
	}
	var stale [][]byte
	it := xc.outputsCache.Below(bucket, path)
	for it.Next() {
		stale = append(stale, it.Key())
	}
	for _, k := range stale {
		xc.outputsCache.tree.Remove(k)
	}
	xc.outputsCache.Put(bucket, path, value.Clone())
	return nil
}

// Del delete one path, marked by a nil value until Flush.
func (xc *XMCache) Del(bucket string, path Path) error {
	return xc.Put(bucket, path, protos.LuaNil())
}

// Flush applies the writes to the stored trees in key order.
func (xc *XMCache) Flush() error {
	it := xc.outputsCache.NewIterator()
	for it.Next() {
		bucket, path, err := parseRawKey(it.Key())
		if err != nil {
			return err
		}
		root, err := xc.model.bucket(bucket)
		if err != nil {
			return err
		}
		assign(root, path, it.Value().Clone())
		xc.flushed.tree.Put(it.Key(), it.Value())
		if root.IsNil() {
			*root = protos.LuaTable()
		}
	}
	xc.outputsCache = NewMemXModel()
	return nil
}

// RWSet get read/write sets
func (xc *XMCache) RWSet() *RWSet {
	return &RWSet{
		RSet: collect(xc.inputsCache),
		WSet: append(collect(xc.flushed), collect(xc.outputsCache)...),
	}
}

func collect(m *MemXModel) []PathValue {
	var out []PathValue
	it := m.NewIterator()
	for it.Next() {
		bucket, path, err := parseRawKey(it.Key())
		if err != nil {
			continue
		}
		out = append(out, PathValue{Bucket: bucket, Path: path, Value: it.Value()})
	}
	return out
}
