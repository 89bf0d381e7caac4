package sandbox

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/xuperchain/xupergraph/protos"
)

// Contract data buckets. Each call sees the contract's public data and the
// caller's private data under these names.
const (
	PublicBucket  = "public_data"
	PrivateBucket = "private_data"
)

// BucketSeperator separator between bucket and raw key
const BucketSeperator = "/"

// maxTreeDepth bounds table nesting converted between the VM and the store.
const maxTreeDepth = 64

// Path is a key path into a data tree.
type Path []protos.LuaValue

func (p Path) String() string {
	var buf bytes.Buffer
	for i, k := range p {
		if i > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(k.Data)
	}
	return buf.String()
}

func (p Path) child(k protos.LuaValue) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, k)
}

// makeRawKey encodes bucket and path so that byte order follows key order and
// the key of a path is a prefix of the keys of everything below it.
func makeRawKey(bucket string, path Path) []byte {
	k := append([]byte(bucket), []byte(BucketSeperator)...)
	for _, e := range path {
		k = appendElem(k, e)
	}
	return k
}

func parseRawKey(rawKey []byte) (string, Path, error) {
	idx := bytes.Index(rawKey, []byte(BucketSeperator))
	if idx < 0 {
		return "", nil, fmt.Errorf("parseRawKey failed, invalid raw key:%x", rawKey)
	}
	bucket := string(rawKey[:idx])
	rest := rawKey[idx+1:]
	var path Path
	for len(rest) > 0 {
		e, n, err := readElem(rest)
		if err != nil {
			return "", nil, err
		}
		path = append(path, e)
		rest = rest[n:]
	}
	return bucket, path, nil
}

func appendElem(k []byte, e protos.LuaValue) []byte {
	k = append(k, byte(e.Type))
	var w [8]byte
	switch e.Type {
	case protos.LuaTypeBool:
		if e.Bool() {
			return append(k, 1)
		}
		return append(k, 0)
	case protos.LuaTypeInt:
		binary.BigEndian.PutUint64(w[:], uint64(e.Int())^(1<<63))
		return append(k, w[:]...)
	case protos.LuaTypeNumber:
		bits := math.Float64bits(e.Number())
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits ^= 1 << 63
		}
		binary.BigEndian.PutUint64(w[:], bits)
		return append(k, w[:]...)
	}
	for i := 0; i < len(e.Data); i++ {
		if e.Data[i] == 0 {
			k = append(k, 0, 0xff)
			continue
		}
		k = append(k, e.Data[i])
	}
	return append(k, 0, 0)
}

func readElem(b []byte) (protos.LuaValue, int, error) {
	typ := protos.LuaType(b[0])
	switch typ {
	case protos.LuaTypeBool:
		if len(b) < 2 {
			return protos.LuaValue{}, 0, fmt.Errorf("short bool key")
		}
		return protos.LuaBool(b[1] == 1), 2, nil
	case protos.LuaTypeInt, protos.LuaTypeNumber:
		if len(b) < 9 {
			return protos.LuaValue{}, 0, fmt.Errorf("short numeric key")
		}
		bits := binary.BigEndian.Uint64(b[1:9])
		if typ == protos.LuaTypeInt {
			return protos.LuaInt(int64(bits ^ (1 << 63))), 9, nil
		}
		if bits&(1<<63) != 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return protos.LuaNumber(math.Float64frombits(bits)), 9, nil
	case protos.LuaTypeString:
		var s []byte
		for i := 1; i+1 < len(b); i++ {
			if b[i] != 0 {
				s = append(s, b[i])
				continue
			}
			if b[i+1] == 0 {
				return protos.LuaString(string(s)), i + 2, nil
			}
			s = append(s, 0)
			i++
		}
		return protos.LuaValue{}, 0, fmt.Errorf("unterminated string key")
	}
	return protos.LuaValue{}, 0, fmt.Errorf("bad key type %d", typ)
}

// lookup walks path from root.
func lookup(root protos.LuaValue, path Path) (protos.LuaValue, bool) {
	cur := root
	for _, k := range path {
		if cur.Type != protos.LuaTypeTable {
			return protos.LuaValue{}, false
		}
		next, ok := cur.Get(k)
		if !ok {
			return protos.LuaValue{}, false
		}
		cur = next
	}
	return cur, true
}

// assign stores v at path below root, creating intermediate tables. A nil v
// removes the entry.
func assign(root *protos.LuaValue, path Path, v protos.LuaValue) {
	if len(path) == 0 {
		*root = v
		return
	}
	if root.Type != protos.LuaTypeTable {
		*root = protos.LuaTable()
	}
	if len(path) == 1 {
		root.Set(path[0], v)
		return
	}
	child, ok := root.Get(path[0])
	if !ok {
		if v.IsNil() {
			return
		}
		child = protos.LuaTable()
	}
	assign(&child, path[1:], v)
	root.Set(path[0], child)
}

// keyOf turns a declared list key into a table key. Lists come back from the
// VM with string keys, so numeric keys are resolved against what the table holds.
func keyOf(name string, has func(protos.LuaValue) bool) protos.LuaValue {
	s := protos.LuaString(name)
	if has(s) {
		return s
	}
	if i, err := strconv.ParseInt(name, 10, 64); err == nil {
		if k := protos.LuaInt(i); has(k) {
			return k
		}
	}
	if f, err := strconv.ParseFloat(name, 64); err == nil {
		if k := protos.LuaNumber(f); has(k) {
			return k
		}
	}
	return s
}

// ToLValue builds the VM form of v.
func ToLValue(L *lua.LState, v protos.LuaValue) lua.LValue {
	switch v.Type {
	case protos.LuaTypeBool:
		return lua.LBool(v.Bool())
	case protos.LuaTypeInt, protos.LuaTypeNumber:
		return lua.LNumber(v.Number())
	case protos.LuaTypeString:
		return lua.LString(v.Data)
	case protos.LuaTypeTable:
		t := L.CreateTable(0, len(v.Table))
		for _, f := range v.Table {
			t.RawSet(ToLValue(L, f.Key), ToLValue(L, f.Value))
		}
		return t
	}
	return lua.LNil
}

// FromLValue converts a VM value for storage. Functions and userdata are
// dropped, cyclic or too deep tables are an error.
func FromLValue(lv lua.LValue) (protos.LuaValue, error) {
	return fromLValue(lv, 0)
}

func fromLValue(lv lua.LValue, depth int) (protos.LuaValue, error) {
	if depth > maxTreeDepth {
		return protos.LuaValue{}, fmt.Errorf("table nesting exceeds %d", maxTreeDepth)
	}
	switch v := lv.(type) {
	case lua.LBool:
		return protos.LuaBool(bool(v)), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return protos.LuaInt(int64(f)), nil
		}
		return protos.LuaNumber(f), nil
	case lua.LString:
		return protos.LuaString(string(v)), nil
	case *lua.LTable:
		out := protos.LuaTable()
		var err error
		v.ForEach(func(k, val lua.LValue) {
			if err != nil {
				return
			}
			var key, value protos.LuaValue
			if key, err = fromLValue(k, depth+1); err != nil {
				return
			}
			if value, err = fromLValue(val, depth+1); err != nil {
				return
			}
			if key.IsNil() || key.Type == protos.LuaTypeTable {
				return
			}
			out.Set(key, value)
		})
		return out, err
	}
	return protos.LuaValue{}, nil
}
