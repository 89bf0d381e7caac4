package sandbox

import (
	"testing"

	"github.com/xuperchain/xupergraph/protos"
)

func str(s string) protos.LuaValue { return protos.LuaString(s) }

func newTrees() DataTrees {
	pub := protos.LuaTable(
		protos.LuaField{Key: str("count"), Value: protos.LuaInt(3)},
		protos.LuaField{Key: str("owner"), Value: protos.LuaTable(
			protos.LuaField{Key: str("name"), Value: str("alice")},
		)},
	)
	priv := protos.LuaTable()
	return DataTrees{Public: &pub, Private: &priv}
}

func TestXMCachePutGet(t *testing.T) {
	testCases := []struct {
		Path  Path
		Value string
		Op    string
	}{
		{Path{str("k1")}, "v1", "put"},
		{Path{str("k1")}, "v1", "get"},
		{Path{str("k1")}, "v2", "put"},
		{Path{str("k1")}, "v2", "get"},
		{Path{str("k2"), str("a")}, "v3", "put"},
		{Path{str("k2"), str("a")}, "v3", "get"},
	}
	mc := NewXModelCache(newTrees())
	for _, test := range testCases {
		switch test.Op {
		case "put":
			if err := mc.Put(PublicBucket, test.Path, str(test.Value)); err != nil {
				t.Fatal(err)
			}
		case "get":
			v, err := mc.Get(PublicBucket, test.Path)
			if err != nil {
				t.Fatal(err)
			}
			if v.Data != test.Value {
				t.Errorf("expect %s got %s", test.Value, v.Data)
			}
		}
	}
}

func TestXMCacheOverlay(t *testing.T) {
	mc := NewXModelCache(newTrees())
	if err := mc.Put(PublicBucket, Path{str("owner"), str("age")}, protos.LuaInt(30)); err != nil {
		t.Fatal(err)
	}
	owner, err := mc.Get(PublicBucket, Path{str("owner")})
	if err != nil {
		t.Fatal(err)
	}
	if name, ok := owner.Get(str("name")); !ok || name.Data != "alice" {
		t.Errorf("stored field lost: %v", owner)
	}
	if age, ok := owner.Get(str("age")); !ok || age.Int() != 30 {
		t.Errorf("pending write not visible: %v", owner)
	}

	if err := mc.Del(PublicBucket, Path{str("owner")}); err != nil {
		t.Fatal(err)
	}
	if _, err := mc.Get(PublicBucket, Path{str("owner"), str("name")}); err != ErrHasDel {
		t.Errorf("expect ErrHasDel got %v", err)
	}
	if mc.Has(PublicBucket, Path{str("owner")}) {
		t.Error("deleted path still reported")
	}
	if _, err := mc.Get(PublicBucket, Path{str("missing")}); err != ErrNotFound {
		t.Errorf("expect ErrNotFound got %v", err)
	}
	if err := mc.Put("other", Path{str("x")}, str("y")); err != ErrUnknownBucket {
		t.Errorf("expect ErrUnknownBucket got %v", err)
	}
}

func TestXMCacheFlush(t *testing.T) {
	trees := newTrees()
	mc := NewXModelCache(trees)
	if _, err := mc.Get(PublicBucket, Path{str("count")}); err != nil {
		t.Fatal(err)
	}
	mc.Put(PublicBucket, Path{str("count")}, protos.LuaInt(4))
	mc.Del(PublicBucket, Path{str("owner")})
	mc.Put(PrivateBucket, Path{protos.LuaInt(1)}, str("first"))
	if err := mc.Flush(); err != nil {
		t.Fatal(err)
	}

	if v, _ := trees.Public.Get(str("count")); v.Int() != 4 {
		t.Errorf("count not flushed: %v", v)
	}
	if _, ok := trees.Public.Get(str("owner")); ok {
		t.Error("owner not removed")
	}
	if v, _ := trees.Private.Get(protos.LuaInt(1)); v.Data != "first" {
		t.Errorf("private write not flushed: %v", v)
	}
	// reads after flush see the store
	if v, err := mc.Get(PublicBucket, Path{str("count")}); err != nil || v.Int() != 4 {
		t.Errorf("read after flush: %v %v", v, err)
	}

	rw := mc.RWSet()
	if len(rw.RSet) != 1 || rw.RSet[0].Value.Int() != 3 {
		t.Errorf("read set should keep the first read: %+v", rw.RSet)
	}
	if len(rw.WSet) != 3 {
		t.Errorf("expect 3 writes got %d", len(rw.WSet))
	}
}

func TestXMCacheSelect(t *testing.T) {
	list := protos.LuaTable()
	for i := int64(1); i <= 5; i++ {
		list.Set(protos.LuaInt(i), protos.LuaInt(i*10))
	}
	pub := protos.LuaTable(protos.LuaField{Key: str("list"), Value: list})
	priv := protos.LuaTable()
	mc := NewXModelCache(DataTrees{Public: &pub, Private: &priv})

	fields, err := mc.Select(PublicBucket, Path{str("list")}, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 2 || fields[0].Value.Int() != 20 || fields[1].Value.Int() != 30 {
		t.Errorf("unexpected range %+v", fields)
	}
	if fields, _ := mc.Select(PublicBucket, Path{str("list")}, 4, 100); len(fields) != 1 {
		t.Errorf("stop should clamp, got %d", len(fields))
	}
}

func TestRawKeyOrder(t *testing.T) {
	keys := []Path{
		{str("a")},
		{str("a"), protos.LuaInt(-5)},
		{str("a"), protos.LuaInt(2)},
		{str("a"), str("b")},
		{str("a\x00b")},
		{str("ab")},
	}
	var prev []byte
	for _, p := range keys {
		k := makeRawKey(PublicBucket, p)
		if prev != nil && string(prev) >= string(k) {
			t.Errorf("key of %s does not sort after the previous one", p)
		}
		prev = k
		bucket, back, err := parseRawKey(k)
		if err != nil {
			t.Fatal(err)
		}
		if bucket != PublicBucket || back.String() != p.String() || len(back) != len(p) {
			t.Errorf("parse %s got %s/%s", p, bucket, back)
		}
	}
}
