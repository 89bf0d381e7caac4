package leveldb

import (
	"math/rand"
	"testing"

	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
)

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return b
}

func makeDB(tb testing.TB) kvdb.Database {
	db, err := kvdb.CreateKVInstance(&kvdb.KVParameter{
		KVEngineType: kvdb.KVEngineTypeLDB,
		StorageType:  kvdb.StorageTypeMemory,
		MemCacheSize: 32,
	})
	if err != nil {
		tb.Fatalf("create kv instance error: %s", err)
	}
	return db
}

func TestBasicOps(t *testing.T) {
	db := makeDB(t)
	defer db.Close()

	if _, err := db.Get([]byte("nope")); err != kvdb.ErrNotFound {
		t.Fatalf("expect ErrNotFound, got %v", err)
	}

	batch := db.NewBatch()
	batch.Put([]byte("a1"), []byte("x"))
	batch.Put([]byte("a2"), []byte("y"))
	batch.Put([]byte("b1"), []byte("z"))
	if err := batch.Write(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.Has([]byte("a2")); !ok {
		t.Fatal("a2 missing")
	}

	it := db.NewIteratorWithPrefix([]byte("a"))
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	it.Release()
	if len(keys) != 2 || keys[0] != "a1" || keys[1] != "a2" {
		t.Fatalf("unexpected prefix scan %v", keys)
	}

	db.Delete([]byte("a1"))
	it = db.NewIteratorWithRange([]byte("a"), []byte("c"))
	if !it.Last() || string(it.Key()) != "b1" {
		t.Fatalf("last should be b1")
	}
	it.Release()
}

func TestTable(t *testing.T) {
	db := makeDB(t)
	defer db.Close()

	blocks := kvdb.NewTable(db, "B")
	other := kvdb.NewTable(db, "C")
	blocks.Put([]byte("1"), []byte("one"))
	other.Put([]byte("1"), []byte("uno"))

	v, err := blocks.Get([]byte("1"))
	if err != nil || string(v) != "one" {
		t.Fatalf("table get %s %v", v, err)
	}
	it := blocks.NewIteratorWithPrefix(nil)
	n := 0
	for it.Next() {
		if string(it.Key()) != "1" {
			t.Errorf("prefix not stripped: %s", it.Key())
		}
		n++
	}
	it.Release()
	if n != 1 {
		t.Fatalf("table iterator leaked other table, n=%d", n)
	}
}

func BenchmarkLdbBatch_Put(b *testing.B) {
	db := makeDB(b)
	defer db.Close()

	keys := make([][]byte, 5)
	for i := 0; i < b.N; i++ {
		batch := db.NewBatch()
		if i > 0 {
			batch.Delete(keys[1])
			batch.Delete(keys[3])
		}
		for j := 0; j < 5; j++ {
			keys[j] = randBytes(64)
			batch.Put(keys[j], randBytes(1024))
		}
		batch.Write()
	}
}

func BenchmarkLdbBatch_Get(b *testing.B) {
	db := makeDB(b)
	defer db.Close()

	key := randBytes(64)
	db.Put(key, randBytes(1024))
	for i := 0; i < b.N; i++ {
		db.Get(key)
	}
}
