package badger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
)

func TestBadgerMemory(t *testing.T) {
	db, err := kvdb.CreateKVInstance(&kvdb.KVParameter{
		KVEngineType: kvdb.KVEngineTypeBadger,
		StorageType:  kvdb.StorageTypeMemory,
	})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Get([]byte("k"))
	require.Equal(t, kvdb.ErrNotFound, err)

	b := db.NewBatch()
	require.NoError(t, b.Put([]byte("p/1"), []byte("a")))
	require.NoError(t, b.Put([]byte("p/2"), []byte("b")))
	require.NoError(t, b.Put([]byte("q/1"), []byte("c")))
	require.NoError(t, b.Write())

	it := db.NewIteratorWithPrefix([]byte("p/"))
	var got []string
	for it.Next() {
		got = append(got, string(it.Value()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"a", "b"}, got)
	require.True(t, it.Last())
	require.True(t, it.Prev())
	require.Equal(t, "p/1", string(it.Key()))
	it.Release()

	require.NoError(t, db.Delete([]byte("p/1")))
	ok, err := db.Has([]byte("p/1"))
	require.NoError(t, err)
	require.False(t, ok)
}
