package objdb

import (
	"encoding/json"
	"testing"

	"github.com/xuperchain/xupergraph/lib/storage/kvdb"
	_ "github.com/xuperchain/xupergraph/lib/storage/kvdb/leveldb"
	"github.com/xuperchain/xupergraph/protos"
)

type player struct {
	BaseObject
	Name  string
	Score uint64
}

func (*player) ObjectType() (uint8, uint8) { return 9, 1 }

func newTestDB() *Database {
	db := NewDatabase()
	db.RegisterIndex(IndexSpec{
		Space: 9, Type: 1,
		New: func() Object { return new(player) },
		Secondary: []SecondaryIndex{
			{Name: "by_name", Unique: true, Key: func(o Object) []byte { return Key(o.(*player).Name) }},
			{Name: "by_score", Key: func(o Object) []byte { return Key(Descending(o.(*player).Score)) }},
		},
	})
	db.Enable()
	return db
}

// dump renders every observable piece of state.
func dump(t *testing.T, db *Database) string {
	objs := db.All(9, 1)
	byScore, err := db.Range(9, 1, "by_score", nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(struct {
		Objs   []Object
		Scores []Object
		Next   protos.ObjectID
	}{objs, byScore, db.NextID(9, 1)})
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func mustCreate(t *testing.T, db *Database, name string, score uint64) *player {
	p := &player{Name: name, Score: score}
	if err := db.Create(p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCreateAndLookup(t *testing.T) {
	db := newTestDB()
	a := mustCreate(t, db, "alice", 10)
	b := mustCreate(t, db, "bob", 30)
	mustCreate(t, db, "carol", 20)
	if a.ID().Instance != 0 || b.ID().Instance != 1 {
		t.Fatalf("ids not sequential: %s %s", a.ID(), b.ID())
	}
	got, err := db.FindBy(9, 1, "by_name", Key("bob"))
	if err != nil || got != b {
		t.Fatalf("find by name: %v", err)
	}
	if err := db.Create(&player{Name: "bob"}); err == nil {
		t.Fatal("duplicate name must fail")
	}
	if db.NextID(9, 1).Instance != 3 {
		t.Fatal("failed create must not consume an id")
	}
	ranked, _ := db.Range(9, 1, "by_score", nil, nil, 0)
	if ranked[0].(*player).Name != "bob" || ranked[2].(*player).Name != "alice" {
		t.Fatal("descending key order broken")
	}
	if err := db.Modify(a, func() { a.Score = 99 }); err != nil {
		t.Fatal(err)
	}
	top, _ := db.LowerBound(9, 1, "by_score", nil)
	if top != a {
		t.Fatal("modify must reindex")
	}
	if err := db.Modify(a, func() { a.Name = "bob" }); err == nil {
		t.Fatal("unique conflict on modify must fail")
	}
	restored, _ := db.FindBy(9, 1, "by_name", Key("alice"))
	if restored == nil || restored.(*player).Name != "alice" {
		t.Fatal("failed modify must leave the stored object intact")
	}
}

func TestUndoRestoresState(t *testing.T) {
	db := newTestDB()
	a := mustCreate(t, db, "alice", 10)
	b := mustCreate(t, db, "bob", 30)
	before := dump(t, db)

	s := db.StartUndoSession(false)
	mustCreate(t, db, "dave", 5)
	if err := db.Modify(a, func() { a.Name = "alicia"; a.Score = 1 }); err != nil {
		t.Fatal(err)
	}
	if err := db.Modify(a, func() { a.Score = 2 }); err != nil {
		t.Fatal(err)
	}
	if err := db.Remove(b); err != nil {
		t.Fatal(err)
	}
	mustCreate(t, db, "bob", 7)
	s.Undo()

	if after := dump(t, db); after != before {
		t.Fatalf("undo mismatch\nbefore %s\nafter  %s", before, after)
	}
	if _, err := db.FindBy(9, 1, "by_name", Key("alicia")); err != ErrNotFound {
		t.Fatal("modified key must be gone after undo")
	}
}

func TestMergeIntoParent(t *testing.T) {
	db := newTestDB()
	a := mustCreate(t, db, "alice", 10)
	before := dump(t, db)

	outer := db.StartUndoSession(false)
	c := mustCreate(t, db, "carol", 1)
	inner := db.StartUndoSession(false)
	if err := db.Modify(a, func() { a.Score = 50 }); err != nil {
		t.Fatal(err)
	}
	if err := db.Remove(c); err != nil {
		t.Fatal(err)
	}
	a2 := db.Find(a.ID()).(*player)
	if err := db.Remove(a2); err != nil {
		t.Fatal(err)
	}
	inner.Merge()
	if db.Size() != 1 {
		t.Fatalf("merge must pop one state, size %d", db.Size())
	}
	outer.Undo()
	if after := dump(t, db); after != before {
		t.Fatalf("merge then undo mismatch\nbefore %s\nafter  %s", before, after)
	}
}

func TestReleaseUndoesOpenSession(t *testing.T) {
	db := newTestDB()
	before := dump(t, db)
	func() {
		s := db.StartUndoSession(false)
		defer s.Release()
		mustCreate(t, db, "eve", 3)
	}()
	if dump(t, db) != before {
		t.Fatal("release must undo")
	}

	s := db.StartUndoSession(false)
	mustCreate(t, db, "eve", 3)
	s.Commit()
	s.Release()
	if db.Count(9, 1) != 1 {
		t.Fatal("release after commit must keep changes")
	}
}

func TestOutOfOrderSessionPanics(t *testing.T) {
	db := newTestDB()
	outer := db.StartUndoSession(false)
	db.StartUndoSession(false)
	defer func() {
		if recover() == nil {
			t.Fatal("expect panic")
		}
	}()
	outer.Undo()
}

func TestCommitAndPopCommit(t *testing.T) {
	db := newTestDB()
	base := dump(t, db)
	s1 := db.StartUndoSession(false)
	mustCreate(t, db, "b1", 1)
	s1.Commit()
	afterFirst := dump(t, db)
	s2 := db.StartUndoSession(false)
	p := mustCreate(t, db, "b2", 2)
	_ = db.Modify(p, func() { p.Score = 9 })
	s2.Commit()

	open := db.StartUndoSession(false)
	if err := db.PopCommit(); err == nil {
		t.Fatal("pop commit with an open session must fail")
	}
	open.Undo()

	if err := db.PopCommit(); err != nil {
		t.Fatal(err)
	}
	if dump(t, db) != afterFirst {
		t.Fatal("first pop must revert the second block")
	}
	if err := db.PopCommit(); err != nil {
		t.Fatal(err)
	}
	if dump(t, db) != base {
		t.Fatal("second pop must revert the first block")
	}
}

func TestMaxSizeDropsOldest(t *testing.T) {
	db := newTestDB()
	db.SetMaxSize(2)
	for i := 0; i < 4; i++ {
		s := db.StartUndoSession(false)
		mustCreate(t, db, string(rune('a'+i))+"xx", uint64(i))
		s.Commit()
	}
	if db.Size() != 2 {
		t.Fatalf("size %d", db.Size())
	}
	_ = db.PopCommit()
	_ = db.PopCommit()
	if err := db.PopCommit(); err == nil {
		t.Fatal("dropped states cannot be popped")
	}
	if db.Count(9, 1) != 2 {
		t.Fatalf("count %d", db.Count(9, 1))
	}
}

func TestDisabledSessionIsInert(t *testing.T) {
	db := newTestDB()
	db.Disable()
	s := db.StartUndoSession(false)
	mustCreate(t, db, "zed", 1)
	s.Undo()
	if db.Count(9, 1) != 1 {
		t.Fatal("disabled database must not record undo")
	}
	forced := db.StartUndoSession(true)
	mustCreate(t, db, "zoe", 1)
	forced.Undo()
	if db.Count(9, 1) != 1 || db.Enabled() {
		t.Fatal("forced session must undo and disable again")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := kvdb.CreateKVInstance(&kvdb.KVParameter{
		KVEngineType: kvdb.KVEngineTypeLDB,
		StorageType:  kvdb.StorageTypeMemory,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	db := newTestDB()
	mustCreate(t, db, "alice", 10)
	b := mustCreate(t, db, "bob", 20)
	mustCreate(t, db, "carol", 30)
	_ = db.Remove(b)
	if err := db.Flush(store); err != nil {
		t.Fatal(err)
	}
	want := dump(t, db)

	loaded := newTestDB()
	found, err := loaded.Load(store)
	if err != nil || !found {
		t.Fatalf("load: %v %v", found, err)
	}
	if got := dump(t, loaded); got != want {
		t.Fatalf("snapshot mismatch\nwant %s\ngot  %s", want, got)
	}

	empty := newTestDB()
	if err := db.Flush(store); err != nil {
		t.Fatal(err)
	}
	fresh, _ := kvdb.CreateKVInstance(&kvdb.KVParameter{KVEngineType: kvdb.KVEngineTypeLDB, StorageType: kvdb.StorageTypeMemory})
	defer fresh.Close()
	if found, _ := empty.Load(fresh); found {
		t.Fatal("empty store holds no snapshot")
	}
}

func TestKeyOrdering(t *testing.T) {
	cases := [][2][]byte{
		{Key(int64(-5)), Key(int64(3))},
		{Key("ab"), Key("abc")},
		{Key(Descending(9)), Key(Descending(2))},
		{Key(uint32(1), "z"), Key(uint32(2), "a")},
	}
	for i, c := range cases {
		if string(c[0]) >= string(c[1]) {
			t.Errorf("case %d out of order", i)
		}
	}
}

type holder struct {
	BaseObject
	Key    protos.PublicKey
	Parent *protos.ObjectID `rlp:"nil"`
	Tags   []string
}

func (*holder) ObjectType() (uint8, uint8) { return 9, 2 }

func TestCloneKeepsUnsetFields(t *testing.T) {
	db := NewDatabase()
	db.RegisterIndex(IndexSpec{Space: 9, Type: 2, New: func() Object { return new(holder) }})
	db.Enable()

	h := &holder{Tags: []string{"x"}}
	if err := db.Create(h); err != nil {
		t.Fatal(err)
	}
	s := db.StartUndoSession(false)
	parent := protos.NewObjectID(1, 2, 7)
	if err := db.Modify(h, func() {
		h.Key[0] = 2
		h.Parent = &parent
		h.Tags = append(h.Tags, "y")
	}); err != nil {
		t.Fatal(err)
	}
	s.Undo()

	got := db.Find(h.ID()).(*holder)
	if !got.Key.IsZero() || got.Parent != nil || len(got.Tags) != 1 || got.Tags[0] != "x" {
		t.Fatalf("undo restored %+v", got)
	}
	cp, err := db.Copy(h.ID())
	if err != nil {
		t.Fatal(err)
	}
	if cp == got || cp.ID() != got.ID() {
		t.Fatal("copy must be a distinct object with the same id")
	}
}
