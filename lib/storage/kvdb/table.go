package kvdb

// Table scopes a Database to one key prefix.
type Table struct {
	db     Database
	prefix string
}

type tableBatch struct {
	batch  Batch
	prefix string
}

func NewTable(db Database, prefix string) Database {
	return &Table{db: db, prefix: prefix}
}

func (t *Table) Open(path string, options map[string]interface{}) error {
	return nil
}

func (t *Table) Put(key []byte, value []byte) error {
	return t.db.Put(append([]byte(t.prefix), key...), value)
}

func (t *Table) Get(key []byte) ([]byte, error) {
	return t.db.Get(append([]byte(t.prefix), key...))
}

func (t *Table) Has(key []byte) (bool, error) {
	return t.db.Has(append([]byte(t.prefix), key...))
}

func (t *Table) Delete(key []byte) error {
	return t.db.Delete(append([]byte(t.prefix), key...))
}

// Close leaves the shared database open.
func (t *Table) Close() {}

func (t *Table) NewBatch() Batch {
	return &tableBatch{batch: t.db.NewBatch(), prefix: t.prefix}
}

// NewTableBatch scopes batch to prefix, so several tables of one database
// can be written atomically.
func NewTableBatch(batch Batch, prefix string) Batch {
	return &tableBatch{batch: batch, prefix: prefix}
}

func (t *Table) NewIteratorWithRange(start []byte, limit []byte) Iterator {
	var s, l []byte
	s = append([]byte(t.prefix), start...)
	if limit == nil {
		_, l = BytesPrefix([]byte(t.prefix))
	} else {
		l = append([]byte(t.prefix), limit...)
	}
	return &tableIterator{Iterator: t.db.NewIteratorWithRange(s, l), skip: len(t.prefix)}
}

func (t *Table) NewIteratorWithPrefix(prefix []byte) Iterator {
	return &tableIterator{
		Iterator: t.db.NewIteratorWithPrefix(append([]byte(t.prefix), prefix...)),
		skip:     len(t.prefix),
	}
}

type tableIterator struct {
	Iterator
	skip int
}

func (it *tableIterator) Key() []byte {
	k := it.Iterator.Key()
	if len(k) < it.skip {
		return nil
	}
	return k[it.skip:]
}

func (tb *tableBatch) Put(key, value []byte) error {
	return tb.batch.Put(append([]byte(tb.prefix), key...), value)
}

func (tb *tableBatch) Delete(key []byte) error {
	return tb.batch.Delete(append([]byte(tb.prefix), key...))
}

func (tb *tableBatch) Write() error {
	return tb.batch.Write()
}

func (tb *tableBatch) ValueSize() int {
	return tb.batch.ValueSize()
}

func (tb *tableBatch) Reset() {
	tb.batch.Reset()
}
