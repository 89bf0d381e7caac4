package objdb

import (
	"fmt"

	"github.com/xuperchain/xupergraph/protos"
)

// undoState is everything needed to revert one session.
type undoState struct {
	oldValues  map[protos.ObjectID]Object
	removed    map[protos.ObjectID]Object
	newIDs     map[protos.ObjectID]struct{}
	oldNextIDs map[uint16]uint64
}

func newUndoState() *undoState {
	return &undoState{
		oldValues:  make(map[protos.ObjectID]Object),
		removed:    make(map[protos.ObjectID]Object),
		newIDs:     make(map[protos.ObjectID]struct{}),
		oldNextIDs: make(map[uint16]uint64),
	}
}

// Session is a handle on one undo state. A session that is neither undone,
// merged nor committed is undone by Release.
type Session struct {
	db            *Database
	apply         bool
	revision      int
	disableOnExit bool
}

// StartUndoSession pushes a new undo state. While the database is disabled
// the returned session is inert unless force is set.
func (db *Database) StartUndoSession(force bool) *Session {
	if db.disabled && !force {
		return &Session{db: db}
	}
	s := &Session{db: db, apply: true}
	if force && db.disabled {
		db.disabled = false
		s.disableOnExit = true
	}
	db.stack = append(db.stack, newUndoState())
	db.activeSessions++
	if db.maxSize > 0 && len(db.stack) > db.maxSize {
		db.stack[0] = nil
		db.stack = db.stack[1:]
		db.dropped++
	}
	s.revision = db.Revision()
	return s
}

func (s *Session) checkTop() {
	if s.db.Revision() != s.revision {
		panic(fmt.Sprintf("objdb: session %d closed out of order, top is %d", s.revision, s.db.Revision()))
	}
}

func (s *Session) exit() {
	s.apply = false
	if s.disableOnExit {
		s.db.disabled = true
	}
}

// Undo reverts every change made since the session started.
func (s *Session) Undo() {
	if !s.apply {
		return
	}
	s.checkTop()
	s.db.undo()
	s.exit()
}

// Merge folds the session's changes into the parent state.
func (s *Session) Merge() {
	if !s.apply {
		return
	}
	s.checkTop()
	s.db.merge()
	s.exit()
}

// Commit keeps the changes and leaves the state on the stack so PopCommit can
// still revert it.
func (s *Session) Commit() {
	if !s.apply {
		return
	}
	s.checkTop()
	s.db.activeSessions--
	s.exit()
}

// Release undoes the session unless it was already closed.
func (s *Session) Release() {
	if s.apply {
		s.Undo()
	}
}

func (s *Session) Active() bool { return s.apply }

// Revision counts undo states pushed and still retained, dropped ones included.
func (db *Database) Revision() int { return db.dropped + len(db.stack) }

func (db *Database) Size() int { return len(db.stack) }

func (db *Database) SetMaxSize(n int) {
	db.maxSize = n
	for db.maxSize > 0 && len(db.stack) > db.maxSize {
		db.stack[0] = nil
		db.stack = db.stack[1:]
		db.dropped++
	}
}

func (db *Database) Enable()       { db.disabled = false }
func (db *Database) Disable()      { db.disabled = true }
func (db *Database) Enabled() bool { return !db.disabled }

func (db *Database) top() *undoState {
	if db.disabled || len(db.stack) == 0 {
		return nil
	}
	return db.stack[len(db.stack)-1]
}

func (db *Database) onCreate(idx *index, obj Object) {
	st := db.top()
	if st == nil {
		return
	}
	k := indexKey(idx.spec.Space, idx.spec.Type)
	if _, ok := st.oldNextIDs[k]; !ok {
		st.oldNextIDs[k] = idx.nextID
	}
	st.newIDs[obj.ID()] = struct{}{}
}

func (db *Database) onModify(idx *index, preImage Object) {
	st := db.top()
	if st == nil {
		return
	}
	id := preImage.ID()
	if _, ok := st.newIDs[id]; ok {
		return
	}
	if _, ok := st.oldValues[id]; ok {
		return
	}
	st.oldValues[id] = preImage
}

func (db *Database) onRemove(idx *index, obj Object) {
	st := db.top()
	if st == nil {
		return
	}
	id := obj.ID()
	if _, ok := st.newIDs[id]; ok {
		delete(st.newIDs, id)
		return
	}
	if old, ok := st.oldValues[id]; ok {
		st.removed[id] = old
		delete(st.oldValues, id)
		return
	}
	if _, ok := st.removed[id]; ok {
		return
	}
	st.removed[id] = idx.clone(obj)
}

// restore applies st in reverse: created objects go away, modified objects get
// their pre images back, next ids rewind, removed objects come back.
func (db *Database) restore(st *undoState) {
	for id := range st.newIDs {
		idx := db.indexes[indexKey(id.Space, id.Type)]
		idx.erase(id.Instance)
	}
	for id := range st.oldValues {
		idx := db.indexes[indexKey(id.Space, id.Type)]
		idx.erase(id.Instance)
	}
	for id, old := range st.oldValues {
		idx := db.indexes[indexKey(id.Space, id.Type)]
		if err := idx.insert(old); err != nil {
			panic(fmt.Sprintf("objdb: restore %s: %v", id, err))
		}
	}
	for k, next := range st.oldNextIDs {
		db.indexes[k].nextID = next
	}
	for id, obj := range st.removed {
		idx := db.indexes[indexKey(id.Space, id.Type)]
		if err := idx.insert(obj); err != nil {
			panic(fmt.Sprintf("objdb: restore removed %s: %v", id, err))
		}
	}
}

func (db *Database) undo() {
	st := db.stack[len(db.stack)-1]
	db.restore(st)
	db.stack[len(db.stack)-1] = nil
	db.stack = db.stack[:len(db.stack)-1]
	db.activeSessions--
}

func (db *Database) merge() {
	if len(db.stack) == 1 {
		db.stack[0] = nil
		db.stack = db.stack[:0]
		db.dropped++
		db.activeSessions--
		return
	}
	st := db.stack[len(db.stack)-1]
	prev := db.stack[len(db.stack)-2]

	for id, old := range st.oldValues {
		if _, ok := prev.newIDs[id]; ok {
			continue
		}
		if _, ok := prev.oldValues[id]; ok {
			continue
		}
		prev.oldValues[id] = old
	}
	for id := range st.newIDs {
		prev.newIDs[id] = struct{}{}
	}
	for k, next := range st.oldNextIDs {
		if _, ok := prev.oldNextIDs[k]; !ok {
			prev.oldNextIDs[k] = next
		}
	}
	for id, obj := range st.removed {
		if _, ok := prev.newIDs[id]; ok {
			delete(prev.newIDs, id)
			continue
		}
		if old, ok := prev.oldValues[id]; ok {
			prev.removed[id] = old
			delete(prev.oldValues, id)
			continue
		}
		prev.removed[id] = obj
	}
	db.stack[len(db.stack)-1] = nil
	db.stack = db.stack[:len(db.stack)-1]
	db.activeSessions--
}

// PopCommit reverts the newest committed state. No session may be open.
func (db *Database) PopCommit() error {
	if db.activeSessions != 0 {
		return fmt.Errorf("objdb: pop commit with %d active sessions", db.activeSessions)
	}
	if len(db.stack) == 0 {
		return fmt.Errorf("objdb: no committed state to pop")
	}
	wasDisabled := db.disabled
	db.disabled = true
	st := db.stack[len(db.stack)-1]
	db.restore(st)
	db.stack[len(db.stack)-1] = nil
	db.stack = db.stack[:len(db.stack)-1]
	db.disabled = wasDisabled
	return nil
}

// Commit forgets every undo state up to revision, they can no longer be popped.
func (db *Database) Commit(revision int) {
	for len(db.stack) > 0 && db.dropped < revision {
		db.stack[0] = nil
		db.stack = db.stack[1:]
		db.dropped++
	}
}

// UndoAll reverts every retained state.
func (db *Database) UndoAll() {
	for len(db.stack) > 0 {
		db.restore(db.stack[len(db.stack)-1])
		db.stack[len(db.stack)-1] = nil
		db.stack = db.stack[:len(db.stack)-1]
	}
	db.activeSessions = 0
}
