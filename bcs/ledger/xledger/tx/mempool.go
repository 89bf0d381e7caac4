// Package tx keeps the transactions waiting for a block.
package tx

import (
	"errors"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/patrickmn/go-cache"

	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

const (
	defaultMaxtxLimit = 100000 // 默认最多10w个未确认交易

	knownCleanupInterval = time.Minute
)

var (
	// ErrTxExist tx already in the pending pool when put tx.
	ErrTxExist = errors.New("tx already in mempool")
	ErrTxFull  = errors.New("the tx mempool is full")
)

// Mempool holds the pending transactions in the order they were applied to
// the pending session, plus the transactions of popped blocks waiting to be
// pushed again.
//
// It does no validation: whatever is in it was applied once against some
// head state and must be applied again after the head moves.
type Mempool struct {
	log     logs.Logger
	txLimit int

	m       sync.Mutex
	pending deque.Deque // *protos.ProcessedTransaction
	ids     map[protos.TxID]struct{}
	popped  deque.Deque // *protos.SignedTransaction

	// ids seen recently, expiring with the transaction
	known *cache.Cache
}

func NewMempool(log logs.Logger, txLimit int) *Mempool {
	if txLimit <= 0 {
		txLimit = defaultMaxtxLimit
	}
	return &Mempool{
		log:     log,
		txLimit: txLimit,
		ids:     make(map[protos.TxID]struct{}),
		known:   cache.New(cache.NoExpiration, knownCleanupInterval),
	}
}

// PutTx appends an applied transaction.
func (m *Mempool) PutTx(ptx *protos.ProcessedTransaction) error {
	if ptx == nil {
		return errors.New("can not put nil tx into mempool")
	}
	m.m.Lock()
	defer m.m.Unlock()

	if m.pending.Len() >= m.txLimit {
		return ErrTxFull
	}
	id := ptx.ID()
	if _, ok := m.ids[id]; ok {
		return ErrTxExist
	}
	m.pending.PushBack(ptx)
	m.ids[id] = struct{}{}
	m.markKnown(id, ptx.Expiration)
	return nil
}

// HasTx reports whether the transaction is pending.
func (m *Mempool) HasTx(id protos.TxID) bool {
	m.m.Lock()
	defer m.m.Unlock()
	_, ok := m.ids[id]
	return ok
}

func (m *Mempool) GetTxCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.pending.Len()
}

func (m *Mempool) Full() bool {
	m.m.Lock()
	defer m.m.Unlock()
	return m.pending.Len() >= m.txLimit
}

// Range visits the pending transactions in order until f returns false.
func (m *Mempool) Range(f func(ptx *protos.ProcessedTransaction) bool) {
	m.m.Lock()
	defer m.m.Unlock()
	for i := 0; i < m.pending.Len(); i++ {
		if !f(m.pending.At(i).(*protos.ProcessedTransaction)) {
			return
		}
	}
}

// DrainPending empties the pending queue and returns its content in order.
func (m *Mempool) DrainPending() []*protos.ProcessedTransaction {
	m.m.Lock()
	defer m.m.Unlock()
	out := make([]*protos.ProcessedTransaction, 0, m.pending.Len())
	for m.pending.Len() > 0 {
		out = append(out, m.pending.PopFront().(*protos.ProcessedTransaction))
	}
	m.ids = make(map[protos.TxID]struct{})
	return out
}

// PushPopped queues the transactions of a popped block. Blocks are popped
// head first, so each block's transactions go in front of those of the
// blocks popped before it.
func (m *Mempool) PushPopped(txs []*protos.SignedTransaction) {
	m.m.Lock()
	defer m.m.Unlock()
	for i := len(txs) - 1; i >= 0; i-- {
		m.popped.PushFront(txs[i])
	}
}

// DrainPopped empties the popped queue, oldest block first.
func (m *Mempool) DrainPopped() []*protos.SignedTransaction {
	m.m.Lock()
	defer m.m.Unlock()
	out := make([]*protos.SignedTransaction, 0, m.popped.Len())
	for m.popped.Len() > 0 {
		out = append(out, m.popped.PopFront().(*protos.SignedTransaction))
	}
	return out
}

func (m *Mempool) PoppedCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.popped.Len()
}

// MarkKnown remembers id until the transaction expires.
func (m *Mempool) MarkKnown(id protos.TxID, expiration uint32) {
	m.m.Lock()
	defer m.m.Unlock()
	m.markKnown(id, expiration)
}

func (m *Mempool) markKnown(id protos.TxID, expiration uint32) {
	ttl := time.Until(time.Unix(int64(expiration), 0))
	if ttl <= 0 {
		return
	}
	m.known.Set(id.String(), struct{}{}, ttl)
}

// IsKnown reports whether id was seen and has not expired yet.
func (m *Mempool) IsKnown(id protos.TxID) bool {
	_, ok := m.known.Get(id.String())
	return ok
}
