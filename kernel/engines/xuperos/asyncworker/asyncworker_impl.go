package asyncworker

import (
	"errors"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/patrickmn/go-cache"

	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/event"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

const (
	// 时钟与链上时间不一致时，回调至少保留这么久
	minHandlerTTL   = 10 * time.Minute
	cleanupInterval = time.Minute
)

var (
	ErrNilHandler    = errors.New("confirm handler is nil")
	ErrWorkerStopped = errors.New("async worker stopped")
)

type task struct {
	conf     *Confirmation
	handlers []ConfirmHandler
}

// AsyncWorkerImpl runs transaction confirmation callbacks off the chain
// goroutine. Callbacks are keyed by transaction id and forgotten when the
// transaction expires.
type AsyncWorkerImpl struct {
	bcname string
	mutex  sync.Mutex
	// tx id -> []ConfirmHandler
	handlers *cache.Cache
	queue    deque.Deque // *task

	notify  chan struct{}
	close   chan struct{}
	stopped bool
	exitWG  sync.WaitGroup

	log logs.Logger
}

func NewAsyncWorkerImpl(bcName string, log logs.Logger) *AsyncWorkerImpl {
	return &AsyncWorkerImpl{
		bcname:   bcName,
		handlers: cache.New(cache.NoExpiration, cleanupInterval),
		notify:   make(chan struct{}, 1),
		close:    make(chan struct{}),
		log:      log,
	}
}

func (aw *AsyncWorkerImpl) RegisterHandler(txID protos.TxID, expiration uint32, handler ConfirmHandler) error {
	if handler == nil {
		return ErrNilHandler
	}
	aw.mutex.Lock()
	defer aw.mutex.Unlock()
	if aw.stopped {
		return ErrWorkerStopped
	}
	ttl := time.Until(time.Unix(int64(expiration), 0))
	if ttl < minHandlerTTL {
		ttl = minHandlerTTL
	}
	key := txID.String()
	var list []ConfirmHandler
	if v, ok := aw.handlers.Get(key); ok {
		list = v.([]ConfirmHandler)
	}
	aw.handlers.Set(key, append(list, handler), ttl)
	return nil
}

// OnAppliedBlock queues the callbacks of the transactions included in the
// block. It is meant to be subscribed to the applied block event.
func (aw *AsyncWorkerImpl) OnAppliedBlock(ev *event.AppliedBlockEvent) {
	if ev == nil || ev.Block == nil {
		return
	}
	num := ev.Block.BlockNum()
	aw.mutex.Lock()
	queued := 0
	for i := range ev.Block.Transactions {
		bt := &ev.Block.Transactions[i]
		key := bt.Hash.String()
		v, ok := aw.handlers.Get(key)
		if !ok {
			continue
		}
		aw.handlers.Delete(key)
		aw.queue.PushBack(&task{
			conf:     &Confirmation{TxID: bt.Hash, BlockNum: num, TrxInBlock: uint32(i), Trx: &bt.Trx},
			handlers: v.([]ConfirmHandler),
		})
		queued++
	}
	aw.mutex.Unlock()

	if queued > 0 {
		select {
		case aw.notify <- struct{}{}:
		default:
		}
	}
}

func (aw *AsyncWorkerImpl) Start() {
	aw.exitWG.Add(1)
	go func() {
		defer aw.exitWG.Done()
		for {
			select {
			case <-aw.close:
				aw.log.Warn("async task loop shut down.", "bc", aw.bcname)
				return
			case <-aw.notify:
				aw.doAsyncTasks()
			}
		}
	}()
}

func (aw *AsyncWorkerImpl) next() *task {
	aw.mutex.Lock()
	defer aw.mutex.Unlock()
	if aw.queue.Len() == 0 {
		return nil
	}
	return aw.queue.PopFront().(*task)
}

func (aw *AsyncWorkerImpl) doAsyncTasks() {
	for t := aw.next(); t != nil; t = aw.next() {
		for _, h := range t.handlers {
			aw.run(t.conf, h)
		}
	}
}

func (aw *AsyncWorkerImpl) run(c *Confirmation, h ConfirmHandler) {
	defer func() {
		if e := recover(); e != nil {
			aw.log.Error("confirm handler panic", "tx", c.TxID, "err", e)
		}
	}()
	h(c)
}

// Stop 幂等
func (aw *AsyncWorkerImpl) Stop() {
	aw.mutex.Lock()
	if aw.stopped {
		aw.mutex.Unlock()
		return
	}
	aw.stopped = true
	aw.mutex.Unlock()

	close(aw.close)
	aw.exitWG.Wait()
}
