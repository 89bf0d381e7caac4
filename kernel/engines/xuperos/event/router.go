// Package event dispatches chain events to subscribers. Dispatch is
// synchronous and in publishing order; it happens after the chain mutation
// that raised the event has finished.
package event

import (
	"fmt"
	"sync"

	"github.com/xuperchain/xupergraph/lib/logs"
)

// Handler receives one of *AppliedBlockEvent, *PendingTransactionEvent or
// *RebroadcastEvent. Handlers must not mutate the chain.
type Handler func(ev interface{})

type subscriber struct {
	id      int
	filter  *BlockFilter
	handler Handler
}

// Router distribute events according to the event type and filter
type Router struct {
	log logs.Logger

	mutex  sync.RWMutex
	nextID int
	topics map[Type][]subscriber
}

func NewRouter(log logs.Logger) *Router {
	return &Router{
		log:    log,
		topics: make(map[Type][]subscriber),
	}
}

// Subscribe registers h for events of tp and returns a function removing it.
func (r *Router) Subscribe(tp Type, h Handler) func() {
	return r.subscribe(tp, nil, h)
}

// SubscribeBlocks registers h for applied blocks trimmed to filter. Blocks
// without a matching operation are not delivered.
func (r *Router) SubscribeBlocks(filter *BlockFilter, h func(ev *AppliedBlockEvent)) func() {
	return r.subscribe(AppliedBlock, filter, func(ev interface{}) {
		h(ev.(*AppliedBlockEvent))
	})
}

func (r *Router) subscribe(tp Type, filter *BlockFilter, h Handler) func() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.nextID++
	id := r.nextID
	r.topics[tp] = append(r.topics[tp], subscriber{id: id, filter: filter, handler: h})
	return func() { r.unsubscribe(tp, id) }
}

func (r *Router) unsubscribe(tp Type, id int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	subs := r.topics[tp]
	for i := range subs {
		if subs[i].id == id {
			r.topics[tp] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to the subscribers of its type in subscription order.
// A panicking handler is logged and skipped.
func (r *Router) Publish(ev interface{}) error {
	var tp Type
	switch ev.(type) {
	case *AppliedBlockEvent:
		tp = AppliedBlock
	case *PendingTransactionEvent:
		tp = PendingTransaction
	case *RebroadcastEvent:
		tp = Rebroadcast
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}

	r.mutex.RLock()
	subs := append([]subscriber(nil), r.topics[tp]...)
	r.mutex.RUnlock()

	for _, s := range subs {
		out := ev
		if tp == AppliedBlock && s.filter != nil {
			trimmed := s.filter.apply(ev.(*AppliedBlockEvent))
			if trimmed == nil {
				continue
			}
			out = trimmed
		}
		r.dispatch(tp, s, out)
	}
	return nil
}

func (r *Router) dispatch(tp Type, s subscriber, ev interface{}) {
	defer func() {
		if e := recover(); e != nil {
			r.log.Error("event handler panic", "event", tp, "subscriber", s.id, "err", e)
		}
	}()
	s.handler(ev)
}
