package event

import (
	"github.com/xuperchain/xupergraph/protos"
)

// Type is the kind of a chain event.
type Type int

const (
	// 区块应用成功
	AppliedBlock Type = iota
	// 交易进入未确认交易池
	PendingTransaction
	// 切换头部后需要重新广播的交易
	Rebroadcast
)

func (t Type) String() string {
	switch t {
	case AppliedBlock:
		return "applied_block"
	case PendingTransaction:
		return "pending_transaction"
	case Rebroadcast:
		return "rebroadcast"
	}
	return "unknown"
}

// OperationHistory is an operation applied while a block was applied,
// with where it sat and what it produced.
type OperationHistory struct {
	BlockNum   uint32
	TrxInBlock uint32
	OpInTrx    uint32
	Op         protos.Operation
	Result     protos.OperationResult
}

type AppliedBlockEvent struct {
	Block *protos.SignedBlock
	Ops   []*OperationHistory
}

type PendingTransactionEvent struct {
	Trx *protos.ProcessedTransaction
}

type RebroadcastEvent struct {
	Txs []*protos.SignedTransaction
}

// BlockFilter keeps the applied operations of the listed types. An empty
// filter keeps everything.
type BlockFilter struct {
	OpTypes []protos.OpType
}

func (f *BlockFilter) match(op protos.Operation) bool {
	if f == nil || len(f.OpTypes) == 0 {
		return true
	}
	for _, t := range f.OpTypes {
		if op.OpType() == t {
			return true
		}
	}
	return false
}

// apply returns the event trimmed to the filter, nil when nothing is left.
func (f *BlockFilter) apply(ev *AppliedBlockEvent) *AppliedBlockEvent {
	if f == nil || len(f.OpTypes) == 0 {
		return ev
	}
	out := &AppliedBlockEvent{Block: ev.Block}
	for _, h := range ev.Ops {
		if f.match(h.Op) {
			out.Ops = append(out.Ops, h)
		}
	}
	if len(out.Ops) == 0 {
		return nil
	}
	return out
}
