package asyncworker

import "github.com/xuperchain/xupergraph/protos"

// Confirmation tells a subscriber where its transaction was included.
type Confirmation struct {
	TxID       protos.TxID
	BlockNum   uint32
	TrxInBlock uint32
	Trx        *protos.ProcessedTransaction
}

// ConfirmHandler runs on the worker goroutine, after the block that included
// the transaction was applied.
type ConfirmHandler func(c *Confirmation)

type AsyncWorker interface {
	RegisterHandler(txID protos.TxID, expiration uint32, handler ConfirmHandler) error
}
