// Package reader is the read-only query surface of a chain, for API servers
// and tools that must not touch the engine internals.
package reader

import (
	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/ledger"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// Chain is what the readers need from a running chain. *xuperos.Chain
// implements it.
type Chain interface {
	// View runs fn with the chain locked
	View(fn func(db *objdb.Database) error) error
	FetchBlockByID(id protos.BlockID) (*protos.SignedBlock, error)
	FetchBlockByNumber(num uint32) (*protos.SignedBlock, error)
	FetchTransaction(id protos.TxID) (*protos.ProcessedTransaction, *ledger.TxLocation, error)
	PendingTransactions() []*protos.ProcessedTransaction
	IsKnownTransaction(id protos.TxID) bool
	GetBlockIDsOnFork(headOfFork protos.BlockID) ([]protos.BlockID, error)
	Status() *tdpos.TdposStatus
}

type Reader interface {
	ChainReader
	LedgerReader
	StateReader
	ContractReader
	ConsensusReader
}

type reader struct {
	ChainReader
	LedgerReader
	StateReader
	ContractReader
	ConsensusReader
}

func NewReader(chain Chain, baseCtx xctx.XContext) Reader {
	if chain == nil || baseCtx == nil {
		return nil
	}
	return &reader{
		ChainReader:     NewChainReader(chain, baseCtx),
		LedgerReader:    NewLedgerReader(chain, baseCtx),
		StateReader:     NewStateReader(chain, baseCtx),
		ContractReader:  NewContractReader(chain, baseCtx),
		ConsensusReader: NewConsensusReader(chain, baseCtx),
	}
}
