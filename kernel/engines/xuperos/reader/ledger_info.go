package reader

import (
	"github.com/pkg/errors"

	ledgerdef "github.com/xuperchain/xupergraph/bcs/ledger/xledger/def"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

// TransactionStatus 交易状态
type TransactionStatus int

const (
	TxNotExist TransactionStatus = iota
	// 在未确认池中
	TxUnconfirmed
	// 在主干区块中，尚可回滚
	TxConfirmed
	// 所在区块已不可逆
	TxIrreversible
)

func (s TransactionStatus) String() string {
	switch s {
	case TxUnconfirmed:
		return "unconfirmed"
	case TxConfirmed:
		return "confirmed"
	case TxIrreversible:
		return "irreversible"
	}
	return "not_exist"
}

type TxStatus struct {
	Status     TransactionStatus
	Tx         *protos.ProcessedTransaction
	BlockNum   uint32
	TrxInBlock uint32
	// 所在区块到头部的距离
	Distance uint32
}

type LedgerReader interface {
	QueryTransaction(id protos.TxID) (*TxStatus, error)
	QueryBlock(id protos.BlockID) (*protos.SignedBlock, error)
	QueryBlockByHeight(num uint32) (*protos.SignedBlock, error)
}

type ledgerReader struct {
	chain Chain
	log   logs.Logger
}

func NewLedgerReader(chain Chain, baseCtx xctx.XContext) LedgerReader {
	if chain == nil || baseCtx == nil {
		return nil
	}

	reader := &ledgerReader{
		chain: chain,
		log:   baseCtx.GetLog(),
	}

	return reader
}

func (t *ledgerReader) QueryTransaction(id protos.TxID) (*TxStatus, error) {
	out := &TxStatus{Status: TxNotExist}
	ptx, loc, err := t.chain.FetchTransaction(id)
	if err == nil {
		var head, lib uint32
		t.chain.View(func(db *objdb.Database) error {
			dgp := objects.DynamicGlobalProperties(db)
			head, lib = dgp.HeadBlockNumber, dgp.LastIrreversibleBlockNum
			return nil
		})
		out.Tx = ptx
		out.BlockNum = loc.BlockNum
		out.TrxInBlock = loc.TrxInBlock
		out.Distance = head - loc.BlockNum
		out.Status = TxConfirmed
		if loc.BlockNum <= lib {
			out.Status = TxIrreversible
		}
		return out, nil
	}
	if errors.Cause(err) != ledgerdef.ErrTxNotFound {
		t.log.Warn("ledger query tx error", "txId", id, "error", err)
		return nil, common.CastError(err)
	}

	// 查询未确认交易
	for _, pending := range t.chain.PendingTransactions() {
		if pending.ID() == id {
			out.Status = TxUnconfirmed
			out.Tx = pending
			break
		}
	}
	return out, nil
}

func (t *ledgerReader) QueryBlock(id protos.BlockID) (*protos.SignedBlock, error) {
	b, err := t.chain.FetchBlockByID(id)
	if err != nil {
		return nil, common.CastErrorDefault(err, common.ErrBlockNotExist)
	}
	return b, nil
}

func (t *ledgerReader) QueryBlockByHeight(num uint32) (*protos.SignedBlock, error) {
	b, err := t.chain.FetchBlockByNumber(num)
	if err != nil {
		return nil, common.CastErrorDefault(err, common.ErrBlockNotExist)
	}
	return b, nil
}
