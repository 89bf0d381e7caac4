package reader

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

type ChainStatus struct {
	HeadBlockNum             uint32
	HeadBlockID              protos.BlockID
	HeadBlockTime            uint32
	LastIrreversibleBlockNum uint32
	CurrentWitness           protos.ObjectID
	PendingTxCount           int
}

type ChainReader interface {
	// 获取链状态
	GetChainStatus() (*ChainStatus, error)
	// 检查是否是主干Tip Block
	IsTrunkTipBlock(id protos.BlockID) (bool, error)
	// 交易在未确认池或未过期的区块中
	IsKnownTransaction(id protos.TxID) bool
	// 分叉头到公共祖先的区块id
	GetBlockIDsOnFork(headOfFork protos.BlockID) ([]protos.BlockID, error)
}

type chainReader struct {
	chain   Chain
	baseCtx xctx.XContext
	log     logs.Logger
}

func NewChainReader(chain Chain, baseCtx xctx.XContext) ChainReader {
	if chain == nil || baseCtx == nil {
		return nil
	}

	reader := &chainReader{
		chain:   chain,
		baseCtx: baseCtx,
		log:     baseCtx.GetLog(),
	}

	return reader
}

func (t *chainReader) GetChainStatus() (*ChainStatus, error) {
	status := &ChainStatus{}
	err := t.chain.View(func(db *objdb.Database) error {
		dgp := objects.DynamicGlobalProperties(db)
		status.HeadBlockNum = dgp.HeadBlockNumber
		status.HeadBlockID = dgp.HeadBlockID
		status.HeadBlockTime = dgp.Time
		status.LastIrreversibleBlockNum = dgp.LastIrreversibleBlockNum
		status.CurrentWitness = dgp.CurrentWitness
		return nil
	})
	if err != nil {
		t.log.Warn("get chain status error", "module", t.baseCtx.GetModule(), "err", err)
		return nil, common.CastError(err)
	}
	status.PendingTxCount = len(t.chain.PendingTransactions())
	return status, nil
}

func (t *chainReader) IsTrunkTipBlock(id protos.BlockID) (bool, error) {
	status, err := t.GetChainStatus()
	if err != nil {
		return false, err
	}
	return status.HeadBlockID == id, nil
}

func (t *chainReader) IsKnownTransaction(id protos.TxID) bool {
	return t.chain.IsKnownTransaction(id)
}

func (t *chainReader) GetBlockIDsOnFork(headOfFork protos.BlockID) ([]protos.BlockID, error) {
	ids, err := t.chain.GetBlockIDsOnFork(headOfFork)
	if err != nil {
		return nil, common.CastError(err)
	}
	return ids, nil
}
