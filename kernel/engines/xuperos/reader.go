package xuperos

import (
	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/ledger"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/asyncworker"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/event"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/reader"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

var _ reader.Chain = (*Chain)(nil)

// Reader is the copy returning query surface of the chain.
func (c *Chain) Reader() reader.Reader {
	return reader.NewReader(c, &c.ctx.BaseCtx)
}

func (c *Chain) HeadBlockNum() uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.headBlockNum()
}

func (c *Chain) HeadBlockID() protos.BlockID {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.headBlockID()
}

func (c *Chain) HeadBlockTime() uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return objects.HeadBlockTime(c.db)
}

func (c *Chain) LastIrreversibleBlockNum() uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return objects.DynamicGlobalProperties(c.db).LastIrreversibleBlockNum
}

// View runs fn against the object store, pending state included. fn must
// not keep references to the objects it reads.
func (c *Chain) View(fn func(db *objdb.Database) error) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return fn(c.db)
}

// GetObject returns the stored object itself; callers must not modify it.
func (c *Chain) GetObject(id protos.ObjectID) (objdb.Object, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	obj := c.db.Find(id)
	if obj == nil {
		return nil, common.ErrObjectNotFound.More("%s", id)
	}
	return obj, nil
}

// FetchBlockByID looks in the fork database first, then in the ledger.
func (c *Chain) FetchBlockByID(id protos.BlockID) (*protos.SignedBlock, error) {
	c.mutex.Lock()
	item := c.forkDB.FetchBlock(id)
	c.mutex.Unlock()
	if item != nil {
		return item.Data, nil
	}
	b, err := c.ctx.Ledger.FetchByID(id)
	if err != nil {
		return nil, common.ErrBlockNotExist.More("%s", id)
	}
	return b, nil
}

// FetchBlockByNumber returns the main chain block num.
func (c *Chain) FetchBlockByNumber(num uint32) (*protos.SignedBlock, error) {
	b, err := c.ctx.Ledger.FetchByNumber(num)
	if err != nil {
		return nil, common.ErrBlockNotExist.More("block %d", num)
	}
	return b, nil
}

func (c *Chain) FetchTransaction(id protos.TxID) (*protos.ProcessedTransaction, *ledger.TxLocation, error) {
	return c.ctx.Ledger.FetchTransaction(id)
}

func (c *Chain) GetTransactionInBlockInfo(id protos.TxID) (*objects.TransactionInBlockInfo, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	info := objects.FindTransactionInBlock(c.db, id)
	if info == nil {
		return nil, common.ErrObjectNotFound.More("transaction %s not in a block", id)
	}
	return info, nil
}

// IsKnownTransaction reports whether id is pending or in an unexpired block.
func (c *Chain) IsKnownTransaction(id protos.TxID) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return objects.FindTransaction(c.db, id) != nil || c.pool.IsKnown(id)
}

func (c *Chain) IsKnownBlock(id protos.BlockID) bool {
	c.mutex.Lock()
	known := c.forkDB.IsKnownBlock(id)
	c.mutex.Unlock()
	return known || c.ctx.Ledger.IsKnownBlock(id)
}

// GetBlockIDsOnFork lists the common ancestor of headOfFork and the head,
// followed by the blocks of that fork up to headOfFork.
func (c *Chain) GetBlockIDsOnFork(headOfFork protos.BlockID) ([]protos.BlockID, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	head := c.headBlockID()
	if headOfFork == head {
		return []protos.BlockID{head}, nil
	}
	newBranch, _, err := c.forkDB.FetchBranchFrom(headOfFork, head)
	if err != nil {
		return nil, common.ErrUnlinkableBlock.More("%v", err)
	}
	out := make([]protos.BlockID, 0, len(newBranch)+1)
	out = append(out, newBranch[len(newBranch)-1].Previous())
	for i := len(newBranch) - 1; i >= 0; i-- {
		out = append(out, newBranch[i].ID)
	}
	return out, nil
}

// PendingTransactions returns the pending transactions in push order.
func (c *Chain) PendingTransactions() []*protos.ProcessedTransaction {
	var out []*protos.ProcessedTransaction
	c.pool.Range(func(ptx *protos.ProcessedTransaction) bool {
		out = append(out, ptx)
		return true
	})
	return out
}

// SubscribeConfirmation calls h once a block including txID was applied.
// The callback is forgotten when the transaction expires.
func (c *Chain) SubscribeConfirmation(txID protos.TxID, expiration uint32, h asyncworker.ConfirmHandler) error {
	return c.worker.RegisterHandler(txID, expiration, h)
}

func (c *Chain) Subscribe(tp event.Type, h event.Handler) func() {
	return c.router.Subscribe(tp, h)
}

func (c *Chain) SubscribeBlocks(filter *event.BlockFilter, h func(ev *event.AppliedBlockEvent)) func() {
	return c.router.SubscribeBlocks(filter, h)
}

// Status is the witness schedule at the head block.
func (c *Chain) Status() *tdpos.TdposStatus {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return tdpos.GetStatus(c.db)
}
