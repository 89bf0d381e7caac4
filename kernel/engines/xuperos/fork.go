package xuperos

import (
	"time"

	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/event"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/forkdb"
	"github.com/xuperchain/xupergraph/lib/metrics"
	"github.com/xuperchain/xupergraph/protos"
)

// PushBlock adds b to the fork database and applies it when it extends the
// longest fork, switching forks when needed. It reports whether the head
// moved to another fork. Pending transactions are re-applied on the new head.
func (c *Chain) PushBlock(b *protos.SignedBlock, skip evaluator.Skip) (bool, error) {
	defer c.observe("PushBlock", time.Now())
	c.mutex.Lock()
	defer c.unlockAndPublish()
	if c.closed {
		return false, def.ErrChainClosed
	}
	return c.pushBlockLocked(b, c.nodeSkip|skip)
}

// PopBlock reverts the head block. Its transactions return to the pending pool.
func (c *Chain) PopBlock() error {
	c.mutex.Lock()
	defer c.unlockAndPublish()
	if c.closed {
		return def.ErrChainClosed
	}
	pending := c.clearPending()
	err := c.popBlock()
	c.restorePending(pending)
	return err
}

// PushProposal pushes the task of a released proposal as a local transaction.
func (c *Chain) PushProposal(id protos.ObjectID) (*protos.ProcessedTransaction, error) {
	c.mutex.Lock()
	defer c.unlockAndPublish()
	if c.closed {
		return nil, def.ErrChainClosed
	}
	p, err := c.ctx.Proposal.GetProposalByID(c.db, id)
	if err != nil {
		return nil, err
	}
	return c.pushTransaction(p.TaskTransaction(), c.nodeSkip, def.FromMe, nil)
}

func (c *Chain) pushBlockLocked(b *protos.SignedBlock, skip evaluator.Skip) (bool, error) {
	pending := c.clearPending()
	switched, err := c.pushBlock(b, skip)
	c.restorePending(pending)
	return switched, err
}

// clearPending discards the pending state and takes the pending transactions
// out of the pool.
func (c *Chain) clearPending() []*protos.ProcessedTransaction {
	c.clearPendingState()
	txs := c.pool.DrainPending()
	metrics.PendingTxGauge.WithLabelValues(c.ctx.BCName).Set(0)
	return txs
}

func (c *Chain) clearPendingState() {
	if c.pendingSession != nil {
		c.pendingSession.Undo()
		c.pendingSession = nil
	}
}

// restorePending re-applies, on the new head, the transactions of popped
// blocks first, then the previous pending ones, then the released
// proposals. Transactions that no longer apply are dropped.
func (c *Chain) restorePending(pending []*protos.ProcessedTransaction) {
	for _, trx := range c.pool.DrainPopped() {
		if _, err := c.pushTransaction(trx, c.nodeSkip, def.PopBlock, nil); err != nil {
			c.log.Debug("popped transaction dropped", "id", trx.ID(), "err", err)
		}
	}

	var rebroadcast []*protos.SignedTransaction
	for _, ptx := range pending {
		trx := &ptx.SignedTransaction
		// 协议任务由下面重新生成
		if trx.IsAgreedTask() {
			continue
		}
		if _, err := c.pushTransaction(trx, c.nodeSkip, def.RePush, ptx); err != nil {
			c.log.Debug("pending transaction dropped", "id", trx.ID(), "err", err)
			continue
		}
		rebroadcast = append(rebroadcast, trx)
	}

	for _, trx := range c.ctx.Proposal.DueTasks(c.db, objects.HeadBlockTime(c.db)) {
		if _, err := c.pushTransaction(trx, c.nodeSkip, def.FromMe, nil); err != nil {
			c.log.Debug("released proposal not pushed", "task", trx.AgreedTask.TaskID, "err", err)
		}
	}

	if len(rebroadcast) > 0 && c.rebroadcast.Allow() {
		c.queueEvent(&event.RebroadcastEvent{Txs: rebroadcast})
	}
}

func (c *Chain) pushBlock(b *protos.SignedBlock, skip evaluator.Skip) (bool, error) {
	if skip.Has(evaluator.SkipForkDB) {
		return false, c.applyAndStore(b, skip, nil)
	}

	head := c.headBlockID()
	newHead, err := c.forkDB.PushBlock(b)
	switch errors.Cause(err) {
	case nil:
	case forkdb.ErrKnownBlock:
		// 弹出的块仍在分叉库中，比当前头更高时重新应用
		item := c.forkDB.FetchBlock(b.ID())
		if item == nil || item.Num <= c.headBlockNum() {
			return false, nil
		}
		newHead = item
	default:
		return false, common.ErrUnlinkableBlock.More("%v", err)
	}

	// 较短或等长的分叉只记录
	if newHead == nil || newHead.ID == head {
		return false, nil
	}
	if newHead.Previous() == head {
		if err := c.applyAndStore(newHead.Data, skip, newHead); err != nil {
			c.log.Warn("block rejected", "num", newHead.Num, "id", newHead.ID, "err", err)
			c.forkDB.Remove(newHead.ID)
			c.forkDB.SetHead(c.forkDB.FetchBlock(head))
			return false, err
		}
		return false, nil
	}
	return true, c.switchFork(newHead, head, skip)
}

// switchFork pops back to the common ancestor and applies the branch of
// newHead. When a block of the new branch fails, the rest of that branch
// is dropped and the old branch is applied again.
func (c *Chain) switchFork(newHead *forkdb.Item, oldHead protos.BlockID, skip evaluator.Skip) error {
	bc := c.ctx.BCName
	oldItem := c.forkDB.FetchBlock(oldHead)
	newBranch, oldBranch, err := c.branches(newHead, oldHead)
	if err != nil {
		c.forkDB.SetHead(oldItem)
		return common.ErrUnlinkableBlock.More("%v", err)
	}
	if len(oldBranch) > c.db.Size() {
		c.forkDB.SetHead(oldItem)
		return common.ErrUndoHistory.More("fork of %d blocks, %d undo states", len(oldBranch), c.db.Size())
	}
	ancestor := newBranch[len(newBranch)-1].Previous()
	oldLIB := objects.DynamicGlobalProperties(c.db).LastIrreversibleBlockNum
	c.log.Info("switching fork", "from", oldHead, "to", newHead.ID, "pop", len(oldBranch), "apply", len(newBranch))

	if err := c.popTo(ancestor); err != nil {
		return err
	}
	for i := len(newBranch) - 1; i >= 0; i-- {
		item := newBranch[i]
		err := c.applyAndStore(item.Data, skip, item)
		if err == nil {
			continue
		}
		c.log.Warn("fork block invalid, switching back", "num", item.Num, "id", item.ID, "err", err)
		for j := i; j >= 0; j-- {
			c.forkDB.Remove(newBranch[j].ID)
		}
		c.forkDB.SetHead(c.forkDB.FetchBlock(c.headBlockID()))
		if perr := c.popTo(ancestor); perr != nil {
			return errors.Wrap(perr, "switch back")
		}
		for j := len(oldBranch) - 1; j >= 0; j-- {
			if rerr := c.applyAndStore(oldBranch[j].Data, skip, oldBranch[j]); rerr != nil {
				c.log.Error("restore old fork failed", "num", oldBranch[j].Num, "err", rerr)
				return errors.Wrap(rerr, "restore old fork")
			}
		}
		metrics.ForkSwitchCounter.WithLabelValues(bc, "fail").Inc()
		return err
	}
	if err := c.keepIrreversible(oldLIB); err != nil {
		return err
	}
	metrics.ForkSwitchCounter.WithLabelValues(bc, "ok").Inc()
	return nil
}

// keepIrreversible stops a fork switch from moving the last irreversible
// block back. The change is kept in the undo state of the new head.
func (c *Chain) keepIrreversible(lib uint32) error {
	dgp := objects.DynamicGlobalProperties(c.db)
	if dgp.LastIrreversibleBlockNum >= lib {
		return nil
	}
	c.log.Debug("new fork keeps the last irreversible block", "lib", lib, "fork_lib", dgp.LastIrreversibleBlockNum)
	return c.db.Modify(dgp, func() { dgp.LastIrreversibleBlockNum = lib })
}

// branches walks both heads back to their common ancestor. The old head is
// missing from the fork database only before the first block.
func (c *Chain) branches(newHead *forkdb.Item, oldHead protos.BlockID) ([]*forkdb.Item, []*forkdb.Item, error) {
	if c.forkDB.FetchBlock(oldHead) != nil {
		return c.forkDB.FetchBranchFrom(newHead.ID, oldHead)
	}
	if !oldHead.IsZero() {
		return nil, nil, errors.Wrapf(forkdb.ErrUnlinkable, "head %s not in fork database", oldHead)
	}
	var branch []*forkdb.Item
	for it := newHead; it != nil; it = it.Prev {
		branch = append(branch, it)
	}
	if branch[len(branch)-1].Previous() != oldHead {
		return nil, nil, errors.Wrap(forkdb.ErrUnlinkable, "branch does not start at genesis")
	}
	return branch, nil, nil
}

func (c *Chain) popTo(ancestor protos.BlockID) error {
	for c.headBlockID() != ancestor {
		if err := c.popBlock(); err != nil {
			return err
		}
	}
	return nil
}

// applyAndStore applies b in its own undo session and appends it to the ledger.
func (c *Chain) applyAndStore(b *protos.SignedBlock, skip evaluator.Skip, item *forkdb.Item) error {
	session := c.db.StartUndoSession(false)
	if err := c.applyBlock(b, skip); err != nil {
		session.Release()
		return err
	}
	if err := c.ctx.Ledger.Store(b); err != nil {
		session.Release()
		return errors.Wrap(err, "store block")
	}
	session.Commit()
	if item != nil {
		c.forkDB.SetHead(item)
	}
	metrics.HeadBlockGauge.WithLabelValues(c.ctx.BCName).Set(float64(b.BlockNum()))
	return nil
}

// popBlock reverts the head block and queues its transactions for re-push.
func (c *Chain) popBlock() error {
	num := c.headBlockNum()
	if num == 0 {
		return common.ErrBlockNotExist.More("nothing to pop")
	}
	b, err := c.ctx.Ledger.FetchByID(c.headBlockID())
	if err != nil {
		return errors.Wrapf(err, "fetch head block %d", num)
	}
	if err := c.db.PopCommit(); err != nil {
		return common.ErrUndoHistory.More("%v", err)
	}
	if err := c.ctx.Ledger.PopHead(); err != nil {
		return err
	}
	if err := c.forkDB.PopBlock(); err != nil {
		c.log.Warn("fork database has no head to pop", "num", num)
	}

	txs := make([]*protos.SignedTransaction, 0, len(b.Transactions))
	for i := range b.Transactions {
		trx := &b.Transactions[i].Trx.SignedTransaction
		if !trx.IsAgreedTask() {
			txs = append(txs, trx)
		}
	}
	c.pool.PushPopped(txs)
	metrics.HeadBlockGauge.WithLabelValues(c.ctx.BCName).Set(float64(num - 1))
	c.log.Debug("block popped", "num", num, "txs", len(txs))
	return nil
}
