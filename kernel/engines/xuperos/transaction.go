package xuperos

import (
	"time"

	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/tx"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/event"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/lib/metrics"
	"github.com/xuperchain/xupergraph/protos"
)

// PushTransaction applies trx on top of the pending state and queues it for
// the next block. The pending state is only kept when trx succeeds.
func (c *Chain) PushTransaction(trx *protos.SignedTransaction, state def.PushState) (*protos.ProcessedTransaction, error) {
	defer c.observe("PushTransaction", time.Now())
	c.mutex.Lock()
	defer c.unlockAndPublish()
	if c.closed {
		return nil, def.ErrChainClosed
	}
	return c.pushTransaction(trx, c.nodeSkip, state, nil)
}

// ValidateTransaction applies trx in a throwaway session and reports whether
// it would be accepted now. Nothing is kept.
func (c *Chain) ValidateTransaction(trx *protos.SignedTransaction) (*protos.ProcessedTransaction, error) {
	defer c.observe("ValidateTransaction", time.Now())
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil, def.ErrChainClosed
	}
	session := c.db.StartUndoSession(true)
	defer session.Undo()
	ptx, _, err := c.applyTransaction(trx, nil, nil, evaluator.JustTry, c.nodeSkip)
	return ptx, err
}

// AgreedTasks lists the transactions of the proposals and crontabs due at
// the head block time, for a block producer to include.
func (c *Chain) AgreedTasks() []*protos.SignedTransaction {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.agreedTasks()
}

func (c *Chain) agreedTasks() []*protos.SignedTransaction {
	now := objects.HeadBlockTime(c.db)
	tasks := c.ctx.Proposal.DueTasks(c.db, now)
	return append(tasks, c.ctx.TimerTask.DueTasks(c.db, now)...)
}

func runModeOf(state def.PushState) evaluator.RunMode {
	if state == def.FromMe {
		return evaluator.PushMode
	}
	return evaluator.ValidateTransactionMode
}

// pushTransaction 调用方持有锁。prev是重放交易上次处理的结果
func (c *Chain) pushTransaction(trx *protos.SignedTransaction, skip evaluator.Skip, state def.PushState,
	prev *protos.ProcessedTransaction) (*protos.ProcessedTransaction, error) {
	if c.pool.Full() {
		return nil, errors.WithStack(tx.ErrTxFull)
	}
	if c.pendingSession == nil {
		c.pendingSession = c.db.StartUndoSession(true)
	}
	temp := c.db.StartUndoSession(false)
	defer temp.Release()

	// 重新推送的交易已验过签名，结果沿用上次的
	if state == def.RePush {
		skip |= evaluator.SkipTransactionSignatures | evaluator.SkipAuthorityCheck | evaluator.SkipValidate
	}
	ptx, mode, err := c.applyTransaction(trx, nil, nil, runModeOf(state), skip)
	if err == nil && state == def.RePush && prev != nil {
		ptx = prev
	}
	if err != nil {
		metrics.TxApplyCounter.WithLabelValues(c.ctx.BCName, state.String(), "fail").Inc()
		return nil, err
	}

	// 使用了随机数或时间的交易只在出块时执行，未确认状态里只占住去重记录
	if mode == evaluator.InvokeMode {
		temp.Undo()
		if err := c.recordTransaction(trx.ID(), trx.Expiration); err != nil {
			return nil, err
		}
	} else {
		temp.Merge()
	}

	if err := c.pool.PutTx(ptx); err != nil {
		return nil, errors.Wrap(err, "put tx into mempool")
	}
	metrics.TxApplyCounter.WithLabelValues(c.ctx.BCName, state.String(), "ok").Inc()
	metrics.PendingTxGauge.WithLabelValues(c.ctx.BCName).Set(float64(c.pool.GetTxCount()))
	c.queueEvent(&event.PendingTransactionEvent{Trx: ptx})
	return ptx, nil
}

func (c *Chain) checkTapos(trx *protos.SignedTransaction) error {
	sid := protos.NewObjectID(protos.ImplementationSpace, protos.ImplTypeBlockSummary, uint64(trx.RefBlockNum))
	summary, ok := c.db.Find(sid).(*objects.BlockSummary)
	if !ok || summary.BlockID.Prefix() != trx.RefBlockPrefix {
		return common.ErrTaposMismatch.More("ref block %d prefix %d", trx.RefBlockNum, trx.RefBlockPrefix)
	}
	now := objects.HeadBlockTime(c.db)
	params := &objects.GlobalProperties(c.db).Parameters
	if trx.Expiration > now+params.MaximumTimeUntilExpiration {
		return common.ErrTxExpirationLimit.More("expiration %d, head time %d", trx.Expiration, now)
	}
	if trx.Expiration < now {
		return common.ErrTxExpired.More("expiration %d, head time %d", trx.Expiration, now)
	}
	return nil
}

func (c *Chain) recordTransaction(id protos.TxID, expiration uint32) error {
	return c.db.Create(&objects.TransactionObject{TrxID: id, Expiration: expiration})
}

// applyTransaction runs every operation of trx against the current state.
// The caller owns the enclosing session. sigKeys may carry keys recovered
// beforehand; recorded holds the results stored in the block under replay.
// The returned mode is InvokeMode when an operation consumed a process value
// and the result must not be kept in the pending state.
func (c *Chain) applyTransaction(trx *protos.SignedTransaction, sigKeys []protos.PublicKey, recorded protos.OperationResultList,
	mode evaluator.RunMode, skip evaluator.Skip) (*protos.ProcessedTransaction, evaluator.RunMode, error) {
	db := c.db
	params := &objects.GlobalProperties(db).Parameters
	now := objects.HeadBlockTime(db)

	// 1.大小
	if !skip.Has(evaluator.SkipBlockSizeCheck) {
		limit := int(params.MaximumBlockSize / protos.MinTransactionSizeDivisor)
		if size := trx.Size(); size > limit {
			return nil, mode, common.ErrTxTooLarge.More("size %d, limit %d", size, limit)
		}
	}
	// 2.结构校验
	if !skip.Has(evaluator.SkipValidate) {
		if err := trx.Validate(); err != nil {
			return nil, mode, common.CastErrorDefault(err, common.ErrInvalidOperation)
		}
	}
	// 3.去重
	id := trx.ID()
	if !skip.Has(evaluator.SkipTransactionDupeCheck) && objects.FindTransaction(db, id) != nil {
		return nil, mode, common.ErrTxAlreadyExist.More("%s", id)
	}

	st := evaluator.NewTrxState(c, trx, mode, skip)
	st.Recorded = recorded

	// 4.协议任务或签名权限
	var crontab *objects.Crontab
	if trx.IsAgreedTask() {
		st.IsAgreedTask = true
		var err error
		if crontab, err = c.startAgreedTask(trx, params, now); err != nil {
			return nil, mode, err
		}
	} else {
		if sigKeys == nil && !skip.Has(evaluator.SkipTransactionSignatures) {
			keys, err := trx.SignatureKeys(c.chainID)
			if err != nil {
				return nil, mode, common.ErrBadSignature.More("%v", err)
			}
			sigKeys = keys
		}
		st.SigKeys = sigKeys
		if !skip.Has(evaluator.SkipTransactionSignatures) && !skip.Has(evaluator.SkipAuthorityCheck) {
			if err := c.verifyAuthority(trx.Operations, sigKeys, nil, nil, true); err != nil {
				return nil, mode, err
			}
		}
		// 5.TaPoS和过期时间
		if !skip.Has(evaluator.SkipTaposCheck) {
			if err := c.checkTapos(trx); err != nil {
				return nil, mode, err
			}
		}
	}

	// 6.去重记录
	if !skip.Has(evaluator.SkipTransactionDupeCheck) {
		if err := c.recordTransaction(id, trx.Expiration); err != nil {
			return nil, mode, err
		}
	}
	if mode.InBlock() {
		info := &objects.TransactionInBlockInfo{TrxHash: id, BlockNum: c.curBlockNum, TrxInBlock: c.curTrxInBlock}
		if err := db.Create(info); err != nil {
			return nil, mode, err
		}
	}

	// 7.逐个执行操作，累计执行时间
	ptx := &protos.ProcessedTransaction{SignedTransaction: *trx}
	budget := time.Duration(params.MaxRuntimeMicros()) * time.Microsecond
	var spent time.Duration
	failed := false
	for i, op := range trx.Operations {
		st.OpIndex = i
		result, elapsed, err := c.applyOperation(st, op)
		if err != nil {
			return nil, mode, errors.Wrapf(err, "operation %d", i)
		}
		spent += elapsed
		if !st.Replaying() && budget > 0 && spent > budget {
			return nil, mode, common.ErrRuntimeExceeded.More("spent %s, budget %s", spent, budget)
		}
		if _, ok := result.(*protos.ErrorResult); ok {
			failed = true
		}
		if st.Replaying() && st.IsAgreedTask {
			want, ok := st.RecordedResult()
			if !ok || !protos.ResultsMatch(result, want) {
				return nil, mode, common.ErrResultMismatch.More("operation %d of task %s", i, trx.AgreedTask.TaskID)
			}
		}
		// 8.使用过程值的交易降级
		if cr, ok := result.(*protos.ContractResult); ok && cr.ExistedPV &&
			(st.RunMode == evaluator.PushMode || st.RunMode == evaluator.ValidateTransactionMode) {
			st.RunMode = evaluator.InvokeMode
		}
		st.Results = append(st.Results, result)
		ptx.OperationResults = append(ptx.OperationResults, result)
	}

	// 9.定时任务结果
	if crontab != nil {
		if cur, err := c.ctx.TimerTask.GetCrontabByID(db, crontab.ID()); err == nil {
			if err := c.ctx.TimerTask.FinishTask(db, params, cur, failed, now); err != nil {
				return nil, mode, err
			}
		}
	}
	return ptx, st.RunMode, nil
}

// startAgreedTask binds an agreed task to the proposal or crontab that
// released it. The returned crontab is nil for proposals.
func (c *Chain) startAgreedTask(trx *protos.SignedTransaction, params *protos.ChainParameters,
	now uint32) (*objects.Crontab, error) {
	task := trx.AgreedTask
	if task.TaskHash != trx.TaskID() {
		return nil, common.ErrAgreedTask.More("task hash mismatch for %s", task.TaskID)
	}
	switch {
	case task.TaskID.Is(protos.ProtocolSpace, protos.ObjTypeProposal):
		return nil, c.ctx.Proposal.StartTask(c.db, task, now)
	case task.TaskID.Is(protos.ProtocolSpace, protos.ObjTypeCrontab):
		return c.ctx.TimerTask.StartTask(c.db, params, task, now)
	}
	return nil, common.ErrAgreedTask.More("task %s is neither a proposal nor a crontab", task.TaskID)
}

// applyOperation runs op in its own session. Failures of agreed task
// operations are rolled back and recorded as error results.
func (c *Chain) applyOperation(st *evaluator.TrxState, op protos.Operation) (protos.OperationResult, time.Duration, error) {
	session := c.db.StartUndoSession(false)
	defer session.Release()

	start := time.Now()
	result, err := c.ctx.Registry.Run(st, op)
	elapsed := time.Since(start)
	if err != nil {
		metrics.OperationCounter.WithLabelValues(c.ctx.BCName, op.OpType().String(), "fail").Inc()
		if !st.IsAgreedTask || common.ErrorKind(err) == common.KindResource {
			return nil, elapsed, err
		}
		session.Undo()
		c.log.Debug("agreed task operation failed", "task", st.Trx.AgreedTask.TaskID, "op", st.OpIndex, "err", err)
		result = &protos.ErrorResult{
			Code:            uint32(common.ErrorCode(err)),
			Message:         err.Error(),
			RealRunningTime: uint64(elapsed.Microseconds()),
		}
		c.recordAppliedOp(st, op, result)
		return result, elapsed, nil
	}
	session.Merge()
	metrics.OperationCounter.WithLabelValues(c.ctx.BCName, op.OpType().String(), "ok").Inc()
	c.recordAppliedOp(st, op, result)
	return result, elapsed, nil
}

func (c *Chain) recordAppliedOp(st *evaluator.TrxState, op protos.Operation, result protos.OperationResult) {
	if !st.RunMode.InBlock() {
		return
	}
	c.appliedOps = append(c.appliedOps, &event.OperationHistory{
		BlockNum:   c.curBlockNum,
		TrxInBlock: c.curTrxInBlock,
		OpInTrx:    uint32(st.OpIndex),
		Op:         op,
		Result:     result,
	})
}
