package xuperos

import (
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/event"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/lib/metrics"
	"github.com/xuperchain/xupergraph/lib/timer"
	"github.com/xuperchain/xupergraph/protos"
)

// applyBlock applies b on top of the head. The caller owns the undo session
// of the block.
func (c *Chain) applyBlock(b *protos.SignedBlock, skip evaluator.Skip) error {
	start := time.Now()
	xt := timer.NewXTimer()
	num := b.BlockNum()
	c.appliedOps = nil
	c.curBlockNum = num

	if !skip.Has(evaluator.SkipMerkleCheck) && b.CalculateMerkleRoot() != b.TransactionMerkleRoot {
		return common.ErrMerkleMismatch.More("block %d", num)
	}
	if !skip.Has(evaluator.SkipBlockSizeCheck) {
		limit := int(objects.GlobalProperties(c.db).Parameters.MaximumBlockSize)
		if size := b.Size(); size > limit {
			return common.ErrBlockTooLarge.More("block %d size %d, limit %d", num, size, limit)
		}
	}
	signing, err := c.validateBlockHeader(b, skip)
	if err != nil {
		return err
	}
	maintDue := tdpos.MaintenanceDue(c.db, b.Timestamp)
	xt.Mark("validate_header")

	keys, err := c.recoverSignatures(b, skip)
	if err != nil {
		return err
	}
	xt.Mark("recover_signatures")

	for i := range b.Transactions {
		bt := &b.Transactions[i]
		trx := &bt.Trx.SignedTransaction
		if bt.Hash != trx.ID() {
			return common.ErrBlockHeader.More("transaction %d of block %d has a wrong hash", i, num)
		}
		if len(bt.Trx.OperationResults) == 0 || len(bt.Trx.OperationResults) != len(trx.Operations) {
			return common.ErrMissingResults.More("transaction %d of block %d", i, num)
		}
		c.curTrxInBlock = uint32(i)
		if _, _, err := c.applyTransaction(trx, keys[i], bt.Trx.OperationResults, evaluator.ApplyBlockMode, skip); err != nil {
			return errors.Wrapf(err, "transaction %d of block %d", i, num)
		}
	}
	xt.Mark("apply_transactions")

	cons := c.ctx.Consensus
	if err := cons.UpdateSigningWitness(c.db, signing, num, b.Timestamp); err != nil {
		return errors.Wrap(err, "update signing witness")
	}
	if err := c.updateGlobalDynamicData(b, skip); err != nil {
		return err
	}
	if err := c.updateLastIrreversibleBlock(); err != nil {
		return err
	}
	if maintDue {
		if err := cons.PerformChainMaintenance(c.db, num, b.Timestamp); err != nil {
			return errors.Wrap(err, "chain maintenance")
		}
	}
	if err := c.createBlockSummary(b); err != nil {
		return err
	}
	if err := c.clearExpired(); err != nil {
		return err
	}
	if err := tdpos.UpdateMaintenanceFlag(c.db, maintDue); err != nil {
		return err
	}
	if err := tdpos.NewSchedule(c.db).UpdateWitnessSchedule(); err != nil {
		return errors.Wrap(err, "update witness schedule")
	}
	xt.Mark("update_state")

	bc := c.ctx.BCName
	metrics.BlockApplyHistogram.WithLabelValues(bc).Observe(time.Since(start).Seconds())
	for mark, d := range xt.Laps() {
		metrics.TimerHistogram.WithLabelValues(bc, mark).Observe(d.Seconds())
	}
	c.queueEvent(&event.AppliedBlockEvent{Block: b, Ops: c.appliedOps})
	c.appliedOps = nil
	if len(b.Transactions) > 0 || maintDue {
		c.log.Debug("block applied", "num", num, "txs", len(b.Transactions), "maintenance", maintDue, "timer", xt.Print())
	}
	return nil
}

// validateBlockHeader checks the header against the head and returns the
// witness that signed it.
func (c *Chain) validateBlockHeader(b *protos.SignedBlock, skip evaluator.Skip) (*objects.Witness, error) {
	dgp := objects.DynamicGlobalProperties(c.db)
	if b.Previous != dgp.HeadBlockID {
		return nil, common.ErrBlockHeader.More("previous %s, head %s", b.Previous, dgp.HeadBlockID)
	}
	if b.Timestamp <= dgp.Time {
		return nil, common.ErrBlockTimestamp.More("timestamp %d, head time %d", b.Timestamp, dgp.Time)
	}
	w, err := objects.GetWitness(c.db, b.Witness)
	if err != nil {
		return nil, common.ErrBlockHeader.More("witness %s: %v", b.Witness, err)
	}
	if !skip.Has(evaluator.SkipWitnessSignature) && !b.ValidateSignee(w.SigningKey) {
		return nil, common.ErrWitnessSignature.More("block %d by %s", b.BlockNum(), b.Witness)
	}
	if !skip.Has(evaluator.SkipWitnessScheduleCheck) {
		if err := c.ctx.Consensus.CheckProducer(c.db, b.Witness, b.Timestamp); err != nil {
			return nil, common.ErrWitnessSchedule.More("%v", err)
		}
	}
	return w, nil
}

// recoverSignatures recovers the signing keys of every transaction of b in
// parallel. Agreed tasks carry no signatures.
func (c *Chain) recoverSignatures(b *protos.SignedBlock, skip evaluator.Skip) ([][]protos.PublicKey, error) {
	keys := make([][]protos.PublicKey, len(b.Transactions))
	if skip.Has(evaluator.SkipTransactionSignatures) {
		return keys, nil
	}
	var g errgroup.Group
	for i := range b.Transactions {
		i, trx := i, &b.Transactions[i].Trx.SignedTransaction
		if trx.IsAgreedTask() {
			continue
		}
		g.Go(func() error {
			k, err := trx.SignatureKeys(c.chainID)
			if err != nil {
				return common.ErrBadSignature.More("transaction %d: %v", i, err)
			}
			keys[i] = k
			return nil
		})
	}
	return keys, g.Wait()
}

// GenerateBlock builds a block for witness at slot time when out of the due
// agreed tasks and the pending transactions, signs it with key and pushes it.
func (c *Chain) GenerateBlock(when uint32, witness protos.ObjectID, key *ecdsa.PrivateKey,
	skip evaluator.Skip) (*protos.SignedBlock, error) {
	defer c.observe("GenerateBlock", time.Now())
	c.mutex.Lock()
	defer c.unlockAndPublish()
	if c.closed {
		return nil, def.ErrChainClosed
	}

	b, err := c.generateBlock(when, witness, key, skip)
	if err != nil {
		return nil, err
	}
	if _, err := c.pushBlockLocked(b, skip|evaluator.SkipTransactionSignatures); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Chain) generateBlock(when uint32, witness protos.ObjectID, key *ecdsa.PrivateKey,
	skip evaluator.Skip) (*protos.SignedBlock, error) {
	s := tdpos.NewSchedule(c.db)
	slot := s.SlotAtTime(when)
	if slot == 0 {
		return nil, common.ErrBlockTimestamp.More("no slot at %d", when)
	}
	scheduled, err := s.ScheduledWitness(slot)
	if err != nil {
		return nil, err
	}
	if scheduled != witness {
		return nil, common.ErrWitnessSchedule.More("slot %d belongs to %s, not %s", slot, scheduled, witness)
	}
	w, err := objects.GetWitness(c.db, witness)
	if err != nil {
		return nil, err
	}
	if !skip.Has(evaluator.SkipWitnessSignature) && protos.PublicKeyFromECDSA(&key.PublicKey) != w.SigningKey {
		return nil, common.ErrWitnessSignature.More("key does not match the signing key of %s", witness)
	}

	// 在干净的头部状态上打包，未确认交易在出块后重新推送
	c.clearPendingState()
	session := c.db.StartUndoSession(true)
	defer session.Undo()

	params := objects.GlobalProperties(c.db).Parameters
	limit := int64(params.MaximumBlockSize)
	if c.maxBlockSize > 0 && c.maxBlockSize < limit {
		limit = c.maxBlockSize
	}

	b := &protos.SignedBlock{}
	b.Previous = c.headBlockID()
	b.Timestamp = when
	b.Witness = witness
	size := int64(b.Size())
	c.curBlockNum = b.BlockNum()

	var postponed int
	pack := func(trx *protos.SignedTransaction) {
		// 按出块时间而不是头部时间判断过期
		if !trx.IsAgreedTask() && trx.Expiration < when {
			c.log.Debug("expired transaction left out of block", "id", trx.ID(), "expiration", trx.Expiration, "when", when)
			return
		}
		temp := c.db.StartUndoSession(false)
		defer temp.Release()
		c.curTrxInBlock = uint32(len(b.Transactions))
		ptx, _, err := c.applyTransaction(trx, nil, nil, evaluator.ProductionBlockMode, skip)
		if err != nil {
			c.log.Debug("transaction left out of block", "id", trx.ID(), "err", err)
			return
		}
		bt := protos.BlockTrx{Hash: trx.ID(), Trx: *ptx}
		enc, err := rlp.EncodeToBytes(&bt)
		if err != nil {
			return
		}
		if size+int64(len(enc)) > limit {
			postponed++
			return
		}
		size += int64(len(enc))
		temp.Merge()
		b.Transactions = append(b.Transactions, bt)
	}

	for _, trx := range c.agreedTasks() {
		pack(trx)
	}
	c.pool.Range(func(ptx *protos.ProcessedTransaction) bool {
		pack(&ptx.SignedTransaction)
		return size < limit
	})
	if postponed > 0 {
		c.log.Info("transactions postponed to a later block", "count", postponed)
	}
	c.appliedOps = nil

	b.TransactionMerkleRoot = b.CalculateMerkleRoot()
	if err := b.Sign(key); err != nil {
		return nil, err
	}
	c.log.Info("block generated", "num", b.BlockNum(), "witness", witness, "txs", len(b.Transactions))
	return b, nil
}
