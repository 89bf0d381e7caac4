package xuperos

import (
	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/bcs/market"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/utils"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/metrics"
	"github.com/xuperchain/xupergraph/protos"
)

const (
	recentlyMissedIncrement = 4
	recentlyMissedDecrement = 3
)

// updateGlobalDynamicData moves the head to b and accounts the slots
// skipped since the previous block.
func (c *Chain) updateGlobalDynamicData(b *protos.SignedBlock, skip evaluator.Skip) error {
	db := c.db
	s := tdpos.NewSchedule(db)
	slot := s.SlotAtTime(b.Timestamp)
	if slot == 0 {
		return common.ErrBlockTimestamp.More("block %d has no slot", b.BlockNum())
	}
	missed := slot - 1

	// 统计漏块的见证人
	for i := uint32(1); i <= missed; i++ {
		id, err := s.ScheduledWitness(i)
		if err != nil {
			return err
		}
		if id == b.Witness {
			continue
		}
		w, err := objects.GetWitness(db, id)
		if err != nil {
			return err
		}
		if err := db.Modify(w, func() { w.TotalMissed++ }); err != nil {
			return err
		}
	}

	num := b.BlockNum()
	dgp := objects.DynamicGlobalProperties(db)
	err := db.Modify(dgp, func() {
		switch {
		case num == 1:
			dgp.RecentlyMissedCount = 0
		case missed > 0:
			dgp.RecentlyMissedCount += recentlyMissedIncrement * missed
		case dgp.RecentlyMissedCount > recentlyMissedIncrement:
			dgp.RecentlyMissedCount -= recentlyMissedDecrement
		case dgp.RecentlyMissedCount > 0:
			dgp.RecentlyMissedCount--
		}
		dgp.HeadBlockNumber = num
		dgp.HeadBlockID = b.ID()
		dgp.Time = b.Timestamp
		dgp.CurrentWitness = b.Witness
		dgp.RecentSlotsFilled = ((dgp.RecentSlotsFilled << 1) + 1) << missed
		dgp.CurrentAslot += uint64(missed) + 1
	})
	if err != nil {
		return err
	}

	depth := dgp.HeadBlockNumber - dgp.LastIrreversibleBlockNum
	if !skip.Has(evaluator.SkipUndoHistoryCheck) && depth >= c.maxUndoHistory {
		return common.ErrUndoHistory.More("head %d, last irreversible %d, max undo %d",
			dgp.HeadBlockNumber, dgp.LastIrreversibleBlockNum, c.maxUndoHistory)
	}
	if !skip.Has(evaluator.SkipForkDB) {
		c.forkDB.SetMaxSize(depth + 1)
	}
	return nil
}

// updateLastIrreversibleBlock advances the last irreversible block and
// forgets the undo states below it.
func (c *Chain) updateLastIrreversibleBlock() error {
	lib, err := c.ctx.Consensus.UpdateLastIrreversibleBlock(c.db)
	if err != nil {
		return errors.Wrap(err, "update last irreversible block")
	}
	// 栈顶是当前区块的会话，至少保留
	keep := int(c.headBlockNum() - lib)
	if keep < 1 {
		keep = 1
	}
	c.db.Commit(c.db.Revision() - keep)
	metrics.IrreversibleGauge.WithLabelValues(c.ctx.BCName).Set(float64(lib))
	metrics.UndoDepthGauge.WithLabelValues(c.ctx.BCName).Set(float64(c.db.Size()))
	return nil
}

// createBlockSummary records b in the TaPoS ring.
func (c *Chain) createBlockSummary(b *protos.SignedBlock) error {
	id := b.ID()
	sid := protos.NewObjectID(protos.ImplementationSpace, protos.ImplTypeBlockSummary, uint64(b.BlockNum()&0xffff))
	if summary, ok := c.db.Find(sid).(*objects.BlockSummary); ok {
		return c.db.Modify(summary, func() { summary.BlockID = id })
	}
	summary := &objects.BlockSummary{BlockID: id}
	if err := c.db.Create(summary); err != nil {
		return err
	}
	if summary.ID() != sid {
		return errors.Errorf("block summary created as %s, want %s", summary.ID(), sid)
	}
	return nil
}

// clearExpired drops everything whose lifetime ended at the new head time.
func (c *Chain) clearExpired() error {
	db := c.db
	now := objects.HeadBlockTime(db)

	// 到期时刻仍然有效
	if now > 0 {
		expired, err := db.Range(protos.ImplementationSpace, protos.ImplTypeTransaction, objects.ByExpiration,
			nil, utils.DueRange(now-1), 0)
		if err != nil {
			return err
		}
		if err := removeAll(db, expired); err != nil {
			return errors.Wrap(err, "clear expired transactions")
		}
	}
	if err := c.ctx.Proposal.ClearExpired(db, now); err != nil {
		return errors.Wrap(err, "clear expired proposals")
	}
	if err := c.ctx.TimerTask.ClearExpired(db, now); err != nil {
		return errors.Wrap(err, "clear expired crontabs")
	}
	temps, err := db.Range(protos.ProtocolSpace, protos.ObjTypeTemporaryAuthority, objects.ByExpiration,
		nil, utils.DueRange(now), 0)
	if err != nil {
		return err
	}
	if err := removeAll(db, temps); err != nil {
		return errors.Wrap(err, "clear expired temporary authorities")
	}
	if err := c.ctx.Market.ClearExpiredSettlements(db, now); err != nil {
		return errors.Wrap(err, "clear expired settlements")
	}
	return market.UpdateExpiredFeeds(db, now)
}

func removeAll(db *objdb.Database, objs []objdb.Object) error {
	for _, o := range objs {
		if err := db.Remove(o); err != nil {
			return err
		}
	}
	return nil
}
