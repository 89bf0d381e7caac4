package tdpos

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/bcs/market"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/metrics"
	"github.com/xuperchain/xupergraph/protos"
)

// MaintenanceDue reports whether a block at timestamp must run maintenance.
func MaintenanceDue(db *objdb.Database, timestamp uint32) bool {
	return objects.DynamicGlobalProperties(db).NextMaintenanceTime <= timestamp
}

// PerformChainMaintenance runs the elections, applies pending parameters,
// moves the next maintenance time past the head and processes the budget.
// It runs after the head of db moved to the block being applied.
func (tp *Tdpos) PerformChainMaintenance(db *objdb.Database, blockNum, timestamp uint32) error {
	tp.ctx.Timer.Mark("maintenance_start")
	e := make(election)
	if err := tp.updateActiveWitnesses(db, e); err != nil {
		return errors.Wrap(err, "witness election")
	}
	if err := tp.updateActiveCommitteeMembers(db, e); err != nil {
		return errors.Wrap(err, "committee election")
	}
	uc := objects.GetUnsuccessfulCandidates(db)
	if err := db.Modify(uc, func() { uc.Candidates = e.losers() }); err != nil {
		return err
	}

	gpo := objects.GlobalProperties(db)
	old := gpo.Parameters
	if gpo.PendingParameters != nil {
		if err := db.Modify(gpo, func() {
			gpo.Parameters = *gpo.PendingParameters
			gpo.PendingParameters = nil
		}); err != nil {
			return err
		}
		tp.ctx.XLog.Info("pending chain parameters applied", "block", blockNum)
	}

	dgp := objects.DynamicGlobalProperties(db)
	next := nextMaintenanceTime(dgp.NextMaintenanceTime, gpo.Parameters.MaintenanceInterval, blockNum, timestamp, dgp.Time)
	if err := db.Modify(dgp, func() { dgp.NextMaintenanceTime = next }); err != nil {
		return err
	}

	if err := market.ResetForceSettledVolumes(db); err != nil {
		return err
	}
	// the budget depends on the new maintenance time
	if err := tp.processBudget(db, old); err != nil {
		return errors.Wrap(err, "process budget")
	}

	metrics.MaintenanceCounter.WithLabelValues(tp.ctx.BCName).Inc()
	tp.ctx.Timer.Mark("maintenance_done")
	tp.ctx.XLog.Info("chain maintenance done", "block", blockNum, "witnesses", len(gpo.ActiveWitnesses),
		"committee", len(gpo.ActiveCommitteeMembers), "next", next, "timer", tp.ctx.Timer.Print())
	return nil
}

// nextMaintenanceTime is the first interval boundary after the head. Block
// one aligns the schedule to the interval grid.
func nextMaintenanceTime(next, interval, blockNum, timestamp, head uint32) uint32 {
	if next > timestamp {
		return next
	}
	if blockNum == 1 {
		return (timestamp/interval + 1) * interval
	}
	// smallest k with next + k*interval > head
	y := (head - next) / interval
	return next + (y+1)*interval
}

// UpdateMaintenanceFlag records whether the block just applied ran
// maintenance; the slot after it is pushed back by the skip slots.
func UpdateMaintenanceFlag(db *objdb.Database, ran bool) error {
	dgp := objects.DynamicGlobalProperties(db)
	return db.Modify(dgp, func() {
		if ran {
			dgp.DynamicFlags |= objects.MaintenanceFlag
		} else {
			dgp.DynamicFlags &^= objects.MaintenanceFlag
		}
	})
}

// budgetRecord fills the funding side of the next record. The reserve is
// released at CoreAssetCycleRate / 2^CoreAssetCycleRateBits per second.
func budgetRecord(db *objdb.Database, now uint32) (objects.BudgetRecordData, error) {
	var rec objects.BudgetRecordData
	core := objects.CoreAsset(db)
	dyn, err := objects.GetDynamicData(db, core)
	if err != nil {
		return rec, err
	}
	dgp := objects.DynamicGlobalProperties(db)

	rec.FromInitialReserve = core.Options.MaxSupply - dyn.CurrentSupply
	rec.FromAccumulatedFees = dyn.AccumulatedFees
	if dgp.LastBudgetTime == 0 || now <= dgp.LastBudgetTime {
		rec.TotalBudget = rec.FromInitialReserve + rec.FromAccumulatedFees
		return rec, nil
	}

	dt := uint64(now - dgp.LastBudgetTime)
	rec.TimeSinceLastBudget = dt
	// unspent witness budget returns to the reserve first
	reserve := rec.FromInitialReserve + rec.FromAccumulatedFees + dgp.WitnessBudget

	x := uint256.NewInt(uint64(reserve))
	x.Mul(x, uint256.NewInt(dt))
	x.Mul(x, uint256.NewInt(protos.CoreAssetCycleRate))
	x.Add(x, uint256.NewInt(1<<protos.CoreAssetCycleRateBits-1))
	x.Rsh(x, protos.CoreAssetCycleRateBits)
	if x.Lt(uint256.NewInt(uint64(reserve))) {
		rec.TotalBudget = protos.Share(x.Uint64())
	} else {
		rec.TotalBudget = reserve
	}
	return rec, nil
}

func lastBudgetRecord(db *objdb.Database) *objects.BudgetRecord {
	next := db.NextID(protos.ImplementationSpace, protos.ImplTypeBudgetRecord)
	if next.Instance == 0 {
		return nil
	}
	r, _ := db.Find(protos.NewObjectID(protos.ImplementationSpace, protos.ImplTypeBudgetRecord, next.Instance-1)).(*objects.BudgetRecord)
	return r
}

// processBudget funds the witness budget of the coming interval, pays the
// candidate award set aside by the previous record and creates a budget
// record. Whatever is not spent stays in the reserve.
func (tp *Tdpos) processBudget(db *objdb.Database, old protos.ChainParameters) error {
	params := objects.GlobalProperties(db).Parameters
	dgp := objects.DynamicGlobalProperties(db)
	now := dgp.Time
	if dgp.NextMaintenanceTime <= now {
		return ErrMaintenanceInPast
	}
	timeToMaint := dgp.NextMaintenanceTime - now
	interval := uint32(params.BlockInterval)
	blocksToMaint := (timeToMaint + interval - 1) / interval

	rec, err := budgetRecord(db, now)
	if err != nil {
		return err
	}
	available := rec.TotalBudget

	witnessBudget, err := protos.MulDiv(params.WitnessPayPerBlock, protos.Share(blocksToMaint), 1)
	if err != nil {
		return err
	}
	rec.RequestedWitnessBudget = witnessBudget
	if witnessBudget > available {
		witnessBudget = available
	}
	rec.WitnessBudget = witnessBudget
	available -= witnessBudget

	rec.CandidatesBudget = params.CandidateAwardBudget
	if rec.CandidatesBudget > available {
		rec.CandidatesBudget = available
	}

	if last := lastBudgetRecord(db); last != nil {
		left, err := payCandidates(db, last.Record.CandidatesBudget, old)
		if err != nil {
			return err
		}
		rec.LeftoverCandidates = left
	}

	rec.SupplyDelta = rec.WitnessBudget + rec.CandidatesBudget -
		(rec.LeftoverCandidates + rec.FromAccumulatedFees + dgp.WitnessBudget)

	dyn, err := objects.GetDynamicData(db, objects.CoreAsset(db))
	if err != nil {
		return err
	}
	if err := db.Modify(dyn, func() {
		dyn.CurrentSupply += rec.SupplyDelta
		dyn.AccumulatedFees = 0
	}); err != nil {
		return err
	}
	rec.CurrentSupply = dyn.CurrentSupply

	if err := db.Modify(dgp, func() {
		// the old witness budget is already part of the reserve above
		dgp.WitnessBudget = witnessBudget
		dgp.LastBudgetTime = now
	}); err != nil {
		return err
	}
	tp.ctx.XLog.Debug("budget processed", "total", rec.TotalBudget, "witness", rec.WitnessBudget,
		"candidates", rec.CandidatesBudget, "supply_delta", rec.SupplyDelta)
	return db.Create(&objects.BudgetRecord{Time: now, Record: rec})
}

// payCandidates splits budget between the relaxed committee, the witnesses
// and the unsuccessful candidates. Elected members are paid by their share
// of their authority weight. It returns what was left unpaid.
func payCandidates(db *objdb.Database, budget protos.Share, params protos.ChainParameters) (protos.Share, error) {
	if budget <= 0 {
		return budget, nil
	}
	committeeRatio, err := protos.MulDiv(budget, protos.Share(params.CommitteePercentOfCandidateAward), protos.Share(protos.FullPercent))
	if err != nil {
		return 0, err
	}
	unsuccessfulRatio, err := protos.MulDiv(budget-committeeRatio, protos.Share(params.UnsuccessfulCandidatesPercent), protos.Share(protos.FullPercent))
	if err != nil {
		return 0, err
	}
	witnessRatio := budget - committeeRatio - unsuccessfulRatio

	var paid protos.Share
	payAuthority := func(id protos.ObjectID, ratio protos.Share) error {
		acc, err := objects.GetAccount(db, id)
		if err != nil {
			return err
		}
		auth := acc.Active
		if auth.WeightThreshold == 0 {
			return nil
		}
		var cumulative protos.Share
		for _, a := range auth.AccountAuths {
			share, err := protos.MulDiv(ratio, protos.Share(a.Weight), 2*protos.Share(auth.WeightThreshold))
			if err != nil {
				return err
			}
			if cumulative+share > ratio {
				return errors.Errorf("candidate pay of %s exceeds %d", id, ratio)
			}
			if err := objects.AdjustBalance(db, a.Account, protos.NewAsset(share, protos.CoreAssetID)); err != nil {
				return err
			}
			cumulative += share
		}
		paid += cumulative
		return nil
	}
	if err := payAuthority(protos.RelaxedCommitteeAccountID, committeeRatio); err != nil {
		return 0, err
	}
	if err := payAuthority(protos.WitnessAccountID, witnessRatio); err != nil {
		return 0, err
	}

	losers := objects.GetUnsuccessfulCandidates(db).Candidates
	if len(losers) > 0 {
		share := unsuccessfulRatio / protos.Share(len(losers))
		for _, acc := range losers {
			if err := objects.AdjustBalance(db, acc, protos.NewAsset(share, protos.CoreAssetID)); err != nil {
				return 0, err
			}
		}
		paid += share * protos.Share(len(losers))
	}
	return budget - paid, nil
}
