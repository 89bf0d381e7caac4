// Package tdpos schedules witnesses by slot and runs the periodic
// maintenance that elects them.
package tdpos

import (
	"fmt"
	"sort"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

type TdposCtx struct {
	xcontext.BaseCtx
	BCName string
}

func NewTdposCtx(bcName string) (*TdposCtx, error) {
	base, err := xcontext.NewBaseCtx("tdpos")
	if err != nil {
		return nil, fmt.Errorf("new tdpos ctx failed because new logger error. err:%v", err)
	}
	return &TdposCtx{BaseCtx: base, BCName: bcName}, nil
}

// Tdpos holds no chain state of its own; every call works on the db it is
// given so it follows undo sessions like any evaluator.
type Tdpos struct {
	ctx *TdposCtx
}

func NewTdpos(ctx *TdposCtx) (*Tdpos, error) {
	if ctx == nil || ctx.XLog == nil {
		return nil, fmt.Errorf("tdpos ctx set error")
	}
	return &Tdpos{ctx: ctx}, nil
}

// CheckProducer verifies that witness owns the slot of timestamp.
func (tp *Tdpos) CheckProducer(db *objdb.Database, witness protos.ObjectID, timestamp uint32) error {
	s := NewSchedule(db)
	slot := s.SlotAtTime(timestamp)
	if slot == 0 {
		return ErrTimeoutBlock
	}
	scheduled, err := s.ScheduledWitness(slot)
	if err != nil {
		return err
	}
	if scheduled != witness {
		return fmt.Errorf("%w: slot %d belongs to %s, block signed by %s", ErrInvalidProposer, slot, scheduled, witness)
	}
	return nil
}

// UpdateSigningWitness pays the producer of the block at blockNum out of the
// witness budget and records its last confirmed block. It runs before the
// head moves to the block.
func (tp *Tdpos) UpdateSigningWitness(db *objdb.Database, w *objects.Witness, blockNum, timestamp uint32) error {
	params := objects.GlobalProperties(db).Parameters
	dgp := objects.DynamicGlobalProperties(db)
	aslot := dgp.CurrentAslot + uint64(NewSchedule(db).SlotAtTime(timestamp))

	pay := params.WitnessPayPerBlock
	if dgp.WitnessBudget < pay {
		pay = dgp.WitnessBudget
	}
	if err := db.Modify(dgp, func() { dgp.WitnessBudget -= pay }); err != nil {
		return err
	}
	if err := objects.AdjustBalance(db, w.WitnessAccount, protos.NewAsset(pay, protos.CoreAssetID)); err != nil {
		return err
	}
	return db.Modify(w, func() {
		w.LastAslot = aslot
		w.LastConfirmedBlockNum = blockNum
	})
}

// UpdateLastIrreversibleBlock moves the last irreversible block to the
// block confirmed by at least IrreversibleThreshold of the active witnesses.
// It never moves backwards.
func (tp *Tdpos) UpdateLastIrreversibleBlock(db *objdb.Database) (uint32, error) {
	gpo := objects.GlobalProperties(db)
	dgp := objects.DynamicGlobalProperties(db)
	if len(gpo.ActiveWitnesses) == 0 {
		return dgp.LastIrreversibleBlockNum, nil
	}
	confirmed := make([]uint32, 0, len(gpo.ActiveWitnesses))
	for _, id := range gpo.ActiveWitnesses {
		w, err := objects.GetWitness(db, id)
		if err != nil {
			return 0, err
		}
		confirmed = append(confirmed, w.LastConfirmedBlockNum)
	}
	lib := IrreversibleBlockNum(confirmed)
	if lib <= dgp.LastIrreversibleBlockNum {
		return dgp.LastIrreversibleBlockNum, nil
	}
	if err := db.Modify(dgp, func() { dgp.LastIrreversibleBlockNum = lib }); err != nil {
		return 0, err
	}
	return lib, nil
}

// IrreversibleBlockNum is the (100% - threshold) percentile of the last
// confirmed block numbers of the active witnesses.
func IrreversibleBlockNum(confirmed []uint32) uint32 {
	if len(confirmed) == 0 {
		return 0
	}
	sorted := append([]uint32(nil), confirmed...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	offset := int(protos.FullPercent-protos.IrreversibleThreshold) * len(sorted) / int(protos.FullPercent)
	return sorted[offset]
}
