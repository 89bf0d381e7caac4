package reader

import (
	"github.com/xuperchain/xupergraph/bcs/consensus/tdpos"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	xctx "github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/logs"
)

// ScheduledSlot is one upcoming production slot.
type ScheduledSlot struct {
	Time    uint32
	Witness string
}

type ConsensusReader interface {
	// 获取共识状态
	GetConsStatus() (*tdpos.TdposStatus, error)
	// 未来n个时隙的出块见证人账户名
	GetUpcomingSlots(n uint32) ([]ScheduledSlot, error)
}

type consensusReader struct {
	chain Chain
	log   logs.Logger
}

func NewConsensusReader(chain Chain, baseCtx xctx.XContext) ConsensusReader {
	if chain == nil || baseCtx == nil {
		return nil
	}

	reader := &consensusReader{
		chain: chain,
		log:   baseCtx.GetLog(),
	}

	return reader
}

func (t *consensusReader) GetConsStatus() (*tdpos.TdposStatus, error) {
	return t.chain.Status(), nil
}

// GetUpcomingSlots only looks inside the current round: the next shuffle
// depends on blocks not produced yet.
func (t *consensusReader) GetUpcomingSlots(n uint32) ([]ScheduledSlot, error) {
	var out []ScheduledSlot
	err := t.chain.View(func(db *objdb.Database) error {
		s := tdpos.NewSchedule(db)
		for slot := uint32(1); slot <= n; slot++ {
			id, err := s.ScheduledWitness(slot)
			if err != nil {
				return err
			}
			w, err := objects.GetWitness(db, id)
			if err != nil {
				return err
			}
			acc, err := objects.GetAccount(db, w.WitnessAccount)
			if err != nil {
				return err
			}
			out = append(out, ScheduledSlot{Time: s.SlotTime(slot), Witness: acc.Name})
		}
		return nil
	})
	if err != nil {
		t.log.Warn("get upcoming slots error", "n", n, "err", err)
		return nil, common.CastError(err)
	}
	return out, nil
}
