package tdpos

import (
	"math/bits"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// Schedule answers slot questions against the chain state in db.
//
// Slot n is the n-th block production opportunity after the head block:
// slot 0 is the head itself, slot 1 the next block. Absolute slots count
// from genesis and drive the round robin over the shuffled witnesses.
type Schedule struct {
	db *objdb.Database
}

func NewSchedule(db *objdb.Database) *Schedule {
	return &Schedule{db: db}
}

func (s *Schedule) interval() uint32 {
	return uint32(objects.GlobalProperties(s.db).Parameters.BlockInterval)
}

// SlotTime returns the time of slot n, zero for slot 0.
func (s *Schedule) SlotTime(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	interval := s.interval()
	dgp := objects.DynamicGlobalProperties(s.db)
	if dgp.HeadBlockNumber == 0 {
		// the genesis time is the head time before block one
		return dgp.Time + n*interval
	}
	headSlotTime := dgp.Time / interval * interval
	if dgp.DynamicFlags&objects.MaintenanceFlag != 0 {
		n += uint32(objects.GlobalProperties(s.db).Parameters.MaintenanceSkipSlots)
	}
	return headSlotTime + n*interval
}

// SlotAtTime returns the last slot at or before when, zero if when is
// before the first slot.
func (s *Schedule) SlotAtTime(when uint32) uint32 {
	first := s.SlotTime(1)
	if when < first {
		return 0
	}
	return (when-first)/s.interval() + 1
}

// ScheduledWitness returns the witness that owns slot n.
func (s *Schedule) ScheduledWitness(n uint32) (protos.ObjectID, error) {
	wso := objects.GetWitnessSchedule(s.db)
	if len(wso.CurrentShuffledWitnesses) == 0 {
		return protos.ObjectID{}, ErrEmptySchedule
	}
	aslot := objects.DynamicGlobalProperties(s.db).CurrentAslot + uint64(n)
	return wso.CurrentShuffledWitnesses[aslot%uint64(len(wso.CurrentShuffledWitnesses))], nil
}

// ParticipationRate is the share of the last 64 slots that carried a block,
// in hundredths of a percent.
func (s *Schedule) ParticipationRate() uint32 {
	filled := bits.OnesCount64(objects.DynamicGlobalProperties(s.db).RecentSlotsFilled)
	return uint32(uint64(protos.FullPercent) * uint64(filled) / 64)
}

// UpdateWitnessSchedule reshuffles the active witnesses at the start of
// every round. The permutation is seeded by the head block time only, so
// every node derives the same order.
func (s *Schedule) UpdateWitnessSchedule() error {
	gpo := objects.GlobalProperties(s.db)
	dgp := objects.DynamicGlobalProperties(s.db)
	n := len(gpo.ActiveWitnesses)
	if n == 0 {
		return ErrEmptySchedule
	}
	if dgp.HeadBlockNumber%uint32(n) != 0 {
		return nil
	}
	wso := objects.GetWitnessSchedule(s.db)
	return s.db.Modify(wso, func() {
		wso.CurrentShuffledWitnesses = shuffle(gpo.ActiveWitnesses, dgp.Time)
	})
}

func shuffle(active []protos.ObjectID, now uint32) []protos.ObjectID {
	out := append([]protos.ObjectID(nil), active...)
	nowHi := uint64(now) << 32
	for i := range out {
		k := nowHi + uint64(i)*shuffleMultiplier
		k ^= k >> 12
		k ^= k << 25
		k ^= k >> 27
		k *= shuffleMultiplier
		j := i + int(k%uint64(len(out)-i))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
