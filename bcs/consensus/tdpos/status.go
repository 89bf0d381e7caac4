package tdpos

import (
	"encoding/json"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

type ValidatorsInfo struct {
	Validators []string `json:"validators"`
	Miner      string   `json:"miner"`
	Curterm    uint64   `json:"curterm"`
	Committee  []string `json:"committee"`
}

// TdposStatus is a read only view of the schedule at the head block.
type TdposStatus struct {
	HeadBlockNum        uint32            `json:"head_block_num"`
	CurrentAslot        uint64            `json:"current_aslot"`
	CurrentWitness      protos.ObjectID   `json:"current_witness"`
	ShuffledWitnesses   []protos.ObjectID `json:"shuffled_witnesses"`
	ActiveWitnesses     []protos.ObjectID `json:"active_witnesses"`
	ActiveCommittee     []protos.ObjectID `json:"active_committee_members"`
	NextMaintenanceTime uint32            `json:"next_maintenance_time"`
	LastIrreversible    uint32            `json:"last_irreversible_block_num"`
	ParticipationRate   uint32            `json:"participation_rate"`
	RecentlyMissedCount uint32            `json:"recently_missed_count"`
}

func GetStatus(db *objdb.Database) *TdposStatus {
	gpo := objects.GlobalProperties(db)
	dgp := objects.DynamicGlobalProperties(db)
	return &TdposStatus{
		HeadBlockNum:        dgp.HeadBlockNumber,
		CurrentAslot:        dgp.CurrentAslot,
		CurrentWitness:      dgp.CurrentWitness,
		ShuffledWitnesses:   append([]protos.ObjectID(nil), objects.GetWitnessSchedule(db).CurrentShuffledWitnesses...),
		ActiveWitnesses:     append([]protos.ObjectID(nil), gpo.ActiveWitnesses...),
		ActiveCommittee:     append([]protos.ObjectID(nil), gpo.ActiveCommitteeMembers...),
		NextMaintenanceTime: dgp.NextMaintenanceTime,
		LastIrreversible:    dgp.LastIrreversibleBlockNum,
		ParticipationRate:   NewSchedule(db).ParticipationRate(),
		RecentlyMissedCount: dgp.RecentlyMissedCount,
	}
}

// GetCurrentTerm counts completed rounds of the shuffled schedule.
func (t *TdposStatus) GetCurrentTerm() uint64 {
	if len(t.ShuffledWitnesses) == 0 {
		return 0
	}
	return t.CurrentAslot / uint64(len(t.ShuffledWitnesses))
}

func (t *TdposStatus) GetCurrentValidatorsInfo() []byte {
	v := ValidatorsInfo{
		Curterm: t.GetCurrentTerm(),
		Miner:   t.CurrentWitness.String(),
	}
	for _, id := range t.ActiveWitnesses {
		v.Validators = append(v.Validators, id.String())
	}
	for _, id := range t.ActiveCommittee {
		v.Committee = append(v.Committee, id.String())
	}
	b, _ := json.Marshal(&v)
	return b
}
