package tdpos

import (
	"errors"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/protos"
)

const (
	// recently missed count moves up faster than it heals
	RecentlyMissedCountIncrement = 4
	RecentlyMissedCountDecrement = 3

	// shuffleMultiplier seeds the per-round witness reshuffle
	shuffleMultiplier uint64 = 2685821657736338717

	secondsPerDay = 24 * 3600
)

var (
	ErrInvalidProposer   = errors.New("invalid proposer")
	ErrEmptySchedule     = errors.New("witness schedule is empty")
	ErrTimeoutBlock      = errors.New("block time is not after head block time")
	ErrMaintenanceInPast = errors.New("next maintenance time is not in the future")
)

// candidateSlice orders candidates for election: votes descending, then
// vote id ascending.
type candidateSlice []objects.Candidate

func (cs candidateSlice) Len() int {
	return len(cs)
}

func (cs candidateSlice) Swap(i, j int) {
	cs[i], cs[j] = cs[j], cs[i]
}

func (cs candidateSlice) Less(i, j int) bool {
	if cs[i].Votes() != cs[j].Votes() {
		return cs[i].Votes() > cs[j].Votes()
	}
	return cs[i].Vote() < cs[j].Vote()
}

func (cs candidateSlice) ids() []protos.ObjectID {
	out := make([]protos.ObjectID, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID())
	}
	return out
}
