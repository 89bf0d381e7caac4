package tdpos

import (
	"math"
	"math/bits"
	"sort"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// voteCounter turns a descending list of vote totals into a multisig
// authority. Weights are scaled so the largest fits in 16 bits; the
// threshold is a strict majority of the scaled total.
type voteCounter struct {
	lastVotes uint64
	total     uint64
	bitshift  int
	auth      protos.Authority
}

func newVoteCounter() *voteCounter {
	return &voteCounter{lastVotes: math.MaxUint64, bitshift: -1}
}

func (vc *voteCounter) add(who protos.ObjectID, votes uint64) {
	if votes == 0 {
		return
	}
	if votes > vc.lastVotes {
		panic("vote counter fed out of order")
	}
	vc.lastVotes = votes
	if vc.bitshift == -1 {
		vc.bitshift = bits.Len64(votes) - 1 - 15
		if vc.bitshift < 0 {
			vc.bitshift = 0
		}
	}
	scaled := votes >> uint(vc.bitshift)
	if scaled == 0 {
		scaled = 1
	}
	vc.total += scaled
	vc.auth.AddAccount(who, uint16(scaled))
}

func (vc *voteCounter) empty() bool { return vc.total == 0 }

// finish writes the authority into out, leaving out alone when nobody had
// votes.
func (vc *voteCounter) finish(out *protos.Authority) {
	if vc.empty() {
		return
	}
	vc.auth.WeightThreshold = uint32(vc.total>>1) + 1
	*out = vc.auth
}

// workingCandidates returns the working candidates of one type in election
// order.
func workingCandidates(db *objdb.Database, typ uint8) (candidateSlice, error) {
	objs, err := db.Prefix(protos.ProtocolSpace, typ, objects.ByWorkStatusVotes, objdb.Key(false))
	if err != nil {
		return nil, err
	}
	cs := make(candidateSlice, 0, len(objs))
	for _, o := range objs {
		cs = append(cs, o.(objects.Candidate))
	}
	sort.Sort(cs)
	return cs, nil
}

// election tracks which candidate accounts won a seat in any election of one
// maintenance run.
type election map[protos.ObjectID]bool

func (e election) record(all candidateSlice, elected int) {
	for i, c := range all {
		if i < elected {
			e[c.Account()] = true
		} else if _, ok := e[c.Account()]; !ok {
			e[c.Account()] = false
		}
	}
}

func (e election) losers() []protos.ObjectID {
	var out []protos.ObjectID
	for acc, won := range e {
		if !won {
			out = objects.AddID(out, acc)
		}
	}
	return out
}

func topK(all candidateSlice, k uint16) int {
	if int(k) < len(all) {
		return int(k)
	}
	return len(all)
}

// updateActiveWitnesses elects the top witnesses and makes them the
// witness account authority. Without any working witness the active set is
// kept so the chain can still produce blocks.
func (tp *Tdpos) updateActiveWitnesses(db *objdb.Database, e election) error {
	gpo := objects.GlobalProperties(db)
	all, err := workingCandidates(db, protos.ObjTypeWitness)
	if err != nil {
		return err
	}
	n := topK(all, gpo.Parameters.WitnessNumberOfElection)
	e.record(all, n)
	if n == 0 {
		tp.ctx.XLog.Warn("no working witness, keeping the active set", "active", len(gpo.ActiveWitnesses))
		return nil
	}
	wits := all[:n]

	acc, err := objects.GetAccount(db, protos.WitnessAccountID)
	if err != nil {
		return err
	}
	if err := db.Modify(acc, func() {
		vc := newVoteCounter()
		for _, w := range wits {
			vc.add(w.Account(), uint64(w.Votes()))
		}
		vc.finish(&acc.Active)
	}); err != nil {
		return err
	}
	return db.Modify(gpo, func() { gpo.ActiveWitnesses = wits.ids() })
}

// updateActiveCommitteeMembers elects the committee. The committee account
// becomes a one member one vote majority, the relaxed committee account a
// vote weighted one.
func (tp *Tdpos) updateActiveCommitteeMembers(db *objdb.Database, e election) error {
	gpo := objects.GlobalProperties(db)
	all, err := workingCandidates(db, protos.ObjTypeCommitteeMember)
	if err != nil {
		return err
	}
	n := topK(all, gpo.Parameters.CommitteeNumberOfElection)
	e.record(all, n)
	members := all[:n]

	if len(members) > 0 {
		committee, err := objects.GetAccount(db, protos.CommitteeAccountID)
		if err != nil {
			return err
		}
		if err := db.Modify(committee, func() {
			vc := newVoteCounter()
			for _, m := range members {
				vc.add(m.Account(), 1)
			}
			vc.finish(&committee.Active)
		}); err != nil {
			return err
		}
		relaxed, err := objects.GetAccount(db, protos.RelaxedCommitteeAccountID)
		if err != nil {
			return err
		}
		if err := db.Modify(relaxed, func() {
			vc := newVoteCounter()
			for _, m := range members {
				vc.add(m.Account(), uint64(m.Votes()))
			}
			vc.finish(&relaxed.Active)
		}); err != nil {
			return err
		}
	}
	return db.Modify(gpo, func() { gpo.ActiveCommitteeMembers = members.ids() })
}
