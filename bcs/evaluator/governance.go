package evaluator

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// candidateKind captures what differs between witnesses and committee members.
type candidateKind struct {
	name     string
	objType  uint8
	voteType uint8
	freeze   func(p *protos.ChainParameters) protos.Share
	minCount func(c *objects.ChainProperty) uint16
	locked   func(l *objects.AssetLocked) *protos.Share
}

var (
	witnessKind = candidateKind{
		name:     "witness",
		objType:  protos.ObjTypeWitness,
		voteType: protos.VoteTypeWitness,
		freeze:   func(p *protos.ChainParameters) protos.Share { return p.WitnessCandidateFreeze },
		minCount: func(c *objects.ChainProperty) uint16 { return c.ImmutableParameters.MinWitnessCount },
		locked:   func(l *objects.AssetLocked) *protos.Share { return &l.WitnessFreeze },
	}
	committeeKind = candidateKind{
		name:     "committee member",
		objType:  protos.ObjTypeCommitteeMember,
		voteType: protos.VoteTypeCommittee,
		freeze:   func(p *protos.ChainParameters) protos.Share { return p.CommitteeCandidateFreeze },
		minCount: func(c *objects.ChainProperty) uint16 { return c.ImmutableParameters.MinCommitteeMemberCount },
		locked:   func(l *objects.AssetLocked) *protos.Share { return &l.CommitteeFreeze },
	}
)

// workingCount counts candidates of kind that are currently working.
func (k candidateKind) workingCount(db *objdb.Database) (int, error) {
	working, err := db.Prefix(protos.ProtocolSpace, k.objType, objects.ByWorkStatusVotes, objdb.Key(false))
	if err != nil {
		return 0, err
	}
	return len(working), nil
}

// checkCreate verifies account may become a candidate of kind.
func (k candidateKind) checkCreate(st *evaluator.TrxState, account protos.ObjectID) error {
	db := st.DB()
	acc, err := requireLifetimeMember(db, account)
	if err != nil {
		return err
	}
	if _, err := db.FindBy(protos.ProtocolSpace, k.objType, objects.ByAccount, objdb.Key(account)); err == nil {
		return common.ErrRuleViolation.More("account %s is already a %s", acc.Name, k.name)
	}
	freeze := k.freeze(st.Params())
	if avail := objects.AvailableBalance(db, account, protos.CoreAssetID); avail < freeze {
		return common.ErrInsufficientBalance.More("%s candidacy freezes %d, account %s has %d available",
			k.name, freeze, acc.Name, avail)
	}
	return nil
}

// freezeFor locks the candidacy deposit on account.
func (k candidateKind) freezeFor(db *objdb.Database, account protos.ObjectID, amount protos.Share) error {
	acc, err := objects.GetAccount(db, account)
	if err != nil {
		return err
	}
	return db.Modify(acc, func() { *k.locked(&acc.AssetLocked) = amount })
}

// checkWorkStatus verifies a candidate may move to status.
func (k candidateKind) checkWorkStatus(st *evaluator.TrxState, c objects.Candidate, status uint8) error {
	db := st.DB()
	switch status {
	case protos.WorkStatusResigned:
		if !c.Working() {
			return common.ErrRuleViolation.More("%s %s is not working", k.name, c.ID())
		}
		n, err := k.workingCount(db)
		if err != nil {
			return err
		}
		if min := k.minCount(objects.ChainProperties(db)); n <= int(min) {
			return common.ErrRuleViolation.More("only %d working %ss, minimum is %d", n, k.name, min)
		}
	case protos.WorkStatusWorking:
		if c.Working() {
			return common.ErrRuleViolation.More("%s %s is already working", k.name, c.ID())
		}
		freeze := k.freeze(st.Params())
		if avail := objects.AvailableBalance(db, c.Account(), protos.CoreAssetID); avail < freeze {
			return common.ErrInsufficientBalance.More("%s candidacy freezes %d, account has %d available",
				k.name, freeze, avail)
		}
	}
	return nil
}

// workStatusDelta returns the vote and freeze changes of a status move.
func (k candidateKind) workStatusDelta(st *evaluator.TrxState, account protos.ObjectID, status uint8) (votes, freeze protos.Share, err error) {
	switch status {
	case protos.WorkStatusResigned:
		acc, err := objects.GetAccount(st.DB(), account)
		if err != nil {
			return 0, 0, err
		}
		return -*k.locked(&acc.AssetLocked), 0, nil
	case protos.WorkStatusWorking:
		f := k.freeze(st.Params())
		return f, f, nil
	}
	return 0, 0, nil
}

type witnessCreateEvaluator struct{}

func (witnessCreateEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	return witnessKind.checkCreate(st, o.(*protos.WitnessCreateOperation).WitnessAccount)
}

func (witnessCreateEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.WitnessCreateOperation)
	db := st.DB()
	vote, err := nextVoteID(db, protos.VoteTypeWitness)
	if err != nil {
		return nil, err
	}
	freeze := witnessKind.freeze(st.Params())
	w := &objects.Witness{
		WitnessAccount: op.WitnessAccount,
		SigningKey:     op.BlockSigningKey,
		VoteID:         vote,
		TotalVotes:     freeze,
		URL:            op.URL,
		WorkStatus:     true,
	}
	if err := db.Create(w); err != nil {
		return nil, err
	}
	if err := witnessKind.freezeFor(db, op.WitnessAccount, freeze); err != nil {
		return nil, err
	}
	return objectResult(w.ID()), nil
}

type witnessUpdateEvaluator struct{}

func (witnessUpdateEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.WitnessUpdateOperation)
	w, err := objects.GetWitness(st.DB(), op.Witness)
	if err != nil {
		return err
	}
	if w.WitnessAccount != op.WitnessAccount {
		return common.ErrUnauthorized.More("witness %s belongs to %s", w.ID(), w.WitnessAccount)
	}
	return witnessKind.checkWorkStatus(st, w, op.WorkStatus)
}

func (witnessUpdateEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.WitnessUpdateOperation)
	db := st.DB()
	w, err := objects.GetWitness(db, op.Witness)
	if err != nil {
		return nil, err
	}
	votes, freeze, err := witnessKind.workStatusDelta(st, op.WitnessAccount, op.WorkStatus)
	if err != nil {
		return nil, err
	}
	if err := db.Modify(w, func() {
		if op.NewURL != nil {
			w.URL = *op.NewURL
		}
		if op.NewSigningKey != nil {
			w.SigningKey = *op.NewSigningKey
		}
		if op.WorkStatus != protos.WorkStatusUnchanged {
			w.WorkStatus = op.WorkStatus == protos.WorkStatusWorking
			w.TotalVotes += votes
		}
	}); err != nil {
		return nil, err
	}
	if op.WorkStatus != protos.WorkStatusUnchanged {
		if err := witnessKind.freezeFor(db, op.WitnessAccount, freeze); err != nil {
			return nil, err
		}
	}
	return void, nil
}

type committeeCreateEvaluator struct{}

func (committeeCreateEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	return committeeKind.checkCreate(st, o.(*protos.CommitteeMemberCreateOperation).CommitteeMemberAccount)
}

func (committeeCreateEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.CommitteeMemberCreateOperation)
	db := st.DB()
	vote, err := nextVoteID(db, protos.VoteTypeCommittee)
	if err != nil {
		return nil, err
	}
	freeze := committeeKind.freeze(st.Params())
	c := &objects.CommitteeMember{
		CommitteeMemberAccount: op.CommitteeMemberAccount,
		VoteID:                 vote,
		TotalVotes:             freeze,
		URL:                    op.URL,
		WorkStatus:             true,
	}
	if err := db.Create(c); err != nil {
		return nil, err
	}
	if err := committeeKind.freezeFor(db, op.CommitteeMemberAccount, freeze); err != nil {
		return nil, err
	}
	return objectResult(c.ID()), nil
}

type committeeUpdateEvaluator struct{}

func (committeeUpdateEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.CommitteeMemberUpdateOperation)
	c, err := objects.GetCommitteeMember(st.DB(), op.CommitteeMember)
	if err != nil {
		return err
	}
	if c.CommitteeMemberAccount != op.CommitteeMemberAccount {
		return common.ErrUnauthorized.More("committee member %s belongs to %s", c.ID(), c.CommitteeMemberAccount)
	}
	return committeeKind.checkWorkStatus(st, c, op.WorkStatus)
}

func (committeeUpdateEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.CommitteeMemberUpdateOperation)
	db := st.DB()
	c, err := objects.GetCommitteeMember(db, op.CommitteeMember)
	if err != nil {
		return nil, err
	}
	votes, freeze, err := committeeKind.workStatusDelta(st, op.CommitteeMemberAccount, op.WorkStatus)
	if err != nil {
		return nil, err
	}
	if err := db.Modify(c, func() {
		if op.NewURL != nil {
			c.URL = *op.NewURL
		}
		if op.WorkStatus != protos.WorkStatusUnchanged {
			c.WorkStatus = op.WorkStatus == protos.WorkStatusWorking
			c.TotalVotes += votes
		}
	}); err != nil {
		return nil, err
	}
	if op.WorkStatus != protos.WorkStatusUnchanged {
		if err := committeeKind.freezeFor(db, op.CommitteeMemberAccount, freeze); err != nil {
			return nil, err
		}
	}
	return void, nil
}

type updateGlobalParametersEvaluator struct{}

// staged returns the parameters the operation would leave pending.
func (updateGlobalParametersEvaluator) staged(st *evaluator.TrxState, op *protos.CommitteeMemberUpdateGlobalParametersOperation) (protos.ChainParameters, error) {
	gpo := objects.GlobalProperties(st.DB())
	base := gpo.Parameters
	if gpo.PendingParameters != nil {
		base = *gpo.PendingParameters
	}
	next, err := op.Apply(base)
	if err != nil {
		return base, common.ErrParameter.More("%v", err)
	}
	return next, nil
}

func (e updateGlobalParametersEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.CommitteeMemberUpdateGlobalParametersOperation)
	if !st.IsAgreedTask {
		return common.ErrAgreedTask.More("global parameters change only through a proposal")
	}
	next, err := e.staged(st, op)
	if err != nil {
		return err
	}
	db := st.DB()
	if next.MaintenanceInterval != st.Params().MaintenanceInterval {
		return common.ErrRuleViolation.More("maintenance interval cannot change")
	}
	imm := objects.ChainProperties(db).ImmutableParameters
	witnesses := db.Count(protos.ProtocolSpace, protos.ObjTypeWitness)
	if next.WitnessNumberOfElection < imm.MinWitnessCount || int(next.WitnessNumberOfElection) > witnesses {
		return common.ErrRuleViolation.More("witness election count %d must lie in [%d, %d]",
			next.WitnessNumberOfElection, imm.MinWitnessCount, witnesses)
	}
	members := db.Count(protos.ProtocolSpace, protos.ObjTypeCommitteeMember)
	if next.CommitteeNumberOfElection < imm.MinCommitteeMemberCount || int(next.CommitteeNumberOfElection) > members {
		return common.ErrRuleViolation.More("committee election count %d must lie in [%d, %d]",
			next.CommitteeNumberOfElection, imm.MinCommitteeMemberCount, members)
	}
	return nil
}

func (e updateGlobalParametersEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.CommitteeMemberUpdateGlobalParametersOperation)
	next, err := e.staged(st, op)
	if err != nil {
		return nil, err
	}
	db := st.DB()
	gpo := objects.GlobalProperties(db)
	err = db.Modify(gpo, func() { gpo.PendingParameters = &next })
	return void, err
}
