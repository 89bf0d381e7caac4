package evaluator

import (
	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

type accountCreateEvaluator struct{}

func (accountCreateEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AccountCreateOperation)
	db := st.DB()
	if _, err := requireLifetimeMember(db, op.Registrar); err != nil {
		return err
	}
	if _, err := objects.AccountByName(db, op.Name); err == nil {
		return common.ErrNameTaken.More("account %s", op.Name)
	}
	params := st.Params()
	if err := verifyAuthorityAccounts(db, params, &op.Owner); err != nil {
		return errors.Wrap(err, "owner authority")
	}
	return errors.Wrap(verifyAuthorityAccounts(db, params, &op.Active), "active authority")
}

func (accountCreateEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AccountCreateOperation)
	db := st.DB()
	acc := &objects.Account{
		Registrar: op.Registrar,
		Name:      op.Name,
		Owner:     op.Owner,
		Active:    op.Active,
		Options:   op.Options,
	}
	if err := db.Create(acc); err != nil {
		return nil, err
	}
	stats := &objects.AccountStatistics{Owner: acc.ID()}
	if err := db.Create(stats); err != nil {
		return nil, err
	}
	if err := db.Modify(acc, func() { acc.Statistics = stats.ID() }); err != nil {
		return nil, err
	}
	st.Chain.Logger().Debug("account created", "name", op.Name, "id", acc.ID())
	return objectResult(acc.ID()), nil
}

type accountUpgradeEvaluator struct{}

func (accountUpgradeEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AccountUpgradeOperation)
	acc, err := objects.GetAccount(st.DB(), op.AccountToUpgrade)
	if err != nil {
		return err
	}
	if acc.IsLifetimeMember() {
		return common.ErrRuleViolation.More("account %s is already a lifetime member", acc.Name)
	}
	return nil
}

func (accountUpgradeEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AccountUpgradeOperation)
	db := st.DB()
	acc, err := objects.GetAccount(db, op.AccountToUpgrade)
	if err != nil {
		return nil, err
	}
	now := st.Now()
	err = db.Modify(acc, func() {
		if op.UpgradeToLifetimeMember {
			acc.MembershipExpirationDate = protos.MaxTime
			return
		}
		if acc.IsAnnualMember(now) {
			acc.MembershipExpirationDate += objects.AnnualMembershipSeconds
		} else {
			acc.MembershipExpirationDate = now + objects.AnnualMembershipSeconds
		}
	})
	return void, err
}

// voteChange is the effect of an account update on the votes of one type.
type voteChange struct {
	voteType uint8
	oldVotes []protos.VoteID
	newVotes []protos.VoteID
	oldLock  protos.Share
	newLock  protos.Share
}

// voteChanges computes, per vote type, which candidates lose the old lock and
// which gain the new one. A new vote set replaces the old one entirely.
func voteChanges(acc *objects.Account, op *protos.AccountUpdateOperation) []voteChange {
	if op.NewOptions == nil {
		return nil
	}
	var out []voteChange
	for _, t := range []uint8{protos.VoteTypeCommittee, protos.VoteTypeWitness} {
		c := voteChange{
			voteType: t,
			oldVotes: acc.VotesOfType(t),
			oldLock:  acc.AssetLocked.VoteAmount(t),
		}
		for _, v := range op.NewOptions.Votes {
			if v.Type() == t {
				c.newVotes = append(c.newVotes, v)
			}
		}
		c.newLock = c.oldLock
		if op.LockWithVote != nil && op.LockWithVote.VoteType == t {
			c.newLock = op.LockWithVote.Amount.Amount
		}
		if len(c.newVotes) == 0 {
			c.newLock = 0
		}
		out = append(out, c)
	}
	return out
}

type accountUpdateEvaluator struct{}

func (accountUpdateEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AccountUpdateOperation)
	db := st.DB()
	params := st.Params()
	acc, err := objects.GetAccount(db, op.Account)
	if err != nil {
		return err
	}
	if err := verifyAuthorityAccounts(db, params, op.Owner); err != nil {
		return errors.Wrap(err, "owner authority")
	}
	if err := verifyAuthorityAccounts(db, params, op.Active); err != nil {
		return errors.Wrap(err, "active authority")
	}
	changes := voteChanges(acc, op)
	if changes == nil {
		return nil
	}
	gpo := objects.GlobalProperties(db)
	locked := acc.AssetLocked
	for _, c := range changes {
		limit := params.MaximumCommitteeCount
		if c.voteType == protos.VoteTypeWitness {
			limit = params.MaximumWitnessCount
		}
		if len(c.newVotes) > int(limit) {
			return common.ErrRuleViolation.More("%d votes of type %d, maximum is %d", len(c.newVotes), c.voteType, limit)
		}
		for _, v := range c.newVotes {
			if v.Instance() >= gpo.NextAvailableVoteID {
				return common.ErrObjectNotFound.More("vote %s was never assigned", v)
			}
			if _, err := objects.CandidateByVote(db, v); err != nil {
				return err
			}
		}
		locked.SetVoteAmount(c.voteType, c.newLock)
	}
	if bal := objects.GetBalance(db, op.Account, protos.CoreAssetID); bal < locked.Total() {
		return common.ErrInsufficientBalance.More("account %s holds %d, locking %d", acc.Name, bal, locked.Total())
	}
	return nil
}

func (accountUpdateEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AccountUpdateOperation)
	db := st.DB()
	acc, err := objects.GetAccount(db, op.Account)
	if err != nil {
		return nil, err
	}
	changes := voteChanges(acc, op)
	for _, c := range changes {
		for _, v := range c.oldVotes {
			if err := addCandidateVotes(db, v, -c.oldLock); err != nil {
				return nil, err
			}
		}
		for _, v := range c.newVotes {
			if err := addCandidateVotes(db, v, c.newLock); err != nil {
				return nil, err
			}
		}
	}
	err = db.Modify(acc, func() {
		if op.Owner != nil {
			acc.Owner = *op.Owner
		}
		if op.Active != nil {
			acc.Active = *op.Active
		}
		if op.NewOptions != nil {
			acc.Options = *op.NewOptions
		}
		for _, c := range changes {
			acc.AssetLocked.SetVoteAmount(c.voteType, c.newLock)
		}
	})
	return void, err
}

// addCandidateVotes moves the vote tally of the candidate behind vote. A
// candidate removed since the vote was cast is skipped.
func addCandidateVotes(db *objdb.Database, vote protos.VoteID, delta protos.Share) error {
	if delta == 0 {
		return nil
	}
	c, err := objects.CandidateByVote(db, vote)
	if err != nil {
		return nil
	}
	switch cand := c.(type) {
	case *objects.Witness:
		return db.Modify(cand, func() { cand.TotalVotes += delta })
	case *objects.CommitteeMember:
		return db.Modify(cand, func() { cand.TotalVotes += delta })
	}
	return nil
}

type temporaryAuthorityEvaluator struct{}

func (temporaryAuthorityEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.TemporaryAuthorityChangeOperation)
	db := st.DB()
	if _, err := objects.GetAccount(db, op.Owner); err != nil {
		return err
	}
	if op.TemporaryActive != nil && op.ExpirationTime <= st.Now() {
		return common.ErrRuleViolation.More("temporary authority expires at %d, head time is %d", op.ExpirationTime, st.Now())
	}
	if op.TemporaryActive == nil && objects.FindTemporaryAuthority(db, op.Owner, op.Describe) == nil {
		return common.ErrObjectNotFound.More("temporary authority %q of %s", op.Describe, op.Owner)
	}
	// a temporary key may not manage temporary keys
	if !st.RunMode.InBlock() {
		for _, t := range objects.TemporaryAuthorities(db, op.Owner) {
			for _, k := range st.SigKeys {
				if k == t.TemporaryActive {
					return common.ErrUnauthorized.More("temporary key %q cannot change temporary authorities", t.Describe)
				}
			}
		}
	}
	return nil
}

func (temporaryAuthorityEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.TemporaryAuthorityChangeOperation)
	db := st.DB()
	existing := objects.FindTemporaryAuthority(db, op.Owner, op.Describe)
	if op.TemporaryActive == nil {
		return void, db.Remove(existing)
	}
	if existing != nil {
		err := db.Modify(existing, func() {
			existing.TemporaryActive = *op.TemporaryActive
			existing.ExpirationTime = op.ExpirationTime
		})
		return objectResult(existing.ID()), err
	}
	t := &objects.TemporaryAuthority{
		Owner:           op.Owner,
		Describe:        op.Describe,
		TemporaryActive: *op.TemporaryActive,
		ExpirationTime:  op.ExpirationTime,
	}
	if err := db.Create(t); err != nil {
		return nil, err
	}
	return objectResult(t.ID()), nil
}
