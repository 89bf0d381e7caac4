package propose

import (
	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/utils"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// KernMethod holds the proposal evaluators.
type KernMethod struct {
	ctx *ProposeCtx
}

func NewKernContractMethod(ctx *ProposeCtx) *KernMethod {
	return &KernMethod{ctx: ctx}
}

type createEvaluator struct{ *KernMethod }

func (t createEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.ProposalCreateOperation)
	db := st.DB()
	now := st.Now()
	params := st.Params()
	if op.ExpirationTime <= now {
		return common.ErrRuleViolation.More("proposal has already expired on creation")
	}
	if op.ExpirationTime > now+params.MaximumProposalLifetime {
		return common.ErrRuleViolation.More("proposal expiration %d is too far in the future", op.ExpirationTime)
	}
	if op.ReviewPeriodSeconds != 0 && op.ReviewPeriodSeconds >= op.ExpirationTime-now {
		return common.ErrRuleViolation.More("review period must be less than the proposal lifetime")
	}

	apr := utils.RequiredApprovals(op.ProposedOps)
	if len(apr.Other) > 0 {
		return common.ErrRuleViolation.More("proposed operations require %d non account authorities", len(apr.Other))
	}
	if apr.Contains(protos.CommitteeAccountID) || apr.Contains(protos.WitnessAccountID) {
		if op.ReviewPeriodSeconds < params.CommitteeProposalReviewPeriod {
			return common.ErrRuleViolation.More("review period of %d given, at least %d required",
				op.ReviewPeriodSeconds, params.CommitteeProposalReviewPeriod)
		}
		if next := objects.DynamicGlobalProperties(db).NextMaintenanceTime; op.ExpirationTime > next {
			return common.ErrRuleViolation.More("proposal must end before the next maintenance at %d", next)
		}
	}
	return utils.CheckAccounts(db, apr.Accounts())
}

func (t createEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.ProposalCreateOperation)
	apr := utils.RequiredApprovals(op.ProposedOps)
	p := &objects.Proposal{
		ExpirationTime: op.ExpirationTime,
		ProposedTransaction: protos.Transaction{
			Expiration: op.ExpirationTime,
			Operations: op.ProposedOps,
		},
		RequiredActiveApprovals: apr.Active,
		RequiredOwnerApprovals:  apr.Owner,
		Proposer:                op.FeePayingAccount,
	}
	if op.ReviewPeriodSeconds != 0 {
		p.ReviewPeriodTime = op.ExpirationTime - op.ReviewPeriodSeconds
	}
	if err := st.DB().Create(p); err != nil {
		return nil, err
	}
	t.ctx.XLog.Debug("proposal created", "id", p.ID(), "proposer", p.Proposer, "expiration", p.ExpirationTime)
	return &protos.ObjectIDResult{ID: p.ID()}, nil
}

type updateEvaluator struct{ *KernMethod }

func (t updateEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.ProposalUpdateOperation)
	p, err := objects.GetProposal(st.DB(), op.Proposal)
	if err != nil {
		return err
	}
	if p.HasReviewPeriod() && st.Now() >= p.ReviewPeriodTime &&
		(len(op.ActiveApprovalsToAdd) > 0 || len(op.OwnerApprovalsToAdd) > 0) {
		return common.ErrRuleViolation.More("proposal %s is in its review period, no approvals may be added", p.ID())
	}
	for _, id := range op.ActiveApprovalsToRemove {
		if !objects.ContainsID(p.AvailableActiveApprovals, id) {
			return common.ErrRuleViolation.More("%s has no active approval on %s", id, p.ID())
		}
	}
	for _, id := range op.OwnerApprovalsToRemove {
		if !objects.ContainsID(p.AvailableOwnerApprovals, id) {
			return common.ErrRuleViolation.More("%s has no owner approval on %s", id, p.ID())
		}
	}
	return nil
}

func (t updateEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.ProposalUpdateOperation)
	db := st.DB()
	p, err := objects.GetProposal(db, op.Proposal)
	if err != nil {
		return nil, err
	}
	active := append([]protos.ObjectID(nil), p.AvailableActiveApprovals...)
	owner := append([]protos.ObjectID(nil), p.AvailableOwnerApprovals...)
	for _, id := range op.ActiveApprovalsToAdd {
		active = objects.AddID(active, id)
	}
	for _, id := range op.ActiveApprovalsToRemove {
		active = objects.RemoveID(active, id)
	}
	for _, id := range op.OwnerApprovalsToAdd {
		owner = objects.AddID(owner, id)
	}
	for _, id := range op.OwnerApprovalsToRemove {
		owner = objects.RemoveID(owner, id)
	}
	keys := updateKeys(p.AvailableKeyApprovals, op.KeyApprovalsToAdd, op.KeyApprovalsToRemove)

	authorized := st.Chain.VerifyAuthority(p.ProposedTransaction.Operations, keys, active, owner) == nil
	now := st.Now()
	params := st.Params()
	head := objects.DynamicGlobalProperties(db).HeadBlockID
	err = db.Modify(p, func() {
		p.AvailableActiveApprovals = active
		p.AvailableOwnerApprovals = owner
		p.AvailableKeyApprovals = keys
		p.AllowExecution = authorized
		if !authorized {
			return
		}
		// without a review period the proposal runs in the next block
		if !p.HasReviewPeriod() {
			p.ExpirationTime = now
		}
		p.ProposedTransaction.SetReferenceBlock(head)
		p.ProposedTransaction.Expiration = utils.TaskExpiration(params, p.ExpirationTime)
	})
	if err != nil {
		return nil, err
	}
	if authorized {
		t.ctx.XLog.Debug("proposal released", "id", p.ID(), "execute_at", p.ExpirationTime)
	}
	return &protos.VoidResult{}, nil
}

func updateKeys(keys, add, remove []protos.PublicKey) []protos.PublicKey {
	out := make([]protos.PublicKey, 0, len(keys)+len(add))
	seen := make(map[protos.PublicKey]bool, len(keys)+len(add))
	for _, k := range remove {
		seen[k] = true
	}
	for _, set := range [][]protos.PublicKey{keys, add} {
		for _, k := range set {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

type deleteEvaluator struct{ *KernMethod }

func (t deleteEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.ProposalDeleteOperation)
	p, err := objects.GetProposal(st.DB(), op.Proposal)
	if err != nil {
		return err
	}
	required := p.RequiredActiveApprovals
	if op.UsingOwnerAuthority {
		required = p.RequiredOwnerApprovals
	}
	if !objects.ContainsID(required, op.FeePayingAccount) {
		return common.ErrUnauthorized.More("%s is not authoritative for proposal %s", op.FeePayingAccount, p.ID())
	}
	return nil
}

func (t deleteEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.ProposalDeleteOperation)
	db := st.DB()
	p, err := objects.GetProposal(db, op.Proposal)
	if err != nil {
		return nil, err
	}
	return &protos.VoidResult{}, errors.Wrapf(db.Remove(p), "remove proposal %s", p.ID())
}

func getProposal(db *objdb.Database, id protos.ObjectID) (*objects.Proposal, error) {
	p, err := objects.GetProposal(db, id)
	if err != nil {
		return nil, common.ErrInvalidOperation.More("agreed task %s is not a proposal", id)
	}
	return p, nil
}
