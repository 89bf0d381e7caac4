package propose

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	coreeval "github.com/xuperchain/xupergraph/bcs/evaluator"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/mock"
	"github.com/xuperchain/xupergraph/protos"
)

func newPropose(t *testing.T) (*mock.Chain, *evaluator.Registry, ProposeManager) {
	reg := evaluator.NewRegistry()
	coreeval.RegisterAll(reg)
	ctx, err := NewProposeCtx(reg)
	require.NoError(t, err)
	mgr, err := NewProposeManager(ctx)
	require.NoError(t, err)
	chain, err := mock.NewChain(reg, mock.NewGenesis(1, "alice", "bob"))
	require.NoError(t, err)
	return chain, reg, mgr
}

func run(chain *mock.Chain, reg *evaluator.Registry, op protos.Operation) (protos.OperationResult, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	st := evaluator.NewTrxState(chain, &protos.SignedTransaction{}, evaluator.PushMode, evaluator.SkipNothing)
	return reg.Run(st, op)
}

// approvedBy accepts operations once every required active account approved.
func approvedBy(ops protos.OperationList, _ []protos.PublicKey, active, owner []protos.ObjectID) error {
	var req, reqOwner []protos.ObjectID
	var other []protos.Authority
	ops.RequiredAuthorities(&req, &reqOwner, &other)
	for _, id := range req {
		if !objects.ContainsID(active, id) && !objects.ContainsID(owner, id) {
			return errors.New("missing approval")
		}
	}
	return nil
}

func TestProposalReleaseAndExecution(t *testing.T) {
	chain, reg, mgr := newPropose(t)
	chain.VerifyFn = approvedBy
	db := chain.DB()
	alice, bob := chain.Account("alice"), chain.Account("bob")
	now := mock.GenesisTimestamp

	res, err := run(chain, reg, &protos.ProposalCreateOperation{
		FeePayingAccount: bob,
		ProposedOps: protos.OperationList{&protos.TransferOperation{
			From: alice, To: bob, Amount: protos.NewAsset(100, protos.CoreAssetID),
		}},
		ExpirationTime: now + 600,
	})
	require.NoError(t, err)
	id := res.(*protos.ObjectIDResult).ID
	p, err := mgr.GetProposalByID(db, id)
	require.NoError(t, err)
	require.Equal(t, []protos.ObjectID{alice}, p.RequiredActiveApprovals)
	require.False(t, p.AllowExecution)

	_, err = run(chain, reg, &protos.ProposalDeleteOperation{FeePayingAccount: bob, Proposal: id})
	require.True(t, common.Is(err, common.ErrUnauthorized), "got %v", err)

	_, err = run(chain, reg, &protos.ProposalUpdateOperation{
		FeePayingAccount: alice, Proposal: id, ActiveApprovalsToAdd: []protos.ObjectID{alice},
	})
	require.NoError(t, err)
	require.True(t, p.AllowExecution)
	require.Equal(t, now, p.ExpirationTime)

	due := mgr.DueTasks(db, now)
	require.Len(t, due, 1)
	require.Equal(t, id, due[0].AgreedTask.TaskID)
	require.NoError(t, mgr.StartTask(db, due[0].AgreedTask, now))
	require.False(t, p.AllowExecution)
	require.Error(t, mgr.StartTask(db, due[0].AgreedTask, now))

	require.NoError(t, mgr.ClearExpired(db, now))
	require.Nil(t, db.Find(id))
}

func TestCommitteeProposalNeedsReviewPeriod(t *testing.T) {
	chain, reg, _ := newPropose(t)
	db := chain.DB()
	dgp := objects.DynamicGlobalProperties(db)
	require.NoError(t, db.Modify(dgp, func() { dgp.NextMaintenanceTime = mock.GenesisTimestamp + 3600 }))
	params := objects.GlobalProperties(db).Parameters

	op := &protos.ProposalCreateOperation{
		FeePayingAccount: chain.Account("alice"),
		ProposedOps: protos.OperationList{&protos.CommitteeMemberUpdateGlobalParametersOperation{
			Overrides: []protos.ParameterOverride{{Name: "maximum_transaction_size", Value: "4096"}},
		}},
		ExpirationTime: mock.GenesisTimestamp + params.CommitteeProposalReviewPeriod + 60,
	}
	_, err := run(chain, reg, op)
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	op.ReviewPeriodSeconds = params.CommitteeProposalReviewPeriod
	res, err := run(chain, reg, op)
	require.NoError(t, err)
	p, err := objects.GetProposal(db, res.(*protos.ObjectIDResult).ID)
	require.NoError(t, err)
	require.Equal(t, mock.GenesisTimestamp+60, p.ReviewPeriodTime)

	op.ExpirationTime = mock.GenesisTimestamp + 3601
	_, err = run(chain, reg, op)
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
}
