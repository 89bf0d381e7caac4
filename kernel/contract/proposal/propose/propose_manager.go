package propose

import (
	"fmt"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/utils"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// Manager manages proposal objects and registers the proposal evaluators.
type Manager struct {
	Ctx *ProposeCtx
}

// NewProposeManager creates the manager and registers the proposal evaluators.
func NewProposeManager(ctx *ProposeCtx) (ProposeManager, error) {
	if ctx == nil || ctx.Registry == nil {
		return nil, fmt.Errorf("propose ctx set error")
	}

	t := NewKernContractMethod(ctx)
	ctx.Registry.Register(protos.OpProposalCreate, createEvaluator{t})
	ctx.Registry.Register(protos.OpProposalUpdate, updateEvaluator{t})
	ctx.Registry.Register(protos.OpProposalDelete, deleteEvaluator{t})

	return &Manager{Ctx: ctx}, nil
}

// GetProposalByID get proposal by id
func (mgr *Manager) GetProposalByID(db *objdb.Database, id protos.ObjectID) (*objects.Proposal, error) {
	return objects.GetProposal(db, id)
}

func (mgr *Manager) expiring(db *objdb.Database, now uint32) []*objects.Proposal {
	objs, err := db.Range(protos.ProtocolSpace, protos.ObjTypeProposal, objects.ByExpiration, nil, utils.DueRange(now), 0)
	if err != nil {
		mgr.Ctx.XLog.Warn("list expiring proposals failed", "err", err)
		return nil
	}
	out := make([]*objects.Proposal, 0, len(objs))
	for _, obj := range objs {
		out = append(out, obj.(*objects.Proposal))
	}
	return out
}

func (mgr *Manager) DueTasks(db *objdb.Database, now uint32) []*protos.SignedTransaction {
	var out []*protos.SignedTransaction
	for _, p := range mgr.expiring(db, now) {
		if p.AllowExecution {
			out = append(out, p.TaskTransaction())
		}
	}
	return out
}

func (mgr *Manager) StartTask(db *objdb.Database, task *protos.AgreedTask, now uint32) error {
	p, err := getProposal(db, task.TaskID)
	if err != nil {
		return err
	}
	if task.TaskHash != p.ProposedTransaction.TaskID() {
		return common.ErrInvalidOperation.More("agreed task hash does not match proposal %s", p.ID())
	}
	if p.ExpirationTime > now || !p.AllowExecution {
		return common.ErrInvalidOperation.More("proposal %s is not due", p.ID())
	}
	return db.Modify(p, func() { p.AllowExecution = false })
}

func (mgr *Manager) ClearExpired(db *objdb.Database, now uint32) error {
	for _, p := range mgr.expiring(db, now) {
		if p.AllowExecution {
			continue
		}
		if err := db.Remove(p); err != nil {
			return err
		}
		mgr.Ctx.XLog.Trace("proposal expired", "id", p.ID())
	}
	return nil
}
