package timer

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/utils"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/protos"
)

// KernMethod holds the crontab evaluators.
type KernMethod struct {
	ctx *TimerCtx
}

func NewKernContractMethod(ctx *TimerCtx) *KernMethod {
	return &KernMethod{ctx: ctx}
}

type createEvaluator struct{ *KernMethod }

func (t createEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.CrontabCreateOperation)
	now := st.Now()
	if op.StartTime <= now {
		return common.ErrRuleViolation.More("crontab must start after %d", now)
	}
	end := uint64(op.StartTime) + op.ScheduledExecuteTimes*uint64(op.ExecuteInterval)
	if end > uint64(now)+protos.MaxCrontabPeriod {
		return common.ErrRuleViolation.More("crontab execution period can't exceed %d seconds", protos.MaxCrontabPeriod)
	}
	apr := utils.RequiredApprovals(op.CrontabOps)
	if err := utils.CheckAccounts(st.DB(), apr.Accounts()); err != nil {
		return err
	}
	// the creator alone must be able to authorize every run
	creator := []protos.ObjectID{op.CrontabCreator}
	if err := st.Chain.VerifyAuthority(op.CrontabOps, nil, creator, creator); err != nil {
		return common.ErrUnauthorized.More("crontab has no authority to execute: %v", err)
	}
	return nil
}

func (t createEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.CrontabCreateOperation)
	db := st.DB()
	trx := protos.Transaction{
		Expiration: utils.TaskExpiration(st.Params(), op.StartTime),
		Operations: op.CrontabOps,
	}
	trx.SetReferenceBlock(objects.DynamicGlobalProperties(db).HeadBlockID)
	c := &objects.Crontab{
		TaskOwner:             op.CrontabCreator,
		TimedTransaction:      trx,
		StartTime:             op.StartTime,
		ExecuteInterval:       op.ExecuteInterval,
		ScheduledExecuteTimes: op.ScheduledExecuteTimes,
		NextExecuteTime:       op.StartTime,
		ExpirationTime:        op.StartTime + op.ExecuteInterval*uint32(op.ScheduledExecuteTimes),
		AllowExecution:        true,
	}
	if err := db.Create(c); err != nil {
		return nil, err
	}
	t.ctx.XLog.Debug("crontab created", "id", c.ID(), "owner", c.TaskOwner, "start", c.StartTime)
	return &protos.ObjectIDResult{ID: c.ID()}, nil
}

type cancelEvaluator struct{ *KernMethod }

func (t cancelEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.CrontabCancelOperation)
	c, err := objects.GetCrontab(st.DB(), op.Task)
	if err != nil {
		return err
	}
	if c.TaskOwner != op.FeePayingAccount {
		return common.ErrUnauthorized.More("%s is not the owner of crontab %s", op.FeePayingAccount, c.ID())
	}
	return nil
}

func (t cancelEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.CrontabCancelOperation)
	db := st.DB()
	c, err := objects.GetCrontab(db, op.Task)
	if err != nil {
		return nil, err
	}
	if err := db.Remove(c); err != nil {
		return nil, err
	}
	return &protos.VoidResult{}, nil
}

type recoverEvaluator struct{ *KernMethod }

func (t recoverEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.CrontabRecoverOperation)
	c, err := objects.GetCrontab(st.DB(), op.Crontab)
	if err != nil {
		return err
	}
	if op.RestartTime <= st.Now() {
		return common.ErrRuleViolation.More("crontab must restart after %d", st.Now())
	}
	if c.TaskOwner != op.CrontabOwner {
		return common.ErrUnauthorized.More("%s is not the owner of crontab %s", op.CrontabOwner, c.ID())
	}
	return nil
}

func (t recoverEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.CrontabRecoverOperation)
	db := st.DB()
	c, err := objects.GetCrontab(db, op.Crontab)
	if err != nil {
		return nil, err
	}
	params := st.Params()
	err = db.Modify(c, func() {
		c.IsSuspended = false
		c.ContinuousFailureTimes = 0
		c.NextExecuteTime = op.RestartTime
		c.ExpirationTime = c.NextExecuteTime + c.ExecuteInterval*uint32(c.ScheduledExecuteTimes-c.AlreadyExecuteTimes)
		c.TimedTransaction.Expiration = utils.TaskExpiration(params, c.NextExecuteTime)
	})
	if err != nil {
		return nil, err
	}
	return &protos.VoidResult{}, nil
}
