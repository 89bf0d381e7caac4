package timer

import (
	"fmt"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/utils"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// Manager manages crontab objects and registers the crontab evaluators.
type Manager struct {
	Ctx *TimerCtx
}

// NewTimerTaskManager create instance of TimerManager
func NewTimerTaskManager(ctx *TimerCtx) (TimerManager, error) {
	if ctx == nil || ctx.Registry == nil {
		return nil, fmt.Errorf("timer ctx set error")
	}

	t := NewKernContractMethod(ctx)
	ctx.Registry.Register(protos.OpCrontabCreate, createEvaluator{t})
	ctx.Registry.Register(protos.OpCrontabCancel, cancelEvaluator{t})
	ctx.Registry.Register(protos.OpCrontabRecover, recoverEvaluator{t})

	return &Manager{Ctx: ctx}, nil
}

func (mgr *Manager) GetCrontabByID(db *objdb.Database, id protos.ObjectID) (*objects.Crontab, error) {
	return objects.GetCrontab(db, id)
}

func (mgr *Manager) rangeBy(db *objdb.Database, index string, now uint32) []*objects.Crontab {
	objs, err := db.Range(protos.ProtocolSpace, protos.ObjTypeCrontab, index, nil, utils.DueRange(now), 0)
	if err != nil {
		mgr.Ctx.XLog.Warn("list crontabs failed", "index", index, "err", err)
		return nil
	}
	out := make([]*objects.Crontab, 0, len(objs))
	for _, obj := range objs {
		out = append(out, obj.(*objects.Crontab))
	}
	return out
}

func (mgr *Manager) DueTasks(db *objdb.Database, now uint32) []*protos.SignedTransaction {
	var out []*protos.SignedTransaction
	for _, c := range mgr.rangeBy(db, objects.ByNextExecute, now) {
		if c.Due(now) {
			out = append(out, c.TaskTransaction())
		}
	}
	return out
}

func (mgr *Manager) StartTask(db *objdb.Database, params *protos.ChainParameters,
	task *protos.AgreedTask, now uint32) (*objects.Crontab, error) {
	c, err := objects.GetCrontab(db, task.TaskID)
	if err != nil {
		return nil, common.ErrInvalidOperation.More("agreed task %s is not a crontab", task.TaskID)
	}
	if task.TaskHash != c.TimedTransaction.TaskID() {
		return nil, common.ErrInvalidOperation.More("agreed task hash does not match crontab %s", c.ID())
	}
	if c.NextExecuteTime > now || !c.AllowExecution {
		return nil, common.ErrInvalidOperation.More("crontab %s is not due", c.ID())
	}
	err = db.Modify(c, func() {
		c.LastExecuteTime = now
		c.NextExecuteTime = now + c.ExecuteInterval
		c.ExpirationTime = now + uint32(c.ScheduledExecuteTimes-c.AlreadyExecuteTimes)*c.ExecuteInterval
		c.AlreadyExecuteTimes++
		c.TimedTransaction.Expiration = utils.TaskExpiration(params, c.NextExecuteTime)
	})
	return c, err
}

func (mgr *Manager) FinishTask(db *objdb.Database, params *protos.ChainParameters,
	c *objects.Crontab, failed bool, now uint32) error {
	// a finished schedule is left to expire
	if c.AlreadyExecuteTimes >= c.ScheduledExecuteTimes {
		return nil
	}
	if !failed {
		if c.ContinuousFailureTimes == 0 {
			return nil
		}
		return db.Modify(c, func() { c.ContinuousFailureTimes = 0 })
	}
	return db.Modify(c, func() {
		c.ContinuousFailureTimes++
		if c.ContinuousFailureTimes == params.CrontabSuspendThreshold {
			c.NextExecuteTime = protos.MaxTime
			c.IsSuspended = true
			c.ExpirationTime = now + params.CrontabSuspendExpiration
			mgr.Ctx.XLog.Info("crontab suspended", "id", c.ID(), "failures", c.ContinuousFailureTimes)
		}
	})
}

func (mgr *Manager) ClearExpired(db *objdb.Database, now uint32) error {
	for _, c := range mgr.rangeBy(db, objects.ByExpiration, now) {
		if err := db.Remove(c); err != nil {
			return err
		}
		mgr.Ctx.XLog.Trace("crontab expired", "id", c.ID())
	}
	return nil
}
