package timer

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

type TimerManager interface {
	GetCrontabByID(db *objdb.Database, id protos.ObjectID) (*objects.Crontab, error)
	// DueTasks lists the transactions of crontabs due at now.
	DueTasks(db *objdb.Database, now uint32) []*protos.SignedTransaction
	// StartTask advances the crontab behind an agreed task to its next run.
	StartTask(db *objdb.Database, params *protos.ChainParameters, task *protos.AgreedTask, now uint32) (*objects.Crontab, error)
	// FinishTask records the outcome of a run, suspending crontabs that keep failing.
	FinishTask(db *objdb.Database, params *protos.ChainParameters, c *objects.Crontab, failed bool, now uint32) error
	ClearExpired(db *objdb.Database, now uint32) error
}
