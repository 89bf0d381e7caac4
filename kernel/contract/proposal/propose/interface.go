package propose

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

type ProposeManager interface {
	GetProposalByID(db *objdb.Database, id protos.ObjectID) (*objects.Proposal, error)
	// DueTasks lists the transactions of released proposals whose time has come.
	DueTasks(db *objdb.Database, now uint32) []*protos.SignedTransaction
	// StartTask consumes the release of the proposal behind an agreed task.
	StartTask(db *objdb.Database, task *protos.AgreedTask, now uint32) error
	// ClearExpired removes proposals that expired without being released.
	ClearExpired(db *objdb.Database, now uint32) error
}
