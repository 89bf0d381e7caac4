package utils

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// RequiredApprovals collects the authorities ops need. Owner approval implies
// active approval, so accounts in the owner set are left out of the active set.
func RequiredApprovals(ops protos.OperationList) Approvals {
	var active, owner []protos.ObjectID
	var apr Approvals
	ops.RequiredAuthorities(&active, &owner, &apr.Other)
	for _, id := range owner {
		apr.Owner = objects.AddID(apr.Owner, id)
	}
	for _, id := range active {
		if !objects.ContainsID(apr.Owner, id) {
			apr.Active = objects.AddID(apr.Active, id)
		}
	}
	return apr
}

// Accounts returns every account of the approvals.
func (a Approvals) Accounts() []protos.ObjectID {
	out := append([]protos.ObjectID(nil), a.Active...)
	for _, id := range a.Owner {
		out = objects.AddID(out, id)
	}
	return out
}

// Contains reports whether id must approve.
func (a Approvals) Contains(id protos.ObjectID) bool {
	return objects.ContainsID(a.Active, id) || objects.ContainsID(a.Owner, id)
}

// CheckAccounts fails unless every id names an existing account.
func CheckAccounts(db *objdb.Database, ids []protos.ObjectID) error {
	for _, id := range ids {
		if _, err := objects.GetAccount(db, id); err != nil {
			return err
		}
	}
	return nil
}

// TaskExpiration is the expiration of a task transaction released at at.
func TaskExpiration(params *protos.ChainParameters, at uint32) uint32 {
	life := params.AssignedTaskLifeCycle
	if life > protos.AssignedTaskLifeCycleCap {
		life = protos.AssignedTaskLifeCycleCap
	}
	return at + life
}

// DueRange is the secondary key upper bound of times not after now.
func DueRange(now uint32) []byte {
	if now == protos.MaxTime {
		return nil
	}
	return objdb.Key(now + 1)
}
