package utils

import "github.com/xuperchain/xupergraph/protos"

// Module names of the agreed task kernels, used as log sub modules.
const (
	ProposalKernelContract = "$proposal"
	TimerKernelContract    = "$timer_task"
)

// Approvals are the authorities a set of operations needs.
type Approvals struct {
	Active []protos.ObjectID
	Owner  []protos.ObjectID
	Other  []protos.Authority
}
