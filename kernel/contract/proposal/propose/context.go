package propose

import (
	"fmt"

	"github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/utils"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
)

type ProposeCtx struct {
	// 基础上下文
	xcontext.BaseCtx
	Registry *evaluator.Registry
}

func NewProposeCtx(reg *evaluator.Registry) (*ProposeCtx, error) {
	if reg == nil {
		return nil, fmt.Errorf("new propose ctx failed because param error")
	}

	base, err := xcontext.NewBaseCtx(utils.ProposalKernelContract)
	if err != nil {
		return nil, fmt.Errorf("new propose ctx failed because new logger error. err:%v", err)
	}

	ctx := new(ProposeCtx)
	ctx.BaseCtx = base
	ctx.Registry = reg

	return ctx, nil
}
