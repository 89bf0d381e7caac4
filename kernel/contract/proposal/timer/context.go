package timer

import (
	"fmt"

	"github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/contract/proposal/utils"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
)

type TimerCtx struct {
	xcontext.BaseCtx
	Registry *evaluator.Registry
}

func NewTimerCtx(reg *evaluator.Registry) (*TimerCtx, error) {
	if reg == nil {
		return nil, fmt.Errorf("new timer ctx failed because param error")
	}

	base, err := xcontext.NewBaseCtx(utils.TimerKernelContract)
	if err != nil {
		return nil, fmt.Errorf("new timer ctx failed because new logger error. err:%v", err)
	}

	return &TimerCtx{BaseCtx: base, Registry: reg}, nil
}
