package lua

import (
	"fmt"

	"github.com/xuperchain/xupergraph/kernel/common/xcontext"
	"github.com/xuperchain/xupergraph/kernel/contract/sandbox"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
)

// LuaCtx is what the contract evaluators share.
type LuaCtx struct {
	xcontext.BaseCtx
	// BCName labels metrics
	BCName   string
	Registry *evaluator.Registry
	VM       *sandbox.VM
}

func NewLuaCtx(bcName string, reg *evaluator.Registry, vm *sandbox.VM) (*LuaCtx, error) {
	if reg == nil || vm == nil {
		return nil, fmt.Errorf("new lua contract ctx failed because param error")
	}

	base, err := xcontext.NewBaseCtx("lua_contract")
	if err != nil {
		return nil, fmt.Errorf("new lua contract ctx failed because new logger error. err:%v", err)
	}

	ctx := new(LuaCtx)
	ctx.BaseCtx = base
	ctx.BCName = bcName
	ctx.Registry = reg
	ctx.VM = vm

	return ctx, nil
}
