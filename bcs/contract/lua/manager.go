// Package lua implements the contract operations on top of the sandbox.
package lua

import (
	"context"
	"fmt"
	"time"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/contract/sandbox"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/lib/metrics"
	"github.com/xuperchain/xupergraph/protos"
)

// MaxInvokeDepth bounds invoke_contract_function nesting.
const MaxInvokeDepth = 8

// Manager owns the contract evaluators.
type Manager struct {
	ctx *LuaCtx
}

// NewContractManager creates the manager and registers the contract evaluators.
func NewContractManager(ctx *LuaCtx) (*Manager, error) {
	if ctx == nil || ctx.Registry == nil || ctx.VM == nil {
		return nil, fmt.Errorf("lua contract ctx set error")
	}

	m := &Manager{ctx: ctx}
	ctx.Registry.Register(protos.OpContractCreate, createEvaluator{m})
	ctx.Registry.Register(protos.OpReviseContract, reviseEvaluator{m})
	ctx.Registry.Register(protos.OpCallContractFunction, callEvaluator{m})
	return m, nil
}

func (m *Manager) VM() *sandbox.VM { return m.ctx.VM }

func contractInfo(c *objects.Contract) *sandbox.ContractInfo {
	return &sandbox.ContractInfo{
		ID:           c.ID(),
		Name:         c.Name,
		Owner:        c.Owner,
		Authority:    c.ContractAuthority,
		CreationDate: c.CreationDate,
		Version:      c.CurrentVersion,
		Source:       c.LuaCode,
		ABI:          c.ContractABI,
	}
}

// call runs one contract function and stores the data it wrote.
func (m *Manager) call(st *evaluator.TrxState, op *protos.CallContractFunctionOperation) (*protos.ContractResult, error) {
	db := st.DB()
	c, err := objects.GetContract(db, op.ContractID)
	if err != nil {
		return nil, err
	}

	var recorded *protos.ContractResult
	if st.Replaying() {
		r, _ := st.RecordedResult()
		cr, ok := r.(*protos.ContractResult)
		if !ok {
			return nil, common.ErrContractError.More("block carries no contract result for %s.%s", c.Name, op.FunctionName)
		}
		recorded = cr
	}

	public := c.ContractData.Clone()
	if public.Type != protos.LuaTypeTable {
		public = protos.LuaTable()
	}
	acd := objects.FindAccountContractData(db, op.Caller, c.ID())
	private := protos.LuaTable()
	if acd != nil && acd.ContractData.Type == protos.LuaTypeTable {
		private = acd.ContractData.Clone()
	}

	call := &sandbox.Call{
		Contract: contractInfo(c),
		Caller:   op.Caller,
		Function: op.FunctionName,
		Args:     op.ValueList,
		Data:     sandbox.DataTrees{Public: &public, Private: &private},
		Bridge:   &chainBridge{m: m, st: st, contract: c.ID(), caller: op.Caller},
		Recorded: recorded,
		Nested:   st.Depth > 0,
	}
	// replay runs whatever the block already paid for
	if st.Depth == 0 && !st.Replaying() {
		budget := time.Duration(st.Params().MaxRuntimeMicros()) * time.Microsecond
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		call.Ctx = ctx
	}

	start := time.Now()
	result, err := m.ctx.VM.Run(call)
	metrics.ContractInvokeHistogram.WithLabelValues(m.ctx.BCName, c.Name, op.FunctionName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ContractInvokeCounter.WithLabelValues(m.ctx.BCName, c.Name, op.FunctionName, "fail").Inc()
		if common.Is(err, common.ErrVMCollapse) && st.Depth == 0 {
			m.ctx.VM.Reset()
		}
		m.ctx.XLog.Debug("contract call failed", "contract", c.Name, "function", op.FunctionName, "err", err)
		return nil, err
	}
	metrics.ContractInvokeCounter.WithLabelValues(m.ctx.BCName, c.Name, op.FunctionName, "ok").Inc()

	params := st.Params()
	if size := private.Size(); size > int(params.MaximumContractPrivateDataSize) {
		return nil, common.ErrDataTooLarge.More("private data of %s in %s is %d bytes, limit %d",
			op.Caller, c.Name, size, params.MaximumContractPrivateDataSize)
	}
	if size := public.Size(); size > int(params.MaximumContractTotalDataSize) {
		return nil, common.ErrDataTooLarge.More("data of %s is %d bytes, limit %d",
			c.Name, size, params.MaximumContractTotalDataSize)
	}

	if acd == nil {
		err = db.Create(&objects.AccountContractData{AccountID: op.Caller, ContractID: c.ID(), ContractData: private})
	} else {
		err = db.Modify(acd, func() { acd.ContractData = private })
	}
	if err != nil {
		return nil, err
	}
	// host functions may have changed the contract while it ran
	if c, err = objects.GetContract(db, op.ContractID); err != nil {
		return nil, err
	}
	if err := db.Modify(c, func() { c.ContractData = public }); err != nil {
		return nil, err
	}
	return result, nil
}
