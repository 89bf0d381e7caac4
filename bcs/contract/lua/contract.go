package lua

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/protos"
)

type createEvaluator struct{ *Manager }

func (t createEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.ContractCreateOperation)
	db := st.DB()
	if _, err := objects.GetAccount(db, op.Owner); err != nil {
		return err
	}
	if _, err := objects.ContractByName(db, op.Name); err == nil {
		return common.ErrRuleViolation.More("contract %s already exists", op.Name)
	}
	return nil
}

func (t createEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.ContractCreateOperation)
	abi, err := t.ctx.VM.ABI(op.Name, op.Data)
	if err != nil {
		return nil, err
	}
	c := &objects.Contract{
		Owner:             op.Owner,
		Name:              op.Name,
		ContractAuthority: op.ContractAuthority,
		CreationDate:      st.Now(),
		CurrentVersion:    st.Trx.ID(),
		LuaCode:           op.Data,
		ContractABI:       abi,
		ContractData:      protos.LuaTable(),
	}
	if err := st.DB().Create(c); err != nil {
		return nil, err
	}
	t.ctx.XLog.Info("contract created", "name", c.Name, "id", c.ID(), "abi", len(abi))
	return &protos.ObjectIDResult{ID: c.ID()}, nil
}

type reviseEvaluator struct{ *Manager }

func (t reviseEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.ReviseContractOperation)
	c, err := objects.GetContract(st.DB(), op.ContractID)
	if err != nil {
		return err
	}
	if c.IsRelease {
		return common.ErrRuleViolation.More("contract %s is released and can not be revised", c.Name)
	}
	if c.Owner != op.Reviser {
		return common.ErrUnauthorized.More("only owner %s may revise %s", c.Owner, c.Name)
	}
	return nil
}

// Apply replaces the source and reports the replaced version in a log record.
func (t reviseEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.ReviseContractOperation)
	db := st.DB()
	c, err := objects.GetContract(db, op.ContractID)
	if err != nil {
		return nil, err
	}
	abi, err := t.ctx.VM.ABI(c.Name, op.Data)
	if err != nil {
		return nil, err
	}
	previous := c.CurrentVersion
	if err := db.Modify(c, func() {
		c.LuaCode = op.Data
		c.ContractABI = abi
		c.CurrentVersion = st.Trx.ID()
	}); err != nil {
		return nil, err
	}
	return &protos.ContractResult{
		ContractID: c.ID(),
		ContractAffecteds: []protos.ContractAffected{
			protos.NewLoggerAffected(protos.ContractLogger{Affected: op.Reviser, Message: previous.String()}),
		},
	}, nil
}

type callEvaluator struct{ *Manager }

func (t callEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.CallContractFunctionOperation)
	db := st.DB()
	if _, err := objects.GetAccount(db, op.Caller); err != nil {
		return err
	}
	c, err := objects.GetContract(db, op.ContractID)
	if err != nil {
		return err
	}
	if !c.HasFunction(op.FunctionName) {
		return common.ErrContractError.More("%s has no function %s", c.Name, op.FunctionName)
	}
	return checkContractAuthority(st, c)
}

func (t callEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	r, err := t.call(st, o.(*protos.CallContractFunctionOperation))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// checkContractAuthority requires the contract key among the signatures when
// the contract has one.
func checkContractAuthority(st *evaluator.TrxState, c *objects.Contract) error {
	if c.ContractAuthority.IsZero() {
		return nil
	}
	if st.Skip.Has(evaluator.SkipTransactionSignatures) || st.Skip.Has(evaluator.SkipAuthorityCheck) {
		return nil
	}
	for _, k := range st.SigKeys {
		if k == c.ContractAuthority {
			return nil
		}
	}
	return common.ErrUnauthorized.More("signature of contract authority %s missing for %s", c.ContractAuthority, c.Name)
}
