package lua

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/contract/sandbox"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// chainBridge serves the host functions of one call from the object store.
type chainBridge struct {
	m        *Manager
	st       *evaluator.TrxState
	contract protos.ObjectID
	caller   protos.ObjectID
}

func (b *chainBridge) db() *objdb.Database { return b.st.DB() }

func (b *chainBridge) HeadTime() uint32 { return b.st.Now() }

func (b *chainBridge) ResolveAccount(nameOrID string) (protos.ObjectID, error) {
	if id, err := protos.ParseObjectID(nameOrID); err == nil {
		acc, err := objects.GetAccount(b.db(), id)
		if err != nil {
			return protos.ObjectID{}, err
		}
		return acc.ID(), nil
	}
	acc, err := objects.AccountByName(b.db(), nameOrID)
	if err != nil {
		return protos.ObjectID{}, err
	}
	return acc.ID(), nil
}

func (b *chainBridge) asset(symbolOrID string) (*objects.Asset, error) {
	if id, err := protos.ParseObjectID(symbolOrID); err == nil {
		return objects.GetAsset(b.db(), id)
	}
	return objects.AssetBySymbol(b.db(), symbolOrID)
}

func (b *chainBridge) Balance(account protos.ObjectID, symbolOrID string) (protos.Share, error) {
	a, err := b.asset(symbolOrID)
	if err != nil {
		return 0, err
	}
	return objects.GetBalance(b.db(), account, a.ID()), nil
}

func (b *chainBridge) Transfer(from, to protos.ObjectID, amount protos.Share, symbolOrID string) (protos.AssetAmount, error) {
	a, err := b.asset(symbolOrID)
	if err != nil {
		return protos.AssetAmount{}, err
	}
	if from == to {
		return protos.AssetAmount{}, common.ErrRuleViolation.More("transfer from %s to itself", from)
	}
	moved := protos.NewAsset(amount, a.ID())
	if err := objects.AdjustBalance(b.db(), from, protos.NewAsset(-amount, a.ID())); err != nil {
		return protos.AssetAmount{}, err
	}
	if err := objects.AdjustBalance(b.db(), to, moved); err != nil {
		return protos.AssetAmount{}, err
	}
	return moved, nil
}

func (b *chainBridge) LoadContract(nameOrID string) (*sandbox.ContractInfo, error) {
	var (
		c   *objects.Contract
		err error
	)
	if id, perr := protos.ParseObjectID(nameOrID); perr == nil {
		c, err = objects.GetContract(b.db(), id)
	} else {
		c, err = objects.ContractByName(b.db(), nameOrID)
	}
	if err != nil {
		return nil, err
	}
	return contractInfo(c), nil
}

func (b *chainBridge) AccountData(account, contract protos.ObjectID) protos.LuaValue {
	if acd := objects.FindAccountContractData(b.db(), account, contract); acd != nil {
		return acd.ContractData.Clone()
	}
	return protos.LuaTable()
}

// Invoke runs the target as a nested call_contract_function operation with
// the same caller and signatures.
func (b *chainBridge) Invoke(target *sandbox.ContractInfo, function string, args []protos.LuaValue,
	recorded *protos.ContractResult) (*protos.ContractResult, error) {
	nested := b.st.Nested()
	if nested.Depth > MaxInvokeDepth {
		return nil, common.ErrContractError.More("invocation depth exceeds %d", MaxInvokeDepth)
	}
	nested.OpIndex = 0
	nested.Recorded = nil
	if recorded != nil {
		nested.Recorded = protos.OperationResultList{recorded}
	}
	op := &protos.CallContractFunctionOperation{
		Fee:          protos.NewAsset(0, protos.CoreAssetID),
		Caller:       b.caller,
		ContractID:   target.ID,
		FunctionName: function,
		ValueList:    args,
	}
	if err := op.Validate(); err != nil {
		return nil, common.ErrInvalidOperation.More("%v", err)
	}
	res, err := b.m.ctx.Registry.Run(nested, op)
	if err != nil {
		return nil, err
	}
	return res.(*protos.ContractResult), nil
}

func (b *chainBridge) MakeRelease(contract protos.ObjectID) error {
	c, err := objects.GetContract(b.db(), contract)
	if err != nil {
		return err
	}
	return b.db().Modify(c, func() { c.IsRelease = true })
}

func (b *chainBridge) ChangeAuthority(contract protos.ObjectID, key protos.PublicKey) error {
	c, err := objects.GetContract(b.db(), contract)
	if err != nil {
		return err
	}
	if c.Owner != b.caller {
		return common.ErrUnauthorized.More("only owner %s may change the authority of %s", c.Owner, c.Name)
	}
	return b.db().Modify(c, func() { c.ContractAuthority = key })
}

// CreateNHAsset runs create_nh_asset as a nested operation paid by creator.
func (b *chainBridge) CreateNHAsset(creator, owner protos.ObjectID, symbol, worldView, describe string) (protos.ObjectID, error) {
	op := &protos.CreateNHAssetOperation{
		Fee:              protos.NewAsset(0, protos.CoreAssetID),
		FeePayingAccount: creator,
		Owner:            owner,
		AssetSymbol:      symbol,
		WorldView:        worldView,
		BaseDescribe:     describe,
	}
	if err := op.Validate(); err != nil {
		return protos.ObjectID{}, common.ErrInvalidOperation.More("%v", err)
	}
	res, err := b.m.ctx.Registry.Run(b.st.Nested(), op)
	if err != nil {
		return protos.ObjectID{}, err
	}
	return res.(*protos.ObjectIDResult).ID, nil
}
