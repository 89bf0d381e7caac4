package evaluator

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

func requireNHAssetCreator(db *objdb.Database, account protos.ObjectID) (*objects.NHAssetCreator, error) {
	if _, err := objects.GetAccount(db, account); err != nil {
		return nil, err
	}
	c := objects.FindNHAssetCreator(db, account)
	if c == nil {
		return nil, common.ErrRuleViolation.More("account %s is not a nh asset creator", account)
	}
	return c, nil
}

type registerNHAssetCreatorEvaluator struct{}

func (registerNHAssetCreatorEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.RegisterNHAssetCreatorOperation)
	db := st.DB()
	if _, err := objects.GetAccount(db, op.FeePayingAccount); err != nil {
		return err
	}
	if objects.FindNHAssetCreator(db, op.FeePayingAccount) != nil {
		return common.ErrNameTaken.More("account %s is already a nh asset creator", op.FeePayingAccount)
	}
	return nil
}

func (registerNHAssetCreatorEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.RegisterNHAssetCreatorOperation)
	c := &objects.NHAssetCreator{Creator: op.FeePayingAccount}
	if err := st.DB().Create(c); err != nil {
		return nil, err
	}
	return objectResult(c.ID()), nil
}

type createWorldViewEvaluator struct{}

func (createWorldViewEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.CreateWorldViewOperation)
	db := st.DB()
	if _, err := requireNHAssetCreator(db, op.FeePayingAccount); err != nil {
		return err
	}
	if _, err := objects.WorldViewByName(db, op.WorldView); err == nil {
		return common.ErrNameTaken.More("world view %s exists", op.WorldView)
	}
	return nil
}

func (createWorldViewEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.CreateWorldViewOperation)
	db := st.DB()
	creator, err := requireNHAssetCreator(db, op.FeePayingAccount)
	if err != nil {
		return nil, err
	}
	wv := &objects.WorldView{
		Name:            op.WorldView,
		Creator:         creator.ID(),
		RelatedCreators: []protos.ObjectID{creator.ID()},
	}
	if err := db.Create(wv); err != nil {
		return nil, err
	}
	if err := db.Modify(creator, func() {
		creator.WorldViews = append(creator.WorldViews, op.WorldView)
	}); err != nil {
		return nil, err
	}
	return objectResult(wv.ID()), nil
}

type createNHAssetEvaluator struct{}

func checkCreateNHAsset(db *objdb.Database, creator protos.ObjectID, owner protos.ObjectID, symbol, worldView string) error {
	c, err := requireNHAssetCreator(db, creator)
	if err != nil {
		return err
	}
	if !c.HasWorldView(worldView) {
		return common.ErrRuleViolation.More("world view %s is not declared by creator %s", worldView, creator)
	}
	if _, err := objects.WorldViewByName(db, worldView); err != nil {
		return err
	}
	if _, err := objects.AssetBySymbol(db, symbol); err != nil {
		return err
	}
	if owner.Valid() {
		if _, err := objects.GetAccount(db, owner); err != nil {
			return err
		}
	}
	return nil
}

func (createNHAssetEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.CreateNHAssetOperation)
	return checkCreateNHAsset(st.DB(), op.FeePayingAccount, op.Owner, op.AssetSymbol, op.WorldView)
}

func (createNHAssetEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.CreateNHAssetOperation)
	db := st.DB()
	owner := op.Owner
	if !owner.Valid() {
		owner = op.FeePayingAccount
	}
	next := db.NextID(protos.NHAssetSpace, protos.ObjTypeNHAsset)
	a := &objects.NHAsset{
		Hash:           protos.NewNHHash(op.BaseDescribe, next.Instance),
		Creator:        op.FeePayingAccount,
		Owner:          owner,
		Active:         owner,
		Dealership:     owner,
		AssetQualifier: op.AssetSymbol,
		WorldView:      op.WorldView,
		BaseDescribe:   op.BaseDescribe,
		CreateTime:     st.Now(),
	}
	if err := db.Create(a); err != nil {
		return nil, err
	}
	return objectResult(a.ID()), nil
}

type deleteNHAssetEvaluator struct{}

func (deleteNHAssetEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.DeleteNHAssetOperation)
	a, err := objects.GetNHAsset(st.DB(), op.NHAsset)
	if err != nil {
		return err
	}
	if a.Owner != op.FeePayingAccount {
		return common.ErrRuleViolation.More("nh asset %s is not owned by %s", op.NHAsset, op.FeePayingAccount)
	}
	return nil
}

func (deleteNHAssetEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.DeleteNHAssetOperation)
	db := st.DB()
	a, err := objects.GetNHAsset(db, op.NHAsset)
	if err != nil {
		return nil, err
	}
	if err := db.Remove(a); err != nil {
		return nil, err
	}
	return void, nil
}

type transferNHAssetEvaluator struct{}

func (transferNHAssetEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.TransferNHAssetOperation)
	db := st.DB()
	if _, err := objects.GetAccount(db, op.To); err != nil {
		return err
	}
	a, err := objects.GetNHAsset(db, op.NHAsset)
	if err != nil {
		return err
	}
	if a.Owner != op.From {
		return common.ErrRuleViolation.More("nh asset %s is not owned by %s", op.NHAsset, op.From)
	}
	// 租借中的资产不能转移
	if a.Owner != a.Active || a.Owner != a.Dealership {
		return common.ErrRuleViolation.More("nh asset %s is leased", op.NHAsset)
	}
	return nil
}

func (transferNHAssetEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.TransferNHAssetOperation)
	db := st.DB()
	a, err := objects.GetNHAsset(db, op.NHAsset)
	if err != nil {
		return nil, err
	}
	if err := db.Modify(a, func() {
		a.Owner, a.Active, a.Dealership = op.To, op.To, op.To
	}); err != nil {
		return nil, err
	}
	return void, nil
}

type relateNHAssetEvaluator struct{}

func (relateNHAssetEvaluator) load(db *objdb.Database, op *protos.RelateNHAssetOperation) (parent, child *objects.NHAsset, err error) {
	if _, err = objects.GetContract(db, op.Contract); err != nil {
		return nil, nil, err
	}
	if parent, err = objects.GetNHAsset(db, op.Parent); err != nil {
		return nil, nil, err
	}
	if child, err = objects.GetNHAsset(db, op.Child); err != nil {
		return nil, nil, err
	}
	return parent, child, nil
}

func (e relateNHAssetEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.RelateNHAssetOperation)
	parent, child, err := e.load(st.DB(), op)
	if err != nil {
		return err
	}
	if parent.Creator != op.NHAssetCreator || child.Creator != op.NHAssetCreator {
		return common.ErrRuleViolation.More("nh assets %s and %s must both be created by %s",
			op.Parent, op.Child, op.NHAssetCreator)
	}
	linked := objects.Related(child.Parent, op.Contract, op.Parent)
	if op.Relate && linked {
		return common.ErrRuleViolation.More("nh asset %s is already related to %s under %s", op.Child, op.Parent, op.Contract)
	}
	if !op.Relate && !linked {
		return common.ErrRuleViolation.More("nh asset %s is not related to %s under %s", op.Child, op.Parent, op.Contract)
	}
	return nil
}

func (e relateNHAssetEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.RelateNHAssetOperation)
	db := st.DB()
	parent, child, err := e.load(db, op)
	if err != nil {
		return nil, err
	}
	if err := db.Modify(child, func() {
		if op.Relate {
			child.Parent = objects.AddLink(child.Parent, op.Contract, op.Parent)
		} else {
			child.Parent = objects.RemoveLink(child.Parent, op.Contract, op.Parent)
		}
	}); err != nil {
		return nil, err
	}
	if err := db.Modify(parent, func() {
		if op.Relate {
			parent.Child = objects.AddLink(parent.Child, op.Contract, op.Child)
		} else {
			parent.Child = objects.RemoveLink(parent.Child, op.Contract, op.Child)
		}
	}); err != nil {
		return nil, err
	}
	return void, nil
}
