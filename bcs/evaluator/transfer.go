package evaluator

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/protos"
)

type transferEvaluator struct{}

func (transferEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.TransferOperation)
	db := st.DB()
	if _, err := objects.GetAccount(db, op.From); err != nil {
		return err
	}
	if _, err := objects.GetAccount(db, op.To); err != nil {
		return err
	}
	asset, err := objects.GetAsset(db, op.Amount.AssetID)
	if err != nil {
		return err
	}
	if asset.Options.Flags&protos.TransferRestrict != 0 && op.From != asset.Issuer && op.To != asset.Issuer {
		return common.ErrRuleViolation.More("asset %s may only be transferred to or from its issuer", asset.Symbol)
	}
	need := op.Amount.Amount
	if op.Amount.AssetID == protos.CoreAssetID && !st.SkipFee {
		need += st.Params().Fee(op.OpType())
	}
	if avail := objects.AvailableBalance(db, op.From, op.Amount.AssetID); avail < need {
		return common.ErrInsufficientBalance.More("account %s has %d of %s, transfer needs %d",
			op.From, avail, asset.Symbol, need)
	}
	return nil
}

func (transferEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.TransferOperation)
	db := st.DB()
	if err := objects.AdjustBalance(db, op.From, protos.NewAsset(-op.Amount.Amount, op.Amount.AssetID)); err != nil {
		return nil, err
	}
	if err := objects.AdjustBalance(db, op.To, op.Amount); err != nil {
		return nil, err
	}
	return void, nil
}
