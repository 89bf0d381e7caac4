package evaluator

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/bcs/market"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// issuedAsset loads an asset and checks issuer owns it.
func issuedAsset(db *objdb.Database, id, issuer protos.ObjectID) (*objects.Asset, error) {
	asset, err := objects.GetAsset(db, id)
	if err != nil {
		return nil, err
	}
	if asset.Issuer != issuer {
		return nil, common.ErrUnauthorized.More("%s is not the issuer of %s", issuer, asset.Symbol)
	}
	return asset, nil
}

func checkBitassetOptions(db *objdb.Database, params *protos.ChainParameters, opts *protos.BitassetOptions) error {
	if _, err := objects.GetAsset(db, opts.ShortBackingAsset); err != nil {
		return errors.Wrap(err, "backing asset")
	}
	if opts.FeedLifetimeSec <= uint32(params.BlockInterval) {
		return common.ErrRuleViolation.More("feed lifetime must exceed the block interval")
	}
	if opts.ForceSettlementDelaySec <= uint32(params.BlockInterval) {
		return common.ErrRuleViolation.More("force settlement delay must exceed the block interval")
	}
	return nil
}

type assetCreateEvaluator struct{}

func (assetCreateEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AssetCreateOperation)
	db := st.DB()
	if _, err := objects.GetAccount(db, op.Issuer); err != nil {
		return err
	}
	if _, err := objects.AssetBySymbol(db, op.Symbol); err == nil {
		return common.ErrNameTaken.More("asset %s", op.Symbol)
	}
	if i := strings.LastIndex(op.Symbol, "."); i > 0 {
		parent, err := objects.AssetBySymbol(db, op.Symbol[:i])
		if err != nil {
			return common.ErrRuleViolation.More("parent asset %s does not exist", op.Symbol[:i])
		}
		if parent.Issuer != op.Issuer {
			return common.ErrRuleViolation.More("asset %s may only be created by the issuer of %s", op.Symbol, parent.Symbol)
		}
	}
	if op.BitassetOpts != nil {
		return checkBitassetOptions(db, st.Params(), op.BitassetOpts)
	}
	return nil
}

func (assetCreateEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AssetCreateOperation)
	db := st.DB()
	dyn := &objects.AssetDynamicData{}
	if err := db.Create(dyn); err != nil {
		return nil, err
	}
	asset := &objects.Asset{
		Symbol:             op.Symbol,
		Precision:          op.Precision,
		Issuer:             op.Issuer,
		Options:            op.CommonOptions,
		DynamicAssetDataID: dyn.ID(),
	}
	asset.Options.CoreExchangeRate.Base.AssetID = db.NextID(protos.ProtocolSpace, protos.ObjTypeAsset)
	var bitasset *objects.AssetBitassetData
	if op.BitassetOpts != nil {
		bitasset = &objects.AssetBitassetData{Options: *op.BitassetOpts}
		if err := db.Create(bitasset); err != nil {
			return nil, err
		}
		id := bitasset.ID()
		asset.BitassetDataID = &id
	}
	if err := db.Create(asset); err != nil {
		return nil, err
	}
	if bitasset != nil {
		if err := db.Modify(bitasset, func() { bitasset.AssetID = asset.ID() }); err != nil {
			return nil, err
		}
	}
	st.Chain.Logger().Debug("asset created", "symbol", asset.Symbol, "id", asset.ID())
	return objectResult(asset.ID()), nil
}

type assetIssueEvaluator struct{}

func (assetIssueEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AssetIssueOperation)
	db := st.DB()
	asset, err := issuedAsset(db, op.AssetToIssue.AssetID, op.Issuer)
	if err != nil {
		return err
	}
	if asset.IsMarketIssued() {
		bitasset, err := objects.GetBitassetData(db, asset)
		if err != nil {
			return err
		}
		if bitasset.HasSettlement() {
			return common.ErrRuleViolation.More("asset %s is globally settled", asset.Symbol)
		}
	}
	if _, err := objects.GetAccount(db, op.IssueToAccount); err != nil {
		return err
	}
	dyn, err := objects.GetDynamicData(db, asset)
	if err != nil {
		return err
	}
	if dyn.CurrentSupply+op.AssetToIssue.Amount > asset.Options.MaxSupply {
		return common.ErrRuleViolation.More("issuing %d of %s exceeds max supply %d",
			op.AssetToIssue.Amount, asset.Symbol, asset.Options.MaxSupply)
	}
	return nil
}

func (assetIssueEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AssetIssueOperation)
	db := st.DB()
	asset, err := objects.GetAsset(db, op.AssetToIssue.AssetID)
	if err != nil {
		return nil, err
	}
	if err := objects.AdjustBalance(db, op.IssueToAccount, op.AssetToIssue); err != nil {
		return nil, err
	}
	dyn, err := objects.GetDynamicData(db, asset)
	if err != nil {
		return nil, err
	}
	return void, db.Modify(dyn, func() { dyn.CurrentSupply += op.AssetToIssue.Amount })
}

type assetReserveEvaluator struct{}

func (assetReserveEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AssetReserveOperation)
	db := st.DB()
	asset, err := objects.GetAsset(db, op.AmountToReserve.AssetID)
	if err != nil {
		return err
	}
	if asset.IsMarketIssued() {
		return common.ErrRuleViolation.More("market issued asset %s cannot be reserved", asset.Symbol)
	}
	if avail := objects.AvailableBalance(db, op.Payer, asset.ID()); avail < op.AmountToReserve.Amount {
		return common.ErrInsufficientBalance.More("account %s has %d of %s", op.Payer, avail, asset.Symbol)
	}
	return nil
}

func (assetReserveEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AssetReserveOperation)
	db := st.DB()
	asset, err := objects.GetAsset(db, op.AmountToReserve.AssetID)
	if err != nil {
		return nil, err
	}
	amount := op.AmountToReserve.Amount
	if err := objects.AdjustBalance(db, op.Payer, protos.NewAsset(-amount, asset.ID())); err != nil {
		return nil, err
	}
	dyn, err := objects.GetDynamicData(db, asset)
	if err != nil {
		return nil, err
	}
	return void, db.Modify(dyn, func() { dyn.CurrentSupply -= amount })
}

type assetUpdateEvaluator struct{}

func (assetUpdateEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AssetUpdateOperation)
	db := st.DB()
	asset, err := issuedAsset(db, op.AssetToUpdate, op.Issuer)
	if err != nil {
		return err
	}
	if op.NewIssuer != nil {
		if _, err := objects.GetAccount(db, *op.NewIssuer); err != nil {
			return err
		}
	}
	opts := op.NewOptions
	if opts.CoreExchangeRate.Base.AssetID != asset.ID() {
		return common.ErrRuleViolation.More("core exchange rate base must be %s", asset.ID())
	}
	if !asset.IsMarketIssued() && opts.IssuerPermissions&^protos.UIAIssuerPermissionMask != 0 {
		return common.ErrRuleViolation.More("permission only valid for market issued assets")
	}
	dyn, err := objects.GetDynamicData(db, asset)
	if err != nil {
		return err
	}
	if dyn.CurrentSupply != 0 && opts.IssuerPermissions&^asset.Options.IssuerPermissions != 0 {
		return common.ErrRuleViolation.More("revoked permissions cannot be reinstated while %s has supply", asset.Symbol)
	}
	if changed := opts.Flags ^ asset.Options.Flags; changed&^asset.Options.IssuerPermissions != 0 {
		return common.ErrRuleViolation.More("flag change not permitted on %s", asset.Symbol)
	}
	if opts.MaxSupply < dyn.CurrentSupply {
		return common.ErrRuleViolation.More("max supply below current supply %d", dyn.CurrentSupply)
	}
	return nil
}

func (assetUpdateEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AssetUpdateOperation)
	db := st.DB()
	asset, err := objects.GetAsset(db, op.AssetToUpdate)
	if err != nil {
		return nil, err
	}
	if asset.IsMarketIssued() && asset.CanForceSettle() && op.NewOptions.Flags&protos.DisableForceSettle != 0 {
		if err := cancelSettlements(db, asset.ID()); err != nil {
			return nil, err
		}
	}
	err = db.Modify(asset, func() {
		if op.NewIssuer != nil {
			asset.Issuer = *op.NewIssuer
		}
		asset.Options = op.NewOptions
	})
	return void, err
}

// cancelSettlements refunds every pending force settlement of asset.
func cancelSettlements(db *objdb.Database, asset protos.ObjectID) error {
	for _, obj := range db.All(protos.ProtocolSpace, protos.ObjTypeForceSettlement) {
		order := obj.(*objects.ForceSettlement)
		if order.Balance.AssetID != asset {
			continue
		}
		if err := market.CancelOrder(db, order); err != nil {
			return err
		}
	}
	return nil
}

// marketAsset loads a market issued asset owned by issuer with its bitasset data.
func marketAsset(db *objdb.Database, id, issuer protos.ObjectID) (*objects.Asset, *objects.AssetBitassetData, error) {
	asset, err := issuedAsset(db, id, issuer)
	if err != nil {
		return nil, nil, err
	}
	if !asset.IsMarketIssued() {
		return nil, nil, common.ErrRuleViolation.More("asset %s is not market issued", asset.Symbol)
	}
	bitasset, err := objects.GetBitassetData(db, asset)
	if err != nil {
		return nil, nil, err
	}
	return asset, bitasset, nil
}

type assetUpdateBitassetEvaluator struct{}

func (assetUpdateBitassetEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AssetUpdateBitassetOperation)
	db := st.DB()
	asset, bitasset, err := marketAsset(db, op.AssetToUpdate, op.Issuer)
	if err != nil {
		return err
	}
	if bitasset.HasSettlement() {
		return common.ErrRuleViolation.More("asset %s is globally settled", asset.Symbol)
	}
	if op.NewOptions.ShortBackingAsset != bitasset.Options.ShortBackingAsset {
		dyn, err := objects.GetDynamicData(db, asset)
		if err != nil {
			return err
		}
		if dyn.CurrentSupply != 0 {
			return common.ErrRuleViolation.More("backing asset of %s cannot change with outstanding supply", asset.Symbol)
		}
		if op.NewOptions.ShortBackingAsset == asset.ID() {
			return common.ErrRuleViolation.More("asset %s cannot back itself", asset.Symbol)
		}
	}
	return checkBitassetOptions(db, st.Params(), &op.NewOptions)
}

func (assetUpdateBitassetEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AssetUpdateBitassetOperation)
	db := st.DB()
	_, bitasset, err := marketAsset(db, op.AssetToUpdate, op.Issuer)
	if err != nil {
		return nil, err
	}
	now := st.Now()
	err = db.Modify(bitasset, func() {
		old := bitasset.Options
		bitasset.Options = op.NewOptions
		if old.MinimumFeeds != op.NewOptions.MinimumFeeds || old.FeedLifetimeSec != op.NewOptions.FeedLifetimeSec {
			bitasset.UpdateMedianFeeds(now)
		}
	})
	return void, err
}

type assetUpdateFeedProducersEvaluator struct{}

func (assetUpdateFeedProducersEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AssetUpdateFeedProducersOperation)
	db := st.DB()
	if _, _, err := marketAsset(db, op.AssetToUpdate, op.Issuer); err != nil {
		return err
	}
	if limit := st.Params().MaximumAssetFeedPublishers; len(op.NewFeedProducers) > int(limit) {
		return common.ErrRuleViolation.More("%d feed producers, maximum is %d", len(op.NewFeedProducers), limit)
	}
	for _, p := range op.NewFeedProducers {
		if _, err := objects.GetAccount(db, p); err != nil {
			return err
		}
	}
	return nil
}

func (assetUpdateFeedProducersEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AssetUpdateFeedProducersOperation)
	db := st.DB()
	_, bitasset, err := marketAsset(db, op.AssetToUpdate, op.Issuer)
	if err != nil {
		return nil, err
	}
	var producers []protos.ObjectID
	for _, p := range op.NewFeedProducers {
		producers = objects.AddID(producers, p)
	}
	now := st.Now()
	err = db.Modify(bitasset, func() {
		bitasset.FeedProducers = producers
		kept := bitasset.Feeds[:0]
		for _, f := range bitasset.Feeds {
			if objects.ContainsID(producers, f.Producer) {
				kept = append(kept, f)
			}
		}
		bitasset.Feeds = kept
		bitasset.UpdateMedianFeeds(now)
	})
	return void, err
}

type assetPublishFeedEvaluator struct{}

func (assetPublishFeedEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AssetPublishFeedOperation)
	db := st.DB()
	asset, err := objects.GetAsset(db, op.AssetID)
	if err != nil {
		return err
	}
	if !asset.IsMarketIssued() {
		return common.ErrRuleViolation.More("asset %s is not market issued", asset.Symbol)
	}
	bitasset, err := objects.GetBitassetData(db, asset)
	if err != nil {
		return err
	}
	if !bitasset.IsFeedProducer(op.Publisher) {
		return common.ErrUnauthorized.More("%s is not a feed producer of %s", op.Publisher, asset.Symbol)
	}
	if !op.Feed.SettlementPrice.IsNull() && op.Feed.SettlementPrice.Quote.AssetID != bitasset.Options.ShortBackingAsset {
		return common.ErrRuleViolation.More("settlement price must be quoted in %s", bitasset.Options.ShortBackingAsset)
	}
	if !op.Feed.CoreExchangeRate.IsNull() && op.Feed.CoreExchangeRate.Quote.AssetID != protos.CoreAssetID {
		return common.ErrRuleViolation.More("core exchange rate must be quoted in the core asset")
	}
	return nil
}

func (assetPublishFeedEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AssetPublishFeedOperation)
	db := st.DB()
	asset, err := objects.GetAsset(db, op.AssetID)
	if err != nil {
		return nil, err
	}
	bitasset, err := objects.GetBitassetData(db, asset)
	if err != nil {
		return nil, err
	}
	now := st.Now()
	if err := db.Modify(bitasset, func() {
		bitasset.SetFeed(op.Publisher, now, op.Feed)
		bitasset.UpdateMedianFeeds(now)
	}); err != nil {
		return nil, err
	}
	cer := bitasset.CurrentFeed.CoreExchangeRate
	if cer.IsNull() || cer == asset.Options.CoreExchangeRate {
		return void, nil
	}
	return void, db.Modify(asset, func() { asset.Options.CoreExchangeRate = cer })
}

type assetSettleEvaluator struct{}

func (assetSettleEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AssetSettleOperation)
	db := st.DB()
	asset, err := objects.GetAsset(db, op.Amount.AssetID)
	if err != nil {
		return err
	}
	if !asset.IsMarketIssued() {
		return common.ErrRuleViolation.More("asset %s is not market issued", asset.Symbol)
	}
	bitasset, err := objects.GetBitassetData(db, asset)
	if err != nil {
		return err
	}
	if !asset.CanForceSettle() && !bitasset.HasSettlement() {
		return common.ErrRuleViolation.More("force settlement of %s is disabled", asset.Symbol)
	}
	if !bitasset.HasSettlement() && bitasset.CurrentFeed.SettlementPrice.IsNull() {
		return common.ErrRuleViolation.More("asset %s has no settlement price feed", asset.Symbol)
	}
	if avail := objects.AvailableBalance(db, op.Account, asset.ID()); avail < op.Amount.Amount {
		return common.ErrInsufficientBalance.More("account %s has %d of %s", op.Account, avail, asset.Symbol)
	}
	return nil
}

func (assetSettleEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AssetSettleOperation)
	db := st.DB()
	asset, err := objects.GetAsset(db, op.Amount.AssetID)
	if err != nil {
		return nil, err
	}
	bitasset, err := objects.GetBitassetData(db, asset)
	if err != nil {
		return nil, err
	}
	if bitasset.HasSettlement() {
		paid, err := market.SettleAgainstFund(db, asset, op.Account, op.Amount)
		if err != nil {
			return nil, err
		}
		return &protos.AssetResult{Amount: paid}, nil
	}
	if err := objects.AdjustBalance(db, op.Account, protos.NewAsset(-op.Amount.Amount, asset.ID())); err != nil {
		return nil, err
	}
	order := &objects.ForceSettlement{
		Owner:          op.Account,
		Balance:        op.Amount,
		SettlementDate: st.Now() + bitasset.Options.ForceSettlementDelaySec,
	}
	if err := db.Create(order); err != nil {
		return nil, err
	}
	return objectResult(order.ID()), nil
}

type assetGlobalSettleEvaluator struct{}

func (assetGlobalSettleEvaluator) Evaluate(st *evaluator.TrxState, o protos.Operation) error {
	op := o.(*protos.AssetGlobalSettleOperation)
	db := st.DB()
	asset, bitasset, err := marketAsset(db, op.AssetToSettle, op.Issuer)
	if err != nil {
		return err
	}
	if !asset.CanGlobalSettle() {
		return common.ErrRuleViolation.More("issuer of %s may not globally settle", asset.Symbol)
	}
	if bitasset.HasSettlement() {
		return common.ErrRuleViolation.More("asset %s is already settled", asset.Symbol)
	}
	dyn, err := objects.GetDynamicData(db, asset)
	if err != nil {
		return err
	}
	if dyn.CurrentSupply <= 0 {
		return common.ErrRuleViolation.More("asset %s has no supply to settle", asset.Symbol)
	}
	return nil
}

func (assetGlobalSettleEvaluator) Apply(st *evaluator.TrxState, o protos.Operation) (protos.OperationResult, error) {
	op := o.(*protos.AssetGlobalSettleOperation)
	db := st.DB()
	asset, err := objects.GetAsset(db, op.AssetToSettle)
	if err != nil {
		return nil, err
	}
	if err := market.GloballySettle(db, asset, op.SettlePrice); err != nil {
		return nil, err
	}
	st.Chain.Logger().Info("asset globally settled", "symbol", asset.Symbol, "price", op.SettlePrice)
	return void, nil
}
