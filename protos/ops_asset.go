package protos

import (
	"github.com/pkg/errors"
)

type AssetCreateOperation struct {
	Fee           AssetAmount
	Issuer        ObjectID
	Symbol        string
	Precision     uint8
	CommonOptions AssetOptions
	BitassetOpts  *BitassetOptions `rlp:"nil"`
}

func (op *AssetCreateOperation) OpType() OpType         { return OpAssetCreate }
func (op *AssetCreateOperation) FeePayer() ObjectID     { return op.Issuer }
func (op *AssetCreateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AssetCreateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if !IsValidSymbol(op.Symbol) {
		return errors.Errorf("invalid asset symbol %q", op.Symbol)
	}
	if op.Precision > 12 {
		return errors.New("precision must be at most 12")
	}
	if err := op.CommonOptions.Validate(); err != nil {
		return err
	}
	if op.BitassetOpts != nil {
		if err := op.BitassetOpts.Validate(); err != nil {
			return err
		}
	} else if op.CommonOptions.IssuerPermissions&^UIAIssuerPermissionMask != 0 {
		return errors.New("permission only valid for market issued assets")
	}
	// base is rewritten to the new asset id on apply
	if op.CommonOptions.CoreExchangeRate.Quote.AssetID != CoreAssetID {
		return errors.New("core exchange rate must be quoted in the core asset")
	}
	return nil
}

func (op *AssetCreateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Issuer)
}

type AssetUpdateOperation struct {
	Fee           AssetAmount
	Issuer        ObjectID
	AssetToUpdate ObjectID
	NewIssuer     *ObjectID `rlp:"nil"`
	NewOptions    AssetOptions
}

func (op *AssetUpdateOperation) OpType() OpType         { return OpAssetUpdate }
func (op *AssetUpdateOperation) FeePayer() ObjectID     { return op.Issuer }
func (op *AssetUpdateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AssetUpdateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.NewIssuer != nil && *op.NewIssuer == op.Issuer {
		return errors.New("new issuer must differ from the current one")
	}
	return op.NewOptions.Validate()
}

func (op *AssetUpdateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Issuer)
}

type AssetUpdateBitassetOperation struct {
	Fee           AssetAmount
	Issuer        ObjectID
	AssetToUpdate ObjectID
	NewOptions    BitassetOptions
}

func (op *AssetUpdateBitassetOperation) OpType() OpType         { return OpAssetUpdateBitasset }
func (op *AssetUpdateBitassetOperation) FeePayer() ObjectID     { return op.Issuer }
func (op *AssetUpdateBitassetOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AssetUpdateBitassetOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	return op.NewOptions.Validate()
}

func (op *AssetUpdateBitassetOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Issuer)
}

type AssetUpdateFeedProducersOperation struct {
	Fee              AssetAmount
	Issuer           ObjectID
	AssetToUpdate    ObjectID
	NewFeedProducers []ObjectID
}

func (op *AssetUpdateFeedProducersOperation) OpType() OpType         { return OpAssetUpdateFeedProducers }
func (op *AssetUpdateFeedProducersOperation) FeePayer() ObjectID     { return op.Issuer }
func (op *AssetUpdateFeedProducersOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AssetUpdateFeedProducersOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	seen := make(map[ObjectID]struct{}, len(op.NewFeedProducers))
	for _, p := range op.NewFeedProducers {
		if !isAccountID(p) {
			return errors.New("feed producer must be an account")
		}
		if _, dup := seen[p]; dup {
			return errors.New("duplicate feed producer")
		}
		seen[p] = struct{}{}
	}
	return nil
}

func (op *AssetUpdateFeedProducersOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Issuer)
}

type AssetIssueOperation struct {
	Fee            AssetAmount
	Issuer         ObjectID
	AssetToIssue   AssetAmount
	IssueToAccount ObjectID
	Memo           string
}

func (op *AssetIssueOperation) OpType() OpType         { return OpAssetIssue }
func (op *AssetIssueOperation) FeePayer() ObjectID     { return op.Issuer }
func (op *AssetIssueOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AssetIssueOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.AssetToIssue.AssetID == CoreAssetID {
		return errors.New("core asset cannot be issued")
	}
	if op.AssetToIssue.Amount <= 0 || op.AssetToIssue.Amount > MaxShareSupply {
		return errors.New("issue amount out of range")
	}
	return nil
}

func (op *AssetIssueOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Issuer)
}

type AssetReserveOperation struct {
	Fee             AssetAmount
	Payer           ObjectID
	AmountToReserve AssetAmount
}

func (op *AssetReserveOperation) OpType() OpType         { return OpAssetReserve }
func (op *AssetReserveOperation) FeePayer() ObjectID     { return op.Payer }
func (op *AssetReserveOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AssetReserveOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.AmountToReserve.Amount <= 0 || op.AmountToReserve.Amount > MaxShareSupply {
		return errors.New("reserve amount out of range")
	}
	return nil
}

func (op *AssetReserveOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Payer)
}

type AssetSettleOperation struct {
	Fee     AssetAmount
	Account ObjectID
	Amount  AssetAmount
}

func (op *AssetSettleOperation) OpType() OpType         { return OpAssetSettle }
func (op *AssetSettleOperation) FeePayer() ObjectID     { return op.Account }
func (op *AssetSettleOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AssetSettleOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.Amount.Amount <= 0 {
		return errors.New("settle amount must be positive")
	}
	return nil
}

func (op *AssetSettleOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Account)
}

type AssetGlobalSettleOperation struct {
	Fee           AssetAmount
	Issuer        ObjectID
	AssetToSettle ObjectID
	SettlePrice   Price
}

func (op *AssetGlobalSettleOperation) OpType() OpType         { return OpAssetGlobalSettle }
func (op *AssetGlobalSettleOperation) FeePayer() ObjectID     { return op.Issuer }
func (op *AssetGlobalSettleOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AssetGlobalSettleOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if err := op.SettlePrice.Validate(); err != nil {
		return err
	}
	if op.SettlePrice.Base.AssetID != op.AssetToSettle {
		return errors.New("settle price base must be the settled asset")
	}
	return nil
}

func (op *AssetGlobalSettleOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Issuer)
}

type AssetPublishFeedOperation struct {
	Fee       AssetAmount
	Publisher ObjectID
	AssetID   ObjectID
	Feed      PriceFeed
}

func (op *AssetPublishFeedOperation) OpType() OpType         { return OpAssetPublishFeed }
func (op *AssetPublishFeedOperation) FeePayer() ObjectID     { return op.Publisher }
func (op *AssetPublishFeedOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AssetPublishFeedOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if err := op.Feed.Validate(); err != nil {
		return err
	}
	if !op.Feed.SettlementPrice.IsNull() && op.Feed.SettlementPrice.Base.AssetID != op.AssetID {
		return errors.New("settlement price base must be the fed asset")
	}
	return nil
}

func (op *AssetPublishFeedOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Publisher)
}
