// Package market runs the settlement side of market issued assets. Order
// book matching is delegated to a Matcher.
package market

import (
	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

// Matcher fills a due force settlement order against the order book. It
// returns the amount of the order that was settled, at most maxVolume. The
// order is removed when fully consumed.
type Matcher interface {
	SettleOrder(db *objdb.Database, order *objects.ForceSettlement, bitasset *objects.AssetBitassetData,
		maxVolume protos.Share) (protos.Share, error)
}

// CancelMatcher is the Matcher of a chain without an order book: every due
// order is cancelled and refunded.
type CancelMatcher struct{}

func (CancelMatcher) SettleOrder(db *objdb.Database, order *objects.ForceSettlement,
	_ *objects.AssetBitassetData, _ protos.Share) (protos.Share, error) {
	return 0, CancelOrder(db, order)
}

type Market struct {
	matcher Matcher
	log     logs.Logger
}

func NewMarket(matcher Matcher, log logs.Logger) *Market {
	if matcher == nil {
		matcher = CancelMatcher{}
	}
	return &Market{matcher: matcher, log: log}
}

// CancelOrder refunds a force settlement order and removes it.
func CancelOrder(db *objdb.Database, order *objects.ForceSettlement) error {
	if err := objects.AdjustBalance(db, order.Owner, order.Balance); err != nil {
		return err
	}
	return db.Remove(order)
}

// GloballySettle freezes asset at price. The issuer funds the settlement
// with the backing asset needed to redeem the whole supply.
func GloballySettle(db *objdb.Database, asset *objects.Asset, price protos.Price) error {
	bitasset, err := objects.GetBitassetData(db, asset)
	if err != nil {
		return err
	}
	if bitasset.HasSettlement() {
		return common.ErrRuleViolation.More("asset %s is already settled", asset.Symbol)
	}
	dyn, err := objects.GetDynamicData(db, asset)
	if err != nil {
		return err
	}
	backing := bitasset.Options.ShortBackingAsset
	if !(price.Base.AssetID == asset.ID() && price.Quote.AssetID == backing) &&
		!(price.Quote.AssetID == asset.ID() && price.Base.AssetID == backing) {
		return common.ErrRuleViolation.More("settle price must be %s/%s", asset.ID(), backing)
	}
	fund, err := protos.MulPrice(asset.Amount(dyn.CurrentSupply), price)
	if err != nil {
		return common.ErrRuleViolation.More("settlement fund: %v", err)
	}
	if err := objects.AdjustBalance(db, asset.Issuer, protos.NewAsset(-fund.Amount, backing)); err != nil {
		return errors.Wrap(err, "fund global settlement")
	}
	return db.Modify(bitasset, func() {
		bitasset.SettlementPrice = price
		bitasset.SettlementFund = fund.Amount
	})
}

// SettleAgainstFund redeems amount of a settled asset from its settlement
// fund. Redeeming the whole supply pays out exactly the remaining fund.
func SettleAgainstFund(db *objdb.Database, asset *objects.Asset, account protos.ObjectID,
	amount protos.AssetAmount) (protos.AssetAmount, error) {
	bitasset, err := objects.GetBitassetData(db, asset)
	if err != nil {
		return protos.AssetAmount{}, err
	}
	dyn, err := objects.GetDynamicData(db, asset)
	if err != nil {
		return protos.AssetAmount{}, err
	}
	settled, err := protos.MulPrice(amount, bitasset.SettlementPrice)
	if err != nil {
		return protos.AssetAmount{}, common.ErrRuleViolation.More("settle: %v", err)
	}
	if amount.Amount == dyn.CurrentSupply {
		settled.Amount = bitasset.SettlementFund
	} else if settled.Amount > bitasset.SettlementFund {
		return protos.AssetAmount{}, common.ErrRuleViolation.More("settlement fund %d cannot pay %d",
			bitasset.SettlementFund, settled.Amount)
	}
	if err := objects.AdjustBalance(db, account, protos.NewAsset(-amount.Amount, amount.AssetID)); err != nil {
		return protos.AssetAmount{}, err
	}
	if err := db.Modify(bitasset, func() { bitasset.SettlementFund -= settled.Amount }); err != nil {
		return protos.AssetAmount{}, err
	}
	if err := objects.AdjustBalance(db, account, settled); err != nil {
		return protos.AssetAmount{}, err
	}
	if err := db.Modify(dyn, func() { dyn.CurrentSupply -= amount.Amount }); err != nil {
		return protos.AssetAmount{}, err
	}
	return settled, nil
}

// ClearExpiredSettlements processes every force settlement order due at now.
func (m *Market) ClearExpiredSettlements(db *objdb.Database, now uint32) error {
	to := []byte(nil)
	if now < protos.MaxTime {
		to = objdb.Key(now + 1)
	}
	due, err := db.Range(protos.ProtocolSpace, protos.ObjTypeForceSettlement, objects.BySettlementExpiry, nil, to, 0)
	if err != nil {
		return err
	}
	for _, obj := range due {
		// an earlier order of the same owner may have been consumed already
		order, ok := db.Find(obj.ID()).(*objects.ForceSettlement)
		if !ok {
			continue
		}
		if err := m.settle(db, order); err != nil {
			return errors.Wrapf(err, "force settlement %s", order.ID())
		}
	}
	return nil
}

func (m *Market) settle(db *objdb.Database, order *objects.ForceSettlement) error {
	asset, err := objects.GetAsset(db, order.Balance.AssetID)
	if err != nil {
		return err
	}
	bitasset, err := objects.GetBitassetData(db, asset)
	if err != nil {
		return err
	}
	if bitasset.HasSettlement() {
		m.log.Info("cancel force settlement after global settlement", "asset", asset.Symbol, "order", order.ID())
		return CancelOrder(db, order)
	}
	if bitasset.CurrentFeed.SettlementPrice.IsNull() {
		m.log.Info("cancel force settlement without settlement price", "asset", asset.Symbol, "order", order.ID())
		return CancelOrder(db, order)
	}
	dyn, err := objects.GetDynamicData(db, asset)
	if err != nil {
		return err
	}
	maxVolume := bitasset.MaxForceSettlementVolume(dyn.CurrentSupply)
	if bitasset.ForceSettledVolume >= maxVolume {
		return nil
	}
	settled, err := m.matcher.SettleOrder(db, order, bitasset, maxVolume-bitasset.ForceSettledVolume)
	if err != nil || settled == 0 {
		return err
	}
	bitasset, err = objects.GetBitassetData(db, asset)
	if err != nil {
		return err
	}
	return db.Modify(bitasset, func() { bitasset.ForceSettledVolume += settled })
}

// UpdateExpiredFeeds refreshes the median feed of assets whose feed expired.
func UpdateExpiredFeeds(db *objdb.Database, now uint32) error {
	for _, obj := range db.All(protos.ProtocolSpace, protos.ObjTypeAsset) {
		asset := obj.(*objects.Asset)
		if !asset.IsMarketIssued() {
			continue
		}
		bitasset, err := objects.GetBitassetData(db, asset)
		if err != nil {
			return err
		}
		if !bitasset.FeedIsExpired(now) {
			continue
		}
		if err := db.Modify(bitasset, func() { bitasset.UpdateMedianFeeds(now) }); err != nil {
			return err
		}
	}
	return nil
}

// ResetForceSettledVolumes starts a new settlement volume window.
func ResetForceSettledVolumes(db *objdb.Database) error {
	for _, obj := range db.All(protos.ImplementationSpace, protos.ImplTypeAssetBitassetData) {
		b := obj.(*objects.AssetBitassetData)
		if b.ForceSettledVolume == 0 {
			continue
		}
		if err := db.Modify(b, func() { b.ForceSettledVolume = 0 }); err != nil {
			return err
		}
	}
	return nil
}
