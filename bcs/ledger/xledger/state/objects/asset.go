package objects

import (
	"sort"

	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

type Asset struct {
	objdb.BaseObject
	Symbol             string
	Precision          uint8
	Issuer             protos.ObjectID
	Options            protos.AssetOptions
	DynamicAssetDataID protos.ObjectID
	BitassetDataID     *protos.ObjectID `rlp:"nil"`
}

func (*Asset) ObjectType() (uint8, uint8) { return protos.ProtocolSpace, protos.ObjTypeAsset }

func (a *Asset) IsMarketIssued() bool { return a.BitassetDataID != nil }

func (a *Asset) Amount(s protos.Share) protos.AssetAmount {
	return protos.NewAsset(s, a.ID())
}

func (a *Asset) CanForceSettle() bool { return a.Options.Flags&protos.DisableForceSettle == 0 }

func (a *Asset) CanGlobalSettle() bool { return a.Options.IssuerPermissions&protos.GlobalSettle != 0 }

type AssetDynamicData struct {
	objdb.BaseObject
	CurrentSupply   protos.Share
	AccumulatedFees protos.Share
	FeePool         protos.Share
}

func (*AssetDynamicData) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeAssetDynamicData
}

type FeedEntry struct {
	Producer protos.ObjectID
	Time     uint32
	Feed     protos.PriceFeed
}

type AssetBitassetData struct {
	objdb.BaseObject
	AssetID                    protos.ObjectID
	FeedProducers              []protos.ObjectID
	Feeds                      []FeedEntry
	CurrentFeed                protos.PriceFeed
	CurrentFeedPublicationTime uint32
	Options                    protos.BitassetOptions
	ForceSettledVolume         protos.Share
	SettlementPrice            protos.Price
	SettlementFund             protos.Share
}

func (*AssetBitassetData) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeAssetBitassetData
}

func (b *AssetBitassetData) HasSettlement() bool { return !b.SettlementPrice.IsNull() }

func (b *AssetBitassetData) FeedIsExpired(now uint32) bool {
	return uint64(b.CurrentFeedPublicationTime)+uint64(b.Options.FeedLifetimeSec) <= uint64(now)
}

// IsFeedProducer reports whether account may publish feeds.
func (b *AssetBitassetData) IsFeedProducer(account protos.ObjectID) bool {
	for _, p := range b.FeedProducers {
		if p == account {
			return true
		}
	}
	return false
}

// SetFeed records a producer's feed, replacing its previous one.
func (b *AssetBitassetData) SetFeed(producer protos.ObjectID, now uint32, feed protos.PriceFeed) {
	for i := range b.Feeds {
		if b.Feeds[i].Producer == producer {
			b.Feeds[i].Time, b.Feeds[i].Feed = now, feed
			return
		}
	}
	b.Feeds = append(b.Feeds, FeedEntry{Producer: producer, Time: now, Feed: feed})
	sort.Slice(b.Feeds, func(i, j int) bool { return b.Feeds[i].Producer.Less(b.Feeds[j].Producer) })
}

// UpdateMedianFeeds recomputes CurrentFeed from unexpired feeds. Each field
// takes its own median; fewer than MinimumFeeds clears the feed.
func (b *AssetBitassetData) UpdateMedianFeeds(now uint32) {
	b.CurrentFeedPublicationTime = now
	var live []protos.PriceFeed
	for _, f := range b.Feeds {
		if uint64(f.Time)+uint64(b.Options.FeedLifetimeSec) > uint64(now) && !f.Feed.SettlementPrice.IsNull() {
			live = append(live, f.Feed)
			if f.Time < b.CurrentFeedPublicationTime {
				b.CurrentFeedPublicationTime = f.Time
			}
		}
	}
	if len(live) == 0 || len(live) < int(b.Options.MinimumFeeds) {
		b.CurrentFeedPublicationTime = now
		b.CurrentFeed = protos.PriceFeed{}
		return
	}
	if len(live) == 1 {
		b.CurrentFeed = live[0]
		return
	}
	mid := len(live) / 2
	sort.SliceStable(live, func(i, j int) bool {
		return protos.PriceLess(live[i].SettlementPrice, live[j].SettlementPrice)
	})
	b.CurrentFeed.SettlementPrice = live[mid].SettlementPrice
	sort.SliceStable(live, func(i, j int) bool {
		return protos.PriceLess(live[i].CoreExchangeRate, live[j].CoreExchangeRate)
	})
	b.CurrentFeed.CoreExchangeRate = live[mid].CoreExchangeRate
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].MaintenanceCollateralRatio < live[j].MaintenanceCollateralRatio
	})
	b.CurrentFeed.MaintenanceCollateralRatio = live[mid].MaintenanceCollateralRatio
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].MaximumShortSqueezeRatio < live[j].MaximumShortSqueezeRatio
	})
	b.CurrentFeed.MaximumShortSqueezeRatio = live[mid].MaximumShortSqueezeRatio
}

// MaxForceSettlementVolume is the per maintenance interval cap.
func (b *AssetBitassetData) MaxForceSettlementVolume(supply protos.Share) protos.Share {
	if b.Options.MaximumForceSettlementVolume == 0 {
		return 0
	}
	if b.Options.MaximumForceSettlementVolume == protos.FullPercent {
		return supply + b.ForceSettledVolume
	}
	v, err := protos.MulDiv(supply+b.ForceSettledVolume, protos.Share(b.Options.MaximumForceSettlementVolume), protos.Share(protos.FullPercent))
	if err != nil {
		return 0
	}
	return v
}

type ForceSettlement struct {
	objdb.BaseObject
	Owner          protos.ObjectID
	Balance        protos.AssetAmount
	SettlementDate uint32
}

func (*ForceSettlement) ObjectType() (uint8, uint8) {
	return protos.ProtocolSpace, protos.ObjTypeForceSettlement
}
