package protos

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

const (
	// Percent values are in hundredths of a percent.
	FullPercent uint16 = 10000
	OnePercent  uint16 = 100

	MaxShareSupply Share = 1000000000000000
)

var (
	ErrPriceAssetMismatch = errors.New("asset does not match either side of the price")
	ErrAmountOverflow     = errors.New("amount overflow")
)

// AssetAmount is an amount of one asset.
type AssetAmount struct {
	Amount  Share
	AssetID ObjectID
}

func NewAsset(amount Share, id ObjectID) AssetAmount {
	return AssetAmount{Amount: amount, AssetID: id}
}

func (a AssetAmount) String() string {
	return fmt.Sprintf("%d %s", a.Amount, a.AssetID)
}

// Price is base/quote, both sides must be positive for a valid price.
type Price struct {
	Base  AssetAmount
	Quote AssetAmount
}

func (p Price) IsNull() bool {
	return p.Base.Amount == 0 && p.Quote.Amount == 0 && !p.Base.AssetID.Valid() && !p.Quote.AssetID.Valid()
}

func (p Price) Validate() error {
	if p.Base.Amount <= 0 || p.Quote.Amount <= 0 {
		return errors.New("price amounts must be positive")
	}
	if p.Base.AssetID == p.Quote.AssetID {
		return errors.New("price must be between different assets")
	}
	return nil
}

// Invert swaps base and quote.
func (p Price) Invert() Price {
	return Price{Base: p.Quote, Quote: p.Base}
}

// MulDiv computes a*b/c with a 256 bit intermediate. Inputs must be non negative.
func MulDiv(a, b, c Share) (Share, error) {
	if a < 0 || b < 0 || c <= 0 {
		return 0, errors.New("muldiv requires non negative operands and positive divisor")
	}
	x := uint256.NewInt(uint64(a))
	x.Mul(x, uint256.NewInt(uint64(b)))
	x.Div(x, uint256.NewInt(uint64(c)))
	if !x.IsUint64() || x.Uint64() > math.MaxInt64 {
		return 0, ErrAmountOverflow
	}
	return Share(x.Uint64()), nil
}

// MulPrice converts a into the other side of p, rounding down.
func MulPrice(a AssetAmount, p Price) (AssetAmount, error) {
	switch a.AssetID {
	case p.Base.AssetID:
		amt, err := MulDiv(a.Amount, p.Quote.Amount, p.Base.Amount)
		if err != nil {
			return AssetAmount{}, err
		}
		return NewAsset(amt, p.Quote.AssetID), nil
	case p.Quote.AssetID:
		amt, err := MulDiv(a.Amount, p.Base.Amount, p.Quote.Amount)
		if err != nil {
			return AssetAmount{}, err
		}
		return NewAsset(amt, p.Base.AssetID), nil
	}
	return AssetAmount{}, ErrPriceAssetMismatch
}

// PriceLess compares two prices of the same pair by base/quote ratio.
func PriceLess(a, b Price) bool {
	l := uint256.NewInt(uint64(a.Base.Amount))
	l.Mul(l, uint256.NewInt(uint64(b.Quote.Amount)))
	r := uint256.NewInt(uint64(b.Base.Amount))
	r.Mul(r, uint256.NewInt(uint64(a.Quote.Amount)))
	return l.Lt(r)
}

// PriceFeed is what feed producers publish for a market issued asset.
type PriceFeed struct {
	SettlementPrice            Price
	CoreExchangeRate           Price
	MaintenanceCollateralRatio uint16
	MaximumShortSqueezeRatio   uint16
}

func (f PriceFeed) Validate() error {
	if !f.SettlementPrice.IsNull() {
		if err := f.SettlementPrice.Validate(); err != nil {
			return err
		}
	}
	if f.MaintenanceCollateralRatio < 1001 || f.MaintenanceCollateralRatio > 32000 {
		return errors.New("maintenance collateral ratio out of range")
	}
	if f.MaximumShortSqueezeRatio < 1001 || f.MaximumShortSqueezeRatio > 32000 {
		return errors.New("maximum short squeeze ratio out of range")
	}
	return nil
}

// Asset permission and flag bits
const (
	ChargeMarketFee    uint16 = 0x01
	WhiteList          uint16 = 0x02
	OverrideAuthority  uint16 = 0x04
	TransferRestrict   uint16 = 0x08
	DisableForceSettle uint16 = 0x10
	GlobalSettle       uint16 = 0x20

	AssetIssuerPermissionMask = ChargeMarketFee | WhiteList | OverrideAuthority | TransferRestrict | DisableForceSettle | GlobalSettle
	UIAIssuerPermissionMask   = ChargeMarketFee | WhiteList | OverrideAuthority | TransferRestrict
)

type AssetOptions struct {
	MaxSupply         Share
	MarketFeePercent  uint16
	MaxMarketFee      Share
	IssuerPermissions uint16
	Flags             uint16
	CoreExchangeRate  Price
	Description       string
}

func (o AssetOptions) Validate() error {
	if o.MaxSupply <= 0 || o.MaxSupply > MaxShareSupply {
		return errors.New("max supply out of range")
	}
	if o.MarketFeePercent > FullPercent {
		return errors.New("market fee percent out of range")
	}
	if o.MaxMarketFee < 0 || o.MaxMarketFee > MaxShareSupply {
		return errors.New("max market fee out of range")
	}
	if o.IssuerPermissions&^AssetIssuerPermissionMask != 0 {
		return errors.New("unknown issuer permission bit")
	}
	if o.Flags&^o.IssuerPermissions != 0 {
		return errors.New("flag set without permission")
	}
	if o.Flags&GlobalSettle != 0 {
		return errors.New("global settle is not a flag")
	}
	return o.CoreExchangeRate.Validate()
}

type BitassetOptions struct {
	FeedLifetimeSec              uint32
	MinimumFeeds                 uint8
	ForceSettlementDelaySec      uint32
	ForceSettlementOffsetPercent uint16
	MaximumForceSettlementVolume uint16
	ShortBackingAsset            ObjectID
}

func (o BitassetOptions) Validate() error {
	if o.MinimumFeeds == 0 {
		return errors.New("minimum feeds must be positive")
	}
	if o.ForceSettlementOffsetPercent > FullPercent || o.MaximumForceSettlementVolume > FullPercent {
		return errors.New("percent out of range")
	}
	if !o.ShortBackingAsset.Is(ProtocolSpace, ObjTypeAsset) {
		return errors.New("short backing asset must be an asset id")
	}
	return nil
}
