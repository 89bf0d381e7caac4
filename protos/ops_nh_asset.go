package protos

import (
	"encoding/binary"
	"unicode"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tmthrgd/go-hex"
)

// NHHash identifies a non homogeneous asset. The first eight bytes carry the
// object instance, the rest is the keccak256 of the base describe.
type NHHash [32]byte

func NewNHHash(baseDescribe string, instance uint64) NHHash {
	var h NHHash
	copy(h[:], crypto.Keccak256([]byte(baseDescribe)))
	binary.BigEndian.PutUint64(h[:8], instance)
	return h
}

func (h NHHash) String() string { return hex.EncodeToString(h[:]) }

func (h NHHash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *NHHash) UnmarshalText(text []byte) error {
	return decodeFixed(h[:], string(text))
}

// ParseNHHash parses the hex form.
func ParseNHHash(s string) (NHHash, error) {
	var h NHHash
	return h, h.UnmarshalText([]byte(s))
}

// RegisterNHAssetCreatorOperation makes the payer a creator of non
// homogeneous assets.
type RegisterNHAssetCreatorOperation struct {
	Fee              AssetAmount
	FeePayingAccount ObjectID
}

func (op *RegisterNHAssetCreatorOperation) OpType() OpType         { return OpRegisterNHAssetCreator }
func (op *RegisterNHAssetCreatorOperation) FeePayer() ObjectID     { return op.FeePayingAccount }
func (op *RegisterNHAssetCreatorOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *RegisterNHAssetCreatorOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if !isAccountID(op.FeePayingAccount) {
		return errors.New("creator must be an account")
	}
	return nil
}

func (op *RegisterNHAssetCreatorOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.FeePayingAccount)
}

// CreateWorldViewOperation opens a world view owned by a registered creator.
type CreateWorldViewOperation struct {
	Fee              AssetAmount
	FeePayingAccount ObjectID
	WorldView        string
}

func (op *CreateWorldViewOperation) OpType() OpType         { return OpCreateWorldView }
func (op *CreateWorldViewOperation) FeePayer() ObjectID     { return op.FeePayingAccount }
func (op *CreateWorldViewOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *CreateWorldViewOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.WorldView == "" {
		return errors.New("world view name is empty")
	}
	if unicode.IsDigit(rune(op.WorldView[0])) {
		return errors.New("world view name can not start with a digit")
	}
	return nil
}

func (op *CreateWorldViewOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.FeePayingAccount)
}

// CreateNHAssetOperation creates an asset for Owner, the payer when Owner
// is unset. AssetSymbol names the fungible asset that qualifies it.
type CreateNHAssetOperation struct {
	Fee              AssetAmount
	FeePayingAccount ObjectID
	Owner            ObjectID
	AssetSymbol      string
	WorldView        string
	BaseDescribe     string
}

func (op *CreateNHAssetOperation) OpType() OpType         { return OpCreateNHAsset }
func (op *CreateNHAssetOperation) FeePayer() ObjectID     { return op.FeePayingAccount }
func (op *CreateNHAssetOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *CreateNHAssetOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.BaseDescribe == "" {
		return errors.New("base describe is empty")
	}
	if op.Owner.Valid() && !isAccountID(op.Owner) {
		return errors.New("owner must be an account")
	}
	return nil
}

func (op *CreateNHAssetOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.FeePayingAccount)
}

// DeleteNHAssetOperation removes an asset of the payer.
type DeleteNHAssetOperation struct {
	Fee              AssetAmount
	FeePayingAccount ObjectID
	NHAsset          ObjectID
}

func (op *DeleteNHAssetOperation) OpType() OpType         { return OpDeleteNHAsset }
func (op *DeleteNHAssetOperation) FeePayer() ObjectID     { return op.FeePayingAccount }
func (op *DeleteNHAssetOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *DeleteNHAssetOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if !isNHAssetID(op.NHAsset) {
		return errors.Errorf("%s is not a nh asset id", op.NHAsset)
	}
	return nil
}

func (op *DeleteNHAssetOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.FeePayingAccount)
}

type TransferNHAssetOperation struct {
	Fee     AssetAmount
	From    ObjectID
	To      ObjectID
	NHAsset ObjectID
}

func (op *TransferNHAssetOperation) OpType() OpType         { return OpTransferNHAsset }
func (op *TransferNHAssetOperation) FeePayer() ObjectID     { return op.From }
func (op *TransferNHAssetOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *TransferNHAssetOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.From == op.To {
		return errors.New("transfer to the sender")
	}
	if !isAccountID(op.To) {
		return errors.New("receiver must be an account")
	}
	if !isNHAssetID(op.NHAsset) {
		return errors.Errorf("%s is not a nh asset id", op.NHAsset)
	}
	return nil
}

func (op *TransferNHAssetOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.From)
}

// RelateNHAssetOperation links Child under Parent in the scope of Contract,
// or removes the link when Relate is false. Both must come from the creator.
type RelateNHAssetOperation struct {
	Fee            AssetAmount
	NHAssetCreator ObjectID
	Parent         ObjectID
	Child          ObjectID
	Contract       ObjectID
	Relate         bool
}

func (op *RelateNHAssetOperation) OpType() OpType         { return OpRelateNHAsset }
func (op *RelateNHAssetOperation) FeePayer() ObjectID     { return op.NHAssetCreator }
func (op *RelateNHAssetOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *RelateNHAssetOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.Parent == op.Child {
		return errors.New("an asset can not relate to itself")
	}
	if !isNHAssetID(op.Parent) || !isNHAssetID(op.Child) {
		return errors.New("parent and child must be nh assets")
	}
	if !op.Contract.Is(ProtocolSpace, ObjTypeContract) {
		return errors.Errorf("%s is not a contract id", op.Contract)
	}
	return nil
}

func (op *RelateNHAssetOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.NHAssetCreator)
}
