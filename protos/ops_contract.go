package protos

import (
	"github.com/pkg/errors"
)

const (
	MaxContractNameLength     = 63
	MaxContractFunctionLength = 63
)

type ContractCreateOperation struct {
	Fee               AssetAmount
	Owner             ObjectID
	Name              string
	Data              string
	ContractAuthority PublicKey
}

func (op *ContractCreateOperation) OpType() OpType         { return OpContractCreate }
func (op *ContractCreateOperation) FeePayer() ObjectID     { return op.Owner }
func (op *ContractCreateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *ContractCreateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	// contract names share the account name grammar with a "contract." prefix
	if len(op.Name) <= len("contract.") || op.Name[:len("contract.")] != "contract." ||
		len(op.Name) > MaxContractNameLength || !IsValidAccountName(op.Name) {
		return errors.Errorf("invalid contract name %q", op.Name)
	}
	if op.Data == "" {
		return errors.New("empty contract source")
	}
	return nil
}

func (op *ContractCreateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Owner)
}

type ReviseContractOperation struct {
	Fee        AssetAmount
	Reviser    ObjectID
	ContractID ObjectID
	Data       string
}

func (op *ReviseContractOperation) OpType() OpType         { return OpReviseContract }
func (op *ReviseContractOperation) FeePayer() ObjectID     { return op.Reviser }
func (op *ReviseContractOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *ReviseContractOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.Data == "" {
		return errors.New("empty contract source")
	}
	if !op.ContractID.Is(ProtocolSpace, ObjTypeContract) {
		return errors.New("not a contract id")
	}
	return nil
}

func (op *ReviseContractOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Reviser)
}

type CallContractFunctionOperation struct {
	Fee          AssetAmount
	Caller       ObjectID
	ContractID   ObjectID
	FunctionName string
	ValueList    []LuaValue
}

func (op *CallContractFunctionOperation) OpType() OpType         { return OpCallContractFunction }
func (op *CallContractFunctionOperation) FeePayer() ObjectID     { return op.Caller }
func (op *CallContractFunctionOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *CallContractFunctionOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if !op.ContractID.Is(ProtocolSpace, ObjTypeContract) {
		return errors.New("not a contract id")
	}
	if op.FunctionName == "" || len(op.FunctionName) > MaxContractFunctionLength {
		return errors.New("invalid function name")
	}
	for _, v := range op.ValueList {
		if v.Type == LuaTypeFunction {
			return errors.New("functions cannot be passed as arguments")
		}
	}
	return nil
}

func (op *CallContractFunctionOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Caller)
}
