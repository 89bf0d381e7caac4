package protos

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// OpType is the tag of an operation variant. Tags are part of the wire format.
type OpType uint8

const (
	OpTransfer OpType = iota
	OpAccountCreate
	OpAccountUpdate
	OpAccountUpgrade
	OpAssetCreate
	OpAssetUpdate
	OpAssetUpdateBitasset
	OpAssetUpdateFeedProducers
	OpAssetIssue
	OpAssetReserve
	OpAssetSettle
	OpAssetGlobalSettle
	OpAssetPublishFeed
	OpWitnessCreate
	OpWitnessUpdate
	OpCommitteeMemberCreate
	OpCommitteeMemberUpdate
	OpCommitteeMemberUpdateGlobalParameters
	OpProposalCreate
	OpProposalUpdate
	OpProposalDelete
	OpCrontabCreate
	OpCrontabCancel
	OpCrontabRecover
	OpContractCreate
	OpReviseContract
	OpCallContractFunction
	OpTemporaryAuthorityChange
	OpRegisterNHAssetCreator
	OpCreateWorldView
	OpCreateNHAsset
	OpDeleteNHAsset
	OpTransferNHAsset
	OpRelateNHAsset
	opTypeCount
)

var opNames = [...]string{
	"transfer",
	"account_create",
	"account_update",
	"account_upgrade",
	"asset_create",
	"asset_update",
	"asset_update_bitasset",
	"asset_update_feed_producers",
	"asset_issue",
	"asset_reserve",
	"asset_settle",
	"asset_global_settle",
	"asset_publish_feed",
	"witness_create",
	"witness_update",
	"committee_member_create",
	"committee_member_update",
	"committee_member_update_global_parameters",
	"proposal_create",
	"proposal_update",
	"proposal_delete",
	"crontab_create",
	"crontab_cancel",
	"crontab_recover",
	"contract_create",
	"revise_contract",
	"call_contract_function",
	"temporary_authority_change",
	"register_nh_asset_creator",
	"create_world_view",
	"create_nh_asset",
	"delete_nh_asset",
	"transfer_nh_asset",
	"relate_nh_asset",
}

func (t OpType) String() string {
	if t < opTypeCount {
		return opNames[t]
	}
	return fmt.Sprintf("op(%d)", uint8(t))
}

func (t OpType) Valid() bool { return t < opTypeCount }

var ErrUnknownOperation = errors.New("unknown operation type")

// Operation is one variant of the closed operation sum type.
type Operation interface {
	OpType() OpType
	// Validate performs stateless shape checks.
	Validate() error
	FeePayer() ObjectID
	FeeAmount() AssetAmount
	// RequiredAuthorities appends the accounts whose active or owner authority
	// must approve, and any additional bare authorities.
	RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority)
}

var opFactories = map[OpType]func() Operation{
	OpTransfer:                              func() Operation { return new(TransferOperation) },
	OpAccountCreate:                         func() Operation { return new(AccountCreateOperation) },
	OpAccountUpdate:                         func() Operation { return new(AccountUpdateOperation) },
	OpAccountUpgrade:                        func() Operation { return new(AccountUpgradeOperation) },
	OpAssetCreate:                           func() Operation { return new(AssetCreateOperation) },
	OpAssetUpdate:                           func() Operation { return new(AssetUpdateOperation) },
	OpAssetUpdateBitasset:                   func() Operation { return new(AssetUpdateBitassetOperation) },
	OpAssetUpdateFeedProducers:              func() Operation { return new(AssetUpdateFeedProducersOperation) },
	OpAssetIssue:                            func() Operation { return new(AssetIssueOperation) },
	OpAssetReserve:                          func() Operation { return new(AssetReserveOperation) },
	OpAssetSettle:                           func() Operation { return new(AssetSettleOperation) },
	OpAssetGlobalSettle:                     func() Operation { return new(AssetGlobalSettleOperation) },
	OpAssetPublishFeed:                      func() Operation { return new(AssetPublishFeedOperation) },
	OpWitnessCreate:                         func() Operation { return new(WitnessCreateOperation) },
	OpWitnessUpdate:                         func() Operation { return new(WitnessUpdateOperation) },
	OpCommitteeMemberCreate:                 func() Operation { return new(CommitteeMemberCreateOperation) },
	OpCommitteeMemberUpdate:                 func() Operation { return new(CommitteeMemberUpdateOperation) },
	OpCommitteeMemberUpdateGlobalParameters: func() Operation { return new(CommitteeMemberUpdateGlobalParametersOperation) },
	OpProposalCreate:                        func() Operation { return new(ProposalCreateOperation) },
	OpProposalUpdate:                        func() Operation { return new(ProposalUpdateOperation) },
	OpProposalDelete:                        func() Operation { return new(ProposalDeleteOperation) },
	OpCrontabCreate:                         func() Operation { return new(CrontabCreateOperation) },
	OpCrontabCancel:                         func() Operation { return new(CrontabCancelOperation) },
	OpCrontabRecover:                        func() Operation { return new(CrontabRecoverOperation) },
	OpContractCreate:                        func() Operation { return new(ContractCreateOperation) },
	OpReviseContract:                        func() Operation { return new(ReviseContractOperation) },
	OpCallContractFunction:                  func() Operation { return new(CallContractFunctionOperation) },
	OpTemporaryAuthorityChange:              func() Operation { return new(TemporaryAuthorityChangeOperation) },
	OpRegisterNHAssetCreator:                func() Operation { return new(RegisterNHAssetCreatorOperation) },
	OpCreateWorldView:                       func() Operation { return new(CreateWorldViewOperation) },
	OpCreateNHAsset:                         func() Operation { return new(CreateNHAssetOperation) },
	OpDeleteNHAsset:                         func() Operation { return new(DeleteNHAssetOperation) },
	OpTransferNHAsset:                       func() Operation { return new(TransferNHAssetOperation) },
	OpRelateNHAsset:                         func() Operation { return new(RelateNHAssetOperation) },
}

// NewOperation returns an empty operation for tag t.
func NewOperation(t OpType) (Operation, error) {
	f, ok := opFactories[t]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownOperation, "tag %d", uint8(t))
	}
	return f(), nil
}

// OperationList is an ordered list of operations. On the wire each element is
// an envelope of its tag and the RLP of its body.
type OperationList []Operation

type opEnvelope struct {
	Tag     uint8
	Payload rlp.RawValue
}

func (l OperationList) EncodeRLP(w io.Writer) error {
	envs := make([]opEnvelope, 0, len(l))
	for _, op := range l {
		payload, err := rlp.EncodeToBytes(op)
		if err != nil {
			return err
		}
		envs = append(envs, opEnvelope{Tag: uint8(op.OpType()), Payload: payload})
	}
	return rlp.Encode(w, envs)
}

func (l *OperationList) DecodeRLP(s *rlp.Stream) error {
	var envs []opEnvelope
	if err := s.Decode(&envs); err != nil {
		return err
	}
	out := make(OperationList, 0, len(envs))
	for _, env := range envs {
		op, err := NewOperation(OpType(env.Tag))
		if err != nil {
			return err
		}
		if err := rlp.DecodeBytes(env.Payload, op); err != nil {
			return errors.Wrapf(err, "decode %s", OpType(env.Tag))
		}
		out = append(out, op)
	}
	*l = out
	return nil
}

type opJSON struct {
	Type OpType          `json:"type"`
	Op   json.RawMessage `json:"op"`
}

func (l OperationList) MarshalJSON() ([]byte, error) {
	out := make([]opJSON, 0, len(l))
	for _, op := range l {
		body, err := json.Marshal(op)
		if err != nil {
			return nil, err
		}
		out = append(out, opJSON{Type: op.OpType(), Op: body})
	}
	return json.Marshal(out)
}

func (l *OperationList) UnmarshalJSON(data []byte) error {
	var in []opJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(OperationList, 0, len(in))
	for _, item := range in {
		op, err := NewOperation(item.Type)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(item.Op, op); err != nil {
			return err
		}
		out = append(out, op)
	}
	*l = out
	return nil
}

// Validate runs every operation's shape checks.
func (l OperationList) Validate() error {
	if len(l) == 0 {
		return errors.New("operation list is empty")
	}
	for i, op := range l {
		if err := op.Validate(); err != nil {
			return errors.Wrapf(err, "operation %d (%s)", i, op.OpType())
		}
	}
	return nil
}

// RequiredAuthorities collects the authorities of every operation.
func (l OperationList) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	for _, op := range l {
		op.RequiredAuthorities(active, owner, other)
	}
}

func validateFee(fee AssetAmount) error {
	if fee.Amount < 0 {
		return errors.New("fee must not be negative")
	}
	return nil
}

func isAccountID(id ObjectID) bool { return id.Is(ProtocolSpace, ObjTypeAccount) }

func isNHAssetID(id ObjectID) bool { return id.Is(NHAssetSpace, ObjTypeNHAsset) }

// IsValidAccountName: 3 to 63 chars, starts with a letter, ends with a letter or digit,
// lowercase letters, digits, '-' and '.' only.
func IsValidAccountName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9', c == '-', c == '.':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	last := name[len(name)-1]
	return (last >= 'a' && last <= 'z') || (last >= '0' && last <= '9')
}

// IsValidSymbol: 3 to 16 uppercase letters, digits and at most one inner '.'.
func IsValidSymbol(symbol string) bool {
	if len(symbol) < 3 || len(symbol) > 16 {
		return false
	}
	if symbol[0] < 'A' || symbol[0] > 'Z' {
		return false
	}
	last := symbol[len(symbol)-1]
	if !((last >= 'A' && last <= 'Z') || (last >= '0' && last <= '9')) {
		return false
	}
	dots := 0
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return dots <= 1
}
