package protos

import (
	"github.com/pkg/errors"
)

// Work status changes carried by candidate update operations.
const (
	WorkStatusUnchanged uint8 = iota
	WorkStatusWorking
	WorkStatusResigned
)

func validateWorkStatus(s uint8) error {
	if s > WorkStatusResigned {
		return errors.New("unknown work status")
	}
	return nil
}

type WitnessCreateOperation struct {
	Fee             AssetAmount
	WitnessAccount  ObjectID
	URL             string
	BlockSigningKey PublicKey
}

func (op *WitnessCreateOperation) OpType() OpType         { return OpWitnessCreate }
func (op *WitnessCreateOperation) FeePayer() ObjectID     { return op.WitnessAccount }
func (op *WitnessCreateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *WitnessCreateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if len(op.URL) > 127 {
		return errors.New("url too long")
	}
	if op.BlockSigningKey.IsZero() {
		return errors.New("missing block signing key")
	}
	return nil
}

func (op *WitnessCreateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.WitnessAccount)
}

type WitnessUpdateOperation struct {
	Fee            AssetAmount
	Witness        ObjectID
	WitnessAccount ObjectID
	NewURL         *string    `rlp:"nil"`
	NewSigningKey  *PublicKey `rlp:"nil"`
	WorkStatus     uint8
}

func (op *WitnessUpdateOperation) OpType() OpType         { return OpWitnessUpdate }
func (op *WitnessUpdateOperation) FeePayer() ObjectID     { return op.WitnessAccount }
func (op *WitnessUpdateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *WitnessUpdateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.NewURL != nil && len(*op.NewURL) > 127 {
		return errors.New("url too long")
	}
	if op.NewSigningKey != nil && op.NewSigningKey.IsZero() {
		return errors.New("empty signing key")
	}
	return validateWorkStatus(op.WorkStatus)
}

func (op *WitnessUpdateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.WitnessAccount)
}

type CommitteeMemberCreateOperation struct {
	Fee                    AssetAmount
	CommitteeMemberAccount ObjectID
	URL                    string
}

func (op *CommitteeMemberCreateOperation) OpType() OpType         { return OpCommitteeMemberCreate }
func (op *CommitteeMemberCreateOperation) FeePayer() ObjectID     { return op.CommitteeMemberAccount }
func (op *CommitteeMemberCreateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *CommitteeMemberCreateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if len(op.URL) > 127 {
		return errors.New("url too long")
	}
	return nil
}

func (op *CommitteeMemberCreateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.CommitteeMemberAccount)
}

type CommitteeMemberUpdateOperation struct {
	Fee                    AssetAmount
	CommitteeMember        ObjectID
	CommitteeMemberAccount ObjectID
	NewURL                 *string `rlp:"nil"`
	WorkStatus             uint8
}

func (op *CommitteeMemberUpdateOperation) OpType() OpType         { return OpCommitteeMemberUpdate }
func (op *CommitteeMemberUpdateOperation) FeePayer() ObjectID     { return op.CommitteeMemberAccount }
func (op *CommitteeMemberUpdateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *CommitteeMemberUpdateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.NewURL != nil && len(*op.NewURL) > 127 {
		return errors.New("url too long")
	}
	return validateWorkStatus(op.WorkStatus)
}

func (op *CommitteeMemberUpdateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.CommitteeMemberAccount)
}

// ParameterOverride names one ChainParameters field by its mapstructure key.
type ParameterOverride struct {
	Name  string
	Value string
}

// CommitteeMemberUpdateGlobalParametersOperation stages new chain parameters,
// applied at the next maintenance. It is only executable through a proposal.
type CommitteeMemberUpdateGlobalParametersOperation struct {
	Fee       AssetAmount
	Overrides []ParameterOverride
	NewFees   []OpFee
}

func (op *CommitteeMemberUpdateGlobalParametersOperation) OpType() OpType {
	return OpCommitteeMemberUpdateGlobalParameters
}
func (op *CommitteeMemberUpdateGlobalParametersOperation) FeePayer() ObjectID {
	return CommitteeAccountID
}
func (op *CommitteeMemberUpdateGlobalParametersOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *CommitteeMemberUpdateGlobalParametersOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if len(op.Overrides) == 0 && len(op.NewFees) == 0 {
		return errors.New("no parameter changes")
	}
	for _, f := range op.NewFees {
		if !OpType(f.OpType).Valid() || f.Fee < 0 {
			return errors.New("invalid fee entry")
		}
	}
	return nil
}

func (op *CommitteeMemberUpdateGlobalParametersOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, CommitteeAccountID)
}

// Apply returns params with the operation's changes.
func (op *CommitteeMemberUpdateGlobalParametersOperation) Apply(params ChainParameters) (ChainParameters, error) {
	overrides := make(map[string]interface{}, len(op.Overrides))
	for _, o := range op.Overrides {
		overrides[o.Name] = o.Value
	}
	out, err := params.WithOverrides(overrides)
	if err != nil {
		return params, err
	}
	if len(op.NewFees) > 0 {
		out.CurrentFees = append([]OpFee(nil), op.NewFees...)
	}
	return out, nil
}

type ProposalCreateOperation struct {
	Fee                 AssetAmount
	FeePayingAccount    ObjectID
	ProposedOps         OperationList
	ExpirationTime      uint32
	ReviewPeriodSeconds uint32
}

func (op *ProposalCreateOperation) OpType() OpType         { return OpProposalCreate }
func (op *ProposalCreateOperation) FeePayer() ObjectID     { return op.FeePayingAccount }
func (op *ProposalCreateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *ProposalCreateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	return op.ProposedOps.Validate()
}

func (op *ProposalCreateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.FeePayingAccount)
}

type ProposalUpdateOperation struct {
	Fee                     AssetAmount
	FeePayingAccount        ObjectID
	Proposal                ObjectID
	ActiveApprovalsToAdd    []ObjectID
	ActiveApprovalsToRemove []ObjectID
	OwnerApprovalsToAdd     []ObjectID
	OwnerApprovalsToRemove  []ObjectID
	KeyApprovalsToAdd       []PublicKey
	KeyApprovalsToRemove    []PublicKey
}

func (op *ProposalUpdateOperation) OpType() OpType         { return OpProposalUpdate }
func (op *ProposalUpdateOperation) FeePayer() ObjectID     { return op.FeePayingAccount }
func (op *ProposalUpdateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *ProposalUpdateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if len(op.ActiveApprovalsToAdd)+len(op.ActiveApprovalsToRemove)+len(op.OwnerApprovalsToAdd)+
		len(op.OwnerApprovalsToRemove)+len(op.KeyApprovalsToAdd)+len(op.KeyApprovalsToRemove) == 0 {
		return errors.New("proposal update changes nothing")
	}
	for _, a := range op.ActiveApprovalsToAdd {
		if containsID(op.ActiveApprovalsToRemove, a) {
			return errors.New("cannot add and remove the same active approval")
		}
	}
	for _, a := range op.OwnerApprovalsToAdd {
		if containsID(op.OwnerApprovalsToRemove, a) {
			return errors.New("cannot add and remove the same owner approval")
		}
	}
	for _, k := range op.KeyApprovalsToAdd {
		for _, r := range op.KeyApprovalsToRemove {
			if k == r {
				return errors.New("cannot add and remove the same key approval")
			}
		}
	}
	return nil
}

func (op *ProposalUpdateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.FeePayingAccount)
	*active = append(*active, op.ActiveApprovalsToAdd...)
	*active = append(*active, op.ActiveApprovalsToRemove...)
	*owner = append(*owner, op.OwnerApprovalsToAdd...)
	*owner = append(*owner, op.OwnerApprovalsToRemove...)
	for _, k := range op.KeyApprovalsToAdd {
		*other = append(*other, NewKeyAuthority(1, k))
	}
	for _, k := range op.KeyApprovalsToRemove {
		*other = append(*other, NewKeyAuthority(1, k))
	}
}

type ProposalDeleteOperation struct {
	Fee                 AssetAmount
	FeePayingAccount    ObjectID
	UsingOwnerAuthority bool
	Proposal            ObjectID
}

func (op *ProposalDeleteOperation) OpType() OpType         { return OpProposalDelete }
func (op *ProposalDeleteOperation) FeePayer() ObjectID     { return op.FeePayingAccount }
func (op *ProposalDeleteOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *ProposalDeleteOperation) Validate() error {
	return validateFee(op.Fee)
}

func (op *ProposalDeleteOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	if op.UsingOwnerAuthority {
		*owner = append(*owner, op.FeePayingAccount)
		return
	}
	*active = append(*active, op.FeePayingAccount)
}

type CrontabCreateOperation struct {
	Fee                   AssetAmount
	CrontabCreator        ObjectID
	CrontabOps            OperationList
	StartTime             uint32
	ExecuteInterval       uint32
	ScheduledExecuteTimes uint64
}

func (op *CrontabCreateOperation) OpType() OpType         { return OpCrontabCreate }
func (op *CrontabCreateOperation) FeePayer() ObjectID     { return op.CrontabCreator }
func (op *CrontabCreateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *CrontabCreateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.ExecuteInterval == 0 || op.ExecuteInterval > MaxCrontabPeriod {
		return errors.New("execute interval out of range")
	}
	if op.ScheduledExecuteTimes == 0 {
		return errors.New("scheduled execute times must be positive")
	}
	for _, inner := range op.CrontabOps {
		switch inner.OpType() {
		case OpCrontabCreate, OpProposalCreate, OpProposalUpdate:
			return errors.Errorf("%s cannot be scheduled", inner.OpType())
		}
	}
	return op.CrontabOps.Validate()
}

func (op *CrontabCreateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.CrontabCreator)
}

type CrontabCancelOperation struct {
	Fee              AssetAmount
	FeePayingAccount ObjectID
	Task             ObjectID
}

func (op *CrontabCancelOperation) OpType() OpType         { return OpCrontabCancel }
func (op *CrontabCancelOperation) FeePayer() ObjectID     { return op.FeePayingAccount }
func (op *CrontabCancelOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *CrontabCancelOperation) Validate() error { return validateFee(op.Fee) }

func (op *CrontabCancelOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.FeePayingAccount)
}

type CrontabRecoverOperation struct {
	Fee          AssetAmount
	CrontabOwner ObjectID
	Crontab      ObjectID
	RestartTime  uint32
}

func (op *CrontabRecoverOperation) OpType() OpType         { return OpCrontabRecover }
func (op *CrontabRecoverOperation) FeePayer() ObjectID     { return op.CrontabOwner }
func (op *CrontabRecoverOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *CrontabRecoverOperation) Validate() error { return validateFee(op.Fee) }

func (op *CrontabRecoverOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.CrontabOwner)
}

func containsID(ids []ObjectID, id ObjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
