package protos

import (
	"github.com/pkg/errors"
)

type TransferOperation struct {
	Fee    AssetAmount
	From   ObjectID
	To     ObjectID
	Amount AssetAmount
	Memo   string
}

func (op *TransferOperation) OpType() OpType         { return OpTransfer }
func (op *TransferOperation) FeePayer() ObjectID     { return op.From }
func (op *TransferOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *TransferOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if !isAccountID(op.From) || !isAccountID(op.To) {
		return errors.New("transfer endpoints must be accounts")
	}
	if op.From == op.To {
		return errors.New("cannot transfer to self")
	}
	if op.Amount.Amount <= 0 {
		return errors.New("transfer amount must be positive")
	}
	return nil
}

func (op *TransferOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.From)
}

// AccountOptions are the parts of an account its active authority may change.
type AccountOptions struct {
	MemoKey PublicKey
	Votes   []VoteID
}

func (o AccountOptions) Validate() error {
	for i := 1; i < len(o.Votes); i++ {
		if o.Votes[i] <= o.Votes[i-1] {
			return errors.New("votes must be sorted and unique")
		}
	}
	return nil
}

type AccountCreateOperation struct {
	Fee       AssetAmount
	Registrar ObjectID
	Name      string
	Owner     Authority
	Active    Authority
	Options   AccountOptions
}

func (op *AccountCreateOperation) OpType() OpType         { return OpAccountCreate }
func (op *AccountCreateOperation) FeePayer() ObjectID     { return op.Registrar }
func (op *AccountCreateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AccountCreateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if !IsValidAccountName(op.Name) {
		return errors.Errorf("invalid account name %q", op.Name)
	}
	for _, auth := range []Authority{op.Owner, op.Active} {
		if err := auth.Validate(); err != nil {
			return err
		}
		if auth.IsImpossible() || auth.WeightThreshold == 0 {
			return errors.New("authority can never be satisfied")
		}
	}
	if len(op.Options.Votes) != 0 {
		return errors.New("a new account cannot vote")
	}
	return op.Options.Validate()
}

func (op *AccountCreateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Registrar)
}

// VoteLock locks core asset behind the account's votes of one type.
type VoteLock struct {
	VoteType uint8
	Amount   AssetAmount
}

type AccountUpdateOperation struct {
	Fee          AssetAmount
	Account      ObjectID
	Owner        *Authority      `rlp:"nil"`
	Active       *Authority      `rlp:"nil"`
	NewOptions   *AccountOptions `rlp:"nil"`
	LockWithVote *VoteLock       `rlp:"nil"`
}

func (op *AccountUpdateOperation) OpType() OpType         { return OpAccountUpdate }
func (op *AccountUpdateOperation) FeePayer() ObjectID     { return op.Account }
func (op *AccountUpdateOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AccountUpdateOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.Account == TempAccountID {
		return errors.New("temp account cannot be updated")
	}
	if op.Owner == nil && op.Active == nil && op.NewOptions == nil && op.LockWithVote == nil {
		return errors.New("nothing to update")
	}
	for _, auth := range []*Authority{op.Owner, op.Active} {
		if auth == nil {
			continue
		}
		if err := auth.Validate(); err != nil {
			return err
		}
		if auth.IsImpossible() || auth.WeightThreshold == 0 {
			return errors.New("authority can never be satisfied")
		}
	}
	if op.NewOptions != nil {
		if err := op.NewOptions.Validate(); err != nil {
			return err
		}
	}
	if op.LockWithVote != nil {
		if op.LockWithVote.VoteType != VoteTypeCommittee && op.LockWithVote.VoteType != VoteTypeWitness {
			return errors.New("unknown vote type")
		}
		if op.LockWithVote.Amount.Amount < 0 || op.LockWithVote.Amount.AssetID != CoreAssetID {
			return errors.New("vote lock must be a non negative core amount")
		}
		if op.NewOptions == nil {
			return errors.New("vote lock requires the voted candidates")
		}
	}
	return nil
}

func (op *AccountUpdateOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	if op.Owner != nil {
		*owner = append(*owner, op.Account)
		return
	}
	*active = append(*active, op.Account)
}

type AccountUpgradeOperation struct {
	Fee                     AssetAmount
	AccountToUpgrade        ObjectID
	UpgradeToLifetimeMember bool
}

func (op *AccountUpgradeOperation) OpType() OpType         { return OpAccountUpgrade }
func (op *AccountUpgradeOperation) FeePayer() ObjectID     { return op.AccountToUpgrade }
func (op *AccountUpgradeOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *AccountUpgradeOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if !isAccountID(op.AccountToUpgrade) {
		return errors.New("not an account")
	}
	return nil
}

func (op *AccountUpgradeOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.AccountToUpgrade)
}

// TemporaryAuthorityChangeOperation adds, replaces or (with a nil key) removes
// a temporary active key named by Describe.
type TemporaryAuthorityChangeOperation struct {
	Fee             AssetAmount
	Owner           ObjectID
	Describe        string
	TemporaryActive *PublicKey `rlp:"nil"`
	ExpirationTime  uint32
}

func (op *TemporaryAuthorityChangeOperation) OpType() OpType         { return OpTemporaryAuthorityChange }
func (op *TemporaryAuthorityChangeOperation) FeePayer() ObjectID     { return op.Owner }
func (op *TemporaryAuthorityChangeOperation) FeeAmount() AssetAmount { return op.Fee }

func (op *TemporaryAuthorityChangeOperation) Validate() error {
	if err := validateFee(op.Fee); err != nil {
		return err
	}
	if op.Describe == "" || len(op.Describe) > 64 {
		return errors.New("describe must be 1 to 64 bytes")
	}
	if op.TemporaryActive != nil && op.TemporaryActive.IsZero() {
		return errors.New("empty temporary key")
	}
	return nil
}

func (op *TemporaryAuthorityChangeOperation) RequiredAuthorities(active, owner *[]ObjectID, other *[]Authority) {
	*active = append(*active, op.Owner)
}
