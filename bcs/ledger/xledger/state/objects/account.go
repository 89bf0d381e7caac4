package objects

import (
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// Membership expiration encodes the tier: MaxTime is lifetime, zero is basic.
const AnnualMembershipSeconds = 365 * 24 * 3600

// AssetLocked tracks core asset frozen for candidacy and votes.
type AssetLocked struct {
	VoteForWitness   protos.Share
	VoteForCommittee protos.Share
	WitnessFreeze    protos.Share
	CommitteeFreeze  protos.Share
}

func (l AssetLocked) Total() protos.Share {
	return l.VoteForWitness + l.VoteForCommittee + l.WitnessFreeze + l.CommitteeFreeze
}

// VoteAmount is the lock behind votes of one type.
func (l AssetLocked) VoteAmount(voteType uint8) protos.Share {
	if voteType == protos.VoteTypeWitness {
		return l.VoteForWitness
	}
	return l.VoteForCommittee
}

func (l *AssetLocked) SetVoteAmount(voteType uint8, amount protos.Share) {
	if voteType == protos.VoteTypeWitness {
		l.VoteForWitness = amount
		return
	}
	l.VoteForCommittee = amount
}

type Account struct {
	objdb.BaseObject
	MembershipExpirationDate uint32
	Registrar                protos.ObjectID
	Name                     string
	Owner                    protos.Authority
	Active                   protos.Authority
	Options                  protos.AccountOptions
	Statistics               protos.ObjectID
	AssetLocked              AssetLocked
}

func (*Account) ObjectType() (uint8, uint8) { return protos.ProtocolSpace, protos.ObjTypeAccount }

func (a *Account) IsLifetimeMember() bool { return a.MembershipExpirationDate == protos.MaxTime }

func (a *Account) IsAnnualMember(now uint32) bool {
	return !a.IsLifetimeMember() && a.MembershipExpirationDate > now
}

func (a *Account) IsMember(now uint32) bool { return a.MembershipExpirationDate > now }

// VotesOfType returns the account's votes of one type in order.
func (a *Account) VotesOfType(voteType uint8) []protos.VoteID {
	var out []protos.VoteID
	for _, v := range a.Options.Votes {
		if v.Type() == voteType {
			out = append(out, v)
		}
	}
	return out
}

type AccountStatistics struct {
	objdb.BaseObject
	Owner            protos.ObjectID
	TotalOps         uint64
	LifetimeFeesPaid protos.Share
	MostRecentOp     uint64
}

func (*AccountStatistics) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeAccountStatistics
}

type AccountBalance struct {
	objdb.BaseObject
	Owner     protos.ObjectID
	AssetType protos.ObjectID
	Balance   protos.Share
}

func (*AccountBalance) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeAccountBalance
}

// TemporaryAuthority is an extra active key merged into its owner's active
// authority until it expires.
type TemporaryAuthority struct {
	objdb.BaseObject
	Owner           protos.ObjectID
	Describe        string
	TemporaryActive protos.PublicKey
	ExpirationTime  uint32
}

func (*TemporaryAuthority) ObjectType() (uint8, uint8) {
	return protos.ProtocolSpace, protos.ObjTypeTemporaryAuthority
}
