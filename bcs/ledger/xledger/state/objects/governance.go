package objects

import (
	"sort"

	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

type Witness struct {
	objdb.BaseObject
	WitnessAccount        protos.ObjectID
	LastAslot             uint64
	SigningKey            protos.PublicKey
	VoteID                protos.VoteID
	TotalVotes            protos.Share
	URL                   string
	TotalMissed           uint64
	LastConfirmedBlockNum uint32
	WorkStatus            bool
}

func (*Witness) ObjectType() (uint8, uint8) { return protos.ProtocolSpace, protos.ObjTypeWitness }

type CommitteeMember struct {
	objdb.BaseObject
	CommitteeMemberAccount protos.ObjectID
	VoteID                 protos.VoteID
	TotalVotes             protos.Share
	URL                    string
	WorkStatus             bool
}

func (*CommitteeMember) ObjectType() (uint8, uint8) {
	return protos.ProtocolSpace, protos.ObjTypeCommitteeMember
}

// Candidate is what the election sees of a witness or committee member.
type Candidate interface {
	objdb.Object
	Account() protos.ObjectID
	Votes() protos.Share
	Vote() protos.VoteID
	Working() bool
}

func (w *Witness) Account() protos.ObjectID { return w.WitnessAccount }
func (w *Witness) Votes() protos.Share      { return w.TotalVotes }
func (w *Witness) Vote() protos.VoteID      { return w.VoteID }
func (w *Witness) Working() bool            { return w.WorkStatus }

func (c *CommitteeMember) Account() protos.ObjectID { return c.CommitteeMemberAccount }
func (c *CommitteeMember) Votes() protos.Share      { return c.TotalVotes }
func (c *CommitteeMember) Vote() protos.VoteID      { return c.VoteID }
func (c *CommitteeMember) Working() bool            { return c.WorkStatus }

type Proposal struct {
	objdb.BaseObject
	ExpirationTime           uint32
	ReviewPeriodTime         uint32
	ProposedTransaction      protos.Transaction
	RequiredActiveApprovals  []protos.ObjectID
	AvailableActiveApprovals []protos.ObjectID
	RequiredOwnerApprovals   []protos.ObjectID
	AvailableOwnerApprovals  []protos.ObjectID
	AvailableKeyApprovals    []protos.PublicKey
	Proposer                 protos.ObjectID
	AllowExecution           bool
}

func (*Proposal) ObjectType() (uint8, uint8) { return protos.ProtocolSpace, protos.ObjTypeProposal }

func (p *Proposal) HasReviewPeriod() bool { return p.ReviewPeriodTime != 0 }

// TaskTransaction is the transaction pushed when the proposal executes.
func (p *Proposal) TaskTransaction() *protos.SignedTransaction {
	trx := &protos.SignedTransaction{Transaction: p.ProposedTransaction}
	trx.AgreedTask = &protos.AgreedTask{TaskHash: p.ProposedTransaction.TaskID(), TaskID: p.ID()}
	return trx
}

type Crontab struct {
	objdb.BaseObject
	TaskOwner              protos.ObjectID
	TimedTransaction       protos.Transaction
	StartTime              uint32
	ExecuteInterval        uint32
	ScheduledExecuteTimes  uint64
	AlreadyExecuteTimes    uint64
	LastExecuteTime        uint32
	NextExecuteTime        uint32
	ExpirationTime         uint32
	IsSuspended            bool
	ContinuousFailureTimes uint16
	AllowExecution         bool
}

func (*Crontab) ObjectType() (uint8, uint8) { return protos.ProtocolSpace, protos.ObjTypeCrontab }

func (c *Crontab) TaskTransaction() *protos.SignedTransaction {
	trx := &protos.SignedTransaction{Transaction: c.TimedTransaction}
	trx.AgreedTask = &protos.AgreedTask{TaskHash: c.TimedTransaction.TaskID(), TaskID: c.ID()}
	return trx
}

// Due reports whether the crontab may run at now.
func (c *Crontab) Due(now uint32) bool {
	return c.AllowExecution && !c.IsSuspended && c.NextExecuteTime <= now &&
		c.AlreadyExecuteTimes < c.ScheduledExecuteTimes
}

// AddID inserts id into a sorted set.
func AddID(set []protos.ObjectID, id protos.ObjectID) []protos.ObjectID {
	i := sort.Search(len(set), func(i int) bool { return !set[i].Less(id) })
	if i < len(set) && set[i] == id {
		return set
	}
	set = append(set, protos.ObjectID{})
	copy(set[i+1:], set[i:])
	set[i] = id
	return set
}

func RemoveID(set []protos.ObjectID, id protos.ObjectID) []protos.ObjectID {
	for i, x := range set {
		if x == id {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}

func ContainsID(set []protos.ObjectID, id protos.ObjectID) bool {
	for _, x := range set {
		if x == id {
			return true
		}
	}
	return false
}
