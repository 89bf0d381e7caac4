package objects

import (
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

type GlobalProperty struct {
	objdb.BaseObject
	Parameters             protos.ChainParameters
	PendingParameters      *protos.ChainParameters `rlp:"nil"`
	NextAvailableVoteID    uint32
	ActiveCommitteeMembers []protos.ObjectID
	ActiveWitnesses        []protos.ObjectID
}

func (*GlobalProperty) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeGlobalProperty
}

// Dynamic flags
const MaintenanceFlag uint32 = 0x01

type DynamicGlobalProperty struct {
	objdb.BaseObject
	HeadBlockNumber          uint32
	HeadBlockID              protos.BlockID
	Time                     uint32
	CurrentWitness           protos.ObjectID
	NextMaintenanceTime      uint32
	LastBudgetTime           uint32
	WitnessBudget            protos.Share
	RecentlyMissedCount      uint32
	CurrentAslot             uint64
	RecentSlotsFilled        uint64
	DynamicFlags             uint32
	LastIrreversibleBlockNum uint32
}

func (*DynamicGlobalProperty) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeDynamicGlobalProperty
}

type BlockSummary struct {
	objdb.BaseObject
	BlockID protos.BlockID
}

func (*BlockSummary) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeBlockSummary
}

// TransactionObject remembers an applied transaction id until it expires.
type TransactionObject struct {
	objdb.BaseObject
	TrxID      protos.TxID
	Expiration uint32
}

func (*TransactionObject) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeTransaction
}

type TransactionInBlockInfo struct {
	objdb.BaseObject
	TrxHash    protos.TxID
	BlockNum   uint32
	TrxInBlock uint32
}

func (*TransactionInBlockInfo) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeTransactionInBlockInfo
}

type WitnessSchedule struct {
	objdb.BaseObject
	CurrentShuffledWitnesses []protos.ObjectID
}

func (*WitnessSchedule) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeWitnessSchedule
}

type BudgetRecordData struct {
	TimeSinceLastBudget    uint64
	FromInitialReserve     protos.Share
	FromAccumulatedFees    protos.Share
	RequestedWitnessBudget protos.Share
	TotalBudget            protos.Share
	WitnessBudget          protos.Share
	CandidatesBudget       protos.Share
	LeftoverCandidates     protos.Share
	SupplyDelta            protos.Share
	CurrentSupply          protos.Share
}

type BudgetRecord struct {
	objdb.BaseObject
	Time   uint32
	Record BudgetRecordData
}

func (*BudgetRecord) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeBudgetRecord
}

// UnsuccessfulCandidates lists accounts of working candidates not elected at
// the last maintenance.
type UnsuccessfulCandidates struct {
	objdb.BaseObject
	Candidates []protos.ObjectID
}

func (*UnsuccessfulCandidates) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeUnsuccessfulCandidates
}

type ImmutableChainParameters struct {
	MinCommitteeMemberCount uint16
	MinWitnessCount         uint16
}

type ChainProperty struct {
	objdb.BaseObject
	ChainID             protos.ChainID
	ImmutableParameters ImmutableChainParameters
}

func (*ChainProperty) ObjectType() (uint8, uint8) {
	return protos.ImplementationSpace, protos.ImplTypeChainProperty
}
