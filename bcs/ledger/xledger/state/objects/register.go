package objects

import (
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// Secondary index names
const (
	ByName             = "by_name"
	BySymbol           = "by_symbol"
	ByAccount          = "by_account"
	ByAccountAsset     = "by_account_asset"
	ByAssetBalance     = "by_asset_balance"
	ByOwnerDescribe    = "by_owner_describe"
	ByExpiration       = "by_expiration"
	ByNextExecute      = "by_next_execute"
	ByVoteID           = "by_vote_id"
	ByWorkStatusVotes  = "by_work_status_votes"
	ByAccountContract  = "by_account_contract"
	ByTrxID            = "by_trx_id"
	ByTrxHash          = "by_trx_hash"
	BySettlementExpiry = "by_settlement_expiry"
	ByNHHash           = "by_nh_hash"
	ByOwnerLeaseView   = "by_owner_lease_view"
	ByCreatorView      = "by_creator_view"
)

func impl(typ uint8, newFn func() objdb.Object, sec ...objdb.SecondaryIndex) objdb.IndexSpec {
	return objdb.IndexSpec{Space: protos.ImplementationSpace, Type: typ, New: newFn, Secondary: sec}
}

func proto(typ uint8, newFn func() objdb.Object, sec ...objdb.SecondaryIndex) objdb.IndexSpec {
	return objdb.IndexSpec{Space: protos.ProtocolSpace, Type: typ, New: newFn, Secondary: sec}
}

func nhAsset(typ uint8, newFn func() objdb.Object, sec ...objdb.SecondaryIndex) objdb.IndexSpec {
	return objdb.IndexSpec{Space: protos.NHAssetSpace, Type: typ, New: newFn, Secondary: sec}
}

func candidateIndexes(account func(objdb.Object) protos.ObjectID) []objdb.SecondaryIndex {
	return []objdb.SecondaryIndex{
		{Name: ByAccount, Unique: true, Key: func(o objdb.Object) []byte { return objdb.Key(account(o)) }},
		{Name: ByVoteID, Unique: true, Key: func(o objdb.Object) []byte { return objdb.Key(o.(Candidate).Vote()) }},
		{Name: ByWorkStatusVotes, Key: func(o objdb.Object) []byte {
			c := o.(Candidate)
			return objdb.Key(!c.Working(), objdb.Descending(uint64(c.Votes())), c.Vote())
		}},
	}
}

// RegisterIndexes registers every chain object type on db.
func RegisterIndexes(db *objdb.Database) {
	db.RegisterIndex(proto(protos.ObjTypeAccount, func() objdb.Object { return new(Account) },
		objdb.SecondaryIndex{Name: ByName, Unique: true, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*Account).Name)
		}}))
	db.RegisterIndex(proto(protos.ObjTypeAsset, func() objdb.Object { return new(Asset) },
		objdb.SecondaryIndex{Name: BySymbol, Unique: true, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*Asset).Symbol)
		}}))
	db.RegisterIndex(proto(protos.ObjTypeForceSettlement, func() objdb.Object { return new(ForceSettlement) },
		objdb.SecondaryIndex{Name: BySettlementExpiry, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*ForceSettlement).SettlementDate)
		}},
		objdb.SecondaryIndex{Name: ByAccount, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*ForceSettlement).Owner)
		}}))
	db.RegisterIndex(proto(protos.ObjTypeCommitteeMember, func() objdb.Object { return new(CommitteeMember) },
		candidateIndexes(func(o objdb.Object) protos.ObjectID { return o.(*CommitteeMember).CommitteeMemberAccount })...))
	db.RegisterIndex(proto(protos.ObjTypeWitness, func() objdb.Object { return new(Witness) },
		candidateIndexes(func(o objdb.Object) protos.ObjectID { return o.(*Witness).WitnessAccount })...))
	db.RegisterIndex(proto(protos.ObjTypeProposal, func() objdb.Object { return new(Proposal) },
		objdb.SecondaryIndex{Name: ByExpiration, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*Proposal).ExpirationTime)
		}}))
	db.RegisterIndex(proto(protos.ObjTypeContract, func() objdb.Object { return new(Contract) },
		objdb.SecondaryIndex{Name: ByName, Unique: true, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*Contract).Name)
		}}))
	db.RegisterIndex(proto(protos.ObjTypeCrontab, func() objdb.Object { return new(Crontab) },
		objdb.SecondaryIndex{Name: ByExpiration, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*Crontab).ExpirationTime)
		}},
		objdb.SecondaryIndex{Name: ByNextExecute, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*Crontab).NextExecuteTime)
		}},
		objdb.SecondaryIndex{Name: ByAccount, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*Crontab).TaskOwner)
		}}))
	db.RegisterIndex(proto(protos.ObjTypeTemporaryAuthority, func() objdb.Object { return new(TemporaryAuthority) },
		objdb.SecondaryIndex{Name: ByOwnerDescribe, Unique: true, Key: func(o objdb.Object) []byte {
			t := o.(*TemporaryAuthority)
			return objdb.Key(t.Owner, t.Describe)
		}},
		objdb.SecondaryIndex{Name: ByExpiration, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*TemporaryAuthority).ExpirationTime)
		}}))

	db.RegisterIndex(nhAsset(protos.ObjTypeNHAssetCreator, func() objdb.Object { return new(NHAssetCreator) },
		objdb.SecondaryIndex{Name: ByAccount, Unique: true, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*NHAssetCreator).Creator)
		}}))
	db.RegisterIndex(nhAsset(protos.ObjTypeWorldView, func() objdb.Object { return new(WorldView) },
		objdb.SecondaryIndex{Name: ByName, Unique: true, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*WorldView).Name)
		}}))
	db.RegisterIndex(nhAsset(protos.ObjTypeNHAsset, func() objdb.Object { return new(NHAsset) },
		objdb.SecondaryIndex{Name: ByNHHash, Unique: true, Key: func(o objdb.Object) []byte {
			h := o.(*NHAsset).Hash
			return objdb.Key(h[:])
		}},
		objdb.SecondaryIndex{Name: ByOwnerLeaseView, Key: func(o objdb.Object) []byte {
			a := o.(*NHAsset)
			return objdb.Key(a.Owner, a.IsLeasing(), a.WorldView)
		}},
		objdb.SecondaryIndex{Name: ByCreatorView, Key: func(o objdb.Object) []byte {
			a := o.(*NHAsset)
			return objdb.Key(a.Creator, a.WorldView)
		}}))

	db.RegisterIndex(impl(protos.ImplTypeGlobalProperty, func() objdb.Object { return new(GlobalProperty) }))
	db.RegisterIndex(impl(protos.ImplTypeDynamicGlobalProperty, func() objdb.Object { return new(DynamicGlobalProperty) }))
	db.RegisterIndex(impl(protos.ImplTypeAssetDynamicData, func() objdb.Object { return new(AssetDynamicData) }))
	db.RegisterIndex(impl(protos.ImplTypeAssetBitassetData, func() objdb.Object { return new(AssetBitassetData) }))
	db.RegisterIndex(impl(protos.ImplTypeAccountBalance, func() objdb.Object { return new(AccountBalance) },
		objdb.SecondaryIndex{Name: ByAccountAsset, Unique: true, Key: func(o objdb.Object) []byte {
			b := o.(*AccountBalance)
			return objdb.Key(b.Owner, b.AssetType)
		}},
		objdb.SecondaryIndex{Name: ByAssetBalance, Key: func(o objdb.Object) []byte {
			b := o.(*AccountBalance)
			return objdb.Key(b.AssetType, objdb.Descending(uint64(b.Balance)))
		}}))
	db.RegisterIndex(impl(protos.ImplTypeAccountStatistics, func() objdb.Object { return new(AccountStatistics) }))
	db.RegisterIndex(impl(protos.ImplTypeTransaction, func() objdb.Object { return new(TransactionObject) },
		objdb.SecondaryIndex{Name: ByTrxID, Unique: true, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*TransactionObject).TrxID)
		}},
		objdb.SecondaryIndex{Name: ByExpiration, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*TransactionObject).Expiration)
		}}))
	db.RegisterIndex(impl(protos.ImplTypeBlockSummary, func() objdb.Object { return new(BlockSummary) }))
	db.RegisterIndex(impl(protos.ImplTypeWitnessSchedule, func() objdb.Object { return new(WitnessSchedule) }))
	db.RegisterIndex(impl(protos.ImplTypeBudgetRecord, func() objdb.Object { return new(BudgetRecord) }))
	db.RegisterIndex(impl(protos.ImplTypeUnsuccessfulCandidates, func() objdb.Object { return new(UnsuccessfulCandidates) }))
	db.RegisterIndex(impl(protos.ImplTypeAccountContractData, func() objdb.Object { return new(AccountContractData) },
		objdb.SecondaryIndex{Name: ByAccountContract, Unique: true, Key: func(o objdb.Object) []byte {
			d := o.(*AccountContractData)
			return objdb.Key(d.AccountID, d.ContractID)
		}}))
	db.RegisterIndex(impl(protos.ImplTypeTransactionInBlockInfo, func() objdb.Object { return new(TransactionInBlockInfo) },
		objdb.SecondaryIndex{Name: ByTrxHash, Unique: true, Key: func(o objdb.Object) []byte {
			return objdb.Key(o.(*TransactionInBlockInfo).TrxHash)
		}}))
	db.RegisterIndex(impl(protos.ImplTypeChainProperty, func() objdb.Object { return new(ChainProperty) }))
}
