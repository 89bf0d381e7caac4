package objects

import (
	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

func notFound(kind string, id interface{}) error {
	return common.ErrObjectNotFound.More("%s %v", kind, id)
}

func GetAccount(db *objdb.Database, id protos.ObjectID) (*Account, error) {
	if a, ok := db.Find(id).(*Account); ok {
		return a, nil
	}
	return nil, notFound("account", id)
}

func AccountByName(db *objdb.Database, name string) (*Account, error) {
	obj, err := db.FindBy(protos.ProtocolSpace, protos.ObjTypeAccount, ByName, objdb.Key(name))
	if err != nil {
		return nil, notFound("account", name)
	}
	return obj.(*Account), nil
}

func GetAccountStatistics(db *objdb.Database, id protos.ObjectID) (*AccountStatistics, error) {
	if s, ok := db.Find(id).(*AccountStatistics); ok {
		return s, nil
	}
	return nil, notFound("account statistics", id)
}

func GetAsset(db *objdb.Database, id protos.ObjectID) (*Asset, error) {
	if a, ok := db.Find(id).(*Asset); ok {
		return a, nil
	}
	return nil, notFound("asset", id)
}

func AssetBySymbol(db *objdb.Database, symbol string) (*Asset, error) {
	obj, err := db.FindBy(protos.ProtocolSpace, protos.ObjTypeAsset, BySymbol, objdb.Key(symbol))
	if err != nil {
		return nil, notFound("asset", symbol)
	}
	return obj.(*Asset), nil
}

func GetDynamicData(db *objdb.Database, a *Asset) (*AssetDynamicData, error) {
	if d, ok := db.Find(a.DynamicAssetDataID).(*AssetDynamicData); ok {
		return d, nil
	}
	return nil, notFound("asset dynamic data", a.DynamicAssetDataID)
}

func GetBitassetData(db *objdb.Database, a *Asset) (*AssetBitassetData, error) {
	if a.BitassetDataID == nil {
		return nil, common.ErrRuleViolation.More("asset %s is not market issued", a.Symbol)
	}
	if b, ok := db.Find(*a.BitassetDataID).(*AssetBitassetData); ok {
		return b, nil
	}
	return nil, notFound("bitasset data", *a.BitassetDataID)
}

func GetWitness(db *objdb.Database, id protos.ObjectID) (*Witness, error) {
	if w, ok := db.Find(id).(*Witness); ok {
		return w, nil
	}
	return nil, notFound("witness", id)
}

func WitnessByAccount(db *objdb.Database, account protos.ObjectID) (*Witness, error) {
	obj, err := db.FindBy(protos.ProtocolSpace, protos.ObjTypeWitness, ByAccount, objdb.Key(account))
	if err != nil {
		return nil, notFound("witness of account", account)
	}
	return obj.(*Witness), nil
}

func GetCommitteeMember(db *objdb.Database, id protos.ObjectID) (*CommitteeMember, error) {
	if c, ok := db.Find(id).(*CommitteeMember); ok {
		return c, nil
	}
	return nil, notFound("committee member", id)
}

func CommitteeMemberByAccount(db *objdb.Database, account protos.ObjectID) (*CommitteeMember, error) {
	obj, err := db.FindBy(protos.ProtocolSpace, protos.ObjTypeCommitteeMember, ByAccount, objdb.Key(account))
	if err != nil {
		return nil, notFound("committee member of account", account)
	}
	return obj.(*CommitteeMember), nil
}

// CandidateByVote resolves a vote id to its witness or committee member.
func CandidateByVote(db *objdb.Database, vote protos.VoteID) (Candidate, error) {
	typ := protos.ObjTypeCommitteeMember
	if vote.Type() == protos.VoteTypeWitness {
		typ = protos.ObjTypeWitness
	}
	obj, err := db.FindBy(protos.ProtocolSpace, typ, ByVoteID, objdb.Key(vote))
	if err != nil {
		return nil, notFound("candidate with vote", vote)
	}
	return obj.(Candidate), nil
}

func GetProposal(db *objdb.Database, id protos.ObjectID) (*Proposal, error) {
	if p, ok := db.Find(id).(*Proposal); ok {
		return p, nil
	}
	return nil, notFound("proposal", id)
}

func GetCrontab(db *objdb.Database, id protos.ObjectID) (*Crontab, error) {
	if c, ok := db.Find(id).(*Crontab); ok {
		return c, nil
	}
	return nil, notFound("crontab", id)
}

func GetContract(db *objdb.Database, id protos.ObjectID) (*Contract, error) {
	if c, ok := db.Find(id).(*Contract); ok {
		return c, nil
	}
	return nil, notFound("contract", id)
}

func ContractByName(db *objdb.Database, name string) (*Contract, error) {
	obj, err := db.FindBy(protos.ProtocolSpace, protos.ObjTypeContract, ByName, objdb.Key(name))
	if err != nil {
		return nil, notFound("contract", name)
	}
	return obj.(*Contract), nil
}

// FindAccountContractData returns nil when the account has no data in the contract.
func FindAccountContractData(db *objdb.Database, account, contract protos.ObjectID) *AccountContractData {
	obj, err := db.FindBy(protos.ImplementationSpace, protos.ImplTypeAccountContractData, ByAccountContract, objdb.Key(account, contract))
	if err != nil {
		return nil
	}
	return obj.(*AccountContractData)
}

func GetNHAsset(db *objdb.Database, id protos.ObjectID) (*NHAsset, error) {
	if a, ok := db.Find(id).(*NHAsset); ok {
		return a, nil
	}
	return nil, notFound("nh asset", id)
}

func NHAssetByHash(db *objdb.Database, h protos.NHHash) (*NHAsset, error) {
	obj, err := db.FindBy(protos.NHAssetSpace, protos.ObjTypeNHAsset, ByNHHash, objdb.Key(h[:]))
	if err != nil {
		return nil, notFound("nh asset", h)
	}
	return obj.(*NHAsset), nil
}

// NHAssetsByOwner lists the assets of owner, grouped by lease state and world view.
func NHAssetsByOwner(db *objdb.Database, owner protos.ObjectID) []*NHAsset {
	objs, _ := db.Prefix(protos.NHAssetSpace, protos.ObjTypeNHAsset, ByOwnerLeaseView, objdb.Key(owner))
	out := make([]*NHAsset, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.(*NHAsset))
	}
	return out
}

// FindNHAssetCreator returns nil when account is not a registered creator.
func FindNHAssetCreator(db *objdb.Database, account protos.ObjectID) *NHAssetCreator {
	obj, err := db.FindBy(protos.NHAssetSpace, protos.ObjTypeNHAssetCreator, ByAccount, objdb.Key(account))
	if err != nil {
		return nil
	}
	return obj.(*NHAssetCreator)
}

func WorldViewByName(db *objdb.Database, name string) (*WorldView, error) {
	obj, err := db.FindBy(protos.NHAssetSpace, protos.ObjTypeWorldView, ByName, objdb.Key(name))
	if err != nil {
		return nil, notFound("world view", name)
	}
	return obj.(*WorldView), nil
}

func TemporaryAuthorities(db *objdb.Database, owner protos.ObjectID) []*TemporaryAuthority {
	objs, _ := db.Prefix(protos.ProtocolSpace, protos.ObjTypeTemporaryAuthority, ByOwnerDescribe, objdb.Key(owner))
	out := make([]*TemporaryAuthority, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.(*TemporaryAuthority))
	}
	return out
}

func FindTemporaryAuthority(db *objdb.Database, owner protos.ObjectID, describe string) *TemporaryAuthority {
	obj, err := db.FindBy(protos.ProtocolSpace, protos.ObjTypeTemporaryAuthority, ByOwnerDescribe, objdb.Key(owner, describe))
	if err != nil {
		return nil
	}
	return obj.(*TemporaryAuthority)
}

func FindTransaction(db *objdb.Database, id protos.TxID) *TransactionObject {
	obj, err := db.FindBy(protos.ImplementationSpace, protos.ImplTypeTransaction, ByTrxID, objdb.Key(id))
	if err != nil {
		return nil
	}
	return obj.(*TransactionObject)
}

func FindTransactionInBlock(db *objdb.Database, id protos.TxID) *TransactionInBlockInfo {
	obj, err := db.FindBy(protos.ImplementationSpace, protos.ImplTypeTransactionInBlockInfo, ByTrxHash, objdb.Key(id))
	if err != nil {
		return nil
	}
	return obj.(*TransactionInBlockInfo)
}

// The singletons below exist from genesis on; a missing one is a corrupted
// state and panics.
func GlobalProperties(db *objdb.Database) *GlobalProperty {
	return db.Find(protos.GlobalPropertyID).(*GlobalProperty)
}

func DynamicGlobalProperties(db *objdb.Database) *DynamicGlobalProperty {
	return db.Find(protos.DynamicGlobalPropertyID).(*DynamicGlobalProperty)
}

func GetWitnessSchedule(db *objdb.Database) *WitnessSchedule {
	return db.Find(protos.WitnessScheduleID).(*WitnessSchedule)
}

func GetUnsuccessfulCandidates(db *objdb.Database) *UnsuccessfulCandidates {
	return db.Find(protos.UnsuccessfulCandidatesID).(*UnsuccessfulCandidates)
}

func ChainProperties(db *objdb.Database) *ChainProperty {
	return db.Find(protos.ChainPropertyID).(*ChainProperty)
}

func CoreAsset(db *objdb.Database) *Asset {
	return db.Find(protos.CoreAssetID).(*Asset)
}

func HeadBlockTime(db *objdb.Database) uint32 {
	return DynamicGlobalProperties(db).Time
}

func findBalance(db *objdb.Database, owner, asset protos.ObjectID) *AccountBalance {
	obj, err := db.FindBy(protos.ImplementationSpace, protos.ImplTypeAccountBalance, ByAccountAsset, objdb.Key(owner, asset))
	if err != nil {
		return nil
	}
	return obj.(*AccountBalance)
}

func GetBalance(db *objdb.Database, owner, asset protos.ObjectID) protos.Share {
	if b := findBalance(db, owner, asset); b != nil {
		return b.Balance
	}
	return 0
}

// AvailableBalance excludes core asset locked for votes and candidacy.
func AvailableBalance(db *objdb.Database, owner, asset protos.ObjectID) protos.Share {
	bal := GetBalance(db, owner, asset)
	if asset != protos.CoreAssetID {
		return bal
	}
	if acc, err := GetAccount(db, owner); err == nil {
		bal -= acc.AssetLocked.Total()
	}
	return bal
}

// AdjustBalance adds delta to owner's balance. A debit may not dip into
// locked core asset.
func AdjustBalance(db *objdb.Database, owner protos.ObjectID, delta protos.AssetAmount) error {
	if delta.Amount == 0 {
		return nil
	}
	if delta.Amount < 0 {
		if avail := AvailableBalance(db, owner, delta.AssetID); avail < -delta.Amount {
			return common.ErrInsufficientBalance.More("account %s has %d of %s, needs %d",
				owner, avail, delta.AssetID, -delta.Amount)
		}
	}
	b := findBalance(db, owner, delta.AssetID)
	if b == nil {
		return errors.Wrap(db.Create(&AccountBalance{Owner: owner, AssetType: delta.AssetID, Balance: delta.Amount}), "create balance")
	}
	return db.Modify(b, func() { b.Balance += delta.Amount })
}
