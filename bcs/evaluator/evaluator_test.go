package evaluator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/bcs/market"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/mock"
	"github.com/xuperchain/xupergraph/protos"
)

type fixture struct {
	t     *testing.T
	chain *mock.Chain
	reg   *evaluator.Registry
}

func newFixture(t *testing.T, extra ...string) *fixture {
	reg := evaluator.NewRegistry()
	RegisterAll(reg)
	chain, err := mock.NewChain(reg, mock.NewGenesis(3, extra...))
	require.NoError(t, err)
	return &fixture{t: t, chain: chain, reg: reg}
}

func (f *fixture) state() *evaluator.TrxState {
	return evaluator.NewTrxState(f.chain, &protos.SignedTransaction{}, evaluator.PushMode, evaluator.SkipNothing)
}

// run validates and applies op inside its own undo session, like the
// transaction engine does.
func (f *fixture) run(op protos.Operation) (protos.OperationResult, error) {
	return f.runIn(f.state(), op)
}

func (f *fixture) runIn(st *evaluator.TrxState, op protos.Operation) (protos.OperationResult, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	session := f.chain.DB().StartUndoSession(true)
	defer session.Release()
	res, err := f.reg.Run(st, op)
	if err != nil {
		session.Undo()
		return nil, err
	}
	session.Merge()
	return res, nil
}

func (f *fixture) mustRun(op protos.Operation) protos.OperationResult {
	res, err := f.run(op)
	require.NoError(f.t, err, "%s", op.OpType())
	return res
}

func (f *fixture) balance(name string, asset protos.ObjectID) protos.Share {
	return objects.GetBalance(f.chain.DB(), f.chain.Account(name), asset)
}

func uiaOptions(maxSupply protos.Share, perms uint16) protos.AssetOptions {
	return protos.AssetOptions{
		MaxSupply:         maxSupply,
		IssuerPermissions: perms,
		CoreExchangeRate: protos.Price{
			Base:  protos.NewAsset(1, protos.ObjectID{}),
			Quote: protos.NewAsset(1, protos.CoreAssetID),
		},
	}
}

func (f *fixture) createAsset(issuer, symbol string, opts protos.AssetOptions, bitasset *protos.BitassetOptions) protos.ObjectID {
	res := f.mustRun(&protos.AssetCreateOperation{
		Issuer:        f.chain.Account(issuer),
		Symbol:        symbol,
		Precision:     4,
		CommonOptions: opts,
		BitassetOpts:  bitasset,
	})
	return res.(*protos.ObjectIDResult).ID
}

func TestTransferMovesBalanceAndChargesFee(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	db := f.chain.DB()
	gpo := objects.GlobalProperties(db)
	require.NoError(t, db.Modify(gpo, func() {
		gpo.Parameters.CurrentFees = []protos.OpFee{{OpType: uint8(protos.OpTransfer), Fee: 20}}
	}))
	coreBefore, err := objects.GetDynamicData(db, objects.CoreAsset(db))
	require.NoError(t, err)
	feesBefore := coreBefore.AccumulatedFees
	alice, err := objects.GetAccount(db, f.chain.Account("alice"))
	require.NoError(t, err)
	stats, err := objects.GetAccountStatistics(db, alice.Statistics)
	require.NoError(t, err)
	opsBefore := stats.TotalOps

	_, err = f.run(&protos.TransferOperation{
		Fee:    protos.NewAsset(10, protos.CoreAssetID),
		From:   f.chain.Account("alice"),
		To:     f.chain.Account("bob"),
		Amount: protos.NewAsset(1000, protos.CoreAssetID),
	})
	require.True(t, common.Is(err, common.ErrInsufficientFee), "got %v", err)

	res := f.mustRun(&protos.TransferOperation{
		Fee:    protos.NewAsset(20, protos.CoreAssetID),
		From:   f.chain.Account("alice"),
		To:     f.chain.Account("bob"),
		Amount: protos.NewAsset(1000, protos.CoreAssetID),
	})
	require.Equal(t, protos.ResultVoid, res.ResultType())
	require.Equal(t, mock.InitialBalance-1020, f.balance("alice", protos.CoreAssetID))
	require.Equal(t, mock.InitialBalance+1000, f.balance("bob", protos.CoreAssetID))

	core, err := objects.GetDynamicData(db, objects.CoreAsset(db))
	require.NoError(t, err)
	require.Equal(t, feesBefore+20, core.AccumulatedFees)
	stats, err = objects.GetAccountStatistics(db, alice.Statistics)
	require.NoError(t, err)
	require.Equal(t, opsBefore+1, stats.TotalOps)
	require.Equal(t, protos.Share(20), stats.LifetimeFeesPaid)
}

func TestTransferRejectsOverdraftAndRestrictedAsset(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	_, err := f.run(&protos.TransferOperation{
		From:   f.chain.Account("alice"),
		To:     f.chain.Account("bob"),
		Amount: protos.NewAsset(mock.InitialBalance+1, protos.CoreAssetID),
	})
	require.True(t, common.Is(err, common.ErrInsufficientBalance), "got %v", err)

	perms := protos.TransferRestrict
	opts := uiaOptions(1000000, perms)
	opts.Flags = protos.TransferRestrict
	gold := f.createAsset("alice", "GOLD", opts, nil)
	f.mustRun(&protos.AssetIssueOperation{
		Issuer:         f.chain.Account("alice"),
		AssetToIssue:   protos.NewAsset(500, gold),
		IssueToAccount: f.chain.Account("bob"),
	})
	_, err = f.run(&protos.TransferOperation{
		From:   f.chain.Account("bob"),
		To:     f.chain.Account("carol"),
		Amount: protos.NewAsset(100, gold),
	})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
	f.mustRun(&protos.TransferOperation{
		From:   f.chain.Account("bob"),
		To:     f.chain.Account("alice"),
		Amount: protos.NewAsset(100, gold),
	})
	require.Equal(t, protos.Share(100), f.balance("alice", gold))
}

func TestAccountCreate(t *testing.T) {
	f := newFixture(t, "alice")
	_, key := mock.Key("dave")
	create := &protos.AccountCreateOperation{
		Registrar: f.chain.Account("alice"),
		Name:      "dave",
		Owner:     protos.NewKeyAuthority(1, key),
		Active:    protos.NewKeyAuthority(1, key),
	}
	res := f.mustRun(create)
	id := res.(*protos.ObjectIDResult).ID
	require.Equal(t, id, f.chain.Account("dave"))

	dave, err := objects.GetAccount(f.chain.DB(), id)
	require.NoError(t, err)
	stats, err := objects.GetAccountStatistics(f.chain.DB(), dave.Statistics)
	require.NoError(t, err)
	require.Equal(t, id, stats.Owner)
	require.False(t, dave.IsLifetimeMember())

	_, err = f.run(create)
	require.True(t, common.Is(err, common.ErrNameTaken), "got %v", err)

	// dave is no lifetime member and cannot register
	_, err = f.run(&protos.AccountCreateOperation{
		Registrar: id,
		Name:      "erin",
		Owner:     protos.NewKeyAuthority(1, key),
		Active:    protos.NewKeyAuthority(1, key),
	})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	f.mustRun(&protos.AccountUpgradeOperation{AccountToUpgrade: id, UpgradeToLifetimeMember: true})
	_, err = f.run(&protos.AccountUpgradeOperation{AccountToUpgrade: id, UpgradeToLifetimeMember: true})
	require.Error(t, err)
}

func witnessVote(t *testing.T, f *fixture, i int) (protos.ObjectID, protos.VoteID) {
	w, err := objects.WitnessByAccount(f.chain.DB(), f.chain.Account(mock.WitnessName(i)))
	require.NoError(t, err)
	return w.ID(), w.VoteID
}

func witnessVotes(t *testing.T, f *fixture, id protos.ObjectID) protos.Share {
	w, err := objects.GetWitness(f.chain.DB(), id)
	require.NoError(t, err)
	return w.TotalVotes
}

func TestVoteLockReplacesPreviousVotes(t *testing.T) {
	f := newFixture(t, "alice")
	freeze := objects.GlobalProperties(f.chain.DB()).Parameters.WitnessCandidateFreeze
	w0, v0 := witnessVote(t, f, 0)
	w1, v1 := witnessVote(t, f, 1)
	alice := f.chain.Account("alice")

	vote := func(amount protos.Share, votes ...protos.VoteID) error {
		_, err := f.run(&protos.AccountUpdateOperation{
			Account:      alice,
			NewOptions:   &protos.AccountOptions{Votes: votes},
			LockWithVote: &protos.VoteLock{VoteType: protos.VoteTypeWitness, Amount: protos.NewAsset(amount, protos.CoreAssetID)},
		})
		return err
	}

	require.NoError(t, vote(500, v0))
	require.Equal(t, freeze+500, witnessVotes(t, f, w0))

	require.NoError(t, vote(300, v1))
	require.Equal(t, freeze, witnessVotes(t, f, w0))
	require.Equal(t, freeze+300, witnessVotes(t, f, w1))

	require.NoError(t, vote(200, v0, v1))
	require.Equal(t, freeze+200, witnessVotes(t, f, w0))
	require.Equal(t, freeze+200, witnessVotes(t, f, w1))

	acc, err := objects.GetAccount(f.chain.DB(), alice)
	require.NoError(t, err)
	require.Equal(t, protos.Share(200), acc.AssetLocked.VoteForWitness)
	require.Equal(t, mock.InitialBalance-200, objects.AvailableBalance(f.chain.DB(), alice, protos.CoreAssetID))

	err = vote(mock.InitialBalance+1, v0)
	require.True(t, common.Is(err, common.ErrInsufficientBalance), "got %v", err)

	err = vote(1, protos.NewVoteID(protos.VoteTypeWitness, 999))
	require.True(t, common.Is(err, common.ErrObjectNotFound), "got %v", err)

	// an empty vote set releases the lock
	require.NoError(t, vote(200))
	require.Equal(t, freeze, witnessVotes(t, f, w0))
	require.Equal(t, freeze, witnessVotes(t, f, w1))
	acc, err = objects.GetAccount(f.chain.DB(), alice)
	require.NoError(t, err)
	require.Equal(t, protos.Share(0), acc.AssetLocked.VoteForWitness)
}

func TestWitnessResignAndRejoin(t *testing.T) {
	f := newFixture(t, "alice")
	db := f.chain.DB()
	freeze := objects.GlobalProperties(db).Parameters.WitnessCandidateFreeze
	w0, _ := witnessVote(t, f, 0)
	owner := f.chain.Account(mock.WitnessName(0))

	update := func(status uint8) error {
		_, err := f.run(&protos.WitnessUpdateOperation{Witness: w0, WitnessAccount: owner, WorkStatus: status})
		return err
	}
	require.True(t, common.Is(update(protos.WorkStatusWorking), common.ErrRuleViolation))

	require.NoError(t, update(protos.WorkStatusResigned))
	w, err := objects.GetWitness(db, w0)
	require.NoError(t, err)
	require.False(t, w.WorkStatus)
	require.Equal(t, protos.Share(0), w.TotalVotes)
	acc, err := objects.GetAccount(db, owner)
	require.NoError(t, err)
	require.Equal(t, protos.Share(0), acc.AssetLocked.WitnessFreeze)

	require.NoError(t, update(protos.WorkStatusWorking))
	w, err = objects.GetWitness(db, w0)
	require.NoError(t, err)
	require.True(t, w.WorkStatus)
	require.Equal(t, freeze, w.TotalVotes)

	// someone else cannot touch the witness
	_, err = f.run(&protos.WitnessUpdateOperation{Witness: w0, WitnessAccount: f.chain.Account("alice")})
	require.True(t, common.Is(err, common.ErrUnauthorized), "got %v", err)

	res := f.mustRun(&protos.WitnessCreateOperation{WitnessAccount: f.chain.Account("alice"), BlockSigningKey: mockKey("alice")})
	created, err := objects.GetWitness(db, res.(*protos.ObjectIDResult).ID)
	require.NoError(t, err)
	require.Equal(t, freeze, created.TotalVotes)
	_, err = f.run(&protos.WitnessCreateOperation{WitnessAccount: f.chain.Account("alice"), BlockSigningKey: mockKey("alice")})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
}

func mockKey(name string) protos.PublicKey {
	_, pub := mock.Key(name)
	return pub
}

func TestResignKeepsMinimumWitnesses(t *testing.T) {
	f := newFixture(t)
	db := f.chain.DB()
	cp := objects.ChainProperties(db)
	require.NoError(t, db.Modify(cp, func() { cp.ImmutableParameters.MinWitnessCount = 3 }))
	w0, _ := witnessVote(t, f, 0)
	_, err := f.run(&protos.WitnessUpdateOperation{
		Witness:        w0,
		WitnessAccount: f.chain.Account(mock.WitnessName(0)),
		WorkStatus:     protos.WorkStatusResigned,
	})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
}

func TestUserIssuedAssetLifecycle(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	db := f.chain.DB()
	gold := f.createAsset("alice", "GOLD", uiaOptions(1000, protos.UIAIssuerPermissionMask), nil)
	asset, err := objects.GetAsset(db, gold)
	require.NoError(t, err)
	require.Equal(t, gold, asset.Options.CoreExchangeRate.Base.AssetID)

	_, err = f.run(&protos.AssetCreateOperation{
		Issuer: f.chain.Account("bob"), Symbol: "GOLD.BAR", CommonOptions: uiaOptions(10, 0),
	})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
	f.createAsset("alice", "GOLD.BAR", uiaOptions(10, 0), nil)

	f.mustRun(&protos.AssetIssueOperation{
		Issuer: f.chain.Account("alice"), AssetToIssue: protos.NewAsset(800, gold), IssueToAccount: f.chain.Account("bob"),
	})
	_, err = f.run(&protos.AssetIssueOperation{
		Issuer: f.chain.Account("alice"), AssetToIssue: protos.NewAsset(201, gold), IssueToAccount: f.chain.Account("bob"),
	})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
	_, err = f.run(&protos.AssetIssueOperation{
		Issuer: f.chain.Account("bob"), AssetToIssue: protos.NewAsset(1, gold), IssueToAccount: f.chain.Account("bob"),
	})
	require.True(t, common.Is(err, common.ErrUnauthorized), "got %v", err)

	f.mustRun(&protos.AssetReserveOperation{Payer: f.chain.Account("bob"), AmountToReserve: protos.NewAsset(300, gold)})
	dyn, err := objects.GetDynamicData(db, asset)
	require.NoError(t, err)
	require.Equal(t, protos.Share(500), dyn.CurrentSupply)
	require.Equal(t, protos.Share(500), f.balance("bob", gold))

	// supply outstanding: dropped permissions stay dropped
	opts := asset.Options
	opts.IssuerPermissions = protos.ChargeMarketFee
	f.mustRun(&protos.AssetUpdateOperation{Issuer: f.chain.Account("alice"), AssetToUpdate: gold, NewOptions: opts})
	opts.IssuerPermissions = protos.ChargeMarketFee | protos.WhiteList
	_, err = f.run(&protos.AssetUpdateOperation{Issuer: f.chain.Account("alice"), AssetToUpdate: gold, NewOptions: opts})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	bob := f.chain.Account("bob")
	opts.IssuerPermissions = protos.ChargeMarketFee
	f.mustRun(&protos.AssetUpdateOperation{Issuer: f.chain.Account("alice"), AssetToUpdate: gold, NewIssuer: &bob, NewOptions: opts})
	asset, err = objects.GetAsset(db, gold)
	require.NoError(t, err)
	require.Equal(t, bob, asset.Issuer)
}

func bitassetOptions() *protos.BitassetOptions {
	return &protos.BitassetOptions{
		FeedLifetimeSec:              3600,
		MinimumFeeds:                 1,
		ForceSettlementDelaySec:      600,
		MaximumForceSettlementVolume: 2000,
		ShortBackingAsset:            protos.CoreAssetID,
	}
}

func TestGlobalSettlementPaysExactFund(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	db := f.chain.DB()
	alice, bob := f.chain.Account("alice"), f.chain.Account("bob")
	usd := f.createAsset("alice", "USD", uiaOptions(1000000, protos.AssetIssuerPermissionMask), bitassetOptions())
	f.mustRun(&protos.AssetIssueOperation{Issuer: alice, AssetToIssue: protos.NewAsset(1000, usd), IssueToAccount: bob})

	price := protos.Price{Base: protos.NewAsset(1000, usd), Quote: protos.NewAsset(2999, protos.CoreAssetID)}
	_, err := f.run(&protos.AssetGlobalSettleOperation{Issuer: bob, AssetToSettle: usd, SettlePrice: price})
	require.True(t, common.Is(err, common.ErrUnauthorized), "got %v", err)
	f.mustRun(&protos.AssetGlobalSettleOperation{Issuer: alice, AssetToSettle: usd, SettlePrice: price})
	require.Equal(t, mock.InitialBalance-2999, f.balance("alice", protos.CoreAssetID))

	asset, err := objects.GetAsset(db, usd)
	require.NoError(t, err)
	bitasset, err := objects.GetBitassetData(db, asset)
	require.NoError(t, err)
	require.True(t, bitasset.HasSettlement())
	require.Equal(t, protos.Share(2999), bitasset.SettlementFund)

	// 333 * 2999 / 1000 rounds down
	res := f.mustRun(&protos.AssetSettleOperation{Account: bob, Amount: protos.NewAsset(333, usd)})
	require.Equal(t, protos.NewAsset(998, protos.CoreAssetID), res.(*protos.AssetResult).Amount)
	res = f.mustRun(&protos.AssetSettleOperation{Account: bob, Amount: protos.NewAsset(667, usd)})
	require.Equal(t, protos.NewAsset(2001, protos.CoreAssetID), res.(*protos.AssetResult).Amount)

	bitasset, err = objects.GetBitassetData(db, asset)
	require.NoError(t, err)
	require.Equal(t, protos.Share(0), bitasset.SettlementFund)
	dyn, err := objects.GetDynamicData(db, asset)
	require.NoError(t, err)
	require.Equal(t, protos.Share(0), dyn.CurrentSupply)
	require.Equal(t, mock.InitialBalance+2999, f.balance("bob", protos.CoreAssetID))
	require.Equal(t, protos.Share(0), f.balance("bob", usd))
}

func TestForceSettlementWithoutOrderBookIsRefunded(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	db := f.chain.DB()
	alice, bob := f.chain.Account("alice"), f.chain.Account("bob")
	usd := f.createAsset("alice", "USD", uiaOptions(1000000, protos.AssetIssuerPermissionMask), bitassetOptions())
	f.mustRun(&protos.AssetIssueOperation{Issuer: alice, AssetToIssue: protos.NewAsset(1000, usd), IssueToAccount: bob})

	// no feed yet
	_, err := f.run(&protos.AssetSettleOperation{Account: bob, Amount: protos.NewAsset(100, usd)})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	feed := protos.PriceFeed{
		SettlementPrice:            protos.Price{Base: protos.NewAsset(1, usd), Quote: protos.NewAsset(3, protos.CoreAssetID)},
		MaintenanceCollateralRatio: 1750,
		MaximumShortSqueezeRatio:   1500,
	}
	_, err = f.run(&protos.AssetPublishFeedOperation{Publisher: bob, AssetID: usd, Feed: feed})
	require.True(t, common.Is(err, common.ErrUnauthorized), "got %v", err)
	f.mustRun(&protos.AssetUpdateFeedProducersOperation{Issuer: alice, AssetToUpdate: usd, NewFeedProducers: []protos.ObjectID{bob}})
	f.mustRun(&protos.AssetPublishFeedOperation{Publisher: bob, AssetID: usd, Feed: feed})

	res := f.mustRun(&protos.AssetSettleOperation{Account: bob, Amount: protos.NewAsset(100, usd)})
	orderID := res.(*protos.ObjectIDResult).ID
	require.Equal(t, protos.Share(900), f.balance("bob", usd))
	order, ok := db.Find(orderID).(*objects.ForceSettlement)
	require.True(t, ok)
	require.Equal(t, mock.GenesisTimestamp+600, order.SettlementDate)

	mkt := market.NewMarket(nil, f.chain.Logger())
	require.NoError(t, mkt.ClearExpiredSettlements(db, mock.GenesisTimestamp+599))
	require.NotNil(t, db.Find(orderID))
	require.NoError(t, mkt.ClearExpiredSettlements(db, mock.GenesisTimestamp+600))
	require.Nil(t, db.Find(orderID))
	require.Equal(t, protos.Share(1000), f.balance("bob", usd))
}

func TestUpdateGlobalParametersOnlyAsAgreedTask(t *testing.T) {
	f := newFixture(t)
	op := &protos.CommitteeMemberUpdateGlobalParametersOperation{
		Overrides: []protos.ParameterOverride{{Name: "maximum_transaction_size", Value: "4096"}},
	}
	_, err := f.run(op)
	require.True(t, common.Is(err, common.ErrAgreedTask), "got %v", err)

	st := f.state()
	st.IsAgreedTask = true
	_, err = f.runIn(st, op)
	require.NoError(t, err)
	gpo := objects.GlobalProperties(f.chain.DB())
	require.NotNil(t, gpo.PendingParameters)
	require.Equal(t, uint32(4096), gpo.PendingParameters.MaximumTransactionSize)
	require.NotEqual(t, uint32(4096), gpo.Parameters.MaximumTransactionSize)

	bad := &protos.CommitteeMemberUpdateGlobalParametersOperation{
		Overrides: []protos.ParameterOverride{{Name: "witness_number_of_election", Value: "7"}},
	}
	st = f.state()
	st.IsAgreedTask = true
	_, err = f.runIn(st, bad)
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
}

func TestTemporaryAuthority(t *testing.T) {
	f := newFixture(t, "alice")
	alice := f.chain.Account("alice")
	tmp := mockKey("alice-temp")
	res := f.mustRun(&protos.TemporaryAuthorityChangeOperation{
		Owner: alice, Describe: "phone", TemporaryActive: &tmp, ExpirationTime: mock.GenesisTimestamp + 100,
	})
	id := res.(*protos.ObjectIDResult).ID
	require.Len(t, objects.TemporaryAuthorities(f.chain.DB(), alice), 1)

	st := f.state()
	st.SigKeys = []protos.PublicKey{tmp}
	_, err := f.runIn(st, &protos.TemporaryAuthorityChangeOperation{Owner: alice, Describe: "phone"})
	require.True(t, common.Is(err, common.ErrUnauthorized), "got %v", err)

	_, err = f.run(&protos.TemporaryAuthorityChangeOperation{
		Owner: alice, Describe: "laptop", TemporaryActive: &tmp, ExpirationTime: mock.GenesisTimestamp,
	})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	f.mustRun(&protos.TemporaryAuthorityChangeOperation{Owner: alice, Describe: "phone"})
	require.Nil(t, f.chain.DB().Find(id))
}
