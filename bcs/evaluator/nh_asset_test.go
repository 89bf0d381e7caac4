package evaluator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/protos"
)

// nhCreator registers name as a creator with one world view.
func (f *fixture) nhCreator(name, view string) {
	f.mustRun(&protos.RegisterNHAssetCreatorOperation{FeePayingAccount: f.chain.Account(name)})
	f.mustRun(&protos.CreateWorldViewOperation{FeePayingAccount: f.chain.Account(name), WorldView: view})
}

func (f *fixture) mintNH(creator, owner, view, describe string) protos.ObjectID {
	op := &protos.CreateNHAssetOperation{
		FeePayingAccount: f.chain.Account(creator),
		AssetSymbol:      "XGR",
		WorldView:        view,
		BaseDescribe:     describe,
	}
	if owner != "" {
		op.Owner = f.chain.Account(owner)
	}
	return f.mustRun(op).(*protos.ObjectIDResult).ID
}

func TestRegisterCreatorAndWorldView(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	db := f.chain.DB()
	alice := f.chain.Account("alice")

	_, err := f.run(&protos.CreateWorldViewOperation{FeePayingAccount: alice, WorldView: "forest"})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	f.mustRun(&protos.RegisterNHAssetCreatorOperation{FeePayingAccount: alice})
	_, err = f.run(&protos.RegisterNHAssetCreatorOperation{FeePayingAccount: alice})
	require.True(t, common.Is(err, common.ErrNameTaken), "got %v", err)

	res := f.mustRun(&protos.CreateWorldViewOperation{FeePayingAccount: alice, WorldView: "forest"})
	wv, err := objects.WorldViewByName(db, "forest")
	require.NoError(t, err)
	require.Equal(t, res.(*protos.ObjectIDResult).ID, wv.ID())
	creator := objects.FindNHAssetCreator(db, alice)
	require.NotNil(t, creator)
	require.Equal(t, []string{"forest"}, creator.WorldViews)
	require.Equal(t, []protos.ObjectID{creator.ID()}, wv.RelatedCreators)

	f.mustRun(&protos.RegisterNHAssetCreatorOperation{FeePayingAccount: f.chain.Account("bob")})
	_, err = f.run(&protos.CreateWorldViewOperation{FeePayingAccount: f.chain.Account("bob"), WorldView: "forest"})
	require.True(t, common.Is(err, common.ErrNameTaken), "got %v", err)
	_, err = f.run(&protos.CreateWorldViewOperation{FeePayingAccount: alice, WorldView: "9lives"})
	require.Error(t, err)
}

func TestCreateNHAsset(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	db := f.chain.DB()
	f.nhCreator("alice", "forest")
	f.mustRun(&protos.RegisterNHAssetCreatorOperation{FeePayingAccount: f.chain.Account("bob")})

	id := f.mintNH("alice", "", "forest", `{"hp":10}`)
	a, err := objects.GetNHAsset(db, id)
	require.NoError(t, err)
	alice := f.chain.Account("alice")
	require.Equal(t, alice, a.Creator)
	require.Equal(t, alice, a.Owner)
	require.Equal(t, alice, a.Active)
	require.Equal(t, alice, a.Dealership)
	require.Equal(t, "XGR", a.AssetQualifier)
	require.Equal(t, objects.HeadBlockTime(db), a.CreateTime)
	require.Equal(t, protos.NewNHHash(`{"hp":10}`, id.Instance), a.Hash)
	byHash, err := objects.NHAssetByHash(db, a.Hash)
	require.NoError(t, err)
	require.Equal(t, id, byHash.ID())

	// same describe, different instance, different hash
	other := f.mintNH("alice", "bob", "forest", `{"hp":10}`)
	b, err := objects.GetNHAsset(db, other)
	require.NoError(t, err)
	require.NotEqual(t, a.Hash, b.Hash)
	require.Len(t, objects.NHAssetsByOwner(db, f.chain.Account("bob")), 1)

	for _, op := range []*protos.CreateNHAssetOperation{
		// bob never declared the world view
		{FeePayingAccount: f.chain.Account("bob"), AssetSymbol: "XGR", WorldView: "forest", BaseDescribe: "x"},
		{FeePayingAccount: alice, AssetSymbol: "XGR", WorldView: "desert", BaseDescribe: "x"},
	} {
		_, err = f.run(op)
		require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
	}
	_, err = f.run(&protos.CreateNHAssetOperation{FeePayingAccount: alice, AssetSymbol: "NOPE", WorldView: "forest", BaseDescribe: "x"})
	require.True(t, common.Is(err, common.ErrObjectNotFound), "got %v", err)
}

func TestTransferAndDeleteNHAsset(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	db := f.chain.DB()
	f.nhCreator("alice", "forest")
	id := f.mintNH("alice", "", "forest", "shield")
	alice, bob := f.chain.Account("alice"), f.chain.Account("bob")

	_, err := f.run(&protos.TransferNHAssetOperation{From: bob, To: alice, NHAsset: id})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	f.mustRun(&protos.TransferNHAssetOperation{From: alice, To: bob, NHAsset: id})
	a, err := objects.GetNHAsset(db, id)
	require.NoError(t, err)
	require.Equal(t, bob, a.Owner)
	require.Equal(t, bob, a.Active)
	require.Equal(t, bob, a.Dealership)
	require.Equal(t, alice, a.Creator)
	require.Empty(t, objects.NHAssetsByOwner(db, alice))

	// a leased asset stays with its owner
	require.NoError(t, db.Modify(a, func() { a.Active = alice }))
	_, err = f.run(&protos.TransferNHAssetOperation{From: bob, To: alice, NHAsset: id})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	_, err = f.run(&protos.DeleteNHAssetOperation{FeePayingAccount: alice, NHAsset: id})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
	f.mustRun(&protos.DeleteNHAssetOperation{FeePayingAccount: bob, NHAsset: id})
	_, err = objects.GetNHAsset(db, id)
	require.True(t, common.Is(err, common.ErrObjectNotFound), "got %v", err)
}

func TestRelateNHAsset(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	db := f.chain.DB()
	f.nhCreator("alice", "forest")
	f.nhCreator("bob", "desert")
	alice := f.chain.Account("alice")
	parent := f.mintNH("alice", "", "forest", "hero")
	child := f.mintNH("alice", "", "forest", "sword")
	stranger := f.mintNH("bob", "", "desert", "sand")
	contract := &objects.Contract{Owner: alice, Name: "contract.game"}
	require.NoError(t, db.Create(contract))

	relate := func(p, c protos.ObjectID, on bool) error {
		_, err := f.run(&protos.RelateNHAssetOperation{
			NHAssetCreator: alice, Parent: p, Child: c, Contract: contract.ID(), Relate: on,
		})
		return err
	}

	err := relate(parent, child, false)
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
	require.NoError(t, relate(parent, child, true))
	err = relate(parent, child, true)
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	p, _ := objects.GetNHAsset(db, parent)
	c, _ := objects.GetNHAsset(db, child)
	require.True(t, objects.Related(p.Child, contract.ID(), child))
	require.True(t, objects.Related(c.Parent, contract.ID(), parent))

	err = relate(parent, stranger, true)
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	require.NoError(t, relate(parent, child, false))
	p, _ = objects.GetNHAsset(db, parent)
	c, _ = objects.GetNHAsset(db, child)
	require.Empty(t, p.Child)
	require.Empty(t, c.Parent)
}
