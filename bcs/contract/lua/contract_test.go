package lua

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xuperchain/xupergraph/bcs/evaluator"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/contract/sandbox"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	kevaluator "github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/mock"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

const walletSource = `
function deposit(amount)
	chainhelper:transfer_from_caller(contract_base_info.owner, amount, "XGR", true)
	read_list = {public_data = {total = true}, private_data = {paid = true}}
	chainhelper:read_chain()
	public_data.total = (public_data.total or 0) + amount
	private_data.paid = (private_data.paid or 0) + amount
	write_list = {public_data = {total = true}, private_data = {paid = true}}
	chainhelper:write_chain()
end

function lucky()
	chainhelper:log("draw " .. chainhelper:random())
	chainhelper:invoke_contract_function("contract.echo", "echo", "[\"nested\"]")
end

function release()
	chainhelper:make_release()
end

function bloat(n)
	private_data.blob = string.rep("x", n)
	write_list = {private_data = {blob = true}}
	chainhelper:write_chain()
end

function crash()
	chainhelper:invoke_contract_function("contract.nobody", "x", "[]")
end
`

const echoSource = `
function echo(v)
	chainhelper:log("echo " .. v .. " " .. chainhelper:random())
end
`

type fixture struct {
	t     *testing.T
	chain *mock.Chain
	reg   *kevaluator.Registry
	mgr   *Manager
	nonce uint32
}

func newFixture(t *testing.T) *fixture {
	log, err := logs.NewLogger("", "lua_test")
	require.NoError(t, err)
	reg := kevaluator.NewRegistry()
	evaluator.RegisterAll(reg)

	cipher, err := sandbox.NewCipher(protos.ChainID{}, "")
	require.NoError(t, err)
	vm, err := sandbox.NewVM(sandbox.DefaultVMConfig(), cipher, log)
	require.NoError(t, err)
	ctx, err := NewLuaCtx("xgraph", reg, vm)
	require.NoError(t, err)
	mgr, err := NewContractManager(ctx)
	require.NoError(t, err)

	chain, err := mock.NewChain(reg, mock.NewGenesis(1, "alice", "bob"))
	require.NoError(t, err)
	return &fixture{t: t, chain: chain, reg: reg, mgr: mgr}
}

// state returns the state of a fresh transaction; each gets its own id.
func (f *fixture) state(mode kevaluator.RunMode) *kevaluator.TrxState {
	f.nonce++
	trx := &protos.SignedTransaction{Transaction: protos.Transaction{Expiration: f.nonce}}
	return kevaluator.NewTrxState(f.chain, trx, mode, kevaluator.SkipNothing)
}

func (f *fixture) runIn(st *kevaluator.TrxState, op protos.Operation) (protos.OperationResult, error) {
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

func (f *fixture) run(op protos.Operation) (protos.OperationResult, error) {
	return f.runIn(f.state(kevaluator.PushMode), op)
}

var zeroFee = protos.NewAsset(0, protos.CoreAssetID)

func (f *fixture) deploy(owner, name, source string, authority protos.PublicKey) protos.ObjectID {
	res, err := f.run(&protos.ContractCreateOperation{
		Fee: zeroFee, Owner: f.chain.Account(owner), Name: name, Data: source, ContractAuthority: authority,
	})
	require.NoError(f.t, err)
	return res.(*protos.ObjectIDResult).ID
}

func (f *fixture) callOp(caller string, contract protos.ObjectID, fn string, args ...protos.LuaValue) *protos.CallContractFunctionOperation {
	return &protos.CallContractFunctionOperation{
		Fee: zeroFee, Caller: f.chain.Account(caller), ContractID: contract, FunctionName: fn, ValueList: args,
	}
}

func messages(t *testing.T, r *protos.ContractResult) []string {
	var out []string
	for _, a := range r.ContractAffecteds {
		if a.Kind == protos.AffectedLogger {
			l, err := a.Logger()
			require.NoError(t, err)
			out = append(out, l.Message)
		}
	}
	return out
}

func TestCreateContract(t *testing.T) {
	f := newFixture(t)
	id := f.deploy("alice", "contract.wallet", walletSource, protos.PublicKey{})

	c, err := objects.GetContract(f.chain.DB(), id)
	require.NoError(t, err)
	require.Equal(t, []string{"bloat", "crash", "deposit", "lucky", "release"}, c.ContractABI)
	require.Equal(t, f.chain.Account("alice"), c.Owner)

	_, err = f.run(&protos.ContractCreateOperation{
		Fee: zeroFee, Owner: f.chain.Account("bob"), Name: "contract.wallet", Data: echoSource,
	})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	_, err = f.run(&protos.ContractCreateOperation{
		Fee: zeroFee, Owner: f.chain.Account("bob"), Name: "contract.broken", Data: "function (",
	})
	require.True(t, common.Is(err, common.ErrContractError), "got %v", err)
	_, err = objects.ContractByName(f.chain.DB(), "contract.broken")
	require.Error(t, err)
}

func TestCallPersistsData(t *testing.T) {
	f := newFixture(t)
	id := f.deploy("alice", "contract.wallet", walletSource, protos.PublicKey{})
	db := f.chain.DB()
	aliceBefore := objects.GetBalance(db, f.chain.Account("alice"), protos.CoreAssetID)

	for i := 0; i < 2; i++ {
		res, err := f.run(f.callOp("bob", id, "deposit", protos.LuaInt(50)))
		require.NoError(t, err)
		cr := res.(*protos.ContractResult)
		require.Equal(t, id, cr.ContractID)
		require.False(t, cr.ExistedPV)
	}

	require.Equal(t, aliceBefore+100, objects.GetBalance(db, f.chain.Account("alice"), protos.CoreAssetID))
	require.Equal(t, mock.InitialBalance-100, objects.GetBalance(db, f.chain.Account("bob"), protos.CoreAssetID))

	c, _ := objects.GetContract(db, id)
	total, _ := c.ContractData.Get(protos.LuaString("total"))
	require.Equal(t, int64(100), total.Int())
	acd := objects.FindAccountContractData(db, f.chain.Account("bob"), id)
	require.NotNil(t, acd)
	paid, _ := acd.ContractData.Get(protos.LuaString("paid"))
	require.Equal(t, int64(100), paid.Int())

	// a failed call leaves nothing behind
	_, err := f.run(f.callOp("bob", id, "deposit", protos.LuaInt(int64(mock.InitialBalance))))
	require.True(t, common.Is(err, common.ErrInsufficientBalance), "got %v", err)
	c, _ = objects.GetContract(db, id)
	total, _ = c.ContractData.Get(protos.LuaString("total"))
	require.Equal(t, int64(100), total.Int())
}

func TestReviseContract(t *testing.T) {
	f := newFixture(t)
	id := f.deploy("alice", "contract.wallet", walletSource, protos.PublicKey{})
	c, _ := objects.GetContract(f.chain.DB(), id)
	first := c.CurrentVersion

	_, err := f.run(&protos.ReviseContractOperation{Fee: zeroFee, Reviser: f.chain.Account("bob"), ContractID: id, Data: echoSource})
	require.True(t, common.Is(err, common.ErrUnauthorized), "got %v", err)

	res, err := f.run(&protos.ReviseContractOperation{
		Fee: zeroFee, Reviser: f.chain.Account("alice"), ContractID: id, Data: walletSource + echoSource,
	})
	require.NoError(t, err)
	require.Equal(t, []string{first.String()}, messages(t, res.(*protos.ContractResult)))
	c, _ = objects.GetContract(f.chain.DB(), id)
	require.NotEqual(t, first, c.CurrentVersion)
	require.True(t, c.HasFunction("echo"))

	_, err = f.run(f.callOp("alice", id, "release"))
	require.NoError(t, err)
	_, err = f.run(&protos.ReviseContractOperation{Fee: zeroFee, Reviser: f.chain.Account("alice"), ContractID: id, Data: echoSource})
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
}

func TestContractAuthority(t *testing.T) {
	f := newFixture(t)
	_, key := mock.Key("wallet-authority")
	id := f.deploy("alice", "contract.wallet", walletSource, key)

	_, err := f.run(f.callOp("bob", id, "deposit", protos.LuaInt(1)))
	require.True(t, common.Is(err, common.ErrUnauthorized), "got %v", err)

	st := f.state(kevaluator.PushMode)
	st.SigKeys = []protos.PublicKey{key}
	_, err = f.runIn(st, f.callOp("bob", id, "deposit", protos.LuaInt(1)))
	require.NoError(t, err)

	st = f.state(kevaluator.ApplyBlockMode)
	st.Skip = kevaluator.ReplaySkip
	_, err = f.runIn(st, f.callOp("bob", id, "release"))
	require.Error(t, err, "replay without a recorded result")
}

func TestNestedInvokeReplay(t *testing.T) {
	f := newFixture(t)
	id := f.deploy("alice", "contract.wallet", walletSource, protos.PublicKey{})
	f.deploy("alice", "contract.echo", echoSource, protos.PublicKey{})

	res, err := f.run(f.callOp("bob", id, "lucky"))
	require.NoError(t, err)
	live := res.(*protos.ContractResult)
	require.True(t, live.ExistedPV)
	nested, err := live.NestedResults()
	require.NoError(t, err)
	require.Len(t, nested, 1)
	require.True(t, nested[0].ExistedPV)
	require.True(t, strings.HasPrefix(messages(t, nested[0])[0], "echo nested "))

	// replaying the recorded result reproduces every draw
	st := f.state(kevaluator.ApplyBlockMode)
	st.Skip = kevaluator.ReplaySkip
	st.Recorded = protos.OperationResultList{live}
	res, err = f.runIn(st, f.callOp("bob", id, "lucky"))
	require.NoError(t, err)
	replayed := res.(*protos.ContractResult)
	require.Equal(t, messages(t, live), messages(t, replayed))
	again, err := replayed.NestedResults()
	require.NoError(t, err)
	require.Equal(t, messages(t, nested[0]), messages(t, again[0]))
	require.True(t, protos.ResultsMatch(live, replayed))
}

func TestDataLimits(t *testing.T) {
	f := newFixture(t)
	id := f.deploy("alice", "contract.wallet", walletSource, protos.PublicKey{})
	limit := int64(objects.GlobalProperties(f.chain.DB()).Parameters.MaximumContractPrivateDataSize)

	_, err := f.run(f.callOp("bob", id, "bloat", protos.LuaInt(limit/2)))
	require.NoError(t, err)
	_, err = f.run(f.callOp("bob", id, "bloat", protos.LuaInt(limit+1)))
	require.True(t, common.Is(err, common.ErrDataTooLarge), "got %v", err)

	_, err = f.run(f.callOp("bob", id, "crash"))
	require.True(t, common.Is(err, common.ErrObjectNotFound), "got %v", err)
}

const mintSource = `
function mint(owner)
	local id = chainhelper:create_nh_asset(owner, "XGR", "forest", "{\"sword\":1}", true)
	chainhelper:log(id)
end
`

func TestCreateNHAssetFromContract(t *testing.T) {
	f := newFixture(t)
	id := f.deploy("alice", "contract.mint", mintSource, protos.PublicKey{})

	// alice owns the contract but has not declared the world view yet
	_, err := f.run(f.callOp("bob", id, "mint", protos.LuaString("bob")))
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)

	alice := f.chain.Account("alice")
	_, err = f.run(&protos.RegisterNHAssetCreatorOperation{Fee: zeroFee, FeePayingAccount: alice})
	require.NoError(t, err)
	_, err = f.run(&protos.CreateWorldViewOperation{Fee: zeroFee, FeePayingAccount: alice, WorldView: "forest"})
	require.NoError(t, err)

	res, err := f.run(f.callOp("bob", id, "mint", protos.LuaString("bob")))
	require.NoError(t, err)
	msgs := messages(t, res.(*protos.ContractResult))
	require.Len(t, msgs, 2)
	assetID, err := protos.ParseObjectID(msgs[1])
	require.NoError(t, err)

	a, err := objects.GetNHAsset(f.chain.DB(), assetID)
	require.NoError(t, err)
	require.Equal(t, alice, a.Creator)
	require.Equal(t, f.chain.Account("bob"), a.Owner)
	require.Equal(t, "forest", a.WorldView)
	require.Equal(t, `{"sword":1}`, a.BaseDescribe)
	require.Len(t, objects.NHAssetsByOwner(f.chain.DB(), f.chain.Account("bob")), 1)
}
