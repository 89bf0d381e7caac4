package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

var (
	alice = protos.NewObjectID(protos.ProtocolSpace, protos.ObjTypeAccount, 20)
	bob   = protos.NewObjectID(protos.ProtocolSpace, protos.ObjTypeAccount, 21)
)

const counterSource = `
function set(k, v)
	read_list = {public_data = {count = true}}
	chainhelper:read_chain()
	public_data.count = (public_data.count or 0) + 1
	public_data[k] = v
	write_list = {public_data = {count = true, [k] = true}}
	chainhelper:write_chain()
end

function drop(k)
	write_list = {public_data = {[k] = false}}
	chainhelper:write_chain()
end

function remember(v)
	private_data.last = v
	write_list = {private_data = {last = true}}
	chainhelper:write_chain()
end

function roll()
	local r = chainhelper:random()
	chainhelper:log(tostring(r))
end

function pay(to, amount)
	chainhelper:transfer_from_caller(to, amount, "COCOS", true)
end

function call_self()
	chainhelper:invoke_contract_function("contract.counter", "roll", "[]")
end

function call_other(v)
	chainhelper:invoke_contract_function("contract.echo", "echo", format_vector_with_table({v}))
end

function spin()
	while true do end
end

function escape()
	return os.time()
end
`

const echoSource = `
function echo(v)
	chainhelper:log("echo " .. tostring(v))
end
`

type fakeBridge struct {
	t         *testing.T
	vm        *VM
	contracts map[string]*ContractInfo
	data      map[protos.ObjectID]protos.LuaValue
	transfers []protos.ContractAssetTransfer
	nhAssets  []protos.ObjectID
}

func newFakeBridge(t *testing.T) *fakeBridge {
	log, err := logs.NewLogger("", "sandbox_test")
	require.NoError(t, err)
	var chain protos.ChainID
	cipher, err := NewCipher(chain, "")
	require.NoError(t, err)
	vm, err := NewVM(DefaultVMConfig(), cipher, log)
	require.NoError(t, err)

	b := &fakeBridge{
		t:         t,
		vm:        vm,
		contracts: make(map[string]*ContractInfo),
		data:      make(map[protos.ObjectID]protos.LuaValue),
	}
	b.deploy(1, "contract.counter", counterSource)
	b.deploy(2, "contract.echo", echoSource)
	return b
}

func (b *fakeBridge) deploy(instance uint64, name, source string) {
	abi, err := b.vm.ABI(name, source)
	require.NoError(b.t, err)
	b.contracts[name] = &ContractInfo{
		ID:     protos.NewObjectID(protos.ProtocolSpace, protos.ObjTypeContract, instance),
		Name:   name,
		Owner:  alice,
		Source: source,
		ABI:    abi,
	}
}

func (b *fakeBridge) HeadTime() uint32 { return 1600000000 }

func (b *fakeBridge) ResolveAccount(name string) (protos.ObjectID, error) {
	switch name {
	case "alice":
		return alice, nil
	case "bob":
		return bob, nil
	}
	return protos.ObjectID{}, common.ErrObjectNotFound.More("account %s", name)
}

func (b *fakeBridge) Balance(protos.ObjectID, string) (protos.Share, error) { return 100, nil }

func (b *fakeBridge) Transfer(from, to protos.ObjectID, amount protos.Share, _ string) (protos.AssetAmount, error) {
	if amount > 100 {
		return protos.AssetAmount{}, common.ErrInsufficientBalance.More("%d", amount)
	}
	moved := protos.NewAsset(amount, protos.CoreAssetID)
	b.transfers = append(b.transfers, protos.ContractAssetTransfer{From: from, To: to, Amount: moved})
	return moved, nil
}

func (b *fakeBridge) LoadContract(name string) (*ContractInfo, error) {
	c, ok := b.contracts[name]
	if !ok {
		return nil, common.ErrObjectNotFound.More("contract %s", name)
	}
	return c, nil
}

func (b *fakeBridge) AccountData(account, _ protos.ObjectID) protos.LuaValue {
	return b.data[account]
}

func (b *fakeBridge) Invoke(c *ContractInfo, function string, args []protos.LuaValue,
	recorded *protos.ContractResult) (*protos.ContractResult, error) {
	pub, priv := protos.LuaTable(), protos.LuaTable()
	return b.vm.Run(&Call{
		Contract: c, Caller: alice, Function: function, Args: args,
		Data: DataTrees{Public: &pub, Private: &priv}, Bridge: b,
		Recorded: recorded, Nested: true,
	})
}

func (b *fakeBridge) MakeRelease(protos.ObjectID) error                       { return nil }
func (b *fakeBridge) ChangeAuthority(protos.ObjectID, protos.PublicKey) error { return nil }

func (b *fakeBridge) CreateNHAsset(creator, owner protos.ObjectID, symbol, worldView, _ string) (protos.ObjectID, error) {
	if creator != alice || worldView != "forest" {
		return protos.ObjectID{}, common.ErrRuleViolation.More("world view %s of %s", worldView, creator)
	}
	if symbol != "COCOS" {
		return protos.ObjectID{}, common.ErrObjectNotFound.More("asset %s", symbol)
	}
	id := protos.NewObjectID(protos.NHAssetSpace, protos.ObjTypeNHAsset, uint64(len(b.nhAssets)))
	b.nhAssets = append(b.nhAssets, id)
	return id, nil
}

func (b *fakeBridge) call(trees DataTrees, fn string, args ...protos.LuaValue) (*protos.ContractResult, error) {
	return b.vm.Run(&Call{
		Ctx:      context.Background(),
		Contract: b.contracts["contract.counter"],
		Caller:   alice,
		Function: fn,
		Args:     args,
		Data:     trees,
		Bridge:   b,
	})
}

func emptyTrees() DataTrees {
	pub, priv := protos.LuaTable(), protos.LuaTable()
	return DataTrees{Public: &pub, Private: &priv}
}

func loggedMessages(t *testing.T, r *protos.ContractResult) []string {
	var out []string
	for _, a := range r.ContractAffecteds {
		if a.Kind != protos.AffectedLogger {
			continue
		}
		l, err := a.Logger()
		require.NoError(t, err)
		out = append(out, l.Message)
	}
	return out
}

func TestABI(t *testing.T) {
	b := newFakeBridge(t)
	require.Equal(t, []string{"call_other", "call_self", "drop", "escape", "pay", "remember", "roll", "set", "spin"},
		b.contracts["contract.counter"].ABI)

	_, err := b.vm.ABI("contract.empty", "local x = 1")
	require.True(t, common.Is(err, common.ErrContractError))
	_, err = b.vm.ABI("contract.bad", "function (")
	require.True(t, common.Is(err, common.ErrContractError))
}

func TestReadWriteChain(t *testing.T) {
	b := newFakeBridge(t)
	trees := emptyTrees()

	_, err := b.call(trees, "set", str("name"), str("bob"))
	require.NoError(t, err)
	_, err = b.call(trees, "set", str("city"), str("paris"))
	require.NoError(t, err)

	count, _ := trees.Public.Get(str("count"))
	require.Equal(t, int64(2), count.Int())
	name, _ := trees.Public.Get(str("name"))
	require.Equal(t, "bob", name.Data)

	_, err = b.call(trees, "drop", str("name"))
	require.NoError(t, err)
	_, ok := trees.Public.Get(str("name"))
	require.False(t, ok)
	_, ok = trees.Public.Get(str("city"))
	require.True(t, ok)

	r, err := b.call(trees, "remember", protos.LuaInt(9))
	require.NoError(t, err)
	last, _ := trees.Private.Get(str("last"))
	require.Equal(t, int64(9), last.Int())
	require.EqualValues(t, trees.Public.Size()+trees.Private.Size(), r.RelevantDatasize)
}

func TestProcessValueReplay(t *testing.T) {
	b := newFakeBridge(t)
	r, err := b.call(emptyTrees(), "roll")
	require.NoError(t, err)
	require.True(t, r.ExistedPV)
	require.NotEmpty(t, r.ProcessValue)
	first := loggedMessages(t, r)
	require.Len(t, first, 1)

	replayed, err := b.vm.Run(&Call{
		Contract: b.contracts["contract.counter"], Caller: alice, Function: "roll",
		Data: emptyTrees(), Bridge: b, Recorded: r,
	})
	require.NoError(t, err)
	require.Equal(t, first, loggedMessages(t, replayed))
	require.Equal(t, r.ProcessValue, replayed.ProcessValue)

	// a result recorded without process values can not feed a draw
	_, err = b.vm.Run(&Call{
		Contract: b.contracts["contract.counter"], Caller: alice, Function: "roll",
		Data: emptyTrees(), Bridge: b, Recorded: &protos.ContractResult{},
	})
	require.Error(t, err)
}

func TestTransferFromCaller(t *testing.T) {
	b := newFakeBridge(t)
	r, err := b.call(emptyTrees(), "pay", str("bob"), protos.LuaInt(10))
	require.NoError(t, err)
	require.Len(t, b.transfers, 1)
	require.Len(t, r.ContractAffecteds, 1)
	tr, err := r.ContractAffecteds[0].Transfer()
	require.NoError(t, err)
	require.Equal(t, bob, tr.To)
	require.Equal(t, protos.Share(10), tr.Amount.Amount)

	_, err = b.call(emptyTrees(), "pay", str("bob"), protos.LuaInt(1000))
	require.True(t, common.Is(err, common.ErrInsufficientBalance), "got %v", err)
	_, err = b.call(emptyTrees(), "pay", str("nobody"), protos.LuaInt(1))
	require.True(t, common.Is(err, common.ErrObjectNotFound), "got %v", err)
}

func TestInvokeContract(t *testing.T) {
	b := newFakeBridge(t)
	r, err := b.call(emptyTrees(), "call_other", str("hi"))
	require.NoError(t, err)
	nested, err := r.NestedResults()
	require.NoError(t, err)
	require.Len(t, nested, 1)
	require.Equal(t, []string{"echo hi"}, loggedMessages(t, nested[0]))

	_, err = b.call(emptyTrees(), "call_self")
	require.True(t, common.Is(err, common.ErrContractError), "got %v", err)
}

func TestRunLimits(t *testing.T) {
	b := newFakeBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.vm.Run(&Call{
		Ctx: ctx, Contract: b.contracts["contract.counter"], Caller: alice, Function: "spin",
		Data: emptyTrees(), Bridge: b,
	})
	require.True(t, common.Is(err, common.ErrRuntimeExceeded), "got %v", err)

	// os is not part of the environment
	_, err = b.call(emptyTrees(), "escape")
	require.True(t, common.Is(err, common.ErrContractError), "got %v", err)

	_, err = b.call(emptyTrees(), "missing")
	require.True(t, common.Is(err, common.ErrContractError), "got %v", err)

	// the vm keeps working after a failed call
	_, err = b.call(emptyTrees(), "roll")
	require.NoError(t, err)
}

const nhtSource = `
function mint(owner, view)
	local id = chainhelper:create_nh_asset(owner, "COCOS", view, "{\"hp\":10}", true)
	chainhelper:log(id)
end
`

func TestCreateNHAsset(t *testing.T) {
	b := newFakeBridge(t)
	b.deploy(3, "contract.nht", nhtSource)
	mint := func(owner, view string) (*protos.ContractResult, error) {
		return b.vm.Run(&Call{
			Ctx: context.Background(), Contract: b.contracts["contract.nht"], Caller: bob,
			Function: "mint", Args: []protos.LuaValue{str(owner), str(view)},
			Data: emptyTrees(), Bridge: b,
		})
	}

	r, err := mint("bob", "forest")
	require.NoError(t, err)
	require.Len(t, b.nhAssets, 1)
	msgs := loggedMessages(t, r)
	require.Len(t, msgs, 2)
	require.Contains(t, msgs[0], b.nhAssets[0].String())
	require.Equal(t, b.nhAssets[0].String(), msgs[1])

	_, err = mint("bob", "desert")
	require.True(t, common.Is(err, common.ErrRuleViolation), "got %v", err)
	_, err = mint("nobody", "forest")
	require.True(t, common.Is(err, common.ErrObjectNotFound), "got %v", err)
	require.Len(t, b.nhAssets, 1)
}
