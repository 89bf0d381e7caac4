package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"

	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/protos"
)

// ContractInfo is what a call needs of a stored contract.
type ContractInfo struct {
	ID           protos.ObjectID
	Name         string
	Owner        protos.ObjectID
	Authority    protos.PublicKey
	CreationDate uint32
	Version      protos.TxID
	Source       string
	ABI          []string
}

// CacheKey names the compiled form of this contract version.
func (c *ContractInfo) CacheKey() string {
	return c.ID.String() + "@" + c.Version.String()
}

func (c *ContractInfo) HasFunction(name string) bool {
	for _, f := range c.ABI {
		if f == name {
			return true
		}
	}
	return false
}

// Bridge is the chain side of the host functions. Errors it returns are
// raised inside the script.
type Bridge interface {
	HeadTime() uint32
	ResolveAccount(nameOrID string) (protos.ObjectID, error)
	Balance(account protos.ObjectID, symbolOrID string) (protos.Share, error)
	Transfer(from, to protos.ObjectID, amount protos.Share, symbolOrID string) (protos.AssetAmount, error)
	LoadContract(nameOrID string) (*ContractInfo, error)
	AccountData(account, contract protos.ObjectID) protos.LuaValue
	// Invoke runs another contract as a nested operation. recorded is the
	// nested result carried by the block under replay.
	Invoke(contract *ContractInfo, function string, args []protos.LuaValue,
		recorded *protos.ContractResult) (*protos.ContractResult, error)
	MakeRelease(contract protos.ObjectID) error
	ChangeAuthority(contract protos.ObjectID, key protos.PublicKey) error
	// CreateNHAsset creates a non homogeneous asset of creator for owner.
	CreateNHAsset(creator, owner protos.ObjectID, symbol, worldView, describe string) (protos.ObjectID, error)
}

// Call describes one contract function call.
type Call struct {
	// Ctx bounds the run time. Only the outermost call of a transaction
	// installs it on the interpreter.
	Ctx      context.Context
	Contract *ContractInfo
	Caller   protos.ObjectID
	Function string
	Args     []protos.LuaValue
	// Data is written by write_chain; the caller persists it after success.
	Data   DataTrees
	Bridge Bridge
	// Recorded is set when replaying a block.
	Recorded *protos.ContractResult
	Nested   bool
}

func (c *Call) replaying() bool { return c.Recorded != nil }

// Sandbox is the state of one call.
type Sandbox struct {
	vm      *VM
	call    *Call
	env     env
	cache   *XMCache
	pv      *ProcessLog
	result  *protos.ContractResult
	pending []*protos.ContractResult
	hostErr error
}

// Run executes call and returns its result. ErrVMCollapse means the
// interpreter must be reset before the next call.
func (vm *VM) Run(call *Call) (result *protos.ContractResult, err error) {
	info := call.Contract
	if !info.HasFunction(call.Function) {
		return nil, common.ErrContractError.More("%s has no function %s", info.Name, call.Function)
	}
	sb := &Sandbox{
		vm:     vm,
		call:   call,
		cache:  NewXModelCache(call.Data),
		result: &protos.ContractResult{ContractID: info.ID},
	}
	if err := sb.prepareReplay(); err != nil {
		return nil, err
	}

	start := time.Now()
	L := vm.L
	if !call.Nested && call.Ctx != nil {
		L.SetContext(call.Ctx)
		defer L.RemoveContext()
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, common.ErrVMCollapse.More("%s.%s: %v", info.Name, call.Function, r)
		}
	}()

	sb.env = vm.newEnv(L)
	if err := vm.load(info.CacheKey(), info.Name, info.Source, sb.env); err != nil {
		return nil, sb.convertError(err)
	}
	sb.bind(sb.env)

	fn, ok := sb.env.RawGetString(call.Function).(*lua.LFunction)
	if !ok {
		return nil, common.ErrContractError.More("%s.%s is not a function", info.Name, call.Function)
	}
	args := make([]lua.LValue, 0, len(call.Args))
	for _, a := range call.Args {
		args = append(args, ToLValue(L, a))
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
		return nil, sb.convertError(err)
	}

	if err := sb.finish(time.Since(start)); err != nil {
		return nil, err
	}
	return sb.result, nil
}

func (sb *Sandbox) prepareReplay() error {
	rec := sb.call.Recorded
	if rec == nil {
		sb.pv = NewProcessLog()
		return nil
	}
	var pv protos.ProcessValue
	if rec.ExistedPV {
		var err error
		if pv, err = sb.vm.cipher.Open(rec.ProcessValue); err != nil {
			return common.ErrContractError.More("recorded process value: %v", err)
		}
	}
	sb.pv = ReplayProcessLog(pv)
	nested, err := rec.NestedResults()
	if err != nil {
		return common.ErrContractError.More("recorded nested results: %v", err)
	}
	sb.pending = nested
	return nil
}

func (sb *Sandbox) finish(elapsed time.Duration) error {
	r := sb.result
	if sb.pv.Used() {
		r.ExistedPV = true
	}
	if r.ExistedPV {
		if rec := sb.call.Recorded; rec != nil && rec.ExistedPV {
			r.ProcessValue = rec.ProcessValue
		} else {
			sealed, err := sb.vm.cipher.Seal(sb.pv.Value())
			if err != nil {
				return err
			}
			r.ProcessValue = sealed
		}
	}
	r.RealRunningTime = uint64(elapsed / time.Microsecond)

	size := uint64(sb.call.Data.Public.Size() + sb.call.Data.Private.Size())
	for _, a := range r.ContractAffecteds {
		size += uint64(len(a.Payload))
		if a.Kind == protos.AffectedNestedResult {
			if n, err := a.Nested(); err == nil {
				size += n.RelevantDatasize
			}
		}
	}
	r.RelevantDatasize = size
	return nil
}

// RWSet reports the data a finished call read and wrote.
func (sb *Sandbox) RWSet() *RWSet { return sb.cache.RWSet() }

func (sb *Sandbox) convertError(err error) error {
	if ctx := sb.call.Ctx; ctx != nil && ctx.Err() != nil {
		return common.ErrRuntimeExceeded.More("%s.%s: %v", sb.call.Contract.Name, sb.call.Function, ctx.Err())
	}
	if apiErr, ok := errors.Cause(err).(*lua.ApiError); ok && apiErr.Type == lua.ApiErrorPanic {
		return common.ErrVMCollapse.More("%s: %v", sb.call.Contract.Name, apiErr.Object)
	}
	// keep the code of a host failure the script did not catch
	if sb.hostErr != nil && strings.Contains(err.Error(), sb.hostErr.Error()) {
		return errors.Wrapf(sb.hostErr, "%s.%s", sb.call.Contract.Name, sb.call.Function)
	}
	return common.ErrContractError.More("%s.%s: %v", sb.call.Contract.Name, sb.call.Function, err)
}

// raise turns a host failure into a script error.
func (sb *Sandbox) raise(L *lua.LState, err error) int {
	sb.hostErr = err
	L.RaiseError("%s", err.Error())
	return 0
}

func (sb *Sandbox) raisef(L *lua.LState, format string, args ...interface{}) int {
	return sb.raise(L, common.ErrContractError.More(format, args...))
}
