// Package sandbox runs contract scripts in isolated environments on one owned
// Lua interpreter.
package sandbox

import (
	"context"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/lib/logs"
)

// The base environment copied into every sandbox. Nothing here reaches the
// file system, the network, the clock or a random source.
var (
	baseLibs = []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	baseFuncs = []string{
		"assert", "error", "ipairs", "next", "pairs", "pcall", "rawequal", "rawget",
		"rawset", "select", "setmetatable", "tonumber", "tostring", "type", "unpack", "xpcall",
	}
	baseTables = []string{lua.TabLibName, lua.StringLibName, lua.MathLibName}
	// dropped from the copied library tables
	bannedFields = map[string][]string{
		lua.MathLibName: {"random", "randomseed"},
	}
)

type VMConfig struct {
	CallStackSize  int
	RegistrySize   int
	ProtoCacheSize int
	// CompileTimeout bounds the top level run used to extract a contract ABI.
	CompileTimeout time.Duration
}

func DefaultVMConfig() VMConfig {
	return VMConfig{
		CallStackSize:  256,
		RegistrySize:   256 * 20,
		ProtoCacheSize: 256,
		CompileTimeout: time.Second,
	}
}

// VM owns the interpreter state shared by all contract calls. It is not safe
// for concurrent use; calls nest on the same state.
type VM struct {
	cfg    VMConfig
	log    logs.Logger
	L      *lua.LState
	protos *lru.Cache
	// names every fresh environment starts with
	reserved map[string]bool
	cipher   *Cipher
}

func NewVM(cfg VMConfig, cipher *Cipher, log logs.Logger) (*VM, error) {
	if cfg.ProtoCacheSize <= 0 {
		cfg.ProtoCacheSize = DefaultVMConfig().ProtoCacheSize
	}
	cache, err := lru.New(cfg.ProtoCacheSize)
	if err != nil {
		return nil, err
	}
	vm := &VM{cfg: cfg, log: log, protos: cache, cipher: cipher}
	vm.L = vm.newState()
	vm.reserved = make(map[string]bool)
	for k := range vm.newEnv(vm.L).keys() {
		vm.reserved[k] = true
	}
	for _, k := range hostGlobals {
		vm.reserved[k] = true
	}
	return vm, nil
}

func (vm *VM) newState() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: vm.cfg.CallStackSize,
		RegistrySize:  vm.cfg.RegistrySize,
	})
	for _, lib := range baseLibs {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	return L
}

// Reset replaces the interpreter after a fatal error. Compiled protos do not
// depend on the state and are kept.
func (vm *VM) Reset() {
	if vm.L != nil {
		vm.L.Close()
	}
	vm.L = vm.newState()
	vm.log.Warn("contract vm reinitialized")
}

func (vm *VM) Cipher() *Cipher { return vm.cipher }

type env struct{ *lua.LTable }

func (e env) keys() map[string]bool {
	out := make(map[string]bool)
	e.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok {
			out[string(s)] = true
		}
	})
	return out
}

// newEnv copies the whitelisted globals into a fresh table. Library tables
// are copied so one contract cannot change them under another.
func (vm *VM) newEnv(L *lua.LState) env {
	g := L.G.Global
	t := L.NewTable()
	for _, name := range baseFuncs {
		if v := g.RawGetString(name); v != lua.LNil {
			t.RawSetString(name, v)
		}
	}
	t.RawSetString("_VERSION", g.RawGetString("_VERSION"))
	for _, name := range baseTables {
		src, ok := g.RawGetString(name).(*lua.LTable)
		if !ok {
			continue
		}
		lib := L.NewTable()
		src.ForEach(func(k, v lua.LValue) { lib.RawSet(k, v) })
		for _, f := range bannedFields[name] {
			lib.RawSetString(f, lua.LNil)
		}
		t.RawSetString(name, lib)
	}
	return env{t}
}

// Compile returns the function proto of a contract, cached under key.
func (vm *VM) Compile(key, name, source string) (*lua.FunctionProto, error) {
	if p, ok := vm.protos.Get(key); ok {
		return p.(*lua.FunctionProto), nil
	}
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, common.ErrContractError.More("compile %s: %v", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, common.ErrContractError.More("compile %s: %v", name, err)
	}
	vm.protos.Add(key, proto)
	return proto, nil
}

// ABI compiles source and runs its top level in a scratch environment,
// returning the names of the functions it defines.
func (vm *VM) ABI(name, source string) (abi []string, err error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, common.ErrContractError.More("compile %s: %v", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, common.ErrContractError.More("compile %s: %v", name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			vm.Reset()
			abi, err = nil, common.ErrVMCollapse.More("%v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), vm.cfg.CompileTimeout)
	defer cancel()
	L := vm.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	e := vm.newEnv(L)
	fn := L.NewFunctionFromProto(proto)
	fn.Env = e.LTable
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		if ctx.Err() != nil {
			return nil, common.ErrRuntimeExceeded.More("top level of %s", name)
		}
		return nil, common.ErrContractError.More("run %s: %v", name, err)
	}
	e.ForEach(func(k, v lua.LValue) {
		s, ok := k.(lua.LString)
		if !ok || vm.reserved[string(s)] {
			return
		}
		if _, isFn := v.(*lua.LFunction); isFn {
			abi = append(abi, string(s))
		}
	})
	sort.Strings(abi)
	if len(abi) == 0 {
		return nil, common.ErrContractError.More("%s defines no functions", name)
	}
	return abi, nil
}

// load runs the top level of a contract with env as its globals.
func (vm *VM) load(key, name, source string, e env) error {
	proto, err := vm.Compile(key, name, source)
	if err != nil {
		return err
	}
	fn := vm.L.NewFunctionFromProto(proto)
	fn.Env = e.LTable
	return errors.WithMessage(vm.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}), name)
}
