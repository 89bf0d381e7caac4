package sandbox

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"

	"github.com/xuperchain/xupergraph/protos"
)

const (
	helperName   = "chainhelper"
	baseInfoName = "contract_base_info"
	readListName = "read_list"
	writeList    = "write_list"
)

// hostGlobals are the names bind sets in a contract environment.
var hostGlobals = []string{
	helperName, baseInfoName, readListName, writeList, PublicBucket, PrivateBucket,
	"import_contract", "get_account_contract_data", "format_vector_with_table", "_G",
}

// smallest positive normal double
const numberMin = 2.2250738585072014e-308

// bind installs the host functions and the data tables into e. Imported
// contracts get the same helper, so they act with the importer's authority.
func (sb *Sandbox) bind(e env) {
	L := sb.vm.L
	helper := L.NewTable()
	for name, fn := range map[string]lua.LGFunction{
		"log":                       sb.log,
		"number_max":                func(L *lua.LState) int { L.Push(lua.LNumber(math.MaxFloat64)); return 1 },
		"number_min":                func(L *lua.LState) int { L.Push(lua.LNumber(numberMin)); return 1 },
		"real_time":                 sb.realTime,
		"time":                      sb.headTime,
		"hash256":                   sb.hash256,
		"hash512":                   sb.hash512,
		"random":                    sb.random,
		"is_owner":                  sb.isOwner,
		"make_release":              sb.makeRelease,
		"read_chain":                sb.readChain,
		"write_chain":               sb.writeChain,
		"invoke_contract_function":  sb.invoke,
		"change_contract_authority": sb.changeAuthority,
		"transfer_from_owner":       sb.transferFrom(func() protos.ObjectID { return sb.call.Contract.Owner }),
		"transfer_from_caller":      sb.transferFrom(func() protos.ObjectID { return sb.call.Caller }),
		"get_account_balance":       sb.balance,
		"create_nh_asset":           sb.createNHAsset,
	} {
		helper.RawSetString(name, L.NewFunction(fn))
	}
	e.RawSetString(helperName, helper)

	info := sb.call.Contract
	base := L.NewTable()
	base.RawSetString("name", lua.LString(info.Name))
	base.RawSetString("id", lua.LString(info.ID.String()))
	base.RawSetString("owner", lua.LString(info.Owner.String()))
	base.RawSetString("caller", lua.LString(sb.call.Caller.String()))
	base.RawSetString("creation_date", lua.LNumber(info.CreationDate))
	base.RawSetString("contract_authority", lua.LString(info.Authority.String()))
	e.RawSetString(baseInfoName, base)

	e.RawSetString("import_contract", L.NewFunction(sb.importContract))
	e.RawSetString("get_account_contract_data", L.NewFunction(sb.accountContractData))
	e.RawSetString("format_vector_with_table", L.NewFunction(formatVector))
	e.RawSetString("_G", lua.LString("protected"))

	e.RawSetString(PublicBucket, L.NewTable())
	e.RawSetString(PrivateBucket, L.NewTable())
	for _, list := range []string{readListName, writeList} {
		t := L.NewTable()
		t.RawSetString(PublicBucket, L.NewTable())
		t.RawSetString(PrivateBucket, L.NewTable())
		e.RawSetString(list, t)
	}
}

// Helper functions are called as chainhelper:name(...), argument 1 is the helper.

func (sb *Sandbox) log(L *lua.LState) int {
	msg := L.CheckString(2)
	sb.result.ContractAffecteds = append(sb.result.ContractAffecteds,
		protos.NewLoggerAffected(protos.ContractLogger{Affected: sb.call.Caller, Message: msg}))
	return 0
}

func (sb *Sandbox) realTime(L *lua.LState) int {
	v, err := sb.pv.RealTime()
	if err != nil {
		return sb.raise(L, err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (sb *Sandbox) random(L *lua.LState) int {
	v, err := sb.pv.Random()
	if err != nil {
		return sb.raise(L, err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (sb *Sandbox) headTime(L *lua.LState) int {
	L.Push(lua.LNumber(sb.call.Bridge.HeadTime()))
	return 1
}

func (sb *Sandbox) hash256(L *lua.LState) int {
	sum := sha256.Sum256([]byte(L.CheckString(2)))
	L.Push(lua.LString(hex.EncodeToString(sum[:])))
	return 1
}

func (sb *Sandbox) hash512(L *lua.LState) int {
	sum := sha512.Sum512([]byte(L.CheckString(2)))
	L.Push(lua.LString(hex.EncodeToString(sum[:])))
	return 1
}

func (sb *Sandbox) isOwner(L *lua.LState) int {
	L.Push(lua.LBool(sb.call.Caller == sb.call.Contract.Owner))
	return 1
}

func (sb *Sandbox) makeRelease(L *lua.LState) int {
	if err := sb.call.Bridge.MakeRelease(sb.call.Contract.ID); err != nil {
		return sb.raise(L, err)
	}
	return 0
}

func (sb *Sandbox) changeAuthority(L *lua.LState) int {
	key, err := protos.ParsePublicKey(L.CheckString(2))
	if err != nil {
		return sb.raisef(L, "bad contract authority: %v", err)
	}
	id := sb.call.Contract.ID
	if err := sb.call.Bridge.ChangeAuthority(id, key); err != nil {
		return sb.raise(L, err)
	}
	sb.result.ContractAffecteds = append(sb.result.ContractAffecteds,
		protos.NewAuthorityAffected(protos.ContractAuthorityChange{ContractID: id, NewKey: key}))
	return 0
}

func (sb *Sandbox) transferFrom(from func() protos.ObjectID) lua.LGFunction {
	return func(L *lua.LState) int {
		to, err := sb.call.Bridge.ResolveAccount(L.CheckString(2))
		if err != nil {
			return sb.raise(L, err)
		}
		amount := protos.Share(L.CheckNumber(3))
		symbol := L.CheckString(4)
		logged := L.OptBool(5, false)
		if amount < 0 {
			return sb.raisef(L, "transfer amount %d is negative", amount)
		}
		moved, err := sb.call.Bridge.Transfer(from(), to, amount, symbol)
		if err != nil {
			return sb.raise(L, err)
		}
		if logged {
			sb.result.ContractAffecteds = append(sb.result.ContractAffecteds,
				protos.NewTransferAffected(protos.ContractAssetTransfer{From: from(), To: to, Amount: moved}))
		}
		return 0
	}
}

// createNHAsset creates an asset whose creator is the contract owner and
// returns its id.
func (sb *Sandbox) createNHAsset(L *lua.LState) int {
	owner, err := sb.call.Bridge.ResolveAccount(L.CheckString(2))
	if err != nil {
		return sb.raise(L, err)
	}
	symbol := L.CheckString(3)
	worldView := L.CheckString(4)
	describe := L.CheckString(5)
	logged := L.OptBool(6, false)
	creator := sb.call.Contract.Owner
	id, err := sb.call.Bridge.CreateNHAsset(creator, owner, symbol, worldView, describe)
	if err != nil {
		return sb.raise(L, err)
	}
	if logged {
		sb.result.ContractAffecteds = append(sb.result.ContractAffecteds,
			protos.NewLoggerAffected(protos.ContractLogger{
				Affected: owner,
				Message:  fmt.Sprintf("%s created nh asset %s for %s", creator, id, owner),
			}))
	}
	L.Push(lua.LString(id.String()))
	return 1
}

func (sb *Sandbox) balance(L *lua.LState) int {
	account, err := sb.call.Bridge.ResolveAccount(L.CheckString(2))
	if err != nil {
		return sb.raise(L, err)
	}
	b, err := sb.call.Bridge.Balance(account, L.CheckString(3))
	if err != nil {
		return sb.raise(L, err)
	}
	L.Push(lua.LNumber(b))
	return 1
}

func (sb *Sandbox) invoke(L *lua.LState) int {
	target, err := sb.call.Bridge.LoadContract(L.CheckString(2))
	if err != nil {
		return sb.raise(L, err)
	}
	if target.ID == sb.call.Contract.ID {
		return sb.raisef(L, "%s can not invoke itself", target.Name)
	}
	function := L.CheckString(3)
	args, err := parseValueList(L.OptString(4, "[]"))
	if err != nil {
		return sb.raisef(L, "bad value list: %v", err)
	}
	var recorded *protos.ContractResult
	if sb.call.replaying() {
		if len(sb.pending) == 0 {
			return sb.raisef(L, "no recorded result for %s.%s", target.Name, function)
		}
		recorded, sb.pending = sb.pending[0], sb.pending[1:]
	}
	r, err := sb.call.Bridge.Invoke(target, function, args, recorded)
	if err != nil {
		return sb.raise(L, err)
	}
	if r.ExistedPV {
		sb.result.ExistedPV = true
	}
	sb.result.ContractAffecteds = append(sb.result.ContractAffecteds, protos.NewNestedAffected(r))
	return 0
}

// importContract loads another contract into the caller's environment under
// the imported contract's name and returns its table.
func (sb *Sandbox) importContract(L *lua.LState) int {
	target, err := sb.call.Bridge.LoadContract(L.CheckString(1))
	if err != nil {
		return sb.raise(L, err)
	}
	if t, ok := sb.env.RawGetString(target.Name).(*lua.LTable); ok {
		L.Push(t)
		return 1
	}
	e := sb.vm.newEnv(L)
	if err := sb.vm.load(target.CacheKey(), target.Name, target.Source, e); err != nil {
		return sb.raisef(L, "import %s: %v", target.Name, err)
	}
	sb.bind(e)
	sb.env.RawSetString(target.Name, e.LTable)
	L.Push(e.LTable)
	return 1
}

func (sb *Sandbox) accountContractData(L *lua.LState) int {
	account, err := sb.call.Bridge.ResolveAccount(L.CheckString(1))
	if err != nil {
		return sb.raise(L, err)
	}
	decl := declared(L.OptTable(2, L.NewTable()))
	data := sb.call.Bridge.AccountData(account, sb.call.Contract.ID)
	empty := protos.LuaTable()
	view := NewXModelCache(DataTrees{Public: &empty, Private: &data})
	out := L.NewTable()
	if err := readTree(L, view, PrivateBucket, nil, decl, out); err != nil {
		return sb.raise(L, err)
	}
	L.Push(out)
	return 1
}

// formatVector renders the values of a table, in key order, as the json
// value list invoke_contract_function takes.
func formatVector(L *lua.LState) int {
	v, err := FromLValue(L.CheckTable(1))
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	list := make([]interface{}, 0, len(v.Table))
	for _, f := range v.Table {
		list = append(list, toJSONValue(f.Value))
	}
	b, err := json.Marshal(list)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(lua.LString(b))
	return 1
}

func (sb *Sandbox) readChain(L *lua.LState) int {
	lists := declared(sb.env.RawGetString(readListName))
	for _, bucket := range []string{PrivateBucket, PublicBucket} {
		dst, ok := sb.env.RawGetString(bucket).(*lua.LTable)
		if !ok {
			dst = L.NewTable()
			sb.env.RawSetString(bucket, dst)
		}
		decl, ok := lists[bucket]
		if !ok {
			continue
		}
		if err := readTree(L, sb.cache, bucket, nil, decl, dst); err != nil {
			return sb.raise(L, err)
		}
	}
	return 0
}

func (sb *Sandbox) writeChain(L *lua.LState) int {
	lists := declared(sb.env.RawGetString(writeList))
	for _, bucket := range []string{PrivateBucket, PublicBucket} {
		decl, ok := lists[bucket]
		if !ok {
			continue
		}
		if err := writeTree(L, sb.cache, bucket, nil, decl, sb.env.RawGetString(bucket)); err != nil {
			return sb.raise(L, err)
		}
	}
	if err := sb.cache.Flush(); err != nil {
		return sb.raise(L, err)
	}
	return 0
}

// declared converts a read or write list into a key tree.
func declared(lv lua.LValue) map[interface{}]interface{} {
	switch v := gluamapper.ToGoValue(lv, gluamapper.Option{NameFunc: gluamapper.Id}).(type) {
	case map[interface{}]interface{}:
		return v
	case []interface{}:
		return listKeys(v)
	}
	return map[interface{}]interface{}{}
}

// listKeys reads an array style declaration {"a", "b"} as {a = true, b = true}.
func listKeys(list []interface{}) map[interface{}]interface{} {
	out := make(map[interface{}]interface{}, len(list))
	for _, k := range list {
		out[fmt.Sprint(k)] = true
	}
	return out
}

func subtree(v interface{}) (map[interface{}]interface{}, bool) {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		return t, len(t) > 0
	case []interface{}:
		return listKeys(t), len(t) > 0
	}
	return nil, false
}

func sortedKeys(m map[interface{}]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, fmt.Sprint(k))
	}
	sort.Strings(keys)
	return keys
}

// rangeBounds pops start and stop out of a declaration.
func rangeBounds(m map[interface{}]interface{}) (int, int, bool) {
	start, hasStart := m["start"].(float64)
	stop, hasStop := m["stop"].(float64)
	if !hasStart && !hasStop {
		return 0, 0, false
	}
	delete(m, "start")
	delete(m, "stop")
	if !hasStop {
		stop = math.MaxInt32
	}
	return int(start), int(stop), true
}

// readTree copies the declared parts of bucket at path into dst.
func readTree(L *lua.LState, xc *XMCache, bucket string, path Path, decl interface{}, dst *lua.LTable) error {
	m, nested := subtree(decl)
	if !nested {
		return readLeaf(L, xc, bucket, path, dst)
	}
	if start, stop, ok := rangeBounds(m); ok {
		fields, err := xc.Select(bucket, path, start, stop)
		if err != nil && err != ErrNotFound && err != ErrHasDel {
			return err
		}
		for _, f := range fields {
			setPath(L, dst, path.child(f.Key), ToLValue(L, f.Value))
		}
		if len(m) == 0 {
			return nil
		}
	}
	for _, name := range sortedKeys(m) {
		key := keyOf(name, func(k protos.LuaValue) bool { return xc.Has(bucket, path.child(k)) })
		if err := readTree(L, xc, bucket, path.child(key), m[name], dst); err != nil {
			return err
		}
	}
	return nil
}

func readLeaf(L *lua.LState, xc *XMCache, bucket string, path Path, dst *lua.LTable) error {
	v, err := xc.Get(bucket, path)
	switch err {
	case nil:
		if len(path) == 0 {
			for _, f := range v.Table {
				dst.RawSet(ToLValue(L, f.Key), ToLValue(L, f.Value))
			}
			return nil
		}
		setPath(L, dst, path, ToLValue(L, v))
		return nil
	case ErrNotFound, ErrHasDel:
		return nil
	}
	return err
}

// writeTree records the declared parts of src at path as writes of bucket.
// A declared false removes the entry.
func writeTree(L *lua.LState, xc *XMCache, bucket string, path Path, decl interface{}, src lua.LValue) error {
	if b, ok := decl.(bool); ok && !b {
		return xc.Del(bucket, path)
	}
	m, nested := subtree(decl)
	if !nested {
		v, err := FromLValue(getPath(L, src, path))
		if err != nil {
			return err
		}
		if len(path) == 0 && v.IsNil() {
			v = protos.LuaTable()
		}
		return xc.Put(bucket, path, v)
	}
	for _, name := range sortedKeys(m) {
		key := keyOf(name, func(k protos.LuaValue) bool {
			return getPath(L, src, path.child(k)) != lua.LNil || xc.Has(bucket, path.child(k))
		})
		if err := writeTree(L, xc, bucket, path.child(key), m[name], src); err != nil {
			return err
		}
	}
	return nil
}

func getPath(L *lua.LState, root lua.LValue, path Path) lua.LValue {
	cur := root
	for _, k := range path {
		t, ok := cur.(*lua.LTable)
		if !ok {
			return lua.LNil
		}
		cur = t.RawGet(ToLValue(L, k))
	}
	return cur
}

func setPath(L *lua.LState, root *lua.LTable, path Path, v lua.LValue) {
	cur := root
	for i, k := range path {
		key := ToLValue(L, k)
		if i == len(path)-1 {
			cur.RawSet(key, v)
			return
		}
		next, ok := cur.RawGet(key).(*lua.LTable)
		if !ok {
			next = L.NewTable()
			cur.RawSet(key, next)
		}
		cur = next
	}
}

func parseValueList(s string) ([]protos.LuaValue, error) {
	var raw []interface{}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	out := make([]protos.LuaValue, 0, len(raw))
	for _, r := range raw {
		out = append(out, fromJSONValue(r))
	}
	return out, nil
}

func fromJSONValue(v interface{}) protos.LuaValue {
	switch t := v.(type) {
	case bool:
		return protos.LuaBool(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return protos.LuaInt(int64(t))
		}
		return protos.LuaNumber(t)
	case string:
		return protos.LuaString(t)
	case []interface{}:
		out := protos.LuaTable()
		for i, e := range t {
			out.Set(protos.LuaInt(int64(i+1)), fromJSONValue(e))
		}
		return out
	case map[string]interface{}:
		out := protos.LuaTable()
		for k, e := range t {
			out.Set(protos.LuaString(k), fromJSONValue(e))
		}
		return out
	}
	return protos.LuaNil()
}

func toJSONValue(v protos.LuaValue) interface{} {
	switch v.Type {
	case protos.LuaTypeBool:
		return v.Bool()
	case protos.LuaTypeInt:
		return v.Int()
	case protos.LuaTypeNumber:
		return v.Number()
	case protos.LuaTypeString:
		return v.Data
	case protos.LuaTypeTable:
		m := make(map[string]interface{}, len(v.Table))
		for _, f := range v.Table {
			m[f.Key.Data] = toJSONValue(f.Value)
		}
		return m
	}
	return nil
}
