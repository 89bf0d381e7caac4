package protos

import (
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

type LuaType uint8

const (
	LuaTypeNil LuaType = iota
	LuaTypeBool
	LuaTypeInt
	LuaTypeNumber
	LuaTypeString
	LuaTypeTable
	LuaTypeFunction
)

// LuaValue is a script value as it is stored on chain. Scalars keep their
// canonical text form in Data; tables are kept as fields sorted by key.
type LuaValue struct {
	Type  LuaType
	Data  string
	Table []LuaField
}

type LuaField struct {
	Key   LuaValue
	Value LuaValue
}

func LuaNil() LuaValue { return LuaValue{} }

func LuaBool(b bool) LuaValue {
	return LuaValue{Type: LuaTypeBool, Data: strconv.FormatBool(b)}
}

func LuaInt(i int64) LuaValue {
	return LuaValue{Type: LuaTypeInt, Data: strconv.FormatInt(i, 10)}
}

func LuaNumber(f float64) LuaValue {
	return LuaValue{Type: LuaTypeNumber, Data: strconv.FormatFloat(f, 'g', -1, 64)}
}

func LuaString(s string) LuaValue {
	return LuaValue{Type: LuaTypeString, Data: s}
}

func LuaTable(fields ...LuaField) LuaValue {
	v := LuaValue{Type: LuaTypeTable}
	for _, f := range fields {
		v.Set(f.Key, f.Value)
	}
	return v
}

func (v LuaValue) IsNil() bool { return v.Type == LuaTypeNil }

func (v LuaValue) Bool() bool { return v.Type == LuaTypeBool && v.Data == "true" }

func (v LuaValue) Int() int64 {
	switch v.Type {
	case LuaTypeInt:
		i, _ := strconv.ParseInt(v.Data, 10, 64)
		return i
	case LuaTypeNumber:
		f, _ := strconv.ParseFloat(v.Data, 64)
		return int64(f)
	}
	return 0
}

func (v LuaValue) Number() float64 {
	switch v.Type {
	case LuaTypeInt, LuaTypeNumber:
		f, _ := strconv.ParseFloat(v.Data, 64)
		return f
	}
	return 0
}

// CompareLuaKeys orders table keys: booleans, integers, numbers, then strings.
func CompareLuaKeys(a, b LuaValue) int {
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	switch a.Type {
	case LuaTypeInt:
		x, y := a.Int(), b.Int()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case LuaTypeNumber:
		x, y := a.Number(), b.Number()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	switch {
	case a.Data < b.Data:
		return -1
	case a.Data > b.Data:
		return 1
	}
	return 0
}

func (v LuaValue) search(key LuaValue) int {
	return sort.Search(len(v.Table), func(i int) bool {
		return CompareLuaKeys(v.Table[i].Key, key) >= 0
	})
}

func (v LuaValue) Get(key LuaValue) (LuaValue, bool) {
	i := v.search(key)
	if i < len(v.Table) && CompareLuaKeys(v.Table[i].Key, key) == 0 {
		return v.Table[i].Value, true
	}
	return LuaValue{}, false
}

// Set replaces or inserts key. Setting nil deletes it.
func (v *LuaValue) Set(key, value LuaValue) {
	if value.IsNil() {
		v.Delete(key)
		return
	}
	i := v.search(key)
	if i < len(v.Table) && CompareLuaKeys(v.Table[i].Key, key) == 0 {
		v.Table[i].Value = value
		return
	}
	v.Table = append(v.Table, LuaField{})
	copy(v.Table[i+1:], v.Table[i:])
	v.Table[i] = LuaField{Key: key, Value: value}
}

func (v *LuaValue) Delete(key LuaValue) {
	i := v.search(key)
	if i < len(v.Table) && CompareLuaKeys(v.Table[i].Key, key) == 0 {
		v.Table = append(v.Table[:i], v.Table[i+1:]...)
	}
}

// Clone deep copies the value tree.
func (v LuaValue) Clone() LuaValue {
	out := LuaValue{Type: v.Type, Data: v.Data}
	if len(v.Table) > 0 {
		out.Table = make([]LuaField, len(v.Table))
		for i, f := range v.Table {
			out.Table[i] = LuaField{Key: f.Key.Clone(), Value: f.Value.Clone()}
		}
	}
	return out
}

// Size is the encoded size, used for contract data limits.
func (v LuaValue) Size() int {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		return 0
	}
	return len(b)
}

// ProcessValue is the log of non deterministic values drawn during one call.
type ProcessValue struct {
	Random    []uint64
	TimeTable []uint64
}

func (pv ProcessValue) Empty() bool { return len(pv.Random) == 0 && len(pv.TimeTable) == 0 }

type AffectedKind uint8

const (
	AffectedLogger AffectedKind = iota
	AffectedAssetTransfer
	AffectedNestedResult
	AffectedAuthority
)

// ContractAffected is one side effect record of a contract call.
type ContractAffected struct {
	Kind    AffectedKind
	Payload []byte
}

type ContractLogger struct {
	Affected ObjectID
	Message  string
}

type ContractAssetTransfer struct {
	From   ObjectID
	To     ObjectID
	Amount AssetAmount
}

type ContractAuthorityChange struct {
	ContractID ObjectID
	NewKey     PublicKey
}

func newAffected(kind AffectedKind, body interface{}) ContractAffected {
	payload, err := rlp.EncodeToBytes(body)
	if err != nil {
		panic(err)
	}
	return ContractAffected{Kind: kind, Payload: payload}
}

func NewLoggerAffected(l ContractLogger) ContractAffected {
	return newAffected(AffectedLogger, l)
}

func NewTransferAffected(t ContractAssetTransfer) ContractAffected {
	return newAffected(AffectedAssetTransfer, t)
}

func NewNestedAffected(r *ContractResult) ContractAffected {
	return newAffected(AffectedNestedResult, r)
}

func NewAuthorityAffected(c ContractAuthorityChange) ContractAffected {
	return newAffected(AffectedAuthority, c)
}

func (a ContractAffected) Logger() (ContractLogger, error) {
	var l ContractLogger
	if a.Kind != AffectedLogger {
		return l, errors.New("not a logger record")
	}
	return l, rlp.DecodeBytes(a.Payload, &l)
}

func (a ContractAffected) Transfer() (ContractAssetTransfer, error) {
	var t ContractAssetTransfer
	if a.Kind != AffectedAssetTransfer {
		return t, errors.New("not a transfer record")
	}
	return t, rlp.DecodeBytes(a.Payload, &t)
}

func (a ContractAffected) Nested() (*ContractResult, error) {
	if a.Kind != AffectedNestedResult {
		return nil, errors.New("not a nested result record")
	}
	r := new(ContractResult)
	return r, rlp.DecodeBytes(a.Payload, r)
}

// ContractResult is the persisted result of a contract call. ProcessValue is
// the sealed ProcessValue log when ExistedPV is set.
type ContractResult struct {
	ContractID        ObjectID
	ExistedPV         bool
	ProcessValue      []byte
	ContractAffecteds []ContractAffected
	RealRunningTime   uint64
	RelevantDatasize  uint64
}

func (r *ContractResult) ResultType() ResultType { return ResultContract }

// NestedResults returns the results of contracts invoked from this call, in call order.
func (r *ContractResult) NestedResults() ([]*ContractResult, error) {
	var out []*ContractResult
	for _, a := range r.ContractAffecteds {
		if a.Kind != AffectedNestedResult {
			continue
		}
		n, err := a.Nested()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
