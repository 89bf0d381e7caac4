package protos

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

type ResultType uint8

const (
	ResultVoid ResultType = iota
	ResultObjectID
	ResultAsset
	ResultContract
	ResultError
)

func (t ResultType) String() string {
	switch t {
	case ResultVoid:
		return "void_result"
	case ResultObjectID:
		return "object_id_result"
	case ResultAsset:
		return "asset_result"
	case ResultContract:
		return "contract_result"
	case ResultError:
		return "error_result"
	}
	return fmt.Sprintf("result(%d)", uint8(t))
}

// OperationResult is one variant of the closed result sum type.
type OperationResult interface {
	ResultType() ResultType
}

type VoidResult struct{}

func (*VoidResult) ResultType() ResultType { return ResultVoid }

type ObjectIDResult struct {
	ID ObjectID
}

func (*ObjectIDResult) ResultType() ResultType { return ResultObjectID }

type AssetResult struct {
	Amount AssetAmount
}

func (*AssetResult) ResultType() ResultType { return ResultAsset }

// ErrorResult replaces the result of a failed operation inside an agreed task.
type ErrorResult struct {
	Code            uint32
	Message         string
	RealRunningTime uint64
}

func (*ErrorResult) ResultType() ResultType { return ResultError }

func NewResult(t ResultType) (OperationResult, error) {
	switch t {
	case ResultVoid:
		return new(VoidResult), nil
	case ResultObjectID:
		return new(ObjectIDResult), nil
	case ResultAsset:
		return new(AssetResult), nil
	case ResultContract:
		return new(ContractResult), nil
	case ResultError:
		return new(ErrorResult), nil
	}
	return nil, errors.Errorf("unknown result type %d", uint8(t))
}

// ResultsMatch compares two results ignoring measured running times.
func ResultsMatch(a, b OperationResult) bool {
	if a == nil || b == nil || a.ResultType() != b.ResultType() {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *ContractResult:
		y := b.(*ContractResult)
		if x.ContractID != y.ContractID || x.ExistedPV != y.ExistedPV ||
			len(x.ContractAffecteds) != len(y.ContractAffecteds) {
			return false
		}
		for i := range x.ContractAffecteds {
			if x.ContractAffecteds[i].Kind != y.ContractAffecteds[i].Kind {
				return false
			}
		}
		return true
	case *ErrorResult:
		return x.Code == b.(*ErrorResult).Code
	}
	l, _ := rlp.EncodeToBytes(a)
	r, _ := rlp.EncodeToBytes(b)
	return bytes.Equal(l, r)
}

type OperationResultList []OperationResult

type resultEnvelope struct {
	Tag     uint8
	Payload rlp.RawValue
}

func (l OperationResultList) EncodeRLP(w io.Writer) error {
	envs := make([]resultEnvelope, 0, len(l))
	for _, r := range l {
		payload, err := rlp.EncodeToBytes(r)
		if err != nil {
			return err
		}
		envs = append(envs, resultEnvelope{Tag: uint8(r.ResultType()), Payload: payload})
	}
	return rlp.Encode(w, envs)
}

func (l *OperationResultList) DecodeRLP(s *rlp.Stream) error {
	var envs []resultEnvelope
	if err := s.Decode(&envs); err != nil {
		return err
	}
	out := make(OperationResultList, 0, len(envs))
	for _, env := range envs {
		r, err := NewResult(ResultType(env.Tag))
		if err != nil {
			return err
		}
		if err := rlp.DecodeBytes(env.Payload, r); err != nil {
			return errors.Wrapf(err, "decode %s", ResultType(env.Tag))
		}
		out = append(out, r)
	}
	*l = out
	return nil
}

type resultJSON struct {
	Type   ResultType      `json:"type"`
	Result json.RawMessage `json:"result"`
}

func (l OperationResultList) MarshalJSON() ([]byte, error) {
	out := make([]resultJSON, 0, len(l))
	for _, r := range l {
		body, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, resultJSON{Type: r.ResultType(), Result: body})
	}
	return json.Marshal(out)
}

func (l *OperationResultList) UnmarshalJSON(data []byte) error {
	var in []resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(OperationResultList, 0, len(in))
	for _, item := range in {
		r, err := NewResult(item.Type)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(item.Result, r); err != nil {
			return err
		}
		out = append(out, r)
	}
	*l = out
	return nil
}
