package common

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// 处理成功类
	ErrStatusSucc = 200
	// 拒绝处理类错误状态
	ErrStatusRefused = 400
	// 内部错误类错误状态
	ErrStatusInternalErr = 500
)

// Kind groups errors by how the pipeline reacts to them.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindEvaluation
	KindConsensus
	KindResource
	KindVMFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindEvaluation:
		return "evaluation"
	case KindConsensus:
		return "consensus"
	case KindResource:
		return "resource"
	case KindVMFatal:
		return "vm_fatal"
	}
	return "unknown"
}

type Error struct {
	// 用于统计和监控的错误分类（类似http的2xx、4xx、5xx）
	Status int
	// 用于标识具体错误的详细错误码，千位表示Kind
	Code int
	// 用于说明具体错误的说明信息
	Msg string
}

func CastError(err error) *Error {
	return CastErrorDefault(err, ErrUnknown)
}

func CastErrorDefault(err error, defaultErr *Error) *Error {
	if err == nil {
		return nil
	}
	if defErr, ok := errors.Cause(err).(*Error); ok {
		return defErr
	}

	return defaultErr.More(err.Error())
}

func (t *Error) Error() string {
	return fmt.Sprintf("Err:%d-%d-%s", t.Status, t.Code, t.Msg)
}

func (t *Error) More(format string, args ...interface{}) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	return &Error{t.Status, t.Code, t.Msg + "+" + msg}
}

func (t *Error) Equal(rhs *Error) bool {
	if rhs == nil {
		return false
	}

	return t.Code == rhs.Code
}

func (t *Error) Kind() Kind {
	k := Kind(t.Code / 1000)
	if k < KindValidation || k > KindVMFatal {
		return KindEvaluation
	}
	return k
}

// Is reports whether err carries the code of target.
func Is(err error, target *Error) bool {
	e, ok := errors.Cause(err).(*Error)
	return ok && e.Equal(target)
}

// ErrorKind classifies any error. Errors without a code are evaluation errors.
func ErrorKind(err error) Kind {
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Kind()
	}
	return KindEvaluation
}

// ErrorCode is the numeric code recorded in error results.
func ErrorCode(err error) int {
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Code
	}
	return ErrUnknown.Code
}

var (
	ErrSuccess      = &Error{ErrStatusSucc, 0, "success"}
	ErrInternal     = &Error{ErrStatusInternalErr, 2000, "internal error"}
	ErrUnknown      = &Error{ErrStatusInternalErr, 2001, "unknown error"}
	ErrForbidden    = &Error{ErrStatusRefused, 2002, "forbidden"}
	ErrUnauthorized = &Error{ErrStatusRefused, 2003, "unauthorized"}
	ErrParameter    = &Error{ErrStatusRefused, 1000, "param error"}

	// validation
	ErrInvalidOperation  = &Error{ErrStatusRefused, 1001, "invalid operation"}
	ErrTxExpired         = &Error{ErrStatusRefused, 1002, "transaction expired"}
	ErrTxExpirationLimit = &Error{ErrStatusRefused, 1003, "transaction expiration too far in the future"}
	ErrTaposMismatch     = &Error{ErrStatusRefused, 1004, "transaction tapos mismatch"}
	ErrTxAlreadyExist    = &Error{ErrStatusRefused, 1005, "known transaction"}
	ErrBadSignature      = &Error{ErrStatusRefused, 1006, "bad signature"}
	ErrIrrelevantSig     = &Error{ErrStatusRefused, 1007, "irrelevant signature"}

	// evaluation
	ErrMissingActiveAuth   = &Error{ErrStatusRefused, 2010, "missing required active authority"}
	ErrMissingOwnerAuth    = &Error{ErrStatusRefused, 2011, "missing required owner authority"}
	ErrMissingOtherAuth    = &Error{ErrStatusRefused, 2012, "missing required other authority"}
	ErrObjectNotFound      = &Error{ErrStatusRefused, 2013, "object not found"}
	ErrInsufficientBalance = &Error{ErrStatusRefused, 2014, "insufficient balance"}
	ErrInsufficientFee     = &Error{ErrStatusRefused, 2015, "insufficient fee"}
	ErrRuleViolation       = &Error{ErrStatusRefused, 2016, "business rule violation"}
	ErrNameTaken           = &Error{ErrStatusRefused, 2017, "name already taken"}
	ErrNoEvaluator         = &Error{ErrStatusRefused, 2018, "no evaluator for operation"}
	ErrAgreedTask          = &Error{ErrStatusRefused, 2019, "invalid agreed task"}
	ErrContractError       = &Error{ErrStatusRefused, 2020, "contract execution error"}
	ErrResultMismatch      = &Error{ErrStatusRefused, 2021, "agreed task result mismatch"}

	// consensus
	ErrMerkleMismatch     = &Error{ErrStatusRefused, 3001, "merkle root mismatch"}
	ErrBlockHeader        = &Error{ErrStatusRefused, 3002, "invalid block header"}
	ErrWitnessSignature   = &Error{ErrStatusRefused, 3003, "invalid witness signature"}
	ErrWitnessSchedule    = &Error{ErrStatusRefused, 3004, "witness produced block at wrong time"}
	ErrUnlinkableBlock    = &Error{ErrStatusRefused, 3005, "unlinkable block"}
	ErrUndoHistory        = &Error{ErrStatusInternalErr, 3006, "undo history exceeded"}
	ErrMissingResults     = &Error{ErrStatusRefused, 3007, "block transaction without operation results"}
	ErrBlockNotExist      = &Error{ErrStatusInternalErr, 3008, "block not exist"}
	ErrProcBlockFailed    = &Error{ErrStatusInternalErr, 3009, "process block failed"}
	ErrBlockTimestamp     = &Error{ErrStatusRefused, 3010, "block timestamp must increase"}
	ErrBlackSwan          = &Error{ErrStatusRefused, 3011, "black swan"}
	ErrGenesisInvalid     = &Error{ErrStatusInternalErr, 3012, "invalid genesis state"}
	ErrChainStatus        = &Error{ErrStatusInternalErr, 3013, "chain status error"}
	ErrNewEngineCtxFailed = &Error{ErrStatusInternalErr, 3014, "create engine context failed"}
	ErrLoadEngConfFailed  = &Error{ErrStatusInternalErr, 3015, "load engine config failed"}

	// resource
	ErrTxTooLarge      = &Error{ErrStatusRefused, 4001, "transaction too large"}
	ErrRuntimeExceeded = &Error{ErrStatusRefused, 4002, "execution time budget exceeded"}
	ErrDataTooLarge    = &Error{ErrStatusRefused, 4003, "contract data too large"}
	ErrBlockTooLarge   = &Error{ErrStatusRefused, 4004, "block too large"}

	// vm
	ErrVMCollapse = &Error{ErrStatusInternalErr, 5001, "contract vm collapsed"}
)
