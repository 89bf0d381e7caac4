package evaluator

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

// Chain is the part of the engine evaluators may use.
type Chain interface {
	DB() *objdb.Database
	ChainID() protos.ChainID
	Logger() logs.Logger
	// VerifyAuthority checks that sigKeys plus the approved accounts satisfy
	// every authority ops require.
	VerifyAuthority(ops protos.OperationList, sigKeys []protos.PublicKey,
		approvedActive, approvedOwner []protos.ObjectID) error
}

// TrxState is the state tracked while one transaction is applied.
type TrxState struct {
	Chain Chain
	Trx   *protos.SignedTransaction
	// Recorded holds the results carried by the block under replay.
	Recorded     protos.OperationResultList
	SigKeys      []protos.PublicKey
	RunMode      RunMode
	Skip         Skip
	IsAgreedTask bool
	// SkipFee is set on nested contract invocations; the outer call pays.
	SkipFee bool
	OpIndex int
	Results []protos.OperationResult
	// Depth counts nested contract invocations.
	Depth int
}

func NewTrxState(chain Chain, trx *protos.SignedTransaction, mode RunMode, skip Skip) *TrxState {
	return &TrxState{Chain: chain, Trx: trx, RunMode: mode, Skip: skip}
}

func (st *TrxState) DB() *objdb.Database { return st.Chain.DB() }

// Now is the head block time.
func (st *TrxState) Now() uint32 { return objects.HeadBlockTime(st.Chain.DB()) }

func (st *TrxState) Params() *protos.ChainParameters {
	return &objects.GlobalProperties(st.Chain.DB()).Parameters
}

// Replaying reports whether results must be reproduced from the block.
func (st *TrxState) Replaying() bool { return st.RunMode == ApplyBlockMode }

// RecordedResult returns the result the block recorded for the current operation.
func (st *TrxState) RecordedResult() (protos.OperationResult, bool) {
	if st.OpIndex < 0 || st.OpIndex >= len(st.Recorded) {
		return nil, false
	}
	return st.Recorded[st.OpIndex], true
}

// Nested derives the state of a contract invoked from the current operation.
func (st *TrxState) Nested() *TrxState {
	n := *st
	n.SkipFee = true
	n.Depth = st.Depth + 1
	n.Results = nil
	if st.RunMode != ApplyBlockMode {
		n.RunMode = InvokeMode
	}
	return &n
}
