// Package evaluator dispatches operations to their evaluators.
package evaluator

import (
	"fmt"
	"sync"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/protos"
)

// Evaluator handles one operation type. Evaluate checks preconditions against
// state without writing; Apply mutates the object store. Both run inside the
// operation's undo session, so an error from either discards all writes.
type Evaluator interface {
	Evaluate(st *TrxState, op protos.Operation) error
	Apply(st *TrxState, op protos.Operation) (protos.OperationResult, error)
}

// EvaluatorFunc pairs two functions into an Evaluator.
type EvaluatorFunc struct {
	EvaluateFn func(st *TrxState, op protos.Operation) error
	ApplyFn    func(st *TrxState, op protos.Operation) (protos.OperationResult, error)
}

func (f EvaluatorFunc) Evaluate(st *TrxState, op protos.Operation) error {
	if f.EvaluateFn == nil {
		return nil
	}
	return f.EvaluateFn(st, op)
}

func (f EvaluatorFunc) Apply(st *TrxState, op protos.Operation) (protos.OperationResult, error) {
	return f.ApplyFn(st, op)
}

type Registry struct {
	mu         sync.RWMutex
	evaluators map[protos.OpType]Evaluator
}

func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[protos.OpType]Evaluator)}
}

// Register binds e to t. Registering a tag twice panics.
func (r *Registry) Register(t protos.OpType, e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.evaluators[t]; exists {
		panic(fmt.Sprintf("evaluator of %s exists", t))
	}
	r.evaluators[t] = e
}

func (r *Registry) Lookup(t protos.OpType) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.evaluators[t]
	if !ok {
		return nil, common.ErrNoEvaluator.More("%s", t)
	}
	return e, nil
}

// Run evaluates and applies op, then charges its fee.
func (r *Registry) Run(st *TrxState, op protos.Operation) (protos.OperationResult, error) {
	e, err := r.Lookup(op.OpType())
	if err != nil {
		return nil, err
	}
	fee, err := prepareFee(st, op)
	if err != nil {
		return nil, err
	}
	if err := e.Evaluate(st, op); err != nil {
		return nil, err
	}
	result, err := e.Apply(st, op)
	if err != nil {
		return nil, err
	}
	if err := payFee(st, op.FeePayer(), fee); err != nil {
		return nil, err
	}
	return result, nil
}

// prepareFee returns the core asset fee the payer owes for op.
func prepareFee(st *TrxState, op protos.Operation) (protos.Share, error) {
	if st.SkipFee {
		return 0, nil
	}
	required := st.Params().Fee(op.OpType())
	if required == 0 {
		return 0, nil
	}
	declared := op.FeeAmount()
	if declared.AssetID != protos.CoreAssetID || declared.Amount < required {
		return 0, common.ErrInsufficientFee.More("%s requires %d of %s, declared %s",
			op.OpType(), required, protos.CoreAssetID, declared)
	}
	db := st.DB()
	payer := op.FeePayer()
	if avail := objects.AvailableBalance(db, payer, protos.CoreAssetID); avail < required {
		return 0, common.ErrInsufficientBalance.More("fee payer %s has %d, fee is %d", payer, avail, required)
	}
	return required, nil
}

func payFee(st *TrxState, payer protos.ObjectID, fee protos.Share) error {
	db := st.DB()
	acc, err := objects.GetAccount(db, payer)
	if err != nil {
		return err
	}
	stats, err := objects.GetAccountStatistics(db, acc.Statistics)
	if err != nil {
		return err
	}
	if err := db.Modify(stats, func() {
		stats.TotalOps++
		stats.LifetimeFeesPaid += fee
	}); err != nil {
		return err
	}
	if fee == 0 {
		return nil
	}
	if err := objects.AdjustBalance(db, payer, protos.NewAsset(-fee, protos.CoreAssetID)); err != nil {
		return err
	}
	dyn, err := objects.GetDynamicData(db, objects.CoreAsset(db))
	if err != nil {
		return err
	}
	return db.Modify(dyn, func() { dyn.AccumulatedFees += fee })
}
