package metrics

import (
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "xupergraph"

	SubsystemEngine   = "engine"
	SubsystemChain    = "chain"
	SubsystemContract = "contract"
	SubsystemLedger   = "ledger"
	SubsystemState    = "state"
	SubsystemTimer    = "timer"

	LabelBCName     = "bcname"
	LabelOpName     = "op"
	LabelContract   = "contract"
	LabelFunction   = "function"
	LabelResult     = "result"
	LabelPushMode   = "mode"
	LabelTimerMark  = "mark"
	LabelCallMethod = "method"
)

// engine
var (
	CallMethodCounter = prom.NewCounterVec(
		prom.CounterOpts{
			Namespace: Namespace,
			Subsystem: LabelCallMethod,
			Name:      "call_total",
			Help:      "Total number of call method.",
		},
		[]string{LabelBCName, LabelCallMethod})
	CallMethodHistogram = prom.NewHistogramVec(
		prom.HistogramOpts{
			Namespace: Namespace,
			Subsystem: LabelCallMethod,
			Name:      "cost_seconds",
			Help:      "Histogram of call method cost latency.",
			Buckets:   prom.DefBuckets,
		},
		[]string{LabelBCName, LabelCallMethod})
	TxApplyCounter = prom.NewCounterVec(
		prom.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "tx_apply_total",
			Help:      "Total number of applied transactions by push mode and result.",
		},
		[]string{LabelBCName, LabelPushMode, LabelResult})
	OperationCounter = prom.NewCounterVec(
		prom.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "operation_total",
			Help:      "Total number of evaluated operations.",
		},
		[]string{LabelBCName, LabelOpName, LabelResult})
	PendingTxGauge = prom.NewGaugeVec(
		prom.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "pending_tx",
			Help:      "Number of transactions in the pending set.",
		},
		[]string{LabelBCName})
)

// chain
var (
	BlockApplyHistogram = prom.NewHistogramVec(
		prom.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemChain,
			Name:      "block_apply_seconds",
			Help:      "Histogram of block application latency.",
			Buckets:   prom.DefBuckets,
		},
		[]string{LabelBCName})
	HeadBlockGauge = prom.NewGaugeVec(
		prom.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemChain,
			Name:      "head_block_num",
			Help:      "Current head block number.",
		},
		[]string{LabelBCName})
	IrreversibleGauge = prom.NewGaugeVec(
		prom.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemChain,
			Name:      "last_irreversible_block_num",
			Help:      "Last irreversible block number.",
		},
		[]string{LabelBCName})
	ForkSwitchCounter = prom.NewCounterVec(
		prom.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemChain,
			Name:      "fork_switch_total",
			Help:      "Total number of fork switches by result.",
		},
		[]string{LabelBCName, LabelResult})
	MaintenanceCounter = prom.NewCounterVec(
		prom.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemChain,
			Name:      "maintenance_total",
			Help:      "Total number of chain maintenance runs.",
		},
		[]string{LabelBCName})
	UndoDepthGauge = prom.NewGaugeVec(
		prom.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemState,
			Name:      "undo_depth",
			Help:      "Number of undo states retained.",
		},
		[]string{LabelBCName})
)

// contract
var (
	ContractInvokeCounter = prom.NewCounterVec(
		prom.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemContract,
			Name:      "invoke_total",
			Help:      "Total number of contract invocations.",
		},
		[]string{LabelBCName, LabelContract, LabelFunction, LabelResult})
	ContractInvokeHistogram = prom.NewHistogramVec(
		prom.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemContract,
			Name:      "invoke_seconds",
			Help:      "Histogram of contract invocation latency.",
			Buckets:   prom.DefBuckets,
		},
		[]string{LabelBCName, LabelContract, LabelFunction})
)

// ledger
var (
	LedgerBlockCounter = prom.NewCounterVec(
		prom.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemLedger,
			Name:      "stored_block_total",
			Help:      "Total number of blocks written to the block store.",
		},
		[]string{LabelBCName})
	TimerHistogram = prom.NewHistogramVec(
		prom.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemTimer,
			Name:      "mark_seconds",
			Help:      "Histogram of timer mark latency.",
			Buckets:   prom.DefBuckets,
		},
		[]string{LabelBCName, LabelTimerMark})
)

var registerOnce sync.Once

// RegisterMetrics registers every collector with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prom.MustRegister(
			CallMethodCounter,
			CallMethodHistogram,
			TxApplyCounter,
			OperationCounter,
			PendingTxGauge,
			BlockApplyHistogram,
			HeadBlockGauge,
			IrreversibleGauge,
			ForkSwitchCounter,
			MaintenanceCounter,
			UndoDepthGauge,
			ContractInvokeCounter,
			ContractInvokeHistogram,
			LedgerBlockCounter,
			TimerHistogram,
		)
	})
}
