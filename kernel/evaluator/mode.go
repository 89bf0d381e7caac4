package evaluator

// RunMode tells evaluators and the engine why a transaction is applied.
type RunMode uint8

const (
	// PushMode applies a locally submitted transaction with full checks.
	PushMode RunMode = iota
	// ValidateTransactionMode applies a relayed transaction speculatively.
	ValidateTransactionMode
	// ApplyBlockMode replays a transaction carried by a block.
	ApplyBlockMode
	// ProductionBlockMode applies a transaction while building a block.
	ProductionBlockMode
	// InvokeMode marks results that touched non-deterministic primitives, or a
	// nested contract call; its state is never merged on its own.
	InvokeMode
	// JustTry validates without persisting anything.
	JustTry
)

func (m RunMode) String() string {
	switch m {
	case PushMode:
		return "push"
	case ValidateTransactionMode:
		return "validate_transaction"
	case ApplyBlockMode:
		return "apply_block"
	case ProductionBlockMode:
		return "production_block"
	case InvokeMode:
		return "invoke"
	case JustTry:
		return "just_try"
	}
	return "unknown"
}

// InBlock reports whether the mode writes block bookkeeping objects.
func (m RunMode) InBlock() bool {
	return m == ApplyBlockMode || m == ProductionBlockMode
}

// Skip is a bitmask of checks a trusted caller may disable.
type Skip uint32

const (
	SkipNothing               Skip = 0
	SkipWitnessSignature      Skip = 1 << 0
	SkipTransactionSignatures Skip = 1 << 1
	SkipTransactionDupeCheck  Skip = 1 << 2
	SkipForkDB                Skip = 1 << 3
	SkipBlockSizeCheck        Skip = 1 << 4
	SkipTaposCheck            Skip = 1 << 5
	SkipAuthorityCheck        Skip = 1 << 6
	SkipMerkleCheck           Skip = 1 << 7
	SkipAssertEvaluation      Skip = 1 << 8
	SkipUndoHistoryCheck      Skip = 1 << 9
	SkipWitnessScheduleCheck  Skip = 1 << 10
	SkipValidate              Skip = 1 << 11
)

// ReplaySkip is used when re-deriving state from already validated blocks.
const ReplaySkip = SkipWitnessSignature | SkipTransactionSignatures | SkipTransactionDupeCheck |
	SkipTaposCheck | SkipAuthorityCheck | SkipWitnessScheduleCheck | SkipValidate

func (s Skip) Has(flag Skip) bool { return s&flag != 0 }
