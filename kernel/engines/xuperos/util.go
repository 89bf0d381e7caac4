package xuperos

import (
	"fmt"
	"strings"

	"github.com/xuperchain/xupergraph/kernel/evaluator"
)

var skipFlagNames = map[string]evaluator.Skip{
	"witness_signature":      evaluator.SkipWitnessSignature,
	"transaction_signatures": evaluator.SkipTransactionSignatures,
	"transaction_dupe_check": evaluator.SkipTransactionDupeCheck,
	"fork_db":                evaluator.SkipForkDB,
	"block_size_check":       evaluator.SkipBlockSizeCheck,
	"tapos_check":            evaluator.SkipTaposCheck,
	"authority_check":        evaluator.SkipAuthorityCheck,
	"merkle_check":           evaluator.SkipMerkleCheck,
	"assert_evaluation":      evaluator.SkipAssertEvaluation,
	"undo_history_check":     evaluator.SkipUndoHistoryCheck,
	"witness_schedule_check": evaluator.SkipWitnessScheduleCheck,
	"validate":               evaluator.SkipValidate,
}

// ParseSkipFlags turns configured flag names into a skip mask.
func ParseSkipFlags(names []string) (evaluator.Skip, error) {
	var skip evaluator.Skip
	for _, name := range names {
		flag, ok := skipFlagNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown skip flag %q", name)
		}
		skip |= flag
	}
	return skip, nil
}
