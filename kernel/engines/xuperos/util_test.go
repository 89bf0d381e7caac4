package xuperos

import (
	"testing"

	"github.com/xuperchain/xupergraph/kernel/evaluator"
)

func TestParseSkipFlags(t *testing.T) {
	skip, err := ParseSkipFlags([]string{"Witness_Signature", " tapos_check "})
	if err != nil {
		t.Fatal(err)
	}
	if !skip.Has(evaluator.SkipWitnessSignature) || !skip.Has(evaluator.SkipTaposCheck) {
		t.Errorf("missing flags in %b", skip)
	}
	if skip.Has(evaluator.SkipMerkleCheck) {
		t.Errorf("unexpected merkle flag in %b", skip)
	}

	if skip, err := ParseSkipFlags(nil); err != nil || skip != 0 {
		t.Errorf("empty flags: %b %v", skip, err)
	}
	if _, err := ParseSkipFlags([]string{"no_such_flag"}); err == nil {
		t.Error("unknown flag accepted")
	}
}
