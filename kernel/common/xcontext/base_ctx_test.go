package xcontext

import (
	"testing"
)

func TestNewBaseCtx(t *testing.T) {
	ctx, err := NewBaseCtx("ledger")
	if err != nil {
		t.Fatal(err)
	}
	var x XContext = &ctx
	if x.GetModule() != "ledger" {
		t.Errorf("module %q", x.GetModule())
	}
	if x.GetLog() == nil || x.GetTimer() == nil {
		t.Fatal("logger or timer not set")
	}
	if _, ok := x.Deadline(); ok || x.Done() != nil || x.Err() != nil {
		t.Error("base ctx must never expire")
	}
}
