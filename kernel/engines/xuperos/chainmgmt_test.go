package xuperos

import (
	"testing"

	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
	"github.com/xuperchain/xupergraph/protos"
)

func TestChainManager(t *testing.T) {
	c := newTestChain(t)
	m := &ChainManagerImpl{engCtx: newEngCtx(t), log: c.log}

	if _, err := m.Get("xgraph"); err != def.ErrBlockChainNotExist {
		t.Fatalf("get missing chain: %v", err)
	}
	m.Put("xgraph", c)
	m.Put("another", c)
	got, err := m.Get("xgraph")
	if err != nil || got != c {
		t.Fatalf("get chain: %v", err)
	}
	if names := m.GetChains(); len(names) != 2 || names[0] != "another" || names[1] != "xgraph" {
		t.Errorf("chains %v", names)
	}
	if err := m.LoadChain("xgraph"); err != def.ErrBlockChainExist {
		t.Errorf("load loaded chain: %v", err)
	}
}

func TestUnloadChain(t *testing.T) {
	c := newTestChain(t)
	m := &ChainManagerImpl{engCtx: newEngCtx(t), log: c.log}
	m.Put("xgraph", c)

	if err := m.UnloadChain("xgraph"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get("xgraph"); err != def.ErrBlockChainNotExist {
		t.Errorf("unloaded chain still present: %v", err)
	}
	if _, err := c.PushBlock(&protos.SignedBlock{}, 0); err != def.ErrChainClosed {
		t.Errorf("unloaded chain still open: %v", err)
	}
	if err := m.UnloadChain("xgraph"); err != def.ErrBlockChainNotExist {
		t.Errorf("second unload: %v", err)
	}
}
