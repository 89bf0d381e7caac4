package forkdb

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/protos"
)

func child(parent *protos.SignedBlock, ts uint32) *protos.SignedBlock {
	b := &protos.SignedBlock{}
	b.Previous = parent.ID()
	b.Timestamp = ts
	return b
}

func genesis() *protos.SignedBlock {
	return &protos.SignedBlock{SignedBlockHeader: protos.SignedBlockHeader{BlockHeader: protos.BlockHeader{Timestamp: 1}}}
}

func TestHeadFollowsLongestChain(t *testing.T) {
	f := New()
	g := genesis()
	f.StartBlock(g)
	a1 := child(g, 2)
	a2 := child(a1, 3)
	b1 := child(g, 4)
	b2 := child(b1, 5)
	b3 := child(b2, 6)
	for _, b := range []*protos.SignedBlock{a1, a2, b1, b2} {
		if _, err := f.PushBlock(b); err != nil {
			t.Fatal(err)
		}
	}
	if f.Head().ID != a2.ID() {
		t.Fatal("equal height must not switch head")
	}
	head, err := f.PushBlock(b3)
	if err != nil || head.ID != b3.ID() {
		t.Fatalf("longer branch must win: %v", err)
	}
	br1, br2, err := f.FetchBranchFrom(b3.ID(), a2.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(br1) != 3 || len(br2) != 2 {
		t.Fatalf("branch lengths %d %d", len(br1), len(br2))
	}
	if br1[2].Previous() != g.ID() || br2[1].Previous() != g.ID() {
		t.Fatal("branches must end right after the common ancestor")
	}
}

func TestUnlinkedBlocksAreParked(t *testing.T) {
	f := New()
	g := genesis()
	f.StartBlock(g)
	b1 := child(g, 2)
	b2 := child(b1, 3)
	if _, err := f.PushBlock(b2); errors.Cause(err) != ErrUnlinkable {
		t.Fatalf("want unlinkable, got %v", err)
	}
	if !f.IsKnownBlock(b2.ID()) {
		t.Fatal("parked block is known")
	}
	head, err := f.PushBlock(b1)
	if err != nil {
		t.Fatal(err)
	}
	if head.ID != b2.ID() {
		t.Fatal("parent arrival must link the parked child")
	}
}

func TestInvalidBlocksPoisonDescendants(t *testing.T) {
	f := New()
	g := genesis()
	f.StartBlock(g)
	b1 := child(g, 2)
	if _, err := f.PushBlock(b1); err != nil {
		t.Fatal(err)
	}
	f.MarkInvalid(b1.ID())
	if _, err := f.PushBlock(child(b1, 3)); err != ErrInvalidChain {
		t.Fatalf("want invalid chain, got %v", err)
	}
}

func TestPruneAndPop(t *testing.T) {
	f := New()
	g := genesis()
	f.StartBlock(g)
	prev := g
	for i := 0; i < 10; i++ {
		b := child(prev, uint32(10+i))
		if _, err := f.PushBlock(b); err != nil {
			t.Fatal(err)
		}
		prev = b
	}
	f.SetMaxSize(3)
	if f.Size() != 4 {
		t.Fatalf("size after prune %d", f.Size())
	}
	if f.FetchBlock(g.ID()) != nil {
		t.Fatal("genesis must be pruned")
	}
	if err := f.PopBlock(); err != nil {
		t.Fatal(err)
	}
	if f.Head().Num != 10 {
		t.Fatalf("head %d after pop", f.Head().Num)
	}
	if _, err := f.PushBlock(child(g, 99)); err == nil {
		t.Fatal("block below the window must be rejected")
	}
}

func TestFirstBlocksLinkToGenesis(t *testing.T) {
	f := New()
	g := genesis()
	b1 := child(g, 2)
	b1.Previous = protos.BlockID{}
	b2 := child(b1, 3)
	if _, err := f.PushBlock(b2); errors.Cause(err) != ErrUnlinkable {
		t.Fatalf("child before parent must be parked, got %v", err)
	}
	if f.Head() != nil {
		t.Fatal("parked block must not become head")
	}
	head, err := f.PushBlock(b1)
	if err != nil {
		t.Fatal(err)
	}
	if head.ID != b2.ID() || head.Prev == nil || head.Prev.ID != b1.ID() {
		t.Fatal("first block must link its parked child")
	}
	if _, err := f.PushBlock(b1); err != ErrKnownBlock {
		t.Fatalf("want known block, got %v", err)
	}

	if err := f.PopBlock(); err != nil {
		t.Fatal(err)
	}
	if f.Head().ID != b1.ID() || f.FetchBlock(b2.ID()) == nil {
		t.Fatal("pop moves head and keeps the block")
	}
}
