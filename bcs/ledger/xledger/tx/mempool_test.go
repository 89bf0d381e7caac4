package tx

import (
	"testing"
	"time"

	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/protos"
)

func newMempool(t *testing.T, limit int) *Mempool {
	log, err := logs.NewLogger("", "mempool")
	if err != nil {
		t.Fatal(err)
	}
	return NewMempool(log, limit)
}

func makeTx(expiration uint32) *protos.ProcessedTransaction {
	ptx := &protos.ProcessedTransaction{}
	ptx.Expiration = expiration
	return ptx
}

func TestPutAndDrain(t *testing.T) {
	m := newMempool(t, 2)
	future := uint32(time.Now().Add(time.Hour).Unix())
	a, b, c := makeTx(future), makeTx(future+1), makeTx(future+2)

	if err := m.PutTx(a); err != nil {
		t.Fatal(err)
	}
	if err := m.PutTx(a); err != ErrTxExist {
		t.Fatalf("duplicate put: %v", err)
	}
	if err := m.PutTx(b); err != nil {
		t.Fatal(err)
	}
	if !m.Full() {
		t.Fatal("pool should be full")
	}
	if err := m.PutTx(c); err != ErrTxFull {
		t.Fatalf("put into full pool: %v", err)
	}
	if !m.HasTx(a.ID()) || m.HasTx(c.ID()) {
		t.Fatal("HasTx")
	}

	var seen []protos.TxID
	m.Range(func(ptx *protos.ProcessedTransaction) bool {
		seen = append(seen, ptx.ID())
		return false
	})
	if len(seen) != 1 || seen[0] != a.ID() {
		t.Fatalf("range %v", seen)
	}

	out := m.DrainPending()
	if len(out) != 2 || out[0] != a || out[1] != b {
		t.Fatalf("drained %d", len(out))
	}
	if m.GetTxCount() != 0 || m.HasTx(a.ID()) {
		t.Fatal("pool not empty after drain")
	}
	if !m.IsKnown(a.ID()) {
		t.Fatal("drained transaction forgotten")
	}
}

func TestPoppedOrder(t *testing.T) {
	m := newMempool(t, 0)
	tx := func(e uint32) *protos.SignedTransaction {
		return &protos.SignedTransaction{Transaction: protos.Transaction{Expiration: e}}
	}
	// block 3 is popped before block 2
	m.PushPopped([]*protos.SignedTransaction{tx(31), tx(32)})
	m.PushPopped([]*protos.SignedTransaction{tx(21), tx(22)})
	if m.PoppedCount() != 4 {
		t.Fatalf("popped %d", m.PoppedCount())
	}
	want := []uint32{21, 22, 31, 32}
	for i, got := range m.DrainPopped() {
		if got.Expiration != want[i] {
			t.Fatalf("position %d holds %d", i, got.Expiration)
		}
	}
	if m.PoppedCount() != 0 {
		t.Fatal("popped not drained")
	}
}

func TestKnownExpires(t *testing.T) {
	m := newMempool(t, 0)
	past := makeTx(uint32(time.Now().Add(-time.Minute).Unix()))
	m.MarkKnown(past.ID(), past.Expiration)
	if m.IsKnown(past.ID()) {
		t.Fatal("expired transaction remembered")
	}
	live := makeTx(uint32(time.Now().Add(time.Minute).Unix()))
	m.MarkKnown(live.ID(), live.Expiration)
	if !m.IsKnown(live.ID()) {
		t.Fatal("live transaction forgotten")
	}
}
