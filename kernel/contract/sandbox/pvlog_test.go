package sandbox

import (
	"bytes"
	"testing"

	"github.com/xuperchain/xupergraph/protos"
)

func TestProcessLogReplay(t *testing.T) {
	fresh := NewProcessLog()
	if fresh.Used() {
		t.Fatal("new log reported used")
	}
	var draws []uint64
	for i := 0; i < 3; i++ {
		v, err := fresh.Random()
		if err != nil {
			t.Fatal(err)
		}
		if v > 0x7fffffff {
			t.Errorf("draw %d out of range", v)
		}
		draws = append(draws, v)
	}
	tm, _ := fresh.RealTime()

	replay := ReplayProcessLog(fresh.Value())
	for i, want := range draws {
		got, err := replay.Random()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("draw %d: expect %d got %d", i, want, got)
		}
	}
	if got, _ := replay.RealTime(); got != tm {
		t.Errorf("time: expect %d got %d", tm, got)
	}
	if _, err := replay.Random(); err != ErrProcessValueExhausted {
		t.Errorf("expect ErrProcessValueExhausted got %v", err)
	}
}

func TestCipherSealOpen(t *testing.T) {
	var chain protos.ChainID
	chain[0] = 7
	c, err := NewCipher(chain, "")
	if err != nil {
		t.Fatal(err)
	}
	pv := protos.ProcessValue{Random: []uint64{1, 2}, TimeTable: []uint64{99}}
	a, err := c.Seal(pv)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Seal(pv)
	if !bytes.Equal(a, b) {
		t.Error("sealing is not deterministic")
	}
	back, err := c.Open(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Random) != 2 || back.Random[1] != 2 || back.TimeTable[0] != 99 {
		t.Errorf("unexpected process value %+v", back)
	}

	other, _ := NewCipher(chain, "another secret")
	if _, err := other.Open(a); err == nil {
		t.Error("opened with the wrong key")
	}
	a[len(a)-1] ^= 1
	if _, err := c.Open(a); err == nil {
		t.Error("opened a tampered value")
	}
}
