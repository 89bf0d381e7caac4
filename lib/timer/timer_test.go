package timer

import (
	"strings"
	"testing"
	"time"
)

func TestXTimer(t *testing.T) {
	tm := NewXTimer()
	time.Sleep(2 * time.Millisecond)
	tm.Mark("a")
	tm.Mark("b")
	tm.Mark("a")

	laps := tm.Laps()
	if len(laps) != 2 || laps["a"] < 2*time.Millisecond {
		t.Errorf("unexpected laps %v", laps)
	}
	out := tm.Print()
	if !strings.HasPrefix(out, "a:") || !strings.Contains(out, "total:") {
		t.Errorf("unexpected print %s", out)
	}
	if tm.Elapsed() < 2*time.Millisecond {
		t.Errorf("elapsed too small")
	}
}
