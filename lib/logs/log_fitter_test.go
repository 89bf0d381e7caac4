package logs

import (
	"fmt"
	"sync"
	"testing"
)

type recordDriver struct {
	mu      sync.Mutex
	records [][]interface{}
}

func (r *recordDriver) add(msg string, ctx []interface{}) {
	r.mu.Lock()
	r.records = append(r.records, append([]interface{}{msg}, ctx...))
	r.mu.Unlock()
}

func (r *recordDriver) Error(msg string, ctx ...interface{}) { r.add(msg, ctx) }
func (r *recordDriver) Warn(msg string, ctx ...interface{})  { r.add(msg, ctx) }
func (r *recordDriver) Info(msg string, ctx ...interface{})  { r.add(msg, ctx) }
func (r *recordDriver) Trace(msg string, ctx ...interface{}) { r.add(msg, ctx) }
func (r *recordDriver) Debug(msg string, ctx ...interface{}) { r.add(msg, ctx) }

func TestInfoFieldsConsumedOnce(t *testing.T) {
	drv := &recordDriver{}
	lf, err := NewLogFitter(drv, "fixed_id")
	if err != nil {
		t.Fatal(err)
	}
	lf.SetCommField("chain", "main")
	lf.SetInfoField("cost", 12)

	lf.Info("first", "k", "v")
	lf.Info("second")
	lf.Warn("odd", "dangling")

	if len(drv.records) != 3 {
		t.Fatalf("expect 3 records, got %d", len(drv.records))
	}
	first := fmt.Sprint(drv.records[0])
	second := fmt.Sprint(drv.records[1])
	if want := "cost 12"; !contains(first, want) || contains(second, want) {
		t.Errorf("info field should appear once: %s | %s", first, second)
	}
	if !contains(second, "chain main") || !contains(second, "fixed_id") {
		t.Errorf("common fields missing: %s", second)
	}
	if !contains(fmt.Sprint(drv.records[2]), "unknow dangling") {
		t.Errorf("odd ctx not normalized: %v", drv.records[2])
	}
}

func TestLogIdOverride(t *testing.T) {
	drv := &recordDriver{}
	lf, _ := NewLogFitter(drv, "")
	lf.Debug("x", CommFieldLogId, "other")
	rec := drv.records[0]
	if rec[1] != CommFieldLogId || rec[2] != "other" {
		t.Errorf("log id not overridden: %v", rec)
	}
}

func TestConcurrentFitter(t *testing.T) {
	lg, err := NewLogger("", "test")
	if err != nil {
		t.Fatal(err)
	}
	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lg.SetInfoField("n", i)
			lg.Info("concurrent", "i", i)
		}(i)
	}
	wg.Wait()
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
