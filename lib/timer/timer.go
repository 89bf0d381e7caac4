package timer

import (
	"fmt"
	"strings"
	"time"
)

// MarkPoint is one named lap of an XTimer.
type MarkPoint struct {
	tag   string
	delta time.Duration
}

// XTimer records laps since it was created. Not safe for concurrent use.
type XTimer struct {
	born   time.Time
	latest time.Time
	points []MarkPoint
}

func NewXTimer() *XTimer {
	now := time.Now()
	return &XTimer{born: now, latest: now}
}

// Mark closes the current lap under tag.
func (t *XTimer) Mark(tag string) {
	now := time.Now()
	t.points = append(t.points, MarkPoint{tag: tag, delta: now.Sub(t.latest)})
	t.latest = now
}

// Elapsed is the time since the timer was created.
func (t *XTimer) Elapsed() time.Duration {
	return time.Since(t.born)
}

// Laps returns lap durations keyed by tag, repeated tags are summed.
func (t *XTimer) Laps() map[string]time.Duration {
	laps := make(map[string]time.Duration, len(t.points))
	for _, p := range t.points {
		laps[p.tag] += p.delta
	}
	return laps
}

func (t *XTimer) Print() string {
	msg := make([]string, 0, len(t.points)+1)
	for _, p := range t.points {
		msg = append(msg, fmt.Sprintf("%s:%.2fms", p.tag, float64(p.delta)/float64(time.Millisecond)))
	}
	msg = append(msg, fmt.Sprintf("total:%.2fms", float64(t.Elapsed())/float64(time.Millisecond)))
	return strings.Join(msg, ",")
}
