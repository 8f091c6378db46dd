package mortar

import (
	"time"
)

// Trace captures one top-level evaluation: the source, its result or error,
// and when and how long it ran.
type Trace struct {
	Source   string
	Result   Value
	Error    string // non-empty on error
	Start    time.Time
	Duration time.Duration
}

// ToGo converts a Trace to a JSON-ready map. Results that cannot be
// serialized are rendered as text.
func (t *Trace) ToGo() map[string]any {
	m := map[string]any{
		"source":      t.Source,
		"timestamp":   t.Start.Format(time.RFC3339Nano),
		"duration_ns": t.Duration.Nanoseconds(),
	}
	if t.Error != "" {
		m["error"] = t.Error
		m["result"] = nil
		return m
	}
	m["error"] = nil
	if v, err := ValueToGo(t.Result); err == nil {
		m["result"] = v
	} else {
		m["result"] = t.Result.String()
	}
	return m
}

// DefaultMaxTraces is the capacity of a Recorder built with a non-positive
// limit.
const DefaultMaxTraces = 1000

// Recorder keeps the most recent traces, dropping the oldest beyond its cap.
// It is not safe for concurrent use.
type Recorder struct {
	traces    []Trace
	maxTraces int
}

func NewRecorder(maxTraces int) *Recorder {
	if maxTraces <= 0 {
		maxTraces = DefaultMaxTraces
	}
	return &Recorder{maxTraces: maxTraces}
}

// Append adds a trace and enforces the cap.
func (r *Recorder) Append(t Trace) {
	r.traces = append(r.traces, t)
	if len(r.traces) > r.maxTraces {
		// Drop oldest traces
		excess := len(r.traces) - r.maxTraces
		r.traces = r.traces[excess:]
	}
}

// Recent returns up to n traces, oldest first. n <= 0 means all of them.
func (r *Recorder) Recent(n int) []Trace {
	if n <= 0 || n > len(r.traces) {
		n = len(r.traces)
	}
	out := make([]Trace, n)
	copy(out, r.traces[len(r.traces)-n:])
	return out
}

func (r *Recorder) Len() int {
	return len(r.traces)
}

func (r *Recorder) Clear() {
	r.traces = nil
}
