package timing

import (
	"sync"
	"time"
)

// PhaseDuration is one completed phase of a query run.
type PhaseDuration struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
}

// Stopwatch records wall-clock durations for the named phases of a
// single query run. Safe for concurrent use; phases sharing a name
// accumulate.
type Stopwatch struct {
	mu      sync.Mutex
	started time.Time
	order   []string
	phases  map[string]time.Duration
}

func NewStopwatch() *Stopwatch {
	return &Stopwatch{
		started: time.Now(),
		phases:  make(map[string]time.Duration),
	}
}

// Phase starts timing a named phase and returns a stop function. The
// duration is recorded when the stop function runs.
func (s *Stopwatch) Phase(name string) func() {
	start := time.Now()
	return func() {
		s.add(name, time.Since(start))
	}
}

// Track runs fn and records its duration under name.
func (s *Stopwatch) Track(name string, fn func()) {
	defer s.Phase(name)()
	fn()
}

func (s *Stopwatch) add(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.phases[name]; !ok {
		s.order = append(s.order, name)
	}
	s.phases[name] += d
}

// Elapsed returns the total wall-clock time since the stopwatch was
// created.
func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.started)
}

// Snapshot returns the recorded phases in first-start order.
func (s *Stopwatch) Snapshot() []PhaseDuration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PhaseDuration, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, PhaseDuration{
			Name:       name,
			DurationMs: s.phases[name].Milliseconds(),
		})
	}
	return out
}
