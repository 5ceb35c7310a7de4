package tracker

import (
	"sync"
	"time"
)

type routeOutcome int

const (
	outcomeRouted routeOutcome = iota
	outcomeRejected
	outcomeSaved
)

type statsWindow struct {
	routed   uint64
	rejected uint64
	saved    uint64
}

// routerStats keeps rolling per-minute routing counters for observability.
// The counts are logged, never asserted on.
type routerStats struct {
	mu          sync.Mutex
	windowStart time.Time
	current     statsWindow

	now func() time.Time
}

func newRouterStats() *routerStats {
	s := &routerStats{now: time.Now}
	s.windowStart = s.now()
	return s
}

// note records one routing outcome. When a minute has elapsed it returns
// the finished window's totals and starts a new window.
func (s *routerStats) note(outcome routeOutcome) (statsWindow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finished statsWindow
	rolled := false
	if now := s.now(); now.Sub(s.windowStart) >= time.Minute {
		finished = s.current
		s.current = statsWindow{}
		s.windowStart = now
		rolled = true
	}

	switch outcome {
	case outcomeRouted:
		s.current.routed++
	case outcomeRejected:
		s.current.rejected++
	case outcomeSaved:
		s.current.saved++
	}
	return finished, rolled
}

func (s *routerStats) snapshot() statsWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
