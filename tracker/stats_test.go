package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRouterStats_CountsPerOutcome(t *testing.T) {
	s := newRouterStats()

	s.note(outcomeRouted)
	s.note(outcomeRouted)
	s.note(outcomeRejected)
	s.note(outcomeSaved)

	window := s.snapshot()
	assert.Equal(t, uint64(2), window.routed)
	assert.Equal(t, uint64(1), window.rejected)
	assert.Equal(t, uint64(1), window.saved)
}

func TestRouterStats_RollsOverAfterAMinute(t *testing.T) {
	clock := time.Unix(1663222470, 0)
	s := &routerStats{now: func() time.Time { return clock }}
	s.windowStart = clock

	_, rolled := s.note(outcomeRouted)
	assert.False(t, rolled)
	_, rolled = s.note(outcomeSaved)
	assert.False(t, rolled)

	clock = clock.Add(61 * time.Second)

	finished, rolled := s.note(outcomeRejected)
	assert.True(t, rolled)
	assert.Equal(t, uint64(1), finished.routed)
	assert.Equal(t, uint64(1), finished.saved)
	assert.Equal(t, uint64(0), finished.rejected)

	window := s.snapshot()
	assert.Equal(t, uint64(1), window.rejected, "the new window starts with the rolling outcome")
	assert.Equal(t, uint64(0), window.routed)
}
