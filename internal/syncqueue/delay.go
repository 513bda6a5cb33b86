package syncqueue

import (
	"math/rand"
	"time"
)

// DelayStrategy decides how long to wait between queue items. The
// production strategy is randomized jitter to avoid hammering the
// upstream source; tests substitute a zero-delay strategy.
type DelayStrategy interface {
	NextDelay() time.Duration
}

// RandomDelay yields a uniformly random duration in [Min, Max].
type RandomDelay struct {
	Min time.Duration
	Max time.Duration
}

func (d RandomDelay) NextDelay() time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(rand.Int63n(int64(d.Max-d.Min)))
}

// NoDelay disables inter-item waiting.
type NoDelay struct{}

func (NoDelay) NextDelay() time.Duration { return 0 }
