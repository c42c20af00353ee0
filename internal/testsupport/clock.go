// Package testsupport holds an injectable Clock, golden-file comparison,
// and fixture builders shared by the evaluator, notifier, parser,
// scheduler, and store tests.
package testsupport

import "time"

// Clock provides current time, injectable for deterministic tests. Pass a
// Clock's Now method value wherever a component takes a func() time.Time.
type Clock interface {
	Now() time.Time
}

var (
	_ Clock = FixedClock{}
	_ Clock = (*ManualClock)(nil)
)

// FixedClock always returns T; useful for single-assertion tests.
type FixedClock struct{ T time.Time }

func (fc FixedClock) Now() time.Time { return fc.T }

// ManualClock allows a test to advance time explicitly, e.g. to cross a
// trading-day boundary and assert dedup-set eviction.
type ManualClock struct{ current time.Time }

// NewManualClock creates a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{current: start}
}

func (mc *ManualClock) Now() time.Time { return mc.current }

// Advance moves the clock forward by d.
func (mc *ManualClock) Advance(d time.Duration) { mc.current = mc.current.Add(d) }

// Set moves the clock to t.
func (mc *ManualClock) Set(t time.Time) { mc.current = t }
