package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time for test clocks.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a deterministic, thread-safe time source for tests.
//
// Each call to Now returns the current instant and then moves the clock
// forward by the configured step, so successive timestamps are distinct and
// strictly increasing. Pass clock.Now wherever a func() time.Time is taken.
type StepClock struct {
	mu   sync.Mutex
	base time.Time
	cur  time.Time
	step time.Duration
}

// NewStepClock creates a clock starting at start that advances by step on
// every read. A zero start uses Epoch.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	if start.IsZero() {
		start = Epoch
	}
	return &StepClock{base: start, cur: start, step: step}
}

// Now returns the current instant and advances the clock by one step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.cur
	c.cur = c.cur.Add(c.step)
	return t
}

// Current returns the next instant Now would return, without advancing.
func (c *StepClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Advance jumps the clock forward by d.
func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

// Reset returns the clock to its start time.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.base
}
