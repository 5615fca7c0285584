package broker

import (
	"time"

	"github.com/ykarpov/brokersim/pkg/common"
)

// Clock is the virtual time source of a simulation. It is configured with a
// half-open window [from, to) and a candle interval, and advances strictly
// monotonically in interval-sized steps. The first step lands just after from
// so that the instant always falls inside the first candle of the window
// rather than on its boundary.
type Clock struct {
	from     time.Time
	to       time.Time
	step     time.Duration
	interval common.Interval
	current  time.Time
	ticks    int
	now      func() time.Time
}

// NewClock creates an unconfigured clock. The wall clock is only consulted to
// validate that a window ends in the past, never to produce simulated time.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Configure resets the clock to the given window and interval. The window must
// end no later than the current UTC midnight so every candle in it is final.
func (c *Clock) Configure(from, to time.Time, interval common.Interval) error {
	step, err := interval.Duration()
	if err != nil {
		return preconditionf("configure: %v", err)
	}
	if !from.Before(to) {
		return preconditionf("configure: from %s must precede to %s", from, to)
	}
	today := c.now().UTC().Truncate(24 * time.Hour)
	if to.After(today) {
		return preconditionf("configure: to %s must not be later than today %s", to, today)
	}
	c.from = from
	c.to = to
	c.step = step
	c.interval = interval
	c.current = time.Time{}
	c.ticks = 0
	return nil
}

// Step advances the clock by one interval. The first call moves to from+1ms,
// each subsequent call adds the interval. It reports false once the candidate
// instant would reach or pass to; the clock then stays exhausted.
func (c *Clock) Step() (bool, error) {
	if !c.Configured() {
		return false, preconditionf("step: clock is not configured")
	}
	var next time.Time
	if c.ticks == 0 {
		next = c.from.Add(time.Millisecond)
	} else {
		next = c.current.Add(c.step)
	}
	if !next.Before(c.to) {
		return false, nil
	}
	c.current = next
	c.ticks++
	return true, nil
}

// Now returns the current simulated instant. It is an error to ask for the
// time before the first successful Step.
func (c *Clock) Now() (time.Time, error) {
	if c.ticks == 0 {
		return time.Time{}, preconditionf("now: clock has not been stepped")
	}
	return c.current, nil
}

func (c *Clock) Configured() bool {
	return c.step > 0
}

// Ticked reports whether at least one step has happened since Configure.
func (c *Clock) Ticked() bool {
	return c.ticks > 0
}

func (c *Clock) Interval() common.Interval {
	return c.interval
}

func (c *Clock) Window() (time.Time, time.Time) {
	return c.from, c.to
}
