package clock

import "time"

// FakeClock pins Now to a fixed instant so billing months and dispute
// deadlines can be asserted exactly.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward, e.g. past a dispute deadline.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
