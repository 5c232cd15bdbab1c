package engine

// Clock numbers the steps of one run.
//
// Step numbers are logical: the first step is 1 and every fired step takes
// the next number. No wall-clock time enters a trace, so a replay numbers
// its steps identically.
type Clock struct {
	step int64
}

// NewClock creates a clock that has not yet issued a step.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new step number.
func (c *Clock) Next() int64 {
	c.step++
	return c.step
}

// Current returns the last issued step number, 0 before the first step.
func (c *Clock) Current() int64 {
	return c.step
}

// Reset returns the clock to its initial position.
func (c *Clock) Reset() {
	c.step = 0
}
