package service

import "time"

// SearchCurve is the range-widening policy: the acceptable MMR gap starts at
// Base and grows by Step every WidenEvery of wait time, capped at Max.
type SearchCurve struct {
	Base       int
	Step       int
	Max        int
	WidenEvery time.Duration
}

// RangeAt returns the search range for an entry that has waited this long.
// A non-positive Step or WidenEvery pins the range at Base.
func (c SearchCurve) RangeAt(wait time.Duration) int {
	if wait < 0 {
		wait = 0
	}
	r := c.Base
	if c.Step > 0 && c.WidenEvery > 0 {
		r += int(wait/c.WidenEvery) * c.Step
	}
	if r > c.Max {
		return c.Max
	}
	return r
}

// StepsAt returns how many widenings have happened after this much wait.
func (c SearchCurve) StepsAt(wait time.Duration) int {
	if c.Step <= 0 {
		return 0
	}
	return (c.RangeAt(wait) - c.Base) / c.Step
}
