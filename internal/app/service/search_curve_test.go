package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSearchCurve(t *testing.T) {
	c := SearchCurve{Base: 50, Step: 25, Max: 400, WidenEvery: 5 * time.Second}

	assert.Equal(t, 50, c.RangeAt(0))
	assert.Equal(t, 50, c.RangeAt(4*time.Second))
	assert.Equal(t, 75, c.RangeAt(5*time.Second))
	assert.Equal(t, 100, c.RangeAt(10*time.Second))

	// Capped at Max no matter the wait.
	assert.Equal(t, 400, c.RangeAt(time.Hour))
	assert.Equal(t, 50, c.RangeAt(-time.Second))

	assert.Equal(t, 0, c.StepsAt(0))
	assert.Equal(t, 2, c.StepsAt(10*time.Second))
	assert.Equal(t, (400-50)/25, c.StepsAt(time.Hour))
}

func TestSearchCurveDegenerateConfig(t *testing.T) {
	// Zero Step or WidenEvery never widens and never divides by zero.
	flat := SearchCurve{Base: 50, Step: 0, Max: 400, WidenEvery: 5 * time.Second}
	assert.Equal(t, 50, flat.RangeAt(10*time.Second))
	assert.Equal(t, 0, flat.StepsAt(10*time.Second))

	frozen := SearchCurve{Base: 50, Step: 25, Max: 400, WidenEvery: 0}
	assert.Equal(t, 50, frozen.RangeAt(10*time.Second))
	assert.Equal(t, 0, frozen.StepsAt(10*time.Second))
}
