package signaling

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_IdleThenError(t *testing.T) {
	b := NewBackoff(BackoffConfig{})
	assert.Equal(t, time.Second, b.Interval())

	for i := 0; i < 3; i++ {
		b.Next(0, nil)
	}
	assert.InDelta(t, float64(1331*time.Millisecond), float64(b.Interval()), float64(time.Millisecond))

	b.Next(0, errors.New("relay down"))
	assert.InDelta(t, float64(1996500*time.Microsecond), float64(b.Interval()), float64(time.Millisecond))
}

func TestBackoff_HotFloor(t *testing.T) {
	b := NewBackoff(BackoffConfig{})
	for i := 0; i < 20; i++ {
		b.Next(3, nil)
	}
	assert.Equal(t, 500*time.Millisecond, b.Interval())
}

func TestBackoff_Ceiling(t *testing.T) {
	b := NewBackoff(BackoffConfig{})
	for i := 0; i < 50; i++ {
		b.Next(0, nil)
	}
	assert.Equal(t, 5*time.Second, b.Interval())

	b.Next(0, errors.New("still down"))
	assert.Equal(t, 5*time.Second, b.Interval())
}

func TestBackoff_ErrorBacksOffFasterThanIdle(t *testing.T) {
	idle := NewBackoff(BackoffConfig{})
	failing := NewBackoff(BackoffConfig{})
	idle.Next(0, nil)
	failing.Next(0, errors.New("boom"))
	assert.Greater(t, failing.Interval(), idle.Interval())
}
