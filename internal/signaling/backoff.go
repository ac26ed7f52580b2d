package signaling

import "time"

// BackoffConfig tunes the adaptive polling interval.
type BackoffConfig struct {
	Initial time.Duration
	Min     time.Duration
	Max     time.Duration

	// Multipliers applied after a poll that delivered messages, a poll that
	// came back empty, and a poll that failed.
	Hot   float64
	Idle  float64
	Error float64
}

// DefaultBackoff starts at 1s, speeds up to 500ms while messages flow and
// relaxes to 5s while idle or while the relay is failing.
var DefaultBackoff = BackoffConfig{
	Initial: 1000 * time.Millisecond,
	Min:     500 * time.Millisecond,
	Max:     5000 * time.Millisecond,
	Hot:     0.8,
	Idle:    1.1,
	Error:   1.5,
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoff
	if c.Initial > 0 {
		d.Initial = c.Initial
	}
	if c.Min > 0 {
		d.Min = c.Min
	}
	if c.Max > 0 {
		d.Max = c.Max
	}
	if c.Hot > 0 {
		d.Hot = c.Hot
	}
	if c.Idle > 0 {
		d.Idle = c.Idle
	}
	if c.Error > 0 {
		d.Error = c.Error
	}
	return d
}

// Backoff holds the polling interval for one (room, peer) loop.
type Backoff struct {
	cfg      BackoffConfig
	interval time.Duration
}

func NewBackoff(cfg BackoffConfig) *Backoff {
	cfg = cfg.withDefaults()
	return &Backoff{cfg: cfg, interval: cfg.Initial}
}

// Interval returns the delay before the next poll.
func (b *Backoff) Interval() time.Duration {
	return b.interval
}

// Next records the outcome of a poll and returns the delay before the next one.
func (b *Backoff) Next(delivered int, err error) time.Duration {
	switch {
	case err != nil:
		b.interval = minDuration(b.cfg.Max, scale(b.interval, b.cfg.Error))
	case delivered > 0:
		b.interval = maxDuration(b.cfg.Min, scale(b.interval, b.cfg.Hot))
	default:
		b.interval = minDuration(b.cfg.Max, scale(b.interval, b.cfg.Idle))
	}
	return b.interval
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
