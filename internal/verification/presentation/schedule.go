// Package presentation drives the two ways a wallet presentation reaches the
// storefront: direct_post, observed by polling or callback, and dc_api, where
// the browser hands the response back synchronously.
package presentation

import (
	"math"
	"time"
)

// Schedule is the direct_post polling policy.
type Schedule struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	Ceiling    time.Duration
}

// DefaultSchedule polls after 1s, grows by 1.5x up to 5s, and gives up after
// five minutes.
func DefaultSchedule() Schedule {
	return Schedule{
		Initial:    time.Second,
		Multiplier: 1.5,
		Max:        5 * time.Second,
		Ceiling:    5 * time.Minute,
	}
}

// NextDelay returns the wait before poll number attempt+1. It depends only on
// attempt.
func (s Schedule) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(s.Initial) * math.Pow(s.Multiplier, float64(attempt))
	if d >= float64(s.Max) || math.IsInf(d, 1) || math.IsNaN(d) {
		return s.Max
	}
	return time.Duration(d)
}

// withDefaults fills zero fields from DefaultSchedule.
func (s Schedule) withDefaults() Schedule {
	def := DefaultSchedule()
	if s.Initial <= 0 {
		s.Initial = def.Initial
	}
	if s.Multiplier < 1 {
		s.Multiplier = def.Multiplier
	}
	if s.Max <= 0 {
		s.Max = def.Max
	}
	if s.Ceiling <= 0 {
		s.Ceiling = def.Ceiling
	}
	return s
}
