// Package clock provides the injected time source for the service.
// All trading-hours and token-expiry decisions are made in a single fixed
// reference timezone (Indian Standard Time), so callers must never read
// time.Now directly.
package clock

import (
	"time"
	_ "time/tzdata" // keep IST available on machines without a zoneinfo db
)

const referenceZone = "Asia/Kolkata"

// Clock is the time source injected into the authenticator and the engine.
// Now returns the current time already located in the reference timezone.
type Clock interface {
	Now() time.Time
}

// IST is the production clock, pinned to Indian Standard Time.
type IST struct {
	loc *time.Location
}

// NewIST loads the reference timezone and returns the production clock.
func NewIST() (*IST, error) {
	loc, err := time.LoadLocation(referenceZone)
	if err != nil {
		return nil, err
	}
	return &IST{loc: loc}, nil
}

func (c *IST) Now() time.Time {
	return time.Now().In(c.loc)
}

// Fixed is a Clock frozen at a single instant, for tests.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time {
	return f.T
}
