// Package system adapts wall time to discovery.Clock.
package system

import (
	"time"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

// Func adapts a time source to discovery.Clock. Budget windows and cooldown
// markers are keyed in UTC, so every reading is converted.
type Func func() time.Time

// Now implements discovery.Clock.
func (f Func) Now() time.Time {
	return f().UTC()
}

// New returns the wall clock.
func New() discovery.Clock {
	return Func(time.Now)
}
