package sim

import (
	"time"

	"golang.org/x/exp/constraints"
)

// Clock is the time source actors read. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// WallClock returns the real-time clock.
func WallClock() Clock {
	return wallClock{}
}

// wholeSeconds truncates d to whole seconds.
func wholeSeconds(d time.Duration) int {
	return int(d / time.Second)
}

// elapsedMinutes converts a run duration to simulated minutes.
func elapsedMinutes(d, minute time.Duration) int {
	if minute <= 0 {
		return 0
	}
	return int(d / minute)
}

func atLeast[T constraints.Ordered](v, floor T) T {
	if v < floor {
		return floor
	}
	return v
}

func atMost[T constraints.Ordered](v, ceiling T) T {
	if v > ceiling {
		return ceiling
	}
	return v
}
