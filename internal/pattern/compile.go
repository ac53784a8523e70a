package pattern

import (
	"errors"
	"strconv"
	"time"
)

// ErrBadPeriod is returned when the tick period is not positive.
var ErrBadPeriod = errors.New("pattern: tick period must be positive")

// Compile quantizes d onto a grid of the given period.
//
// Each duration contributes floor(|v|/period) ticks at level v >= 0, so a
// duration shorter than one period contributes nothing. A Repeat of 1 runs
// the pattern once (Remaining 0); a negative Repeat runs forever.
func Compile(d Descriptor, period time.Duration) (Program, error) {
	if period <= 0 {
		return Program{}, ErrBadPeriod
	}
	if d.Repeat == 0 {
		return Program{}, nil
	}

	// Largest millisecond value that can fit in MaxTicks; checked first so
	// the Duration multiplication below cannot overflow.
	limit := (int64(MaxTicks)*int64(period) + int64(time.Millisecond) - 1) / int64(time.Millisecond)

	var ticks []bool
	for i, v := range d.Scheme {
		on := v >= 0
		if v < 0 {
			v = -v
		}
		n := 0
		if v >= 0 && int64(v) <= limit {
			n = int((time.Duration(v) * time.Millisecond) / period)
		}
		if v < 0 || int64(v) > limit || len(ticks)+n > MaxTicks {
			return Program{}, &PatternSyntaxError{
				Field:  "scheme[" + strconv.Itoa(i) + "]",
				Value:  strconv.Itoa(d.Scheme[i]),
				Reason: "pattern longer than " + strconv.Itoa(MaxTicks) + " ticks",
			}
		}
		for j := 0; j < n; j++ {
			ticks = append(ticks, on)
		}
	}
	if len(ticks) == 0 {
		return Program{}, nil
	}

	remaining := Infinite
	if d.Repeat > 0 {
		remaining = d.Repeat - 1
	}
	return Program{Remaining: remaining, Ticks: ticks}, nil
}
