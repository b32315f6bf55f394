package media

import (
	"fmt"
	"math"
	"time"
)

// NoTimestamp marks a timestamp or duration that is unknown.
const NoTimestamp = time.Duration(math.MinInt64)

// Rational is a fraction, used for time bases and frame rates.
type Rational struct {
	Num int
	Den int
}

func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

func (r Rational) Invert() Rational {
	return Rational{r.Den, r.Num}
}

func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Scale converts n units of time base r into a duration, rounded to the nearest
// microsecond. Returns NoTimestamp if r is not a valid time base.
func (r Rational) Scale(n int64) time.Duration {
	if !r.Valid() {
		return NoTimestamp
	}
	num := n * int64(r.Num)
	den := int64(r.Den)
	whole := num / den * 1e6
	frac := (num%den*1e6 + den/2) / den
	return time.Duration(whole+frac) * time.Microsecond
}

// FrameDuration returns the display duration of a picture that repeats
// repeatCount half-frames at the given frame rate: (2 + repeatCount) / (2 * fps).
func FrameDuration(frameRate Rational, repeatCount int) time.Duration {
	if !frameRate.Valid() {
		return NoTimestamp
	}
	doubled := Rational{frameRate.Den, frameRate.Num * 2}
	return doubled.Scale(int64(2 + repeatCount))
}
