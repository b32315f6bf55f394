package decode

import (
	"time"

	"github.com/lanikai/alohaplay/internal/media"
)

// TimeTuple is the presentation time of a decoded frame.
type TimeTuple struct {
	Timestamp time.Duration
	Duration  time.Duration
}

var noTime = TimeTuple{media.NoTimestamp, media.NoTimestamp}

// findPtsAndDuration assigns a presentation time to a decoded frame. Frames
// come out of the codec in presentation order while input timestamps go into
// ptsHeap in decode order, so the heap minimum is the timestamp of the next
// frame when the codec does not report one. At most one heap entry is consumed
// per frame.
func findPtsAndDuration(timeBase media.Rational, ptsHeap *media.PtsHeap, last TimeTuple, frame *media.VideoFrame) TimeTuple {
	var pts TimeTuple

	// A zero timestamp is what codecs report when they don't know.
	ts := frame.Timestamp()
	switch {
	case ts != media.NoTimestamp && ts != 0:
		pts.Timestamp = ts
		if !ptsHeap.IsEmpty() {
			// Keep the heap in step with the frames.
			ptsHeap.Pop()
		}
	case !ptsHeap.IsEmpty():
		pts.Timestamp = ptsHeap.Pop()
	case last.Timestamp != media.NoTimestamp && last.Duration != media.NoTimestamp:
		pts.Timestamp = last.Timestamp + last.Duration
	default:
		pts.Timestamp = media.NoTimestamp
	}

	if d := frame.Duration(); d != media.NoTimestamp && d != 0 {
		pts.Duration = d
	} else {
		pts.Duration = timeBase.Scale(1)
	}
	return pts
}
