package decode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lanikai/alohaplay/internal/media"
)

var timeBase30 = media.Rational{Num: 1, Den: 30}

func frameAt(ts, duration time.Duration) *media.VideoFrame {
	f, _ := media.NewVideoFrame(media.FormatYV12, 2, 2, ts, duration)
	return f
}

func TestPtsFromFrames(t *testing.T) {
	var ptsHeap media.PtsHeap
	last := noTime

	for _, ts := range []time.Duration{10, 20, 30} {
		ptsHeap.Push(ts * time.Millisecond)
	}
	for _, ts := range []time.Duration{10, 20, 30} {
		last = findPtsAndDuration(timeBase30, &ptsHeap, last, frameAt(ts*time.Millisecond, 0))
		assert.Equal(t, ts*time.Millisecond, last.Timestamp)
	}
	// One heap entry consumed per frame.
	assert.True(t, ptsHeap.IsEmpty())
}

func TestPtsFromHeap(t *testing.T) {
	var ptsHeap media.PtsHeap
	last := noTime

	// Decode order.
	for _, ts := range []time.Duration{10, 5, 15} {
		ptsHeap.Push(ts)
	}
	for _, want := range []time.Duration{5, 10, 15} {
		last = findPtsAndDuration(timeBase30, &ptsHeap, last, frameAt(media.NoTimestamp, 0))
		assert.Equal(t, want, last.Timestamp)
	}
}

func TestPtsFromLastFrame(t *testing.T) {
	var ptsHeap media.PtsHeap
	last := TimeTuple{Timestamp: 100, Duration: 33}

	pts := findPtsAndDuration(timeBase30, &ptsHeap, last, frameAt(0, media.NoTimestamp))
	assert.Equal(t, time.Duration(133), pts.Timestamp)
}

func TestPtsUnknown(t *testing.T) {
	var ptsHeap media.PtsHeap

	pts := findPtsAndDuration(timeBase30, &ptsHeap, noTime, frameAt(media.NoTimestamp, 0))
	assert.Equal(t, media.NoTimestamp, pts.Timestamp)
}

func TestPtsDuration(t *testing.T) {
	var ptsHeap media.PtsHeap

	pts := findPtsAndDuration(timeBase30, &ptsHeap, noTime, frameAt(time.Second, 50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, pts.Duration)

	// Falls back to one frame of the time base.
	pts = findPtsAndDuration(timeBase30, &ptsHeap, noTime, frameAt(time.Second, 0))
	assert.Equal(t, 33333*time.Microsecond, pts.Duration)
	pts = findPtsAndDuration(timeBase30, &ptsHeap, noTime, frameAt(time.Second, media.NoTimestamp))
	assert.Equal(t, 33333*time.Microsecond, pts.Duration)
}
