package media

import (
	"sync"
	"time"
)

// Clock tracks media time. While playing, media time advances with the wall
// clock scaled by the playback rate.
type Clock struct {
	now func() time.Time

	playing bool
	rate    float64

	// Media time at anchor.
	base   time.Duration
	anchor time.Time

	sync.Mutex
}

// NewClock creates a paused clock at time zero. now defaults to time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, rate: 1}
}

// Play starts advancing media time from its current value.
func (c *Clock) Play() time.Duration {
	c.Lock()
	defer c.Unlock()

	if !c.playing {
		c.playing = true
		c.anchor = c.now()
	}
	return c.base
}

// Pause freezes media time and returns it.
func (c *Clock) Pause() time.Duration {
	c.Lock()
	defer c.Unlock()

	c.base = c.elapsedLocked()
	c.playing = false
	return c.base
}

func (c *Clock) IsPlaying() bool {
	c.Lock()
	defer c.Unlock()
	return c.playing
}

// SetPlaybackRate changes the speed of media time relative to wall time.
func (c *Clock) SetPlaybackRate(rate float64) {
	c.Lock()
	defer c.Unlock()

	c.base = c.elapsedLocked()
	c.anchor = c.now()
	c.rate = rate
}

func (c *Clock) PlaybackRate() float64 {
	c.Lock()
	defer c.Unlock()
	return c.rate
}

// Seek sets media time.
func (c *Clock) Seek(t time.Duration) {
	c.Lock()
	defer c.Unlock()

	c.base = t
	c.anchor = c.now()
}

// Elapsed returns the current media time.
func (c *Clock) Elapsed() time.Duration {
	c.Lock()
	defer c.Unlock()
	return c.elapsedLocked()
}

func (c *Clock) elapsedLocked() time.Duration {
	if !c.playing {
		return c.base
	}
	wall := c.now().Sub(c.anchor)
	return c.base + time.Duration(float64(wall)*c.rate)
}
