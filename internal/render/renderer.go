// Package render paces decoded video frames against the host clock and hands
// them to a Sink.
package render

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/logging"
	"github.com/lanikai/alohaplay/internal/media"
)

var log = logging.DefaultLogger.WithTag("render")

const (
	// Read-ahead. One frame is typically being replaced while the next two
	// give the current frame and the timestamp that follows it.
	maxFrames = 3

	maxSleep  = 60 * time.Millisecond
	idleSleep = 10 * time.Millisecond
)

var ErrInvalidSize = errors.New("render: invalid video size")

type State int

const (
	StateUninitialized State = iota
	StatePaused
	StateSeeking
	StatePlaying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StatePaused:
		return "Paused"
	case StateSeeking:
		return "Seeking"
	case StatePlaying:
		return "Playing"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// A Decoder produces frames on request. Each ProduceVideoFrame call is
// answered by one call to the renderer's ConsumeVideoFrame.
type Decoder interface {
	ProduceVideoFrame(frame *media.VideoFrame)
}

// A Sink displays frames. RenderFrame is called from the renderer goroutine
// each time the current frame changes.
type Sink interface {
	RenderFrame(frame *media.VideoFrame) error
}

type Renderer struct {
	host media.Host
	sink Sink

	sleep func(time.Duration)

	mu            sync.Mutex
	frameArrived  *sync.Cond
	state         State
	decoder       Decoder
	width, height int
	rate          float64
	frames        []*media.VideoFrame
	current       *media.VideoFrame
	rendered      *media.VideoFrame
	pendingReads  int
	eos           bool
	endNotified   bool
	previousTime  time.Duration
	pauseDone     func()
	seekDone      func()
	done          chan struct{}
}

func NewRenderer(host media.Host, sink Sink) *Renderer {
	r := &Renderer{
		host:  host,
		sink:  sink,
		sleep: time.Sleep,
		rate:  1,
	}
	r.frameArrived = sync.NewCond(&r.mu)
	return r
}

// Initialize starts the play goroutine, paused on a black frame.
func (r *Renderer) Initialize(decoder Decoder, width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateUninitialized {
		return errors.Errorf("render: initialize in state %v", r.state)
	}
	if !media.ValidDimensions(width, height) {
		r.host.SetError(media.PipelineErrorInitializationFailed)
		return errors.Wrapf(ErrInvalidSize, "%dx%d", width, height)
	}
	r.host.SetVideoSize(width, height)

	black, err := r.blackFrame(width, height)
	if err != nil {
		r.host.SetError(media.PipelineErrorInitializationFailed)
		return err
	}
	r.decoder = decoder
	r.width, r.height = width, height
	r.current = black
	r.state = StatePaused
	r.done = make(chan struct{})
	go r.run()
	return nil
}

func (r *Renderer) blackFrame(width, height int) (*media.VideoFrame, error) {
	frame, err := media.NewVideoFrame(media.FormatYV12, width, height, 0, 0)
	if err != nil {
		return nil, err
	}
	frame.FillBlack()
	return frame, nil
}

func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// CurrentFrame returns the frame currently on display.
func (r *Renderer) CurrentFrame() *media.VideoFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Renderer) SetPlaybackRate(rate float64) {
	r.mu.Lock()
	r.rate = rate
	r.mu.Unlock()
}

func (r *Renderer) Play() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused {
		log.Warn("Play in state %v", r.state)
		return
	}
	r.state = StatePlaying
	r.frameArrived.Broadcast()
}

// Pause stops advancing frames. done runs once no read is outstanding.
func (r *Renderer) Pause(done func()) {
	r.mu.Lock()
	switch r.state {
	case StatePlaying:
		r.state = StatePaused
		r.frameArrived.Broadcast()
	case StatePaused:
	default:
		state := r.state
		r.mu.Unlock()
		log.Warn("Pause in state %v", state)
		done()
		return
	}
	if r.pendingReads > 0 {
		r.pauseDone = done
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	done()
}

// Seek discards queued frames and prerolls new ones. done runs once
// maxFrames frames or the end of stream arrived. The renderer must be paused
// with no reads outstanding.
func (r *Renderer) Seek(done func()) {
	r.mu.Lock()
	if r.state != StatePaused {
		state := r.state
		r.mu.Unlock()
		log.Warn("Seek in state %v", state)
		done()
		return
	}
	if r.pendingReads > 0 {
		log.Warn("Seek with %d reads outstanding", r.pendingReads)
	}
	r.state = StateSeeking
	r.seekDone = done
	r.frames = nil
	r.eos = false
	r.endNotified = false
	for i := 0; i < maxFrames; i++ {
		r.scheduleReadLocked()
	}
	r.mu.Unlock()
}

// Stop ends the play goroutine. Outstanding pause or seek callbacks run.
func (r *Renderer) Stop() {
	r.mu.Lock()
	if r.state == StateStopped {
		r.mu.Unlock()
		return
	}
	started := r.state != StateUninitialized
	r.state = StateStopped
	r.frameArrived.Broadcast()
	callbacks := []func(){r.pauseDone, r.seekDone}
	r.pauseDone, r.seekDone = nil, nil
	r.frames = nil
	r.mu.Unlock()

	if started {
		<-r.done
	}
	for _, cb := range callbacks {
		if cb != nil {
			cb()
		}
	}
}

func (r *Renderer) scheduleReadLocked() {
	r.pendingReads++
	r.decoder.ProduceVideoFrame(nil)
}

// ConsumeVideoFrame receives a frame requested from the decoder.
func (r *Renderer) ConsumeVideoFrame(frame *media.VideoFrame) {
	r.mu.Lock()
	if r.state == StateUninitialized || r.state == StateStopped {
		r.mu.Unlock()
		return
	}
	if r.pendingReads > 0 {
		r.pendingReads--
	}

	switch {
	case frame.IsEndOfStream():
		r.eos = true
	case frame.Timestamp() == media.NoTimestamp:
		log.Debug("Dropping frame without timestamp")
		if r.state == StateSeeking || r.state == StatePlaying {
			r.scheduleReadLocked()
		}
	default:
		r.frames = append(r.frames, frame)
	}
	r.frameArrived.Broadcast()

	var callback func()
	var show *media.VideoFrame
	switch {
	case r.state == StateSeeking && (len(r.frames) >= maxFrames || r.eos):
		if len(r.frames) == 0 {
			// Nothing left to show, most likely a seek to the very end.
			if black, err := r.blackFrame(r.width, r.height); err == nil {
				r.current = black
			}
		} else {
			r.current = r.frames[0]
		}
		r.state = StatePaused
		show = r.current
		callback, r.seekDone = r.seekDone, nil
	case r.state == StatePaused && r.pendingReads == 0:
		callback, r.pauseDone = r.pauseDone, nil
	}
	r.mu.Unlock()

	if show != nil {
		r.render(show)
	}
	if callback != nil {
		callback()
	}
}

func (r *Renderer) render(frame *media.VideoFrame) {
	r.mu.Lock()
	if frame == r.rendered {
		r.mu.Unlock()
		return
	}
	r.rendered = frame
	r.mu.Unlock()

	if err := r.sink.RenderFrame(frame); err != nil {
		log.Error("Render frame at %v: %v", frame.Timestamp(), err)
		r.host.SetError(media.PipelineErrorCouldNotRender)
	}
}

func (r *Renderer) run() {
	defer close(r.done)

	for {
		r.mu.Lock()
		state, rate := r.state, r.rate
		r.mu.Unlock()

		if state == StateStopped {
			return
		}
		if state != StatePlaying || rate == 0 {
			r.sleep(idleSleep)
			continue
		}

		frame, sleep, ok := r.advance(rate)
		if !ok {
			continue
		}

		// Too far behind to catch up: drop the frame.
		if sleep < 0 {
			continue
		}
		if sleep > maxSleep {
			sleep = maxSleep
		}
		r.render(frame)
		r.sleep(sleep)
	}
}

// advance moves to the next frame and returns it with the time to show it
// for. ok is false if the caller should just loop again.
func (r *Renderer) advance(rate float64) (frame *media.VideoFrame, sleep time.Duration, ok bool) {
	r.mu.Lock()
	if r.state != StatePlaying {
		r.mu.Unlock()
		return nil, 0, false
	}

	// Idle while the current frame is still ahead of the clock.
	if r.current.Timestamp()-r.host.Time() > idleSleep {
		r.mu.Unlock()
		r.sleep(idleSleep)
		return nil, 0, false
	}

	// The queue is empty after a seek to the very end.
	if len(r.frames) > 0 {
		r.frames = r.frames[1:]
		r.scheduleReadLocked()
	}
	for len(r.frames) == 0 && r.state == StatePlaying && !r.eos {
		r.frameArrived.Wait()
	}
	if r.state != StatePlaying {
		r.mu.Unlock()
		return nil, 0, false
	}
	if len(r.frames) == 0 {
		notify := !r.endNotified
		r.endNotified = true
		r.mu.Unlock()
		if notify {
			log.Info("Reached end of stream")
			r.host.NotifyEnded()
		}
		r.sleep(idleSleep)
		return nil, 0, false
	}

	r.current = r.frames[0]
	var next *media.VideoFrame
	if len(r.frames) >= 2 {
		next = r.frames[1]
	}
	sleep = r.sleepDurationLocked(next, rate)
	frame = r.current
	r.mu.Unlock()
	return frame, sleep, true
}

func (r *Renderer) sleepDurationLocked(next *media.VideoFrame, rate float64) time.Duration {
	now := r.host.Time()
	thisPts := r.current.Timestamp()
	nextPts := thisPts + r.current.Duration()
	if next != nil {
		nextPts = next.Timestamp()
	}

	var sleep time.Duration
	if now == r.previousTime {
		// The clock has not moved; assume a frame's worth.
		sleep = nextPts - thisPts
	} else {
		sleep = nextPts - now
		r.previousTime = now
	}
	return time.Duration(float64(sleep) / rate)
}
