package render

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohaplay/internal/media"
)

// manualDecoder counts requests; tests answer them by hand.
type manualDecoder struct {
	requests int32
}

func (d *manualDecoder) ProduceVideoFrame(*media.VideoFrame) { atomic.AddInt32(&d.requests, 1) }
func (d *manualDecoder) Requests() int                       { return int(atomic.LoadInt32(&d.requests)) }

// scriptedDecoder answers requests in order from a goroutine, with end of
// stream frames once the script runs out.
type scriptedDecoder struct {
	renderer *Renderer
	requests chan struct{}

	mu     sync.Mutex
	frames []*media.VideoFrame
}

func newScriptedDecoder(frames []*media.VideoFrame) *scriptedDecoder {
	return &scriptedDecoder{requests: make(chan struct{}, 64), frames: frames}
}

func (d *scriptedDecoder) ProduceVideoFrame(*media.VideoFrame) {
	d.requests <- struct{}{}
}

func (d *scriptedDecoder) serve(quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case <-d.requests:
		}
		d.mu.Lock()
		frame := media.NewEmptyFrame()
		if len(d.frames) > 0 {
			frame = d.frames[0]
			d.frames = d.frames[1:]
		}
		d.mu.Unlock()
		d.renderer.ConsumeVideoFrame(frame)
	}
}

func newFrame(t *testing.T, ts time.Duration) *media.VideoFrame {
	frame, err := media.NewVideoFrame(media.FormatYV12, 4, 2, ts, 10*time.Millisecond)
	require.NoError(t, err)
	return frame
}

func newTestRenderer(t *testing.T, decoder Decoder) (*Renderer, *media.SimpleHost, *CountingSink) {
	host := media.NewSimpleHost(nil)
	sink := &CountingSink{}
	r := NewRenderer(host, sink)
	require.NoError(t, r.Initialize(decoder, 4, 2))
	return r, host, sink
}

func TestInitializeInvalidSize(t *testing.T) {
	host := media.NewSimpleHost(nil)
	r := NewRenderer(host, &CountingSink{})
	err := r.Initialize(&manualDecoder{}, 0, 2)
	require.Error(t, err)
	assert.Equal(t, ErrInvalidSize, errors.Cause(err))
	assert.Equal(t, media.PipelineErrorInitializationFailed, host.Error())
	assert.Equal(t, StateUninitialized, r.State())
	r.Stop()
}

func TestInitializeShowsBlackFrame(t *testing.T) {
	r, host, _ := newTestRenderer(t, &manualDecoder{})
	defer r.Stop()

	assert.Equal(t, StatePaused, r.State())
	w, h := host.VideoSize()
	assert.Equal(t, 4, w)
	assert.Equal(t, 2, h)

	black := r.CurrentFrame()
	require.NotNil(t, black)
	assert.Equal(t, make([]byte, len(black.Plane(media.PlaneY))), black.Plane(media.PlaneY))
	for _, b := range black.Plane(media.PlaneU) {
		assert.Equal(t, byte(0x80), b)
	}
}

func TestSeekPrerolls(t *testing.T) {
	decoder := &manualDecoder{}
	r, _, sink := newTestRenderer(t, decoder)
	defer r.Stop()

	seeked := false
	r.Seek(func() { seeked = true })
	assert.Equal(t, maxFrames, decoder.Requests())
	assert.Equal(t, StateSeeking, r.State())

	first := newFrame(t, 0)
	r.ConsumeVideoFrame(first)
	r.ConsumeVideoFrame(newFrame(t, 10*time.Millisecond))
	assert.False(t, seeked)

	r.ConsumeVideoFrame(newFrame(t, 20*time.Millisecond))
	assert.True(t, seeked)
	assert.Equal(t, StatePaused, r.State())
	assert.Same(t, first, r.CurrentFrame())
	assert.Equal(t, 1, sink.Frames())
}

func TestSeekToEndShowsBlackFrame(t *testing.T) {
	r, _, sink := newTestRenderer(t, &manualDecoder{})
	defer r.Stop()

	seeked := false
	r.Seek(func() { seeked = true })
	r.ConsumeVideoFrame(media.NewEmptyFrame())
	assert.True(t, seeked)

	current := r.CurrentFrame()
	require.NotNil(t, current)
	assert.False(t, current.IsEndOfStream())
	assert.Equal(t, byte(0), current.Plane(media.PlaneY)[0])
	assert.Equal(t, byte(0x80), current.Plane(media.PlaneV)[0])
	assert.Equal(t, 1, sink.Frames())
}

func TestDropsFramesWithoutTimestamp(t *testing.T) {
	decoder := &manualDecoder{}
	r, _, _ := newTestRenderer(t, decoder)
	defer r.Stop()

	r.Seek(func() {})
	r.ConsumeVideoFrame(newFrame(t, media.NoTimestamp))
	assert.Equal(t, maxFrames+1, decoder.Requests())
	assert.Equal(t, StateSeeking, r.State())
}

func TestPauseWaitsForPendingReads(t *testing.T) {
	r, _, _ := newTestRenderer(t, &manualDecoder{})
	defer r.Stop()

	r.mu.Lock()
	r.state = StatePlaying
	r.pendingReads = 1
	r.mu.Unlock()

	paused := false
	r.Pause(func() { paused = true })
	assert.False(t, paused)
	assert.Equal(t, StatePaused, r.State())

	r.ConsumeVideoFrame(newFrame(t, 0))
	assert.True(t, paused)
}

func TestStopRunsPendingCallbacks(t *testing.T) {
	r, _, _ := newTestRenderer(t, &manualDecoder{})

	seeked := false
	r.Seek(func() { seeked = true })
	r.Stop()
	assert.True(t, seeked)
	assert.Equal(t, StateStopped, r.State())

	// Frames after Stop are ignored, and Stop is idempotent.
	r.ConsumeVideoFrame(newFrame(t, 0))
	r.Stop()
}

func TestSleepDuration(t *testing.T) {
	r, host, _ := newTestRenderer(t, &manualDecoder{})
	defer r.Stop()

	host.Clock.Seek(15 * time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = newFrame(t, 10*time.Millisecond)
	next := newFrame(t, 20*time.Millisecond)

	assert.Equal(t, 5*time.Millisecond, r.sleepDurationLocked(next, 1))

	// The clock has not moved since, so assume the gap between frames.
	assert.Equal(t, 10*time.Millisecond, r.sleepDurationLocked(next, 1))
	assert.Equal(t, 5*time.Millisecond, r.sleepDurationLocked(next, 2))

	// Without a next frame, the current frame's duration is used.
	assert.Equal(t, 10*time.Millisecond, r.sleepDurationLocked(nil, 1))
}

func TestPlaysToEnd(t *testing.T) {
	var frames []*media.VideoFrame
	for i := 0; i < 5; i++ {
		frames = append(frames, newFrame(t, time.Duration(i)*10*time.Millisecond))
	}
	decoder := newScriptedDecoder(frames)
	r, host, sink := newTestRenderer(t, decoder)
	decoder.renderer = r
	quit := make(chan struct{})
	go decoder.serve(quit)
	defer close(quit)
	defer r.Stop()

	var ended int32
	host.Notify = func() {
		if host.Ended() {
			atomic.AddInt32(&ended, 1)
		}
	}

	seeked := make(chan struct{})
	r.Seek(func() { close(seeked) })
	select {
	case <-seeked:
	case <-time.After(2 * time.Second):
		t.Fatal("preroll did not complete")
	}

	host.Clock.Play()
	r.Play()
	assert.Eventually(t, host.Ended, 2*time.Second, 5*time.Millisecond)
	time.Sleep(3 * idleSleep)

	assert.Equal(t, int32(1), atomic.LoadInt32(&ended))
	assert.GreaterOrEqual(t, sink.Frames(), 1)
	assert.Equal(t, StatePlaying, r.State())
}

func TestFileSinkWritesY4M(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "out.y4m")
	sink, err := NewFileSink(filename)
	require.NoError(t, err)

	frame := newFrame(t, 0)
	frame.FillBlack()
	require.NoError(t, sink.RenderFrame(frame))
	require.NoError(t, sink.RenderFrame(frame))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	header := "YUV4MPEG2 W4 H2 F1000000:10000 C420jpeg\n"
	require.True(t, len(data) > len(header))
	assert.Equal(t, header, string(data[:len(header)]))
	assert.Len(t, data, len(header)+2*(len("FRAME\n")+12))
}

func TestFileSinkRejectsSizeChange(t *testing.T) {
	sink, err := NewFileSink(filepath.Join(t.TempDir(), "out.yuv"))
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.RenderFrame(newFrame(t, 0)))
	other, err := media.NewVideoFrame(media.FormatYV12, 8, 2, 0, 0)
	require.NoError(t, err)
	assert.Error(t, sink.RenderFrame(other))
}
