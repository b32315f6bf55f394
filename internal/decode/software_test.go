package decode

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohaplay/internal/media"
)

type recordingHandler struct {
	info     EngineInfo
	requests int
	frames   []*media.VideoFrame
	flushed  int
	seeked   int
	uninit   int
	errors   int
}

func (h *recordingHandler) OnInitializeComplete(info EngineInfo)         { h.info = info }
func (h *recordingHandler) OnUninitializeComplete()                      { h.uninit++ }
func (h *recordingHandler) OnFlushComplete()                             { h.flushed++ }
func (h *recordingHandler) OnSeekComplete()                              { h.seeked++ }
func (h *recordingHandler) OnError()                                     { h.errors++ }
func (h *recordingHandler) OnEmptyBufferCallback()                       { h.requests++ }
func (h *recordingHandler) OnFillBufferCallback(frame *media.VideoFrame) { h.frames = append(h.frames, frame) }

var rawConfig = Config{
	Codec:     "rawvideo",
	Width:     4,
	Height:    2,
	FrameRate: media.Rational{Num: 25, Den: 1},
	CodecData: media.FormatYV12,
}

// rawFrame is a 4x2 I420 picture: 8 bytes of luma, 2 of each chroma.
func rawFrame(luma byte) []byte {
	data := bytes.Repeat([]byte{luma}, 8)
	return append(data, 0x10, 0x11, 0x20, 0x21)
}

func newRawEngine(t *testing.T, direct bool) (*SoftwareEngine, *recordingHandler, *PoolAllocator) {
	engine := NewSoftwareEngine()
	allocator := &PoolAllocator{}
	if direct {
		engine.DirectRendering = true
		engine.Allocator = allocator
	}
	handler := &recordingHandler{}
	engine.Initialize(&media.ManualLoop{}, handler, rawConfig)
	require.True(t, handler.info.Success)
	return engine, handler, allocator
}

func TestSoftwareEngineDecodesRawVideo(t *testing.T) {
	engine, handler, _ := newRawEngine(t, false)
	assert.False(t, handler.info.ProvidesBuffers)
	assert.Equal(t, media.FormatYV12, handler.info.Format)
	assert.Equal(t, media.MaxVideoFrames, engine.Available())

	engine.ProduceVideoFrame(nil)
	assert.Equal(t, 1, handler.requests)

	engine.ConsumeVideoSample(media.NewBuffer(rawFrame(0x42), 40*time.Millisecond, media.NoTimestamp, nil))
	require.Len(t, handler.frames, 1)
	frame := handler.frames[0]
	require.NotNil(t, frame)
	assert.Equal(t, 40*time.Millisecond, frame.Timestamp())
	assert.Equal(t, 40*time.Millisecond, frame.Duration())
	assert.Equal(t, bytes.Repeat([]byte{0x42}, 8), frame.Plane(media.PlaneY))
	assert.Equal(t, []byte{0x10, 0x11}, frame.Plane(media.PlaneU))
	assert.Equal(t, []byte{0x20, 0x21}, frame.Plane(media.PlaneV))
	assert.Equal(t, media.MaxVideoFrames-1, engine.Available())

	// Handing the frame back returns it to the pool and asks for input.
	engine.ProduceVideoFrame(frame)
	assert.Equal(t, media.MaxVideoFrames, engine.Available())
	assert.Equal(t, 2, handler.requests)
}

func TestSoftwareEngineDecodeError(t *testing.T) {
	engine, handler, _ := newRawEngine(t, false)

	engine.ProduceVideoFrame(nil)
	engine.ConsumeVideoSample(media.NewBuffer([]byte{1, 2, 3}, 0, 0, nil))

	// Nothing to show, and the credit is kept by reading more input.
	require.Len(t, handler.frames, 1)
	assert.Nil(t, handler.frames[0])
	assert.Equal(t, 2, handler.requests)
}

func TestSoftwareEngineEndOfStream(t *testing.T) {
	engine, handler, _ := newRawEngine(t, false)

	engine.ProduceVideoFrame(nil)
	engine.ConsumeVideoSample(media.NewEndOfStreamBuffer())
	require.Len(t, handler.frames, 1)
	assert.Nil(t, handler.frames[0])
	assert.True(t, engine.outputEOS)
	assert.Equal(t, 1, handler.requests)

	engine.Seek()
	assert.Equal(t, 1, handler.seeked)
	assert.False(t, engine.outputEOS)
	assert.False(t, engine.inputEOS)
}

func TestSoftwareEngineFlushWaitsForInput(t *testing.T) {
	engine, handler, _ := newRawEngine(t, false)

	engine.ProduceVideoFrame(nil)
	engine.ProduceVideoFrame(nil)
	engine.Flush()
	assert.Equal(t, 0, handler.flushed)

	// Stale input is dropped.
	engine.ConsumeVideoSample(media.NewBuffer(rawFrame(1), 0, 0, nil))
	assert.Equal(t, 0, handler.flushed)
	engine.ConsumeVideoSample(media.NewBuffer(rawFrame(2), 0, 0, nil))
	assert.Equal(t, 1, handler.flushed)
	assert.Empty(t, handler.frames)
	assert.Equal(t, 0, engine.credits)

	// Idle flush completes right away.
	engine.Flush()
	assert.Equal(t, 2, handler.flushed)
}

func TestSoftwareEngineFlushAfterDroppedInput(t *testing.T) {
	engine, handler, _ := newRawEngine(t, false)

	engine.ProduceVideoFrame(nil)
	engine.ProduceVideoFrame(nil)
	engine.ConsumeVideoSample(media.NewEndOfStreamBuffer())
	require.Len(t, handler.frames, 1)
	assert.Nil(t, handler.frames[0])

	engine.Flush()
	assert.Equal(t, 0, handler.flushed)
	engine.DropVideoSample()
	assert.Equal(t, 1, handler.flushed)
	assert.Equal(t, 0, engine.credits)
}

func TestSoftwareEngineDirectRendering(t *testing.T) {
	engine, handler, allocator := newRawEngine(t, true)
	assert.True(t, handler.info.ProvidesBuffers)
	assert.Equal(t, 0, engine.Available())

	engine.ProduceVideoFrame(nil)
	engine.ConsumeVideoSample(media.NewBuffer(rawFrame(7), 80*time.Millisecond, 0, nil))
	require.Len(t, handler.frames, 1)
	frame := handler.frames[0]
	assert.Equal(t, byte(7), frame.Plane(media.PlaneY)[0])
	assert.Equal(t, 80*time.Millisecond, frame.Timestamp())

	engine.ProduceVideoFrame(frame)
	assert.Equal(t, 1, allocator.Free())

	// A failed decode gives the frame back to the allocator.
	engine.ConsumeVideoSample(media.NewBuffer([]byte{1}, 0, 0, nil))
	assert.Equal(t, 1, allocator.Free())
}

func TestSoftwareEngineUnknownCodec(t *testing.T) {
	handler := &recordingHandler{}
	NewSoftwareEngine().Initialize(&media.ManualLoop{}, handler, Config{Codec: "vp9", Width: 4, Height: 2})
	assert.False(t, handler.info.Success)
}

func TestSoftwareEngineUninitialize(t *testing.T) {
	engine, handler, _ := newRawEngine(t, false)
	engine.Uninitialize()
	assert.Equal(t, 1, handler.uninit)
	assert.Equal(t, 0, engine.Available())
}

func annexBUnit(nalus ...[]byte) []byte {
	var b []byte
	for _, nalu := range nalus {
		b = append(b, 0, 0, 0, 1)
		b = append(b, nalu...)
	}
	return b
}

var (
	idrSlice = []byte{0x65, 0x88, 0x84, 0x00, 0x21}
	pSlice   = []byte{0x41, 0x9a, 0x02, 0x10}
	sei      = []byte{0x06, 0x05, 0x01, 0x80}
)

func TestH264CodecHoldsOnePicture(t *testing.T) {
	engine := NewSoftwareEngine()
	handler := &recordingHandler{}
	engine.Initialize(&media.ManualLoop{}, handler, Config{
		Codec:     "h264",
		Width:     32,
		Height:    16,
		FrameRate: media.Rational{Num: 25, Den: 1},
	})
	require.True(t, handler.info.Success)

	engine.ProduceVideoFrame(nil)

	// P slice before any IDR is skipped; so is SEI alone.
	engine.ConsumeVideoSample(media.NewBuffer(annexBUnit(pSlice), 0, 0, nil))
	engine.ConsumeVideoSample(media.NewBuffer(annexBUnit(sei), 0, 0, nil))
	// The first picture is held back.
	engine.ConsumeVideoSample(media.NewBuffer(annexBUnit(sei, idrSlice), 0, 0, nil))
	assert.Empty(t, handler.frames)
	assert.Equal(t, 4, handler.requests)

	engine.ConsumeVideoSample(media.NewBuffer(annexBUnit(pSlice), 0, 0, nil))
	require.Len(t, handler.frames, 1)
	frame := handler.frames[0]
	assert.Equal(t, 32, frame.Width())
	assert.Equal(t, media.NoTimestamp, frame.Timestamp())
	assert.Equal(t, byte(0), frame.Plane(media.PlaneY)[0])
	assert.Equal(t, byte(0x80), frame.Plane(media.PlaneU)[0])

	// End of stream drains the held picture, then ends output.
	engine.ProduceVideoFrame(nil)
	engine.ConsumeVideoSample(media.NewEndOfStreamBuffer())
	require.Len(t, handler.frames, 2)
	assert.NotNil(t, handler.frames[1])

	engine.ProduceVideoFrame(nil)
	engine.ConsumeVideoSample(media.NewEndOfStreamBuffer())
	require.Len(t, handler.frames, 3)
	assert.Nil(t, handler.frames[2])
}
