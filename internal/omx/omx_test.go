package omx

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errors "golang.org/x/xerrors"

	"github.com/lanikai/alohaplay/internal/media"
)

type codecHarness struct {
	loop      *media.ManualLoop
	component *LoopbackComponent
	codec     *Codec

	formats []PortDefinition
	errs    []error
	fed     []*media.Buffer
	outputs []*Output
}

func newCodecHarness(width, height int) *codecHarness {
	h := &codecHarness{loop: &media.ManualLoop{}}
	h.component = NewLoopbackComponent(h.loop)
	h.codec = NewCodec(h.loop, h.component)
	h.codec.Setup(Format{Codec: "rawvideo", Width: width, Height: height})
	h.codec.SetFormatCallback(func(def PortDefinition) { h.formats = append(h.formats, def) })
	h.codec.SetErrorCallback(func(err error) { h.errs = append(h.errs, err) })
	return h
}

func (h *codecHarness) start(t *testing.T) {
	started := false
	h.codec.Start(func() { started = true })
	h.loop.RunUntilIdle()
	require.True(t, started)
	require.Equal(t, StateExecuting, h.codec.State())
}

func (h *codecHarness) feed(data []byte, ts time.Duration) {
	h.codec.Feed(media.NewBuffer(data, ts, media.NoTimestamp, nil), func(buf *media.Buffer) {
		h.fed = append(h.fed, buf)
	})
}

func (h *codecHarness) read() {
	h.codec.Read(func(out *Output) { h.outputs = append(h.outputs, out) })
}

func TestCodecRejectsInvalidTransition(t *testing.T) {
	h := newCodecHarness(4, 2)
	h.codec.stateTransitionTask(StateExecuting)
	assert.Equal(t, StateEmpty, h.codec.state)
	assert.Equal(t, StateEmpty, h.codec.nextState)
	assert.Equal(t, 0, h.loop.Pending())

	h.codec.stateTransitionTask(StateIdle)
	assert.Equal(t, StateEmpty, h.codec.state)
}

func TestCodecStartDecodeStop(t *testing.T) {
	h := newCodecHarness(4, 2)
	h.start(t)

	require.Len(t, h.formats, 1)
	assert.Equal(t, 4, h.formats[0].Width)
	assert.Equal(t, 2, h.formats[0].Height)
	assert.Equal(t, 12, h.formats[0].BufferSize)
	assert.Equal(t, 2*loopbackBufferCount, h.component.Allocated())

	first := bytes.Repeat([]byte{1}, 12)
	second := bytes.Repeat([]byte{2}, 12)
	h.feed(first, 0)
	h.feed(second, 40*time.Millisecond)
	h.read()
	h.read()
	h.loop.RunUntilIdle()

	assert.Len(t, h.fed, 2)
	require.Len(t, h.outputs, 2)
	assert.Equal(t, first, h.outputs[0].Data)
	assert.Equal(t, time.Duration(0), h.outputs[0].Timestamp)
	assert.Equal(t, second, h.outputs[1].Data)
	assert.Equal(t, 40*time.Millisecond, h.outputs[1].Timestamp)
	assert.Equal(t, 4, h.outputs[1].Width)

	stopped := false
	h.codec.Stop(func() { stopped = true })
	h.loop.RunUntilIdle()
	assert.True(t, stopped)
	assert.Equal(t, StateEmpty, h.codec.State())
	assert.Equal(t, 0, h.component.Allocated())
	assert.Empty(t, h.errs)
}

func TestCodecStopDuringStart(t *testing.T) {
	h := newCodecHarness(4, 2)
	started, stopped := false, false
	h.codec.Start(func() { started = true })
	h.codec.Stop(func() { stopped = true })
	h.loop.RunUntilIdle()

	assert.False(t, started)
	assert.True(t, stopped)
	assert.Equal(t, StateEmpty, h.codec.State())
	assert.Equal(t, 0, h.component.Allocated())
}

func TestCodecPortReconfiguration(t *testing.T) {
	h := newCodecHarness(4, 2)
	h.start(t)

	// A 4x4 picture doesn't fit the 4x2 output buffers.
	big := bytes.Repeat([]byte{7}, 24)
	h.feed(big, 0)
	h.read()
	h.loop.RunUntilIdle()

	assert.Equal(t, StateExecuting, h.codec.State())
	require.Len(t, h.formats, 2)
	assert.Equal(t, 4, h.formats[1].Height)
	assert.Equal(t, 24, h.formats[1].BufferSize)
	require.Len(t, h.outputs, 1)
	assert.Equal(t, big, h.outputs[0].Data)
	assert.Equal(t, 4, h.outputs[0].Height)
	assert.Equal(t, 2*loopbackBufferCount, h.component.Allocated())
}

func TestCodecEndOfStreamAndFlush(t *testing.T) {
	h := newCodecHarness(4, 2)
	h.start(t)

	h.codec.Feed(media.NewEndOfStreamBuffer(), func(buf *media.Buffer) { h.fed = append(h.fed, buf) })
	h.read()
	h.read()
	h.loop.RunUntilIdle()
	require.Len(t, h.outputs, 2)
	assert.True(t, h.outputs[0].EndOfStream)
	assert.True(t, h.outputs[1].EndOfStream)

	flushed := false
	h.codec.Flush(func() { flushed = true })
	h.loop.RunUntilIdle()
	assert.True(t, flushed)

	frame := bytes.Repeat([]byte{3}, 12)
	h.feed(frame, 80*time.Millisecond)
	h.read()
	h.loop.RunUntilIdle()
	require.Len(t, h.outputs, 3)
	assert.False(t, h.outputs[2].EndOfStream)
	assert.Equal(t, frame, h.outputs[2].Data)
}

func TestCodecFlushAbandonsReads(t *testing.T) {
	h := newCodecHarness(4, 2)
	h.start(t)

	h.read()
	h.codec.Flush(func() {})
	h.loop.RunUntilIdle()
	require.Len(t, h.outputs, 1)
	assert.Nil(t, h.outputs[0])
}

func TestCodecError(t *testing.T) {
	h := newCodecHarness(4, 2)
	h.start(t)

	h.read()
	h.read()
	h.loop.RunUntilIdle()
	assert.Empty(t, h.outputs)

	h.component.Fail(0x1234)
	h.loop.RunUntilIdle()
	assert.Equal(t, StateError, h.codec.State())
	require.Len(t, h.outputs, 2)
	assert.Nil(t, h.outputs[0])
	assert.Nil(t, h.outputs[1])
	require.Len(t, h.errs, 1)
	assert.True(t, errors.Is(h.errs[0], ErrComponent))
	assert.Equal(t, 0, h.component.Allocated())

	// A second error is not reported again.
	h.codec.OnEvent(EventError, 1, 0)
	h.loop.RunUntilIdle()
	assert.Len(t, h.errs, 1)

	// Requests are rejected once in error.
	buf := media.NewBuffer([]byte{1}, 0, media.NoTimestamp, nil)
	h.codec.Feed(buf, func(b *media.Buffer) { h.fed = append(h.fed, b) })
	h.read()
	stopped := false
	h.codec.Stop(func() { stopped = true })
	h.loop.RunUntilIdle()
	require.Len(t, h.fed, 1)
	assert.Same(t, buf, h.fed[0])
	require.Len(t, h.outputs, 3)
	assert.Nil(t, h.outputs[2])
	assert.True(t, stopped)
}

func TestCodecOversizedInput(t *testing.T) {
	h := newCodecHarness(4, 2)
	h.start(t)

	h.feed(make([]byte, loopbackInputSize+1), 0)
	h.loop.RunUntilIdle()
	assert.Equal(t, StateError, h.codec.State())
	require.Len(t, h.errs, 1)
	assert.True(t, errors.Is(h.errs[0], ErrBufferTooSmall))
	assert.Len(t, h.fed, 1)
}
