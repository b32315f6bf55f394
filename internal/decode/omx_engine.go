package decode

import (
	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
	"github.com/lanikai/alohaplay/internal/omx"
)

var errShortPicture = errors.New("output picture too short")

// OmxEngine decodes with an OpenMAX style component. Output pictures are
// I420 and copied into frames from the engine's pool.
type OmxEngine struct {
	component omx.Component

	loop    media.Loop
	handler EventHandler
	config  Config
	codec   *omx.Codec

	output      omx.PortDefinition
	initialized bool
	frames      []*media.VideoFrame

	pendingInput int
	flushPending bool
	codecFlushed bool
}

func NewOmxEngine(component omx.Component) *OmxEngine {
	return &OmxEngine{component: component}
}

func (e *OmxEngine) Initialize(loop media.Loop, handler EventHandler, config Config) {
	e.loop = loop
	e.handler = handler
	e.config = config

	if !media.ValidDimensions(config.Width, config.Height) {
		log.Error("Initialize %s: invalid size %dx%d", e.component.Name(), config.Width, config.Height)
		handler.OnInitializeComplete(EngineInfo{})
		return
	}

	e.codec = omx.NewCodec(loop, e.component)
	e.codec.Setup(omx.Format{Codec: config.Codec, Width: config.Width, Height: config.Height})
	e.codec.SetFormatCallback(e.onFormat)
	e.codec.SetErrorCallback(e.onError)
	e.codec.Start(func() {
		e.initialized = true
		handler.OnInitializeComplete(EngineInfo{
			Success: true,
			Format:  media.FormatYV12,
			Width:   e.output.Width,
			Height:  e.output.Height,
		})
	})
}

func (e *OmxEngine) onFormat(def omx.PortDefinition) {
	log.Debug("%s output: %dx%d stride %d", e.component.Name(), def.Width, def.Height, def.Stride)
	e.output = def
	e.frames = nil
}

func (e *OmxEngine) onError(err error) {
	log.Error("%s: %v", e.component.Name(), err)
	if !e.initialized {
		e.handler.OnInitializeComplete(EngineInfo{})
		return
	}
	e.handler.OnError()
}

func (e *OmxEngine) Uninitialize() {
	if e.codec == nil {
		e.handler.OnUninitializeComplete()
		return
	}
	e.codec.Stop(func() {
		e.frames = nil
		e.handler.OnUninitializeComplete()
	})
}

func (e *OmxEngine) ProduceVideoFrame(frame *media.VideoFrame) {
	if frame != nil && frame.Width() == e.output.Width && frame.Height() == e.output.Height &&
		len(e.frames) < media.MaxVideoFrames {
		e.frames = append(e.frames, frame)
	}
	e.pendingInput++
	e.handler.OnEmptyBufferCallback()
	e.codec.Read(e.onOutput)
}

func (e *OmxEngine) ConsumeVideoSample(buf *media.Buffer) {
	if e.pendingInput > 0 {
		e.pendingInput--
	}
	if e.flushPending {
		buf.Release()
		e.tryToFinishPendingFlush()
		return
	}
	e.codec.Feed(buf, func(buf *media.Buffer) { buf.Release() })
}

func (e *OmxEngine) DropVideoSample() {
	if e.pendingInput > 0 {
		e.pendingInput--
	}
	e.tryToFinishPendingFlush()
}

func (e *OmxEngine) onOutput(out *omx.Output) {
	switch {
	case out == nil:
		// Abandoned by a flush, a stop or an error.
	case out.EndOfStream:
		e.handler.OnFillBufferCallback(nil)
	default:
		frame, err := e.toFrame(out)
		if err != nil {
			log.Warn("%s: dropping picture: %v", e.component.Name(), err)
			e.handler.OnFillBufferCallback(nil)
			return
		}
		e.handler.OnFillBufferCallback(frame)
	}
}

func (e *OmxEngine) toFrame(out *omx.Output) (*media.VideoFrame, error) {
	var frame *media.VideoFrame
	if n := len(e.frames); n > 0 {
		frame = e.frames[n-1]
		e.frames = e.frames[:n-1]
	} else {
		var err error
		frame, err = media.NewVideoFrame(media.FormatYV12, out.Width, out.Height, media.NoTimestamp, media.NoTimestamp)
		if err != nil {
			return nil, err
		}
	}

	// I420: full size luma, then quarter size U and V.
	data := out.Data
	for p := 0; p < media.NumPlanes; p++ {
		stride, rows := out.Stride, out.Height
		if p != media.PlaneY {
			stride, rows = (out.Stride+1)/2, (out.Height+1)/2
		}
		size := stride * rows
		if len(data) < size || !frame.CopyPlane(p, data[:size], stride) {
			return nil, errShortPicture
		}
		data = data[size:]
	}
	frame.SetTimestamp(out.Timestamp)
	frame.SetDuration(media.FrameDuration(e.config.FrameRate, 0))
	return frame, nil
}

// Flush completes once the component has returned its buffers and no input
// read is outstanding.
func (e *OmxEngine) Flush() {
	e.flushPending = true
	e.codecFlushed = false
	e.codec.Flush(func() {
		e.codecFlushed = true
		e.tryToFinishPendingFlush()
	})
}

func (e *OmxEngine) tryToFinishPendingFlush() {
	if !e.flushPending || !e.codecFlushed || e.pendingInput > 0 {
		return
	}
	e.flushPending = false
	e.handler.OnFlushComplete()
}

func (e *OmxEngine) Seek() {
	e.handler.OnSeekComplete()
}
