package decode

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

// SoftwareEngine runs a Codec on the caller's loop.
//
// Every frame requested through ProduceVideoFrame is a credit, and each
// credit keeps one input read outstanding until it is spent on a decoded
// frame or on the end of output.
type SoftwareEngine struct {
	// DirectRendering decodes into frames from Allocator when the codec
	// supports it. Set before Initialize.
	DirectRendering bool
	Allocator       Allocator

	handler EventHandler
	codec   Codec
	config  Config
	format  media.FrameFormat
	direct  bool

	// Frames available for output, when not direct rendering.
	frames []*media.VideoFrame

	credits      int
	pendingInput int
	inputEOS     bool
	outputEOS    bool
	flushPending bool
}

func NewSoftwareEngine() *SoftwareEngine {
	return &SoftwareEngine{}
}

func (e *SoftwareEngine) Initialize(loop media.Loop, handler EventHandler, config Config) {
	e.handler = handler
	e.config = config

	info, err := e.initialize()
	if err != nil {
		log.Error("Initialize %s engine: %v", config.Codec, err)
		if e.codec != nil {
			e.codec.Close()
			e.codec = nil
		}
		handler.OnInitializeComplete(EngineInfo{})
		return
	}
	handler.OnInitializeComplete(info)
}

func (e *SoftwareEngine) initialize() (EngineInfo, error) {
	codec, err := openCodec(e.config)
	if err != nil {
		return EngineInfo{}, err
	}
	e.codec = codec

	e.format = codec.Format()
	switch e.format {
	case media.FormatYV12, media.FormatYV16:
	default:
		return EngineInfo{}, errors.Errorf("unsupported surface format %v", e.format)
	}

	if e.DirectRendering {
		if _, ok := codec.(DirectCodec); ok && e.Allocator != nil {
			e.direct = true
		} else {
			log.Info("%s codec does not support direct rendering", e.config.Codec)
		}
	}

	if !e.direct {
		for i := 0; i < media.MaxVideoFrames; i++ {
			frame, err := e.newFrame()
			if err != nil {
				return EngineInfo{}, err
			}
			e.frames = append(e.frames, frame)
		}
	}

	log.Debug("Initialized %s engine: %v %dx%d direct=%v", e.config.Codec, e.format, e.config.Width, e.config.Height, e.direct)
	return EngineInfo{
		Success:         true,
		ProvidesBuffers: e.direct,
		Format:          e.format,
		Width:           e.config.Width,
		Height:          e.config.Height,
	}, nil
}

func (e *SoftwareEngine) newFrame() (*media.VideoFrame, error) {
	return media.NewVideoFrame(e.format, e.config.Width, e.config.Height, media.NoTimestamp, media.NoTimestamp)
}

func (e *SoftwareEngine) Uninitialize() {
	if e.codec != nil {
		if err := e.codec.Close(); err != nil {
			log.Warn("Close %s codec: %v", e.config.Codec, err)
		}
		e.codec = nil
	}
	e.frames = nil
	e.handler.OnUninitializeComplete()
}

func (e *SoftwareEngine) ProduceVideoFrame(frame *media.VideoFrame) {
	if frame != nil {
		e.recycle(frame)
	}
	e.credits++
	e.readInput()
}

func (e *SoftwareEngine) recycle(frame *media.VideoFrame) {
	if e.direct {
		e.Allocator.ReleaseFrame(frame)
		return
	}
	if frame.Format() == e.format && frame.Width() == e.config.Width && frame.Height() == e.config.Height &&
		len(e.frames) < media.MaxVideoFrames {
		e.frames = append(e.frames, frame)
	}
}

func (e *SoftwareEngine) readInput() {
	e.pendingInput++
	e.handler.OnEmptyBufferCallback()
}

func (e *SoftwareEngine) ConsumeVideoSample(buf *media.Buffer) {
	defer buf.Release()
	if e.pendingInput > 0 {
		e.pendingInput--
	}

	if e.flushPending {
		// Input requested before the flush is stale.
		e.tryToFinishPendingFlush()
		return
	}
	if e.codec == nil {
		return
	}

	eos := buf.IsEndOfStream()
	if eos {
		e.inputEOS = true
	}
	var data []byte
	if !eos {
		data = buf.Data()
	}

	frame, err := e.decode(data, buf.Timestamp())
	switch {
	case err != nil:
		log.Warn("Error decoding %d byte %s buffer: %v", len(data), e.config.Codec, err)
		e.handler.OnFillBufferCallback(nil)
		if !e.inputEOS {
			e.readInput()
		}
	case frame == nil && eos:
		e.outputEOS = true
		e.spendCredit()
		e.handler.OnFillBufferCallback(nil)
	case frame == nil:
		// The codec wants more input before it can output a picture.
		e.readInput()
	default:
		e.spendCredit()
		e.handler.OnFillBufferCallback(frame)
	}
}

func (e *SoftwareEngine) DropVideoSample() {
	if e.pendingInput > 0 {
		e.pendingInput--
	}
	e.spendCredit()
	e.tryToFinishPendingFlush()
}

func (e *SoftwareEngine) spendCredit() {
	if e.credits > 0 {
		e.credits--
	}
}

// decode runs the codec and returns a frame holding its picture, or nil.
func (e *SoftwareEngine) decode(data []byte, timestamp time.Duration) (*media.VideoFrame, error) {
	if e.direct {
		frame, err := e.Allocator.AllocateFrame(e.format, e.config.Width, e.config.Height)
		if err != nil {
			return nil, errors.Wrap(err, "allocate frame")
		}
		ok, err := e.codec.(DirectCodec).DecodeInto(data, timestamp, frame)
		if err != nil || !ok {
			e.Allocator.ReleaseFrame(frame)
			return nil, err
		}
		frame.SetDuration(media.FrameDuration(e.config.FrameRate, 0))
		return frame, nil
	}

	pic, err := e.codec.Decode(data, timestamp)
	if err != nil || pic == nil {
		return nil, err
	}
	for p := 0; p < media.NumPlanes; p++ {
		if pic.Planes[p] == nil {
			return nil, errors.Errorf("picture is missing plane %d", p)
		}
	}

	frame, err := e.takeFrame(pic)
	if err != nil {
		return nil, err
	}
	for p := 0; p < media.NumPlanes; p++ {
		if !frame.CopyPlane(p, pic.Planes[p], pic.Strides[p]) {
			return nil, errors.Errorf("picture plane %d too small", p)
		}
	}
	frame.SetTimestamp(pic.Timestamp)
	frame.SetDuration(media.FrameDuration(e.config.FrameRate, pic.RepeatCount))
	return frame, nil
}

func (e *SoftwareEngine) takeFrame(pic *Picture) (*media.VideoFrame, error) {
	if pic.Format == e.format && pic.Width == e.config.Width && pic.Height == e.config.Height {
		if n := len(e.frames); n > 0 {
			frame := e.frames[n-1]
			e.frames = e.frames[:n-1]
			return frame, nil
		}
		log.Debug("Frame pool empty, allocating")
	}
	return media.NewVideoFrame(pic.Format, pic.Width, pic.Height, media.NoTimestamp, media.NoTimestamp)
}

// Flush drops decoder state. It completes once no input read is
// outstanding, and forgets every pending frame request.
func (e *SoftwareEngine) Flush() {
	e.flushPending = true
	e.tryToFinishPendingFlush()
}

func (e *SoftwareEngine) tryToFinishPendingFlush() {
	if !e.flushPending || e.pendingInput > 0 {
		return
	}
	e.flushPending = false
	e.credits = 0
	if e.codec != nil {
		e.codec.Reset()
	}
	e.handler.OnFlushComplete()
}

func (e *SoftwareEngine) Seek() {
	e.inputEOS = false
	e.outputEOS = false
	e.handler.OnSeekComplete()
}

// Available returns the number of frames in the pool.
func (e *SoftwareEngine) Available() int {
	return len(e.frames)
}
