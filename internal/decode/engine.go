package decode

import (
	"github.com/lanikai/alohaplay/internal/media"
)

// EngineInfo is reported when an engine finishes initializing.
type EngineInfo struct {
	Success bool

	// ProvidesBuffers is set when frames come from an external allocator
	// (direct rendering) rather than the engine's own pool.
	ProvidesBuffers bool

	Format media.FrameFormat
	Width  int
	Height int
}

// Config describes the stream an engine decodes.
type Config struct {
	Codec     string
	Width     int
	Height    int
	FrameRate media.Rational
	CodecData interface{}
}

// An EventHandler receives engine events. Engines call it on the loop they
// were initialized with.
type EventHandler interface {
	OnInitializeComplete(info EngineInfo)
	OnUninitializeComplete()
	OnFlushComplete()
	OnSeekComplete()
	OnError()

	// OnEmptyBufferCallback asks for one more input buffer, to be passed to
	// ConsumeVideoSample.
	OnEmptyBufferCallback()

	// OnFillBufferCallback delivers a decoded frame. A nil frame means the
	// engine had nothing to show for the last input: a decode error, or the
	// end of output once input reached end of stream.
	OnFillBufferCallback(frame *media.VideoFrame)
}

// An Engine turns compressed buffers into frames. All methods must be called
// on the loop passed to Initialize.
type Engine interface {
	Initialize(loop media.Loop, handler EventHandler, config Config)
	Uninitialize()
	Flush()
	Seek()

	// ConsumeVideoSample takes ownership of an input buffer requested by
	// OnEmptyBufferCallback.
	ConsumeVideoSample(buf *media.Buffer)

	// DropVideoSample reports that an input buffer requested by
	// OnEmptyBufferCallback will never arrive.
	DropVideoSample()

	// ProduceVideoFrame requests one output frame. frame, if not nil, is a
	// previously delivered frame handed back for reuse.
	ProduceVideoFrame(frame *media.VideoFrame)
}

// An Allocator provides frames for direct rendering, where the codec decodes
// straight into memory owned by the consumer.
type Allocator interface {
	AllocateFrame(format media.FrameFormat, width, height int) (*media.VideoFrame, error)
	ReleaseFrame(frame *media.VideoFrame)
}

// PoolAllocator is an Allocator that recycles frames of one size.
type PoolAllocator struct {
	free []*media.VideoFrame
}

func (a *PoolAllocator) AllocateFrame(format media.FrameFormat, width, height int) (*media.VideoFrame, error) {
	for i, f := range a.free {
		if f.Format() == format && f.Width() == width && f.Height() == height {
			a.free = append(a.free[:i], a.free[i+1:]...)
			return f, nil
		}
	}
	return media.NewVideoFrame(format, width, height, media.NoTimestamp, media.NoTimestamp)
}

func (a *PoolAllocator) ReleaseFrame(frame *media.VideoFrame) {
	if len(a.free) < media.MaxVideoFrames {
		a.free = append(a.free, frame)
	}
}

// Free returns the number of frames available for reuse.
func (a *PoolAllocator) Free() int {
	return len(a.free)
}
