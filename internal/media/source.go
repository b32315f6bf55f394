package media

import (
	"io"
	"time"
)

// ReadError is passed to a ReadCallback when a DataSource read fails.
const ReadError = -1

// ReadCallback receives the number of bytes read, or ReadError.
type ReadCallback func(n int)

// A DataSource provides random access to media bytes. Reads complete
// asynchronously, possibly on another goroutine.
type DataSource interface {
	io.Closer

	// Read up to len(data) bytes at position. Zero bytes means end of data.
	Read(position int64, data []byte, done ReadCallback)

	// Size returns the total size, if known.
	Size() (int64, bool)

	// IsStreaming reports whether the source can only be read sequentially.
	IsStreaming() bool
}

// StreamType is the kind of elementary stream.
type StreamType int

const (
	StreamUnknown StreamType = iota
	StreamVideo
	StreamAudio
)

func (t StreamType) String() string {
	switch t {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// StreamInfo describes one elementary stream of a container.
type StreamInfo struct {
	Type  StreamType
	Codec string

	// Video
	Width     int
	Height    int
	FrameRate Rational

	// Audio
	SampleRate int
	Channels   int

	// Time base of the container's timestamps for this stream.
	TimeBase Rational
	Duration time.Duration

	// Codec-specific configuration from the parser, e.g. SPS/PPS.
	CodecData interface{}
}
