package media

import (
	"time"

	"github.com/pkg/errors"
)

// FrameFormat describes the pixel layout of a VideoFrame.
type FrameFormat int

const (
	FormatInvalid FrameFormat = iota
	FormatEmpty               // End-of-stream marker, no planes.
	FormatYV12                // Planar YUV 4:2:0.
	FormatYV16                // Planar YUV 4:2:2.
)

func (f FrameFormat) String() string {
	switch f {
	case FormatEmpty:
		return "Empty"
	case FormatYV12:
		return "YV12"
	case FormatYV16:
		return "YV16"
	default:
		return "Invalid"
	}
}

// Plane indices.
const (
	PlaneY = iota
	PlaneU
	PlaneV

	NumPlanes
)

// A VideoFrame is a decoded picture. Frames are recycled through the decoder's
// frame pool, so consumers should hand them back instead of holding on to them.
type VideoFrame struct {
	format FrameFormat
	width  int
	height int

	planes  [NumPlanes][]byte
	strides [NumPlanes]int

	timestamp time.Duration
	duration  time.Duration
}

// NewVideoFrame allocates a frame with tightly packed planes.
func NewVideoFrame(format FrameFormat, width, height int, timestamp, duration time.Duration) (*VideoFrame, error) {
	if format != FormatYV12 && format != FormatYV16 {
		return nil, errors.Errorf("unsupported frame format %v", format)
	}
	if !ValidDimensions(width, height) {
		return nil, errors.Errorf("invalid frame dimensions %dx%d", width, height)
	}

	f := &VideoFrame{
		format:    format,
		width:     width,
		height:    height,
		timestamp: timestamp,
		duration:  duration,
	}
	for p := 0; p < NumPlanes; p++ {
		f.strides[p] = f.RowBytes(p)
		f.planes[p] = make([]byte, f.strides[p]*f.Rows(p))
	}
	return f, nil
}

// NewEmptyFrame returns the frame that signals end of stream to a renderer.
func NewEmptyFrame() *VideoFrame {
	return &VideoFrame{
		format:    FormatEmpty,
		timestamp: NoTimestamp,
		duration:  NoTimestamp,
	}
}

func (f *VideoFrame) Format() FrameFormat {
	return f.format
}

func (f *VideoFrame) Width() int {
	return f.width
}

func (f *VideoFrame) Height() int {
	return f.height
}

func (f *VideoFrame) IsEndOfStream() bool {
	return f.format == FormatEmpty
}

func (f *VideoFrame) Plane(p int) []byte {
	return f.planes[p]
}

func (f *VideoFrame) Stride(p int) int {
	return f.strides[p]
}

// RowBytes is the number of meaningful bytes per row of plane p.
func (f *VideoFrame) RowBytes(p int) int {
	if p == PlaneY {
		return f.width
	}
	return (f.width + 1) / 2
}

// Rows is the number of rows in plane p.
func (f *VideoFrame) Rows(p int) int {
	if p != PlaneY && f.format == FormatYV12 {
		return (f.height + 1) / 2
	}
	return f.height
}

func (f *VideoFrame) Timestamp() time.Duration {
	return f.timestamp
}

func (f *VideoFrame) SetTimestamp(ts time.Duration) {
	f.timestamp = ts
}

func (f *VideoFrame) Duration() time.Duration {
	return f.duration
}

func (f *VideoFrame) SetDuration(d time.Duration) {
	f.duration = d
}

// CopyPlane copies rows of plane p from src, whose rows are srcStride bytes
// apart. Returns false if src is too short.
func (f *VideoFrame) CopyPlane(p int, src []byte, srcStride int) bool {
	rowBytes, rows := f.RowBytes(p), f.Rows(p)
	if srcStride < rowBytes || len(src) < srcStride*(rows-1)+rowBytes {
		return false
	}
	dst := f.planes[p]
	for i := 0; i < rows; i++ {
		copy(dst[i*f.strides[p]:i*f.strides[p]+rowBytes], src[i*srcStride:])
	}
	return true
}

// FillBlack sets the picture to YUV(0,128,128).
func (f *VideoFrame) FillBlack() {
	for p := 0; p < NumPlanes; p++ {
		var v byte
		if p != PlaneY {
			v = 0x80
		}
		plane := f.planes[p]
		for i := range plane {
			plane[i] = v
		}
	}
}
