package decode

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

// rawCodec passes through uncompressed planar YUV, one frame per access unit.
type rawCodec struct {
	format media.FrameFormat
	width  int
	height int

	// Plane geometry, from a template frame.
	layout *media.VideoFrame
}

func openRawVideo(config Config) (Codec, error) {
	format := media.FormatYV12
	if f, ok := config.CodecData.(media.FrameFormat); ok {
		format = f
	}
	layout, err := media.NewVideoFrame(format, config.Width, config.Height, 0, 0)
	if err != nil {
		return nil, errors.Wrap(err, "rawvideo")
	}
	return &rawCodec{
		format: format,
		width:  config.Width,
		height: config.Height,
		layout: layout,
	}, nil
}

func (c *rawCodec) Format() media.FrameFormat {
	return c.format
}

func (c *rawCodec) Decode(data []byte, timestamp time.Duration) (*Picture, error) {
	if data == nil {
		return nil, nil
	}
	planes, err := c.split(data)
	if err != nil {
		return nil, err
	}
	pic := &Picture{
		Format:    c.format,
		Width:     c.width,
		Height:    c.height,
		Planes:    planes,
		Timestamp: timestamp,
	}
	for p := 0; p < media.NumPlanes; p++ {
		pic.Strides[p] = c.layout.RowBytes(p)
	}
	return pic, nil
}

func (c *rawCodec) DecodeInto(data []byte, timestamp time.Duration, frame *media.VideoFrame) (bool, error) {
	if data == nil {
		return false, nil
	}
	planes, err := c.split(data)
	if err != nil {
		return false, err
	}
	for p := 0; p < media.NumPlanes; p++ {
		if !frame.CopyPlane(p, planes[p], c.layout.RowBytes(p)) {
			return false, errors.Errorf("rawvideo: frame does not fit plane %d", p)
		}
	}
	frame.SetTimestamp(timestamp)
	return true, nil
}

// split slices data into tightly packed planes.
func (c *rawCodec) split(data []byte) (planes [media.NumPlanes][]byte, err error) {
	offset := 0
	for p := 0; p < media.NumPlanes; p++ {
		size := c.layout.RowBytes(p) * c.layout.Rows(p)
		if offset+size > len(data) {
			return planes, errors.Errorf("rawvideo: short frame, %d bytes", len(data))
		}
		planes[p] = data[offset : offset+size]
		offset += size
	}
	return planes, nil
}

func (c *rawCodec) Reset() {}

func (c *rawCodec) Close() error {
	return nil
}

func init() {
	RegisterCodec("rawvideo", openRawVideo)
}
