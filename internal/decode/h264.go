package decode

import (
	"time"

	"github.com/nareix/joy4/codec/h264parser"
	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

// h264Codec parses H.264 access units, in AVCC or Annex B framing, and emits
// one placeholder picture per coded picture. Pixel reconstruction is not
// implemented. Pictures are released with a delay of one access unit, the
// way a decoder with reordering holds them back, and decoding starts at the
// first IDR picture.
type h264Codec struct {
	width   int
	height  int
	picture *media.VideoFrame

	delayed  bool
	synced   bool
	dropped  int
	accessed int
}

func openH264(config Config) (Codec, error) {
	width, height := config.Width, config.Height
	if cd, ok := config.CodecData.(h264parser.CodecData); ok {
		width, height = cd.Width(), cd.Height()
	}
	picture, err := media.NewVideoFrame(media.FormatYV12, width, height, media.NoTimestamp, media.NoTimestamp)
	if err != nil {
		return nil, errors.Wrap(err, "h264")
	}
	picture.FillBlack()
	log.Info("H.264 %dx%d: emitting placeholder pictures", width, height)

	return &h264Codec{
		width:   width,
		height:  height,
		picture: picture,
	}, nil
}

func (c *h264Codec) Format() media.FrameFormat {
	return media.FormatYV12
}

func (c *h264Codec) Decode(data []byte, timestamp time.Duration) (*Picture, error) {
	if data == nil {
		// Drain.
		if c.delayed {
			c.delayed = false
			return c.output(), nil
		}
		return nil, nil
	}

	nalus, _ := h264parser.SplitNALUs(data)
	if len(nalus) == 0 {
		return nil, errors.New("h264: empty access unit")
	}
	c.accessed++

	var slice, idr bool
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch nalu[0] & 0x1f {
		case 5:
			idr = true
			slice = true
		case 1:
			slice = true
		}
	}
	if !slice {
		return nil, nil
	}
	if !c.synced {
		if !idr {
			c.dropped++
			return nil, nil
		}
		c.synced = true
	}

	if !c.delayed {
		c.delayed = true
		return nil, nil
	}
	return c.output(), nil
}

func (c *h264Codec) output() *Picture {
	pic := &Picture{
		Format:    media.FormatYV12,
		Width:     c.width,
		Height:    c.height,
		Timestamp: media.NoTimestamp,
	}
	for p := 0; p < media.NumPlanes; p++ {
		pic.Planes[p] = c.picture.Plane(p)
		pic.Strides[p] = c.picture.Stride(p)
	}
	return pic
}

func (c *h264Codec) Reset() {
	c.delayed = false
	c.synced = false
}

func (c *h264Codec) Close() error {
	log.Debug("H.264: %d access units, %d dropped before sync", c.accessed, c.dropped)
	return nil
}

func init() {
	RegisterCodec("h264", openH264)
}
