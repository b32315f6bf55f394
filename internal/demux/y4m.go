package demux

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

const (
	y4mSignature   = "YUV4MPEG2"
	y4mFrameHeader = "FRAME"
)

// y4mParser reads YUV4MPEG2 streams of uncompressed planar frames. Every
// frame has the same size, so seeking is computed directly.
type y4mParser struct {
	r  io.ReadSeeker
	br *bufio.Reader

	info      media.StreamInfo
	frameSize int
	dataStart int64

	// Offset of the next frame header, and its index.
	offset int64
	index  int64
}

func openY4M(r io.ReadSeeker) (Parser, error) {
	return &y4mParser{r: r, br: bufio.NewReader(r)}, nil
}

func (p *y4mParser) Streams() ([]media.StreamInfo, error) {
	line, err := p.br.ReadString('\n')
	if err != nil {
		return nil, errors.Wrap(err, "read YUV4MPEG2 header")
	}
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != y4mSignature {
		return nil, errors.Wrap(errNoSyncHeader, "not a YUV4MPEG2 stream")
	}

	info := media.StreamInfo{
		Type:      media.StreamVideo,
		Codec:     "rawvideo",
		FrameRate: media.Rational{Num: 25, Den: 1},
		CodecData: media.FormatYV12,
	}
	for _, f := range fields[1:] {
		value := f[1:]
		switch f[0] {
		case 'W':
			info.Width, err = strconv.Atoi(value)
		case 'H':
			info.Height, err = strconv.Atoi(value)
		case 'F':
			info.FrameRate, err = parseRatio(value)
		case 'C':
			switch {
			case strings.HasPrefix(value, "420"):
				info.CodecData = media.FormatYV12
			case value == "422":
				info.CodecData = media.FormatYV16
			default:
				return nil, errors.Errorf("unsupported YUV4MPEG2 colorspace %s", value)
			}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "bad YUV4MPEG2 parameter %s", f)
		}
	}
	if !media.ValidDimensions(info.Width, info.Height) || !info.FrameRate.Valid() {
		return nil, errors.Errorf("bad YUV4MPEG2 header %q", strings.TrimSpace(line))
	}
	info.TimeBase = info.FrameRate.Invert()

	frame, err := media.NewVideoFrame(info.CodecData.(media.FrameFormat), info.Width, info.Height, 0, 0)
	if err != nil {
		return nil, err
	}
	for plane := 0; plane < media.NumPlanes; plane++ {
		p.frameSize += frame.RowBytes(plane) * frame.Rows(plane)
	}
	p.dataStart = int64(len(line))
	p.offset = p.dataStart

	if size, err := p.r.Seek(0, io.SeekEnd); err == nil {
		frames := (size - p.dataStart) / int64(len(y4mFrameHeader)+1+p.frameSize)
		info.Duration = info.TimeBase.Scale(frames)
	}
	if err := p.seekToFrame(0); err != nil {
		return nil, err
	}

	log.Info("YUV4MPEG2 stream: %dx%d %v @ %v fps", info.Width, info.Height, info.CodecData, info.FrameRate)
	p.info = info
	return []media.StreamInfo{info}, nil
}

func parseRatio(s string) (media.Rational, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return media.Rational{}, errors.Errorf("bad ratio %s", s)
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return media.Rational{}, err
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil {
		return media.Rational{}, err
	}
	return media.Rational{Num: num, Den: den}, nil
}

func (p *y4mParser) ReadPacket() (Packet, error) {
	line, err := p.br.ReadString('\n')
	if err == io.EOF && line == "" {
		return Packet{}, io.EOF
	} else if err != nil {
		return Packet{}, errors.Wrap(err, "read frame header")
	}
	if !strings.HasPrefix(line, y4mFrameHeader) {
		return Packet{}, errors.Errorf("bad frame header %q", strings.TrimSpace(line))
	}

	data := make([]byte, p.frameSize)
	if _, err := io.ReadFull(p.br, data); err == io.ErrUnexpectedEOF || err == io.EOF {
		// Truncated final frame.
		return Packet{}, io.EOF
	} else if err != nil {
		return Packet{}, errors.Wrap(err, "read frame")
	}

	pkt := Packet{
		Data:      data,
		Timestamp: p.info.TimeBase.Scale(p.index),
		Duration:  media.FrameDuration(p.info.FrameRate, 0),
		KeyFrame:  true,
	}
	p.offset += int64(len(line) + p.frameSize)
	p.index++
	return pkt, nil
}

// SeekToTime lands on the frame containing t. Frame headers are assumed to
// carry no parameters.
func (p *y4mParser) SeekToTime(t time.Duration, backward bool) error {
	if t < 0 {
		t = 0
	}
	rate := p.info.FrameRate
	index := int64(t) * int64(rate.Num) / (int64(rate.Den) * int64(time.Second))
	if !backward && p.info.TimeBase.Scale(index) < t {
		index++
	}
	return p.seekToFrame(index)
}

func (p *y4mParser) seekToFrame(index int64) error {
	offset := p.dataStart + index*int64(len(y4mFrameHeader)+1+p.frameSize)
	if size, err := p.r.Seek(0, io.SeekEnd); err == nil && offset > size {
		offset = size
	}
	if _, err := p.r.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek to frame %d", index)
	}
	p.br.Reset(p.r)
	p.offset = offset
	p.index = index
	return nil
}

func init() {
	RegisterFormat("y4m", openY4M, "y4m")
}
