package demux

import (
	"bufio"
	"bytes"
	"io"

	"github.com/nareix/joy4/codec/h264parser"
	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

// NAL unit types, ITU-T H.264 table 7-1.
const (
	naluSlice    = 1
	naluIDRSlice = 5
	naluSEI      = 6
	naluSPS      = 7
	naluPPS      = 8
	naluAUD      = 9
)

const (
	naluBufferInitialSize = 16 * 1024
	naluBufferMaximumSize = 1024 * 1024
)

// Raw H.264 carries no timing, so access units are spaced at this rate.
var annexBFrameRate = media.Rational{Num: 25, Den: 1}

// annexBParser reads a raw H.264 elementary stream with NALUs separated by
// Annex B start codes, and groups NALUs into access units.
type annexBParser struct {
	scanningSeeker

	r       io.ReadSeeker
	scanner *bufio.Scanner
	peeked  []byte
	count   int64
}

func openAnnexB(r io.ReadSeeker) (Parser, error) {
	p := &annexBParser{r: r}
	p.src = p
	p.reset()
	return p, nil
}

func (p *annexBParser) reset() {
	buffer := make([]byte, naluBufferInitialSize)
	p.scanner = bufio.NewScanner(p.r)
	p.scanner.Buffer(buffer, naluBufferMaximumSize)
	p.scanner.Split(splitNALU)
	p.peeked = nil
	p.count = 0
}

func (p *annexBParser) rewind() error {
	if _, err := p.r.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewind")
	}
	p.reset()
	return nil
}

// Streams scans up to the first SPS and PPS to describe the video stream.
func (p *annexBParser) Streams() ([]media.StreamInfo, error) {
	defer p.rewind()

	var sps, pps []byte
	for sps == nil || pps == nil {
		nalu, err := p.nextNALU()
		if err == io.EOF {
			return nil, errors.Wrap(errNoSyncHeader, "no SPS/PPS in H.264 stream")
		} else if err != nil {
			return nil, err
		}
		switch nalu[0] & 0x1f {
		case naluSPS:
			sps = append([]byte(nil), nalu...)
		case naluPPS:
			pps = append([]byte(nil), nalu...)
		}
	}

	codec, err := h264parser.NewCodecDataFromSPSAndPPS(sps, pps)
	if err != nil {
		return nil, errors.Wrap(err, "parse SPS")
	}
	log.Info("H.264 stream: %dx%d", codec.Width(), codec.Height())

	return []media.StreamInfo{{
		Type:      media.StreamVideo,
		Codec:     "h264",
		Width:     codec.Width(),
		Height:    codec.Height(),
		FrameRate: annexBFrameRate,
		TimeBase:  annexBFrameRate.Invert(),
		CodecData: codec,
	}}, nil
}

func (p *annexBParser) nextNALU() ([]byte, error) {
	if p.peeked != nil {
		nalu := p.peeked
		p.peeked = nil
		return nalu, nil
	}
	for p.scanner.Scan() {
		if nalu := p.scanner.Bytes(); len(nalu) > 0 {
			// The scanner reuses its buffer.
			return append([]byte(nil), nalu...), nil
		}
	}
	if err := p.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// readPacket returns the next access unit, with each NALU prefixed by a
// 4-byte start code.
func (p *annexBParser) readPacket() (Packet, error) {
	var data []byte
	var hasSlice, keyFrame bool
	for {
		nalu, err := p.nextNALU()
		if err == io.EOF {
			if data == nil {
				return Packet{}, io.EOF
			}
			break
		} else if err != nil {
			return Packet{}, err
		}

		if hasSlice && startsAccessUnit(nalu) {
			p.peeked = nalu
			break
		}

		switch nalu[0] & 0x1f {
		case naluIDRSlice:
			keyFrame = true
			hasSlice = true
		case naluSlice:
			hasSlice = true
		}
		data = append(data, 0, 0, 0, 1)
		data = append(data, nalu...)
	}

	pkt := Packet{
		Data:      data,
		Timestamp: annexBFrameRate.Invert().Scale(p.count),
		Duration:  media.FrameDuration(annexBFrameRate, 0),
		KeyFrame:  keyFrame,
	}
	p.count++
	return pkt, nil
}

// startsAccessUnit reports whether nalu begins a new access unit, given that
// the current one already holds a slice. See ITU-T H.264 section 7.4.1.2.3.
func startsAccessUnit(nalu []byte) bool {
	switch nalu[0] & 0x1f {
	case naluSlice, naluIDRSlice:
		// first_mb_in_slice == 0 is coded as a single 1 bit.
		return len(nalu) > 1 && nalu[1]&0x80 != 0
	case naluSEI, naluSPS, naluPPS, naluAUD:
		return true
	case 14, 15, 16, 17, 18:
		return true
	}
	return false
}

var h264StartCode = []byte{0, 0, 1}

// Splits NAL units on H.264 Annex B start codes.
func splitNALU(data []byte, atEOF bool) (advance int, nalu []byte, err error) {
	i := bytes.Index(data, h264StartCode)

	switch i {
	case -1:
		if atEOF && len(data) > 0 {
			// Final NALU runs to the end of the stream.
			return len(data), data, nil
		}
		// No start code found. Wait for more data.
		advance = 0
	case 0:
		// 3-byte start code (0x000001) found at data[0]. Skip these 3 bytes.
		advance = 3
	case 1:
		if data[0] != 0x00 {
			advance = i + 3
			nalu = data[0:i]
			break
		}
		// 4-byte start code (0x00000001) found at data[0]. Skip these 4 bytes.
		advance = 4
	default:
		// Next start code found at index i.
		advance = i + 3
		if data[i-1] == 0x00 {
			// 4-byte start code
			nalu = data[0 : i-1]
		} else {
			// 3-byte start code
			nalu = data[0:i]
		}
	}
	return
}

func init() {
	RegisterFormat("h264", openAnnexB, "h264", "264")
}
