package demux

import (
	"io"
	"strings"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/format/flv"
	"github.com/nareix/joy4/format/mp4"
	"github.com/nareix/joy4/format/ts"
	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

// joy4 reports all timestamps as time.Duration.
var joyTimeBase = media.Rational{Num: 1, Den: int(time.Second / time.Microsecond)}

type avDemuxer interface {
	Streams() ([]av.CodecData, error)
	ReadPacket() (av.Packet, error)
}

func streamInfo(codec av.CodecData) media.StreamInfo {
	info := media.StreamInfo{
		Codec:    codecName(codec.Type()),
		TimeBase: joyTimeBase,
	}
	switch cd := codec.(type) {
	case av.VideoCodecData:
		info.Type = media.StreamVideo
		info.Width = cd.Width()
		info.Height = cd.Height()
	case av.AudioCodecData:
		info.Type = media.StreamAudio
		info.SampleRate = cd.SampleRate()
		info.Channels = cd.ChannelLayout().Count()
	}
	info.CodecData = codec
	return info
}

func codecName(t av.CodecType) string {
	switch t {
	case av.H264:
		return "h264"
	case av.AAC:
		return "aac"
	default:
		return strings.ToLower(t.String())
	}
}

func convertPacket(pkt av.Packet) Packet {
	return Packet{
		Stream:    int(pkt.Idx),
		Data:      pkt.Data,
		Timestamp: pkt.Time + pkt.CompositionTime,
		Duration:  media.NoTimestamp,
		KeyFrame:  pkt.IsKeyFrame,
	}
}

func streamInfos(d avDemuxer) ([]media.StreamInfo, error) {
	codecs, err := d.Streams()
	if err != nil {
		return nil, err
	}
	infos := make([]media.StreamInfo, len(codecs))
	for i, codec := range codecs {
		infos[i] = streamInfo(codec)
		log.Debug("Stream %d: %v %s", i, infos[i].Type, infos[i].Codec)
	}
	return infos, nil
}

// mp4Parser wraps the joy4 MP4 demuxer, which seeks using the sample index.
type mp4Parser struct {
	demuxer *mp4.Demuxer
}

func openMP4(r io.ReadSeeker) (Parser, error) {
	return &mp4Parser{demuxer: mp4.NewDemuxer(r)}, nil
}

func (p *mp4Parser) Streams() ([]media.StreamInfo, error) {
	return streamInfos(p.demuxer)
}

func (p *mp4Parser) ReadPacket() (Packet, error) {
	pkt, err := p.demuxer.ReadPacket()
	if err != nil {
		return Packet{}, err
	}
	return convertPacket(pkt), nil
}

// SeekToTime lands on the sync sample at or before t regardless of direction.
func (p *mp4Parser) SeekToTime(t time.Duration, backward bool) error {
	return errors.Wrapf(p.demuxer.SeekToTime(t), "seek to %v", t)
}

// streamParser wraps the joy4 demuxers for formats without an index. It
// seeks by rewinding the input and reading forward.
type streamParser struct {
	scanningSeeker

	r       io.ReadSeeker
	newFunc func(io.Reader) avDemuxer
	demuxer avDemuxer
}

func newStreamParser(r io.ReadSeeker, newFunc func(io.Reader) avDemuxer) *streamParser {
	p := &streamParser{
		r:       r,
		newFunc: newFunc,
		demuxer: newFunc(r),
	}
	p.src = p
	return p
}

func openTS(r io.ReadSeeker) (Parser, error) {
	return newStreamParser(r, func(r io.Reader) avDemuxer { return ts.NewDemuxer(r) }), nil
}

func openFLV(r io.ReadSeeker) (Parser, error) {
	return newStreamParser(r, func(r io.Reader) avDemuxer { return flv.NewDemuxer(r) }), nil
}

func (p *streamParser) Streams() ([]media.StreamInfo, error) {
	return streamInfos(p.demuxer)
}

func (p *streamParser) readPacket() (Packet, error) {
	pkt, err := p.demuxer.ReadPacket()
	if err != nil {
		return Packet{}, err
	}
	return convertPacket(pkt), nil
}

func (p *streamParser) rewind() error {
	if _, err := p.r.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(errNotSeekable, "rewind: %v", err)
	}
	p.demuxer = p.newFunc(p.r)
	// Consume the header again.
	_, err := p.demuxer.Streams()
	return err
}

func init() {
	RegisterFormat("mp4", openMP4, "mp4", "m4v", "mov")
	RegisterFormat("ts", openTS, "ts", "m2ts")
	RegisterFormat("flv", openFLV, "flv")
}
