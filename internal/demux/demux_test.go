package demux

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohaplay/internal/media"
)

type fakeSeek struct {
	t        time.Duration
	backward bool
}

type fakeParser struct {
	infos      []media.StreamInfo
	streamsErr error
	packets    []Packet
	pos        int
	seeks      []fakeSeek
}

func (p *fakeParser) Streams() ([]media.StreamInfo, error) {
	return p.infos, p.streamsErr
}

func (p *fakeParser) ReadPacket() (Packet, error) {
	if p.pos >= len(p.packets) {
		return Packet{}, io.EOF
	}
	pkt := p.packets[p.pos]
	p.pos++
	return pkt, nil
}

func (p *fakeParser) SeekToTime(t time.Duration, backward bool) error {
	p.seeks = append(p.seeks, fakeSeek{t, backward})
	p.pos = len(p.packets)
	for i, pkt := range p.packets {
		if pkt.Timestamp >= t {
			p.pos = i
			break
		}
	}
	return nil
}

var currentFake *fakeParser

func init() {
	RegisterFormat("fake", func(r io.ReadSeeker) (Parser, error) {
		return currentFake, nil
	})
}

type memSource struct {
	data []byte
	fail bool
}

func (s *memSource) Read(position int64, data []byte, done media.ReadCallback) {
	switch {
	case s.fail:
		done(media.ReadError)
	case position >= int64(len(s.data)):
		done(0)
	default:
		done(copy(data, s.data[position:]))
	}
}

func (s *memSource) Size() (int64, bool) { return int64(len(s.data)), true }
func (s *memSource) IsStreaming() bool   { return false }
func (s *memSource) Close() error        { return nil }

var videoInfo = media.StreamInfo{Type: media.StreamVideo, Codec: "h264", Width: 64, Height: 48}
var audioInfo = media.StreamInfo{Type: media.StreamAudio, Codec: "aac", SampleRate: 48000, Channels: 2}

func videoPackets(n int) []Packet {
	var packets []Packet
	for i := 0; i < n; i++ {
		packets = append(packets, Packet{
			Stream:    0,
			Data:      []byte{byte(i)},
			Timestamp: time.Duration(i) * 40 * time.Millisecond,
			Duration:  40 * time.Millisecond,
			KeyFrame:  i == 0,
		})
	}
	return packets
}

func newTestDemuxer(t *testing.T, parser *fakeParser) (*Demuxer, *media.ManualLoop, *media.SimpleHost) {
	currentFake = parser
	loop := &media.ManualLoop{}
	host := media.NewSimpleHost(nil)
	d := New(loop, host, "fake")

	status := media.PipelineStatus(-1)
	d.Initialize(&memSource{}, func(s media.PipelineStatus) { status = s })
	loop.RunUntilIdle()
	require.Equal(t, media.PipelineOK, status)
	return d, loop, host
}

// collect issues n reads and returns the buffers delivered so far.
func collect(s *Stream, n int, out *[]*media.Buffer) {
	for i := 0; i < n; i++ {
		s.Read(func(buf *media.Buffer) { *out = append(*out, buf) })
	}
}

func TestReadsMatchPacketsInOrder(t *testing.T) {
	d, loop, _ := newTestDemuxer(t, &fakeParser{
		infos:   []media.StreamInfo{videoInfo},
		packets: videoPackets(5),
	})
	video := d.StreamOfType(media.StreamVideo)
	require.NotNil(t, video)

	var got []*media.Buffer
	collect(video, 3, &got)
	loop.RunUntilIdle()
	require.Len(t, got, 3)

	collect(video, 4, &got)
	loop.RunUntilIdle()
	require.Len(t, got, 7)

	for i := 0; i < 5; i++ {
		assert.Equal(t, []byte{byte(i)}, got[i].Data())
		assert.Equal(t, time.Duration(i)*40*time.Millisecond, got[i].Timestamp())
		assert.False(t, got[i].IsEndOfStream())
	}
	// Reads past the end keep receiving end of stream.
	assert.True(t, got[5].IsEndOfStream())
	assert.True(t, got[6].IsEndOfStream())
}

func TestDemuxOnlyWhileReadsPending(t *testing.T) {
	parser := &fakeParser{
		infos:   []media.StreamInfo{videoInfo},
		packets: videoPackets(10),
	}
	d, loop, _ := newTestDemuxer(t, parser)

	var got []*media.Buffer
	collect(d.Streams()[0], 2, &got)
	loop.RunUntilIdle()
	assert.Len(t, got, 2)
	assert.Equal(t, 2, parser.pos)
}

func TestFlushMarksNextBufferDiscontinuous(t *testing.T) {
	parser := &fakeParser{
		infos:   []media.StreamInfo{videoInfo},
		packets: videoPackets(6),
	}
	d, loop, _ := newTestDemuxer(t, parser)
	video := d.Streams()[0]

	var got []*media.Buffer
	collect(video, 2, &got)
	loop.RunUntilIdle()
	assert.False(t, got[0].IsDiscontinuous())

	status := media.PipelineStatus(-1)
	d.Seek(0, func(s media.PipelineStatus) { status = s })
	loop.RunUntilIdle()
	assert.Equal(t, media.PipelineOK, status)

	got = nil
	collect(video, 2, &got)
	loop.RunUntilIdle()
	require.Len(t, got, 2)
	assert.True(t, got[0].IsDiscontinuous())
	assert.False(t, got[1].IsDiscontinuous())
	assert.Equal(t, time.Duration(0), got[0].Timestamp())
}

func TestSeekDirection(t *testing.T) {
	parser := &fakeParser{
		infos:   []media.StreamInfo{videoInfo},
		packets: videoPackets(10),
	}
	d, loop, _ := newTestDemuxer(t, parser)
	seek := func(t time.Duration) {
		d.Seek(t, func(media.PipelineStatus) {})
		loop.RunUntilIdle()
	}

	// Nothing read yet: seeking to the start is redundant.
	seek(0)
	assert.Empty(t, parser.seeks)

	var got []*media.Buffer
	collect(d.Streams()[0], 3, &got)
	loop.RunUntilIdle()

	seek(40 * time.Millisecond)
	seek(0)
	assert.Equal(t, []fakeSeek{
		{40 * time.Millisecond, true},
		{0, true},
	}, parser.seeks)

	collect(d.Streams()[0], 1, &got)
	loop.RunUntilIdle()
	seek(320 * time.Millisecond)
	assert.Equal(t, fakeSeek{320 * time.Millisecond, false}, parser.seeks[2])
}

func TestStopRejectsReadsAndPackets(t *testing.T) {
	d, loop, _ := newTestDemuxer(t, &fakeParser{
		infos: []media.StreamInfo{videoInfo},
		// No packets: reads stay pending until the end is reached.
	})
	video := d.Streams()[0]

	// Queue a read without letting the demuxer run.
	var pending []*media.Buffer
	var pendingCalled int
	video.Read(func(buf *media.Buffer) {
		pendingCalled++
		pending = append(pending, buf)
	})
	d.Stop(func() {})
	loop.RunUntilIdle()

	assert.Equal(t, 1, pendingCalled)
	assert.Nil(t, pending[0])

	called := false
	video.Read(func(buf *media.Buffer) {
		called = true
		assert.Nil(t, buf)
	})
	loop.RunUntilIdle()
	assert.True(t, called)

	// Enqueue after stop is a no-op.
	loop.PostTask(func() { video.EnqueuePacket(media.NewBuffer([]byte{1}, 0, 0, nil)) })
	loop.RunUntilIdle()
	assert.False(t, video.HasPendingReads())

	// Stop is idempotent.
	stopped := false
	d.Stop(func() { stopped = true })
	loop.RunUntilIdle()
	assert.True(t, stopped)
}

func TestStopCompletesQueuedReads(t *testing.T) {
	d, loop, _ := newTestDemuxer(t, &fakeParser{infos: []media.StreamInfo{videoInfo}})
	video := d.Streams()[0]

	loop.PostTask(func() {
		video.readQueue = append(video.readQueue, func(buf *media.Buffer) { assert.Nil(t, buf) })
		video.readQueue = append(video.readQueue, func(buf *media.Buffer) { assert.Nil(t, buf) })
		video.Stop()
		assert.False(t, video.HasPendingReads())
	})
	loop.RunUntilIdle()
}

func TestDisableAudio(t *testing.T) {
	packets := []Packet{
		{Stream: 1, Data: []byte{0xa0}, Timestamp: 0},
		{Stream: 0, Data: []byte{0x00}, Timestamp: 0, KeyFrame: true},
		{Stream: 1, Data: []byte{0xa1}, Timestamp: 20 * time.Millisecond},
		{Stream: 0, Data: []byte{0x01}, Timestamp: 40 * time.Millisecond},
	}
	d, loop, _ := newTestDemuxer(t, &fakeParser{
		infos:   []media.StreamInfo{videoInfo, audioInfo},
		packets: packets,
	})
	require.Len(t, d.Streams(), 2)
	audio := d.StreamOfType(media.StreamAudio)
	video := d.StreamOfType(media.StreamVideo)

	d.DisableAudio()
	loop.RunUntilIdle()

	var got []*media.Buffer
	collect(video, 3, &got)
	loop.RunUntilIdle()
	require.Len(t, got, 3)
	assert.Equal(t, []byte{0x00}, got[0].Data())
	assert.Equal(t, []byte{0x01}, got[1].Data())
	assert.True(t, got[2].IsEndOfStream())

	var audioBuf *media.Buffer
	audioCalled := false
	audio.Read(func(buf *media.Buffer) {
		audioCalled = true
		audioBuf = buf
	})
	loop.RunUntilIdle()
	assert.True(t, audioCalled)
	assert.Nil(t, audioBuf)
}

func TestInitializeErrors(t *testing.T) {
	tests := []struct {
		name   string
		format string
		parser *fakeParser
		status media.PipelineStatus
	}{
		{"unknown format", "nope", &fakeParser{}, media.DemuxerErrorCouldNotOpen},
		{"bad header", "fake", &fakeParser{streamsErr: errNoSyncHeader}, media.DemuxerErrorCouldNotParse},
		{"no streams", "fake", &fakeParser{infos: []media.StreamInfo{{Codec: "data"}}}, media.DemuxerErrorNoSupportedStreams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			currentFake = tt.parser
			loop := &media.ManualLoop{}
			host := media.NewSimpleHost(nil)
			d := New(loop, host, tt.format)

			var status media.PipelineStatus
			d.Initialize(&memSource{}, func(s media.PipelineStatus) { status = s })
			loop.RunUntilIdle()
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.status, host.Error())
		})
	}
}

func TestInitializeReportsDuration(t *testing.T) {
	video := videoInfo
	video.Duration = 3 * time.Second
	audio := audioInfo
	audio.Duration = 5 * time.Second
	_, _, host := newTestDemuxer(t, &fakeParser{infos: []media.StreamInfo{video, audio}})
	assert.Equal(t, 5*time.Second, host.Duration())
}

func TestSourceReader(t *testing.T) {
	host := media.NewSimpleHost(nil)
	r := newSourceReader(&memSource{data: []byte("0123456789")}, host)

	buf := make([]byte, 4)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(buf[:n]))

	pos, err := r.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)
	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "89", string(buf[:n]))
	_, err = r.Read(buf)
	assert.Equal(t, io.EOF, err)

	_, err = r.Seek(11, io.SeekStart)
	assert.Error(t, err)
	_, err = r.Seek(-1, io.SeekStart)
	assert.Error(t, err)
	_, err = r.Seek(10, io.SeekStart)
	assert.NoError(t, err)
	assert.Equal(t, media.PipelineOK, host.Error())
}

func TestSourceReaderFailure(t *testing.T) {
	host := media.NewSimpleHost(nil)
	src := &memSource{data: []byte("0123456789"), fail: true}
	r := newSourceReader(src, host)

	_, err := r.Read(make([]byte, 4))
	assert.Error(t, err)
	assert.Equal(t, media.PipelineErrorRead, host.Error())

	// Later reads fail without touching the source.
	src.fail = false
	_, err = r.Read(make([]byte, 4))
	assert.Error(t, err)
}

func TestSourceReaderAbort(t *testing.T) {
	host := media.NewSimpleHost(nil)
	r := newSourceReader(&hangingSource{}, host)

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.abort()
	}()
	_, err := r.Read(make([]byte, 4))
	assert.Equal(t, errReadAborted, err)
	assert.Equal(t, media.PipelineOK, host.Error())
}

// hangingSource never completes reads.
type hangingSource struct{ memSource }

func (s *hangingSource) Read(position int64, data []byte, done media.ReadCallback) {
}

func (s *hangingSource) Size() (int64, bool) {
	return 100, true
}

func TestFormatForName(t *testing.T) {
	for name, want := range map[string]string{
		"clip.mp4":                       "mp4",
		"/tmp/CLIP.MOV":                  "mp4",
		"http://example.com/a.ts?token=": "ts",
		"stream.flv":                     "flv",
		"raw.264":                        "h264",
		"frames.y4m":                     "y4m",
	} {
		tag, ok := FormatForName(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, tag, name)
	}
	_, ok := FormatForName("notes.txt")
	assert.False(t, ok)
}
