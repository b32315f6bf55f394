// Package demux splits a container into elementary streams. A Demuxer parses
// packets on its own loop and hands them to per-stream read queues.
package demux

import (
	"io"
	"time"

	"github.com/lanikai/alohaplay/internal/logging"
	"github.com/lanikai/alohaplay/internal/media"
)

var log = logging.DefaultLogger.WithTag("demux")

// StatusCallback reports the outcome of an asynchronous operation.
type StatusCallback func(status media.PipelineStatus)

type Demuxer struct {
	loop   media.Loop
	host   media.Host
	format string

	// Set by Initialize. Reads happen on loop.
	reader *sourceReader

	// Owned by loop.
	parser  Parser
	streams []*Stream // All supported streams.
	routes  []*Stream // Indexed by parser stream index; nil entries are dropped.

	lastReadTimestamp time.Duration
	readSinceSeek     bool
	stopped           bool
}

// New creates a demuxer for the given format tag, running on loop.
func New(loop media.Loop, host media.Host, format string) *Demuxer {
	return &Demuxer{
		loop:   loop,
		host:   host,
		format: format,
	}
}

// Initialize opens the container. On success the streams are available from
// Streams once done runs.
func (d *Demuxer) Initialize(source media.DataSource, done StatusCallback) {
	d.reader = newSourceReader(source, d.host)
	if !d.loop.PostTask(func() { d.initializeTask(done) }) {
		done(media.PipelineErrorAbort)
	}
}

func (d *Demuxer) initializeTask(done StatusCallback) {
	fail := func(status media.PipelineStatus) {
		d.host.SetError(status)
		done(status)
	}

	parser, err := openParser(d.format, d.reader)
	if err != nil {
		log.Error("Could not open %s: %v", d.format, err)
		fail(media.DemuxerErrorCouldNotOpen)
		return
	}

	infos, err := parser.Streams()
	if err != nil {
		log.Error("Could not parse %s: %v", d.format, err)
		fail(media.DemuxerErrorCouldNotParse)
		return
	}
	d.parser = parser

	var duration time.Duration
	d.routes = make([]*Stream, len(infos))
	for i, info := range infos {
		switch info.Type {
		case media.StreamVideo, media.StreamAudio:
		default:
			log.Debug("Skipping stream %d (%s)", i, info.Codec)
			continue
		}
		s := newStream(d, i, info)
		d.routes[i] = s
		d.streams = append(d.streams, s)
		if info.Duration > duration {
			duration = info.Duration
		}
		log.Info("Stream %d: %v", i, s)
	}
	if len(d.streams) == 0 {
		fail(media.DemuxerErrorNoSupportedStreams)
		return
	}

	d.host.SetDuration(duration)
	done(media.PipelineOK)
}

// Streams returns the supported streams found by Initialize.
func (d *Demuxer) Streams() []*Stream {
	return d.streams
}

// StreamOfType returns the first stream of type t, or nil.
func (d *Demuxer) StreamOfType(t media.StreamType) *Stream {
	for _, s := range d.streams {
		if s.Type() == t {
			return s
		}
	}
	return nil
}

func (d *Demuxer) postDemuxTask() {
	d.loop.PostTask(d.demuxTask)
}

func (d *Demuxer) streamsHavePendingReads() bool {
	for _, s := range d.routes {
		if s != nil && s.HasPendingReads() {
			return true
		}
	}
	return false
}

// demuxTask reads one packet and routes it to its stream. It keeps posting
// itself while any stream is waiting for data.
func (d *Demuxer) demuxTask() {
	if d.stopped || d.parser == nil || !d.streamsHavePendingReads() {
		return
	}

	pkt, err := d.parser.ReadPacket()
	if err != nil {
		if err != io.EOF {
			log.Warn("Read packet: %v", err)
		}
		d.streamHasEnded()
		return
	}

	if pkt.Stream >= 0 && pkt.Stream < len(d.routes) && d.routes[pkt.Stream] != nil {
		if pkt.Timestamp != media.NoTimestamp {
			d.lastReadTimestamp = pkt.Timestamp
		}
		d.readSinceSeek = true
		buf := media.NewBuffer(pkt.Data, pkt.Timestamp, pkt.Duration, nil)
		d.routes[pkt.Stream].EnqueuePacket(buf)
	}

	if d.streamsHavePendingReads() {
		d.postDemuxTask()
	}
}

// streamHasEnded gives every stream an end-of-stream buffer.
func (d *Demuxer) streamHasEnded() {
	for _, s := range d.routes {
		if s != nil {
			s.EnqueuePacket(media.NewEndOfStreamBuffer())
		}
	}
}

// Seek flushes every stream and repositions the parser. A seek to the
// current position before any packet was read is skipped.
func (d *Demuxer) Seek(t time.Duration, done StatusCallback) {
	if !d.loop.PostTask(func() { d.seekTask(t, done) }) {
		done(media.PipelineErrorAbort)
	}
}

func (d *Demuxer) seekTask(t time.Duration, done StatusCallback) {
	for _, s := range d.streams {
		s.FlushBuffers()
	}

	if d.stopped || d.parser == nil {
		done(media.PipelineOK)
		return
	}
	if !d.readSinceSeek && t == d.lastReadTimestamp {
		log.Debug("Skipping seek to current position %v", t)
		done(media.PipelineOK)
		return
	}

	backward := t <= d.lastReadTimestamp
	log.Debug("Seek to %v (backward=%v)", t, backward)
	if err := d.parser.SeekToTime(t, backward); err != nil {
		log.Warn("Could not seek to %v: %v", t, err)
	}
	d.lastReadTimestamp = t
	d.readSinceSeek = false
	done(media.PipelineOK)
}

// Stop stops every stream, completing pending reads with nil, and releases a
// parser blocked on the data source.
func (d *Demuxer) Stop(done func()) {
	posted := d.loop.PostTask(func() {
		d.stopped = true
		for _, s := range d.streams {
			s.Stop()
		}
		done()
	})
	if d.reader != nil {
		d.reader.abort()
	}
	if !posted {
		done()
	}
}

// DisableAudio drops audio packets after demuxing, so that unread audio does
// not accumulate when nothing consumes it.
func (d *Demuxer) DisableAudio() {
	d.loop.PostTask(func() {
		for i, s := range d.routes {
			if s != nil && s.Type() == media.StreamAudio {
				log.Debug("Disabling audio stream %d", i)
				d.routes[i] = nil
				s.Stop()
			}
		}
	})
}
