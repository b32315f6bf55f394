package demux

import (
	"github.com/lanikai/alohaplay/internal/media"
)

// ReadCallback receives the next buffer of a stream, or nil if the stream
// was stopped.
type ReadCallback func(buf *media.Buffer)

// A Stream is one elementary stream of a demuxed container. Reads and
// demuxed packets are matched in FIFO order on the demuxer's loop: the n-th
// Read receives the n-th enqueued buffer.
type Stream struct {
	demuxer *Demuxer
	index   int
	info    media.StreamInfo

	// Owned by the demuxer loop. At most one of the queues is non-empty once
	// a task completes.
	bufferQueue   []*media.Buffer
	readQueue     []ReadCallback
	discontinuous bool
	stopped       bool
}

func newStream(demuxer *Demuxer, index int, info media.StreamInfo) *Stream {
	return &Stream{
		demuxer: demuxer,
		index:   index,
		info:    info,
	}
}

// Info describes the stream as reported by the container parser.
func (s *Stream) Info() media.StreamInfo {
	return s.info
}

func (s *Stream) Type() media.StreamType {
	return s.info.Type
}

func (s *Stream) String() string {
	return s.info.Type.String() + "/" + s.info.Codec
}

// Read requests the next buffer. The callback runs on the demuxer loop, and
// takes ownership of the buffer.
func (s *Stream) Read(callback ReadCallback) {
	if !s.demuxer.loop.PostTask(func() { s.readTask(callback) }) {
		callback(nil)
	}
}

func (s *Stream) readTask(callback ReadCallback) {
	if s.stopped {
		log.Debug("Read on stopped %v stream", s)
		callback(nil)
		return
	}

	s.readQueue = append(s.readQueue, callback)
	if !s.fulfillPendingRead() {
		s.demuxer.postDemuxTask()
	}
}

// HasPendingReads reports whether a read is waiting for a packet.
func (s *Stream) HasPendingReads() bool {
	return len(s.readQueue) > 0
}

// EnqueuePacket hands a demuxed buffer to the stream, taking ownership of
// it. Must run on the demuxer loop.
func (s *Stream) EnqueuePacket(buf *media.Buffer) {
	if s.stopped {
		log.Warn("Dropping packet for stopped %v stream", s)
		buf.Release()
		return
	}

	s.bufferQueue = append(s.bufferQueue, buf)
	s.fulfillPendingRead()
}

// fulfillPendingRead pairs the oldest read with the oldest buffer, if both
// exist. Returns true if a read was satisfied.
func (s *Stream) fulfillPendingRead() bool {
	if len(s.bufferQueue) == 0 || len(s.readQueue) == 0 {
		return false
	}

	buf := s.bufferQueue[0]
	s.bufferQueue[0] = nil
	s.bufferQueue = s.bufferQueue[1:]

	callback := s.readQueue[0]
	s.readQueue[0] = nil
	s.readQueue = s.readQueue[1:]

	if s.discontinuous {
		buf.SetDiscontinuous(true)
		s.discontinuous = false
	}
	callback(buf)
	return true
}

// FlushBuffers drops buffered packets and marks the next delivered buffer as
// discontinuous. Readers are expected to be idle; any read still queued is
// dropped. Must run on the demuxer loop.
func (s *Stream) FlushBuffers() {
	for _, buf := range s.bufferQueue {
		buf.Release()
	}
	s.bufferQueue = nil

	if n := len(s.readQueue); n > 0 {
		log.Warn("Flushing %v stream with %d pending reads", s, n)
		s.readQueue = nil
	}
	s.discontinuous = true
}

// Stop completes every pending read with nil and rejects later reads. Must
// run on the demuxer loop.
func (s *Stream) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true

	for _, buf := range s.bufferQueue {
		buf.Release()
	}
	s.bufferQueue = nil

	reads := s.readQueue
	s.readQueue = nil
	for _, callback := range reads {
		callback(nil)
	}
}
