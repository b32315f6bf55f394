package media

import (
	"sync/atomic"
	"time"
)

const (
	flagEndOfStream = 1 << iota
	flagDiscontinuous
)

/*
A Buffer is a span of encoded media (one demuxed packet) with its timestamp and
duration. Buffers are shared between a demuxer stream's queue and the decoder,
and are reference counted: Hold() increments the count, Release() decrements
it, and the release function runs when it reaches zero.

	func consume(buf *Buffer) {
		defer buf.Release()
		decode(buf.Data())
	}

An end-of-stream buffer carries no data.
*/
type Buffer struct {
	data      []byte
	timestamp time.Duration
	duration  time.Duration

	flags uint32

	count   int32
	release func()
}

// NewBuffer wraps data. The release function, if any, is called once the last
// holder releases the buffer.
func NewBuffer(data []byte, timestamp, duration time.Duration, release func()) *Buffer {
	return &Buffer{
		data:      data,
		timestamp: timestamp,
		duration:  duration,
		count:     1,
		release:   release,
	}
}

// NewEndOfStreamBuffer returns an empty buffer that marks the end of a stream.
func NewEndOfStreamBuffer() *Buffer {
	return &Buffer{
		timestamp: NoTimestamp,
		duration:  NoTimestamp,
		flags:     flagEndOfStream,
		count:     1,
	}
}

// Data returns the underlying bytes.
func (buf *Buffer) Data() []byte {
	return buf.data
}

func (buf *Buffer) Size() int {
	return len(buf.data)
}

func (buf *Buffer) Timestamp() time.Duration {
	return buf.timestamp
}

func (buf *Buffer) SetTimestamp(ts time.Duration) {
	buf.timestamp = ts
}

func (buf *Buffer) Duration() time.Duration {
	return buf.duration
}

func (buf *Buffer) SetDuration(d time.Duration) {
	buf.duration = d
}

func (buf *Buffer) IsEndOfStream() bool {
	return atomic.LoadUint32(&buf.flags)&flagEndOfStream != 0
}

// IsDiscontinuous reports whether this is the first buffer after a flush, i.e.
// downstream reordering state must be reset.
func (buf *Buffer) IsDiscontinuous() bool {
	return atomic.LoadUint32(&buf.flags)&flagDiscontinuous != 0
}

func (buf *Buffer) SetDiscontinuous(discontinuous bool) {
	for {
		old := atomic.LoadUint32(&buf.flags)
		flags := old &^ flagDiscontinuous
		if discontinuous {
			flags |= flagDiscontinuous
		}
		if atomic.CompareAndSwapUint32(&buf.flags, old, flags) {
			return
		}
	}
}

// Increments the hold count.
func (buf *Buffer) Hold() {
	atomic.AddInt32(&buf.count, 1)
}

// Decrements the hold count. When the hold count reaches zero, the release
// function runs and the data is dropped.
func (buf *Buffer) Release() {
	if buf == nil {
		return
	}
	if atomic.AddInt32(&buf.count, -1) == 0 {
		if buf.release != nil {
			buf.release()
		}
		buf.data = nil
	}
}
