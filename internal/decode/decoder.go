// Package decode turns demuxed video buffers into frames. A VideoDecoder
// drives an Engine on its own loop and reconstructs presentation timestamps.
package decode

import (
	"github.com/lanikai/alohaplay/internal/demux"
	"github.com/lanikai/alohaplay/internal/logging"
	"github.com/lanikai/alohaplay/internal/media"
)

var log = logging.DefaultLogger.WithTag("decode")

type State int

const (
	StateUninitialized State = iota
	StateNormal
	StateFlushCodec
	StateDecodeFinished
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateNormal:
		return "Normal"
	case StateFlushCodec:
		return "FlushCodec"
	case StateDecodeFinished:
		return "DecodeFinished"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// A Stream is the decoder's input, typically a *demux.Stream.
type Stream interface {
	Info() media.StreamInfo
	Read(callback demux.ReadCallback)
}

// FrameCallback receives decoded frames on the decoder loop. An end of
// stream frame follows the last picture.
type FrameCallback func(frame *media.VideoFrame)

// StatusCallback reports the outcome of an asynchronous operation.
type StatusCallback func(status media.PipelineStatus)

type VideoDecoder struct {
	loop   media.Loop
	host   media.Host
	engine Engine

	// DefaultFrameRate is used when the stream does not declare one.
	DefaultFrameRate media.Rational

	// Owned by loop.
	state    State
	stream   Stream
	consumer FrameCallback
	info     EngineInfo

	timeBase media.Rational
	ptsHeap  media.PtsHeap
	lastPts  TimeTuple

	pendingReads int

	initializeDone StatusCallback
	flushDone      func()
	seekDone       StatusCallback
	stopDone       func()
}

func NewVideoDecoder(loop media.Loop, host media.Host, engine Engine) *VideoDecoder {
	return &VideoDecoder{
		loop:             loop,
		host:             host,
		engine:           engine,
		DefaultFrameRate: media.Rational{Num: 25, Den: 1},
		lastPts:          noTime,
	}
}

// State returns the current state. Only meaningful on the decoder loop.
func (d *VideoDecoder) State() State {
	return d.state
}

// Initialize configures the engine for stream. Decoded frames go to consumer.
func (d *VideoDecoder) Initialize(stream Stream, consumer FrameCallback, done StatusCallback) {
	if !d.loop.PostTask(func() { d.initializeTask(stream, consumer, done) }) {
		done(media.PipelineErrorAbort)
	}
}

func (d *VideoDecoder) initializeTask(stream Stream, consumer FrameCallback, done StatusCallback) {
	if d.state != StateUninitialized {
		log.Warn("Initialize in state %v", d.state)
		done(media.PipelineErrorInvalidState)
		return
	}

	info := stream.Info()
	if info.Type != media.StreamVideo || !media.ValidDimensions(info.Width, info.Height) {
		log.Error("Cannot decode %v stream %dx%d", info.Type, info.Width, info.Height)
		d.host.SetError(media.PipelineErrorDecode)
		done(media.PipelineErrorDecode)
		return
	}

	frameRate := info.FrameRate
	if !frameRate.Valid() {
		log.Debug("No frame rate for %s stream, assuming %v", info.Codec, d.DefaultFrameRate)
		frameRate = d.DefaultFrameRate
	}
	d.timeBase = frameRate.Invert()

	d.stream = stream
	d.consumer = consumer
	d.initializeDone = done
	d.engine.Initialize(d.loop, d, Config{
		Codec:     info.Codec,
		Width:     info.Width,
		Height:    info.Height,
		FrameRate: frameRate,
		CodecData: info.CodecData,
	})
}

func (d *VideoDecoder) OnInitializeComplete(info EngineInfo) {
	done := d.initializeDone
	d.initializeDone = nil

	if d.state == StateStopped {
		done(media.PipelineErrorAbort)
		return
	}
	if !info.Success {
		d.host.SetError(media.PipelineErrorDecode)
		done(media.PipelineErrorDecode)
		return
	}

	d.info = info
	d.state = StateNormal
	d.host.SetVideoSize(info.Width, info.Height)
	done(media.PipelineOK)
}

// ProvidesBuffers reports whether frames come from a direct-rendering
// allocator. Valid once Initialize completes.
func (d *VideoDecoder) ProvidesBuffers() bool {
	return d.info.ProvidesBuffers
}

// ProduceVideoFrame asks for the next frame. frame, if not nil, is a frame
// the consumer is done with.
func (d *VideoDecoder) ProduceVideoFrame(frame *media.VideoFrame) {
	d.loop.PostTask(func() { d.produceVideoFrameTask(frame) })
}

func (d *VideoDecoder) produceVideoFrameTask(frame *media.VideoFrame) {
	switch d.state {
	case StateNormal, StateFlushCodec:
		d.engine.ProduceVideoFrame(frame)
	case StateDecodeFinished:
		// The engine has nothing more to give.
		d.consumer(media.NewEmptyFrame())
	default:
		log.Debug("Ignoring frame request in state %v", d.state)
	}
}

// OnEmptyBufferCallback reads the next input buffer for the engine. Once
// decoding finished, the read is answered with end of stream instead.
func (d *VideoDecoder) OnEmptyBufferCallback() {
	switch d.state {
	case StateDecodeFinished:
		d.engine.DropVideoSample()
		d.consumer(media.NewEmptyFrame())
		return
	case StateStopped, StateUninitialized:
		return
	}
	d.pendingReads++
	d.stream.Read(func(buf *media.Buffer) {
		if !d.loop.PostTask(func() { d.onReadComplete(buf) }) {
			buf.Release()
		}
	})
}

func (d *VideoDecoder) onReadComplete(buf *media.Buffer) {
	d.pendingReads--
	switch d.state {
	case StateStopped, StateUninitialized:
		if buf != nil {
			buf.Release()
		}
		return
	}
	if buf == nil || d.state == StateDecodeFinished {
		// Input stopped, or the engine already drained. Each engine read
		// stands for one frame request.
		if buf != nil {
			buf.Release()
		}
		d.engine.DropVideoSample()
		if d.state == StateDecodeFinished {
			d.consumer(media.NewEmptyFrame())
		}
		return
	}

	if buf.IsDiscontinuous() {
		d.state = StateNormal
		d.ptsHeap.Clear()
	}

	// Codecs may hold pictures back, so the first end of stream starts
	// draining rather than finishing.
	if d.state == StateNormal && buf.IsEndOfStream() {
		log.Debug("End of input stream, flushing codec")
		d.state = StateFlushCodec
	}

	// Timestamps are collected until end of stream.
	if d.state == StateNormal && !buf.IsEndOfStream() && buf.Timestamp() != media.NoTimestamp {
		d.ptsHeap.Push(buf.Timestamp())
	}

	d.engine.ConsumeVideoSample(buf)
}

func (d *VideoDecoder) OnFillBufferCallback(frame *media.VideoFrame) {
	if d.state == StateStopped {
		return
	}

	if frame != nil {
		d.lastPts = findPtsAndDuration(d.timeBase, &d.ptsHeap, d.lastPts, frame)
		frame.SetTimestamp(d.lastPts.Timestamp)
		frame.SetDuration(d.lastPts.Duration)
		d.consumer(frame)
		return
	}

	// An error or empty output while draining ends decoding.
	if d.state == StateFlushCodec {
		d.state = StateDecodeFinished
		d.consumer(media.NewEmptyFrame())
	}
}

func (d *VideoDecoder) OnError() {
	log.Error("Engine error in state %v", d.state)
	if d.state == StateStopped {
		return
	}
	if d.state != StateDecodeFinished {
		d.state = StateDecodeFinished
		d.consumer(media.NewEmptyFrame())
	}
	d.host.SetError(media.PipelineErrorDecode)
}

// Flush drops queued timestamps and engine state.
func (d *VideoDecoder) Flush(done func()) {
	if !d.loop.PostTask(func() { d.flushTask(done) }) {
		done()
	}
}

func (d *VideoDecoder) flushTask(done func()) {
	d.ptsHeap.Clear()
	if d.state == StateUninitialized || d.state == StateStopped {
		done()
		return
	}
	d.flushDone = done
	d.engine.Flush()
}

func (d *VideoDecoder) OnFlushComplete() {
	if done := d.flushDone; done != nil {
		d.flushDone = nil
		done()
	}
}

// Seek resumes decoding after the demuxer was repositioned.
func (d *VideoDecoder) Seek(done StatusCallback) {
	if !d.loop.PostTask(func() { d.seekTask(done) }) {
		done(media.PipelineErrorAbort)
	}
}

func (d *VideoDecoder) seekTask(done StatusCallback) {
	switch d.state {
	case StateUninitialized, StateStopped:
		done(media.PipelineErrorInvalidState)
		return
	}
	d.state = StateNormal
	d.lastPts = noTime
	d.seekDone = done
	d.engine.Seek()
}

func (d *VideoDecoder) OnSeekComplete() {
	if done := d.seekDone; done != nil {
		d.seekDone = nil
		done(media.PipelineOK)
	}
}

// Stop uninitializes the engine. Later frame requests are ignored.
func (d *VideoDecoder) Stop(done func()) {
	if !d.loop.PostTask(func() { d.stopTask(done) }) {
		done()
	}
}

func (d *VideoDecoder) stopTask(done func()) {
	switch d.state {
	case StateStopped:
		done()
		return
	case StateUninitialized:
		d.state = StateStopped
		done()
		return
	}
	d.state = StateStopped
	d.stopDone = done
	d.engine.Uninitialize()
}

func (d *VideoDecoder) OnUninitializeComplete() {
	if done := d.stopDone; done != nil {
		d.stopDone = nil
		done()
	}
}
