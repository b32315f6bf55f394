package main

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay"
	"github.com/lanikai/alohaplay/internal/datasource"
	"github.com/lanikai/alohaplay/internal/decode"
	"github.com/lanikai/alohaplay/internal/demux"
	"github.com/lanikai/alohaplay/internal/media"
	"github.com/lanikai/alohaplay/internal/omx"
)

type benchConfig struct {
	URL    string
	Format string
	Engine string
	Direct bool

	// Depth is the number of frame requests kept outstanding.
	Depth int

	// Frames stops the run early when positive.
	Frames int
}

type benchResult struct {
	Frames  int
	Elapsed time.Duration
}

func (r benchResult) FPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Elapsed.Seconds()
}

// bench pulls frames from a decoder as fast as it produces them. Its fields
// belong to the decode loop.
type bench struct {
	config  benchConfig
	decoder *decode.VideoDecoder
	start   time.Time
	frames  int
	eos     int

	once     sync.Once
	result   benchResult
	finished chan struct{}
}

func (b *bench) consume(frame *media.VideoFrame) {
	if frame.IsEndOfStream() {
		// Every outstanding request ends with end of stream.
		b.eos++
		if b.eos == b.config.Depth {
			b.finish()
		}
		return
	}
	b.frames++
	if b.config.Frames > 0 && b.frames >= b.config.Frames {
		b.finish()
		return
	}
	b.decoder.ProduceVideoFrame(frame)
}

func (b *bench) finish() {
	b.once.Do(func() {
		b.result = benchResult{Frames: b.frames, Elapsed: time.Since(b.start)}
		close(b.finished)
	})
}

// run decodes config.URL without rendering and measures the frame rate.
func run(ctx context.Context, config benchConfig) (benchResult, error) {
	if config.Depth < 1 {
		config.Depth = 1
	}
	format := config.Format
	if format == "" {
		var ok bool
		if format, ok = demux.FormatForName(config.URL); !ok {
			return benchResult{}, errors.Wrap(alohaplay.ErrUnknownFormat, config.URL)
		}
	}

	source, err := datasource.Open(ctx, config.URL)
	if err != nil {
		return benchResult{}, err
	}
	defer source.Close()

	host := media.NewSimpleHost(nil)
	demuxLoop := media.NewTaskLoop("demux")
	defer demuxLoop.Stop()
	decodeLoop := media.NewTaskLoop("decode")
	defer decodeLoop.Stop()

	demuxer := demux.New(demuxLoop, host, format)
	defer awaitDone(demuxer.Stop)
	if status := awaitStatus(ctx, func(done func(media.PipelineStatus)) {
		demuxer.Initialize(source, demux.StatusCallback(done))
	}); status != media.PipelineOK {
		return benchResult{}, errors.Wrap(status, "demuxer")
	}
	demuxer.DisableAudio()

	stream := demuxer.StreamOfType(media.StreamVideo)
	if stream == nil {
		return benchResult{}, alohaplay.ErrNoVideo
	}
	log.Info("Decoding %v from %s", stream, config.URL)

	b := &bench{config: config, finished: make(chan struct{})}
	b.decoder = decode.NewVideoDecoder(decodeLoop, host, newEngine(config, decodeLoop))
	defer awaitDone(b.decoder.Stop)
	if status := awaitStatus(ctx, func(done func(media.PipelineStatus)) {
		b.decoder.Initialize(stream, b.consume, decode.StatusCallback(done))
	}); status != media.PipelineOK {
		return benchResult{}, errors.Wrap(status, "decoder")
	}

	media.Invoke(decodeLoop, func() { b.start = time.Now() })
	for i := 0; i < config.Depth; i++ {
		b.decoder.ProduceVideoFrame(nil)
	}

	select {
	case <-b.finished:
	case <-ctx.Done():
		return benchResult{}, ctx.Err()
	}
	if status := host.Error(); status != media.PipelineOK {
		return b.result, status
	}
	return b.result, nil
}

func newEngine(config benchConfig, loop media.Loop) decode.Engine {
	if config.Engine == alohaplay.EngineOMX {
		return decode.NewOmxEngine(omx.NewLoopbackComponent(loop))
	}
	engine := decode.NewSoftwareEngine()
	if config.Direct {
		engine.DirectRendering = true
		engine.Allocator = &decode.PoolAllocator{}
	}
	return engine
}

func awaitStatus(ctx context.Context, op func(done func(media.PipelineStatus))) media.PipelineStatus {
	result := make(chan media.PipelineStatus, 1)
	op(func(status media.PipelineStatus) {
		select {
		case result <- status:
		default:
		}
	})
	select {
	case status := <-result:
		return status
	case <-ctx.Done():
		return media.PipelineErrorAbort
	}
}

func awaitDone(op func(done func())) {
	done := make(chan struct{})
	var once sync.Once
	op(func() { once.Do(func() { close(done) }) })
	<-done
}
