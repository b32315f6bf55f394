// Package alohaplay plays a single video stream: a data source feeds a
// demuxer, whose video stream is decoded and paced out to a frame sink
// against a media clock.
package alohaplay

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lanikai/alohaplay/internal/datasource"
	"github.com/lanikai/alohaplay/internal/decode"
	"github.com/lanikai/alohaplay/internal/demux"
	"github.com/lanikai/alohaplay/internal/logging"
	"github.com/lanikai/alohaplay/internal/media"
	"github.com/lanikai/alohaplay/internal/monitor"
	"github.com/lanikai/alohaplay/internal/omx"
	"github.com/lanikai/alohaplay/internal/render"
)

var log = logging.DefaultLogger.WithTag("player")

const shutdownTimeout = 2 * time.Second

type Player struct {
	ID     string
	config Config

	clock *media.Clock
	host  *media.SimpleHost

	demuxLoop  *media.TaskLoop
	decodeLoop *media.TaskLoop

	source   media.DataSource
	demuxer  *demux.Demuxer
	decoder  *decode.VideoDecoder
	renderer *render.Renderer
	sink     render.Sink

	hub    *monitor.Hub
	server *monitor.Server

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu        sync.Mutex
	state     State
	network   NetworkState
	listeners []Listener

	// Signalled after every status change.
	changed chan struct{}

	stopOnce sync.Once
	stopped  chan struct{}
	stopErr  error
}

func New(config Config) (*Player, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	p := &Player{
		ID:      uuid.New().String(),
		config:  config,
		clock:   media.NewClock(nil),
		hub:     monitor.NewHub(),
		changed: make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	p.clock.SetPlaybackRate(config.PlaybackRate)
	p.host = media.NewSimpleHost(p.clock)
	p.host.Notify = p.notify
	if config.MonitorAddress != "" {
		p.server = monitor.NewServer(config.MonitorAddress, p.hub)
	}
	return p, nil
}

// Must is a helper that wraps a call to a function returning (*Player, error)
// and panics if the error is non-nil.
func Must(p *Player, err error) *Player {
	if err != nil {
		panic(err)
	}
	return p
}

// AddListener registers l for status changes.
func (p *Player) AddListener(l Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
}

// Start opens the media, builds the pipeline, and prerolls at the configured
// start time. Unless the player was configured paused, playback begins.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateIdle {
		state := p.state
		p.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "start in state %v", state)
	}
	p.state = StateOpening
	p.network = NetworkLoading
	p.mu.Unlock()
	p.notify()

	ctx, p.cancel = context.WithCancel(ctx)
	p.group, p.ctx = errgroup.WithContext(ctx)
	if p.server != nil {
		p.group.Go(p.server.Listen)
		p.group.Go(func() error {
			<-p.ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return p.server.Shutdown(shutdownCtx)
		})
	}

	if err := p.build(ctx); err != nil {
		log.Error("Start %s: %v", p.config.URL, err)
		p.setState(StateError)
		return err
	}

	if !p.seek(p.config.StartTime, !p.config.Paused) {
		return errors.Wrap(p.failure(), "initial seek")
	}
	return nil
}

func (p *Player) build(ctx context.Context) error {
	format := p.config.Format
	if format == "" {
		var ok bool
		if format, ok = demux.FormatForName(p.config.URL); !ok {
			p.host.SetError(media.DemuxerErrorCouldNotOpen)
			return errors.Wrap(ErrUnknownFormat, p.config.URL)
		}
	}

	source, err := datasource.Open(ctx, p.config.URL)
	if err != nil {
		p.host.SetError(datasource.Status(err))
		return err
	}
	p.source = source

	sink, err := p.openSink()
	if err != nil {
		p.host.SetError(media.PipelineErrorInitializationFailed)
		return err
	}
	p.sink = sink

	p.demuxLoop = media.NewTaskLoop("demux")
	p.decodeLoop = media.NewTaskLoop("decode")

	p.demuxer = demux.New(p.demuxLoop, p.host, format)
	if status := p.awaitStatus(func(done func(media.PipelineStatus)) {
		p.demuxer.Initialize(source, demux.StatusCallback(done))
	}); status != media.PipelineOK {
		return errors.Wrap(status, "demuxer")
	}
	// Nothing here plays audio.
	p.demuxer.DisableAudio()

	stream := p.demuxer.StreamOfType(media.StreamVideo)
	if stream == nil {
		p.host.SetError(media.DemuxerErrorNoSupportedStreams)
		return ErrNoVideo
	}
	log.Info("Playing %v from %s", stream, p.config.URL)

	p.renderer = render.NewRenderer(p.host, p.sink)
	p.decoder = decode.NewVideoDecoder(p.decodeLoop, p.host, p.newEngine())
	if status := p.awaitStatus(func(done func(media.PipelineStatus)) {
		p.decoder.Initialize(stream, p.renderer.ConsumeVideoFrame, decode.StatusCallback(done))
	}); status != media.PipelineOK {
		return errors.Wrap(status, "decoder")
	}

	width, height := p.host.VideoSize()
	if err := p.renderer.Initialize(p.decoder, width, height); err != nil {
		return err
	}

	p.mu.Lock()
	p.network = NetworkLoaded
	p.mu.Unlock()
	return nil
}

func (p *Player) newEngine() decode.Engine {
	switch p.config.Engine {
	case EngineOMX:
		return decode.NewOmxEngine(omx.NewLoopbackComponent(p.decodeLoop))
	default:
		engine := decode.NewSoftwareEngine()
		if p.config.DirectRendering {
			engine.DirectRendering = true
			engine.Allocator = &decode.PoolAllocator{}
		}
		return engine
	}
}

func (p *Player) openSink() (render.Sink, error) {
	if p.config.Output == "" {
		return &render.CountingSink{}, nil
	}
	return render.NewFileSink(p.config.Output)
}

// Seek moves playback to t, keeping the player playing or paused as it was.
func (p *Player) Seek(t time.Duration) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	var play bool
	switch state {
	case StatePlaying, StateEnded:
		play = true
	case StatePaused:
	default:
		return errors.Wrapf(ErrInvalidState, "seek in state %v", state)
	}
	if t < 0 {
		return errors.Wrapf(ErrInvalidSeek, "%v", t)
	}
	if d := p.host.Duration(); d > 0 && t > d {
		return errors.Wrapf(ErrInvalidSeek, "%v beyond %v", t, d)
	}

	if !p.seek(t, play) {
		return errors.Wrapf(p.failure(), "seek to %v", t)
	}
	return nil
}

// seek runs the pipeline through a seek to t. Returns false if the pipeline
// failed or was stopped along the way.
func (p *Player) seek(t time.Duration, play bool) bool {
	p.setState(StateSeeking)
	log.Debug("Seek to %v", t)

	if !p.await(p.renderer.Pause) {
		return false
	}
	p.clock.Pause()
	if !p.await(p.decoder.Flush) {
		return false
	}
	status := p.awaitStatus(func(done func(media.PipelineStatus)) {
		p.demuxer.Seek(t, demux.StatusCallback(done))
	})
	if status != media.PipelineOK {
		p.host.SetError(status)
		return false
	}
	status = p.awaitStatus(func(done func(media.PipelineStatus)) {
		p.decoder.Seek(decode.StatusCallback(done))
	})
	if status != media.PipelineOK {
		p.host.SetError(status)
		return false
	}
	if !p.await(p.renderer.Seek) {
		return false
	}

	p.clock.Seek(t)
	p.host.ResetEnded()
	if p.host.Error() != media.PipelineOK {
		return false
	}
	if play {
		p.clock.Play()
		p.renderer.Play()
		p.setState(StatePlaying)
	} else {
		p.setState(StatePaused)
	}
	return true
}

// await runs an asynchronous operation and waits for its callback. Returns
// false if the player stopped first.
func (p *Player) await(op func(done func())) bool {
	done := make(chan struct{})
	var once sync.Once
	op(func() { once.Do(func() { close(done) }) })
	select {
	case <-done:
		return true
	case <-p.stopped:
		return false
	}
}

func (p *Player) awaitStatus(op func(done func(media.PipelineStatus))) media.PipelineStatus {
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
	case <-p.stopped:
		return media.PipelineErrorAbort
	}
}

// failure explains why the pipeline gave up.
func (p *Player) failure() error {
	select {
	case <-p.stopped:
		return errors.Wrap(ErrInvalidState, "stopped")
	default:
	}
	if status := p.host.Error(); status != media.PipelineOK {
		p.setState(StateError)
		return status
	}
	return media.PipelineErrorAbort
}

func (p *Player) Pause() error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	switch state {
	case StatePaused:
		return nil
	case StatePlaying, StateEnded:
	default:
		return errors.Wrapf(ErrInvalidState, "pause in state %v", state)
	}
	if !p.await(p.renderer.Pause) {
		return errors.Wrap(ErrInvalidState, "stopped")
	}
	p.clock.Pause()
	p.setState(StatePaused)
	return nil
}

func (p *Player) Play() error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	switch state {
	case StatePlaying:
		return nil
	case StatePaused:
	default:
		return errors.Wrapf(ErrInvalidState, "play in state %v", state)
	}
	p.clock.Play()
	p.renderer.Play()
	p.setState(StatePlaying)
	return nil
}

func (p *Player) SetPlaybackRate(rate float64) error {
	if rate <= 0 {
		return errors.Wrapf(ErrInvalidRate, "%v", rate)
	}
	p.clock.SetPlaybackRate(rate)
	if p.renderer != nil {
		p.renderer.SetPlaybackRate(rate)
	}
	p.notify()
	return nil
}

func (p *Player) Status() Status {
	p.mu.Lock()
	state, network := p.state, p.network
	p.mu.Unlock()

	status := p.host.Error()
	if status != media.PipelineOK {
		network = networkError(status)
	}
	width, height := p.host.VideoSize()
	return Status{
		ID:       p.ID,
		URL:      p.config.URL,
		State:    state,
		Network:  network,
		Error:    status,
		Position: p.host.Time(),
		Duration: p.host.Duration(),
		Width:    width,
		Height:   height,
		Rate:     p.clock.PlaybackRate(),
		Ended:    p.host.Ended(),
	}
}

// Wait blocks until playback ends, the pipeline fails, the player is stopped
// or ctx is done. Only a pipeline failure or ctx produce an error.
func (p *Player) Wait(ctx context.Context) error {
	var internal <-chan struct{}
	if p.ctx != nil {
		internal = p.ctx.Done()
	}
	for {
		if status := p.host.Error(); status != media.PipelineOK {
			return status
		}
		if p.host.Ended() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopped:
			return nil
		case <-internal:
			// The monitor server failed, or the start context was cancelled.
			internal = nil
			if err := p.group.Wait(); err != nil {
				return err
			}
			if p.ctx.Err() != nil {
				return p.ctx.Err()
			}
		case <-p.changed:
		}
	}
}

// Stop tears down the pipeline. Safe to call more than once, and from any
// goroutine other than a pipeline callback.
func (p *Player) Stop() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.state = StateStopped
		p.mu.Unlock()
		close(p.stopped)

		if p.cancel != nil {
			p.cancel()
			p.stopErr = p.group.Wait()
		}

		p.clock.Pause()
		if p.renderer != nil {
			p.renderer.Stop()
		}
		if p.decoder != nil {
			p.waitStopped(p.decoder.Stop)
		}
		if p.demuxer != nil {
			p.waitStopped(p.demuxer.Stop)
		}
		if p.decodeLoop != nil {
			p.decodeLoop.Stop()
		}
		if p.demuxLoop != nil {
			p.demuxLoop.Stop()
		}
		if p.source != nil {
			if err := p.source.Close(); err != nil {
				log.Warn("Close %s: %v", p.config.URL, err)
			}
		}
		if closer, ok := p.sink.(io.Closer); ok {
			if err := closer.Close(); err != nil && p.stopErr == nil {
				p.stopErr = err
			}
		}

		p.notify()
		p.hub.Close()
		log.Debug("Player %s stopped", p.ID)
	})
	return p.stopErr
}

func (p *Player) waitStopped(stop func(done func())) {
	done := make(chan struct{})
	stop(func() { close(done) })
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn("Timed out stopping pipeline")
	}
}

func (p *Player) setState(state State) {
	p.mu.Lock()
	if p.state == state || p.state == StateStopped {
		p.mu.Unlock()
		return
	}
	log.Debug("%v -> %v", p.state, state)
	p.state = state
	p.mu.Unlock()
	p.notify()
}

// notify runs after any change to the player or its host.
func (p *Player) notify() {
	p.mu.Lock()
	if p.state == StatePlaying && p.host.Ended() {
		p.state = StateEnded
	}
	if p.state != StateStopped && p.host.Error() != media.PipelineOK {
		p.state = StateError
	}
	listeners := p.listeners
	p.mu.Unlock()

	status := p.Status()
	for _, l := range listeners {
		l(status)
	}
	p.hub.Publish(snapshot(status))

	select {
	case p.changed <- struct{}{}:
	default:
	}
}

func snapshot(s Status) monitor.Snapshot {
	snap := monitor.Snapshot{
		ID:       s.ID,
		URL:      s.URL,
		State:    s.State.String(),
		Position: s.Position,
		Duration: s.Duration,
		Width:    s.Width,
		Height:   s.Height,
		Rate:     s.Rate,
		Ended:    s.Ended,
	}
	if s.Error != media.PipelineOK {
		snap.Error = s.Error.String()
	}
	return snap
}
