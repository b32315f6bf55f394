package omx

import (
	"time"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/alohaplay/internal/media"
)

// Format configures the output port of the component.
type Format struct {
	Codec  string
	Width  int
	Height int
}

// Output is a decoded picture copied out of an output port buffer.
type Output struct {
	Data        []byte
	Width       int
	Height      int
	Stride      int
	Timestamp   time.Duration
	EndOfStream bool
}

// FeedCallback returns a fed buffer once the component is done with it.
type FeedCallback func(buf *media.Buffer)

// ReadCallback receives a decoded picture, or nil if the read was abandoned.
type ReadCallback func(out *Output)

type feedRequest struct {
	buf  *media.Buffer
	done FeedCallback
}

// Codec owns one component and walks it through its state machine. All
// public methods post to the codec's loop, and all callbacks run there.
type Codec struct {
	loop      media.Loop
	component Component
	format    Format

	errorCallback  func(err error)
	formatCallback func(def PortDefinition)
	startCallback  func()
	stopCallback   func()
	flushCallback  func()

	state         State
	nextState     State
	stopRequested bool
	flushing      bool
	componentOpen bool
	errorReported bool
	err           error

	inputBuffers  []*PortBuffer
	freeInput     []*PortBuffer
	inFlight      map[*PortBuffer]feedRequest
	outputBuffers []*PortBuffer
	idleOutput    []*PortBuffer
	outputDef     PortDefinition

	pendingFeeds []feedRequest
	pendingReads []ReadCallback
	readyOutput  []*Output

	inputEOS  bool
	outputEOS bool
}

func NewCodec(loop media.Loop, component Component) *Codec {
	return &Codec{
		loop:      loop,
		component: component,
		state:     StateEmpty,
		nextState: StateEmpty,
		inFlight:  make(map[*PortBuffer]feedRequest),
	}
}

// Setup records the stream format. It must be called before Start.
func (c *Codec) Setup(format Format) {
	c.format = format
}

func (c *Codec) SetErrorCallback(cb func(err error)) {
	c.errorCallback = cb
}

// SetFormatCallback sets the callback run whenever the output port settings
// are (re)established, including the first time.
func (c *Codec) SetFormatCallback(cb func(def PortDefinition)) {
	c.formatCallback = cb
}

// State must only be called on the codec's loop.
func (c *Codec) State() State {
	return c.state
}

// Start brings the component up to Executing, then runs started.
func (c *Codec) Start(started func()) {
	c.loop.PostTask(func() {
		c.startCallback = started
		c.stateTransitionTask(StateLoaded)
	})
}

// Stop tears the component down, then runs done. Queued feeds and reads are
// completed with empty results.
func (c *Codec) Stop(done func()) {
	c.loop.PostTask(func() { c.stopTask(done) })
}

func (c *Codec) Read(cb ReadCallback) {
	c.loop.PostTask(func() { c.readTask(cb) })
}

func (c *Codec) Feed(buf *media.Buffer, cb FeedCallback) {
	c.loop.PostTask(func() { c.feedTask(buf, cb) })
}

// Flush returns every buffer held by the component and abandons queued work.
func (c *Codec) Flush(done func()) {
	c.loop.PostTask(func() { c.flushTask(done) })
}

// Callbacks, possibly on a component goroutine.

func (c *Codec) OnEvent(event Event, data1, data2 int) {
	c.loop.PostTask(func() { c.eventTask(event, data1, data2) })
}

func (c *Codec) OnEmptyBufferDone(buf *PortBuffer) {
	c.loop.PostTask(func() { c.emptyBufferDoneTask(buf) })
}

func (c *Codec) OnFillBufferDone(buf *PortBuffer) {
	c.loop.PostTask(func() { c.fillBufferDoneTask(buf) })
}

func (c *Codec) stateTransitionTask(next State) {
	if c.state == StateError {
		return
	}
	if next == StateError {
		c.transitionError()
		return
	}
	if c.nextState != c.state {
		log.Warn("%s: transition %v -> %v already in progress, ignoring %v", c.component.Name(), c.state, c.nextState, next)
		return
	}
	action, ok := transitions[transition{c.state, next}]
	if !ok {
		log.Warn("%s: invalid transition %v -> %v", c.component.Name(), c.state, next)
		return
	}
	c.nextState = next
	action(c)
}

func (c *Codec) doneStateTransitionTask() {
	if c.state == StateError {
		return
	}
	t := transition{c.state, c.nextState}
	if t.from == t.to {
		log.Warn("%s: unexpected transition completion in %v", c.component.Name(), c.state)
		return
	}
	c.state = t.to
	log.Debug("%s: %v -> %v", c.component.Name(), t.from, t.to)

	if c.stopRequested {
		c.continueStop()
		return
	}
	r, ok := routes[t]
	if !ok {
		return
	}
	if r.action != nil {
		r.action(c)
	}
	if r.next != stateNone && c.state != StateError {
		c.stateTransitionTask(r.next)
	}
}

func (c *Codec) fail(err error) {
	if c.err == nil {
		c.err = err
	}
	c.stateTransitionTask(StateError)
}

// Transition actions.

func (c *Codec) transitionEmptyToLoaded() {
	if err := c.component.Open(c); err != nil {
		c.fail(errors.Errorf("open %s: %w", c.component.Name(), err))
		return
	}
	c.componentOpen = true

	def, err := c.component.PortDefinition(OutputPort)
	if err != nil {
		c.fail(err)
		return
	}
	def.Width = c.format.Width
	def.Height = c.format.Height
	def.Stride = c.format.Width
	if err := c.component.SetPortDefinition(OutputPort, def); err != nil {
		c.fail(err)
		return
	}

	// Acquiring the handle is synchronous, so complete on the next task.
	c.loop.PostTask(c.doneStateTransitionTask)
}

func (c *Codec) transitionLoadedToIdle() {
	if err := c.component.SendCommand(CommandStateSet, int(ComponentIdle)); err != nil {
		c.fail(err)
		return
	}
	if err := c.allocateInputBuffers(); err != nil {
		c.fail(err)
		return
	}
	if err := c.allocateOutputBuffers(); err != nil {
		c.fail(err)
	}
}

func (c *Codec) transitionIdleToExecuting() {
	if err := c.component.SendCommand(CommandStateSet, int(ComponentExecuting)); err != nil {
		c.fail(err)
	}
}

func (c *Codec) transitionExecutingToDisable() {
	if err := c.component.SendCommand(CommandPortDisable, OutputPort); err != nil {
		c.fail(err)
	}
}

func (c *Codec) transitionDisableToEnable() {
	if err := c.component.SendCommand(CommandPortEnable, OutputPort); err != nil {
		c.fail(err)
		return
	}
	if err := c.allocateOutputBuffers(); err != nil {
		c.fail(err)
	}
}

func (c *Codec) transitionEnableToExecuting() {
	c.loop.PostTask(c.doneStateTransitionTask)
}

func (c *Codec) transitionToIdle() {
	if err := c.component.SendCommand(CommandStateSet, int(ComponentIdle)); err != nil {
		c.fail(err)
	}
}

func (c *Codec) transitionIdleToLoaded() {
	if err := c.component.SendCommand(CommandStateSet, int(ComponentLoaded)); err != nil {
		c.fail(err)
		return
	}
	c.freeInputBuffers()
	c.freeOutputBuffers()
}

func (c *Codec) transitionLoadedToEmpty() {
	if err := c.component.Close(); err != nil {
		log.Warn("%s: close: %v", c.component.Name(), err)
	}
	c.componentOpen = false
	c.loop.PostTask(c.doneStateTransitionTask)
}

func (c *Codec) transitionError() {
	from := c.state
	c.state = StateError
	c.nextState = StateError
	if c.err == nil {
		c.err = ErrComponent
	}
	log.Error("%s: error in %v: %v", c.component.Name(), from, c.err)

	if c.componentOpen {
		c.freeInputBuffers()
		c.freeOutputBuffers()
		if err := c.component.Close(); err != nil {
			log.Warn("%s: close: %v", c.component.Name(), err)
		}
		c.componentOpen = false
	}
	c.abandonRequests()

	if !c.errorReported {
		c.errorReported = true
		if c.errorCallback != nil {
			c.errorCallback(c.err)
		}
	}
	if c.stopRequested {
		c.doneStop()
	}
	if c.flushCallback != nil {
		c.doneFlush()
	}
}

// Completion actions.

func (c *Codec) initialBuffers() {
	c.reportFormat()
	c.emptyBufferTask()
	c.fillBufferTask()
	if cb := c.startCallback; cb != nil {
		c.startCallback = nil
		cb()
	}
}

func (c *Codec) outputReconfigured() {
	c.reportFormat()
	c.fillBufferTask()
}

func (c *Codec) continueStop() {
	next, ok := stopPath[c.state]
	if !ok {
		c.doneStop()
		return
	}
	c.stateTransitionTask(next)
}

func (c *Codec) doneStop() {
	c.stopRequested = false
	if cb := c.stopCallback; cb != nil {
		c.stopCallback = nil
		cb()
	}
}

func (c *Codec) stopTask(done func()) {
	if c.state == StateError || (c.state == StateEmpty && c.nextState == StateEmpty) {
		done()
		return
	}
	if c.stopRequested {
		log.Warn("%s: already stopping", c.component.Name())
		done()
		return
	}
	c.stopCallback = done
	c.stopRequested = true
	c.startCallback = nil
	c.abandonRequests()
	if c.flushCallback != nil {
		c.doneFlush()
	}
	// A transition in progress continues the stop once it completes.
	if c.state == c.nextState {
		c.continueStop()
	}
}

// abandonRequests completes queued feeds with their buffer and queued reads
// with nil.
func (c *Codec) abandonRequests() {
	feeds := c.pendingFeeds
	c.pendingFeeds = nil
	if c.state == StateError {
		for pb, feed := range c.inFlight {
			delete(c.inFlight, pb)
			feeds = append(feeds, feed)
		}
	}
	for _, feed := range feeds {
		feed.done(feed.buf)
	}

	reads := c.pendingReads
	c.pendingReads = nil
	c.readyOutput = nil
	for _, cb := range reads {
		cb(nil)
	}
}

func (c *Codec) reportFormat() {
	def, err := c.component.PortDefinition(OutputPort)
	if err != nil {
		c.fail(err)
		return
	}
	c.outputDef = def
	if c.formatCallback != nil {
		c.formatCallback(def)
	}
}

// Buffers.

func (c *Codec) allocateInputBuffers() error {
	def, err := c.component.PortDefinition(InputPort)
	if err != nil {
		return err
	}
	for i := 0; i < def.BufferCount; i++ {
		pb, err := c.component.AllocateBuffer(InputPort, def.BufferSize)
		if err != nil {
			return errors.Errorf("allocate input buffer: %w", err)
		}
		c.inputBuffers = append(c.inputBuffers, pb)
		c.freeInput = append(c.freeInput, pb)
	}
	return nil
}

func (c *Codec) allocateOutputBuffers() error {
	def, err := c.component.PortDefinition(OutputPort)
	if err != nil {
		return err
	}
	for i := 0; i < def.BufferCount; i++ {
		pb, err := c.component.AllocateBuffer(OutputPort, def.BufferSize)
		if err != nil {
			return errors.Errorf("allocate output buffer: %w", err)
		}
		c.outputBuffers = append(c.outputBuffers, pb)
		c.idleOutput = append(c.idleOutput, pb)
	}
	return nil
}

func (c *Codec) freeInputBuffers() {
	for _, pb := range c.inputBuffers {
		if err := c.component.FreeBuffer(pb); err != nil {
			log.Warn("%s: free input buffer: %v", c.component.Name(), err)
		}
	}
	c.inputBuffers = nil
	c.freeInput = nil
}

func (c *Codec) freeOutputBuffers() {
	for _, pb := range c.outputBuffers {
		if err := c.component.FreeBuffer(pb); err != nil {
			log.Warn("%s: free output buffer: %v", c.component.Name(), err)
		}
	}
	c.outputBuffers = nil
	c.idleOutput = nil
}

func (c *Codec) canEmptyBuffer() bool {
	switch c.state {
	case StateExecuting, StatePortSettingDisable, StatePortSettingEnable:
	default:
		return false
	}
	return !c.stopRequested && !c.flushing && !c.inputEOS
}

func (c *Codec) canFillBuffer() bool {
	return c.state == StateExecuting && c.nextState == StateExecuting &&
		!c.stopRequested && !c.flushing && !c.outputEOS
}

func (c *Codec) emptyBufferTask() {
	for c.canEmptyBuffer() && len(c.pendingFeeds) > 0 && len(c.freeInput) > 0 {
		feed := c.pendingFeeds[0]
		c.pendingFeeds = c.pendingFeeds[1:]
		pb := c.freeInput[0]
		c.freeInput = c.freeInput[1:]

		data := feed.buf.Data()
		if len(data) > len(pb.Data) {
			c.freeInput = append(c.freeInput, pb)
			c.fail(errors.Errorf("%d bytes into %d: %w", len(data), len(pb.Data), ErrBufferTooSmall))
			feed.done(feed.buf)
			return
		}
		pb.Filled = copy(pb.Data, data)
		pb.Timestamp = feed.buf.Timestamp()
		pb.Flags = 0
		if feed.buf.IsEndOfStream() {
			pb.Flags |= FlagEndOfStream
			c.inputEOS = true
		}
		c.inFlight[pb] = feed
		if err := c.component.EmptyThisBuffer(pb); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Codec) fillBufferTask() {
	for c.canFillBuffer() && len(c.idleOutput) > 0 {
		pb := c.idleOutput[0]
		c.idleOutput = c.idleOutput[1:]
		pb.Filled = 0
		pb.Flags = 0
		if err := c.component.FillThisBuffer(pb); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Codec) emptyBufferDoneTask(pb *PortBuffer) {
	if feed, ok := c.inFlight[pb]; ok {
		delete(c.inFlight, pb)
		feed.done(feed.buf)
	}
	if c.state == StateError || !c.ownsInput(pb) {
		return
	}
	c.freeInput = append(c.freeInput, pb)
	c.emptyBufferTask()
}

func (c *Codec) fillBufferDoneTask(pb *PortBuffer) {
	if c.state == StateError || !c.ownsOutput(pb) {
		return
	}
	deliver := !c.stopRequested && !c.flushing && (pb.Filled > 0 || pb.EndOfStream())
	if deliver {
		out := &Output{
			Data:        append([]byte(nil), pb.Data[:pb.Filled]...),
			Width:       c.outputDef.Width,
			Height:      c.outputDef.Height,
			Stride:      c.outputDef.Stride,
			Timestamp:   pb.Timestamp,
			EndOfStream: pb.EndOfStream(),
		}
		if out.EndOfStream {
			c.outputEOS = true
		}
		c.readyOutput = append(c.readyOutput, out)
	}
	c.idleOutput = append(c.idleOutput, pb)
	c.fulfillReads()
	c.fillBufferTask()
}

func (c *Codec) ownsInput(pb *PortBuffer) bool {
	for _, b := range c.inputBuffers {
		if b == pb {
			return true
		}
	}
	return false
}

func (c *Codec) ownsOutput(pb *PortBuffer) bool {
	for _, b := range c.outputBuffers {
		if b == pb {
			return true
		}
	}
	return false
}

func (c *Codec) fulfillReads() {
	for len(c.pendingReads) > 0 {
		var out *Output
		switch {
		case len(c.readyOutput) > 0:
			out = c.readyOutput[0]
			c.readyOutput = c.readyOutput[1:]
		case c.outputEOS:
			out = &Output{Timestamp: media.NoTimestamp, EndOfStream: true}
		default:
			return
		}
		cb := c.pendingReads[0]
		c.pendingReads = c.pendingReads[1:]
		cb(out)
	}
}

func (c *Codec) readTask(cb ReadCallback) {
	if c.state == StateError || c.stopRequested {
		cb(nil)
		return
	}
	c.pendingReads = append(c.pendingReads, cb)
	c.fulfillReads()
}

func (c *Codec) feedTask(buf *media.Buffer, cb FeedCallback) {
	if c.state == StateError || c.stopRequested {
		cb(buf)
		return
	}
	c.pendingFeeds = append(c.pendingFeeds, feedRequest{buf, cb})
	c.emptyBufferTask()
}

// Flush.

func (c *Codec) flushTask(done func()) {
	if c.state == StateError || c.stopRequested || c.flushCallback != nil {
		done()
		return
	}
	c.abandonRequests()
	if c.state != StateExecuting || c.nextState != StateExecuting {
		c.inputEOS = false
		c.outputEOS = false
		done()
		return
	}
	c.flushing = true
	c.flushCallback = done
	if err := c.component.SendCommand(CommandFlush, AllPorts); err != nil {
		c.fail(err)
	}
}

func (c *Codec) doneFlush() {
	c.flushing = false
	c.inputEOS = false
	c.outputEOS = false
	c.readyOutput = nil
	cb := c.flushCallback
	c.flushCallback = nil
	c.emptyBufferTask()
	c.fillBufferTask()
	cb()
}

func (c *Codec) eventTask(event Event, data1, data2 int) {
	if c.state == StateError {
		return
	}
	switch event {
	case EventCmdComplete:
		switch Command(data1) {
		case CommandFlush:
			if c.flushCallback != nil {
				c.doneFlush()
			}
		default:
			c.doneStateTransitionTask()
		}
	case EventError:
		c.fail(errors.Errorf("code %#x: %w", data1, ErrComponent))
	case EventPortSettingsChanged:
		if data1 != OutputPort || c.stopRequested {
			return
		}
		log.Info("%s: output port settings changed", c.component.Name())
		c.stateTransitionTask(StatePortSettingDisable)
	case EventBufferFlag:
		log.Debug("%s: buffer flag %#x on port %d", c.component.Name(), data2, data1)
	}
}
