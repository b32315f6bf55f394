package omx

import (
	"sync"
	"time"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/alohaplay/internal/media"
)

const (
	loopbackName        = "OMX.alohaplay.loopback"
	loopbackBufferCount = 2
	loopbackInputSize   = 64 * 1024
)

var (
	errNotOpen      = errors.New("omx: component not open")
	errBadState     = errors.New("omx: command invalid in component state")
	errUnknownPort  = errors.New("omx: no such port")
	errPortDisabled = errors.New("omx: port disabled")
)

type loopbackFrame struct {
	data      []byte
	timestamp time.Duration
	eos       bool
}

// LoopbackComponent is a software component whose output pictures are its
// input buffers, copied. An input larger than the output buffers triggers an
// output port reconfiguration. Callbacks are delivered through loop.
type LoopbackComponent struct {
	loop media.Loop

	sync.Mutex
	callbacks     Callbacks
	open          bool
	state         ComponentState
	ports         [2]PortDefinition
	allocated     map[*PortBuffer]bool
	held          []*PortBuffer
	queue         []loopbackFrame
	reconfiguring bool
}

func NewLoopbackComponent(loop media.Loop) *LoopbackComponent {
	return &LoopbackComponent{
		loop:      loop,
		allocated: make(map[*PortBuffer]bool),
	}
}

func (l *LoopbackComponent) Name() string {
	return loopbackName
}

func (l *LoopbackComponent) Open(callbacks Callbacks) error {
	l.Lock()
	defer l.Unlock()

	if l.open {
		return errBadState
	}
	l.open = true
	l.callbacks = callbacks
	l.state = ComponentLoaded
	l.ports[InputPort] = PortDefinition{
		BufferCount: loopbackBufferCount,
		BufferSize:  loopbackInputSize,
		Enabled:     true,
	}
	l.ports[OutputPort] = PortDefinition{
		BufferCount: loopbackBufferCount,
		Enabled:     true,
	}
	return nil
}

func (l *LoopbackComponent) Close() error {
	l.Lock()
	defer l.Unlock()

	if !l.open {
		return errNotOpen
	}
	l.open = false
	l.state = ComponentLoaded
	l.callbacks = nil
	l.queue = nil
	l.held = nil
	return nil
}

// Fail raises an asynchronous component error.
func (l *LoopbackComponent) Fail(code int) {
	l.Lock()
	defer l.Unlock()
	l.event(EventError, code, 0)
}

func (l *LoopbackComponent) SendCommand(cmd Command, param int) error {
	l.Lock()
	defer l.Unlock()

	if !l.open {
		return errNotOpen
	}
	switch cmd {
	case CommandStateSet:
		next := ComponentState(param)
		switch {
		case l.state == ComponentLoaded && next == ComponentIdle:
		case l.state == ComponentIdle && next == ComponentExecuting:
		case l.state == ComponentExecuting && next == ComponentIdle:
			l.returnHeld()
			l.queue = nil
		case l.state == ComponentIdle && next == ComponentLoaded:
		default:
			return errors.Errorf("%v -> %v: %w", l.state, next, errBadState)
		}
		l.state = next
		l.event(EventCmdComplete, int(cmd), param)
		l.process()

	case CommandFlush:
		l.returnHeld()
		l.queue = nil
		l.event(EventCmdComplete, int(cmd), param)

	case CommandPortDisable, CommandPortEnable:
		if param != OutputPort {
			return errUnknownPort
		}
		enable := cmd == CommandPortEnable
		l.ports[OutputPort].Enabled = enable
		if enable {
			l.reconfiguring = false
		} else {
			l.returnHeld()
		}
		l.event(EventCmdComplete, int(cmd), param)
		l.process()

	default:
		return errors.Errorf("command %v: %w", cmd, errBadState)
	}
	return nil
}

func (l *LoopbackComponent) PortDefinition(port int) (PortDefinition, error) {
	l.Lock()
	defer l.Unlock()

	if port != InputPort && port != OutputPort {
		return PortDefinition{}, errUnknownPort
	}
	return l.ports[port], nil
}

// SetPortDefinition accepts the output picture geometry and sizes the output
// buffers for an I420 picture.
func (l *LoopbackComponent) SetPortDefinition(port int, def PortDefinition) error {
	l.Lock()
	defer l.Unlock()

	if port != InputPort && port != OutputPort {
		return errUnknownPort
	}
	if def.BufferCount < 1 {
		def.BufferCount = 1
	}
	if port == OutputPort {
		def.BufferSize = pictureSize(def.Stride, def.Height)
	}
	l.ports[port] = def
	return nil
}

func (l *LoopbackComponent) AllocateBuffer(port int, size int) (*PortBuffer, error) {
	l.Lock()
	defer l.Unlock()

	if port != InputPort && port != OutputPort {
		return nil, errUnknownPort
	}
	if !l.ports[port].Enabled {
		return nil, errPortDisabled
	}
	buf := &PortBuffer{Port: port, Data: make([]byte, size)}
	l.allocated[buf] = true
	return buf, nil
}

func (l *LoopbackComponent) FreeBuffer(buf *PortBuffer) error {
	l.Lock()
	defer l.Unlock()

	if !l.allocated[buf] {
		return errors.Errorf("free: %w", errUnknownPort)
	}
	delete(l.allocated, buf)
	for i, b := range l.held {
		if b == buf {
			l.held = append(l.held[:i], l.held[i+1:]...)
			break
		}
	}
	return nil
}

// Allocated returns the number of buffers not yet freed.
func (l *LoopbackComponent) Allocated() int {
	l.Lock()
	defer l.Unlock()
	return len(l.allocated)
}

func (l *LoopbackComponent) EmptyThisBuffer(buf *PortBuffer) error {
	l.Lock()
	defer l.Unlock()

	if l.state != ComponentExecuting {
		return errBadState
	}
	l.queue = append(l.queue, loopbackFrame{
		data:      append([]byte(nil), buf.Data[:buf.Filled]...),
		timestamp: buf.Timestamp,
		eos:       buf.EndOfStream(),
	})
	if l.callbacks != nil {
		cb := l.callbacks
		l.loop.PostTask(func() { cb.OnEmptyBufferDone(buf) })
	}
	l.process()
	return nil
}

func (l *LoopbackComponent) FillThisBuffer(buf *PortBuffer) error {
	l.Lock()
	defer l.Unlock()

	if l.state != ComponentExecuting {
		return errBadState
	}
	if !l.ports[OutputPort].Enabled {
		return errPortDisabled
	}
	l.held = append(l.held, buf)
	l.process()
	return nil
}

// process moves queued frames into held output buffers. Called with the lock
// held.
func (l *LoopbackComponent) process() {
	out := &l.ports[OutputPort]
	for l.state == ComponentExecuting && out.Enabled && !l.reconfiguring &&
		len(l.queue) > 0 && len(l.held) > 0 {
		frame := l.queue[0]
		if len(frame.data) > len(l.held[0].Data) {
			l.reconfiguring = true
			if out.Stride > 0 {
				out.Height = (len(frame.data)*2/3 + out.Stride - 1) / out.Stride
			}
			out.BufferSize = len(frame.data)
			l.event(EventPortSettingsChanged, OutputPort, 0)
			return
		}
		l.queue = l.queue[1:]
		buf := l.held[0]
		l.held = l.held[1:]

		buf.Filled = copy(buf.Data, frame.data)
		buf.Timestamp = frame.timestamp
		buf.Flags = 0
		if frame.eos {
			buf.Flags |= FlagEndOfStream
			l.event(EventBufferFlag, OutputPort, FlagEndOfStream)
		}
		l.fillDone(buf)
	}
}

func (l *LoopbackComponent) returnHeld() {
	for _, buf := range l.held {
		buf.Filled = 0
		buf.Flags = 0
		l.fillDone(buf)
	}
	l.held = nil
}

func (l *LoopbackComponent) fillDone(buf *PortBuffer) {
	if cb := l.callbacks; cb != nil {
		l.loop.PostTask(func() { cb.OnFillBufferDone(buf) })
	}
}

func (l *LoopbackComponent) event(event Event, data1, data2 int) {
	if cb := l.callbacks; cb != nil {
		l.loop.PostTask(func() { cb.OnEvent(event, data1, data2) })
	}
}

func pictureSize(stride, height int) int {
	return stride*height + 2*((stride+1)/2)*((height+1)/2)
}
