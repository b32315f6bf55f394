package omx

import (
	"time"
)

// Port indices of a decoder component.
const (
	InputPort  = 0
	OutputPort = 1

	// AllPorts addresses every port, e.g. in CommandFlush.
	AllPorts = -1
)

// Command is a component command, as sent by SendCommand.
type Command int

const (
	CommandStateSet Command = iota
	CommandFlush
	CommandPortDisable
	CommandPortEnable
)

func (c Command) String() string {
	switch c {
	case CommandStateSet:
		return "StateSet"
	case CommandFlush:
		return "Flush"
	case CommandPortDisable:
		return "PortDisable"
	case CommandPortEnable:
		return "PortEnable"
	default:
		return "Unknown"
	}
}

// ComponentState is the state of the component itself, as opposed to the
// codec's State.
type ComponentState int

const (
	ComponentLoaded ComponentState = iota
	ComponentIdle
	ComponentExecuting
	ComponentInvalid
)

func (s ComponentState) String() string {
	switch s {
	case ComponentLoaded:
		return "Loaded"
	case ComponentIdle:
		return "Idle"
	case ComponentExecuting:
		return "Executing"
	default:
		return "Invalid"
	}
}

// Event is an asynchronous notification from a component.
type Event int

const (
	// EventCmdComplete: data1 is the Command, data2 its parameter.
	EventCmdComplete Event = iota
	// EventError: data1 is a component-specific error code.
	EventError
	// EventPortSettingsChanged: data1 is the port.
	EventPortSettingsChanged
	// EventBufferFlag: data1 is the port, data2 the flags seen.
	EventBufferFlag
)

// Buffer flags.
const (
	FlagEndOfStream = 1 << iota
)

// A PortBuffer is a buffer allocated on a component port. It is owned by the
// component between EmptyThisBuffer/FillThisBuffer and the matching done
// callback.
type PortBuffer struct {
	Port      int
	Data      []byte
	Filled    int
	Flags     uint32
	Timestamp time.Duration
}

func (b *PortBuffer) EndOfStream() bool {
	return b.Flags&FlagEndOfStream != 0
}

// PortDefinition describes a port's buffer requirements and, for the output
// port of a video decoder, the picture geometry.
type PortDefinition struct {
	BufferCount int
	BufferSize  int
	Enabled     bool

	Width  int
	Height int
	Stride int
}

// Callbacks are implemented by the client of a component. Components may
// call them from any goroutine.
type Callbacks interface {
	OnEvent(event Event, data1, data2 int)
	OnEmptyBufferDone(buf *PortBuffer)
	OnFillBufferDone(buf *PortBuffer)
}

// A Component is an OpenMAX IL style decoder. Commands complete
// asynchronously, with EventCmdComplete.
type Component interface {
	// Name identifies the component, e.g. for logging.
	Name() string

	// Open acquires the component handle. The component starts out Loaded.
	Open(callbacks Callbacks) error

	// Close releases the handle. The component must be Loaded.
	Close() error

	SendCommand(cmd Command, param int) error

	PortDefinition(port int) (PortDefinition, error)
	SetPortDefinition(port int, def PortDefinition) error

	AllocateBuffer(port int, size int) (*PortBuffer, error)
	FreeBuffer(buf *PortBuffer) error

	EmptyThisBuffer(buf *PortBuffer) error
	FillThisBuffer(buf *PortBuffer) error
}
