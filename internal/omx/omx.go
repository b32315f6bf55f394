// Package omx drives OpenMAX IL style decoder components through their state
// machine: acquiring the handle, allocating port buffers, executing, output
// port reconfiguration, and teardown.
package omx

import (
	errors "golang.org/x/xerrors"

	"github.com/lanikai/alohaplay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("omx")

var (
	ErrComponent      = errors.New("omx: component error")
	ErrBufferTooSmall = errors.New("omx: input larger than port buffer")
)

// State is the codec's view of its component.
type State int

const (
	StateEmpty State = iota // No component handle.
	StateLoaded
	StateIdle
	StateExecuting
	StatePortSettingEnable
	StatePortSettingDisable
	StateError

	stateNone State = -1
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateLoaded:
		return "Loaded"
	case StateIdle:
		return "Idle"
	case StateExecuting:
		return "Executing"
	case StatePortSettingEnable:
		return "PortSettingEnable"
	case StatePortSettingDisable:
		return "PortSettingDisable"
	case StateError:
		return "Error"
	default:
		return "None"
	}
}

type transition struct {
	from, to State
}

// transitions holds the allowed state changes and the action that requests
// each one. Every state may also go to StateError. Anything else is rejected.
var transitions map[transition]func(*Codec)

// A route says what happens once a transition completes: an optional action,
// then an optional next transition.
type route struct {
	action func(*Codec)
	next   State
}

// routes continue start-up and output port reconfiguration. Stopping
// follows stopPath instead.
var routes map[transition]route

// stopPath is the next state on the way down to StateEmpty.
var stopPath = map[State]State{
	StateExecuting:          StateIdle,
	StatePortSettingDisable: StateIdle,
	StatePortSettingEnable:  StateIdle,
	StateIdle:               StateLoaded,
	StateLoaded:             StateEmpty,
}

func init() {
	transitions = map[transition]func(*Codec){
		{StateEmpty, StateLoaded}:                         (*Codec).transitionEmptyToLoaded,
		{StateLoaded, StateIdle}:                          (*Codec).transitionLoadedToIdle,
		{StateIdle, StateExecuting}:                       (*Codec).transitionIdleToExecuting,
		{StateExecuting, StatePortSettingDisable}:         (*Codec).transitionExecutingToDisable,
		{StateExecuting, StateIdle}:                       (*Codec).transitionToIdle,
		{StatePortSettingDisable, StatePortSettingEnable}: (*Codec).transitionDisableToEnable,
		{StatePortSettingDisable, StateIdle}:              (*Codec).transitionToIdle,
		{StatePortSettingEnable, StateExecuting}:          (*Codec).transitionEnableToExecuting,
		{StatePortSettingEnable, StateIdle}:               (*Codec).transitionToIdle,
		{StateIdle, StateLoaded}:                          (*Codec).transitionIdleToLoaded,
		{StateLoaded, StateEmpty}:                         (*Codec).transitionLoadedToEmpty,
	}

	routes = map[transition]route{
		{StateEmpty, StateLoaded}:                         {next: StateIdle},
		{StateLoaded, StateIdle}:                          {next: StateExecuting},
		{StateIdle, StateExecuting}:                       {action: (*Codec).initialBuffers, next: stateNone},
		{StateExecuting, StatePortSettingDisable}:         {action: (*Codec).freeOutputBuffers, next: StatePortSettingEnable},
		{StatePortSettingDisable, StatePortSettingEnable}: {next: StateExecuting},
		{StatePortSettingEnable, StateExecuting}:          {action: (*Codec).outputReconfigured, next: stateNone},
		{StateLoaded, StateEmpty}:                         {action: (*Codec).doneStop, next: stateNone},
	}
}
