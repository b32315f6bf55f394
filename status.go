package alohaplay

import (
	"time"

	"github.com/lanikai/alohaplay/internal/media"
)

type State int

const (
	StateIdle State = iota
	StateOpening
	StatePaused
	StatePlaying
	StateSeeking
	StateEnded
	StateError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOpening:
		return "Opening"
	case StatePaused:
		return "Paused"
	case StatePlaying:
		return "Playing"
	case StateSeeking:
		return "Seeking"
	case StateEnded:
		return "Ended"
	case StateError:
		return "Error"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// NetworkState summarizes how far loading got, and why it failed.
type NetworkState int

const (
	NetworkEmpty NetworkState = iota
	NetworkLoading
	NetworkLoaded
	NetworkFormatError
	NetworkNetworkError
	NetworkDecodeError
)

func (n NetworkState) String() string {
	switch n {
	case NetworkEmpty:
		return "Empty"
	case NetworkLoading:
		return "Loading"
	case NetworkLoaded:
		return "Loaded"
	case NetworkFormatError:
		return "FormatError"
	case NetworkNetworkError:
		return "NetworkError"
	case NetworkDecodeError:
		return "DecodeError"
	default:
		return "Unknown"
	}
}

// networkError maps a pipeline error to the network state it leaves the
// player in.
func networkError(status media.PipelineStatus) NetworkState {
	switch status {
	case media.PipelineOK:
		return NetworkLoaded
	case media.PipelineErrorURLNotFound, media.PipelineErrorNetwork, media.PipelineErrorRead:
		return NetworkNetworkError
	case media.DemuxerErrorCouldNotOpen, media.DemuxerErrorCouldNotParse,
		media.DemuxerErrorNoSupportedStreams, media.PipelineErrorRequiredFilterMissing:
		return NetworkFormatError
	default:
		return NetworkDecodeError
	}
}

// Status is a snapshot of the player.
type Status struct {
	ID       string
	URL      string
	State    State
	Network  NetworkState
	Error    media.PipelineStatus
	Position time.Duration
	Duration time.Duration
	Width    int
	Height   int
	Rate     float64
	Ended    bool
}

// A Listener is called after every status change, from whichever goroutine
// made it.
type Listener func(status Status)
