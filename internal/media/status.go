package media

import (
	"strconv"
	"sync"
	"time"
)

// PipelineStatus is the closed set of pipeline-level outcomes. A non-OK status
// is set once on the Host and never cleared.
type PipelineStatus int

const (
	PipelineOK PipelineStatus = iota
	PipelineErrorURLNotFound
	PipelineErrorNetwork
	PipelineErrorDecode
	PipelineErrorAbort
	PipelineErrorInitializationFailed
	PipelineErrorRequiredFilterMissing
	PipelineErrorOutOfMemory
	PipelineErrorCouldNotRender
	PipelineErrorRead
	PipelineErrorInvalidState

	DemuxerErrorCouldNotOpen
	DemuxerErrorCouldNotParse
	DemuxerErrorNoSupportedStreams
)

var statusNames = map[PipelineStatus]string{
	PipelineOK:                         "ok",
	PipelineErrorURLNotFound:           "url not found",
	PipelineErrorNetwork:               "network error",
	PipelineErrorDecode:                "decode error",
	PipelineErrorAbort:                 "aborted",
	PipelineErrorInitializationFailed:  "initialization failed",
	PipelineErrorRequiredFilterMissing: "required filter missing",
	PipelineErrorOutOfMemory:           "out of memory",
	PipelineErrorCouldNotRender:        "could not render",
	PipelineErrorRead:                  "read error",
	PipelineErrorInvalidState:          "invalid state",
	DemuxerErrorCouldNotOpen:           "demuxer could not open",
	DemuxerErrorCouldNotParse:          "demuxer could not parse",
	DemuxerErrorNoSupportedStreams:     "no supported streams",
}

func (s PipelineStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status " + strconv.Itoa(int(s))
}

// Error makes a PipelineStatus usable as an error value.
func (s PipelineStatus) Error() string {
	return "pipeline: " + s.String()
}

// Host is the pipeline object the stages report to.
type Host interface {
	// SetError records the first error; later calls are ignored.
	SetError(status PipelineStatus)
	Error() PipelineStatus

	SetDuration(d time.Duration)
	SetVideoSize(width, height int)

	// Time is the current media time.
	Time() time.Duration

	// NotifyEnded is called by the renderer once playback reached the end.
	NotifyEnded()
}

// SimpleHost is a Host backed by a Clock. Notify, when set, runs after every
// change, outside the lock.
type SimpleHost struct {
	Clock  *Clock
	Notify func()

	mu       sync.Mutex
	status   PipelineStatus
	duration time.Duration
	width    int
	height   int
	ended    bool
}

func NewSimpleHost(clock *Clock) *SimpleHost {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &SimpleHost{Clock: clock}
}

func (h *SimpleHost) SetError(status PipelineStatus) {
	h.mu.Lock()
	if h.status != PipelineOK || status == PipelineOK {
		h.mu.Unlock()
		return
	}
	h.status = status
	h.mu.Unlock()

	log.Error("Pipeline error: %v", status)
	h.notify()
}

func (h *SimpleHost) Error() PipelineStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *SimpleHost) SetDuration(d time.Duration) {
	h.mu.Lock()
	h.duration = d
	h.mu.Unlock()
	h.notify()
}

func (h *SimpleHost) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.duration
}

func (h *SimpleHost) SetVideoSize(width, height int) {
	h.mu.Lock()
	h.width, h.height = width, height
	h.mu.Unlock()
	h.notify()
}

func (h *SimpleHost) VideoSize() (width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

func (h *SimpleHost) Time() time.Duration {
	return h.Clock.Elapsed()
}

func (h *SimpleHost) NotifyEnded() {
	h.mu.Lock()
	already := h.ended
	h.ended = true
	h.mu.Unlock()
	if !already {
		h.notify()
	}
}

func (h *SimpleHost) Ended() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ended
}

// ResetEnded clears the ended flag, e.g. after seeking back from the end.
func (h *SimpleHost) ResetEnded() {
	h.mu.Lock()
	h.ended = false
	h.mu.Unlock()
}

func (h *SimpleHost) notify() {
	if h.Notify != nil {
		h.Notify()
	}
}
