package monitor

import (
	"sync"
	"time"
)

// Snapshot is the externally visible state of a player.
type Snapshot struct {
	ID       string        `json:"id"`
	URL      string        `json:"url"`
	State    string        `json:"state"`
	Error    string        `json:"error,omitempty"`
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Rate     float64       `json:"rate"`
	Ended    bool          `json:"ended"`
}

// Hub fans snapshots out to subscribers. A subscriber that falls behind
// loses its oldest snapshot, never the newest.
type Hub struct {
	latest      Snapshot
	subscribers []chan Snapshot
	closed      bool

	sync.Mutex
}

func NewHub() *Hub {
	return &Hub{}
}

// Subscribe returns a channel receiving every snapshot published from now
// on. The channel is closed by Unsubscribe or Close.
func (h *Hub) Subscribe(capacity int) <-chan Snapshot {
	h.Lock()
	defer h.Unlock()

	if capacity == 0 {
		panic("monitor.Hub: subscriber capacity must be nonzero")
	}

	s := make(chan Snapshot, capacity)
	if h.closed {
		close(s)
		return s
	}
	h.subscribers = append(h.subscribers, s)
	return s
}

func (h *Hub) Unsubscribe(s <-chan Snapshot) {
	h.Lock()
	defer h.Unlock()

	for i, subscriber := range h.subscribers {
		if s == subscriber {
			subs := h.subscribers
			close(subs[i])
			subs[len(subs)-1], subs[i] = subs[i], subs[len(subs)-1]
			h.subscribers = subs[:len(subs)-1]
			break
		}
	}
}

// Publish records snap as the latest snapshot and sends it to subscribers.
func (h *Hub) Publish(snap Snapshot) {
	h.Lock()
	defer h.Unlock()

	if h.closed {
		return
	}
	h.latest = snap
	for _, subscriber := range h.subscribers {
		select {
		case subscriber <- snap:
		default:
			// Drop oldest, add newest
			select {
			case <-subscriber:
			default:
			}
			subscriber <- snap
			log.Debug("Subscriber missed a snapshot")
		}
	}
}

// Latest returns the most recently published snapshot.
func (h *Hub) Latest() Snapshot {
	h.Lock()
	defer h.Unlock()
	return h.latest
}

func (h *Hub) Close() error {
	h.Lock()
	defer h.Unlock()

	h.closed = true
	for _, subscriber := range h.subscribers {
		close(subscriber)
	}
	h.subscribers = nil
	return nil
}
