// Package monitor publishes player status over HTTP: a JSON snapshot at
// /status and a websocket stream of snapshots at /events.
package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/lanikai/alohaplay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("monitor")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	eventsCapacity = 16
	writeTimeout   = 5 * time.Second
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Server serves a Hub's snapshots.
type Server struct {
	hub      *Hub
	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader
}

func NewServer(addr string, hub *Hub) *Server {
	s := &Server{
		hub:    hub,
		router: gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/events", s.handleEvents)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s
}

// Handler returns the server's routes, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Listen() error {
	log.Info("Serving status on http://%s/status", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleStatus(c *gin.Context) {
	data, err := json.Marshal(s.hub.Latest())
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) handleEvents(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("upgrade: %v", err)
		return
	}
	defer ws.Close()

	events := s.hub.Subscribe(eventsCapacity)
	defer s.hub.Unsubscribe(events)

	// The client sends nothing; reading detects when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := s.send(ws, s.hub.Latest()); err != nil {
		return
	}
	for {
		select {
		case <-gone:
			return
		case snap, ok := <-events:
			if !ok {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout))
				return
			}
			if err := s.send(ws, snap); err != nil {
				log.Debug("Events client: %v", err)
				return
			}
		}
	}
}

func (s *Server) send(ws *websocket.Conn, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}
