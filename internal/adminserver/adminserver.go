// Package adminserver is the ops-facing echo surface from spec.md §1/§2:
// health, Prometheus metrics, and a best-effort WebSocket stream of job
// lifecycle events. It is adapted from the teacher's echo wiring in
// main.go/routes.go and never touches the four core subsystems directly;
// pipelines reach it only through Broadcast, called from the scheduled job
// closures in main.
package adminserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Event is one job-lifecycle notification broadcast to every connected
// /events subscriber.
type Event struct {
	Job       string    `json:"job"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Server is the admin HTTP surface. It is not part of the scored core;
// losing a connected /events subscriber or failing a broadcast never
// aborts a pipeline run.
type Server struct {
	echo     *echo.Echo
	registry *prometheus.Registry
	log      zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New builds a Server backed by registry (typically metrics.Registry()).
func New(registry *prometheus.Registry, log zerolog.Logger) *Server {
	s := &Server{
		echo:     echo.New(),
		registry: registry,
		log:      log,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		clients:  make(map[*websocket.Conn]struct{}),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Logger())
	s.echo.Use(middleware.Recover())

	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/metrics", s.handleMetrics)
	s.echo.GET("/events", s.handleEvents)

	return s
}

// Start begins serving on addr in the background; it does not block. Any
// failure other than http.ErrServerClosed is logged, never fatal, since
// this server is purely operational.
func (s *Server) Start(addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Str("addr", addr).Msg("admin server stopped unexpectedly")
		}
	}()
}

// Shutdown gracefully stops the HTTP server and drops any open /events
// connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
		delete(s.clients, conn)
	}
	s.mu.Unlock()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(c echo.Context) error {
	promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleEvents(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	s.log.Debug().Str("remote", c.Request().RemoteAddr).Msg("admin: /events subscriber connected")

	// Subscribers never send anything meaningful; read only to detect
	// close/error and to keep the connection's read deadline serviced.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return nil
}

// Broadcast pushes event to every connected /events subscriber. A failed
// write drops that subscriber; Broadcast itself never returns an error,
// since a lost admin-stream viewer must never interrupt a pipeline run.
func (s *Server) Broadcast(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		if err := conn.WriteJSON(event); err != nil {
			s.log.Debug().Err(err).Msg("admin: /events write failed, dropping subscriber")
			_ = conn.Close()
			delete(s.clients, conn)
		}
	}
}
