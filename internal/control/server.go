// Package control exposes a running voice controller over HTTP: a small
// JSON API, a websocket event stream, an MCP endpoint and Prometheus
// metrics.
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sales-voice-lab/internal/chat"
	"github.com/sales-voice-lab/internal/logging"
	"github.com/sales-voice-lab/internal/voice"
)

// Voice is the part of voice.Controller the control surface drives.
type Voice interface {
	Start(ctx context.Context) error
	Stop(reason string)
	Toggle(ctx context.Context) error
	Status() voice.Status
	Transcript() voice.Snapshot
	SessionID() string
	AddObserver(voice.Observer)
}

// MessageLog is the conversation log read by the API and event stream.
type MessageLog interface {
	Messages() []chat.Message
	Subscribe(buffer int) (<-chan chat.Message, func())
}

// Options configures NewServer.
type Options struct {
	Addr  string
	Voice Voice
	Log   MessageLog
	// Persona is reported by the status endpoint.
	Persona string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server is the control HTTP server.
type Server struct {
	opts Options
	echo *echo.Echo
	hub  *Hub
	mcp  *sdk.Server
}

// StatusResponse is returned by the status and session endpoints.
type StatusResponse struct {
	Status     voice.Status   `json:"status"`
	SessionID  string         `json:"session_id,omitempty"`
	Persona    string         `json:"persona,omitempty"`
	Transcript voice.Snapshot `json:"transcript"`
	Error      string         `json:"error,omitempty"`
}

func NewServer(opts Options) *Server {
	s := &Server{opts: opts, hub: NewHub()}
	s.mcp = NewMCPServer(opts.Voice, opts.Log)
	opts.Voice.AddObserver(s.hub)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logging.Debugw("control request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/healthz", s.Health)
	api := e.Group("/api")
	api.GET("/status", s.GetStatus)
	api.GET("/messages", s.ListMessages)
	api.GET("/transcript", s.GetTranscript)
	api.POST("/session/start", s.StartSession)
	api.POST("/session/stop", s.StopSession)
	api.POST("/session/toggle", s.ToggleSession)
	api.GET("/events", s.Events)
	e.GET("/mcp/ws", s.MCP)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	s.echo = e
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is done, then shuts down within ten seconds.
func (s *Server) Run(ctx context.Context) error {
	stop := s.hub.Pump(s.opts.Log)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Infow("control server listening", "addr", s.opts.Addr)
		if err := s.echo.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.Close()
		return s.echo.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) status(errText string) StatusResponse {
	return StatusResponse{
		Status:     s.opts.Voice.Status(),
		SessionID:  s.opts.Voice.SessionID(),
		Persona:    s.opts.Persona,
		Transcript: s.opts.Voice.Transcript(),
		Error:      errText,
	}
}

// Health reports liveness.
// GET /healthz
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus reports the session state.
// GET /api/status
func (s *Server) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.status(""))
}

// ListMessages returns the conversation log.
// GET /api/messages
func (s *Server) ListMessages(c echo.Context) error {
	msgs := s.opts.Log.Messages()
	return c.JSON(http.StatusOK, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	})
}

// GetTranscript returns the caption of the turn in progress.
// GET /api/transcript
func (s *Server) GetTranscript(c echo.Context) error {
	return c.JSON(http.StatusOK, s.opts.Voice.Transcript())
}

// StartSession opens a session and returns once it is active or failed.
// POST /api/session/start
func (s *Server) StartSession(c echo.Context) error {
	// the session outlives the request
	ctx := context.WithoutCancel(c.Request().Context())
	if err := s.opts.Voice.Start(ctx); err != nil {
		return c.JSON(statusCode(err), s.status(err.Error()))
	}
	return c.JSON(http.StatusOK, s.status(""))
}

// StopSession ends the session.
// POST /api/session/stop
func (s *Server) StopSession(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}
	s.opts.Voice.Stop(req.Reason)
	return c.JSON(http.StatusOK, s.status(""))
}

// ToggleSession flips the session like the microphone button.
// POST /api/session/toggle
func (s *Server) ToggleSession(c echo.Context) error {
	ctx := context.WithoutCancel(c.Request().Context())
	if err := s.opts.Voice.Toggle(ctx); err != nil {
		return c.JSON(statusCode(err), s.status(err.Error()))
	}
	return c.JSON(http.StatusOK, s.status(""))
}

func statusCode(err error) int {
	if errors.Is(err, voice.ErrStopped) {
		return http.StatusConflict
	}
	return http.StatusBadGateway
}
