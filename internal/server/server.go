// Package server exposes live score-hiding page sessions over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cybergodev/scorehider"
	"github.com/cybergodev/scorehider/internal"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// MaxSessions bounds live sessions; the least recently used is closed
	// to make room.
	MaxSessions int
	// IdleTTL closes sessions nobody touched for this long.
	IdleTTL time.Duration
	// BodyLimit caps request bodies, in echo's size notation ("64M").
	BodyLimit string
}

// Options wires the server to its collaborators.
type Options struct {
	Processor *scorehider.Processor
	Logger    *zap.Logger
	// Registry backs /metrics. Nil uses a fresh registry.
	Registry *prometheus.Registry
	Metrics  *scorehider.Metrics
	// Settings apply to new sessions that bring none of their own.
	Settings *scorehider.Settings
	// Sink renders reactions. Nil logs them.
	Sink scorehider.EffectSink
}

type pageSession struct {
	id      string
	sched   *scorehider.Scheduler
	cancel  context.CancelFunc
	created time.Time
}

// Server serves page sessions.
type Server struct {
	echo      *echo.Echo
	processor *scorehider.Processor
	sessions  *internal.Cache
	metrics   *scorehider.Metrics
	sink      scorehider.EffectSink
	logger    *zap.Logger
	config    *Config

	mu       sync.RWMutex
	settings *scorehider.Settings

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a new HTTP server.
func NewServer(opts Options, cfg *Config) (*Server, error) {
	if opts.Processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8484
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 256
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "64M"
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Sink == nil {
		opts.Sink = scorehider.NewLogSink(opts.Logger.Named("effects"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		processor: opts.Processor,
		metrics:   opts.Metrics,
		sink:      opts.Sink,
		logger:    opts.Logger,
		config:    cfg,
		settings:  opts.Settings,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.sessions = internal.NewCache(cfg.MaxSessions, cfg.IdleTTL, s.evicted)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			s.logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	s.echo = e

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	s.registerRoutes()

	if cfg.IdleTTL > 0 {
		s.wg.Add(1)
		go s.sweep(cfg.IdleTTL / 2)
	}
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops the listener and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	err := s.echo.Shutdown(ctx)
	s.Close()
	return err
}

// Close closes every session and stops background work.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
	s.sessions.Clear()
}

func (s *Server) sweep(every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Sweep(); n > 0 {
				s.logger.Debug("idle sessions closed", zap.Int("count", n))
			}
		}
	}
}

// evicted stops the loop of a session leaving the registry.
func (s *Server) evicted(id string, value any) {
	ps, ok := value.(*pageSession)
	if !ok {
		return
	}
	ps.cancel()
	<-ps.sched.Done()
	ps.sched.Session().Close()
	s.metrics.SessionClosed()
	s.logger.Info("session closed",
		zap.String("session_id", id),
		zap.Duration("age", time.Since(ps.created)))
}

// Settings returns the settings applied to new sessions.
func (s *Server) Settings() *scorehider.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// BroadcastSettings makes settings the default for new sessions and pushes
// them to every live session as an updateSettings command.
func (s *Server) BroadcastSettings(ctx context.Context, settings scorehider.Settings) int {
	s.mu.Lock()
	s.settings = &settings
	s.mu.Unlock()

	cmd := scorehider.Command{
		Action:        scorehider.ActionUpdateSettings,
		Settings:      settings.Ranges,
		SoundSettings: settings.Sound,
	}
	updated := 0
	for _, v := range s.sessions.Values() {
		ps := v.(*pageSession)
		if _, err := ps.sched.Submit(ctx, scorehider.Event{Kind: scorehider.EventCommand, Command: cmd}); err != nil {
			s.logger.Warn("settings update failed", zap.String("session_id", ps.id), zap.Error(err))
			continue
		}
		updated++
	}
	s.logger.Info("settings broadcast", zap.Int("sessions", updated))
	return updated
}

// open starts a session loop for markup and registers it.
func (s *Server) open(markup string, settings *scorehider.Settings) (*pageSession, scorehider.Outcome, error) {
	if settings == nil {
		settings = s.Settings()
	}
	sched, err := s.processor.Open(markup, scorehider.OpenOptions{Settings: settings, Sink: s.sink})
	if err != nil {
		return nil, scorehider.Outcome{}, err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	ps := &pageSession{
		id:      uuid.NewString(),
		sched:   sched,
		cancel:  cancel,
		created: time.Now(),
	}
	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("session loop failed", zap.String("session_id", ps.id), zap.Error(err))
		}
	}()

	out, err := sched.Submit(ctx, scorehider.Event{Kind: scorehider.EventStart})
	if err != nil {
		cancel()
		<-sched.Done()
		sched.Session().Close()
		return nil, out, err
	}

	s.metrics.SessionOpened()
	s.sessions.Set(ps.id, ps)
	s.logger.Info("session opened",
		zap.String("session_id", ps.id),
		zap.Int("hidden", out.Scan.Hidden))
	return ps, out, nil
}

func (s *Server) lookup(c echo.Context) (*pageSession, error) {
	id := c.Param("id")
	v := s.sessions.Get(id)
	if v == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return v.(*pageSession), nil
}

// statusFor maps package errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scorehider.ErrScoreNotFound), errors.Is(err, scorehider.ErrElementNotFound):
		return http.StatusNotFound
	case errors.Is(err, scorehider.ErrUnknownAction),
		errors.Is(err, scorehider.ErrInvalidHTML),
		errors.Is(err, scorehider.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, scorehider.ErrMaxDepthExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scorehider.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, scorehider.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, scorehider.ErrProcessingTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, scorehider.ErrProcessorClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", code), zap.Error(err))
	}
	resp := ErrorResponse{Error: msg, RequestID: c.Response().Header().Get(echo.HeaderXRequestID)}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, resp)
}
