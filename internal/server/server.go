package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/net/netutil"

	"research-relay/internal/config"
	"research-relay/internal/metrics"
	"research-relay/internal/models"
	"research-relay/internal/relay"
	"research-relay/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 45 * time.Second
	idleTimeout         = 120 * time.Second
)

type Server struct {
	cfg     config.Config
	relay   *relay.Relay
	metrics *metrics.Collector
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware. collector
// may be nil, in which case /metrics is not served.
func New(cfg config.Config, rl *relay.Relay, collector *metrics.Collector) (*Server, error) {
	if rl == nil {
		return nil, errors.New("relay must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = relayErrorHandler

	srv := &Server{
		cfg:     cfg,
		relay:   rl,
		metrics: collector,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Port),
	}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(srv.observe)
	e.Use(allowAnyOrigin)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"request_id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed application, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run listens on the configured port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}
	printStartupBanner(s.cfg.ServiceName, s.cfg.Port)
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled, then shuts down
// gracefully. At most MaxWorkers connections are served at once; further
// connections wait in the accept queue.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("starting server",
		"addr", ln.Addr().String(),
		"max_workers", s.cfg.MaxWorkers,
		"provider", s.relay.Provider().Name(),
	)

	s.app.Listener = netutil.LimitListener(ln, s.cfg.MaxWorkers)
	httpServer := &http.Server{
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		// Echo.Shutdown only knows its own e.Server.
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.POST("/health", s.handleHealth)
	s.app.POST("/research", s.handleResearch)
	s.app.OPTIONS("/research", handlePreflight)
	s.app.POST("/chat", s.handleChat)
	s.app.GET("/test-connection", s.handleTestConnection)
	if s.metrics != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:  models.StatusHealthy,
		Service: s.cfg.ServiceName,
	})
}

func handlePreflight(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleResearch(c echo.Context) error {
	var req translator.ResearchRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	resp, err := s.relay.Research(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChat(c echo.Context) error {
	var req translator.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	resp, err := s.relay.Chat(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTestConnection(c echo.Context) error {
	resp, err := s.relay.CheckConnection(c.Request().Context())
	if err != nil {
		reqErr := classify(err)
		slog.Warn("connection check failed", "status", reqErr.Status, "error", err)
		return c.JSON(reqErr.Status, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		var validationErr *translator.ValidationError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &validationErr):
			return requestError{Status: http.StatusBadRequest, Message: validationErr.Message}
		case errors.As(err, &tooLarge):
			return requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			}
		case errors.Is(err, io.EOF):
			return requestError{Status: http.StatusBadRequest, Message: "request body is required"}
		default:
			return requestError{
				Status:  http.StatusBadRequest,
				Message: fmt.Sprintf("invalid JSON payload: %v", err),
			}
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
		}
	}
	return nil
}

func printStartupBanner(service string, port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Printf("%s ready\n", service)
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /research")
	fmt.Println("  POST /chat")
	fmt.Println("  GET  /test-connection")
	fmt.Println("  GET  /metrics")
	fmt.Printf("Example:\n  curl http://%s:%d/research -H 'Content-Type: application/json' -d '{\"query\":\"quantum computing\",\"context\":\"\"}'\n\n", host, port)
}
