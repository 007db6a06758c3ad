// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/smartfold/agentpipe/metrics"
	"github.com/smartfold/agentpipe/orchestrator"
)

// Runner runs one pipeline request. Satisfied by orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.RunResult, error)
}

// Server hosts the chat API, health check and metrics endpoints.
type Server struct {
	echo     *echo.Echo
	runner   Runner
	exporter *metrics.Exporter
	addr     string
}

// New creates a server. The exporter is optional.
func New(addr string, runner Runner, exporter *metrics.Exporter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{
		echo:     e,
		runner:   runner,
		exporter: exporter,
		addr:     addr,
	}

	e.GET("/healthz", s.handleHealth)
	e.POST("/api/v1/chat", s.handleChat)
	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("server: listening", "addr", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the root handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type chatError struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req orchestrator.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, chatError{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, chatError{Error: "message is required"})
	}

	if s.exporter != nil {
		done := s.exporter.RunStarted()
		defer done()
	}

	result, err := s.runner.Run(c.Request().Context(), req)
	if err != nil {
		slog.Error("server: chat run error", "error", err)
		return c.JSON(http.StatusInternalServerError, chatError{Error: "pipeline error"})
	}
	if result.Status == orchestrator.StatusFailed {
		return c.JSON(http.StatusBadGateway, result)
	}
	return c.JSON(http.StatusOK, result)
}

// requestLogger logs each request through slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("server: request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds())
			return nil
		},
	})
}
