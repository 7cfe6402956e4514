// Package http provides the HTTP API for remedyd.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/halcyonlabs/remedyd/internal/autofix"
	"github.com/halcyonlabs/remedyd/internal/pipeline"
	"github.com/halcyonlabs/remedyd/internal/platform"
)

// Server provides HTTP endpoints for remedyd.
type Server struct {
	echo     *echo.Echo
	pipeline pipeline.Service
	fixer    *autofix.Engine
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(svc pipeline.Service, fixer *autofix.Engine, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("pipeline service cannot be nil")
	}
	if fixer == nil {
		return nil, fmt.Errorf("fix engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9272,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:     e,
		pipeline: svc,
		fixer:    fixer,
		logger:   logger,
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and Prometheus scrape endpoint
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/diagnose", s.handleDiagnose)
	v1.GET("/fixes", s.handleListFixes)
	v1.GET("/fixes/:id", s.handleGetFix)
	v1.POST("/fixes/:id/preview", s.handlePreviewFix)
	v1.POST("/fixes/:id/approve", s.handleApproveFix)
	v1.POST("/fixes/:id/reject", s.handleRejectFix)
	v1.POST("/fixes/:id/execute", s.handleExecuteFix)
}

// DiagnoseRequest is the request body for POST /api/v1/diagnose.
type DiagnoseRequest struct {
	// Error is the raw error payload observed from the platform, verbatim.
	Error json.RawMessage `json:"error"`
	// Operation is the call that produced the error.
	Operation platform.Operation `json:"operation"`
	// AutoFix proposes a fix when the diagnosis clears the confidence gate.
	AutoFix bool `json:"auto_fix,omitempty"`
	// Actor identifies the caller in audit events.
	Actor string `json:"actor,omitempty"`
}

// ApprovalRequest is the request body for fix approve/reject endpoints.
type ApprovalRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleStatus reports the active pattern corpus and fix queue.
func (s *Server) handleStatus(c echo.Context) error {
	version, count := s.pipeline.PatternsInfo()

	resp := StatusResponse{
		Status: "ok",
		Patterns: PatternsStatus{
			Version: version,
			Count:   count,
		},
		Fixes: countFixStates(s.fixer.List()),
	}
	return c.JSON(http.StatusOK, resp)
}

// handleDiagnose runs the full diagnosis pipeline on one error payload.
func (s *Server) handleDiagnose(c echo.Context) error {
	var req DiagnoseRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid diagnose request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if len(req.Error) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "error field is required")
	}
	if req.Operation.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "operation.name field is required")
	}

	result, err := s.pipeline.DiagnoseAndRepair(c.Request().Context(), req.Error, req.Operation, pipeline.Options{
		AutoFix: req.AutoFix,
		Actor:   req.Actor,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrServiceClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "service is shutting down")
		}
		s.logger.Error("diagnose failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "diagnosis failed")
	}

	return c.JSON(http.StatusOK, result)
}

// handleListFixes returns all tracked fixes.
func (s *Server) handleListFixes(c echo.Context) error {
	return c.JSON(http.StatusOK, s.fixer.List())
}

// handleGetFix returns one fix by ID.
func (s *Server) handleGetFix(c echo.Context) error {
	fix, err := s.fixer.Get(c.Param("id"))
	if err != nil {
		return fixError(err)
	}
	return c.JSON(http.StatusOK, fix)
}

// handlePreviewFix renders the preview document for a fix. The rendered
// bytes are cached; repeated calls return the identical document.
func (s *Server) handlePreviewFix(c echo.Context) error {
	preview, err := s.fixer.Preview(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fixError(err)
	}
	return c.JSONBlob(http.StatusOK, preview)
}

// handleApproveFix approves a previewed fix for execution.
func (s *Server) handleApproveFix(c echo.Context) error {
	var req ApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Actor == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actor field is required")
	}

	fix, err := s.fixer.Approve(c.Request().Context(), c.Param("id"), req.Actor)
	if err != nil {
		return fixError(err)
	}
	return c.JSON(http.StatusOK, fix)
}

// handleRejectFix rejects a fix so it can never execute.
func (s *Server) handleRejectFix(c echo.Context) error {
	var req ApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Actor == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "actor field is required")
	}

	fix, err := s.fixer.Reject(c.Request().Context(), c.Param("id"), req.Actor, req.Reason)
	if err != nil {
		return fixError(err)
	}
	return c.JSON(http.StatusOK, fix)
}

// handleExecuteFix executes an approved fix.
func (s *Server) handleExecuteFix(c echo.Context) error {
	fix, err := s.fixer.Execute(c.Request().Context(), c.Param("id"))
	if err != nil && fix.ID == "" {
		return fixError(err)
	}
	// Execution failures are reported in the fix record itself, with the
	// terminal state carrying the rollback outcome.
	return c.JSON(http.StatusOK, fix)
}

// fixError maps fix engine errors onto HTTP status codes.
func fixError(err error) error {
	var transition *autofix.InvalidTransitionError
	switch {
	case errors.Is(err, autofix.ErrFixNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, autofix.ErrApprovalRequired):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, autofix.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case errors.As(err, &transition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
