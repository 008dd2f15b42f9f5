package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIServer exposes read-only diagnostics over HTTP, on its own port away
// from the conferencing endpoints: health, roster, presenter, shared files,
// and Prometheus metrics.
type APIServer struct {
	hub  *Hub
	echo *echo.Echo
}

// NewAPIServer constructs an APIServer and registers all routes.
func NewAPIServer(hub *Hub) *APIServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("api request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &APIServer{hub: hub, echo: e}
	s.registerRoutes()
	return s
}

func (s *APIServer) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/roster", s.handleRoster)
	s.echo.GET("/api/presenter", s.handlePresenter)
	s.echo.GET("/api/files", s.handleFiles)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Run starts the HTTP server on addr and blocks until ctx is canceled.
func (s *APIServer) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("api server", "err", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		slog.Warn("api shutdown", "err", err)
	}
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	Participants int    `json:"participants"`
}

func (s *APIServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:       "ok",
		Participants: s.hub.reg.Count(),
	})
}

// RosterUser is one element of the GET /api/roster array, in join order.
type RosterUser struct {
	ID       uint32 `json:"id"`
	Username string `json:"username"`
}

func (s *APIServer) handleRoster(c echo.Context) error {
	entries := s.hub.reg.Snapshot()
	users := make([]RosterUser, len(entries))
	for i, e := range entries {
		users[i] = RosterUser{ID: e.ID, Username: e.Username}
	}
	return c.JSON(http.StatusOK, users)
}

// PresenterResponse is the payload for GET /api/presenter. Presenter is nil
// when the lease is free.
type PresenterResponse struct {
	Presenter *uint32 `json:"presenter"`
}

func (s *APIServer) handlePresenter(c echo.Context) error {
	var resp PresenterResponse
	if id, ok := s.hub.screen.Holder(); ok {
		resp.Presenter = &id
	}
	return c.JSON(http.StatusOK, resp)
}

// FileResponse is one element of the GET /api/files array.
type FileResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	UploaderID   uint32 `json:"uploader_id"`
	UploaderName string `json:"uploader_name"`
}

func (s *APIServer) handleFiles(c echo.Context) error {
	files, err := s.hub.store.ListFiles()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]FileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, FileResponse{
			ID:           f.ID,
			Name:         f.Name,
			Size:         f.Size,
			UploaderID:   f.UploaderID,
			UploaderName: f.UploaderName,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
