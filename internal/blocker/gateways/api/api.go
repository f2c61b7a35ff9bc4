// Package api is blockd's HTTP surface: the settings message protocol,
// navigation and focus events from the host, a websocket status feed and
// the interstitial page.
package api

import (
	"context"
	_ "embed"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/domain"
)

// BlockedPagePath is where the interstitial page is served.
const BlockedPagePath = "/blocked.html"

//go:embed static/blocked.html
var blockedPage []byte

// SettingsService is the cached settings owner.
type SettingsService interface {
	Status(ctx context.Context) (domain.Status, error)
	Update(ctx context.Context, s domain.Settings) error
	Refresh(ctx context.Context) error
	Subscribe() (<-chan domain.Settings, func())
	IsReady() bool
}

// Navigator decides navigation events.
type Navigator interface {
	HandleNavigation(ctx context.Context, ev domain.NavigationEvent) (domain.Redirect, bool, error)
}

type Options struct {
	Addr      string
	Settings  SettingsService
	Navigator Navigator
	Logger    log.Logger
}

type Server struct {
	addr      string
	echo      *echo.Echo
	settings  SettingsService
	navigator Navigator
	logger    log.Logger

	done     chan struct{}
	doneOnce sync.Once
}

type customValidator struct {
	validator *validator.Validate
}

func (cv *customValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &customValidator{validator: validator.New()}

	s := &Server{
		addr:      opts.Addr,
		echo:      e,
		settings:  opts.Settings,
		navigator: opts.Navigator,
		logger:    logger,
		done:      make(chan struct{}),
	}

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	e.POST("/messages", s.postMessage)
	e.POST("/events/navigation", s.postNavigation)
	e.POST("/events/focus", s.postFocus)
	e.GET("/watch", s.watch)
	e.GET(BlockedPagePath, s.blocked)
	e.GET("/healthz", s.healthz)

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Addr is the bound listener address, nil until Start has bound it.
func (s *Server) Addr() net.Addr { return s.echo.ListenerAddr() }

// Start blocks serving Addr until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info(map[string]any{"addr": s.addr}, "API listening")
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and ends open watch streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.echo.Shutdown(ctx)
}

func (s *Server) blocked(c echo.Context) error {
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.HTMLBlob(http.StatusOK, blockedPage)
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"ready": s.settings.IsReady()})
}
