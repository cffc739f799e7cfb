package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"reverseturing/internal/config"
	"reverseturing/internal/game"
)

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// Server exposes games over HTTP and a websocket event stream. Each game runs
// on its own game.Loop; handlers only talk to loops through their methods.
type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	store    *Store
	gen      game.Generator
	saver    game.Saver
	logger   *zap.Logger
	base     context.Context
	upgrader websocket.Upgrader
}

// NewServer wires routes. Games are bound to base, not to the request that
// created them.
func NewServer(base context.Context, cfg *config.Config, gen game.Generator, saver game.Saver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		echo:   echo.New(),
		cfg:    cfg,
		store:  NewStore(),
		gen:    gen,
		saver:  saver,
		logger: logger,
		base:   base,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	v1 := e.Group("/v1")
	v1.POST("/games", s.createGame)
	v1.GET("/games/:id", s.getGame)
	v1.POST("/games/:id/messages", s.postMessage)
	v1.POST("/games/:id/votes", s.postVote)
	v1.GET("/games/:id/ws", s.stream)
	v1.DELETE("/games/:id", s.deleteGame)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Store() *Store {
	return s.store
}

// Start blocks serving on the configured address until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("web server listening", zap.String("addr", s.cfg.ListenAddr))
	if err := s.echo.Start(s.cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.store.CloseAll()
	return s.echo.Shutdown(ctx)
}

// gameConfig is the server config with per-game overrides applied.
func (s *Server) gameConfig(req createGameRequest) *config.Config {
	cfg := *s.cfg
	if req.AIParticipants > 0 {
		cfg.GeneratedCount = req.AIParticipants
	}
	if req.MaxTurns > 0 {
		cfg.MaxTurns = req.MaxTurns
	}
	if req.DurationSeconds > 0 {
		cfg.Duration = time.Duration(req.DurationSeconds) * time.Second
	}
	return &cfg
}

func (s *Server) fail(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "internal_error"
	var rejected *game.InputRejected
	var cfgErr *config.ConfigurationError
	switch {
	case errors.Is(err, ErrGameNotFound):
		status, code = http.StatusNotFound, "game_not_found"
	case errors.As(err, &rejected):
		status, code = http.StatusConflict, "input_rejected"
	case errors.As(err, &cfgErr):
		status, code = http.StatusBadRequest, "invalid_configuration"
	case errors.Is(err, game.ErrLoopClosed):
		status, code = http.StatusGone, "game_closed"
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, map[string]interface{}{
		"error":   code,
		"message": err.Error(),
	})
}
