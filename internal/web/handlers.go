package web

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"reverseturing/internal/game"
)

type createGameRequest struct {
	AIParticipants  int `json:"ai_participants" validate:"omitempty,min=1,max=19"`
	MaxTurns        int `json:"max_turns" validate:"omitempty,min=1"`
	DurationSeconds int `json:"duration_seconds" validate:"omitempty,min=10"`
}

type messageRequest struct {
	Text string `json:"text" validate:"required"`
}

type voteRequest struct {
	ParticipantID int `json:"participant_id" validate:"required,min=1"`
}

type gameResponse struct {
	ID       string        `json:"id"`
	Snapshot game.Snapshot `json:"snapshot"`
}

func badRequest(c echo.Context, code string, err error) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{
		"error":   code,
		"message": err.Error(),
	})
}

// createGame handles POST /v1/games
func (s *Server) createGame(c echo.Context) error {
	var req createGameRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_request", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation_failed", err)
	}

	cfg := s.gameConfig(req)
	sched, err := game.NewScheduler(game.Options{Config: cfg, Logger: s.logger})
	if err != nil {
		return s.fail(c, err)
	}
	loop := game.NewLoop(sched, s.gen, s.saver, s.logger)
	sess := &Session{ID: sched.SessionID(), Loop: loop, Created: time.Now()}
	s.store.Add(sess)
	loop.Start(s.base)
	s.logger.Info("game created",
		zap.String("game_id", sess.ID),
		zap.Int("participants", cfg.TotalParticipants()),
		zap.Duration("duration", cfg.Duration),
	)

	snap, err := loop.Snapshot(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, gameResponse{ID: sess.ID, Snapshot: snap})
}

// getGame handles GET /v1/games/:id
func (s *Server) getGame(c echo.Context) error {
	sess, err := s.store.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	snap, err := sess.Loop.Snapshot(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, gameResponse{ID: sess.ID, Snapshot: snap})
}

// postMessage handles POST /v1/games/:id/messages for introductions and turns.
func (s *Server) postMessage(c echo.Context) error {
	sess, err := s.store.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_request", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation_failed", err)
	}
	ctx := c.Request().Context()
	if err := sess.Loop.SubmitMessage(ctx, req.Text); err != nil {
		return s.fail(c, err)
	}
	snap, err := sess.Loop.Snapshot(ctx)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, gameResponse{ID: sess.ID, Snapshot: snap})
}

// postVote handles POST /v1/games/:id/votes
func (s *Server) postVote(c echo.Context) error {
	sess, err := s.store.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_request", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation_failed", err)
	}
	ctx := c.Request().Context()
	if err := sess.Loop.SubmitVote(ctx, req.ParticipantID); err != nil {
		return s.fail(c, err)
	}
	snap, err := sess.Loop.Snapshot(ctx)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, gameResponse{ID: sess.ID, Snapshot: snap})
}

// deleteGame handles DELETE /v1/games/:id
func (s *Server) deleteGame(c echo.Context) error {
	id := c.Param("id")
	if err := s.store.Remove(id); err != nil {
		return s.fail(c, err)
	}
	s.logger.Info("game removed", zap.String("game_id", id))
	return c.NoContent(http.StatusNoContent)
}
