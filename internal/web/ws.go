package web

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"reverseturing/internal/game"
)

const (
	writeWait   = 10 * time.Second
	timerPeriod = time.Second
)

// inboundFrame is what the browser may send over the socket.
type inboundFrame struct {
	Type          string `json:"type"` // message | vote | stop
	Text          string `json:"text"`
	ParticipantID int    `json:"participant_id"`
}

type snapshotFrame struct {
	Type     string        `json:"type"`
	Snapshot game.Snapshot `json:"snapshot"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// stream handles GET /v1/games/:id/ws. The socket gets a snapshot, then every
// game event, a timer frame each second and a waiting frame whenever the game
// starts waiting on the human. Closing the socket ends the game.
func (s *Server) stream(c echo.Context) error {
	sess, err := s.store.Get(c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("game_id", sess.ID), zap.Error(err))
		return nil
	}
	s.serveSocket(sess, conn)
	return nil
}

func (s *Server) serveSocket(sess *Session, conn *websocket.Conn) {
	defer conn.Close()
	logger := s.logger.With(zap.String("game_id", sess.ID))
	ctx, cancel := context.WithCancel(s.base)
	defer cancel()

	events, unsubscribe, err := sess.Loop.Subscribe(ctx)
	if err != nil {
		_ = writeFrame(conn, errorFrame{Type: "error", Message: err.Error()})
		return
	}
	defer unsubscribe()

	snap, err := sess.Loop.Snapshot(ctx)
	if err != nil {
		_ = writeFrame(conn, errorFrame{Type: "error", Message: err.Error()})
		return
	}
	if err := writeFrame(conn, snapshotFrame{Type: "snapshot", Snapshot: snap}); err != nil {
		return
	}

	replies := make(chan error, 4)
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			var f inboundFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if err := s.applyFrame(ctx, sess, f); err != nil {
				select {
				case replies <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	ticker := time.NewTicker(timerPeriod)
	defer ticker.Stop()
	lastWait := snap.WaitSeq
	for {
		select {
		case <-clientGone:
			logger.Info("player disconnected, ending game")
			if err := s.store.Remove(sess.ID); err != nil && !errors.Is(err, ErrGameNotFound) {
				logger.Warn("remove game", zap.Error(err))
			}
			return
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			env, ok := toEnvelope(e)
			if !ok {
				continue
			}
			if err := writeFrame(conn, env); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case err := <-replies:
			if err := writeFrame(conn, errorFrame{Type: "error", Message: err.Error()}); err != nil {
				return
			}
		case <-ticker.C:
			snap, err := sess.Loop.Snapshot(ctx)
			if err != nil {
				return
			}
			remaining := snap.RemainingSeconds
			if err := writeFrame(conn, envelope{Type: "timer", RemainingSeconds: &remaining}); err != nil {
				return
			}
			if snap.Awaiting != game.InputNone && snap.WaitSeq != lastWait {
				lastWait = snap.WaitSeq
				frame := envelope{Type: "waiting", Awaiting: snap.Awaiting, Choices: snap.Choices, Text: snap.Prompt}
				if err := writeFrame(conn, frame); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) applyFrame(ctx context.Context, sess *Session, f inboundFrame) error {
	switch f.Type {
	case "message":
		return sess.Loop.SubmitMessage(ctx, f.Text)
	case "vote":
		return sess.Loop.SubmitVote(ctx, f.ParticipantID)
	case "stop":
		return sess.Loop.Stop(ctx)
	default:
		return errors.New("unknown frame type " + f.Type)
	}
}

func writeFrame(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
