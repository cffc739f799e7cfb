package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ExportError is a failed transcript write. It is reported to the player and
// never changes the computed outcome.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export transcript to %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Filename is the timestamped name a record is saved under.
func Filename(rec Record) string {
	return fmt.Sprintf("game_transcript_%s.txt", rec.Date.Format("20060102_150405"))
}

// Saver writes records into one directory.
type Saver struct {
	Dir    string
	Logger *zap.Logger

	// MaxElapsed bounds the retry window for transient write failures.
	MaxElapsed time.Duration
}

func NewSaver(dir string, logger *zap.Logger) *Saver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{Dir: dir, Logger: logger, MaxElapsed: 3 * time.Second}
}

// Save writes rec and returns the path. A file already holding another
// session's transcript for the same second is never overwritten; the session id
// is appended to the name instead.
func (s *Saver) Save(ctx context.Context, rec Record) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, Filename(rec))
	if _, err := os.Stat(path); err == nil && rec.SessionID != "" {
		base := Filename(rec)
		path = filepath.Join(dir, base[:len(base)-len(".txt")]+"_"+shortID(rec.SessionID)+".txt")
	}
	body := []byte(Render(rec))

	write := func() error {
		err := os.WriteFile(path, body, 0o644)
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
			return backoff.Permanent(err)
		}
		s.Logger.Warn("transcript write failed, retrying", zap.String("path", path), zap.Error(err))
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = s.MaxElapsed

	if err := backoff.Retry(write, backoff.WithContext(bo, ctx)); err != nil {
		s.Logger.Error("transcript export failed", zap.String("path", path), zap.Error(err))
		return "", &ExportError{Path: path, Err: err}
	}
	s.Logger.Info("transcript exported",
		zap.String("path", path),
		zap.String("session_id", rec.SessionID),
		zap.Int("messages", len(rec.Messages)),
	)
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
