package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"reverseturing/internal/export"
	"reverseturing/internal/gateway"
)

// Generator is the generation backend as the game sees it.
type Generator interface {
	Generate(ctx context.Context, req gateway.Request) (string, error)
}

// HumanInput reads one line for the given prompt, blocking until it arrives.
type HumanInput interface {
	ReadLine(ctx context.Context, prompt AwaitHuman) (string, error)
}

// Saver persists a finished game's record.
type Saver interface {
	Save(ctx context.Context, rec export.Record) (string, error)
}

// Runner drives a Scheduler on the calling goroutine: generation is called
// inline, pauses sleep, human turns block on input.
type Runner struct {
	Scheduler *Scheduler
	Generator Generator
	Input     HumanInput
	Saver     Saver
	// Present receives every event as soon as it is produced.
	Present func(Event)
	Logger  *zap.Logger
	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (r *Runner) Run(ctx context.Context) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	s := r.Scheduler
	for {
		act, err := s.Next()
		r.flush()
		if err != nil {
			return Result{}, err
		}
		switch a := act.(type) {
		case Generate:
			text, genErr := r.Generator.Generate(ctx, a.Request)
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			if err := s.Deliver(Completion{Ticket: a.Ticket, Text: text, Err: genErr}); err != nil {
				return Result{}, err
			}
		case AwaitHuman:
			if err := r.readHuman(ctx, a); err != nil {
				return Result{}, err
			}
		case Pause:
			if err := sleep(ctx, a.Delay); err != nil {
				return Result{}, err
			}
			s.Resume()
		case Export:
			path, saveErr := r.Saver.Save(ctx, a.Record)
			if saveErr != nil {
				logger.Warn("transcript not saved", zap.Error(saveErr))
			}
			s.Exported(path, saveErr)
		case Finished:
			r.flush()
			return a.Result, nil
		}
	}
}

// readHuman reprompts until the scheduler accepts the input.
func (r *Runner) readHuman(ctx context.Context, a AwaitHuman) error {
	s := r.Scheduler
	for {
		line, err := r.Input.ReadLine(ctx, a)
		if err != nil {
			return err
		}
		switch a.Kind {
		case InputIntroduction:
			err = s.SubmitIntroduction(line)
		case InputTurn:
			err = s.SubmitTurnMessage(line)
		case InputVote:
			var id int
			id, err = ChoiceID(a.Choices, line)
			if err == nil {
				err = s.SubmitVote(id)
			}
		}
		r.flush()
		if err == nil {
			return nil
		}
		var rejected *InputRejected
		if !errors.As(err, &rejected) {
			return err
		}
		if r.Present != nil {
			r.Present(Notice{Text: rejected.Reason})
		}
	}
}

func (r *Runner) flush() {
	events := r.Scheduler.Events()
	if r.Present == nil {
		return
	}
	for _, e := range events {
		r.Present(e)
	}
}

// ChoiceID maps a 1-based menu number to a participant id.
func ChoiceID(choices []Choice, input string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, &InputRejected{Input: InputVote, Phase: PhaseVoting, Reason: "Please enter a valid number."}
	}
	if n < 1 || n > len(choices) {
		return 0, &InputRejected{
			Input:  InputVote,
			Phase:  PhaseVoting,
			Reason: fmt.Sprintf("Invalid choice. Please enter a number between 1 and %d.", len(choices)),
		}
	}
	return choices[n-1].ID, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
