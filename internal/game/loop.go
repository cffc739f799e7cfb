package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrLoopClosed is returned by Loop calls after the loop has shut down.
var ErrLoopClosed = errors.New("game loop closed")

// Loop drives a Scheduler on its own goroutine. Every mutation happens there:
// callers and generation workers only post commands to it.
type Loop struct {
	sched     *Scheduler
	gen       Generator
	saver     Saver
	logger    *zap.Logger
	tickEvery time.Duration

	cmds      chan func()
	done      chan struct{}
	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once

	// owned by the loop goroutine
	subs     map[int]chan Event
	nextSub  int
	finished bool
}

func NewLoop(s *Scheduler, gen Generator, saver Saver, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		sched:     s,
		gen:       gen,
		saver:     saver,
		logger:    logger,
		tickEvery: time.Second,
		cmds:      make(chan func(), 16),
		done:      make(chan struct{}),
		subs:      map[int]chan Event{},
	}
}

// Start launches the loop goroutine. It stops when ctx ends or Close is called.
func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		ctx, l.cancel = context.WithCancel(ctx)
		go l.run(ctx)
	})
}

func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
			<-l.done
		}
	})
}

func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	defer func() {
		for id, ch := range l.subs {
			close(ch)
			delete(l.subs, id)
		}
	}()
	ticker := time.NewTicker(l.tickEvery)
	defer ticker.Stop()

	l.advance(ctx)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("game loop stopped", zap.String("session_id", l.sched.SessionID()))
			return
		case <-ticker.C:
			if l.sched.Tick() {
				l.advance(ctx)
			} else {
				l.publish()
			}
		case cmd := <-l.cmds:
			cmd()
			l.advance(ctx)
		}
	}
}

// advance runs Next until the game waits on something outside the loop.
func (l *Loop) advance(ctx context.Context) {
	for {
		act, err := l.sched.Next()
		l.publish()
		if errors.Is(err, ErrStepPending) {
			return
		}
		if err != nil {
			l.logger.Error("scheduler failed", zap.Error(err))
			return
		}
		switch a := act.(type) {
		case Generate:
			go l.generate(ctx, a)
			return
		case AwaitHuman:
			return
		case Pause:
			time.AfterFunc(a.Delay, func() {
				l.post(l.sched.Resume)
			})
			return
		case Export:
			go l.export(ctx, a)
			return
		case Finished:
			if !l.finished {
				l.finished = true
				l.logger.Info("game finished",
					zap.String("session_id", a.Result.SessionID),
					zap.String("outcome", string(a.Result.Outcome)),
				)
			}
			return
		}
	}
}

func (l *Loop) generate(ctx context.Context, a Generate) {
	text, err := l.gen.Generate(ctx, a.Request)
	c := Completion{Ticket: a.Ticket, Text: text, Err: err}
	l.post(func() {
		if err := l.sched.Deliver(c); err != nil {
			l.logger.Warn("dropped completion", zap.Int("ticket", c.Ticket), zap.Error(err))
		}
	})
}

func (l *Loop) export(ctx context.Context, a Export) {
	path, err := l.saver.Save(ctx, a.Record)
	l.post(func() {
		l.sched.Exported(path, err)
	})
}

// post hands fn to the loop goroutine, giving up once the loop is gone.
func (l *Loop) post(fn func()) bool {
	select {
	case l.cmds <- fn:
		return true
	case <-l.done:
		return false
	}
}

// do runs fn on the loop goroutine and waits for its result.
func (l *Loop) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case l.cmds <- func() { reply <- fn() }:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) SubmitIntroduction(ctx context.Context, text string) error {
	return l.do(ctx, func() error { return l.sched.SubmitIntroduction(text) })
}

func (l *Loop) SubmitTurnMessage(ctx context.Context, text string) error {
	return l.do(ctx, func() error { return l.sched.SubmitTurnMessage(text) })
}

// SubmitMessage routes text to whichever text input the game is waiting on.
func (l *Loop) SubmitMessage(ctx context.Context, text string) error {
	return l.do(ctx, func() error {
		if a, ok := l.sched.Awaiting(); ok && a.Kind == InputIntroduction {
			return l.sched.SubmitIntroduction(text)
		}
		return l.sched.SubmitTurnMessage(text)
	})
}

func (l *Loop) SubmitVote(ctx context.Context, targetID int) error {
	return l.do(ctx, func() error { return l.sched.SubmitVote(targetID) })
}

// Stop ends the discussion; voting and export still run.
func (l *Loop) Stop(ctx context.Context) error {
	return l.do(ctx, func() error {
		l.sched.Stop()
		return nil
	})
}

func (l *Loop) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := l.do(ctx, func() error {
		snap = l.sched.Snapshot()
		return nil
	})
	return snap, err
}

// Subscribe returns a channel of events from now on and a cancel func. The
// channel is closed when the loop stops. A subscriber that falls behind loses
// events rather than stalling the game.
func (l *Loop) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, 64)
	var id int
	err := l.do(ctx, func() error {
		l.nextSub++
		id = l.nextSub
		l.subs[id] = ch
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	cancel := func() {
		l.post(func() {
			if sub, ok := l.subs[id]; ok {
				close(sub)
				delete(l.subs, id)
			}
		})
	}
	return ch, cancel, nil
}

func (l *Loop) publish() {
	for _, e := range l.sched.Events() {
		for id, ch := range l.subs {
			select {
			case ch <- e:
			default:
				l.logger.Warn("subscriber lagging, event dropped", zap.Int("subscriber", id))
			}
		}
	}
}
