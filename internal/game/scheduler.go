package game

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reverseturing/internal/config"
	"reverseturing/internal/export"
	"reverseturing/internal/gateway"
	"reverseturing/internal/roster"
	"reverseturing/internal/transcript"
	"reverseturing/internal/voting"
)

// MinuteNotice is the text of the one-time remaining-time notice.
const MinuteNotice = "=== ONE MINUTE REMAINING ==="

type Options struct {
	Config *config.Config
	// Roster is built from Config when nil.
	Roster    *roster.Roster
	Rand      *rand.Rand
	Clock     func() time.Time
	Logger    *zap.Logger
	SessionID string
}

type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingHuman
	pendingGeneration
	pendingPause
	pendingExport
)

type interlude struct {
	asker  int
	target int
}

// Scheduler owns one game: roster, transcript, ballot and state. It never
// blocks and is not safe for concurrent use; whoever drives it must call every
// method from a single goroutine.
type Scheduler struct {
	cfg       *config.Config
	roster    *roster.Roster
	names     map[int]string
	log       *transcript.Log
	ballot    *voting.Ballot
	rng       *rand.Rand
	now       func() time.Time
	logger    *zap.Logger
	sessionID string

	state State

	introNext int
	voteNext  int
	interlude *interlude

	pending  pendingKind
	awaiting AwaitHuman
	waits    int
	gen      Generate
	ticket   int
	pause    time.Duration

	lastRemaining time.Duration
	minuteNoticed bool

	result Result
	events []Event
}

func NewScheduler(opts Options) (*Scheduler, error) {
	if opts.Config == nil {
		return nil, &config.ConfigurationError{Field: "Config", Reason: "missing"}
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	r := opts.Roster
	if r == nil {
		var err error
		r, err = roster.Setup(opts.Config.TotalParticipants(), opts.Config.NamePool, opts.Config.UseRandomNames, rng)
		if err != nil {
			return nil, err
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Scheduler{
		cfg:       opts.Config,
		roster:    r,
		names:     r.Names(),
		log:       transcript.NewLog(),
		ballot:    voting.NewBallot(),
		rng:       rng,
		now:       clock,
		logger:    logger.With(zap.String("session_id", sessionID)),
		sessionID: sessionID,
		state:     State{Phase: PhaseSetup},
	}, nil
}

// Next advances the game until it needs something from outside.
func (s *Scheduler) Next() (Action, error) {
	if s.pending != pendingNone {
		return nil, ErrStepPending
	}
	if s.pause > 0 {
		delay := s.pause
		s.pause = 0
		s.pending = pendingPause
		return Pause{Delay: delay}, nil
	}
	for {
		switch s.state.Phase {
		case PhaseSetup:
			s.introNext = 1
			s.enter(PhaseIntroduction)

		case PhaseIntroduction:
			if s.introNext > s.roster.Len() {
				s.startDiscussion()
				continue
			}
			p, _ := s.roster.Get(s.introNext)
			if p.IsHuman() {
				return s.awaitHuman(AwaitHuman{
					Kind:   InputIntroduction,
					Prompt: fmt.Sprintf("Please introduce yourself (as %s):", p.Name),
				}), nil
			}
			return s.generate(PurposeIntroduction, p, gateway.TaskIntroduction), nil

		case PhaseDiscussion:
			now := s.now()
			s.checkMinuteNotice(now)

			// A question already asked gets its one reply before anything else.
			if it := s.interlude; it != nil && !s.state.Terminal {
				asker, _ := s.roster.Get(it.asker)
				target, _ := s.roster.Get(it.target)
				if target.IsHuman() {
					return s.awaitHuman(AwaitHuman{
						Kind:   InputTurn,
						Prompt: fmt.Sprintf("%s asked you a question. Your reply (as %s):", asker.Name, target.Name),
						Asker:  asker.Name,
					}), nil
				}
				return s.generate(PurposeReply, target, gateway.TaskReply), nil
			}
			s.interlude = nil

			if !s.canContinue(now) {
				s.logger.Info("discussion finished",
					zap.Int("turn", s.state.Turn),
					zap.Bool("terminal", s.state.Terminal),
					zap.Bool("deadline_passed", !now.Before(s.state.Deadline)),
				)
				s.enter(PhaseVoting)
				continue
			}

			s.state.Turn++
			active := s.activeParticipant()
			if s.interludeDue(active) {
				others := s.roster.Others(active.ID)
				target := others[s.rng.Intn(len(others))]
				s.interlude = &interlude{asker: active.ID, target: target.ID}
				s.logger.Debug("question interlude",
					zap.Int("turn", s.state.Turn),
					zap.String("asker", active.Name),
					zap.String("target", target.Name),
				)
				return s.generate(PurposeQuestion, active, gateway.TaskQuestion(target.Name)), nil
			}
			if active.IsHuman() {
				return s.awaitHuman(AwaitHuman{
					Kind:   InputTurn,
					Prompt: fmt.Sprintf("Your response (as %s):", active.Name),
				}), nil
			}
			return s.generate(PurposeTurn, active, gateway.TaskContinue), nil

		case PhaseVoting:
			generated := s.roster.Generated()
			if s.voteNext < len(generated) {
				return s.generate(PurposeVote, generated[s.voteNext], gateway.TaskVote), nil
			}
			human := s.roster.Human()
			if !s.ballot.Has(human.ID) {
				return s.awaitHuman(AwaitHuman{
					Kind:    InputVote,
					Prompt:  "Your turn to vote. Who do you think will be identified as the human?",
					Choices: s.choices(),
				}), nil
			}
			s.score()

		case PhaseResults:
			s.pending = pendingExport
			rec := export.Build(s.roster, s.log.Entries(), s.result.Standings, s.result.Outcome, s.sessionID, s.now())
			return Export{Record: rec}, nil

		case PhaseTerminal:
			return Finished{Result: s.result}, nil

		default:
			return nil, fmt.Errorf("unknown phase %d", int(s.state.Phase))
		}
	}
}

// Deliver resolves the outstanding Generate. A failed call still consumes the
// turn: its placeholder is appended in place of the message.
func (s *Scheduler) Deliver(c Completion) error {
	if s.pending != pendingGeneration || c.Ticket != s.gen.Ticket {
		return fmt.Errorf("%w: ticket %d", ErrUnexpectedCompletion, c.Ticket)
	}
	s.pending = pendingNone
	g := s.gen
	s.gen = Generate{}
	speaker, _ := s.roster.Get(g.Speaker)

	text := strings.TrimSpace(c.Text)
	genErr := c.Err
	if genErr == nil && text == "" {
		genErr = errors.New("empty response")
	}
	failed := genErr != nil
	if failed {
		s.logger.Warn("generation failed",
			zap.String("speaker", speaker.Name),
			zap.String("purpose", g.Purpose.String()),
			zap.Int("turn", s.state.Turn),
			zap.Error(genErr),
		)
		text = gateway.Placeholder(genErr)
	}

	switch g.Purpose {
	case PurposeIntroduction:
		s.appendMessage(speaker, text, g.Purpose, failed)
		s.introNext++
	case PurposeTurn:
		s.appendMessage(speaker, text, g.Purpose, failed)
	case PurposeQuestion:
		// a failed question still addresses its target, who owes the reply
		if s.interlude != nil {
			if target, ok := s.roster.Get(s.interlude.target); ok && !strings.Contains(text, target.Name) {
				text = target.Name + ", " + text
			}
		}
		s.appendMessage(speaker, text, g.Purpose, failed)
	case PurposeReply:
		s.appendMessage(speaker, text, g.Purpose, failed)
		s.interlude = nil
	case PurposeVote:
		reasoning := text
		if failed {
			reasoning = ""
		}
		s.castGeneratedVote(speaker, reasoning)
		s.voteNext++
		s.pause = s.delay(s.cfg.VoteMinDelay, s.cfg.VoteMaxDelay)
		return nil
	}
	s.pause = s.delay(s.cfg.MinDelay, s.cfg.MaxDelay)
	return nil
}

// Resume resolves an outstanding Pause.
func (s *Scheduler) Resume() {
	if s.pending == pendingPause {
		s.pending = pendingNone
	}
}

func (s *Scheduler) SubmitIntroduction(text string) error {
	if err := s.expect(InputIntroduction); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s.reject(InputIntroduction, "message is empty")
	}
	s.release()
	s.appendMessage(s.roster.Human(), text, PurposeIntroduction, false)
	s.introNext++
	return nil
}

// SubmitTurnMessage accepts the human's regular turn or the reply to a question.
func (s *Scheduler) SubmitTurnMessage(text string) error {
	if err := s.expect(InputTurn); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s.reject(InputTurn, "message is empty")
	}
	s.release()
	purpose := PurposeTurn
	if s.interlude != nil {
		purpose = PurposeReply
		s.interlude = nil
	}
	s.appendMessage(s.roster.Human(), text, purpose, false)
	return nil
}

func (s *Scheduler) SubmitVote(targetID int) error {
	if err := s.expect(InputVote); err != nil {
		return err
	}
	human := s.roster.Human()
	if targetID == human.ID {
		return s.reject(InputVote, "you cannot vote for yourself")
	}
	target, ok := s.roster.Get(targetID)
	if !ok {
		return s.reject(InputVote, fmt.Sprintf("no participant with id %d", targetID))
	}
	if err := s.ballot.Cast(human.ID, target.ID); err != nil {
		return s.reject(InputVote, err.Error())
	}
	s.release()
	target.Votes++
	s.emit(VoteCast{Voter: human.ID, VoterName: human.Name, Target: target.ID, TargetName: target.Name})
	return nil
}

// Exported resolves the outstanding Export. Failure is recorded on the result
// and never changes the outcome.
func (s *Scheduler) Exported(path string, err error) {
	if s.pending != pendingExport {
		return
	}
	s.pending = pendingNone
	if err != nil {
		s.result.ExportError = err.Error()
		s.emit(Notice{Text: fmt.Sprintf("Error saving transcript: %v", err)})
	} else {
		s.result.TranscriptPath = path
		s.emit(Notice{Text: fmt.Sprintf("Game transcript saved to %s", path)})
	}
	s.enter(PhaseTerminal)
}

// Tick lets event-driven drivers poll the clock. It fires the minute notice and
// gives up on a human discussion turn once the deadline has passed. It reports
// whether a wait was expired, in which case the driver should call Next.
func (s *Scheduler) Tick() bool {
	now := s.now()
	s.checkMinuteNotice(now)
	if s.humanDiscussionPending() && !now.Before(s.state.Deadline) {
		s.expireHumanTurn("Time is up.")
		return true
	}
	return false
}

// Stop sets the terminal flag. The discussion ends at the next decision, or at
// once if it was waiting on the human; voting still runs.
func (s *Scheduler) Stop() bool {
	if !s.state.Terminal {
		s.logger.Info("stop requested", zap.String("phase", s.state.Phase.String()))
	}
	s.state.Terminal = true
	if s.humanDiscussionPending() {
		s.expireHumanTurn("The discussion was stopped.")
		return true
	}
	return false
}

// Events drains presentation events in the order they happened.
func (s *Scheduler) Events() []Event {
	out := s.events
	s.events = nil
	return out
}

func (s *Scheduler) State() State {
	return s.state
}

func (s *Scheduler) Roster() *roster.Roster {
	return s.roster
}

func (s *Scheduler) SessionID() string {
	return s.sessionID
}

func (s *Scheduler) Entries() []transcript.Entry {
	return s.log.Entries()
}

// Awaiting reports the pending human input, if any.
func (s *Scheduler) Awaiting() (AwaitHuman, bool) {
	if s.pending != pendingHuman {
		return AwaitHuman{}, false
	}
	return s.awaiting, true
}

// Remaining is the discussion time left; zero outside the discussion.
func (s *Scheduler) Remaining() time.Duration {
	if s.state.Phase != PhaseDiscussion {
		return 0
	}
	left := s.state.Deadline.Sub(s.now())
	if left < 0 {
		return 0
	}
	return left
}

func (s *Scheduler) Result() (Result, bool) {
	if s.state.Phase < PhaseResults {
		return Result{}, false
	}
	return s.result, true
}

func (s *Scheduler) generate(purpose Purpose, p *roster.Participant, task string) Action {
	s.ticket++
	s.pending = pendingGeneration
	s.gen = Generate{
		Ticket:  s.ticket,
		Purpose: purpose,
		Speaker: p.ID,
		Request: s.request(p, task),
	}
	return s.gen
}

// request renders the prompt context now, so the worker only ever sees a copy.
func (s *Scheduler) request(p *roster.Participant, task string) gateway.Request {
	others := s.roster.Others(p.ID)
	names := make([]string, 0, len(others))
	for _, o := range others {
		names = append(names, o.Name)
	}
	return gateway.Request{
		Speaker:     p.Name,
		Others:      names,
		Total:       s.roster.Len(),
		Personality: p.Personality,
		Seed:        p.Seed,
		Context:     transcript.Render(s.log.RecentWindow(s.cfg.ContextWindow), s.names, s.cfg.ShowTimestamps),
		Task:        task,
		MaxLen:      s.cfg.MaxResponseLength,
	}
}

func (s *Scheduler) awaitHuman(a AwaitHuman) Action {
	s.waits++
	s.pending = pendingHuman
	s.awaiting = a
	return a
}

func (s *Scheduler) release() {
	s.pending = pendingNone
	s.awaiting = AwaitHuman{}
}

func (s *Scheduler) expect(kind InputKind) error {
	if s.pending != pendingHuman || s.awaiting.Kind != kind {
		return s.reject(kind, "not waiting for this input")
	}
	return nil
}

func (s *Scheduler) reject(kind InputKind, reason string) error {
	return &InputRejected{Input: kind, Phase: s.state.Phase, Reason: reason}
}

func (s *Scheduler) humanDiscussionPending() bool {
	return s.pending == pendingHuman && s.state.Phase == PhaseDiscussion
}

func (s *Scheduler) expireHumanTurn(reason string) {
	s.release()
	s.interlude = nil
	s.emit(Notice{Text: reason})
}

func (s *Scheduler) appendMessage(p *roster.Participant, text string, purpose Purpose, failed bool) {
	entry := s.log.Append(p.ID, text, s.now())
	p.Messages = append(p.Messages, entry.Seq)
	human := s.roster.Human()
	s.emit(MessageAdded{
		Entry:     entry,
		Name:      p.Name,
		Human:     p.IsHuman(),
		Purpose:   purpose,
		Addressed: !p.IsHuman() && strings.Contains(text, human.Name),
		Failed:    failed,
	})
}

func (s *Scheduler) castGeneratedVote(voter *roster.Participant, reasoning string) {
	target, matched := voting.ExtractVote(reasoning, voter.ID, s.roster.All(), s.rng)
	if target == nil {
		return
	}
	if err := s.ballot.Cast(voter.ID, target.ID); err != nil {
		s.logger.Error("vote not recorded", zap.String("voter", voter.Name), zap.Error(err))
		return
	}
	target.Votes++
	s.logger.Debug("vote cast",
		zap.String("voter", voter.Name),
		zap.String("target", target.Name),
		zap.Bool("from_text", matched),
	)
	s.emit(VoteCast{
		Voter:      voter.ID,
		VoterName:  voter.Name,
		Target:     target.ID,
		TargetName: target.Name,
		Reasoning:  reasoning,
		Random:     !matched,
	})
}

func (s *Scheduler) score() {
	standings := voting.Tally(s.roster.All())
	s.result = Result{
		SessionID: s.sessionID,
		HumanID:   s.roster.HumanID(),
		Standings: standings,
		Outcome:   voting.Classify(standings, s.roster.HumanID()),
	}
	s.logger.Info("game scored",
		zap.String("outcome", string(s.result.Outcome)),
		zap.Int("turns", s.state.Turn),
		zap.Int("messages", s.log.Len()),
	)
	s.enter(PhaseResults)
	s.emit(OutcomeDecided{Result: s.result})
}

func (s *Scheduler) startDiscussion() {
	now := s.now()
	s.state.StartedAt = now
	s.state.Deadline = now.Add(s.cfg.Duration)
	s.lastRemaining = s.cfg.Duration
	s.enter(PhaseDiscussion)
}

func (s *Scheduler) canContinue(now time.Time) bool {
	return now.Before(s.state.Deadline) && s.state.Turn < s.cfg.MaxTurns && !s.state.Terminal
}

func (s *Scheduler) activeParticipant() *roster.Participant {
	all := s.roster.All()
	return all[(s.state.Turn-1)%len(all)]
}

func (s *Scheduler) interludeDue(active *roster.Participant) bool {
	freq := s.cfg.QuestionFrequency
	return freq > 0 && s.state.Turn > 2 && s.state.Turn%freq == 0 && !active.IsHuman()
}

// checkMinuteNotice compares the previous and current remaining time so the
// notice fires exactly once however often it is polled.
func (s *Scheduler) checkMinuteNotice(now time.Time) {
	if s.minuteNoticed || s.state.Phase != PhaseDiscussion {
		return
	}
	remaining := s.state.Deadline.Sub(now)
	previous := s.lastRemaining
	s.lastRemaining = remaining
	if previous >= time.Minute && remaining < time.Minute {
		s.minuteNoticed = true
		if remaining > 0 {
			s.emit(Notice{Text: MinuteNotice})
		}
	}
}

func (s *Scheduler) delay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int63n(int64(hi-lo)+1))
}

func (s *Scheduler) choices() []Choice {
	others := s.roster.Others(s.roster.HumanID())
	out := make([]Choice, 0, len(others))
	for _, p := range others {
		out = append(out, Choice{ID: p.ID, Name: p.Name})
	}
	return out
}

func (s *Scheduler) enter(phase Phase) {
	from := s.state.Phase
	s.state.Phase = phase
	s.logger.Info("phase changed", zap.String("from", from.String()), zap.String("to", phase.String()))
	s.emit(PhaseChanged{From: from, To: phase})
}

func (s *Scheduler) emit(e Event) {
	s.events = append(s.events, e)
}
