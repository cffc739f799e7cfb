package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"reverseturing/internal/config"
	"reverseturing/internal/export"
	"reverseturing/internal/game"
	"reverseturing/internal/gateway"
	"reverseturing/internal/voting"
)

var participantPalette = []lipgloss.Color{
	"#ff71ce", "#01cdfe", "#05ffa1", "#ffd166", "#b967ff", "#fffb96", "#ff9f43", "#48dbfb",
}

func participantColor(id int) lipgloss.Color {
	if id <= 0 {
		return participantPalette[0]
	}
	return participantPalette[(id-1)%len(participantPalette)]
}

type cliTheme struct {
	info    lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	good    lipgloss.Style
	muted   lipgloss.Style
	mention lipgloss.Style
	human   lipgloss.Style
	ai      lipgloss.Style
}

func newCLITheme() cliTheme {
	return cliTheme{
		info:    lipgloss.NewStyle().Foreground(lipgloss.Color("#01cdfe")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd166")),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")),
		good:    lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3d8")),
		mention: lipgloss.NewStyle().Background(lipgloss.Color("#ffd166")).Foreground(lipgloss.Color("#000000")),
		human:   lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")),
		ai:      lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1")),
	}
}

// highlightName marks every case-insensitive occurrence of name in text.
func highlightName(text, name string, style lipgloss.Style) string {
	if strings.TrimSpace(name) == "" {
		return text
	}
	pattern := regexp.MustCompile("(?i)" + regexp.QuoteMeta(name))
	return pattern.ReplaceAllStringFunc(text, func(string) string { return style.Render(name) })
}

// presenter prints game events to a terminal the way a chat room reads.
type presenter struct {
	out            io.Writer
	theme          cliTheme
	humanID        int
	humanName      string
	showTimestamps bool
}

func (p *presenter) line(style lipgloss.Style, format string, args ...interface{}) {
	fmt.Fprintln(p.out, style.Render(fmt.Sprintf(format, args...)))
}

func (p *presenter) intro(cfg *config.Config, sched *game.Scheduler) {
	human := sched.Roster().Human()
	p.line(p.theme.info, "Game initialized with %d participants.", sched.Roster().Len())
	fmt.Fprintf(p.out, "You are %s\n", lipgloss.NewStyle().Foreground(participantColor(human.ID)).Render(human.Name))
	p.line(p.theme.info, "Your goal is to convince the AI models that you're also an AI.")
	fmt.Fprintln(p.out)
	p.line(p.theme.info, "=== GAME STARTING ===")
	p.line(p.theme.info, "The chat will run for %s or %d turns, whichever comes first.", cfg.Duration, cfg.MaxTurns)
	p.line(p.theme.info, "Try to convince the AI models that you're also an AI!")
	fmt.Fprintln(p.out)
	p.line(p.theme.info, "=== PARTICIPANTS ===")
	for _, part := range sched.Roster().All() {
		status := p.theme.ai.Render("(AI)")
		if part.IsHuman() {
			status = p.theme.human.Render("(YOU - HUMAN)")
		}
		fmt.Fprintf(p.out, "%s %s\n", lipgloss.NewStyle().Foreground(participantColor(part.ID)).Render(part.Name), status)
	}
	fmt.Fprintln(p.out)
}

func (p *presenter) Present(e game.Event) {
	switch ev := e.(type) {
	case game.PhaseChanged:
		p.phase(ev.To)
	case game.MessageAdded:
		p.message(ev)
	case game.Notice:
		switch {
		case ev.Text == game.MinuteNotice:
			fmt.Fprintln(p.out)
			p.line(p.theme.info, "%s", ev.Text)
			fmt.Fprintln(p.out)
		case strings.HasPrefix(ev.Text, "Error"):
			p.line(p.theme.err, "%s", ev.Text)
		default:
			p.line(p.theme.warn, "%s", ev.Text)
		}
	case game.VoteCast:
		p.vote(ev)
	case game.OutcomeDecided:
		p.results(ev.Result)
	}
}

func (p *presenter) phase(to game.Phase) {
	switch to {
	case game.PhaseIntroduction:
		p.line(p.theme.info, "=== INTRODUCTION ROUND ===")
	case game.PhaseDiscussion:
		fmt.Fprintln(p.out)
		p.line(p.theme.info, "=== MAIN DISCUSSION ===")
		p.line(p.theme.info, "The discussion will now continue. Respond when it's your turn or when addressed directly.")
		p.line(p.theme.info, "Your name will be %s when someone addresses you.", p.theme.mention.Render("highlighted"))
		fmt.Fprintln(p.out)
	case game.PhaseVoting:
		fmt.Fprintln(p.out)
		p.line(p.theme.info, "=== VOTING PHASE ===")
		p.line(p.theme.info, "Each participant will now vote on who they think is the human.")
		fmt.Fprintln(p.out)
	case game.PhaseResults:
		fmt.Fprintln(p.out)
		p.line(p.theme.info, "=== GAME RESULTS ===")
	}
}

func (p *presenter) message(ev game.MessageAdded) {
	style := lipgloss.NewStyle().Foreground(participantColor(ev.Entry.Speaker))
	text := ev.Entry.Text
	if ev.Failed {
		text = p.theme.err.Render(text)
	} else if ev.Addressed {
		text = highlightName(text, p.humanName, p.theme.mention)
	}
	prefix := ""
	if p.showTimestamps {
		prefix = "[" + ev.Entry.Time.Format("15:04:05") + "] "
	}
	fmt.Fprintf(p.out, "%s%s %s\n", prefix, style.Render(ev.Name+":"), text)
}

func (p *presenter) vote(ev game.VoteCast) {
	style := lipgloss.NewStyle().Foreground(participantColor(ev.Voter))
	if ev.Voter == p.humanID {
		fmt.Fprintln(p.out, style.Render(fmt.Sprintf("You voted that %s would be identified as the human.", ev.TargetName)))
		return
	}
	fmt.Fprintln(p.out, style.Render(fmt.Sprintf("%s votes that %s is the human.", ev.VoterName, ev.TargetName)))
	reasoning := ev.Reasoning
	if strings.TrimSpace(reasoning) == "" {
		reasoning = "(no reasoning given)"
	}
	fmt.Fprintln(p.out, style.Render("Reasoning: "+reasoning))
}

func (p *presenter) results(res game.Result) {
	fmt.Fprintln(p.out)
	p.line(p.theme.info, "Vote Tally:")
	for _, st := range res.Standings {
		status := p.theme.ai.Render("(AI)")
		if st.Human {
			status = p.theme.human.Render("(HUMAN)")
		}
		name := lipgloss.NewStyle().Foreground(participantColor(st.ID)).Render(st.Name)
		fmt.Fprintf(p.out, "%s %s: %d votes\n", name, status, st.Votes)
	}
	style := p.theme.good
	switch res.Outcome {
	case voting.OutcomeCaught:
		style = p.theme.err
	case voting.OutcomeTie:
		style = p.theme.warn
	}
	fmt.Fprintln(p.out)
	for i, line := range res.Summary() {
		if i > 0 {
			style = p.theme.info
		}
		p.line(style, "%s", line)
	}
	fmt.Fprintln(p.out)
}

// lineReader feeds stdin lines to the runner. One goroutine owns the scanner
// so a cancelled read never loses a line.
type lineReader struct {
	out       io.Writer
	theme     cliTheme
	lines     chan string
	errs      chan error
	menuShown bool
}

func newLineReader(in io.Reader, out io.Writer, theme cliTheme) *lineReader {
	r := &lineReader{out: out, theme: theme, lines: make(chan string), errs: make(chan error, 1)}
	go r.scan(in)
	return r
}

func (r *lineReader) scan(in io.Reader) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		r.lines <- sc.Text()
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	r.errs <- err
}

func (r *lineReader) ReadLine(ctx context.Context, a game.AwaitHuman) (string, error) {
	switch a.Kind {
	case game.InputVote:
		if !r.menuShown {
			r.menuShown = true
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, r.theme.info.Render(a.Prompt))
			for i, c := range a.Choices {
				name := lipgloss.NewStyle().Foreground(participantColor(c.ID)).Render(c.Name)
				fmt.Fprintf(r.out, "%d. %s\n", i+1, name)
			}
		}
		fmt.Fprint(r.out, "\n"+r.theme.info.Render(fmt.Sprintf("Enter the number of your choice (1-%d): ", len(a.Choices))))
	case game.InputIntroduction:
		fmt.Fprintln(r.out, r.theme.info.Render(a.Prompt))
		fmt.Fprint(r.out, "> ")
	default:
		fmt.Fprint(r.out, r.theme.info.Render(a.Prompt)+" ")
	}

	select {
	case line := <-r.lines:
		return line, nil
	case err := <-r.errs:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func runCLI(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, gen game.Generator, saver game.Saver, logger *zap.Logger) error {
	sched, err := game.NewScheduler(game.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	theme := newCLITheme()
	human := sched.Roster().Human()
	pres := &presenter{
		out:            out,
		theme:          theme,
		humanID:        human.ID,
		humanName:      human.Name,
		showTimestamps: cfg.ShowTimestamps,
	}
	p := lipgloss.NewStyle().Foreground(lipgloss.Color("#01cdfe"))
	fmt.Fprintln(out, p.Render("=== REVERSE TURING TEST GAME ==="))
	fmt.Fprintln(out, p.Render(fmt.Sprintf("In this game, you'll chat with %d AI models and try to convince them that you're also an AI.", cfg.GeneratedCount)))
	fmt.Fprintln(out, p.Render("After the chat, everyone will vote on who they think is the human."))
	fmt.Fprintln(out)
	pres.intro(cfg, sched)

	runner := &game.Runner{
		Scheduler: sched,
		Generator: gen,
		Input:     newLineReader(in, out, theme),
		Saver:     saver,
		Present:   pres.Present,
		Logger:    logger,
	}
	if _, err := runner.Run(ctx); err != nil {
		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			fmt.Fprintln(out, theme.warn.Render("Game interrupted by user."))
			return nil
		}
		return err
	}
	return nil
}

var (
	_ game.Generator = (*gateway.Client)(nil)
	_ game.Saver     = (*export.Saver)(nil)
)
