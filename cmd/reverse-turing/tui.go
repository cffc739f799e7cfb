package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"reverseturing/internal/config"
	"reverseturing/internal/game"
	"reverseturing/internal/voting"
)

const (
	clockInterval     = time.Second
	reasoningMaxChars = 240
)

type tickMsg time.Time

type generationDoneMsg struct {
	completion game.Completion
}

type pauseDoneMsg struct{}

type exportDoneMsg struct {
	path string
	err  error
}

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	phase       lipgloss.Style
	timer       lipgloss.Style
	timerLow    lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	inputPanel  lipgloss.Style
	helpText    lipgloss.Style
	system      lipgloss.Style
	mention     lipgloss.Style
	voteOption  lipgloss.Style
	voteSelect  lipgloss.Style
	good        lipgloss.Style
	warn        lipgloss.Style
}

func newTheme() uiTheme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	yellow := lipgloss.Color("#ffd166")
	bg := lipgloss.Color("#120924")
	panelBg := lipgloss.Color("#1b0f35")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		root: lipgloss.NewStyle().
			Background(bg).
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		phase: lipgloss.NewStyle().
			Background(pink).
			Foreground(lipgloss.Color("#22062f")).
			Bold(true).
			Padding(0, 1),
		timer:    lipgloss.NewStyle().Foreground(mint).Bold(true),
		timerLow: lipgloss.NewStyle().Foreground(pink).Bold(true),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(pink).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		helpText:   lipgloss.NewStyle().Foreground(muted),
		system:     lipgloss.NewStyle().Foreground(blue).Bold(true),
		mention:    lipgloss.NewStyle().Background(yellow).Foreground(lipgloss.Color("#000000")),
		voteOption: lipgloss.NewStyle().Foreground(text),
		voteSelect: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#22062f")).
			Background(pink).
			Bold(true).
			Padding(0, 1),
		good: lipgloss.NewStyle().Foreground(mint).Bold(true),
		warn: lipgloss.NewStyle().Foreground(yellow).Bold(true),
	}
}

// model is the bubbletea front end. Update is the only code touching the
// scheduler; generation, pauses and saving run as commands and report back
// as messages.
type model struct {
	ctx    context.Context
	cfg    *config.Config
	sched  *game.Scheduler
	gen    game.Generator
	saver  game.Saver
	logger *zap.Logger

	lines      []string
	statusLine string
	thinking   string
	voteIndex  int
	result     *game.Result
	finished   bool
	fatal      error

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	sidebar  viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

func newModel(ctx context.Context, cfg *config.Config, gen game.Generator, saver game.Saver, logger *zap.Logger) (model, error) {
	sched, err := game.NewScheduler(game.Options{Config: cfg, Logger: logger})
	if err != nil {
		return model{}, err
	}
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Wait for your turn..."
	input.Blur()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4
	sidebar := viewport.New(0, 0)

	human := sched.Roster().Human()
	return model{
		ctx:        ctx,
		cfg:        cfg,
		sched:      sched,
		gen:        gen,
		saver:      saver,
		logger:     logger,
		statusLine: fmt.Sprintf("You are %s. Convince the others you are an AI.", human.Name),
		input:      input,
		timeline:   timeline,
		sidebar:    sidebar,
		spinner:    sp,
		theme:      newTheme(),
	}, nil
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return pauseDoneMsg{} },
		tickEvery(clockInterval),
	)
}

func tickEvery(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = time.Second
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) generateCmd(a game.Generate) tea.Cmd {
	ctx, gen := m.ctx, m.gen
	return func() tea.Msg {
		text, err := gen.Generate(ctx, a.Request)
		return generationDoneMsg{completion: game.Completion{Ticket: a.Ticket, Text: text, Err: err}}
	}
}

func pauseCmd(d time.Duration) tea.Cmd {
	if d <= 0 {
		return func() tea.Msg { return pauseDoneMsg{} }
	}
	return tea.Tick(d, func(time.Time) tea.Msg { return pauseDoneMsg{} })
}

func (m model) exportCmd(a game.Export) tea.Cmd {
	ctx, saver := m.ctx, m.saver
	return func() tea.Msg {
		path, err := saver.Save(ctx, a.Record)
		return exportDoneMsg{path: path, err: err}
	}
}

// advance asks the scheduler for its next action and turns it into a command.
func (m *model) advance() tea.Cmd {
	act, err := m.sched.Next()
	m.drain()
	if errors.Is(err, game.ErrStepPending) {
		return nil
	}
	if err != nil {
		m.fatal = err
		return tea.Quit
	}
	switch a := act.(type) {
	case game.Generate:
		if p, ok := m.sched.Roster().Get(a.Speaker); ok {
			m.thinking = p.Name
		}
		return m.generateCmd(a)
	case game.AwaitHuman:
		m.thinking = ""
		m.statusLine = a.Prompt
		if a.Kind == game.InputVote {
			m.voteIndex = 0
			m.input.Blur()
		} else {
			m.input.Placeholder = a.Prompt
			m.input.Focus()
		}
		return textinput.Blink
	case game.Pause:
		m.thinking = ""
		return pauseCmd(a.Delay)
	case game.Export:
		m.statusLine = "saving transcript..."
		return m.exportCmd(a)
	case game.Finished:
		res := a.Result
		m.result = &res
		m.finished = true
		m.thinking = ""
		m.input.Blur()
		m.statusLine = "Game over. Press q or Enter to exit."
	}
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tickMsg:
		if m.finished {
			break
		}
		expired := m.sched.Tick()
		m.drain()
		if expired {
			m.input.Blur()
			m.input.SetValue("")
			cmds = append(cmds, m.advance())
		}
		m.renderPanes()
		cmds = append(cmds, tickEvery(clockInterval))
	case generationDoneMsg:
		if msg.completion.Err != nil {
			m.logger.Debug("generation failed", zap.Error(msg.completion.Err))
		}
		if err := m.sched.Deliver(msg.completion); err != nil {
			m.logger.Warn("completion dropped", zap.Error(err))
			break
		}
		cmds = append(cmds, m.advance())
		m.renderPanes()
	case pauseDoneMsg:
		m.sched.Resume()
		cmds = append(cmds, m.advance())
		m.renderPanes()
	case exportDoneMsg:
		if msg.err != nil {
			m.logger.Warn("transcript not saved", zap.Error(msg.err))
		}
		m.sched.Exported(msg.path, msg.err)
		cmds = append(cmds, m.advance())
		m.renderPanes()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		cmd, quit := m.handleKey(msg)
		if quit {
			return m, tea.Quit
		}
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return nil, true
	case "pgup", "ctrl+b":
		m.timeline.LineUp(8)
		return nil, false
	case "pgdown", "ctrl+f":
		m.timeline.LineDown(8)
		return nil, false
	case "ctrl+e":
		if m.sched.State().Phase == game.PhaseDiscussion {
			expired := m.sched.Stop()
			m.drain()
			m.renderPanes()
			if expired {
				m.input.SetValue("")
				m.input.Blur()
				return m.advance(), false
			}
		}
		return nil, false
	}

	if m.finished {
		switch msg.String() {
		case "q", "enter", "esc":
			return nil, true
		}
		return nil, false
	}

	awaiting, ok := m.sched.Awaiting()
	if !ok {
		return nil, false
	}
	if awaiting.Kind == game.InputVote {
		return m.handleVoteKey(msg, awaiting), false
	}

	if msg.String() == "enter" {
		text := strings.TrimSpace(m.input.Value())
		var err error
		if awaiting.Kind == game.InputIntroduction {
			err = m.sched.SubmitIntroduction(text)
		} else {
			err = m.sched.SubmitTurnMessage(text)
		}
		m.drain()
		if err != nil {
			m.statusLine = "rejected: " + rejectionReason(err)
			m.renderPanes()
			return nil, false
		}
		m.input.SetValue("")
		m.input.Blur()
		m.input.Placeholder = "Wait for your turn..."
		cmd := m.advance()
		m.renderPanes()
		return cmd, false
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd, false
}

func (m *model) handleVoteKey(msg tea.KeyMsg, awaiting game.AwaitHuman) tea.Cmd {
	key := msg.String()
	switch key {
	case "up", "k":
		m.voteIndex = maxInt(0, m.voteIndex-1)
	case "down", "j":
		m.voteIndex = minInt(len(awaiting.Choices)-1, m.voteIndex+1)
	case "enter":
		return m.castVote(awaiting, m.voteIndex+1)
	default:
		if id, err := game.ChoiceID(awaiting.Choices, key); err == nil {
			for i, c := range awaiting.Choices {
				if c.ID == id {
					return m.castVote(awaiting, i+1)
				}
			}
		}
	}
	m.renderPanes()
	return nil
}

func (m *model) castVote(awaiting game.AwaitHuman, number int) tea.Cmd {
	id, err := game.ChoiceID(awaiting.Choices, fmt.Sprint(number))
	if err == nil {
		err = m.sched.SubmitVote(id)
	}
	m.drain()
	if err != nil {
		m.statusLine = "rejected: " + rejectionReason(err)
		m.renderPanes()
		return nil
	}
	cmd := m.advance()
	m.renderPanes()
	return cmd
}

func rejectionReason(err error) string {
	var rejected *game.InputRejected
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	return err.Error()
}

// drain moves pending scheduler events into the timeline.
func (m *model) drain() {
	for _, e := range m.sched.Events() {
		m.lines = append(m.lines, m.formatEvent(e)...)
		if n, ok := e.(game.Notice); ok {
			m.statusLine = n.Text
		}
	}
}

func (m *model) formatEvent(e game.Event) []string {
	human := m.sched.Roster().Human()
	switch ev := e.(type) {
	case game.PhaseChanged:
		if header := phaseHeader(ev.To); header != "" {
			return []string{"", m.theme.system.Render(header)}
		}
	case game.MessageAdded:
		name := lipgloss.NewStyle().Foreground(participantColor(ev.Entry.Speaker)).Bold(true).Render(ev.Name + ":")
		text := ev.Entry.Text
		if ev.Failed {
			text = m.theme.errorStatus.Render(text)
		} else if ev.Addressed {
			text = highlightName(text, human.Name, m.theme.mention)
		}
		prefix := ""
		if m.cfg.ShowTimestamps {
			prefix = m.theme.helpText.Render("["+ev.Entry.Time.Format("15:04:05")+"]") + " "
		}
		return []string{prefix + name + " " + text}
	case game.Notice:
		return []string{m.theme.warn.Render(ev.Text)}
	case game.VoteCast:
		style := lipgloss.NewStyle().Foreground(participantColor(ev.Voter))
		if ev.Voter == human.ID {
			return []string{style.Render(fmt.Sprintf("You voted that %s would be identified as the human.", ev.TargetName))}
		}
		out := []string{style.Render(fmt.Sprintf("%s votes that %s is the human.", ev.VoterName, ev.TargetName))}
		if r := compactSingleLine(ev.Reasoning, reasoningMaxChars); r != "" {
			out = append(out, m.theme.helpText.Render("  Reasoning: "+r))
		}
		return out
	case game.OutcomeDecided:
		out := []string{m.theme.panelTitle.Render("Vote Tally:")}
		for _, st := range ev.Result.Standings {
			tag := "(AI)"
			if st.Human {
				tag = "(HUMAN)"
			}
			out = append(out, fmt.Sprintf("  %s %s: %d votes", st.Name, tag, st.Votes))
		}
		style := outcomeStyle(m.theme, ev.Result.Outcome)
		for _, line := range ev.Result.Summary() {
			out = append(out, style.Render(line))
		}
		return out
	}
	return nil
}

func phaseHeader(p game.Phase) string {
	switch p {
	case game.PhaseIntroduction:
		return "=== INTRODUCTION ROUND ==="
	case game.PhaseDiscussion:
		return "=== MAIN DISCUSSION ==="
	case game.PhaseVoting:
		return "=== VOTING PHASE ==="
	case game.PhaseResults:
		return "=== GAME RESULTS ==="
	}
	return ""
}

func outcomeStyle(theme uiTheme, o voting.Outcome) lipgloss.Style {
	switch o {
	case voting.OutcomeCaught:
		return theme.errorStatus
	case voting.OutcomeTie:
		return theme.warn
	default:
		return theme.good
	}
}

// formatClock renders a remaining duration as m:ss, never negative.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func (m model) View() string {
	if m.fatal != nil {
		panel := m.theme.panel.
			Width(maxInt(20, m.width-4)).
			Render(
				m.theme.panelTitle.Render("Reverse Turing Test Failed") + "\n\n" +
					m.theme.errorStatus.Render(m.fatal.Error()) + "\n\n" +
					m.theme.helpText.Render("Press Ctrl+C to exit."),
			)
		return m.theme.root.Render(panel)
	}
	out := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderContent(),
		m.renderInput(),
		m.renderFooter(),
	)
	return m.theme.root.Render(out)
}

func (m *model) renderHeader() string {
	st := m.sched.State()
	segments := []string{m.theme.phase.Render(strings.ToUpper(st.Phase.String()))}
	if st.Phase == game.PhaseDiscussion {
		remaining := m.sched.Remaining()
		style := m.theme.timer
		if remaining < time.Minute {
			style = m.theme.timerLow
		}
		segments = append(segments,
			" "+style.Render(formatClock(remaining)),
			m.theme.helpText.Render(fmt.Sprintf("  turn %d/%d", st.Turn, m.cfg.MaxTurns)),
		)
	}
	if st.Terminal && st.Phase == game.PhaseDiscussion {
		segments = append(segments, m.theme.warn.Render("  stopping"))
	}
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

func (m *model) panelWidths() (int, int) {
	contentWidth := maxInt(40, m.width-4)
	leftWidth := int(float64(contentWidth) * 0.7)
	rightWidth := contentWidth - leftWidth - 1
	if rightWidth < 24 {
		rightWidth = 24
		leftWidth = contentWidth - rightWidth - 1
	}
	return leftWidth, rightWidth
}

func (m *model) renderContent() string {
	contentHeight := maxInt(8, m.height-12)
	leftWidth, rightWidth := m.panelWidths()
	left := m.theme.panel.Width(leftWidth).Height(contentHeight).Render(
		m.theme.panelTitle.Render("Chat") + "\n" + m.timeline.View(),
	)
	right := m.theme.panel.Width(rightWidth).Height(contentHeight).Render(
		m.theme.panelTitle.Render("Participants") + "\n" + m.sidebar.View(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
}

func (m *model) renderInput() string {
	contentWidth := maxInt(40, m.width-4)
	if awaiting, ok := m.sched.Awaiting(); ok && awaiting.Kind == game.InputVote {
		var b strings.Builder
		b.WriteString(m.theme.panelTitle.Render(awaiting.Prompt) + "\n")
		for i, c := range awaiting.Choices {
			line := fmt.Sprintf("%d. %s", i+1, c.Name)
			if i == m.voteIndex {
				b.WriteString(m.theme.voteSelect.Render(">> " + line))
			} else {
				b.WriteString(m.theme.voteOption.Render("   " + line))
			}
			b.WriteString("\n")
		}
		return m.theme.inputPanel.Width(contentWidth).Render(strings.TrimRight(b.String(), "\n"))
	}
	inputView := m.input.View()
	if m.thinking != "" {
		inputView = m.spinner.View() + " " + m.thinking + " is typing... " + inputView
	}
	return m.theme.inputPanel.Width(contentWidth).Render(inputView)
}

func (m *model) renderFooter() string {
	contentWidth := maxInt(40, m.width-4)
	statusStyle := m.theme.status
	lower := strings.ToLower(m.statusLine)
	if strings.Contains(lower, "rejected") || strings.Contains(lower, "error") {
		statusStyle = m.theme.errorStatus
	}
	line := statusStyle.Render(compactSingleLine(m.statusLine, 180))
	hints := m.theme.helpText.Render("Keys: Enter send · Up/Down or 1-9 pick a vote · PgUp/PgDn scroll · Ctrl+E end discussion · Ctrl+C quit")
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + hints)
}

func (m *model) renderPanes() {
	atBottom := m.timeline.AtBottom()
	offset := m.timeline.YOffset
	contentHeight := maxInt(8, m.height-12)
	leftWidth, rightWidth := m.panelWidths()

	m.timeline.Width = maxInt(20, leftWidth-4)
	m.timeline.Height = maxInt(5, contentHeight-2)
	m.sidebar.Width = maxInt(20, rightWidth-4)
	m.sidebar.Height = maxInt(5, contentHeight-2)

	m.timeline.SetContent(m.renderTimeline())
	if atBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(offset)
	}
	m.sidebar.SetContent(m.renderSidebar())
}

func (m *model) renderTimeline() string {
	if len(m.lines) == 0 {
		return m.theme.helpText.Render("Waiting for the first introduction...")
	}
	return lipgloss.NewStyle().Width(maxInt(20, m.timeline.Width)).Render(strings.Join(m.lines, "\n"))
}

func (m *model) renderSidebar() string {
	var b strings.Builder
	showVotes := m.sched.State().Phase >= game.PhaseVoting
	for _, p := range m.sched.Roster().All() {
		name := lipgloss.NewStyle().Foreground(participantColor(p.ID)).Render(p.Name)
		if p.IsHuman() {
			name += m.theme.helpText.Render(" (you)")
		}
		if showVotes {
			name += fmt.Sprintf("  %d", p.Votes)
		}
		b.WriteString(name + "\n")
	}
	b.WriteString("\n" + m.theme.helpText.Render(fmt.Sprintf("Messages: %d", len(m.sched.Entries()))))
	return b.String()
}

func (m *model) resize() {
	contentWidth := maxInt(40, m.width-4)
	m.input.Width = maxInt(20, contentWidth-6)
}

// closingLines is printed after the program exits so the outcome stays on screen.
func (m model) closingLines() []string {
	if m.fatal != nil {
		return []string{"Error: " + m.fatal.Error()}
	}
	if m.result == nil {
		return []string{"Game interrupted by user."}
	}
	lines := m.result.Summary()
	switch {
	case m.result.TranscriptPath != "":
		lines = append(lines, "Game transcript saved to "+m.result.TranscriptPath)
	case m.result.ExportError != "":
		lines = append(lines, "Error saving transcript: "+m.result.ExportError)
	}
	return lines
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func compactSingleLine(text string, limit int) string {
	compact := strings.Join(strings.Fields(text), " ")
	return truncate(compact, limit)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
