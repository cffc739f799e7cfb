package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"reverseturing/internal/config"
	"reverseturing/internal/export"
	"reverseturing/internal/gateway"
	"reverseturing/internal/web"
)

const (
	preflightTimeout = 10 * time.Second
	shutdownTimeout  = 10 * time.Second
	// front ends that redraw the whole history send a bounded window
	interactiveContextWindow = 10
)

// cliOptions holds command-line values. Only flags the user actually set are
// applied on top of the environment configuration.
type cliOptions struct {
	mode          string
	participants  int
	duration      time.Duration
	maxTurns      int
	model         string
	transcriptDir string
	listenAddr    string
	debug         bool
	altScreen     bool

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	opts := cliOptions{set: map[string]bool{}}
	fs := flag.NewFlagSet("reverse-turing", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.mode, "mode", envOr("RTT_MODE", config.ModeCLI), "Front end (cli|tui|web)")
	fs.IntVar(&opts.participants, "ai", envOrInt("RTT_AI_PARTICIPANTS", 4), "Number of AI participants")
	fs.DurationVar(&opts.duration, "duration", 5*time.Minute, "Discussion time limit")
	fs.IntVar(&opts.maxTurns, "turns", 50, "Discussion turn cap")
	fs.StringVar(&opts.model, "model", "", "Ollama model name")
	fs.StringVar(&opts.transcriptDir, "transcripts", "", "Directory for saved transcripts")
	fs.StringVar(&opts.listenAddr, "listen", "", "HTTP listen address for -mode=web")
	fs.BoolVar(&opts.debug, "debug", false, "Log prompts and scheduling decisions")
	fs.BoolVar(&opts.altScreen, "alt-screen", envOrBool("RTT_ALT_SCREEN", true), "Use alternate screen buffer in -mode=tui")
	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	// counts pass through untouched so config validation can reject them
	opts.mode = strings.ToLower(strings.TrimSpace(opts.mode))
	return opts, nil
}

// overrides turns the flags the user set into config overrides. The mode is
// always applied because its flag default already reads RTT_MODE.
func (o cliOptions) overrides() []config.Override {
	out := []config.Override{func(c *config.Config) { c.Mode = o.mode }}
	if o.set["ai"] {
		out = append(out, func(c *config.Config) { c.GeneratedCount = o.participants })
	}
	if o.set["duration"] {
		out = append(out, func(c *config.Config) { c.Duration = o.duration })
	}
	if o.set["turns"] {
		out = append(out, func(c *config.Config) { c.MaxTurns = o.maxTurns })
	}
	if o.set["model"] && strings.TrimSpace(o.model) != "" {
		out = append(out, func(c *config.Config) { c.Model = strings.TrimSpace(o.model) })
	}
	if o.set["transcripts"] && strings.TrimSpace(o.transcriptDir) != "" {
		out = append(out, func(c *config.Config) { c.TranscriptDir = o.transcriptDir })
	}
	if o.set["listen"] && strings.TrimSpace(o.listenAddr) != "" {
		out = append(out, func(c *config.Config) { c.ListenAddr = o.listenAddr })
	}
	if o.set["debug"] {
		out = append(out, func(c *config.Config) { c.Debug = o.debug })
	}
	out = append(out, func(c *config.Config) {
		if c.ContextWindow == 0 && c.Mode != config.ModeCLI {
			c.ContextWindow = interactiveContextWindow
		}
	})
	return out
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	cfg, err := config.Load(opts.overrides()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reverse-turing: %v\n", err)
		os.Exit(2)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reverse-turing: logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, opts, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		fmt.Fprintf(os.Stderr, "reverse-turing fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts cliOptions, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gateway.NewClient(cfg, logger)
	preflightCtx, cancel := context.WithTimeout(ctx, preflightTimeout)
	err := client.Preflight(preflightCtx)
	cancel()
	if err != nil {
		return preflightError(cfg, err)
	}
	saver := export.NewSaver(cfg.TranscriptDir, logger)

	logger.Info("starting",
		zap.String("mode", cfg.Mode),
		zap.String("model", cfg.Model),
		zap.Int("ai_participants", cfg.GeneratedCount),
		zap.Duration("duration", cfg.Duration),
		zap.Int("max_turns", cfg.MaxTurns),
	)

	switch cfg.Mode {
	case config.ModeTUI:
		return runTUI(ctx, cfg, opts.altScreen, client, saver, logger)
	case config.ModeWeb:
		return runWeb(ctx, cfg, client, saver, logger)
	default:
		return runCLI(ctx, cfg, os.Stdin, os.Stdout, client, saver, logger)
	}
}

func preflightError(cfg *config.Config, err error) error {
	switch {
	case errors.Is(err, gateway.ErrModelMissing):
		return fmt.Errorf("model %q not found in Ollama: %w", cfg.Model, err)
	case errors.Is(err, gateway.ErrBackendUnavailable):
		return fmt.Errorf("could not connect to Ollama at %s, make sure it is running: %w", cfg.OllamaURL, err)
	default:
		return err
	}
}

func runTUI(ctx context.Context, cfg *config.Config, altScreen bool, gen *gateway.Client, saver *export.Saver, logger *zap.Logger) error {
	m, err := newModel(ctx, cfg, gen, saver, logger)
	if err != nil {
		return err
	}
	programOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if altScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	final, err := tea.NewProgram(m, programOpts...).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if fm, ok := final.(model); ok {
		for _, line := range fm.closingLines() {
			fmt.Println(line)
		}
	}
	return nil
}

func runWeb(ctx context.Context, cfg *config.Config, gen *gateway.Client, saver *export.Saver, logger *zap.Logger) error {
	srv := web.NewServer(ctx, cfg, gen, saver, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
