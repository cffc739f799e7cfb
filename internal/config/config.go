package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable, e.g. RTT_MODEL.
const EnvPrefix = "RTT"

const (
	ModeCLI = "cli"
	ModeTUI = "tui"
	ModeWeb = "web"
)

// DefaultNamePool is the pool random display names are drawn from.
var DefaultNamePool = []string{
	"Alex", "Bailey", "Casey", "Dana", "Ellis",
	"Finley", "Gray", "Harper", "Indigo", "Jordan",
	"Kai", "Logan", "Morgan", "Nico", "Parker",
	"Quinn", "Riley", "Sage", "Taylor", "Val",
}

// Config is the whole configuration surface. The game core only reads it.
type Config struct {
	OllamaURL      string        `envconfig:"OLLAMA_URL" default:"http://localhost:11434" validate:"required,url"`
	Model          string        `envconfig:"MODEL" default:"gemma3:12b" validate:"required"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	NumCtx         int           `envconfig:"NUM_CTX" default:"2048" validate:"min=0"`

	GeneratedCount    int           `envconfig:"AI_PARTICIPANTS" default:"4" validate:"min=1"`
	Duration          time.Duration `envconfig:"CHAT_DURATION" default:"5m"`
	MaxTurns          int           `envconfig:"MAX_TURNS" default:"50" validate:"min=1"`
	QuestionFrequency int           `envconfig:"QUESTION_FREQUENCY" default:"3" validate:"min=1"`
	MaxResponseLength int           `envconfig:"MAX_RESPONSE_LENGTH" default:"150" validate:"min=1"`
	MinDelay          time.Duration `envconfig:"MIN_DELAY" default:"1500ms"`
	MaxDelay          time.Duration `envconfig:"MAX_DELAY" default:"3500ms"`
	VoteMinDelay      time.Duration `envconfig:"VOTE_MIN_DELAY" default:"1s"`
	VoteMaxDelay      time.Duration `envconfig:"VOTE_MAX_DELAY" default:"2s"`
	// ContextWindow is the number of recent entries handed to the model; 0 means
	// the whole transcript.
	ContextWindow int `envconfig:"CONTEXT_WINDOW" default:"0" validate:"min=0"`

	ShowTimestamps bool     `envconfig:"SHOW_TIMESTAMPS" default:"true"`
	UseRandomNames bool     `envconfig:"USE_RANDOM_NAMES" default:"true"`
	NamePool       []string `envconfig:"NAME_POOL" validate:"dive,required"`

	TranscriptDir string `envconfig:"TRANSCRIPT_DIR" default:"."`
	LogFile       string `envconfig:"LOG_FILE" default:"reverse-turing.log"`
	Debug         bool   `envconfig:"DEBUG" default:"false"`
	Mode          string `envconfig:"MODE" default:"cli" validate:"oneof=cli tui web"`
	ListenAddr    string `envconfig:"LISTEN_ADDR" default:":3000"`
}

// TotalParticipants is the generated count plus the one human.
func (c *Config) TotalParticipants() int {
	return c.GeneratedCount + 1
}

// Override mutates a loaded config before validation. Used for command-line flags.
type Override func(*Config)

// Load reads .env (if present) and RTT_* variables, applies overrides and validates.
func Load(overrides ...Override) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, &ConfigurationError{Field: "env", Reason: err.Error()}
	}
	if len(cfg.NamePool) == 0 {
		cfg.NamePool = append([]string(nil), DefaultNamePool...)
	}
	for _, override := range overrides {
		override(cfg)
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct tags first, then the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return &ConfigurationError{
				Field:  first.Field(),
				Reason: fmt.Sprintf("failed %q check (value %v)", first.Tag(), first.Value()),
			}
		}
		return &ConfigurationError{Field: "config", Reason: err.Error()}
	}
	switch {
	case c.Duration <= 0:
		return &ConfigurationError{Field: "Duration", Reason: "must be positive"}
	case c.MinDelay < 0:
		return &ConfigurationError{Field: "MinDelay", Reason: "must not be negative"}
	case c.MaxDelay < c.MinDelay:
		return &ConfigurationError{Field: "MaxDelay", Reason: fmt.Sprintf("%s is below MinDelay %s", c.MaxDelay, c.MinDelay)}
	case c.VoteMinDelay < 0:
		return &ConfigurationError{Field: "VoteMinDelay", Reason: "must not be negative"}
	case c.VoteMaxDelay < c.VoteMinDelay:
		return &ConfigurationError{Field: "VoteMaxDelay", Reason: fmt.Sprintf("%s is below VoteMinDelay %s", c.VoteMaxDelay, c.VoteMinDelay)}
	case c.RequestTimeout <= 0:
		return &ConfigurationError{Field: "RequestTimeout", Reason: "must be positive"}
	case c.UseRandomNames && len(c.NamePool) < c.TotalParticipants():
		return &ConfigurationError{
			Field:  "NamePool",
			Reason: fmt.Sprintf("%d names cannot cover %d participants", len(c.NamePool), c.TotalParticipants()),
		}
	}
	return nil
}
