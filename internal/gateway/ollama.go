package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"reverseturing/internal/config"
)

// Client talks to a single Ollama endpoint with a single model. Each Generate is
// one attempt; failures are reported, never retried.
type Client struct {
	baseURL string
	model   string
	numCtx  int
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout < time.Second {
		timeout = time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.OllamaURL), "/"),
		model:   cfg.Model,
		numCtx:  cfg.NumCtx,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate voices req.Speaker and returns the reply cut to req.MaxLen.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	options := map[string]any{}
	if c.numCtx > 0 {
		options["num_ctx"] = c.numCtx
	}
	if req.Seed != 0 {
		options["seed"] = req.Seed
	}
	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  BuildPrompt(req),
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return "", newGenerationError(err.Error(), err)
	}

	endpoint := c.baseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", newGenerationError(err.Error(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("generation request failed",
			zap.String("speaker", req.Speaker),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return "", newGenerationError(fmt.Sprintf("ollama request failed on /api/generate: %v", err), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newGenerationError(err.Error(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("generation returned non-success status",
			zap.String("speaker", req.Speaker),
			zap.Int("status", resp.StatusCode),
		)
		return "", newGenerationError(fmt.Sprintf("ollama http %d: %s", resp.StatusCode, compactSingleLine(string(payload), 200)), nil)
	}
	var parsed generateResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", newGenerationError("ollama returned non-json payload", err)
	}
	content := strings.TrimSpace(parsed.Response)
	if content == "" {
		return "", newGenerationError("ollama returned empty response content", nil)
	}

	c.logger.Debug("generation complete",
		zap.String("speaker", req.Speaker),
		zap.Int("chars", len(content)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return Truncate(content, req.MaxLen), nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Preflight checks once that the backend answers and has the configured model.
// A failure here is fatal for the session.
func (c *Client) Preflight(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: could not connect to %s: %v", ErrBackendUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s answered http %d", ErrBackendUnavailable, c.baseURL, resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("%w: unreadable model list: %v", ErrBackendUnavailable, err)
	}

	available := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		available = append(available, strings.ToLower(m.Name))
	}
	if !hasModel(available, c.model) {
		return fmt.Errorf("%w: %q not found (available: %s); install it with: ollama pull %s",
			ErrModelMissing, c.model, strings.Join(available, ", "), c.model)
	}
	c.logger.Info("backend ready", zap.String("endpoint", c.baseURL), zap.String("model", c.model))
	return nil
}

func hasModel(available []string, model string) bool {
	want := strings.ToLower(strings.TrimSpace(model))
	base, _, _ := strings.Cut(want, ":")
	for _, name := range available {
		if name == want || name == base {
			return true
		}
	}
	return false
}
