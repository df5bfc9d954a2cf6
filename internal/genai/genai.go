// Package genai wraps the OpenAI API as the bot's completion service.
//
// Failures are surfaced as distinguishable sentinel errors so the router
// can degrade each kind to an appropriate user-facing reply.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Sentinel errors mapping the completion service's failure kinds.
var (
	// ErrInvalidCredential indicates the API key was rejected.
	ErrInvalidCredential = errors.New("genai: invalid credential")
	// ErrQuotaExceeded indicates the usage quota or rate limit was hit.
	ErrQuotaExceeded = errors.New("genai: quota exceeded")
	// ErrSafetyBlocked indicates the output was withheld by content policy.
	ErrSafetyBlocked = errors.New("genai: blocked by safety filter")
	// ErrEmptyOutput indicates the model returned no usable text.
	ErrEmptyOutput = errors.New("genai: empty output")
)

// chatCompleter is the minimal surface of the OpenAI chat completion
// service, extracted so tests can substitute a fake.
type chatCompleter interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the completion client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the completion client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Completer is the contract consumed by the flow package.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client generates free-text answers via the OpenAI chat API.
type Client struct {
	chat  chatCompleter
	model string
}

// NewClient initializes a completion client. The API key falls back to
// the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client initialized", "model", cfg.Model)
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

// Complete sends the composed prompt and returns the generated text, or
// one of the package's sentinel errors.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", classifyAPIError(err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("GenAI response contained no choices")
		return "", ErrEmptyOutput
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		slog.Warn("GenAI response blocked by content filter")
		return "", ErrSafetyBlocked
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		slog.Warn("GenAI response text empty", "finish_reason", choice.FinishReason)
		return "", ErrEmptyOutput
	}
	slog.Debug("GenAI completion succeeded", "chars", len(text))
	return text, nil
}

// classifyAPIError maps transport-level API errors onto the sentinel set.
func classifyAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			slog.Error("GenAI credential rejected", "status", apiErr.StatusCode)
			return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		case 429:
			slog.Warn("GenAI quota exceeded", "status", apiErr.StatusCode)
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
	}
	slog.Error("GenAI request failed", "error", err)
	return err
}

// Verify verifies connectivity with a trivial completion. Used at startup
// so a bad credential fails the boot instead of the first user question.
func (c *Client) Verify(ctx context.Context) error {
	_, err := c.Complete(ctx, "You are a health check.", "Reply with the word OK.")
	if errors.Is(err, ErrEmptyOutput) || errors.Is(err, ErrSafetyBlocked) {
		// Connectivity and credential are fine, which is all boot needs.
		return nil
	}
	return err
}
