// Package ai implements the LLM-backed pipeline steps: SIG parsing, package
// selection and failure advice. All three share one completion client and
// exchange strict JSON with the model.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/pharmetric/rxcalc/internal/rxerr"
	"github.com/pharmetric/rxcalc/pkg/circuitbreaker"
)

// completer issues one system+user prompt and returns the model's text.
// Tests substitute a canned implementation.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config holds model settings shared by the three adapters.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	MaxRetries  int
}

// DefaultConfig returns settings tuned for structured extraction: a low
// temperature keeps the JSON output stable across calls.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:      apiKey,
		Model:       string(anthropic.ModelClaudeSonnet4_5),
		MaxTokens:   2048,
		Temperature: 0.1,
		MaxRetries:  2,
	}
}

type anthropicCompleter struct {
	client anthropic.Client
	cfg    Config
}

func newAnthropicCompleter(cfg Config) *anthropicCompleter {
	return &anthropicCompleter{
		client: anthropic.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithMaxRetries(cfg.MaxRetries),
		),
		cfg: cfg,
	}
}

func (a *anthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.cfg.Model),
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: anthropic.Float(a.cfg.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// guardedCompleter runs a completer through a circuit breaker.
type guardedCompleter struct {
	inner   completer
	breaker *circuitbreaker.Breaker
}

func (g *guardedCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	v, err := g.breaker.Do(func() (any, error) {
		return g.inner.Complete(ctx, system, user)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// wrapCompleter applies the optional breaker.
func wrapCompleter(c completer, breaker *circuitbreaker.Breaker) completer {
	if breaker == nil {
		return c
	}
	return &guardedCompleter{inner: c, breaker: breaker}
}

// complete runs the prompt and maps transport failures onto the error
// taxonomy. Used by all three adapters.
func complete(ctx context.Context, c completer, logger *zap.Logger, op, system, user string) (string, error) {
	text, err := c.Complete(ctx, system, user)
	if err != nil {
		if circuitbreaker.Rejected(err) {
			return "", rxerr.Wrap(rxerr.CodeAIService, "the AI service is temporarily unavailable", err)
		}
		return "", rxerr.Wrap(rxerr.CodeAIService, op+" failed", err)
	}
	logger.Debug("completion received",
		zap.String("operation", op),
		zap.Int("length", len(text)))
	return text, nil
}

// extractJSON pulls the first JSON object out of a model response, tolerating
// surrounding prose and markdown fences.
func extractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in model response")
	}
	candidate := text[start : end+1]
	if !gjson.Valid(candidate) {
		return "", fmt.Errorf("model response is not valid JSON")
	}
	return candidate, nil
}
