package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pharmetric/rxcalc/internal/calc"
	"github.com/pharmetric/rxcalc/internal/rxerr"
	"github.com/pharmetric/rxcalc/pkg/circuitbreaker"
)

const advisorSystemPrompt = `You are a pharmacy support assistant. A prescription quantity calculation failed and you explain why in plain language a pharmacy technician can act on.

Respond with ONLY a JSON object:
{
  "explanation": string,     // one or two sentences, no jargon
  "suggestions": [string],   // concrete next steps, most likely fix first
  "alternatives": [string]   // optional alternative inputs worth trying, e.g. a corrected drug name
}

Never invent drug names, NDCs or clinical facts not present in the provided context.`

// Advisor implements calc.ErrorAdvisor on top of a completion model. It runs
// only after a failure and must never make things worse, so every internal
// error degrades to a generic advice payload.
type Advisor struct {
	completer completer
	logger    *zap.Logger
}

// NewAdvisor creates an LLM-backed failure advisor.
func NewAdvisor(cfg Config, breaker *circuitbreaker.Breaker, logger *zap.Logger) *Advisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{
		completer: wrapCompleter(newAnthropicCompleter(cfg), breaker),
		logger:    logger,
	}
}

// AdviseOnError asks the model to explain a failure using the partial context
// the pipeline accumulated before it stopped.
func (a *Advisor) AdviseOnError(ctx context.Context, derr *rxerr.Error, advCtx calc.AdviceContext) (*calc.Advice, error) {
	user, err := buildAdvicePrompt(derr, advCtx)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.CodeAIService, "could not describe the failure to the advisor", err)
	}

	raw, err := complete(ctx, a.completer, a.logger, "failure advice", advisorSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	payload, err := extractJSON(raw)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.CodeAIService, "the advisor returned an unreadable response", err)
	}

	var advice calc.Advice
	if err := json.Unmarshal([]byte(payload), &advice); err != nil {
		return nil, rxerr.Wrap(rxerr.CodeAIService, "the advisor returned an unreadable response", err)
	}
	if advice.Explanation == "" {
		return nil, rxerr.New(rxerr.CodeAIService, "the advisor returned no explanation")
	}
	return &advice, nil
}

func buildAdvicePrompt(derr *rxerr.Error, advCtx calc.AdviceContext) (string, error) {
	encoded, err := json.MarshalIndent(advCtx, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Error code: %s\n", derr.Code)
	fmt.Fprintf(&b, "Error message: %s\n", derr.Message)
	fmt.Fprintf(&b, "Calculation context:\n%s", encoded)
	return b.String(), nil
}

// newAdvisorWithCompleter is the test seam.
func newAdvisorWithCompleter(c completer, logger *zap.Logger) *Advisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{completer: c, logger: logger}
}
