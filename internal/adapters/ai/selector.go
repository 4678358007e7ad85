package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pharmetric/rxcalc/internal/calc"
	"github.com/pharmetric/rxcalc/internal/domain/catalog"
	"github.com/pharmetric/rxcalc/internal/rxerr"
	"github.com/pharmetric/rxcalc/pkg/circuitbreaker"
)

const selectorSystemPrompt = `You are a pharmacy fulfillment assistant that picks manufacturer packages to cover a prescribed quantity.

You receive candidate packages and a required quantity. Respond with ONLY a JSON object:
{
  "selected": [
    {"ndc": string, "quantity": number}   // quantity is the number of packages of this NDC
  ],
  "warnings": [
    {"type": string, "severity": string, "message": string, "suggestion": string}
  ],
  "reasoning": string
}

Rules:
- The combined units must cover the required quantity; never select less than needed.
- Prefer the combination with the least overfill, then the fewest packages.
- If a preferred NDC is given and it is among the candidates, favor it when the overfill is comparable.
- Select only NDCs present in the candidate list.
- Add a warning of type "package_combination" when more than one package type is needed.
- Add a warning of type "partial_fill" with severity "info" when a package must be broken to avoid large overfill, but still select whole packages.`

// Selector implements calc.PackageSelector on top of a completion model. The
// model proposes a combination; the selector validates every proposed NDC
// against the candidate set before accepting it.
type Selector struct {
	completer completer
	logger    *zap.Logger
}

// NewSelector creates an LLM-backed package selector.
func NewSelector(cfg Config, breaker *circuitbreaker.Breaker, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		completer: wrapCompleter(newAnthropicCompleter(cfg), breaker),
		logger:    logger,
	}
}

// SelectPackages asks the model for a covering combination of candidates.
func (s *Selector) SelectPackages(ctx context.Context, req calc.SelectionRequest) (*calc.SelectionResult, error) {
	if len(req.Candidates) == 0 {
		return nil, rxerr.New(rxerr.CodeNDCNotFound, "no candidate packages to select from")
	}

	user, err := s.buildPrompt(req)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.CodeAIService, "could not describe candidates to the selector", err)
	}

	raw, err := complete(ctx, s.completer, s.logger, "package selection", selectorSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	payload, err := extractJSON(raw)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.CodeAIService, "the package selector returned an unreadable response", err)
	}

	var resp selectorResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, rxerr.Wrap(rxerr.CodeAIService, "the package selector returned an unreadable response", err)
	}
	return s.validate(resp, req)
}

type selectorResponse struct {
	Selected []struct {
		NDC      string `json:"ndc"`
		Quantity int64  `json:"quantity"`
	} `json:"selected"`
	Warnings  []warningPayload `json:"warnings"`
	Reasoning string           `json:"reasoning"`
}

func (s *Selector) buildPrompt(req calc.SelectionRequest) (string, error) {
	type candidate struct {
		NDC          string  `json:"ndc"`
		PackageSize  float64 `json:"packageSize"`
		DosageForm   string  `json:"dosageForm"`
		Strength     string  `json:"strength"`
		Manufacturer string  `json:"manufacturer"`
	}
	cands := make([]candidate, len(req.Candidates))
	for i, p := range req.Candidates {
		cands[i] = candidate{
			NDC:          p.NDC,
			PackageSize:  p.PackageSize,
			DosageForm:   string(p.DosageForm),
			Strength:     p.Strength,
			Manufacturer: p.Manufacturer,
		}
	}
	encoded, err := json.Marshal(cands)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Required quantity: %d %s\n", req.QuantityNeeded, req.Unit)
	if req.PreferredNDC != "" {
		fmt.Fprintf(&b, "Preferred NDC: %s\n", req.PreferredNDC)
	}
	if req.Dosing != nil && req.Dosing.Reasoning != "" {
		fmt.Fprintf(&b, "Dosing context: %s\n", req.Dosing.Reasoning)
	}
	fmt.Fprintf(&b, "Candidate packages:\n%s", encoded)
	return b.String(), nil
}

// validate rejects hallucinated NDCs and rebuilds totals from the catalog
// snapshot rather than trusting the model's arithmetic.
func (s *Selector) validate(resp selectorResponse, req calc.SelectionRequest) (*calc.SelectionResult, error) {
	if len(resp.Selected) == 0 {
		return nil, rxerr.New(rxerr.CodeAIService, "the package selector returned no packages")
	}

	byNDC := make(map[string]catalog.Package, len(req.Candidates))
	for _, p := range req.Candidates {
		byNDC[p.NDC] = p
	}

	selected := make([]catalog.Selected, 0, len(resp.Selected))
	for _, pick := range resp.Selected {
		pkg, ok := byNDC[pick.NDC]
		if !ok {
			s.logger.Warn("selector proposed an NDC outside the candidate set",
				zap.String("ndc", pick.NDC))
			return nil, rxerr.Newf(rxerr.CodeAIService, "the package selector proposed an unknown package %s", pick.NDC)
		}
		count := pick.Quantity
		if count < 1 {
			count = 1
		}
		selected = append(selected, catalog.Selected{
			Package:    pkg,
			Count:      count,
			TotalUnits: pkg.PackageSize * float64(count),
		})
	}

	return &calc.SelectionResult{
		Selected:  selected,
		Warnings:  convertWarnings(resp.Warnings),
		Reasoning: resp.Reasoning,
	}, nil
}

// newSelectorWithCompleter is the test seam.
func newSelectorWithCompleter(c completer, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{completer: c, logger: logger}
}
