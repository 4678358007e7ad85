package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/pharmetric/rxcalc/internal/domain/dosing"
	"github.com/pharmetric/rxcalc/internal/rxerr"
	"github.com/pharmetric/rxcalc/pkg/circuitbreaker"
)

const parserSystemPrompt = `You are a pharmacy technician assistant that converts free-text prescription directions (SIG) into structured JSON.

Respond with ONLY a JSON object, no prose, matching this schema:
{
  "dose": number,                  // amount per administration
  "unit": string,                  // one of: tablet, capsule, mL, unit, mg, g, patch, spray, puff, drop, suppository, application
  "frequency": {
    "kind": string,                // times_per_day | times_per_period | specific_times | as_needed
    "value": number,               // for times_per_day: count; for times_per_period: period divisor (every 4 hours -> 4)
    "period": string,              // for times_per_period: hour | day | week
    "times": [string],             // for specific_times: clock labels like "08:00"
    "maxPerDay": number            // for as_needed: prescriber cap, omit if none given
  },
  "durationDays": number,          // explicit course length, omit if open-ended
  "route": string,                 // oral, sublingual, topical, inhaled, nasal, ophthalmic, otic, rectal, vaginal, injection, transdermal
  "specialInstructions": [string], // e.g. "with food", "at bedtime"
  "doseRange": {"min": number, "max": number},   // only when the SIG gives a range like "1-2 tablets"
  "doseSchedule": [{"dose": number, "occurrencesPerDay": number, "label": string}], // only for variable regimens like sliding scales
  "confidence": number,            // 0.0-1.0, your confidence in this interpretation
  "reasoning": string              // one sentence explaining the interpretation
}

Rules:
- "as needed" / "PRN" always means kind "as_needed", even when combined with an interval; put the interval-implied ceiling in maxPerDay only if the text states a cap.
- For dose ranges, set "dose" to the minimum and fill "doseRange" with both bounds.
- If the text is not a dosing instruction at all, respond with {"error": "unparseable"}.`

// Parser implements calc.SIGParser on top of a completion model.
type Parser struct {
	completer completer
	logger    *zap.Logger
}

// NewParser creates an LLM-backed SIG parser.
func NewParser(cfg Config, breaker *circuitbreaker.Breaker, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		completer: wrapCompleter(newAnthropicCompleter(cfg), breaker),
		logger:    logger,
	}
}

// ParseDosing interprets a free-text SIG. daysSupply is handed to the model
// as context for open-ended instructions.
func (p *Parser) ParseDosing(ctx context.Context, text string, daysSupply int) (*dosing.Record, error) {
	user := fmt.Sprintf("SIG: %s\nDays supply requested: %d", text, daysSupply)
	raw, err := complete(ctx, p.completer, p.logger, "SIG parsing", parserSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	payload, err := extractJSON(raw)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.CodeInvalidSIG, "the dosing instruction could not be interpreted", err)
	}

	var probe struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(payload), &probe) == nil && probe.Error != "" {
		return nil, rxerr.Newf(rxerr.CodeInvalidSIG, "the dosing instruction could not be interpreted: %s", probe.Error)
	}

	var rec dosing.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, rxerr.Wrap(rxerr.CodeInvalidSIG, "the dosing instruction could not be interpreted", err)
	}
	if rec.OriginalText == "" {
		rec.OriginalText = text
	}
	if err := rec.Validate(); err != nil {
		return nil, rxerr.Wrap(rxerr.CodeInvalidSIG, "the parsed dosing instruction is inconsistent", err)
	}

	p.logger.Debug("sig parsed",
		zap.Float64("confidence", rec.Confidence),
		zap.String("frequency_kind", string(rec.Frequency.Kind)))
	return &rec, nil
}

// newParserWithCompleter is the test seam.
func newParserWithCompleter(c completer, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{completer: c, logger: logger}
}
