// Package warning synthesizes advisory records from computed pipeline state.
package warning

import (
	"fmt"

	"github.com/pharmetric/rxcalc/internal/domain/dosing"
)

// Type categorizes a warning.
type Type string

const (
	TypeLowConfidenceParse Type = "low_confidence_parse"
	TypeAmbiguousSIG       Type = "ambiguous_sig"
	TypeDoseRangeAssumed   Type = "dose_range_assumption"
	TypeOverfill           Type = "overfill"
	TypeUnderfill          Type = "underfill"
	TypeStrengthMismatch   Type = "strength_mismatch"
	TypeRxCUINotFound      Type = "rxcui_not_found"
	TypeInactiveExcluded   Type = "inactive_packages_excluded"
	// Emitted by the package-selection step and passed through verbatim.
	TypePackageCombination Type = "package_combination"
	TypePartialFill        Type = "partial_fill"
)

// Severity grades a warning.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Warning is one advisory record attached to a calculation result.
type Warning struct {
	Type       Type     `json:"type"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	RelatedNDC string   `json:"relatedNdc,omitempty"`
}

// lowConfidenceThreshold is the parser confidence below which the result is
// flagged for pharmacist review.
const lowConfidenceThreshold = 0.7

// overfillTolerance is the fraction of the needed quantity an overfill may
// reach before it is flagged.
const overfillTolerance = 0.1

// Options carries flags that affect wording only, never control flow.
type Options struct {
	// DoseRangeInferred is set when the range came from free-text inference
	// rather than the parser.
	DoseRangeInferred bool
}

// Collect evaluates every warning rule independently against the computed
// state and appends selection-step warnings verbatim. Ordering is stable for
// a given input.
func Collect(rec *dosing.Record, selectionWarnings []Warning, fillDifference, quantityNeeded float64, unit dosing.Unit, opts Options) []Warning {
	var out []Warning

	if rec.Confidence < lowConfidenceThreshold {
		out = append(out, Warning{
			Type:     TypeLowConfidenceParse,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("The dosing instruction was parsed with low confidence (%.0f%%). Verify the interpretation before dispensing.",
				rec.Confidence*100),
			Suggestion: "Review the parsed dose, frequency and duration against the original SIG.",
		})
	}

	if rec.Frequency.Kind == dosing.KindAsNeeded && rec.Frequency.MaxPerDay == nil {
		out = append(out, Warning{
			Type:     TypeAmbiguousSIG,
			Severity: SeverityInfo,
			Message: fmt.Sprintf("The SIG is as-needed without a daily maximum; a conservative %d doses/day was assumed.",
				dosing.DefaultPRNPerDay),
			Suggestion: "Confirm the intended daily maximum with the prescriber.",
		})
	}

	if rec.DoseRange != nil {
		source := "parsed from the SIG"
		if opts.DoseRangeInferred {
			source = "inferred from the instruction text"
		}
		out = append(out, Warning{
			Type:     TypeDoseRangeAssumed,
			Severity: SeverityInfo,
			Message: fmt.Sprintf("Dose range %v-%v %s (%s); the maximum was used so the patient does not run out.",
				rec.DoseRange.Min, rec.DoseRange.Max, unit, source),
		})
	}

	if quantityNeeded > 0 && fillDifference > overfillTolerance*quantityNeeded {
		pct := fillDifference / quantityNeeded * 100
		out = append(out, Warning{
			Type:     TypeOverfill,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Selected packages dispense %.1f%% more than needed (%+.0f %s).",
				pct, fillDifference, unit),
			Suggestion: "Consider a smaller package combination if one exists.",
		})
	}

	if fillDifference < 0 {
		out = append(out, Warning{
			Type:     TypeUnderfill,
			Severity: SeverityError,
			Message: fmt.Sprintf("Selected packages fall %.0f %s short of the calculated need.",
				-fillDifference, unit),
			Suggestion: "Add packages or escalate; the patient would run out early.",
		})
	}

	out = append(out, selectionWarnings...)
	return out
}
