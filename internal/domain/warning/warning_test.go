package warning

import (
	"testing"

	"github.com/pharmetric/rxcalc/internal/domain/dosing"
)

func has(ws []Warning, typ Type) bool {
	for _, w := range ws {
		if w.Type == typ {
			return true
		}
	}
	return false
}

func severityOf(ws []Warning, typ Type) Severity {
	for _, w := range ws {
		if w.Type == typ {
			return w.Severity
		}
	}
	return ""
}

func confidentRecord() *dosing.Record {
	return &dosing.Record{
		Dose:       1,
		Unit:       dosing.UnitTablet,
		Frequency:  dosing.Frequency{Kind: dosing.KindTimesPerDay, Value: 1},
		Confidence: 0.95,
	}
}

func TestCollectLowConfidence(t *testing.T) {
	rec := confidentRecord()
	rec.Confidence = 0.5

	ws := Collect(rec, nil, 0, 30, dosing.UnitTablet, Options{})
	if !has(ws, TypeLowConfidenceParse) {
		t.Error("expected low_confidence_parse warning")
	}
	if severityOf(ws, TypeLowConfidenceParse) != SeverityWarning {
		t.Error("low confidence should be severity warning")
	}

	rec.Confidence = 0.9
	if ws := Collect(rec, nil, 0, 30, dosing.UnitTablet, Options{}); has(ws, TypeLowConfidenceParse) {
		t.Error("confident parse must not warn")
	}
}

func TestCollectAmbiguousPRN(t *testing.T) {
	rec := confidentRecord()
	rec.Frequency = dosing.Frequency{Kind: dosing.KindAsNeeded}

	ws := Collect(rec, nil, 0, 30, dosing.UnitTablet, Options{})
	if severityOf(ws, TypeAmbiguousSIG) != SeverityInfo {
		t.Errorf("expected info ambiguous_sig, got %+v", ws)
	}

	limit := 6.0
	rec.Frequency.MaxPerDay = &limit
	if ws := Collect(rec, nil, 0, 30, dosing.UnitTablet, Options{}); has(ws, TypeAmbiguousSIG) {
		t.Error("capped PRN must not be flagged ambiguous")
	}
}

func TestCollectDoseRangeWording(t *testing.T) {
	rec := confidentRecord()
	rec.DoseRange = &dosing.DoseRange{Min: 1, Max: 2}

	parsed := Collect(rec, nil, 0, 30, dosing.UnitTablet, Options{})
	inferred := Collect(rec, nil, 0, 30, dosing.UnitTablet, Options{DoseRangeInferred: true})

	if !has(parsed, TypeDoseRangeAssumed) || !has(inferred, TypeDoseRangeAssumed) {
		t.Fatal("expected dose_range_assumption in both cases")
	}
	var parsedMsg, inferredMsg string
	for _, w := range parsed {
		if w.Type == TypeDoseRangeAssumed {
			parsedMsg = w.Message
		}
	}
	for _, w := range inferred {
		if w.Type == TypeDoseRangeAssumed {
			inferredMsg = w.Message
		}
	}
	if parsedMsg == inferredMsg {
		t.Error("inferred ranges must be worded differently from parsed ones")
	}
}

func TestCollectFillDifference(t *testing.T) {
	rec := confidentRecord()

	// 75 dispensed against 60 needed: +15 > 0.1*60, overfill fires.
	ws := Collect(rec, nil, 15, 60, dosing.UnitTablet, Options{})
	if severityOf(ws, TypeOverfill) != SeverityWarning {
		t.Errorf("expected overfill warning, got %+v", ws)
	}

	// Small overfill within tolerance stays quiet.
	if ws := Collect(rec, nil, 5, 60, dosing.UnitTablet, Options{}); has(ws, TypeOverfill) {
		t.Error("overfill within tolerance must not warn")
	}

	// Any underfill is an error.
	ws = Collect(rec, nil, -3, 60, dosing.UnitTablet, Options{})
	if severityOf(ws, TypeUnderfill) != SeverityError {
		t.Errorf("expected underfill error, got %+v", ws)
	}
}

func TestCollectPassesSelectionWarningsThrough(t *testing.T) {
	rec := confidentRecord()
	fromSelector := []Warning{
		{Type: TypePackageCombination, Severity: SeverityInfo, Message: "two package sizes combined"},
		{Type: TypePartialFill, Severity: SeverityWarning, Message: "last package opened", RelatedNDC: "68180051201"},
	}

	ws := Collect(rec, fromSelector, 0, 30, dosing.UnitTablet, Options{})
	if !has(ws, TypePackageCombination) || !has(ws, TypePartialFill) {
		t.Fatalf("selection warnings must pass through verbatim, got %+v", ws)
	}
	for _, w := range ws {
		if w.Type == TypePartialFill && w.RelatedNDC != "68180051201" {
			t.Error("pass-through must not rewrite fields")
		}
	}
}

func TestCollectScenarioRangePlusPRN(t *testing.T) {
	// "1-2 tablets every 4 hours as needed": both dose_range_assumption and
	// ambiguous_sig must be present.
	rec := confidentRecord()
	rec.Frequency = dosing.Frequency{Kind: dosing.KindAsNeeded}
	rec.DoseRange = &dosing.DoseRange{Min: 1, Max: 2}

	ws := Collect(rec, nil, 0, 40, dosing.UnitTablet, Options{DoseRangeInferred: true})
	if !has(ws, TypeDoseRangeAssumed) || !has(ws, TypeAmbiguousSIG) {
		t.Errorf("expected both range and ambiguity warnings, got %+v", ws)
	}
}
