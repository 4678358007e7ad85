package dosing

import (
	"regexp"
	"strconv"
)

// rangePattern matches "1-2 tablets", "1 - 2 capsules", "0.5 to 1 mL" style
// spans in SIG text. The trailing unit word is required so frequency spans
// like "every 4-6 hours" are never read as dose ranges.
var rangePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:-|–|to)\s*(\d+(?:\.\d+)?)\s*(?i:tablets?|capsules?|ml|units?|mg|g|patch(?:es)?|sprays?|puffs?|drops?|suppositor(?:y|ies)|applications?)\b`)

// InferDoseRange scans free dosing text for a "min-max unit" span the parser
// did not structure. It returns the range and true when a plausible span is
// found; inverted or non-positive pairs are rejected.
func InferDoseRange(text string) (*DoseRange, bool) {
	m := rangePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}

	min, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, false
	}
	max, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil, false
	}
	if min <= 0 || max <= min {
		return nil, false
	}

	return &DoseRange{Min: min, Max: max}, true
}
