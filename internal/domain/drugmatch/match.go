// Package drugmatch provides pure matching of free-text drug names and
// strengths against catalog packages.
package drugmatch

import (
	"regexp"
	"strings"

	"github.com/pharmetric/rxcalc/internal/domain/catalog"
)

// strengthToken matches an embedded or trailing strength such as "500mg",
// "0.5 mL", "100 units" or "70 IU".
var strengthToken = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(mcg|mg|g|ml|units?|iu)\b`)

var nonAlpha = regexp.MustCompile(`[^a-z]+`)

var whitespace = regexp.MustCompile(`\s+`)

// SplitStrength separates a free-text drug name into its base name and a
// normalized strength token. The strength is empty when none is embedded.
//
//	"Lisinopril 10mg"  -> ("Lisinopril", "10mg")
//	"metFORMIN 500 MG" -> ("metFORMIN", "500mg")
func SplitStrength(name string) (base, strength string) {
	m := strengthToken.FindStringSubmatchIndex(name)
	if m == nil {
		return strings.TrimSpace(name), ""
	}

	value := name[m[2]:m[3]]
	unit := strings.ToLower(name[m[4]:m[5]])
	base = strings.TrimSpace(name[:m[0]] + name[m[1]:])
	return base, value + unit
}

// NormalizeForMatch reduces a drug name to a comparable token: lowercase,
// strength tokens removed, everything non-alphabetic collapsed to single
// spaces.
func NormalizeForMatch(name string) string {
	s := strings.ToLower(name)
	s = strengthToken.ReplaceAllString(s, " ")
	s = nonAlpha.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// StrengthsMatch compares two strength expressions ignoring case and internal
// whitespace, so "500mg" == "500 MG" == "500Mg". The comparison is symmetric.
func StrengthsMatch(requested, candidate string) bool {
	a := canonicalStrength(requested)
	b := canonicalStrength(candidate)
	if a == "" || b == "" {
		return false
	}
	return a == b
}

func canonicalStrength(s string) string {
	s = strings.ToLower(s)
	s = whitespace.ReplaceAllString(s, "")
	// The NDC directory expresses per-unit strengths as "10 mg/1".
	s = strings.TrimSuffix(s, "/1")
	return s
}

// MultiIngredient reports whether a raw generic-name field looks like a
// combination product. Brand names are exempt from this check since they
// rarely encode combination status.
func MultiIngredient(rawGenericName string) bool {
	lower := strings.ToLower(rawGenericName)
	if strings.Contains(lower, "/") || strings.Contains(lower, ",") {
		return true
	}
	return strings.Contains(lower, " and ") || strings.Contains(lower, " with ")
}

// FilterByDrugName keeps candidates whose normalized generic name contains
// the requested token (single-ingredient products only), or whose normalized
// brand name contains it. An empty requested token keeps everything.
//
// Ingredient filtering is an optimization, not a hard gate: when the result
// is empty the caller falls back to the unfiltered set.
func FilterByDrugName(candidates []catalog.Package, normalizedRequested string) []catalog.Package {
	if normalizedRequested == "" {
		return candidates
	}

	out := make([]catalog.Package, 0, len(candidates))
	for _, p := range candidates {
		generic := NormalizeForMatch(p.GenericName)
		if strings.Contains(generic, normalizedRequested) && !MultiIngredient(p.GenericName) {
			out = append(out, p)
			continue
		}
		if p.BrandName != "" && strings.Contains(NormalizeForMatch(p.BrandName), normalizedRequested) {
			out = append(out, p)
		}
	}
	return out
}

// FilterByStrength keeps candidates whose strength matches the requested
// token. An empty requested strength keeps everything.
func FilterByStrength(candidates []catalog.Package, requestedStrength string) []catalog.Package {
	if requestedStrength == "" {
		return candidates
	}

	out := make([]catalog.Package, 0, len(candidates))
	for _, p := range candidates {
		if StrengthsMatch(requestedStrength, p.Strength) {
			out = append(out, p)
		}
	}
	return out
}
