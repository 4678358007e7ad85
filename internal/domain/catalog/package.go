// Package catalog models manufacturer drug packages as read-only snapshots
// sourced from the NDC directory.
package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Status is the marketing status of a package.
type Status string

const (
	StatusActive       Status = "active"
	StatusInactive     Status = "inactive"
	StatusDiscontinued Status = "discontinued"
)

// DosageForm is the physical form of the product.
type DosageForm string

const (
	FormTablet     DosageForm = "tablet"
	FormCapsule    DosageForm = "capsule"
	FormSolution   DosageForm = "solution"
	FormSuspension DosageForm = "suspension"
	FormCream      DosageForm = "cream"
	FormOintment   DosageForm = "ointment"
	FormPatch      DosageForm = "patch"
	FormInhaler    DosageForm = "inhaler"
	FormInjection  DosageForm = "injection"
	FormSpray      DosageForm = "spray"
	FormDrops      DosageForm = "drops"
	FormOther      DosageForm = "other"
)

// Package is one manufacturer package from the catalog. Snapshots are never
// mutated by the pipeline.
type Package struct {
	NDC                string     `json:"ndc"`
	PackageSize        float64    `json:"packageSize"`
	DosageForm         DosageForm `json:"dosageForm"`
	Strength           string     `json:"strength"`
	Manufacturer       string     `json:"manufacturer"`
	Status             Status     `json:"status"`
	BrandName          string     `json:"brandName,omitempty"`
	GenericName        string     `json:"genericName"`
	MarketingStart     *time.Time `json:"marketingStart,omitempty"`
	MarketingEnd       *time.Time `json:"marketingEnd,omitempty"`
	PackageDescription string     `json:"packageDescription,omitempty"`
}

// Selected pairs a catalog package with a dispense count.
// TotalUnits must always equal PackageSize * Count.
type Selected struct {
	Package    Package `json:"package"`
	Count      int64   `json:"quantity"`
	TotalUnits float64 `json:"totalUnits"`
}

// Consistent reports whether the TotalUnits invariant holds.
func (s Selected) Consistent() bool {
	return s.Count >= 1 && s.TotalUnits == s.Package.PackageSize*float64(s.Count)
}

// FilterActive keeps only actively marketed packages.
func FilterActive(pkgs []Package) []Package {
	out := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		if p.Status == StatusActive {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeNDC converts an NDC to the 11-digit billing format.
//
// Dashed 10-digit NDCs are zero-padded by segment (4-4-2 -> 5-4-2,
// 5-3-2 -> 5-4-2, 5-4-1 -> 5-4-2). Undashed input must already be 11 digits.
func NormalizeNDC(ndc string) (string, error) {
	trimmed := strings.TrimSpace(ndc)
	if trimmed == "" {
		return "", fmt.Errorf("empty NDC")
	}

	segments := strings.Split(trimmed, "-")
	if len(segments) == 3 {
		labeler, product, pack := segments[0], segments[1], segments[2]
		if !allDigits(labeler) || !allDigits(product) || !allDigits(pack) {
			return "", fmt.Errorf("non-numeric NDC %q", ndc)
		}
		switch {
		case len(labeler) == 4 && len(product) == 4 && len(pack) == 2:
			labeler = "0" + labeler
		case len(labeler) == 5 && len(product) == 3 && len(pack) == 2:
			product = "0" + product
		case len(labeler) == 5 && len(product) == 4 && len(pack) == 1:
			pack = "0" + pack
		case len(labeler) == 5 && len(product) == 4 && len(pack) == 2:
			// Already 11 digits.
		default:
			return "", fmt.Errorf("unrecognized NDC segment lengths in %q", ndc)
		}
		return labeler + product + pack, nil
	}

	if !allDigits(trimmed) {
		return "", fmt.Errorf("non-numeric NDC %q", ndc)
	}
	if len(trimmed) != 11 {
		return "", fmt.Errorf("NDC must be 11 digits, got %d", len(trimmed))
	}
	return trimmed, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
