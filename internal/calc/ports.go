// Package calc orchestrates the prescription quantity calculation pipeline:
// SIG parsing, drug-name normalization, candidate filtering, quantity
// derivation, package selection and warning synthesis.
package calc

import (
	"context"

	"github.com/pharmetric/rxcalc/internal/domain/catalog"
	"github.com/pharmetric/rxcalc/internal/domain/dosing"
	"github.com/pharmetric/rxcalc/internal/domain/warning"
	"github.com/pharmetric/rxcalc/internal/rxerr"
)

// SIGParser interprets free-text dosing instructions into structured records.
// Implementations are LLM-backed and therefore non-deterministic; tests
// substitute stubs.
type SIGParser interface {
	ParseDosing(ctx context.Context, text string, daysSupply int) (*dosing.Record, error)
}

// NormalizedDrug is a canonical drug identity from the terminology service.
type NormalizedDrug struct {
	RxCUI         string `json:"rxcui"`
	CanonicalName string `json:"canonicalName"`
}

// DrugNormalizer resolves free-text drug names to canonical identities.
type DrugNormalizer interface {
	NormalizeDrugName(ctx context.Context, name string) (*NormalizedDrug, error)
}

// PackageCatalog returns available manufacturer packages for a drug name.
type PackageCatalog interface {
	LookupPackages(ctx context.Context, drugName string) ([]catalog.Package, error)
}

// SelectionRequest carries the candidate set and dosing context for the
// package-selection step.
type SelectionRequest struct {
	Candidates     []catalog.Package
	QuantityNeeded int64
	Unit           dosing.Unit
	Dosing         *dosing.Record
	// PreferredNDC is the normalized caller-supplied NDC, when present.
	PreferredNDC string
}

// SelectionResult is the outcome of the package-selection step.
type SelectionResult struct {
	Selected  []catalog.Selected `json:"selected"`
	Warnings  []warning.Warning  `json:"warnings"`
	Reasoning string             `json:"reasoning"`
}

// PackageSelector picks packages from a candidate set to cover the needed
// quantity.
type PackageSelector interface {
	SelectPackages(ctx context.Context, req SelectionRequest) (*SelectionResult, error)
}

// Advice is a human-readable failure explanation produced after the fact.
type Advice struct {
	Explanation  string   `json:"explanation"`
	Suggestions  []string `json:"suggestions"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// AdviceContext hands the advisor whatever the failed run accumulated so it
// can suggest fixes without re-deriving state.
type AdviceContext struct {
	Input   PrescriptionInput `json:"input"`
	Partial Context           `json:"partial"`
}

// ErrorAdvisor enriches terminal failures with suggestions. Invoked only
// after a failure; its own errors are logged and never escalated.
type ErrorAdvisor interface {
	AdviseOnError(ctx context.Context, derr *rxerr.Error, advCtx AdviceContext) (*Advice, error)
}
