package calc

import (
	"errors"

	"github.com/pharmetric/rxcalc/internal/domain/catalog"
	"github.com/pharmetric/rxcalc/internal/domain/dosing"
	"github.com/pharmetric/rxcalc/internal/domain/warning"
	"github.com/pharmetric/rxcalc/internal/rxerr"
)

// Result aggregates everything the pipeline computed for one prescription.
type Result struct {
	Dosing              *dosing.Record     `json:"dosing"`
	TotalQuantityNeeded int64              `json:"totalQuantityNeeded"`
	Unit                dosing.Unit        `json:"unit"`
	SelectedPackages    []catalog.Selected `json:"selectedPackages"`
	TotalUnitsDispensed float64            `json:"totalUnitsDispensed"`
	// FillDifference is dispensed minus needed: positive means overfill,
	// negative means underfill.
	FillDifference float64            `json:"fillDifference"`
	Reasoning      string             `json:"reasoning"`
	Warnings       []warning.Warning  `json:"warnings"`
	RxCUI          string             `json:"rxcui,omitempty"`
	Candidates     []catalog.Package  `json:"candidatePackages,omitempty"`
}

// Context is the partial state accumulated during a failed run, attached to
// terminal errors for diagnostics and advice. It never appears on the
// success path.
type Context struct {
	ParsedSIG         *dosing.Record `json:"parsedSig,omitempty"`
	RxCUI             string         `json:"rxcui,omitempty"`
	QuantityNeeded    int64          `json:"quantityNeeded,omitempty"`
	DoseRangeInferred bool           `json:"doseRangeInferred,omitempty"`
}

// Failure couples a terminal domain error with whatever context the pipeline
// accumulated before failing.
type Failure struct {
	Err     *rxerr.Error
	Context Context
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a pipeline failure from err, if present.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
