package calc

import (
	"strings"

	"github.com/pharmetric/rxcalc/internal/domain/catalog"
	"github.com/pharmetric/rxcalc/internal/rxerr"
)

const (
	maxDrugNameLen = 200
	maxSIGLen      = 500
	maxDaysSupply  = 365
)

// PrescriptionInput is the immutable request created at the system boundary.
type PrescriptionInput struct {
	DrugName   string `json:"drugName"`
	NDC        string `json:"ndc,omitempty"`
	SIG        string `json:"sig"`
	DaysSupply int    `json:"daysSupply"`
}

// Validate checks the input once at the boundary and returns a typed
// validation error describing the first problem found.
func (in PrescriptionInput) Validate() *rxerr.Error {
	if strings.TrimSpace(in.DrugName) == "" {
		return rxerr.New(rxerr.CodeValidation, "drugName is required")
	}
	if len(in.DrugName) > maxDrugNameLen {
		return rxerr.Newf(rxerr.CodeValidation, "drugName exceeds %d characters", maxDrugNameLen)
	}
	if strings.TrimSpace(in.SIG) == "" {
		return rxerr.New(rxerr.CodeValidation, "sig is required")
	}
	if len(in.SIG) > maxSIGLen {
		return rxerr.Newf(rxerr.CodeValidation, "sig exceeds %d characters", maxSIGLen)
	}
	if in.DaysSupply < 1 || in.DaysSupply > maxDaysSupply {
		return rxerr.Newf(rxerr.CodeValidation, "daysSupply must be between 1 and %d, got %d", maxDaysSupply, in.DaysSupply)
	}
	if in.NDC != "" {
		if _, err := catalog.NormalizeNDC(in.NDC); err != nil {
			return rxerr.Wrap(rxerr.CodeValidation, "ndc must be a valid 11-digit NDC", err)
		}
	}
	return nil
}

// NormalizedNDC returns the 11-digit form of the optional NDC hint, or empty.
func (in PrescriptionInput) NormalizedNDC() string {
	if in.NDC == "" {
		return ""
	}
	ndc, err := catalog.NormalizeNDC(in.NDC)
	if err != nil {
		return ""
	}
	return ndc
}
