// Package dosing models structured dosing instructions parsed from free-text
// SIGs and derives dispense quantities from them.
package dosing

import (
	"fmt"
)

// Unit is a dispensing unit.
type Unit string

const (
	UnitTablet      Unit = "tablet"
	UnitCapsule     Unit = "capsule"
	UnitML          Unit = "mL"
	UnitUnit        Unit = "unit"
	UnitMG          Unit = "mg"
	UnitG           Unit = "g"
	UnitPatch       Unit = "patch"
	UnitSpray       Unit = "spray"
	UnitPuff        Unit = "puff"
	UnitDrop        Unit = "drop"
	UnitSuppository Unit = "suppository"
	UnitApplication Unit = "application"
)

var validUnits = map[Unit]bool{
	UnitTablet: true, UnitCapsule: true, UnitML: true, UnitUnit: true,
	UnitMG: true, UnitG: true, UnitPatch: true, UnitSpray: true,
	UnitPuff: true, UnitDrop: true, UnitSuppository: true, UnitApplication: true,
}

// Route is the administration route.
type Route string

const (
	RouteOral       Route = "oral"
	RouteSublingual Route = "sublingual"
	RouteTopical    Route = "topical"
	RouteInhaled    Route = "inhaled"
	RouteNasal      Route = "nasal"
	RouteOphthalmic Route = "ophthalmic"
	RouteOtic       Route = "otic"
	RouteRectal     Route = "rectal"
	RouteVaginal    Route = "vaginal"
	RouteInjection  Route = "injection"
	RouteTransderm  Route = "transdermal"
)

// FrequencyKind discriminates the frequency variants.
type FrequencyKind string

const (
	KindTimesPerDay    FrequencyKind = "times_per_day"
	KindTimesPerPeriod FrequencyKind = "times_per_period"
	KindSpecificTimes  FrequencyKind = "specific_times"
	KindAsNeeded       FrequencyKind = "as_needed"
)

// PeriodUnit is the period for times_per_period frequencies.
type PeriodUnit string

const (
	PeriodHour PeriodUnit = "hour"
	PeriodDay  PeriodUnit = "day"
	PeriodWeek PeriodUnit = "week"
)

// Frequency is a tagged union over the four dosing-frequency variants.
// Only the fields for the active Kind are meaningful.
type Frequency struct {
	Kind FrequencyKind `json:"kind"`
	// Value is the count for times_per_day, or the period divisor for
	// times_per_period (e.g. every 4 hours -> Value=4, Period=hour).
	Value  float64    `json:"value,omitempty"`
	Period PeriodUnit `json:"period,omitempty"`
	// Times holds clock labels for specific_times (e.g. ["08:00","20:00"]).
	Times []string `json:"times,omitempty"`
	// MaxPerDay is the PRN ceiling for as_needed; nil means the prescriber
	// gave no cap and the conservative default applies.
	MaxPerDay *float64 `json:"maxPerDay,omitempty"`
}

// Validate checks internal consistency of the active variant.
func (f Frequency) Validate() error {
	switch f.Kind {
	case KindTimesPerDay:
		if f.Value <= 0 {
			return fmt.Errorf("times_per_day requires a positive value, got %v", f.Value)
		}
	case KindTimesPerPeriod:
		if f.Value <= 0 {
			return fmt.Errorf("times_per_period requires a positive value, got %v", f.Value)
		}
		switch f.Period {
		case PeriodHour, PeriodDay, PeriodWeek:
		default:
			return fmt.Errorf("unknown period %q", f.Period)
		}
	case KindSpecificTimes:
		if len(f.Times) == 0 {
			return fmt.Errorf("specific_times requires at least one time")
		}
	case KindAsNeeded:
		if f.MaxPerDay != nil && *f.MaxPerDay <= 0 {
			return fmt.Errorf("as_needed maxPerDay must be positive, got %v", *f.MaxPerDay)
		}
	default:
		return fmt.Errorf("unknown frequency kind %q", f.Kind)
	}
	return nil
}

// DoseRange is an inclusive dose interval in the record's unit.
type DoseRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ScheduleEntry is one line of a variable-dose regimen (e.g. insulin sliding scale).
type ScheduleEntry struct {
	Dose              float64 `json:"dose"`
	OccurrencesPerDay float64 `json:"occurrencesPerDay"`
	Label             string  `json:"label,omitempty"`
}

// Record is a structured dosing instruction produced by the SIG parser.
// Records are immutable after creation; range enrichment builds a copy.
type Record struct {
	Dose                float64         `json:"dose"`
	Unit                Unit            `json:"unit"`
	Frequency           Frequency       `json:"frequency"`
	DurationDays        int             `json:"durationDays,omitempty"`
	Route               Route           `json:"route,omitempty"`
	SpecialInstructions []string        `json:"specialInstructions,omitempty"`
	DoseRange           *DoseRange      `json:"doseRange,omitempty"`
	DoseSchedule        []ScheduleEntry `json:"doseSchedule,omitempty"`
	Confidence          float64         `json:"confidence"`
	Reasoning           string          `json:"reasoning,omitempty"`
	OriginalText        string          `json:"originalText"`
}

// Validate checks that the parsed record is internally coherent.
func (r *Record) Validate() error {
	if r.Dose <= 0 {
		return fmt.Errorf("dose must be positive, got %v", r.Dose)
	}
	if !validUnits[r.Unit] {
		return fmt.Errorf("unknown dispensing unit %q", r.Unit)
	}
	if err := r.Frequency.Validate(); err != nil {
		return fmt.Errorf("frequency: %w", err)
	}
	if r.DurationDays < 0 {
		return fmt.Errorf("duration must be non-negative, got %d", r.DurationDays)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %v", r.Confidence)
	}
	if r.DoseRange != nil {
		if r.DoseRange.Min <= 0 || r.DoseRange.Max < r.DoseRange.Min {
			return fmt.Errorf("invalid dose range %v-%v", r.DoseRange.Min, r.DoseRange.Max)
		}
	}
	for i, e := range r.DoseSchedule {
		if e.Dose <= 0 {
			return fmt.Errorf("schedule entry %d: dose must be positive, got %v", i, e.Dose)
		}
	}
	return nil
}

// WithDoseRange returns a copy of the record enriched with the given range.
func (r *Record) WithDoseRange(dr *DoseRange) *Record {
	clone := *r
	clone.DoseRange = dr
	return &clone
}
