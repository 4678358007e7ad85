package dosing

import (
	"github.com/shopspring/decimal"
)

// DefaultPRNPerDay is the conservative daily cap assumed for as-needed
// dosing when the prescriber gave no maximum.
const DefaultPRNPerDay = 4

// Policy holds the tunable parts of quantity derivation.
type Policy struct {
	// PRNPerDay is the assumed daily occurrences for as_needed frequencies
	// without an explicit maxPerDay.
	PRNPerDay float64
}

// DefaultPolicy returns the safety-conservative defaults.
func DefaultPolicy() Policy {
	return Policy{PRNPerDay: DefaultPRNPerDay}
}

// DeriveQuantity converts a dosing record and a days-supply into the total
// number of dispensing units needed, rounded up to a whole unit.
//
// A detailed dose schedule fully determines daily consumption and takes
// priority over the dose and range fields. Ambiguity always resolves toward
// the higher dose: DoseRange.Max wins over Dose when both are present.
//
// The result is <= 0 only when the record cannot support a quantity at all
// (non-positive inputs or an unrecognized frequency variant); callers treat
// that as an invalid SIG.
func (p Policy) DeriveQuantity(rec *Record, daysSupply int) int64 {
	if rec == nil || daysSupply <= 0 {
		return 0
	}

	days := daysSupply
	if rec.DurationDays > 0 && rec.DurationDays < daysSupply {
		days = rec.DurationDays
	}
	effectiveDays := decimal.NewFromInt(int64(days))

	if len(rec.DoseSchedule) > 0 {
		dailyTotal := decimal.Zero
		for _, entry := range rec.DoseSchedule {
			occ := entry.OccurrencesPerDay
			if occ < 1 {
				occ = 1
			}
			dailyTotal = dailyTotal.Add(
				decimal.NewFromFloat(entry.Dose).Mul(decimal.NewFromFloat(occ)))
		}
		return ceilUnits(dailyTotal.Mul(effectiveDays))
	}

	doseToUse := rec.Dose
	if rec.DoseRange != nil {
		doseToUse = rec.DoseRange.Max
	}
	if doseToUse <= 0 {
		return 0
	}

	perDay, ok := p.dailyCount(rec.Frequency)
	if !ok {
		return 0
	}

	quantity := decimal.NewFromFloat(doseToUse).Mul(perDay).Mul(effectiveDays)
	return ceilUnits(quantity)
}

// dailyCount resolves a frequency variant to administrations per day.
// The default case is the explicit sum-type guard: a variant added to the
// schema without a branch here yields ok=false, not a silent zero dose.
func (p Policy) dailyCount(f Frequency) (decimal.Decimal, bool) {
	switch f.Kind {
	case KindTimesPerDay:
		if f.Value <= 0 {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(f.Value), true
	case KindTimesPerPeriod:
		if f.Value <= 0 {
			return decimal.Zero, false
		}
		v := decimal.NewFromFloat(f.Value)
		switch f.Period {
		case PeriodHour:
			// Every N hours -> 24/N administrations per day.
			return decimal.NewFromInt(24).Div(v), true
		case PeriodDay:
			return v, true
		case PeriodWeek:
			return v.Div(decimal.NewFromInt(7)), true
		default:
			return decimal.Zero, false
		}
	case KindSpecificTimes:
		if len(f.Times) == 0 {
			return decimal.Zero, false
		}
		return decimal.NewFromInt(int64(len(f.Times))), true
	case KindAsNeeded:
		max := p.PRNPerDay
		if max <= 0 {
			max = DefaultPRNPerDay
		}
		if f.MaxPerDay != nil {
			max = *f.MaxPerDay
		}
		if max <= 0 {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(max), true
	default:
		return decimal.Zero, false
	}
}

func ceilUnits(d decimal.Decimal) int64 {
	if d.Sign() <= 0 {
		return 0
	}
	return d.Ceil().IntPart()
}
