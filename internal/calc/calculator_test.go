package calc

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/pharmetric/rxcalc/internal/domain/catalog"
	"github.com/pharmetric/rxcalc/internal/domain/dosing"
	"github.com/pharmetric/rxcalc/internal/domain/warning"
	"github.com/pharmetric/rxcalc/internal/rxerr"
)

type stubParser struct {
	rec *dosing.Record
	err error
}

func (s *stubParser) ParseDosing(ctx context.Context, text string, daysSupply int) (*dosing.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec := *s.rec
	rec.OriginalText = text
	return &rec, nil
}

type stubNormalizer struct {
	nd    *NormalizedDrug
	err   error
	calls int
}

func (s *stubNormalizer) NormalizeDrugName(ctx context.Context, name string) (*NormalizedDrug, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.nd, nil
}

type stubCatalog struct {
	pkgs    []catalog.Package
	err     error
	errFor  string
	queries []string
}

func (s *stubCatalog) LookupPackages(ctx context.Context, drugName string) ([]catalog.Package, error) {
	s.queries = append(s.queries, drugName)
	if s.err != nil {
		return nil, s.err
	}
	if s.errFor != "" && drugName == s.errFor {
		return nil, errors.New("catalog timeout")
	}
	return s.pkgs, nil
}

// greedySelector fills the need with as many whole packages of the first
// candidate as required.
type greedySelector struct {
	err      error
	result   *SelectionResult
	lastReq  SelectionRequest
}

func (s *greedySelector) SelectPackages(ctx context.Context, req SelectionRequest) (*SelectionResult, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	pkg := req.Candidates[0]
	count := int64(1)
	for pkg.PackageSize*float64(count) < float64(req.QuantityNeeded) {
		count++
	}
	return &SelectionResult{
		Selected: []catalog.Selected{
			{Package: pkg, Count: count, TotalUnits: pkg.PackageSize * float64(count)},
		},
		Reasoning: "smallest whole-package cover",
	}, nil
}

func onceDaily() *dosing.Record {
	return &dosing.Record{
		Dose:       1,
		Unit:       dosing.UnitTablet,
		Frequency:  dosing.Frequency{Kind: dosing.KindTimesPerDay, Value: 1},
		Confidence: 0.95,
		Reasoning:  "once daily, one tablet per dose",
	}
}

func lisinoprilPackages() []catalog.Package {
	return []catalog.Package{
		{NDC: "68180051201", GenericName: "Lisinopril", Strength: "10 mg/1", PackageSize: 30, Status: catalog.StatusActive},
		{NDC: "68180051301", GenericName: "Lisinopril", Strength: "20 mg/1", PackageSize: 90, Status: catalog.StatusActive},
		{NDC: "00000000000", GenericName: "Lisinopril", Strength: "10 mg/1", PackageSize: 100, Status: catalog.StatusInactive},
	}
}

func newTestCalculator(t *testing.T, deps Deps) *Calculator {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	c, err := New(deps)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return c
}

func hasWarning(ws []warning.Warning, typ warning.Type) bool {
	for _, w := range ws {
		if w.Type == typ {
			return true
		}
	}
	return false
}

func TestCalculateHappyPath(t *testing.T) {
	cat := &stubCatalog{pkgs: lisinoprilPackages()}
	c := newTestCalculator(t, Deps{
		Parser:     &stubParser{rec: onceDaily()},
		Normalizer: &stubNormalizer{nd: &NormalizedDrug{RxCUI: "314076", CanonicalName: "lisinopril 10 MG Oral Tablet"}},
		Catalog:    cat,
		Selector:   &greedySelector{},
	})

	res, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName:   "Lisinopril 10mg",
		SIG:        "Take 1 tablet by mouth once daily",
		DaysSupply: 30,
	})
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	if res.TotalQuantityNeeded != 30 {
		t.Errorf("quantity = %d, want 30", res.TotalQuantityNeeded)
	}
	if res.TotalUnitsDispensed != 30 || res.FillDifference != 0 {
		t.Errorf("dispensed=%v fill=%v, want 30 and 0", res.TotalUnitsDispensed, res.FillDifference)
	}
	if res.RxCUI != "314076" {
		t.Errorf("rxcui = %q, want 314076", res.RxCUI)
	}
	// Strength filter must have narrowed candidates to the 10 mg package.
	if len(res.Candidates) != 1 || res.Candidates[0].NDC != "68180051201" {
		t.Errorf("candidates = %+v, want only the 10 mg package", res.Candidates)
	}
	// Catalog was queried with the canonical name.
	if len(cat.queries) != 1 || cat.queries[0] != "lisinopril 10 MG Oral Tablet" {
		t.Errorf("catalog queries = %v", cat.queries)
	}
	if hasWarning(res.Warnings, warning.TypeOverfill) || hasWarning(res.Warnings, warning.TypeUnderfill) {
		t.Errorf("exact fill must not warn, got %+v", res.Warnings)
	}
	// One inactive package was present in the catalog response.
	if !hasWarning(res.Warnings, warning.TypeInactiveExcluded) {
		t.Error("expected inactive_packages_excluded info warning")
	}
}

func TestCalculateValidation(t *testing.T) {
	c := newTestCalculator(t, Deps{
		Parser:   &stubParser{rec: onceDaily()},
		Catalog:  &stubCatalog{pkgs: lisinoprilPackages()},
		Selector: &greedySelector{},
	})

	tests := []struct {
		name  string
		input PrescriptionInput
	}{
		{"missing drug name", PrescriptionInput{SIG: "take 1 daily", DaysSupply: 30}},
		{"missing sig", PrescriptionInput{DrugName: "lisinopril", DaysSupply: 30}},
		{"zero days supply", PrescriptionInput{DrugName: "lisinopril", SIG: "take 1 daily"}},
		{"days supply too large", PrescriptionInput{DrugName: "lisinopril", SIG: "take 1 daily", DaysSupply: 366}},
		{"malformed ndc", PrescriptionInput{DrugName: "lisinopril", NDC: "abc", SIG: "take 1 daily", DaysSupply: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Calculate(context.Background(), tt.input)
			f, ok := AsFailure(err)
			if !ok {
				t.Fatalf("expected *Failure, got %v", err)
			}
			if f.Err.Code != rxerr.CodeValidation {
				t.Errorf("code = %v, want VALIDATION_ERROR", f.Err.Code)
			}
			if f.Context.ParsedSIG != nil {
				t.Error("validation failures must carry no parsed context")
			}
		})
	}
}

func TestCalculateParserFailurePropagates(t *testing.T) {
	c := newTestCalculator(t, Deps{
		Parser:   &stubParser{err: rxerr.New(rxerr.CodeAIService, "model returned no content")},
		Catalog:  &stubCatalog{pkgs: lisinoprilPackages()},
		Selector: &greedySelector{},
	})

	_, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName: "lisinopril", SIG: "gibberish", DaysSupply: 30,
	})
	f, ok := AsFailure(err)
	if !ok || f.Err.Code != rxerr.CodeAIService {
		t.Fatalf("expected AI_SERVICE_ERROR failure, got %v", err)
	}
}

func TestCalculateNormalizerFailureIsRecovered(t *testing.T) {
	cat := &stubCatalog{pkgs: lisinoprilPackages()}
	c := newTestCalculator(t, Deps{
		Parser:     &stubParser{rec: onceDaily()},
		Normalizer: &stubNormalizer{err: errors.New("rxnav unavailable")},
		Catalog:    cat,
		Selector:   &greedySelector{},
	})

	res, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName: "Lisinopril 10mg", SIG: "Take 1 tablet once daily", DaysSupply: 30,
	})
	if err != nil {
		t.Fatalf("normalizer failure must not abort the pipeline: %v", err)
	}
	if res.RxCUI != "" {
		t.Error("rxcui must be empty when normalization failed")
	}
	if cat.queries[0] != "Lisinopril 10mg" {
		t.Errorf("catalog must be queried with the raw name, got %q", cat.queries[0])
	}
	if !hasWarning(res.Warnings, warning.TypeRxCUINotFound) {
		t.Error("expected rxcui_not_found info warning")
	}
}

func TestCalculateCanonicalLookupRetriesWithRawName(t *testing.T) {
	cat := &stubCatalog{pkgs: lisinoprilPackages(), errFor: "lisinopril oral tablet"}
	c := newTestCalculator(t, Deps{
		Parser:     &stubParser{rec: onceDaily()},
		Normalizer: &stubNormalizer{nd: &NormalizedDrug{RxCUI: "314076", CanonicalName: "lisinopril oral tablet"}},
		Catalog:    cat,
		Selector:   &greedySelector{},
	})

	_, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName: "Lisinopril 10mg", SIG: "Take 1 tablet once daily", DaysSupply: 30,
	})
	if err != nil {
		t.Fatalf("expected raw-name retry to succeed: %v", err)
	}
	if len(cat.queries) != 2 || cat.queries[1] != "Lisinopril 10mg" {
		t.Errorf("queries = %v, want canonical then raw", cat.queries)
	}
}

func TestCalculateAllInactiveIsTerminal(t *testing.T) {
	inactive := []catalog.Package{
		{NDC: "1", GenericName: "Lisinopril", PackageSize: 30, Status: catalog.StatusInactive},
		{NDC: "2", GenericName: "Lisinopril", PackageSize: 90, Status: catalog.StatusDiscontinued},
	}
	c := newTestCalculator(t, Deps{
		Parser:   &stubParser{rec: onceDaily()},
		Catalog:  &stubCatalog{pkgs: inactive},
		Selector: &greedySelector{},
	})

	_, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName: "lisinopril", SIG: "Take 1 tablet once daily", DaysSupply: 30,
	})
	f, ok := AsFailure(err)
	if !ok || f.Err.Code != rxerr.CodeNDCNotFound {
		t.Fatalf("expected NDC_NOT_FOUND, got %v", err)
	}
	if f.Context.ParsedSIG == nil {
		t.Error("context must carry the parsed SIG accumulated before the failure")
	}
}

func TestCalculateStrengthPolicy(t *testing.T) {
	pkgs := []catalog.Package{
		{NDC: "1", GenericName: "Lisinopril", Strength: "20 mg/1", PackageSize: 30, Status: catalog.StatusActive},
	}

	t.Run("warn widens and flags", func(t *testing.T) {
		c := newTestCalculator(t, Deps{
			Parser:         &stubParser{rec: onceDaily()},
			Catalog:        &stubCatalog{pkgs: pkgs},
			Selector:       &greedySelector{},
			StrengthPolicy: StrengthPolicyWarn,
		})
		res, err := c.Calculate(context.Background(), PrescriptionInput{
			DrugName: "Lisinopril 10mg", SIG: "Take 1 tablet once daily", DaysSupply: 30,
		})
		if err != nil {
			t.Fatalf("warn policy must continue: %v", err)
		}
		if !hasWarning(res.Warnings, warning.TypeStrengthMismatch) {
			t.Error("expected strength_mismatch warning")
		}
		if len(res.Candidates) != 1 {
			t.Error("widened candidate set must be used")
		}
	})

	t.Run("strict fails", func(t *testing.T) {
		c := newTestCalculator(t, Deps{
			Parser:         &stubParser{rec: onceDaily()},
			Catalog:        &stubCatalog{pkgs: pkgs},
			Selector:       &greedySelector{},
			StrengthPolicy: StrengthPolicyStrict,
		})
		_, err := c.Calculate(context.Background(), PrescriptionInput{
			DrugName: "Lisinopril 10mg", SIG: "Take 1 tablet once daily", DaysSupply: 30,
		})
		f, ok := AsFailure(err)
		if !ok || f.Err.Code != rxerr.CodeNDCNotFound {
			t.Fatalf("expected NDC_NOT_FOUND under strict policy, got %v", err)
		}
	})
}

func TestCalculateOverfill(t *testing.T) {
	// Need 60, selector dispenses 75: fillDifference 15 > 0.1*60.
	selector := &greedySelector{result: &SelectionResult{
		Selected: []catalog.Selected{
			{Package: catalog.Package{NDC: "1", PackageSize: 75}, Count: 1, TotalUnits: 75},
		},
	}}
	rec := onceDaily()
	rec.Frequency.Value = 2
	c := newTestCalculator(t, Deps{
		Parser:   &stubParser{rec: rec},
		Catalog:  &stubCatalog{pkgs: lisinoprilPackages()},
		Selector: selector,
	})

	res, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName: "Lisinopril", SIG: "Take 1 tablet twice daily", DaysSupply: 30,
	})
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if res.FillDifference != 15 {
		t.Errorf("fillDifference = %v, want 15", res.FillDifference)
	}
	if !hasWarning(res.Warnings, warning.TypeOverfill) {
		t.Error("expected overfill warning")
	}
}

func TestCalculateFillDifferenceInvariant(t *testing.T) {
	selector := &greedySelector{result: &SelectionResult{
		Selected: []catalog.Selected{
			// TotalUnits deliberately misreported; the pipeline re-derives it.
			{Package: catalog.Package{NDC: "1", PackageSize: 30}, Count: 2, TotalUnits: 999},
			{Package: catalog.Package{NDC: "2", PackageSize: 10}, Count: 1, TotalUnits: 10},
		},
	}}
	c := newTestCalculator(t, Deps{
		Parser:   &stubParser{rec: onceDaily()},
		Catalog:  &stubCatalog{pkgs: lisinoprilPackages()},
		Selector: selector,
	})

	res, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName: "Lisinopril", SIG: "Take 1 tablet once daily", DaysSupply: 30,
	})
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	var sum float64
	for _, s := range res.SelectedPackages {
		if !s.Consistent() {
			t.Errorf("selected package violates totalUnits invariant: %+v", s)
		}
		sum += s.TotalUnits
	}
	if res.TotalUnitsDispensed != sum {
		t.Errorf("dispensed %v != sum of package units %v", res.TotalUnitsDispensed, sum)
	}
	if res.FillDifference != res.TotalUnitsDispensed-float64(res.TotalQuantityNeeded) {
		t.Errorf("fillDifference %v violates dispensed-needed invariant", res.FillDifference)
	}
}

func TestCalculateRangeInferenceScenario(t *testing.T) {
	// Parser produced an as-needed record without a structured range; the
	// "1-2" span in the SIG is inferred, and the PRN default applies:
	// ceil(2 * 4 * 5) = 40.
	rec := &dosing.Record{
		Dose:       1,
		Unit:       dosing.UnitTablet,
		Frequency:  dosing.Frequency{Kind: dosing.KindAsNeeded},
		Confidence: 0.9,
	}
	c := newTestCalculator(t, Deps{
		Parser:   &stubParser{rec: rec},
		Catalog:  &stubCatalog{pkgs: lisinoprilPackages()},
		Selector: &greedySelector{},
	})

	res, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName:   "Lisinopril",
		SIG:        "Take 1-2 tablets every 4 hours as needed for pain",
		DaysSupply: 5,
	})
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if res.TotalQuantityNeeded != 40 {
		t.Errorf("quantity = %d, want 40", res.TotalQuantityNeeded)
	}
	if !hasWarning(res.Warnings, warning.TypeDoseRangeAssumed) {
		t.Error("expected dose_range_assumption warning")
	}
	if !hasWarning(res.Warnings, warning.TypeAmbiguousSIG) {
		t.Error("expected ambiguous_sig warning")
	}
}

func TestCalculateFrequencySpanIsNotADoseRange(t *testing.T) {
	// The "4-6" span describes the interval, not the dose. Nothing may be
	// inferred from it: quantity stays at ceil(1 * 4 * 5) = 20, not 120.
	rec := &dosing.Record{
		Dose:       1,
		Unit:       dosing.UnitTablet,
		Frequency:  dosing.Frequency{Kind: dosing.KindAsNeeded},
		Confidence: 0.9,
	}
	c := newTestCalculator(t, Deps{
		Parser:   &stubParser{rec: rec},
		Catalog:  &stubCatalog{pkgs: lisinoprilPackages()},
		Selector: &greedySelector{},
	})

	res, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName:   "Lisinopril",
		SIG:        "Take 1 tablet every 4-6 hours as needed",
		DaysSupply: 5,
	})
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if res.TotalQuantityNeeded != 20 {
		t.Errorf("quantity = %d, want 20", res.TotalQuantityNeeded)
	}
	if res.Dosing.DoseRange != nil {
		t.Errorf("inferred dose range %+v from a frequency interval", res.Dosing.DoseRange)
	}
	if hasWarning(res.Warnings, warning.TypeDoseRangeAssumed) {
		t.Error("dose_range_assumption warning must not fire without a range")
	}
}

func TestCalculateSelectorFailureCarriesContext(t *testing.T) {
	c := newTestCalculator(t, Deps{
		Parser:   &stubParser{rec: onceDaily()},
		Catalog:  &stubCatalog{pkgs: lisinoprilPackages()},
		Selector: &greedySelector{err: errors.New("model overloaded")},
	})

	_, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName: "Lisinopril", SIG: "Take 1 tablet once daily", DaysSupply: 30,
	})
	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if f.Err.Code != rxerr.CodeAIService {
		t.Errorf("code = %v, want AI_SERVICE_ERROR", f.Err.Code)
	}
	if f.Context.ParsedSIG == nil || f.Context.QuantityNeeded != 30 {
		t.Errorf("context = %+v, want parsed SIG and quantity 30", f.Context)
	}
}

func TestCalculatePreferredNDCIsForwarded(t *testing.T) {
	selector := &greedySelector{}
	c := newTestCalculator(t, Deps{
		Parser:   &stubParser{rec: onceDaily()},
		Catalog:  &stubCatalog{pkgs: lisinoprilPackages()},
		Selector: selector,
	})

	_, err := c.Calculate(context.Background(), PrescriptionInput{
		DrugName:   "Lisinopril",
		NDC:        "68180-0512-01",
		SIG:        "Take 1 tablet once daily",
		DaysSupply: 30,
	})
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if selector.lastReq.PreferredNDC != "68180051201" {
		t.Errorf("preferred NDC = %q, want normalized 68180051201", selector.lastReq.PreferredNDC)
	}
}
