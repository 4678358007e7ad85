package calc

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pharmetric/rxcalc/internal/domain/catalog"
	"github.com/pharmetric/rxcalc/internal/domain/dosing"
	"github.com/pharmetric/rxcalc/internal/domain/drugmatch"
	"github.com/pharmetric/rxcalc/internal/domain/warning"
	"github.com/pharmetric/rxcalc/internal/rxerr"
)

// StrengthPolicy controls what happens when no candidate matches the
// requested strength exactly.
type StrengthPolicy string

const (
	// StrengthPolicyWarn widens the search and flags the mismatch.
	StrengthPolicyWarn StrengthPolicy = "warn"
	// StrengthPolicyStrict fails the calculation instead of widening.
	StrengthPolicyStrict StrengthPolicy = "strict"
)

// Deps wires the calculator's collaborators.
type Deps struct {
	Parser     SIGParser
	Normalizer DrugNormalizer
	Catalog    PackageCatalog
	Selector   PackageSelector

	DosingPolicy   dosing.Policy
	StrengthPolicy StrengthPolicy
	Logger         *zap.Logger
}

// Calculator runs the calculation pipeline. It holds no per-request state;
// one instance serves concurrent calculations.
type Calculator struct {
	parser         SIGParser
	normalizer     DrugNormalizer
	catalog        PackageCatalog
	selector       PackageSelector
	dosingPolicy   dosing.Policy
	strengthPolicy StrengthPolicy
	logger         *zap.Logger
	tracer         trace.Tracer
}

// New creates a calculator from its dependencies.
func New(deps Deps) (*Calculator, error) {
	if deps.Parser == nil || deps.Catalog == nil || deps.Selector == nil {
		return nil, errors.New("parser, catalog and selector are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.DosingPolicy.PRNPerDay <= 0 {
		deps.DosingPolicy = dosing.DefaultPolicy()
	}
	if deps.StrengthPolicy == "" {
		deps.StrengthPolicy = StrengthPolicyWarn
	}
	return &Calculator{
		parser:         deps.Parser,
		normalizer:     deps.Normalizer,
		catalog:        deps.Catalog,
		selector:       deps.Selector,
		dosingPolicy:   deps.DosingPolicy,
		strengthPolicy: deps.StrengthPolicy,
		logger:         deps.Logger,
		tracer:         otel.Tracer("calculator"),
	}, nil
}

// Calculate runs the full pipeline for one prescription. On failure the
// returned error is a *Failure carrying the accumulated partial context.
func (c *Calculator) Calculate(ctx context.Context, input PrescriptionInput) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "calculate_prescription",
		trace.WithAttributes(attribute.Int("days_supply", input.DaysSupply)))
	defer span.End()

	cctx := Context{}
	fail := func(derr *rxerr.Error) (*Result, error) {
		span.SetAttributes(attribute.String("error_code", string(derr.Code)))
		span.RecordError(derr)
		return nil, &Failure{Err: derr, Context: cctx}
	}

	// Step 1: boundary validation.
	if derr := input.Validate(); derr != nil {
		return fail(derr)
	}

	// Step 2: split the requested name into base + strength (pure).
	baseName, requestedStrength := drugmatch.SplitStrength(input.DrugName)

	// Step 3: parse the SIG.
	rec, err := c.parser.ParseDosing(ctx, input.SIG, input.DaysSupply)
	if err != nil {
		return fail(asDomain(err, rxerr.CodeAIService, "dosing parser failed"))
	}
	if rec == nil || rec.Validate() != nil {
		return fail(rxerr.New(rxerr.CodeInvalidSIG, "the dosing instruction could not be interpreted"))
	}

	// Step 4: enrich with an inferred dose range when the parser omitted one.
	rangeInferred := false
	if rec.DoseRange == nil {
		text := rec.OriginalText
		if text == "" {
			text = input.SIG
		}
		if dr, ok := dosing.InferDoseRange(text); ok {
			rec = rec.WithDoseRange(dr)
			rangeInferred = true
		}
	}
	cctx.ParsedSIG = rec
	cctx.DoseRangeInferred = rangeInferred

	// Step 5: normalize the drug name, best effort.
	searchName := input.DrugName
	var rxcui string
	var pipelineWarnings []warning.Warning
	if c.normalizer != nil {
		if nd, nerr := c.normalizer.NormalizeDrugName(ctx, input.DrugName); nerr != nil {
			c.logger.Warn("drug normalization failed, continuing with raw name",
				zap.String("drug_name", input.DrugName),
				zap.Error(nerr))
			pipelineWarnings = append(pipelineWarnings, warning.Warning{
				Type:     warning.TypeRxCUINotFound,
				Severity: warning.SeverityInfo,
				Message:  "The drug name could not be matched to a canonical concept; the name was used as written.",
			})
		} else {
			rxcui = nd.RxCUI
			cctx.RxCUI = rxcui
			if nd.CanonicalName != "" {
				searchName = nd.CanonicalName
			}
		}
	}

	// Step 6: fetch candidates, falling back to the raw name once if the
	// canonical-name query fails.
	pkgs, err := c.catalog.LookupPackages(ctx, searchName)
	if err != nil && !strings.EqualFold(searchName, input.DrugName) {
		c.logger.Warn("catalog lookup with canonical name failed, retrying with raw name",
			zap.String("canonical", searchName),
			zap.Error(err))
		pkgs, err = c.catalog.LookupPackages(ctx, input.DrugName)
	}
	if err != nil {
		return fail(asDomain(err, rxerr.CodeExternalAPI, "package catalog lookup failed"))
	}

	// Step 7: active packages only.
	active := catalog.FilterActive(pkgs)
	if len(active) == 0 {
		return fail(rxerr.Newf(rxerr.CodeNDCNotFound, "no actively marketed packages found for %q", input.DrugName))
	}
	if dropped := len(pkgs) - len(active); dropped > 0 {
		pipelineWarnings = append(pipelineWarnings, warning.Warning{
			Type:     warning.TypeInactiveExcluded,
			Severity: warning.SeverityInfo,
			Message:  "Some catalog packages were excluded because they are no longer actively marketed.",
		})
	}

	// Step 8: ingredient and strength filtering, with fallback.
	candidates := drugmatch.FilterByDrugName(active, drugmatch.NormalizeForMatch(baseName))
	if len(candidates) == 0 {
		candidates = active
	}
	if requestedStrength != "" {
		byStrength := drugmatch.FilterByStrength(candidates, requestedStrength)
		switch {
		case len(byStrength) > 0:
			candidates = byStrength
		case c.strengthPolicy == StrengthPolicyStrict:
			return fail(rxerr.Newf(rxerr.CodeNDCNotFound, "no packages match the requested strength %s", requestedStrength))
		default:
			pipelineWarnings = append(pipelineWarnings, warning.Warning{
				Type:       warning.TypeStrengthMismatch,
				Severity:   warning.SeverityWarning,
				Message:    "No package matches the requested strength " + requestedStrength + "; the search was widened to all strengths.",
				Suggestion: "Verify the selected package strength against the prescription.",
			})
		}
	}

	// Step 9: derive the quantity.
	quantity := c.dosingPolicy.DeriveQuantity(rec, input.DaysSupply)
	if quantity <= 0 {
		return fail(rxerr.New(rxerr.CodeInvalidSIG, "the dosing instruction yields a non-positive quantity"))
	}
	cctx.QuantityNeeded = quantity
	span.SetAttributes(attribute.Int64("quantity_needed", quantity))

	// Step 10: select packages.
	selection, err := c.selector.SelectPackages(ctx, SelectionRequest{
		Candidates:     candidates,
		QuantityNeeded: quantity,
		Unit:           rec.Unit,
		Dosing:         rec,
		PreferredNDC:   input.NormalizedNDC(),
	})
	if err != nil {
		return fail(asDomain(err, rxerr.CodeAIService, "package selection failed"))
	}
	if selection == nil || len(selection.Selected) == 0 {
		return fail(rxerr.New(rxerr.CodeAIService, "the package selector returned no packages"))
	}

	// Step 11: totals. TotalUnits is re-derived so the size*count invariant
	// holds even if the selector misreported it.
	selected := make([]catalog.Selected, len(selection.Selected))
	var dispensed float64
	for i, s := range selection.Selected {
		if s.Count < 1 {
			s.Count = 1
		}
		s.TotalUnits = s.Package.PackageSize * float64(s.Count)
		selected[i] = s
		dispensed += s.TotalUnits
	}
	fillDifference := dispensed - float64(quantity)

	// Step 12: warnings.
	warnings := warning.Collect(rec,
		append(pipelineWarnings, selection.Warnings...),
		fillDifference, float64(quantity), rec.Unit,
		warning.Options{DoseRangeInferred: rangeInferred})

	c.logger.Info("calculation complete",
		zap.Int64("quantity_needed", quantity),
		zap.Float64("dispensed", dispensed),
		zap.Float64("fill_difference", fillDifference),
		zap.Int("selected_packages", len(selected)),
		zap.Int("warnings", len(warnings)))

	// Step 13: assemble.
	return &Result{
		Dosing:              rec,
		TotalQuantityNeeded: quantity,
		Unit:                rec.Unit,
		SelectedPackages:    selected,
		TotalUnitsDispensed: dispensed,
		FillDifference:      fillDifference,
		Reasoning:           joinReasoning(rec.Reasoning, selection.Reasoning),
		Warnings:            warnings,
		RxCUI:               rxcui,
		Candidates:          candidates,
	}, nil
}

// asDomain passes typed domain errors through untouched and wraps anything
// else under the given fallback code.
func asDomain(err error, fallback rxerr.Code, msg string) *rxerr.Error {
	var derr *rxerr.Error
	if errors.As(err, &derr) {
		return derr
	}
	return rxerr.Wrap(fallback, msg, err)
}

func joinReasoning(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
