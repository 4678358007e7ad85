// Package ndc looks up manufacturer packages in the openFDA NDC directory.
package ndc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pharmetric/rxcalc/internal/domain/catalog"
	"github.com/pharmetric/rxcalc/internal/rxerr"
	"github.com/pharmetric/rxcalc/pkg/cache"
	"github.com/pharmetric/rxcalc/pkg/circuitbreaker"
	"github.com/pharmetric/rxcalc/pkg/httpretry"
)

// DefaultBaseURL is the public openFDA endpoint.
const DefaultBaseURL = "https://api.fda.gov"

const defaultLimit = 100

// Client implements calc.PackageCatalog against the openFDA drug/ndc dataset.
type Client struct {
	baseURL string
	limit   int
	http    *httpretry.Client
	cache   *cache.Cache
	breaker *circuitbreaker.Breaker
	observe func(time.Duration)
	group   singleflight.Group
	logger  *zap.Logger
}

// Options configures optional collaborators. Any field may be nil.
type Options struct {
	BaseURL string
	Limit   int
	Cache   *cache.Cache
	Breaker *circuitbreaker.Breaker
	Retry   *httpretry.Client
	// Observe receives the duration of each upstream request.
	Observe func(time.Duration)
	Logger  *zap.Logger
}

// New creates an openFDA NDC directory client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Retry == nil {
		opts.Retry = httpretry.New(httpretry.DefaultConfig(), opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL: opts.BaseURL,
		limit:   opts.Limit,
		http:    opts.Retry,
		cache:   opts.Cache,
		breaker: opts.Breaker,
		observe: opts.Observe,
		logger:  opts.Logger,
	}
}

// LookupPackages returns every package listed for drugName, matching either
// the generic or the brand name. An empty result set yields NDC_NOT_FOUND.
func (c *Client) LookupPackages(ctx context.Context, drugName string) ([]catalog.Package, error) {
	if strings.TrimSpace(drugName) == "" {
		return nil, rxerr.New(rxerr.CodeNDCNotFound, "drug name is empty")
	}

	key := cache.Key("ndc", drugName)
	if payload, ok := c.cache.Get(key); ok {
		if pkgs := parseResults(payload, c.logger); len(pkgs) > 0 {
			return pkgs, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetch(ctx, drugName)
	})
	if err != nil {
		return nil, err
	}
	body := v.([]byte)

	pkgs := parseResults(body, c.logger)
	if len(pkgs) == 0 {
		return nil, rxerr.Newf(rxerr.CodeNDCNotFound, "the NDC directory lists no packages for %q", drugName)
	}
	c.cache.Set(key, body)
	return pkgs, nil
}

func (c *Client) fetch(ctx context.Context, drugName string) ([]byte, error) {
	if c.observe != nil {
		start := time.Now()
		defer func() { c.observe(time.Since(start)) }()
	}
	quoted := strconv.Quote(strings.ToLower(strings.TrimSpace(drugName)))
	query := fmt.Sprintf(`generic_name:%s+brand_name:%s`, quoted, quoted)
	rawURL := fmt.Sprintf("%s/drug/ndc.json?search=%s&limit=%d", c.baseURL, url.QueryEscape(query), c.limit)

	call := func() (any, error) {
		status, body, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		})
		if err != nil {
			return nil, err
		}
		// openFDA reports an empty result set as 404.
		if status == http.StatusNotFound {
			return []byte(`{"results":[]}`), nil
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("openFDA returned status %d", status)
		}
		return body, nil
	}

	var v any
	var err error
	if c.breaker != nil {
		v, err = c.breaker.Do(call)
	} else {
		v, err = call()
	}
	if err != nil {
		if circuitbreaker.Rejected(err) {
			return nil, rxerr.Wrap(rxerr.CodeExternalAPI, "the NDC directory is temporarily unavailable", err)
		}
		return nil, rxerr.Wrap(rxerr.CodeExternalAPI, "NDC directory request failed", err)
	}
	return v.([]byte), nil
}

// parseResults flattens openFDA products into per-package catalog entries.
func parseResults(body []byte, logger *zap.Logger) []catalog.Package {
	var pkgs []catalog.Package
	gjson.GetBytes(body, "results").ForEach(func(_, product gjson.Result) bool {
		generic := product.Get("generic_name").String()
		brand := product.Get("brand_name").String()
		manufacturer := product.Get("labeler_name").String()
		form := mapDosageForm(product.Get("dosage_form").String())
		strength := joinStrengths(product.Get("active_ingredients"))

		product.Get("packaging").ForEach(func(_, packaging gjson.Result) bool {
			rawNDC := packaging.Get("package_ndc").String()
			normalized, err := catalog.NormalizeNDC(rawNDC)
			if err != nil {
				logger.Debug("skipping package with malformed NDC",
					zap.String("ndc", rawNDC),
					zap.Error(err))
				return true
			}

			description := packaging.Get("description").String()
			size := parsePackageSize(description)
			if size <= 0 {
				logger.Debug("could not determine package size, defaulting to 1",
					zap.String("ndc", normalized),
					zap.String("description", description))
				size = 1
			}

			start := parseDate(firstNonEmpty(
				packaging.Get("marketing_start_date").String(),
				product.Get("marketing_start_date").String()))
			end := parseDate(firstNonEmpty(
				packaging.Get("marketing_end_date").String(),
				product.Get("marketing_end_date").String()))

			pkgs = append(pkgs, catalog.Package{
				NDC:                normalized,
				PackageSize:        size,
				DosageForm:         form,
				Strength:           strength,
				Manufacturer:       manufacturer,
				Status:             marketingStatus(start, end, time.Now()),
				BrandName:          brand,
				GenericName:        generic,
				MarketingStart:     start,
				MarketingEnd:       end,
				PackageDescription: description,
			})
			return true
		})
		return true
	})
	return pkgs
}

// countableUnits are the dispensable units that determine package size inside
// an openFDA packaging description (e.g. "30 TABLET in 1 BOTTLE").
var countableUnits = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(tablet|capsule|ml|patch|suppository|spray|actuation|vial|syringe|gram|g)\b`)

// leadingCount captures the container count at the start of a non-countable
// packaging segment, e.g. the 3 in "3 BLISTER PACK in 1 CARTON".
var leadingCount = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s`)

// parsePackageSize extracts the dispensable quantity from a packaging
// description. Nested descriptions are separated by "/": the countable-unit
// segment supplies the base count, and counted outer containers multiply it,
// so "3 BLISTER PACK in 1 CARTON / 10 TABLET in 1 BLISTER PACK" yields 30.
func parsePackageSize(description string) float64 {
	segments := strings.Split(description, "/")
	var base float64
	multiplier := 1.0
	for _, seg := range segments {
		if m := countableUnits.FindStringSubmatch(seg); m != nil {
			if n, err := strconv.ParseFloat(m[1], 64); err == nil && n > 0 {
				base = n
			}
			continue
		}
		if m := leadingCount.FindStringSubmatch(seg); m != nil {
			if n, err := strconv.ParseFloat(m[1], 64); err == nil && n > 0 {
				multiplier *= n
			}
		}
	}
	if base <= 0 {
		return 0
	}
	return base * multiplier
}

func joinStrengths(ingredients gjson.Result) string {
	var parts []string
	ingredients.ForEach(func(_, ing gjson.Result) bool {
		if s := ing.Get("strength").String(); s != "" {
			parts = append(parts, s)
		}
		return true
	})
	return strings.Join(parts, "; ")
}

var dosageForms = map[string]catalog.DosageForm{
	"TABLET":                    catalog.FormTablet,
	"TABLET, FILM COATED":       catalog.FormTablet,
	"TABLET, COATED":            catalog.FormTablet,
	"TABLET, EXTENDED RELEASE":  catalog.FormTablet,
	"CAPSULE":                   catalog.FormCapsule,
	"CAPSULE, GELATIN COATED":   catalog.FormCapsule,
	"CAPSULE, EXTENDED RELEASE": catalog.FormCapsule,
	"SOLUTION":                  catalog.FormSolution,
	"SUSPENSION":                catalog.FormSuspension,
	"CREAM":                     catalog.FormCream,
	"OINTMENT":                  catalog.FormOintment,
	"PATCH":                     catalog.FormPatch,
	"PATCH, EXTENDED RELEASE":   catalog.FormPatch,
	"AEROSOL, METERED":          catalog.FormInhaler,
	"INHALANT":                  catalog.FormInhaler,
	"INJECTION":                 catalog.FormInjection,
	"INJECTION, SOLUTION":       catalog.FormInjection,
	"SPRAY":                     catalog.FormSpray,
	"SPRAY, METERED":            catalog.FormSpray,
	"SOLUTION/ DROPS":           catalog.FormDrops,
	"SUSPENSION/ DROPS":         catalog.FormDrops,
}

func mapDosageForm(raw string) catalog.DosageForm {
	if form, ok := dosageForms[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return form
	}
	return catalog.FormOther
}

// parseDate parses openFDA's compact YYYYMMDD format.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	return &t
}

// marketingStatus derives the catalog status from the marketing window.
func marketingStatus(start, end *time.Time, now time.Time) catalog.Status {
	if end != nil && end.Before(now) {
		return catalog.StatusDiscontinued
	}
	if start != nil && start.After(now) {
		return catalog.StatusInactive
	}
	return catalog.StatusActive
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
