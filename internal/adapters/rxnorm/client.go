// Package rxnorm resolves free-text drug names to RxNorm concepts via the
// National Library of Medicine's RxNav API.
package rxnorm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pharmetric/rxcalc/internal/calc"
	"github.com/pharmetric/rxcalc/internal/rxerr"
	"github.com/pharmetric/rxcalc/pkg/cache"
	"github.com/pharmetric/rxcalc/pkg/circuitbreaker"
	"github.com/pharmetric/rxcalc/pkg/httpretry"
)

// DefaultBaseURL is the public RxNav endpoint.
const DefaultBaseURL = "https://rxnav.nlm.nih.gov/REST"

// Client implements calc.DrugNormalizer against RxNav. Lookups are cached,
// deduplicated across concurrent callers and guarded by a circuit breaker.
type Client struct {
	baseURL string
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
	Cache   *cache.Cache
	Breaker *circuitbreaker.Breaker
	Retry   *httpretry.Client
	// Observe receives the duration of each upstream request.
	Observe func(time.Duration)
	Logger  *zap.Logger
}

// New creates an RxNav client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Retry == nil {
		opts.Retry = httpretry.New(httpretry.DefaultConfig(), opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL: opts.BaseURL,
		http:    opts.Retry,
		cache:   opts.Cache,
		breaker: opts.Breaker,
		observe: opts.Observe,
		logger:  opts.Logger,
	}
}

// NormalizeDrugName resolves name to an RxCUI and canonical name. A name
// unknown to RxNorm yields a DRUG_NORMALIZATION_FAILED error; transport
// problems yield EXTERNAL_API_ERROR.
func (c *Client) NormalizeDrugName(ctx context.Context, name string) (*calc.NormalizedDrug, error) {
	if name == "" {
		return nil, rxerr.New(rxerr.CodeDrugNormalization, "drug name is empty")
	}

	key := cache.Key("rxnorm", name)
	if payload, ok := c.cache.Get(key); ok {
		var nd calc.NormalizedDrug
		if err := json.Unmarshal(payload, &nd); err == nil {
			return &nd, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.lookup(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	nd := v.(*calc.NormalizedDrug)

	if payload, err := json.Marshal(nd); err == nil {
		c.cache.Set(key, payload)
	}
	return nd, nil
}

func (c *Client) lookup(ctx context.Context, name string) (*calc.NormalizedDrug, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/rxcui.json?search=2&name=%s", c.baseURL, url.QueryEscape(name)))
	if err != nil {
		return nil, err
	}

	rxcui := gjson.GetBytes(body, "idGroup.rxnormId.0").String()
	if rxcui == "" {
		return nil, rxerr.Newf(rxerr.CodeDrugNormalization, "RxNorm has no concept matching %q", name)
	}

	nd := &calc.NormalizedDrug{RxCUI: rxcui}

	// Canonical name is nice to have; a failure here does not fail the lookup.
	propBody, err := c.get(ctx, fmt.Sprintf("%s/rxcui/%s/property.json?propName=RxNorm%%20Name", c.baseURL, url.PathEscape(rxcui)))
	if err != nil {
		c.logger.Warn("rxnorm property lookup failed",
			zap.String("rxcui", rxcui),
			zap.Error(err))
		return nd, nil
	}
	nd.CanonicalName = gjson.GetBytes(propBody, "propConceptGroup.propConcept.0.propValue").String()
	return nd, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.observe != nil {
		start := time.Now()
		defer func() { c.observe(time.Since(start)) }()
	}
	call := func() (any, error) {
		status, body, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		})
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("rxnav returned status %d", status)
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
			return nil, rxerr.Wrap(rxerr.CodeExternalAPI, "RxNorm is temporarily unavailable", err)
		}
		return nil, rxerr.Wrap(rxerr.CodeExternalAPI, "RxNorm request failed", err)
	}
	return v.([]byte), nil
}
