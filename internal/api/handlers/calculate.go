// Package handlers provides HTTP handlers for the calculation API.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pharmetric/rxcalc/internal/api/middleware"
	"github.com/pharmetric/rxcalc/internal/calc"
	"github.com/pharmetric/rxcalc/internal/observability/metrics"
	"github.com/pharmetric/rxcalc/internal/rxerr"
)

// CalculationHandler handles the calculation endpoints
type CalculationHandler struct {
	calculator *calc.Calculator
	advisor    calc.ErrorAdvisor
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewCalculationHandler creates a new handler. advisor and m may be nil.
func NewCalculationHandler(calculator *calc.Calculator, advisor calc.ErrorAdvisor, m *metrics.Metrics, logger *zap.Logger) *CalculationHandler {
	return &CalculationHandler{
		calculator: calculator,
		advisor:    advisor,
		metrics:    m,
		logger:     logger,
	}
}

// Routes returns the handler routes
func (h *CalculationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Calculate)
	return r
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error   errorBody     `json:"error"`
	Advice  *calc.Advice  `json:"advice,omitempty"`
	Context *calc.Context `json:"context,omitempty"`
}

// Calculate handles POST /api/v1/calculations
func (h *CalculationHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var input calc.PrescriptionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, rxerr.New(rxerr.CodeValidation, "invalid request body"), nil)
		return
	}

	result, err := h.calculator.Calculate(ctx, input)
	if err != nil {
		failure, ok := calc.AsFailure(err)
		if !ok {
			h.logger.Error("calculation failed without a typed failure",
				zap.Error(err),
				zap.String("request_id", middleware.GetRequestID(ctx)))
			h.observe(string(rxerr.CodeExternalAPI), start)
			h.writeError(w, rxerr.Wrap(rxerr.CodeExternalAPI, "calculation failed", err), nil)
			return
		}

		h.logger.Warn("calculation failed",
			zap.String("code", string(failure.Err.Code)),
			zap.String("message", failure.Err.Message),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(failure.Err.Cause))
		h.observe(string(failure.Err.Code), start)

		resp := errorResponse{
			Error:   errorBody{Code: string(failure.Err.Code), Message: failure.Err.Message},
			Context: partialContext(failure),
			Advice:  h.advise(r, failure, input),
		}
		h.writeJSON(w, statusFor(failure.Err.Code), resp)
		return
	}

	h.observe("", start)
	if h.metrics != nil {
		for _, warn := range result.Warnings {
			h.metrics.WarningsEmitted.WithLabelValues(string(warn.Type)).Inc()
		}
	}
	h.writeJSON(w, http.StatusOK, result)
}

// advise asks the error advisor for guidance, best effort. Advisor failures
// are logged and swallowed so they never mask the original error.
func (h *CalculationHandler) advise(r *http.Request, failure *calc.Failure, input calc.PrescriptionInput) *calc.Advice {
	if h.advisor == nil {
		return nil
	}
	advice, err := h.advisor.AdviseOnError(r.Context(), failure.Err, calc.AdviceContext{
		Input:   input,
		Partial: failure.Context,
	})
	if err != nil {
		h.logger.Warn("error advisor failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		return nil
	}
	return advice
}

// partialContext returns the accumulated context when any of it is set.
func partialContext(failure *calc.Failure) *calc.Context {
	c := failure.Context
	if c.ParsedSIG == nil && c.RxCUI == "" && c.QuantityNeeded == 0 {
		return nil
	}
	return &c
}

// statusFor maps domain error codes onto HTTP statuses.
func statusFor(code rxerr.Code) int {
	switch code {
	case rxerr.CodeValidation:
		return http.StatusBadRequest
	case rxerr.CodeInvalidSIG:
		return http.StatusUnprocessableEntity
	case rxerr.CodeNDCNotFound:
		return http.StatusNotFound
	case rxerr.CodeAIService, rxerr.CodeExternalAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *CalculationHandler) observe(code string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveCalculation(code, time.Since(start))
	}
}

func (h *CalculationHandler) writeError(w http.ResponseWriter, derr *rxerr.Error, advice *calc.Advice) {
	h.writeJSON(w, statusFor(derr.Code), errorResponse{
		Error:  errorBody{Code: string(derr.Code), Message: derr.Message},
		Advice: advice,
	})
}

func (h *CalculationHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response encoding failed", zap.Error(err))
	}
}
