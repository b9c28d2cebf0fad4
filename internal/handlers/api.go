package handlers

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	apperrors "sales-analytics/internal/errors"
	"sales-analytics/internal/models"
	"sales-analytics/internal/observability"
	"sales-analytics/internal/services"
)

const (
	Version = "1.0.0"

	cacheMaxAge    = "public, max-age=300"
	maxPredictBody = 1 << 20
)

type APIHandlers struct {
	analytics   *services.Analytics
	predictions *services.Predictions
	logger      *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, predictions *services.Predictions, logger *slog.Logger) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandlers{
		analytics:   analytics,
		predictions: predictions,
		logger:      logger,
	}
}

func (h *APIHandlers) HandleTest(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, map[string]string{"message": "API is working"}, nil)
}

func (h *APIHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.Summary()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, summary, cached())
}

func (h *APIHandlers) HandleCountrySales(w http.ResponseWriter, r *http.Request) {
	h.handleSumBy(w, r, models.GroupByCountry)
}

func (h *APIHandlers) HandleProductSales(w http.ResponseWriter, r *http.Request) {
	h.handleSumBy(w, r, models.GroupByProductLine)
}

func (h *APIHandlers) handleSumBy(w http.ResponseWriter, r *http.Request, key models.GroupKey) {
	sums, err := h.analytics.SumBy(key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, sums, cached())
}

func (h *APIHandlers) HandleMonthlySales(w http.ResponseWriter, r *http.Request) {
	sums, err := h.analytics.MonthlySum()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, sums, cached())
}

func (h *APIHandlers) HandlePredict(w http.ResponseWriter, r *http.Request) {
	body, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPredictBody))
	if readErr != nil && h.predictions.Available() {
		h.fail(w, r, errors.Join(services.ErrInvalidInput, readErr))
		return
	}

	predicted, err := h.predictions.PredictJSON(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, models.Prediction{PredictedSales: predicted}, nil)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.analytics.Available() || !h.predictions.Available() {
		status = "degraded"
	}

	h.write(w, r, map[string]any{
		"status":     status,
		"timestamp":  time.Now().Format(time.RFC3339),
		"version":    Version,
		"dataLoaded": h.analytics.Available(),
		"modelReady": h.predictions.Available(),
	}, nil)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.Stats()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats["model_ready"] = h.predictions.Available()
	if m, ok := h.predictions.Holdout(); ok {
		stats["model_holdout"] = map[string]any{
			"samples": m.Samples,
			"r2":      finiteOrNil(m.R2),
			"mae":     finiteOrNil(m.MAE),
		}
	}
	h.write(w, r, stats, nil)
}

func (h *APIHandlers) write(w http.ResponseWriter, r *http.Request, data any, headers map[string]string) {
	if err := apperrors.WriteSuccessWithHeaders(w, data, headers); err != nil {
		h.logger.Error("failed to encode response",
			"error", err,
			"path", r.URL.Path,
			"request_id", observability.GetRequestID(r.Context()),
		)
	}
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.WriteError(w, h.logger, toAppError(err), observability.GetRequestID(r.Context()))
}

// toAppError maps service sentinels to the client-facing error shape.
func toAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, services.ErrDataUnavailable):
		return apperrors.DataUnavailable(err)
	case errors.Is(err, services.ErrModelUnavailable):
		return apperrors.ModelUnavailable(err)
	case errors.Is(err, services.ErrMissingField):
		return apperrors.MissingFields(err)
	case errors.Is(err, services.ErrInvalidInput):
		return apperrors.InvalidInput(err)
	case errors.Is(err, services.ErrUnknownGroupKey):
		v := apperrors.Validation("Unknown grouping")
		v.Cause = err
		return v
	default:
		return apperrors.InternalWrap(err, "An unexpected error occurred")
	}
}

// encoding/json rejects NaN, and R2 is NaN when holdout labels are constant.
func finiteOrNil(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func cached() map[string]string {
	return map[string]string{"Cache-Control": cacheMaxAge}
}
