package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sales-analytics/internal/dataset"
	"sales-analytics/internal/forest"
	"sales-analytics/internal/models"
	"sales-analytics/internal/services"
)

type predictorFunc func(x []float64) (float64, error)

func (f predictorFunc) Predict(x []float64) (float64, error) { return f(x) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestDataset() *dataset.Dataset {
	return dataset.New("test", []models.SalesRecord{
		{QuantityOrdered: 30, PriceEach: 95.7, MSRP: 95, QuarterID: 1, MonthID: 2, YearID: 2003, Country: "USA", ProductLine: "Motorcycles", Sales: 2871.00},
		{QuantityOrdered: 34, PriceEach: 81.35, MSRP: 95, QuarterID: 2, MonthID: 5, YearID: 2003, Country: "France", ProductLine: "Classic Cars", Sales: 2765.90},
		{QuantityOrdered: 41, PriceEach: 84.87, MSRP: 95, QuarterID: 1, MonthID: 1, YearID: 2004, Country: "USA", ProductLine: "Classic Cars", Sales: 3479.76},
	})
}

func createTestHandlers(t *testing.T, ds *dataset.Dataset, model services.Predictor) *APIHandlers {
	t.Helper()
	predictions, err := services.NewPredictions(model, 16, testLogger())
	if err != nil {
		t.Fatalf("NewPredictions() failed: %v", err)
	}
	return NewAPIHandlers(services.NewAnalytics(ds, testLogger()), predictions, testLogger())
}

func linearModel() services.Predictor {
	return predictorFunc(func(x []float64) (float64, error) {
		return x[0] * x[1], nil
	})
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	return v
}

func TestAPIHandlers_HandleTest(t *testing.T) {
	h := createTestHandlers(t, nil, nil)

	w := httptest.NewRecorder()
	h.HandleTest(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	body := decodeBody[map[string]string](t, w)
	if body["message"] != "API is working" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestAPIHandlers_HandleDashboard(t *testing.T) {
	h := createTestHandlers(t, createTestDataset(), linearModel())

	w := httptest.NewRecorder()
	h.HandleDashboard(w, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type 'application/json', got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=300" {
		t.Errorf("expected cache-control 'public, max-age=300', got %q", cc)
	}

	got := decodeBody[models.DashboardSummary](t, w)
	want := models.DashboardSummary{TotalSales: 9116.66, TotalOrders: 3, AverageOrderValue: 3038.89}
	if got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
}

func TestAPIHandlers_GroupedSums(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		handler func(*APIHandlers) http.HandlerFunc
		want    map[string]float64
	}{
		{
			name:    "country",
			path:    "/api/country-sales",
			handler: func(h *APIHandlers) http.HandlerFunc { return h.HandleCountrySales },
			want:    map[string]float64{"USA": 6350.76, "France": 2765.9},
		},
		{
			name:    "product line",
			path:    "/api/product-sales",
			handler: func(h *APIHandlers) http.HandlerFunc { return h.HandleProductSales },
			want:    map[string]float64{"Motorcycles": 2871, "Classic Cars": 6245.66},
		},
		{
			name:    "monthly",
			path:    "/api/monthly-sales",
			handler: func(h *APIHandlers) http.HandlerFunc { return h.HandleMonthlySales },
			want:    map[string]float64{"2003-2": 2871, "2003-5": 2765.9, "2004-1": 3479.76},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandlers(t, createTestDataset(), nil)

			w := httptest.NewRecorder()
			tt.handler(h)(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=300" {
				t.Errorf("expected cache-control header, got %q", cc)
			}

			got := decodeBody[map[string]float64](t, w)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d groups, want %d: %v", len(got), len(tt.want), got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestAPIHandlers_DataUnavailable(t *testing.T) {
	h := createTestHandlers(t, nil, nil)

	handlers := map[string]http.HandlerFunc{
		"/api/dashboard":     h.HandleDashboard,
		"/api/country-sales": h.HandleCountrySales,
		"/api/product-sales": h.HandleProductSales,
		"/api/monthly-sales": h.HandleMonthlySales,
		"/admin/stats":       h.HandleStats,
	}

	for path, handler := range handlers {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(http.MethodGet, path, nil))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "" {
				t.Errorf("errors must not be cacheable, got %q", cc)
			}
			body := decodeBody[map[string]string](t, w)
			if body["error"] != "Data not loaded" {
				t.Errorf("unexpected error body %v", body)
			}
		})
	}
}

func TestAPIHandlers_HandlePredict(t *testing.T) {
	const valid = `{"quantityOrdered": 30, "priceEach": 95.7, "msrp": 100, "quarterId": 1, "monthId": 2}`

	tests := []struct {
		name       string
		model      services.Predictor
		body       string
		wantStatus int
		wantError  string
		wantSales  float64
	}{
		{name: "ok", model: linearModel(), body: valid, wantStatus: http.StatusOK, wantSales: 2871},
		{name: "column aliases", model: linearModel(), body: `{"QUANTITYORDERED": 30, "PRICEEACH": 95.7, "MSRP": 100, "QTR_ID": 1, "MONTH_ID": 2}`, wantStatus: http.StatusOK, wantSales: 2871},
		{name: "missing field", model: linearModel(), body: `{"quantityOrdered": 30, "priceEach": 95.7}`, wantStatus: http.StatusBadRequest, wantError: "Missing required fields"},
		{name: "non numeric", model: linearModel(), body: `{"quantityOrdered": "lots", "priceEach": 95.7, "msrp": 100, "quarterId": 1, "monthId": 2}`, wantStatus: http.StatusBadRequest, wantError: "Invalid input data"},
		{name: "not an object", model: linearModel(), body: `"hello"`, wantStatus: http.StatusBadRequest, wantError: "Invalid input data"},
		{name: "no model", model: nil, body: valid, wantStatus: http.StatusInternalServerError, wantError: "Model not trained"},
		{name: "no model wins over bad body", model: nil, body: `{`, wantStatus: http.StatusInternalServerError, wantError: "Model not trained"},
		{name: "negative clamps to zero", model: predictorFunc(func([]float64) (float64, error) { return -12.5, nil }), body: valid, wantStatus: http.StatusOK, wantSales: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandlers(t, createTestDataset(), tt.model)

			req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			h.HandlePredict(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}

			if tt.wantError != "" {
				body := decodeBody[map[string]string](t, w)
				if body["error"] != tt.wantError {
					t.Errorf("error = %q, want %q", body["error"], tt.wantError)
				}
				return
			}

			body := decodeBody[map[string]float64](t, w)
			got, ok := body["predictedSales"]
			if !ok {
				t.Fatalf("missing predictedSales in %v", body)
			}
			if got != tt.wantSales {
				t.Errorf("predictedSales = %v, want %v", got, tt.wantSales)
			}
		})
	}
}

func TestAPIHandlers_HandlePredict_BodyTooLarge(t *testing.T) {
	h := createTestHandlers(t, createTestDataset(), linearModel())

	big := `{"quantityOrdered": 30, "pad": "` + strings.Repeat("x", maxPredictBody) + `"}`
	w := httptest.NewRecorder()
	h.HandlePredict(w, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(big)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		ds         *dataset.Dataset
		model      services.Predictor
		wantStatus string
	}{
		{"healthy", createTestDataset(), linearModel(), "healthy"},
		{"no model", createTestDataset(), nil, "degraded"},
		{"nothing loaded", nil, nil, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandlers(t, tt.ds, tt.model)

			w := httptest.NewRecorder()
			h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("health must always answer 200, got %d", w.Code)
			}
			body := decodeBody[map[string]any](t, w)
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %v", body["status"], tt.wantStatus)
			}
			if body["dataLoaded"] != (tt.ds != nil) {
				t.Errorf("dataLoaded = %v", body["dataLoaded"])
			}
			if body["modelReady"] != (tt.model != nil) {
				t.Errorf("modelReady = %v", body["modelReady"])
			}
			if body["version"] != Version {
				t.Errorf("version = %v", body["version"])
			}
		})
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	h := createTestHandlers(t, createTestDataset(), linearModel())

	w := httptest.NewRecorder()
	h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	body := decodeBody[map[string]any](t, w)
	if body["record_count"] != float64(3) {
		t.Errorf("record_count = %v", body["record_count"])
	}
	if body["model_ready"] != true {
		t.Errorf("model_ready = %v", body["model_ready"])
	}
	if body["source"] != "test" {
		t.Errorf("source = %v", body["source"])
	}
	if _, ok := body["model_holdout"]; ok {
		t.Errorf("model_holdout should be absent without an evaluation, got %v", body["model_holdout"])
	}
}

func TestAPIHandlers_HandleStats_Holdout(t *testing.T) {
	h := createTestHandlers(t, createTestDataset(), linearModel())
	h.predictions.WithHoldout(forest.Metrics{Samples: 24, R2: math.NaN(), MAE: 112.5})

	w := httptest.NewRecorder()
	h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	body := decodeBody[map[string]any](t, w)
	holdout, ok := body["model_holdout"].(map[string]any)
	if !ok {
		t.Fatalf("model_holdout = %v", body["model_holdout"])
	}
	if holdout["samples"] != float64(24) {
		t.Errorf("samples = %v", holdout["samples"])
	}
	if holdout["r2"] != nil {
		t.Errorf("r2 = %v, want null for NaN", holdout["r2"])
	}
	if holdout["mae"] != 112.5 {
		t.Errorf("mae = %v", holdout["mae"])
	}
}

func TestToAppError_UnknownGroupKey(t *testing.T) {
	err := toAppError(fmt.Errorf("%w: %q", services.ErrUnknownGroupKey, "region"))

	if err.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", err.StatusCode, http.StatusBadRequest)
	}
	if err.Message != "Unknown grouping" {
		t.Errorf("message = %q", err.Message)
	}
	if !errors.Is(err, services.ErrUnknownGroupKey) {
		t.Error("AppError should unwrap to ErrUnknownGroupKey")
	}
}

func TestNewAPIHandlers_NilLogger(t *testing.T) {
	predictions, err := services.NewPredictions(nil, 16, testLogger())
	if err != nil {
		t.Fatalf("NewPredictions() failed: %v", err)
	}
	h := NewAPIHandlers(services.NewAnalytics(nil, testLogger()), predictions, nil)

	w := httptest.NewRecorder()
	h.HandleDashboard(w, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func BenchmarkAPIHandlers_HandleCountrySales(b *testing.B) {
	predictions, _ := services.NewPredictions(nil, 16, testLogger())
	h := NewAPIHandlers(services.NewAnalytics(createTestDataset(), testLogger()), predictions, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/country-sales", nil)

	for b.Loop() {
		h.HandleCountrySales(httptest.NewRecorder(), req)
	}
}
