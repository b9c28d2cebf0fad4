package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru/v2"

	"sales-analytics/internal/forest"
	"sales-analytics/internal/metrics"
	"sales-analytics/internal/models"
)

var (
	ErrModelUnavailable = errors.New("model not trained")
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidInput     = errors.New("invalid input")
)

// Predictor maps a feature vector in models.FeatureNames order to a sales value.
type Predictor interface {
	Predict(x []float64) (float64, error)
}

// predictRequest is the wire schema. Values stay raw until every field is
// known to be present, so a missing field wins over a malformed one.
type predictRequest struct {
	QuantityOrdered json.RawMessage `json:"quantityOrdered" validate:"required"`
	PriceEach       json.RawMessage `json:"priceEach" validate:"required"`
	MSRP            json.RawMessage `json:"msrp" validate:"required"`
	QuarterID       json.RawMessage `json:"quarterId" validate:"required"`
	MonthID         json.RawMessage `json:"monthId" validate:"required"`
}

// Column names from the sales export, accepted as aliases.
var fieldAliases = map[string]string{
	"quantityOrdered": "QUANTITYORDERED",
	"priceEach":       "PRICEEACH",
	"msrp":            "MSRP",
	"quarterId":       "QTR_ID",
	"monthId":         "MONTH_ID",
}

type Predictions struct {
	model    Predictor
	cache    *lru.Cache[[models.NumFeatures]float64, float64]
	validate *validator.Validate
	holdout  *forest.Metrics
	logger   *slog.Logger
}

// NewPredictions accepts a nil model, in which case Predict reports
// ErrModelUnavailable.
func NewPredictions(model Predictor, cacheSize int, logger *slog.Logger) (*Predictions, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := lru.New[[models.NumFeatures]float64, float64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create prediction cache: %w", err)
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Predictions{
		model:    model,
		cache:    cache,
		validate: validate,
		logger:   logger,
	}, nil
}

func (p *Predictions) Available() bool {
	return p.model != nil
}

// WithHoldout records the held-out evaluation of the model for reporting.
func (p *Predictions) WithHoldout(m forest.Metrics) *Predictions {
	p.holdout = &m
	return p
}

// Holdout reports false when no model is loaded or it was never evaluated.
func (p *Predictions) Holdout() (forest.Metrics, bool) {
	if p.model == nil || p.holdout == nil {
		return forest.Metrics{}, false
	}
	return *p.holdout, true
}

// PredictJSON validates a request body and predicts from it.
func (p *Predictions) PredictJSON(body []byte) (float64, error) {
	if p.model == nil {
		metrics.RecordPrediction(metrics.OutcomeModelUnavailable)
		return 0, ErrModelUnavailable
	}

	features, err := p.ParseFeatures(body)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingField):
			metrics.RecordPrediction(metrics.OutcomeMissingFields)
		default:
			metrics.RecordPrediction(metrics.OutcomeInvalidInput)
		}
		return 0, err
	}

	return p.Predict(features)
}

// ParseFeatures is the schema step: a JSON object carrying all five fields as
// finite numbers or numeric strings.
func (p *Predictions) ParseFeatures(body []byte) (models.Features, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return models.Features{}, fmt.Errorf("%w: body must be a JSON object", ErrInvalidInput)
	}

	req := predictRequest{
		QuantityOrdered: lookup(fields, "quantityOrdered"),
		PriceEach:       lookup(fields, "priceEach"),
		MSRP:            lookup(fields, "msrp"),
		QuarterID:       lookup(fields, "quarterId"),
		MonthID:         lookup(fields, "monthId"),
	}

	if err := p.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, fe.Field())
			}
			return models.Features{}, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
		}
		return models.Features{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var (
		f    models.Features
		errs []error
	)
	parse := func(name string, raw json.RawMessage, dst *float64) {
		v, err := parseNumber(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = v
	}
	parse("quantityOrdered", req.QuantityOrdered, &f.QuantityOrdered)
	parse("priceEach", req.PriceEach, &f.PriceEach)
	parse("msrp", req.MSRP, &f.MSRP)
	parse("quarterId", req.QuarterID, &f.QuarterID)
	parse("monthId", req.MonthID, &f.MonthID)

	if err := errors.Join(errs...); err != nil {
		return models.Features{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return f, nil
}

// Predict clamps negative model output to zero and rounds to cents. Results
// are cached per feature vector; the model never changes after startup.
func (p *Predictions) Predict(f models.Features) (float64, error) {
	if p.model == nil {
		metrics.RecordPrediction(metrics.OutcomeModelUnavailable)
		return 0, ErrModelUnavailable
	}

	key := f.Vector()
	if v, ok := p.cache.Get(key); ok {
		metrics.RecordPrediction(metrics.OutcomeCached)
		return v, nil
	}

	raw, err := p.model.Predict(key[:])
	if err != nil {
		metrics.RecordPrediction(metrics.OutcomeError)
		return 0, fmt.Errorf("predict: %w", err)
	}

	v := roundMoney(max(raw, 0))
	p.cache.Add(key, v)
	metrics.RecordPrediction(metrics.OutcomeOK)

	p.logger.Debug("prediction computed", "features", key, "predicted_sales", v)
	return v, nil
}

func lookup(fields map[string]json.RawMessage, name string) json.RawMessage {
	if v, ok := fields[name]; ok {
		return v
	}
	return fields[fieldAliases[name]]
}

func parseNumber(raw json.RawMessage) (float64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}

	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("expected a number, got %s", raw)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %s", raw)
	}
	return f, nil
}
