// Package app performs the one-time startup work: load the dataset and train
// the model. Failures leave the service running in a degraded state.
package app

import (
	"context"
	"log/slog"
	"strconv"

	"sales-analytics/internal/dataset"
	"sales-analytics/internal/forest"
	"sales-analytics/internal/metrics"
	"sales-analytics/internal/observability"
	"sales-analytics/internal/services"
)

// App holds what startup produced. Dataset and Model are nil when the
// corresponding step failed; neither changes afterwards.
type App struct {
	Dataset *dataset.Dataset
	Model   *forest.Forest
	Holdout forest.Metrics

	DatasetErr error
	ModelErr   error
}

// Bootstrap never fails. A dataset error skips training, and a training error
// leaves the aggregation endpoints working.
func Bootstrap(ctx context.Context, src dataset.Source, trainer *services.Trainer, logger *slog.Logger) *App {
	ctx, span := observability.StartSpan(ctx, "startup")
	defer func() {
		span.Finish()
		logger.Info("startup finished", "span", span)
	}()

	a := &App{}

	a.Dataset, a.DatasetErr = loadDataset(ctx, src, logger)
	if a.DatasetErr != nil {
		span.SetError(a.DatasetErr)
		a.ModelErr = services.ErrDataUnavailable
		metrics.SetDatasetRecords(0)
		metrics.SetModelReady(false, 0)
		return a
	}
	metrics.SetDatasetRecords(a.Dataset.Len())

	_, trainSpan := observability.StartSpan(ctx, "model.train")
	result, err := trainer.Train(ctx, a.Dataset)
	trainSpan.Finish()
	if err != nil {
		trainSpan.SetError(err)
		span.SetError(err)
		a.ModelErr = err
		logger.Error("model training failed, predictions disabled", "span", trainSpan)
		metrics.SetModelReady(false, trainSpan.Duration.Seconds())
		return a
	}

	trainSpan.SetTag("from_cache", strconv.FormatBool(result.FromCache))
	logger.Info("model ready",
		"span", trainSpan,
		"trees", len(result.Model.Trees),
		"train_rows", result.TrainRows,
	)
	a.Model = result.Model
	a.Holdout = result.Holdout
	metrics.SetModelReady(true, result.Duration.Seconds())
	return a
}

func loadDataset(ctx context.Context, src dataset.Source, logger *slog.Logger) (*dataset.Dataset, error) {
	_, span := observability.StartSpan(ctx, "dataset.load")
	span.SetTag("source", src.String())

	ds, err := src.Load(ctx)
	span.Finish()
	if err != nil {
		span.SetError(err)
		logger.Error("failed to load sales data, serving degraded", "span", span)
		return nil, err
	}

	logger.Info("sales data loaded", "span", span, "records", ds.Len())
	return ds, nil
}

// Predictor returns the model as a services.Predictor, or a nil interface
// when training did not succeed.
func (a *App) Predictor() services.Predictor {
	if a.Model == nil {
		return nil
	}
	return a.Model
}

func (a *App) Degraded() bool {
	return a.Dataset == nil || a.Model == nil
}

