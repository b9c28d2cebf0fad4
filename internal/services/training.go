package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"sales-analytics/internal/config"
	"sales-analytics/internal/dataset"
	"sales-analytics/internal/forest"
	"sales-analytics/internal/models"
)

const cacheVersion = "v1"

type TrainingResult struct {
	Model     *forest.Forest
	Holdout   forest.Metrics
	TrainRows int
	FromCache bool
	Duration  time.Duration
}

// Trainer fits the sales model once at startup. A fitted forest is cached on
// disk keyed by dataset fingerprint and training parameters.
type Trainer struct {
	params       forest.Params
	testRatio    float64
	cacheDir     string
	cacheEnabled bool
	logger       *slog.Logger
}

func NewTrainer(cfg config.ModelConfig, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	params := forest.DefaultParams()
	params.Trees = cfg.Trees
	params.Seed = cfg.Seed
	params.Workers = cfg.Workers

	return &Trainer{
		params:       params,
		testRatio:    cfg.TestRatio,
		cacheDir:     cfg.CacheDir,
		cacheEnabled: cfg.CacheEnabled,
		logger:       logger,
	}
}

func (t *Trainer) Train(ctx context.Context, ds *dataset.Dataset) (*TrainingResult, error) {
	if ds == nil {
		return nil, ErrDataUnavailable
	}
	start := time.Now()

	x, y := ds.Features()
	trainIdx, testIdx := forest.TrainTestSplit(len(x), t.testRatio, t.params.Seed)
	xTrain, yTrain := forest.Subset(x, y, trainIdx)
	xTest, yTest := forest.Subset(x, y, testIdx)

	result := &TrainingResult{TrainRows: len(trainIdx)}

	cacheFile := t.getCacheFilename(ds.Fingerprint())
	if t.cacheEnabled {
		if cached, err := t.loadFromCache(cacheFile); err == nil {
			t.logger.Info("loaded model from cache", "file", cacheFile, "trees", len(cached.Trees))
			result.Model = cached
			result.FromCache = true
		} else if !os.IsNotExist(err) {
			t.logger.Warn("ignoring unreadable model cache", "file", cacheFile, "error", err)
		}
	}

	if result.Model == nil {
		t.logger.Info("training model",
			"train_rows", len(trainIdx),
			"test_rows", len(testIdx),
			"trees", t.params.Trees,
			"seed", t.params.Seed,
			"workers", t.params.Workers,
		)
		model, err := forest.Fit(ctx, xTrain, yTrain, t.params)
		if err != nil {
			return nil, fmt.Errorf("fit model: %w", err)
		}
		result.Model = model

		if t.cacheEnabled {
			if err := t.saveToCache(cacheFile, model); err != nil {
				t.logger.Warn("failed to save model cache", "error", err)
			}
		}
	}

	if len(testIdx) > 0 {
		m, err := result.Model.Evaluate(xTest, yTest)
		if err != nil {
			return nil, fmt.Errorf("evaluate holdout: %w", err)
		}
		result.Holdout = m
		t.logger.Info("holdout evaluation",
			"samples", m.Samples,
			"r2", logFloat(m.R2),
			"mae", logFloat(m.MAE),
		)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (t *Trainer) getCacheFilename(fingerprint string) string {
	p := t.params
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%d|%d|%d|%d|%g",
		fingerprint, p.Trees, p.Seed, p.MinSamplesSplit, p.MinSamplesLeaf, p.MaxDepth, p.MaxFeatures, t.testRatio)
	key := hex.EncodeToString(h.Sum(nil))[:16]
	return filepath.Join(t.cacheDir, fmt.Sprintf("forest_%s_%s.gob", key, cacheVersion))
}

func (t *Trainer) saveToCache(filename string, model *forest.Forest) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), "forest-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := model.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}

func (t *Trainer) loadFromCache(filename string) (*forest.Forest, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	model, err := forest.Load(file)
	if err != nil {
		return nil, err
	}
	if model.NumFeatures != models.NumFeatures {
		return nil, fmt.Errorf("cached model has %d features", model.NumFeatures)
	}
	return model, nil
}

// slog's JSON handler cannot encode NaN.
func logFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprint(v)
	}
	return v
}
