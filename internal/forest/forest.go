// Package forest implements a bootstrap-aggregated ensemble of CART regression
// trees with deterministic, seed-driven training.
package forest

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

type Params struct {
	Trees           int
	Seed            uint64
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxDepth of 0 grows trees until leaves are pure or too small to split.
	MaxDepth int
	// MaxFeatures of 0 considers every feature at each split.
	MaxFeatures int
	// Workers bounds parallel tree fitting. It does not affect the fitted model.
	Workers int
}

func DefaultParams() Params {
	return Params{
		Trees:           100,
		Seed:            42,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Workers:         runtime.GOMAXPROCS(0),
	}
}

func (p Params) validate() error {
	switch {
	case p.Trees <= 0:
		return fmt.Errorf("trees must be positive, got %d", p.Trees)
	case p.MinSamplesSplit < 2:
		return fmt.Errorf("min samples split must be at least 2, got %d", p.MinSamplesSplit)
	case p.MinSamplesLeaf < 1:
		return fmt.Errorf("min samples leaf must be at least 1, got %d", p.MinSamplesLeaf)
	case p.MaxDepth < 0:
		return fmt.Errorf("max depth cannot be negative")
	case p.MaxFeatures < 0:
		return fmt.Errorf("max features cannot be negative")
	}
	return nil
}

var (
	ErrNoSamples        = errors.New("no training samples")
	ErrFeatureMismatch  = errors.New("feature count mismatch")
	ErrNonFiniteFeature = errors.New("non-finite value")
)

// Forest is immutable once fitted and safe for concurrent Predict calls.
type Forest struct {
	Trees       []Tree
	NumFeatures int
	Params      Params
}

// Fit trains one tree per bootstrap sample. Each tree draws from its own PCG
// stream seeded from Params.Seed, so the result is independent of scheduling.
func Fit(ctx context.Context, x [][]float64, y []float64, params Params) (*Forest, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, ErrNoSamples
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%d rows but %d labels: %w", len(x), len(y), ErrFeatureMismatch)
	}
	d := len(x[0])
	if d == 0 {
		return nil, fmt.Errorf("rows have no features: %w", ErrFeatureMismatch)
	}
	for i, row := range x {
		if len(row) != d {
			return nil, fmt.Errorf("row %d has %d features, want %d: %w", i, len(row), d, ErrFeatureMismatch)
		}
		if !finite(row...) || !finite(y[i]) {
			return nil, fmt.Errorf("row %d: %w", i, ErrNonFiniteFeature)
		}
	}

	master := rand.New(rand.NewPCG(params.Seed, params.Seed))
	seeds := make([]uint64, params.Trees)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	workers := params.Workers
	if workers <= 0 {
		workers = 1
	}

	trees := make([]Tree, params.Trees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seeds[i], uint64(i)))
			sample := make([]int, len(x))
			for j := range sample {
				sample[j] = rng.IntN(len(x))
			}
			trees[i] = buildTree(x, y, sample, params, rng)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fit trees: %w", err)
	}

	return &Forest{Trees: trees, NumFeatures: d, Params: params}, nil
}

// Predict averages the trees' outputs for one feature vector.
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(x) != f.NumFeatures {
		return 0, fmt.Errorf("got %d features, want %d: %w", len(x), f.NumFeatures, ErrFeatureMismatch)
	}
	if !finite(x...) {
		return 0, ErrNonFiniteFeature
	}

	sum := 0.0
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

func (f *Forest) Save(w io.Writer) error {
	return gob.NewEncoder(w).Encode(f)
}

func Load(r io.Reader) (*Forest, error) {
	var f Forest
	if err := gob.NewDecoder(r).Decode(&f); err != nil {
		return nil, err
	}
	if len(f.Trees) == 0 || f.NumFeatures == 0 {
		return nil, fmt.Errorf("decoded forest is empty")
	}
	return &f, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
