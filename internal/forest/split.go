package forest

import (
	"math"
	"math/rand/v2"
)

// TrainTestSplit shuffles row indices with a seeded PCG and takes the first
// ceil(testRatio*n) as the test set. At least one row is kept for training.
func TrainTestSplit(n int, testRatio float64, seed uint64) (train, test []int) {
	if n <= 0 {
		return nil, nil
	}
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)

	nTest := int(math.Ceil(testRatio * float64(n)))
	nTest = min(max(nTest, 0), n-1)

	return perm[nTest:], perm[:nTest]
}

func Subset(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = x[j]
		ys[i] = y[j]
	}
	return xs, ys
}

type Metrics struct {
	Samples int
	R2      float64
	MAE     float64
}

// Evaluate scores the forest on held-out rows. R2 is NaN when the labels have
// no variance.
func (f *Forest) Evaluate(x [][]float64, y []float64) (Metrics, error) {
	m := Metrics{Samples: len(y)}
	if len(y) == 0 {
		return m, ErrNoSamples
	}

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssRes, ssTot, absErr float64
	for i := range x {
		pred, err := f.Predict(x[i])
		if err != nil {
			return m, err
		}
		diff := y[i] - pred
		ssRes += diff * diff
		ssTot += (y[i] - mean) * (y[i] - mean)
		absErr += math.Abs(diff)
	}

	m.MAE = absErr / float64(len(y))
	if ssTot == 0 {
		m.R2 = math.NaN()
	} else {
		m.R2 = 1 - ssRes/ssTot
	}
	return m, nil
}
