package ml

import (
	"errors"
	"fmt"
	"math/rand"
)

// BoostingParams configures GradientBoostingRegressor
type BoostingParams struct {
	NEstimators  int
	LearningRate float64
	MaxDepth     int
	Seed         int64
}

// DefaultBoostingParams: 100 trees, learning rate 0.1, depth 3, seed 42
func DefaultBoostingParams() BoostingParams {
	return BoostingParams{
		NEstimators:  100,
		LearningRate: 0.1,
		MaxDepth:     3,
		Seed:         42,
	}
}

var (
	ErrEmptyTrainingSet = errors.New("ml: empty training set")
	ErrShapeMismatch    = errors.New("ml: feature and target lengths differ")
)

// GradientBoostingRegressor fits an additive model of regression trees on squared loss.
// The ensemble starts from the target mean and each tree fits the current residuals.
type GradientBoostingRegressor struct {
	Params      BoostingParams
	Init        float64
	Trees       []RegressionTree
	NumFeatures int

	// Importances is the split gain per feature, normalized to sum to 1 (all zero when no split was made)
	Importances []float64
}

// NewGradientBoostingRegressor creates an unfitted regressor
func NewGradientBoostingRegressor(params BoostingParams) *GradientBoostingRegressor {
	if params.NEstimators <= 0 {
		params.NEstimators = 100
	}
	if params.LearningRate <= 0 {
		params.LearningRate = 0.1
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = 3
	}
	return &GradientBoostingRegressor{Params: params}
}

// Fit trains the ensemble on X (rows) and y
func (g *GradientBoostingRegressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(X), len(y))
	}

	n := len(X)
	g.NumFeatures = len(X[0])

	var mean float64
	for _, v := range y {
		mean += v
	}
	g.Init = mean / float64(n)

	bins := newBinner(X)
	grower := &treeGrower{
		bins:       bins,
		binned:     bins.transform(X),
		maxDepth:   g.Params.MaxDepth,
		importance: make([]float64, g.NumFeatures),
		sums:       make([]float64, maxBins),
		counts:     make([]int, maxBins),
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.Init
	}
	residual := make([]float64, n)
	samples := make([]int, n)
	for i := range samples {
		samples[i] = i
	}

	// The seed only decides the order features are scanned in, which breaks gain ties
	rng := rand.New(rand.NewSource(g.Params.Seed))

	g.Trees = make([]RegressionTree, 0, g.Params.NEstimators)
	for m := 0; m < g.Params.NEstimators; m++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		grower.target = residual
		grower.order = rng.Perm(g.NumFeatures)

		var tree RegressionTree
		grower.grow(&tree, samples, 0)
		for i, row := range X {
			pred[i] += g.Params.LearningRate * tree.Predict(row)
		}
		g.Trees = append(g.Trees, tree)
	}

	g.Importances = normalize(grower.importance)
	return nil
}

// Predict returns the ensemble output for one row
func (g *GradientBoostingRegressor) Predict(row []float64) float64 {
	out := g.Init
	for i := range g.Trees {
		out += g.Params.LearningRate * g.Trees[i].Predict(row)
	}
	return out
}

func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	var total float64
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}
