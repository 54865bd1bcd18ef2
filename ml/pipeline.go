package ml

import (
	"fmt"
)

// Pipeline chains StandardScaler over the numeric columns, OneHotEncoder over one
// categorical column, and a GradientBoostingRegressor over the concatenation.
type Pipeline struct {
	NumericFeatures    []string
	CategoricalFeature string

	Scaler  StandardScaler
	Encoder OneHotEncoder
	Model   *GradientBoostingRegressor
}

// NewPipeline creates an unfitted pipeline for the given column layout
func NewPipeline(numeric []string, categorical string, params BoostingParams) *Pipeline {
	return &Pipeline{
		NumericFeatures:    append([]string(nil), numeric...),
		CategoricalFeature: categorical,
		Model:              NewGradientBoostingRegressor(params),
	}
}

// Fit fits every stage on the training rows
func (p *Pipeline) Fit(numeric [][]float64, categories []string, y []float64) error {
	if len(numeric) != len(categories) {
		return fmt.Errorf("%w: %d numeric rows, %d categorical values", ErrShapeMismatch, len(numeric), len(categories))
	}
	for i, row := range numeric {
		if len(row) != len(p.NumericFeatures) {
			return fmt.Errorf("row %d has %d numeric values, expected %d", i, len(row), len(p.NumericFeatures))
		}
	}

	p.Scaler.Fit(numeric)
	p.Encoder.Fit(categories)

	X := make([][]float64, len(numeric))
	for i := range numeric {
		X[i] = p.transform(numeric[i], categories[i])
	}
	return p.Model.Fit(X, y)
}

func (p *Pipeline) transform(numeric []float64, category string) []float64 {
	row := make([]float64, 0, len(numeric)+p.Encoder.Width())
	row = p.Scaler.TransformInto(row, numeric)
	return p.Encoder.EncodeInto(row, category)
}

// Predict scores one row
func (p *Pipeline) Predict(numeric []float64, category string) float64 {
	return p.Model.Predict(p.transform(numeric, category))
}

// PredictBatch scores many rows
func (p *Pipeline) PredictBatch(numeric [][]float64, categories []string) []float64 {
	out := make([]float64, len(numeric))
	for i := range numeric {
		out[i] = p.Predict(numeric[i], categories[i])
	}
	return out
}

// FeatureNames lists the transformed columns: numeric names followed by "<categorical>_<value>"
func (p *Pipeline) FeatureNames() []string {
	names := make([]string, 0, len(p.NumericFeatures)+p.Encoder.Width())
	names = append(names, p.NumericFeatures...)
	for _, c := range p.Encoder.Categories {
		names = append(names, p.CategoricalFeature+"_"+c)
	}
	return names
}

// FeatureImportance maps each transformed column to its normalized split gain
func (p *Pipeline) FeatureImportance() map[string]float64 {
	names := p.FeatureNames()
	out := make(map[string]float64, len(names))
	for i, name := range names {
		if i < len(p.Model.Importances) {
			out[name] = p.Model.Importances[i]
		} else {
			out[name] = 0
		}
	}
	return out
}
