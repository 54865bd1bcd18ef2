// Package ml implements the regression pipeline used by the forecasting service:
// numeric standardization, one-hot encoding of a single categorical column and a
// gradient-boosted ensemble of shallow regression trees.
//
// Everything in this package is deterministic for a fixed seed and safe for concurrent
// Predict calls once fitted. Fit is not safe for concurrent use.
package ml

import (
	"math"
	"sort"
)

// StandardScaler removes the mean and scales each column to unit variance.
// Constant columns keep a scale of 1 so they transform to 0.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit computes per-column mean and population standard deviation
func (s *StandardScaler) Fit(X [][]float64) {
	if len(X) == 0 {
		s.Mean, s.Scale = nil, nil
		return
	}
	cols := len(X[0])
	s.Mean = make([]float64, cols)
	s.Scale = make([]float64, cols)

	n := float64(len(X))
	for _, row := range X {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	for _, row := range X {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Scale[j] += d * d
		}
	}
	for j := range s.Scale {
		std := math.Sqrt(s.Scale[j] / n)
		if std < 1e-12 || math.IsNaN(std) {
			std = 1
		}
		s.Scale[j] = std
	}
}

// TransformInto appends the scaled copy of row to dst
func (s *StandardScaler) TransformInto(dst, row []float64) []float64 {
	for j, v := range row {
		if j >= len(s.Mean) {
			dst = append(dst, v)
			continue
		}
		dst = append(dst, (v-s.Mean[j])/s.Scale[j])
	}
	return dst
}

// OneHotEncoder maps a categorical value to an indicator vector.
// Values not seen during Fit encode to all zeros.
type OneHotEncoder struct {
	Categories []string
	index      map[string]int
}

// Fit records the sorted set of distinct values
func (e *OneHotEncoder) Fit(values []string) {
	seen := make(map[string]struct{}, 16)
	for _, v := range values {
		seen[v] = struct{}{}
	}
	e.Categories = make([]string, 0, len(seen))
	for v := range seen {
		e.Categories = append(e.Categories, v)
	}
	sort.Strings(e.Categories)
	e.buildIndex()
}

func (e *OneHotEncoder) buildIndex() {
	e.index = make(map[string]int, len(e.Categories))
	for i, c := range e.Categories {
		e.index[c] = i
	}
}

// Width is the number of indicator columns produced
func (e *OneHotEncoder) Width() int {
	return len(e.Categories)
}

// EncodeInto appends the indicator vector for value to dst
func (e *OneHotEncoder) EncodeInto(dst []float64, value string) []float64 {
	start := len(dst)
	for range e.Categories {
		dst = append(dst, 0)
	}
	if i, ok := e.index[value]; ok {
		dst[start+i] = 1
	}
	return dst
}
