package ml

import (
	"sort"
)

const (
	// maxBins bounds the histogram width per feature so bin indices fit in a byte
	maxBins = 256

	// minSplitGain is the smallest SSE reduction accepted for a split
	minSplitGain = 1e-12
)

// binner discretizes each feature column into at most maxBins buckets.
// Bucket j holds values x with thresholds[j-1] < x <= thresholds[j].
type binner struct {
	thresholds [][]float64
}

func newBinner(X [][]float64) *binner {
	if len(X) == 0 {
		return &binner{}
	}
	cols := len(X[0])
	b := &binner{thresholds: make([][]float64, cols)}

	column := make([]float64, len(X))
	for f := 0; f < cols; f++ {
		for i, row := range X {
			column[i] = row[f]
		}
		b.thresholds[f] = splitCandidates(column)
	}
	return b
}

// splitCandidates returns sorted midpoints between distinct values,
// thinned to quantiles when there are too many distinct values.
func splitCandidates(column []float64) []float64 {
	sorted := append([]float64(nil), column...)
	sort.Float64s(sorted)

	uniq := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) < 2 {
		return nil
	}

	if len(uniq) <= maxBins {
		out := make([]float64, 0, len(uniq)-1)
		for i := 1; i < len(uniq); i++ {
			out = append(out, (uniq[i-1]+uniq[i])/2)
		}
		return out
	}

	out := make([]float64, 0, maxBins-1)
	for k := 1; k < maxBins; k++ {
		idx := k * len(uniq) / maxBins
		thr := (uniq[idx-1] + uniq[idx]) / 2
		if len(out) == 0 || thr > out[len(out)-1] {
			out = append(out, thr)
		}
	}
	return out
}

// transform returns the binned matrix in column-major order
func (b *binner) transform(X [][]float64) [][]uint8 {
	binned := make([][]uint8, len(b.thresholds))
	for f, thr := range b.thresholds {
		col := make([]uint8, len(X))
		for i, row := range X {
			col[i] = uint8(sort.SearchFloat64s(thr, row[f]))
		}
		binned[f] = col
	}
	return binned
}

// treeNode is a split when Feature >= 0, a leaf otherwise
type treeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// RegressionTree is a binary tree fitted to minimize squared error
type RegressionTree struct {
	Nodes []treeNode
}

// Predict walks the tree for one raw feature row
func (t *RegressionTree) Predict(row []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeGrower holds the state shared by every node of one tree fit
type treeGrower struct {
	bins       *binner
	binned     [][]uint8
	target     []float64
	maxDepth   int
	order      []int
	importance []float64

	sums   []float64
	counts []int
}

func (g *treeGrower) grow(tree *RegressionTree, samples []int, depth int) int {
	var sum float64
	for _, i := range samples {
		sum += g.target[i]
	}
	n := len(samples)

	id := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, treeNode{Feature: -1, Value: sum / float64(n)})

	if depth >= g.maxDepth || n < 2 {
		return id
	}

	bestGain := minSplitGain
	bestFeature, bestBin := -1, -1
	parentScore := sum * sum / float64(n)

	for _, f := range g.order {
		thr := g.bins.thresholds[f]
		if len(thr) == 0 {
			continue
		}
		width := len(thr) + 1
		sums, counts := g.sums[:width], g.counts[:width]
		for j := range sums {
			sums[j], counts[j] = 0, 0
		}
		col := g.binned[f]
		for _, i := range samples {
			b := col[i]
			sums[b] += g.target[i]
			counts[b]++
		}

		var leftSum float64
		leftCount := 0
		for j := 0; j < width-1; j++ {
			leftSum += sums[j]
			leftCount += counts[j]
			rightCount := n - leftCount
			if leftCount == 0 || rightCount == 0 {
				continue
			}
			rightSum := sum - leftSum
			gain := leftSum*leftSum/float64(leftCount) + rightSum*rightSum/float64(rightCount) - parentScore
			if gain > bestGain {
				bestGain, bestFeature, bestBin = gain, f, j
			}
		}
	}

	if bestFeature < 0 {
		return id
	}

	left := make([]int, 0, n)
	right := make([]int, 0, n)
	col := g.binned[bestFeature]
	for _, i := range samples {
		if int(col[i]) <= bestBin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	g.importance[bestFeature] += bestGain

	l := g.grow(tree, left, depth+1)
	r := g.grow(tree, right, depth+1)
	tree.Nodes[id].Feature = bestFeature
	tree.Nodes[id].Threshold = g.bins.thresholds[bestFeature][bestBin]
	tree.Nodes[id].Left = l
	tree.Nodes[id].Right = r
	return id
}
