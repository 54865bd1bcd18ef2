package ml

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Fitted pipelines are stored in protobuf wire format, written field by field.
//
//	Pipeline:  1 numeric_feature (repeated string), 2 categorical_feature (string),
//	           3 scaler_mean (packed double), 4 scaler_scale (packed double),
//	           5 category (repeated string), 6 model (Booster)
//	Booster:   1 n_estimators, 2 learning_rate (double), 3 max_depth, 4 seed (zigzag),
//	           5 init (double), 6 num_features, 7 importances (packed double), 8 tree (repeated Tree)
//	Tree:      1 node (repeated Node)
//	Node:      1 feature (zigzag), 2 threshold (double), 3 left, 4 right, 5 value (double)

var ErrCorruptModel = errors.New("ml: corrupt model encoding")

// MarshalBinary encodes a fitted pipeline
func (p *Pipeline) MarshalBinary() ([]byte, error) {
	if p.Model == nil {
		return nil, fmt.Errorf("ml: pipeline has no model")
	}
	var b []byte
	for _, name := range p.NumericFeatures {
		b = appendString(b, 1, name)
	}
	b = appendString(b, 2, p.CategoricalFeature)
	b = appendDoubles(b, 3, p.Scaler.Mean)
	b = appendDoubles(b, 4, p.Scaler.Scale)
	for _, c := range p.Encoder.Categories {
		b = appendString(b, 5, c)
	}
	b = protowire.AppendTag(b, 6, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalBooster(p.Model))
	return b, nil
}

// UnmarshalBinary decodes a pipeline written by MarshalBinary
func (p *Pipeline) UnmarshalBinary(data []byte) error {
	*p = Pipeline{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			p.NumericFeatures = append(p.NumericFeatures, v)
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			p.CategoricalFeature = v
			return n
		case num == 3 && typ == protowire.BytesType:
			v, n := consumeDoubles(b)
			p.Scaler.Mean = v
			return n
		case num == 4 && typ == protowire.BytesType:
			v, n := consumeDoubles(b)
			p.Scaler.Scale = v
			return n
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			p.Encoder.Categories = append(p.Encoder.Categories, v)
			return n
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			model, err := unmarshalBooster(v)
			if err != nil {
				return -1
			}
			p.Model = model
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	if err != nil {
		return err
	}
	if p.Model == nil {
		return fmt.Errorf("%w: missing model", ErrCorruptModel)
	}
	if len(p.Scaler.Mean) != len(p.NumericFeatures) || len(p.Scaler.Scale) != len(p.NumericFeatures) {
		return fmt.Errorf("%w: scaler width does not match %d numeric features", ErrCorruptModel, len(p.NumericFeatures))
	}
	if width := len(p.NumericFeatures) + len(p.Encoder.Categories); p.Model.NumFeatures != width {
		return fmt.Errorf("%w: model expects %d features, pipeline produces %d", ErrCorruptModel, p.Model.NumFeatures, width)
	}
	p.Encoder.buildIndex()
	return nil
}

func marshalBooster(g *GradientBoostingRegressor) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(g.Params.NEstimators))
	b = appendDouble(b, 2, g.Params.LearningRate)
	b = appendVarint(b, 3, uint64(g.Params.MaxDepth))
	b = appendVarint(b, 4, protowire.EncodeZigZag(g.Params.Seed))
	b = appendDouble(b, 5, g.Init)
	b = appendVarint(b, 6, uint64(g.NumFeatures))
	b = appendDoubles(b, 7, g.Importances)
	for i := range g.Trees {
		var tb []byte
		for _, node := range g.Trees[i].Nodes {
			var nb []byte
			nb = appendVarint(nb, 1, protowire.EncodeZigZag(int64(node.Feature)))
			nb = appendDouble(nb, 2, node.Threshold)
			nb = appendVarint(nb, 3, uint64(node.Left))
			nb = appendVarint(nb, 4, uint64(node.Right))
			nb = appendDouble(nb, 5, node.Value)
			tb = protowire.AppendTag(tb, 1, protowire.BytesType)
			tb = protowire.AppendBytes(tb, nb)
		}
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, tb)
	}
	return b
}

func unmarshalBooster(data []byte) (*GradientBoostingRegressor, error) {
	g := &GradientBoostingRegressor{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case typ == protowire.VarintType && num >= 1 && num <= 6 && num != 2 && num != 5:
			v, n := protowire.ConsumeVarint(b)
			switch num {
			case 1:
				g.Params.NEstimators = int(v)
			case 3:
				g.Params.MaxDepth = int(v)
			case 4:
				g.Params.Seed = protowire.DecodeZigZag(v)
			case 6:
				g.NumFeatures = int(v)
			}
			return n
		case typ == protowire.Fixed64Type && (num == 2 || num == 5):
			v, n := protowire.ConsumeFixed64(b)
			if num == 2 {
				g.Params.LearningRate = math.Float64frombits(v)
			} else {
				g.Init = math.Float64frombits(v)
			}
			return n
		case num == 7 && typ == protowire.BytesType:
			v, n := consumeDoubles(b)
			g.Importances = v
			return n
		case num == 8 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			tree, err := unmarshalTree(v)
			if err != nil {
				return -1
			}
			g.Trees = append(g.Trees, tree)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	if err != nil {
		return nil, err
	}
	for t := range g.Trees {
		for i, node := range g.Trees[t].Nodes {
			if node.Feature >= g.NumFeatures {
				return nil, fmt.Errorf("%w: tree %d node %d splits on feature %d of %d", ErrCorruptModel, t, i, node.Feature, g.NumFeatures)
			}
		}
	}
	return g, nil
}

func unmarshalTree(data []byte) (RegressionTree, error) {
	var tree RegressionTree
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		node := treeNode{Feature: -1}
		if err := walkFields(v, func(num protowire.Number, typ protowire.Type, b []byte) int {
			switch {
			case typ == protowire.VarintType:
				x, m := protowire.ConsumeVarint(b)
				switch num {
				case 1:
					node.Feature = int(protowire.DecodeZigZag(x))
				case 3:
					node.Left = int(x)
				case 4:
					node.Right = int(x)
				}
				return m
			case typ == protowire.Fixed64Type:
				x, m := protowire.ConsumeFixed64(b)
				switch num {
				case 2:
					node.Threshold = math.Float64frombits(x)
				case 5:
					node.Value = math.Float64frombits(x)
				}
				return m
			}
			return protowire.ConsumeFieldValue(num, typ, b)
		}); err != nil {
			return -1
		}
		tree.Nodes = append(tree.Nodes, node)
		return n
	})
	if err != nil {
		return tree, err
	}
	for i, node := range tree.Nodes {
		if node.Feature >= 0 && (node.Left >= len(tree.Nodes) || node.Right >= len(tree.Nodes) || node.Left <= i || node.Right <= i) {
			return tree, fmt.Errorf("%w: node %d has invalid children", ErrCorruptModel, i)
		}
	}
	return tree, nil
}

// walkFields calls fn for every field in b. fn returns the number of value bytes consumed,
// or a negative protowire error code.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptModel, protowire.ParseError(n))
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrCorruptModel, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendDoubles(b []byte, num protowire.Number, values []float64) []byte {
	packed := make([]byte, 0, 8*len(values))
	for _, v := range values {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func consumeDoubles(b []byte) ([]float64, int) {
	packed, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, n
	}
	out := make([]float64, 0, len(packed)/8)
	for len(packed) > 0 {
		v, m := protowire.ConsumeFixed64(packed)
		if m < 0 {
			return nil, m
		}
		out = append(out, math.Float64frombits(v))
		packed = packed[m:]
	}
	return out, n
}
