package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"sales-forecast/ml"
)

// EvalMetrics are the error measures logged after fitting one horizon
type EvalMetrics struct {
	TrainMAE  float64 `json:"train_mae"`
	TrainRMSE float64 `json:"train_rmse"`
	TestMAE   float64 `json:"test_mae"`
	TestRMSE  float64 `json:"test_rmse"`
}

// ArtifactMetadata describes the training run that produced an artifact
type ArtifactMetadata struct {
	RunID      string      `json:"run_id"`
	TenantID   string      `json:"tenant_id"`
	Horizon    Horizon     `json:"horizon"`
	TrainedAt  time.Time   `json:"trained_at"`
	SourceRows int         `json:"source_rows"`
	TrainRows  int         `json:"train_rows"`
	TestRows   int         `json:"test_rows"`
	Metrics    EvalMetrics `json:"metrics"`
}

// Artifact is a fitted pipeline plus its metadata, persisted per (tenant, horizon)
type Artifact struct {
	Metadata ArtifactMetadata
	Pipeline *ml.Pipeline
}

// Predict scores one feature row
func (a *Artifact) Predict(row *FeatureRow) float64 {
	return a.Pipeline.Predict(row.Numeric(), row.Category)
}

// FeatureImportance maps transformed feature names to normalized importance
func (a *Artifact) FeatureImportance() map[string]float64 {
	return a.Pipeline.FeatureImportance()
}

var errCorruptArtifact = errors.New("corrupt model artifact")

// Artifact wire layout (protobuf encoding):
//
//	1 run_id, 2 tenant_id, 3 horizon (strings), 4 trained_at (unix nanos, zigzag),
//	5 source_rows, 6 train_rows, 7 test_rows (varint),
//	8 train_mae, 9 train_rmse, 10 test_mae, 11 test_rmse (double), 12 pipeline (bytes)

// MarshalBinary encodes the artifact
func (a *Artifact) MarshalBinary() ([]byte, error) {
	if a.Pipeline == nil {
		return nil, fmt.Errorf("%w: missing pipeline", errCorruptArtifact)
	}
	pipeline, err := a.Pipeline.MarshalBinary()
	if err != nil {
		return nil, err
	}
	m := a.Metadata

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.RunID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, m.TenantID)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, string(m.Horizon))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(m.TrainedAt.UnixNano()))
	for i, v := range []int{m.SourceRows, m.TrainRows, m.TestRows} {
		b = protowire.AppendTag(b, protowire.Number(5+i), protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	for i, v := range []float64{m.Metrics.TrainMAE, m.Metrics.TrainRMSE, m.Metrics.TestMAE, m.Metrics.TestRMSE} {
		b = protowire.AppendTag(b, protowire.Number(8+i), protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, 12, protowire.BytesType)
	b = protowire.AppendBytes(b, pipeline)
	return b, nil
}

// UnmarshalBinary decodes an artifact written by MarshalBinary
func (a *Artifact) UnmarshalBinary(data []byte) error {
	*a = Artifact{}
	m := &a.Metadata
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", errCorruptArtifact, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.BytesType && num <= 3:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", errCorruptArtifact, protowire.ParseError(n))
			}
			switch num {
			case 1:
				m.RunID = v
			case 2:
				m.TenantID = v
			case 3:
				m.Horizon = Horizon(v)
			}
			data = data[n:]
		case typ == protowire.VarintType && num >= 4 && num <= 7:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", errCorruptArtifact, protowire.ParseError(n))
			}
			switch num {
			case 4:
				m.TrainedAt = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
			case 5:
				m.SourceRows = int(v)
			case 6:
				m.TrainRows = int(v)
			case 7:
				m.TestRows = int(v)
			}
			data = data[n:]
		case typ == protowire.Fixed64Type && num >= 8 && num <= 11:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", errCorruptArtifact, protowire.ParseError(n))
			}
			f := math.Float64frombits(v)
			switch num {
			case 8:
				m.Metrics.TrainMAE = f
			case 9:
				m.Metrics.TrainRMSE = f
			case 10:
				m.Metrics.TestMAE = f
			case 11:
				m.Metrics.TestRMSE = f
			}
			data = data[n:]
		case typ == protowire.BytesType && num == 12:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", errCorruptArtifact, protowire.ParseError(n))
			}
			var p ml.Pipeline
			if err := p.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("%w: %v", errCorruptArtifact, err)
			}
			a.Pipeline = &p
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: %v", errCorruptArtifact, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if a.Pipeline == nil {
		return fmt.Errorf("%w: missing pipeline", errCorruptArtifact)
	}
	return nil
}
