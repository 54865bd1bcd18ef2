package forecast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"sales-forecast/ml"
)

// TrainerConfig configures model fitting
type TrainerConfig struct {
	MinRows       int     // minimum eligible sales rows, default 10
	TrainFraction float64 // leading share of date-ordered rows used for fitting, default 0.8
	Boosting      ml.BoostingParams
}

// DefaultTrainerConfig returns the production training settings
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		MinRows:       10,
		TrainFraction: 0.8,
		Boosting:      ml.DefaultBoostingParams(),
	}
}

// TrainingResult is the outcome of one successful training run
type TrainingResult struct {
	RunID     string
	Artifacts map[Horizon]string // horizon → stored artifact reference
	Metrics   map[Horizon]EvalMetrics
	Skipped   []Horizon
}

// Horizons lists the trained horizons in canonical order
func (r *TrainingResult) Horizons() []Horizon {
	out := make([]Horizon, 0, len(r.Artifacts))
	for _, h := range AllHorizons {
		if _, ok := r.Artifacts[h]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Trainer fits one pipeline per horizon and persists it
type Trainer struct {
	store       ModelStore
	models      ModelCache
	predictions PredictionCache
	pool        *WorkerPool
	cfg         TrainerConfig
	now         func() time.Time
}

// NewTrainer wires the trainer to its store, the caches it invalidates and the worker pool
func NewTrainer(store ModelStore, models ModelCache, predictions PredictionCache, pool *WorkerPool, cfg TrainerConfig) *Trainer {
	if cfg.MinRows <= 0 {
		cfg.MinRows = 10
	}
	if cfg.TrainFraction <= 0 || cfg.TrainFraction > 1 {
		cfg.TrainFraction = 0.8
	}
	if pool == nil {
		pool = NewWorkerPool(1)
	}
	return &Trainer{
		store:       store,
		models:      models,
		predictions: predictions,
		pool:        pool,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Train fits a model for every horizon the table can supply a target for, then stores
// them together so a failed run leaves the previous artifacts in place. Horizons whose
// forward window is longer than the table are skipped. On success the tenant's cached
// models and cached top-products results are invalidated.
func (t *Trainer) Train(ctx context.Context, tenantID string, table FeatureTable) (*TrainingResult, error) {
	return t.train(ctx, uuid.NewString(), tenantID, table)
}

func (t *Trainer) train(ctx context.Context, runID, tenantID string, table FeatureTable) (*TrainingResult, error) {
	if table.SourceRows < t.cfg.MinRows {
		return nil, &InsufficientDataError{Rows: table.SourceRows, Required: t.cfg.MinRows}
	}
	if len(table.Rows) == 0 {
		return nil, ErrNoFeatures
	}

	rows := make([]*FeatureRow, len(table.Rows))
	for i := range table.Rows {
		rows[i] = &table.Rows[i]
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	nTrain := int(float64(len(rows)) * t.cfg.TrainFraction)
	if nTrain < 1 {
		nTrain = len(rows)
	}
	train, test := rows[:nTrain], rows[nTrain:]
	log.Printf("📚 Training tenant %s: %d rows (%d train / %d test)", tenantID, len(rows), len(train), len(test))

	trainX, trainCats := featureMatrix(train)
	testX, testCats := featureMatrix(test)

	result := &TrainingResult{
		RunID:     runID,
		Artifacts: make(map[Horizon]string, len(AllHorizons)),
		Metrics:   make(map[Horizon]EvalMetrics, len(AllHorizons)),
	}
	trainedAt := t.now().UTC()

	artifacts := make(map[Horizon]*Artifact, len(AllHorizons))
	for _, h := range AllHorizons {
		if !table.HasTarget(h) {
			skip := &SchemaMismatchError{Horizon: h, Reason: fmt.Sprintf("%d days of history, %d needed", table.Days, h.Window())}
			log.Printf("⚠️  %v", skip)
			result.Skipped = append(result.Skipped, h)
			continue
		}

		var artifact *Artifact
		err := t.pool.Do(ctx, func() error {
			pipeline := ml.NewPipeline(NumericFeatureNames(), CategoryFeature, t.cfg.Boosting)
			trainY := targets(train, h)
			if err := pipeline.Fit(trainX, trainCats, trainY); err != nil {
				return err
			}

			testY := targets(test, h)
			trainPred := pipeline.PredictBatch(trainX, trainCats)
			testPred := pipeline.PredictBatch(testX, testCats)
			metrics := EvalMetrics{
				TrainMAE:  ml.MAE(trainY, trainPred),
				TrainRMSE: ml.RMSE(trainY, trainPred),
				TestMAE:   ml.MAE(testY, testPred),
				TestRMSE:  ml.RMSE(testY, testPred),
			}
			log.Printf("📈 %s model for tenant %s: train MAE %.3f RMSE %.3f | test MAE %.3f RMSE %.3f",
				h, tenantID, metrics.TrainMAE, metrics.TrainRMSE, metrics.TestMAE, metrics.TestRMSE)

			artifact = &Artifact{
				Metadata: ArtifactMetadata{
					RunID:      result.RunID,
					TenantID:   tenantID,
					Horizon:    h,
					TrainedAt:  trainedAt,
					SourceRows: table.SourceRows,
					TrainRows:  len(train),
					TestRows:   len(test),
					Metrics:    metrics,
				},
				Pipeline: pipeline,
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("Train %s model: %w", h, err)
		}
		artifacts[h] = artifact
		result.Metrics[h] = artifact.Metadata.Metrics
	}

	if len(artifacts) > 0 {
		refs, err := t.store.Save(ctx, tenantID, artifacts)
		if err != nil {
			t.invalidate(ctx, tenantID)
			return nil, fmt.Errorf("Train: %w", err)
		}
		result.Artifacts = refs
	}

	if len(result.Artifacts) == 0 {
		return nil, errors.New("Failed to train models")
	}

	t.invalidate(ctx, tenantID)
	log.Printf("✅ Trained %v models for tenant %s (run %s)", result.Horizons(), tenantID, result.RunID)
	return result, nil
}

// invalidate drops every cached model and top-products result of the tenant
func (t *Trainer) invalidate(ctx context.Context, tenantID string) {
	if t.models != nil {
		t.models.InvalidateTenant(tenantID)
	}
	if t.predictions != nil {
		if err := t.predictions.InvalidateTenant(ctx, tenantID); err != nil {
			log.Printf("⚠️  Failed to invalidate prediction cache for tenant %s: %v", tenantID, err)
		}
	}
}

func featureMatrix(rows []*FeatureRow) ([][]float64, []string) {
	X := make([][]float64, len(rows))
	cats := make([]string, len(rows))
	for i, r := range rows {
		X[i] = r.Numeric()
		cats[i] = r.Category
	}
	return X, cats
}

func targets(rows []*FeatureRow, h Horizon) []float64 {
	y := make([]float64, len(rows))
	for i, r := range rows {
		y[i] = r.Target(h)
	}
	return y
}
