package forecast

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ServiceConfig collects the tunables of the forecasting service
type ServiceConfig struct {
	Trainer           TrainerConfig
	TopProductsTTL    time.Duration
	PredictionWorkers int
}

// TrainResponse reports a training request
type TrainResponse struct {
	Success           bool                    `json:"success"`
	Models            []Horizon               `json:"models,omitempty"`
	Error             string                  `json:"error,omitempty"`
	DataPoints        *int                    `json:"data_points"`
	FeatureImportance map[string]float64      `json:"feature_importance,omitempty"`
	RunID             string                  `json:"run_id,omitempty"`
	Metrics           map[Horizon]EvalMetrics `json:"metrics,omitempty"`
}

// PredictResponse reports a single-product prediction
type PredictResponse struct {
	Success    bool      `json:"success"`
	ProductID  string    `json:"product_id"`
	Prediction float64   `json:"prediction"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
	Horizon    Horizon   `json:"horizon"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}

// ModelStatusResponse reports which artifacts exist
type ModelStatusResponse struct {
	TenantID           string                   `json:"tenant_id"`
	Models             map[Horizon]ArtifactInfo `json:"models"`
	AllModelsAvailable bool                     `json:"all_models_available"`
	Error              string                   `json:"error,omitempty"`
}

// FeatureImportanceResponse reports a model's normalized feature importance
type FeatureImportanceResponse struct {
	Success           bool               `json:"success"`
	Horizon           Horizon            `json:"horizon,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// TopProductsPredictions is the per-horizon ranking payload
type TopProductsPredictions struct {
	Daily   []TopProductItem `json:"daily"`
	Weekly  []TopProductItem `json:"weekly"`
	Monthly []TopProductItem `json:"monthly"`
}

// TopProductsResponse reports the ranked catalog
type TopProductsResponse struct {
	Success     bool                    `json:"success"`
	Predictions *TopProductsPredictions `json:"predictions,omitempty"`
	Timestamp   *time.Time              `json:"timestamp,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// Service is the application-facing forecasting API. Domain failures come back
// as responses with Success=false and Error set, never as Go errors.
type Service struct {
	data        Datastore
	store       ModelStore
	models      ModelCache
	predictions PredictionCache
	pool        *WorkerPool
	cfg         ServiceConfig

	trainer   *Trainer
	predictor *Predictor
	top       *TopProducts

	lock TrainingLock

	mu        sync.RWMutex
	observers []TrainingObserver
	now       func() time.Time
}

// NewService wires the trainer, predictor and top-products aggregator around one
// datastore, one model store and the two caches.
func NewService(data Datastore, store ModelStore, models ModelCache, predictions PredictionCache, pool *WorkerPool, cfg ServiceConfig) *Service {
	if pool == nil {
		pool = NewWorkerPool(1)
	}
	predictor := NewPredictor(store, models, data)
	return &Service{
		data:        data,
		store:       store,
		models:      models,
		predictions: predictions,
		pool:        pool,
		cfg:         cfg,
		trainer:     NewTrainer(store, models, predictions, pool, cfg.Trainer),
		predictor:   predictor,
		top:         NewTopProducts(predictor, data, predictions, cfg.TopProductsTTL, cfg.PredictionWorkers),
		now:         time.Now,
	}
}

// SetClock replaces the time source of the service and its components
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.trainer.now = now
	s.predictor.now = now
	s.top.now = now
}

// SetTrainingLock makes Train refuse to start while another run holds the tenant's lock
func (s *Service) SetTrainingLock(lock TrainingLock) {
	s.lock = lock
}

// Subscribe registers an observer for training events
func (s *Service) Subscribe(obs TrainingObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *Service) publish(event TrainingEvent) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, obs := range observers {
		obs(event)
	}
}

// Train fits the tenant's models. Unless force is set, existing models for every
// horizon are reused and reported without refitting.
func (s *Service) Train(ctx context.Context, tenantID string, force bool) TrainResponse {
	if !force {
		status := s.ModelStatus(ctx, tenantID)
		if status.AllModelsAvailable {
			fi := s.FeatureImportance(ctx, tenantID, string(HorizonDaily))
			return TrainResponse{
				Success:           true,
				Models:            append([]Horizon(nil), AllHorizons...),
				FeatureImportance: fi.FeatureImportance,
			}
		}
	}

	runID := uuid.NewString()
	if s.lock != nil {
		acquired, err := s.lock.TryLock(ctx, tenantID, runID)
		if err != nil {
			log.Printf("⚠️  Training lock unavailable for tenant %s, continuing without it: %v", tenantID, err)
		} else if !acquired {
			return TrainResponse{Success: false, Error: ErrTrainingInProgress.Error()}
		} else {
			defer func() {
				if err := s.lock.Unlock(context.Background(), tenantID, runID); err != nil {
					log.Printf("⚠️  Failed to release training lock for tenant %s: %v", tenantID, err)
				}
			}()
		}
	}

	started := s.now()
	s.publish(TrainingEvent{Type: EventTrainingStarted, RunID: runID, TenantID: tenantID, At: started})

	fail := func(err error) TrainResponse {
		if IsInsufficientData(err) {
			log.Printf("ℹ️  Skipping training for tenant %s: %v", tenantID, err)
		} else {
			log.Printf("❌ Training failed for tenant %s: %v", tenantID, err)
		}
		s.publish(TrainingEvent{
			Type:     EventTrainingFailed,
			RunID:    runID,
			TenantID: tenantID,
			Error:    err.Error(),
			Duration: s.now().Sub(started),
			At:       s.now(),
		})
		return TrainResponse{Success: false, Error: err.Error(), RunID: runID}
	}

	transactions, err := s.data.ListTransactions(ctx, tenantID)
	if err != nil {
		return fail(fmt.Errorf("load sales history: %w", err))
	}

	rows := PrepareSalesData(transactions)
	if len(rows) < s.trainer.cfg.MinRows {
		return fail(&InsufficientDataError{Rows: len(rows), Required: s.trainer.cfg.MinRows})
	}

	var table FeatureTable
	if err := s.pool.Do(ctx, func() error {
		table = GenerateFeatures(rows)
		return nil
	}); err != nil {
		return fail(err)
	}

	result, err := s.trainer.train(ctx, runID, tenantID, table)
	if err != nil {
		return fail(err)
	}

	fi := s.FeatureImportance(ctx, tenantID, string(HorizonDaily))
	dataPoints := len(rows)
	s.publish(TrainingEvent{
		Type:       EventTrainingCompleted,
		RunID:      runID,
		TenantID:   tenantID,
		Horizons:   result.Horizons(),
		DataPoints: dataPoints,
		Metrics:    result.Metrics,
		Duration:   s.now().Sub(started),
		At:         s.now(),
	})

	return TrainResponse{
		Success:           true,
		Models:            result.Horizons(),
		DataPoints:        &dataPoints,
		FeatureImportance: fi.FeatureImportance,
		RunID:             runID,
		Metrics:           result.Metrics,
	}
}

// Predict scores one product
func (s *Service) Predict(ctx context.Context, req PredictRequest) PredictResponse {
	pred, err := s.predictor.Predict(ctx, req)
	if err != nil {
		if !IsModelNotFound(err) {
			log.Printf("⚠️  Prediction failed for tenant %s product %s: %v", req.TenantID, req.ProductID, err)
		}
		return PredictResponse{
			Success:   false,
			ProductID: req.ProductID,
			Horizon:   req.Horizon,
			Timestamp: s.now(),
			Error:     err.Error(),
		}
	}
	return PredictResponse{
		Success:    true,
		ProductID:  pred.ProductID,
		Prediction: pred.Value,
		LowerBound: pred.LowerBound,
		UpperBound: pred.UpperBound,
		Horizon:    pred.Horizon,
		Timestamp:  pred.Timestamp,
	}
}

// ModelStatus reports, per horizon, whether an artifact exists plus its write time and size
func (s *Service) ModelStatus(ctx context.Context, tenantID string) ModelStatusResponse {
	resp := ModelStatusResponse{
		TenantID:           tenantID,
		Models:             make(map[Horizon]ArtifactInfo, len(AllHorizons)),
		AllModelsAvailable: true,
	}
	for _, h := range AllHorizons {
		info, err := s.store.Stat(ctx, tenantID, h)
		if err != nil {
			resp.Error = err.Error()
		}
		resp.Models[h] = info
		if !info.Exists {
			resp.AllModelsAvailable = false
		}
	}
	return resp
}

// FeatureImportance reports the normalized importance of each transformed feature
func (s *Service) FeatureImportance(ctx context.Context, tenantID, horizon string) FeatureImportanceResponse {
	h, err := ParseHorizon(horizon)
	if err != nil {
		return FeatureImportanceResponse{Success: false, Error: err.Error()}
	}
	model, err := s.predictor.Model(ctx, tenantID, h)
	if err != nil {
		return FeatureImportanceResponse{Success: false, Horizon: h, Error: err.Error()}
	}
	return FeatureImportanceResponse{
		Success:           true,
		Horizon:           h,
		FeatureImportance: model.FeatureImportance(),
	}
}

// TopProducts ranks the tenant's catalog by predicted demand for every horizon
func (s *Service) TopProducts(ctx context.Context, tenantID string, limit int, refresh bool, category string) TopProductsResponse {
	result, err := s.top.Get(ctx, tenantID, limit, category, refresh)
	if err != nil {
		return TopProductsResponse{Success: false, Error: err.Error()}
	}
	ts := result.ComputedAt
	return TopProductsResponse{
		Success: true,
		Predictions: &TopProductsPredictions{
			Daily:   result.Daily,
			Weekly:  result.Weekly,
			Monthly: result.Monthly,
		},
		Timestamp: &ts,
	}
}

// DeleteModels removes every artifact of the tenant and drops its cached models and results
func (s *Service) DeleteModels(ctx context.Context, tenantID string) error {
	for _, h := range AllHorizons {
		if err := s.store.Delete(ctx, tenantID, h); err != nil {
			return err
		}
	}
	s.trainer.invalidate(ctx, tenantID)
	return nil
}
