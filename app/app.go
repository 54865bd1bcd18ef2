package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"sales-forecast/api"
	"sales-forecast/auth"
	"sales-forecast/cache"
	"sales-forecast/config"
	"sales-forecast/database"
	"sales-forecast/forecast"
	"sales-forecast/metrics"
	"sales-forecast/ml"
	"sales-forecast/notifications"
	"sales-forecast/realtime"
)

// App represents the main application
type App struct {
	config         *config.Config
	db             *database.Database
	redis          *cache.RedisClient
	repo           *database.Repository
	service        *forecast.Service
	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker
	relay          *realtime.Relay
	metrics        *metrics.Metrics
	janitor        *CacheJanitor
	apiServer      *api.Server
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
		db:     nil, // Will be initialized in Start()
		redis:  nil, // Will be initialized in Start()
	}
}

// Start starts the application and blocks until shutdown
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database Connection
	fmt.Println("🗄️  Connecting to database...")
	db, err := database.Connect(database.Config{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// 2. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	a.redis = cache.NewRedisClient(a.config.RedisHost, a.config.RedisPort, a.config.RedisPassword)
	if a.redis == nil {
		fmt.Println("⚠️  Redis connection failed. Using in-process caches, locks and events.")
	}

	// Initialize schema (AutoMigrate)
	a.repo = database.NewRepository(a.db)
	if err := a.repo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 3. Forecasting service
	if err := a.setupForecasting(); err != nil {
		return err
	}

	// 4. Training event consumers
	a.broker = realtime.NewBroker()
	go a.broker.Run()
	a.relay = realtime.NewRelay(a.redis, a.broker)
	a.webhookManager = notifications.NewWebhookManager(a.repo, a.redis, a.config.Webhook.Timeout)

	a.service.Subscribe(a.relay.Observe)
	a.service.Subscribe(a.metrics.ObserveTraining)
	a.service.Subscribe(a.webhookManager.Observe)
	a.metrics.RegisterGauge("event_clients", "Connected SSE and websocket clients.", func() float64 {
		return float64(a.broker.ClientCount())
	})
	a.metrics.RegisterGauge("db_open_connections", "Open database connections in the pool.", func() float64 {
		stats, err := a.db.PoolStats()
		if err != nil {
			return 0
		}
		return float64(stats.OpenConnections)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.relay.Run(ctx)
	}()

	// 5. Start API Server after dependencies are initialized
	a.apiServer = api.NewServer(a.service, a.repo, a.webhookManager, a.broker, auth.NewResolver(a.config.API.JWTSecret))
	a.apiServer.SetMetrics(a.metrics)
	a.apiServer.SetHealthCheck(a.db)
	go func() {
		if err := a.apiServer.Start(a.config.API.Port); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	// 6. Wait for interrupt and perform graceful shutdown
	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// setupForecasting wires the model store, caches, worker pool and training lock into the service
func (a *App) setupForecasting() error {
	fc := a.config.Forecast

	store, err := forecast.NewFileModelStore(fc.ModelDir)
	if err != nil {
		return fmt.Errorf("model store initialization failed: %w", err)
	}

	a.metrics = metrics.New()

	predictions, memory := newPredictionCache(fc.PredictionCacheBackend, a.redis, fc.TopProductsTTL)
	if memory != nil {
		a.janitor = NewCacheJanitor(memory, fc.TopProductsTTL, fc.CacheSweepInterval)
		go a.janitor.Start()
	}

	models := cache.NewModelCache()
	a.metrics.RegisterGauge("cached_models", "Decoded model artifacts held in memory.", func() float64 {
		return float64(models.Len())
	})

	a.service = forecast.NewService(
		a.repo,
		store,
		models,
		a.metrics.InstrumentPredictionCache(predictions),
		forecast.NewWorkerPool(fc.TrainingWorkers),
		forecast.ServiceConfig{
			Trainer:           trainerConfig(fc),
			TopProductsTTL:    fc.TopProductsTTL,
			PredictionWorkers: fc.PredictionWorkers,
		},
	)
	a.service.SetTrainingLock(cache.NewTrainingLock(a.redis, cache.DefaultTrainingLockTTL))

	log.Printf("✅ Forecasting ready (models in %s, %d training workers)", store.Location(), fc.TrainingWorkers)
	return nil
}

// trainerConfig maps configuration onto trainer settings
func trainerConfig(fc config.ForecastConfig) forecast.TrainerConfig {
	tc := forecast.DefaultTrainerConfig()
	if fc.MinTrainingRows > 0 {
		tc.MinRows = fc.MinTrainingRows
	}
	tc.Boosting = ml.BoostingParams{
		NEstimators:  fc.GBMEstimators,
		LearningRate: fc.GBMLearningRate,
		MaxDepth:     fc.GBMMaxDepth,
		Seed:         fc.GBMSeed,
	}
	defaults := ml.DefaultBoostingParams()
	if tc.Boosting.NEstimators <= 0 {
		tc.Boosting.NEstimators = defaults.NEstimators
	}
	if tc.Boosting.LearningRate <= 0 {
		tc.Boosting.LearningRate = defaults.LearningRate
	}
	if tc.Boosting.MaxDepth <= 0 {
		tc.Boosting.MaxDepth = defaults.MaxDepth
	}
	return tc
}

// newPredictionCache picks the top-products cache backend. The in-memory cache is also
// returned on its own so a janitor can sweep it; it is nil for the Redis backend.
func newPredictionCache(backend string, redis *cache.RedisClient, ttl time.Duration) (forecast.PredictionCache, *cache.MemoryPredictionCache) {
	if strings.EqualFold(backend, "redis") {
		if redis != nil {
			log.Println("✅ Top-products cache: Redis")
			return cache.NewRedisPredictionCache(redis, ttl), nil
		}
		log.Println("⚠️  PREDICTION_CACHE_BACKEND=redis but Redis is unavailable, using memory")
	}
	memory := cache.NewMemoryPredictionCache()
	return memory, memory
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop all goroutines
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown tasks with timeout
	shutdownComplete := make(chan struct{})
	go func() {
		if a.apiServer != nil {
			fmt.Println("🌐 Stopping API server...")
			if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error stopping API server: %v", err)
			}
		}
		if a.janitor != nil {
			fmt.Println("🧹 Stopping cache janitor...")
			a.janitor.Stop()
		}
		if a.broker != nil {
			fmt.Println("📡 Closing event streams...")
			a.broker.Stop()
		}
		if a.webhookManager != nil {
			fmt.Println("🔔 Waiting for webhook deliveries...")
			a.webhookManager.Wait()
		}

		// Close database connection
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		// Close Redis connection
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
