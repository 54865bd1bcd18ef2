package config

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "12")
	t.Setenv("CFG_TEST_BAD_INT", "twelve")
	t.Setenv("CFG_TEST_FLOAT", "0.25")
	t.Setenv("CFG_TEST_DUR", "90s")
	t.Setenv("CFG_TEST_BAD_DUR", "-5m")

	if got := getEnvInt("CFG_TEST_INT", 1); got != 12 {
		t.Errorf("getEnvInt = %d, want 12", got)
	}
	if got := getEnvInt("CFG_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt with bad value = %d, want default 7", got)
	}
	if got := getEnvFloat("CFG_TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvFloat = %v, want 0.25", got)
	}
	if got := getEnvDuration("CFG_TEST_DUR", time.Hour); got != 90*time.Second {
		t.Errorf("getEnvDuration = %v, want 90s", got)
	}
	if got := getEnvDuration("CFG_TEST_BAD_DUR", time.Hour); got != time.Hour {
		t.Errorf("getEnvDuration with negative value = %v, want default", got)
	}
	if got := getEnvOrDefault("CFG_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getEnvOrDefault = %q, want fallback", got)
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("MODEL_DIR", "")
	t.Setenv("TOP_PRODUCTS_TTL", "")
	t.Setenv("MIN_TRAINING_ROWS", "")

	cfg := LoadFromEnv()
	if cfg.Forecast.ModelDir != "models" {
		t.Errorf("ModelDir = %q, want models", cfg.Forecast.ModelDir)
	}
	if cfg.Forecast.TopProductsTTL != time.Hour {
		t.Errorf("TopProductsTTL = %v, want 1h", cfg.Forecast.TopProductsTTL)
	}
	if cfg.Forecast.MinTrainingRows != 10 {
		t.Errorf("MinTrainingRows = %d, want 10", cfg.Forecast.MinTrainingRows)
	}
	if cfg.Forecast.GBMEstimators != 100 || cfg.Forecast.GBMMaxDepth != 3 || cfg.Forecast.GBMSeed != 42 {
		t.Errorf("unexpected boosting defaults: %+v", cfg.Forecast)
	}
}
