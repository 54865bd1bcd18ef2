package forecast

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"
)

func TestServiceTrainErrors(t *testing.T) {
	env := newTestEnv(t)
	env.data.addTransactions(dailySales("t1", "p1", "Bakery", 9, 1, 1)...)

	var events []TrainingEvent
	env.service.Subscribe(func(e TrainingEvent) { events = append(events, e) })

	resp := env.service.Train(context.Background(), "t1", true)
	if resp.Success {
		t.Fatal("training on 9 rows should fail")
	}
	if !strings.HasPrefix(resp.Error, "Not enough sales data for training") {
		t.Errorf("error = %q", resp.Error)
	}
	if len(events) != 2 || events[0].Type != EventTrainingStarted || events[1].Type != EventTrainingFailed {
		t.Fatalf("events = %+v, want started then failed", events)
	}
	if events[0].RunID != events[1].RunID {
		t.Error("started and failed events carry different run ids")
	}

	empty := env.service.Train(context.Background(), "nobody", true)
	if empty.Success || !strings.HasPrefix(empty.Error, "Not enough sales data for training") {
		t.Errorf("empty tenant train = %+v", empty)
	}
}

func TestServiceTrainIsIdempotentWithoutForce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.data.addTransactions(dailySales("t1", "p1", "Bakery", 40, 5, 2)...)

	first := env.service.Train(ctx, "t1", true)
	if !first.Success {
		t.Fatalf("Train: %s", first.Error)
	}
	if first.DataPoints == nil || *first.DataPoints != 40 {
		t.Errorf("data_points = %v, want 40", first.DataPoints)
	}
	if len(first.Models) != 3 {
		t.Fatalf("models = %v, want all horizons", first.Models)
	}

	before := env.service.ModelStatus(ctx, "t1")
	if !before.AllModelsAvailable {
		t.Fatal("all models should be available after training")
	}

	for i := 0; i < 2; i++ {
		resp := env.service.Train(ctx, "t1", false)
		if !resp.Success || len(resp.Models) != 3 {
			t.Fatalf("Train(force=false) = %+v", resp)
		}
		if resp.DataPoints != nil {
			t.Errorf("reused models should report no data points, got %d", *resp.DataPoints)
		}
		if len(resp.FeatureImportance) == 0 {
			t.Error("reused models should report daily feature importance")
		}
	}

	after := env.service.ModelStatus(ctx, "t1")
	for _, h := range AllHorizons {
		if !after.Models[h].CreatedAt.Equal(before.Models[h].CreatedAt) {
			t.Errorf("%s artifact was rewritten by Train(force=false)", h)
		}
	}
}

func TestServicePredictEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.data.addTransactions(dailySales("t1", "p1", "Bakery", 40, 5, 2)...)
	env.data.addProducts(Product{ID: "p1", TenantID: "t1", Name: "Bread", CategoryName: "Bakery", SellingPrice: 2, CurrentStock: 12})
	env.service.SetClock(func() time.Time { return dayOf(40).Add(9 * time.Hour) })

	if resp := env.service.Train(ctx, "t1", true); !resp.Success {
		t.Fatalf("Train: %s", resp.Error)
	}

	tests := []struct {
		horizon Horizon
		want    float64
	}{
		{HorizonDaily, 5},
		{HorizonWeekly, 35},
	}
	for _, tt := range tests {
		t.Run(string(tt.horizon), func(t *testing.T) {
			resp := env.service.Predict(ctx, PredictRequest{TenantID: "t1", ProductID: "p1", IncludeHistory: true, Horizon: tt.horizon})
			if !resp.Success {
				t.Fatalf("Predict: %s", resp.Error)
			}
			if math.Abs(resp.Prediction-tt.want) > 0.05 {
				t.Errorf("prediction = %v, want ~%v", resp.Prediction, tt.want)
			}
			if math.Abs(resp.LowerBound-0.8*resp.Prediction) > 1e-9 || math.Abs(resp.UpperBound-1.2*resp.Prediction) > 1e-9 {
				t.Errorf("band = [%v, %v] around %v", resp.LowerBound, resp.UpperBound, resp.Prediction)
			}
			if !resp.Timestamp.Equal(dayOf(40).Add(9 * time.Hour)) {
				t.Errorf("timestamp = %v", resp.Timestamp)
			}
		})
	}

	fi := env.service.FeatureImportance(ctx, "t1", "weekly")
	if !fi.Success {
		t.Fatalf("FeatureImportance: %s", fi.Error)
	}
	if _, ok := fi.FeatureImportance["category_Bakery"]; !ok {
		t.Error("one-hot category column missing from feature importance")
	}
	if bad := env.service.FeatureImportance(ctx, "t1", "yearly"); bad.Success {
		t.Error("unknown horizon should fail")
	}
}

func TestServicePredictWithoutModel(t *testing.T) {
	env := newTestEnv(t)
	resp := env.service.Predict(context.Background(), PredictRequest{TenantID: "t1", ProductID: "p1", Horizon: HorizonDaily})
	if resp.Success {
		t.Fatal("prediction without a model should fail")
	}
	want := "Model for daily predictions not trained yet. Please train models first."
	if resp.Error != want {
		t.Errorf("error = %q, want %q", resp.Error, want)
	}
}

func TestModelNotFoundMessages(t *testing.T) {
	tests := []struct {
		horizons []Horizon
		want     string
	}{
		{[]Horizon{HorizonMonthly}, "Model for monthly predictions not trained yet. Please train models first."},
		{AllHorizons, "Models for daily, weekly, monthly predictions not trained yet. Please train models first."},
	}
	for _, tt := range tests {
		err := &ModelNotFoundError{TenantID: "t1", Horizons: tt.horizons}
		if err.Error() != tt.want {
			t.Errorf("got %q, want %q", err.Error(), tt.want)
		}
	}
}

// seedCatalog trains t1 on two products: p-bread sells 5 a day, p-tea 2 a day
func seedCatalog(t *testing.T, env *testEnv) {
	t.Helper()
	env.data.addTransactions(dailySales("t1", "p-tea", "Drinks", 40, 2, 3)...)
	env.data.addTransactions(dailySales("t1", "p-bread", "Bakery", 40, 5, 2)...)
	env.data.addProducts(
		Product{ID: "p-tea", TenantID: "t1", Name: "Tea", CategoryName: "Drinks", SellingPrice: 3, CurrentStock: 50},
		Product{ID: "p-bread", TenantID: "t1", Name: "Bread", CategoryName: "Bakery", SellingPrice: 2, CurrentStock: 12},
	)
	if resp := env.service.Train(context.Background(), "t1", true); !resp.Success {
		t.Fatalf("Train: %s", resp.Error)
	}
}

func TestTopProductsRanking(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.service.SetClock(func() time.Time { return dayOf(40).Add(12 * time.Hour) })
	seedCatalog(t, env)

	resp := env.service.TopProducts(ctx, "t1", 10, false, "")
	if !resp.Success {
		t.Fatalf("TopProducts: %s", resp.Error)
	}
	for _, list := range [][]TopProductItem{resp.Predictions.Daily, resp.Predictions.Weekly} {
		if len(list) != 2 || list[0].ProductID != "p-bread" || list[1].ProductID != "p-tea" {
			t.Fatalf("ranking = %+v, want bread before tea", list)
		}
	}

	bread := resp.Predictions.Daily[0]
	if bread.Prediction != 5 || bread.LowerBound != 4 || bread.UpperBound != 6 {
		t.Errorf("bread daily = %v [%v, %v], want 5 [4, 6]", bread.Prediction, bread.LowerBound, bread.UpperBound)
	}
	if bread.ProductName != "Bread" || bread.Category != "Bakery" || bread.CurrentStock != 12 || bread.Price != 2 {
		t.Errorf("bread catalog fields = %+v", bread)
	}

	limited := env.service.TopProducts(ctx, "t1", 1, true, "")
	if !limited.Success || len(limited.Predictions.Daily) != 1 || len(limited.Predictions.Monthly) != 1 {
		t.Errorf("limit 1 = %+v", limited)
	}
}

func TestTopProductsCategoryFilter(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedCatalog(t, env)

	tests := []struct {
		category string
		wantIDs  []string
		wantErr  string
	}{
		{category: "bakery", wantIDs: []string{"p-bread"}},
		{category: "DRINKS", wantIDs: []string{"p-tea"}},
		{category: "Toys", wantErr: "No products found in category: Toys"},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			resp := env.service.TopProducts(ctx, "t1", 10, true, tt.category)
			if tt.wantErr != "" {
				if resp.Success || resp.Error != tt.wantErr {
					t.Errorf("got %+v, want error %q", resp, tt.wantErr)
				}
				return
			}
			if !resp.Success {
				t.Fatalf("TopProducts: %s", resp.Error)
			}
			if len(resp.Predictions.Daily) != len(tt.wantIDs) || resp.Predictions.Daily[0].ProductID != tt.wantIDs[0] {
				t.Errorf("daily = %+v, want %v", resp.Predictions.Daily, tt.wantIDs)
			}
		})
	}
}

func TestTopProductsErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing models", func(t *testing.T) {
		env := newTestEnv(t)
		env.data.addProducts(Product{ID: "p1", TenantID: "t1", Name: "Bread"})
		resp := env.service.TopProducts(ctx, "t1", 10, false, "")
		want := "Models for daily, weekly, monthly predictions not trained yet. Please train models first."
		if resp.Success || resp.Error != want {
			t.Errorf("got %+v, want %q", resp, want)
		}
	})

	t.Run("empty catalog", func(t *testing.T) {
		env := newTestEnv(t)
		env.data.addTransactions(dailySales("t1", "p1", "Bakery", 40, 5, 2)...)
		if resp := env.service.Train(ctx, "t1", true); !resp.Success {
			t.Fatalf("Train: %s", resp.Error)
		}
		resp := env.service.TopProducts(ctx, "t1", 10, false, "")
		if resp.Success || resp.Error != "No products found in inventory" {
			t.Errorf("got %+v", resp)
		}
	})
}

func TestTopProductsCacheTTL(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	now := dayOf(40).Add(12 * time.Hour)
	env.service.SetClock(func() time.Time { return now })
	seedCatalog(t, env)

	first := env.service.TopProducts(ctx, "t1", 10, false, "")
	if !first.Success {
		t.Fatalf("TopProducts: %s", first.Error)
	}

	env.data.addProducts(Product{ID: "p-jam", TenantID: "t1", Name: "Jam", CategoryName: "Bakery", SellingPrice: 4})
	calls := env.data.listCalls

	now = now.Add(30 * time.Minute)
	cached := env.service.TopProducts(ctx, "t1", 10, false, "")
	if !cached.Timestamp.Equal(*first.Timestamp) || len(cached.Predictions.Daily) != 2 {
		t.Errorf("within TTL the cached result should be served, got %d items at %v", len(cached.Predictions.Daily), cached.Timestamp)
	}
	if env.data.listCalls != calls {
		t.Error("a cache hit should not read transactions")
	}

	now = now.Add(31 * time.Minute)
	fresh := env.service.TopProducts(ctx, "t1", 10, false, "")
	if !fresh.Success {
		t.Fatalf("TopProducts: %s", fresh.Error)
	}
	if !fresh.Timestamp.Equal(now) || len(fresh.Predictions.Daily) != 3 {
		t.Errorf("after TTL a fresh result was expected, got %d items at %v", len(fresh.Predictions.Daily), fresh.Timestamp)
	}

	now = now.Add(time.Minute)
	refreshed := env.service.TopProducts(ctx, "t1", 10, true, "")
	if !refreshed.Timestamp.Equal(now) {
		t.Error("refresh=true should bypass the cache")
	}
}

func TestRetrainInvalidatesTopProducts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedCatalog(t, env)

	if resp := env.service.TopProducts(ctx, "t1", 10, false, ""); !resp.Success {
		t.Fatalf("TopProducts: %s", resp.Error)
	}
	if len(env.predictions.items) != 1 {
		t.Fatalf("expected one cached result, have %d", len(env.predictions.items))
	}

	if resp := env.service.Train(ctx, "t1", true); !resp.Success {
		t.Fatalf("retrain: %s", resp.Error)
	}
	if len(env.predictions.items) != 0 {
		t.Error("retraining must drop the tenant's cached top products")
	}
	if len(env.models.invalidated) == 0 || env.models.invalidated[len(env.models.invalidated)-1] != "t1" {
		t.Error("retraining must drop the tenant's cached models")
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 10}, {-3, 10}, {1, 1}, {100, 100}, {101, 100},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDeleteModels(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedCatalog(t, env)

	if err := env.service.DeleteModels(ctx, "t1"); err != nil {
		t.Fatalf("DeleteModels: %v", err)
	}
	status := env.service.ModelStatus(ctx, "t1")
	if status.AllModelsAvailable {
		t.Error("models still reported after deletion")
	}
	for _, h := range AllHorizons {
		if status.Models[h].Exists {
			t.Errorf("%s still exists", h)
		}
	}
	if resp := env.service.Predict(ctx, PredictRequest{TenantID: "t1", ProductID: "p-tea", Horizon: HorizonDaily}); resp.Success {
		t.Error("prediction after deletion should fail")
	}
}

func TestDiagnostics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	report := env.service.Diagnostics(ctx, "t1")
	if report.SalesRecords != 0 || report.PredictionTier != TierNone || report.Status != "warning" {
		t.Errorf("empty tenant report = %+v", report)
	}

	txs := dailySales("t1", "p1", "Bakery", 10, 2, 1)
	txs[3].Status = StatusRefunded
	txs = append(txs, TransactionRecord{
		ID: "x", TenantID: "t1", Timestamp: dayOf(19).Add(23 * time.Hour), Status: StatusPending,
		Items: []LineItem{{ProductID: "p2", Quantity: 1}},
	})
	env.data.addTransactions(txs...)

	report = env.service.Diagnostics(ctx, "t1")
	if report.SalesRecords != 11 {
		t.Errorf("sales_records = %d, want 11 (every status counts)", report.SalesRecords)
	}
	if report.DaysOfHistory != 20 || report.PredictionTier != TierBasic {
		t.Errorf("days = %d tier = %s, want 20 basic", report.DaysOfHistory, report.PredictionTier)
	}
	if report.UniqueProducts != 2 || report.UniqueCategories != 2 || report.TotalItemsSold != 21 {
		t.Errorf("products %d categories %d items %v", report.UniqueProducts, report.UniqueCategories, report.TotalItemsSold)
	}
	if report.ModelDirectory != env.store.Location() || report.Message != "Models need training" {
		t.Errorf("report = %+v", report)
	}

	for _, tt := range []struct {
		days int
		tier string
	}{{0, TierNone}, {6, TierNone}, {7, TierBasic}, {29, TierBasic}, {30, TierML}} {
		if got := PredictionTier(tt.days); got != tt.tier {
			t.Errorf("PredictionTier(%d) = %s, want %s", tt.days, got, tt.tier)
		}
	}
}

type heldLock struct{ held map[string]string }

func (l *heldLock) TryLock(ctx context.Context, tenantID, owner string) (bool, error) {
	if _, ok := l.held[tenantID]; ok {
		return false, nil
	}
	l.held[tenantID] = owner
	return true, nil
}

func (l *heldLock) Unlock(ctx context.Context, tenantID, owner string) error {
	if l.held[tenantID] == owner {
		delete(l.held, tenantID)
	}
	return nil
}

func (l *heldLock) IsLocked(ctx context.Context, tenantID string) bool {
	_, ok := l.held[tenantID]
	return ok
}

func TestTrainRespectsTrainingLock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.data.addTransactions(dailySales("t1", "p1", "Bakery", 12, 1, 1)...)
	lock := &heldLock{held: map[string]string{"t1": "other-run"}}
	env.service.SetTrainingLock(lock)

	resp := env.service.Train(ctx, "t1", true)
	if resp.Success || resp.Error != ErrTrainingInProgress.Error() {
		t.Fatalf("locked tenant train = %+v", resp)
	}
	if diag := env.service.Diagnostics(ctx, "t1"); !diag.TrainingRunning {
		t.Error("diagnostics should report the running training")
	}
	if lock.held["t1"] != "other-run" {
		t.Error("a refused run must not touch the holder's lock")
	}

	delete(lock.held, "t1")
	resp = env.service.Train(ctx, "t1", true)
	if !resp.Success {
		t.Fatalf("Train: %s", resp.Error)
	}
	if _, held := lock.held["t1"]; held {
		t.Error("lock not released after training")
	}
	if diag := env.service.Diagnostics(ctx, "t1"); diag.TrainingRunning {
		t.Error("diagnostics still report training after it finished")
	}
}
