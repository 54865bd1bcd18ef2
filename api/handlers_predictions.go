package api

import (
	"net/http"
	"strings"

	"sales-forecast/forecast"
)

type trainRequest struct {
	ForceRetrain bool `json:"force_retrain"`
}

type predictRequest struct {
	ProductID      string `json:"product_id"`
	Category       string `json:"category"`
	IncludeHistory bool   `json:"include_history"`
	Horizon        string `json:"horizon"`
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	respondJSON(w, http.StatusOK, s.forecaster.Train(r.Context(), tenantOf(r), req.ForceRetrain))
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		respondWithError(w, http.StatusBadRequest, "product_id is required", nil)
		return
	}
	if req.Horizon == "" {
		req.Horizon = string(forecast.HorizonDaily)
	}
	horizon, err := forecast.ParseHorizon(req.Horizon)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	resp := s.forecaster.Predict(r.Context(), forecast.PredictRequest{
		TenantID:       tenantOf(r),
		ProductID:      req.ProductID,
		Category:       req.Category,
		IncludeHistory: req.IncludeHistory,
		Horizon:        horizon,
	})
	if s.metrics != nil {
		s.metrics.RecordPrediction(resp)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.forecaster.ModelStatus(r.Context(), tenantOf(r)))
}

func (s *Server) handleFeatureImportance(w http.ResponseWriter, r *http.Request) {
	horizon := r.URL.Query().Get("horizon")
	if horizon == "" {
		horizon = string(forecast.HorizonDaily)
	}
	if _, err := forecast.ParseHorizon(horizon); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	resp := s.forecaster.FeatureImportance(r.Context(), tenantOf(r), horizon)
	if !resp.Success {
		resp.Error = "No feature importance data found for " + strings.ToLower(horizon) + " model. Please train models first."
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", forecast.DefaultTopProductsLimit, nil, nil)
	refresh := getBoolParam(r, "refresh", false)
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	respondJSON(w, http.StatusOK, s.forecaster.TopProducts(r.Context(), tenantOf(r), limit, refresh, category))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.forecaster.Diagnostics(r.Context(), tenantOf(r)))
}

func (s *Server) handleDeleteModels(w http.ResponseWriter, r *http.Request) {
	if err := s.forecaster.DeleteModels(r.Context(), tenantOf(r)); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to delete models", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
