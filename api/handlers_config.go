package api

import (
	"log"
	"net/http"
	"strconv"

	"sales-forecast/database"
)

// handleHealth returns the health status of the API
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			log.Printf("⚠️  Health check: database unreachable: %v", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Configuration Handlers (Webhooks Only)

// storeFailureStatus is 503 for transient datastore errors, 500 otherwise
func storeFailureStatus(err error) int {
	if database.IsTransient(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type createWebhookRequest struct {
	Name              string `json:"name"`
	URL               string `json:"url"`
	Method            string `json:"method"`
	AuthHeader        string `json:"auth_header"`
	AuthValue         string `json:"auth_value"`
	EventTypes        string `json:"event_types"`
	RetryCount        *int   `json:"retry_count"`
	RetryDelaySeconds *int   `json:"retry_delay_seconds"`
	TimeoutSeconds    *int   `json:"timeout_seconds"`
}

func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.webhooks.ListWebhooks(r.Context(), tenantOf(r))
	if err != nil {
		respondWithError(w, storeFailureStatus(err), "Failed to load webhooks", err)
		return
	}
	respondJSON(w, http.StatusOK, webhooks)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	webhook := database.TrainingWebhook{
		BusinessID:        tenantOf(r),
		Name:              req.Name,
		URL:               req.URL,
		Method:            req.Method,
		AuthHeader:        req.AuthHeader,
		AuthValue:         req.AuthValue,
		EventTypes:        req.EventTypes,
		RetryCount:        3,
		RetryDelaySeconds: 5,
		TimeoutSeconds:    10,
	}
	if req.RetryCount != nil {
		webhook.RetryCount = *req.RetryCount
	}
	if req.RetryDelaySeconds != nil {
		webhook.RetryDelaySeconds = *req.RetryDelaySeconds
	}
	if req.TimeoutSeconds != nil {
		webhook.TimeoutSeconds = *req.TimeoutSeconds
	}

	if err := s.webhooks.CreateWebhook(r.Context(), &webhook); err != nil {
		if database.IsValidation(err) {
			respondWithError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		respondWithError(w, storeFailureStatus(err), "Failed to save webhook", err)
		return
	}

	// Refresh webhook manager cache
	if s.webhookMq != nil {
		s.webhookMq.RefreshCache()
	}
	respondJSON(w, http.StatusCreated, webhook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	if err := s.webhooks.DeleteWebhook(r.Context(), tenantOf(r), id); err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusNotFound, err.Error(), nil)
			return
		}
		respondWithError(w, storeFailureStatus(err), "Failed to delete webhook", err)
		return
	}

	// Refresh webhook manager cache
	if s.webhookMq != nil {
		s.webhookMq.RefreshCache()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetWebhookLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	// Only the owner's webhooks expose their logs
	hooks, err := s.webhooks.ListWebhooks(r.Context(), tenantOf(r))
	if err != nil {
		respondWithError(w, storeFailureStatus(err), "Failed to load webhooks", err)
		return
	}
	owned := false
	for _, h := range hooks {
		if h.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		respondWithError(w, http.StatusNotFound, "Webhook not found", nil)
		return
	}

	maxLimit := database.MaxLimit
	limit := getIntParam(r, "limit", database.DefaultLimit, nil, &maxLimit)
	logs, err := s.webhooks.ListDeliveryLogs(r.Context(), id, limit)
	if err != nil {
		respondWithError(w, storeFailureStatus(err), "Failed to load delivery logs", err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}
