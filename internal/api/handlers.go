package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"procodus.dev/silowatch/internal/silo"
	"procodus.dev/silowatch/internal/store"
)

// handleHealth serves the health check endpoint.
func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListAlerts serves the alert history, newest first. Optional query
// parameters: silo_id, since, until (RFC 3339) and limit.
func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAlertFilter(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := a.store.ListAlerts(r.Context(), filter)
	if err != nil {
		a.logger.Error("failed to list alerts", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// handleAckAlert acknowledges an alert. Re-acknowledging is a no-op that
// returns the alert unchanged.
func (a *API) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid alert ID")
		return
	}

	var body struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if r.Body != nil {
		// The body is optional; an anonymous ack records a nil user.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	alert, err := a.store.AcknowledgeAlert(r.Context(), alertID, body.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		a.logger.Error("failed to acknowledge alert", "alert_id", alertID, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}

	a.writeJSON(w, http.StatusOK, alert)
}

// handleListSilos serves all configured silos.
func (a *API) handleListSilos(w http.ResponseWriter, r *http.Request) {
	silos, err := a.store.ListSilos(r.Context())
	if err != nil {
		a.logger.Error("failed to list silos", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to list silos")
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{"silos": silos})
}

// handleGetSilo serves a single silo by ID.
func (a *API) handleGetSilo(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid silo ID")
		return
	}

	s, err := a.store.GetSilo(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "silo not found")
			return
		}
		a.logger.Error("failed to fetch silo", "silo_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to fetch silo")
		return
	}

	a.writeJSON(w, http.StatusOK, s)
}

// handleLatestReading serves the most recent stored reading for a silo.
func (a *API) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid silo ID")
		return
	}

	reading, err := a.store.LastReading(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.writeError(w, http.StatusNotFound, "no readings for silo")
			return
		}
		a.logger.Error("failed to fetch latest reading", "silo_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to fetch latest reading")
		return
	}

	a.writeJSON(w, http.StatusOK, reading)
}

// subscribeRequest mirrors the browser PushSubscription JSON, plus an
// optional silo scope.
type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	SiloID *uuid.UUID `json:"silo_id"`
}

// handleSubscribe registers or refreshes a web push subscription.
func (a *API) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid subscription body")
		return
	}

	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		a.writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}

	sub := &silo.PushSubscription{
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
		SiloID:   req.SiloID,
	}
	if err := a.store.SavePushSubscription(r.Context(), sub); err != nil {
		a.logger.Error("failed to save push subscription", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	a.logger.Info("push subscription saved", "silo_id", req.SiloID)
	a.writeJSON(w, http.StatusCreated, sub)
}

// handleUnsubscribe removes a web push subscription by endpoint.
func (a *API) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		a.writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	if err := a.store.DeletePushSubscription(r.Context(), req.Endpoint); err != nil {
		a.logger.Error("failed to delete push subscription", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseAlertFilter builds an AlertFilter from query parameters.
func parseAlertFilter(r *http.Request) (store.AlertFilter, error) {
	var filter store.AlertFilter
	q := r.URL.Query()

	if v := q.Get("silo_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errors.New("invalid silo_id")
		}
		filter.SiloID = id
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid since timestamp")
		}
		filter.Since = t
	}

	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid until timestamp")
		}
		filter.Until = t
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = n
	}

	return filter, nil
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
