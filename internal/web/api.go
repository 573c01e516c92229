package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/swarmopt/swarmopt/internal/schedule"
	"github.com/swarmopt/swarmopt/internal/store"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Pipeline runs
	mux.HandleFunc("POST /api/pipeline/runs", s.startRun)
	mux.HandleFunc("GET /api/pipeline/runs", s.listRuns)
	mux.HandleFunc("GET /api/pipeline/runs/{id}", s.getRun)

	// Scheduled queries
	mux.HandleFunc("GET /api/schedules", s.listSchedules)
	mux.HandleFunc("POST /api/schedules", s.createSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.deleteSchedule)

	// Secrets (provider API keys; values never leave the server)
	mux.HandleFunc("GET /api/secrets", s.listSecrets)
	mux.HandleFunc("POST /api/secrets", s.createSecret)
	mux.HandleFunc("DELETE /api/secrets/{name}", s.deleteSecret)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}

	// The run outlives the HTTP request; clients follow progress over the
	// event stream or poll the run resource.
	runID := s.ctrl.Start(req.Query)

	jsonResponse(w, map[string]string{"run_id": runID, "status": "running"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.PipelineRun{}
	}
	jsonResponse(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, run)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	queries, err := s.store.ListScheduledQueries()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if queries == nil {
		queries = []store.ScheduledQuery{}
	}
	jsonResponse(w, queries)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Query    string `json:"query"`
		Schedule string `json:"schedule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" || req.Schedule == "" {
		jsonError(w, "query and schedule are required", http.StatusBadRequest)
		return
	}
	if !schedule.Valid(req.Schedule) {
		jsonError(w, "invalid schedule", http.StatusBadRequest)
		return
	}

	q := &store.ScheduledQuery{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Query:     req.Query,
		Schedule:  req.Schedule,
		Status:    "active",
		NextRunAt: schedule.NextRun(req.Schedule),
	}
	if err := s.store.SaveScheduledQuery(q); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, q)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteScheduledQuery(r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.store.ListSecrets()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if secrets == nil {
		secrets = []store.Secret{}
	}
	jsonResponse(w, secrets)
}

func (s *Server) createSecret(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		jsonError(w, "vault not configured", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Name        string `json:"name"`
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Value == "" {
		jsonError(w, "name and value are required", http.StatusBadRequest)
		return
	}

	ciphertext, nonce, err := s.vault.Encrypt([]byte(req.Value))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sec := &store.Secret{
		Name:        req.Name,
		Description: req.Description,
		Value:       ciphertext,
		Nonce:       nonce,
	}
	if err := s.store.SaveSecret(sec); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"name": req.Name, "status": "saved"})
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSecret(r.PathValue("name")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"version":   s.version,
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"nats_port": s.bus.Port(),
	})
}
