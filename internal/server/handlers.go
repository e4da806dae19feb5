package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// HealthResponse is served on the health endpoint.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Uptime    float64           `json:"uptime"`
	LastPass  *build.PassResult `json:"last_pass,omitempty"`
}

// PassesResponse lists recent passes, newest first.
type PassesResponse struct {
	Passes []*build.PassResult `json:"passes"`
	Count  int                 `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   s.opts.Version,
		Uptime:    time.Since(s.startTime).Seconds(),
	}
	if s.opts.LastPass != nil {
		resp.LastPass = s.opts.LastPass()
	}
	if resp.LastPass != nil && resp.LastPass.Status == build.StatusFailed {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePasses(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.adapter.WriteErrorResponse(w, r, errors.ValidationError("limit must be a positive integer").
				WithContext("limit", raw).
				Build())
			return
		}
		limit = n
	}

	passes, err := s.opts.History.List(r.Context(), limit)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}
	if passes == nil {
		passes = []*build.PassResult{}
	}
	writeJSON(w, http.StatusOK, PassesResponse{Passes: passes, Count: len(passes)})
}

func (s *Server) handlePass(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.History.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
