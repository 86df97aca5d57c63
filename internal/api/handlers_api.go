package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lox/showcase/internal/assistant"
	"github.com/lox/showcase/internal/models"
	"github.com/lox/showcase/internal/power"
	"github.com/lox/showcase/internal/resolver"
)

type environmentResponse struct {
	resolver.State
	Time    string          `json:"time"`
	Battery *models.Battery `json:"battery"`
}

func (s *Server) handleEnvironment(w http.ResponseWriter, r *http.Request) {
	res := s.resolverFor(r).Resolve(r.Context())

	resp := environmentResponse{
		State: resolver.State{Result: res, Loading: false},
		Time:  s.now().Format(time.RFC3339),
	}
	if b, ok := power.Read(s.cfg.BatteryRoot); ok {
		resp.Battery = &b
	}
	writeJSON(w, http.StatusOK, resp)
}

type sessionResponse struct {
	ID       string           `json:"id"`
	Messages []models.Message `json:"messages"`
	Pending  bool             `json:"pending"`
}

type sendResponse struct {
	sessionResponse
	Accepted bool `json:"accepted"`
}

func sessionView(id string, sess *assistant.Session) sessionResponse {
	return sessionResponse{ID: id, Messages: sess.Messages(), Pending: sess.Pending()}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, sess := s.cfg.Sessions.Create()
	writeJSON(w, http.StatusCreated, sessionView(id, sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.cfg.Sessions.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(id, sess))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.cfg.Sessions.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Blank input is ignored without touching the transcript.
	if strings.TrimSpace(body.Text) == "" {
		writeJSON(w, http.StatusOK, sendResponse{sessionResponse: sessionView(id, sess)})
		return
	}

	if !sess.Send(r.Context(), body.Text) {
		writeJSON(w, http.StatusConflict, sendResponse{sessionResponse: sessionView(id, sess)})
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{sessionResponse: sessionView(id, sess), Accepted: true})
}

func (s *Server) handleLookups(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		http.Error(w, "lookup log disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	lookups, err := s.cfg.Store.RecentLookups(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stats, err := s.cfg.Store.LookupStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lookups": lookups,
		"stats":   stats,
	})
}
