package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/agsys/lowapp/internal/atcmd"
	"github.com/agsys/lowapp/internal/engine"
)

// HandleHealth reports liveness
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus returns the core snapshot
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.core.Snapshot())
}

// HandlePeers returns the sequence records of known peers
func (s *Server) HandlePeers(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.core.Peers())
}

// HandleWho returns the recently heard devices
func (s *Server) HandleWho(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"wholist": s.core.Who(),
	})
}

// HandleResponses returns the most recent core responses, oldest first
func (s *Server) HandleResponses(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]Response{}, s.responses...)
	s.mu.Unlock()

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"responses": out,
	})
}

// HandleAT queues the AT line in the request body. The outcome arrives
// asynchronously on /responses.
func (s *Server) HandleAT(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, atcmd.MaxLineLength+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	line := strings.TrimRight(string(body), "\r\n")
	if strings.TrimSpace(line) == "" {
		s.respondError(w, http.StatusBadRequest, "empty command")
		return
	}

	if err := s.core.SubmitAT(line); err != nil {
		if errors.Is(err, engine.ErrQueueFull) {
			s.respondError(w, http.StatusServiceUnavailable, "command queue full")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Debug().Str("line", line).Msg("AT command queued")
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
