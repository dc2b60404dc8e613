package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sipeed/picohub/pkg/hub"
	"github.com/sipeed/picohub/pkg/logger"
)

const maxBodyBytes = 1 << 20

// handleRegister creates or refreshes an agent from {id, ...attributes}.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	id, attrs, err := hub.DecodeRegistration(body)
	if err == nil {
		err = s.hub.Registry.Register(id, attrs)
	}
	if err != nil {
		logger.WarnCF("gateway", "Registration rejected", map[string]any{
			"request_id": RequestID(r.Context()),
			"error":      err.Error(),
		})
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}

	logger.InfoCF("gateway", "Agent registered", map[string]any{
		"agent":      id,
		"request_id": RequestID(r.Context()),
	})
	writeText(w, http.StatusOK, "OK")
}

// handleDrain hands every pending command to the polling agent.
func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cmds := s.hub.Registry.Drain(id)
	if len(cmds) > 0 {
		logger.InfoCF("gateway", "Commands delivered", map[string]any{
			"agent":      id,
			"count":      len(cmds),
			"request_id": RequestID(r.Context()),
		})
	}
	writeJSON(w, http.StatusOK, cmds)
}

// handleReport merges a field map into an existing agent.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	rep, err := hub.DecodeReport(body)
	if err == nil {
		err = s.hub.Registry.Report(id, rep)
	}
	switch {
	case errors.Is(err, hub.ErrNotFound):
		writeText(w, http.StatusNotFound, "not found")
	case err != nil:
		logger.WarnCF("gateway", "Report rejected", map[string]any{
			"agent":      id,
			"request_id": RequestID(r.Context()),
			"error":      err.Error(),
		})
		writeText(w, http.StatusBadRequest, "bad request")
	default:
		writeText(w, http.StatusOK, "OK")
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "request too large")
		} else {
			writeText(w, http.StatusBadRequest, "bad request")
		}
		return nil, false
	}
	return body, true
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorCF("gateway", "failed to encode JSON response", map[string]any{"error": err.Error()})
	}
}
