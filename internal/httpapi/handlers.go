package httpapi

import (
	"encoding/json"
	"net/http"

	"mcpgateway/internal/fleet"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries := s.fleet.Status(r.Context())
	writeJSON(w, http.StatusOK, statusToOrdered(entries))
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	entries := s.fleet.ListToolsAll(r.Context())
	writeJSON(w, http.StatusOK, toolsToOrdered(entries))
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" || name == fleet.All {
		entries := s.fleet.ListToolsAll(r.Context())
		writeJSON(w, http.StatusOK, toolsToOrdered(entries))
		return
	}
	res, err := s.fleet.ListToolsOne(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.fleet.Start(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusToOrdered(s.fleet.Status(r.Context())))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.fleet.Stop(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusToOrdered(s.fleet.Status(r.Context())))
}

type callToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req callToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing tool name")
		return
	}

	childName, result, err := s.fleet.CallTool(r.Context(), req.Name, req.Arguments)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"child":  childName,
		"result": result,
	})
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting-down"})
	select {
	case s.killCh <- struct{}{}:
	default:
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.fleet.Healthy() {
		http.Error(w, "one or more children errored", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}
