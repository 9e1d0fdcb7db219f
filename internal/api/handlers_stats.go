package api

import (
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		writeError(w, http.StatusServiceUnavailable, errBackendUnavailable, "llm stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": s.deps.Stats.Snapshot(),
	})
}
