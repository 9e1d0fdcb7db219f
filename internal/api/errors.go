package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/parser"
	"github.com/dgallion1/docjudge/internal/pipeline"
)

// Error types reported in the envelope.
const (
	errValidation         = "validation"
	errUnsupportedFile    = "unsupported_file_type"
	errTooLarge           = "payload_too_large"
	errBackendUnavailable = "backend_unavailable"
	errBackendFailed      = "backend_failed"
	errQueueFull          = "queue_full"
	errNotFound           = "not_found"
	errUnauthorized       = "unauthorized"
	errHTTP               = "http"
	errInternal           = "internal"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, typ, msg string) {
	writeJSON(w, code, errorBody{Error: errorDetail{Type: typ, Message: msg}})
}

// writeProcessingError maps a pipeline error onto a status code. Internal
// failures are not echoed to the client.
func (s *Server) writeProcessingError(w http.ResponseWriter, err error) {
	var (
		ute *parser.UnsupportedFileTypeError
		mde *parser.MalformedDocumentError
	)
	switch {
	case errors.As(err, &ute):
		writeError(w, http.StatusUnsupportedMediaType, errUnsupportedFile, ute.Error())
	case errors.As(err, &mde):
		writeError(w, http.StatusBadRequest, errValidation, mde.Error())
	case errors.Is(err, llm.ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, errBackendUnavailable, err.Error())
	case errors.Is(err, pipeline.ErrBackendFailed):
		writeError(w, http.StatusBadGateway, errBackendFailed, "language model backend failed")
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, errQueueFull, err.Error())
	default:
		s.log.Error("processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, "Internal server error")
	}
}
