package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/docjudge/internal/contextrules"
	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/parser"
	"github.com/dgallion1/docjudge/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

// upload is a validated analysis request.
type upload struct {
	filename string
	data     []byte
	rules    contextrules.Rules
	backend  llm.Backend // nil means the processor default
}

type requestError struct {
	code int
	typ  string
	msg  string
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	up, rerr := s.readUpload(w, r)
	if rerr != nil {
		writeError(w, rerr.code, rerr.typ, rerr.msg)
		return
	}

	s.log.Info("analyze called", "filename", up.filename, "backend", backendName(up.backend))
	res, err := s.deps.Processor.Process(r.Context(), pipeline.Request{
		Data:     up.data,
		Filename: up.filename,
		Rules:    up.rules,
		Backend:  up.backend,
		UseOCR:   s.opts.UseOCR,
	})
	if err != nil {
		s.writeProcessingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, errQueueFull, "async jobs are disabled")
		return
	}
	up, rerr := s.readUpload(w, r)
	if rerr != nil {
		writeError(w, rerr.code, rerr.typ, rerr.msg)
		return
	}

	job := pipeline.NewJob(up.filename, up.data, up.rules, up.backend, s.opts.UseOCR)
	if err := s.deps.Orchestrator.Submit(job); err != nil {
		s.writeProcessingError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/jobs/%s", job.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orchestrator == nil {
		writeError(w, http.StatusNotFound, errNotFound, "job not found")
		return
	}
	job := s.deps.Orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		writeError(w, http.StatusNotFound, errNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// readUpload parses the multipart form shared by /analyze and /api/jobs:
// file (required), context, use_stub and backend_spec.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, *requestError) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &requestError{http.StatusRequestEntityTooLarge, errTooLarge, fmt.Sprintf("request exceeds max size (%d bytes)", s.opts.MaxUploadBytes)}
		}
		return nil, &requestError{http.StatusBadRequest, errValidation, "invalid multipart form: " + err.Error()}
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, errValidation, "file is required"}
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if filepath.Ext(filename) == "" {
		filename += ".txt"
	}
	if !parser.IsSupportedExtension(filename) {
		ute := &parser.UnsupportedFileTypeError{Ext: strings.ToLower(filepath.Ext(filename))}
		return nil, &requestError{http.StatusUnsupportedMediaType, errUnsupportedFile, ute.Error()}
	}

	data, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, errValidation, "failed to read file"}
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		return nil, &requestError{http.StatusRequestEntityTooLarge, errTooLarge, fmt.Sprintf("file exceeds max size (%d bytes)", s.opts.MaxUploadBytes)}
	}

	rules := s.deps.DefaultRules
	if text := r.FormValue("context"); strings.TrimSpace(text) != "" {
		rules = contextrules.Parse(text)
	}

	useStub := false
	if v := r.FormValue("use_stub"); v != "" {
		useStub, err = strconv.ParseBool(v)
		if err != nil {
			return nil, &requestError{http.StatusBadRequest, errValidation, "use_stub must be a boolean"}
		}
	}

	var backend llm.Backend
	switch {
	case useStub:
		backend = llm.NewStubBackend(llm.DefaultStubRules()...)
	case r.FormValue("backend_spec") != "":
		spec, err := s.parseBackendSpec(r.FormValue("backend_spec"))
		if err != nil {
			s.log.Warn("invalid backend_spec", "error", err)
			return nil, &requestError{http.StatusBadRequest, errValidation, "Invalid backend_spec format: " + err.Error()}
		}
		if s.deps.NewBackend == nil {
			return nil, &requestError{http.StatusServiceUnavailable, errBackendUnavailable, "backend selection is disabled"}
		}
		backend, err = s.deps.NewBackend(spec)
		if err != nil {
			s.log.Warn("backend init failed", "provider", spec.Provider, "error", err)
			return nil, &requestError{http.StatusServiceUnavailable, errBackendUnavailable, err.Error()}
		}
	}

	return &upload{filename: filename, data: data, rules: rules, backend: backend}, nil
}

func backendName(b llm.Backend) string {
	if b == nil {
		return "default"
	}
	return llm.NameOf(b)
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
