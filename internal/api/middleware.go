package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// requestLog scopes log to one request so every line carries its request id.
func requestLog(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With("request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path)
}

// AuthMiddleware requires "Authorization: Bearer <apiKey>".
func AuthMiddleware(apiKey string, log *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	reject := func(w http.ResponseWriter, r *http.Request, reason string) {
		requestLog(log, r).Warn("unauthorized request", "reason", reason, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, errUnauthorized, reason)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			switch {
			case !ok:
				reject(w, r, "missing authorization")
			case subtle.ConstantTimeCompare([]byte(token), want) != 1:
				reject(w, r, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Recoverer turns a handler panic into a logged 500 error envelope.
func Recoverer(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				requestLog(log, r).Error("handler panicked",
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, errInternal, "Internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request with status and latency.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			requestLog(log, r).Info("request",
				"method", r.Method,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
