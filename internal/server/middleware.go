package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mazen160/go-random"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	correlationIDLength = 16
)

type correlationKey struct{}

// CorrelationID returns the id attached by the correlation middleware.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func newCorrelationID() string {
	id, err := random.String(correlationIDLength)
	if err != nil {
		return strconv.FormatUint(middleware.NextRequestID(), 10)
	}
	return id
}

// correlate reuses the caller's correlation id or generates one, and echoes
// it on the response.
func correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderCorrelationID)
		if id == "" {
			id = newCorrelationID()
		}
		w.Header().Set(HeaderCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), id)))
	})
}

func (s *Server) logger(ctx context.Context) *slog.Logger {
	return s.log.With("correlation_id", CorrelationID(ctx))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.logger(r.Context())
		log.InfoContext(r.Context(), "request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.InfoContext(r.Context(), "request completed",
			"status_code", status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger(r.Context()).ErrorContext(r.Context(), "handler panicked", "panic", rec)
			s.writeError(w, r, http.StatusInternalServerError, "Internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// limitBody rejects declared oversized payloads up front and caps the rest
// while they are read.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > s.maxContentLength {
			s.logger(r.Context()).WarnContext(r.Context(), "payload too large", "content_length", r.ContentLength)
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "Request payload too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxContentLength)
		next.ServeHTTP(w, r)
	})
}
