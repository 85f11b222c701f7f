// Package server exposes one verification service over JSON HTTP.
package server

import (
	"log/slog"
	"net/http"

	"ppbverify/internal/components/assert"
	"ppbverify/internal/components/chrono"
	"ppbverify/internal/verify"

	"github.com/go-chi/chi/v5"
)

const defaultMaxContentLength = 1 << 20

// Descriptions of the service info endpoint per record kind.
var descriptions = map[verify.Kind][2]string{
	verify.KindFacility: {
		"PPB Facility Verification Microservice",
		"Verify Kenya PPB licensed pharmaceutical facilities with superintendent details",
	},
	verify.KindPharmacist: {
		"PPB Pharmacist License Verification Microservice",
		"Verify Kenya PPB pharmacist licenses with complete details",
	},
	verify.KindPharmtech: {
		"PPB PharmTech License Verification Microservice",
		"Verify Kenya PPB pharmaceutical technician licenses with complete details",
	},
}

type Options struct {
	Version string
	// MaxContentLength bounds request bodies, 1 MiB when zero.
	MaxContentLength int64
	Metrics          *Metrics
	Clock            chrono.API
	Logger           *slog.Logger
}

type Server struct {
	// verifier is nil until the service is wired, readiness reports it.
	verifier         verify.Verifier
	version          string
	maxContentLength int64
	metrics          *Metrics
	clock            chrono.API
	log              *slog.Logger
}

func New(verifier verify.Verifier, opts Options) *Server {
	assert.NotNil(opts.Clock)

	s := &Server{
		verifier:         verifier,
		version:          opts.Version,
		maxContentLength: opts.MaxContentLength,
		metrics:          opts.Metrics,
		clock:            opts.Clock,
		log:              opts.Logger,
	}
	if s.maxContentLength <= 0 {
		s.maxContentLength = defaultMaxContentLength
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(correlate)
	r.Use(s.logRequests)
	r.Use(s.recoverPanics)
	r.Use(s.limitBody)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Post("/verify", s.handleVerify)
	r.Get("/cache/stats", s.handleCacheStats)
	r.Delete("/cache", s.handleClearCache)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}
