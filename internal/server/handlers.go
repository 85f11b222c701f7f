package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"ppbverify/internal/verify"
)

const timestampLayout = "2006-01-02T15:04:05Z"

// Identifier length bounds after trimming.
var identifierBounds = map[verify.Kind][2]int{
	verify.KindFacility:   {5, 50},
	verify.KindPharmacist: {10, 20},
	verify.KindPharmtech:  {10, 20},
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger(r.Context()).ErrorContext(r.Context(), "failed to write response", "status_code", status, "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, errorResponse{Message: message})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	kind := verify.KindFacility
	if s.verifier != nil {
		kind = s.verifier.Kind()
	}
	desc := descriptions[kind]
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"service":     desc[0],
		"version":     s.version,
		"description": desc[1],
		"endpoints": map[string]string{
			"info":        "GET /",
			"health":      "GET /health",
			"ready":       "GET /ready",
			"verify":      "POST /verify",
			"cache_stats": "GET /cache/stats",
			"cache_clear": "DELETE /cache",
			"metrics":     "GET /metrics",
		},
	})
}

func (s *Server) cacheStats(r *http.Request) verify.CacheStats {
	if s.verifier == nil {
		return verify.CacheStats{}
	}
	return s.verifier.CacheStats(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   s.version,
		"timestamp": s.clock.Now().UTC().Format(timestampLayout),
		"cache":     s.cacheStats(r),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"message": "Service not initialized",
		})
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ready",
		"version": s.version,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.cacheStats(r))
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.writeJSON(w, r, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Service not initialized",
		})
		return
	}
	if !s.verifier.ClearCache(r.Context()) {
		s.writeJSON(w, r, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Cache not enabled",
		})
		return
	}
	s.logger(r.Context()).InfoContext(r.Context(), "cache cleared via api")
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"message": "Cache cleared successfully",
	})
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

type verifyRequest struct {
	Identifier string
	UseCache   bool
}

type validationError struct {
	field   string
	message string
}

func (e validationError) Error() string {
	if e.field == "" {
		return e.message
	}
	return e.field + ": " + e.message
}

// decodeVerifyRequest reads {"<key>": string, "use_cache": bool}. The
// identifier is trimmed before its length is checked.
func decodeVerifyRequest(body io.Reader, key string, bounds [2]int) (verifyRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return verifyRequest{}, err
		}
		return verifyRequest{}, validationError{message: "Invalid JSON body"}
	}
	if raw == nil {
		return verifyRequest{}, validationError{message: "Input should be a valid object"}
	}

	req := verifyRequest{UseCache: true}
	value, ok := raw[key]
	if !ok {
		return req, validationError{field: key, message: "Field required"}
	}
	if err := json.Unmarshal(value, &req.Identifier); err != nil || string(value) == "null" {
		return req, validationError{field: key, message: "Input should be a valid string"}
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	length := utf8.RuneCountInString(req.Identifier)
	if length < bounds[0] {
		return req, validationError{field: key, message: fmt.Sprintf("String should have at least %d characters", bounds[0])}
	}
	if length > bounds[1] {
		return req, validationError{field: key, message: fmt.Sprintf("String should have at most %d characters", bounds[1])}
	}

	if value, ok := raw["use_cache"]; ok && string(value) != "null" {
		if err := json.Unmarshal(value, &req.UseCache); err != nil {
			return req, validationError{field: "use_cache", message: "Input should be a valid boolean"}
		}
	}
	return req, nil
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.verifier == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "Service not initialized")
		return
	}
	if !isJSON(r) {
		s.writeError(w, r, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	req, err := decodeVerifyRequest(r.Body, s.verifier.IdentifierKey(), identifierBounds[s.verifier.Kind()])
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		s.logger(ctx).WarnContext(ctx, "payload too large")
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "Request payload too large")
		return
	case err != nil:
		s.logger(ctx).WarnContext(ctx, "validation error", "err", err)
		s.writeError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	s.logger(ctx).InfoContext(ctx, "verifying", "kind", s.verifier.Kind(), "identifier", req.Identifier)
	result := s.verifier.VerifyResult(ctx, req.Identifier, req.UseCache)

	status := http.StatusOK
	if !result.Summary().Success {
		status = http.StatusNotFound
	}
	s.writeJSON(w, r, status, result)
}
