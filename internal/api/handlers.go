package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FocuswithJustin/vmr2tei/core/cas"
	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/tei"
)

// Version is reported by the root and health endpoints.
var Version = "dev"

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Jobs      int    `json:"jobs"`
	Documents int    `json:"documents"`
	Clients   int    `json:"clients"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"name":    "vmr2tei",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"POST /api/convert",
			"GET /api/documents/{digest}",
			"GET /api/jobs",
			"POST /api/jobs",
			"GET /api/jobs/{id}",
			"DELETE /api/jobs/{id}",
			"WS /ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, HealthInfo{
		Status:    "healthy",
		Version:   Version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Jobs:      s.jobs.Len(),
		Documents: s.documents.Len(),
		Clients:   s.hub.ClientCount(),
	})
}

// handleConvert runs a conversion synchronously. With ?output=tei the
// document itself is returned instead of the JSON envelope.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	res, doc, err := s.convert(r.Context(), req, nil)
	if err != nil {
		respondErr(w, err)
		return
	}
	if r.URL.Query().Get("output") == "tei" {
		writeDocument(w, res.Digest, doc)
		return
	}
	res.Document = string(doc)
	respond(w, http.StatusOK, res)
}

// handleDocument serves a converted document by digest, from memory or the
// document store.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")
	doc, err := s.document(digest)
	switch {
	case errors.Is(err, cas.ErrBadDigest):
		respondError(w, http.StatusBadRequest, "INVALID_DIGEST", "digest must be 64 lowercase hex digits")
		return
	case err != nil:
		respondErr(w, err)
		return
	}
	writeDocument(w, digest, doc)
}

func (s *Server) document(digest string) ([]byte, error) {
	if doc, ok := s.documents.Get(digest); ok {
		return doc, nil
	}
	if s.store == nil {
		if !cas.ValidDigest(digest) {
			return nil, cas.ErrBadDigest
		}
		return nil, cerrors.NewNotFound("document", digest)
	}
	doc, err := s.store.Get(digest)
	if err != nil {
		return nil, err
	}
	s.documents.Put(digest, doc)
	return doc, nil
}

func writeDocument(w http.ResponseWriter, digest string, doc []byte) {
	w.Header().Set("Content-Type", tei.MediaType)
	w.Header().Set("ETag", `"`+digest+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// decodeRequest reads a JSON ConvertRequest, answering the client itself
// when the body is unusable.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*ConvertRequest, bool) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var req ConvertRequest
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err.Error())
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body: "+err.Error())
		return nil, false
	}
	if err := req.validate(s.cfg.VMR != nil); err != nil {
		respondErr(w, err)
		return nil, false
	}
	return &req, true
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondList[T any](w http.ResponseWriter, items []T) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    items,
		Meta:    &APIMeta{Total: len(items), Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Error: &APIError{Code: code, Message: message},
		Meta:  &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

// respondErr maps an error to its status and code.
func respondErr(w http.ResponseWriter, err error) {
	status, code := classify(err)
	respondError(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
