// Package api exposes the analysis service over HTTP: submit runs, fetch
// stored results, and render run reports.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"permstat/app"
	"permstat/internal"
	"permstat/internal/errors"
	"permstat/internal/report"
	"permstat/ports"
)

// Server is the HTTP surface over the analysis service.
type Server struct {
	service *app.AnalysisService
	repo    ports.RunRepository
	log     *internal.Logger
	router  *chi.Mux
}

// NewServer builds the router. repo may be nil; the stored-run endpoints
// then respond 503.
func NewServer(service *app.AnalysisService, repo ports.RunRepository, log *internal.Logger) *Server {
	if log == nil {
		log = internal.NewDefaultLogger()
	}
	s := &Server{
		service: service,
		repo:    repo,
		log:     log,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Post("/api/runs", s.handleCreateRun)
	s.router.Get("/api/runs", s.handleListRuns)
	s.router.Get("/api/runs/{id}", s.handleGetRun)
	s.router.Get("/api/runs/{id}/report", s.handleGetReport)
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var payload RunPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, errors.InvalidParameter("malformed JSON body: %v", err))
		return
	}
	req, err := payload.ToRequest()
	if err != nil {
		s.writeError(w, err)
		return
	}

	manifest, bundle, err := s.service.Execute(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"run":     manifest,
		"results": bundle,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeUnavailable(w)
		return
	}
	manifests, err := s.repo.ListManifests(r.Context(), 50)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": manifests})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeUnavailable(w)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, errors.InvalidParameter("invalid run ID: %v", err))
		return
	}
	manifest, err := s.repo.GetManifest(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	bundle, err := s.repo.GetResults(r.Context(), id)
	if err != nil && !errors.IsCode(err, errors.CodeNotFound) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":     manifest,
		"results": bundle,
	})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeUnavailable(w)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, errors.InvalidParameter("invalid run ID: %v", err))
		return
	}
	manifest, err := s.repo.GetManifest(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	bundle, err := s.repo.GetResults(r.Context(), id)
	if err != nil && !errors.IsCode(err, errors.CodeNotFound) {
		s.writeError(w, err)
		return
	}

	md := report.Markdown(manifest, bundle, report.DefaultAlpha)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(report.HTML(md))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response: %v", err)
	}
}

func (s *Server) writeUnavailable(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error": "run storage is not configured",
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeShapeMismatch, errors.CodeInvalidBlock, errors.CodeAmbiguousStructure,
		errors.CodeInvalidParameter, errors.CodeInsufficientInput:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	}
	s.log.Warn("request failed (%s): %v", errors.GetCode(err), err)
	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}
