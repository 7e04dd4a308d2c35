// Package api exposes the HTTP interface for the capture service: job
// submission and read access to page history. Request parsing stays thin;
// the pipeline itself lives behind the dispatcher.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/watchpoint/pagewatch/internal/capture"
	"github.com/watchpoint/pagewatch/internal/dispatcher"
	"github.com/watchpoint/pagewatch/internal/metrics"
	storememory "github.com/watchpoint/pagewatch/internal/store/memory"
	storepostgres "github.com/watchpoint/pagewatch/internal/store/postgres"
)

// Server wires HTTP handlers to the dispatcher and store.
type Server struct {
	router     chi.Router
	store      capture.Store
	dispatcher *dispatcher.Dispatcher
	idGen      capture.IDGenerator
	clock      capture.Clock
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store capture.Store,
	dsp *dispatcher.Dispatcher,
	idGen capture.IDGenerator,
	clock capture.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:      store,
		dispatcher: dsp,
		idGen:      idGen,
		clock:      clock,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/captures", s.submitCapture)
		r.Route("/pages/{page_id}", func(r chi.Router) {
			r.Get("/", s.getPage)
			r.Get("/records", s.listRecords)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitCaptureRequest struct {
	SiteID      string `json:"site_id"`
	URL         string `json:"url"`
	Viewport    string `json:"viewport"`
	ExtractText bool   `json:"extract_text"`
	Priority    int    `json:"priority"`
}

type submitCaptureResponse struct {
	JobID   string                `json:"job_id"`
	Page    capture.MonitoredPage `json:"page"`
	Version int                   `json:"version"`
}

func (s *Server) submitCapture(w http.ResponseWriter, r *http.Request) {
	var req submitCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SiteID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "site_id and url are required")
		return
	}
	viewport := capture.ViewportClass(req.Viewport)
	if viewport != capture.ViewportDesktop && viewport != capture.ViewportMobile {
		viewport = capture.ViewportDesktop
	}

	pageID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	page, err := s.store.UpsertPage(r.Context(), capture.MonitoredPage{
		ID:       pageID,
		SiteID:   req.SiteID,
		URL:      req.URL,
		Viewport: viewport,
		LastSeen: s.clock.Now(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "upsert page failed")
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	width, height := viewport.Dimensions()
	job := capture.CaptureJob{
		ID:          jobID,
		SiteID:      req.SiteID,
		PageID:      page.ID,
		URL:         req.URL,
		Viewport:    viewport,
		Width:       width,
		Height:      height,
		ExtractText: req.ExtractText,
		Priority:    req.Priority,
	}
	if err := s.dispatcher.Enqueue(r.Context(), job); err != nil {
		writeError(w, http.StatusServiceUnavailable, "enqueue failed")
		return
	}

	writeJSON(w, http.StatusAccepted, submitCaptureResponse{
		JobID:   jobID,
		Page:    page,
		Version: page.Version,
	})
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "page_id")
	page, err := s.store.GetPage(r.Context(), pageID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "page not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get page failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "page_id")
	records, err := s.store.ListRecords(r.Context(), pageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list records failed")
		return
	}
	if records == nil {
		records = []capture.CaptureRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func isNotFound(err error) bool {
	return errors.Is(err, storememory.ErrPageNotFound) || errors.Is(err, storepostgres.ErrPageNotFound)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
