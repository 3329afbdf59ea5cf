// Package api exposes the feedback wall over HTTP: submission, voting,
// moderation actions, and the aggregated topic listing.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/openwall-hq/wallboard/internal/analysis"
	"github.com/openwall-hq/wallboard/internal/store"
	"github.com/openwall-hq/wallboard/internal/topics"
)

// Pipeline is the slice of the workflow engine the handlers need.
type Pipeline interface {
	Start(ctx context.Context, feedbackID uuid.UUID, content string, moderate bool) (uuid.UUID, error)
	DeleteFeedback(ctx context.Context, id uuid.UUID) error
}

// Publisher mirrors the events client; nil disables lifecycle events.
type Publisher interface {
	Publish(subject string, payload any) error
}

type Server struct {
	router     *chi.Mux
	store      store.Store
	ledger     topics.Ledger
	pipeline   Pipeline
	summarizer analysis.Summarizer
	events     Publisher
	logger     *slog.Logger
	port       int
}

func NewServer(port int, st store.Store, ledger topics.Ledger, pipeline Pipeline, summarizer analysis.Summarizer, events Publisher, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:     router,
		store:      st,
		ledger:     ledger,
		pipeline:   pipeline,
		summarizer: summarizer,
		events:     events,
		logger:     logger,
		port:       port,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/feedback", s.submitFeedback)
		r.Get("/feedback", s.listFeedback)
		r.Post("/feedback/summarize", s.summarizeFeedback)
		r.Get("/feedback/{id}", s.getFeedback)
		r.Post("/feedback/{id}/vote", s.toggleVote)
		r.Post("/feedback/{id}/note", s.toggleNote)
		r.Post("/feedback/{id}/approve", s.approveFeedback)
		r.Delete("/feedback/{id}", s.deleteFeedback)
		r.Get("/topics", s.listTopics)
		r.Get("/sentiments", s.sentimentOverview)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
