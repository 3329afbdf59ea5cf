package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openwall-hq/wallboard/internal/analysis"
	"github.com/openwall-hq/wallboard/internal/events"
	"github.com/openwall-hq/wallboard/internal/store"
)

const maxContentLength = 2000

type submitRequest struct {
	Content  string    `json:"content"`
	AuthorID uuid.UUID `json:"author_id"`
}

func (s *Server) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > maxContentLength {
		writeError(w, http.StatusBadRequest, "content too long")
		return
	}
	if req.AuthorID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "author_id is required")
		return
	}

	f := &store.Feedback{
		Content:  req.Content,
		AuthorID: req.AuthorID,
		Status:   store.StatusOpen,
		Approval: analysis.ApprovalPending,
	}
	if err := s.store.Insert(r.Context(), f); err != nil {
		s.logger.Error("insert feedback", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store feedback")
		return
	}

	runID, err := s.pipeline.Start(r.Context(), f.ID, f.Content, true)
	if err != nil {
		s.logger.Error("start analysis run", "feedback_id", f.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start analysis")
		return
	}

	if s.events != nil {
		_ = s.events.Publish(events.SubjectFeedbackSubmitted, map[string]any{
			"feedback_id": f.ID,
			"author_id":   f.AuthorID,
		})
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"feedback": f,
		"run_id":   runID,
	})
}

func (s *Server) listFeedback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.Filter

	switch q.Get("published") {
	case "":
	case "true":
		published := true
		filter.Published = &published
	case "false":
		published := false
		filter.Published = &published
	default:
		writeError(w, http.StatusBadRequest, "published must be true or false")
		return
	}

	if v := q.Get("sentiment"); v != "" {
		switch analysis.Sentiment(v) {
		case analysis.SentimentPositive, analysis.SentimentNeutral, analysis.SentimentNegative:
			filter.Sentiment = analysis.Sentiment(v)
		default:
			writeError(w, http.StatusBadRequest, "unknown sentiment")
			return
		}
	}
	if v := q.Get("status"); v != "" {
		switch store.Status(v) {
		case store.StatusOpen, store.StatusNoted:
			filter.Status = store.Status(v)
		default:
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
	}
	if v := q.Get("author_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid author_id")
			return
		}
		filter.AuthorID = &id
	}
	filter.Content = q.Get("q")
	if v := q.Get("votes"); v == "asc" || v == "desc" {
		filter.VotesOrder = v
	}

	records, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list feedback", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list feedback")
		return
	}
	if records == nil {
		records = []*store.Feedback{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": records})
}

func (s *Server) getFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	f, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "feedback not found")
		return
	}
	if err != nil {
		s.logger.Error("get feedback", "feedback_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load feedback")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type voteRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (s *Server) toggleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	voted, err := s.store.ToggleVote(r.Context(), id, req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "feedback not found")
		return
	}
	if err != nil {
		s.logger.Error("toggle vote", "feedback_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle vote")
		return
	}

	f, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("reload after vote", "feedback_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load feedback")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voted": voted, "votes": f.Votes})
}

func (s *Server) toggleNote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	status, err := s.store.ToggleNoted(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "feedback not found")
		return
	}
	if err != nil {
		s.logger.Error("toggle noted", "feedback_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle noted")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

// approveFeedback force-approves a record and re-drives the analysis
// pipeline without moderation. Used to overturn a rejection or re-drive a
// failed run.
func (s *Server) approveFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	f, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "feedback not found")
		return
	}
	if err != nil {
		s.logger.Error("get feedback", "feedback_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load feedback")
		return
	}

	if err := s.store.Patch(r.Context(), id, store.ApprovalPatch(analysis.ApprovalApproved)); err != nil {
		s.logger.Error("approve feedback", "feedback_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to approve feedback")
		return
	}

	runID, err := s.pipeline.Start(r.Context(), id, f.Content, false)
	if err != nil {
		s.logger.Error("start re-approval run", "feedback_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start analysis")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"run_id": runID})
}

func (s *Server) deleteFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	err := s.pipeline.DeleteFeedback(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "feedback not found")
		return
	}
	if err != nil {
		s.logger.Error("delete feedback", "feedback_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete feedback")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type summarizeRequest struct {
	FeedbackIDs []uuid.UUID `json:"feedback_ids"`
}

// summarizeFeedback condenses the named records into an HTML digest for the
// dashboard. Unknown ids are skipped; summarizing nothing is an error.
func (s *Server) summarizeFeedback(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.FeedbackIDs) == 0 {
		writeError(w, http.StatusBadRequest, "feedback_ids is required")
		return
	}

	inputs := make([]analysis.SummaryInput, 0, len(req.FeedbackIDs))
	for _, id := range req.FeedbackIDs {
		f, err := s.store.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error("get feedback for summary", "feedback_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load feedback")
			return
		}
		inputs = append(inputs, analysis.SummaryInput{
			Content:   f.Content,
			Sentiment: f.Sentiment,
			Topics:    f.Topics,
		})
	}
	if len(inputs) == 0 {
		writeError(w, http.StatusNotFound, "no feedback found for the provided ids")
		return
	}

	summary, err := s.summarizer.Summarize(r.Context(), inputs)
	if errors.Is(err, analysis.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "summarization unavailable")
		return
	}
	if err != nil {
		s.logger.Error("summarize feedback", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize feedback")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) sentimentOverview(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.SentimentCounts(r.Context())
	if err != nil {
		s.logger.Error("count sentiments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count sentiments")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.List(r.Context())
	if err != nil {
		s.logger.Error("list topics", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list topics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": list})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid feedback id")
		return uuid.Nil, false
	}
	return id, true
}
