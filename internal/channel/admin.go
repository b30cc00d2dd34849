package channel

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"wabot/internal/agent"
	"wabot/internal/domain"
	"wabot/internal/memory"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Server) registerAdminRoutes(r chi.Router) {
	r.Use(s.requireStore)
	r.Get("/knowledge", s.handleListKnowledge)
	r.Post("/knowledge", s.handleCreateKnowledge)
	r.Put("/knowledge/{id}", s.handleUpdateKnowledge)
	r.Delete("/knowledge/{id}", s.handleDeleteKnowledge)
	r.Get("/analytics", s.handleAnalytics)
	r.Get("/database-status", s.handleDatabaseStatus)
	r.Get("/users/{phone}/analytics", s.handleUserAnalytics)
}

func (s *Server) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			respondError(w, http.StatusServiceUnavailable, "Database not available")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) purgeCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// --- Knowledge base ---

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(q.Get("limit"), defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	entries, total, err := s.store.ListKnowledge(r.Context(), domain.KnowledgeFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		s.logger.Error("list knowledge failed", "err", err)
		respondFailure(w, "Failed to fetch knowledge base", err)
		return
	}
	if entries == nil {
		entries = []domain.KnowledgeEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    entries,
		"pagination": map[string]int{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": int(math.Ceil(float64(total) / float64(limit))),
		},
	})
}

type knowledgeRequest struct {
	Category *string `json:"category"`
	Keywords *string `json:"keywords"`
	Question *string `json:"question"`
	Answer   *string `json:"answer"`
	Priority *int    `json:"priority"`
	Active   *bool   `json:"is_active"`
}

// apply overwrites the fields present in the request.
func (kr knowledgeRequest) apply(e *domain.KnowledgeEntry) {
	if kr.Category != nil {
		e.Category = strings.TrimSpace(*kr.Category)
	}
	if kr.Keywords != nil {
		e.Keywords = *kr.Keywords
	}
	if kr.Question != nil {
		e.Question = *kr.Question
	}
	if kr.Answer != nil {
		e.Answer = *kr.Answer
	}
	if kr.Priority != nil {
		e.Priority = *kr.Priority
	}
	if kr.Active != nil {
		e.Active = *kr.Active
	}
}

func (s *Server) handleCreateKnowledge(w http.ResponseWriter, r *http.Request) {
	var req knowledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if blank(req.Category) || blank(req.Keywords) || blank(req.Question) || blank(req.Answer) {
		respondError(w, http.StatusBadRequest, "Missing required fields: category, keywords, question, answer")
		return
	}

	entry := domain.KnowledgeEntry{Priority: 1, Active: true}
	req.apply(&entry)

	id, err := s.store.AddKnowledge(r.Context(), entry)
	if err != nil {
		s.logger.Error("create knowledge failed", "err", err)
		respondFailure(w, "Failed to create knowledge base entry", err)
		return
	}
	s.purgeCache()
	s.logger.Info("knowledge entry created", "id", id, "category", entry.Category)

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"id":      id,
		"message": "Knowledge base entry created successfully",
	})
}

func (s *Server) handleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req knowledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	entry, err := s.store.GetKnowledge(r.Context(), id)
	if memory.IsNotFound(err) {
		respondError(w, http.StatusNotFound, "Knowledge base entry not found")
		return
	}
	if err != nil {
		respondFailure(w, "Failed to update knowledge base entry", err)
		return
	}

	req.apply(entry)
	if entry.Category == "" || entry.Question == "" || entry.Answer == "" {
		respondError(w, http.StatusBadRequest, "category, question and answer cannot be empty")
		return
	}
	if err := s.store.UpdateKnowledge(r.Context(), *entry); err != nil {
		if memory.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "Knowledge base entry not found")
			return
		}
		s.logger.Error("update knowledge failed", "id", id, "err", err)
		respondFailure(w, "Failed to update knowledge base entry", err)
		return
	}
	s.purgeCache()

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Knowledge base entry updated successfully",
	})
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteKnowledge(r.Context(), id); err != nil {
		if memory.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "Knowledge base entry not found")
			return
		}
		s.logger.Error("delete knowledge failed", "id", id, "err", err)
		respondFailure(w, "Failed to delete knowledge base entry", err)
		return
	}
	s.purgeCache()

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Knowledge base entry deleted successfully",
	})
}

// --- Analytics ---

type analyticsSummary struct {
	ResponseTime       domain.MetricSummary `json:"responseTime"`
	KnowledgeHits      domain.MetricSummary `json:"knowledgeHits"`
	Intents            domain.MetricSummary `json:"intents"`
	TotalConversations int64                `json:"totalConversations"`
	TotalUsers         int64                `json:"totalUsers"`
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("startDate"), time.Unix(0, 0))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid startDate")
		return
	}
	to, err := parseDate(q.Get("endDate"), time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid endDate")
		return
	}
	if len(q.Get("endDate")) == len(time.DateOnly) {
		// A plain end date covers that whole day.
		to = to.Add(24*time.Hour - time.Nanosecond)
	}

	var out analyticsSummary
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		out.ResponseTime, err = s.store.SummarizeMetric(ctx, domain.MetricResponseTime, from, to)
		return err
	})
	g.Go(func() (err error) {
		out.KnowledgeHits, err = s.store.SummarizeMetric(ctx, domain.MetricKnowledgeBaseHits, from, to)
		return err
	})
	g.Go(func() (err error) {
		out.Intents, err = s.store.SummarizeMetric(ctx, domain.MetricIntentDetected, from, to)
		return err
	})
	g.Go(func() (err error) {
		out.TotalConversations, err = s.store.CountConversations(ctx, from, to)
		return err
	})
	g.Go(func() (err error) {
		out.TotalUsers, err = s.store.CountActiveUsers(ctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("analytics failed", "err", err)
		respondFailure(w, "Failed to fetch analytics", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"analytics": out,
		"period": map[string]string{
			"startDate": q.Get("startDate"),
			"endDate":   q.Get("endDate"),
		},
	})
}

func (s *Server) handleDatabaseStatus(w http.ResponseWriter, r *http.Request) {
	st := s.store.Status(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"database": st,
	})
}

func (s *Server) handleUserAnalytics(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	ua, err := agent.AnalyzeUser(r.Context(), s.store, s.store, phone)
	if err != nil {
		s.logger.Error("user analytics failed", "user", phone, "err", err)
		respondFailure(w, "Failed to fetch user analytics", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"phoneNumber": phone,
		"analytics":   ua,
	})
}

// --- helpers ---

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func queryInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

// parseDate accepts RFC 3339 timestamps or plain dates. An empty value
// yields def.
func parseDate(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", v, err)
	}
	return t, nil
}
