package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/citegraph"
	"github.com/hyperjump/shiori/internal/learning"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/storage"
)

const defaultLookupLimit = 10

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(s.config.Search.DefaultLimit, s.config.Search.MaxLimit); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.Strings("keywords", query.Keywords), zap.Int("limit", query.Limit))
	response, err := s.Engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var entry models.InteractionLog
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entry.ID = 0
	entry.ProcessedAt = nil
	entry.CreatedAt = time.Now().UTC()
	if err := entry.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := storage.WithTx(r.Context(), s.Store, func(tx storage.Tx) error {
		return tx.AppendInteraction(r.Context(), &entry)
	})
	if err != nil {
		s.logger.Error("interaction write failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"id": entry.ID, "status": "logged"})
}

type expandRequest struct {
	Keywords []string `json:"keywords"`
	Limit    int      `json:"limit,omitempty"`
}

func (s *Server) handleGraphExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Keywords) == 0 {
		s.respondError(w, http.StatusBadRequest, "keywords are required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = s.config.Search.GraphExpansionLimit
	}
	terms, err := s.Engine.ExpandKeywords(r.Context(), req.Keywords, req.Limit)
	if err != nil {
		s.logger.Error("graph expansion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	scores := make(map[string]float64, len(terms))
	for _, t := range terms {
		scores[t.Keyword] = t.Score
	}
	if terms == nil {
		terms = []models.ExpandedTerm{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"expanded": scores, "terms": terms})
}

type learnRequest struct {
	WindowMinutes *int `json:"window_minutes,omitempty"`
}

func (s *Server) handleGraphLearn(w http.ResponseWriter, r *http.Request) {
	if s.Learner == nil {
		s.respondError(w, http.StatusNotImplemented, "learner not configured")
		return
	}
	var req learnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	window := s.Learner.Window()
	if req.WindowMinutes != nil {
		window = time.Duration(*req.WindowMinutes) * time.Minute
	}
	res, err := s.Learner.Run(r.Context(), s.Store, window)
	if err != nil {
		s.logger.Error("learning batch failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSyncGroups(w http.ResponseWriter, r *http.Request) {
	if s.Matcher == nil {
		s.respondError(w, http.StatusNotImplemented, "semantic groups not configured")
		return
	}
	var res *learning.SyncResult
	err := storage.WithTx(r.Context(), s.Store, func(tx storage.Tx) error {
		var err error
		res, err = learning.SyncStaticGroups(r.Context(), tx, s.Matcher.Snapshot(), s.config.Learner.DefaultWeight)
		return err
	})
	if err != nil {
		s.logger.Error("group sync failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGroupsList(w http.ResponseWriter, r *http.Request) {
	if s.Matcher == nil {
		s.respondError(w, http.StatusNotImplemented, "semantic groups not configured")
		return
	}
	snap := s.Matcher.Snapshot()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"source": snap.Source,
		"config": snap.Config,
		"groups": snap.Groups,
	})
}

func (s *Server) handleGroupsReload(w http.ResponseWriter, r *http.Request) {
	if s.Matcher == nil {
		s.respondError(w, http.StatusNotImplemented, "semantic groups not configured")
		return
	}
	if err := s.Matcher.Reload(); err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	snap := s.Matcher.Snapshot()
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "source": snap.Source, "groups": len(snap.Groups)})
}

func (s *Server) handleIndexPaper(w http.ResponseWriter, r *http.Request) {
	var input models.PaperInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(input.Title) == "" {
		s.respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	s.logger.Debug("index paper request", zap.String("title", input.Title), zap.String("doi", input.DOI))
	paper, created, err := s.Indexer.IndexPaper(r.Context(), &input)
	if err != nil {
		s.logger.Error("indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, map[string]any{
		"id":       paper.ID,
		"created":  created,
		"embedded": paper.Embedding != nil,
	})
}

type lookupResult struct {
	Paper *models.Paper `json:"paper"`
	Score float64       `json:"score"`
}

func (s *Server) handlePaperLookup(w http.ResponseWriter, r *http.Request) {
	if s.Lookup == nil {
		s.respondError(w, http.StatusNotImplemented, "paper lookup not enabled")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := defaultLookupLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	found, err := s.Lookup.Search(r.Context(), q, limit, nil)
	if err != nil {
		s.logger.Error("paper lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ids := make([]int64, len(found))
	for i, f := range found {
		ids[i] = f.PaperID
	}
	var papers map[int64]*models.Paper
	err = storage.WithTx(r.Context(), s.Store, func(tx storage.Tx) error {
		var err error
		papers, err = tx.GetPapers(r.Context(), ids)
		return err
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results := make([]lookupResult, 0, len(found))
	for _, f := range found {
		p, ok := papers[f.PaperID]
		if !ok {
			// stale index entry
			continue
		}
		p.Embedding = nil
		results = append(results, lookupResult{Paper: p, Score: f.Score})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

type citationRequest struct {
	CitingPaperID int64   `json:"citing_paper_id"`
	CitedPaperID  int64   `json:"cited_paper_id"`
	Confidence    float64 `json:"confidence,omitempty"`
	Source        string  `json:"source,omitempty"`
}

func (s *Server) handleAddCitation(w http.ResponseWriter, r *http.Request) {
	var req citationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	added, err := s.Indexer.AddCitation(r.Context(), req.CitingPaperID, req.CitedPaperID, req.Confidence, req.Source)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, map[string]bool{"added": added})
}

func (s *Server) handleEgoGraph(w http.ResponseWriter, r *http.Request) {
	paperID, err := strconv.ParseInt(chi.URLParam(r, "paperID"), 10, 64)
	if err != nil || paperID <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid paper id")
		return
	}
	minConfidence := 0.0
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		if minConfidence, err = strconv.ParseFloat(v, 64); err != nil || minConfidence < 0 || minConfidence > 1 {
			s.respondError(w, http.StatusBadRequest, "min_confidence must be between 0 and 1")
			return
		}
	}
	limit := citegraph.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	var graph *citegraph.EgoGraph
	err = storage.WithTx(r.Context(), s.Store, func(tx storage.Tx) error {
		var err error
		graph, err = citegraph.Ego(r.Context(), tx, paperID, minConfidence, limit)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("ego graph failed", zap.Int64("paper_id", paperID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, graph)
}

func (s *Server) handleCitationAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.Labeller == nil {
		s.respondError(w, http.StatusNotImplemented, "labeller not configured")
		return
	}
	res, err := s.Labeller.Run(r.Context(), s.Store)
	if err != nil {
		s.logger.Error("citation analysis failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.Store.Stats(ctx)
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{"stats": stats}

	if s.Lookup != nil {
		if n, err := s.Lookup.DocCount(); err == nil {
			resp["lookup_documents"] = n
		}
	}
	if s.Matcher != nil {
		snap := s.Matcher.Snapshot()
		resp["groups"] = map[string]any{"source": snap.Source, "count": len(snap.Groups)}
	}
	if s.Scheduler != nil {
		resp["jobs"] = s.Scheduler.Status()
	}

	resp["config"] = map[string]any{
		"embedding_provider":   s.config.Embedding.Provider,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"alpha":                s.config.Search.Alpha,
		"max_seed":             s.config.Search.MaxSeed,
		"enhancement_enabled":  s.config.Search.EnhancementOrDefault(),
		"database_path":        s.config.Storage.DatabasePath,
		"bleve_index_path":     s.config.Storage.BleveIndexPath,
	}
	diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.BleveIndexPath)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
