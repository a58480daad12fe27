package search

import (
	"context"
	"strings"

	"github.com/hyperjump/shiori/internal/groups"
	"github.com/hyperjump/shiori/internal/models"
)

//go:generate mockgen -destination=mocks/mock_event_sink.go -package=mocks github.com/hyperjump/shiori/internal/search EventSink

// EventSink receives interaction events. The sink owns durability; Emit
// never fails the caller.
type EventSink interface {
	Emit(ctx context.Context, entry *models.InteractionLog)
}

func (e *Engine) emit(ctx context.Context, query *models.SearchQuery, expansion groups.Expansion, resp *models.SearchResponse) {
	if e.events == nil {
		return
	}
	e.events.Emit(ctx, QueryEvent(query, expansion, resp))
}

// QueryEvent builds the interaction log entry recorded for a search.
func QueryEvent(query *models.SearchQuery, expansion groups.Expansion, resp *models.SearchResponse) *models.InteractionLog {
	results := make([]map[string]any, 0, len(resp.Results))
	paperIDs := make([]int64, 0, len(resp.Results))
	for _, h := range resp.Results {
		paperIDs = append(paperIDs, h.Paper.ID)
		results = append(results, map[string]any{"paper_id": h.Paper.ID, "score": h.Score})
	}
	graphKeywords := make([]string, 0, len(resp.GraphKeywords))
	for _, t := range resp.GraphKeywords {
		graphKeywords = append(graphKeywords, t.Keyword)
	}
	extra := map[string]any{
		"query_id":          resp.QueryID,
		"expanded_keywords": resp.ExpandedKeywords,
		"graph_keywords":    graphKeywords,
		"total_candidates":  resp.TotalCandidates,
		"returned_count":    len(resp.Results),
		"results":           results,
	}
	if resp.Recall != nil {
		extra["recall"] = resp.Recall
	}
	if resp.Degraded != "" {
		extra["degraded"] = resp.Degraded
	}
	return &models.InteractionLog{
		UserID:    query.UserID,
		EventType: models.EventQuery,
		Source:    query.Source,
		QueryText: strings.Join(query.Keywords, " "),
		Keywords:  query.Keywords,
		GroupKeys: expansion.Order,
		PaperIDs:  paperIDs,
		Extra:     extra,
	}
}
