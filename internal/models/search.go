package models

import (
	"fmt"
	"strings"
)

// Hit is a scored candidate paper. Score is the final ranking score; the
// component scores explain it. A hit that entered through citation expansion
// has EmbeddingScore 0 and Origin OriginCitation.
type Hit struct {
	Paper          *Paper  `json:"paper"`
	Score          float64 `json:"score"`
	EmbeddingScore float64 `json:"embedding_score"`
	GraphScore     float64 `json:"graph_score"`
	TagSignal      float64 `json:"tag_signal"`
	CitationSignal float64 `json:"citation_signal"`
	Origin         string  `json:"origin"`
}

// Hit origins.
const (
	OriginSimilarity = "similarity"
	OriginCitation   = "citation"
)

// ActivatedGroup describes a semantic group matched by a query.
type ActivatedGroup struct {
	Name         string   `json:"name"`
	Strength     float64  `json:"strength"`
	MatchedWords []string `json:"matched_words"`
	AllWords     []string `json:"all_words"`
	Weight       float64  `json:"weight"`
}

// ExpandedTerm is a keyword suggested by the learned tag graph.
type ExpandedTerm struct {
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
}

// SearchQuery is a paper search request.
type SearchQuery struct {
	Keywords []string `json:"keywords"`
	YearFrom int      `json:"year_from,omitempty"`
	YearTo   int      `json:"year_to,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// Validate trims keywords and clamps the limit. A limit of 0 selects
// defaultLimit; limits above maxLimit are clamped when maxLimit > 0.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	kept := make([]string, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kept = append(kept, k)
		}
	}
	q.Keywords = kept
	if len(q.Keywords) == 0 {
		return fmt.Errorf("keywords cannot be empty")
	}
	if q.YearFrom != 0 && q.YearTo != 0 && q.YearFrom > q.YearTo {
		return fmt.Errorf("year_from %d is after year_to %d", q.YearFrom, q.YearTo)
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}

// YearRange returns the query's year filter.
func (q *SearchQuery) YearRange() YearRange {
	return YearRange{From: q.YearFrom, To: q.YearTo}
}

// SearchResponse is the result of a paper search.
type SearchResponse struct {
	QueryID          string                    `json:"query_id"`
	Keywords         []string                  `json:"keywords"`
	ExpandedKeywords []string                  `json:"expanded_keywords"`
	GraphKeywords    []ExpandedTerm            `json:"graph_keywords,omitempty"`
	ActivatedGroups  map[string]ActivatedGroup `json:"activated_groups,omitempty"`
	Results          []Hit                     `json:"results"`
	TotalCandidates  int                       `json:"total_candidates"`
	LowConfidence    bool                      `json:"low_confidence,omitempty"`
	Degraded         string                    `json:"degraded,omitempty"`
	Recall           *RecallDebug              `json:"recall,omitempty"`
	QueryTime        int64                     `json:"query_time_ms"`
}

// RecallDebug records what graph recall enhancement did for one query.
type RecallDebug struct {
	Enabled            bool    `json:"enabled"`
	Reason             string  `json:"reason,omitempty"`
	Alpha              float64 `json:"alpha"`
	SeedSize           int     `json:"seed_size"`
	TagCount           int     `json:"tag_count"`
	GroupsTouched      int     `json:"groups_touched"`
	PropagatedTags     int     `json:"propagated_tags"`
	CitationCandidates int     `json:"citation_candidates"`
	ExpandedPapers     int     `json:"expanded_papers"`
	PoolSize           int     `json:"pool_size"`
}
