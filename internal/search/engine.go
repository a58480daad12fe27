// Package search runs the paper query pipeline: group expansion, graph
// keyword expansion, embedding, similarity scan and graph recall re-ranking.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/groups"
	"github.com/hyperjump/shiori/internal/learning"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/recall"
	"github.com/hyperjump/shiori/internal/storage"
	"github.com/hyperjump/shiori/internal/vector"
	"github.com/hyperjump/shiori/pkg/utils"
)

// DegradedEmbedding marks a response produced without a query vector.
const DegradedEmbedding = "embedding_unavailable"

// GroupExpander expands query keywords with semantic groups.
type GroupExpander interface {
	Expand(keywords []string, text string) groups.Expansion
}

// Engine answers paper searches.
type Engine struct {
	store    storage.Store
	embedder embedding.Embedder
	groups   GroupExpander
	events   EventSink
	scorer   *vector.Scorer
	enhancer *recall.Enhancer
	config   *config.SearchConfig
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = utils.OrNop(l) }
}

// NewEngine creates a search engine with the given dependencies. events may be nil.
func NewEngine(
	store storage.Store,
	embedder embedding.Embedder,
	expander GroupExpander,
	events EventSink,
	cfg *config.SearchConfig,
	opts ...Option,
) *Engine {
	if cfg == nil {
		cfg = &config.Default().Search
	}
	e := &Engine{
		store:    store,
		embedder: embedder,
		groups:   expander,
		events:   events,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.scorer = vector.NewScorer(vector.WithLogger(e.logger))
	e.enhancer = recall.NewEnhancer(cfg, recall.WithLogger(e.logger))
	return e
}

// Search runs the query pipeline and logs the query. An unavailable embedding
// provider yields an empty degraded response, not an error.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(e.config.DefaultLimit, e.config.MaxLimit); err != nil {
		return nil, err
	}
	text := strings.Join(query.Keywords, " ")
	expansion := groups.Expansion{Keywords: utils.DedupeFold(query.Keywords)}
	if e.groups != nil {
		expansion = e.groups.Expand(query.Keywords, text)
	}

	resp := &models.SearchResponse{
		QueryID:          uuid.NewString(),
		Keywords:         query.Keywords,
		ExpandedKeywords: expansion.Keywords,
		ActivatedGroups:  expansion.Activated,
		Results:          []models.Hit{},
	}

	err := storage.WithTx(ctx, e.store, func(tx storage.Tx) error {
		return e.run(ctx, tx, query, expansion, resp)
	})
	if err != nil {
		return nil, err
	}
	resp.QueryTime = time.Since(startTime).Milliseconds()
	e.emit(ctx, query, expansion, resp)
	return resp, nil
}

func (e *Engine) run(ctx context.Context, tx storage.Tx, query *models.SearchQuery, expansion groups.Expansion, resp *models.SearchResponse) error {
	if e.config.GraphExpansionLimit > 0 {
		terms, err := learning.ExpandKeywords(ctx, tx, query.Keywords, e.config.GraphExpansionLimit)
		if err != nil {
			e.logger.Warn("graph keyword expansion failed", zap.Error(err))
		} else {
			resp.GraphKeywords = terms
		}
	}
	embedTerms := expansion.Keywords
	if len(resp.GraphKeywords) > 0 {
		graphTerms := make([]string, len(resp.GraphKeywords))
		for i, t := range resp.GraphKeywords {
			graphTerms[i] = t.Keyword
		}
		embedTerms = utils.DedupeFold(expansion.Keywords, graphTerms)
	}

	queryVec, err := e.embedder.Embed(ctx, strings.Join(embedTerms, ", "))
	if err != nil {
		e.logger.Warn("query embedding failed", zap.Error(err))
		resp.Degraded = DegradedEmbedding
		return nil
	}

	years := query.YearRange()
	limit := query.Limit
	if limit < 0 {
		limit = 0
	}
	res, err := e.scorer.Search(ctx, tx, queryVec, years, limit)
	if err != nil {
		return fmt.Errorf("similarity scan failed: %w", err)
	}
	resp.TotalCandidates = res.TotalCandidates
	resp.LowConfidence = res.LowConfidence
	hits := res.Hits

	if e.config.EnhancementOrDefault() {
		enhanced, debug, err := e.enhancer.Enhance(ctx, tx, hits, years)
		if err != nil {
			e.logger.Warn("recall enhancement failed", zap.Error(err))
		} else {
			hits = enhanced
			resp.Recall = debug
		}
	}
	// Citation expansion can grow the pool past the requested size.
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	resp.Results = hits
	return nil
}

// ExpandKeywords returns graph keyword suggestions in a read-only unit of work.
func (e *Engine) ExpandKeywords(ctx context.Context, keywords []string, limit int) ([]models.ExpandedTerm, error) {
	var terms []models.ExpandedTerm
	err := storage.WithTx(ctx, e.store, func(tx storage.Tx) error {
		var err error
		terms, err = learning.ExpandKeywords(ctx, tx, keywords, limit)
		return err
	})
	return terms, err
}
