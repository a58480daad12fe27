package vector

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/models"
)

// PaperSource lists papers that carry an embedding.
type PaperSource interface {
	ListEmbeddedPapers(ctx context.Context, years models.YearRange) ([]*models.Paper, error)
}

// Result is the outcome of one exhaustive scan.
type Result struct {
	Hits            []models.Hit
	TotalCandidates int
	// LowConfidence is set when no candidate scored above zero and Hits holds
	// the raw ranking instead.
	LowConfidence bool
	// Mismatched counts candidates whose vector length differed from the query.
	Mismatched int
}

// Scorer ranks papers by cosine similarity to a query vector.
type Scorer struct {
	logger *zap.Logger
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithLogger sets the logger used for per-row diagnostics.
func WithLogger(l *zap.Logger) ScorerOption {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScorer creates a Scorer.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search loads embedded papers within years from src and ranks them.
func (s *Scorer) Search(ctx context.Context, src PaperSource, query []float32, years models.YearRange, limit int) (Result, error) {
	papers, err := src.ListEmbeddedPapers(ctx, years)
	if err != nil {
		return Result{}, err
	}
	return s.Rank(query, papers, limit), nil
}

// Rank scores every paper with an embedding against query. Hits with a
// strictly positive score are returned best first, truncated to limit
// (limit <= 0 keeps all). When nothing scores above zero but candidates
// exist, every candidate is returned by raw score and LowConfidence is set.
func (s *Scorer) Rank(query []float32, papers []*models.Paper, limit int) Result {
	var res Result
	all := make([]models.Hit, 0, len(papers))
	for _, p := range papers {
		if p == nil || len(p.Embedding) == 0 {
			continue
		}
		res.TotalCandidates++
		if len(p.Embedding) != len(query) {
			res.Mismatched++
			s.logger.Debug("embedding length mismatch",
				zap.Int64("paper_id", p.ID), zap.Int("want", len(query)), zap.Int("got", len(p.Embedding)))
		}
		score := Cosine(query, p.Embedding)
		all = append(all, models.Hit{
			Paper:          p,
			Score:          score,
			EmbeddingScore: score,
			Origin:         models.OriginSimilarity,
		})
	}

	positive := make([]models.Hit, 0, len(all))
	for _, h := range all {
		if h.Score > 0 {
			positive = append(positive, h)
		}
	}
	if len(positive) == 0 && len(all) > 0 {
		positive = all
		res.LowConfidence = true
	}
	SortHits(positive)
	if limit > 0 && len(positive) > limit {
		positive = positive[:limit]
	}
	res.Hits = positive
	return res
}

// SortHits orders hits by score descending, breaking ties by paper id.
func SortHits(hits []models.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Paper.ID < hits[j].Paper.ID
	})
}
