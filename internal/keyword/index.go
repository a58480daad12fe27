// Package keyword provides full-text lookup of papers by title and abstract.
package keyword

import (
	"context"

	"github.com/hyperjump/shiori/internal/models"
)

// SearchOptions optional parameters for paper lookup. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from title matches.
	// Values > 1 rank title hits above abstract hits. Use 1.0 for no boost.
	TitleBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance (1 or 2). Default 1.
	Fuzziness int
}

// PaperIndex is a full-text index over papers.
type PaperIndex interface {
	Index(ctx context.Context, paper *models.Paper) error
	IndexBatch(ctx context.Context, papers []*models.Paper) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*LookupResult, error)
	Delete(ctx context.Context, paperID int64) error
	DocCount() (uint64, error)
	Close() error
}

// LookupResult is a single full-text hit.
type LookupResult struct {
	PaperID int64   `json:"paper_id"`
	Score   float64 `json:"score"`
}
