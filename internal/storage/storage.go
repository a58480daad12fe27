// Package storage defines the unit-of-work interface over the paper graph and
// its SQLite implementation.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/shiori/internal/models"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store opens units of work. Every logical operation (one search, one learner
// batch, one labeller pass) runs inside exactly one Tx.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Tx is a unit of work. Writes become visible to other units only after Commit.
type Tx interface {
	// Papers
	CreatePaper(ctx context.Context, paper *models.Paper) error
	UpdatePaper(ctx context.Context, paper *models.Paper) error
	GetPaperByDOI(ctx context.Context, doi string) (*models.Paper, error)
	GetPapers(ctx context.Context, ids []int64) (map[int64]*models.Paper, error)
	ListEmbeddedPapers(ctx context.Context, years models.YearRange) ([]*models.Paper, error)
	ListPapersMissingEmbedding(ctx context.Context, limit int) ([]*models.Paper, error)
	SetPaperEmbedding(ctx context.Context, paperID int64, embedding []float32) error
	ListPaperSummaries(ctx context.Context) ([]PaperSummary, error)

	// Tags and groups
	EnsureTag(ctx context.Context, tag *models.Tag) (*models.Tag, bool, error)
	FindTagByKey(ctx context.Context, key string) (*models.Tag, error)
	FindTagsByKeys(ctx context.Context, keys []string) ([]*models.Tag, error)
	GetTags(ctx context.Context, ids []int64) (map[int64]*models.Tag, error)
	EnsureGroup(ctx context.Context, group *models.TagGroup) (*models.TagGroup, bool, error)
	GetGroupByKey(ctx context.Context, key string) (*models.TagGroup, error)
	GetGroups(ctx context.Context, ids []int64) (map[int64]*models.TagGroup, error)
	GetGroupEdge(ctx context.Context, groupID, tagID int64) (*models.TagGroupTag, error)
	SetGroupEdgeWeight(ctx context.Context, groupID, tagID int64, weight float64) error
	ListGroupEdgesByTags(ctx context.Context, tagIDs []int64) ([]models.TagGroupTag, error)
	ListGroupEdgesByGroups(ctx context.Context, groupIDs []int64, limit int) ([]models.TagGroupTag, error)

	// Paper tags
	ListPaperTags(ctx context.Context, paperIDs []int64) ([]models.PaperTag, error)
	LinkPaperTag(ctx context.Context, link models.PaperTag) (bool, error)
	UnlinkTagsBy(ctx context.Context, category, source string) (int64, error)

	// Citations
	AddCitation(ctx context.Context, citation *models.PaperCitation) (bool, error)
	ListCitationsFrom(ctx context.Context, citingIDs []int64) ([]models.PaperCitation, error)
	ListCitationsTo(ctx context.Context, citedIDs []int64) ([]models.PaperCitation, error)
	ListCitations(ctx context.Context) ([]models.PaperCitation, error)

	// Interaction log
	AppendInteraction(ctx context.Context, entry *models.InteractionLog) error
	ListInteractions(ctx context.Context, filter InteractionFilter) ([]*models.InteractionLog, error)
	MarkInteractionsProcessed(ctx context.Context, ids []int64, at time.Time) error

	Commit() error
	Rollback() error
}

// PaperSummary is the slice of a paper the citation labeller needs.
type PaperSummary struct {
	ID             int64
	Year           int
	CitationsCount int
}

// InteractionFilter selects interaction log rows. Zero Since reads from the beginning.
type InteractionFilter struct {
	Since           time.Time
	EventTypes      []string
	UnprocessedOnly bool
}

// Stats holds row counts for the status surface.
type Stats struct {
	Papers         int64 `json:"papers"`
	EmbeddedPapers int64 `json:"embedded_papers"`
	Tags           int64 `json:"tags"`
	TagGroups      int64 `json:"tag_groups"`
	Citations      int64 `json:"citations"`
	Interactions   int64 `json:"interactions"`
}

// WithTx runs fn in a new unit of work, committing when fn returns nil and
// rolling back otherwise.
func WithTx(ctx context.Context, store Store, fn func(tx Tx) error) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
