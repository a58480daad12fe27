// Package indexer ingests papers into storage, embeds them and keeps the
// full-text lookup index current.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/keyword"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/storage"
)

const backfillBatchSize = 32

// Indexer writes papers and citations.
type Indexer struct {
	store        storage.Store
	embedder     embedding.Embedder
	keywordIndex keyword.PaperIndex
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// NewIndexer creates an indexer. keywordIndex may be nil.
func NewIndexer(store storage.Store, embedder embedding.Embedder, keywordIndex keyword.PaperIndex, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:        store,
		embedder:     embedder,
		keywordIndex: keywordIndex,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexPaper creates a paper, or updates the paper with the same DOI. The
// paper is embedded on creation and whenever its title or abstract changes;
// an embedding failure stores the paper without a vector for a later
// backfill. The bool reports whether a paper was created.
func (idx *Indexer) IndexPaper(ctx context.Context, input *models.PaperInput) (*models.Paper, bool, error) {
	paper := &models.Paper{
		Title:          CleanText(input.Title),
		Abstract:       CleanText(input.Abstract),
		Year:           input.Year,
		Journal:        strings.TrimSpace(input.Journal),
		DOI:            NormalizeDOI(input.DOI),
		Authors:        input.Authors,
		CitationsCount: input.CitationsCount,
	}
	if paper.Title == "" {
		return nil, false, fmt.Errorf("title cannot be empty")
	}
	if paper.CitationsCount < 0 {
		paper.CitationsCount = 0
	}

	vec, embedErr := idx.embedder.Embed(ctx, paper.EmbeddingText())
	if embedErr != nil {
		idx.logger.Warn("paper embedding failed, storing without vector",
			zap.String("title", paper.Title), zap.Error(embedErr))
	}

	created := false
	err := storage.WithTx(ctx, idx.store, func(tx storage.Tx) error {
		var existing *models.Paper
		if paper.DOI != "" {
			p, err := tx.GetPaperByDOI(ctx, paper.DOI)
			switch {
			case err == nil:
				existing = p
			case !errors.Is(err, storage.ErrNotFound):
				return fmt.Errorf("failed to look up doi: %w", err)
			}
		}
		if existing == nil {
			paper.Embedding = vec
			created = true
			return tx.CreatePaper(ctx, paper)
		}
		paper.ID = existing.ID
		paper.CreatedAt = existing.CreatedAt
		textChanged := existing.EmbeddingText() != paper.EmbeddingText()
		paper.Embedding = vec
		if err := tx.UpdatePaper(ctx, paper); err != nil {
			return err
		}
		if vec == nil && textChanged {
			// stale vector; leave it for backfill
			return tx.SetPaperEmbedding(ctx, paper.ID, nil)
		}
		if vec == nil {
			paper.Embedding = existing.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to store paper: %w", err)
	}

	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.Index(ctx, paper); err != nil {
			idx.logger.Warn("paper keyword indexing failed", zap.Int64("paper_id", paper.ID), zap.Error(err))
		}
	}
	idx.logger.Debug("paper indexed",
		zap.Int64("paper_id", paper.ID), zap.Bool("created", created), zap.Bool("embedded", vec != nil))
	return paper, created, nil
}

// Backfill embeds up to limit papers that have no vector (all when limit <= 0),
// oldest first. Returns the number of vectors written.
func (idx *Indexer) Backfill(ctx context.Context, limit int) (int, error) {
	var pending []*models.Paper
	err := storage.WithTx(ctx, idx.store, func(tx storage.Tx) error {
		var err error
		pending, err = tx.ListPapersMissingEmbedding(ctx, limit)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list papers: %w", err)
	}

	written := 0
	for start := 0; start < len(pending); start += backfillBatchSize {
		end := start + backfillBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.EmbeddingText()
		}
		vecs, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("failed to embed batch: %w", err)
		}
		err = storage.WithTx(ctx, idx.store, func(tx storage.Tx) error {
			for i, p := range batch {
				if err := tx.SetPaperEmbedding(ctx, p.ID, vecs[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return written, fmt.Errorf("failed to store embeddings: %w", err)
		}
		written += len(batch)
		idx.logger.Debug("backfill batch stored", zap.Int("count", len(batch)), zap.Int("total", written))
	}
	return written, nil
}

// AddCitation records that citing cites cited. Self citations are rejected.
// The bool reports whether a new edge was stored.
func (idx *Indexer) AddCitation(ctx context.Context, citing, cited int64, confidence float64, source string) (bool, error) {
	c := &models.PaperCitation{CitingPaperID: citing, CitedPaperID: cited, Confidence: confidence, Source: source}
	if err := validateCitation(c); err != nil {
		return false, err
	}
	var added bool
	err := storage.WithTx(ctx, idx.store, func(tx storage.Tx) error {
		var err error
		added, err = tx.AddCitation(ctx, c)
		return err
	})
	return added, err
}

func validateCitation(c *models.PaperCitation) error {
	if c.CitingPaperID <= 0 || c.CitedPaperID <= 0 {
		return fmt.Errorf("citation endpoints must be paper ids")
	}
	if c.IsSelfLoop() {
		return fmt.Errorf("paper %d cannot cite itself", c.CitingPaperID)
	}
	if c.Confidence == 0 {
		c.Confidence = 1
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", c.Confidence)
	}
	return nil
}

// Reindex rebuilds the full-text index from storage. Returns the number of
// papers indexed.
func (idx *Indexer) Reindex(ctx context.Context) (int, error) {
	if idx.keywordIndex == nil {
		return 0, nil
	}
	var papers []*models.Paper
	err := storage.WithTx(ctx, idx.store, func(tx storage.Tx) error {
		summaries, err := tx.ListPaperSummaries(ctx)
		if err != nil {
			return err
		}
		ids := make([]int64, len(summaries))
		for i, s := range summaries {
			ids[i] = s.ID
		}
		byID, err := tx.GetPapers(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if p, ok := byID[id]; ok {
				papers = append(papers, p)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load papers: %w", err)
	}
	if err := idx.keywordIndex.IndexBatch(ctx, papers); err != nil {
		return 0, fmt.Errorf("failed to index papers: %w", err)
	}
	return len(papers), nil
}

// NormalizeDOI lowercases a DOI and strips resolver prefixes.
func NormalizeDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return strings.TrimSpace(doi)
}
