package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/shiori/internal/models"
)

const citationColumns = `id, citing_paper_id, cited_paper_id, confidence, source, created_at`

// AddCitation inserts a citation edge unless it already exists. Self loops are rejected.
func (t *sqliteTx) AddCitation(ctx context.Context, c *models.PaperCitation) (bool, error) {
	if c.IsSelfLoop() {
		return false, fmt.Errorf("paper %d cannot cite itself", c.CitingPaperID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO paper_citations (citing_paper_id, cited_paper_id, confidence, source, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (citing_paper_id, cited_paper_id) DO NOTHING`,
		c.CitingPaperID, c.CitedPaperID, c.Confidence, c.Source, c.CreatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		c.ID, _ = res.LastInsertId()
	}
	return n > 0, nil
}

// ListCitationsFrom returns the outgoing edges of the given papers.
func (t *sqliteTx) ListCitationsFrom(ctx context.Context, citingIDs []int64) ([]models.PaperCitation, error) {
	return t.citationsByColumn(ctx, "citing_paper_id", citingIDs)
}

// ListCitationsTo returns the incoming edges of the given papers.
func (t *sqliteTx) ListCitationsTo(ctx context.Context, citedIDs []int64) ([]models.PaperCitation, error) {
	return t.citationsByColumn(ctx, "cited_paper_id", citedIDs)
}

// ListCitations returns every citation edge ordered by id.
func (t *sqliteTx) ListCitations(ctx context.Context) ([]models.PaperCitation, error) {
	return t.queryCitations(ctx, `SELECT `+citationColumns+` FROM paper_citations ORDER BY id`)
}

func (t *sqliteTx) citationsByColumn(ctx context.Context, column string, ids []int64) ([]models.PaperCitation, error) {
	var out []models.PaperCitation
	for _, chunk := range int64Chunks(ids) {
		found, err := t.queryCitations(ctx,
			`SELECT `+citationColumns+` FROM paper_citations WHERE `+column+` IN (`+placeholders(len(chunk))+`) ORDER BY id`,
			chunk...)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (t *sqliteTx) queryCitations(ctx context.Context, query string, args ...any) ([]models.PaperCitation, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.PaperCitation
	for rows.Next() {
		var c models.PaperCitation
		if err := rows.Scan(&c.ID, &c.CitingPaperID, &c.CitedPaperID, &c.Confidence, &c.Source, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
