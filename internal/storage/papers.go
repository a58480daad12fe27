package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/shiori/internal/models"
)

const paperColumns = `id, title, abstract, year, journal, doi, authors, citations_count, embedding, created_at`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullYear(y int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(y), Valid: y != 0}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (t *sqliteTx) scanPaper(row rowScanner) (*models.Paper, error) {
	var (
		p       models.Paper
		year    sql.NullInt64
		doi     sql.NullString
		authors string
		blob    []byte
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Abstract, &year, &p.Journal, &doi, &authors,
		&p.CitationsCount, &blob, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Year = int(year.Int64)
	p.DOI = doi.String
	t.decodeColumn("papers", p.ID, "authors", authors, &p.Authors)
	p.Embedding = decodeEmbedding(blob)
	return &p, nil
}

// CreatePaper inserts a paper and sets its ID.
func (t *sqliteTx) CreatePaper(ctx context.Context, p *models.Paper) error {
	authors, err := encodeJSON(p.Authors)
	if err != nil {
		return fmt.Errorf("failed to marshal authors: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO papers (title, abstract, year, journal, doi, authors, citations_count, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Abstract, nullYear(p.Year), p.Journal, nullString(p.DOI), authors,
		p.CitationsCount, encodeEmbedding(p.Embedding), p.CreatedAt, p.CreatedAt,
	)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

// UpdatePaper rewrites the descriptive fields of a paper. The embedding is only
// replaced when p.Embedding is non-nil.
func (t *sqliteTx) UpdatePaper(ctx context.Context, p *models.Paper) error {
	authors, err := encodeJSON(p.Authors)
	if err != nil {
		return fmt.Errorf("failed to marshal authors: %w", err)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE papers SET title = ?, abstract = ?, year = ?, journal = ?, doi = ?, authors = ?,
		 citations_count = ?, embedding = COALESCE(?, embedding), updated_at = ?
		 WHERE id = ?`,
		p.Title, p.Abstract, nullYear(p.Year), p.Journal, nullString(p.DOI), authors,
		p.CitationsCount, encodeEmbedding(p.Embedding), time.Now().UTC(), p.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("paper %d: %w", p.ID, ErrNotFound)
	}
	return nil
}

// GetPaperByDOI returns the paper with the given DOI.
func (t *sqliteTx) GetPaperByDOI(ctx context.Context, doi string) (*models.Paper, error) {
	p, err := t.scanPaper(t.tx.QueryRowContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE doi = ?`, doi))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("paper doi %s: %w", doi, ErrNotFound)
	}
	return p, err
}

// GetPapers returns the papers with the given ids, keyed by id. Unknown ids are absent.
func (t *sqliteTx) GetPapers(ctx context.Context, ids []int64) (map[int64]*models.Paper, error) {
	out := make(map[int64]*models.Paper, len(ids))
	for _, chunk := range int64Chunks(ids) {
		if err := t.queryPapers(ctx, func(p *models.Paper) { out[p.ID] = p },
			`SELECT `+paperColumns+` FROM papers WHERE id IN (`+placeholders(len(chunk))+`)`, chunk...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListEmbeddedPapers returns papers with a non-null embedding inside the year range, ordered by id.
func (t *sqliteTx) ListEmbeddedPapers(ctx context.Context, years models.YearRange) ([]*models.Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM papers WHERE embedding IS NOT NULL`
	var args []any
	if years.From != 0 {
		query += ` AND year >= ?`
		args = append(args, years.From)
	}
	if years.To != 0 {
		query += ` AND year <= ?`
		args = append(args, years.To)
	}
	query += ` ORDER BY id`
	var papers []*models.Paper
	err := t.queryPapers(ctx, func(p *models.Paper) { papers = append(papers, p) }, query, args...)
	return papers, err
}

// ListPapersMissingEmbedding returns up to limit papers without an embedding, ordered by id.
func (t *sqliteTx) ListPapersMissingEmbedding(ctx context.Context, limit int) ([]*models.Paper, error) {
	if limit <= 0 {
		limit = -1
	}
	var papers []*models.Paper
	err := t.queryPapers(ctx, func(p *models.Paper) { papers = append(papers, p) },
		`SELECT `+paperColumns+` FROM papers WHERE embedding IS NULL ORDER BY id LIMIT ?`, limit)
	return papers, err
}

// SetPaperEmbedding stores the embedding for a paper.
func (t *sqliteTx) SetPaperEmbedding(ctx context.Context, paperID int64, embedding []float32) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE papers SET embedding = ?, updated_at = ? WHERE id = ?`,
		encodeEmbedding(embedding), time.Now().UTC(), paperID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("paper %d: %w", paperID, ErrNotFound)
	}
	return nil
}

// ListPaperSummaries returns id, year and citation count for every paper, ordered by id.
func (t *sqliteTx) ListPaperSummaries(ctx context.Context) ([]PaperSummary, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, year, citations_count FROM papers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaperSummary
	for rows.Next() {
		var s PaperSummary
		var year sql.NullInt64
		if err := rows.Scan(&s.ID, &year, &s.CitationsCount); err != nil {
			return nil, err
		}
		s.Year = int(year.Int64)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *sqliteTx) queryPapers(ctx context.Context, fn func(*models.Paper), query string, args ...any) error {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := t.scanPaper(rows)
		if err != nil {
			return err
		}
		fn(p)
	}
	return rows.Err()
}
