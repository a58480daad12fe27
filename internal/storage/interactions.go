package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/shiori/internal/models"
)

// AppendInteraction appends an entry to the interaction log and sets its ID.
func (t *sqliteTx) AppendInteraction(ctx context.Context, e *models.InteractionLog) error {
	keywords, err := encodeJSON(nonNilStrings(e.Keywords))
	if err != nil {
		return err
	}
	groupKeys, err := encodeJSON(nonNilStrings(e.GroupKeys))
	if err != nil {
		return err
	}
	paperIDs := e.PaperIDs
	if paperIDs == nil {
		paperIDs = []int64{}
	}
	papers, err := encodeJSON(paperIDs)
	if err != nil {
		return err
	}
	extra := "{}"
	if e.Extra != nil {
		if extra, err = encodeJSON(e.Extra); err != nil {
			return fmt.Errorf("failed to marshal extra: %w", err)
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var (
		paperID sql.NullInt64
		rank    sql.NullInt64
		score   sql.NullFloat64
	)
	if e.PaperID != nil {
		paperID = sql.NullInt64{Int64: *e.PaperID, Valid: true}
	}
	if e.Rank != nil {
		rank = sql.NullInt64{Int64: int64(*e.Rank), Valid: true}
	}
	if e.Score != nil {
		score = sql.NullFloat64{Float64: *e.Score, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO interaction_logs (user_id, event_type, source, query_text, keywords, group_keys, paper_ids, paper_id, rank, score, extra, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.EventType, e.Source, e.QueryText, keywords, groupKeys, papers, paperID, rank, score, extra, e.CreatedAt.UTC())
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ListInteractions returns log entries matching filter, oldest first. Rows with
// undecodable JSON columns keep the fields that did decode; the bad column is
// logged.
func (t *sqliteTx) ListInteractions(ctx context.Context, filter InteractionFilter) ([]*models.InteractionLog, error) {
	var (
		where []string
		args  []any
	)
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if len(filter.EventTypes) > 0 {
		where = append(where, "event_type IN ("+placeholders(len(filter.EventTypes))+")")
		for _, et := range filter.EventTypes {
			args = append(args, et)
		}
	}
	if filter.UnprocessedOnly {
		where = append(where, "processed_at IS NULL")
	}
	query := `SELECT id, user_id, event_type, source, query_text, keywords, group_keys, paper_ids, paper_id, rank, score, extra, created_at, processed_at
		FROM interaction_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.InteractionLog
	for rows.Next() {
		var (
			e                                  models.InteractionLog
			keywords, groupKeys, papers, extra string
			paperID, rank                      sql.NullInt64
			score                              sql.NullFloat64
			processedAt                        sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Source, &e.QueryText,
			&keywords, &groupKeys, &papers, &paperID, &rank, &score, &extra, &e.CreatedAt, &processedAt); err != nil {
			return nil, err
		}
		t.decodeColumn("interaction_logs", e.ID, "keywords", keywords, &e.Keywords)
		t.decodeColumn("interaction_logs", e.ID, "group_keys", groupKeys, &e.GroupKeys)
		t.decodeColumn("interaction_logs", e.ID, "paper_ids", papers, &e.PaperIDs)
		t.decodeColumn("interaction_logs", e.ID, "extra", extra, &e.Extra)
		if paperID.Valid {
			id := paperID.Int64
			e.PaperID = &id
		}
		if rank.Valid {
			r := int(rank.Int64)
			e.Rank = &r
		}
		if score.Valid {
			sc := score.Float64
			e.Score = &sc
		}
		if processedAt.Valid {
			at := processedAt.Time
			e.ProcessedAt = &at
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MarkInteractionsProcessed stamps processed_at on the given entries.
func (t *sqliteTx) MarkInteractionsProcessed(ctx context.Context, ids []int64, at time.Time) error {
	for _, chunk := range int64Chunks(ids) {
		args := append([]any{at.UTC()}, chunk...)
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE interaction_logs SET processed_at = ? WHERE id IN (`+placeholders(len(chunk))+`)`, args...); err != nil {
			return err
		}
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
