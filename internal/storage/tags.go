package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/shiori/internal/models"
)

const tagColumns = `id, key, name, category, source, meta, created_at`

func scanTag(row rowScanner) (*models.Tag, error) {
	var tag models.Tag
	var meta string
	if err := row.Scan(&tag.ID, &tag.Key, &tag.Name, &tag.Category, &tag.Source, &meta, &tag.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(meta, &tag.Meta); err != nil {
		return nil, fmt.Errorf("tag %d meta: %w", tag.ID, err)
	}
	return &tag, nil
}

// EnsureTag returns the tag with tag.Key and tag.Category, creating it from tag
// when missing. The bool reports whether a row was created. Meta of an existing
// tag is replaced when tag.Meta is non-nil.
func (t *sqliteTx) EnsureTag(ctx context.Context, tag *models.Tag) (*models.Tag, bool, error) {
	meta, err := encodeJSON(tag.Meta)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal tag meta: %w", err)
	}
	if tag.Meta == nil {
		meta = "{}"
	}
	name := tag.Name
	if name == "" {
		name = tag.Key
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO tags (key, name, category, source, meta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (key, category) DO NOTHING`,
		tag.Key, name, tag.Category, tag.Source, meta, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}
	created, _ := res.RowsAffected()
	if created == 0 && tag.Meta != nil {
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE tags SET meta = ? WHERE key = ? AND category = ?`, meta, tag.Key, tag.Category); err != nil {
			return nil, false, err
		}
	}
	got, err := scanTag(t.tx.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE key = ? AND category = ?`, tag.Key, tag.Category))
	if err != nil {
		return nil, false, err
	}
	return got, created > 0, nil
}

// FindTagByKey returns the oldest tag with the given key in any category.
func (t *sqliteTx) FindTagByKey(ctx context.Context, key string) (*models.Tag, error) {
	tag, err := scanTag(t.tx.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE key = ? ORDER BY id LIMIT 1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag %q: %w", key, ErrNotFound)
	}
	return tag, err
}

// FindTagsByKeys returns every tag whose key is in keys, across categories, ordered by id.
func (t *sqliteTx) FindTagsByKeys(ctx context.Context, keys []string) ([]*models.Tag, error) {
	var tags []*models.Tag
	for _, chunk := range stringChunks(keys) {
		found, err := t.queryTags(ctx,
			`SELECT `+tagColumns+` FROM tags WHERE key IN (`+placeholders(len(chunk))+`) ORDER BY id`, chunk...)
		if err != nil {
			return nil, err
		}
		tags = append(tags, found...)
	}
	return tags, nil
}

// GetTags returns tags by id.
func (t *sqliteTx) GetTags(ctx context.Context, ids []int64) (map[int64]*models.Tag, error) {
	out := make(map[int64]*models.Tag, len(ids))
	for _, chunk := range int64Chunks(ids) {
		found, err := t.queryTags(ctx,
			`SELECT `+tagColumns+` FROM tags WHERE id IN (`+placeholders(len(chunk))+`)`, chunk...)
		if err != nil {
			return nil, err
		}
		for _, tag := range found {
			out[tag.ID] = tag
		}
	}
	return out, nil
}

func (t *sqliteTx) queryTags(ctx context.Context, query string, args ...any) ([]*models.Tag, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []*models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

const groupColumns = `id, key, name, group_type, meta, created_at`

func scanGroup(row rowScanner) (*models.TagGroup, error) {
	var g models.TagGroup
	var meta string
	if err := row.Scan(&g.ID, &g.Key, &g.Name, &g.GroupType, &meta, &g.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(meta, &g.Meta); err != nil {
		return nil, fmt.Errorf("group %d meta: %w", g.ID, err)
	}
	return &g, nil
}

// EnsureGroup returns the group with group.Key, creating it when missing. Meta of
// an existing group is replaced when group.Meta is non-nil.
func (t *sqliteTx) EnsureGroup(ctx context.Context, group *models.TagGroup) (*models.TagGroup, bool, error) {
	meta, err := encodeJSON(group.Meta)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal group meta: %w", err)
	}
	if group.Meta == nil {
		meta = "{}"
	}
	name := group.Name
	if name == "" {
		name = group.Key
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO tag_groups (key, name, group_type, meta, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO NOTHING`,
		group.Key, name, group.GroupType, meta, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}
	created, _ := res.RowsAffected()
	if created == 0 && group.Meta != nil {
		if _, err := t.tx.ExecContext(ctx, `UPDATE tag_groups SET meta = ? WHERE key = ?`, meta, group.Key); err != nil {
			return nil, false, err
		}
	}
	got, err := t.GetGroupByKey(ctx, group.Key)
	if err != nil {
		return nil, false, err
	}
	return got, created > 0, nil
}

// GetGroupByKey returns the group with the given key.
func (t *sqliteTx) GetGroupByKey(ctx context.Context, key string) (*models.TagGroup, error) {
	g, err := scanGroup(t.tx.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM tag_groups WHERE key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %q: %w", key, ErrNotFound)
	}
	return g, err
}

// GetGroups returns groups by id.
func (t *sqliteTx) GetGroups(ctx context.Context, ids []int64) (map[int64]*models.TagGroup, error) {
	out := make(map[int64]*models.TagGroup, len(ids))
	for _, chunk := range int64Chunks(ids) {
		rows, err := t.tx.QueryContext(ctx,
			`SELECT `+groupColumns+` FROM tag_groups WHERE id IN (`+placeholders(len(chunk))+`)`, chunk...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			g, err := scanGroup(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[g.ID] = g
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetGroupEdge returns the membership edge between a group and a tag.
func (t *sqliteTx) GetGroupEdge(ctx context.Context, groupID, tagID int64) (*models.TagGroupTag, error) {
	edge := models.TagGroupTag{GroupID: groupID, TagID: tagID}
	err := t.tx.QueryRowContext(ctx,
		`SELECT weight FROM tag_group_tags WHERE group_id = ? AND tag_id = ?`, groupID, tagID,
	).Scan(&edge.Weight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("edge %d-%d: %w", groupID, tagID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// SetGroupEdgeWeight creates or overwrites the membership edge weight.
func (t *sqliteTx) SetGroupEdgeWeight(ctx context.Context, groupID, tagID int64, weight float64) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO tag_group_tags (group_id, tag_id, weight) VALUES (?, ?, ?)
		 ON CONFLICT (group_id, tag_id) DO UPDATE SET weight = excluded.weight`,
		groupID, tagID, weight)
	return err
}

// ListGroupEdgesByTags returns the membership edges of the given tags.
func (t *sqliteTx) ListGroupEdgesByTags(ctx context.Context, tagIDs []int64) ([]models.TagGroupTag, error) {
	var edges []models.TagGroupTag
	for _, chunk := range int64Chunks(tagIDs) {
		found, err := t.queryEdges(ctx,
			`SELECT group_id, tag_id, weight FROM tag_group_tags
			 WHERE tag_id IN (`+placeholders(len(chunk))+`) ORDER BY group_id, tag_id`, chunk...)
		if err != nil {
			return nil, err
		}
		edges = append(edges, found...)
	}
	return edges, nil
}

// ListGroupEdgesByGroups returns the membership edges of the given groups,
// heaviest first, capped at limit rows when limit > 0.
func (t *sqliteTx) ListGroupEdgesByGroups(ctx context.Context, groupIDs []int64, limit int) ([]models.TagGroupTag, error) {
	var edges []models.TagGroupTag
	for _, chunk := range int64Chunks(groupIDs) {
		query := `SELECT group_id, tag_id, weight FROM tag_group_tags
			 WHERE group_id IN (` + placeholders(len(chunk)) + `) ORDER BY weight DESC, group_id, tag_id`
		args := chunk
		if limit > 0 {
			remaining := limit - len(edges)
			if remaining <= 0 {
				break
			}
			query += ` LIMIT ?`
			args = append(append([]any{}, chunk...), remaining)
		}
		found, err := t.queryEdges(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		edges = append(edges, found...)
	}
	return edges, nil
}

func (t *sqliteTx) queryEdges(ctx context.Context, query string, args ...any) ([]models.TagGroupTag, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []models.TagGroupTag
	for rows.Next() {
		var e models.TagGroupTag
		if err := rows.Scan(&e.GroupID, &e.TagID, &e.Weight); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ListPaperTags returns the tag links of the given papers, ordered by paper then tag.
func (t *sqliteTx) ListPaperTags(ctx context.Context, paperIDs []int64) ([]models.PaperTag, error) {
	var links []models.PaperTag
	for _, chunk := range int64Chunks(paperIDs) {
		rows, err := t.tx.QueryContext(ctx,
			`SELECT paper_id, tag_id, weight, source FROM paper_tags
			 WHERE paper_id IN (`+placeholders(len(chunk))+`) ORDER BY paper_id, tag_id`, chunk...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var l models.PaperTag
			if err := rows.Scan(&l.PaperID, &l.TagID, &l.Weight, &l.Source); err != nil {
				rows.Close()
				return nil, err
			}
			links = append(links, l)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return links, nil
}

// LinkPaperTag links a paper to a tag unless the link already exists. The bool
// reports whether a row was created.
func (t *sqliteTx) LinkPaperTag(ctx context.Context, link models.PaperTag) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO paper_tags (paper_id, tag_id, weight, source) VALUES (?, ?, ?, ?)
		 ON CONFLICT (paper_id, tag_id) DO NOTHING`,
		link.PaperID, link.TagID, link.Weight, link.Source)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UnlinkTagsBy removes every paper link to tags of the given category and source.
func (t *sqliteTx) UnlinkTagsBy(ctx context.Context, category, source string) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM paper_tags WHERE tag_id IN (SELECT id FROM tags WHERE category = ? AND source = ?)`,
		category, source)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
