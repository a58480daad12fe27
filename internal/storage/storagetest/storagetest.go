// Package storagetest provides fixtures for tests that need a populated store.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/storage"
)

// NewStore opens a SQLite store in a temp dir that is closed when the test ends.
func NewStore(t testing.TB) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "shiori.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Fixture seeds a store inside a single unit of work.
type Fixture struct {
	t   testing.TB
	ctx context.Context
	tx  storage.Tx
}

// Seed runs fn against a fresh unit of work and commits it.
func Seed(t testing.TB, store storage.Store, fn func(f *Fixture)) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	fn(&Fixture{t: t, ctx: ctx, tx: tx})
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// Paper creates a paper and returns its id.
func (f *Fixture) Paper(title string, year int, embedding []float32) int64 {
	f.t.Helper()
	p := &models.Paper{Title: title, Year: year, Embedding: embedding}
	if err := f.tx.CreatePaper(f.ctx, p); err != nil {
		f.t.Fatalf("create paper %q: %v", title, err)
	}
	return p.ID
}

// CitedPaper creates a paper with a citation count and returns its id.
func (f *Fixture) CitedPaper(title string, year, citations int) int64 {
	f.t.Helper()
	p := &models.Paper{Title: title, Year: year, CitationsCount: citations}
	if err := f.tx.CreatePaper(f.ctx, p); err != nil {
		f.t.Fatalf("create paper %q: %v", title, err)
	}
	return p.ID
}

// Tag ensures a tag and returns it.
func (f *Fixture) Tag(key, name, category string) *models.Tag {
	f.t.Helper()
	tag, _, err := f.tx.EnsureTag(f.ctx, &models.Tag{Key: key, Name: name, Category: category, Source: "fixture"})
	if err != nil {
		f.t.Fatalf("ensure tag %q: %v", key, err)
	}
	return tag
}

// Group ensures a tag group and returns it.
func (f *Fixture) Group(key string) *models.TagGroup {
	f.t.Helper()
	g, _, err := f.tx.EnsureGroup(f.ctx, &models.TagGroup{Key: key, Name: key, GroupType: models.GroupTypeSemantic})
	if err != nil {
		f.t.Fatalf("ensure group %q: %v", key, err)
	}
	return g
}

// Edge sets a group membership edge weight.
func (f *Fixture) Edge(groupID, tagID int64, weight float64) {
	f.t.Helper()
	if err := f.tx.SetGroupEdgeWeight(f.ctx, groupID, tagID, weight); err != nil {
		f.t.Fatalf("set edge %d-%d: %v", groupID, tagID, err)
	}
}

// Link links a paper to a tag.
func (f *Fixture) Link(paperID, tagID int64, weight float64) {
	f.t.Helper()
	if _, err := f.tx.LinkPaperTag(f.ctx, models.PaperTag{PaperID: paperID, TagID: tagID, Weight: weight, Source: "fixture"}); err != nil {
		f.t.Fatalf("link %d-%d: %v", paperID, tagID, err)
	}
}

// Cite records that citing cites cited.
func (f *Fixture) Cite(citing, cited int64) {
	f.t.Helper()
	if _, err := f.tx.AddCitation(f.ctx, &models.PaperCitation{CitingPaperID: citing, CitedPaperID: cited, Confidence: 1}); err != nil {
		f.t.Fatalf("cite %d->%d: %v", citing, cited, err)
	}
}

// Interaction appends an interaction log entry.
func (f *Fixture) Interaction(entry *models.InteractionLog) {
	f.t.Helper()
	if err := f.tx.AppendInteraction(f.ctx, entry); err != nil {
		f.t.Fatalf("append interaction: %v", err)
	}
}

// Tx exposes the underlying unit of work for ad-hoc writes.
func (f *Fixture) Tx() storage.Tx { return f.tx }

// Read runs fn against a unit of work that is rolled back afterwards.
func Read(t testing.TB, store storage.Store, fn func(ctx context.Context, tx storage.Tx)) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()
	fn(ctx, tx)
}
