package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/mock/gomock"

	"github.com/hyperjump/shiori/internal/embedding"
	embmocks "github.com/hyperjump/shiori/internal/embedding/mocks"
	"github.com/hyperjump/shiori/internal/keyword"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/storage"
	"github.com/hyperjump/shiori/internal/storage/storagetest"
)

func newTestIndexer(t *testing.T, emb embedding.Embedder) (*Indexer, *storage.SQLiteStore, *keyword.BleveIndex) {
	t.Helper()
	store := storagetest.NewStore(t)
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })
	return NewIndexer(store, emb, kw), store, kw
}

func getByDOI(t *testing.T, store storage.Store, doi string) *models.Paper {
	t.Helper()
	var p *models.Paper
	storagetest.Read(t, store, func(ctx context.Context, tx storage.Tx) {
		var err error
		p, err = tx.GetPaperByDOI(ctx, doi)
		require.NoError(t, err)
	})
	return p
}

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"10.1000/XYZ", "10.1000/xyz"},
		{"  https://doi.org/10.1/a ", "10.1/a"},
		{"doi:10.2/B", "10.2/b"},
		{"https://dx.doi.org/10.3/c", "10.3/c"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeDOI(tt.in); got != tt.want {
			t.Errorf("NormalizeDOI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIndexPaper_CreateThenUpdateByDOI(t *testing.T) {
	ctx := context.Background()
	idx, store, kw := newTestIndexer(t, embedding.NewMockEmbedder(8))

	p, created, err := idx.IndexPaper(ctx, &models.PaperInput{
		Title:    "  Graph   neural networks ",
		Abstract: "Message passing on graphs.",
		Year:     2020,
		DOI:      "https://doi.org/10.1000/GNN",
		Authors:  []string{"Ada", "Grace"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Graph neural networks", p.Title)
	assert.Equal(t, "10.1000/gnn", p.DOI)
	assert.Len(t, p.Embedding, 8)

	p2, created, err := idx.IndexPaper(ctx, &models.PaperInput{
		Title:    "Graph neural networks",
		Abstract: "A survey of message passing on graphs.",
		Year:     2021,
		DOI:      "10.1000/gnn",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, p2.ID)

	stored := getByDOI(t, store, "10.1000/gnn")
	assert.Equal(t, 2021, stored.Year)
	assert.Len(t, stored.Embedding, 8)
	assert.NotEqual(t, p.Embedding, stored.Embedding)

	n, err := kw.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	hits, err := kw.Search(ctx, "survey", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, p.ID, hits[0].PaperID)
}

func TestIndexPaper_EmptyTitleRejected(t *testing.T) {
	idx, _, _ := newTestIndexer(t, embedding.NewMockEmbedder(4))
	_, _, err := idx.IndexPaper(context.Background(), &models.PaperInput{Title: "   "})
	assert.Error(t, err)
}

func TestIndexPaper_EmbeddingFailureStoresWithoutVector(t *testing.T) {
	ctrl := gomock.NewController(t)
	emb := embmocks.NewMockEmbedder(ctrl)
	emb.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(nil, errors.New("model offline"))

	idx, store, _ := newTestIndexer(t, emb)
	p, created, err := idx.IndexPaper(context.Background(), &models.PaperInput{Title: "Offline paper", DOI: "10.5/off"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, p.Embedding)
	assert.Nil(t, getByDOI(t, store, "10.5/off").Embedding)
}

func TestIndexPaper_ChangedTextClearsStaleVector(t *testing.T) {
	ctrl := gomock.NewController(t)
	emb := embmocks.NewMockEmbedder(ctrl)
	gomock.InOrder(
		emb.EXPECT().Embed(gomock.Any(), "Old title").Return([]float32{1, 0}, nil),
		emb.EXPECT().Embed(gomock.Any(), "New title").Return(nil, errors.New("timeout")),
	)

	idx, store, _ := newTestIndexer(t, emb)
	ctx := context.Background()
	_, _, err := idx.IndexPaper(ctx, &models.PaperInput{Title: "Old title", DOI: "10.6/x"})
	require.NoError(t, err)
	_, _, err = idx.IndexPaper(ctx, &models.PaperInput{Title: "New title", DOI: "10.6/x"})
	require.NoError(t, err)

	assert.Nil(t, getByDOI(t, store, "10.6/x").Embedding)
}

func TestIndexPaper_SameTextKeepsVectorOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	emb := embmocks.NewMockEmbedder(ctrl)
	gomock.InOrder(
		emb.EXPECT().Embed(gomock.Any(), "Stable").Return([]float32{0, 1}, nil),
		emb.EXPECT().Embed(gomock.Any(), "Stable").Return(nil, errors.New("timeout")),
	)

	idx, store, _ := newTestIndexer(t, emb)
	ctx := context.Background()
	_, _, err := idx.IndexPaper(ctx, &models.PaperInput{Title: "Stable", DOI: "10.7/s", Year: 2000})
	require.NoError(t, err)
	_, _, err = idx.IndexPaper(ctx, &models.PaperInput{Title: "Stable", DOI: "10.7/s", Year: 2001})
	require.NoError(t, err)

	p := getByDOI(t, store, "10.7/s")
	assert.Equal(t, 2001, p.Year)
	assert.Equal(t, []float32{0, 1}, p.Embedding)
}

func TestBackfill(t *testing.T) {
	store := storagetest.NewStore(t)
	storagetest.Seed(t, store, func(f *storagetest.Fixture) {
		f.Paper("has vector", 2020, []float32{1, 0, 0, 0})
		for i := 0; i < 40; i++ {
			f.Paper("missing "+strings.Repeat("x", i+1), 2020, nil)
		}
	})
	idx := NewIndexer(store, embedding.NewMockEmbedder(4), nil)

	n, err := idx.Backfill(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 40, n)

	n, err = idx.Backfill(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	storagetest.Read(t, store, func(ctx context.Context, tx storage.Tx) {
		papers, err := tx.ListEmbeddedPapers(ctx, models.YearRange{})
		require.NoError(t, err)
		assert.Len(t, papers, 41)
	})
}

func TestBackfill_Limit(t *testing.T) {
	store := storagetest.NewStore(t)
	storagetest.Seed(t, store, func(f *storagetest.Fixture) {
		f.Paper("a", 2020, nil)
		f.Paper("b", 2020, nil)
		f.Paper("c", 2020, nil)
	})
	idx := NewIndexer(store, embedding.NewMockEmbedder(4), nil)
	n, err := idx.Backfill(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAddCitation(t *testing.T) {
	store := storagetest.NewStore(t)
	var a, b int64
	storagetest.Seed(t, store, func(f *storagetest.Fixture) {
		a = f.Paper("a", 2020, nil)
		b = f.Paper("b", 2019, nil)
	})
	idx := NewIndexer(store, embedding.NewMockEmbedder(4), nil)
	ctx := context.Background()

	added, err := idx.AddCitation(ctx, a, b, 0, "manual")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = idx.AddCitation(ctx, a, b, 0.5, "manual")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = idx.AddCitation(ctx, a, a, 1, "manual")
	assert.Error(t, err)
	_, err = idx.AddCitation(ctx, a, b, 1.5, "manual")
	assert.Error(t, err)
	_, err = idx.AddCitation(ctx, 0, b, 1, "manual")
	assert.Error(t, err)

	storagetest.Read(t, store, func(ctx context.Context, tx storage.Tx) {
		cites, err := tx.ListCitationsFrom(ctx, []int64{a})
		require.NoError(t, err)
		require.Len(t, cites, 1)
		assert.Equal(t, 1.0, cites[0].Confidence)
	})
}

func TestReindex(t *testing.T) {
	store := storagetest.NewStore(t)
	storagetest.Seed(t, store, func(f *storagetest.Fixture) {
		f.Paper("Transformers for protein folding", 2021, nil)
		f.Paper("Convolutional networks", 2015, nil)
	})
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })
	idx := NewIndexer(store, embedding.NewMockEmbedder(4), kw)

	n, err := idx.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	hits, err := kw.Search(context.Background(), "protein", 5, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestImportFile_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papers.xlsx")
	f := excelize.NewFile()
	_, err := f.NewSheet(SheetPapers)
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow(SheetPapers, "A1", &[]any{"Title", "Abstract", "Year", "Journal", "DOI", "Authors", "Citations Count"}))
	require.NoError(t, f.SetSheetRow(SheetPapers, "A2", &[]any{"Attention is all you need", "Transformers.", 2017, "NeurIPS", "10.1/attn", "Vaswani; Shazeer", 90000}))
	require.NoError(t, f.SetSheetRow(SheetPapers, "A3", &[]any{"BERT", "Pretraining.", 2019, "NAACL", "10.1/bert", "Devlin", 70000}))
	require.NoError(t, f.SetSheetRow(SheetPapers, "A4", &[]any{"Bad year", "", "soon"}))
	_, err = f.NewSheet(SheetCitations)
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow(SheetCitations, "A1", &[]any{"citing_doi", "cited_doi", "confidence"}))
	require.NoError(t, f.SetSheetRow(SheetCitations, "A2", &[]any{"10.1/bert", "10.1/attn", 0.9}))
	require.NoError(t, f.SetSheetRow(SheetCitations, "A3", &[]any{"10.1/bert", "10.1/missing"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	idx, store, _ := newTestIndexer(t, embedding.NewMockEmbedder(4))
	res, err := idx.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, 2, res.PapersCreated)
	assert.Equal(t, 1, res.CitationsAdded)
	assert.Len(t, res.Errors, 2)

	attn := getByDOI(t, store, "10.1/attn")
	assert.Equal(t, []string{"Vaswani", "Shazeer"}, attn.Authors)
	assert.Equal(t, 90000, attn.CitationsCount)
	storagetest.Read(t, store, func(ctx context.Context, tx storage.Tx) {
		cites, err := tx.ListCitationsTo(ctx, []int64{attn.ID})
		require.NoError(t, err)
		require.Len(t, cites, 1)
		assert.InDelta(t, 0.9, cites[0].Confidence, 1e-9)
		assert.Equal(t, "import:"+res.BatchID, cites[0].Source)
	})
}

func TestImportFile_JSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papers.jsonl")
	lines := []string{
		`{"paper":{"title":"Deep residual learning","year":2016,"doi":"10.2/resnet"}}`,
		`{"paper":{"title":"Densely connected networks","year":2017,"doi":"10.2/densenet"}}`,
		``,
		`{"citation":{"citing_doi":"10.2/densenet","cited_doi":"10.2/resnet","source":"crossref"}}`,
		`not json`,
		`{"paper":{"title":"Deep residual learning","year":2016,"doi":"10.2/RESNET","abstract":"Skip\u0007 connections.\u000b"}}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))

	idx, store, _ := newTestIndexer(t, embedding.NewMockEmbedder(4))
	res, err := idx.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PapersCreated)
	assert.Equal(t, 1, res.PapersUpdated)
	assert.Equal(t, 1, res.CitationsAdded)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "line 5")
	assert.Equal(t, "Skip connections.", getByDOI(t, store, "10.2/resnet").Abstract)
}

func TestImportFile_UnsupportedFormat(t *testing.T) {
	idx, _, _ := newTestIndexer(t, embedding.NewMockEmbedder(4))
	_, err := idx.ImportFile(context.Background(), "papers.csv")
	assert.Error(t, err)
}
