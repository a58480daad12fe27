package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/shiori/internal/models"
)

// paperDoc is the indexed form of a paper.
type paperDoc struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Authors  string `json:"authors"`
	Journal  string `json:"journal"`
	DOI      string `json:"doi"`
}

func toDoc(p *models.Paper) paperDoc {
	return paperDoc{
		Title:    p.Title,
		Abstract: p.Abstract,
		Authors:  strings.Join(p.Authors, "; "),
		Journal:  p.Journal,
		DOI:      p.DOI,
	}
}

// BleveIndex implements PaperIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize, no stemming.
	textFieldMapping.Analyzer = standard.Name
	for _, field := range []string{"title", "abstract", "authors", "journal"} {
		docMapping.AddFieldMappingsAt(field, textFieldMapping)
	}
	docMapping.AddFieldMappingsAt("doi", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("paper", docMapping)
	im.DefaultType = "paper"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps
// the index in memory.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Index indexes a paper by id.
func (b *BleveIndex) Index(ctx context.Context, paper *models.Paper) error {
	return b.index.Index(docID(paper.ID), toDoc(paper))
}

// IndexBatch indexes papers in one batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, papers []*models.Paper) error {
	batch := b.index.NewBatch()
	for _, p := range papers {
		if err := batch.Index(docID(p.ID), toDoc(p)); err != nil {
			return fmt.Errorf("failed to batch paper %d: %w", p.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// Search returns up to limit papers matching query. With opts.TitleBoost > 1
// title and body queries run separately and their scores are added, the
// title score multiplied by the boost.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*LookupResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	titleBoost := 1.0
	fuzzy := false
	fuzziness := 1
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	if titleBoost <= 1.0 {
		return b.run(ctx, b.buildQuery(query, fuzzy, fuzziness, ""), limit, 1.0)
	}

	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	titleHits, err := b.run(ctx, b.buildQuery(query, fuzzy, fuzziness, "title"), reqSize, titleBoost)
	if err != nil {
		return nil, err
	}
	bodyHits, err := b.run(ctx, bleve.NewDisjunctionQuery(
		b.buildQuery(query, fuzzy, fuzziness, "abstract"),
		b.buildQuery(query, fuzzy, fuzziness, "authors"),
		b.buildQuery(query, fuzzy, fuzziness, "journal"),
	), reqSize, 1.0)
	if err != nil {
		return nil, err
	}

	scores := make(map[int64]float64)
	for _, h := range titleHits {
		scores[h.PaperID] += h.Score
	}
	for _, h := range bodyHits {
		scores[h.PaperID] += h.Score
	}
	out := make([]*LookupResult, 0, len(scores))
	for id, s := range scores {
		out = append(out, &LookupResult{PaperID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PaperID < out[j].PaperID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *BleveIndex) run(ctx context.Context, q blevequery.Query, size int, boost float64) ([]*LookupResult, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*LookupResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, &LookupResult{PaperID: id, Score: hit.Score * boost})
	}
	return out, nil
}

// buildQuery creates a match query, or a disjunction of fuzzy term queries
// when fuzzy is set. An empty field searches all fields.
func (b *BleveIndex) buildQuery(queryStr string, fuzzy bool, fuzziness int, field string) blevequery.Query {
	terms := strings.Fields(strings.ToLower(queryStr))
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a paper from the index.
func (b *BleveIndex) Delete(ctx context.Context, paperID int64) error {
	return b.index.Delete(docID(paperID))
}

// DocCount returns the number of indexed papers.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
