package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/storage"
)

// Workbook sheet names read by ImportFile.
const (
	SheetPapers    = "papers"
	SheetCitations = "citations"
)

// CitationInput is a citation between two papers identified by DOI.
type CitationInput struct {
	CitingDOI  string  `json:"citing_doi"`
	CitedDOI   string  `json:"cited_doi"`
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// ImportResult summarises one import. Row errors do not stop the import.
type ImportResult struct {
	BatchID        string   `json:"batch_id"`
	PapersCreated  int      `json:"papers_created"`
	PapersUpdated  int      `json:"papers_updated"`
	CitationsAdded int      `json:"citations_added"`
	CitationsKnown int      `json:"citations_known"`
	Errors         []string `json:"errors,omitempty"`
}

type importLine struct {
	Paper    *models.PaperInput `json:"paper,omitempty"`
	Citation *CitationInput     `json:"citation,omitempty"`
}

// ImportFile imports papers and citations from an .xlsx workbook (sheets
// "papers" and "citations", header row first) or a .jsonl file with one
// {"paper": {...}} or {"citation": {...}} object per line. Papers are
// imported before citations so citations may refer to papers in the same file.
func (idx *Indexer) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	var (
		papers    []*models.PaperInput
		citations []*CitationInput
		err       error
	)
	res := &ImportResult{BatchID: uuid.NewString()}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		papers, citations, res.Errors, err = readWorkbook(path)
	case ".jsonl", ".ndjson":
		papers, citations, res.Errors, err = readJSONL(path)
	default:
		return nil, fmt.Errorf("unsupported import format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	idx.logger.Info("import started", zap.String("batch_id", res.BatchID), zap.String("path", path),
		zap.Int("papers", len(papers)), zap.Int("citations", len(citations)))

	for i, in := range papers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, created, err := idx.IndexPaper(ctx, in)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("paper %d: %v", i+1, err))
			continue
		}
		if created {
			res.PapersCreated++
		} else {
			res.PapersUpdated++
		}
	}

	for i, in := range citations {
		if in.Source == "" {
			in.Source = "import:" + res.BatchID
		}
		added, err := idx.addCitationByDOI(ctx, in)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("citation %d: %v", i+1, err))
			continue
		}
		if added {
			res.CitationsAdded++
		} else {
			res.CitationsKnown++
		}
	}
	idx.logger.Info("import finished", zap.String("batch_id", res.BatchID),
		zap.Int("papers_created", res.PapersCreated), zap.Int("papers_updated", res.PapersUpdated),
		zap.Int("citations_added", res.CitationsAdded), zap.Int("errors", len(res.Errors)))
	return res, nil
}

func (idx *Indexer) addCitationByDOI(ctx context.Context, in *CitationInput) (bool, error) {
	var added bool
	err := storage.WithTx(ctx, idx.store, func(tx storage.Tx) error {
		citing, err := tx.GetPaperByDOI(ctx, NormalizeDOI(in.CitingDOI))
		if err != nil {
			return fmt.Errorf("citing paper: %w", err)
		}
		cited, err := tx.GetPaperByDOI(ctx, NormalizeDOI(in.CitedDOI))
		if err != nil {
			return fmt.Errorf("cited paper: %w", err)
		}
		c := &models.PaperCitation{
			CitingPaperID: citing.ID, CitedPaperID: cited.ID, Confidence: in.Confidence, Source: in.Source,
		}
		if err := validateCitation(c); err != nil {
			return err
		}
		added, err = tx.AddCitation(ctx, c)
		return err
	})
	return added, err
}

func readJSONL(path string) ([]*models.PaperInput, []*CitationInput, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	var (
		papers    []*models.PaperInput
		citations []*CitationInput
		rowErrs   []string
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var l importLine
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		switch {
		case l.Paper != nil:
			papers = append(papers, l.Paper)
		case l.Citation != nil:
			citations = append(citations, l.Citation)
		default:
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: neither paper nor citation", line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("read import file: %w", err)
	}
	return papers, citations, rowErrs, nil
}

func readWorkbook(path string) ([]*models.PaperInput, []*CitationInput, []string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var (
		papers    []*models.PaperInput
		citations []*CitationInput
		rowErrs   []string
	)
	found := false
	for _, sheet := range f.GetSheetList() {
		kind := strings.ToLower(strings.TrimSpace(sheet))
		if kind != SheetPapers && kind != SheetCitations {
			continue
		}
		found = true
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		header := headerIndex(rows[0])
		for i, row := range rows[1:] {
			rec := record{header: header, row: row}
			if rec.empty() {
				continue
			}
			if kind == SheetPapers {
				p, err := rec.paper()
				if err != nil {
					rowErrs = append(rowErrs, fmt.Sprintf("%s row %d: %v", sheet, i+2, err))
					continue
				}
				papers = append(papers, p)
				continue
			}
			c, err := rec.citation()
			if err != nil {
				rowErrs = append(rowErrs, fmt.Sprintf("%s row %d: %v", sheet, i+2, err))
				continue
			}
			citations = append(citations, c)
		}
	}
	if !found {
		return nil, nil, nil, errors.New(`workbook has no "papers" or "citations" sheet`)
	}
	return papers, citations, rowErrs, nil
}

func headerIndex(header []string) map[string]int {
	out := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		if _, dup := out[key]; !dup && key != "" {
			out[key] = i
		}
	}
	return out
}

// record reads cells of one sheet row by header name.
type record struct {
	header map[string]int
	row    []string
}

func (r record) get(name string) string {
	i, ok := r.header[name]
	if !ok || i >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

func (r record) empty() bool {
	for _, c := range r.row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (r record) int(name string) (int, error) {
	s := r.get(name)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", name, s)
	}
	return int(f), nil
}

func (r record) paper() (*models.PaperInput, error) {
	year, err := r.int("year")
	if err != nil {
		return nil, err
	}
	cites, err := r.int("citations_count")
	if err != nil {
		return nil, err
	}
	var authors []string
	for _, a := range strings.Split(r.get("authors"), ";") {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	return &models.PaperInput{
		Title:          r.get("title"),
		Abstract:       r.get("abstract"),
		Year:           year,
		Journal:        r.get("journal"),
		DOI:            r.get("doi"),
		Authors:        authors,
		CitationsCount: cites,
	}, nil
}

func (r record) citation() (*CitationInput, error) {
	c := &CitationInput{
		CitingDOI: r.get("citing_doi"),
		CitedDOI:  r.get("cited_doi"),
		Source:    r.get("source"),
	}
	if c.CitingDOI == "" || c.CitedDOI == "" {
		return nil, errors.New("citing_doi and cited_doi are required")
	}
	if s := r.get("confidence"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("confidence: %q is not a number", s)
		}
		c.Confidence = f
	}
	return c, nil
}
