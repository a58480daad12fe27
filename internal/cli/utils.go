// Package cli provides output helpers and an API client for the Shiori CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format. Unknown
// formats fall back to text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, response)
	case OutputCompact:
		writeSearchResultsCompact(w, response)
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (%d candidates scanned)\n",
		len(response.Results), response.QueryTime, response.TotalCandidates)
	if response.Degraded != "" {
		fmt.Fprintf(w, "Degraded: %s\n", response.Degraded)
	}
	if response.LowConfidence {
		fmt.Fprintln(w, "Low confidence: no paper scored above zero")
	}
	if len(response.ExpandedKeywords) > len(response.Keywords) {
		fmt.Fprintf(w, "Expanded keywords: %s\n", strings.Join(response.ExpandedKeywords, ", "))
	}
	if len(response.ActivatedGroups) > 0 {
		names := make([]string, 0, len(response.ActivatedGroups))
		for name := range response.ActivatedGroups {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s (%.2f)", name, response.ActivatedGroups[name].Strength)
		}
		fmt.Fprintf(w, "Activated groups: %s\n", strings.Join(parts, ", "))
	}
	if len(response.GraphKeywords) > 0 {
		terms := make([]string, len(response.GraphKeywords))
		for i, t := range response.GraphKeywords {
			terms[i] = t.Keyword
		}
		fmt.Fprintf(w, "Graph keywords: %s\n", strings.Join(terms, ", "))
	}
	if r := response.Recall; r != nil {
		if r.Enabled {
			fmt.Fprintf(w, "Graph recall: alpha %.2f, %d seeds, %d tags, %d papers via citations\n",
				r.Alpha, r.SeedSize, r.TagCount, r.ExpandedPapers)
		} else {
			fmt.Fprintf(w, "Graph recall disabled: %s\n", r.Reason)
		}
	}
	fmt.Fprintln(w)
	for i, hit := range response.Results {
		writeOneResult(w, i+1, hit)
	}
}

func writeOneResult(w io.Writer, rank int, hit models.Hit) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f (Embedding: %.4f, Graph: %.4f) [%s]\n",
		rank, hit.Score, hit.EmbeddingScore, hit.GraphScore, hit.Origin)
	if hit.Paper == nil {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "ID: %d", hit.Paper.ID)
	if hit.Paper.Year > 0 {
		fmt.Fprintf(w, " | Year: %d", hit.Paper.Year)
	}
	if hit.Paper.DOI != "" {
		fmt.Fprintf(w, " | DOI: %s", hit.Paper.DOI)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Title: %s\n", hit.Paper.Title)
	if len(hit.Paper.Authors) > 0 {
		fmt.Fprintf(w, "Authors: %s\n", TruncateWords(strings.Join(hit.Paper.Authors, ", "), 12))
	}
	if hit.Paper.Abstract != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(hit.Paper.Abstract, 200))
	}
	fmt.Fprintln(w)
}

func writeSearchResultsCompact(w io.Writer, response *models.SearchResponse) {
	for i, hit := range response.Results {
		title := ""
		year := 0
		var id int64
		if hit.Paper != nil {
			id, title, year = hit.Paper.ID, hit.Paper.Title, hit.Paper.Year
		}
		fmt.Fprintf(w, "%d\t%.4f\t%d\t%d\t%s\n", i+1, hit.Score, id, year, utils.Truncate(title, 80))
	}
}

// WriteExpansion prints graph keyword suggestions.
func WriteExpansion(w io.Writer, terms []models.ExpandedTerm, format OutputFormat) error {
	if format == OutputJSON {
		scores := make(map[string]float64, len(terms))
		for _, t := range terms {
			scores[t.Keyword] = t.Score
		}
		return WriteJSON(w, scores)
	}
	if len(terms) == 0 {
		fmt.Fprintln(w, "No related keywords in the tag graph.")
		return nil
	}
	for _, t := range terms {
		fmt.Fprintf(w, "%.4f\t%s\n", t.Score, t.Keyword)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
