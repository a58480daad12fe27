// Package models defines the persisted entities of the paper graph and the
// query and response types that flow through search.
package models

import "time"

// Paper is a stored paper. Embedding is nil when no vector has been computed yet.
// Year is 0 when unknown.
type Paper struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Abstract       string    `json:"abstract,omitempty"`
	Year           int       `json:"year,omitempty"`
	Journal        string    `json:"journal,omitempty"`
	DOI            string    `json:"doi,omitempty"`
	Authors        []string  `json:"authors,omitempty"`
	CitationsCount int       `json:"citations_count"`
	Embedding      []float32 `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// EmbeddingText is the text a paper is embedded from.
func (p *Paper) EmbeddingText() string {
	if p.Abstract == "" {
		return p.Title
	}
	return p.Title + "\n\n" + p.Abstract
}

// PaperInput is the input for creating or updating a paper. A non-empty DOI
// identifies an existing paper to update.
type PaperInput struct {
	Title          string   `json:"title"`
	Abstract       string   `json:"abstract,omitempty"`
	Year           int      `json:"year,omitempty"`
	Journal        string   `json:"journal,omitempty"`
	DOI            string   `json:"doi,omitempty"`
	Authors        []string `json:"authors,omitempty"`
	CitationsCount int      `json:"citations_count,omitempty"`
}

// PaperCitation is a directed edge: CitingPaperID cites CitedPaperID.
type PaperCitation struct {
	ID            int64     `json:"id"`
	CitingPaperID int64     `json:"citing_paper_id"`
	CitedPaperID  int64     `json:"cited_paper_id"`
	Confidence    float64   `json:"confidence"`
	Source        string    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsSelfLoop reports whether the edge points back at its own source.
func (c PaperCitation) IsSelfLoop() bool {
	return c.CitingPaperID == c.CitedPaperID
}

// YearRange is an inclusive publication-year filter. Zero bounds are open.
type YearRange struct {
	From int `json:"year_from,omitempty"`
	To   int `json:"year_to,omitempty"`
}

// IsZero reports whether the range filters nothing.
func (r YearRange) IsZero() bool {
	return r.From == 0 && r.To == 0
}

// Contains reports whether year falls inside the range. An unknown year
// only passes an open range.
func (r YearRange) Contains(year int) bool {
	if r.IsZero() {
		return true
	}
	if year == 0 {
		return false
	}
	if r.From != 0 && year < r.From {
		return false
	}
	if r.To != 0 && year > r.To {
		return false
	}
	return true
}
