package models

import "time"

// Tag categories.
const (
	CategoryKeyword         = "keyword"
	CategoryUserQuery       = "user_query"
	CategoryGeneration      = "generation"
	CategoryImpact          = "impact"
	CategoryCitationCluster = "citation_cluster"
)

// Tag and edge sources.
const (
	SourceStaticConfig     = "static_config"
	SourceLearnedFromLog   = "learned_from_log"
	SourceCitationAnalysis = "citation_analysis"
)

// GroupTypeSemantic is the group_type of groups mirrored from the semantic group file.
const GroupTypeSemantic = "semantic_group"

// Tag is a label that can be attached to papers and grouped into TagGroups.
// (Key, Category) is unique.
type Tag struct {
	ID        int64          `json:"id"`
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	Category  string         `json:"category"`
	Source    string         `json:"source"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TagGroup is a named cluster of tags. Key is unique.
type TagGroup struct {
	ID        int64          `json:"id"`
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	GroupType string         `json:"group_type"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TagGroupTag is a weighted group membership edge. (GroupID, TagID) is unique.
type TagGroupTag struct {
	GroupID int64   `json:"group_id"`
	TagID   int64   `json:"tag_id"`
	Weight  float64 `json:"weight"`
}

// PaperTag is a weighted paper-to-tag link. (PaperID, TagID) is unique.
type PaperTag struct {
	PaperID int64   `json:"paper_id"`
	TagID   int64   `json:"tag_id"`
	Weight  float64 `json:"weight"`
	Source  string  `json:"source,omitempty"`
}
