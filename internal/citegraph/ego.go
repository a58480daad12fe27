// Package citegraph reads one-hop citation neighbourhoods around a paper.
package citegraph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/storage"
	"github.com/hyperjump/shiori/pkg/utils"
)

// Node roles in an ego graph.
const (
	NodeCentral = "central"
	NodeCited   = "cited"
	NodeCiting  = "citing"
)

const (
	// DefaultLimit bounds the number of edges returned when no limit is given.
	DefaultLimit = 50

	maxLabelRunes = 120
	unknownSource = "unknown"
)

// Reader is the storage surface the ego graph needs.
type Reader interface {
	GetPapers(ctx context.Context, ids []int64) (map[int64]*models.Paper, error)
	ListCitationsFrom(ctx context.Context, citingIDs []int64) ([]models.PaperCitation, error)
	ListCitationsTo(ctx context.Context, citedIDs []int64) ([]models.PaperCitation, error)
}

type Node struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
	Year  int    `json:"year,omitempty"`
}

// Edge points from the citing paper to the cited one.
type Edge struct {
	From       int64     `json:"from"`
	To         int64     `json:"to"`
	Source     string    `json:"source,omitempty"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

type Stats struct {
	TotalNodes int            `json:"total_nodes"`
	TotalEdges int            `json:"total_edges"`
	BySource   map[string]int `json:"by_source"`
	InDegree   int            `json:"in_degree"`
	OutDegree  int            `json:"out_degree"`
}

// EgoGraph is a paper with the papers it cites and the papers citing it.
type EgoGraph struct {
	CenterPaperID int64  `json:"center_paper_id"`
	Nodes         []Node `json:"nodes"`
	Edges         []Edge `json:"edges"`
	Stats         Stats  `json:"stats"`
}

// Ego builds the ego graph of paperID from edges with confidence of at least
// minConfidence. Outgoing edges come first, then incoming ones, and the list is
// cut to limit edges when limit > 0. Neighbours are the far ends of the kept
// edges; a paper that both cites and is cited by the centre is reported as
// cited. Self loops are skipped. storage.ErrNotFound is returned when the paper
// does not exist.
func Ego(ctx context.Context, r Reader, paperID int64, minConfidence float64, limit int) (*EgoGraph, error) {
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("min_confidence %v is outside [0, 1]", minConfidence)
	}
	center, err := r.GetPapers(ctx, []int64{paperID})
	if err != nil {
		return nil, fmt.Errorf("failed to load paper: %w", err)
	}
	if center[paperID] == nil {
		return nil, fmt.Errorf("paper %d: %w", paperID, storage.ErrNotFound)
	}

	outgoing, err := r.ListCitationsFrom(ctx, []int64{paperID})
	if err != nil {
		return nil, fmt.Errorf("failed to load outgoing citations: %w", err)
	}
	incoming, err := r.ListCitationsTo(ctx, []int64{paperID})
	if err != nil {
		return nil, fmt.Errorf("failed to load incoming citations: %w", err)
	}

	var kept []models.PaperCitation
	for _, batch := range [][]models.PaperCitation{outgoing, incoming} {
		for _, c := range batch {
			if c.IsSelfLoop() || c.Confidence < minConfidence {
				continue
			}
			kept = append(kept, c)
		}
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}

	roles := make(map[int64]string)
	var order []int64
	for _, c := range kept {
		id, role := c.CitedPaperID, NodeCited
		if c.CitedPaperID == paperID {
			id, role = c.CitingPaperID, NodeCiting
		}
		if prev, ok := roles[id]; ok {
			if prev == NodeCiting && role == NodeCited {
				roles[id] = NodeCited
			}
			continue
		}
		roles[id] = role
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	neighbours, err := r.GetPapers(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to load neighbours: %w", err)
	}

	g := &EgoGraph{
		CenterPaperID: paperID,
		Nodes:         []Node{newNode(center[paperID], NodeCentral)},
		Edges:         make([]Edge, 0, len(kept)),
		Stats:         Stats{BySource: make(map[string]int)},
	}
	for _, id := range order {
		if p := neighbours[id]; p != nil {
			g.Nodes = append(g.Nodes, newNode(p, roles[id]))
		}
	}
	for _, c := range kept {
		g.Edges = append(g.Edges, Edge{
			From:       c.CitingPaperID,
			To:         c.CitedPaperID,
			Source:     c.Source,
			Confidence: c.Confidence,
			CreatedAt:  c.CreatedAt,
		})
		src := c.Source
		if src == "" {
			src = unknownSource
		}
		g.Stats.BySource[src]++
		if c.CitedPaperID == paperID {
			g.Stats.InDegree++
		} else {
			g.Stats.OutDegree++
		}
	}
	g.Stats.TotalNodes = len(g.Nodes)
	g.Stats.TotalEdges = len(g.Edges)
	return g, nil
}

func newNode(p *models.Paper, role string) Node {
	label := utils.Clip(p.Title, maxLabelRunes)
	if label == "" {
		label = fmt.Sprintf("Paper %d", p.ID)
	}
	return Node{ID: p.ID, Label: label, Type: role, Year: p.Year}
}
