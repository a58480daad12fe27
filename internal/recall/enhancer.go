// Package recall re-ranks similarity hits with signal from the tag graph and
// the citation graph.
package recall

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
)

// Reasons reported when enhancement leaves the ranking untouched.
const (
	ReasonNoHits        = "no_hits"
	ReasonNoSeedTags    = "no_seed_tags"
	ReasonZeroTagCounts = "zero_tag_counts"
)

// Graph is the read surface of a unit of work the enhancer needs.
type Graph interface {
	GetPapers(ctx context.Context, ids []int64) (map[int64]*models.Paper, error)
	ListPaperTags(ctx context.Context, paperIDs []int64) ([]models.PaperTag, error)
	ListGroupEdgesByTags(ctx context.Context, tagIDs []int64) ([]models.TagGroupTag, error)
	ListGroupEdgesByGroups(ctx context.Context, groupIDs []int64, limit int) ([]models.TagGroupTag, error)
	ListCitationsFrom(ctx context.Context, citingIDs []int64) ([]models.PaperCitation, error)
	ListCitationsTo(ctx context.Context, citedIDs []int64) ([]models.PaperCitation, error)
}

// Enhancer blends embedding similarity with tag and citation proximity.
type Enhancer struct {
	cfg    config.SearchConfig
	logger *zap.Logger
}

// Option configures an Enhancer.
type Option func(*Enhancer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Enhancer) { e.logger = utils.OrNop(l) }
}

// NewEnhancer creates an Enhancer. Zero-valued tuning fields take their defaults.
func NewEnhancer(cfg *config.SearchConfig, opts ...Option) *Enhancer {
	c := config.Default().Search
	if cfg != nil {
		c = *cfg
		defaults := config.Default().Search
		if c.MaxSeed <= 0 {
			c.MaxSeed = defaults.MaxSeed
		}
		if c.PropagationBaseline <= 0 {
			c.PropagationBaseline = defaults.PropagationBaseline
		}
		if c.PropagationFetchLimit <= 0 {
			c.PropagationFetchLimit = defaults.PropagationFetchLimit
		}
		if c.TagSignalWeight == 0 && c.CitationSignalWeight == 0 {
			c.TagSignalWeight = defaults.TagSignalWeight
			c.CitationSignalWeight = defaults.CitationSignalWeight
		}
	}
	e := &Enhancer{cfg: c, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enhance re-ranks hits. Every input hit is kept; papers one citation hop from
// the seeds may be added (at most CitationExpandLimit, filtered by years)
// with an embedding score of 0. When the graph offers no signal the input is
// returned unchanged and the debug record says why.
func (e *Enhancer) Enhance(ctx context.Context, g Graph, hits []models.Hit, years models.YearRange) ([]models.Hit, *models.RecallDebug, error) {
	debug := &models.RecallDebug{Alpha: e.cfg.Alpha, PoolSize: len(hits)}
	if len(hits) == 0 {
		debug.Reason = ReasonNoHits
		return hits, debug, nil
	}

	seeds := hits
	if len(seeds) > e.cfg.MaxSeed {
		seeds = seeds[:e.cfg.MaxSeed]
	}
	seedIDs := make([]int64, 0, len(seeds))
	isSeed := make(map[int64]bool, len(seeds))
	for _, h := range seeds {
		seedIDs = append(seedIDs, h.Paper.ID)
		isSeed[h.Paper.ID] = true
	}
	debug.SeedSize = len(seedIDs)

	seedLinks, err := g.ListPaperTags(ctx, seedIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load seed tags: %w", err)
	}
	tagCounts := make(map[int64]float64)
	for _, l := range seedLinks {
		if l.Weight < 0 {
			e.logger.Debug("skipping negative paper tag weight", zap.Int64("paper_id", l.PaperID), zap.Int64("tag_id", l.TagID))
			continue
		}
		tagCounts[l.TagID] += l.Weight
	}
	if len(tagCounts) == 0 {
		debug.Reason = ReasonNoSeedTags
		return hits, debug, nil
	}

	if err := e.propagate(ctx, g, tagCounts, debug); err != nil {
		return nil, nil, err
	}
	debug.TagCount = len(tagCounts)
	if utils.MaxValue(tagCounts) <= 0 {
		debug.Reason = ReasonZeroTagCounts
		return hits, debug, nil
	}
	tagBoost := utils.NormalizeByMax(tagCounts)

	adjacency, err := e.citationAdjacency(ctx, g, seedIDs)
	if err != nil {
		return nil, nil, err
	}
	debug.CitationCandidates = len(adjacency)

	pool := make([]models.Hit, len(hits))
	copy(pool, hits)
	inPool := make(map[int64]bool, len(hits))
	for _, h := range hits {
		inPool[h.Paper.ID] = true
	}
	expanded, err := e.expandByCitation(ctx, g, adjacency, inPool, years)
	if err != nil {
		return nil, nil, err
	}
	pool = append(pool, expanded...)
	debug.ExpandedPapers = len(expanded)
	debug.PoolSize = len(pool)

	// Seed tags are already loaded; fetch the rest of the pool's.
	links := seedLinks
	var others []int64
	for _, h := range pool {
		if !isSeed[h.Paper.ID] {
			others = append(others, h.Paper.ID)
		}
	}
	if len(others) > 0 {
		more, err := g.ListPaperTags(ctx, others)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load candidate tags: %w", err)
		}
		links = append(links, more...)
	}

	rawTag := make(map[int64]float64, len(pool))
	for _, l := range links {
		if l.Weight < 0 {
			continue
		}
		if boost, ok := tagBoost[l.TagID]; ok {
			rawTag[l.PaperID] += boost * l.Weight
		}
	}
	rawCitation := make(map[int64]float64, len(adjacency))
	for _, h := range pool {
		if n := len(adjacency[h.Paper.ID]); n > 0 {
			rawCitation[h.Paper.ID] = float64(n)
		}
	}
	tagSignal := utils.NormalizeByMax(rawTag)
	citationSignal := utils.NormalizeByMax(rawCitation)

	for i := range pool {
		h := &pool[i]
		h.TagSignal = tagSignal[h.Paper.ID]
		h.CitationSignal = citationSignal[h.Paper.ID]
		h.GraphScore = e.cfg.TagSignalWeight*h.TagSignal + e.cfg.CitationSignalWeight*h.CitationSignal
		h.Score = h.EmbeddingScore + e.cfg.Alpha*h.GraphScore
	}
	sortPool(pool)

	debug.Enabled = true
	e.logger.Debug("recall enhancement applied",
		zap.Int("seeds", debug.SeedSize),
		zap.Int("tags", debug.TagCount),
		zap.Int("propagated", debug.PropagatedTags),
		zap.Int("expanded", debug.ExpandedPapers))
	return pool, debug, nil
}

// propagate seeds sibling tags of every group containing a harvested tag with
// the baseline count.
func (e *Enhancer) propagate(ctx context.Context, g Graph, tagCounts map[int64]float64, debug *models.RecallDebug) error {
	tagIDs := sortedKeys(tagCounts)
	memberships, err := g.ListGroupEdgesByTags(ctx, tagIDs)
	if err != nil {
		return fmt.Errorf("failed to load tag groups: %w", err)
	}
	groupSet := make(map[int64]struct{})
	for _, m := range memberships {
		groupSet[m.GroupID] = struct{}{}
	}
	debug.GroupsTouched = len(groupSet)
	if len(groupSet) == 0 {
		return nil
	}
	groupIDs := make([]int64, 0, len(groupSet))
	for id := range groupSet {
		groupIDs = append(groupIDs, id)
	}
	sort.Slice(groupIDs, func(i, j int) bool { return groupIDs[i] < groupIDs[j] })

	siblings, err := g.ListGroupEdgesByGroups(ctx, groupIDs, e.cfg.PropagationFetchLimit)
	if err != nil {
		return fmt.Errorf("failed to load group members: %w", err)
	}
	for _, s := range siblings {
		if _, seen := tagCounts[s.TagID]; seen {
			continue
		}
		tagCounts[s.TagID] = e.cfg.PropagationBaseline
		debug.PropagatedTags++
	}
	return nil
}

// citationAdjacency maps every paper one citation hop from a seed to the set
// of distinct seeds it touches, in either direction.
func (e *Enhancer) citationAdjacency(ctx context.Context, g Graph, seedIDs []int64) (map[int64]map[int64]struct{}, error) {
	outgoing, err := g.ListCitationsFrom(ctx, seedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load outgoing citations: %w", err)
	}
	incoming, err := g.ListCitationsTo(ctx, seedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load incoming citations: %w", err)
	}
	adjacency := make(map[int64]map[int64]struct{})
	add := func(candidate, seed int64) {
		set, ok := adjacency[candidate]
		if !ok {
			set = make(map[int64]struct{})
			adjacency[candidate] = set
		}
		set[seed] = struct{}{}
	}
	for _, c := range outgoing {
		if c.IsSelfLoop() {
			continue
		}
		// seed cites X: X is foundational work
		add(c.CitedPaperID, c.CitingPaperID)
	}
	for _, c := range incoming {
		if c.IsSelfLoop() {
			continue
		}
		// Y cites seed: Y is follow-up work
		add(c.CitingPaperID, c.CitedPaperID)
	}
	return adjacency, nil
}

// expandByCitation loads the best-connected citation neighbours not already
// in the pool.
func (e *Enhancer) expandByCitation(ctx context.Context, g Graph, adjacency map[int64]map[int64]struct{}, inPool map[int64]bool, years models.YearRange) ([]models.Hit, error) {
	if e.cfg.CitationExpandLimit <= 0 {
		return nil, nil
	}
	type candidate struct {
		id    int64
		seeds int
	}
	var candidates []candidate
	for id, seeds := range adjacency {
		if !inPool[id] {
			candidates = append(candidates, candidate{id: id, seeds: len(seeds)})
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].seeds != candidates[j].seeds {
			return candidates[i].seeds > candidates[j].seeds
		}
		return candidates[i].id < candidates[j].id
	})

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	papers, err := g.GetPapers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load citation candidates: %w", err)
	}
	var out []models.Hit
	for _, c := range candidates {
		if len(out) >= e.cfg.CitationExpandLimit {
			break
		}
		p, ok := papers[c.id]
		if !ok {
			e.logger.Debug("citation points at missing paper", zap.Int64("paper_id", c.id))
			continue
		}
		if !years.Contains(p.Year) {
			continue
		}
		out = append(out, models.Hit{Paper: p, Origin: models.OriginCitation})
	}
	return out, nil
}

// sortPool orders by final score, then embedding score, then paper id.
func sortPool(pool []models.Hit) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.EmbeddingScore != b.EmbeddingScore {
			return a.EmbeddingScore > b.EmbeddingScore
		}
		return a.Paper.ID < b.Paper.ID
	})
}

func sortedKeys(m map[int64]float64) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
