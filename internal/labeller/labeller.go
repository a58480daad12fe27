// Package labeller derives generation, impact and citation-cluster tags from
// paper metadata and the citation graph.
package labeller

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/storage"
	"github.com/hyperjump/shiori/pkg/utils"
)

// Result holds per-pass counts of one labelling run.
type Result struct {
	GenerationTags  int           `json:"generation_tags"`
	ImpactTags      int           `json:"impact_tags"`
	ClusterTags     int           `json:"cluster_tags"`
	ClusteredPapers int           `json:"clustered_papers"`
	Duration        time.Duration `json:"duration_ns"`
}

type impactTier struct {
	maxPercentile float64
	key           string
	name          string
	weight        float64
}

var impactTiers = []impactTier{
	{1, "impact_seminal", "Seminal Work", 1.0},
	{5, "impact_high", "High Impact", 0.9},
	{20, "impact_significant", "Significant", 0.8},
}

// Labeller runs the citation network labelling passes.
type Labeller struct {
	cfg    config.LabellerConfig
	logger *zap.Logger
}

// Option configures a Labeller.
type Option func(*Labeller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lb *Labeller) { lb.logger = utils.OrNop(l) }
}

// NewLabeller creates a Labeller. Zero-valued fields of cfg take their defaults.
func NewLabeller(cfg *config.LabellerConfig, opts ...Option) *Labeller {
	c := config.Default().Labeller
	if cfg != nil {
		d := c
		c = *cfg
		if c.MinClusterSize <= 0 {
			c.MinClusterSize = d.MinClusterSize
		}
		if c.MaxClusters <= 0 {
			c.MaxClusters = d.MaxClusters
		}
		if c.MaxIterations <= 0 {
			c.MaxIterations = d.MaxIterations
		}
	}
	lb := &Labeller{cfg: c, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(lb)
	}
	return lb
}

// Run executes the generation, impact and cluster passes, each in its own
// unit of work.
func (l *Labeller) Run(ctx context.Context, store storage.Store) (*Result, error) {
	start := time.Now()
	res := &Result{}
	passes := []struct {
		name string
		fn   func(context.Context, storage.Tx) error
	}{
		{"generation", func(ctx context.Context, tx storage.Tx) (err error) {
			res.GenerationTags, err = l.LabelGenerations(ctx, tx)
			return err
		}},
		{"impact", func(ctx context.Context, tx storage.Tx) (err error) {
			res.ImpactTags, err = l.LabelImpact(ctx, tx)
			return err
		}},
		{"clusters", func(ctx context.Context, tx storage.Tx) (err error) {
			res.ClusterTags, res.ClusteredPapers, err = l.LabelClusters(ctx, tx)
			return err
		}},
	}
	for _, p := range passes {
		if err := storage.WithTx(ctx, store, func(tx storage.Tx) error { return p.fn(ctx, tx) }); err != nil {
			return nil, fmt.Errorf("%s pass: %w", p.name, err)
		}
	}
	res.Duration = time.Since(start)
	l.logger.Info("citation labelling finished",
		zap.Int("generation_tags", res.GenerationTags),
		zap.Int("impact_tags", res.ImpactTags),
		zap.Int("cluster_tags", res.ClusterTags),
		zap.Int("clustered_papers", res.ClusteredPapers),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// LabelGenerations tags every paper that has a year with its decade
// (gen_2010s). Existing links are left alone. Returns the number of papers
// labelled.
func (l *Labeller) LabelGenerations(ctx context.Context, tx storage.Tx) (int, error) {
	papers, err := tx.ListPaperSummaries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list papers: %w", err)
	}
	tags := make(map[int]*models.Tag)
	count := 0
	for _, p := range papers {
		if p.Year <= 0 {
			continue
		}
		decade := p.Year / 10 * 10
		tag, ok := tags[decade]
		if !ok {
			tag, _, err = tx.EnsureTag(ctx, &models.Tag{
				Key:      fmt.Sprintf("gen_%ds", decade),
				Name:     fmt.Sprintf("%ds", decade),
				Category: models.CategoryGeneration,
				Source:   models.SourceCitationAnalysis,
			})
			if err != nil {
				return 0, fmt.Errorf("failed to ensure generation tag: %w", err)
			}
			tags[decade] = tag
		}
		if _, err := tx.LinkPaperTag(ctx, models.PaperTag{
			PaperID: p.ID, TagID: tag.ID, Weight: 1.0, Source: models.SourceCitationAnalysis,
		}); err != nil {
			return 0, fmt.Errorf("failed to link generation tag: %w", err)
		}
		count++
	}
	return count, nil
}

// LabelImpact ranks papers with citations by count and tags the top 1%, 5%
// and 20% (percentile of rank i over n is (i+1)/n*100). Earlier impact links
// are removed first, so a paper's tier follows the current corpus.
func (l *Labeller) LabelImpact(ctx context.Context, tx storage.Tx) (int, error) {
	if _, err := tx.UnlinkTagsBy(ctx, models.CategoryImpact, models.SourceCitationAnalysis); err != nil {
		return 0, fmt.Errorf("failed to clear impact tags: %w", err)
	}
	all, err := tx.ListPaperSummaries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list papers: %w", err)
	}
	var cited []storage.PaperSummary
	for _, p := range all {
		if p.CitationsCount > 0 {
			cited = append(cited, p)
		}
	}
	if len(cited) == 0 {
		return 0, nil
	}
	sort.SliceStable(cited, func(i, j int) bool {
		if cited[i].CitationsCount != cited[j].CitationsCount {
			return cited[i].CitationsCount > cited[j].CitationsCount
		}
		return cited[i].ID < cited[j].ID
	})

	tags := make([]*models.Tag, len(impactTiers))
	for i, tier := range impactTiers {
		tags[i], _, err = tx.EnsureTag(ctx, &models.Tag{
			Key:      tier.key,
			Name:     tier.name,
			Category: models.CategoryImpact,
			Source:   models.SourceCitationAnalysis,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to ensure impact tag: %w", err)
		}
	}

	n := float64(len(cited))
	count := 0
	for i, p := range cited {
		pct := float64(i+1) / n * 100
		tier := -1
		for t, it := range impactTiers {
			if pct <= it.maxPercentile {
				tier = t
				break
			}
		}
		if tier < 0 {
			break
		}
		if _, err := tx.LinkPaperTag(ctx, models.PaperTag{
			PaperID: p.ID, TagID: tags[tier].ID, Weight: impactTiers[tier].weight, Source: models.SourceCitationAnalysis,
		}); err != nil {
			return 0, fmt.Errorf("failed to link impact tag: %w", err)
		}
		count++
	}
	return count, nil
}

// LabelClusters detects citation communities and tags the largest ones
// cluster_1, cluster_2, ... Earlier cluster links are removed first. Returns
// the number of clusters and the number of papers linked.
func (l *Labeller) LabelClusters(ctx context.Context, tx storage.Tx) (int, int, error) {
	if _, err := tx.UnlinkTagsBy(ctx, models.CategoryCitationCluster, models.SourceCitationAnalysis); err != nil {
		return 0, 0, fmt.Errorf("failed to clear cluster tags: %w", err)
	}
	edges, err := tx.ListCitations(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list citations: %w", err)
	}
	communities := DetectCommunities(edges, l.cfg.MaxIterations)

	clusters, papers := 0, 0
	for _, members := range communities {
		if clusters >= l.cfg.MaxClusters {
			break
		}
		// sorted largest first, nothing smaller can qualify
		if len(members) < l.cfg.MinClusterSize {
			break
		}
		clusters++
		tag, _, err := tx.EnsureTag(ctx, &models.Tag{
			Key:      fmt.Sprintf("cluster_%d", clusters),
			Name:     fmt.Sprintf("Cluster %d", clusters),
			Category: models.CategoryCitationCluster,
			Source:   models.SourceCitationAnalysis,
			Meta:     map[string]any{"size": len(members)},
		})
		if err != nil {
			return 0, 0, fmt.Errorf("failed to ensure cluster tag: %w", err)
		}
		for _, id := range members {
			if _, err := tx.LinkPaperTag(ctx, models.PaperTag{
				PaperID: id, TagID: tag.ID, Weight: 1.0, Source: models.SourceCitationAnalysis,
			}); err != nil {
				return 0, 0, fmt.Errorf("failed to link cluster tag: %w", err)
			}
			papers++
		}
	}
	return clusters, papers, nil
}
