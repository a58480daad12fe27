package learning

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/shiori/internal/groups"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/storage"
	"github.com/hyperjump/shiori/pkg/utils"
)

// SyncResult counts rows created by SyncStaticGroups.
type SyncResult struct {
	Groups        int `json:"groups"`
	CreatedGroups int `json:"created_groups"`
	CreatedTags   int `json:"created_tags"`
	CreatedEdges  int `json:"created_edges"`
}

// SyncStaticGroups mirrors the semantic group file into the tag graph: one
// TagGroup per group, one keyword tag per word and an edge of the default
// weight where none exists. Learned weights are never lowered.
func SyncStaticGroups(ctx context.Context, tx storage.Tx, snap *groups.Snapshot, defaultWeight float64) (*SyncResult, error) {
	if defaultWeight <= 0 {
		defaultWeight = 1.0
	}
	res := &SyncResult{}
	if snap == nil {
		return res, nil
	}
	for _, g := range snap.Groups {
		group, created, err := tx.EnsureGroup(ctx, &models.TagGroup{
			Key:       g.Name,
			Name:      g.Name,
			GroupType: models.GroupTypeSemantic,
			Meta:      map[string]any{"static_weight": g.Weight},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to sync group %q: %w", g.Name, err)
		}
		res.Groups++
		if created {
			res.CreatedGroups++
		}
		for _, word := range g.AllWords() {
			key := utils.NormalizeKey(word)
			if key == "" {
				continue
			}
			tag, created, err := tx.EnsureTag(ctx, &models.Tag{
				Key:      key,
				Name:     word,
				Category: models.CategoryKeyword,
				Source:   models.SourceStaticConfig,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to sync tag %q: %w", key, err)
			}
			if created {
				res.CreatedTags++
			}
			_, err = tx.GetGroupEdge(ctx, group.ID, tag.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("failed to load edge: %w", err)
			}
			if err := tx.SetGroupEdgeWeight(ctx, group.ID, tag.ID, defaultWeight); err != nil {
				return nil, fmt.Errorf("failed to create edge: %w", err)
			}
			res.CreatedEdges++
		}
	}
	return res, nil
}
