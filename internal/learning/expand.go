package learning

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
)

const (
	expansionTopGroups = 5
	expansionDecay     = 0.5
)

// GraphReader is the read surface of a unit of work keyword expansion needs.
type GraphReader interface {
	FindTagsByKeys(ctx context.Context, keys []string) ([]*models.Tag, error)
	GetTags(ctx context.Context, ids []int64) (map[int64]*models.Tag, error)
	ListGroupEdgesByTags(ctx context.Context, tagIDs []int64) ([]models.TagGroupTag, error)
	ListGroupEdgesByGroups(ctx context.Context, groupIDs []int64, limit int) ([]models.TagGroupTag, error)
}

// ExpandKeywords suggests related keywords from the learned tag graph. The
// input keywords resolve to tags; each group they belong to scores the sum of
// their edge weights. The five best groups fan out to their other member
// tags, each scoring group_score*edge_weight*0.5 summed over those groups.
// Input keywords never appear in the result. limit <= 0 returns every
// suggestion.
func ExpandKeywords(ctx context.Context, g GraphReader, keywords []string, limit int) ([]models.ExpandedTerm, error) {
	exclude := make(map[string]struct{}, len(keywords))
	var keys []string
	for _, kw := range keywords {
		k := utils.NormalizeKey(kw)
		if k == "" {
			continue
		}
		if _, dup := exclude[k]; !dup {
			keys = append(keys, k)
		}
		exclude[k] = struct{}{}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	inputTags, err := g.FindTagsByKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve keywords: %w", err)
	}
	if len(inputTags) == 0 {
		return nil, nil
	}
	inputIDs := make([]int64, 0, len(inputTags))
	isInput := make(map[int64]bool, len(inputTags))
	for _, t := range inputTags {
		inputIDs = append(inputIDs, t.ID)
		isInput[t.ID] = true
	}

	memberships, err := g.ListGroupEdgesByTags(ctx, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword groups: %w", err)
	}
	groupScores := make(map[int64]float64)
	for _, m := range memberships {
		if m.Weight > 0 {
			groupScores[m.GroupID] += m.Weight
		}
	}
	top := topGroups(groupScores, expansionTopGroups)
	if len(top) == 0 {
		return nil, nil
	}

	members, err := g.ListGroupEdgesByGroups(ctx, top, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	tagScores := make(map[int64]float64)
	for _, m := range members {
		if isInput[m.TagID] || m.Weight <= 0 {
			continue
		}
		tagScores[m.TagID] += groupScores[m.GroupID] * m.Weight * expansionDecay
	}
	if len(tagScores) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(tagScores))
	for id := range tagScores {
		ids = append(ids, id)
	}
	tags, err := g.GetTags(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load suggested tags: %w", err)
	}

	// Tags sharing a key across categories collapse to their best score.
	byKey := make(map[string]float64)
	for id, score := range tagScores {
		t, ok := tags[id]
		if !ok {
			continue
		}
		if _, skip := exclude[t.Key]; skip {
			continue
		}
		if _, skip := exclude[utils.NormalizeKey(t.Name)]; skip {
			continue
		}
		if score > byKey[t.Key] {
			byKey[t.Key] = score
		}
	}

	out := make([]models.ExpandedTerm, 0, len(byKey))
	for k, s := range byKey {
		out = append(out, models.ExpandedTerm{Keyword: k, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Keyword < out[j].Keyword
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func topGroups(scores map[int64]float64, n int) []int64 {
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
