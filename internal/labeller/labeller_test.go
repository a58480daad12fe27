package labeller

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/storage"
	"github.com/hyperjump/shiori/internal/storage/storagetest"
)

func clique(ids ...int64) []models.PaperCitation {
	var out []models.PaperCitation
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			out = append(out, models.PaperCitation{CitingPaperID: ids[i], CitedPaperID: ids[j]})
		}
	}
	return out
}

func TestDetectCommunities(t *testing.T) {
	edges := clique(1, 2, 3, 4, 5, 6)
	edges = append(edges, clique(10, 11, 12, 13, 14, 15, 16)...)
	edges = append(edges, clique(20, 21, 22)...)
	edges = append(edges, models.PaperCitation{CitingPaperID: 30, CitedPaperID: 30})

	got := DetectCommunities(edges, 100)
	require.Len(t, got, 3, "self loop adds no node")
	assert.Equal(t, []int64{10, 11, 12, 13, 14, 15, 16}, got[0])
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, got[1])
	assert.Equal(t, []int64{20, 21, 22}, got[2])

	again := DetectCommunities(edges, 100)
	assert.Equal(t, got, again)
	assert.Nil(t, DetectCommunities(nil, 10))
}

func TestDetectCommunities_BridgedCliques(t *testing.T) {
	edges := clique(1, 2, 3, 4, 5)
	edges = append(edges, clique(6, 7, 8, 9, 10)...)
	edges = append(edges, models.PaperCitation{CitingPaperID: 5, CitedPaperID: 6})

	got := DetectCommunities(edges, 100)
	require.Len(t, got, 2, "a single bridge does not merge communities")
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, got[0])
	assert.Equal(t, []int64{6, 7, 8, 9, 10}, got[1])
}

func TestDetectCommunities_PathSplits(t *testing.T) {
	var edges []models.PaperCitation
	for i := int64(1); i < 30; i++ {
		edges = append(edges, models.PaperCitation{CitingPaperID: i, CitedPaperID: i + 1})
	}

	got := DetectCommunities(edges, 100)
	require.Greater(t, len(got), 1)
	seen := 0
	for _, members := range got {
		assert.LessOrEqual(t, len(members), 3)
		for i := 1; i < len(members); i++ {
			assert.Equal(t, members[i-1]+1, members[i], "communities on a path are contiguous")
		}
		seen += len(members)
	}
	assert.Equal(t, 30, seen)
}

func TestDetectCommunities_SmallShapes(t *testing.T) {
	star := []models.PaperCitation{}
	for i := int64(2); i <= 7; i++ {
		star = append(star, models.PaperCitation{CitingPaperID: 1, CitedPaperID: i})
	}
	ring := []models.PaperCitation{
		{CitingPaperID: 1, CitedPaperID: 2}, {CitingPaperID: 2, CitedPaperID: 3},
		{CitingPaperID: 3, CitedPaperID: 4}, {CitingPaperID: 4, CitedPaperID: 1},
	}
	assert.Equal(t, [][]int64{{1, 2, 3, 4, 5, 6, 7}}, DetectCommunities(star, 100))
	assert.Equal(t, [][]int64{{1, 2, 3, 4}}, DetectCommunities(ring, 100))
}

func tagsOf(t *testing.T, store storage.Store, category string) map[int64][]string {
	t.Helper()
	out := make(map[int64][]string)
	storagetest.Read(t, store, func(ctx context.Context, tx storage.Tx) {
		papers, err := tx.ListPaperSummaries(ctx)
		require.NoError(t, err)
		ids := make([]int64, len(papers))
		for i, p := range papers {
			ids[i] = p.ID
		}
		links, err := tx.ListPaperTags(ctx, ids)
		require.NoError(t, err)
		tagIDs := make([]int64, 0, len(links))
		for _, l := range links {
			tagIDs = append(tagIDs, l.TagID)
		}
		tags, err := tx.GetTags(ctx, tagIDs)
		require.NoError(t, err)
		for _, l := range links {
			if tag := tags[l.TagID]; tag.Category == category {
				out[l.PaperID] = append(out[l.PaperID], tag.Key)
			}
		}
	})
	return out
}

func TestLabelImpact_Percentiles(t *testing.T) {
	store := storagetest.NewStore(t)
	byCount := make(map[int]int64)
	storagetest.Seed(t, store, func(f *storagetest.Fixture) {
		for c := 1; c <= 100; c++ {
			byCount[c] = f.CitedPaper(fmt.Sprintf("paper %d", c), 2000, c)
		}
		f.CitedPaper("uncited", 2000, 0)
	})

	res, err := NewLabeller(nil).Run(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 20, res.ImpactTags)

	impact := tagsOf(t, store, models.CategoryImpact)
	tiers := map[string]int{}
	for _, keys := range impact {
		require.Len(t, keys, 1)
		tiers[keys[0]]++
	}
	assert.Equal(t, map[string]int{"impact_seminal": 1, "impact_high": 4, "impact_significant": 15}, tiers)
	assert.Equal(t, []string{"impact_seminal"}, impact[byCount[100]])
	assert.Equal(t, []string{"impact_high"}, impact[byCount[96]])
	assert.Equal(t, []string{"impact_significant"}, impact[byCount[81]])
	assert.NotContains(t, impact, byCount[80])
}

func TestLabelImpact_RegeneratesFromCurrentCorpus(t *testing.T) {
	store := storagetest.NewStore(t)
	var first int64
	storagetest.Seed(t, store, func(f *storagetest.Fixture) {
		first = f.CitedPaper("only", 2000, 3)
	})
	lb := NewLabeller(nil)
	_, err := lb.Run(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, []string{"impact_seminal"}, tagsOf(t, store, models.CategoryImpact)[first])

	storagetest.Seed(t, store, func(f *storagetest.Fixture) {
		for i := 0; i < 9; i++ {
			f.CitedPaper(fmt.Sprintf("bigger %d", i), 2000, 100+i)
		}
	})
	_, err = lb.Run(context.Background(), store)
	require.NoError(t, err)
	impact := tagsOf(t, store, models.CategoryImpact)
	assert.NotContains(t, impact, first, "tier is recomputed, not remembered")
	assert.Len(t, impact, 2)
}

func TestLabelGenerations(t *testing.T) {
	store := storagetest.NewStore(t)
	var a, b, unknown int64
	storagetest.Seed(t, store, func(f *storagetest.Fixture) {
		a = f.Paper("a", 2014, nil)
		b = f.Paper("b", 1999, nil)
		unknown = f.Paper("undated", 0, nil)
	})
	lb := NewLabeller(nil)
	for i := 0; i < 2; i++ {
		res, err := lb.Run(context.Background(), store)
		require.NoError(t, err)
		assert.Equal(t, 2, res.GenerationTags)
	}
	gens := tagsOf(t, store, models.CategoryGeneration)
	assert.Equal(t, []string{"gen_2010s"}, gens[a])
	assert.Equal(t, []string{"gen_1990s"}, gens[b])
	assert.NotContains(t, gens, unknown)
}

func TestLabelClusters(t *testing.T) {
	store := storagetest.NewStore(t)
	var big, small, tiny []int64
	storagetest.Seed(t, store, func(f *storagetest.Fixture) {
		for i := 0; i < 7; i++ {
			big = append(big, f.Paper(fmt.Sprintf("big %d", i), 2020, nil))
		}
		for i := 0; i < 5; i++ {
			small = append(small, f.Paper(fmt.Sprintf("small %d", i), 2020, nil))
		}
		for i := 0; i < 3; i++ {
			tiny = append(tiny, f.Paper(fmt.Sprintf("tiny %d", i), 2020, nil))
		}
		for _, group := range [][]int64{big, small, tiny} {
			for _, e := range clique(group...) {
				f.Cite(e.CitingPaperID, e.CitedPaperID)
			}
		}
	})

	lb := NewLabeller(nil)
	res, err := lb.Run(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ClusterTags)
	assert.Equal(t, 12, res.ClusteredPapers)

	clusters := tagsOf(t, store, models.CategoryCitationCluster)
	members := func(ids []int64) map[string]bool {
		keys := map[string]bool{}
		for _, id := range ids {
			require.Len(t, clusters[id], 1)
			keys[clusters[id][0]] = true
		}
		return keys
	}
	bigKeys, smallKeys := members(big), members(small)
	assert.Len(t, bigKeys, 1, "one community holds every member")
	assert.Len(t, smallKeys, 1)
	assert.NotEqual(t, bigKeys, smallKeys)
	for _, id := range tiny {
		assert.NotContains(t, clusters, id, "communities under the minimum size are dropped")
	}

	cfg := config.Default().Labeller
	cfg.MaxClusters = 1
	res, err = NewLabeller(&cfg).Run(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ClusterTags)
	clusters = tagsOf(t, store, models.CategoryCitationCluster)
	assert.Len(t, clusters, 7, "stale cluster links are cleared")

	storagetest.Read(t, store, func(ctx context.Context, tx storage.Tx) {
		tags, err := tx.FindTagsByKeys(ctx, []string{"cluster_1"})
		require.NoError(t, err)
		require.Len(t, tags, 1)
		assert.EqualValues(t, 7, tags[0].Meta["size"])
	})
}
