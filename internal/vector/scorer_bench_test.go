package vector

import (
	"testing"

	"github.com/hyperjump/shiori/internal/models"
)

func benchPapers(n, dim int) []*models.Paper {
	papers := make([]*models.Paper, n)
	for i := range papers {
		emb := make([]float32, dim)
		emb[0] = float32(i) / float32(n)
		emb[i%dim] += 1
		papers[i] = &models.Paper{ID: int64(i + 1), Embedding: emb}
	}
	return papers
}

func BenchmarkRank_1000x384(b *testing.B) {
	papers := benchPapers(1000, 384)
	query := make([]float32, 384)
	query[0] = 1.0
	s := NewScorer()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Rank(query, papers, 50)
	}
}

func BenchmarkCosine_384(b *testing.B) {
	x := make([]float32, 384)
	y := make([]float32, 384)
	for i := range x {
		x[i] = float32(i)
		y[i] = float32(384 - i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Cosine(x, y)
	}
}
