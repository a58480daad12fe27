package embedding

import (
	"context"
	"testing"
)

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := NewMockEmbedder(384)
	ctx := context.Background()
	text := "Graph neural networks for citation recommendation"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, text)
	}
}

func BenchmarkCachedEmbedder_Hit(b *testing.B) {
	e := NewCachedEmbedder(NewMockEmbedder(384), 128, 0)
	ctx := context.Background()
	_, _ = e.Embed(ctx, "warm")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "warm")
	}
}
