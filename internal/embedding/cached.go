package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// CachedEmbedder wraps an Embedder with text preparation, an LRU cache and
// collapsing of concurrent requests for the same text.
type CachedEmbedder struct {
	inner    Embedder
	cache    *LRU
	group    singleflight.Group
	maxChars int
}

// NewCachedEmbedder wraps inner with a cache of cacheSize entries. Texts are
// clipped to maxChars runes before embedding.
func NewCachedEmbedder(inner Embedder, cacheSize, maxChars int) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: NewLRU(cacheSize), maxChars: maxChars}
}

// Embed returns the embedding for text.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text, err := PrepareText(text, c.maxChars)
	if err != nil {
		return nil, err
	}
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(text, func() (any, error) {
		emb, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(text, emb)
		return emb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// EmbedBatch embeds texts, serving cached entries and sending the rest to the
// wrapped provider in one batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		pending   []string
		positions []int
	)
	for i, text := range texts {
		prepared, err := PrepareText(text, c.maxChars)
		if err != nil {
			return nil, err
		}
		if v, ok := c.cache.Get(prepared); ok {
			out[i] = v
			continue
		}
		pending = append(pending, prepared)
		positions = append(positions, i)
	}
	if len(pending) == 0 {
		return out, nil
	}
	embs, err := c.inner.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(embs) != len(pending) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d texts", len(embs), len(pending))
	}
	for j, emb := range embs {
		c.cache.Set(pending[j], emb)
		out[positions[j]] = emb
	}
	return out, nil
}

// Dimensions returns the wrapped provider's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the wrapped provider.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}
