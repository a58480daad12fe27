// Package embedding provides text embedding providers and a caching wrapper.
package embedding

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperjump/shiori/pkg/utils"
)

// DefaultMaxInputChars bounds the text handed to a provider.
const DefaultMaxInputChars = 6000

// ErrEmptyText is returned when there is nothing to embed after trimming.
var ErrEmptyText = errors.New("empty text")

//go:generate mockgen -destination=mocks/mock_embedder.go -package=mocks github.com/hyperjump/shiori/internal/embedding Embedder

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// PrepareText trims text and clips it to maxChars runes.
func PrepareText(text string, maxChars int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	return utils.Clip(text, maxChars), nil
}

// embedEach implements EmbedBatch for providers without a native batch call.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
