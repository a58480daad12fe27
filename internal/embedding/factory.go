package embedding

import (
	"fmt"
	"time"

	"github.com/hyperjump/shiori/internal/config"
)

// NewFromConfig builds the configured provider wrapped in a CachedEmbedder.
func NewFromConfig(cfg *config.EmbeddingConfig) (*CachedEmbedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "onnx":
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		inner = e
	case "http":
		inner = NewHTTPEmbedder(cfg.BaseURL,
			WithAPIKey(cfg.APIKey),
			WithModel(cfg.Model),
			WithDimensions(cfg.Dimensions),
			WithRateLimit(cfg.RequestsPerSecond),
			WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
		)
	case "mock":
		inner = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return NewCachedEmbedder(inner, cfg.CacheSize, cfg.MaxInputChars), nil
}
