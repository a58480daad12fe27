package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/groups"
	"github.com/hyperjump/shiori/internal/indexer"
	"github.com/hyperjump/shiori/internal/keyword"
	"github.com/hyperjump/shiori/internal/labeller"
	"github.com/hyperjump/shiori/internal/learning"
	"github.com/hyperjump/shiori/internal/search"
	"github.com/hyperjump/shiori/internal/storage"
)

// Components holds the wired services for one process.
type Components struct {
	Config   *config.Config
	Store    *storage.SQLiteStore
	Embedder embedding.Embedder
	Lookup   *keyword.BleveIndex
	Matcher  *groups.Matcher
	Engine   *search.Engine
	Indexer  *indexer.Indexer
	Learner  *learning.Learner
	Labeller *labeller.Labeller
}

// Close releases storage, the embedder and the lookup index.
func (c *Components) Close() {
	if c.Lookup != nil {
		_ = c.Lookup.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

// initializeComponents opens storage and builds every service. The lookup
// index holds an exclusive lock on disk, so it is only opened when withLookup
// is set.
func initializeComponents(cfg *config.Config, logger *zap.Logger, withLookup bool) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Config: cfg, Store: store}

	embedder, err := embedding.NewFromConfig(&cfg.Embedding)
	if err != nil {
		logger.Warn("embedding provider unavailable, falling back to mock embedder",
			zap.String("provider", cfg.Embedding.Provider), zap.Error(err))
		embedder = embedding.NewCachedEmbedder(embedding.NewMockEmbedder(cfg.Embedding.Dimensions),
			cfg.Embedding.CacheSize, cfg.Embedding.MaxInputChars)
	}
	c.Embedder = embedder

	var lookup keyword.PaperIndex
	if withLookup {
		kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize paper lookup index: %w", err)
		}
		c.Lookup = kw
		lookup = kw
	}

	c.Matcher = groups.NewMatcher(cfg.Groups.Path, groups.WithLogger(logger))
	c.Engine = search.NewEngine(store, embedder, c.Matcher, storage.NewEventLog(store, logger), &cfg.Search,
		search.WithLogger(logger))
	c.Indexer = indexer.NewIndexer(store, embedder, lookup, indexer.WithLogger(logger))
	c.Learner = learning.NewLearner(&cfg.Learner, learning.WithLogger(logger))
	c.Labeller = labeller.NewLabeller(&cfg.Labeller, labeller.WithLogger(logger))
	return c, nil
}
