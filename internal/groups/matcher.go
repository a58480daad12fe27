package groups

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/pkg/utils"
)

// Matcher serves the current group snapshot. Reload swaps the snapshot
// atomically; a query that took a snapshot keeps it for its whole lifetime.
type Matcher struct {
	path    string
	current atomic.Pointer[Snapshot]
	logger  *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.logger = utils.OrNop(l) }
}

// NewMatcher loads groups from path. A file that fails to load at startup is
// logged and replaced by the built-in defaults.
func NewMatcher(path string, opts ...Option) *Matcher {
	m := &Matcher{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	snap, err := LoadFile(path)
	if err != nil {
		m.logger.Error("semantic groups unreadable, using built-in defaults", zap.String("path", path), zap.Error(err))
		snap = Defaults()
	}
	m.current.Store(snap)
	m.logger.Info("semantic groups loaded", zap.String("source", snap.Source), zap.Int("groups", len(snap.Groups)))
	return m
}

// NewStaticMatcher serves a fixed snapshot.
func NewStaticMatcher(snap *Snapshot) *Matcher {
	m := &Matcher{logger: zap.NewNop()}
	m.current.Store(snap)
	return m
}

// Path returns the group file path, empty for static matchers.
func (m *Matcher) Path() string {
	return m.path
}

// Snapshot returns the current configuration.
func (m *Matcher) Snapshot() *Snapshot {
	return m.current.Load()
}

// Expand expands keywords against the current snapshot.
func (m *Matcher) Expand(keywords []string, text string) Expansion {
	return m.Snapshot().Expand(keywords, text)
}

// Reload re-reads the group file. On failure the previous snapshot stays in
// place and the error is returned.
func (m *Matcher) Reload() error {
	if m.path == "" {
		return nil
	}
	snap, err := LoadFile(m.path)
	if err != nil {
		m.logger.Warn("semantic groups reload failed, keeping previous snapshot", zap.String("path", m.path), zap.Error(err))
		return err
	}
	m.current.Store(snap)
	m.logger.Info("semantic groups reloaded", zap.String("source", snap.Source), zap.Int("groups", len(snap.Groups)))
	return nil
}
