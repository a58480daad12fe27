// Package learning turns logged click and accept events into tag graph edge
// weights, and reads the learned graph back for keyword expansion.
package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/storage"
	"github.com/hyperjump/shiori/pkg/utils"
)

// Result summarises one learning batch.
type Result struct {
	Events        int `json:"events"`
	UpdatedEdges  int `json:"updated_edges"`
	CreatedTags   int `json:"created_tags"`
	MissingGroups int `json:"missing_groups"`
	Processed     int `json:"processed"`
}

// Learner applies interaction events to TagGroupTag weights.
type Learner struct {
	cfg    config.LearnerConfig
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Learner.
type Option func(*Learner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lr *Learner) { lr.logger = utils.OrNop(l) }
}

// WithClock overrides the time source used for the window and processed stamps.
func WithClock(now func() time.Time) Option {
	return func(lr *Learner) { lr.now = now }
}

// NewLearner creates a Learner. Zero-valued fields of cfg take their defaults.
func NewLearner(cfg *config.LearnerConfig, opts ...Option) *Learner {
	c := config.Default().Learner
	if cfg != nil {
		d := c
		c = *cfg
		if c.ClickIncrement <= 0 {
			c.ClickIncrement = d.ClickIncrement
		}
		if c.AcceptIncrement <= 0 {
			c.AcceptIncrement = d.AcceptIncrement
		}
		if c.MaxWeight <= 0 {
			c.MaxWeight = d.MaxWeight
		}
		if c.DefaultWeight <= 0 {
			c.DefaultWeight = d.DefaultWeight
		}
		if c.WindowMinutes <= 0 {
			c.WindowMinutes = d.WindowMinutes
		}
	}
	lr := &Learner{cfg: c, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Window returns the configured look-back window.
func (l *Learner) Window() time.Duration {
	return time.Duration(l.cfg.WindowMinutes) * time.Minute
}

// Run applies the events of the last window in one unit of work.
func (l *Learner) Run(ctx context.Context, store storage.Store, window time.Duration) (*Result, error) {
	var res *Result
	err := storage.WithTx(ctx, store, func(tx storage.Tx) error {
		var err error
		res, err = l.Learn(ctx, tx, window)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("graph learning finished",
		zap.Int("events", res.Events),
		zap.Int("updated_edges", res.UpdatedEdges),
		zap.Int("created_tags", res.CreatedTags),
		zap.Int("missing_groups", res.MissingGroups))
	return res, nil
}

// Learn reads click and accept events newer than window (all events when
// window <= 0) and raises the weight of every (group, keyword) edge they
// mention by the event's increment, capped at the maximum weight. Events
// naming an unknown group are skipped. Overlapping windows count an event
// again unless processed marking is on.
func (l *Learner) Learn(ctx context.Context, tx storage.Tx, window time.Duration) (*Result, error) {
	filter := storage.InteractionFilter{
		EventTypes:      []string{models.EventClick, models.EventAccept},
		UnprocessedOnly: l.cfg.MarkProcessed,
	}
	now := l.now()
	if window > 0 {
		filter.Since = now.Add(-window)
	}
	events, err := tx.ListInteractions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}

	res := &Result{}
	r := &resolver{tx: tx, tags: map[string]*models.Tag{}, groups: map[string]*models.TagGroup{}}
	var seen []int64
	for _, ev := range events {
		seen = append(seen, ev.ID)
		inc := l.increment(ev.EventType)
		if inc == 0 || len(ev.Keywords) == 0 || len(ev.GroupKeys) == 0 {
			continue
		}
		res.Events++
		for _, groupKey := range ev.GroupKeys {
			group, err := r.group(ctx, groupKey)
			if err != nil {
				return nil, err
			}
			if group == nil {
				res.MissingGroups++
				l.logger.Debug("skipping unknown group", zap.Int64("event_id", ev.ID), zap.String("group", groupKey))
				continue
			}
			for _, kw := range ev.Keywords {
				tag, created, err := r.tag(ctx, kw)
				if err != nil {
					return nil, err
				}
				if tag == nil {
					continue
				}
				if created {
					res.CreatedTags++
				}
				if err := l.bump(ctx, tx, group.ID, tag.ID, inc); err != nil {
					return nil, err
				}
				res.UpdatedEdges++
			}
		}
	}

	if l.cfg.MarkProcessed && len(seen) > 0 {
		if err := tx.MarkInteractionsProcessed(ctx, seen, now); err != nil {
			return nil, fmt.Errorf("failed to mark interactions processed: %w", err)
		}
		res.Processed = len(seen)
	}
	return res, nil
}

func (l *Learner) increment(eventType string) float64 {
	switch eventType {
	case models.EventClick:
		return l.cfg.ClickIncrement
	case models.EventAccept:
		return l.cfg.AcceptIncrement
	}
	return 0
}

func (l *Learner) bump(ctx context.Context, tx storage.Tx, groupID, tagID int64, inc float64) error {
	old := l.cfg.DefaultWeight
	edge, err := tx.GetGroupEdge(ctx, groupID, tagID)
	switch {
	case err == nil:
		old = edge.Weight
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to load edge: %w", err)
	}
	weight := math.Min(math.Max(old, 0)+inc, l.cfg.MaxWeight)
	if err := tx.SetGroupEdgeWeight(ctx, groupID, tagID, weight); err != nil {
		return fmt.Errorf("failed to update edge: %w", err)
	}
	return nil
}

// resolver caches tag and group lookups within one batch. A nil group means
// the key is unknown.
type resolver struct {
	tx     storage.Tx
	tags   map[string]*models.Tag
	groups map[string]*models.TagGroup
}

func (r *resolver) group(ctx context.Context, key string) (*models.TagGroup, error) {
	key = strings.TrimSpace(key)
	if g, ok := r.groups[key]; ok {
		return g, nil
	}
	g, err := r.tx.GetGroupByKey(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		r.groups[key] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group %q: %w", key, err)
	}
	r.groups[key] = g
	return g, nil
}

// tag resolves a keyword to an existing tag in any category, creating a
// user_query tag when none exists.
func (r *resolver) tag(ctx context.Context, keyword string) (*models.Tag, bool, error) {
	key := utils.NormalizeKey(keyword)
	if key == "" {
		return nil, false, nil
	}
	if t, ok := r.tags[key]; ok {
		return t, false, nil
	}
	t, err := r.tx.FindTagByKey(ctx, key)
	if err == nil {
		r.tags[key] = t
		return t, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to find tag %q: %w", key, err)
	}
	t, created, err := r.tx.EnsureTag(ctx, &models.Tag{
		Key:      key,
		Name:     strings.TrimSpace(keyword),
		Category: models.CategoryUserQuery,
		Source:   models.SourceLearnedFromLog,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create tag %q: %w", key, err)
	}
	r.tags[key] = t
	return t, created, nil
}
