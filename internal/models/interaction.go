package models

import (
	"fmt"
	"time"
)

// Interaction event types.
const (
	EventQuery  = "query"
	EventClick  = "click"
	EventAccept = "accept"
	EventOther  = "other"
)

// InteractionLog is an append-only record of a user interaction. Query events
// carry the result set in PaperIDs; click and accept events name the single
// paper acted on, with its rank and score in the result list when known.
type InteractionLog struct {
	ID          int64          `json:"id"`
	UserID      string         `json:"user_id,omitempty"`
	EventType   string         `json:"event_type"`
	Source      string         `json:"source,omitempty"`
	QueryText   string         `json:"query_text,omitempty"`
	Keywords    []string       `json:"keywords,omitempty"`
	GroupKeys   []string       `json:"group_keys,omitempty"`
	PaperIDs    []int64        `json:"paper_ids,omitempty"`
	PaperID     *int64         `json:"paper_id,omitempty"`
	Rank        *int           `json:"rank,omitempty"`
	Score       *float64       `json:"score,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
}

// Validate checks the event type and the optional result position.
func (l *InteractionLog) Validate() error {
	switch l.EventType {
	case EventQuery, EventClick, EventAccept, EventOther:
	default:
		return fmt.Errorf("unknown event type %q", l.EventType)
	}
	if l.PaperID != nil && *l.PaperID <= 0 {
		return fmt.Errorf("paper_id must be positive")
	}
	if l.Rank != nil && *l.Rank < 1 {
		return fmt.Errorf("rank must be at least 1")
	}
	return nil
}
