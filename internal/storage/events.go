package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/models"
)

// EventLog appends interaction events in their own unit of work. Failures are
// logged and swallowed so telemetry never fails the caller.
type EventLog struct {
	store  Store
	logger *zap.Logger
}

// NewEventLog returns an EventLog writing to store.
func NewEventLog(store Store, logger *zap.Logger) *EventLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLog{store: store, logger: logger}
}

// Emit appends entry to the interaction log.
func (l *EventLog) Emit(ctx context.Context, entry *models.InteractionLog) {
	err := WithTx(ctx, l.store, func(tx Tx) error {
		return tx.AppendInteraction(ctx, entry)
	})
	if err != nil {
		l.logger.Warn("interaction log write failed",
			zap.String("event_type", entry.EventType),
			zap.Error(err))
	}
}
