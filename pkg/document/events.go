package document

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/openrestyle/openrestyle/pkg/engine"
	"github.com/openrestyle/openrestyle/pkg/stores"
)

// EventSink returns a subscriber that appends protocol events to the store's
// event log, keeping the stream inspectable after the operation ends. Append
// failures are logged, never fatal.
func EventSink(store stores.Store, logger zerolog.Logger) func(event engine.Event) {
	sinkLogger := logger.With().Str("component", "event-sink").Logger()

	return func(event engine.Event) {
		record := &stores.Event{
			Type:      string(event.Type),
			Level:     stores.EventLevel(event.Level),
			Message:   event.Message,
			Timestamp: event.Timestamp,
		}
		if event.OperationID != "" {
			operationID := event.OperationID
			record.OperationID = &operationID
		}
		if event.DocumentID != "" {
			documentID := event.DocumentID
			record.DocumentID = &documentID
		}
		if len(event.Data) > 0 {
			if data, err := json.Marshal(event.Data); err == nil {
				details := string(data)
				record.Details = &details
			}
		}

		if err := store.AppendEvent(context.Background(), record); err != nil {
			sinkLogger.Warn().Err(err).Str("event_type", record.Type).Msg("Failed to persist event")
		}
	}
}
