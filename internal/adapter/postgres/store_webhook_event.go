package postgres

import (
	"context"
	"fmt"
	"time"
)

// RecordEvent inserts the provider event id, returning false when the id was
// already recorded. The insert-first ordering makes redelivered webhooks
// no-ops regardless of how the previous delivery ended.
func (s *Store) RecordEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type, processed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", eventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteEvent removes a recorded event id. Called when applying the event
// failed after the id was recorded, so the provider's redelivery is not
// swallowed by the dedup check.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}

// PurgeEventsBefore deletes processed-event records older than the cutoff.
// Provider event ids are unique forever on the provider side, so old records
// only serve auditing and can be trimmed.
func (s *Store) PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return tag.RowsAffected(), nil
}
