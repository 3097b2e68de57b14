package repository

import (
	"context"

	"cvbuilder/api/internal/ids"
	"cvbuilder/api/internal/models"
)

func (r *PostgresStore) RecordEvent(ctx context.Context, event models.Event) error {
	const query = `
		INSERT INTO events (id, session_id, event_type, event_data, step_index, page_url, timestamp)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
	`

	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.opts.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.SessionID,
		string(event.EventType),
		nullableJSON(event.EventData),
		event.StepIndex,
		event.PageURL,
		event.Timestamp,
	)
	return err
}

func (r *PostgresStore) GetSessionEvents(ctx context.Context, sessionID string) ([]models.Event, error) {
	const query = `
		SELECT id, session_id, event_type, event_data, step_index, page_url, timestamp
		FROM events
		WHERE session_id = $1
		ORDER BY timestamp ASC, seq ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.EventType,
			&event.EventData,
			&event.StepIndex,
			&event.PageURL,
			&event.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
