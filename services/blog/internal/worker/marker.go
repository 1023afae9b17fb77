package worker

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEventMarker records processed event ids so redelivered batches do
// not double-count.
type PostgresEventMarker struct {
	Pool *pgxpool.Pool
}

func (m *PostgresEventMarker) MarkProcessed(ctx context.Context, eventID, subject string, payload []byte) (bool, error) {
	ct, err := m.Pool.Exec(ctx,
		`INSERT INTO processed_events (event_id, subject, payload, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, subject, payload)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
