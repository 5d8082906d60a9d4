package repository

import (
    "context"
    "database/sql"
    "strings"
)

// EventRepo is the processed-event set: an append-only membership
// structure keyed by gateway event id.  It is the idempotency boundary
// for webhook delivery.  The `gateway_events` table carries a UNIQUE
// key on event_id, so membership is decided by the database's atomic
// unique insert rather than a check-then-insert race.
type EventRepo struct {
    db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// MarkProcessed records a gateway event id as applied.  A duplicate
// insert trips the unique key and is reported as ErrEventSeen; under
// concurrent delivery of the same event id exactly one caller wins.
// The event type and order id are stored alongside for operator
// review, never the raw payload.
func (r *EventRepo) MarkProcessed(ctx context.Context, eventID, eventType, orderID string) error {
    const q = `INSERT INTO gateway_events (event_id, event_type, order_id) VALUES (?, ?, ?)`
    _, err := r.db.ExecContext(ctx, q, eventID, eventType, orderID)
    if err != nil {
        // MySQL error 1062: duplicate entry for the event_id unique key.
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return ErrEventSeen
        }
        return err
    }
    return nil
}

// Seen reports whether an event id has already been recorded.  Used as
// an early replay check; the authoritative decision is still the
// unique insert in MarkProcessed.
func (r *EventRepo) Seen(ctx context.Context, eventID string) (bool, error) {
    const q = `SELECT 1 FROM gateway_events WHERE event_id = ? LIMIT 1`
    var one int
    err := r.db.QueryRowContext(ctx, q, eventID).Scan(&one)
    if err == sql.ErrNoRows {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}
