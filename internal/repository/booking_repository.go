package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/freshfold/booking-api/internal/model"
)

// BookingRepo is the single source of truth for bookings and their
// payment lifecycle.  All state changes go through AttachOrder and
// Transition; both use optimistic versioning so that concurrent webhook
// delivery and user-driven updates against the same booking are
// linearized by the version column without any coarse locking.
// Unrelated bookings never contend.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle for callers that need to open a
// transaction spanning multiple repositories.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, customer_id, service_ref, slot, amount_minor, state,
       gateway_order_id, gateway_payment_id, version, created_at, updated_at`

// scanBooking reads one bookings row into a model.Booking, converting
// the nullable gateway columns.
func scanBooking(row interface{ Scan(...interface{}) error }) (*model.Booking, error) {
    var b model.Booking
    var orderID, paymentID sql.NullString
    err := row.Scan(
        &b.ID, &b.CustomerID, &b.ServiceRef, &b.Slot, &b.AmountMinor, &b.State,
        &orderID, &paymentID, &b.Version, &b.CreatedAt, &b.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    if orderID.Valid {
        v := orderID.String
        b.GatewayOrderID = &v
    }
    if paymentID.Valid {
        v := paymentID.String
        b.GatewayPaymentID = &v
    }
    return &b, nil
}

// Create inserts a new booking in the PENDING state with version 1 and
// returns the stored record.  No gateway order exists yet, so an
// abandoned request leaves nothing worse than a PENDING row that a
// cleanup job can collect later.
func (r *BookingRepo) Create(ctx context.Context, customerID uint64, serviceRef string, slot time.Time, amountMinor int64) (*model.Booking, error) {
    const q = `INSERT INTO bookings (customer_id, service_ref, slot, amount_minor, state, version)
               VALUES (?, ?, ?, ?, ?, 1)`
    res, err := r.db.ExecContext(ctx, q, customerID, serviceRef, slot.UTC(), amountMinor, model.StatePending)
    if err != nil {
        return nil, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, err
    }
    return r.GetByID(ctx, uint64(id))
}

// GetByID fetches a booking by primary key.  Returns ErrBookingNotFound
// when no row exists.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
    const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
    b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
    if err == sql.ErrNoRows {
        return nil, ErrBookingNotFound
    }
    return b, err
}

// GetByOrderID resolves the booking currently bound to a gateway order
// id.  An order id orphaned by a payment retry matches no row, so a
// late webhook for it is a safe no-op at the caller.
func (r *BookingRepo) GetByOrderID(ctx context.Context, orderID string) (*model.Booking, error) {
    const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE gateway_order_id = ?`
    b, err := scanBooking(r.db.QueryRowContext(ctx, q, orderID))
    if err == sql.ErrNoRows {
        return nil, ErrBookingNotFound
    }
    return b, err
}

// ListByCustomer returns all bookings belonging to a customer, newest
// first.  When none exist an empty slice is returned.
func (r *BookingRepo) ListByCustomer(ctx context.Context, customerID uint64) ([]model.Booking, error) {
    const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE customer_id = ? ORDER BY created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, customerID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Booking, 0)
    for rows.Next() {
        b, err := scanBooking(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *b)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// AttachOrder binds a freshly created gateway order to a booking and
// moves it to AWAITING_PAYMENT.  Allowed from PENDING (first payment
// attempt, no order bound yet) and from FAILED (customer retry; the
// fresh order id replaces the orphaned one).  Any other state, or a
// PENDING booking that somehow already carries an order, is rejected
// with ErrInvalidTransition.  The update is conditional on the version
// the caller read; a lost race yields ErrVersionConflict.
func (r *BookingRepo) AttachOrder(ctx context.Context, bookingID, expectedVersion uint64, orderID string) (*model.Booking, error) {
    cur, err := r.GetByID(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    if cur.Version != expectedVersion {
        return nil, ErrVersionConflict
    }
    if !model.CanAttachOrder(cur.State, cur.GatewayOrderID != nil) {
        return nil, ErrInvalidTransition
    }
    const q = `UPDATE bookings
               SET gateway_order_id = ?, state = ?, version = version + 1, updated_at = NOW()
               WHERE id = ? AND version = ?`
    res, err := r.db.ExecContext(ctx, q, orderID, model.StateAwaitingPayment, bookingID, expectedVersion)
    if err != nil {
        return nil, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return nil, err
    }
    if n == 0 {
        // The row moved between our read and the update.
        return nil, ErrVersionConflict
    }
    return r.GetByID(ctx, bookingID)
}

// Transition applies a state change validated against the lifecycle
// graph.  The caller supplies the version it read; if the stored
// version differs the update is refused with ErrVersionConflict and
// nothing changes.  An off-graph edge is refused with
// ErrInvalidTransition.  paymentID, when non-nil, records the gateway
// payment handle that settled the booking.  The change is all-or-
// nothing: a single conditional UPDATE either applies completely or
// not at all.
func (r *BookingRepo) Transition(ctx context.Context, bookingID, expectedVersion uint64, target string, paymentID *string) (*model.Booking, error) {
    if !model.ValidState(target) {
        return nil, ErrInvalidTransition
    }
    cur, err := r.GetByID(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    if cur.Version != expectedVersion {
        return nil, ErrVersionConflict
    }
    if !model.CanTransition(cur.State, target) {
        return nil, ErrInvalidTransition
    }
    const q = `UPDATE bookings
               SET state = ?, gateway_payment_id = COALESCE(?, gateway_payment_id),
                   version = version + 1, updated_at = NOW()
               WHERE id = ? AND version = ?`
    res, err := r.db.ExecContext(ctx, q, target, paymentID, bookingID, expectedVersion)
    if err != nil {
        return nil, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return nil, err
    }
    if n == 0 {
        return nil, ErrVersionConflict
    }
    return r.GetByID(ctx, bookingID)
}
