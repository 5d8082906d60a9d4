// Package reconcile maps asynchronous gateway payment events onto
// booking state transitions, exactly once per distinct event id.  It
// sits between the webhook handler (which authenticates deliveries)
// and the booking store (which owns the state machine).
package reconcile

import (
    "context"
    "errors"
    "log"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/freshfold/booking-api/internal/model"
    "github.com/freshfold/booking-api/internal/queue"
    "github.com/freshfold/booking-api/internal/repository"
)

// ErrReconciliationConflict is returned when the bounded retry budget
// for a version-conflicted transition is exhausted.  The event is NOT
// recorded as processed, so the gateway will redeliver and an operator
// can review; it is never silently dropped.
var ErrReconciliationConflict = errors.New("reconciliation conflict: retries exhausted")

// maxTransitionAttempts bounds the re-read-and-retry loop when a
// transition loses an optimistic-concurrency race (concurrent webhook
// delivery, or an admin cancellation racing the same booking).
const maxTransitionAttempts = 3

// BookingStore is the slice of the booking repository the engine
// needs.  The engine mutates bookings only through Transition, never
// by direct field writes.
type BookingStore interface {
    GetByOrderID(ctx context.Context, orderID string) (*model.Booking, error)
    Transition(ctx context.Context, bookingID, expectedVersion uint64, target string, paymentID *string) (*model.Booking, error)
}

// EventStore is the durable processed-event set.  MarkProcessed must
// be an atomic unique insert: under concurrent delivery of one event
// id exactly one caller wins and the rest see repository.ErrEventSeen.
type EventStore interface {
    MarkProcessed(ctx context.Context, eventID, eventType, orderID string) error
    Seen(ctx context.Context, eventID string) (bool, error)
}

// Notifier receives settlement events for deferred side effects
// (notification dispatch).  Publishing happens off the webhook's
// critical path and failures are logged, never propagated.
type Notifier interface {
    PublishBookingSettled(ctx context.Context, ev queue.BookingSettledEvent) error
}

// Outcome describes what applying an event did, for logging and tests.
type Outcome int

const (
    // OutcomeApplied: the event drove a state transition.
    OutcomeApplied Outcome = iota
    // OutcomeReplay: the event id was already processed; nothing reapplied.
    OutcomeReplay
    // OutcomeUnknownOrder: no booking is bound to the referenced order.
    OutcomeUnknownOrder
    // OutcomeIgnored: event class not acted on, or the transition is
    // impossible from the booking's terminal state.
    OutcomeIgnored
)

// Engine orchestrates webhook reconciliation.  The redis client is an
// optional fast-path replay filter; when nil, or when redis is down,
// the engine works purely off the durable event store.
type Engine struct {
    bookings BookingStore
    events   EventStore
    rdb      *redis.Client
    notifier Notifier
}

// NewEngine constructs an Engine.  bookings and events must be
// non-nil; rdb and notifier may be nil to disable the replay cache and
// notification dispatch respectively.
func NewEngine(bookings BookingStore, events EventStore, rdb *redis.Client, notifier Notifier) *Engine {
    if bookings == nil || events == nil {
        panic("nil store passed to NewEngine")
    }
    return &Engine{bookings: bookings, events: events, rdb: rdb, notifier: notifier}
}

// replayKey builds the redis key caching a processed event id.
func replayKey(eventID string) string { return "gwevt:" + eventID }

// Apply maps one authenticated gateway event onto a booking state
// transition.  The sequence guarantees at-most-once application:
//
//  1. replay check against the processed-event set (redis fast path
//     first, durable table as authority);
//  2. booking lookup by order id — an unknown order acknowledges
//     without action;
//  3. transition with the freshly read version, re-reading and
//     retrying a bounded number of times on version conflicts;
//  4. the event id is recorded only after the transition succeeds, so
//     a crash in between costs a harmless retry, never a lost update.
//
// A non-nil error means the event must be redelivered; every other
// outcome is a success acknowledgement to the gateway.
func (e *Engine) Apply(ctx context.Context, ev Event) (Outcome, error) {
    // Fast-path replay filter.  Errors degrade to the durable check.
    if e.rdb != nil {
        if n, err := e.rdb.Exists(ctx, replayKey(ev.ID)).Result(); err == nil && n > 0 {
            return OutcomeReplay, nil
        }
    }
    seen, err := e.events.Seen(ctx, ev.ID)
    if err != nil {
        return 0, err
    }
    if seen {
        return OutcomeReplay, nil
    }

    target, ok := targetState(ev.Type)
    if !ok {
        // Unknown event class: acknowledge so the gateway stops
        // redelivering, but record nothing.
        log.Printf("reconcile: ignoring event type %s (id=%s)", ev.Type, ev.ID)
        return OutcomeIgnored, nil
    }

    booking, err := e.bookings.GetByOrderID(ctx, ev.OrderID)
    if errors.Is(err, repository.ErrBookingNotFound) {
        // The order may have been created by another system, garbage
        // collected, or orphaned by a payment retry.  Acknowledged
        // without action; see DESIGN.md.
        log.Printf("reconcile: no booking for order in event type %s (id=%s)", ev.Type, ev.ID)
        return OutcomeUnknownOrder, nil
    }
    if err != nil {
        return 0, err
    }

    var paymentID *string
    if ev.PaymentID != "" {
        paymentID = &ev.PaymentID
    }

    applied := booking
    moved := false
    for attempt := 1; ; attempt++ {
        if booking.State == target {
            // The mapped transition is already reflected — a racing
            // delivery of this event got there first.  Fall through to
            // recording so redeliveries stop.
            applied = booking
            break
        }
        updated, err := e.bookings.Transition(ctx, booking.ID, booking.Version, target, paymentID)
        if err == nil {
            applied = updated
            moved = true
            break
        }
        if errors.Is(err, repository.ErrInvalidTransition) {
            // The booking sits in a state this event cannot move (for
            // example a capture arriving after an admin cancellation).
            // Record the event so the gateway stops resending, leave
            // the booking untouched, and flag for review.
            log.Printf("reconcile: event type %s cannot apply to booking %d in state %s (id=%s)",
                ev.Type, booking.ID, booking.State, ev.ID)
            e.record(ctx, ev)
            return OutcomeIgnored, nil
        }
        if !errors.Is(err, repository.ErrVersionConflict) {
            return 0, err
        }
        if attempt >= maxTransitionAttempts {
            log.Printf("reconcile: conflict retries exhausted for booking %d (event id=%s)", booking.ID, ev.ID)
            return 0, ErrReconciliationConflict
        }
        // Lost the race: re-read and retry the mapped transition.
        booking, err = e.bookings.GetByOrderID(ctx, ev.OrderID)
        if errors.Is(err, repository.ErrBookingNotFound) {
            // A concurrent retry re-bound the order; the event now
            // references an orphan.
            return OutcomeUnknownOrder, nil
        }
        if err != nil {
            return 0, err
        }
    }

    // Record only after the transition is durable.
    if err := e.record(ctx, ev); err != nil {
        return 0, err
    }

    // Settlement publishes once per settlement: a delivery that found
    // the transition already reflected must not emit a second message.
    if moved {
        e.notify(applied, ev)
    }
    return OutcomeApplied, nil
}

// record inserts the event into the processed-event set and primes the
// redis replay cache.  Losing the insert race to a concurrent delivery
// is fine — the transition idempotency above already held.
func (e *Engine) record(ctx context.Context, ev Event) error {
    err := e.events.MarkProcessed(ctx, ev.ID, ev.Type, ev.OrderID)
    if err != nil && !errors.Is(err, repository.ErrEventSeen) {
        return err
    }
    if e.rdb != nil {
        // Best effort; the durable set remains the authority.
        e.rdb.Set(ctx, replayKey(ev.ID), 1, 24*time.Hour)
    }
    return nil
}

// notify hands the settlement to the notifier off the webhook's
// critical path.  Failures are logged and dropped; notification is
// deferred work, not part of reconciliation.
func (e *Engine) notify(b *model.Booking, ev Event) {
    if e.notifier == nil {
        return
    }
    msg := queue.BookingSettledEvent{
        BookingID:      b.ID,
        CustomerID:     b.CustomerID,
        ServiceRef:     b.ServiceRef,
        State:          b.State,
        AmountMinor:    b.AmountMinor,
        GatewayOrderID: ev.OrderID,
        GatewayEventID: ev.ID,
        SettledAt:      time.Now().UTC().Format(time.RFC3339),
    }
    if b.GatewayPaymentID != nil {
        msg.GatewayPaymentID = *b.GatewayPaymentID
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := e.notifier.PublishBookingSettled(ctx, msg); err != nil {
            log.Printf("reconcile: settlement publish failed for booking %d: %v", b.ID, err)
        }
    }()
}
