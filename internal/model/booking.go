package model

import "time"

// Booking state values as stored in the `bookings.state` column.  A
// booking moves through these states under control of the reconciliation
// engine and the customer/admin facing handlers; no handler writes the
// column directly.
const (
    StatePending         = "PENDING"          // created, no gateway order yet
    StateAwaitingPayment = "AWAITING_PAYMENT" // gateway order attached, waiting for webhook
    StatePaid            = "PAID"             // gateway reported capture (terminal for forward flow)
    StateFailed          = "FAILED"           // gateway reported failure (customer may retry)
    StateCancelled       = "CANCELLED"        // cancelled by customer or staff (terminal)
    StateRefunded        = "REFUNDED"         // gateway confirmed refund of a paid booking (terminal)
)

// Booking records a customer's scheduled service together with its
// payment lifecycle.  Each field corresponds to a column in the
// `bookings` table.  The Version column implements optimistic
// concurrency: every successful state change increments it, and
// writers must present the version they read.
//
// Fields:
//  ID               – primary key identifier.
//  CustomerID       – user who made the booking.
//  ServiceRef       – opaque reference into the service catalog.
//  Slot             – scheduled pickup/delivery slot (UTC).
//  AmountMinor      – amount due in minor currency units.
//  State            – lifecycle state, one of the State* constants.
//  GatewayOrderID   – gateway order handle (nullable until payment initiated).
//  GatewayPaymentID – gateway payment handle (nullable until settled).
//  Version          – monotonic counter for optimistic concurrency.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Booking struct {
    ID               uint64     // bookings.id
    CustomerID       uint64     // bookings.customer_id
    ServiceRef       string     // bookings.service_ref
    Slot             time.Time  // bookings.slot
    AmountMinor      int64      // bookings.amount_minor
    State            string     // bookings.state
    GatewayOrderID   *string    // bookings.gateway_order_id (nullable)
    GatewayPaymentID *string    // bookings.gateway_payment_id (nullable)
    Version          uint64     // bookings.version
    CreatedAt        time.Time  // bookings.created_at
    UpdatedAt        time.Time  // bookings.updated_at
}

// transitions enumerates every legal state edge.  Anything not listed
// here is rejected by the store with ErrInvalidTransition.  PAID,
// CANCELLED and REFUNDED are terminal for the forward payment flow;
// the only way out of PAID is the explicit refund path.
var transitions = map[string]map[string]bool{
    StatePending: {
        StateAwaitingPayment: true, // order attached
        StateCancelled:       true, // cancelled before payment initiated
    },
    StateAwaitingPayment: {
        StatePaid:      true, // gateway reported capture
        StateFailed:    true, // gateway reported failure
        StateCancelled: true, // cancelled while waiting
    },
    StateFailed: {
        StateAwaitingPayment: true, // customer retries with a fresh order
    },
    StatePaid: {
        StateRefunded: true, // admin refund confirmed by the gateway
    },
}

// CanTransition reports whether moving a booking from `from` to `to`
// follows a legal edge of the lifecycle graph.
func CanTransition(from, to string) bool {
    return transitions[from][to]
}

// CanAttachOrder reports whether a gateway order may be bound to a
// booking in the given state.  Allowed from PENDING while no order is
// bound yet (first payment attempt) and from FAILED, where the fresh
// order replaces the orphaned one on a customer retry.
func CanAttachOrder(state string, hasOrder bool) bool {
    switch state {
    case StatePending:
        return !hasOrder
    case StateFailed:
        return true
    }
    return false
}

// ValidState reports whether s is one of the known booking states.
func ValidState(s string) bool {
    switch s {
    case StatePending, StateAwaitingPayment, StatePaid, StateFailed, StateCancelled, StateRefunded:
        return true
    }
    return false
}
