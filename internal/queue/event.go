// Package queue defines message payloads exchanged over the message broker.
package queue

// BookingSettledEvent is published after the reconciliation engine has
// applied a gateway event to a booking.  It carries enough information
// for downstream consumers (notification dispatch, analytics) to act
// without querying the primary database.  Publishing is deferred work:
// the webhook acknowledgement never waits on it.
type BookingSettledEvent struct {
    BookingID        uint64 `json:"booking_id"`
    CustomerID       uint64 `json:"customer_id"`
    ServiceRef       string `json:"service_ref"`
    State            string `json:"state"`
    AmountMinor      int64  `json:"amount_minor"`
    GatewayOrderID   string `json:"gateway_order_id"`
    GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
    GatewayEventID   string `json:"gateway_event_id"`
    SettledAt        string `json:"settled_at"`
}
