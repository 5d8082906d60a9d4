package reconcile

import (
    "encoding/json"
    "errors"

    "github.com/freshfold/booking-api/internal/model"
)

// Gateway event types the engine understands.  Anything else is
// acknowledged and skipped so unknown event classes never cause
// redelivery storms.
const (
    EventPaymentCaptured = "payment.captured"
    EventPaymentFailed   = "payment.failed"
    EventRefundProcessed = "refund.processed"
)

// Event is a parsed gateway webhook notification.  The gateway
// supplies the event id; it keys the processed-event set, so for a
// given id the transition it maps to is applied at most once no matter
// how many times the gateway redelivers.  Events are transient — only
// the id (plus type and order id for operator review) is persisted.
type Event struct {
    ID        string // gateway-assigned unique event id
    Type      string // event class, e.g. payment.captured
    OrderID   string // gateway order the event refers to
    PaymentID string // gateway payment handle, when the event carries one
}

// wireEvent mirrors the gateway's webhook JSON envelope.
type wireEvent struct {
    ID      string `json:"id"`
    Event   string `json:"event"`
    Payload struct {
        Payment struct {
            Entity struct {
                ID      string `json:"id"`
                OrderID string `json:"order_id"`
            } `json:"entity"`
        } `json:"payment"`
        Refund struct {
            Entity struct {
                ID        string `json:"id"`
                PaymentID string `json:"payment_id"`
            } `json:"entity"`
        } `json:"refund"`
    } `json:"payload"`
}

// ParseEvent decodes a raw webhook body.  The caller must have
// verified the payload's signature first; parsing performs no state
// changes.  An event without an id or order reference is malformed.
func ParseEvent(raw []byte) (Event, error) {
    var w wireEvent
    if err := json.Unmarshal(raw, &w); err != nil {
        return Event{}, err
    }
    ev := Event{
        ID:        w.ID,
        Type:      w.Event,
        OrderID:   w.Payload.Payment.Entity.OrderID,
        PaymentID: w.Payload.Payment.Entity.ID,
    }
    if ev.PaymentID == "" {
        ev.PaymentID = w.Payload.Refund.Entity.PaymentID
    }
    if ev.ID == "" || ev.Type == "" {
        return Event{}, errors.New("malformed gateway event")
    }
    if ev.OrderID == "" {
        return Event{}, errors.New("gateway event missing order reference")
    }
    return ev, nil
}

// targetState maps an event type onto the booking state it drives.
// The boolean is false for event classes the engine does not act on.
func targetState(eventType string) (string, bool) {
    switch eventType {
    case EventPaymentCaptured:
        return model.StatePaid, true
    case EventPaymentFailed:
        return model.StateFailed, true
    case EventRefundProcessed:
        return model.StateRefunded, true
    }
    return "", false
}
