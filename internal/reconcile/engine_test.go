package reconcile

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/freshfold/booking-api/internal/model"
    "github.com/freshfold/booking-api/internal/queue"
    "github.com/freshfold/booking-api/internal/repository"
)

// fakeBookings is an in-memory booking store enforcing the same
// optimistic-versioning and lifecycle rules as the SQL repository.
type fakeBookings struct {
    mu sync.Mutex
    // byID owns the records; byOrder indexes them by gateway order id.
    byID    map[uint64]*model.Booking
    byOrder map[string]uint64
    // conflictsLeft forces the next N Transition calls to lose the
    // optimistic race, simulating concurrent writers.
    conflictsLeft int
    transitions   int
}

func newFakeBookings() *fakeBookings {
    return &fakeBookings{byID: map[uint64]*model.Booking{}, byOrder: map[string]uint64{}}
}

func (f *fakeBookings) add(b model.Booking) {
    f.mu.Lock()
    defer f.mu.Unlock()
    cp := b
    f.byID[b.ID] = &cp
    if b.GatewayOrderID != nil {
        f.byOrder[*b.GatewayOrderID] = b.ID
    }
}

func (f *fakeBookings) get(id uint64) model.Booking {
    f.mu.Lock()
    defer f.mu.Unlock()
    return *f.byID[id]
}

func (f *fakeBookings) GetByOrderID(_ context.Context, orderID string) (*model.Booking, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    id, ok := f.byOrder[orderID]
    if !ok {
        return nil, repository.ErrBookingNotFound
    }
    cp := *f.byID[id]
    return &cp, nil
}

func (f *fakeBookings) Transition(_ context.Context, bookingID, expectedVersion uint64, target string, paymentID *string) (*model.Booking, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.transitions++
    if f.conflictsLeft > 0 {
        f.conflictsLeft--
        return nil, repository.ErrVersionConflict
    }
    b, ok := f.byID[bookingID]
    if !ok {
        return nil, repository.ErrBookingNotFound
    }
    if b.Version != expectedVersion {
        return nil, repository.ErrVersionConflict
    }
    if !model.CanTransition(b.State, target) {
        return nil, repository.ErrInvalidTransition
    }
    b.State = target
    if paymentID != nil {
        v := *paymentID
        b.GatewayPaymentID = &v
    }
    b.Version++
    b.UpdatedAt = time.Now().UTC()
    cp := *b
    return &cp, nil
}

// fakeEvents is an in-memory processed-event set with atomic
// check-and-insert semantics.
type fakeEvents struct {
    mu  sync.Mutex
    ids map[string]bool
}

func newFakeEvents() *fakeEvents { return &fakeEvents{ids: map[string]bool{}} }

func (f *fakeEvents) MarkProcessed(_ context.Context, eventID, _, _ string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.ids[eventID] {
        return repository.ErrEventSeen
    }
    f.ids[eventID] = true
    return nil
}

func (f *fakeEvents) Seen(_ context.Context, eventID string) (bool, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.ids[eventID], nil
}

// fakeNotifier records published settlement events on a channel so
// tests can wait for the asynchronous dispatch.
type fakeNotifier struct {
    ch chan queue.BookingSettledEvent
}

func newFakeNotifier() *fakeNotifier {
    return &fakeNotifier{ch: make(chan queue.BookingSettledEvent, 8)}
}

func (f *fakeNotifier) PublishBookingSettled(_ context.Context, ev queue.BookingSettledEvent) error {
    f.ch <- ev
    return nil
}

func awaitingBooking(id uint64, orderID string, version uint64) model.Booking {
    o := orderID
    return model.Booking{
        ID:             id,
        CustomerID:     99,
        ServiceRef:     "svc_wash_fold",
        AmountMinor:    50000,
        State:          model.StateAwaitingPayment,
        GatewayOrderID: &o,
        Version:        version,
    }
}

func capturedEvent(eventID, orderID string) Event {
    return Event{ID: eventID, Type: EventPaymentCaptured, OrderID: orderID, PaymentID: "pay_1"}
}

func TestApplyCapture(t *testing.T) {
    t.Parallel()

    bookings := newFakeBookings()
    bookings.add(awaitingBooking(1, "order_1", 2))
    events := newFakeEvents()
    notifier := newFakeNotifier()
    engine := NewEngine(bookings, events, nil, notifier)

    outcome, err := engine.Apply(context.Background(), capturedEvent("evt_1", "order_1"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeApplied, outcome)

    got := bookings.get(1)
    assert.Equal(t, model.StatePaid, got.State)
    assert.Equal(t, uint64(3), got.Version)
    require.NotNil(t, got.GatewayPaymentID)
    assert.Equal(t, "pay_1", *got.GatewayPaymentID)

    seen, err := events.Seen(context.Background(), "evt_1")
    require.NoError(t, err)
    assert.True(t, seen)

    select {
    case msg := <-notifier.ch:
        assert.Equal(t, uint64(1), msg.BookingID)
        assert.Equal(t, model.StatePaid, msg.State)
        assert.Equal(t, "evt_1", msg.GatewayEventID)
    case <-time.After(2 * time.Second):
        t.Fatal("settlement notification was not published")
    }
}

func TestApplyReplayIsNoOp(t *testing.T) {
    t.Parallel()

    bookings := newFakeBookings()
    bookings.add(awaitingBooking(1, "order_1", 2))
    events := newFakeEvents()
    engine := NewEngine(bookings, events, nil, nil)

    ev := capturedEvent("evt_1", "order_1")
    outcome, err := engine.Apply(context.Background(), ev)
    require.NoError(t, err)
    require.Equal(t, OutcomeApplied, outcome)
    afterFirst := bookings.get(1)

    // Redeliver the same event id several times: exactly one
    // transition total, replays acknowledged as success.
    for i := 0; i < 3; i++ {
        outcome, err = engine.Apply(context.Background(), ev)
        require.NoError(t, err)
        assert.Equal(t, OutcomeReplay, outcome)
    }
    got := bookings.get(1)
    assert.Equal(t, afterFirst.State, got.State)
    assert.Equal(t, afterFirst.Version, got.Version)
}

func TestApplyFailureEvent(t *testing.T) {
    t.Parallel()

    bookings := newFakeBookings()
    bookings.add(awaitingBooking(4, "order_4", 2))
    events := newFakeEvents()
    engine := NewEngine(bookings, events, nil, nil)

    ev := Event{ID: "evt_f", Type: EventPaymentFailed, OrderID: "order_4", PaymentID: "pay_f"}
    outcome, err := engine.Apply(context.Background(), ev)
    require.NoError(t, err)
    assert.Equal(t, OutcomeApplied, outcome)
    assert.Equal(t, model.StateFailed, bookings.get(4).State)
}

func TestApplyUnknownOrder(t *testing.T) {
    t.Parallel()

    bookings := newFakeBookings()
    events := newFakeEvents()
    engine := NewEngine(bookings, events, nil, nil)

    // The order was never created here, or was orphaned by a payment
    // retry: acknowledged, nothing applied.
    outcome, err := engine.Apply(context.Background(), capturedEvent("evt_x", "order_unknown"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeUnknownOrder, outcome)
    assert.Zero(t, bookings.transitions)
}

func TestApplyUnknownEventType(t *testing.T) {
    t.Parallel()

    bookings := newFakeBookings()
    bookings.add(awaitingBooking(1, "order_1", 2))
    engine := NewEngine(bookings, newFakeEvents(), nil, nil)

    outcome, err := engine.Apply(context.Background(), Event{ID: "evt_o", Type: "order.created", OrderID: "order_1"})
    require.NoError(t, err)
    assert.Equal(t, OutcomeIgnored, outcome)
    assert.Zero(t, bookings.transitions)
}

func TestApplyRetriesVersionConflict(t *testing.T) {
    t.Parallel()

    bookings := newFakeBookings()
    bookings.add(awaitingBooking(2, "order_2", 5))
    bookings.conflictsLeft = 2 // lose the race twice, then win
    events := newFakeEvents()
    engine := NewEngine(bookings, events, nil, nil)

    outcome, err := engine.Apply(context.Background(), capturedEvent("evt_2", "order_2"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeApplied, outcome)
    assert.Equal(t, model.StatePaid, bookings.get(2).State)
    assert.Equal(t, 3, bookings.transitions)
}

func TestApplyConflictRetriesExhausted(t *testing.T) {
    t.Parallel()

    bookings := newFakeBookings()
    bookings.add(awaitingBooking(3, "order_3", 1))
    bookings.conflictsLeft = maxTransitionAttempts + 1
    events := newFakeEvents()
    engine := NewEngine(bookings, events, nil, nil)

    _, err := engine.Apply(context.Background(), capturedEvent("evt_3", "order_3"))
    require.ErrorIs(t, err, ErrReconciliationConflict)

    // Not recorded as processed: the gateway must redeliver so the
    // event is never lost.
    seen, err := events.Seen(context.Background(), "evt_3")
    require.NoError(t, err)
    assert.False(t, seen)
}

func TestApplyCaptureOnCancelledBooking(t *testing.T) {
    t.Parallel()

    b := awaitingBooking(5, "order_5", 3)
    b.State = model.StateCancelled
    bookings := newFakeBookings()
    bookings.add(b)
    events := newFakeEvents()
    engine := NewEngine(bookings, events, nil, nil)

    // A capture cannot move a cancelled booking; the event is recorded
    // so the gateway stops resending, and the booking is untouched.
    outcome, err := engine.Apply(context.Background(), capturedEvent("evt_5", "order_5"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeIgnored, outcome)

    got := bookings.get(5)
    assert.Equal(t, model.StateCancelled, got.State)
    assert.Equal(t, uint64(3), got.Version)

    seen, err := events.Seen(context.Background(), "evt_5")
    require.NoError(t, err)
    assert.True(t, seen)
}

func TestApplyAlreadyInTargetState(t *testing.T) {
    t.Parallel()

    b := awaitingBooking(6, "order_6", 4)
    b.State = model.StatePaid
    bookings := newFakeBookings()
    bookings.add(b)
    events := newFakeEvents()
    notifier := newFakeNotifier()
    engine := NewEngine(bookings, events, nil, notifier)

    // A racing delivery already applied the capture under a different
    // code path; this one just records and acknowledges.
    outcome, err := engine.Apply(context.Background(), capturedEvent("evt_6", "order_6"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeApplied, outcome)
    assert.Equal(t, uint64(4), bookings.get(6).Version)
    assert.Zero(t, bookings.transitions)

    // Nothing was applied, so no second settlement message goes out.
    select {
    case <-notifier.ch:
        t.Fatal("settlement published for an already-reflected event")
    case <-time.After(100 * time.Millisecond):
    }
}

func TestApplyRefundFlow(t *testing.T) {
    t.Parallel()

    pay := "pay_1"
    b := awaitingBooking(7, "order_7", 3)
    b.State = model.StatePaid
    b.GatewayPaymentID = &pay
    bookings := newFakeBookings()
    bookings.add(b)
    events := newFakeEvents()
    engine := NewEngine(bookings, events, nil, nil)

    ev := Event{ID: "evt_r", Type: EventRefundProcessed, OrderID: "order_7", PaymentID: "pay_1"}
    outcome, err := engine.Apply(context.Background(), ev)
    require.NoError(t, err)
    assert.Equal(t, OutcomeApplied, outcome)
    assert.Equal(t, model.StateRefunded, bookings.get(7).State)
}

func TestApplyConcurrentSameEvent(t *testing.T) {
    t.Parallel()

    bookings := newFakeBookings()
    bookings.add(awaitingBooking(8, "order_8", 2))
    events := newFakeEvents()
    engine := NewEngine(bookings, events, nil, nil)

    ev := capturedEvent("evt_8", "order_8")
    const n = 8
    var wg sync.WaitGroup
    outcomes := make([]Outcome, n)
    errs := make([]error, n)
    for i := 0; i < n; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            outcomes[i], errs[i] = engine.Apply(context.Background(), ev)
        }(i)
    }
    wg.Wait()

    for i := 0; i < n; i++ {
        require.NoError(t, errs[i])
    }
    // All deliveries acknowledge, the booking lands in PAID exactly
    // one version later.
    got := bookings.get(8)
    assert.Equal(t, model.StatePaid, got.State)
    assert.Equal(t, uint64(3), got.Version)
}
