package handler

import (
    "context"  // store interface signatures
    "errors"   // errors.Is comparisons against repository sentinels
    "net/http" // HTTP status codes
    "strconv"  // parsing path parameters
    "time"     // slot parsing and timestamps

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/freshfold/booking-api/internal/gateway"    // payment gateway adapter
    "github.com/freshfold/booking-api/internal/middleware" // identity extraction from context
    "github.com/freshfold/booking-api/internal/model"      // booking states and roles
    "github.com/freshfold/booking-api/internal/repository" // repository layer
)

// BookingStore is the slice of the booking repository the handlers
// need.  *repository.BookingRepo satisfies it; bookings change state
// only through AttachOrder and Transition.
type BookingStore interface {
    Create(ctx context.Context, customerID uint64, serviceRef string, slot time.Time, amountMinor int64) (*model.Booking, error)
    GetByID(ctx context.Context, id uint64) (*model.Booking, error)
    ListByCustomer(ctx context.Context, customerID uint64) ([]model.Booking, error)
    AttachOrder(ctx context.Context, bookingID, expectedVersion uint64, orderID string) (*model.Booking, error)
    Transition(ctx context.Context, bookingID, expectedVersion uint64, target string, paymentID *string) (*model.Booking, error)
}

// BookingHandler groups the booking store and the gateway adapter for
// the customer and staff booking endpoints.  All methods assume JWT
// authentication and role validation has already run in middleware;
// ownership checks for customers happen here.
type BookingHandler struct {
    Bookings BookingStore    // booking store, the source of truth
    Gateway  *gateway.Client // order creation and refunds
}

// NewBookingHandler constructs a BookingHandler.  Both dependencies
// must be non-nil.
func NewBookingHandler(bookings BookingStore, gw *gateway.Client) *BookingHandler {
    if bookings == nil || gw == nil {
        panic("nil dependency passed to NewBookingHandler")
    }
    return &BookingHandler{Bookings: bookings, Gateway: gw}
}

// bookingResp is the JSON shape returned for a booking snapshot.  The
// version is included so clients can retry conflicted updates.
type bookingResp struct {
    ID               uint64  `json:"id"`
    CustomerID       uint64  `json:"customer_id"`
    ServiceRef       string  `json:"service_ref"`
    Slot             string  `json:"slot"`
    AmountMinor      int64   `json:"amount_minor"`
    State            string  `json:"state"`
    GatewayOrderID   *string `json:"gateway_order_id,omitempty"`
    GatewayPaymentID *string `json:"gateway_payment_id,omitempty"`
    Version          uint64  `json:"version"`
    CreatedAt        string  `json:"created_at"`
    UpdatedAt        string  `json:"updated_at"`
}

func toBookingResp(b *model.Booking) bookingResp {
    return bookingResp{
        ID:               b.ID,
        CustomerID:       b.CustomerID,
        ServiceRef:       b.ServiceRef,
        Slot:             b.Slot.UTC().Format(time.RFC3339),
        AmountMinor:      b.AmountMinor,
        State:            b.State,
        GatewayOrderID:   b.GatewayOrderID,
        GatewayPaymentID: b.GatewayPaymentID,
        Version:          b.Version,
        CreatedAt:        b.CreatedAt.UTC().Format(time.RFC3339),
        UpdatedAt:        b.UpdatedAt.UTC().Format(time.RFC3339),
    }
}

// bookingID parses the :id path parameter.
func bookingID(c echo.Context) (uint64, error) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return 0, errors.New("invalid booking id")
    }
    return id, nil
}

// isStaff reports whether the request carries an admin or employee role.
func isStaff(c echo.Context) bool {
    switch middleware.Role(c) {
    case model.RoleAdmin, model.RoleEmployee:
        return true
    }
    return false
}

// CreateBooking handles POST /v1/bookings.  It creates a PENDING
// booking, asks the gateway to mint an order, and attaches the order
// to move the booking to AWAITING_PAYMENT.  When the gateway is
// unreachable the booking stays PENDING with no order attached and the
// client receives 502; re-posting is safe because nothing partial was
// committed.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        ServiceRef  string `json:"service_ref"`
        Slot        string `json:"slot"`
        AmountMinor int64  `json:"amount_minor"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.ServiceRef == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "service_ref is required"})
    }
    if body.AmountMinor <= 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_minor must be positive"})
    }
    slot, err := time.Parse(time.RFC3339, body.Slot)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "slot must be RFC3339"})
    }

    ctx := c.Request().Context()
    booking, err := h.Bookings.Create(ctx, uid, body.ServiceRef, slot, body.AmountMinor)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create booking failed"})
    }

    orderID, err := h.Gateway.CreateOrder(ctx, booking.ID, booking.AmountMinor)
    if err != nil {
        if errors.Is(err, gateway.ErrGatewayUnavailable) {
            // Booking remains PENDING with nothing attached; the client
            // may retry creation safely.
            return c.JSON(http.StatusBadGateway, echo.Map{
                "error":   "payment gateway unavailable",
                "booking": toBookingResp(booking),
            })
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "order creation failed"})
    }

    booking, err = h.Bookings.AttachOrder(ctx, booking.ID, booking.Version, orderID)
    if err != nil {
        if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrInvalidTransition) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking changed concurrently"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "attach order failed"})
    }
    return c.JSON(http.StatusCreated, toBookingResp(booking))
}

// GetBooking handles GET /v1/bookings/:id.  Customers may only read
// their own bookings; admins and employees may read any.
func (h *BookingHandler) GetBooking(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := bookingID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    booking, err := h.Bookings.GetByID(c.Request().Context(), id)
    if err != nil {
        if errors.Is(err, repository.ErrBookingNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if !isStaff(c) && booking.CustomerID != uid {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    return c.JSON(http.StatusOK, toBookingResp(booking))
}

// ListMyBookings handles GET /v1/my-bookings for customers.
func (h *BookingHandler) ListMyBookings(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bookings, err := h.Bookings.ListByCustomer(c.Request().Context(), uid)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    out := make([]bookingResp, 0, len(bookings))
    for i := range bookings {
        out = append(out, toBookingResp(&bookings[i]))
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// CancelBooking handles POST /v1/bookings/:id/cancel.  Allowed for the
// owning customer and for staff, from PENDING or AWAITING_PAYMENT
// only.  The transition uses the version just read, so a webhook
// racing this cancellation is linearized by the store.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := bookingID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    ctx := c.Request().Context()
    booking, err := h.Bookings.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrBookingNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if !isStaff(c) && booking.CustomerID != uid {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }

    booking, err = h.Bookings.Transition(ctx, booking.ID, booking.Version, model.StateCancelled, nil)
    if err != nil {
        if errors.Is(err, repository.ErrVersionConflict) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking changed concurrently, retry"})
        }
        if errors.Is(err, repository.ErrInvalidTransition) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking cannot be cancelled in its current state"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
    }
    return c.JSON(http.StatusOK, toBookingResp(booking))
}

// RetryPayment handles POST /v1/bookings/:id/retry-payment.  A FAILED
// booking gets a fresh gateway order and moves back to
// AWAITING_PAYMENT; the previous order id is orphaned, so a late
// webhook for it resolves no booking and is a safe no-op.
func (h *BookingHandler) RetryPayment(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, err := bookingID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    ctx := c.Request().Context()
    booking, err := h.Bookings.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrBookingNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if booking.CustomerID != uid {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    if booking.State != model.StateFailed {
        return c.JSON(http.StatusConflict, echo.Map{"error": "only failed bookings can retry payment"})
    }

    orderID, err := h.Gateway.CreateOrder(ctx, booking.ID, booking.AmountMinor)
    if err != nil {
        if errors.Is(err, gateway.ErrGatewayUnavailable) {
            return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway unavailable"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "order creation failed"})
    }

    booking, err = h.Bookings.AttachOrder(ctx, booking.ID, booking.Version, orderID)
    if err != nil {
        if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrInvalidTransition) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking changed concurrently, retry"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "attach order failed"})
    }
    return c.JSON(http.StatusOK, toBookingResp(booking))
}

// RefundBooking handles POST /v1/bookings/:id/refund (admin only).  It
// initiates a refund at the gateway for a PAID booking.  The booking
// does not move to REFUNDED here — only the gateway's
// refund.processed webhook, applied by the reconciliation engine,
// confirms the state change.  202 signals the refund is in flight.
func (h *BookingHandler) RefundBooking(c echo.Context) error {
    id, err := bookingID(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    ctx := c.Request().Context()
    booking, err := h.Bookings.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrBookingNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if booking.State != model.StatePaid || booking.GatewayPaymentID == nil {
        return c.JSON(http.StatusConflict, echo.Map{"error": "only paid bookings can be refunded"})
    }

    refundID, err := h.Gateway.CreateRefund(ctx, *booking.GatewayPaymentID, booking.AmountMinor)
    if err != nil {
        if errors.Is(err, gateway.ErrGatewayUnavailable) {
            return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway unavailable"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refund initiation failed"})
    }
    return c.JSON(http.StatusAccepted, echo.Map{
        "refund_id": refundID,
        "booking":   toBookingResp(booking),
    })
}
