package handler

import (
    "errors"
    "io"
    "log"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/freshfold/booking-api/internal/gateway"
    "github.com/freshfold/booking-api/internal/reconcile"
)

// SignatureHeader is the request header carrying the gateway's hex
// HMAC-SHA256 signature of the raw payload.
const SignatureHeader = "X-Webhook-Signature"

// WebhookHandler is the gateway-facing entry point of the
// reconciliation engine.  The route carries no user authentication —
// the payload signature is the trust boundary.
type WebhookHandler struct {
    Gateway *gateway.Client
    Engine  *reconcile.Engine
}

// NewWebhookHandler constructs a WebhookHandler.  Both dependencies
// must be non-nil.
func NewWebhookHandler(gw *gateway.Client, engine *reconcile.Engine) *WebhookHandler {
    if gw == nil || engine == nil {
        panic("nil dependency passed to NewWebhookHandler")
    }
    return &WebhookHandler{Gateway: gw, Engine: engine}
}

// HandlePayment handles POST /v1/webhooks/payment.  The signature is
// verified over the raw body before any parsing; a mismatch rejects
// the delivery with 400 and touches nothing — no booking lookup, no
// state change.  Payload contents are never logged; only the event
// type reaches the log so secrets cannot leak through it.  Everything
// after authentication acknowledges promptly: replays, unknown orders
// and skipped event classes all return 200 so the gateway stops
// redelivering, while genuine failures return 500 to trigger a
// redelivery.
func (h *WebhookHandler) HandlePayment(c echo.Context) error {
    body, err := io.ReadAll(c.Request().Body)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
    }

    if !h.Gateway.VerifySignature(body, c.Request().Header.Get(SignatureHeader)) {
        // Security-relevant rejection: alertable, but carries no
        // payload detail.
        log.Printf("webhook: signature verification failed")
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
    }

    ev, err := reconcile.ParseEvent(body)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed event"})
    }

    outcome, err := h.Engine.Apply(c.Request().Context(), ev)
    if err != nil {
        if errors.Is(err, reconcile.ErrReconciliationConflict) {
            // Exhausted retries: surface for operator review and let
            // the gateway redeliver; never silently dropped.
            log.Printf("webhook: reconciliation conflict for event type %s", ev.Type)
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reconciliation conflict"})
        }
        log.Printf("webhook: apply failed for event type %s: %v", ev.Type, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }

    switch outcome {
    case reconcile.OutcomeReplay:
        return c.JSON(http.StatusOK, echo.Map{"status": "already processed"})
    case reconcile.OutcomeUnknownOrder:
        return c.JSON(http.StatusOK, echo.Map{"status": "no matching booking"})
    case reconcile.OutcomeIgnored:
        return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
    default:
        return c.JSON(http.StatusOK, echo.Map{"status": "processed"})
    }
}
