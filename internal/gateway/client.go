// Package gateway talks to the external payment gateway: it mints
// orders for bookings, initiates refunds, and authenticates inbound
// webhooks against the shared webhook secret.  It is the only package
// that performs outbound network I/O in the payment path.
package gateway

import (
    "bytes"
    "context"
    "crypto/hmac"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "time"
)

// ErrGatewayUnavailable is returned for every transport-level failure
// when calling the gateway: connection errors, timeouts, and non-2xx
// responses.  It is retryable; the caller commits no booking state
// before a gateway call succeeds, so retrying is always safe.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Client is a thin HTTP client for the gateway's order and refund
// APIs.  Requests authenticate with the API key pair via basic auth;
// webhook verification uses the separate webhook secret.  All calls
// are bounded by the HTTP client's timeout so no request path can hang
// on a slow gateway.
type Client struct {
    baseURL       string
    keyID         string
    keySecret     string
    webhookSecret string
    http          *http.Client
}

// NewClient builds a gateway client.  timeout bounds every outbound
// call; pass the configured GATEWAY_TIMEOUT_MS value.
func NewClient(baseURL, keyID, keySecret, webhookSecret string, timeout time.Duration) *Client {
    return &Client{
        baseURL:       baseURL,
        keyID:         keyID,
        keySecret:     keySecret,
        webhookSecret: webhookSecret,
        http:          &http.Client{Timeout: timeout},
    }
}

// orderRequest is the body sent to the gateway's order-creation API.
// The booking id doubles as the gateway-side receipt reference.
type orderRequest struct {
    Amount   int64  `json:"amount"`
    Currency string `json:"currency"`
    Receipt  string `json:"receipt"`
}

type orderResponse struct {
    ID string `json:"id"`
}

// CreateOrder asks the gateway to mint an order for the given amount
// (minor currency units) and returns the gateway's order identifier.
// The booking remains untouched until this call succeeds, so a failure
// here is safe to retry at the booking level.
func (c *Client) CreateOrder(ctx context.Context, bookingID uint64, amountMinor int64) (string, error) {
    body := orderRequest{
        Amount:   amountMinor,
        Currency: "INR",
        Receipt:  fmt.Sprintf("booking_%d", bookingID),
    }
    var resp orderResponse
    if err := c.post(ctx, "/v1/orders", body, &resp); err != nil {
        return "", err
    }
    if resp.ID == "" {
        return "", ErrGatewayUnavailable
    }
    return resp.ID, nil
}

// refundRequest is the body sent when initiating a refund of a
// captured payment.
type refundRequest struct {
    Amount int64 `json:"amount"`
}

type refundResponse struct {
    ID string `json:"id"`
}

// CreateRefund initiates a refund of a captured payment.  The booking
// does not move to REFUNDED here; that happens only when the gateway
// confirms via a refund.processed webhook, keeping booking state a
// function of applied gateway events.
func (c *Client) CreateRefund(ctx context.Context, paymentID string, amountMinor int64) (string, error) {
    var resp refundResponse
    path := "/v1/payments/" + paymentID + "/refund"
    if err := c.post(ctx, path, refundRequest{Amount: amountMinor}, &resp); err != nil {
        return "", err
    }
    if resp.ID == "" {
        return "", ErrGatewayUnavailable
    }
    return resp.ID, nil
}

// post marshals body, issues an authenticated POST and decodes the JSON
// response into out.  Every failure collapses to ErrGatewayUnavailable:
// the caller only needs to know the call did not take effect.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
    buf, err := json.Marshal(body)
    if err != nil {
        return err
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
    if err != nil {
        return err
    }
    req.Header.Set("Content-Type", "application/json")
    req.SetBasicAuth(c.keyID, c.keySecret)

    res, err := c.http.Do(req)
    if err != nil {
        return ErrGatewayUnavailable
    }
    defer res.Body.Close()
    if res.StatusCode < 200 || res.StatusCode > 299 {
        return ErrGatewayUnavailable
    }
    if err := json.NewDecoder(res.Body).Decode(out); err != nil {
        return ErrGatewayUnavailable
    }
    return nil
}

// VerifySignature recomputes the hex HMAC-SHA256 of the raw webhook
// payload under the shared webhook secret and compares it to the
// signature header in constant time.  This is the trust boundary that
// keeps forged payment confirmations out; on a mismatch the caller
// must drop the webhook with no state changes.
func (c *Client) VerifySignature(payload []byte, signatureHeader string) bool {
    mac := hmac.New(sha256.New, []byte(c.webhookSecret))
    mac.Write(payload)
    expected := mac.Sum(nil)

    got, err := hex.DecodeString(signatureHeader)
    if err != nil {
        return false
    }
    return hmac.Equal(expected, got)
}
