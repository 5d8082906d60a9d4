package gateway

import (
    "context"
    "crypto/hmac"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

const (
    testKeyID         = "key_test"
    testKeySecret     = "secret_test"
    testWebhookSecret = "whsec_test"
)

func sign(secret string, payload []byte) string {
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write(payload)
    return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateOrder(t *testing.T) {
    t.Parallel()

    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        require.Equal(t, http.MethodPost, r.Method)
        require.Equal(t, "/v1/orders", r.URL.Path)
        user, pass, ok := r.BasicAuth()
        require.True(t, ok)
        require.Equal(t, testKeyID, user)
        require.Equal(t, testKeySecret, pass)

        var body struct {
            Amount   int64  `json:"amount"`
            Currency string `json:"currency"`
            Receipt  string `json:"receipt"`
        }
        require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
        assert.Equal(t, int64(50000), body.Amount)
        assert.Equal(t, "INR", body.Currency)
        assert.Equal(t, "booking_17", body.Receipt)

        _ = json.NewEncoder(w).Encode(map[string]string{"id": "order_1"})
    }))
    defer srv.Close()

    c := NewClient(srv.URL, testKeyID, testKeySecret, testWebhookSecret, 2*time.Second)
    orderID, err := c.CreateOrder(context.Background(), 17, 50000)
    require.NoError(t, err)
    assert.Equal(t, "order_1", orderID)
}

func TestCreateOrderGatewayFailures(t *testing.T) {
    t.Parallel()

    t.Run("server error", func(t *testing.T) {
        t.Parallel()
        srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            http.Error(w, "boom", http.StatusInternalServerError)
        }))
        defer srv.Close()

        c := NewClient(srv.URL, testKeyID, testKeySecret, testWebhookSecret, 2*time.Second)
        _, err := c.CreateOrder(context.Background(), 1, 100)
        require.ErrorIs(t, err, ErrGatewayUnavailable)
    })

    t.Run("connection refused", func(t *testing.T) {
        t.Parallel()
        srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
        srv.Close() // nothing listening anymore

        c := NewClient(srv.URL, testKeyID, testKeySecret, testWebhookSecret, 2*time.Second)
        _, err := c.CreateOrder(context.Background(), 1, 100)
        require.ErrorIs(t, err, ErrGatewayUnavailable)
    })

    t.Run("timeout", func(t *testing.T) {
        t.Parallel()
        srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            time.Sleep(300 * time.Millisecond)
        }))
        defer srv.Close()

        c := NewClient(srv.URL, testKeyID, testKeySecret, testWebhookSecret, 50*time.Millisecond)
        _, err := c.CreateOrder(context.Background(), 1, 100)
        require.ErrorIs(t, err, ErrGatewayUnavailable)
    })

    t.Run("empty order id", func(t *testing.T) {
        t.Parallel()
        srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            _ = json.NewEncoder(w).Encode(map[string]string{})
        }))
        defer srv.Close()

        c := NewClient(srv.URL, testKeyID, testKeySecret, testWebhookSecret, 2*time.Second)
        _, err := c.CreateOrder(context.Background(), 1, 100)
        require.ErrorIs(t, err, ErrGatewayUnavailable)
    })
}

func TestCreateRefund(t *testing.T) {
    t.Parallel()

    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        require.Equal(t, "/v1/payments/pay_9/refund", r.URL.Path)
        var body struct {
            Amount int64 `json:"amount"`
        }
        require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
        assert.Equal(t, int64(25000), body.Amount)
        _ = json.NewEncoder(w).Encode(map[string]string{"id": "rfnd_1"})
    }))
    defer srv.Close()

    c := NewClient(srv.URL, testKeyID, testKeySecret, testWebhookSecret, 2*time.Second)
    refundID, err := c.CreateRefund(context.Background(), "pay_9", 25000)
    require.NoError(t, err)
    assert.Equal(t, "rfnd_1", refundID)
}

func TestVerifySignature(t *testing.T) {
    t.Parallel()

    c := NewClient("http://unused", testKeyID, testKeySecret, testWebhookSecret, time.Second)
    payload := []byte(`{"id":"evt_1","event":"payment.captured"}`)

    assert.True(t, c.VerifySignature(payload, sign(testWebhookSecret, payload)))

    // Signature computed under a different secret.
    assert.False(t, c.VerifySignature(payload, sign("other-secret", payload)))

    // Payload altered after signing.
    altered := []byte(`{"id":"evt_2","event":"payment.captured"}`)
    assert.False(t, c.VerifySignature(altered, sign(testWebhookSecret, payload)))

    // Header that is not valid hex.
    assert.False(t, c.VerifySignature(payload, "zz-not-hex"))

    // Empty header.
    assert.False(t, c.VerifySignature(payload, ""))
}
