package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/freshfold/booking-api/internal/model"
    "github.com/freshfold/booking-api/internal/utils"
)

const testSecret = "middleware-test-secret"

// run pushes a request through JWTAuth into a probe handler that
// captures what the middleware stored in the context.
func run(t *testing.T, authHeader string) (*httptest.ResponseRecorder, *echo.Context) {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
    if authHeader != "" {
        req.Header.Set("Authorization", authHeader)
    }
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)

    var seen echo.Context
    h := JWTAuth(testSecret)(func(c echo.Context) error {
        seen = c
        return c.NoContent(http.StatusOK)
    })
    require.NoError(t, h(c))
    return rec, &seen
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
    t.Parallel()

    token, err := utils.NewAccessToken(testSecret, 42, model.RoleAdmin, 15)
    require.NoError(t, err)

    rec, seen := run(t, "Bearer "+token.Token)
    require.Equal(t, http.StatusOK, rec.Code)

    id, ok := UserID(*seen)
    require.True(t, ok)
    assert.Equal(t, uint64(42), id)
    assert.Equal(t, model.RoleAdmin, Role(*seen))
}

func TestJWTAuthRejectsBadCredentials(t *testing.T) {
    t.Parallel()

    expired, err := utils.NewAccessToken(testSecret, 42, model.RoleCustomer, -1)
    require.NoError(t, err)
    foreign, err := utils.NewAccessToken("some-other-secret", 42, model.RoleCustomer, 15)
    require.NoError(t, err)

    testCases := []struct {
        name   string
        header string
    }{
        {"missing header", ""},
        {"no bearer prefix", "Token abc"},
        {"garbage token", "Bearer not.a.jwt"},
        {"expired token", "Bearer " + expired.Token},
        {"wrong secret", "Bearer " + foreign.Token},
    }
    for _, tc := range testCases {
        tc := tc
        t.Run(tc.name, func(t *testing.T) {
            t.Parallel()
            rec, _ := run(t, tc.header)
            // Every rejection is indistinguishable from the outside.
            assert.Equal(t, http.StatusUnauthorized, rec.Code)
            assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
        })
    }
}
