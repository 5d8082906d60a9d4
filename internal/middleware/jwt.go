package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/freshfold/booking-api/internal/utils" // token verification
)

// Context keys under which JWTAuth stores the verified identity.
const (
    CtxUserID = "user_id"
    CtxRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access
// token and injects the verified subject and role into the request
// context.  The provided secret must match the one used when issuing
// tokens.  Every failure mode — missing header, malformed token, bad
// signature, expiry — produces the same 401 response with no side
// effects, so the middleware never acts as an oracle for why a token
// was rejected.  This middleware must wrap every route that reads or
// mutates a booking.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            // A valid header starts with "Bearer " followed by the JWT.
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            ident, err := utils.VerifyAccessToken(secret, raw)
            if err != nil {
                // utils collapses all verification failures to one
                // sentinel; respond identically for all of them.
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
            }

            // Store the verified identity for handlers and the role
            // middleware downstream.
            c.Set(CtxUserID, ident.SubjectID)
            c.Set(CtxRole, ident.Role)
            return next(c)
        }
    }
}

// UserID extracts the authenticated subject id placed in the context by
// JWTAuth.  The boolean reports whether an identity is present.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(CtxUserID).(uint64)
    return id, ok
}

// Role extracts the authenticated role placed in the context by JWTAuth.
func Role(c echo.Context) string {
    r, _ := c.Get(CtxRole).(string)
    return r
}
