package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing
    "github.com/redis/go-redis/v9"

    "github.com/freshfold/booking-api/internal/config"
    "github.com/freshfold/booking-api/internal/handler"    // handlers that implement business logic
    "github.com/freshfold/booking-api/internal/middleware" // JWT authentication and role enforcement
    "github.com/freshfold/booking-api/internal/model"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Load balancers and monitoring use this to verify the service is up.
    e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies
// the necessary middleware.  Unauthenticated operations live under
// /v1/auth, while the protected profile endpoint lives under /v1.  The
// optional rate limiter shields the credential endpoints from
// brute-force attempts; it degrades to a pass-through when redis is
// unavailable.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
    g := e.Group("/v1/auth", middleware.NewTokenBucket(rlCfg, rdb))
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    g.POST("/refresh", a.Refresh)
    // Logout accepts either a refresh token in the body or a bearer
    // token, so it stays outside the JWT middleware.
    g.POST("/logout", a.Logout)

    auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
    auth.GET("/me", a.Me)
}

// RegisterBookings registers the booking lifecycle endpoints.  Every
// route runs JWTAuth first; the role sets are declared statically here,
// per route, rather than checked inside handlers.  Customers create,
// read, cancel and retry their own bookings; staff can read and cancel
// any booking; refunds are admin only.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.NewTokenBucket(rlCfg, rdb),
    )

    customer := middleware.RequireRole(model.RoleCustomer)
    anyRole := middleware.RequireRole(model.RoleCustomer, model.RoleAdmin, model.RoleEmployee)
    staffOrOwner := anyRole // ownership for customers is enforced in the handler
    adminOnly := middleware.RequireRole(model.RoleAdmin)

    g.POST("/bookings", h.CreateBooking, customer)
    g.GET("/bookings/:id", h.GetBooking, staffOrOwner)
    g.GET("/my-bookings", h.ListMyBookings, customer)
    g.POST("/bookings/:id/cancel", h.CancelBooking, staffOrOwner)
    g.POST("/bookings/:id/retry-payment", h.RetryPayment, customer)
    g.POST("/bookings/:id/refund", h.RefundBooking, adminOnly)
}

// RegisterWebhooks registers the payment gateway's webhook endpoint.
// No user authentication applies — the handler authenticates each
// delivery by its payload signature instead.
func RegisterWebhooks(e *echo.Echo, h *handler.WebhookHandler) {
    e.POST("/v1/webhooks/payment", h.HandlePayment)
}
