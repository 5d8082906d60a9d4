package main // Entry point package

import (
    "log" // Logging library

    "github.com/joho/godotenv"    // Optional .env loading for local development
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/freshfold/booking-api/internal/config"
    "github.com/freshfold/booking-api/internal/database"
    "github.com/freshfold/booking-api/internal/gateway"
    "github.com/freshfold/booking-api/internal/handler"
    "github.com/freshfold/booking-api/internal/queue"
    "github.com/freshfold/booking-api/internal/reconcile"
    "github.com/freshfold/booking-api/internal/repository"
    "github.com/freshfold/booking-api/internal/router"
    queue_publisher "github.com/freshfold/booking-api/internal/service"
)

func main() {
    // Load a local .env when present; real deployments set the
    // environment directly.
    _ = godotenv.Load()
    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }

    // Redis backs the rate limiter and the replay fast path.  A nil
    // client disables both; the durable stores remain authoritative.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Printf("redis unavailable; rate limiting and replay cache disabled")
    }
    rlCfg := config.LoadRateLimitConfig()

    users := repository.NewUserRepo(db)
    tokens := repository.NewTokenRepo(db)
    bookings := repository.NewBookingRepo(db)
    events := repository.NewEventRepo(db)

    gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewaySecret, cfg.WebhookSecret, cfg.GatewayTimeout)
    engine := reconcile.NewEngine(bookings, events, rdb, queue_publisher.Publisher{})

    authHandler := handler.NewAuthHandler(cfg, users, tokens)
    bookingHandler := handler.NewBookingHandler(bookings, gw)
    webhookHandler := handler.NewWebhookHandler(gw, engine)

    e := echo.New()
    router.RegisterRoutes(e)
    router.RegisterAuth(e, authHandler, cfg.JWTSecret, rlCfg, rdb)
    router.RegisterBookings(e, bookingHandler, cfg.JWTSecret, rlCfg, rdb)
    router.RegisterWebhooks(e, webhookHandler)

    // Background consumer turning settlement events into notification
    // log entries; reconnects on broker failure.
    go func() {
        if err := queue.StartSettlementConsumer(); err != nil {
            log.Printf("settlement consumer stopped: %v", err)
        }
    }()

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)

    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
