package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medicrew/clinic-slot-booking/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Ops endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/slots", func(r chi.Router) {
			r.Post("/", createSlotHandler(cfg.Service))
			r.Get("/", listSlotsHandler(cfg.Service))
			r.Get("/overview", slotOverviewHandler(cfg.Service))
			r.Delete("/{id}", deleteSlotHandler(cfg.Service))
			r.Get("/{id}/bookings", listBookingsHandler(cfg.Service))
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", bookSlotHandler(cfg.Service))
			r.Post("/hold", holdSlotHandler(cfg.Service))
			r.Post("/{id}/confirm", confirmBookingHandler(cfg.Service))
		})
	})

	return r
}
