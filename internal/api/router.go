package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/care-coordination/internal/kv"
)

type RouterConfig struct {
	Handler      *Handler
	Store        kv.Store
	Redis        *redis.Client // optional
	StoreBackend string
	Env          string
	Version      string
	CORSOrigins  []string
	Logger       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderRequestID, HeaderActorID, HeaderActorRole},
		ExposedHeaders: []string{HeaderRequestID},
	}))
	r.Use(ActorMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.Store, cfg.Redis, cfg.StoreBackend, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := cfg.Handler
	r.Route("/api", func(r chi.Router) {
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.BookAppointment)
			r.Get("/", h.ListAppointments)
			r.Get("/search", h.SearchAppointments)
			r.Get("/stats", h.AppointmentStats)
			r.Get("/types", h.AppointmentTypes)
			r.Get("/{id}", h.GetAppointment)
			r.Patch("/{id}", h.UpdateAppointment)
			r.Post("/{id}/cancel", h.CancelAppointment)
			r.Post("/{id}/notes", h.AddNotes)
			r.Post("/{id}/complete", h.CompleteAppointment)
		})

		r.Route("/slots", func(r chi.Router) {
			r.Get("/", h.AvailableSlots)
			r.Get("/schedule", h.DoctorSchedule)
			r.Post("/generate", h.GenerateSlots)
		})

		r.Route("/pharmacy", func(r chi.Router) {
			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.PlaceOrder)
				r.Get("/", h.ListOrders)
				r.Get("/pending", h.PendingOrders)
				r.Get("/{id}", h.GetOrder)
				r.Post("/{id}/approve", h.ApproveOrder)
				r.Post("/{id}/reject", h.RejectOrder)
			})
			r.Route("/inventory", func(r chi.Router) {
				r.Get("/", h.ListInventory)
				r.Post("/", h.AddInventoryItem)
				r.Get("/low-stock", h.LowStock)
				r.Get("/expiring", h.ExpiringSoon)
				r.Patch("/{id}", h.UpdateInventoryItem)
				r.Delete("/{id}", h.DeleteInventoryItem)
				r.Post("/{id}/adjust", h.AdjustStock)
			})
			r.Post("/availability", h.CheckAvailability)
			r.Get("/analytics", h.PharmacyAnalytics)
			r.Get("/rejection-reasons", h.RejectionReasons)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Delete("/", h.ClearNotifications)
			r.Get("/unread-count", h.UnreadCount)
			r.Post("/read-all", h.MarkAllNotificationsRead)
			r.Post("/{id}/read", h.MarkNotificationRead)
			r.Delete("/{id}", h.RemoveNotification)
		})
	})

	return r
}
