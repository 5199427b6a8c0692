package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/api/http/middleware"
	platformobservability "github.com/shestoi/stockflow/platform/observability"
)

// NewRouter создаёт и настраивает HTTP роутер
// health монтируется на /health и не требует сессии
// logger используется для observability HTTP middleware (trace_id в логах)
func NewRouter(handler *Handler, health http.HandlerFunc, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	// Observability: trace context + span на каждый запрос, logger с trace_id в контексте
	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("stockflow", logger))
	}

	router.Get("/health", health)

	router.Group(func(r chi.Router) {
		// сессия необязательна везде, кроме /reservations
		r.Use(middleware.WithSessionID)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", handler.ListProducts)
			r.Post("/", handler.CreateProduct)
			r.Get("/{id}", handler.GetProduct)
			r.Put("/{id}", handler.UpdateProduct)
			r.Delete("/{id}", handler.DeleteProduct)
			r.Get("/{id}/availability", handler.CheckAvailability)
			r.Post("/{id}/restock", handler.RestockProduct)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Use(middleware.RequireSessionID)
			r.Post("/", handler.CreateReservation)
			r.Get("/{id}", handler.GetReservation)
			r.Delete("/{id}", handler.DeleteReservation)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handler.PostOrders)
			r.Get("/", handler.ListOrders)
			r.Get("/{id}", handler.GetOrder)
			r.Post("/{id}/cancel", handler.CancelOrder)
			r.Post("/{id}/fulfill", handler.FulfillOrder)
		})
	})

	return router
}
