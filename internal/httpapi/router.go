// Package httpapi exposes the cart, checkout and history operations over
// HTTP for the client UI.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	History  *HistoryHandler
}

// NewRouter wires the API routes. requestTimeout bounds whole requests; the
// checkout applies its own per-call limits inside.
func NewRouter(h Handlers, log *zap.Logger, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(log))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(UserMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.ClearCart)
			r.Post("/items", h.Cart.AddItem)
			r.Patch("/items", h.Cart.UpdateQuantity)
			r.Delete("/items", h.Cart.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", h.Checkout.Begin)
			r.Get("/", h.Checkout.Get)
			r.Delete("/", h.Checkout.Cancel)
			r.Post("/commit", h.Checkout.Commit)
		})

		r.Get("/orders", h.History.ListOrders)
		r.Get("/orders/{id}", h.History.GetOrder)
		r.Get("/notifications", h.History.ListNotifications)
		r.Post("/notifications/read-all", h.History.MarkAllRead)
		r.Post("/notifications/{id}/read", h.History.MarkRead)
	})

	return otelhttp.NewHandler(r, "cartsync")
}
