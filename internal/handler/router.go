package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/akulenkov/grocery-orders/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса заказов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/order", func(r chi.Router) {
		// Уведомления платёжной системы: доверие обеспечивается подписью, а не cookie.
		r.Post("/webhook", h.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/cash-on-delivery", h.CashOnDelivery)
			r.Post("/checkout", h.Checkout)

			r.Get("/order-list", h.GetOrderList)
			r.Get("/allorders", h.GetAllOrders)

			r.Put("/status/{orderID}", h.UpdateReceivedStatus)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
