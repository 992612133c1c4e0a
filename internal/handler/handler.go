// Package handler содержит HTTP-обработчики API сервиса заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/akulenkov/grocery-orders/internal/middleware"
	"github.com/akulenkov/grocery-orders/internal/model"
	"github.com/akulenkov/grocery-orders/internal/payment"
	"github.com/akulenkov/grocery-orders/internal/repository"
	"github.com/akulenkov/grocery-orders/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	PlaceCashOrder(ctx context.Context, userID int64, items []model.CartItem, addressID int64, subTotal, total float64) (*model.Order, error)
	CreateCheckoutSession(ctx context.Context, userID int64, items []model.CartItem, addressID int64) (*payment.CheckoutSession, error)
	ReconcileCheckoutEvent(ctx context.Context, event *payment.Event) error
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetAllOrders(ctx context.Context) ([]model.Order, error)
	SetOrderReceived(ctx context.Context, orderID string, received bool) (*model.Order, error)
}

// Handler реализует HTTP-обработчики API сервиса заказов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	webhookSecret  string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, webhookSecret string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		webhookSecret:  webhookSecret,
	}
}

type apiResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, apiResponse{Message: message, Success: false})
}

type checkoutItem struct {
	ProductID int64    `json:"productId"`
	Name      string   `json:"name"`
	Image     []string `json:"image"`
	Price     float64  `json:"price"`
	Discount  float64  `json:"discount"`
	Quantity  int32    `json:"quantity"`
}

type checkoutRequest struct {
	Items          []checkoutItem `json:"list_items"`
	TotalAmount    float64        `json:"totalAmt"`
	SubTotalAmount float64        `json:"subTotalAmt"`
	AddressID      int64          `json:"addressId"`
}

func (req *checkoutRequest) cartItems() []model.CartItem {
	items := make([]model.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		quantity := it.Quantity
		if quantity < 1 {
			quantity = 1
		}
		items = append(items, model.CartItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			Price:     it.Price,
			Discount:  it.Discount,
			Quantity:  quantity,
		})
	}
	return items
}

// CashOnDelivery оформляет заказ с оплатой при получении.
func (h *Handler) CashOnDelivery(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.PlaceCashOrder(r.Context(), userID, req.cartItems(), req.AddressID, req.SubTotalAmount, req.TotalAmount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyCart):
			h.writeError(w, http.StatusBadRequest, "No items in order")
		case errors.Is(err, repository.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, repository.ErrAddressNotFound):
			h.writeError(w, http.StatusNotFound, "Address not found")
		default:
			h.logger.Error("cash on delivery error", zap.Error(err), zap.Int64("userID", userID))
			h.writeError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, apiResponse{
		Message: "Order placed successfully",
		Success: true,
		Data:    toOrderResponse(order),
	})
}

// Checkout создаёт платёжную сессию для оплаты картой и возвращает её клиенту.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.service.CreateCheckoutSession(r.Context(), userID, req.cartItems(), req.AddressID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyCart):
			h.writeError(w, http.StatusBadRequest, "No items in order")
		case errors.Is(err, repository.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, repository.ErrAddressNotFound):
			h.writeError(w, http.StatusNotFound, "Address not found")
		default:
			h.logger.Error("checkout error", zap.Error(err), zap.Int64("userID", userID))
			h.writeError(w, http.StatusInternalServerError, "Payment processing failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(session); err != nil {
		h.logger.Error("encode session", zap.Error(err))
	}
}

// Webhook принимает уведомления платёжной системы. Подпись проверяется
// до какой-либо обработки; проверенные события всегда подтверждаются,
// даже если внутренняя обработка завершилась ошибкой.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := payment.ConstructEvent(body, r.Header.Get(payment.SignatureHeader), h.webhookSecret, payment.DefaultTolerance)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := h.service.ReconcileCheckoutEvent(r.Context(), event); err != nil {
		h.logger.Error("webhook processing error", zap.Error(err), zap.String("event", event.ID))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}

// GetOrderList возвращает список заказов текущего пользователя.
func (h *Handler) GetOrderList(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("userID", userID))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	h.writeJSON(w, http.StatusOK, apiResponse{
		Message: "Order list",
		Success: true,
		Data:    toOrderResponses(orders),
	})
}

// GetAllOrders возвращает все заказы магазина.
func (h *Handler) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetAllOrders(r.Context())
	if err != nil {
		h.logger.Error("get all orders error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}

	h.writeJSON(w, http.StatusOK, apiResponse{
		Message: "All orders",
		Success: true,
		Data:    toOrderResponses(orders),
	})
}

type receivedRequest struct {
	Received bool `json:"received"`
}

// UpdateReceivedStatus обновляет признак получения заказа по его идентификатору.
func (h *Handler) UpdateReceivedStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "Order ID is required")
		return
	}

	var req receivedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.SetOrderReceived(r.Context(), orderID, req.Received)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.Error("update received error", zap.Error(err), zap.String("order", orderID))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	h.writeJSON(w, http.StatusOK, apiResponse{
		Message: "Order updated",
		Success: true,
		Data:    toOrderResponse(order),
	})
}

type orderItemResponse struct {
	ProductID int64    `json:"productId"`
	Name      string   `json:"name"`
	Image     []string `json:"image"`
	Price     float64  `json:"price"`
	Discount  float64  `json:"discount"`
	Quantity  int32    `json:"quantity"`
}

type addressResponse struct {
	ID          int64  `json:"id"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode"`
	Country     string `json:"country"`
	Mobile      string `json:"mobile"`
}

type orderResponse struct {
	OrderID         string              `json:"orderId"`
	UserID          int64               `json:"userId"`
	Products        []orderItemResponse `json:"products"`
	PaymentID       string              `json:"paymentId"`
	PaymentStatus   string              `json:"payment_status"`
	DeliveryAddress *addressResponse    `json:"delivery_address,omitempty"`
	SubTotalAmount  float64             `json:"subTotalAmt"`
	TotalAmount     float64             `json:"totalAmt"`
	Received        bool                `json:"received"`
	CreatedAt       string              `json:"createdAt"`
	UpdatedAt       string              `json:"updatedAt"`
}

func toOrderResponse(o *model.Order) orderResponse {
	products := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		products = append(products, orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Price:     item.Price,
			Discount:  item.Discount,
			Quantity:  item.Quantity,
		})
	}

	resp := orderResponse{
		OrderID:        o.OrderID,
		UserID:         o.UserID,
		Products:       products,
		PaymentID:      o.PaymentID,
		PaymentStatus:  string(o.PaymentStatus),
		SubTotalAmount: o.SubTotalAmount,
		TotalAmount:    o.TotalAmount,
		Received:       o.Received,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      o.UpdatedAt.Format(time.RFC3339),
	}

	if o.Address != nil {
		resp.DeliveryAddress = &addressResponse{
			ID:          o.Address.ID,
			AddressLine: o.Address.AddressLine,
			City:        o.Address.City,
			State:       o.Address.State,
			Pincode:     o.Address.Pincode,
			Country:     o.Address.Country,
			Mobile:      o.Address.Mobile,
		}
	}

	return resp
}

func toOrderResponses(orders []model.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}
	return resp
}
