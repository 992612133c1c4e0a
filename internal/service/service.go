// Package service реализует бизнес-логику оформления и оплаты заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akulenkov/grocery-orders/internal/model"
	"github.com/akulenkov/grocery-orders/internal/payment"
	"github.com/akulenkov/grocery-orders/internal/pricing"
	"github.com/akulenkov/grocery-orders/internal/repository"
)

// ErrEmptyCart возвращается при попытке оформить заказ без позиций.
var ErrEmptyCart = errors.New("no items in order")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetAddressByID(ctx context.Context, id int64) (*model.Address, error)
	GetCartByUser(ctx context.Context, userID int64) ([]model.CartItem, error)
	CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetAllOrders(ctx context.Context) ([]model.Order, error)
	GetOrderByPaymentID(ctx context.Context, paymentID string) (*model.Order, error)
	SetOrderReceived(ctx context.Context, orderID string, received bool) (*model.Order, error)
}

// Gateway описывает контракт взаимодействия с платёжной системой.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params payment.SessionParams) (*payment.CheckoutSession, error)
	ListLineItems(ctx context.Context, sessionID string) ([]payment.LineItem, error)
	RetrieveProduct(ctx context.Context, productID string) (*payment.Product, error)
}

// Service содержит бизнес-логику сервиса заказов.
type Service struct {
	repo        Repository
	gateway     Gateway
	logger      *zap.Logger
	frontendURL string
}

// NewService создаёт новый сервис с указанным репозиторием и платёжным клиентом.
func NewService(repo Repository, gateway Gateway, logger *zap.Logger, frontendURL string) *Service {
	return &Service{
		repo:        repo,
		gateway:     gateway,
		logger:      logger,
		frontendURL: frontendURL,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func newOrderID() string {
	return "ORD-" + uuid.NewString()
}

// resolveCart возвращает позиции оформляемого заказа: присланные клиентом
// или текущий снимок корзины, если клиент их не прислал.
func (s *Service) resolveCart(ctx context.Context, userID int64, items []model.CartItem) ([]model.CartItem, error) {
	if len(items) > 0 {
		return items, nil
	}

	snapshot, err := s.repo.GetCartByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, ErrEmptyCart
	}

	return snapshot, nil
}

// PlaceCashOrder оформляет заказ с оплатой при получении: создаёт заказ
// и очищает корзину пользователя в одной транзакции.
func (s *Service) PlaceCashOrder(ctx context.Context, userID int64, items []model.CartItem, addressID int64, subTotal, total float64) (*model.Order, error) {
	items, err := s.resolveCart(ctx, userID, items)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetAddressByID(ctx, addressID); err != nil {
		return nil, err
	}

	// Клиент мог не прислать суммы вместе с позициями.
	if subTotal == 0 && total == 0 {
		for _, item := range items {
			quantity := item.Quantity
			if quantity < 1 {
				quantity = 1
			}
			subTotal += item.Price * float64(quantity)
			total += pricing.PriceWithDiscount(item.Price, item.Discount) * float64(quantity)
		}
	}

	order := &model.Order{
		OrderID:        newOrderID(),
		UserID:         userID,
		Items:          toOrderItems(items),
		PaymentID:      "",
		PaymentStatus:  model.PaymentStatusCashOnDelivery,
		AddressID:      addressID,
		SubTotalAmount: subTotal,
		TotalAmount:    total,
	}

	return s.repo.CreateOrder(ctx, order)
}

// CreateCheckoutSession создаёт платёжную сессию для оплаты картой.
// Заказ на этом шаге не создаётся, корзина остаётся нетронутой.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID int64, items []model.CartItem, addressID int64) (*payment.CheckoutSession, error) {
	items, err := s.resolveCart(ctx, userID, items)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetAddressByID(ctx, addressID); err != nil {
		return nil, err
	}

	lineItems := make([]payment.SessionLineItem, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, payment.SessionLineItem{
			Name:       item.Name,
			Images:     item.Image,
			ProductID:  strconv.FormatInt(item.ProductID, 10),
			UnitAmount: pricing.MinorUnits(pricing.PriceWithDiscount(item.Price, item.Discount)),
			Quantity:   int64(item.Quantity),
		})
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payment.SessionParams{
		CustomerEmail: user.Email,
		SuccessURL:    s.frontendURL + "/success",
		CancelURL:     s.frontendURL + "/cancel",
		Metadata: map[string]string{
			"userId":    strconv.FormatInt(userID, 10),
			"addressId": strconv.FormatInt(addressID, 10),
		},
		LineItems: lineItems,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return session, nil
}

// ReconcileCheckoutEvent обрабатывает уведомление платёжной системы.
// Заказ создаётся только по событию завершённой оплаты; повторная доставка
// того же события не приводит к дублированию заказа.
func (s *Service) ReconcileCheckoutEvent(ctx context.Context, event *payment.Event) error {
	if event.Type != payment.EventCheckoutSessionCompleted {
		s.logger.Info("skipping payment event", zap.String("type", event.Type), zap.String("event", event.ID))
		return nil
	}

	session, err := event.Session()
	if err != nil {
		return err
	}

	if session.PaymentIntent != "" {
		_, err := s.repo.GetOrderByPaymentID(ctx, session.PaymentIntent)
		if err == nil {
			s.logger.Info("payment already reconciled", zap.String("paymentID", session.PaymentIntent))
			return nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return err
		}
	}

	userID, err := strconv.ParseInt(session.Metadata["userId"], 10, 64)
	if err != nil {
		return fmt.Errorf("parse session userId: %w", err)
	}
	addressID, err := strconv.ParseInt(session.Metadata["addressId"], 10, 64)
	if err != nil {
		return fmt.Errorf("parse session addressId: %w", err)
	}

	lineItems, err := s.gateway.ListLineItems(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("list line items: %w", err)
	}
	if len(lineItems) == 0 {
		return fmt.Errorf("session %s has no line items", session.ID)
	}

	var (
		items      []model.OrderItem
		totalCents int64
	)
	for _, li := range lineItems {
		product, err := s.gateway.RetrieveProduct(ctx, li.Price.Product)
		if err != nil {
			return fmt.Errorf("retrieve product %s: %w", li.Price.Product, err)
		}

		productID, err := strconv.ParseInt(product.Metadata["productId"], 10, 64)
		if err != nil {
			return fmt.Errorf("parse product metadata for %s: %w", product.ID, err)
		}

		quantity := li.Quantity
		if quantity < 1 {
			quantity = 1
		}

		items = append(items, model.OrderItem{
			ProductID: productID,
			Name:      product.Name,
			Image:     product.Images,
			Price:     float64(li.Price.UnitAmount) / 100,
			Quantity:  int32(quantity),
		})

		totalCents += li.Price.UnitAmount * quantity
	}

	order := &model.Order{
		OrderID:        newOrderID(),
		UserID:         userID,
		Items:          items,
		PaymentID:      session.PaymentIntent,
		PaymentStatus:  mapPaymentStatus(session.PaymentStatus),
		AddressID:      addressID,
		SubTotalAmount: float64(totalCents) / 100,
		TotalAmount:    float64(totalCents) / 100,
	}

	if _, err := s.repo.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, repository.ErrOrderExists) {
			s.logger.Info("payment already reconciled", zap.String("paymentID", session.PaymentIntent))
			return nil
		}
		return fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order reconciled",
		zap.String("order", order.OrderID),
		zap.String("paymentID", order.PaymentID),
		zap.Int64("userID", userID),
	)

	return nil
}

func mapPaymentStatus(status string) model.PaymentStatus {
	switch status {
	case "paid":
		return model.PaymentStatusPaid
	case "unpaid", "no_payment_required":
		return model.PaymentStatusPending
	default:
		return model.PaymentStatusFailed
	}
}

// GetOrdersByUser возвращает список заказов пользователя от новых к старым.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// GetAllOrders возвращает все заказы магазина.
func (s *Service) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.GetAllOrders(ctx)
}

// SetOrderReceived обновляет признак получения заказа.
func (s *Service) SetOrderReceived(ctx context.Context, orderID string, received bool) (*model.Order, error) {
	return s.repo.SetOrderReceived(ctx, orderID, received)
}

func toOrderItems(items []model.CartItem) []model.OrderItem {
	res := make([]model.OrderItem, 0, len(items))
	for _, item := range items {
		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}
		res = append(res, model.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Price:     item.Price,
			Discount:  item.Discount,
			Quantity:  quantity,
		})
	}
	return res
}
