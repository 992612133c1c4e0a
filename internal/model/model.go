// Package model содержит доменные сущности магазина продуктов.
package model

import "time"

// User представляет покупателя магазина.
type User struct {
	ID        int64
	Email     string
	Name      string
	CreatedAt time.Time
}

// Address представляет адрес доставки пользователя.
type Address struct {
	ID          int64
	UserID      int64
	AddressLine string
	City        string
	State       string
	Pincode     string
	Country     string
	Mobile      string
}

// PaymentStatus описывает статус оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "PENDING"
	PaymentStatusPaid           PaymentStatus = "PAID"
	PaymentStatusCashOnDelivery PaymentStatus = "CASH_ON_DELIVERY"
	PaymentStatusFailed         PaymentStatus = "FAILED"
)

// CartItem описывает позицию корзины на момент оформления заказа.
type CartItem struct {
	ProductID int64
	Name      string
	Image     []string
	Price     float64
	Discount  float64
	Quantity  int32
}

// OrderItem описывает позицию заказа. Название, изображение, цена и скидка
// копируются из карточки товара при создании заказа и дальше не меняются.
type OrderItem struct {
	ProductID int64
	Name      string
	Image     []string
	Price     float64
	Discount  float64
	Quantity  int32
}

// Order описывает заказ пользователя.
type Order struct {
	ID             int64
	OrderID        string
	UserID         int64
	Items          []OrderItem
	PaymentID      string
	PaymentStatus  PaymentStatus
	AddressID      int64
	Address        *Address
	SubTotalAmount float64
	TotalAmount    float64
	Received       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
