// Package model содержит доменные сущности магазина Digi Store.
package model

import "time"

// User представляет покупателя, обратившегося к боту.
type User struct {
	ID        int64
	Username  string
	FullName  string
	CreatedAt time.Time
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending             OrderStatus = "pending"
	OrderStatusWaitingPayment      OrderStatus = "waiting_payment"
	OrderStatusWaitingConfirmation OrderStatus = "waiting_confirmation"
	OrderStatusWaitingCrypto       OrderStatus = "waiting_crypto"
	OrderStatusConfirmed           OrderStatus = "confirmed"
	OrderStatusCompleted           OrderStatus = "completed"
	OrderStatusCancelled           OrderStatus = "cancelled"
)

// IsTerminal сообщает, является ли статус конечным: из него заказ не выходит.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// OrderKind описывает вид товара в заказе.
type OrderKind string

const (
	OrderKindStars    OrderKind = "stars"
	OrderKindPremium  OrderKind = "premium"
	OrderKindExchange OrderKind = "exchange"
)

// PaymentMethod описывает выбранный покупателем способ оплаты.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodCrypto PaymentMethod = "crypto"
)

// OrderDetails хранит специфичные для вида заказа поля. Заполняются только
// поля текущего вида; PaymentPhoto живёт отдельно от варианта и, будучи
// установленным, больше не очищается.
type OrderDetails struct {
	// stars
	Stars int `json:"stars,omitempty"`
	// premium
	Period string `json:"period,omitempty"`
	// exchange
	AmountRUB    float64 `json:"amount_rub,omitempty"`
	AmountUSD    float64 `json:"amount_usd,omitempty"`
	ExchangeRate float64 `json:"exchange_rate,omitempty"`

	PaymentPhoto string `json:"payment_photo,omitempty"`
}

// Order описывает заказ покупателя.
type Order struct {
	ID        int64
	UserID    int64
	Kind      OrderKind
	Recipient string
	Details   OrderDetails
	AmountRUB float64
	Method    PaymentMethod
	Status    OrderStatus
	InvoiceID *string
	CreatedAt time.Time
}

// AdminAction описывает действие администратора над заказом.
type AdminAction string

const (
	AdminActionConfirm   AdminAction = "confirm"
	AdminActionReject    AdminAction = "reject"
	AdminActionDelivered AdminAction = "delivered"
)

// PendingAdminAction фиксирует намерение администратора, ожидающее финального
// подтверждения. Запись создаётся промежуточным запросом и удаляется после
// выполнения финального действия.
type PendingAdminAction struct {
	AdminID int64
	Action  AdminAction
	OrderID int64
}
