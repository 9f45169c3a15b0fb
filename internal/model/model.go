package model

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
)

// StockError names the product whose requested quantity exceeds what is available.
type StockError struct {
	ProductID uuid.UUID
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: only %d available", e.Name, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// CheckStock returns a *StockError when qty exceeds the product's available quantity.
func (p *Product) CheckStock(qty int) error {
	if avail := p.AvailableQuantity(); qty > avail {
		return &StockError{ProductID: p.ID, Name: p.Name, Requested: qty, Available: avail}
	}
	return nil
}

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Category struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is either a standard item counted by Stock or an animal counted by gender.
type Product struct {
	ID              uuid.UUID
	Name            string
	Description     string
	Price           decimal.Decimal
	Stock           *int
	CategoryID      *uuid.UUID
	ImageURL        string
	IsAnimal        bool
	MaleQuantity    int
	FemaleQuantity  int
	UnknownQuantity int
	LaidDate        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AvailableQuantity is the quantity customers may buy.
func (p *Product) AvailableQuantity() int {
	if p.IsAnimal {
		return p.MaleQuantity + p.FemaleQuantity + p.UnknownQuantity
	}
	if p.Stock == nil {
		return 0
	}
	return *p.Stock
}

// Deduct removes qty units. Animal counts are consumed unknown, then male, then female.
// The product is left untouched when qty exceeds what is available.
func (p *Product) Deduct(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("deduct %d from product %s: quantity must be positive", qty, p.ID)
	}
	if qty > p.AvailableQuantity() {
		return ErrInsufficientStock
	}
	if !p.IsAnimal {
		left := *p.Stock - qty
		p.Stock = &left
		return nil
	}
	for _, count := range []*int{&p.UnknownQuantity, &p.MaleQuantity, &p.FemaleQuantity} {
		take := min(*count, qty)
		*count -= take
		qty -= take
	}
	return nil
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine is a cart item joined with the product it refers to.
type CartLine struct {
	Item    CartItem
	Product Product
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Item.Quantity)))
}

// CartTotal sums line subtotals.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusSucceeded OrderStatus = "succeeded"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCanceled  OrderStatus = "canceled"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending, OrderStatusPaid, OrderStatusSucceeded,
	OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled,
}

var ErrInvalidOrderStatus = errors.New("invalid order status")

func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range orderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOrderStatus, s)
}

// orderTransitions lists the statuses an admin may move an order to from each status.
// Every status is currently reachable from every other.
var orderTransitions = func() map[OrderStatus][]OrderStatus {
	m := make(map[OrderStatus][]OrderStatus, len(orderStatuses))
	for _, from := range orderStatuses {
		m[from] = orderStatuses
	}
	return m
}()

// CanTransition reports whether an admin may move an order from s to the given status.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return slices.Contains(orderTransitions[s], to)
}

type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Status          OrderStatus
	TotalPrice      decimal.Decimal
	ShippingAddress string
	PaymentIntentID string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem snapshots the product name and price at purchase time. ProductID is nil
// once the product has been deleted.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   *uuid.UUID
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

type MessageStatus string

const (
	MessageStatusUnread  MessageStatus = "Unread"
	MessageStatusRead    MessageStatus = "Read"
	MessageStatusReplied MessageStatus = "Replied"
)

var ErrInvalidMessageStatus = errors.New("invalid message status")

func ParseMessageStatus(s string) (MessageStatus, error) {
	switch MessageStatus(s) {
	case MessageStatusUnread, MessageStatusRead, MessageStatusReplied:
		return MessageStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMessageStatus, s)
}

type Message struct {
	ID          uuid.UUID
	Name        string
	Email       string
	Subject     string
	Body        string
	Status      MessageStatus
	Response    *string
	RespondedAt *time.Time
	CreatedAt   time.Time
}

type NotificationKind string

const (
	NotificationOrderConfirmation NotificationKind = "order_confirmation"
	NotificationMessageReply      NotificationKind = "message_reply"
)

// Notification is the queue payload consumed by the notification worker.
// Recipients are resolved from the referenced order or message.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	Kind      NotificationKind `json:"kind"`
	OrderID   *uuid.UUID       `json:"order_id,omitempty"`
	MessageID *uuid.UUID       `json:"message_id,omitempty"`
}

func NewOrderConfirmation(orderID uuid.UUID) Notification {
	return Notification{ID: uuid.New(), Kind: NotificationOrderConfirmation, OrderID: &orderID}
}

func NewMessageReply(messageID uuid.UUID) Notification {
	return Notification{ID: uuid.New(), Kind: NotificationMessageReply, MessageID: &messageID}
}
