package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/reptile-store-api/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
}

// --- Category ---

type CategoryRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

type CategoryResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// --- Product ---

// CreateProductRequest describes a standard product (stock) or an animal (gender counts).
type CreateProductRequest struct {
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Stock           *int            `json:"stock" binding:"omitempty,min=0"`
	CategoryID      *uuid.UUID      `json:"category_id"`
	ImageURL        string          `json:"image_url" binding:"omitempty,url"`
	IsAnimal        bool            `json:"is_animal"`
	MaleQuantity    int             `json:"male_quantity" binding:"min=0"`
	FemaleQuantity  int             `json:"female_quantity" binding:"min=0"`
	UnknownQuantity int             `json:"unknown_quantity" binding:"min=0"`
	LaidDate        *string         `json:"laid_date" binding:"omitempty,datetime=2006-01-02"`
}

type UpdateProductRequest struct {
	Name            *string          `json:"name"`
	Description     *string          `json:"description"`
	Price           *decimal.Decimal `json:"price"`
	Stock           *int             `json:"stock" binding:"omitempty,min=0"`
	CategoryID      *uuid.UUID       `json:"category_id"`
	ImageURL        *string          `json:"image_url" binding:"omitempty,url"`
	IsAnimal        *bool            `json:"is_animal"`
	MaleQuantity    *int             `json:"male_quantity" binding:"omitempty,min=0"`
	FemaleQuantity  *int             `json:"female_quantity" binding:"omitempty,min=0"`
	UnknownQuantity *int             `json:"unknown_quantity" binding:"omitempty,min=0"`
	LaidDate        *string          `json:"laid_date" binding:"omitempty,datetime=2006-01-02"`
}

type ListProductsRequest struct {
	Page       int    `form:"page,default=1" binding:"min=1"`
	Limit      int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search     string `form:"search"`
	Sort       string `form:"sort,default=created_at" binding:"oneof=name price created_at"`
	Order      string `form:"order,default=desc" binding:"oneof=asc desc"`
	CategoryID string `form:"category_id" binding:"omitempty,uuid"`
}

type ProductResponse struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	Stock             *int            `json:"stock"`
	CategoryID        *uuid.UUID      `json:"category_id,omitempty"`
	ImageURL          string          `json:"image_url,omitempty"`
	IsAnimal          bool            `json:"is_animal"`
	MaleQuantity      int             `json:"male_quantity"`
	FemaleQuantity    int             `json:"female_quantity"`
	UnknownQuantity   int             `json:"unknown_quantity"`
	LaidDate          *string         `json:"laid_date,omitempty"`
	AvailableQuantity int             `json:"available_quantity"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type CartResponse struct {
	ID    *uuid.UUID         `json:"id,omitempty"`
	Items []CartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

type CartItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Available int             `json:"available"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// --- Checkout ---

type PaymentIntentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PublishableKey  string `json:"publishable_key"`
}

type CompleteCheckoutRequest struct {
	PaymentIntentID string `form:"payment_intent" binding:"required"`
}

type CheckoutResultResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Order   *OrderResponse `json:"order,omitempty"`
}

// --- Order ---

type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"user_id"`
	Status          model.OrderStatus   `json:"status"`
	TotalPrice      decimal.Decimal     `json:"total_price"`
	ShippingAddress string              `json:"shipping_address,omitempty"`
	PaymentIntentID string              `json:"payment_intent_id,omitempty"`
	Items           []OrderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type OrderItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   *uuid.UUID      `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

type ListOrdersRequest struct {
	Page   int    `form:"page,default=1" binding:"min=1"`
	Limit  int    `form:"limit,default=20" binding:"min=1,max=100"`
	Status string `form:"status"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// --- Message ---

type CreateMessageRequest struct {
	Name    string `json:"name" binding:"required,max=200"`
	Email   string `json:"email" binding:"required,email"`
	Subject string `json:"subject" binding:"max=200"`
	Body    string `json:"body" binding:"required"`
}

type ReplyMessageRequest struct {
	Response string `json:"response" binding:"required"`
}

type ListMessagesRequest struct {
	Status string `form:"status"`
}

type MessageResponse struct {
	ID          uuid.UUID           `json:"id"`
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Subject     string              `json:"subject"`
	Body        string              `json:"body"`
	Status      model.MessageStatus `json:"status"`
	Response    *string             `json:"response,omitempty"`
	RespondedAt *time.Time          `json:"responded_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}
