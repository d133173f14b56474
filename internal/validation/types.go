package validation

import "github.com/shopspring/decimal"

// CreateProductRequest is the payload for POST /products
type CreateProductRequest struct {
	Title       string  `json:"title" validate:"required"`
	Image       string  `json:"image"` // reference to an already uploaded image
	Description string  `json:"desc"`
	Category    string  `json:"category"`
	Price       float64 `json:"price" validate:"gte=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
}

// UpdateProductRequest is the payload for PUT /products/:id. At least one field is required.
type UpdateProductRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1"`
	Image       *string  `json:"image"`
	Description *string  `json:"desc"`
	Category    *string  `json:"category"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Stock       *int     `json:"stock" validate:"omitempty,gte=0"`
}

// StockChangeRequest is the payload for PUT /products/:id/stock
type StockChangeRequest struct {
	QuantityChange *int `json:"quantityChange" validate:"required"` // may be negative
}

// CreateCategoryRequest is the payload for POST /categories
type CreateCategoryRequest struct {
	Name string `json:"name" validate:"required"`
}

// RegisterRequest is the payload for POST /register
type RegisterRequest struct {
	Username    string `json:"username" validate:"required"`
	PhoneNumber string `json:"phonenumber" validate:"omitempty,numeric"`
	Address     string `json:"address"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest carries the new password. Emptiness is reported by the account service.
type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,user_role"`
}

// LineItem is a single product in an order.
type LineItem struct {
	ProductID   string `json:"productId" validate:"required"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity" validate:"required,min=1"`
	Image       string `json:"image"`
	Description string `json:"desc"`
}

// CreateOrderRequest is the payload for POST /orders. The payment method is
// checked by the order service so it can default an empty value.
type CreateOrderRequest struct {
	OrderID       string     `json:"orderId"`
	UserID        string     `json:"userId" validate:"required"`
	Username      string     `json:"username"`
	PhoneNumber   string     `json:"phoneNumber"`
	Email         string     `json:"email" validate:"omitempty,email"`
	Address       string     `json:"address"`
	Products      []LineItem `json:"products" validate:"required,min=1,max=98,dive"`
	Price         float64    `json:"price" validate:"gte=0"`
	PaymentMethod string     `json:"paymentMethod"`
}

// UpdateOrderRequest is the payload for PUT /orders/:id. At least one field is required.
type UpdateOrderRequest struct {
	Status         *string `json:"status" validate:"omitempty,order_status"`
	DeliveryStatus *string `json:"deliveryStatus" validate:"omitempty,delivery_status"`
}

// InitializePaymentRequest is the payload for POST /initialize-esewa
type InitializePaymentRequest struct {
	ItemID     string          `json:"itemId" validate:"required"`
	TotalPrice decimal.Decimal `json:"totalPrice" validate:"gt=0"`
}
