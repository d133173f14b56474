package orders

import (
	"errors"
	"time"
)

// MaxLineItems bounds an order so placement fits in a single DynamoDB transaction
// alongside the order put and its reference claim.
const MaxLineItems = 98

// Payment methods
const (
	PaymentEsewa      = "esewa"
	PaymentKhalti     = "khalti"
	PaymentCashInHand = "Cash in hand"

	DefaultPaymentMethod = PaymentCashInHand
)

// Order statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
)

// Delivery statuses
const (
	DeliveryInProgress = "in progress"
	DeliveryCompleted  = "completed"
)

// ErrNotFound is returned by updates on an order that does not exist.
var ErrNotFound = errors.New("order not found")

func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentEsewa, PaymentKhalti, PaymentCashInHand:
		return true
	}
	return false
}

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRefunded:
		return true
	}
	return false
}

func ValidDeliveryStatus(s string) bool {
	return s == DeliveryInProgress || s == DeliveryCompleted
}

// LineItem is a product snapshot inside an order. The name, image and desc are
// copied at purchase time and never refreshed from the catalog.
type LineItem struct {
	ProductID   string `dynamodbav:"product_id" json:"productId"`
	Name        string `dynamodbav:"name" json:"name"`
	Quantity    int    `dynamodbav:"quantity" json:"quantity"`
	Image       string `dynamodbav:"image,omitempty" json:"image"`
	Description string `dynamodbav:"desc,omitempty" json:"desc"`
}

// Order represents the item stored in the orders table.
type Order struct {
	OrderID        string     `dynamodbav:"order_id" json:"id"`       // PK
	OrderRef       string     `dynamodbav:"order_ref" json:"orderId"` // externally supplied, unique
	UserID         string     `dynamodbav:"user_id" json:"userId"`    // GSI user_id-index
	Username       string     `dynamodbav:"username" json:"username"`
	PhoneNumber    string     `dynamodbav:"phone_number" json:"phoneNumber"`
	Email          string     `dynamodbav:"email" json:"email"`
	Address        string     `dynamodbav:"address" json:"address"`
	Products       []LineItem `dynamodbav:"products" json:"products"`
	Price          float64    `dynamodbav:"price" json:"price"`
	PaymentMethod  string     `dynamodbav:"payment_method" json:"paymentMethod"`
	Status         string     `dynamodbav:"status" json:"status"`
	DeliveryStatus string     `dynamodbav:"delivery_status" json:"deliveryStatus"`
	PurchaseDate   time.Time  `dynamodbav:"purchase_date" json:"purchaseDate"`
	CreatedAt      time.Time  `dynamodbav:"created_at" json:"-"`
	UpdatedAt      time.Time  `dynamodbav:"updated_at" json:"-"`
}

// Quantities sums line-item quantities per product, in first-seen order.
func (o *Order) Quantities() ([]string, map[string]int) {
	ids := []string{}
	qty := map[string]int{}
	for _, li := range o.Products {
		if _, ok := qty[li.ProductID]; !ok {
			ids = append(ids, li.ProductID)
		}
		qty[li.ProductID] += li.Quantity
	}
	return ids, qty
}
