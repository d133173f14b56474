package catalog

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by mutations on a product or category that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned when an adjustment would drive stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is an item in the products table.
type Product struct {
	ProductID   string    `dynamodbav:"product_id" json:"id"`
	Title       string    `dynamodbav:"title" json:"title"`
	Image       string    `dynamodbav:"image,omitempty" json:"image"`
	Description string    `dynamodbav:"desc,omitempty" json:"desc"`
	Category    string    `dynamodbav:"category,omitempty" json:"category"`
	Price       float64   `dynamodbav:"price" json:"price"`
	Stock       int       `dynamodbav:"stock" json:"stock"`
	CreatedAt   time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

// ProductUpdate carries the fields of a partial product update. Nil fields are left alone.
type ProductUpdate struct {
	Title       *string
	Image       *string
	Description *string
	Category    *string
	Price       *float64
	Stock       *int
}

// Empty reports whether the update changes nothing.
func (u ProductUpdate) Empty() bool {
	return u.Title == nil && u.Image == nil && u.Description == nil &&
		u.Category == nil && u.Price == nil && u.Stock == nil
}

// Category is a free-text product grouping.
type Category struct {
	CategoryID string    `dynamodbav:"category_id" json:"id"`
	Name       string    `dynamodbav:"name" json:"name"`
	CreatedAt  time.Time `dynamodbav:"created_at" json:"createdAt"`
}
