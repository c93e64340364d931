package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusSubmitted OrderStatus = "submitted"
	// OrderStatusCancelled is never stored: cancelling deletes the order.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order mirrors the stored order document.
type Order struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Status      OrderStatus        `bson:"status" json:"status"`
	Cart        []int64            `bson:"cart" json:"cart"`
	FirstName   string             `bson:"firstName" json:"firstName"`
	LastName    string             `bson:"lastName" json:"lastName"`
	Phone       string             `bson:"phone" json:"phone"`
	Method      string             `bson:"method,omitempty" json:"method,omitempty"`
	Gift        *bool              `bson:"gift,omitempty" json:"gift,omitempty"`
	Total       float64            `bson:"total,omitempty" json:"total,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	SubmittedAt *time.Time         `bson:"submittedAt,omitempty" json:"submittedAt,omitempty"`
}

// DecodeOrder converts a stored order record into an Order. Numeric cart
// entries decoded from JSON as whole floats are accepted.
func DecodeOrder(r Record) (Order, error) {
	data, err := bson.Marshal(r)
	if err != nil {
		return Order{}, fmt.Errorf("encode order: %w", err)
	}
	var o Order
	if err := bson.Unmarshal(data, &o); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	return o, nil
}

// NewPendingOrder returns the record stored when an order is started.
func NewPendingOrder(now time.Time) Record {
	return Record{
		"status":    string(OrderStatusPending),
		"cart":      []int64{},
		"firstName": "",
		"lastName":  "",
		"phone":     "",
		"createdAt": now,
	}
}

// Submission is the checkout data copied onto an order when it is submitted.
type Submission struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Phone     string   `json:"phone"`
	Method    string   `json:"method,omitempty"`
	Gift      *bool    `json:"gift,omitempty"`
	Cart      []int64  `json:"cart"`
	Total     *float64 `json:"total,omitempty"`
}

// Patch returns the field-set applied to the order record on submission.
func (s Submission) Patch(now time.Time) Record {
	patch := Record{
		"status":      string(OrderStatusSubmitted),
		"firstName":   s.FirstName,
		"lastName":    s.LastName,
		"phone":       s.Phone,
		"cart":        append([]int64{}, s.Cart...),
		"submittedAt": now,
	}
	if s.Total != nil {
		patch["total"] = *s.Total
	}
	if s.Method != "" {
		patch["method"] = s.Method
	}
	if s.Gift != nil {
		patch["gift"] = *s.Gift
	}
	return patch
}
