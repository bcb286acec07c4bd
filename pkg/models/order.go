package models

import (
	"time"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// orderRank orders the forward progression. Cancellation is handled
// separately: it is reachable from any non-terminal status.
var orderRank = map[OrderStatus]int{
	OrderPending:   0,
	OrderConfirmed: 1,
	OrderPreparing: 2,
	OrderReady:     3,
	OrderDelivered: 4,
}

func (s OrderStatus) Valid() bool {
	_, ok := orderRank[s]
	return ok || s == OrderCancelled
}

func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// CanTransitionTo reports whether next is a legal move: strictly forward
// through the progression, or cancellation from any non-terminal state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == OrderCancelled {
		return true
	}
	from, ok := orderRank[s]
	if !ok {
		return false
	}
	to, ok := orderRank[next]
	if !ok {
		return false
	}
	return to > from
}

// OrderLine is a CartLine frozen with its priced amounts at checkout.
type OrderLine struct {
	ItemID    string   `bson:"item_id" json:"item_id"`
	ItemName  string   `bson:"item_name" json:"item_name"`
	Variant   *Variant `bson:"variant,omitempty" json:"variant,omitempty"`
	Addons    []Addon  `bson:"addons,omitempty" json:"addons,omitempty"`
	Quantity  int      `bson:"quantity" json:"quantity"`
	UnitPrice float64  `bson:"unit_price" json:"unit_price"`
	LineTotal float64  `bson:"line_total" json:"line_total"`
}

// Order is created exactly once at successful checkout and is immutable apart
// from its status progression.
type Order struct {
	ID           string       `bson:"_id" json:"id"`
	RestaurantID string       `bson:"restaurant_id" json:"restaurant_id"`
	CustomerID   string       `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	IsGuest      bool         `bson:"is_guest" json:"is_guest"`
	Customer     CustomerInfo `bson:"customer" json:"customer"`
	Lines        []OrderLine  `bson:"lines" json:"lines"`
	Subtotal     float64      `bson:"subtotal" json:"subtotal"`
	DeliveryFee  float64      `bson:"delivery_fee" json:"delivery_fee"`
	Tax          float64      `bson:"tax" json:"tax"`
	Discount     float64      `bson:"discount" json:"discount"`
	Total        float64      `bson:"total" json:"total"`
	Status       OrderStatus  `bson:"status" json:"status"`
	CreatedAt    time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at" json:"updated_at"`
}
