package models

import "time"

type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "online"
	PaymentCash   PaymentMethod = "cash"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Terminal reports whether the status may never be rewritten. Corrections to
// a terminal transaction are appended as new records via CorrectsID.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentRefunded
}

type TransactionType string

const (
	TransactionOnline  TransactionType = "online"
	TransactionOffline TransactionType = "offline"
)

// Transaction is one append-only record of money movement, captured (online)
// or promised (cash on delivery). Exactly one transaction exists per order.
type Transaction struct {
	ID               string          `bson:"_id" json:"id"`
	OrderID          string          `bson:"order_id" json:"order_id"`
	RestaurantID     string          `bson:"restaurant_id" json:"restaurant_id"`
	Customer         CustomerInfo    `bson:"customer" json:"customer"`
	Amount           float64         `bson:"amount" json:"amount"`
	Currency         string          `bson:"currency" json:"currency"`
	PaymentMethod    PaymentMethod   `bson:"payment_method" json:"payment_method"`
	PaymentStatus    PaymentStatus   `bson:"payment_status" json:"payment_status"`
	ProcessingFee    float64         `bson:"processing_fee" json:"processing_fee"`
	NetAmount        float64         `bson:"net_amount" json:"net_amount"`
	TransactionType  TransactionType `bson:"transaction_type" json:"transaction_type"`
	GatewayPaymentID string          `bson:"gateway_payment_id,omitempty" json:"gateway_payment_id,omitempty"`
	// PayoutID is stamped when a payout request claims this transaction.
	PayoutID   string    `bson:"payout_id,omitempty" json:"payout_id,omitempty"`
	CorrectsID string    `bson:"corrects_id,omitempty" json:"corrects_id,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}
