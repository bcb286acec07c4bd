package models

import "time"

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutApproved PayoutStatus = "approved"
	PayoutPaid     PayoutStatus = "paid"
	PayoutRejected PayoutStatus = "rejected"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutPending:  {PayoutApproved, PayoutRejected},
	PayoutApproved: {PayoutPaid, PayoutRejected},
}

func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	for _, allowed := range payoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PayoutRequest batches a restaurant's completed online transactions for
// settlement. TransactionIDs are pairwise disjoint across all requests for a
// restaurant: a transaction is claimed by at most one payout.
type PayoutRequest struct {
	ID             string       `bson:"_id" json:"id"`
	RestaurantID   string       `bson:"restaurant_id" json:"restaurant_id"`
	Amount         float64      `bson:"amount" json:"amount"`
	PeriodStart    time.Time    `bson:"period_start" json:"period_start"`
	PeriodEnd      time.Time    `bson:"period_end" json:"period_end"`
	TransactionIDs []string     `bson:"transaction_ids" json:"transaction_ids"`
	Status         PayoutStatus `bson:"status" json:"status"`
	CreatedAt      time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `bson:"updated_at" json:"updated_at"`
}
