package models

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:   {ReservationConfirmed, ReservationCancelled},
	ReservationConfirmed: {ReservationCompleted, ReservationCancelled},
}

func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reservation holds a booking request and, once confirmed, an optional table
// assignment. Two confirmed reservations may never share the same
// (table, date, time) triple.
type Reservation struct {
	ID           string            `bson:"_id" json:"id"`
	RestaurantID string            `bson:"restaurant_id" json:"restaurant_id"`
	Customer     CustomerInfo      `bson:"customer" json:"customer"`
	Date         string            `bson:"date" json:"date"` // YYYY-MM-DD
	Time         string            `bson:"time" json:"time"` // HH:MM slot start
	PartySize    int               `bson:"party_size" json:"party_size"`
	Status       ReservationStatus `bson:"status" json:"status"`
	TableNumber  string            `bson:"table_number,omitempty" json:"table_number,omitempty"`
	SpecialReq   string            `bson:"special_request,omitempty" json:"special_request,omitempty"`
	PreOrderIDs  []string          `bson:"pre_order_ids,omitempty" json:"pre_order_ids,omitempty"`
	CreatedAt    time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at" json:"updated_at"`
}
