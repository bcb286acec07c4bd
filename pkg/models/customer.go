package models

// CustomerInfo is the contact snapshot frozen onto orders, transactions and
// reservations. Identity (uid) arrives separately from the auth collaborator.
type CustomerInfo struct {
	Name  string `bson:"name" json:"name"`
	Phone string `bson:"phone" json:"phone"`
	Email string `bson:"email" json:"email"`
}
