package domain

import "time"

// OrderStatus enumerates parcel order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits a helper.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusAccepted indicates a helper has taken the order.
	OrderStatusAccepted OrderStatus = "accepted"
	// OrderStatusPicked indicates the parcel has been collected.
	OrderStatusPicked OrderStatus = "picked"
	// OrderStatusDelivered indicates the helper handed the parcel over.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCompleted indicates the customer confirmed receipt.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was abandoned.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible from the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// ActorRole is the role an authenticated caller holds for authorization decisions.
type ActorRole string

const (
	// ActorRoleUser is an ordinary platform member.
	ActorRoleUser ActorRole = "user"
	// ActorRoleAdmin may operate on any order.
	ActorRoleAdmin ActorRole = "admin"
)

// Actor identifies who performs a command.
type Actor struct {
	ID   string
	Role ActorRole
}

// IsAdmin reports whether the actor holds the administrative role.
func (a Actor) IsAdmin() bool {
	return a.Role == ActorRoleAdmin
}

// Order is the parcel pickup aggregate. Timeline and rating are embedded so that the audit
// trail is written with the status it describes.
type Order struct {
	ID            string
	OrderNumber   string
	CustomerID    string
	HelperID      string
	Status        OrderStatus
	Description   string
	PickupCode    string
	Destination   string
	Reward        int64
	PaymentStatus string
	Timeline      []TimelineEntry
	Rating        *OrderRating
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	// Revision increases on every write and backs conditional updates.
	Revision int64
}

// HasHelper reports whether the order has been accepted by someone.
func (o Order) HasHelper() bool {
	return o.HelperID != ""
}

// IsParticipant reports whether userID is the customer or the helper.
func (o Order) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == o.CustomerID || userID == o.HelperID
}

// Counterparty returns the participant other than actorID. An admin acting on an order
// notifies the customer.
func (o Order) Counterparty(actorID string) string {
	if actorID == o.CustomerID {
		return o.HelperID
	}
	return o.CustomerID
}

// TimelineEntry is one immutable audit event on an order.
type TimelineEntry struct {
	Action     string
	Status     OrderStatus
	Timestamp  time.Time
	OperatorID string
	Note       string
}

// OrderRating is the customer's score for a completed order.
type OrderRating struct {
	Score     int
	Comment   string
	RatedBy   string
	CreatedAt time.Time
}
