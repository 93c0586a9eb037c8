package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Booking is the system of record for who holds a seat. At most one row
// ever exists per (user_id, event_id) pair, regardless of status history.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID         string        `bun:"id,pk" json:"id"`
	UserID     string        `bun:"user_id,notnull,unique:bookings_user_event" json:"user_id"`
	EventID    string        `bun:"event_id,notnull,unique:bookings_user_event" json:"event_id"`
	Status     BookingStatus `bun:"status,notnull" json:"status"`
	IsAttended bool          `bun:"is_attended" json:"is_attended"`
	JoinedAt   *time.Time    `bun:"joined_at,nullzero" json:"joined_at,omitempty"`
	CreatedAt  time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt  time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// Availability is the result of an admission check against an event's
// capacity. RemainingSlots never goes below zero.
type Availability struct {
	EventID        string `json:"event_id"`
	IsAvailable    bool   `json:"is_available"`
	ConfirmedCount int    `json:"confirmed_count"`
	Capacity       int    `json:"capacity"`
	RemainingSlots int    `json:"remaining_slots"`
}

// BookingPage holds one page of a paginated booking listing.
type BookingPage struct {
	Bookings []Booking `json:"bookings"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	Total    int       `json:"total"`
}
