package models

import "time"

// Routing keys for the outbound notification exchange.
const (
	RouteBookingConfirmed = "booking.confirmed"
	RouteBookingCancelled = "booking.cancelled"
	RouteTicketGenerated  = "ticket.generated"
)

// Routing keys consumed from the upstream event-catalog exchange.
const (
	RouteEventPublished = "event.published"
	RouteEventCancelled = "event.cancelled"
)

// Notifications are at-least-once and fire-and-forget; consumers are
// expected to de-duplicate by id.

type BookingConfirmedNotification struct {
	BookingID string    `json:"booking_id"`
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

type BookingCancelledNotification struct {
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	EventID   string `json:"event_id"`
	// CancelledCount is set on cascade cancellations, where a single
	// event-level message with a count replaces per-booking messages.
	CancelledCount int       `json:"cancelled_count,omitempty"`
	CancelledAt    time.Time `json:"cancelled_at"`
}

type TicketGeneratedNotification struct {
	TicketID        string    `json:"ticket_id"`
	BookingID       string    `json:"booking_id"`
	UserID          string    `json:"user_id"`
	EventID         string    `json:"event_id"`
	ScanCodePayload string    `json:"scan_code_payload"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type EventPublishedNotification struct {
	EventID  string     `json:"event_id"`
	Capacity int        `json:"capacity"`
	EndTime  *time.Time `json:"end_time,omitempty"`
}

type EventCancelledNotification struct {
	EventID string `json:"event_id"`
}
