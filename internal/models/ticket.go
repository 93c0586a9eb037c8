package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketIssued  TicketStatus = "ISSUED"
	TicketScanned TicketStatus = "SCANNED"
	TicketRevoked TicketStatus = "REVOKED"
)

// ScanCodeFormatQR is the only format issued today; the column exists so
// downstream scanners can negotiate other formats later.
const ScanCodeFormatQR = "QR"

// Ticket is issued exactly once per CONFIRMED booking. FallbackExpiry marks
// tickets whose expiry was computed without authoritative event end-time
// data; it is an observability signal, not an error state.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:ticket"`

	ID             string       `bun:"id,pk" json:"id"`
	BookingID      string       `bun:"booking_id,notnull,unique" json:"booking_id"`
	Status         TicketStatus `bun:"status,notnull" json:"status"`
	IssuedAt       time.Time    `bun:"issued_at,notnull" json:"issued_at"`
	ExpiresAt      time.Time    `bun:"expires_at,notnull" json:"expires_at"`
	FallbackExpiry bool         `bun:"fallback_expiry" json:"fallback_expiry"`
	ScannedAt      *time.Time   `bun:"scanned_at,nullzero" json:"scanned_at,omitempty"`

	ScanCode *ScanCode `bun:"rel:has-one,join:id=ticket_id" json:"scan_code,omitempty"`
}

// ScanCode carries the opaque payload embedded in the ticket's
// machine-readable code. Payloads are globally unique across all tickets
// ever issued.
type ScanCode struct {
	bun.BaseModel `bun:"table:scan_codes"`

	ID       string `bun:"id,pk" json:"id"`
	TicketID string `bun:"ticket_id,notnull,unique" json:"ticket_id"`
	Payload  string `bun:"payload,notnull,unique" json:"payload"`
	Format   string `bun:"format,notnull" json:"format"`
}
