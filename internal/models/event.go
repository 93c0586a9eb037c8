package models

import (
	"time"

	"github.com/uptrace/bun"
)

// EventReplica is the local, non-authoritative cache of upstream event
// state. It is written only by the inbound listener; booking logic reads it.
// Rows are never deleted, only marked inactive. EndTime is cached when the
// upstream notification carries it and may be absent.
type EventReplica struct {
	bun.BaseModel `bun:"table:event_replicas"`

	ID        string     `bun:"id,pk" json:"id"`
	Capacity  int        `bun:"capacity,notnull" json:"capacity"`
	IsActive  bool       `bun:"is_active" json:"is_active"`
	EndTime   *time.Time `bun:"end_time,nullzero" json:"end_time,omitempty"`
	UpdatedAt time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// Freshness tags a value derived from replica or upstream data so callers
// can tell a confident value from a degraded fallback.
type Freshness string

const (
	FreshnessFresh    Freshness = "FRESH"
	FreshnessFallback Freshness = "STALE_FALLBACK_USED"
)

// UpstreamEvent is the slice of the event-catalog service's record that the
// core consumes through the synchronous lookup.
type UpstreamEvent struct {
	ID        string    `json:"id"`
	Capacity  int       `json:"capacity"`
	IsActive  bool      `json:"is_active"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}
