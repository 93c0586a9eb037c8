// Package db is the storage layer for the local event replica. The replica
// is single-writer (the inbound listener) and multi-reader; it is a
// best-effort cache, never authoritative for event existence or timing.
package db

import (
	"context"
	"database/sql"
	"errors"
	"ms-registration/internal/apperr"
	"ms-registration/internal/models"
	"time"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetEvent fetches the replica row for an event.
func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.EventReplica, error) {
	var event models.EventReplica
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("event %s not in replica", eventID)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// UpsertActive creates or updates the replica row for a published event and
// marks it active. Redundant deliveries of the same notification are no-ops
// by construction. endTime is kept when the notification omits it so a
// sparse republish does not erase cached timing data.
func (d *DB) UpsertActive(ctx context.Context, eventID string, capacity int, endTime *time.Time) error {
	event := models.EventReplica{
		ID:        eventID,
		Capacity:  capacity,
		IsActive:  true,
		EndTime:   endTime,
		UpdatedAt: time.Now(),
	}

	q := d.Bun.NewInsert().
		Model(&event).
		On("CONFLICT (id) DO UPDATE").
		Set("capacity = EXCLUDED.capacity").
		Set("is_active = EXCLUDED.is_active").
		Set("updated_at = EXCLUDED.updated_at")
	if endTime != nil {
		q = q.Set("end_time = EXCLUDED.end_time")
	}

	_, err := q.Exec(ctx)
	return err
}

// Deactivate marks an event inactive. If no row exists yet (cancellation
// delivered before publication), an inactive placeholder is written so the
// cancellation is not lost and bookings stay closed for the event.
func (d *DB) Deactivate(ctx context.Context, eventID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.EventReplica)(nil)).
		Set("is_active = ?", false).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		placeholder := models.EventReplica{
			ID:        eventID,
			Capacity:  0,
			IsActive:  false,
			UpdatedAt: time.Now(),
		}
		_, err = d.Bun.NewInsert().
			Model(&placeholder).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
	}
	return err
}
