package db

import (
	"context"
	"database/sql"
	"errors"
	"ms-registration/internal/models"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// CreateBooking inserts a new booking row. The unique index on
// (user_id, event_id) backstops duplicate pairs under concurrency.
func (d *DB) CreateBooking(ctx context.Context, booking models.Booking) error {
	_, err := d.Bun.NewInsert().Model(&booking).Exec(ctx)
	return err
}

// GetBookingByID fetches one booking by its ID; nil without error when the
// row is absent.
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBookingByUserAndEvent fetches the booking for a (user, event) pair in
// any status; nil without error when none exists.
func (d *DB) GetBookingByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateBooking writes the mutable booking fields.
func (d *DB) UpdateBooking(ctx context.Context, booking models.Booking) error {
	_, err := d.Bun.NewUpdate().
		Model(&booking).
		Column("status", "is_attended", "joined_at", "updated_at").
		Where("id = ?", booking.ID).
		Exec(ctx)
	return err
}

// CountConfirmedByEvent returns the live CONFIRMED count for an event.
// Capacity is always derived by recounting rather than from a cached
// counter, so a cancellation implicitly frees its slot on the next check.
func (d *DB) CountConfirmedByEvent(ctx context.Context, eventID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", models.BookingConfirmed).
		Count(ctx)
}

// CancelAllForEvent bulk-flips every CONFIRMED booking for the event to
// CANCELLED and returns the number of rows affected. Re-running after all
// are cancelled affects zero rows.
func (d *DB) CancelAllForEvent(ctx context.Context, eventID string) (int, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingCancelled).
		Set("updated_at = ?", time.Now()).
		Where("event_id = ?", eventID).
		Where("status = ?", models.BookingConfirmed).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// ListByUser returns one page of a user's bookings, newest first, with an
// optional status filter.
func (d *DB) ListByUser(ctx context.Context, userID string, status models.BookingStatus, page, limit int) (*models.BookingPage, error) {
	var bookings []models.Booking
	q := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID)
	return listPage(ctx, q, &bookings, status, page, limit)
}

// ListByEvent returns one page of an event's bookings, newest first, with
// an optional status filter.
func (d *DB) ListByEvent(ctx context.Context, eventID string, status models.BookingStatus, page, limit int) (*models.BookingPage, error) {
	var bookings []models.Booking
	q := d.Bun.NewSelect().
		Model(&bookings).
		Where("event_id = ?", eventID)
	return listPage(ctx, q, &bookings, status, page, limit)
}

func listPage(ctx context.Context, q *bun.SelectQuery, bookings *[]models.Booking, status models.BookingStatus, page, limit int) (*models.BookingPage, error) {
	if status != "" {
		q = q.Where("status = ?", status)
	}

	total, err := q.Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, err
	}

	return &models.BookingPage{
		Bookings: *bookings,
		Page:     page,
		Limit:    limit,
		Total:    total,
	}, nil
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func (d *DB) IsUniqueViolation(err error) bool {
	return IsUniqueViolation(err)
}

// IsUniqueViolation reports whether err is a unique-constraint failure from
// either Postgres or the SQLite driver used in tests.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
