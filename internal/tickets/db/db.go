package db

import (
	"context"
	"database/sql"
	"errors"
	"ms-registration/internal/models"
	"strings"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetTicketByID fetches a ticket with its scan code; nil without error when
// absent.
func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Relation("ScanCode").
		Where("ticket.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketByBooking fetches the ticket for a booking, if one was issued.
func (d *DB) GetTicketByBooking(ctx context.Context, bookingID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Relation("ScanCode").
		Where("ticket.booking_id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketByPayload resolves a scan code payload back to its ticket.
func (d *DB) GetTicketByPayload(ctx context.Context, payload string) (*models.Ticket, error) {
	var code models.ScanCode
	err := d.Bun.NewSelect().
		Model(&code).
		Where("payload = ?", payload).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ticket, err := d.GetTicketByID(ctx, code.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket != nil && ticket.ScanCode == nil {
		ticket.ScanCode = &code
	}
	return ticket, nil
}

// CreateTicketWithScanCode persists a ticket and its scan code as one
// transaction. A ticket must never exist without its scan code.
func (d *DB) CreateTicketWithScanCode(ctx context.Context, ticket models.Ticket, code models.ScanCode) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&ticket).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&code).Exec(ctx)
		return err
	})
}

// UpdateTicket writes the mutable ticket fields.
func (d *DB) UpdateTicket(ctx context.Context, ticket models.Ticket) error {
	_, err := d.Bun.NewUpdate().
		Model(&ticket).
		Column("status", "scanned_at").
		Where("id = ?", ticket.ID).
		Exec(ctx)
	return err
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func (d *DB) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
