package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-registration/internal/models"
	"ms-registration/internal/tickets/db"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	if err := bunDB.ResetModel(ctx, (*models.Ticket)(nil), (*models.ScanCode)(nil)); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	t.Cleanup(func() { _ = bunDB.Close() })
	return &db.DB{Bun: bunDB}
}

func sampleTicket(id, bookingID string) models.Ticket {
	return models.Ticket{
		ID:        id,
		BookingID: bookingID,
		Status:    models.TicketIssued,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func sampleScanCode(id, ticketID, payload string) models.ScanCode {
	return models.ScanCode{
		ID:       id,
		TicketID: ticketID,
		Payload:  payload,
		Format:   models.ScanCodeFormatQR,
	}
}

func TestCreateTicketWithScanCodeAndLookups(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ticket := sampleTicket("t1", "booking1")
	code := sampleScanCode("c1", "t1", "payload-abc")

	if err := store.CreateTicketWithScanCode(ctx, ticket, code); err != nil {
		t.Fatalf("Failed to create ticket with scan code: %v", err)
	}

	byID, err := store.GetTicketByID(ctx, "t1")
	if err != nil {
		t.Fatalf("Failed to get ticket by ID: %v", err)
	}
	if byID == nil || byID.ScanCode == nil {
		t.Fatal("Expected ticket with scan code attached")
	}
	if byID.ScanCode.Payload != "payload-abc" {
		t.Errorf("Expected payload 'payload-abc', got %s", byID.ScanCode.Payload)
	}

	byBooking, err := store.GetTicketByBooking(ctx, "booking1")
	if err != nil {
		t.Fatalf("Failed to get ticket by booking: %v", err)
	}
	if byBooking == nil || byBooking.ID != "t1" {
		t.Errorf("Expected ticket t1 for booking1, got %+v", byBooking)
	}

	byPayload, err := store.GetTicketByPayload(ctx, "payload-abc")
	if err != nil {
		t.Fatalf("Failed to get ticket by payload: %v", err)
	}
	if byPayload == nil || byPayload.ID != "t1" {
		t.Errorf("Expected ticket t1 for payload, got %+v", byPayload)
	}

	missing, err := store.GetTicketByPayload(ctx, "unknown")
	if err != nil {
		t.Fatalf("Expected no error for unknown payload, got %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for unknown payload")
	}
}

func TestDuplicateBookingTicketRejected(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.CreateTicketWithScanCode(ctx, sampleTicket("t1", "booking1"), sampleScanCode("c1", "t1", "p1")); err != nil {
		t.Fatalf("Failed to create first ticket: %v", err)
	}

	err := store.CreateTicketWithScanCode(ctx, sampleTicket("t2", "booking1"), sampleScanCode("c2", "t2", "p2"))
	if err == nil {
		t.Fatal("Expected unique violation for second ticket on same booking")
	}
	if !store.IsUniqueViolation(err) {
		t.Errorf("Expected IsUniqueViolation to report true for: %v", err)
	}

	// The failed transaction must not leave an orphan scan code behind.
	orphan, err := store.GetTicketByPayload(ctx, "p2")
	if err != nil {
		t.Fatalf("Failed payload lookup: %v", err)
	}
	if orphan != nil {
		t.Error("Expected scan code insert to roll back with the ticket")
	}
}

func TestDuplicatePayloadRejected(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.CreateTicketWithScanCode(ctx, sampleTicket("t1", "booking1"), sampleScanCode("c1", "t1", "shared-payload")); err != nil {
		t.Fatalf("Failed to create first ticket: %v", err)
	}

	err := store.CreateTicketWithScanCode(ctx, sampleTicket("t2", "booking2"), sampleScanCode("c2", "t2", "shared-payload"))
	if err == nil {
		t.Fatal("Expected unique violation for duplicate payload")
	}
	if !store.IsUniqueViolation(err) {
		t.Errorf("Expected IsUniqueViolation to report true for: %v", err)
	}

	// The ticket insert from the failed pair must have rolled back too.
	ticket, err := store.GetTicketByBooking(ctx, "booking2")
	if err != nil {
		t.Fatalf("Failed booking lookup: %v", err)
	}
	if ticket != nil {
		t.Error("Expected ticket insert to roll back with the scan code")
	}
}

func TestUpdateTicket(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.CreateTicketWithScanCode(ctx, sampleTicket("t1", "booking1"), sampleScanCode("c1", "t1", "p1")); err != nil {
		t.Fatalf("Failed to create ticket: %v", err)
	}

	ticket, _ := store.GetTicketByID(ctx, "t1")
	now := time.Now()
	ticket.Status = models.TicketScanned
	ticket.ScannedAt = &now

	if err := store.UpdateTicket(ctx, *ticket); err != nil {
		t.Fatalf("Failed to update ticket: %v", err)
	}

	updated, _ := store.GetTicketByID(ctx, "t1")
	if updated.Status != models.TicketScanned {
		t.Errorf("Expected status SCANNED, got %s", updated.Status)
	}
	if updated.ScannedAt == nil {
		t.Error("Expected scanned_at to be set")
	}
}
