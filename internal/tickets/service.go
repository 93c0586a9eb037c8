package tickets

import (
	"context"
	"fmt"
	"ms-registration/internal/apperr"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/utils"
	"time"

	"github.com/google/uuid"
)

type DBLayer interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketByBooking(ctx context.Context, bookingID string) (*models.Ticket, error)
	GetTicketByPayload(ctx context.Context, payload string) (*models.Ticket, error)
	CreateTicketWithScanCode(ctx context.Context, ticket models.Ticket, code models.ScanCode) error
	UpdateTicket(ctx context.Context, ticket models.Ticket) error
	IsUniqueViolation(err error) bool
}

type BookingLayer interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, booking models.Booking) error
}

type ReplicaLayer interface {
	GetEvent(ctx context.Context, eventID string) (*models.EventReplica, error)
}

// CatalogClient is the live upstream lookup, used when the replica lacks
// end-time data.
type CatalogClient interface {
	GetEvent(ctx context.Context, eventID string) (*models.UpstreamEvent, error)
}

type Publisher interface {
	PublishTicketGenerated(ctx context.Context, note models.TicketGeneratedNotification) error
}

type TicketService struct {
	DB       DBLayer
	Bookings BookingLayer
	Replica  ReplicaLayer
	Catalog  CatalogClient
	Notify   Publisher
	Logger   *logger.Logger

	// GraceWindow extends the event end time; FallbackWindow runs from
	// issuance when no end time can be determined.
	GraceWindow    time.Duration
	FallbackWindow time.Duration
	MaxAttempts    int
}

func NewTicketService(db DBLayer, bookings BookingLayer, replica ReplicaLayer, catalog CatalogClient, notify Publisher, log *logger.Logger, grace, fallback time.Duration, maxAttempts int) *TicketService {
	return &TicketService{
		DB:             db,
		Bookings:       bookings,
		Replica:        replica,
		Catalog:        catalog,
		Notify:         notify,
		Logger:         log,
		GraceWindow:    grace,
		FallbackWindow: fallback,
		MaxAttempts:    maxAttempts,
	}
}

// Issue creates the single ticket for a CONFIRMED booking. Calling it again
// for the same booking returns the existing ticket unchanged. Expiry is
// immutable after issuance; a later successful catalog lookup does not
// retroactively correct a fallback expiry.
func (s *TicketService) Issue(ctx context.Context, bookingID, userID, eventID string) (*models.Ticket, error) {
	if existing, err := s.DB.GetTicketByBooking(ctx, bookingID); err != nil {
		return nil, apperr.Transientf("look up ticket for booking %s: %v", bookingID, err)
	} else if existing != nil {
		return existing, nil
	}

	booking, err := s.Bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Transientf("look up booking %s: %v", bookingID, err)
	}
	if booking == nil {
		return nil, apperr.NotFoundf("booking %s not found", bookingID)
	}
	if booking.Status != models.BookingConfirmed {
		return nil, apperr.InvalidStatef("booking %s is %s, only CONFIRMED bookings get tickets", bookingID, booking.Status)
	}

	issuedAt := time.Now()
	expiresAt, freshness := s.resolveExpiry(ctx, eventID, issuedAt)
	if freshness == models.FreshnessFallback {
		s.Logger.Warn("TICKET", fmt.Sprintf("No end time for event %s, using fallback expiry for booking %s", eventID, bookingID))
	}

	ticket := models.Ticket{
		ID:             uuid.NewString(),
		BookingID:      bookingID,
		Status:         models.TicketIssued,
		IssuedAt:       issuedAt,
		ExpiresAt:      expiresAt,
		FallbackExpiry: freshness == models.FreshnessFallback,
	}

	for attempt := 0; attempt < s.MaxAttempts; attempt++ {
		code := models.ScanCode{
			ID:       uuid.NewString(),
			TicketID: ticket.ID,
			Payload:  utils.GenerateScanPayload(),
			Format:   models.ScanCodeFormatQR,
		}

		err := s.DB.CreateTicketWithScanCode(ctx, ticket, code)
		if err == nil {
			ticket.ScanCode = &code
			s.Logger.LogTicket("ISSUE", ticket.ID, fmt.Sprintf("Issued for booking %s, expires %s", bookingID, expiresAt.Format(time.RFC3339)))
			s.publishGenerated(ctx, ticket, booking)
			return &ticket, nil
		}
		if !s.DB.IsUniqueViolation(err) {
			return nil, apperr.Transientf("persist ticket for booking %s: %v", bookingID, err)
		}

		// Either a concurrent issuance won the booking_id constraint, or the
		// payload collided. The former is resolved by returning the winner.
		if winner, lookupErr := s.DB.GetTicketByBooking(ctx, bookingID); lookupErr == nil && winner != nil {
			return winner, nil
		}
		s.Logger.Warn("TICKET", fmt.Sprintf("Scan code collision for booking %s, regenerating (attempt %d/%d)", bookingID, attempt+1, s.MaxAttempts))
	}

	return nil, fmt.Errorf("%w: gave up after %d attempts for booking %s", apperr.ErrScanCodeGeneration, s.MaxAttempts, bookingID)
}

// resolveExpiry prefers the cached replica end time, then a live catalog
// lookup, then the conservative fallback window.
func (s *TicketService) resolveExpiry(ctx context.Context, eventID string, issuedAt time.Time) (time.Time, models.Freshness) {
	if event, err := s.Replica.GetEvent(ctx, eventID); err == nil && event.EndTime != nil {
		return event.EndTime.Add(s.GraceWindow), models.FreshnessFresh
	}

	if s.Catalog != nil {
		upstream, err := s.Catalog.GetEvent(ctx, eventID)
		if err == nil && !upstream.EndTime.IsZero() {
			return upstream.EndTime.Add(s.GraceWindow), models.FreshnessFresh
		}
		if err != nil {
			s.Logger.Warn("TICKET", fmt.Sprintf("Catalog lookup for event %s failed: %v", eventID, err))
		}
	}

	return issuedAt.Add(s.FallbackWindow), models.FreshnessFallback
}

func (s *TicketService) publishGenerated(ctx context.Context, ticket models.Ticket, booking *models.Booking) {
	note := models.TicketGeneratedNotification{
		TicketID:  ticket.ID,
		BookingID: ticket.BookingID,
		UserID:    booking.UserID,
		EventID:   booking.EventID,
		IssuedAt:  ticket.IssuedAt,
		ExpiresAt: ticket.ExpiresAt,
	}
	if ticket.ScanCode != nil {
		note.ScanCodePayload = ticket.ScanCode.Payload
	}
	if err := s.Notify.PublishTicketGenerated(ctx, note); err != nil {
		s.Logger.Error("TICKET", fmt.Sprintf("Failed to publish ticket-generated for %s: %v", ticket.ID, err))
	}
}

// GetTicket fetches a ticket by ID.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, apperr.Transientf("look up ticket %s: %v", ticketID, err)
	}
	if ticket == nil {
		return nil, apperr.NotFoundf("ticket %s not found", ticketID)
	}
	return ticket, nil
}

// Revoke marks a ticket REVOKED. Revocation is terminal; there is no
// un-revoke.
func (s *TicketService) Revoke(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.TicketRevoked {
		return nil, apperr.Conflictf("ticket %s is already revoked", ticketID)
	}

	ticket.Status = models.TicketRevoked
	if err := s.DB.UpdateTicket(ctx, *ticket); err != nil {
		return nil, apperr.Transientf("revoke ticket %s: %v", ticketID, err)
	}
	s.Logger.LogTicket("REVOKE", ticket.ID, "Revoked")
	return ticket, nil
}

// Scan redeems a scan code at entry: the ticket flips to SCANNED and the
// owning booking is marked attended. Expired, revoked and already-scanned
// codes are rejected.
func (s *TicketService) Scan(ctx context.Context, payload string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByPayload(ctx, payload)
	if err != nil {
		return nil, apperr.Transientf("look up scan code: %v", err)
	}
	if ticket == nil {
		return nil, apperr.NotFoundf("unknown scan code")
	}

	now := time.Now()
	switch {
	case ticket.Status == models.TicketRevoked:
		return nil, apperr.InvalidStatef("ticket %s is revoked", ticket.ID)
	case ticket.Status == models.TicketScanned:
		return nil, apperr.Conflictf("ticket %s was already scanned", ticket.ID)
	case now.After(ticket.ExpiresAt):
		return nil, apperr.InvalidStatef("ticket %s expired at %s", ticket.ID, ticket.ExpiresAt.Format(time.RFC3339))
	}

	ticket.Status = models.TicketScanned
	ticket.ScannedAt = &now
	if err := s.DB.UpdateTicket(ctx, *ticket); err != nil {
		return nil, apperr.Transientf("mark ticket %s scanned: %v", ticket.ID, err)
	}
	s.Logger.LogTicket("SCAN", ticket.ID, "Scanned at entry")

	// Attendance is a side effect of the scan; its failure does not void
	// the scan itself.
	if booking, err := s.Bookings.GetBookingByID(ctx, ticket.BookingID); err == nil && booking != nil {
		booking.IsAttended = true
		booking.JoinedAt = &now
		booking.UpdatedAt = now
		if err := s.Bookings.UpdateBooking(ctx, *booking); err != nil {
			s.Logger.Error("TICKET", fmt.Sprintf("Failed to mark booking %s attended: %v", booking.ID, err))
		}
	} else if err != nil {
		s.Logger.Error("TICKET", fmt.Sprintf("Failed to load booking %s for attendance: %v", ticket.BookingID, err))
	}

	return ticket, nil
}
