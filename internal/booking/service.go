package booking

import (
	"context"
	"fmt"
	"ms-registration/internal/apperr"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"time"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateBooking(ctx context.Context, booking models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, booking models.Booking) error
	CountConfirmedByEvent(ctx context.Context, eventID string) (int, error)
	CancelAllForEvent(ctx context.Context, eventID string) (int, error)
	ListByUser(ctx context.Context, userID string, status models.BookingStatus, page, limit int) (*models.BookingPage, error)
	ListByEvent(ctx context.Context, eventID string, status models.BookingStatus, page, limit int) (*models.BookingPage, error)
	IsUniqueViolation(err error) bool
}

type ReplicaLayer interface {
	GetEvent(ctx context.Context, eventID string) (*models.EventReplica, error)
}

// EventLock serializes admission and commit for a single event.
type EventLock interface {
	WaitEventLock(ctx context.Context, eventID, token string) (bool, error)
	ReleaseEventLock(ctx context.Context, eventID, token string) error
}

type Publisher interface {
	PublishBookingConfirmed(ctx context.Context, note models.BookingConfirmedNotification) error
	PublishBookingCancelled(ctx context.Context, note models.BookingCancelledNotification) error
}

// TicketIssuer is invoked as a post-commit hook after a booking confirms.
type TicketIssuer interface {
	Issue(ctx context.Context, bookingID, userID, eventID string) (*models.Ticket, error)
}

type BookingService struct {
	DB      DBLayer
	Replica ReplicaLayer
	Lock    EventLock
	Notify  Publisher
	Tickets TicketIssuer
	Logger  *logger.Logger
}

func NewBookingService(db DBLayer, replica ReplicaLayer, lock EventLock, notify Publisher, tickets TicketIssuer, log *logger.Logger) *BookingService {
	return &BookingService{
		DB:      db,
		Replica: replica,
		Lock:    lock,
		Notify:  notify,
		Tickets: tickets,
		Logger:  log,
	}
}

// CheckAvailability reports whether an event can admit another booking.
// The count is recomputed from live CONFIRMED rows, so cancellations free
// their slot on the next check without any counter bookkeeping.
func (s *BookingService) CheckAvailability(ctx context.Context, eventID string) (*models.Availability, error) {
	event, err := s.Replica.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	confirmed, err := s.DB.CountConfirmedByEvent(ctx, eventID)
	if err != nil {
		return nil, apperr.Transientf("count confirmed bookings for %s: %v", eventID, err)
	}

	remaining := event.Capacity - confirmed
	if remaining < 0 {
		remaining = 0
	}
	return &models.Availability{
		EventID:        eventID,
		IsAvailable:    remaining > 0,
		ConfirmedCount: confirmed,
		Capacity:       event.Capacity,
		RemainingSlots: remaining,
	}, nil
}

// Create admits a booking against the event's capacity and commits it as
// CONFIRMED. The admission check and the insert run inside a per-event
// lock; a bare re-check without the lock would let two concurrent requests
// both read "available" and overbook the last slot.
func (s *BookingService) Create(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	event, err := s.Replica.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsActive {
		return nil, apperr.NotFoundf("event %s is not active", eventID)
	}

	// Cheap pre-check outside the lock; the unique index is the backstop.
	existing, err := s.DB.GetBookingByUserAndEvent(ctx, userID, eventID)
	if err != nil {
		return nil, apperr.Transientf("look up booking for user %s event %s: %v", userID, eventID, err)
	}
	if existing != nil {
		return nil, apperr.Conflictf("user %s already has a booking for event %s", userID, eventID)
	}

	token := uuid.NewString()
	acquired, err := s.Lock.WaitEventLock(ctx, eventID, token)
	if err != nil {
		return nil, apperr.Transientf("event lock for %s: %v", eventID, err)
	}
	if !acquired {
		return nil, apperr.Transientf("could not serialize admission for event %s", eventID)
	}
	defer func() {
		if err := s.Lock.ReleaseEventLock(ctx, eventID, token); err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to release event lock for %s: %v", eventID, err))
		}
	}()

	confirmed, err := s.DB.CountConfirmedByEvent(ctx, eventID)
	if err != nil {
		return nil, apperr.Transientf("count confirmed bookings for %s: %v", eventID, err)
	}
	if confirmed >= event.Capacity {
		return nil, apperr.CapacityExceededf("event %s is full (%d/%d confirmed)", eventID, confirmed, event.Capacity)
	}

	now := time.Now()
	booking := models.Booking{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		Status:    models.BookingConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.DB.CreateBooking(ctx, booking); err != nil {
		if s.DB.IsUniqueViolation(err) {
			return nil, apperr.Conflictf("user %s already has a booking for event %s", userID, eventID)
		}
		return nil, apperr.Transientf("create booking: %v", err)
	}

	s.Logger.LogBooking("CREATE", booking.ID, fmt.Sprintf("Confirmed for user %s on event %s (%d/%d)", userID, eventID, confirmed+1, event.Capacity))
	s.runPostCommitHooks(ctx, booking)
	return &booking, nil
}

// postCommitHook is a named follow-up action run after the booking commit.
// Each hook's failure is logged and isolated; none may fail the booking.
type postCommitHook struct {
	name string
	run  func(ctx context.Context) error
}

func (s *BookingService) runPostCommitHooks(ctx context.Context, booking models.Booking) {
	hooks := []postCommitHook{
		{
			name: "ticket-issue",
			run: func(ctx context.Context) error {
				_, err := s.Tickets.Issue(ctx, booking.ID, booking.UserID, booking.EventID)
				return err
			},
		},
		{
			name: "booking-confirmed-notify",
			run: func(ctx context.Context) error {
				return s.Notify.PublishBookingConfirmed(ctx, models.BookingConfirmedNotification{
					BookingID: booking.ID,
					UserID:    booking.UserID,
					EventID:   booking.EventID,
					CreatedAt: booking.CreatedAt,
				})
			},
		},
	}

	for _, hook := range hooks {
		if err := hook.run(ctx); err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Post-commit hook %s failed for booking %s: %v", hook.name, booking.ID, err))
		}
	}
}

// Cancel flips a booking to CANCELLED. Only the owner may cancel unless
// isAdmin is set. Cancellation is terminal for the (user, event) pair.
func (s *BookingService) Cancel(ctx context.Context, bookingID, requesterID string, isAdmin bool) (*models.Booking, error) {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Transientf("look up booking %s: %v", bookingID, err)
	}
	if booking == nil {
		return nil, apperr.NotFoundf("booking %s not found", bookingID)
	}
	if !isAdmin && booking.UserID != requesterID {
		return nil, apperr.Forbiddenf("booking %s does not belong to user %s", bookingID, requesterID)
	}
	if booking.Status == models.BookingCancelled {
		return nil, apperr.Conflictf("booking %s is already cancelled", bookingID)
	}

	booking.Status = models.BookingCancelled
	booking.UpdatedAt = time.Now()
	if err := s.DB.UpdateBooking(ctx, *booking); err != nil {
		return nil, apperr.Transientf("cancel booking %s: %v", bookingID, err)
	}

	s.Logger.LogBooking("CANCEL", booking.ID, fmt.Sprintf("Cancelled by %s", requesterID))

	if err := s.Notify.PublishBookingCancelled(ctx, models.BookingCancelledNotification{
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		EventID:     booking.EventID,
		CancelledAt: booking.UpdatedAt,
	}); err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to publish cancellation for booking %s: %v", booking.ID, err))
	}

	return booking, nil
}

// CancelAllForEvent is the cascade path driven by an upstream
// event-cancelled notification. Idempotent: redelivery after all bookings
// are cancelled affects zero rows and publishes nothing. Downstream gets a
// single event-level message with the affected count.
func (s *BookingService) CancelAllForEvent(ctx context.Context, eventID string) (int, error) {
	count, err := s.DB.CancelAllForEvent(ctx, eventID)
	if err != nil {
		return 0, apperr.Transientf("cascade cancel for event %s: %v", eventID, err)
	}

	if count > 0 {
		s.Logger.LogBooking("CASCADE", eventID, fmt.Sprintf("Cancelled %d bookings for cancelled event", count))
		if err := s.Notify.PublishBookingCancelled(ctx, models.BookingCancelledNotification{
			EventID:        eventID,
			CancelledCount: count,
			CancelledAt:    time.Now(),
		}); err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to publish cascade cancellation for event %s: %v", eventID, err))
		}
	}
	return count, nil
}

// ListForUser returns a page of the user's bookings.
func (s *BookingService) ListForUser(ctx context.Context, userID string, status models.BookingStatus, page, limit int) (*models.BookingPage, error) {
	page, limit, err := normalizePage(page, limit)
	if err != nil {
		return nil, err
	}
	result, err := s.DB.ListByUser(ctx, userID, status, page, limit)
	if err != nil {
		return nil, apperr.Transientf("list bookings for user %s: %v", userID, err)
	}
	return result, nil
}

// ListForEvent returns a page of the event's bookings.
func (s *BookingService) ListForEvent(ctx context.Context, eventID string, status models.BookingStatus, page, limit int) (*models.BookingPage, error) {
	page, limit, err := normalizePage(page, limit)
	if err != nil {
		return nil, err
	}
	result, err := s.DB.ListByEvent(ctx, eventID, status, page, limit)
	if err != nil {
		return nil, apperr.Transientf("list bookings for event %s: %v", eventID, err)
	}
	return result, nil
}

func normalizePage(page, limit int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = 20
	}
	if page < 1 {
		return 0, 0, apperr.InvalidStatef("page must be >= 1, got %d", page)
	}
	if limit < 1 || limit > 100 {
		return 0, 0, apperr.InvalidStatef("limit must be between 1 and 100, got %d", limit)
	}
	return page, limit, nil
}
