package tickets_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-registration/internal/apperr"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/tickets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTicketDB struct {
	mock.Mock
	uniqueErr error
}

func (m *MockTicketDB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketDB) GetTicketByBooking(ctx context.Context, bookingID string) (*models.Ticket, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketDB) GetTicketByPayload(ctx context.Context, payload string) (*models.Ticket, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketDB) CreateTicketWithScanCode(ctx context.Context, ticket models.Ticket, code models.ScanCode) error {
	args := m.Called(ctx, ticket, code)
	return args.Error(0)
}

func (m *MockTicketDB) UpdateTicket(ctx context.Context, ticket models.Ticket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

func (m *MockTicketDB) IsUniqueViolation(err error) bool {
	return err != nil && m.uniqueErr != nil && errors.Is(err, m.uniqueErr)
}

type MockBookingLayer struct {
	mock.Mock
}

func (m *MockBookingLayer) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingLayer) UpdateBooking(ctx context.Context, booking models.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

type MockReplicaLayer struct {
	mock.Mock
}

func (m *MockReplicaLayer) GetEvent(ctx context.Context, eventID string) (*models.EventReplica, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EventReplica), args.Error(1)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetEvent(ctx context.Context, eventID string) (*models.UpstreamEvent, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UpstreamEvent), args.Error(1)
}

type MockTicketPublisher struct {
	mock.Mock
}

func (m *MockTicketPublisher) PublishTicketGenerated(ctx context.Context, note models.TicketGeneratedNotification) error {
	args := m.Called(ctx, note)
	return args.Error(0)
}

func setupTicketService() (*tickets.TicketService, *MockTicketDB, *MockBookingLayer, *MockReplicaLayer, *MockCatalog, *MockTicketPublisher) {
	mockDB := new(MockTicketDB)
	mockBookings := new(MockBookingLayer)
	mockReplica := new(MockReplicaLayer)
	mockCatalog := new(MockCatalog)
	mockPublisher := new(MockTicketPublisher)
	log := logger.NewLogger()

	service := tickets.NewTicketService(mockDB, mockBookings, mockReplica, mockCatalog, mockPublisher, log,
		6*time.Hour, 72*time.Hour, 3)
	return service, mockDB, mockBookings, mockReplica, mockCatalog, mockPublisher
}

func confirmedBooking() *models.Booking {
	return &models.Booking{
		ID:      "booking1",
		UserID:  "user1",
		EventID: "event1",
		Status:  models.BookingConfirmed,
	}
}

func TestIssueTicketSuccessWithReplicaEndTime(t *testing.T) {
	service, mockDB, mockBookings, mockReplica, _, mockPublisher := setupTicketService()
	ctx := context.Background()

	endTime := time.Now().Add(24 * time.Hour)
	mockDB.On("GetTicketByBooking", ctx, "booking1").Return(nil, nil)
	mockBookings.On("GetBookingByID", ctx, "booking1").Return(confirmedBooking(), nil)
	mockReplica.On("GetEvent", ctx, "event1").Return(&models.EventReplica{
		ID: "event1", Capacity: 10, IsActive: true, EndTime: &endTime,
	}, nil)
	mockDB.On("CreateTicketWithScanCode", ctx, mock.AnythingOfType("models.Ticket"), mock.AnythingOfType("models.ScanCode")).Return(nil)
	mockPublisher.On("PublishTicketGenerated", ctx, mock.AnythingOfType("models.TicketGeneratedNotification")).Return(nil)

	ticket, err := service.Issue(ctx, "booking1", "user1", "event1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketIssued, ticket.Status)
	assert.False(t, ticket.FallbackExpiry)
	assert.WithinDuration(t, endTime.Add(6*time.Hour), ticket.ExpiresAt, time.Second)
	require.NotNil(t, ticket.ScanCode)
	assert.NotEmpty(t, ticket.ScanCode.Payload)
	mockPublisher.AssertExpectations(t)
}

func TestIssueTicketIdempotent(t *testing.T) {
	service, mockDB, _, _, _, mockPublisher := setupTicketService()
	ctx := context.Background()

	existing := &models.Ticket{ID: "ticket1", BookingID: "booking1", Status: models.TicketIssued}
	mockDB.On("GetTicketByBooking", ctx, "booking1").Return(existing, nil)

	ticket, err := service.Issue(ctx, "booking1", "user1", "event1")
	require.NoError(t, err)
	assert.Equal(t, "ticket1", ticket.ID)
	mockDB.AssertNotCalled(t, "CreateTicketWithScanCode", mock.Anything, mock.Anything, mock.Anything)
	mockPublisher.AssertNotCalled(t, "PublishTicketGenerated", mock.Anything, mock.Anything)
}

func TestIssueTicketRejectsCancelledBooking(t *testing.T) {
	service, mockDB, mockBookings, _, _, _ := setupTicketService()
	ctx := context.Background()

	cancelled := confirmedBooking()
	cancelled.Status = models.BookingCancelled
	mockDB.On("GetTicketByBooking", ctx, "booking1").Return(nil, nil)
	mockBookings.On("GetBookingByID", ctx, "booking1").Return(cancelled, nil)

	_, err := service.Issue(ctx, "booking1", "user1", "event1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestIssueTicketFallbackExpiryWhenNoEndTime(t *testing.T) {
	service, mockDB, mockBookings, mockReplica, mockCatalog, mockPublisher := setupTicketService()
	ctx := context.Background()

	mockDB.On("GetTicketByBooking", ctx, "booking1").Return(nil, nil)
	mockBookings.On("GetBookingByID", ctx, "booking1").Return(confirmedBooking(), nil)
	mockReplica.On("GetEvent", ctx, "event1").Return(&models.EventReplica{
		ID: "event1", Capacity: 10, IsActive: true,
	}, nil)
	mockCatalog.On("GetEvent", ctx, "event1").Return(nil, errors.New("catalog unreachable"))
	mockDB.On("CreateTicketWithScanCode", ctx, mock.Anything, mock.Anything).Return(nil)
	mockPublisher.On("PublishTicketGenerated", ctx, mock.Anything).Return(nil)

	before := time.Now()
	ticket, err := service.Issue(ctx, "booking1", "user1", "event1")
	require.NoError(t, err)
	assert.True(t, ticket.FallbackExpiry)
	assert.WithinDuration(t, before.Add(72*time.Hour), ticket.ExpiresAt, 5*time.Second)
}

func TestIssueTicketUsesCatalogWhenReplicaLacksEndTime(t *testing.T) {
	service, mockDB, mockBookings, mockReplica, mockCatalog, mockPublisher := setupTicketService()
	ctx := context.Background()

	endTime := time.Now().Add(48 * time.Hour)
	mockDB.On("GetTicketByBooking", ctx, "booking1").Return(nil, nil)
	mockBookings.On("GetBookingByID", ctx, "booking1").Return(confirmedBooking(), nil)
	mockReplica.On("GetEvent", ctx, "event1").Return(&models.EventReplica{
		ID: "event1", Capacity: 10, IsActive: true,
	}, nil)
	mockCatalog.On("GetEvent", ctx, "event1").Return(&models.UpstreamEvent{
		ID: "event1", Capacity: 10, IsActive: true, EndTime: endTime,
	}, nil)
	mockDB.On("CreateTicketWithScanCode", ctx, mock.Anything, mock.Anything).Return(nil)
	mockPublisher.On("PublishTicketGenerated", ctx, mock.Anything).Return(nil)

	ticket, err := service.Issue(ctx, "booking1", "user1", "event1")
	require.NoError(t, err)
	assert.False(t, ticket.FallbackExpiry)
	assert.WithinDuration(t, endTime.Add(6*time.Hour), ticket.ExpiresAt, time.Second)
}

func TestIssueTicketRegeneratesOnPayloadCollision(t *testing.T) {
	service, mockDB, mockBookings, mockReplica, mockCatalog, mockPublisher := setupTicketService()
	ctx := context.Background()

	uniqueErr := errors.New("duplicate key value violates unique constraint")
	mockDB.uniqueErr = uniqueErr

	mockDB.On("GetTicketByBooking", ctx, "booking1").Return(nil, nil)
	mockBookings.On("GetBookingByID", ctx, "booking1").Return(confirmedBooking(), nil)
	mockReplica.On("GetEvent", ctx, "event1").Return(nil, errors.New("no replica"))
	mockCatalog.On("GetEvent", ctx, "event1").Return(nil, errors.New("catalog unreachable"))
	mockDB.On("CreateTicketWithScanCode", ctx, mock.Anything, mock.Anything).Return(uniqueErr).Once()
	mockDB.On("CreateTicketWithScanCode", ctx, mock.Anything, mock.Anything).Return(nil).Once()
	mockPublisher.On("PublishTicketGenerated", ctx, mock.Anything).Return(nil)

	ticket, err := service.Issue(ctx, "booking1", "user1", "event1")
	require.NoError(t, err)
	assert.NotNil(t, ticket.ScanCode)
	mockDB.AssertNumberOfCalls(t, "CreateTicketWithScanCode", 2)
}

func TestIssueTicketGivesUpAfterMaxAttempts(t *testing.T) {
	service, mockDB, mockBookings, mockReplica, mockCatalog, _ := setupTicketService()
	ctx := context.Background()

	uniqueErr := errors.New("duplicate key value violates unique constraint")
	mockDB.uniqueErr = uniqueErr

	mockDB.On("GetTicketByBooking", ctx, "booking1").Return(nil, nil)
	mockBookings.On("GetBookingByID", ctx, "booking1").Return(confirmedBooking(), nil)
	mockReplica.On("GetEvent", ctx, "event1").Return(nil, errors.New("no replica"))
	mockCatalog.On("GetEvent", ctx, "event1").Return(nil, errors.New("catalog unreachable"))
	mockDB.On("CreateTicketWithScanCode", ctx, mock.Anything, mock.Anything).Return(uniqueErr)

	_, err := service.Issue(ctx, "booking1", "user1", "event1")
	assert.ErrorIs(t, err, apperr.ErrScanCodeGeneration)
	mockDB.AssertNumberOfCalls(t, "CreateTicketWithScanCode", 3)
}

func TestIssueTicketReturnsConcurrentWinner(t *testing.T) {
	service, mockDB, mockBookings, mockReplica, mockCatalog, _ := setupTicketService()
	ctx := context.Background()

	uniqueErr := errors.New("duplicate key value violates unique constraint")
	mockDB.uniqueErr = uniqueErr
	winner := &models.Ticket{ID: "winner", BookingID: "booking1", Status: models.TicketIssued}

	mockDB.On("GetTicketByBooking", ctx, "booking1").Return(nil, nil).Once()
	mockBookings.On("GetBookingByID", ctx, "booking1").Return(confirmedBooking(), nil)
	mockReplica.On("GetEvent", ctx, "event1").Return(nil, errors.New("no replica"))
	mockCatalog.On("GetEvent", ctx, "event1").Return(nil, errors.New("catalog unreachable"))
	mockDB.On("CreateTicketWithScanCode", ctx, mock.Anything, mock.Anything).Return(uniqueErr)
	mockDB.On("GetTicketByBooking", ctx, "booking1").Return(winner, nil)

	ticket, err := service.Issue(ctx, "booking1", "user1", "event1")
	require.NoError(t, err)
	assert.Equal(t, "winner", ticket.ID)
}

func TestRevokeTicket(t *testing.T) {
	service, mockDB, _, _, _, _ := setupTicketService()
	ctx := context.Background()

	mockDB.On("GetTicketByID", ctx, "ticket1").Return(&models.Ticket{
		ID: "ticket1", BookingID: "booking1", Status: models.TicketIssued,
	}, nil)
	mockDB.On("UpdateTicket", ctx, mock.MatchedBy(func(ticket models.Ticket) bool {
		return ticket.Status == models.TicketRevoked
	})).Return(nil)

	ticket, err := service.Revoke(ctx, "ticket1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketRevoked, ticket.Status)
}

func TestRevokeTicketAlreadyRevoked(t *testing.T) {
	service, mockDB, _, _, _, _ := setupTicketService()
	ctx := context.Background()

	mockDB.On("GetTicketByID", ctx, "ticket1").Return(&models.Ticket{
		ID: "ticket1", Status: models.TicketRevoked,
	}, nil)

	_, err := service.Revoke(ctx, "ticket1")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	mockDB.AssertNotCalled(t, "UpdateTicket", mock.Anything, mock.Anything)
}

func TestScanTicketSuccessMarksAttendance(t *testing.T) {
	service, mockDB, mockBookings, _, _, _ := setupTicketService()
	ctx := context.Background()

	mockDB.On("GetTicketByPayload", ctx, "payload1").Return(&models.Ticket{
		ID:        "ticket1",
		BookingID: "booking1",
		Status:    models.TicketIssued,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)
	mockDB.On("UpdateTicket", ctx, mock.MatchedBy(func(ticket models.Ticket) bool {
		return ticket.Status == models.TicketScanned && ticket.ScannedAt != nil
	})).Return(nil)
	mockBookings.On("GetBookingByID", ctx, "booking1").Return(confirmedBooking(), nil)
	mockBookings.On("UpdateBooking", ctx, mock.MatchedBy(func(b models.Booking) bool {
		return b.IsAttended && b.JoinedAt != nil
	})).Return(nil)

	ticket, err := service.Scan(ctx, "payload1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketScanned, ticket.Status)
	mockBookings.AssertExpectations(t)
}

func TestScanTicketUnknownPayload(t *testing.T) {
	service, mockDB, _, _, _, _ := setupTicketService()
	ctx := context.Background()

	mockDB.On("GetTicketByPayload", ctx, "bogus").Return(nil, nil)

	_, err := service.Scan(ctx, "bogus")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestScanTicketExpired(t *testing.T) {
	service, mockDB, _, _, _, _ := setupTicketService()
	ctx := context.Background()

	mockDB.On("GetTicketByPayload", ctx, "payload1").Return(&models.Ticket{
		ID:        "ticket1",
		BookingID: "booking1",
		Status:    models.TicketIssued,
		ExpiresAt: time.Now().Add(-time.Hour),
	}, nil)

	_, err := service.Scan(ctx, "payload1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	mockDB.AssertNotCalled(t, "UpdateTicket", mock.Anything, mock.Anything)
}

func TestScanTicketAlreadyScanned(t *testing.T) {
	service, mockDB, _, _, _, _ := setupTicketService()
	ctx := context.Background()

	scannedAt := time.Now().Add(-time.Minute)
	mockDB.On("GetTicketByPayload", ctx, "payload1").Return(&models.Ticket{
		ID:        "ticket1",
		BookingID: "booking1",
		Status:    models.TicketScanned,
		ScannedAt: &scannedAt,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)

	_, err := service.Scan(ctx, "payload1")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestScanTicketRevoked(t *testing.T) {
	service, mockDB, _, _, _, _ := setupTicketService()
	ctx := context.Background()

	mockDB.On("GetTicketByPayload", ctx, "payload1").Return(&models.Ticket{
		ID:        "ticket1",
		BookingID: "booking1",
		Status:    models.TicketRevoked,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)

	_, err := service.Scan(ctx, "payload1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}
