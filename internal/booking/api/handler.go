package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"ms-registration/internal/apperr"
	"ms-registration/internal/auth"
	"ms-registration/internal/booking"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/utils"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	BookingService *booking.BookingService
	Logger         *logger.Logger
}

type createBookingRequest struct {
	EventID string `json:"event_id"`
}

// CreateBooking admits and confirms a booking for the authenticated user.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "no authenticated user"))
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request", "event_id is required"))
		return
	}

	created, err := h.BookingService.Create(r.Context(), userID, req.EventID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("booking confirmed", created))
}

// GetAvailability reports the admission state for an event.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	availability, err := h.BookingService.CheckAvailability(r.Context(), eventID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("availability", availability))
}

// CancelBooking cancels the caller's booking; admins may cancel any.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	cancelled, err := h.BookingService.Cancel(r.Context(), bookingID, auth.UserID(r.Context()), auth.IsAdmin(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("booking cancelled", cancelled))
}

// ListMyBookings pages through the caller's bookings.
func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	page, limit, status := pagingParams(r)
	result, err := h.BookingService.ListForUser(r.Context(), auth.UserID(r.Context()), status, page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("bookings", result))
}

// ListEventBookings pages through an event's bookings (admin view).
func (h *Handler) ListEventBookings(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r.Context()) {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("forbidden", "admin role required"))
		return
	}
	page, limit, status := pagingParams(r)
	result, err := h.BookingService.ListForEvent(r.Context(), chi.URLParam(r, "eventId"), status, page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("bookings", result))
}

func pagingParams(r *http.Request) (page, limit int, status models.BookingStatus) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	status = models.BookingStatus(r.URL.Query().Get("status"))
	return page, limit, status
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrCapacityExceeded):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("Request failed: %v", err))
		utils.WriteJSON(w, status, utils.ErrorResponse("internal error", "request could not be completed"))
		return
	}
	utils.WriteJSON(w, status, utils.ErrorResponse("request rejected", err.Error()))
}
