package ticket_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"ms-registration/internal/apperr"
	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/tickets"
	"ms-registration/internal/utils"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	TicketService *tickets.TicketService
	Logger        *logger.Logger
}

// ViewTicket returns a ticket with its scan code.
func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket", ticket))
}

// RevokeTicket permanently revokes a ticket (admin only).
func (h *Handler) RevokeTicket(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r.Context()) {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("forbidden", "admin role required"))
		return
	}
	ticket, err := h.TicketService.Revoke(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket revoked", ticket))
}

type scanRequest struct {
	Payload string `json:"payload"`
}

// ScanTicket redeems a scan code at the venue entrance.
func (h *Handler) ScanTicket(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request", "payload is required"))
		return
	}

	ticket, err := h.TicketService.Scan(r.Context(), req.Payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket scanned", ticket))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrScanCodeGeneration):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("Request failed: %v", err))
		utils.WriteJSON(w, status, utils.ErrorResponse("internal error", "request could not be completed"))
		return
	}
	utils.WriteJSON(w, status, utils.ErrorResponse("request rejected", err.Error()))
}
