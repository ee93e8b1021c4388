package booking_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/sse"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// BookingService is the slice of the engine the HTTP layer drives.
type BookingService interface {
	RequestTickets(ctx context.Context, req models.BookingRequest) (*booking.RequestResult, error)
	ReleaseTicket(ctx context.Context, eventID, ticketID, requesterID string) (*booking.ReleaseResult, error)
	ReleaseAllOnBehalf(ctx context.Context, eventID, requesterID, actorID string) (*booking.ReleaseAllResult, error)
	LeaveWaitlist(ctx context.Context, eventID, requesterID string) (int, error)
	GetBooking(ctx context.Context, requesterID, ticketID string) (*models.Ticket, error)
	ListBookings(ctx context.Context, requesterID, eventID string) ([]models.Ticket, error)
	Inventory(ctx context.Context, eventID string) (*booking.InventorySnapshot, error)
	WaitingPositions(ctx context.Context, eventID, requesterID string) ([]booking.QueuePosition, error)
	IsOwner(ctx context.Context, eventID, userID string) (bool, error)
}

type Handler struct {
	Service     BookingService
	QRGenerator *qr.QRGenerator
	Emitter     *sse.AssignmentEmitter
	Logger      *logger.Logger
}

func NewHandler(service BookingService, qrGen *qr.QRGenerator, emitter *sse.AssignmentEmitter, log *logger.Logger) *Handler {
	return &Handler{
		Service:     service,
		QRGenerator: qrGen,
		Emitter:     emitter,
		Logger:      log,
	}
}

// RegisterRoutes mounts the booking API under /booking on an authenticated
// router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/booking", func(r chi.Router) {
		r.Post("/", h.RequestTickets)
		r.Get("/", h.ListBookings)
		r.Get("/stream", h.StreamHolderAssignments)
		r.Get("/tickets/{ticketId}", h.GetBooking)
		r.Get("/tickets/{ticketId}/qr", h.GetTicketQR)

		r.Route("/{eventId}", func(r chi.Router) {
			r.Delete("/tickets/{ticketId}", h.ReleaseTicket)
			r.Delete("/tickets", h.ReleaseAll)
			r.Delete("/waitlist", h.LeaveWaitlist)
			r.Get("/waitlist", h.WaitingPositions)
			r.Get("/inventory", h.Inventory)
			r.Get("/stream", h.StreamEventAssignments)
		})
	})
}

func (h *Handler) RequestTickets(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("RequestTickets: failed to decode request body: %v", err))
		sendJSONResponse(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	req.RequesterID = auth.UserID(r.Context())

	result, err := h.Service.RequestTickets(r.Context(), req)
	if err != nil {
		h.writeError(w, "RequestTickets", err)
		return
	}

	status := http.StatusCreated
	if result.Status == booking.StatusQueued {
		status = http.StatusAccepted
	}
	sendJSONResponse(w, status, utils.SuccessResponse(requestMessage(result), result))
}

func (h *Handler) ReleaseTicket(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	ticketID := chi.URLParam(r, "ticketId")

	result, err := h.Service.ReleaseTicket(r.Context(), eventID, ticketID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "ReleaseTicket", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Ticket released", result))
}

// ReleaseAll frees the caller's tickets for the event. The event owner may
// pass ?holder= to act on someone else's tickets.
func (h *Handler) ReleaseAll(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	actorID := auth.UserID(r.Context())
	holderID := r.URL.Query().Get("holder")
	if holderID == "" {
		holderID = actorID
	}

	result, err := h.Service.ReleaseAllOnBehalf(r.Context(), eventID, holderID, actorID)
	if err != nil {
		h.writeError(w, "ReleaseAll", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("Released %d ticket(s)", result.Released), result))
}

func (h *Handler) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	removed, err := h.Service.LeaveWaitlist(r.Context(), eventID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "LeaveWaitlist", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Left the waiting list", map[string]int{"removed_entries": removed}))
}

func (h *Handler) WaitingPositions(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	positions, err := h.Service.WaitingPositions(r.Context(), eventID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "WaitingPositions", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Waiting list positions", positions))
}

func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	snap, err := h.Service.Inventory(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "Inventory", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Inventory", snap))
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")

	tickets, err := h.Service.ListBookings(r.Context(), auth.UserID(r.Context()), eventID)
	if err != nil {
		h.writeError(w, "ListBookings", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("Found %d ticket(s)", len(tickets)), tickets))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	ticket, err := h.Service.GetBooking(r.Context(), auth.UserID(r.Context()), ticketID)
	if err != nil {
		h.writeError(w, "GetBooking", err)
		return
	}
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("Ticket", ticket))
}

// GetTicketQR renders the encrypted QR code for a ticket the caller holds.
func (h *Handler) GetTicketQR(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	if h.QRGenerator == nil {
		sendJSONResponse(w, http.StatusServiceUnavailable, utils.ErrorResponse("QR codes are not configured", "QR_SECRET_KEY is not set"))
		return
	}

	ticket, err := h.Service.GetBooking(r.Context(), auth.UserID(r.Context()), ticketID)
	if err != nil {
		h.writeError(w, "GetTicketQR", err)
		return
	}

	png, err := h.QRGenerator.GenerateEncryptedQR(*ticket)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetTicketQR: failed to render QR for %s: %v", ticketID, err))
		sendJSONResponse(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to render QR code", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetTicketQR: failed to write response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	kind := booking.KindOf(err)
	status := statusFor(kind)

	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Info("API", fmt.Sprintf("%s: %s: %v", op, kind, err))
	}

	detail := err.Error()
	if kind == booking.KindInternal {
		detail = "internal error"
	}
	sendJSONResponse(w, status, utils.ErrorResponse(kind.String(), detail))
}

func statusFor(kind booking.Kind) int {
	switch kind {
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindForbidden:
		return http.StatusForbidden
	case booking.KindInvalidState:
		return http.StatusConflict
	case booking.KindInvalid:
		return http.StatusBadRequest
	case booking.KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestMessage(res *booking.RequestResult) string {
	switch res.Status {
	case booking.StatusBooked:
		return fmt.Sprintf("Booked %d ticket(s)", len(res.TicketIDs))
	case booking.StatusPartial:
		return fmt.Sprintf("Booked %d ticket(s), %d added to the waiting list", len(res.TicketIDs), res.Queued)
	default:
		return fmt.Sprintf("Added %d ticket(s) to the waiting list", res.Queued)
	}
}

func sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Health is mounted outside the authenticated group.
func Health(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

var errNoUser = errors.New("no authenticated user in request context")

// RequireUser rejects requests that reached the handler without a subject.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserID(r.Context()) == "" {
			sendJSONResponse(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", errNoUser.Error()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
