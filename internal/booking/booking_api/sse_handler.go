package booking_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-booking/internal/auth"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// StreamHolderAssignments pushes every ticket assigned to the caller,
// including units drained to them from a waiting list.
func (h *Handler) StreamHolderAssignments(w http.ResponseWriter, r *http.Request) {
	holderID := auth.UserID(r.Context())
	if h.Emitter == nil {
		sendJSONResponse(w, http.StatusServiceUnavailable, utils.ErrorResponse("Streaming is not available", "no emitter configured"))
		return
	}

	ctx := r.Context()
	h.stream(w, r, "holderID", holderID, h.Emitter.SubscribeToHolder(ctx, holderID))
}

// StreamEventAssignments lets the event owner watch assignments as they
// happen.
func (h *Handler) StreamEventAssignments(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())
	if h.Emitter == nil {
		sendJSONResponse(w, http.StatusServiceUnavailable, utils.ErrorResponse("Streaming is not available", "no emitter configured"))
		return
	}

	owner, err := h.Service.IsOwner(r.Context(), eventID, userID)
	if err != nil {
		h.writeError(w, "StreamEventAssignments", err)
		return
	}
	if !owner {
		h.Logger.LogSecurity("SSE_DENIED", fmt.Sprintf("user %s is not the owner of event %s", userID, eventID))
		sendJSONResponse(w, http.StatusForbidden, utils.ErrorResponse("FORBIDDEN", "only the event owner can watch this stream"))
		return
	}

	ctx := r.Context()
	h.stream(w, r, "eventID", eventID, h.Emitter.SubscribeToEvent(ctx, eventID))
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, keyName, key string, events <-chan models.Assignment) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// streams outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	setupSSEHeaders(w)
	ctx := r.Context()

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"%s\":\"%s\"}\n\n", keyName, key)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to assignment stream for %s %s", keyName, key))

	for {
		select {
		case a, ok := <-events:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for %s %s", keyName, key))
				return
			}

			jsonData, err := json.Marshal(a)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize assignment: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: assignment\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from assignment stream for %s %s", keyName, key))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
