package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/utils"
)

// ListTicketTypes returns the sellable ticket categories of an event with
// their live availability, used by the checkout page before a session is
// created.
func (h *Handler) ListTicketTypes(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	if _, err := h.DB.GetEventByID(r.Context(), eventID); err != nil {
		h.writeError(w, "Event not found", err)
		return
	}

	ticketTypes, err := h.DB.GetTicketTypesByEvent(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "Could not load ticket types", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket types", ticketTypes))
}
