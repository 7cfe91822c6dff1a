package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/auth"
	regdb "ms-registration/internal/registration/db"
	"ms-registration/internal/utils"
)

// CheckIn marks a scanned ticket as used. The second scan of the same ticket
// returns a conflict with the attendee attached so the scanner can show who
// already entered and when.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	qrUuid := chi.URLParam(r, "qrUuid")
	scanner := auth.UserID(r.Context())

	attendee, err := h.DB.CheckInAttendee(r.Context(), qrUuid)
	if err != nil {
		if errors.Is(err, regdb.ErrAlreadyCheckedIn) {
			h.Logger.LogSecurity("DOUBLE_SCAN", fmt.Sprintf("Ticket %s re-scanned by %s", qrUuid, scanner))
			utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{
				Success:   false,
				Message:   "Attendee already checked in",
				Data:      attendee,
				Error:     err.Error(),
				Timestamp: time.Now(),
			})
			return
		}
		h.writeError(w, "Check-in failed", err)
		return
	}

	h.Logger.LogRegistration("CHECKIN", attendee.RegistrationID, fmt.Sprintf("attendee %s checked in by %s", attendee.ID, scanner))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Checked in", attendee))
}

// RunCleanup triggers one cleanup pass on demand.
func (h *Handler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.Cleanup.Run(r.Context())
	if err != nil {
		h.writeError(w, "Cleanup run failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Cleanup completed", result))
}
