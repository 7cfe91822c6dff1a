package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/models"
	"ms-registration/internal/utils"
)

// CreateSession stores (or refreshes) the purchase data behind a session id.
// The response returns the id and the expiry, never echoing the attendees.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var sess models.TempSession
	if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid session payload", err.Error()))
		return
	}
	if sess.EventID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid session payload", "event_id is required"))
		return
	}
	if len(sess.Attendees) == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid session payload", "at least one attendee is required"))
		return
	}

	saved, err := h.Sessions.Save(r.Context(), &sess)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateSession failed: %v", err))
		h.writeError(w, "Could not save session", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Session saved", map[string]interface{}{
		"session_id": saved.SessionID,
		"expires_at": saved.ExpiresAt,
	}))
}

// GetSession returns the full session, used by the payment page to render
// the order summary.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	sess, err := h.Sessions.Get(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, "Session not found", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Session found", sess))
}

// ExtendSession pushes the expiry forward while the attendee is still at the
// payment step. The body may carry an hours value; omitted or out-of-range
// values fall back to the store's TTL.
func (h *Handler) ExtendSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req struct {
		Hours int `json:"hours"`
	}
	if r.Body != nil {
		// An empty body means "use the default window".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	newExpiry, err := h.Sessions.Extend(r.Context(), sessionID, req.Hours)
	if err != nil {
		h.writeError(w, "Could not extend session", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Session extended", map[string]interface{}{
		"session_id": sessionID,
		"expires_at": newExpiry,
	}))
}

// SessionStatus is the cheap polling endpoint. It always answers 200; the
// validity is in the body.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	status, err := h.Sessions.Status(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, "Could not read session status", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Session status", status))
}
