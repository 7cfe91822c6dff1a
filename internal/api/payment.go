package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/gateway"
	"ms-registration/internal/models"
	"ms-registration/internal/utils"
)

// CreateIntent starts the payment flow for a session. Free sessions come
// back already registered.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req models.SecureIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", err.Error()))
		return
	}
	if req.SessionID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "session_id is required"))
		return
	}

	result, err := h.Engine.CreateSecureIntent(r.Context(), req.SessionID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateIntent for session %s failed: %v", req.SessionID, err))
		h.writeError(w, "Could not create payment intent", err)
		return
	}

	message := "Payment intent created"
	if result.Free {
		message = "Registration completed"
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse(message, result))
}

// PaymentStatus reports where an intent stands. Strictly read-only.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentId")

	result, err := h.Engine.CheckPaymentStatus(r.Context(), intentID)
	if err != nil {
		h.writeError(w, "Could not check payment status", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment status", result))
}

// Webhook receives Stripe events. Processing failures surface as the status
// code the engine chose, so Stripe retries server faults but not bad
// payloads.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.HandleWebhook(r); err != nil {
		var whErr *gateway.WebhookError
		if errors.As(err, &whErr) {
			h.Logger.Error("WEBHOOK", whErr.InternalError)
			utils.WriteJSON(w, whErr.StatusCode, utils.ErrorResponse("Webhook rejected", whErr.PublicError))
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Webhook processing failed: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Webhook processing failed", "internal error"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Webhook processed", nil))
}

// RegisterFree completes a zero-amount session without touching Stripe.
func (h *Handler) RegisterFree(w http.ResponseWriter, r *http.Request) {
	var req models.SecureIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", err.Error()))
		return
	}
	if req.SessionID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "session_id is required"))
		return
	}

	result, err := h.Engine.RegisterFree(r.Context(), req.SessionID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RegisterFree for session %s failed: %v", req.SessionID, err))
		h.writeError(w, "Could not complete registration", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Registration completed", result))
}

// GetRegistration serves the success page: the registration with its
// attendees and order.
func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationId")

	reg, err := h.DB.GetRegistrationWithAttendees(r.Context(), registrationID)
	if err != nil {
		h.writeError(w, "Registration not found", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration found", reg))
}
