package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/auth"
	"ms-registration/internal/cleanup"
	"ms-registration/internal/gateway"
	"ms-registration/internal/logger"
	"ms-registration/internal/reconcile"
	regdb "ms-registration/internal/registration/db"
	"ms-registration/internal/stock"
	"ms-registration/internal/tempsession"
	"ms-registration/internal/utils"
)

type Handler struct {
	Engine    *reconcile.Engine
	Sessions  *tempsession.Store
	DB        *regdb.DB
	Cleanup   *cleanup.Job
	JWTSecret string
	Logger    *logger.Logger
}

func NewHandler(engine *reconcile.Engine, sessions *tempsession.Store, db *regdb.DB, cleanupJob *cleanup.Job, jwtSecret string, log *logger.Logger) *Handler {
	return &Handler{
		Engine:    engine,
		Sessions:  sessions,
		DB:        db,
		Cleanup:   cleanupJob,
		JWTSecret: jwtSecret,
		Logger:    log,
	}
}

// Routes wires every endpoint onto the router. The webhook stays outside the
// auth middleware since Stripe signs its own requests.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/event/{eventId}/tickets", h.ListTicketTypes)

		r.Route("/session", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/{sessionId}", h.GetSession)
			r.Put("/{sessionId}/extend", h.ExtendSession)
			r.Get("/{sessionId}/status", h.SessionStatus)
		})

		r.Route("/payment", func(r chi.Router) {
			r.Post("/intent", h.CreateIntent)
			r.Get("/status/{intentId}", h.PaymentStatus)
			r.Post("/webhook", h.Webhook)
		})

		r.Post("/registration/free", h.RegisterFree)
		r.Get("/registration/{registrationId}", h.GetRegistration)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.JWTSecret))
			r.With(auth.RequireRole(auth.RoleScanner)).Get("/checkin/{qrUuid}", h.CheckIn)
			r.With(auth.RequireRole(auth.RoleAdmin)).Post("/admin/cleanup", h.RunCleanup)
		})
	})
}

// writeError maps domain errors onto HTTP statuses in one place.
func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	var whErr *gateway.WebhookError
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &whErr):
		status = whErr.StatusCode
		utils.WriteJSON(w, status, utils.ErrorResponse(message, whErr.PublicError))
		return
	case errors.Is(err, tempsession.ErrSessionNotFound),
		errors.Is(err, regdb.ErrRegistrationNotFound),
		errors.Is(err, regdb.ErrAttendeeNotFound),
		errors.Is(err, regdb.ErrEventNotFound),
		errors.Is(err, stock.ErrTicketTypeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, reconcile.ErrDuplicateRegistration),
		errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, regdb.ErrAlreadyCheckedIn):
		status = http.StatusConflict
	case errors.Is(err, reconcile.ErrNotFree):
		status = http.StatusBadRequest
	case errors.Is(err, gateway.ErrGatewayDisabled):
		status = http.StatusServiceUnavailable
	}

	utils.WriteJSON(w, status, utils.ErrorResponse(message, err.Error()))
}
