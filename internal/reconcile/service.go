package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/uptrace/bun"

	"ms-registration/internal/gateway"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	regdb "ms-registration/internal/registration/db"
	"ms-registration/internal/stock"
	"ms-registration/internal/tempsession"
	"ms-registration/internal/utils"
)

// ErrDuplicateRegistration means the primary email already holds a
// registration for this event.
var ErrDuplicateRegistration = errors.New("email already registered for this event")

// ErrNotFree is returned when the free-registration path is used for a
// session that actually costs money.
var ErrNotFree = errors.New("session has a non-zero total")

type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*models.TempSession, error)
	Save(ctx context.Context, sess *models.TempSession) (*models.TempSession, error)
	Delete(ctx context.Context, sessionID string) error
}

type RegistrationDB interface {
	CreateRegistrationBundle(ctx context.Context, intentID string, reg *models.Registration, attendees []*models.Attendee, order *models.Order) error
	GetRegistrationByIntent(ctx context.Context, intentID string) (string, error)
	GetRegistrationWithAttendees(ctx context.Context, registrationID string) (*models.Registration, error)
	FindRegistrationByEmail(ctx context.Context, eventID, email string) (*models.Registration, error)
	GetEventByID(ctx context.Context, eventID string) (*models.Event, error)
	IncrementRegistrationCount(ctx context.Context, eventID string, delta int) error
}

type StockLedger interface {
	Decrement(ctx context.Context, db bun.IDB, ticketTypeID string, qty int) (*models.TicketType, error)
	Available(ctx context.Context, ticketTypeID string) (int, error)
}

type PaymentGateway interface {
	Disabled() bool
	CreateIntent(ctx context.Context, amount float64, currency, sessionID string) (*stripe.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error)
	UpdateIntentMetadata(ctx context.Context, intentID string, metadata map[string]string) error
	VerifyWebhook(r *http.Request, payload []byte) (stripe.Event, error)
}

type EmailPublisher interface {
	PublishTicketEmail(ctx context.Context, msg models.TicketEmailMessage) error
}

type IntentLock interface {
	Acquire(ctx context.Context, intentID string) (bool, error)
	Release(ctx context.Context, intentID string) error
}

// Engine turns settled payments into permanent registrations. The webhook is
// the only entry point that materializes; polling reads state and nothing
// else. Free sessions are the one exception, they materialize synchronously
// because there is no payment to wait for.
type Engine struct {
	Sessions SessionStore
	DB       RegistrationDB
	Stock    StockLedger
	Gateway  PaymentGateway
	Email    EmailPublisher
	Lock     IntentLock
	logger   *logger.Logger
}

func NewEngine(sessions SessionStore, db RegistrationDB, ledger StockLedger, gw PaymentGateway, email EmailPublisher, lock IntentLock, log *logger.Logger) *Engine {
	return &Engine{
		Sessions: sessions,
		DB:       db,
		Stock:    ledger,
		Gateway:  gw,
		Email:    email,
		Lock:     lock,
		logger:   log,
	}
}

// sessionTotal recomputes the amount from the snapshotted line items. Client
// supplied totals are never trusted.
func sessionTotal(sess *models.TempSession) float64 {
	var total float64
	for _, item := range sess.SelectedTickets {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

func primaryAttendee(sess *models.TempSession) *models.SessionAttendee {
	for i := range sess.Attendees {
		if sess.Attendees[i].IsPrimary {
			return &sess.Attendees[i]
		}
	}
	if len(sess.Attendees) > 0 {
		return &sess.Attendees[0]
	}
	return nil
}

// CreateSecureIntent validates the session, recomputes the amount and creates
// a Stripe payment intent for it. Zero-amount sessions skip Stripe entirely
// and come back already registered.
func (e *Engine) CreateSecureIntent(ctx context.Context, sessionID string) (*models.IntentResult, error) {
	sess, err := e.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	primary := primaryAttendee(sess)
	if primary == nil {
		return nil, fmt.Errorf("session %s has no attendees", sessionID)
	}

	// Fail fast on duplicates and sold-out tickets before any money moves.
	if _, err := e.DB.FindRegistrationByEmail(ctx, sess.EventID, primary.Email); err == nil {
		return nil, ErrDuplicateRegistration
	} else if !errors.Is(err, regdb.ErrRegistrationNotFound) {
		return nil, err
	}
	for _, item := range sess.SelectedTickets {
		available, err := e.Stock.Available(ctx, item.TicketTypeID)
		if err != nil {
			return nil, err
		}
		if available < item.Quantity {
			return nil, stock.ErrInsufficientStock
		}
	}

	total := sessionTotal(sess)
	currency := sess.OrderDraft.Currency
	if currency == "" {
		currency = "usd"
	}

	if total == 0 {
		bundle, err := e.materialize(ctx, sess, utils.GenerateFreeIntentID(), models.PaymentStatusFree)
		if err != nil {
			return nil, err
		}
		result := &models.IntentResult{
			Free:     true,
			Amount:   0,
			Currency: currency,
		}
		if bundle != nil {
			result.RegistrationID = bundle.Registration.ID
		}
		return result, nil
	}

	if e.Gateway.Disabled() {
		return nil, gateway.ErrGatewayDisabled
	}

	// Reuse a still-usable intent from a previous attempt instead of
	// littering Stripe with abandoned ones.
	if existing := sess.OrderDraft.StripePaymentIntentID; existing != "" {
		intent, err := e.Gateway.RetrieveIntent(ctx, existing)
		if err == nil && intent.Status != stripe.PaymentIntentStatusCanceled && intent.Status != stripe.PaymentIntentStatusSucceeded {
			return &models.IntentResult{
				IntentID:     intent.ID,
				ClientSecret: intent.ClientSecret,
				Amount:       total,
				Currency:     currency,
				Free:         false,
			}, nil
		}
		if err != nil {
			e.logger.Warn("PAYMENT", fmt.Sprintf("Could not retrieve existing intent %s for session %s: %v", existing, sessionID, err))
		}
	}

	intent, err := e.Gateway.CreateIntent(ctx, total, currency, sessionID)
	if err != nil {
		return nil, err
	}

	sess.OrderDraft.StripePaymentIntentID = intent.ID
	sess.OrderDraft.TotalAmount = total
	sess.OrderDraft.Currency = currency
	if _, err := e.Sessions.Save(ctx, sess); err != nil {
		e.logger.Warn("PAYMENT", fmt.Sprintf("Failed to record intent %s on session %s: %v", intent.ID, sessionID, err))
	}

	return &models.IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       total,
		Currency:     currency,
		Free:         false,
	}, nil
}

// RegisterFree completes a zero-amount session synchronously. Paid sessions
// are rejected so this endpoint can never be used to skip payment.
func (e *Engine) RegisterFree(ctx context.Context, sessionID string) (*models.IntentResult, error) {
	sess, err := e.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sessionTotal(sess) != 0 {
		return nil, ErrNotFree
	}

	primary := primaryAttendee(sess)
	if primary == nil {
		return nil, fmt.Errorf("session %s has no attendees", sessionID)
	}
	if _, err := e.DB.FindRegistrationByEmail(ctx, sess.EventID, primary.Email); err == nil {
		return nil, ErrDuplicateRegistration
	} else if !errors.Is(err, regdb.ErrRegistrationNotFound) {
		return nil, err
	}

	bundle, err := e.materialize(ctx, sess, utils.GenerateFreeIntentID(), models.PaymentStatusFree)
	if err != nil {
		return nil, err
	}
	result := &models.IntentResult{
		Free:     true,
		Currency: sess.OrderDraft.Currency,
	}
	if bundle != nil {
		result.RegistrationID = bundle.Registration.ID
	}
	return result, nil
}

// HandleWebhook authenticates and dispatches a Stripe event. Only
// payment_intent.succeeded materializes anything; everything else is logged
// and acknowledged.
func (e *Engine) HandleWebhook(r *http.Request) error {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return &gateway.WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	event, err := e.Gateway.VerifyWebhook(r, payload)
	if err != nil {
		e.logger.Error("WEBHOOK", err.Error())
		return err
	}

	e.logger.LogWebhook(string(event.Type), event.ID, "received")

	switch event.Type {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return &gateway.WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("Failed to unmarshal payment intent: %v", err),
				OriginalErr:   err,
			}
		}
		return e.handleIntentSucceeded(r.Context(), &intent)

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return &gateway.WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("Failed to unmarshal payment intent: %v", err),
				OriginalErr:   err,
			}
		}
		// Nothing permanent exists yet for a failed payment. The session
		// lives on so the attendee can retry with another card.
		e.logger.LogWebhook("payment_intent.payment_failed", intent.ID, "payment failed, session kept for retry")
		return nil

	default:
		e.logger.LogWebhook(string(event.Type), event.ID, "unhandled event type")
		return nil
	}
}

// handleIntentSucceeded resolves the intent's metadata to a session and
// materializes the registration exactly once.
func (e *Engine) handleIntentSucceeded(ctx context.Context, intent *stripe.PaymentIntent) error {
	sessionID, hasSession := intent.Metadata[gateway.MetadataSessionID]
	registrationID, hasRegistration := intent.Metadata[gateway.MetadataRegistrationID]

	// Legacy shape: intents stamped with a registration id were processed
	// by an earlier flow. Acknowledge and move on.
	if !hasSession && hasRegistration {
		e.logger.LogWebhook("payment_intent.succeeded", intent.ID, fmt.Sprintf("already linked to registration %s", registrationID))
		return nil
	}
	if !hasSession {
		return &gateway.WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid payment intent data",
			InternalError: fmt.Sprintf("Payment intent %s has no session id in metadata", intent.ID),
		}
	}

	// The lock keeps concurrent deliveries of the same event from racing.
	// Losing it means another worker has the intent in hand, so ack.
	if e.Lock != nil {
		acquired, err := e.Lock.Acquire(ctx, intent.ID)
		if err != nil {
			e.logger.Warn("WEBHOOK", fmt.Sprintf("Lock error for intent %s, relying on DB guard: %v", intent.ID, err))
		} else if !acquired {
			e.logger.LogWebhook("payment_intent.succeeded", intent.ID, "already being processed elsewhere")
			return nil
		} else {
			defer e.Lock.Release(ctx, intent.ID)
		}
	}

	if regID, err := e.DB.GetRegistrationByIntent(ctx, intent.ID); err == nil {
		e.logger.LogWebhook("payment_intent.succeeded", intent.ID, fmt.Sprintf("already processed as registration %s", regID))
		return nil
	} else if !errors.Is(err, regdb.ErrRegistrationNotFound) {
		return &gateway.WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process payment",
			InternalError: fmt.Sprintf("Intent lookup failed for %s: %v", intent.ID, err),
			OriginalErr:   err,
		}
	}

	sess, err := e.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, tempsession.ErrSessionNotFound) {
			// Money moved but the purchase data is gone. This needs a
			// human and a refund, not endless webhook retries.
			e.logger.Error("ANOMALY", fmt.Sprintf("Payment %s succeeded but session %s is missing or expired, manual refund required", intent.ID, sessionID))
			return nil
		}
		return &gateway.WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process payment",
			InternalError: fmt.Sprintf("Session lookup failed for %s: %v", sessionID, err),
			OriginalErr:   err,
		}
	}

	bundle, err := e.materialize(ctx, sess, intent.ID, models.PaymentStatusPaid)
	if err != nil {
		return &gateway.WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process payment",
			InternalError: fmt.Sprintf("Materialization failed for intent %s: %v", intent.ID, err),
			OriginalErr:   err,
		}
	}
	if bundle == nil {
		// A racing delivery won and its registration could not be looked
		// up. It already acked with the full metadata, nothing to stamp.
		e.logger.LogWebhook("payment_intent.succeeded", intent.ID, "already materialized elsewhere")
		return nil
	}

	// Stamp the registration back onto the intent for support tooling and
	// clients reading the intent. Informational, failures are logged only.
	if !e.Gateway.Disabled() {
		if err := e.Gateway.UpdateIntentMetadata(ctx, intent.ID, bundle.intentMetadata()); err != nil {
			e.logger.Warn("WEBHOOK", fmt.Sprintf("Failed to stamp registration %s onto intent %s: %v", bundle.Registration.ID, intent.ID, err))
		}
	}

	e.logger.LogWebhook("payment_intent.succeeded", intent.ID, fmt.Sprintf("materialized registration %s", bundle.Registration.ID))
	return nil
}

// materialized is what one settled session turns into.
type materialized struct {
	Registration *models.Registration
	Attendees    []*models.Attendee
	Order        *models.Order
}

// intentMetadata is the contract stamped onto the intent after
// materialization. The qrUuid is the primary attendee's ticket.
func (m *materialized) intentMetadata() map[string]string {
	md := map[string]string{
		gateway.MetadataRegistrationID: m.Registration.ID,
		gateway.MetadataProcessed:      "true",
	}
	if m.Registration.EventID != "" {
		md[gateway.MetadataEventID] = m.Registration.EventID
	}
	if m.Order != nil {
		md[gateway.MetadataOrderID] = m.Order.ID
		md[gateway.MetadataOrderNumber] = m.Order.OrderNumber
		md[gateway.MetadataTotalAmount] = fmt.Sprintf("%.2f", m.Order.TotalAmount)
	}
	for _, a := range m.Attendees {
		if a.IsPrimary {
			md[gateway.MetadataQRUuid] = a.QRUuid
			break
		}
	}
	return md
}

// materialize converts a temp session into the permanent registration,
// attendees and order. The bundle insert is exactly-once; everything after
// it is best effort and never undoes the registration. A nil bundle with a
// nil error means another delivery won the race and its registration could
// not be recovered.
func (e *Engine) materialize(ctx context.Context, sess *models.TempSession, intentID, paymentStatus string) (*materialized, error) {
	now := time.Now().UTC()
	primary := primaryAttendee(sess)
	if primary == nil {
		return nil, fmt.Errorf("session %s has no attendees", sess.SessionID)
	}

	reg := &models.Registration{
		ID:               utils.GenerateUUID(),
		EventID:          sess.EventID,
		ClubID:           sess.ClubID,
		PrimaryEmail:     primary.Email,
		Status:           true,
		AdditionalFields: sess.RegistrationDraft.AdditionalFields,
		CreatedAt:        now,
	}

	attendees := make([]*models.Attendee, 0, len(sess.Attendees))
	for _, a := range sess.Attendees {
		attendees = append(attendees, &models.Attendee{
			ID:             utils.GenerateUUID(),
			RegistrationID: reg.ID,
			EventID:        sess.EventID,
			TicketTypeID:   a.TicketTypeID,
			FirstName:      a.FirstName,
			LastName:       a.LastName,
			Email:          a.Email,
			Phone:          a.Phone,
			IsPrimary:      a.IsPrimary,
			QRUuid:         utils.GenerateUUID(),
			CreatedAt:      now,
		})
	}

	orderNumber := sess.OrderDraft.OrderNumber
	if orderNumber == "" {
		orderNumber = utils.GenerateOrderNumber()
	}
	currency := sess.OrderDraft.Currency
	if currency == "" {
		currency = "usd"
	}
	order := &models.Order{
		ID:                    utils.GenerateUUID(),
		OrderNumber:           orderNumber,
		RegistrationID:        reg.ID,
		EventID:               sess.EventID,
		TotalAmount:           sessionTotal(sess),
		Currency:              currency,
		PaymentStatus:         paymentStatus,
		StripePaymentIntentID: intentID,
		Items:                 sess.SelectedTickets,
		CreatedAt:             now,
		PaidAt:                &now,
	}

	if err := e.DB.CreateRegistrationBundle(ctx, intentID, reg, attendees, order); err != nil {
		if errors.Is(err, regdb.ErrAlreadyProcessed) {
			existingID, lookupErr := e.DB.GetRegistrationByIntent(ctx, intentID)
			if lookupErr == nil {
				e.logger.LogRegistration("DUPLICATE", existingID, fmt.Sprintf("intent %s was already materialized", intentID))
				if existing, loadErr := e.DB.GetRegistrationWithAttendees(ctx, existingID); loadErr == nil {
					return &materialized{Registration: existing, Attendees: existing.Attendees, Order: existing.Order}, nil
				}
				return &materialized{Registration: &models.Registration{ID: existingID}}, nil
			}
			return nil, nil
		}
		return nil, err
	}

	// Stock was verified before payment but the world may have moved on.
	// The money is already settled, so an oversell here is recorded as an
	// anomaly rather than rolled back.
	for _, item := range sess.SelectedTickets {
		if _, err := e.Stock.Decrement(ctx, nil, item.TicketTypeID, item.Quantity); err != nil {
			if errors.Is(err, stock.ErrInsufficientStock) {
				e.logger.Error("ANOMALY", fmt.Sprintf("Oversold ticket type %s by %d on registration %s, manual correction required", item.TicketTypeID, item.Quantity, reg.ID))
				continue
			}
			e.logger.Error("STOCK", fmt.Sprintf("Decrement failed for %s on registration %s: %v", item.TicketTypeID, reg.ID, err))
		}
	}

	if err := e.DB.IncrementRegistrationCount(ctx, sess.EventID, 1); err != nil {
		e.logger.Error("DATABASE", fmt.Sprintf("Failed to bump registration count for event %s: %v", sess.EventID, err))
	}

	if err := e.Sessions.Delete(ctx, sess.SessionID); err != nil {
		e.logger.Warn("SESSION", fmt.Sprintf("Failed to delete session %s after materialization: %v", sess.SessionID, err))
	}

	e.publishTicketEmail(ctx, reg, attendees, order)

	e.logger.LogRegistration("CREATE", reg.ID, fmt.Sprintf("materialized from session %s via intent %s", sess.SessionID, intentID))
	return &materialized{Registration: reg, Attendees: attendees, Order: order}, nil
}

func (e *Engine) publishTicketEmail(ctx context.Context, reg *models.Registration, attendees []*models.Attendee, order *models.Order) {
	if e.Email == nil {
		return
	}

	eventTitle := ""
	if event, err := e.DB.GetEventByID(ctx, reg.EventID); err == nil {
		eventTitle = event.Title
	}

	msg := models.TicketEmailMessage{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		EventTitle:     eventTitle,
		OrderNumber:    order.OrderNumber,
	}
	for _, a := range attendees {
		msg.Recipients = append(msg.Recipients, models.TicketEmailRecipient{
			Name:   strings.TrimSpace(a.FirstName + " " + a.LastName),
			Email:  a.Email,
			QRUuid: a.QRUuid,
		})
	}

	if err := e.Email.PublishTicketEmail(ctx, msg); err != nil {
		e.logger.Error("KAFKA", fmt.Sprintf("Failed to publish ticket email for registration %s: %v", reg.ID, err))
	}
}

// CheckPaymentStatus reports Stripe's view of an intent plus whether its
// registration exists yet. It reads, it never writes; the webhook is the
// only materializer for paid flows.
func (e *Engine) CheckPaymentStatus(ctx context.Context, intentID string) (*models.PaymentStatusResult, error) {
	result := &models.PaymentStatusResult{IntentID: intentID}

	if strings.HasPrefix(intentID, "free_") {
		result.Status = "succeeded"
	} else {
		intent, err := e.Gateway.RetrieveIntent(ctx, intentID)
		if err != nil {
			return nil, err
		}
		result.Status = string(intent.Status)
	}

	regID, err := e.DB.GetRegistrationByIntent(ctx, intentID)
	if err == nil {
		result.Processed = true
		result.RegistrationID = regID
	} else if !errors.Is(err, regdb.ErrRegistrationNotFound) {
		return nil, err
	}

	return result, nil
}
