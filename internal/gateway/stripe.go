package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-registration/internal/config"
	"ms-registration/internal/logger"
)

// DisabledSentinel is the secret-key value that turns the gateway off.
// Deployments that only run free events set this instead of a real key.
const DisabledSentinel = "no-stripe"

// Metadata keys carried on payment intents.
const (
	MetadataSessionID      = "sessionId"
	MetadataRegistrationID = "registrationId"
	MetadataEventID        = "eventId"
	MetadataOrderID        = "orderId"
	MetadataOrderNumber    = "orderNumber"
	MetadataTotalAmount    = "totalAmount"
	MetadataQRUuid         = "qrUuid"
	MetadataProcessed      = "processed"
)

// ErrGatewayDisabled is returned when a paid flow is attempted while the
// gateway is running without a Stripe key.
var ErrGatewayDisabled = errors.New("payment gateway is disabled")

// WebhookError carries enough structure for the HTTP layer to pick a status
// code and a safe public message without parsing error strings.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// Gateway wraps the Stripe client. All Stripe traffic in the service goes
// through here so the rest of the code never imports stripe-go directly.
type Gateway struct {
	api                 *client.API
	webhookSecret       string
	skipSignatureVerify bool
	disabled            bool
	logger              *logger.Logger
}

func NewGateway(cfg config.StripeConfig, log *logger.Logger) *Gateway {
	g := &Gateway{
		webhookSecret:       cfg.WebhookSecret,
		skipSignatureVerify: cfg.SkipSignatureVerify,
		logger:              log,
	}
	if cfg.SecretKey == "" || cfg.SecretKey == DisabledSentinel {
		g.disabled = true
		log.Warn("STRIPE", "Gateway running without a Stripe key, only free registrations will work")
		return g
	}
	g.api = client.New(cfg.SecretKey, nil)
	return g
}

// Disabled reports whether the gateway can talk to Stripe at all.
func (g *Gateway) Disabled() bool {
	return g.disabled
}

// CreateIntent creates a payment intent for the given amount, tagged with the
// session id so the webhook can find its way back to the purchase data.
// Amounts arrive in major units and are converted to cents here.
func (g *Gateway) CreateIntent(ctx context.Context, amount float64, currency, sessionID string) (*stripe.PaymentIntent, error) {
	if g.disabled {
		return nil, ErrGatewayDisabled
	}

	amountInCents := int64(math.Round(amount * 100))
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata(MetadataSessionID, sessionID)

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent for session %s: %w", sessionID, err)
	}

	g.logger.Info("STRIPE", fmt.Sprintf("Created payment intent %s for session %s (%s %0.2f)", intent.ID, sessionID, currency, amount))
	return intent, nil
}

// RetrieveIntent fetches the current state of an intent from Stripe.
func (g *Gateway) RetrieveIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error) {
	if g.disabled {
		return nil, ErrGatewayDisabled
	}
	intent, err := g.api.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent %s: %w", intentID, err)
	}
	return intent, nil
}

// UpdateIntentMetadata stamps extra metadata onto an intent after the fact.
// Used to link the intent to the registration it produced; failures here are
// logged by the caller, never fatal.
func (g *Gateway) UpdateIntentMetadata(ctx context.Context, intentID string, metadata map[string]string) error {
	if g.disabled {
		return ErrGatewayDisabled
	}
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if _, err := g.api.PaymentIntents.Update(intentID, params); err != nil {
		return fmt.Errorf("update metadata on intent %s: %w", intentID, err)
	}
	return nil
}

// VerifyWebhook authenticates an incoming webhook request and returns the
// parsed event. With SkipSignatureVerify set the payload is trusted as-is,
// which only makes sense against the Stripe CLI in development.
func (g *Gateway) VerifyWebhook(r *http.Request, payload []byte) (stripe.Event, error) {
	if g.skipSignatureVerify {
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return stripe.Event{}, &WebhookError{
				Category:      "validation",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid webhook payload",
				InternalError: fmt.Sprintf("Failed to parse unverified webhook payload: %v", err),
				OriginalErr:   err,
			}
		}
		g.logger.LogSecurity("WEBHOOK_UNVERIFIED", fmt.Sprintf("Accepted webhook %s without signature check", event.Type))
		return event, nil
	}

	if g.webhookSecret == "" {
		return stripe.Event{}, &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), g.webhookSecret, opts)
	if err != nil {
		var errorCategory, errorMessage string
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			switch stripeErr.Code {
			case "signature_verification_failed":
				errorCategory = "validation"
				errorMessage = "Webhook signature verification failed"
			default:
				errorCategory = "processing"
				errorMessage = "Stripe API error"
			}
		} else {
			errorCategory = "validation"
			errorMessage = "Invalid webhook signature"
		}
		return stripe.Event{}, &WebhookError{
			Category:      errorCategory,
			StatusCode:    http.StatusBadRequest,
			PublicError:   errorMessage,
			InternalError: fmt.Sprintf("%s: %v", errorMessage, err),
			OriginalErr:   err,
		}
	}
	return event, nil
}
