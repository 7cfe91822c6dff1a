package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ms-registration/internal/config"
	"ms-registration/internal/gateway"
	"ms-registration/internal/logger"
)

func TestDisabledGatewayRejectsPaidFlows(t *testing.T) {
	g := gateway.NewGateway(config.StripeConfig{SecretKey: gateway.DisabledSentinel}, logger.NewLogger())
	assert.True(t, g.Disabled())

	_, err := g.CreateIntent(context.Background(), 25.0, "usd", "sess-1")
	assert.ErrorIs(t, err, gateway.ErrGatewayDisabled)

	_, err = g.RetrieveIntent(context.Background(), "pi_123")
	assert.ErrorIs(t, err, gateway.ErrGatewayDisabled)

	err = g.UpdateIntentMetadata(context.Background(), "pi_123", map[string]string{"registrationId": "reg-1"})
	assert.ErrorIs(t, err, gateway.ErrGatewayDisabled)
}

func TestEmptyKeyDisablesGateway(t *testing.T) {
	g := gateway.NewGateway(config.StripeConfig{}, logger.NewLogger())
	assert.True(t, g.Disabled())
}

func TestVerifyWebhookSkipsSignatureInDevMode(t *testing.T) {
	g := gateway.NewGateway(config.StripeConfig{
		SecretKey:           gateway.DisabledSentinel,
		SkipSignatureVerify: true,
	}, logger.NewLogger())

	payload := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(payload))

	event, err := g.VerifyWebhook(req, []byte(payload))
	assert.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", string(event.Type))
}

func TestVerifyWebhookRejectsBadPayloadInDevMode(t *testing.T) {
	g := gateway.NewGateway(config.StripeConfig{
		SecretKey:           gateway.DisabledSentinel,
		SkipSignatureVerify: true,
	}, logger.NewLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader("not json"))

	_, err := g.VerifyWebhook(req, []byte("not json"))
	var whErr *gateway.WebhookError
	assert.ErrorAs(t, err, &whErr)
	assert.Equal(t, "validation", whErr.Category)
	assert.Equal(t, http.StatusBadRequest, whErr.StatusCode)
}

func TestVerifyWebhookRequiresSecret(t *testing.T) {
	g := gateway.NewGateway(config.StripeConfig{SecretKey: "sk_test_123"}, logger.NewLogger())

	payload := `{"id":"evt_1","type":"payment_intent.succeeded"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(payload))

	_, err := g.VerifyWebhook(req, []byte(payload))
	var whErr *gateway.WebhookError
	assert.ErrorAs(t, err, &whErr)
	assert.Equal(t, "configuration", whErr.Category)
	assert.Equal(t, http.StatusInternalServerError, whErr.StatusCode)
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	g := gateway.NewGateway(config.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
	}, logger.NewLogger())

	payload := `{"id":"evt_1","type":"payment_intent.succeeded"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	_, err := g.VerifyWebhook(req, []byte(payload))
	var whErr *gateway.WebhookError
	assert.ErrorAs(t, err, &whErr)
	assert.Equal(t, http.StatusBadRequest, whErr.StatusCode)
}
