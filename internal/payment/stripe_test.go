package payment

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

const testWebhookSecret = "whsec_test"

func signedPayload(t *testing.T, payload string) *webhook.SignedPayload {
	t.Helper()
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
}

func TestParseWebhook_PaymentIntentSucceeded(t *testing.T) {
	g := NewStripeGateway("sk_test", testWebhookSecret)
	payload := `{
		"id": "evt_1", "object": "event", "type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_123", "object": "payment_intent", "status": "succeeded", "amount": 4450, "currency": "usd",
			"metadata": {"userId": "u1", "cartId": "c1"},
			"shipping": {"name": "Ana", "address": {"line1": "1 Main St", "city": "Austin", "state": "TX", "postal_code": "78701", "country": "US"}}
		}}
	}`
	sp := signedPayload(t, payload)

	evt, err := g.ParseWebhook(sp.Payload, sp.Header)
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", evt.Type)
	require.NotNil(t, evt.Intent)
	assert.Equal(t, "pi_123", evt.Intent.ID)
	assert.Equal(t, StatusSucceeded, evt.Intent.Status)
	assert.Equal(t, int64(4450), evt.Intent.Amount)
	assert.Equal(t, "c1", evt.Intent.Metadata[MetadataCartID])
	assert.Equal(t, "Ana, 1 Main St, Austin, TX, 78701, US", evt.Intent.ShippingAddress)
}

func TestParseWebhook_OtherEvent(t *testing.T) {
	g := NewStripeGateway("sk_test", testWebhookSecret)
	sp := signedPayload(t, `{"id": "evt_2", "object": "event", "type": "charge.refunded", "data": {"object": {"id": "ch_1"}}}`)

	evt, err := g.ParseWebhook(sp.Payload, sp.Header)
	require.NoError(t, err)
	assert.Equal(t, "charge.refunded", evt.Type)
	assert.Nil(t, evt.Intent)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	g := NewStripeGateway("sk_test", "whsec_other")
	sp := signedPayload(t, `{"id": "evt_3", "object": "event", "type": "payment_intent.succeeded"}`)

	_, err := g.ParseWebhook(sp.Payload, sp.Header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTranslateError(t *testing.T) {
	card := translateError(&stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."})
	var ue *UserError
	require.True(t, errors.As(card, &ue))
	assert.Equal(t, "Your card was declined.", ue.Error())

	api := translateError(&stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"})
	assert.False(t, errors.As(api, &ue))
	assert.ErrorIs(t, api, ErrProvider)

	plain := fmt.Errorf("network down")
	assert.ErrorIs(t, translateError(plain), ErrProvider)
	assert.ErrorIs(t, translateError(plain), plain)
}

func TestFormatShipping_Nil(t *testing.T) {
	assert.Empty(t, formatShipping(nil))
	assert.Empty(t, formatShipping(&stripe.ShippingDetails{Name: "No Address"}))
}
