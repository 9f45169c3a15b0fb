package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/flicky/reptile-store-api/internal/middleware"
	"github.com/flicky/reptile-store-api/internal/model"
	"github.com/flicky/reptile-store-api/internal/payment"
	"github.com/flicky/reptile-store-api/internal/repository"
	"github.com/flicky/reptile-store-api/internal/service"
)

const testWebhookSecret = "whsec_test"

type stubCartRepo struct {
	repository.CartRepository
	cart  *model.Cart
	lines []model.CartLine
	added []model.CartItem
}

func (s *stubCartRepo) GetOrCreateCart(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	if s.cart == nil {
		s.cart = &model.Cart{ID: uuid.New(), UserID: userID}
	}
	return s.cart, nil
}

func (s *stubCartRepo) GetCart(context.Context, uuid.UUID) (*model.Cart, error) {
	return s.cart, nil
}

func (s *stubCartRepo) ListLines(context.Context, uuid.UUID) ([]model.CartLine, error) {
	return s.lines, nil
}

func (s *stubCartRepo) AddItem(_ context.Context, item *model.CartItem) error {
	item.ID = uuid.New()
	s.added = append(s.added, *item)
	return nil
}

type stubOrderRepo struct {
	repository.OrderRepository
	byIntent       map[string]*model.Order
	materializeErr error
	calls          int
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{byIntent: make(map[string]*model.Order)}
}

func (s *stubOrderRepo) GetByPaymentIntentID(_ context.Context, id string) (*model.Order, error) {
	return s.byIntent[id], nil
}

func (s *stubOrderRepo) Materialize(_ context.Context, p repository.MaterializeParams) (*model.Order, bool, error) {
	s.calls++
	if s.materializeErr != nil {
		return nil, false, s.materializeErr
	}
	o := &model.Order{
		ID: uuid.New(), UserID: p.UserID, Status: model.OrderStatusPaid,
		PaymentIntentID: p.PaymentIntentID, TotalPrice: decimal.NewFromInt(50),
	}
	s.byIntent[p.PaymentIntentID] = o
	return o, true, nil
}

// testGateway verifies webhooks like Stripe does and serves intents from memory.
type testGateway struct {
	*payment.StripeGateway
	intents   map[string]*payment.Intent
	createErr error
	created   int
}

func newTestGateway() *testGateway {
	return &testGateway{
		StripeGateway: payment.NewStripeGateway("sk_test", testWebhookSecret),
		intents:       make(map[string]*payment.Intent),
	}
}

func (g *testGateway) CreateIntent(_ context.Context, p payment.CreateIntentParams) (*payment.Intent, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created++
	return &payment.Intent{ID: "pi_new", ClientSecret: "pi_new_secret", Amount: p.Amount, Currency: p.Currency}, nil
}

func (g *testGateway) GetIntent(_ context.Context, id string) (*payment.Intent, error) {
	if intent, ok := g.intents[id]; ok {
		return intent, nil
	}
	return nil, &payment.UserError{Type: "invalid_request_error", Message: "No such payment_intent: " + id}
}

type checkoutEnv struct {
	router  *gin.Engine
	userID  uuid.UUID
	carts   *stubCartRepo
	orders  *stubOrderRepo
	gateway *testGateway
}

func newCheckoutEnv() *checkoutEnv {
	gin.SetMode(gin.TestMode)
	env := &checkoutEnv{
		userID:  uuid.New(),
		carts:   &stubCartRepo{},
		orders:  newStubOrderRepo(),
		gateway: newTestGateway(),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewCheckoutService(env.carts, env.orders, env.gateway, nil, nil, "usd", log)
	h := NewCheckoutHandler(svc, env.gateway, "pk_test_123", log)

	auth := func(c *gin.Context) { middleware.SetUser(c, env.userID, model.RoleCustomer) }
	r := gin.New()
	r.POST("/checkout/payment-intent", auth, h.CreatePaymentIntent)
	r.GET("/checkout/complete", auth, h.Complete)
	r.POST("/webhooks/stripe", h.Webhook)
	env.router = r
	return env
}

func (e *checkoutEnv) do(method, path string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *checkoutEnv) addLine(name string, price string, stock, qty int) {
	cart, _ := e.carts.GetOrCreateCart(context.Background(), e.userID)
	e.carts.lines = append(e.carts.lines, model.CartLine{
		Item:    model.CartItem{ID: uuid.New(), CartID: cart.ID, Quantity: qty},
		Product: model.Product{ID: uuid.New(), Name: name, Price: decimal.RequireFromString(price), Stock: &stock},
	})
}

func (e *checkoutEnv) succeededIntent(id string) *payment.Intent {
	cart, _ := e.carts.GetOrCreateCart(context.Background(), e.userID)
	intent := &payment.Intent{
		ID: id, Status: payment.StatusSucceeded, Amount: 5000, Currency: "usd",
		Metadata: map[string]string{
			payment.MetadataUserID: e.userID.String(),
			payment.MetadataCartID: cart.ID.String(),
		},
	}
	e.gateway.intents[id] = intent
	return intent
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCheckoutHandler_CreatePaymentIntent(t *testing.T) {
	env := newCheckoutEnv()
	env.addLine("Leopard Gecko", "44.50", 2, 1)

	w := env.do(http.MethodPost, "/checkout/payment-intent", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "pi_new_secret", body["client_secret"])
	assert.Equal(t, "pk_test_123", body["publishable_key"])
	assert.EqualValues(t, 4450, body["amount"])
}

func TestCheckoutHandler_CreatePaymentIntent_OutOfStock(t *testing.T) {
	env := newCheckoutEnv()
	env.addLine("Product A", "10.00", 5, 1)
	env.addLine("Product B", "12.00", 0, 1)

	w := env.do(http.MethodPost, "/checkout/payment-intent", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "only 0 available")
	assert.Zero(t, env.gateway.created)
}

func TestCheckoutHandler_CreatePaymentIntent_EmptyCart(t *testing.T) {
	env := newCheckoutEnv()
	w := env.do(http.MethodPost, "/checkout/payment-intent", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutHandler_CreatePaymentIntent_StripeErrors(t *testing.T) {
	env := newCheckoutEnv()
	env.addLine("Hide", "10.00", 5, 1)

	env.gateway.createErr = &payment.UserError{Type: "card_error", Message: "Your card was declined."}
	w := env.do(http.MethodPost, "/checkout/payment-intent", nil, nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "Your card was declined.", decode(t, w)["error"])

	env.gateway.createErr = fmt.Errorf("create payment intent: %w", payment.ErrProvider)
	w = env.do(http.MethodPost, "/checkout/payment-intent", nil, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCheckoutHandler_Complete(t *testing.T) {
	env := newCheckoutEnv()
	env.succeededIntent("pi_paid")

	w := env.do(http.MethodGet, "/checkout/complete?payment_intent=pi_paid", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "created", decode(t, w)["status"])

	w = env.do(http.MethodGet, "/checkout/complete?payment_intent=pi_paid", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "already_completed", decode(t, w)["status"])
	assert.Equal(t, 1, env.orders.calls)
}

func TestCheckoutHandler_Complete_Errors(t *testing.T) {
	env := newCheckoutEnv()

	w := env.do(http.MethodGet, "/checkout/complete", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	intent := env.succeededIntent("pi_other")
	intent.Metadata[payment.MetadataUserID] = uuid.NewString()
	w = env.do(http.MethodGet, "/checkout/complete?payment_intent=pi_other", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	env.succeededIntent("pi_oversold")
	env.orders.materializeErr = &model.StockError{Name: "Product B"}
	w = env.do(http.MethodGet, "/checkout/complete?payment_intent=pi_oversold", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w)["error"], "contact support")
}

func TestCheckoutHandler_Complete_Processing(t *testing.T) {
	env := newCheckoutEnv()
	env.succeededIntent("pi_slow").Status = payment.StatusProcessing

	w := env.do(http.MethodGet, "/checkout/complete?payment_intent=pi_slow", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "processing", body["status"])
	assert.Nil(t, body["order"])
	assert.Zero(t, env.orders.calls)
}

func (e *checkoutEnv) webhook(t *testing.T, secret, intentID string) *httptest.ResponseRecorder {
	t.Helper()
	cart, _ := e.carts.GetOrCreateCart(context.Background(), e.userID)
	payload := fmt.Sprintf(`{
		"id": "evt_%s", "object": "event", "type": "payment_intent.succeeded",
		"data": {"object": {
			"id": %q, "object": "payment_intent", "status": "succeeded", "amount": 5000, "currency": "usd",
			"metadata": {"userId": %q, "cartId": %q}
		}}
	}`, intentID, intentID, e.userID, cart.ID)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload), Secret: secret, Timestamp: time.Now(),
	})
	return e.do(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(sp.Payload)),
		map[string]string{"Stripe-Signature": sp.Header})
}

func TestCheckoutHandler_Webhook(t *testing.T) {
	env := newCheckoutEnv()

	w := env.webhook(t, testWebhookSecret, "pi_hook")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, env.orders.byIntent, "pi_hook")

	// Redelivery of the same event is a no-op.
	w = env.webhook(t, testWebhookSecret, "pi_hook")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.orders.calls)
}

func TestCheckoutHandler_Webhook_BadSignature(t *testing.T) {
	env := newCheckoutEnv()
	w := env.webhook(t, "whsec_wrong", "pi_forged")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, env.orders.calls)
}

func TestCheckoutHandler_Webhook_Failures(t *testing.T) {
	env := newCheckoutEnv()

	env.orders.materializeErr = &model.StockError{Name: "Product B"}
	w := env.webhook(t, testWebhookSecret, "pi_oversold")
	assert.Equal(t, http.StatusOK, w.Code)

	env.orders.materializeErr = errors.New("connection reset by peer")
	w = env.webhook(t, testWebhookSecret, "pi_flaky")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCheckoutHandler_Webhook_TooLarge(t *testing.T) {
	env := newCheckoutEnv()
	body := `{"id": "evt_big", "padding": "` + strings.Repeat("x", maxWebhookBody) + `"}`
	w := env.do(http.MethodPost, "/webhooks/stripe", strings.NewReader(body),
		map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, env.orders.calls)
}
