// Package payment wraps the Stripe PaymentIntent API behind a small gateway interface.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"
)

const (
	MetadataUserID = "userId"
	MetadataCartID = "cartId"
)

type Status string

const (
	StatusSucceeded             Status = "succeeded"
	StatusProcessing            Status = "processing"
	StatusRequiresPaymentMethod Status = "requires_payment_method"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrProvider         = errors.New("payment provider error")
)

// Intent is the subset of a Stripe PaymentIntent the store relies on.
type Intent struct {
	ID              string
	ClientSecret    string
	Status          Status
	Amount          int64
	Currency        string
	Metadata        map[string]string
	ShippingAddress string
}

type CreateIntentParams struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// Event is a verified webhook event.
type Event struct {
	ID     string
	Type   string
	Intent *Intent
}

// UserError carries a Stripe message that may be shown to the customer.
type UserError struct {
	Type    string
	Message string
}

func (e *UserError) Error() string { return e.Message }

type Gateway interface {
	CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", translateError(err))
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", translateError(err))
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") && evt.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent event: %w", err)
		}
		out.Intent = toIntent(&pi)
	}
	return out, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:              pi.ID,
		ClientSecret:    pi.ClientSecret,
		Status:          Status(pi.Status),
		Amount:          pi.Amount,
		Currency:        string(pi.Currency),
		Metadata:        pi.Metadata,
		ShippingAddress: formatShipping(pi.Shipping),
	}
}

func formatShipping(s *stripe.ShippingDetails) string {
	if s == nil || s.Address == nil {
		return ""
	}
	a := s.Address
	var parts []string
	for _, p := range []string{s.Name, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// translateError keeps card and request errors readable for customers and marks the rest
// as provider failures.
func translateError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch se.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return &UserError{Type: string(se.Type), Message: se.Msg}
		}
	}
	return fmt.Errorf("%w: %w", ErrProvider, err)
}
