package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/reptile-store-api/internal/model"
	"github.com/flicky/reptile-store-api/internal/payment"
	"github.com/flicky/reptile-store-api/internal/repository"
)

var (
	ErrOrderAccessDenied = errors.New("access denied")
	errBadIntentMetadata = errors.New("payment intent metadata is missing user or cart")
)

// Notifier queues outbound notifications.
type Notifier interface {
	Publish(ctx context.Context, n model.Notification) error
}

// ProductCache drops cached products after their inventory changes.
type ProductCache interface {
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

// OrderMaterializationError means the customer was charged but no order could be written.
type OrderMaterializationError struct {
	PaymentIntentID string
	Err             error
}

func (e *OrderMaterializationError) Error() string {
	return fmt.Sprintf("payment succeeded but the order could not be created; contact support with reference %s", e.PaymentIntentID)
}

func (e *OrderMaterializationError) Unwrap() error { return e.Err }

// Permanent reports whether retrying the same intent can never succeed.
func (e *OrderMaterializationError) Permanent() bool {
	return errors.Is(e.Err, model.ErrInsufficientStock) ||
		errors.Is(e.Err, model.ErrEmptyCart) ||
		errors.Is(e.Err, errBadIntentMetadata)
}

type PaymentIntent struct {
	ClientSecret    string
	PaymentIntentID string
	Amount          int64
	Currency        string
}

type CheckoutStatus string

const (
	CheckoutCreated          CheckoutStatus = "created"
	CheckoutAlreadyCompleted CheckoutStatus = "already_completed"
	CheckoutProcessing       CheckoutStatus = "processing"
	CheckoutRetryPayment     CheckoutStatus = "requires_payment_method"
	CheckoutFailed           CheckoutStatus = "failed"
)

type CheckoutResult struct {
	Status  CheckoutStatus
	Message string
	Order   *model.Order
}

type CheckoutService struct {
	cartRepo  repository.CartRepository
	orderRepo repository.OrderRepository
	gateway   payment.Gateway
	notifier  Notifier
	cache     ProductCache
	currency  string
	log       *slog.Logger
}

func NewCheckoutService(
	cartRepo repository.CartRepository,
	orderRepo repository.OrderRepository,
	gateway payment.Gateway,
	notifier Notifier,
	cache ProductCache,
	currency string,
	log *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		cartRepo:  cartRepo,
		orderRepo: orderRepo,
		gateway:   gateway,
		notifier:  notifier,
		cache:     cache,
		currency:  currency,
		log:       log,
	}
}

// ToCents converts a dollar amount to the smallest currency unit, rounding half up.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CreatePaymentIntent prices the user's cart and opens a Stripe PaymentIntent for it.
// Stock is checked but not reserved.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, userID uuid.UUID) (*PaymentIntent, error) {
	cart, err := s.cartRepo.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil {
		return nil, model.ErrEmptyCart
	}
	lines, err := s.cartRepo.ListLines(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, model.ErrEmptyCart
	}
	for _, l := range lines {
		if err := l.Product.CheckStock(l.Item.Quantity); err != nil {
			return nil, err
		}
	}

	intent, err := s.gateway.CreateIntent(ctx, payment.CreateIntentParams{
		Amount:   ToCents(model.CartTotal(lines)),
		Currency: s.currency,
		Metadata: map[string]string{
			payment.MetadataUserID: userID.String(),
			payment.MetadataCartID: cart.ID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment intent created", "payment_intent_id", intent.ID, "user_id", userID, "amount", intent.Amount)
	return &PaymentIntent{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
	}, nil
}

// Complete handles the customer returning from Stripe. The intent must belong to userID.
func (s *CheckoutService) Complete(ctx context.Context, userID uuid.UUID, paymentIntentID string) (*CheckoutResult, error) {
	intent, err := s.gateway.GetIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if intent.Metadata[payment.MetadataUserID] != userID.String() {
		return nil, ErrOrderAccessDenied
	}

	switch intent.Status {
	case payment.StatusSucceeded:
		return s.materialize(ctx, intent)
	case payment.StatusProcessing:
		return &CheckoutResult{
			Status:  CheckoutProcessing,
			Message: "Your payment is processing. We'll update you when payment is received.",
		}, nil
	case payment.StatusRequiresPaymentMethod:
		return &CheckoutResult{
			Status:  CheckoutRetryPayment,
			Message: "Your payment was not successful, please try again.",
		}, nil
	default:
		return &CheckoutResult{Status: CheckoutFailed, Message: "Something went wrong with your payment."}, nil
	}
}

// HandleEvent processes a verified webhook event.
func (s *CheckoutService) HandleEvent(ctx context.Context, evt *payment.Event) error {
	log := s.log.With("event_id", evt.ID, "event_type", evt.Type)
	switch evt.Type {
	case "payment_intent.succeeded":
		if evt.Intent == nil {
			return fmt.Errorf("event %s carries no payment intent", evt.ID)
		}
		res, err := s.materialize(ctx, evt.Intent)
		if err != nil {
			return err
		}
		log.Info("webhook processed", "payment_intent_id", evt.Intent.ID, "outcome", res.Status)
	case "payment_intent.payment_failed":
		if evt.Intent != nil {
			log = log.With("payment_intent_id", evt.Intent.ID)
		}
		log.Warn("payment failed")
	default:
		log.Debug("webhook event ignored")
	}
	return nil
}

func (s *CheckoutService) materialize(ctx context.Context, intent *payment.Intent) (*CheckoutResult, error) {
	log := s.log.With("payment_intent_id", intent.ID)

	existing, err := s.orderRepo.GetByPaymentIntentID(ctx, intent.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup order: %w", err)
	}
	if existing != nil {
		return &CheckoutResult{Status: CheckoutAlreadyCompleted, Order: existing}, nil
	}

	userID, errUser := uuid.Parse(intent.Metadata[payment.MetadataUserID])
	cartID, errCart := uuid.Parse(intent.Metadata[payment.MetadataCartID])
	if errUser != nil || errCart != nil {
		log.Error("order materialization failed", "error", errBadIntentMetadata)
		return nil, &OrderMaterializationError{PaymentIntentID: intent.ID, Err: errBadIntentMetadata}
	}

	order, created, err := s.orderRepo.Materialize(ctx, repository.MaterializeParams{
		PaymentIntentID: intent.ID,
		UserID:          userID,
		CartID:          cartID,
		ShippingAddress: intent.ShippingAddress,
	})
	if err != nil {
		log.Error("order materialization failed", "user_id", userID, "cart_id", cartID, "error", err)
		return nil, &OrderMaterializationError{PaymentIntentID: intent.ID, Err: err}
	}
	if !created {
		return &CheckoutResult{Status: CheckoutAlreadyCompleted, Order: order}, nil
	}

	if cents := ToCents(order.TotalPrice); cents != intent.Amount {
		log.Warn("charged amount differs from order total", "order_id", order.ID, "charged", intent.Amount, "order_total", cents)
	}
	log.Info("order created", "order_id", order.ID, "user_id", userID)

	s.afterCommit(ctx, order, log)
	return &CheckoutResult{Status: CheckoutCreated, Order: order}, nil
}

// afterCommit runs best-effort side effects; failures are logged only.
func (s *CheckoutService) afterCommit(ctx context.Context, order *model.Order, log *slog.Logger) {
	if s.cache != nil {
		ids := make([]uuid.UUID, 0, len(order.Items))
		for _, item := range order.Items {
			if item.ProductID != nil {
				ids = append(ids, *item.ProductID)
			}
		}
		s.cache.Invalidate(ctx, ids...)
	}
	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, model.NewOrderConfirmation(order.ID)); err != nil {
			log.Error("publish order confirmation", "order_id", order.ID, "error", err)
		}
	}
}
