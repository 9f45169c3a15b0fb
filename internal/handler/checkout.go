package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/reptile-store-api/internal/dto"
	"github.com/flicky/reptile-store-api/internal/middleware"
	"github.com/flicky/reptile-store-api/internal/payment"
	"github.com/flicky/reptile-store-api/internal/service"
)

const maxWebhookBody = 64 << 10

type CheckoutHandler struct {
	checkoutService *service.CheckoutService
	gateway         payment.Gateway
	publishableKey  string
	log             *slog.Logger
}

func NewCheckoutHandler(checkoutService *service.CheckoutService, gateway payment.Gateway, publishableKey string, log *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		gateway:         gateway,
		publishableKey:  publishableKey,
		log:             log,
	}
}

func (h *CheckoutHandler) CreatePaymentIntent(c *gin.Context) {
	pi, err := h.checkoutService.CreatePaymentIntent(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PaymentIntentResponse{
		ClientSecret:    pi.ClientSecret,
		PaymentIntentID: pi.PaymentIntentID,
		Amount:          pi.Amount,
		Currency:        pi.Currency,
		PublishableKey:  h.publishableKey,
	})
}

// Complete is hit when Stripe redirects the customer back with ?payment_intent=.
func (h *CheckoutHandler) Complete(c *gin.Context) {
	var req dto.CompleteCheckoutRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_intent is required"})
		return
	}

	res, err := h.checkoutService.Complete(c.Request.Context(), middleware.GetUserID(c), req.PaymentIntentID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := dto.CheckoutResultResponse{Status: string(res.Status), Message: res.Message}
	if res.Order != nil {
		order := toOrderResponse(res.Order)
		resp.Order = &order
	}
	status := http.StatusOK
	if res.Status == service.CheckoutCreated {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

// Webhook receives Stripe events. Permanent failures are acknowledged so Stripe stops retrying.
func (h *CheckoutHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.log.Warn("webhook body too large", "limit", tooLarge.Limit)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	evt, err := h.gateway.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.Warn("webhook rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	if err := h.checkoutService.HandleEvent(c.Request.Context(), evt); err != nil {
		var matErr *service.OrderMaterializationError
		if errors.As(err, &matErr) && matErr.Permanent() {
			h.log.Error("webhook needs manual follow-up", "event_id", evt.ID, "payment_intent_id", matErr.PaymentIntentID, "error", err)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		h.log.Error("webhook processing failed", "event_id", evt.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
