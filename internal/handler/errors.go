package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/reptile-store-api/internal/media"
	"github.com/flicky/reptile-store-api/internal/model"
	"github.com/flicky/reptile-store-api/internal/payment"
	"github.com/flicky/reptile-store-api/internal/service"
)

var notFound = []error{
	service.ErrProductNotFound,
	service.ErrCategoryNotFound,
	service.ErrCartItemNotFound,
	service.ErrOrderNotFound,
	service.ErrMessageNotFound,
}

var badRequest = []error{
	model.ErrEmptyCart,
	model.ErrInvalidOrderStatus,
	model.ErrInvalidMessageStatus,
	service.ErrInvalidProduct,
}

// writeError maps service errors to a JSON error response.
func writeError(c *gin.Context, err error) {
	var (
		stockErr *model.StockError
		userErr  *payment.UserError
		matErr   *service.OrderMaterializationError
	)
	switch {
	case errors.As(err, &matErr):
		status := http.StatusInternalServerError
		if matErr.Permanent() {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": matErr.Error()})
		return
	case errors.As(err, &stockErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      stockErr.Error(),
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
		})
		return
	case errors.As(err, &userErr):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": userErr.Message})
		return
	case errors.Is(err, payment.ErrProvider):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable, please try again"})
		return
	case errors.Is(err, service.ErrOrderAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	case errors.Is(err, media.ErrUploadsDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			c.JSON(http.StatusNotFound, gin.H{"error": target.Error()})
			return
		}
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
