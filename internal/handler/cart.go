package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/reptile-store-api/internal/dto"
	"github.com/flicky/reptile-store-api/internal/middleware"
	"github.com/flicky/reptile-store-api/internal/model"
	"github.com/flicky/reptile-store-api/internal/service"
)

type CartHandler struct {
	svc *service.CartService
}

func NewCartHandler(svc *service.CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	view, err := h.svc.GetCart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(view))
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.svc.AddItem(c.Request.Context(), middleware.GetUserID(c), req.ProductID, req.Quantity); err != nil {
		writeError(c, err)
		return
	}
	h.respondCart(c, http.StatusCreated)
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req dto.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.svc.UpdateItem(c.Request.Context(), middleware.GetUserID(c), itemID, req.Quantity); err != nil {
		writeError(c, err)
		return
	}
	h.respondCart(c, http.StatusOK)
}

func (h *CartHandler) DeleteItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.svc.DeleteItem(c.Request.Context(), middleware.GetUserID(c), itemID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondCart answers with the freshly priced cart.
func (h *CartHandler) respondCart(c *gin.Context, status int) {
	view, err := h.svc.GetCart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, toCartResponse(view))
}

func toCartResponse(view *service.CartView) dto.CartResponse {
	items := make([]dto.CartItemResponse, 0, len(view.Lines))
	for _, l := range view.Lines {
		items = append(items, dto.CartItemResponse{
			ID:        l.Item.ID,
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			ImageURL:  l.Product.ImageURL,
			Price:     l.Product.Price,
			Quantity:  l.Item.Quantity,
			Available: l.Product.AvailableQuantity(),
			Subtotal:  l.Subtotal(),
		})
	}
	resp := dto.CartResponse{Items: items, Total: model.CartTotal(view.Lines)}
	if view.Cart != nil {
		resp.ID = &view.Cart.ID
	}
	return resp
}
