package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/reptile-store-api/internal/model"
	"github.com/flicky/reptile-store-api/internal/repository"
)

var ErrCartItemNotFound = errors.New("cart item not found")

// CartView is the user's cart priced with current product rows.
type CartView struct {
	Cart  *model.Cart
	Lines []model.CartLine
}

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo}
}

// GetCart prices the user's cart. A user who never added anything gets an empty view
// with a nil Cart.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	cart, err := s.cartRepo.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil {
		return &CartView{}, nil
	}
	lines, err := s.cartRepo.ListLines(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	return &CartView{Cart: cart, Lines: lines}, nil
}

// AddItem adds quantity units of a product. The combined quantity in the cart may not
// exceed what is currently available.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*model.CartItem, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	lines, err := s.cartRepo.ListLines(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}

	inCart := 0
	for _, l := range lines {
		if l.Item.ProductID == productID {
			inCart = l.Item.Quantity
		}
	}
	if err := product.CheckStock(inCart + quantity); err != nil {
		return nil, err
	}

	item := &model.CartItem{CartID: cart.ID, ProductID: productID, Quantity: quantity}
	if err := s.cartRepo.AddItem(ctx, item); err != nil {
		if errors.Is(err, repository.ErrExceedsAvailable) {
			// Another request filled the cart or stock dropped since the check above.
			return nil, &model.StockError{
				ProductID: product.ID, Name: product.Name,
				Requested: inCart + quantity, Available: product.AvailableQuantity(),
			}
		}
		return nil, fmt.Errorf("add cart item: %w", err)
	}
	return item, nil
}

// UpdateItem sets the quantity of an item in the user's cart.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*model.CartItem, error) {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.GetByID(ctx, item.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if err := product.CheckStock(quantity); err != nil {
		return nil, err
	}

	item.Quantity = quantity
	if err := s.cartRepo.UpdateItem(ctx, item); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	return item, nil
}

func (s *CartService) DeleteItem(ctx context.Context, userID, itemID uuid.UUID) error {
	if _, err := s.ownedItem(ctx, userID, itemID); err != nil {
		return err
	}
	if err := s.cartRepo.DeleteItem(ctx, itemID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCartItemNotFound
		}
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.cartRepo.GetCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}
	if cart == nil {
		return nil
	}
	return s.cartRepo.ClearCart(ctx, cart.ID)
}

// ownedItem loads an item and checks it sits in the user's cart.
func (s *CartService) ownedItem(ctx context.Context, userID, itemID uuid.UUID) (*model.CartItem, error) {
	cart, err := s.cartRepo.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil {
		return nil, ErrCartItemNotFound
	}
	item, err := s.cartRepo.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	if item == nil || item.CartID != cart.ID {
		return nil, ErrCartItemNotFound
	}
	return item, nil
}
