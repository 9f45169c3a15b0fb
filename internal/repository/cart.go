package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/reptile-store-api/internal/model"
)

// ErrExceedsAvailable is returned by AddItem when the cart would hold more units than are available.
var ErrExceedsAvailable = errors.New("cart quantity exceeds available stock")

type CartRepository interface {
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	ListLines(ctx context.Context, cartID uuid.UUID) ([]model.CartLine, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (*model.CartItem, error)
	AddItem(ctx context.Context, item *model.CartItem) error
	UpdateItem(ctx context.Context, item *model.CartItem) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	ClearCart(ctx context.Context, cartID uuid.UUID) error
}

type pgCartRepo struct{ pool *pgxpool.Pool }

func NewCartRepository(pool *pgxpool.Pool) CartRepository {
	return &pgCartRepo{pool: pool}
}

func (r *pgCartRepo) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart := &model.Cart{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO carts (id, user_id, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id, user_id, created_at, updated_at`,
		uuid.New(), userID,
	).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return cart, nil
}

// GetCart returns the user's cart with its items, or nil when the user has none.
func (r *pgCartRepo) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart := &model.Cart{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`, userID,
	).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, cart_id, product_id, quantity, created_at, updated_at FROM cart_items
		 WHERE cart_id = $1 ORDER BY created_at, id`, cart.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, rows.Err()
}

const cartLineQuery = `SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.created_at, ci.updated_at, ` +
	productColumns + `
	FROM cart_items ci JOIN products p ON p.id = ci.product_id
	WHERE ci.cart_id = $1`

func collectLines(rows pgx.Rows) ([]model.CartLine, error) {
	defer rows.Close()
	var lines []model.CartLine
	for rows.Next() {
		var l model.CartLine
		err := scanProduct(rows, &l.Product,
			&l.Item.ID, &l.Item.CartID, &l.Item.ProductID, &l.Item.Quantity, &l.Item.CreatedAt, &l.Item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListLines returns the cart items with their current product rows, oldest first.
func (r *pgCartRepo) ListLines(ctx context.Context, cartID uuid.UUID) ([]model.CartLine, error) {
	rows, err := r.pool.Query(ctx, cartLineQuery+` ORDER BY ci.created_at, ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	return collectLines(rows)
}

func (r *pgCartRepo) GetItem(ctx context.Context, itemID uuid.UUID) (*model.CartItem, error) {
	item := &model.CartItem{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, cart_id, product_id, quantity, created_at, updated_at FROM cart_items WHERE id = $1`, itemID,
	).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	return item, nil
}

// availableExpr is a product row's sellable quantity, matching model.Product.AvailableQuantity.
const availableExpr = `CASE WHEN p.is_animal
	THEN p.male_quantity + p.female_quantity + p.unknown_quantity
	ELSE COALESCE(p.stock, 0) END`

// AddItem inserts the item or adds its quantity to an existing row for the same product.
// item.Quantity holds the resulting total afterwards. The write is skipped when the
// resulting total would exceed the product's available quantity, and ErrExceedsAvailable
// is returned.
func (r *pgCartRepo) AddItem(ctx context.Context, item *model.CartItem) error {
	query := `INSERT INTO cart_items (id, cart_id, product_id, quantity, created_at, updated_at)
			  SELECT $1::uuid, $2::uuid, $3::uuid, $4::int, NOW(), NOW() FROM products p
			  WHERE p.id = $3 AND $4 <= ` + availableExpr + `
			  ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + $4, updated_at = NOW()
			  WHERE cart_items.quantity + $4 <= (SELECT ` + availableExpr + ` FROM products p WHERE p.id = $3)
			  RETURNING id, quantity, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, uuid.New(), item.CartID, item.ProductID, item.Quantity).
		Scan(&item.ID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrExceedsAvailable
		}
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

// UpdateItem sets the item's quantity. It returns pgx.ErrNoRows when the item is gone.
func (r *pgCartRepo) UpdateItem(ctx context.Context, item *model.CartItem) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE cart_items SET quantity = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		item.ID, item.Quantity,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

func (r *pgCartRepo) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCartRepo) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
