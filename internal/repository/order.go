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

// MaterializeParams identifies the paid cart an order is built from.
type MaterializeParams struct {
	PaymentIntentID string
	UserID          uuid.UUID
	CartID          uuid.UUID
	ShippingAddress string
}

type OrderFilter struct {
	Status *model.OrderStatus
	Limit  int
	Offset int
}

type OrderRepository interface {
	// Materialize turns the cart into a paid order in one transaction. It returns the
	// already existing order and created=false when the payment intent was materialized before.
	Materialize(ctx context.Context, p MaterializeParams) (order *model.Order, created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	List(ctx context.Context, f OrderFilter) ([]model.Order, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

const orderColumns = `id, user_id, status, total_price, shipping_address, payment_intent_id, created_at, updated_at`

func scanOrder(row pgx.Row, o *model.Order) error {
	var status string
	var intentID *string
	if err := row.Scan(&o.ID, &o.UserID, &status, &o.TotalPrice, &o.ShippingAddress, &intentID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}
	o.Status = model.OrderStatus(status)
	if intentID != nil {
		o.PaymentIntentID = *intentID
	}
	return nil
}

func (r *pgOrderRepo) Materialize(ctx context.Context, p MaterializeParams) (*model.Order, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Locks the cart rows and their products; a concurrent checkout of the same products waits here.
	rows, err := tx.Query(ctx, cartLineQuery+` ORDER BY p.id FOR UPDATE`, p.CartID)
	if err != nil {
		return nil, false, fmt.Errorf("lock cart lines: %w", err)
	}
	lines, err := collectLines(rows)
	if err != nil {
		return nil, false, err
	}

	var existingID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM orders WHERE payment_intent_id = $1`, p.PaymentIntentID).Scan(&existingID)
	switch {
	case err == nil:
		return r.existing(ctx, tx, existingID)
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, false, fmt.Errorf("check existing order: %w", err)
	}

	if len(lines) == 0 {
		return nil, false, model.ErrEmptyCart
	}
	for _, l := range lines {
		if err := l.Product.CheckStock(l.Item.Quantity); err != nil {
			return nil, false, err
		}
	}

	order := &model.Order{
		ID:              uuid.New(),
		UserID:          p.UserID,
		Status:          model.OrderStatusPaid,
		TotalPrice:      model.CartTotal(lines),
		ShippingAddress: p.ShippingAddress,
		PaymentIntentID: p.PaymentIntentID,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, status, total_price, shipping_address, payment_intent_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 ON CONFLICT (payment_intent_id) DO NOTHING
		 RETURNING created_at, updated_at`,
		order.ID, order.UserID, string(order.Status), order.TotalPrice, order.ShippingAddress, order.PaymentIntentID,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = tx.Rollback(ctx)
			existing, err := r.GetByPaymentIntentID(ctx, p.PaymentIntentID)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert order: %w", err)
	}

	for _, l := range lines {
		productID := l.Product.ID
		item := model.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   &productID,
			ProductName: l.Product.Name,
			Quantity:    l.Item.Quantity,
			Price:       l.Product.Price,
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			item.ID, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.Price,
		)
		if err != nil {
			return nil, false, fmt.Errorf("insert order item: %w", err)
		}

		product := l.Product
		if err := product.Deduct(l.Item.Quantity); err != nil {
			return nil, false, err
		}
		if err := writeInventory(ctx, tx, &product); err != nil {
			return nil, false, err
		}
		order.Items = append(order.Items, item)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, p.CartID); err != nil {
		return nil, false, fmt.Errorf("clear cart: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}
	return order, true, nil
}

func (r *pgOrderRepo) existing(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, bool, error) {
	if err := tx.Rollback(ctx); err != nil {
		return nil, false, fmt.Errorf("rollback tx: %w", err)
	}
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return order, false, nil
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *pgOrderRepo) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_intent_id = $1`, paymentIntentID)
}

func (r *pgOrderRepo) getOne(ctx context.Context, query string, arg any) (*model.Order, error) {
	order := &model.Order{}
	if err := scanOrder(r.pool.QueryRow(ctx, query, arg), order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, product_name, quantity, price FROM order_items WHERE order_id = $1 ORDER BY created_at, id`, order.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}

func (r *pgOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *pgOrderRepo) List(ctx context.Context, f OrderFilter) ([]model.Order, int, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE ($1::text IS NULL OR status = $1)`, status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE ($1::text IS NULL OR status = $1)
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		status, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
