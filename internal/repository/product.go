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

const productColumns = `p.id, p.name, p.description, p.price, p.stock, p.category_id, p.image_url,
	p.is_animal, p.male_quantity, p.female_quantity, p.unknown_quantity, p.laid_date,
	p.created_at, p.updated_at`

type ProductFilter struct {
	Limit      int
	Offset     int
	Search     string
	Sort       string
	Order      string
	CategoryID *uuid.UUID
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, f ProductFilter) ([]model.Product, int, error)
	Update(ctx context.Context, product *model.Product) error
	UpdateImage(ctx context.Context, id uuid.UUID, imageURL string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type pgProductRepo struct{ pool *pgxpool.Pool }

func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepo{pool: pool}
}

func scanProduct(row pgx.Row, p *model.Product, extra ...any) error {
	dest := []any{
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CategoryID, &p.ImageURL,
		&p.IsAnimal, &p.MaleQuantity, &p.FemaleQuantity, &p.UnknownQuantity, &p.LaidDate,
		&p.CreatedAt, &p.UpdatedAt,
	}
	return row.Scan(append(extra, dest...)...)
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	query := `INSERT INTO products (id, name, description, price, stock, category_id, image_url,
				is_animal, male_quantity, female_quantity, unknown_quantity, laid_date, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
			  RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Price, product.Stock, product.CategoryID,
		product.ImageURL, product.IsAnimal, product.MaleQuantity, product.FemaleQuantity,
		product.UnknownQuantity, product.LaidDate,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`
	p := &model.Product{}
	if err := scanProduct(r.pool.QueryRow(ctx, query, id), p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) List(ctx context.Context, f ProductFilter) ([]model.Product, int, error) {
	allowedSorts := map[string]bool{"name": true, "price": true, "created_at": true}
	if !allowedSorts[f.Sort] {
		f.Sort = "created_at"
	}
	if f.Order != "asc" && f.Order != "desc" {
		f.Order = "desc"
	}

	where := `($1 = '' OR p.name ILIKE '%' || $1 || '%' OR p.description ILIKE '%' || $1 || '%')
		AND ($2::uuid IS NULL OR p.category_id = $2)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products p WHERE `+where, f.Search, f.CategoryID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM products p WHERE %s ORDER BY p.%s %s LIMIT $3 OFFSET $4`,
		productColumns, where, f.Sort, f.Order)

	rows, err := r.pool.Query(ctx, query, f.Search, f.CategoryID, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

func (r *pgProductRepo) Update(ctx context.Context, product *model.Product) error {
	query := `UPDATE products SET name=$2, description=$3, price=$4, stock=$5, category_id=$6, image_url=$7,
				is_animal=$8, male_quantity=$9, female_quantity=$10, unknown_quantity=$11, laid_date=$12,
				updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Price, product.Stock, product.CategoryID,
		product.ImageURL, product.IsAnimal, product.MaleQuantity, product.FemaleQuantity,
		product.UnknownQuantity, product.LaidDate,
	).Scan(&product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) UpdateImage(ctx context.Context, id uuid.UUID, imageURL string) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE products SET image_url = $2, updated_at = NOW() WHERE id = $1`, id, imageURL,
	)
	if err != nil {
		return fmt.Errorf("update product image: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// writeInventory persists the stock and gender counts of p inside tx.
func writeInventory(ctx context.Context, tx pgx.Tx, p *model.Product) error {
	_, err := tx.Exec(ctx,
		`UPDATE products SET stock = $2, male_quantity = $3, female_quantity = $4, unknown_quantity = $5,
			updated_at = NOW()
		 WHERE id = $1`,
		p.ID, p.Stock, p.MaleQuantity, p.FemaleQuantity, p.UnknownQuantity,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return nil
}
