package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrProductNotFound = errors.New("product not found")

// Reader is the read-only catalog surface the cart and checkout depend on.
type Reader interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListProducts(ctx context.Context, onlyFeatured bool) ([]Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
	GetVariants(ctx context.Context, productID uuid.UUID) ([]ProductVariant, error)
}

type postgresReader struct {
	db *sqlx.DB
}

func NewReader(db *sqlx.DB) Reader {
	return &postgresReader{db: db}
}

func (r *postgresReader) ListCategories(ctx context.Context) ([]Category, error) {
	categories := make([]Category, 0)
	err := r.db.SelectContext(ctx, &categories, `
		SELECT id, name, slug, created_at
		FROM categories
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select categories: %w", err)
	}
	return categories, nil
}

func (r *postgresReader) ListProducts(ctx context.Context, onlyFeatured bool) ([]Product, error) {
	query := `
		SELECT id, category_id, name, slug, description, image_url, price, stock,
		       lengths, colors, featured, created_at, updated_at
		FROM products`
	if onlyFeatured {
		query += ` WHERE featured`
	}
	query += ` ORDER BY created_at DESC`

	products := make([]Product, 0)
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		return nil, fmt.Errorf("repository: failed to select products: %w", err)
	}
	return products, nil
}

func (r *postgresReader) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	return r.getProduct(ctx, `WHERE id = $1`, id)
}

func (r *postgresReader) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	return r.getProduct(ctx, `WHERE slug = $1`, slug)
}

func (r *postgresReader) getProduct(ctx context.Context, where string, arg any) (*Product, error) {
	var product Product
	err := r.db.GetContext(ctx, &product, `
		SELECT id, category_id, name, slug, description, image_url, price, stock,
		       lengths, colors, featured, created_at, updated_at
		FROM products `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product: %w", err)
	}
	return &product, nil
}

func (r *postgresReader) GetVariants(ctx context.Context, productID uuid.UUID) ([]ProductVariant, error) {
	variants := make([]ProductVariant, 0)
	err := r.db.SelectContext(ctx, &variants, `
		SELECT id, product_id, length, color, price, stock, sku, created_at, updated_at
		FROM product_variants
		WHERE product_id = $1
		ORDER BY length, color`, productID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select variants for product %s: %w", productID, err)
	}
	return variants, nil
}
