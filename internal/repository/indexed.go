package repository

import (
	"context"
	"fmt"

	"storefront/catalog/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS indexed_products (
	id          BIGINT PRIMARY KEY,
	category_id BIGINT NOT NULL,
	title       TEXT NOT NULL,
	indexed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// IndexedProductRepository keeps a ledger of what the last reindex wrote to
// the search index.
type IndexedProductRepository interface {
	EnsureSchema(ctx context.Context) error
	SaveIndexedProduct(ctx context.Context, categoryID int64, doc domain.IndexDocument) error
}

type indexedProductRepository struct {
	db *pgxpool.Pool
}

func NewIndexedProductRepository(db *pgxpool.Pool) IndexedProductRepository {
	return &indexedProductRepository{
		db: db,
	}
}

func (r *indexedProductRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create indexed_products table: %w", err)
	}
	return nil
}

func (r *indexedProductRepository) SaveIndexedProduct(ctx context.Context, categoryID int64, doc domain.IndexDocument) error {
	query := `
	INSERT INTO indexed_products (id, category_id, title, indexed_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (id)
	DO UPDATE SET category_id = $2, title = $3, indexed_at = now()`
	_, err := r.db.Exec(ctx, query, doc.ID, categoryID, doc.Title)
	if err != nil {
		return fmt.Errorf("failed to save indexed product %d: %w", doc.ID, err)
	}

	return nil
}
