package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository define a interface para operações de banco de dados do
// catálogo e do contador de estoque
type CatalogRepository interface {
	GetItemsByIDs(ctx context.Context, ids []int64) ([]ProductItem, error)
	GetShippingMethod(ctx context.Context, id int64) (*ShippingMethod, error)

	// BatchProcessed verifica se um batch de decremento já foi aplicado
	BatchProcessed(ctx context.Context, tx Tx, batchID string) (bool, error)

	// MarkBatchProcessed registra o batch como aplicado
	MarkBatchProcessed(ctx context.Context, tx Tx, batchID string) error

	// DecrementStock subtrai a quantidade condicionalmente: retorna false
	// quando o decremento deixaria o estoque negativo (nenhuma mudança)
	DecrementStock(ctx context.Context, tx Tx, productItemID int64, quantity int) (bool, error)

	BeginTx(ctx context.Context) (Tx, error)
}

// Tx interface para transações
type Tx interface {
	Commit() error
	Rollback() error
}

// ErrShippingMethodNotFound indica que o método de envio não existe
var ErrShippingMethodNotFound = errors.New("shipping method not found")

// PostgresCatalogRepository implementa CatalogRepository usando PostgreSQL
type PostgresCatalogRepository struct {
	db *pgxpool.Pool
}

// NewCatalogRepository cria uma nova instância de PostgresCatalogRepository
func NewCatalogRepository(db *pgxpool.Pool) CatalogRepository {
	return &PostgresCatalogRepository{
		db: db,
	}
}

// GetItemsByIDs busca os itens do catálogo pelos ids
func (r *PostgresCatalogRepository) GetItemsByIDs(ctx context.Context, ids []int64) ([]ProductItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, product_name, stock, base_price, discount_pct, created_at, updated_at
		FROM product_items
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ProductItem
	for rows.Next() {
		var item ProductItem
		err := rows.Scan(&item.ID, &item.ProductName, &item.Stock,
			&item.BasePrice, &item.DiscountPct, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// GetShippingMethod busca um método de envio pelo id
func (r *PostgresCatalogRepository) GetShippingMethod(ctx context.Context, id int64) (*ShippingMethod, error) {
	var method ShippingMethod
	err := r.db.QueryRow(ctx, `
		SELECT id, name, fee FROM shipping_methods WHERE id = $1
	`, id).Scan(&method.ID, &method.Name, &method.Fee)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrShippingMethodNotFound
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// PostgresTx implementa a interface Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// BeginTx inicia uma nova transação
func (r *PostgresCatalogRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

// BatchProcessed verifica se um batch de decremento já foi aplicado
func (r *PostgresCatalogRepository) BatchProcessed(ctx context.Context, tx Tx, batchID string) (bool, error) {
	pgTx := tx.(*PostgresTx).tx

	var exists bool
	err := pgTx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM processed_batches WHERE batch_id = $1)
	`, batchID).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// MarkBatchProcessed registra o batch como aplicado
func (r *PostgresCatalogRepository) MarkBatchProcessed(ctx context.Context, tx Tx, batchID string) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		INSERT INTO processed_batches (batch_id, processed_at) VALUES ($1, NOW())
	`, batchID)
	return err
}

// DecrementStock subtrai a quantidade apenas se o resultado não ficar
// negativo. O WHERE condicional é a garantia de não-oversell: concorrentes
// disputam a mesma linha e só vencem enquanto houver estoque.
func (r *PostgresCatalogRepository) DecrementStock(ctx context.Context, tx Tx, productItemID int64, quantity int) (bool, error) {
	pgTx := tx.(*PostgresTx).tx

	tag, err := pgTx.Exec(ctx, `
		UPDATE product_items
		SET stock = stock - $1,
		    updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`, quantity, productItemID)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}
