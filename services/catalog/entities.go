package main

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductItem representa um item do catálogo com o contador de estoque.
// Este serviço é o único escritor do contador.
type ProductItem struct {
	ID          int64           `json:"id" db:"id"`
	ProductName string          `json:"product_name" db:"product_name"`
	Stock       int             `json:"stock" db:"stock"`
	BasePrice   decimal.Decimal `json:"base_price" db:"base_price"`
	DiscountPct int             `json:"discount_pct" db:"discount_pct"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// ShippingMethod representa um método de envio disponível
type ShippingMethod struct {
	ID   int64           `json:"id" db:"id"`
	Name string          `json:"name" db:"name"`
	Fee  decimal.Decimal `json:"fee" db:"fee"`
}

// StockUpdateRequest pede a subtração de estoque de um item
type StockUpdateRequest struct {
	ProductItemID      int64 `json:"product_item_id"`
	QuantityToSubtract int   `json:"quantity_to_subtract"`
}

// StockDecrementBatch agrupa as linhas de um pedido confirmado. Redeliveries
// da mesma mensagem são suprimidas pelo BatchID.
type StockDecrementBatch struct {
	BatchID  string               `json:"batch_id"`
	Requests []StockUpdateRequest `json:"requests"`
}
