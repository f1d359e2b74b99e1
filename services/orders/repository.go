package main

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository define a interface para operações de banco de dados de pedidos
// e do ledger de pagamentos
type Repository interface {
	// CreateOrder persiste o pedido e suas linhas congeladas em uma única
	// transação (escrita única do agregado)
	CreateOrder(ctx context.Context, order *Order) error

	// GetOrder busca um pedido com suas linhas pelo ID
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// UpdateOrderPayment grava os campos de pagamento e o novo status do
	// pedido após a confirmação
	UpdateOrderPayment(ctx context.Context, order *Order) error

	// GetSucceededPaymentByOrder retorna o pagamento succeeded do pedido,
	// ou nil se não existir
	GetSucceededPaymentByOrder(ctx context.Context, orderID string) (*Payment, error)

	// InsertPaymentIfAbsent insere o pagamento guardado pelas constraints
	// unique de transaction_id, payment_intent_id e shop_order_id.
	// Retorna false quando alguma constraint já estava ocupada (replay).
	InsertPaymentIfAbsent(ctx context.Context, payment *Payment) (bool, error)
}

// ErrOrderNotFound indica que o pedido não existe no banco
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository implementa Repository usando PostgreSQL
type OrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository cria uma nova instância de OrderRepository
func NewOrderRepository(db *pgxpool.Pool) Repository {
	return &OrderRepository{
		db: db,
	}
}

// CreateOrder persiste o pedido e as linhas em uma transação
func (r *OrderRepository) CreateOrder(ctx context.Context, order *Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, user_id, user_email,
			recipient_name, street, city, region, postal_code, country,
			shipping_method, shipping_fee, order_total, final_total, currency,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, order.ID, order.UserID, order.UserEmail,
		order.Shipping.RecipientName, order.Shipping.Street, order.Shipping.City,
		order.Shipping.Region, order.Shipping.PostalCode, order.Shipping.Country,
		order.ShippingMethod, order.ShippingFee, order.OrderTotal, order.FinalTotal,
		order.Currency, order.Status, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return err
	}

	for i, line := range order.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_item_id, product_name, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, order.ID, i, line.ProductItemID, line.ProductName, line.Quantity, line.Price)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetOrder busca um pedido com suas linhas pelo ID
func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	var paymentID, transactionID, paymentIntentID, gateway, paymentStatus *string
	var paidAt *time.Time

	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, user_email,
		       recipient_name, street, city, region, postal_code, country,
		       shipping_method, shipping_fee, order_total, final_total, currency,
		       payment_id, transaction_id, payment_intent_id, gateway, paid_at, payment_status,
		       status, created_at, updated_at
		FROM orders WHERE id = $1
	`, orderID).Scan(
		&order.ID, &order.UserID, &order.UserEmail,
		&order.Shipping.RecipientName, &order.Shipping.Street, &order.Shipping.City,
		&order.Shipping.Region, &order.Shipping.PostalCode, &order.Shipping.Country,
		&order.ShippingMethod, &order.ShippingFee, &order.OrderTotal, &order.FinalTotal, &order.Currency,
		&paymentID, &transactionID, &paymentIntentID, &gateway, &paidAt, &paymentStatus,
		&order.Status, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if paymentID != nil {
		order.PaymentID = *paymentID
	}
	if transactionID != nil {
		order.TransactionID = *transactionID
	}
	if paymentIntentID != nil {
		order.PaymentIntentID = *paymentIntentID
	}
	if gateway != nil {
		order.Gateway = *gateway
	}
	if paidAt != nil {
		order.PaidAt = *paidAt
	}
	if paymentStatus != nil {
		order.PaymentStatus = *paymentStatus
	}

	rows, err := r.db.Query(ctx, `
		SELECT product_item_id, product_name, quantity, price
		FROM order_lines WHERE order_id = $1
		ORDER BY line_no
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ProductItemID, &line.ProductName, &line.Quantity, &line.Price); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &order, nil
}

// UpdateOrderPayment grava o vínculo de pagamento e o status do pedido
func (r *OrderRepository) UpdateOrderPayment(ctx context.Context, order *Order) error {
	_, err := r.db.Exec(ctx, `
		UPDATE orders
		SET payment_id = $1, transaction_id = $2, payment_intent_id = $3,
		    gateway = $4, paid_at = $5, payment_status = $6,
		    status = $7, updated_at = NOW()
		WHERE id = $8
	`, order.PaymentID, order.TransactionID, order.PaymentIntentID,
		order.Gateway, order.PaidAt, order.PaymentStatus,
		order.Status, order.ID)
	return err
}

// GetSucceededPaymentByOrder retorna o pagamento succeeded do pedido, ou nil
func (r *OrderRepository) GetSucceededPaymentByOrder(ctx context.Context, orderID string) (*Payment, error) {
	var payment Payment
	err := r.db.QueryRow(ctx, `
		SELECT id, transaction_id, payment_intent_id, shop_order_id, provider,
		       amount, currency, card_last4, card_brand, status, paid_at,
		       created_at, updated_at
		FROM payments
		WHERE shop_order_id = $1 AND status = $2
	`, orderID, PaymentStatusSucceeded).Scan(
		&payment.ID, &payment.TransactionID, &payment.PaymentIntentID,
		&payment.ShopOrderID, &payment.Provider, &payment.Amount, &payment.Currency,
		&payment.CardLast4, &payment.CardBrand, &payment.Status, &payment.PaidAt,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// InsertPaymentIfAbsent faz o insert condicional do pagamento. O ON CONFLICT
// DO NOTHING cobre as três constraints unique; zero linhas afetadas significa
// que outra entrega já processou este pagamento (caminho de replay, não erro).
func (r *OrderRepository) InsertPaymentIfAbsent(ctx context.Context, payment *Payment) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO payments (
			id, transaction_id, payment_intent_id, shop_order_id, provider,
			amount, currency, card_last4, card_brand, status, paid_at,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT DO NOTHING
	`, payment.ID, payment.TransactionID, payment.PaymentIntentID,
		payment.ShopOrderID, payment.Provider, payment.Amount, payment.Currency,
		payment.CardLast4, payment.CardBrand, payment.Status, payment.PaidAt,
		payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}
