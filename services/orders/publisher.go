package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

// Nomes das filas compartilhadas com os consumidores
const (
	QueueStockDecrement    = "stock.decrement"
	QueueOrderConfirmation = "order.confirmation"
)

// StockUpdateRequest pede a subtração de estoque de um item do catálogo.
// Emitido uma vez por linha do pedido confirmado.
type StockUpdateRequest struct {
	ProductItemID      int64 `json:"product_item_id"`
	QuantityToSubtract int   `json:"quantity_to_subtract"`
}

// StockDecrementBatch agrupa as linhas de um pedido em uma única mensagem.
// O BatchID (id do pedido) permite ao consumidor suprimir redeliveries.
type StockDecrementBatch struct {
	BatchID  string               `json:"batch_id"`
	Requests []StockUpdateRequest `json:"requests"`
}

// OrderConfirmation é o payload fire-and-forget de confirmação do pedido
type OrderConfirmation struct {
	OrderID        string          `json:"order_id"`
	Email          string          `json:"email"`
	Lines          []OrderLine     `json:"order_lines"`
	OrderDate      time.Time       `json:"order_date"`
	FinalTotal     decimal.Decimal `json:"final_total"`
	ShippingMethod string          `json:"shipping_method"`
}

// MessagePublisher abstrai a publicação nas filas do broker
type MessagePublisher interface {
	PublishStockDecrement(ctx context.Context, batch StockDecrementBatch) error
	PublishOrderConfirmation(ctx context.Context, msg OrderConfirmation) error
}

// RabbitPublisher implementa MessagePublisher usando RabbitMQ
type RabbitPublisher struct {
	channel *amqp.Channel
}

// NewRabbitPublisher declara as filas duráveis e cria o publisher
func NewRabbitPublisher(conn *amqp.Connection) (*RabbitPublisher, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	for _, queue := range []string{QueueStockDecrement, QueueOrderConfirmation} {
		if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
	}

	return &RabbitPublisher{channel: channel}, nil
}

// PublishStockDecrement publica o batch de decremento do pedido
func (p *RabbitPublisher) PublishStockDecrement(ctx context.Context, batch StockDecrementBatch) error {
	return p.publish(ctx, QueueStockDecrement, batch)
}

// PublishOrderConfirmation publica a confirmação do pedido
func (p *RabbitPublisher) PublishOrderConfirmation(ctx context.Context, msg OrderConfirmation) error {
	return p.publish(ctx, QueueOrderConfirmation, msg)
}

func (p *RabbitPublisher) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", queue, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return WrapCheckoutError(KindUpstream, err, "failed to publish to %s", queue)
	}
	return nil
}
