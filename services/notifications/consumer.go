package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

// QueueOrderConfirmation é a fila de confirmações publicada pelo serviço
// de pedidos
const QueueOrderConfirmation = "order.confirmation"

// OrderLine é a linha congelada recebida no payload de confirmação
type OrderLine struct {
	ProductItemID int64           `json:"product_item_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
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

// Sender despacha uma confirmação para o destinatário (a renderização do
// e-mail fica fora deste serviço)
type Sender interface {
	Send(ctx context.Context, msg OrderConfirmation) error
}

// LogSender registra o despacho; sendo o último elo fire-and-forget da
// saga, falha aqui nunca volta para o pagamento
type LogSender struct{}

// Send registra a confirmação despachada
func (LogSender) Send(ctx context.Context, msg OrderConfirmation) error {
	log.Printf("📧 [CONFIRMATION] OrderID=%s | To=%s | Total=%s | Shipping=%s | Lines=%d",
		msg.OrderID, msg.Email, msg.FinalTotal.StringFixed(2), msg.ShippingMethod, len(msg.Lines))
	return nil
}

// ConfirmationConsumer consome a fila de confirmações de pedido
type ConfirmationConsumer struct {
	channel *amqp.Channel
	sender  Sender
}

// NewConfirmationConsumer declara a fila durável e cria o consumer
func NewConfirmationConsumer(conn *amqp.Connection, sender Sender) (*ConfirmationConsumer, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if _, err := channel.QueueDeclare(QueueOrderConfirmation, true, false, false, false, nil); err != nil {
		return nil, err
	}
	if err := channel.Qos(1, 0, false); err != nil {
		return nil, err
	}

	return &ConfirmationConsumer{channel: channel, sender: sender}, nil
}

// Run consome a fila até o contexto ser cancelado
func (c *ConfirmationConsumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(QueueOrderConfirmation, "notifications", false, false, false, false, nil)
	if err != nil {
		return err
	}

	log.Printf("🚀 Confirmation consumer listening on %s", QueueOrderConfirmation)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, delivery)
		}
	}
}

func (c *ConfirmationConsumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var msg OrderConfirmation
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		log.Printf("❌ [CONFIRMATION] Malformed message dropped: %v", err)
		_ = delivery.Ack(false)
		return
	}

	if err := c.sender.Send(ctx, msg); err != nil {
		log.Printf("ℹ️ [CONFIRMATION] Requeued | OrderID=%s : %v", msg.OrderID, err)
		_ = delivery.Nack(false, true)
		return
	}

	_ = delivery.Ack(false)
}
