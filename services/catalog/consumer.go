package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueStockDecrement é a fila de batches de decremento publicada pelo
// serviço de pedidos
const QueueStockDecrement = "stock.decrement"

// StockConsumer consome os batches de decremento. A entrega é at-least-once;
// a idempotência por BatchID no use case torna o consumo efetivamente única.
type StockConsumer struct {
	channel *amqp.Channel
	useCase *CatalogUseCase
}

// NewStockConsumer declara a fila durável e cria o consumer
func NewStockConsumer(conn *amqp.Connection, useCase *CatalogUseCase) (*StockConsumer, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if _, err := channel.QueueDeclare(QueueStockDecrement, true, false, false, false, nil); err != nil {
		return nil, err
	}
	if err := channel.Qos(1, 0, false); err != nil {
		return nil, err
	}

	return &StockConsumer{channel: channel, useCase: useCase}, nil
}

// Run consome a fila até o contexto ser cancelado
func (c *StockConsumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(QueueStockDecrement, "catalog-stock", false, false, false, false, nil)
	if err != nil {
		return err
	}

	log.Printf("🚀 Stock consumer listening on %s", QueueStockDecrement)

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

func (c *StockConsumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var batch StockDecrementBatch
	if err := json.Unmarshal(delivery.Body, &batch); err != nil {
		// Payload malformado nunca vai ficar válido: descarta com log
		log.Printf("❌ [STOCK DECREMENT] Malformed message dropped: %v", err)
		_ = delivery.Ack(false)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.useCase.ApplyStockDecrement(ctx, batch); err != nil {
		// Falha transitória: devolve para a fila para nova tentativa
		log.Printf("ℹ️ [STOCK DECREMENT] Requeued | BatchID=%s : %v", batch.BatchID, err)
		_ = delivery.Nack(false, true)
		return
	}

	_ = delivery.Ack(false)
}
