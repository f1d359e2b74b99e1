package main

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutUseCase é o orquestrador da saga de checkout: cria o pedido,
// abre a sessão no gateway e, na confirmação do pagamento, dispara o
// decremento de estoque e a notificação. É o único componente que cruza
// as fronteiras de serviço.
type CheckoutUseCase struct {
	repository Repository
	catalog    CatalogService
	gateway    PaymentGateway
	publisher  MessagePublisher
	tracer     trace.Tracer
}

// NewCheckoutUseCase cria uma nova instância de CheckoutUseCase
func NewCheckoutUseCase(
	repository Repository,
	catalog CatalogService,
	gateway PaymentGateway,
	publisher MessagePublisher,
	tracer trace.Tracer,
) *CheckoutUseCase {
	return &CheckoutUseCase{
		repository: repository,
		catalog:    catalog,
		gateway:    gateway,
		publisher:  publisher,
		tracer:     tracer,
	}
}

// CreateCheckout cria o pedido a partir do snapshot do carrinho (ou reusa um
// pedido existente em awaiting_payment), pré-valida o estoque vivo e abre a
// sessão de checkout no gateway
func (uc *CheckoutUseCase) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	var order *Order
	var err error

	if req.OrderID != "" {
		// Retry de sessão: o pedido já existe, só abrimos uma nova sessão
		order, err = uc.getAwaitingOrder(ctx, req.OrderID)
	} else {
		order, err = uc.createOrder(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	// Pré-validação de estoque vivo (pre-flight, não reserva): a janela
	// entre aqui e a confirmação do pagamento fica deliberadamente aberta
	if err := uc.validateLiveStock(ctx, order); err != nil {
		return nil, err
	}

	session, err := uc.gateway.CreateSession(ctx, order, req.SuccessURL, req.CancelURL)
	if err != nil {
		log.Printf("❌ [CHECKOUT] Session create failed | OrderID=%s : %v", order.ID, err)
		return nil, err
	}

	log.Printf("✅ [CHECKOUT] Session created | OrderID=%s | SessionID=%s", order.ID, session.SessionID)
	return &CheckoutResponse{
		OrderID:     order.ID,
		SessionID:   session.SessionID,
		CheckoutURL: session.RedirectURL,
	}, nil
}

// createOrder monta o agregado com as linhas congeladas e persiste em uma
// única escrita. Nenhum estoque é decrementado aqui.
func (uc *CheckoutUseCase) createOrder(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, NewCheckoutError(KindInvalidRequest, "cart is empty")
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, NewCheckoutError(KindInvalidRequest, "invalid quantity %d for item %d", line.Quantity, line.ProductItemID)
		}
	}

	method, err := uc.catalog.GetShippingMethod(ctx, req.ShippingMethodID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(req.Lines))
	for _, line := range req.Lines {
		ids = append(ids, line.ProductItemID)
	}

	// Qualquer item ausente falha a criação inteira: nenhum pedido parcial
	items, err := uc.catalog.GetItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	order := NewOrder(uuid.New().String(), req.UserID, req.Email, req.Shipping, method.Name, method.Fee, req.Currency)
	for _, line := range req.Lines {
		item := items[line.ProductItemID]
		order.AddLine(item.ID, item.ProductName, line.Quantity, EffectivePrice(item.BasePrice, item.DiscountPct))
	}
	order.ComputeTotals()

	if err := uc.repository.CreateOrder(ctx, order); err != nil {
		log.Printf("❌ [CHECKOUT] Failed to persist order: %v", err)
		return nil, WrapCheckoutError(KindUpstream, err, "failed to persist order")
	}

	log.Printf("✅ [CHECKOUT] Order created | OrderID=%s | Total=%s | Final=%s",
		order.ID, order.OrderTotal.StringFixed(2), order.FinalTotal.StringFixed(2))
	return order, nil
}

// getAwaitingOrder carrega um pedido existente para retry de sessão
func (uc *CheckoutUseCase) getAwaitingOrder(ctx context.Context, orderID string) (*Order, error) {
	order, err := uc.repository.GetOrder(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, NewCheckoutError(KindNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return nil, WrapCheckoutError(KindUpstream, err, "failed to load order %s", orderID)
	}
	if order.Status != OrderStatusAwaitingPayment {
		return nil, NewCheckoutError(KindInvalidRequest, "order %s is %s, not awaiting payment", orderID, order.Status)
	}
	return order, nil
}

// validateLiveStock confere a quantidade viva de cada linha contra o
// catálogo. É um pre-flight check, não uma reserva.
func (uc *CheckoutUseCase) validateLiveStock(ctx context.Context, order *Order) error {
	ids := make([]int64, 0, len(order.Lines))
	for _, line := range order.Lines {
		ids = append(ids, line.ProductItemID)
	}

	items, err := uc.catalog.GetItems(ctx, ids)
	if err != nil {
		return err
	}

	for _, line := range order.Lines {
		if item := items[line.ProductItemID]; line.Quantity > item.Stock {
			log.Printf("ℹ️ [STOCK] Insufficient | OrderID=%s | ItemID=%d | Requested=%d | Live=%d",
				order.ID, line.ProductItemID, line.Quantity, item.Stock)
			return NewCheckoutError(KindInsufficientStock,
				"item %d has %d in stock, %d requested", line.ProductItemID, item.Stock, line.Quantity)
		}
	}
	return nil
}

// ConfirmPayment aplica a máquina de estados da confirmação:
// replay idempotente se o ledger já tem um succeeded para o pedido; insert
// condicional guardado pelas constraints unique; atualização do pedido para
// packing; decremento de estoque e notificação. Entregas duplicadas do mesmo
// callback disputam o insert com exatamente um vencedor.
func (uc *CheckoutUseCase) ConfirmPayment(ctx context.Context, event *PaymentEvent) (*PaymentConfirmation, error) {
	ctx, span := uc.tracer.Start(ctx, "confirm_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", event.OrderID),
		attribute.String("gateway_status", event.Status),
	)

	order, err := uc.getOrderForConfirmation(ctx, event.OrderID)
	if err != nil {
		return nil, err
	}

	// Replay idempotente: o ledger já tem um succeeded para este pedido.
	// Retorna o registro existente sem nenhum efeito colateral.
	existing, err := uc.repository.GetSucceededPaymentByOrder(ctx, event.OrderID)
	if err != nil {
		return nil, WrapCheckoutError(KindUpstream, err, "ledger lookup failed for order %s", event.OrderID)
	}
	if existing != nil {
		log.Printf("ℹ️ [IDEMPOTENCY] Payment already recorded | OrderID=%s | TransactionID=%s",
			event.OrderID, existing.TransactionID)
		return confirmationOf(existing), nil
	}

	if event.Status != EventStatusSucceeded {
		// Pendente/falho/cancelado: nenhum registro criado, o pedido segue
		// em awaiting_payment e o caller pode abrir uma nova sessão
		log.Printf("ℹ️ [PAYMENT] Not successful | OrderID=%s | Status=%s", event.OrderID, event.Status)
		return &PaymentConfirmation{OrderID: event.OrderID, Status: event.Status}, nil
	}

	payment := NewSucceededPayment(*event, uc.gateway.Name())
	inserted, err := uc.repository.InsertPaymentIfAbsent(ctx, payment)
	if err != nil {
		return nil, WrapCheckoutError(KindUpstream, err, "payment insert failed for order %s", event.OrderID)
	}
	if !inserted {
		// Outra entrega venceu a corrida: busca o registro vencedor e
		// toma o caminho de replay
		winner, err := uc.repository.GetSucceededPaymentByOrder(ctx, event.OrderID)
		if err != nil || winner == nil {
			return nil, NewCheckoutError(KindUpstream, "payment conflict without ledger row for order %s", event.OrderID)
		}
		log.Printf("ℹ️ [IDEMPOTENCY] Lost insert race, replaying | OrderID=%s", event.OrderID)
		return confirmationOf(winner), nil
	}

	if err := order.AttachPayment(payment); err != nil {
		log.Printf("❌ [PAYMENT] Cannot attach to order | OrderID=%s : %v", order.ID, err)
		return nil, WrapCheckoutError(KindUpstream, err, "order %s cannot accept payment", order.ID)
	}
	if err := uc.repository.UpdateOrderPayment(ctx, order); err != nil {
		return nil, WrapCheckoutError(KindUpstream, err, "failed to update order %s", order.ID)
	}

	log.Printf("✅ [PAYMENT] Confirmed | OrderID=%s | TransactionID=%s", order.ID, payment.TransactionID)

	uc.reconcileStock(ctx, order)
	uc.notifyConfirmation(ctx, order)

	return confirmationOf(payment), nil
}

// HandleWebhook autentica o webhook/callback cru do gateway e aplica a
// confirmação. Falha de assinatura aborta sem nenhuma mudança de estado.
func (uc *CheckoutUseCase) HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (*PaymentConfirmation, error) {
	event, err := uc.gateway.VerifyWebhook(body, headers)
	if err != nil {
		log.Printf("ℹ️ [WEBHOOK] Rejected: %v", err)
		return nil, err
	}
	return uc.ConfirmPayment(ctx, event)
}

// VerifySession é o caminho síncrono de verificação por polling: consulta a
// sessão na API do gateway e aplica a mesma confirmação do webhook
func (uc *CheckoutUseCase) VerifySession(ctx context.Context, sessionID string) (*PaymentConfirmation, error) {
	event, err := uc.gateway.FetchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return uc.ConfirmPayment(ctx, event)
}

func (uc *CheckoutUseCase) getOrderForConfirmation(ctx context.Context, orderID string) (*Order, error) {
	order, err := uc.repository.GetOrder(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, NewCheckoutError(KindNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return nil, WrapCheckoutError(KindUpstream, err, "failed to load order %s", orderID)
	}
	return order, nil
}

// reconcileStock refaz a checagem de estoque vivo (o tempo passou desde o
// pre-flight) e publica o batch de decremento. Insuficiência aqui acontece
// após o pagamento: é registrada como erro operacional e o pedido permanece
// em packing com a discrepância — não há refund/cancelamento automático.
func (uc *CheckoutUseCase) reconcileStock(ctx context.Context, order *Order) {
	ctx, span := uc.tracer.Start(ctx, "reconcile_stock")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", order.ID))

	if err := uc.validateLiveStock(ctx, order); err != nil {
		span.RecordError(err)
		log.Printf("❌ [STOCK DISCREPANCY] Post-payment shortfall, needs operator | OrderID=%s : %v", order.ID, err)
		return
	}

	batch := StockDecrementBatch{BatchID: order.ID}
	for _, line := range order.Lines {
		batch.Requests = append(batch.Requests, StockUpdateRequest{
			ProductItemID:      line.ProductItemID,
			QuantityToSubtract: line.Quantity,
		})
	}

	if err := uc.publisher.PublishStockDecrement(ctx, batch); err != nil {
		span.RecordError(err)
		log.Printf("❌ [STOCK] Failed to publish decrement batch | OrderID=%s : %v", order.ID, err)
		return
	}

	log.Printf("✅ [STOCK] Decrement batch published | OrderID=%s | Lines=%d", order.ID, len(batch.Requests))
}

// notifyConfirmation publica a confirmação do pedido (fire-and-forget):
// falha aqui nunca desfaz o estado do pagamento/pedido
func (uc *CheckoutUseCase) notifyConfirmation(ctx context.Context, order *Order) {
	msg := OrderConfirmation{
		OrderID:        order.ID,
		Email:          order.UserEmail,
		Lines:          order.Lines,
		OrderDate:      order.CreatedAt,
		FinalTotal:     order.FinalTotal,
		ShippingMethod: order.ShippingMethod,
	}

	if err := uc.publisher.PublishOrderConfirmation(ctx, msg); err != nil {
		log.Printf("❌ [NOTIFY] Failed to publish confirmation | OrderID=%s : %v", order.ID, err)
		return
	}

	log.Printf("✅ [NOTIFY] Confirmation published | OrderID=%s", order.ID)
}

func confirmationOf(p *Payment) *PaymentConfirmation {
	return &PaymentConfirmation{
		ID:              p.ID,
		TransactionID:   p.TransactionID,
		PaymentIntentID: p.PaymentIntentID,
		OrderID:         p.ShopOrderID,
		Status:          p.Status,
	}
}
