package main

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace/noop"
)

// MockRepository simula o Repository para testes do orquestrador
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateOrder(ctx context.Context, order *Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	args := m.Called(ctx, orderID)
	if order, ok := args.Get(0).(*Order); ok {
		return order, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) UpdateOrderPayment(ctx context.Context, order *Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockRepository) GetSucceededPaymentByOrder(ctx context.Context, orderID string) (*Payment, error) {
	args := m.Called(ctx, orderID)
	if payment, ok := args.Get(0).(*Payment); ok {
		return payment, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) InsertPaymentIfAbsent(ctx context.Context, payment *Payment) (bool, error) {
	args := m.Called(ctx, payment)
	return args.Bool(0), args.Error(1)
}

// MockCatalog simula o CatalogService
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetItems(ctx context.Context, ids []int64) (map[int64]CatalogItem, error) {
	args := m.Called(ctx, ids)
	if items, ok := args.Get(0).(map[int64]CatalogItem); ok {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCatalog) GetShippingMethod(ctx context.Context, id int64) (*ShippingMethodInfo, error) {
	args := m.Called(ctx, id)
	if method, ok := args.Get(0).(*ShippingMethodInfo); ok {
		return method, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockGateway simula o PaymentGateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string {
	return "stripe"
}

func (m *MockGateway) CreateSession(ctx context.Context, order *Order, successURL, cancelURL string) (*CheckoutSession, error) {
	args := m.Called(ctx, order, successURL, cancelURL)
	if session, ok := args.Get(0).(*CheckoutSession); ok {
		return session, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) VerifyWebhook(body []byte, headers map[string]string) (*PaymentEvent, error) {
	args := m.Called(body, headers)
	if event, ok := args.Get(0).(*PaymentEvent); ok {
		return event, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) VerifyCallback(form url.Values) (*PaymentEvent, error) {
	args := m.Called(form)
	if event, ok := args.Get(0).(*PaymentEvent); ok {
		return event, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) FetchSession(ctx context.Context, sessionID string) (*PaymentEvent, error) {
	args := m.Called(ctx, sessionID)
	if event, ok := args.Get(0).(*PaymentEvent); ok {
		return event, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPublisher simula o MessagePublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishStockDecrement(ctx context.Context, batch StockDecrementBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockPublisher) PublishOrderConfirmation(ctx context.Context, msg OrderConfirmation) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func newTestUseCase(repo *MockRepository, catalog *MockCatalog, gateway *MockGateway, publisher *MockPublisher) *CheckoutUseCase {
	tracer := noop.NewTracerProvider().Tracer("test")
	return NewCheckoutUseCase(repo, catalog, gateway, publisher, tracer)
}

func checkoutRequest() CheckoutRequest {
	return CheckoutRequest{
		UserID:           "user-1",
		Email:            "jane@example.com",
		Shipping:         ShippingSnapshot{RecipientName: "Jane", Street: "1 Main St", City: "Springfield", Country: "US"},
		ShippingMethodID: 1,
		Currency:         "USD",
		Lines:            []CartLineRequest{{ProductItemID: 5, Quantity: 2}},
		SuccessURL:       "https://shop.example/success",
		CancelURL:        "https://shop.example/cancel",
	}
}

func blueMug(stock int) map[int64]CatalogItem {
	return map[int64]CatalogItem{
		5: {ID: 5, ProductName: "Blue Mug", Stock: stock, BasePrice: decimal.RequireFromString("50.00"), DiscountPct: 10},
	}
}

func TestCreateCheckout_EmptyCart(t *testing.T) {
	// Arrange
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	req := checkoutRequest()
	req.Lines = nil

	// Act
	resp, err := uc.CreateCheckout(context.Background(), req)

	// Assert
	assert.Nil(t, resp)
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	repo.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCreateCheckout_UnknownCatalogItem(t *testing.T) {
	// Arrange
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	catalog.On("GetShippingMethod", mock.Anything, int64(1)).
		Return(&ShippingMethodInfo{ID: 1, Name: "Standard", Fee: decimal.RequireFromString("5.00")}, nil)
	catalog.On("GetItems", mock.Anything, []int64{5}).
		Return(nil, NewCheckoutError(KindNotFound, "catalog item 5 not found"))

	// Act
	resp, err := uc.CreateCheckout(context.Background(), checkoutRequest())

	// Assert: nenhum pedido parcial é persistido
	assert.Nil(t, resp)
	assert.Equal(t, KindNotFound, KindOf(err))
	repo.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCreateCheckout_FreezesPrices(t *testing.T) {
	// Arrange: base 50.00 com 10% de desconto, qty 2
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	catalog.On("GetShippingMethod", mock.Anything, int64(1)).
		Return(&ShippingMethodInfo{ID: 1, Name: "Standard", Fee: decimal.RequireFromString("5.00")}, nil)
	catalog.On("GetItems", mock.Anything, []int64{5}).Return(blueMug(10), nil)

	var created *Order
	repo.On("CreateOrder", mock.Anything, mock.AnythingOfType("*main.Order")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*Order) }).
		Return(nil)
	gateway.On("CreateSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&CheckoutSession{SessionID: "cs_1", RedirectURL: "https://gw.example/cs_1"}, nil)

	// Act
	resp, err := uc.CreateCheckout(context.Background(), checkoutRequest())

	// Assert: linha congelada a 45.00, total 90.00
	assert.NoError(t, err)
	assert.Equal(t, "https://gw.example/cs_1", resp.CheckoutURL)
	assert.NotNil(t, created)
	assert.True(t, created.Lines[0].Price.Equal(decimal.RequireFromString("45.00")),
		"expected frozen price 45.00, got %s", created.Lines[0].Price)
	assert.True(t, created.OrderTotal.Equal(decimal.RequireFromString("90.00")),
		"expected order total 90.00, got %s", created.OrderTotal)
	assert.Equal(t, OrderStatusAwaitingPayment, created.Status)
}

func TestCreateCheckout_InsufficientLiveStock(t *testing.T) {
	// Arrange: qty 5 pedida, estoque vivo 3
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	catalog.On("GetShippingMethod", mock.Anything, int64(1)).
		Return(&ShippingMethodInfo{ID: 1, Name: "Standard", Fee: decimal.Zero}, nil)
	catalog.On("GetItems", mock.Anything, []int64{5}).Return(blueMug(3), nil)
	repo.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)

	req := checkoutRequest()
	req.Lines = []CartLineRequest{{ProductItemID: 5, Quantity: 5}}

	// Act
	resp, err := uc.CreateCheckout(context.Background(), req)

	// Assert: sem URL de sessão e sem chamada ao gateway
	assert.Nil(t, resp)
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func awaitingOrder() *Order {
	order := NewOrder("order-42", "user-1", "jane@example.com", ShippingSnapshot{}, "Standard", decimal.Zero, "USD")
	order.AddLine(5, "Blue Mug", 2, decimal.RequireFromString("45.00"))
	order.ComputeTotals()
	return order
}

func succeededEvent() *PaymentEvent {
	return &PaymentEvent{
		EventID:         "evt_1",
		OrderID:         "order-42",
		SessionID:       "cs_1",
		TransactionID:   "tx_1",
		PaymentIntentID: "pi_1",
		Status:          EventStatusSucceeded,
		Amount:          decimal.RequireFromString("90.00"),
		Currency:        "USD",
		OccurredAt:      time.Now(),
	}
}

func TestConfirmPayment_DuplicateDelivery(t *testing.T) {
	// Arrange
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	order := awaitingOrder()
	repo.On("GetOrder", mock.Anything, "order-42").Return(order, nil)
	repo.On("GetSucceededPaymentByOrder", mock.Anything, "order-42").Return(nil, nil).Once()

	var inserted *Payment
	repo.On("InsertPaymentIfAbsent", mock.Anything, mock.AnythingOfType("*main.Payment")).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(*Payment) }).
		Return(true, nil).Once()
	repo.On("UpdateOrderPayment", mock.Anything, order).Return(nil).Once()
	catalog.On("GetItems", mock.Anything, []int64{5}).Return(blueMug(10), nil)
	publisher.On("PublishStockDecrement", mock.Anything, mock.Anything).Return(nil)
	publisher.On("PublishOrderConfirmation", mock.Anything, mock.Anything).Return(nil)

	// Act: primeira entrega aplica a confirmação
	first, err := uc.ConfirmPayment(context.Background(), succeededEvent())
	assert.NoError(t, err)
	assert.Equal(t, PaymentStatusSucceeded, first.Status)
	assert.Equal(t, "tx_1", first.TransactionID)

	// A segunda entrega encontra o ledger ocupado e faz replay
	repo.On("GetSucceededPaymentByOrder", mock.Anything, "order-42").Return(inserted, nil)

	second, err := uc.ConfirmPayment(context.Background(), succeededEvent())

	// Assert: mesma resposta, zero efeitos colaterais adicionais
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	repo.AssertNumberOfCalls(t, "InsertPaymentIfAbsent", 1)
	repo.AssertNumberOfCalls(t, "UpdateOrderPayment", 1)
	publisher.AssertNumberOfCalls(t, "PublishStockDecrement", 1)
	publisher.AssertNumberOfCalls(t, "PublishOrderConfirmation", 1)
}

func TestConfirmPayment_FailedEventAfterSuccess(t *testing.T) {
	// Arrange: o ledger já tem um succeeded para o pedido; um callback
	// atrasado chega com status failed
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	recorded := &Payment{
		ID:              "pay-7",
		TransactionID:   "tx_1",
		PaymentIntentID: "pi_1",
		ShopOrderID:     "order-42",
		Status:          PaymentStatusSucceeded,
	}

	order := awaitingOrder()
	assert.NoError(t, order.AttachPayment(recorded))
	repo.On("GetOrder", mock.Anything, "order-42").Return(order, nil)
	repo.On("GetSucceededPaymentByOrder", mock.Anything, "order-42").Return(recorded, nil)

	event := succeededEvent()
	event.Status = EventStatusFailed

	// Act
	conf, err := uc.ConfirmPayment(context.Background(), event)

	// Assert: o status do pagamento nunca regride; replay do registro
	// existente, zero efeitos colaterais
	assert.NoError(t, err)
	assert.Equal(t, PaymentStatusSucceeded, conf.Status)
	assert.Equal(t, "tx_1", conf.TransactionID)
	assert.Equal(t, OrderStatusPacking, order.Status)
	repo.AssertNotCalled(t, "InsertPaymentIfAbsent", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateOrderPayment", mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "PublishStockDecrement", mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "PublishOrderConfirmation", mock.Anything, mock.Anything)
}

func TestConfirmPayment_NotificationFailureDoesNotPropagate(t *testing.T) {
	// Arrange: a confirmação aplica, mas o broker recusa a notificação
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	order := awaitingOrder()
	repo.On("GetOrder", mock.Anything, "order-42").Return(order, nil)
	repo.On("GetSucceededPaymentByOrder", mock.Anything, "order-42").Return(nil, nil)
	repo.On("InsertPaymentIfAbsent", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("UpdateOrderPayment", mock.Anything, order).Return(nil)
	catalog.On("GetItems", mock.Anything, []int64{5}).Return(blueMug(10), nil)
	publisher.On("PublishStockDecrement", mock.Anything, mock.Anything).Return(nil)
	publisher.On("PublishOrderConfirmation", mock.Anything, mock.Anything).
		Return(errors.New("broker unreachable"))

	// Act
	conf, err := uc.ConfirmPayment(context.Background(), succeededEvent())

	// Assert: falha na notificação nunca volta para a resposta de confirmação
	assert.NoError(t, err)
	assert.Equal(t, PaymentStatusSucceeded, conf.Status)
	assert.Equal(t, OrderStatusPacking, order.Status)
	publisher.AssertNumberOfCalls(t, "PublishStockDecrement", 1)
}

func TestConfirmPayment_LostInsertRace(t *testing.T) {
	// Arrange: outra entrega concorrente venceu o insert
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	winner := &Payment{
		ID:              "pay-9",
		TransactionID:   "tx_1",
		PaymentIntentID: "pi_1",
		ShopOrderID:     "order-42",
		Status:          PaymentStatusSucceeded,
	}

	repo.On("GetOrder", mock.Anything, "order-42").Return(awaitingOrder(), nil)
	repo.On("GetSucceededPaymentByOrder", mock.Anything, "order-42").Return(nil, nil).Once()
	repo.On("InsertPaymentIfAbsent", mock.Anything, mock.Anything).Return(false, nil).Once()
	repo.On("GetSucceededPaymentByOrder", mock.Anything, "order-42").Return(winner, nil).Once()

	// Act
	conf, err := uc.ConfirmPayment(context.Background(), succeededEvent())

	// Assert: caminho de replay, sem efeitos colaterais
	assert.NoError(t, err)
	assert.Equal(t, "pay-9", conf.ID)
	repo.AssertNotCalled(t, "UpdateOrderPayment", mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "PublishStockDecrement", mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "PublishOrderConfirmation", mock.Anything, mock.Anything)
}

func TestConfirmPayment_GatewayReportsFailure(t *testing.T) {
	// Arrange
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	order := awaitingOrder()
	repo.On("GetOrder", mock.Anything, "order-42").Return(order, nil)
	repo.On("GetSucceededPaymentByOrder", mock.Anything, "order-42").Return(nil, nil)

	event := succeededEvent()
	event.Status = EventStatusFailed

	// Act
	conf, err := uc.ConfirmPayment(context.Background(), event)

	// Assert: nenhum registro criado, pedido segue em awaiting_payment
	assert.NoError(t, err)
	assert.Equal(t, EventStatusFailed, conf.Status)
	assert.Equal(t, OrderStatusAwaitingPayment, order.Status)
	repo.AssertNotCalled(t, "InsertPaymentIfAbsent", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateOrderPayment", mock.Anything, mock.Anything)
}

func TestConfirmPayment_PostPaymentStockShortfall(t *testing.T) {
	// Arrange: o estoque acabou entre o pre-flight e a confirmação
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	order := awaitingOrder()
	repo.On("GetOrder", mock.Anything, "order-42").Return(order, nil)
	repo.On("GetSucceededPaymentByOrder", mock.Anything, "order-42").Return(nil, nil)
	repo.On("InsertPaymentIfAbsent", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("UpdateOrderPayment", mock.Anything, order).Return(nil)
	catalog.On("GetItems", mock.Anything, []int64{5}).Return(blueMug(1), nil)
	publisher.On("PublishOrderConfirmation", mock.Anything, mock.Anything).Return(nil)

	// Act
	conf, err := uc.ConfirmPayment(context.Background(), succeededEvent())

	// Assert: pagamento aplicado e pedido em packing com a discrepância;
	// nenhum decremento publicado, notificação ainda sai
	assert.NoError(t, err)
	assert.Equal(t, PaymentStatusSucceeded, conf.Status)
	assert.Equal(t, OrderStatusPacking, order.Status)
	publisher.AssertNotCalled(t, "PublishStockDecrement", mock.Anything, mock.Anything)
	publisher.AssertNumberOfCalls(t, "PublishOrderConfirmation", 1)
}

func TestConfirmPayment_OrderNotFound(t *testing.T) {
	// Arrange
	repo := new(MockRepository)
	catalog := new(MockCatalog)
	gateway := new(MockGateway)
	publisher := new(MockPublisher)
	uc := newTestUseCase(repo, catalog, gateway, publisher)

	repo.On("GetOrder", mock.Anything, "order-42").Return(nil, ErrOrderNotFound)

	// Act
	conf, err := uc.ConfirmPayment(context.Background(), succeededEvent())

	// Assert
	assert.Nil(t, conf)
	assert.Equal(t, KindNotFound, KindOf(err))
}
