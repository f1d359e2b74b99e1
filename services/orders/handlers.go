package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutUseCaseInterface define a interface para o use case
type CheckoutUseCaseInterface interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
	HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (*PaymentConfirmation, error)
	VerifySession(ctx context.Context, sessionID string) (*PaymentConfirmation, error)
}

// OrderHandler contém os handlers HTTP
type OrderHandler struct {
	useCase CheckoutUseCaseInterface
	tracer  trace.Tracer
}

// NewOrderHandler cria uma nova instância de OrderHandler
func NewOrderHandler(useCase CheckoutUseCaseInterface, tracer trace.Tracer) *OrderHandler {
	return &OrderHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

// statusForKind mapeia o kind do erro tipado para o status HTTP
func statusForKind(kind ErrorKind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock:
		return http.StatusConflict
	case KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// CreateCheckout cria o pedido a partir do carrinho e abre a sessão de
// checkout no gateway
func (h *OrderHandler) CreateCheckout(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "create_checkout")
	defer span.End()

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.Int("cart_lines", len(req.Lines)),
	)

	resp, err := h.useCase.CreateCheckout(ctx, req)
	if err != nil {
		span.RecordError(err)
		c.JSON(statusForKind(KindOf(err)), gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.String("order_id", resp.OrderID))
	c.JSON(http.StatusOK, resp)
}

// PaymentWebhook recebe a notificação do gateway (body cru + assinatura)
func (h *OrderHandler) PaymentWebhook(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "payment_webhook")
	defer span.End()

	body, err := c.GetRawData()
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	headers := map[string]string{
		"Stripe-Signature": c.GetHeader("Stripe-Signature"),
		"Content-Type":     c.GetHeader("Content-Type"),
	}

	confirmation, err := h.useCase.HandleWebhook(ctx, body, headers)
	if err != nil {
		span.RecordError(err)
		c.JSON(statusForKind(KindOf(err)), gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("order_id", confirmation.OrderID),
		attribute.String("payment_status", confirmation.Status),
	)

	// 200 tanto para aplicado quanto para ignorado (pending/failed):
	// o gateway não deve redeliverar eventos que já aceitamos
	c.JSON(http.StatusOK, confirmation)
}

// VerifyPayment é o caminho síncrono de verificação por sessionId
func (h *OrderHandler) VerifyPayment(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "verify_payment")
	defer span.End()

	sessionID := c.Param("sessionId")
	span.SetAttributes(attribute.String("session_id", sessionID))

	confirmation, err := h.useCase.VerifySession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		c.JSON(statusForKind(KindOf(err)), gin.H{"error": err.Error()})
		return
	}

	if confirmation.Status != PaymentStatusSucceeded {
		c.JSON(http.StatusBadRequest, confirmation)
		return
	}

	c.JSON(http.StatusOK, confirmation)
}

// HealthCheck verifica a saúde do serviço
func (h *OrderHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "orders-service",
	})
}
