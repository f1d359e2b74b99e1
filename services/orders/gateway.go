package main

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Status normalizado de um evento de gateway, independente do provedor
const (
	EventStatusSucceeded = "succeeded"
	EventStatusPending   = "pending"
	EventStatusFailed    = "failed"
	EventStatusCanceled  = "canceled"
)

// PaymentEvent é a visão normalizada de um callback/webhook de gateway.
// É transiente: dirige a criação do Payment e é descartado em seguida.
type PaymentEvent struct {
	EventID         string
	OrderID         string
	SessionID       string
	TransactionID   string
	PaymentIntentID string
	Status          string
	Amount          decimal.Decimal
	Currency        string
	CardLast4       string
	CardBrand       string
	OccurredAt      time.Time
}

// CheckoutSession é o resultado da criação de uma sessão de checkout
type CheckoutSession struct {
	SessionID   string
	RedirectURL string
}

// PaymentGateway é o contrato comum entre as duas integrações de gateway.
// CreateSession assume que o estoque já foi pré-validado pelo orquestrador.
type PaymentGateway interface {
	// Name retorna o nome do provedor ("stripe", "payhere")
	Name() string

	// CreateSession cria uma sessão de checkout hospedada e retorna a URL
	// de redirecionamento opaca
	CreateSession(ctx context.Context, order *Order, successURL, cancelURL string) (*CheckoutSession, error)

	// VerifyWebhook autentica e normaliza um webhook (body cru + headers).
	// Falha de assinatura retorna KindAuthentication sem nenhuma mudança
	// de estado.
	VerifyWebhook(body []byte, headers map[string]string) (*PaymentEvent, error)

	// VerifyCallback autentica e normaliza um callback de redirect
	// (form values)
	VerifyCallback(form url.Values) (*PaymentEvent, error)

	// FetchSession consulta o status de uma sessão diretamente na API do
	// gateway (caminho de verificação síncrona)
	FetchSession(ctx context.Context, sessionID string) (*PaymentEvent, error)
}
