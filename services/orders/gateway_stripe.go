package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// StripeGateway implementa PaymentGateway no modelo de checkout session
// hospedada com confirmação via webhook assinado
type StripeGateway struct {
	client        *resty.Client
	webhookSecret string
}

// NewStripeGateway cria uma nova instância de StripeGateway
func NewStripeGateway(apiBase, secretKey, webhookSecret string) *StripeGateway {
	client := resty.New().
		SetBaseURL(apiBase).
		SetAuthToken(secretKey).
		SetTimeout(10 * time.Second)

	return &StripeGateway{
		client:        client,
		webhookSecret: webhookSecret,
	}
}

// Name retorna o nome do provedor
func (g *StripeGateway) Name() string {
	return "stripe"
}

type stripeLineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
}

type stripeSession struct {
	ID                   string            `json:"id"`
	URL                  string            `json:"url"`
	PaymentIntent        string            `json:"payment_intent"`
	LatestCharge         string            `json:"latest_charge"`
	Status               string            `json:"status"`
	PaymentStatus        string            `json:"payment_status"`
	AmountTotal          int64             `json:"amount_total"`
	Currency             string            `json:"currency"`
	Metadata             map[string]string `json:"metadata"`
	PaymentMethodDetails struct {
		Card struct {
			Last4 string `json:"last4"`
			Brand string `json:"brand"`
		} `json:"card"`
	} `json:"payment_method_details"`
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripeSession `json:"object"`
	} `json:"data"`
}

// CreateSession cria uma checkout session hospedada com uma line item por
// linha do pedido, mais o frete como line item opcional
func (g *StripeGateway) CreateSession(ctx context.Context, order *Order, successURL, cancelURL string) (*CheckoutSession, error) {
	items := make([]stripeLineItem, 0, len(order.Lines)+1)
	for _, line := range order.Lines {
		items = append(items, stripeLineItem{
			Name:       line.ProductName,
			UnitAmount: toCents(line.Price),
			Quantity:   line.Quantity,
		})
	}
	if order.ShippingFee.IsPositive() {
		items = append(items, stripeLineItem{
			Name:       "Shipping: " + order.ShippingMethod,
			UnitAmount: toCents(order.ShippingFee),
			Quantity:   1,
		})
	}

	payload := map[string]any{
		"mode":        "payment",
		"currency":    strings.ToLower(order.Currency),
		"success_url": successURL,
		"cancel_url":  cancelURL,
		"line_items":  items,
		"metadata": map[string]string{
			"order_id": order.ID,
			"user_id":  order.UserID,
		},
	}

	var session stripeSession
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&session).
		Post("/v1/checkout/sessions")
	if err != nil {
		return nil, WrapCheckoutError(KindUpstream, err, "stripe session create failed")
	}
	if resp.IsError() {
		return nil, NewCheckoutError(KindUpstream, "stripe session create returned %d: %s", resp.StatusCode(), resp.String())
	}

	return &CheckoutSession{SessionID: session.ID, RedirectURL: session.URL}, nil
}

// VerifyWebhook valida a assinatura `t=<unix>,v1=<hmac>` sobre o body cru
// e normaliza o evento. Qualquer falha de assinatura aborta sem mudança de
// estado.
func (g *StripeGateway) VerifyWebhook(body []byte, headers map[string]string) (*PaymentEvent, error) {
	sigHeader := headers["Stripe-Signature"]
	if sigHeader == "" {
		return nil, NewCheckoutError(KindAuthentication, "missing signature header")
	}

	var timestamp, signature string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signature = kv[1]
		}
	}
	if timestamp == "" || signature == "" {
		return nil, NewCheckoutError(KindAuthentication, "malformed signature header")
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, NewCheckoutError(KindAuthentication, "webhook signature mismatch")
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, WrapCheckoutError(KindInvalidRequest, err, "malformed webhook payload")
	}

	return g.normalize(event.ID, event.Type, event.Data.Object)
}

// VerifyCallback não se aplica ao modelo de sessão hospedada
func (g *StripeGateway) VerifyCallback(form url.Values) (*PaymentEvent, error) {
	return nil, NewCheckoutError(KindInvalidRequest, "stripe gateway does not use redirect callbacks")
}

// FetchSession consulta a sessão diretamente na API (caminho de verificação
// síncrona por polling)
func (g *StripeGateway) FetchSession(ctx context.Context, sessionID string) (*PaymentEvent, error) {
	var session stripeSession
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&session).
		Get("/v1/checkout/sessions/" + url.PathEscape(sessionID))
	if err != nil {
		return nil, WrapCheckoutError(KindUpstream, err, "stripe session fetch failed")
	}
	if resp.StatusCode() == 404 {
		return nil, NewCheckoutError(KindNotFound, "checkout session %s not found", sessionID)
	}
	if resp.IsError() {
		return nil, NewCheckoutError(KindUpstream, "stripe session fetch returned %d", resp.StatusCode())
	}

	return g.normalize("poll-"+session.ID, "checkout.session.polled", session)
}

// normalize converte uma sessão Stripe no PaymentEvent comum às integrações
func (g *StripeGateway) normalize(eventID, eventType string, session stripeSession) (*PaymentEvent, error) {
	orderID := session.Metadata["order_id"]
	if orderID == "" {
		return nil, NewCheckoutError(KindInvalidRequest, "webhook session %s has no order_id metadata", session.ID)
	}

	status := EventStatusPending
	switch {
	case eventType == "checkout.session.expired":
		status = EventStatusCanceled
	case eventType == "checkout.session.async_payment_failed":
		status = EventStatusFailed
	case session.PaymentStatus == "paid":
		status = EventStatusSucceeded
	}

	transactionID := session.LatestCharge
	if transactionID == "" {
		transactionID = session.ID
	}

	return &PaymentEvent{
		EventID:         eventID,
		OrderID:         orderID,
		SessionID:       session.ID,
		TransactionID:   transactionID,
		PaymentIntentID: session.PaymentIntent,
		Status:          status,
		Amount:          decimal.NewFromInt(session.AmountTotal).Div(decimal.NewFromInt(100)),
		Currency:        strings.ToUpper(session.Currency),
		CardLast4:       session.PaymentMethodDetails.Card.Last4,
		CardBrand:       session.PaymentMethodDetails.Card.Brand,
		OccurredAt:      time.Now(),
	}, nil
}

// toCents converte um valor decimal em centavos inteiros
func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
